package authorization

import "go.uber.org/fx"

// Module wires the casbin-backed authorization service.
var Module = fx.Module("authorization",
	fx.Provide(New),
)
