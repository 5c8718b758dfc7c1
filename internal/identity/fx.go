package identity

import (
	"github.com/minghua-center/minghua/internal/identity/local"
	"go.uber.org/fx"
)

// Module wires the local identity provider.
var Module = fx.Module("identity",
	fx.Provide(local.NewProvider),
)
