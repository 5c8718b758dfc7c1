package audit

import (
	"github.com/minghua-center/minghua/internal/audit/service"
	"go.uber.org/fx"
)

// Module wires the audit service.
var Module = fx.Module("audit",
	fx.Provide(service.New),
)
