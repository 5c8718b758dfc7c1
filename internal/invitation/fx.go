package invitation

import (
	"github.com/minghua-center/minghua/internal/invitation/repository"
	"github.com/minghua-center/minghua/internal/invitation/service"
	"go.uber.org/fx"
)

// Module wires the invitation store and service.
var Module = fx.Module("invitation",
	fx.Provide(repository.New),
	fx.Provide(service.New),
)
