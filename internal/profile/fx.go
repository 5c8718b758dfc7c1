package profile

import (
	"github.com/minghua-center/minghua/internal/profile/repository"
	"go.uber.org/fx"
)

// Module wires the profile store.
var Module = fx.Module("profile",
	fx.Provide(repository.New),
)
