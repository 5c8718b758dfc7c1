package db

import "go.uber.org/fx"

// Module provides the shared gorm connection.
var Module = fx.Module("db",
	fx.Provide(Open),
)
