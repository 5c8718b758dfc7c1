package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/minghua-center/minghua/internal/clock"
	"github.com/minghua-center/minghua/internal/config"
	"github.com/minghua-center/minghua/internal/logger"
	"github.com/minghua-center/minghua/internal/migration"
	"github.com/minghua-center/minghua/internal/server"
	"github.com/minghua-center/minghua/pkg/db"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		config.Module,
		logger.Module,
		clock.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		server.Module,
	).Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
