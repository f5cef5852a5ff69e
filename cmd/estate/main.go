package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/estate/internal/clock"
	"github.com/smallbiznis/estate/internal/config"
	"github.com/smallbiznis/estate/internal/migration"
	"github.com/smallbiznis/estate/internal/observability"
	"github.com/smallbiznis/estate/internal/scheduler"
	"github.com/smallbiznis/estate/internal/server"
	"github.com/smallbiznis/estate/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// HTTP server and the domain modules it serves
		server.Module,

		// Schema, seed data and background jobs
		migration.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
