package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/banadama/pricing/internal/clock"
	"github.com/banadama/pricing/internal/config"
	"github.com/banadama/pricing/internal/migration"
	"github.com/banadama/pricing/internal/observability"
	"github.com/banadama/pricing/internal/server"
	"github.com/banadama/pricing/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Pricing, settlement and checkout over HTTP
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
