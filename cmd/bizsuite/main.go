package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bizsuite/internal/clock"
	"github.com/smallbiznis/bizsuite/internal/migration"
	"github.com/smallbiznis/bizsuite/internal/observability"
	"github.com/smallbiznis/bizsuite/internal/server"
	"github.com/smallbiznis/bizsuite/pkg/db"
	"github.com/smallbiznis/bizsuite/pkg/lock"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		lock.Module,

		// Schema, then the HTTP surface with every domain module behind it.
		migration.Module,
		server.Module,
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
