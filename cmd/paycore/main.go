package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paycore/internal/clock"
	"github.com/smallbiznis/paycore/internal/config"
	"github.com/smallbiznis/paycore/internal/migration"
	"github.com/smallbiznis/paycore/internal/observability"
	"github.com/smallbiznis/paycore/internal/payment"
	"github.com/smallbiznis/paycore/internal/payment/reconciliation"
	"github.com/smallbiznis/paycore/internal/reference"
	"github.com/smallbiznis/paycore/pkg/db"
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

		// Payments
		reference.Module,
		payment.Module,
		reconciliation.Module,
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
