package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/smallbiznis/billingcore/internal/audit"
	"github.com/smallbiznis/billingcore/internal/catalog"
	"github.com/smallbiznis/billingcore/internal/clock"
	"github.com/smallbiznis/billingcore/internal/config"
	"github.com/smallbiznis/billingcore/internal/invoice"
	invoicedomain "github.com/smallbiznis/billingcore/internal/invoice/domain"
	"github.com/smallbiznis/billingcore/internal/migration"
	"github.com/smallbiznis/billingcore/internal/observability"
	"github.com/smallbiznis/billingcore/internal/payment"
	paymentdomain "github.com/smallbiznis/billingcore/internal/payment/domain"
	"github.com/smallbiznis/billingcore/internal/permission"
	"github.com/smallbiznis/billingcore/internal/subscription"
	subscriptiondomain "github.com/smallbiznis/billingcore/internal/subscription/domain"
	"github.com/smallbiznis/billingcore/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
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

		// Functional Domains
		catalog.Module,
		audit.Module,
		subscription.Module,
		invoice.Module,
		payment.Module,
		permission.Module,

		fx.Invoke(ready),
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}

func ready(
	log *zap.Logger,
	_ subscriptiondomain.Service,
	_ invoicedomain.Service,
	_ paymentdomain.Service,
	_ *casbin.SyncedEnforcer,
) {
	log.Info("billing core ready")
}
