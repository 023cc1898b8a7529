// Package testutil provides in-memory databases and catalog fixtures for
// service tests.
package testutil

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	catalogdomain "github.com/smallbiznis/billingcore/internal/catalog/domain"
	catalogrepo "github.com/smallbiznis/billingcore/internal/catalog/repository"
	"github.com/smallbiznis/billingcore/internal/migration"
	"github.com/smallbiznis/billingcore/internal/permission"
	"github.com/smallbiznis/billingcore/internal/pricing"
)

var (
	dbSeq   atomic.Int64
	nodeSeq atomic.Int64
)

// NewDB opens a migrated in-memory sqlite database private to t. The pool
// holds a single connection, so concurrent transactions run one at a time.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  gormlogger.Discard,
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migration.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// NewNode returns a node with an id no other NewNode call in the process
// shares, so ids from different nodes never collide.
func NewNode(t testing.TB) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(nodeSeq.Add(1) % 1024)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return node
}

func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Catalog is a seeded set of records covering every pricing input.
type Catalog struct {
	Customer   catalogdomain.User
	Staff      catalogdomain.User
	Monthly    catalogdomain.RecurringPlan
	Yearly     catalogdomain.RecurringPlan
	Variant    catalogdomain.ProductVariant
	Addon      catalogdomain.ProductVariant
	Tax18      catalogdomain.TaxRate
	TenPercent catalogdomain.Discount
	FiveOff    catalogdomain.Discount
}

func SeedCatalog(t testing.TB, db *gorm.DB, node *snowflake.Node) Catalog {
	t.Helper()

	now := time.Now().UTC()
	c := Catalog{
		Customer:   catalogdomain.User{ID: node.Generate(), Name: "Portal Customer", Email: fmt.Sprintf("customer-%d@example.com", dbSeq.Add(1)), Role: permission.RolePortal, CreatedAt: now},
		Staff:      catalogdomain.User{ID: node.Generate(), Name: "Billing Staff", Email: fmt.Sprintf("staff-%d@example.com", dbSeq.Add(1)), Role: permission.RoleInternal, CreatedAt: now},
		Monthly:    catalogdomain.RecurringPlan{ID: node.Generate(), Name: "Monthly", BillingPeriod: catalogdomain.BillingPeriodMonthly, IntervalCount: 1, Active: true, CreatedAt: now},
		Yearly:     catalogdomain.RecurringPlan{ID: node.Generate(), Name: "Yearly", BillingPeriod: catalogdomain.BillingPeriodYearly, IntervalCount: 1, Active: true, CreatedAt: now},
		Variant:    catalogdomain.ProductVariant{ID: node.Generate(), ProductName: "Hosting", Name: "Standard", Price: Dec("50.00"), CreatedAt: now},
		Addon:      catalogdomain.ProductVariant{ID: node.Generate(), ProductName: "Backup", Name: "Daily", Price: Dec("9.99"), CreatedAt: now},
		Tax18:      catalogdomain.TaxRate{ID: node.Generate(), Name: "VAT 18%", Percent: Dec("18"), CreatedAt: now},
		TenPercent: catalogdomain.Discount{ID: node.Generate(), Name: "Ten percent", Type: pricing.DiscountPercentage, Value: Dec("10"), CreatedAt: now},
		FiveOff:    catalogdomain.Discount{ID: node.Generate(), Name: "Five off", Type: pricing.DiscountFixed, Value: Dec("5"), CreatedAt: now},
	}

	repo := catalogrepo.Provide()
	ctx := context.Background()
	for _, record := range []any{
		&c.Customer, &c.Staff, &c.Monthly, &c.Yearly, &c.Variant, &c.Addon, &c.Tax18, &c.TenPercent, &c.FiveOff,
	} {
		if err := repo.Insert(ctx, db, record); err != nil {
			t.Fatalf("seed %T: %v", record, err)
		}
	}
	return c
}

// CountRows returns the number of rows in table.
func CountRows(t testing.TB, db *gorm.DB, table string) int64 {
	t.Helper()
	var count int64
	if err := db.Table(table).Count(&count).Error; err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return count
}
