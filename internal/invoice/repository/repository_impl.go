package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	invoicedomain "github.com/smallbiznis/billingcore/internal/invoice/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const invoiceColumns = `id, number, sequence, subscription_id, user_id, status, period_start, period_end,
	issue_date, due_date, subtotal, discount_amount, tax_amount, total, paid_amount, created_at, updated_at`

const lineColumns = `id, invoice_id, position, subscription_line_id, description, quantity, unit_price,
	subtotal, discount_amount, tax_amount, line_total, metadata, created_at`

type repo struct{}

func Provide() invoicedomain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*invoicedomain.Invoice, error) {
	return findInvoice(ctx, db, id, false)
}

// FindByIDForUpdate row-locks the invoice until the transaction ends.
// SQLite serialises writers on its own and has no FOR UPDATE.
func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*invoicedomain.Invoice, error) {
	return findInvoice(ctx, db, id, true)
}

func findInvoice(ctx context.Context, db *gorm.DB, id snowflake.ID, forUpdate bool) (*invoicedomain.Invoice, error) {
	var invoice invoicedomain.Invoice
	query := `SELECT ` + invoiceColumns + `
	 FROM invoices
	 WHERE id = ?
	 LIMIT 1`
	if forUpdate && db.Dialector.Name() != "sqlite" {
		query += " FOR UPDATE"
	}
	err := db.WithContext(ctx).Raw(query, id).Scan(&invoice).Error
	if err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, nil
	}
	return &invoice, nil
}

func (r *repo) FindBySubscriptionPeriod(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, periodStart time.Time) (*invoicedomain.Invoice, error) {
	var invoice invoicedomain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT `+invoiceColumns+`
		 FROM invoices
		 WHERE subscription_id = ? AND period_start = ?
		 LIMIT 1`,
		subscriptionID,
		periodStart,
	).Scan(&invoice).Error
	if err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, nil
	}
	return &invoice, nil
}

func (r *repo) ListBySubscription(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) ([]invoicedomain.Invoice, error) {
	var invoices []invoicedomain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT `+invoiceColumns+`
		 FROM invoices
		 WHERE subscription_id = ?
		 ORDER BY period_start ASC, id ASC`,
		subscriptionID,
	).Scan(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

// Insert skips the row when the (subscription_id, period_start) key is
// already taken and reports whether it wrote anything.
func (r *repo) Insert(ctx context.Context, db *gorm.DB, invoice *invoicedomain.Invoice) (bool, error) {
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "subscription_id"}, {Name: "period_start"}},
			DoNothing: true,
		}).
		Create(invoice)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) InsertLines(ctx context.Context, db *gorm.DB, lines []invoicedomain.InvoiceLine) error {
	if len(lines) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&lines).Error
}

func (r *repo) ListLines(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]invoicedomain.InvoiceLine, error) {
	var lines []invoicedomain.InvoiceLine
	err := db.WithContext(ctx).Raw(
		`SELECT `+lineColumns+`
		 FROM invoice_lines
		 WHERE invoice_id = ?
		 ORDER BY position ASC, id ASC`,
		invoiceID,
	).Scan(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status invoicedomain.InvoiceStatus, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE invoices SET status = ?, updated_at = ? WHERE id = ?`,
		status,
		at,
		id,
	).Error
}

func (r *repo) UpdatePaidAmount(ctx context.Context, db *gorm.DB, id snowflake.ID, paid decimal.Decimal, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE invoices SET paid_amount = ?, updated_at = ? WHERE id = ?`,
		paid,
		at,
		id,
	).Error
}

func (r *repo) CountPayments(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM payments WHERE invoice_id = ?`,
		id,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Delete removes the invoice together with its lines.
func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	if err := db.WithContext(ctx).Exec(
		`DELETE FROM invoice_lines WHERE invoice_id = ?`,
		id,
	).Error; err != nil {
		return err
	}
	return db.WithContext(ctx).Exec(
		`DELETE FROM invoices WHERE id = ?`,
		id,
	).Error
}

func (r *repo) NextSequence(ctx context.Context, db *gorm.DB) (int64, error) {
	var next int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM invoices`,
	).Scan(&next).Error
	if err != nil {
		return 0, err
	}
	return next, nil
}
