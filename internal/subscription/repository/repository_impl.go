package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/smallbiznis/billingcore/internal/subscription/domain"
	"gorm.io/gorm"
)

const subscriptionColumns = `id, number, sequence, user_id, plan_id, status, salesperson_id, start_date, end_date,
	order_date, expiration_date, next_billing_date, payment_term_days, payment_method, payment_done, notes,
	created_at, updated_at`

const lineColumns = `id, subscription_id, position, variant_id, quantity, unit_price, discount_id, tax_rate_id,
	notes, created_at`

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (`+subscriptionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		subscription.ID,
		subscription.Number,
		subscription.Sequence,
		subscription.UserID,
		subscription.PlanID,
		subscription.Status,
		subscription.SalespersonID,
		subscription.StartDate,
		subscription.EndDate,
		subscription.OrderDate,
		subscription.ExpirationDate,
		subscription.NextBillingDate,
		subscription.PaymentTermDays,
		subscription.PaymentMethod,
		subscription.PaymentDone,
		subscription.Notes,
		subscription.CreatedAt,
		subscription.UpdatedAt,
	).Error
}

func (r *repo) InsertLines(ctx context.Context, db *gorm.DB, lines []subscriptiondomain.SubscriptionLine) error {
	if len(lines) == 0 {
		return nil
	}

	for _, line := range lines {
		if err := db.WithContext(ctx).Exec(
			`INSERT INTO subscription_lines (`+lineColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			line.ID,
			line.SubscriptionID,
			line.Position,
			line.VariantID,
			line.Quantity,
			line.UnitPrice,
			line.DiscountID,
			line.TaxRateID,
			line.Notes,
			line.CreatedAt,
		).Error; err != nil {
			return err
		}
	}

	return nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return findSubscription(ctx, db, id, false)
}

// FindByIDForUpdate row-locks the subscription until the transaction ends.
// SQLite serialises writers on its own and has no FOR UPDATE.
func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return findSubscription(ctx, db, id, true)
}

func findSubscription(ctx context.Context, db *gorm.DB, id snowflake.ID, forUpdate bool) (*subscriptiondomain.Subscription, error) {
	var subscription subscriptiondomain.Subscription
	query := `SELECT ` + subscriptionColumns + `
	 FROM subscriptions
	 WHERE id = ?
	 LIMIT 1`
	if forUpdate && db.Dialector.Name() != "sqlite" {
		query += " FOR UPDATE"
	}
	err := db.WithContext(ctx).Raw(query, id).Scan(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}

// List orders newest first and fetches one row past PageSize so callers can
// tell whether another page exists.
func (r *repo) List(ctx context.Context, db *gorm.DB, filter subscriptiondomain.ListFilter) ([]subscriptiondomain.Subscription, error) {
	var items []subscriptiondomain.Subscription
	stmt := db.WithContext(ctx).Model(&subscriptiondomain.Subscription{})

	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.UserID != nil {
		stmt = stmt.Where("user_id = ?", *filter.UserID)
	}
	if filter.AfterID != nil {
		stmt = stmt.Where("id < ?", *filter.AfterID)
	}

	stmt = stmt.Order("id desc")
	if filter.PageSize > 0 {
		stmt = stmt.Limit(filter.PageSize + 1)
	}

	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListLines(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) ([]subscriptiondomain.SubscriptionLine, error) {
	var lines []subscriptiondomain.SubscriptionLine
	err := db.WithContext(ctx).Raw(
		`SELECT `+lineColumns+`
		 FROM subscription_lines
		 WHERE subscription_id = ?
		 ORDER BY position ASC, id ASC`,
		subscriptionID,
	).Scan(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

func (r *repo) CountLines(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM subscription_lines WHERE subscription_id = ?`,
		subscriptionID,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repo) FindLine(ctx context.Context, db *gorm.DB, subscriptionID, lineID snowflake.ID) (*subscriptiondomain.SubscriptionLine, error) {
	var line subscriptiondomain.SubscriptionLine
	err := db.WithContext(ctx).Raw(
		`SELECT `+lineColumns+`
		 FROM subscription_lines
		 WHERE subscription_id = ? AND id = ?
		 LIMIT 1`,
		subscriptionID,
		lineID,
	).Scan(&line).Error
	if err != nil {
		return nil, err
	}
	if line.ID == 0 {
		return nil, nil
	}
	return &line, nil
}

func (r *repo) NextLinePosition(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) (int, error) {
	var position int
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(MAX(position), 0) + 1 FROM subscription_lines WHERE subscription_id = ?`,
		subscriptionID,
	).Scan(&position).Error
	if err != nil {
		return 0, err
	}
	return position, nil
}

func (r *repo) DeleteLine(ctx context.Context, db *gorm.DB, lineID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM subscription_lines WHERE id = ?`,
		lineID,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET plan_id = ?, status = ?, salesperson_id = ?, start_date = ?, end_date = ?, order_date = ?,
		 expiration_date = ?, next_billing_date = ?, payment_term_days = ?, payment_method = ?,
		 payment_done = ?, notes = ?, updated_at = ?
		 WHERE id = ?`,
		subscription.PlanID,
		subscription.Status,
		subscription.SalespersonID,
		subscription.StartDate,
		subscription.EndDate,
		subscription.OrderDate,
		subscription.ExpirationDate,
		subscription.NextBillingDate,
		subscription.PaymentTermDays,
		subscription.PaymentMethod,
		subscription.PaymentDone,
		subscription.Notes,
		subscription.UpdatedAt,
		subscription.ID,
	).Error
}

// Delete removes the subscription together with its lines.
func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	if err := db.WithContext(ctx).Exec(
		`DELETE FROM subscription_lines WHERE subscription_id = ?`,
		id,
	).Error; err != nil {
		return err
	}
	return db.WithContext(ctx).Exec(
		`DELETE FROM subscriptions WHERE id = ?`,
		id,
	).Error
}

func (r *repo) NextSequence(ctx context.Context, db *gorm.DB) (int64, error) {
	var next int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM subscriptions`,
	).Scan(&next).Error
	if err != nil {
		return 0, err
	}
	return next, nil
}
