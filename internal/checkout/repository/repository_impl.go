package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/banadama/pricing/internal/checkout/domain"
	"gorm.io/gorm"
)

const (
	orderColumns = `id, buyer_account_id, supplier_account_id, quote_id, idempotency_key,
	status, currency, subtotal, total, line_items, created_at`
	quoteColumns = `id, rfq_id, status, context, rule_set_version, provisional_total,
	order_id, created_at, updated_at`
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertOrder(ctx context.Context, db *gorm.DB, o *domain.Order) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO orders (`+orderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID,
		o.BuyerAccountID,
		o.SupplierAccountID,
		o.QuoteID,
		o.IdempotencyKey,
		o.Status,
		o.Currency,
		o.Subtotal,
		o.Total,
		o.LineItems,
		o.CreatedAt,
	).Error
}

func (r *repo) FindOrderByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	return r.findOrder(ctx, db, `id = ?`, id)
}

func (r *repo) FindOrderByIdempotencyKey(ctx context.Context, db *gorm.DB, key string) (*domain.Order, error) {
	return r.findOrder(ctx, db, `idempotency_key = ?`, key)
}

func (r *repo) findOrder(ctx context.Context, db *gorm.DB, where string, arg any) (*domain.Order, error) {
	var order domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+` FROM orders WHERE `+where,
		arg,
	).Scan(&order).Error
	if err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, nil
	}
	return &order, nil
}

func (r *repo) InsertQuote(ctx context.Context, db *gorm.DB, q *domain.Quote) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO quotes (`+quoteColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID,
		q.RFQID,
		q.Status,
		q.Context,
		q.RuleSetVersion,
		q.ProvisionalTotal,
		q.OrderID,
		q.CreatedAt,
		q.UpdatedAt,
	).Error
}

func (r *repo) FindQuote(ctx context.Context, db *gorm.DB, rfqID string, id snowflake.ID) (*domain.Quote, error) {
	var quote domain.Quote
	err := db.WithContext(ctx).Raw(
		`SELECT `+quoteColumns+` FROM quotes WHERE rfq_id = ? AND id = ?`,
		rfqID,
		id,
	).Scan(&quote).Error
	if err != nil {
		return nil, err
	}
	if quote.ID == 0 {
		return nil, nil
	}
	return &quote, nil
}

func (r *repo) MarkQuoteAccepted(ctx context.Context, db *gorm.DB, q *domain.Quote) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE quotes SET status = ?, order_id = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.QuoteStatusAccepted,
		q.OrderID,
		q.UpdatedAt,
		q.ID,
		domain.QuoteStatusOpen,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
