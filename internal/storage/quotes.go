package storage

import (
	"context"
	"ms-booking/internal/models"

	"github.com/uptrace/bun"
)

// ---------------- QUOTES ----------------

func orderItems(q *bun.SelectQuery) *bun.SelectQuery {
	return q.Order("position ASC")
}

// InsertQuote inserts the quote and its line items.
func (d *DB) InsertQuote(ctx context.Context, q *models.Quote) error {
	db := d.idb(ctx)
	if _, err := db.NewInsert().Model(q).Exec(ctx); err != nil {
		return err
	}
	for i := range q.Items {
		q.Items[i].QuoteID = q.ID
	}
	if len(q.Items) == 0 {
		return nil
	}
	_, err := db.NewInsert().Model(&q.Items).Exec(ctx)
	return err
}

// UpdateQuoteStatus writes the lifecycle columns of a quote. Items are never updated.
func (d *DB) UpdateQuoteStatus(ctx context.Context, q *models.Quote) error {
	_, err := d.idb(ctx).NewUpdate().
		Model(q).
		Column("status", "superseded_at", "accepted_at", "rejected_at", "reject_reason", "client_note").
		WherePK().
		Exec(ctx)
	return err
}

func (d *DB) GetActiveQuote(ctx context.Context, bookingID string) (*models.Quote, error) {
	var q models.Quote
	err := d.idb(ctx).NewSelect().
		Model(&q).
		Relation("Items", orderItems).
		Where("quote.booking_id = ?", bookingID).
		Where("quote.status = ?", models.QuoteActive).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err)
	}
	return &q, nil
}

// GetLatestQuote returns the highest version quote of a booking.
func (d *DB) GetLatestQuote(ctx context.Context, bookingID string) (*models.Quote, error) {
	var q models.Quote
	err := d.idb(ctx).NewSelect().
		Model(&q).
		Relation("Items", orderItems).
		Where("quote.booking_id = ?", bookingID).
		Order("quote.version DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err)
	}
	return &q, nil
}

func (d *DB) ListQuotes(ctx context.Context, bookingID string) ([]models.Quote, error) {
	var out []models.Quote
	err := d.idb(ctx).NewSelect().
		Model(&out).
		Relation("Items", orderItems).
		Where("quote.booking_id = ?", bookingID).
		Order("quote.version ASC").
		Scan(ctx)
	return out, err
}

func (d *DB) MaxQuoteVersion(ctx context.Context, bookingID string) (int, error) {
	var version int
	err := d.idb(ctx).NewSelect().
		Model((*models.Quote)(nil)).
		ColumnExpr("COALESCE(MAX(version), 0)").
		Where("booking_id = ?", bookingID).
		Scan(ctx, &version)
	return version, err
}
