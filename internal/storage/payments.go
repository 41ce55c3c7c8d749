package storage

import (
	"context"
	"ms-booking/internal/models"
)

// ---------------- PAYMENTS ----------------

func (d *DB) InsertPayment(ctx context.Context, p *models.Payment) error {
	_, err := d.idb(ctx).NewInsert().Model(p).Exec(ctx)
	return err
}

func (d *DB) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	var p models.Payment
	err := d.idb(ctx).NewSelect().Model(&p).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (d *DB) GetPaymentByExternalRef(ctx context.Context, ref string) (*models.Payment, error) {
	var p models.Payment
	err := d.idb(ctx).NewSelect().Model(&p).Where("external_ref = ?", ref).Limit(1).Scan(ctx)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (d *DB) ListPayments(ctx context.Context, bookingID string) ([]models.Payment, error) {
	var out []models.Payment
	err := d.idb(ctx).NewSelect().
		Model(&out).
		Where("booking_id = ?", bookingID).
		Order("created_at ASC", "id ASC").
		Scan(ctx)
	return out, err
}

// RefundedAmount sums the refunds already recorded against a payment.
func (d *DB) RefundedAmount(ctx context.Context, paymentID string) (int64, error) {
	var total int64
	err := d.idb(ctx).NewSelect().
		Model((*models.Payment)(nil)).
		ColumnExpr("COALESCE(SUM(amount), 0)").
		Where("refund_of = ?", paymentID).
		Where("type = ?", models.PaymentRefund).
		Scan(ctx, &total)
	return total, err
}

// ---------------- RECEIPTS ----------------

func (d *DB) InsertReceipt(ctx context.Context, r *models.Receipt) error {
	_, err := d.idb(ctx).NewInsert().Model(r).Exec(ctx)
	return err
}

func (d *DB) GetReceipt(ctx context.Context, number string) (*models.Receipt, error) {
	var r models.Receipt
	err := d.idb(ctx).NewSelect().Model(&r).Where("number = ?", number).Limit(1).Scan(ctx)
	if err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

func (d *DB) GetReceiptByPayment(ctx context.Context, paymentID string) (*models.Receipt, error) {
	var r models.Receipt
	err := d.idb(ctx).NewSelect().Model(&r).Where("payment_id = ?", paymentID).Limit(1).Scan(ctx)
	if err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

func (d *DB) ListReceipts(ctx context.Context, bookingID string) ([]models.Receipt, error) {
	var out []models.Receipt
	err := d.idb(ctx).NewSelect().
		Model(&out).
		Where("booking_id = ?", bookingID).
		Order("issued_at ASC", "number ASC").
		Scan(ctx)
	return out, err
}
