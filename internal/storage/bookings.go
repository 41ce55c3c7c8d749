package storage

import (
	"context"
	"fmt"
	"ms-booking/internal/models"
	"time"

	"github.com/uptrace/bun"
)

// ---------------- BOOKINGS ----------------

func (d *DB) InsertBooking(ctx context.Context, b *models.Booking) error {
	_, err := d.idb(ctx).NewInsert().Model(b).Exec(ctx)
	return err
}

func (d *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	var b models.Booking
	err := d.idb(ctx).NewSelect().
		Model(&b).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

func (d *DB) GetBookingByReference(ctx context.Context, ref string) (*models.Booking, error) {
	var b models.Booking
	err := d.idb(ctx).NewSelect().
		Model(&b).
		Where("reference = ?", ref).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

// UpdateBooking writes b only if its stored version still equals b.Version, then
// bumps the version. A lost race returns ErrVersionConflict.
func (d *DB) UpdateBooking(ctx context.Context, b *models.Booking) error {
	prev := b.Version
	b.Version = prev + 1
	res, err := d.idb(ctx).NewUpdate().
		Model(b).
		WherePK().
		Where("version = ?", prev).
		Exec(ctx)
	if err != nil {
		b.Version = prev
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		b.Version = prev
		return err
	}
	if n == 0 {
		b.Version = prev
		return ErrVersionConflict
	}
	return nil
}

// CountBookingReferences counts references issued with the given prefix, e.g. "WB-2026-".
func (d *DB) CountBookingReferences(ctx context.Context, prefix string) (int, error) {
	return d.idb(ctx).NewSelect().
		Model((*models.Booking)(nil)).
		Where("reference LIKE ?", prefix+"%").
		Count(ctx)
}

// ListSettledBookings returns bookings in the given statuses with nothing left to
// pay and an event date before the cutoff, earliest event first.
func (d *DB) ListSettledBookings(ctx context.Context, statuses []models.BookingStatus, before time.Time, offset, limit int) ([]models.Booking, error) {
	var out []models.Booking
	err := d.idb(ctx).NewSelect().
		Model(&out).
		Where("status IN (?)", bun.In(statuses)).
		Where("total_amount IS NOT NULL").
		Where("remaining_balance = 0").
		Where("event_date IS NOT NULL").
		Where("event_date < ?", before).
		Order("event_date ASC", "id ASC").
		Offset(offset).
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list settled bookings: %w", err)
	}
	return out, nil
}

// ---------------- HISTORY ----------------

func (d *DB) InsertHistory(ctx context.Context, h *models.StatusHistory) error {
	_, err := d.idb(ctx).NewInsert().Model(h).Exec(ctx)
	return err
}

func (d *DB) ListHistory(ctx context.Context, bookingID string) ([]models.StatusHistory, error) {
	var out []models.StatusHistory
	err := d.idb(ctx).NewSelect().
		Model(&out).
		Where("booking_id = ?", bookingID).
		Order("id ASC").
		Scan(ctx)
	return out, err
}
