package storage

import (
	"context"
	"ms-booking/internal/models"
	"strings"
)

// ---------------- VENDORS ----------------

func (d *DB) InsertVendor(ctx context.Context, v *models.Vendor) error {
	_, err := d.idb(ctx).NewInsert().Model(v).Exec(ctx)
	return err
}

func (d *DB) GetVendor(ctx context.Context, id string) (*models.Vendor, error) {
	var v models.Vendor
	err := d.idb(ctx).NewSelect().Model(&v).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return nil, notFound(err)
	}
	return &v, nil
}

// GetVendorByLegacyCode matches legacy codes case-insensitively.
func (d *DB) GetVendorByLegacyCode(ctx context.Context, code string) (*models.Vendor, error) {
	var v models.Vendor
	err := d.idb(ctx).NewSelect().
		Model(&v).
		Where("UPPER(legacy_code) = ?", strings.ToUpper(code)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err)
	}
	return &v, nil
}

func (d *DB) GetVendorByProfileID(ctx context.Context, profileID string) (*models.Vendor, error) {
	var v models.Vendor
	err := d.idb(ctx).NewSelect().Model(&v).Where("profile_id = ?", profileID).Limit(1).Scan(ctx)
	if err != nil {
		return nil, notFound(err)
	}
	return &v, nil
}

// ---------------- SERVICES ----------------

func (d *DB) InsertService(ctx context.Context, s *models.ServiceListing) error {
	_, err := d.idb(ctx).NewInsert().Model(s).Exec(ctx)
	return err
}

// CountActiveServices counts the vendor's listings that are not soft-deleted.
func (d *DB) CountActiveServices(ctx context.Context, vendorID string) (int, error) {
	return d.idb(ctx).NewSelect().
		Model((*models.ServiceListing)(nil)).
		Where("vendor_id = ?", vendorID).
		Where("deleted_at IS NULL").
		Count(ctx)
}

// ---------------- SUBSCRIPTIONS ----------------

func (d *DB) ListActiveSubscriptions(ctx context.Context, vendorID string) ([]models.Subscription, error) {
	var out []models.Subscription
	err := d.idb(ctx).NewSelect().
		Model(&out).
		Where("vendor_id = ?", vendorID).
		Where("status = ?", models.SubscriptionActive).
		Order("valid_from DESC").
		Scan(ctx)
	return out, err
}

func (d *DB) ExpireSubscriptions(ctx context.Context, vendorID string) error {
	_, err := d.idb(ctx).NewUpdate().
		Model((*models.Subscription)(nil)).
		Set("status = ?", models.SubscriptionExpired).
		Where("vendor_id = ?", vendorID).
		Where("status = ?", models.SubscriptionActive).
		Exec(ctx)
	return err
}

func (d *DB) InsertSubscription(ctx context.Context, s *models.Subscription) error {
	_, err := d.idb(ctx).NewInsert().Model(s).Exec(ctx)
	return err
}
