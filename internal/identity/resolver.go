// Package identity resolves the two vendor identifier formats (legacy short codes
// and profile ids) to the canonical vendor id used by every other package.
package identity

import (
	"context"
	"errors"
	"fmt"
	"ms-booking/internal/apperr"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/storage"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUnknownVendorReference = apperr.New("UNKNOWN_VENDOR_REFERENCE", http.StatusNotFound, "unknown vendor reference")
	ErrMissingVendor          = apperr.New("MISSING_VENDOR", http.StatusBadRequest, "vendor reference is required")
)

// UnknownReferenceError names the reference that failed to resolve.
type UnknownReferenceError struct {
	Ref string
}

func (e *UnknownReferenceError) Error() string {
	return fmt.Sprintf("unknown vendor reference %q", e.Ref)
}

func (e *UnknownReferenceError) Unwrap() error {
	return ErrUnknownVendorReference
}

type VendorStore interface {
	GetVendor(ctx context.Context, id string) (*models.Vendor, error)
	GetVendorByLegacyCode(ctx context.Context, code string) (*models.Vendor, error)
	GetVendorByProfileID(ctx context.Context, profileID string) (*models.Vendor, error)
	InsertVendor(ctx context.Context, v *models.Vendor) error
}

// Cache remembers raw reference to canonical id mappings.
type Cache interface {
	Get(ctx context.Context, raw string) (string, bool, error)
	Set(ctx context.Context, raw, canonicalID string) error
}

// VendorRefs is the display form of a vendor: its canonical id and whichever
// linked records exist.
type VendorRefs struct {
	ID          string `json:"id"`
	LegacyCode  string `json:"legacy_code,omitempty"`
	ProfileID   string `json:"profile_id,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

type Resolver struct {
	store  VendorStore
	cache  Cache
	logger *logger.Logger
}

// NewResolver builds a resolver; cache may be nil.
func NewResolver(store VendorStore, cache Cache, log *logger.Logger) *Resolver {
	return &Resolver{store: store, cache: cache, logger: log}
}

// Canonicalize maps a raw vendor reference to the canonical vendor id. Lookups run
// in a fixed order (canonical id, legacy code, profile id) so a reference that
// matches more than one format always resolves the same way.
func (r *Resolver) Canonicalize(ctx context.Context, raw string) (string, error) {
	ref := strings.TrimSpace(raw)
	if ref == "" {
		return "", ErrMissingVendor
	}

	if r.cache != nil {
		id, ok, err := r.cache.Get(ctx, ref)
		if err != nil {
			r.logger.Warn("IDENTITY", fmt.Sprintf("Cache read failed for %s: %v", ref, err))
		} else if ok {
			return id, nil
		}
	}

	lookups := []func(context.Context, string) (*models.Vendor, error){
		r.store.GetVendor,
		r.store.GetVendorByLegacyCode,
		r.store.GetVendorByProfileID,
	}
	for _, lookup := range lookups {
		v, err := lookup(ctx, ref)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("resolve vendor %s: %w", ref, err)
		}
		if r.cache != nil {
			if err := r.cache.Set(ctx, ref, v.ID); err != nil {
				r.logger.Warn("IDENTITY", fmt.Sprintf("Cache write failed for %s: %v", ref, err))
			}
		}
		return v.ID, nil
	}

	r.logger.Debug("IDENTITY", fmt.Sprintf("Vendor reference %s did not resolve", ref))
	return "", &UnknownReferenceError{Ref: ref}
}

// Matches reports whether raw resolves to canonicalID. Unknown references do not match.
func (r *Resolver) Matches(ctx context.Context, raw, canonicalID string) (bool, error) {
	id, err := r.Canonicalize(ctx, raw)
	if errors.Is(err, ErrUnknownVendorReference) || errors.Is(err, ErrMissingVendor) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return id == canonicalID, nil
}

// DisplayRefs is the reverse mapping used when showing a vendor.
func (r *Resolver) DisplayRefs(ctx context.Context, canonicalID string) (VendorRefs, error) {
	v, err := r.store.GetVendor(ctx, canonicalID)
	if errors.Is(err, storage.ErrNotFound) {
		return VendorRefs{}, &UnknownReferenceError{Ref: canonicalID}
	}
	if err != nil {
		return VendorRefs{}, err
	}
	refs := VendorRefs{ID: v.ID, DisplayName: v.DisplayName}
	if v.LegacyCode != nil {
		refs.LegacyCode = *v.LegacyCode
	}
	if v.ProfileID != nil {
		refs.ProfileID = *v.ProfileID
	}
	return refs, nil
}

// Register creates a vendor with at least one linked record.
func (r *Resolver) Register(ctx context.Context, legacyCode, profileID, name string) (*models.Vendor, error) {
	legacyCode, profileID = strings.TrimSpace(legacyCode), strings.TrimSpace(profileID)
	if legacyCode == "" && profileID == "" {
		return nil, ErrMissingVendor
	}
	v := &models.Vendor{
		ID:          uuid.NewString(),
		DisplayName: name,
		CreatedAt:   time.Now().UTC(),
	}
	if legacyCode != "" {
		code := strings.ToUpper(legacyCode)
		v.LegacyCode = &code
	}
	if profileID != "" {
		v.ProfileID = &profileID
	}
	if err := r.store.InsertVendor(ctx, v); err != nil {
		return nil, fmt.Errorf("insert vendor: %w", err)
	}
	r.logger.Info("IDENTITY", fmt.Sprintf("Registered vendor %s (legacy=%q profile=%q)", v.ID, legacyCode, profileID))
	return v, nil
}
