package subscription

import (
	"context"
	"fmt"
	"ms-booking/internal/apperr"
	"ms-booking/internal/logger"
	"ms-booking/internal/metrics"
	"ms-booking/internal/models"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrQuotaExceeded = apperr.New("QUOTA_EXCEEDED", http.StatusUnprocessableEntity, "service quota exceeded")
	ErrUnknownTier   = apperr.New("UNKNOWN_TIER", http.StatusBadRequest, "unknown plan tier")
	ErrInvalidWindow = apperr.New("INVALID_VALIDITY_WINDOW", http.StatusBadRequest, "subscription must end after it starts")
	ErrInvalidTitle  = apperr.New("INVALID_SERVICE", http.StatusBadRequest, "service title is required")
)

// QuotaExceededError carries the numbers behind a refused service creation.
type QuotaExceededError struct {
	Tier    string
	Max     int
	Current int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: %s tier allows %d services, vendor has %d", e.Tier, e.Max, e.Current)
}

func (e *QuotaExceededError) Unwrap() error {
	return ErrQuotaExceeded
}

// Decision is the outcome of a quota check. Max and Remaining are zero when
// Unlimited is set.
type Decision struct {
	VendorID    string `json:"vendor_id"`
	Tier        string `json:"tier"`
	PlanVersion string `json:"plan_version"`
	Max         int    `json:"max_services"`
	Current     int    `json:"current_services"`
	Unlimited   bool   `json:"unlimited"`
	Allowed     bool   `json:"allowed"`
	Remaining   int    `json:"remaining"`
}

type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	ListActiveSubscriptions(ctx context.Context, vendorID string) ([]models.Subscription, error)
	ExpireSubscriptions(ctx context.Context, vendorID string) error
	InsertSubscription(ctx context.Context, s *models.Subscription) error
	CountActiveServices(ctx context.Context, vendorID string) (int, error)
	InsertService(ctx context.Context, s *models.ServiceListing) error
}

type Resolver interface {
	Canonicalize(ctx context.Context, raw string) (string, error)
}

type Locker interface {
	WithLock(ctx context.Context, id string, fn func(ctx context.Context) error) error
}

type Enforcer struct {
	store    Store
	resolver Resolver
	locker   Locker
	plans    PlanTable
	metrics  *metrics.Metrics
	logger   *logger.Logger
	now      func() time.Time
}

// NewEnforcer wires the enforcer. locker and m may be nil.
func NewEnforcer(store Store, resolver Resolver, locker Locker, plans PlanTable, m *metrics.Metrics, log *logger.Logger) *Enforcer {
	return &Enforcer{
		store:    store,
		resolver: resolver,
		locker:   locker,
		plans:    plans,
		metrics:  m,
		logger:   log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (e *Enforcer) Plans() PlanTable {
	return e.plans
}

// ActiveTier returns the tier granted by the vendor's active subscription, or the
// free tier when there is none, it has lapsed, or it names a tier the table lacks.
func (e *Enforcer) ActiveTier(ctx context.Context, vendorID string) (Tier, error) {
	free, _ := e.plans.Lookup(FreeTier)

	subs, err := e.store.ListActiveSubscriptions(ctx, vendorID)
	if err != nil {
		return Tier{}, fmt.Errorf("load subscriptions: %w", err)
	}
	now := e.now()
	for _, s := range subs {
		if !s.ActiveAt(now) {
			continue
		}
		tier, ok := e.plans.Lookup(s.Tier)
		if !ok {
			e.logger.Warn("QUOTA", fmt.Sprintf("Vendor %s subscribed to tier %q missing from plan table %s, using free", vendorID, s.Tier, e.plans.Version))
			return free, nil
		}
		return tier, nil
	}
	return free, nil
}

func (e *Enforcer) decide(ctx context.Context, vendorID string) (Decision, error) {
	tier, err := e.ActiveTier(ctx, vendorID)
	if err != nil {
		return Decision{}, err
	}
	count, err := e.store.CountActiveServices(ctx, vendorID)
	if err != nil {
		return Decision{}, fmt.Errorf("count services: %w", err)
	}

	d := Decision{
		VendorID:    vendorID,
		Tier:        strings.ToLower(tier.Name),
		PlanVersion: e.plans.Version,
		Current:     count,
		Unlimited:   tier.Unlimited,
	}
	if tier.Unlimited {
		d.Allowed = true
		return d, nil
	}
	d.Max = tier.MaxServices
	d.Allowed = count < tier.MaxServices
	if d.Allowed {
		d.Remaining = tier.MaxServices - count
	}
	return d, nil
}

// CanCreateService reports whether the vendor may add one more listing. Vendors
// above quota keep their existing listings.
func (e *Enforcer) CanCreateService(ctx context.Context, rawVendorRef string) (Decision, error) {
	vendorID, err := e.resolver.Canonicalize(ctx, rawVendorRef)
	if err != nil {
		return Decision{}, err
	}
	return e.decide(ctx, vendorID)
}

// AssertCanCreateService fails with *QuotaExceededError when the vendor is at or
// above its cap.
func (e *Enforcer) AssertCanCreateService(ctx context.Context, rawVendorRef string) (Decision, error) {
	d, err := e.CanCreateService(ctx, rawVendorRef)
	if err != nil {
		return d, err
	}
	return d, e.check(d)
}

func (e *Enforcer) check(d Decision) error {
	if d.Allowed {
		return nil
	}
	e.metrics.QuotaDenied(d.Tier)
	e.logger.Info("QUOTA", fmt.Sprintf("Vendor %s denied: %s tier %d/%d", d.VendorID, d.Tier, d.Current, d.Max))
	return &QuotaExceededError{Tier: d.Tier, Max: d.Max, Current: d.Current}
}

// CreateService inserts a listing once the quota allows it. The check and insert
// run under the vendor lock so concurrent creations cannot overshoot the cap.
func (e *Enforcer) CreateService(ctx context.Context, rawVendorRef, title string) (*models.ServiceListing, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrInvalidTitle
	}
	vendorID, err := e.resolver.Canonicalize(ctx, rawVendorRef)
	if err != nil {
		return nil, err
	}

	var listing *models.ServiceListing
	create := func(ctx context.Context) error {
		return e.store.RunInTx(ctx, func(ctx context.Context) error {
			d, err := e.decide(ctx, vendorID)
			if err != nil {
				return err
			}
			if err := e.check(d); err != nil {
				return err
			}
			listing = &models.ServiceListing{
				ID:        uuid.NewString(),
				VendorID:  vendorID,
				Title:     title,
				CreatedAt: e.now(),
			}
			return e.store.InsertService(ctx, listing)
		})
	}

	if e.locker != nil {
		err = e.locker.WithLock(ctx, vendorID, create)
	} else {
		err = create(ctx)
	}
	if err != nil {
		return nil, err
	}
	e.logger.Info("QUOTA", fmt.Sprintf("Vendor %s created service %s", vendorID, listing.ID))
	return listing, nil
}

// ActivateSubscription replaces the vendor's active subscription with a new one.
// A zero until means open-ended.
func (e *Enforcer) ActivateSubscription(ctx context.Context, rawVendorRef, tier string, from, until time.Time) (*models.Subscription, error) {
	t, ok := e.plans.Lookup(tier)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTier, tier)
	}
	if from.IsZero() {
		from = e.now()
	}
	if !until.IsZero() && !until.After(from) {
		return nil, ErrInvalidWindow
	}
	vendorID, err := e.resolver.Canonicalize(ctx, rawVendorRef)
	if err != nil {
		return nil, err
	}

	sub := &models.Subscription{
		ID:         uuid.NewString(),
		VendorID:   vendorID,
		Tier:       strings.ToLower(t.Name),
		Status:     models.SubscriptionActive,
		ValidFrom:  from.UTC(),
		ValidUntil: until.UTC(),
		CreatedAt:  e.now(),
	}
	err = e.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := e.store.ExpireSubscriptions(ctx, vendorID); err != nil {
			return err
		}
		return e.store.InsertSubscription(ctx, sub)
	})
	if err != nil {
		return nil, fmt.Errorf("activate subscription: %w", err)
	}
	e.logger.Info("QUOTA", fmt.Sprintf("Vendor %s now on %s tier (plans %s)", vendorID, sub.Tier, e.plans.Version))
	return sub, nil
}
