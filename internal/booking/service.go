package booking

import (
	"context"
	"errors"
	"fmt"
	"ms-booking/internal/apperr"
	"ms-booking/internal/events"
	"ms-booking/internal/identity"
	"ms-booking/internal/lock"
	"ms-booking/internal/logger"
	"ms-booking/internal/metrics"
	"ms-booking/internal/models"
	"ms-booking/internal/receipt"
	"ms-booking/internal/storage"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrBookingNotFound  = apperr.New("BOOKING_NOT_FOUND", http.StatusNotFound, "booking not found")
	ErrConcurrentUpdate = apperr.New("CONCURRENT_UPDATE", http.StatusConflict, "booking was modified concurrently, retry")
	ErrInvalidBooking   = apperr.New("INVALID_BOOKING", http.StatusBadRequest, "invalid booking request")
	ErrBookingBusy      = lock.ErrBusy
)

const referenceAttempts = 5

type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	InsertBooking(ctx context.Context, b *models.Booking) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	UpdateBooking(ctx context.Context, b *models.Booking) error
	CountBookingReferences(ctx context.Context, prefix string) (int, error)
	InsertHistory(ctx context.Context, h *models.StatusHistory) error
	ListHistory(ctx context.Context, bookingID string) ([]models.StatusHistory, error)
}

type Resolver interface {
	Canonicalize(ctx context.Context, raw string) (string, error)
	Matches(ctx context.Context, raw, canonicalID string) (bool, error)
}

type Locker interface {
	WithLock(ctx context.Context, id string, fn func(ctx context.Context) error) error
}

type CreateInput struct {
	ClientID   string
	VendorRef  string
	ServiceID  string
	EventDate  time.Time
	Location   string
	GuestCount *int
	Currency   string
}

type Service struct {
	store           Store
	resolver        Resolver
	locker          Locker
	emitter         events.Emitter
	metrics         *metrics.Metrics
	logger          *logger.Logger
	defaultCurrency string
	now             func() time.Time
}

func NewService(store Store, resolver Resolver, locker Locker, emitter events.Emitter, m *metrics.Metrics, log *logger.Logger, defaultCurrency string) *Service {
	if emitter == nil {
		emitter = events.Discard{}
	}
	if defaultCurrency == "" {
		defaultCurrency = "PHP"
	}
	return &Service{
		store:           store,
		resolver:        resolver,
		locker:          locker,
		emitter:         emitter,
		metrics:         m,
		logger:          log,
		defaultCurrency: strings.ToUpper(defaultCurrency),
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source. Used by tests and the sweeper.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) Now() time.Time {
	return s.now()
}

// Create opens a booking in the inquiry state with a fresh WB-<year>-<seq>
// reference. A reference taken by a concurrent creation is retried with the
// next sequence number.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Booking, error) {
	in.ClientID = strings.TrimSpace(in.ClientID)
	in.ServiceID = strings.TrimSpace(in.ServiceID)
	if in.ClientID == "" || in.ServiceID == "" {
		return nil, fmt.Errorf("%w: client_id and service_id are required", ErrInvalidBooking)
	}
	if in.GuestCount != nil && *in.GuestCount < 0 {
		return nil, fmt.Errorf("%w: guest_count must not be negative", ErrInvalidBooking)
	}
	vendorID, err := s.resolver.Canonicalize(ctx, in.VendorRef)
	if err != nil {
		return nil, err
	}

	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = s.defaultCurrency
	}

	now := s.now()
	var b *models.Booking
	for attempt := 0; attempt < referenceAttempts; attempt++ {
		b = &models.Booking{
			ID:              uuid.NewString(),
			ClientID:        in.ClientID,
			VendorID:        vendorID,
			ServiceID:       in.ServiceID,
			EventDate:       in.EventDate.UTC(),
			Location:        in.Location,
			GuestCount:      in.GuestCount,
			Status:          models.StatusInquiry,
			Currency:        currency,
			CreatedAt:       now,
			UpdatedAt:       now,
			StatusChangedAt: now,
		}
		err = s.store.RunInTx(ctx, func(ctx context.Context) error {
			prefix := receipt.BookingReferencePrefix(now.Year())
			count, err := s.store.CountBookingReferences(ctx, prefix)
			if err != nil {
				return err
			}
			b.Reference = receipt.BookingReference(now.Year(), count+1+attempt)
			if err := s.store.InsertBooking(ctx, b); err != nil {
				return err
			}
			return s.store.InsertHistory(ctx, &models.StatusHistory{
				BookingID: b.ID,
				ToStatus:  models.StatusInquiry,
				Actor:     models.ActorClient,
				ActorID:   in.ClientID,
				Message:   "Inquiry created",
				CreatedAt: now,
			})
		})
		if err == nil || !storage.IsUniqueViolation(err) {
			break
		}
		s.logger.Warn("BOOKING", fmt.Sprintf("Reference %s taken, retrying", b.Reference))
	}
	if err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}

	s.logger.LogBooking("CREATE", b.ID, fmt.Sprintf("%s inquiry from %s to vendor %s", b.Reference, b.ClientID, b.VendorID))
	s.emitter.Emit(events.New(events.BookingCreated, b.ID, b))
	return Decorate(b), nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Booking, error) {
	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return Decorate(b), nil
}

func (s *Service) load(ctx context.Context, id string) (*models.Booking, error) {
	b, err := s.store.GetBooking(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load booking %s: %w", id, err)
	}
	return b, nil
}

// Timeline returns the append-only status history, oldest first.
func (s *Service) Timeline(ctx context.Context, id string) ([]models.StatusHistory, error) {
	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListHistory(ctx, id)
}

// Authorize checks that p is a party to b. System and admin callers act on any booking.
func (s *Service) Authorize(ctx context.Context, b *models.Booking, p models.Principal) error {
	switch p.Role {
	case models.ActorSystem, models.ActorAdmin:
		return nil
	case models.ActorClient:
		if p.ID != "" && p.ID == b.ClientID {
			return nil
		}
	case models.ActorVendor:
		ok, err := s.resolver.Matches(ctx, p.ID, b.VendorID)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	s.logger.LogSecurity("BOOKING_ACCESS", fmt.Sprintf("%s %q is not a party to booking %s", p.Role, p.ID, b.ID))
	return ErrUnauthorizedActor
}

// quoteOwned statuses change only through the quote operations of the ledger.
var quoteOwned = map[models.BookingStatus]bool{
	models.StatusQuoteSent:     true,
	models.StatusQuoteAccepted: true,
	models.StatusQuoteRejected: true,
}

// Transition moves a booking to target on behalf of p. Requesting the current
// status succeeds without writing anything.
func (s *Service) Transition(ctx context.Context, bookingID string, target models.BookingStatus, p models.Principal, message, reason string) (*models.Booking, error) {
	if !Known(target) {
		return nil, &TransitionError{To: target, Actor: p.Role, err: ErrInvalidTransition}
	}

	var (
		b     *models.Booking
		entry *models.StatusHistory
	)
	err := s.withBooking(ctx, bookingID, func(ctx context.Context) error {
		var err error
		b, err = s.load(ctx, bookingID)
		if err != nil {
			return err
		}
		if err := s.Authorize(ctx, b, p); err != nil {
			return err
		}
		if b.Status != target && quoteOwned[target] {
			return &TransitionError{From: b.Status, To: target, Actor: p.Role, err: ErrInvalidTransition}
		}
		entry, err = s.ApplyTransition(ctx, b, target, p, message, reason)
		if err != nil || entry == nil {
			return err
		}
		return s.Save(ctx, b)
	})
	if err != nil {
		return nil, err
	}
	if entry != nil {
		s.Announce(entry)
	}
	return Decorate(b), nil
}

// withBooking runs fn under the booking lock inside one transaction.
func (s *Service) withBooking(ctx context.Context, bookingID string, fn func(ctx context.Context) error) error {
	run := func(ctx context.Context) error {
		return s.store.RunInTx(ctx, fn)
	}
	if s.locker == nil {
		return run(ctx)
	}
	return s.locker.WithLock(ctx, bookingID, run)
}

// WithBooking exposes the lock and transaction scope to the ledger.
func (s *Service) WithBooking(ctx context.Context, bookingID string, fn func(ctx context.Context) error) error {
	return s.withBooking(ctx, bookingID, fn)
}

// Load reads a booking inside the caller's transaction.
func (s *Service) Load(ctx context.Context, bookingID string) (*models.Booking, error) {
	return s.load(ctx, bookingID)
}

// Save writes b with the optimistic version check.
func (s *Service) Save(ctx context.Context, b *models.Booking) error {
	b.UpdatedAt = s.now()
	err := s.store.UpdateBooking(ctx, b)
	if errors.Is(err, storage.ErrVersionConflict) {
		return ErrConcurrentUpdate
	}
	return err
}

// ApplyTransition validates and applies one transition to b in memory and appends
// the history entry. The caller saves b in the same transaction. It returns nil
// when b is already in target.
func (s *Service) ApplyTransition(ctx context.Context, b *models.Booking, target models.BookingStatus, p models.Principal, message, reason string) (*models.StatusHistory, error) {
	if b.Status == target {
		return nil, nil
	}
	if err := Check(b.Status, target, p.Role); err != nil {
		return nil, err
	}

	now := s.now()
	from := b.Status
	b.Status = target
	b.StatusChangedAt = now
	b.UpdatedAt = now
	if reason != "" {
		b.StatusReason = reason
	}
	switch target {
	case models.StatusQuoteSent:
		b.QuoteSentAt = now
	case models.StatusQuoteAccepted:
		b.QuoteAcceptedAt = now
	case models.StatusDownpaymentConfirmed:
		b.DownpaymentConfirmedAt = now
	case models.StatusCompleted:
		b.CompletedAt = now
	case models.StatusCancelled:
		b.CancelledAt = now
	}

	entry := &models.StatusHistory{
		BookingID:  b.ID,
		FromStatus: from,
		ToStatus:   target,
		Actor:      p.Role,
		ActorID:    p.ID,
		Message:    message,
		Reason:     reason,
		CreatedAt:  now,
	}
	if err := s.store.InsertHistory(ctx, entry); err != nil {
		return nil, fmt.Errorf("append history: %w", err)
	}
	return entry, nil
}

type statusChange struct {
	From    models.BookingStatus `json:"from"`
	To      models.BookingStatus `json:"to"`
	Actor   models.Actor         `json:"actor"`
	ActorID string               `json:"actor_id,omitempty"`
	Reason  string               `json:"reason,omitempty"`
}

// Announce logs, counts and emits a committed transition.
func (s *Service) Announce(entry *models.StatusHistory) {
	s.metrics.Transition(string(entry.FromStatus), string(entry.ToStatus))
	s.logger.LogBooking("TRANSITION", entry.BookingID, fmt.Sprintf("%s -> %s by %s", entry.FromStatus, entry.ToStatus, entry.Actor))
	s.emitter.Emit(events.New(events.BookingStatusChanged, entry.BookingID, statusChange{
		From:    entry.FromStatus,
		To:      entry.ToStatus,
		Actor:   entry.Actor,
		ActorID: entry.ActorID,
		Reason:  entry.Reason,
	}))
}

// Resolver exposes the vendor resolver to callers sharing this service.
func (s *Service) Resolver() Resolver {
	return s.resolver
}

var _ Resolver = (*identity.Resolver)(nil)
