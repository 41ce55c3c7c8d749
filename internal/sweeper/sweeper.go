// Package sweeper completes fully paid bookings once their event date has passed.
package sweeper

import (
	"context"
	"fmt"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"time"

	"github.com/go-co-op/gocron/v2"
)

const batchSize = 100

var system = models.Principal{Role: models.ActorSystem}

// path is the payment chain a settled booking walks to completion. A full
// payment recorded after the event date leaves a booking early in the chain.
var path = []struct {
	status  models.BookingStatus
	message string
}{
	{models.StatusQuoteAccepted, ""},
	{models.StatusDownpaymentPending, "Payment received"},
	{models.StatusDownpaymentConfirmed, "Payment confirmed"},
	{models.StatusFinalPaymentDue, "Balance settled"},
	{models.StatusCompleted, "Event date passed"},
}

func settledStatuses() []models.BookingStatus {
	out := make([]models.BookingStatus, 0, len(path)-1)
	for _, p := range path[:len(path)-1] {
		out = append(out, p.status)
	}
	return out
}

type Store interface {
	ListSettledBookings(ctx context.Context, statuses []models.BookingStatus, before time.Time, offset, limit int) ([]models.Booking, error)
}

type Bookings interface {
	Transition(ctx context.Context, bookingID string, target models.BookingStatus, p models.Principal, message, reason string) (*models.Booking, error)
	Now() time.Time
}

type Sweeper struct {
	store     Store
	bookings  Bookings
	interval  time.Duration
	logger    *logger.Logger
	scheduler gocron.Scheduler
}

func New(store Store, bookings Bookings, interval time.Duration, log *logger.Logger) *Sweeper {
	return &Sweeper{store: store, bookings: bookings, interval: interval, logger: log}
}

// Start schedules Sweep every interval. The job never overlaps itself.
func (s *Sweeper) Start(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error("SWEEPER", fmt.Sprintf("Sweep failed: %v", err))
			}
		}),
		gocron.WithName("complete-settled-bookings"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	sched.Start()
	s.scheduler = sched
	s.logger.Info("SWEEPER", fmt.Sprintf("Completion sweep scheduled every %s", s.interval))
	return nil
}

func (s *Sweeper) Stop() error {
	if s.scheduler == nil {
		return nil
	}
	return s.scheduler.Shutdown()
}

// Sweep completes every settled booking whose event date is in the past and
// returns how many it completed. A failure on one booking does not stop the rest.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := s.bookings.Now()
	statuses := settledStatuses()
	completed, failed := 0, 0
	for {
		// Completed bookings leave the result set; failed ones keep their place.
		batch, err := s.store.ListSettledBookings(ctx, statuses, now, failed, batchSize)
		if err != nil {
			return completed, err
		}
		for i := range batch {
			if err := s.complete(ctx, &batch[i]); err != nil {
				s.logger.Warn("SWEEPER", fmt.Sprintf("Could not complete %s: %v", batch[i].ID, err))
				failed++
				continue
			}
			completed++
		}
		if len(batch) < batchSize || ctx.Err() != nil {
			break
		}
	}
	if completed > 0 {
		s.logger.Info("SWEEPER", fmt.Sprintf("Completed %d bookings", completed))
	}
	return completed, nil
}

func (s *Sweeper) complete(ctx context.Context, b *models.Booking) error {
	started := false
	for _, step := range path {
		if !started {
			started = step.status == b.Status
			continue
		}
		if _, err := s.bookings.Transition(ctx, b.ID, step.status, system, step.message, ""); err != nil {
			return err
		}
	}
	if !started {
		return fmt.Errorf("booking %s is %s", b.ID, b.Status)
	}
	return nil
}
