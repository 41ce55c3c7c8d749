package booking_test

import (
	"context"
	"ms-booking/internal/booking"
	"ms-booking/internal/events"
	"ms-booking/internal/identity"
	"ms-booking/internal/lock"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/storage"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	db       *storage.DB
	svc      *booking.Service
	recorder *events.Recorder
	vendor   *models.Vendor
}

var (
	client = models.Principal{Role: models.ActorClient, ID: "client-1"}
	vendor = models.Principal{Role: models.ActorVendor, ID: "V-0042"}
	system = models.Principal{Role: models.ActorSystem}
	admin  = models.Principal{Role: models.ActorAdmin, ID: "admin-1"}
)

func setup(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()

	db, err := storage.OpenSQLite(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})

	resolver := identity.NewResolver(db, nil, logger.Discard())
	v, err := resolver.Register(ctx, "V-0042", "prof-42", "Lumen Studio")
	require.NoError(t, err)

	rec := &events.Recorder{}
	bookingLock := lock.NewBookingLock(rdb, time.Minute, logger.Discard())
	bookingLock.RetryDelay = 2 * time.Millisecond
	bookingLock.Retries = 1000
	svc := booking.NewService(db, resolver, bookingLock, rec, nil, logger.Discard(), "php")
	return fixture{db: db, svc: svc, recorder: rec, vendor: v}
}

func (f fixture) create(t *testing.T) *models.Booking {
	t.Helper()
	b, err := f.svc.Create(context.Background(), booking.CreateInput{
		ClientID:  "client-1",
		VendorRef: "prof-42",
		ServiceID: "svc-1",
		EventDate: time.Now().Add(90 * 24 * time.Hour),
		Location:  "Tagaytay",
	})
	require.NoError(t, err)
	return b
}

func TestCreateBooking(t *testing.T) {
	f := setup(t)
	b := f.create(t)

	assert.Equal(t, models.StatusInquiry, b.Status)
	assert.Equal(t, f.vendor.ID, b.VendorID, "vendor stored canonically")
	assert.Equal(t, "PHP", b.Currency)
	assert.Regexp(t, `^WB-\d{4}-001$`, b.Reference)
	assert.Equal(t, 10, b.ProgressPercentage)
	assert.Equal(t, models.ActorVendor, b.NextActionBy)
	assert.Nil(t, b.TotalAmount)

	second := f.create(t)
	assert.Regexp(t, `^WB-\d{4}-002$`, second.Reference)

	timeline, err := f.svc.Timeline(context.Background(), b.ID)
	require.NoError(t, err)
	require.Len(t, timeline, 1)
	assert.Equal(t, models.StatusInquiry, timeline[0].ToStatus)
	assert.Contains(t, f.recorder.Types(), events.BookingCreated)
}

func TestCreateValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, booking.CreateInput{ClientID: "c", ServiceID: "s", VendorRef: "V-9999"})
	assert.ErrorIs(t, err, identity.ErrUnknownVendorReference)

	_, err = f.svc.Create(ctx, booking.CreateInput{ClientID: "c", ServiceID: "s"})
	assert.ErrorIs(t, err, identity.ErrMissingVendor)

	_, err = f.svc.Create(ctx, booking.CreateInput{VendorRef: "V-0042", ServiceID: "s"})
	assert.ErrorIs(t, err, booking.ErrInvalidBooking)

	negative := -1
	_, err = f.svc.Create(ctx, booking.CreateInput{ClientID: "c", VendorRef: "V-0042", ServiceID: "s", GuestCount: &negative})
	assert.ErrorIs(t, err, booking.ErrInvalidBooking)
}

func TestTransitionAppliesAndRecordsHistory(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	b := f.create(t)

	got, err := f.svc.Transition(ctx, b.ID, models.StatusVendorReviewed, vendor, "Looks good", "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusVendorReviewed, got.Status)
	assert.Equal(t, 20, got.ProgressPercentage)
	assert.Equal(t, int64(1), got.Version)

	timeline, err := f.svc.Timeline(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, timeline, 2)
	assert.Equal(t, models.StatusInquiry, timeline[1].FromStatus)
	assert.Equal(t, models.StatusVendorReviewed, timeline[1].ToStatus)
	assert.Equal(t, models.ActorVendor, timeline[1].Actor)
	assert.Equal(t, "Looks good", timeline[1].Message)
	assert.Contains(t, f.recorder.Types(), events.BookingStatusChanged)
}

func TestRepeatedTransitionIsNoop(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	b := f.create(t)

	_, err := f.svc.Transition(ctx, b.ID, models.StatusVendorReviewed, vendor, "", "")
	require.NoError(t, err)
	again, err := f.svc.Transition(ctx, b.ID, models.StatusVendorReviewed, vendor, "", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), again.Version, "no write on repeat")

	timeline, err := f.svc.Timeline(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, timeline, 2)
}

func TestTransitionRejections(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	b := f.create(t)

	_, err := f.svc.Transition(ctx, b.ID, "confirmed", vendor, "", "")
	assert.ErrorIs(t, err, booking.ErrInvalidTransition)
	assert.EqualError(t, err, "Invalid status: confirmed")

	_, err = f.svc.Transition(ctx, b.ID, models.StatusVendorReviewed, client, "", "")
	assert.ErrorIs(t, err, booking.ErrUnauthorizedActor)

	_, err = f.svc.Transition(ctx, b.ID, models.StatusCompleted, vendor, "", "")
	assert.ErrorIs(t, err, booking.ErrInvalidTransition)

	stranger := models.Principal{Role: models.ActorClient, ID: "client-2"}
	_, err = f.svc.Transition(ctx, b.ID, models.StatusCancelled, stranger, "", "")
	assert.ErrorIs(t, err, booking.ErrUnauthorizedActor)

	otherVendor := models.Principal{Role: models.ActorVendor, ID: "V-0099"}
	_, err = f.svc.Transition(ctx, b.ID, models.StatusVendorReviewed, otherVendor, "", "")
	assert.ErrorIs(t, err, booking.ErrUnauthorizedActor)

	_, err = f.svc.Transition(ctx, "missing", models.StatusCancelled, admin, "", "")
	assert.ErrorIs(t, err, booking.ErrBookingNotFound)

	// quote statuses belong to the quote operations
	_, err = f.svc.Transition(ctx, b.ID, models.StatusVendorReviewed, vendor, "", "")
	require.NoError(t, err)
	_, err = f.svc.Transition(ctx, b.ID, models.StatusQuoteSent, vendor, "", "")
	assert.ErrorIs(t, err, booking.ErrInvalidTransition)

	unchanged, err := f.svc.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusVendorReviewed, unchanged.Status)
}

func TestCancelIsTerminal(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	b := f.create(t)

	got, err := f.svc.Transition(ctx, b.ID, models.StatusCancelled, client, "", "Found another vendor")
	require.NoError(t, err)
	assert.Equal(t, "Found another vendor", got.StatusReason)
	assert.False(t, got.CancelledAt.IsZero())
	assert.Equal(t, 0, got.ProgressPercentage)

	for _, p := range []models.Principal{client, vendor, admin} {
		_, err = f.svc.Transition(ctx, b.ID, models.StatusVendorReviewed, p, "", "")
		assert.ErrorIs(t, err, booking.ErrInvalidTransition)
	}
}

func TestConcurrentTransitionsSerialize(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	b := f.create(t)

	var wg sync.WaitGroup
	errs := make([]error, 6)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Transition(ctx, b.ID, models.StatusVendorReviewed, vendor, "", "")
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}

	timeline, err := f.svc.Timeline(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, timeline, 2, "exactly one transition recorded")
}

func TestSaveDetectsStaleBooking(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	b := f.create(t)

	stale, err := f.svc.Get(ctx, b.ID)
	require.NoError(t, err)
	_, err = f.svc.Transition(ctx, b.ID, models.StatusVendorReviewed, vendor, "", "")
	require.NoError(t, err)

	stale.Location = "Manila"
	assert.ErrorIs(t, f.svc.Save(ctx, stale), booking.ErrConcurrentUpdate)
}

func TestAuthorize(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	b := f.create(t)

	assert.NoError(t, f.svc.Authorize(ctx, b, client))
	assert.NoError(t, f.svc.Authorize(ctx, b, vendor))
	assert.NoError(t, f.svc.Authorize(ctx, b, models.Principal{Role: models.ActorVendor, ID: f.vendor.ID}))
	assert.NoError(t, f.svc.Authorize(ctx, b, system))
	assert.ErrorIs(t, f.svc.Authorize(ctx, b, models.Principal{Role: models.ActorClient}), booking.ErrUnauthorizedActor)
}
