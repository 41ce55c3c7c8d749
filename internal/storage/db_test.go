package storage_test

import (
	"context"
	"errors"
	"fmt"
	"ms-booking/internal/models"
	"ms-booking/internal/storage"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.OpenSQLite(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newBooking(ref string) *models.Booking {
	now := time.Now().UTC()
	return &models.Booking{
		ID:              uuid.NewString(),
		Reference:       ref,
		ClientID:        "client-1",
		VendorID:        "vendor-1",
		ServiceID:       "svc-1",
		Status:          models.StatusInquiry,
		Currency:        "PHP",
		CreatedAt:       now,
		UpdatedAt:       now,
		StatusChangedAt: now,
	}
}

func TestBookingInsertGetAndUpdate(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	b := newBooking("WB-2026-001")
	require.NoError(t, db.InsertBooking(ctx, b))

	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "WB-2026-001", got.Reference)
	assert.Nil(t, got.TotalAmount)
	assert.Equal(t, int64(0), got.Version)

	total := int64(7500000)
	got.TotalAmount = &total
	got.Status = models.StatusQuoteSent
	require.NoError(t, db.UpdateBooking(ctx, got))
	assert.Equal(t, int64(1), got.Version)

	again, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusQuoteSent, again.Status)
	require.NotNil(t, again.TotalAmount)
	assert.Equal(t, total, *again.TotalAmount)

	_, err = db.GetBooking(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpdateBookingDetectsStaleVersion(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	b := newBooking("WB-2026-001")
	require.NoError(t, db.InsertBooking(ctx, b))

	first, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	second, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)

	first.Status = models.StatusVendorReviewed
	require.NoError(t, db.UpdateBooking(ctx, first))

	second.Status = models.StatusCancelled
	err = db.UpdateBooking(ctx, second)
	assert.ErrorIs(t, err, storage.ErrVersionConflict)
	assert.Equal(t, int64(0), second.Version)

	stored, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusVendorReviewed, stored.Status)
}

func TestDuplicateReferenceIsUniqueViolation(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.InsertBooking(ctx, newBooking("WB-2026-001")))
	err := db.InsertBooking(ctx, newBooking("WB-2026-001"))
	require.Error(t, err)
	assert.True(t, storage.IsUniqueViolation(err))
	assert.False(t, storage.IsUniqueViolation(errors.New("boom")))

	n, err := db.CountBookingReferences(ctx, "WB-2026-")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRunInTxRollsBack(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	b := newBooking("WB-2026-002")
	boom := errors.New("boom")
	err := db.RunInTx(ctx, func(ctx context.Context) error {
		if err := db.InsertBooking(ctx, b); err != nil {
			return err
		}
		return db.RunInTx(ctx, func(ctx context.Context) error {
			return boom
		})
	})
	assert.ErrorIs(t, err, boom)

	_, err = db.GetBooking(ctx, b.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestQuotesWithItems(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	q1 := &models.Quote{
		ID: uuid.NewString(), BookingID: "bk-1", Version: 1, VendorID: "vendor-1",
		Status: models.QuoteSuperseded, Currency: "PHP", Total: 100, CreatedAt: now,
		Items: []models.QuoteLineItem{{Position: 0, Name: "Photos", UnitPrice: 100}},
	}
	q2 := &models.Quote{
		ID: uuid.NewString(), BookingID: "bk-1", Version: 2, VendorID: "vendor-1",
		Status: models.QuoteActive, Currency: "PHP", Total: 300, CreatedAt: now,
		Items: []models.QuoteLineItem{
			{Position: 1, Name: "Video", UnitPrice: 200},
			{Position: 0, Name: "Photos", UnitPrice: 100},
		},
	}
	require.NoError(t, db.InsertQuote(ctx, q1))
	require.NoError(t, db.InsertQuote(ctx, q2))

	active, err := db.GetActiveQuote(ctx, "bk-1")
	require.NoError(t, err)
	assert.Equal(t, 2, active.Version)
	require.Len(t, active.Items, 2)
	assert.Equal(t, "Photos", active.Items[0].Name)
	assert.Equal(t, "Video", active.Items[1].Name)

	latest, err := db.MaxQuoteVersion(ctx, "bk-1")
	require.NoError(t, err)
	assert.Equal(t, 2, latest)

	latest, err = db.MaxQuoteVersion(ctx, "bk-none")
	require.NoError(t, err)
	assert.Equal(t, 0, latest)

	all, err := db.ListQuotes(ctx, "bk-1")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 1, all[0].Version)

	dup := &models.Quote{ID: uuid.NewString(), BookingID: "bk-1", Version: 3, VendorID: "vendor-1",
		Status: models.QuoteActive, Currency: "PHP", CreatedAt: now}
	err = db.InsertQuote(ctx, dup)
	assert.True(t, storage.IsUniqueViolation(err), "only one active quote per booking")

	_, err = db.GetActiveQuote(ctx, "bk-none")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPaymentsAndRefundSum(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	pay := &models.Payment{ID: "p1", BookingID: "bk-1", Amount: 1000, Currency: "PHP",
		Method: "card", Type: models.PaymentDeposit, ExternalRef: "pi_1", CreatedAt: now}
	require.NoError(t, db.InsertPayment(ctx, pay))

	for i, ref := range []string{"re_1", "re_2"} {
		require.NoError(t, db.InsertPayment(ctx, &models.Payment{
			ID: ref, BookingID: "bk-1", Amount: int64(100 * (i + 1)), Currency: "PHP",
			Method: "card", Type: models.PaymentRefund, ExternalRef: ref, RefundOf: "p1", CreatedAt: now,
		}))
	}

	refunded, err := db.RefundedAmount(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(300), refunded)

	byRef, err := db.GetPaymentByExternalRef(ctx, "pi_1")
	require.NoError(t, err)
	assert.Equal(t, "p1", byRef.ID)

	err = db.InsertPayment(ctx, &models.Payment{ID: "p9", BookingID: "bk-1", Amount: 1, Currency: "PHP",
		Method: "card", Type: models.PaymentBalance, ExternalRef: "pi_1", CreatedAt: now})
	assert.True(t, storage.IsUniqueViolation(err))

	list, err := db.ListPayments(ctx, "bk-1")
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestReceiptOnePerPayment(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	r := &models.Receipt{Number: "RCP-1-001", PaymentID: "p1", BookingID: "bk-1", BookingReference: "WB-2026-001",
		PaymentType: models.PaymentDeposit, Amount: 10, Currency: "PHP", TotalPaid: 10, IssuedAt: now}
	require.NoError(t, db.InsertReceipt(ctx, r))

	dup := *r
	dup.Number = "RCP-1-002"
	assert.True(t, storage.IsUniqueViolation(db.InsertReceipt(ctx, &dup)))

	got, err := db.GetReceiptByPayment(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "RCP-1-001", got.Number)

	list, err := db.ListReceipts(ctx, "bk-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestVendorLookupsAndServiceCount(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	code, profile := "V-0042", "prof-42"
	v := &models.Vendor{ID: uuid.NewString(), LegacyCode: &code, ProfileID: &profile, CreatedAt: now}
	require.NoError(t, db.InsertVendor(ctx, v))

	got, err := db.GetVendorByLegacyCode(ctx, "v-0042")
	require.NoError(t, err)
	assert.Equal(t, v.ID, got.ID)

	got, err = db.GetVendorByProfileID(ctx, "prof-42")
	require.NoError(t, err)
	assert.Equal(t, v.ID, got.ID)

	_, err = db.GetVendorByProfileID(ctx, "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	for i := 0; i < 3; i++ {
		s := &models.ServiceListing{ID: uuid.NewString(), VendorID: v.ID, Title: "svc", CreatedAt: now}
		if i == 2 {
			s.DeletedAt = now
		}
		require.NoError(t, db.InsertService(ctx, s))
	}
	n, err := db.CountActiveServices(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSubscriptionsExpireAndInsert(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, db.InsertSubscription(ctx, &models.Subscription{ID: "s1", VendorID: "v1",
		Tier: "basic", Status: models.SubscriptionActive, ValidFrom: now, CreatedAt: now}))

	dup := &models.Subscription{ID: "s2", VendorID: "v1", Tier: "pro",
		Status: models.SubscriptionActive, ValidFrom: now, CreatedAt: now}
	assert.True(t, storage.IsUniqueViolation(db.InsertSubscription(ctx, dup)))

	require.NoError(t, db.RunInTx(ctx, func(ctx context.Context) error {
		if err := db.ExpireSubscriptions(ctx, "v1"); err != nil {
			return err
		}
		return db.InsertSubscription(ctx, dup)
	}))

	active, err := db.ListActiveSubscriptions(ctx, "v1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "pro", active[0].Tier)
}

func TestSettledBookingsSkipFutureEvents(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	total := int64(500)

	insert := func(ref string, status models.BookingStatus, eventDate time.Time) *models.Booking {
		b := newBooking(ref)
		b.TotalAmount = &total
		b.TotalPaid = total
		b.Status = status
		b.EventDate = eventDate
		require.NoError(t, db.InsertBooking(ctx, b))
		return b
	}
	for i := 0; i < 12; i++ {
		insert(fmt.Sprintf("WB-2026-%03d", 100+i), models.StatusFinalPaymentDue, now.AddDate(1, 0, 0))
	}
	insert("WB-2026-200", models.StatusFinalPaymentDue, time.Time{})
	late := insert("WB-2026-201", models.StatusQuoteAccepted, now.AddDate(0, 0, -1))
	earlier := insert("WB-2026-202", models.StatusFinalPaymentDue, now.AddDate(0, 0, -7))

	statuses := []models.BookingStatus{models.StatusQuoteAccepted, models.StatusFinalPaymentDue}
	list, err := db.ListSettledBookings(ctx, statuses, now, 0, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, earlier.ID, list[0].ID)
	assert.Equal(t, late.ID, list[1].ID)

	list, err = db.ListSettledBookings(ctx, statuses, now, 1, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, late.ID, list[0].ID)
}

func TestHistoryAndSettledBookings(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	settled := newBooking("WB-2026-010")
	total := int64(500)
	settled.TotalAmount = &total
	settled.TotalPaid = 500
	settled.Status = models.StatusFinalPaymentDue
	settled.EventDate = now.AddDate(0, 0, -1)
	require.NoError(t, db.InsertBooking(ctx, settled))

	open := newBooking("WB-2026-011")
	open.TotalAmount = &total
	open.RemainingBalance = 200
	open.Status = models.StatusDownpaymentConfirmed
	open.EventDate = now.AddDate(0, 0, -1)
	require.NoError(t, db.InsertBooking(ctx, open))

	statuses := []models.BookingStatus{models.StatusDownpaymentConfirmed, models.StatusFinalPaymentDue}
	list, err := db.ListSettledBookings(ctx, statuses, now, 0, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, settled.ID, list[0].ID)

	for _, to := range []models.BookingStatus{models.StatusInquiry, models.StatusVendorReviewed} {
		require.NoError(t, db.InsertHistory(ctx, &models.StatusHistory{
			BookingID: settled.ID, ToStatus: to, Actor: models.ActorVendor, CreatedAt: now,
		}))
	}
	hist, err := db.ListHistory(ctx, settled.ID)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, models.StatusInquiry, hist[0].ToStatus)
	assert.Equal(t, models.StatusVendorReviewed, hist[1].ToStatus)
}
