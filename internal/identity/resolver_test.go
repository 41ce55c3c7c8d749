package identity_test

import (
	"context"
	"errors"
	"ms-booking/internal/identity"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/storage"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*storage.DB, *identity.Resolver) {
	t.Helper()
	db, err := storage.OpenSQLite(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, identity.NewResolver(db, nil, logger.Discard())
}

func TestCanonicalizeAllFormats(t *testing.T) {
	_, r := setup(t)
	ctx := context.Background()

	v, err := r.Register(ctx, "v-0042", "prof-42", "Lumen Studio")
	require.NoError(t, err)

	for _, raw := range []string{v.ID, "V-0042", "v-0042", "  V-0042 ", "prof-42"} {
		id, err := r.Canonicalize(ctx, raw)
		require.NoError(t, err, raw)
		assert.Equal(t, v.ID, id, raw)
	}
}

func TestOrphanRecordsResolve(t *testing.T) {
	_, r := setup(t)
	ctx := context.Background()

	legacyOnly, err := r.Register(ctx, "V-0001", "", "")
	require.NoError(t, err)
	profileOnly, err := r.Register(ctx, "", "prof-only", "")
	require.NoError(t, err)

	id, err := r.Canonicalize(ctx, "V-0001")
	require.NoError(t, err)
	assert.Equal(t, legacyOnly.ID, id)

	id, err = r.Canonicalize(ctx, "prof-only")
	require.NoError(t, err)
	assert.Equal(t, profileOnly.ID, id)

	refs, err := r.DisplayRefs(ctx, legacyOnly.ID)
	require.NoError(t, err)
	assert.Equal(t, "V-0001", refs.LegacyCode)
	assert.Empty(t, refs.ProfileID)
}

func TestCanonicalizeUnknownAndEmpty(t *testing.T) {
	_, r := setup(t)
	ctx := context.Background()

	_, err := r.Canonicalize(ctx, "V-9999")
	assert.ErrorIs(t, err, identity.ErrUnknownVendorReference)
	var unknown *identity.UnknownReferenceError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "V-9999", unknown.Ref)

	_, err = r.Canonicalize(ctx, "   ")
	assert.ErrorIs(t, err, identity.ErrMissingVendor)

	_, err = r.Register(ctx, "", "", "nobody")
	assert.ErrorIs(t, err, identity.ErrMissingVendor)
}

func TestMatches(t *testing.T) {
	_, r := setup(t)
	ctx := context.Background()

	v, err := r.Register(ctx, "V-0042", "", "")
	require.NoError(t, err)

	ok, err := r.Matches(ctx, "v-0042", v.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.Matches(ctx, "V-0043", v.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCacheReadThrough(t *testing.T) {
	db, _ := setup(t)
	ctx := context.Background()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	r := identity.NewResolver(db, identity.NewRedisCache(client, time.Minute), logger.Discard())
	v, err := r.Register(ctx, "V-0042", "prof-42", "")
	require.NoError(t, err)

	id, err := r.Canonicalize(ctx, "prof-42")
	require.NoError(t, err)
	assert.Equal(t, v.ID, id)

	cached, err := mr.Get("vendor_ref:prof-42")
	require.NoError(t, err)
	assert.Equal(t, v.ID, cached)

	// a cache outage falls back to the store
	mr.Close()
	id, err = r.Canonicalize(ctx, "V-0042")
	require.NoError(t, err)
	assert.Equal(t, v.ID, id)
}

type MockVendorStore struct {
	mock.Mock
}

func (m *MockVendorStore) GetVendor(ctx context.Context, id string) (*models.Vendor, error) {
	args := m.Called(ctx, id)
	v, _ := args.Get(0).(*models.Vendor)
	return v, args.Error(1)
}

func (m *MockVendorStore) GetVendorByLegacyCode(ctx context.Context, code string) (*models.Vendor, error) {
	args := m.Called(ctx, code)
	v, _ := args.Get(0).(*models.Vendor)
	return v, args.Error(1)
}

func (m *MockVendorStore) GetVendorByProfileID(ctx context.Context, profileID string) (*models.Vendor, error) {
	args := m.Called(ctx, profileID)
	v, _ := args.Get(0).(*models.Vendor)
	return v, args.Error(1)
}

func (m *MockVendorStore) InsertVendor(ctx context.Context, v *models.Vendor) error {
	return m.Called(ctx, v).Error(0)
}

func TestCanonicalizeStoreFailureIsNotUnknown(t *testing.T) {
	store := new(MockVendorStore)
	down := errors.New("connection refused")
	store.On("GetVendor", mock.Anything, "V-1").Return(nil, storage.ErrNotFound)
	store.On("GetVendorByLegacyCode", mock.Anything, "V-1").Return(nil, down)

	r := identity.NewResolver(store, nil, logger.Discard())
	_, err := r.Canonicalize(context.Background(), "V-1")
	assert.ErrorIs(t, err, down)
	assert.NotErrorIs(t, err, identity.ErrUnknownVendorReference)
	store.AssertNotCalled(t, "GetVendorByProfileID", mock.Anything, mock.Anything)
}
