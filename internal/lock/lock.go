package lock

import (
	"context"
	"fmt"
	"ms-booking/internal/apperr"
	"ms-booking/internal/logger"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

var ErrBusy = apperr.New("RESOURCE_BUSY", http.StatusConflict, "resource is being modified by another request, retry")

// releaseScript deletes the key only while it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock serializes mutations of one record across service instances. Keys are
// Prefix followed by the record id.
type Lock struct {
	Client     *redis.Client
	Prefix     string
	TTL        time.Duration
	Retries    int
	RetryDelay time.Duration
	Logger     *logger.Logger
}

// NewBookingLock guards booking_lock:<booking id>.
func NewBookingLock(client *redis.Client, ttl time.Duration, log *logger.Logger) *Lock {
	return newLock(client, "booking_lock:", ttl, log)
}

// NewVendorLock guards vendor_lock:<canonical vendor id> for quota checks.
func NewVendorLock(client *redis.Client, ttl time.Duration, log *logger.Logger) *Lock {
	return newLock(client, "vendor_lock:", ttl, log)
}

func newLock(client *redis.Client, prefix string, ttl time.Duration, log *logger.Logger) *Lock {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Lock{
		Client:     client,
		Prefix:     prefix,
		TTL:        ttl,
		Retries:    20,
		RetryDelay: 50 * time.Millisecond,
		Logger:     log,
	}
}

func (l *Lock) key(id string) string {
	return l.Prefix + id
}

// Acquire takes the lock, retrying a bounded number of times. It returns the
// owner token needed to release.
func (l *Lock) Acquire(ctx context.Context, id string) (string, error) {
	token := uuid.NewString()
	for attempt := 0; ; attempt++ {
		ok, err := l.Client.SetNX(ctx, l.key(id), token, l.TTL).Result()
		if err != nil {
			return "", fmt.Errorf("acquire lock: %w", err)
		}
		if ok {
			return token, nil
		}
		if attempt >= l.Retries {
			l.Logger.Warn("REDIS", fmt.Sprintf("Lock %s%s still held after %d attempts", l.Prefix, id, attempt+1))
			return "", ErrBusy
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(l.RetryDelay):
		}
	}
}

// Release drops the lock if token still owns it. An expired lock is not an error.
func (l *Lock) Release(ctx context.Context, id, token string) error {
	if err := releaseScript.Run(ctx, l.Client, []string{l.key(id)}, token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// WithLock runs fn while holding the lock for id.
func (l *Lock) WithLock(ctx context.Context, id string, fn func(ctx context.Context) error) error {
	token, err := l.Acquire(ctx, id)
	if err != nil {
		return err
	}
	defer func() {
		// release must not be skipped when ctx was cancelled mid-operation
		if err := l.Release(context.Background(), id, token); err != nil {
			l.Logger.Error("REDIS", fmt.Sprintf("Failed to release lock %s%s: %v", l.Prefix, id, err))
		}
	}()
	return fn(ctx)
}

// Connect opens a redis client and pings it.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return client, nil
}
