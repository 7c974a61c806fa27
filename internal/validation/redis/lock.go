package redis

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"eventgo/internal/logger"
)

// Lock serializes entry scans per purchase. Two gates scanning the same
// ticket at the same moment would otherwise both read "no recent validation"
// and both admit.
type Lock struct {
	Client *redis.Client
	Logger *logger.Logger
}

func NewLock(client *redis.Client, log *logger.Logger) *Lock {
	return &Lock{Client: client, Logger: log}
}

// scanLockDuration returns the scan lock TTL, default 30 seconds. The TTL is
// a safety net for crashed validators; the happy path releases explicitly.
func (l *Lock) scanLockDuration() time.Duration {
	defaultDuration := 30 * time.Second

	ttlStr := os.Getenv("SCAN_LOCK_TTL_SECONDS")
	if ttlStr == "" {
		return defaultDuration
	}

	ttlSec, err := strconv.Atoi(ttlStr)
	if err != nil {
		if l.Logger != nil {
			l.Logger.Warn("REDIS", "Invalid SCAN_LOCK_TTL_SECONDS value '"+ttlStr+"', using default 30 seconds")
		}
		return defaultDuration
	}
	return time.Duration(ttlSec) * time.Second
}

// Acquire takes the scan lock for a purchase on behalf of a validator.
// Returns false when another scan of the same purchase is in flight.
func (l *Lock) Acquire(ctx context.Context, purchaseID, validatorID string) (bool, error) {
	key := "scan_lock:" + purchaseID
	return l.Client.SetNX(ctx, key, validatorID, l.scanLockDuration()).Result()
}

// Release drops the scan lock if this validator still owns it.
func (l *Lock) Release(ctx context.Context, purchaseID, validatorID string) error {
	key := "scan_lock:" + purchaseID
	val, err := l.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	if val == validatorID {
		_, err := l.Client.Del(ctx, key).Result()
		return err
	}
	return nil
}
