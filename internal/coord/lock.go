package coord

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// extendScript refreshes the lease TTL only when the caller still owns it.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// releaseScript is a compare-and-delete: a stale worker can never release
// a lock now held by a different job.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// AccountLock serializes jobs writing to the same account. The lease
// auto-expires so a worker that died without releasing recovers after TTL.
type AccountLock struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewAccountLock(rdb *redis.Client, ttl time.Duration) *AccountLock {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &AccountLock{rdb: rdb, ttl: ttl}
}

func lockKey(accountID string) string {
	return "lock:account:" + accountID
}

// Acquire claims the account lease for ownerID. Returns false without
// error when another owner currently holds it.
func (l *AccountLock) Acquire(ctx context.Context, accountID, ownerID string) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, lockKey(accountID), ownerID, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("lock acquire failed: %w", err)
	}
	return ok, nil
}

// Extend refreshes the lease while the owner is still processing items.
// A no-op when the lease is held by someone else or already expired.
func (l *AccountLock) Extend(ctx context.Context, accountID, ownerID string) error {
	err := extendScript.Run(ctx, l.rdb,
		[]string{lockKey(accountID)}, ownerID, l.ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("lock extend failed: %w", err)
	}
	return nil
}

// Release drops the lease if and only if ownerID still owns it.
func (l *AccountLock) Release(ctx context.Context, accountID, ownerID string) error {
	err := releaseScript.Run(ctx, l.rdb,
		[]string{lockKey(accountID)}, ownerID).Err()
	if err != nil {
		return fmt.Errorf("lock release failed: %w", err)
	}
	return nil
}
