// Package coord implements the cross-process coordination primitives:
// the per-account write-rate governor, the per-account exclusive lease
// and the realtime progress publisher. All of them live in Redis so the
// guarantees hold cluster-wide, not per-process.
package coord

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/NiksRock/GDriveBridge/pkg/log"
)

// throttleScript reads the last-write timestamp and conditionally claims
// the next slot in a single atomic round trip. Two workers can never both
// observe "slot free" and double-spend it. Returns 0 when the slot was
// claimed, otherwise the milliseconds left until the next attempt.
var throttleScript = redis.NewScript(`
local last = redis.call("GET", KEYS[1])

if not last then
  redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
  return 0
end

local diff = tonumber(ARGV[1]) - tonumber(last)

if diff >= tonumber(ARGV[2]) then
  redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
  return 0
end

return tonumber(ARGV[2]) - diff
`)

// RateGovernor bounds the write rate per destination account across every
// concurrent worker. The default 400ms interval yields 2.5 writes/sec.
type RateGovernor struct {
	rdb      *redis.Client
	interval time.Duration
	log      log.LoggerService
}

func NewRateGovernor(rdb *redis.Client, interval time.Duration, logger log.LoggerService) *RateGovernor {
	if interval <= 0 {
		interval = 400 * time.Millisecond
	}
	return &RateGovernor{
		rdb:      rdb,
		interval: interval,
		log:      logger,
	}
}

func rateKey(accountID string) string {
	return "rate:account:" + accountID
}

// Throttle blocks cooperatively until a write slot for the account is
// granted, or the context is cancelled.
func (g *RateGovernor) Throttle(ctx context.Context, accountID string) error {
	key := rateKey(accountID)

	for {
		now := time.Now().UnixMilli()

		wait, err := throttleScript.Run(ctx, g.rdb,
			[]string{key}, now, g.interval.Milliseconds()).Int64()
		if err != nil {
			return fmt.Errorf("rate governor script failed: %w", err)
		}

		if wait <= 0 {
			return nil
		}

		g.log.Debug("Throttling writes for account '%s' (%dms)", accountID, wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(wait) * time.Millisecond):
		}
	}
}
