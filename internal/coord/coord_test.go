package coord

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/NiksRock/GDriveBridge/internal/config/worker"
	"github.com/NiksRock/GDriveBridge/pkg/log"
)

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func testLogger() log.LoggerService {
	return log.NewLoggerService("test", config.LogWorkerConfig{
		Level:      "ERROR",
		TimeFormat: time.RFC3339,
		NoColor:    true,
	})
}

func TestGovernorFirstSlotImmediate(t *testing.T) {
	rdb := testRedis(t)
	governor := NewRateGovernor(rdb, 200*time.Millisecond, testLogger())

	start := time.Now()
	require.NoError(t, governor.Throttle(context.Background(), "acc-1"))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestGovernorEnforcesMinimumInterval(t *testing.T) {
	rdb := testRedis(t)
	interval := 50 * time.Millisecond
	governor := NewRateGovernor(rdb, interval, testLogger())

	ctx := context.Background()
	const slots = 5

	start := time.Now()
	for i := 0; i < slots; i++ {
		require.NoError(t, governor.Throttle(ctx, "acc-1"))
	}
	elapsed := time.Since(start)

	// slots grants require at least (slots-1) full intervals
	assert.GreaterOrEqual(t, elapsed, time.Duration(slots-1)*interval)
}

func TestGovernorIsolatesAccounts(t *testing.T) {
	rdb := testRedis(t)
	governor := NewRateGovernor(rdb, 500*time.Millisecond, testLogger())

	ctx := context.Background()
	require.NoError(t, governor.Throttle(ctx, "acc-1"))

	// A different account has its own token and is not delayed
	start := time.Now()
	require.NoError(t, governor.Throttle(ctx, "acc-2"))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestGovernorRespectsContextCancellation(t *testing.T) {
	rdb := testRedis(t)
	governor := NewRateGovernor(rdb, 5*time.Second, testLogger())

	require.NoError(t, governor.Throttle(context.Background(), "acc-1"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := governor.Throttle(ctx, "acc-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLockExclusivity(t *testing.T) {
	rdb := testRedis(t)
	lock := NewAccountLock(rdb, time.Minute)
	ctx := context.Background()

	ok, err := lock.Acquire(ctx, "acc-1", "job-a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = lock.Acquire(ctx, "acc-1", "job-b")
	require.NoError(t, err)
	assert.False(t, ok, "second owner must not acquire a held lock")

	// A different account is unaffected
	ok, err = lock.Acquire(ctx, "acc-2", "job-b")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLockReleaseOnlyByOwner(t *testing.T) {
	rdb := testRedis(t)
	lock := NewAccountLock(rdb, time.Minute)
	ctx := context.Background()

	ok, err := lock.Acquire(ctx, "acc-1", "job-a")
	require.NoError(t, err)
	require.True(t, ok)

	// A stale worker must not free someone else's lease
	require.NoError(t, lock.Release(ctx, "acc-1", "job-stale"))
	ok, err = lock.Acquire(ctx, "acc-1", "job-b")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, lock.Release(ctx, "acc-1", "job-a"))
	ok, err = lock.Acquire(ctx, "acc-1", "job-b")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLockExtendKeepsLease(t *testing.T) {
	rdb := testRedis(t)
	lock := NewAccountLock(rdb, time.Minute)
	ctx := context.Background()

	ok, err := lock.Acquire(ctx, "acc-1", "job-a")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, lock.Extend(ctx, "acc-1", "job-a"))

	// Extending as a non-owner is a silent no-op
	require.NoError(t, lock.Extend(ctx, "acc-1", "job-b"))

	ok, err = lock.Acquire(ctx, "acc-1", "job-b")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNotifierPublishesProgress(t *testing.T) {
	rdb := testRedis(t)
	notifier := NewRedisNotifier(rdb, "transfer:progress", testLogger())
	ctx := context.Background()

	sub := rdb.Subscribe(ctx, "transfer:progress")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	notifier.Publish(ctx, Progress{
		JobID:           "job-1",
		CurrentFileName: "report.pdf",
		CompletedCount:  3,
		TotalCount:      10,
		Status:          "RUNNING",
	})

	select {
	case msg := <-sub.Channel():
		assert.Contains(t, msg.Payload, `"jobId":"job-1"`)
		assert.Contains(t, msg.Payload, `"currentFileName":"report.pdf"`)
	case <-time.After(2 * time.Second):
		t.Fatal("no progress message received")
	}
}
