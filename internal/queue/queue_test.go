package queue

import (
	"context"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
)

func TestRetryDelayCapped(t *testing.T) {
	assert.Equal(t, 30*time.Second, RetryDelay(1, nil, nil))
	assert.Equal(t, 2*time.Minute, RetryDelay(4, nil, nil))
	assert.Equal(t, 5*time.Minute, RetryDelay(100, nil, nil))
}

func TestPrioritiesCoverAllQueues(t *testing.T) {
	priorities := Priorities()
	for _, queue := range []string{QueueTransfer, QueueVerification, QueueDelete, QueueQuotaResume} {
		assert.Greater(t, priorities[queue], 0, "queue %s must have a share", queue)
	}
	assert.Greater(t, priorities[QueueTransfer], priorities[QueueDelete])
}

func TestMuxRejectsMalformedPayloadPermanently(t *testing.T) {
	mux := NewMux(Handlers{})
	ctx := context.Background()

	for _, typ := range []string{TypeTransferProcess, TypeVerification, TypeSourceDelete, TypeQuotaResume} {
		err := mux.ProcessTask(ctx, asynq.NewTask(typ, []byte("{not json")))
		assert.ErrorIs(t, err, asynq.SkipRetry, "task type %s", typ)
	}
}
