package coord

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/NiksRock/GDriveBridge/pkg/log"
)

// Progress is the realtime payload published per completed item and on
// every job status change. The WebSocket gateway consumes the channel.
type Progress struct {
	JobID           string `json:"jobId"`
	CurrentFileName string `json:"currentFileName,omitempty"`
	CompletedCount  int64  `json:"completedCount"`
	TotalCount      int64  `json:"totalCount"`
	Status          string `json:"status"`
}

// RedisNotifier publishes progress over Redis pub/sub. Fire-and-forget:
// a publish failure is logged, never surfaced to the pipeline.
type RedisNotifier struct {
	rdb     *redis.Client
	channel string
	log     log.LoggerService
}

func NewRedisNotifier(rdb *redis.Client, channel string, logger log.LoggerService) *RedisNotifier {
	if channel == "" {
		channel = "transfer:progress"
	}
	return &RedisNotifier{
		rdb:     rdb,
		channel: channel,
		log:     logger,
	}
}

func (n *RedisNotifier) Publish(ctx context.Context, p Progress) {
	payload, err := json.Marshal(p)
	if err != nil {
		n.log.Warn("Failed to marshal progress event: %v", err)
		return
	}

	if err := n.rdb.Publish(ctx, n.channel, payload).Err(); err != nil {
		n.log.Warn("Failed to publish progress for job '%s': %v", p.JobID, err)
	}
}
