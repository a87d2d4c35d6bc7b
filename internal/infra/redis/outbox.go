package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"exam-arena-service/internal/app"
	"exam-arena-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Outbox queues notifications on a Redis list for a delivery worker.
// Notifications with a DedupeKey are written once per dedupeTTL.
type Outbox struct {
	client    *redis.Client
	queue     string
	dedupeTTL time.Duration
	clock     func() time.Time
}

var _ app.Notifier = (*Outbox)(nil)

func NewOutbox(client *redis.Client, queue string, dedupeTTL time.Duration) *Outbox {
	if queue == "" {
		queue = "notifications:outbox"
	}
	return &Outbox{client: client, queue: queue, dedupeTTL: dedupeTTL, clock: time.Now}
}

func (o *Outbox) Enqueue(ctx context.Context, n domain.Notification) error {
	if n.DedupeKey != "" {
		ok, err := o.client.SetNX(ctx, "notifications:dedupe:"+n.DedupeKey, "1", o.dedupeTTL).Result()
		if err != nil {
			return fmt.Errorf("dedupe notification: %w", err)
		}
		if !ok {
			return nil
		}
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = o.clock()
	}
	raw, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := o.client.RPush(ctx, o.queue, raw).Err(); err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

// Pending returns up to limit queued notifications without removing them.
func (o *Outbox) Pending(ctx context.Context, limit int64) ([]domain.Notification, error) {
	raws, err := o.client.LRange(ctx, o.queue, 0, limit-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.Notification, 0, len(raws))
	for _, raw := range raws {
		var n domain.Notification
		if err := json.Unmarshal([]byte(raw), &n); err != nil {
			return nil, fmt.Errorf("unmarshal notification: %w", err)
		}
		out = append(out, n)
	}
	return out, nil
}
