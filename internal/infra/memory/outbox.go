package memory

import (
	"context"
	"sync"
	"time"

	"exam-arena-service/internal/app"
	"exam-arena-service/internal/domain"
)

// Outbox is an in-memory notification outbox.
type Outbox struct {
	mu      sync.Mutex
	clock   func() time.Time
	items   []domain.Notification
	dedupes map[string]struct{}
}

var _ app.Notifier = (*Outbox)(nil)

func NewOutbox() *Outbox {
	return &Outbox{clock: time.Now, dedupes: make(map[string]struct{})}
}

func (o *Outbox) Enqueue(_ context.Context, n domain.Notification) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if n.DedupeKey != "" {
		if _, ok := o.dedupes[n.DedupeKey]; ok {
			return nil
		}
		o.dedupes[n.DedupeKey] = struct{}{}
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = o.clock()
	}
	o.items = append(o.items, n)
	return nil
}

// List returns the notifications queued for userID, oldest first. Empty userID lists all.
func (o *Outbox) List(userID string) []domain.Notification {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []domain.Notification
	for _, n := range o.items {
		if userID == "" || n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}
