package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"exam-arena-service/internal/app"
	"exam-arena-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RoomHub fans room events out across instances through Redis Pub/Sub.
// Channels look like room:{code}:events.
type RoomHub struct {
	client *redis.Client
}

var _ app.RoomHub = (*RoomHub)(nil)

func NewRoomHub(client *redis.Client) *RoomHub {
	return &RoomHub{client: client}
}

func (h *RoomHub) Publish(ctx context.Context, event domain.RoomEvent) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal room event: %w", err)
	}
	return h.client.Publish(ctx, channel(event.RoomCode), raw).Err()
}

// Subscribe returns once the subscription is confirmed. The caller must invoke the returned
// cancel function to avoid leaks.
func (h *RoomHub) Subscribe(ctx context.Context, roomCode string) (<-chan domain.RoomEvent, func(), error) {
	sub := h.client.Subscribe(ctx, channel(roomCode))
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, nil, fmt.Errorf("subscribe room %s: %w", roomCode, err)
	}

	out := make(chan domain.RoomEvent, 8)
	done := make(chan struct{})
	go func() {
		defer close(out)
		msgs := sub.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev domain.RoomEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					log.Printf("room %s: bad event payload: %v", roomCode, err)
					continue
				}
				select {
				case out <- ev:
				default:
					// drop the oldest event so a slow subscriber never stalls the reader
					select {
					case <-out:
					default:
					}
					out <- ev
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			sub.Close()
		})
	}
	return out, cancel, nil
}

func channel(roomCode string) string {
	return "room:" + roomCode + ":events"
}
