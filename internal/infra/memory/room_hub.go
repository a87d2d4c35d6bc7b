package memory

import (
	"context"
	"sync"

	"exam-arena-service/internal/app"
	"exam-arena-service/internal/domain"
)

// RoomHub is an in-process implementation of app.RoomHub.
type RoomHub struct {
	mu    sync.Mutex
	rooms map[string]map[chan domain.RoomEvent]struct{}
}

var _ app.RoomHub = (*RoomHub)(nil)

func NewRoomHub() *RoomHub {
	return &RoomHub{rooms: make(map[string]map[chan domain.RoomEvent]struct{})}
}

func (h *RoomHub) Publish(_ context.Context, event domain.RoomEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.rooms[event.RoomCode] {
		select {
		case ch <- event:
		default:
			// drop the oldest event so a slow subscriber never blocks publishers
			select {
			case <-ch:
			default:
			}
			ch <- event
		}
	}
	return nil
}

// Subscribe registers a buffered channel for the room. The caller must invoke the returned
// cancel function to avoid leaks.
func (h *RoomHub) Subscribe(_ context.Context, roomCode string) (<-chan domain.RoomEvent, func(), error) {
	ch := make(chan domain.RoomEvent, 8)

	h.mu.Lock()
	subs, ok := h.rooms[roomCode]
	if !ok {
		subs = make(map[chan domain.RoomEvent]struct{})
		h.rooms[roomCode] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs := h.rooms[roomCode]
		if _, ok := subs[ch]; !ok {
			return
		}
		delete(subs, ch)
		close(ch)
		if len(subs) == 0 {
			delete(h.rooms, roomCode)
		}
	}
	return ch, cancel, nil
}

// Subscribers reports how many live channels the room has.
func (h *RoomHub) Subscribers(roomCode string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[roomCode])
}
