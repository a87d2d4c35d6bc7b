package memory

import (
	"context"
	"testing"
	"time"

	"exam-arena-service/internal/domain"
)

func TestRoomHubFanOut(t *testing.T) {
	hub := NewRoomHub()
	ctx := context.Background()

	a, cancelA, _ := hub.Subscribe(ctx, "ABC123")
	b, cancelB, _ := hub.Subscribe(ctx, "ABC123")
	other, cancelOther, _ := hub.Subscribe(ctx, "ZZZ999")
	defer cancelOther()

	if err := hub.Publish(ctx, domain.RoomEvent{Type: "started", RoomCode: "ABC123"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	for _, ch := range []<-chan domain.RoomEvent{a, b} {
		select {
		case ev := <-ch:
			if ev.Type != "started" {
				t.Fatalf("unexpected event %+v", ev)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event")
		}
	}
	select {
	case ev := <-other:
		t.Fatalf("other room received %+v", ev)
	default:
	}

	cancelA()
	cancelB()
	cancelB()
	if n := hub.Subscribers("ABC123"); n != 0 {
		t.Fatalf("expected no subscribers, got %d", n)
	}
	if _, ok := <-a; ok {
		t.Fatalf("expected channel closed after cancel")
	}
}

func TestRoomHubDropsStaleEventsForSlowSubscriber(t *testing.T) {
	hub := NewRoomHub()
	ch, cancel, _ := hub.Subscribe(context.Background(), "ROOM01")
	defer cancel()

	for i := 1; i <= 20; i++ {
		hub.Publish(context.Background(), domain.RoomEvent{Type: "progress", RoomCode: "ROOM01", Answered: i})
	}
	var last domain.RoomEvent
	for len(ch) > 0 {
		last = <-ch
	}
	if last.Answered != 20 {
		t.Fatalf("expected newest event retained, got %d", last.Answered)
	}
}
