package redis

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"exam-arena-service/internal/app"
	"exam-arena-service/internal/domain"
	"exam-arena-service/internal/infra/memory"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestQuestionCacheCachesInRedis(t *testing.T) {
	mr, client := startRedis(t)

	bank := &countingBank{QuestionBank: memory.NewQuestionBank(sampleQuestion())}
	cache := NewQuestionCache(client, bank, time.Minute)

	q, err := cache.Get(context.Background(), "q1")
	if err != nil {
		t.Fatalf("get question: %v", err)
	}
	if q.CorrectAnswer != "B" {
		t.Fatalf("unexpected question %+v", q)
	}
	if bank.calls.Load() != 1 {
		t.Fatalf("expected bank called once, got %d", bank.calls.Load())
	}
	if !mr.Exists("question:q1") {
		t.Fatalf("expected question cached in redis")
	}

	// Second call should hit cache, bank not incremented.
	_, _ = cache.Get(context.Background(), "q1")
	if bank.calls.Load() != 1 {
		t.Fatalf("expected cache hit, bank calls=%d", bank.calls.Load())
	}
}

func TestQuestionCacheGetManyFillsMisses(t *testing.T) {
	mr, client := startRedis(t)
	cache := NewQuestionCache(client, memory.NewQuestionBank(sampleQuestion()), time.Minute)

	qs, err := cache.GetMany(context.Background(), []string{"q1", "missing"})
	if err != nil {
		t.Fatalf("get many: %v", err)
	}
	if len(qs) != 1 || qs[0].ID != "q1" {
		t.Fatalf("unexpected questions %+v", qs)
	}
	if !mr.Exists("question:q1") {
		t.Fatalf("expected filled cache key")
	}
	ttl := mr.TTL("question:q1")
	if ttl < time.Minute || ttl > time.Minute+6*time.Second {
		t.Fatalf("expected ttl with up to 10%% jitter, got %v", ttl)
	}
}

func TestOutboxDedupesByKey(t *testing.T) {
	_, client := startRedis(t)
	outbox := NewOutbox(client, "", time.Hour)
	ctx := context.Background()

	n := domain.Notification{UserID: "u1", Category: "room", Message: "results ready", DedupeKey: "room:r1:results:u1"}
	for i := 0; i < 3; i++ {
		if err := outbox.Enqueue(ctx, n); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	if err := outbox.Enqueue(ctx, domain.Notification{UserID: "u2", Message: "room started"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	pending, err := outbox.Pending(ctx, 10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 queued notifications, got %d", len(pending))
	}
	if pending[0].UserID != "u1" || pending[0].CreatedAt.IsZero() {
		t.Fatalf("unexpected first notification %+v", pending[0])
	}
}

func TestRoomHubPublishSubscribe(t *testing.T) {
	_, client := startRedis(t)
	hub := NewRoomHub(client)
	ctx := context.Background()

	events, cancel, err := hub.Subscribe(ctx, "ABC123")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	if err := hub.Publish(ctx, domain.RoomEvent{Type: "joined", RoomCode: "ABC123", UserID: "u2"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case ev := <-events:
		if ev.Type != "joined" || ev.UserID != "u2" {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
	}

	cancel()
	cancel()
	select {
	case _, ok := <-events:
		if ok {
			t.Fatalf("expected channel closed after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("channel not closed after cancel")
	}
}

func TestLockerIsExclusive(t *testing.T) {
	mr, client := startRedis(t)
	locker := NewLocker(client)
	ctx := context.Background()

	release, ok, err := locker.TryLock(ctx, "rooms:sweep:lock", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first lock, ok=%v err=%v", ok, err)
	}
	if _, ok, _ := locker.TryLock(ctx, "rooms:sweep:lock", time.Minute); ok {
		t.Fatalf("expected second lock to fail")
	}

	release()
	if mr.Exists("rooms:sweep:lock") {
		t.Fatalf("expected lock released")
	}
	release2, ok, _ := locker.TryLock(ctx, "rooms:sweep:lock", time.Minute)
	if !ok {
		t.Fatalf("expected lock after release")
	}
	defer release2()
}

func TestLockerReleaseKeepsForeignLock(t *testing.T) {
	mr, client := startRedis(t)
	locker := NewLocker(client)

	release, ok, _ := locker.TryLock(context.Background(), "k", time.Second)
	if !ok {
		t.Fatalf("expected lock")
	}
	mr.FastForward(2 * time.Second)
	mr.Set("k", "someone-else")

	release()
	if v, _ := mr.Get("k"); v != "someone-else" {
		t.Fatalf("expected foreign lock untouched, got %q", v)
	}
}

type countingBank struct {
	app.QuestionBank
	calls atomic.Int32
}

func (b *countingBank) Get(ctx context.Context, id string) (domain.Question, error) {
	b.calls.Add(1)
	return b.QuestionBank.Get(ctx, id)
}

func sampleQuestion() domain.Question {
	return domain.Question{
		ID:   "q1",
		Text: "What is 2 + 2?",
		Type: domain.QuestionMCQ,
		Options: []domain.Option{
			{Label: "A", Text: "3"},
			{Label: "B", Text: "4"},
		},
		CorrectAnswer: "B",
		Marks:         4,
		NegativeMarks: 1,
		Subject:       "Maths",
		Exam:          "JEE",
		Active:        true,
	}
}

func startRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}
