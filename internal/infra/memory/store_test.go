package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"exam-arena-service/internal/app"
	"exam-arena-service/internal/domain"
)

func TestStoreWithinTxRollsBack(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	if _, err := store.Students().Ensure(ctx, domain.Student{ID: "s1", RoomCredits: 1}); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(tx app.Store) error {
		if err := tx.Students().DeductRoomCredit(ctx, "s1"); err != nil {
			return err
		}
		if err := tx.Rooms().Create(ctx, domain.Room{ID: "r1", Code: "ABC123"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	s, err := store.Students().Get(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if s.RoomCredits != 1 {
		t.Fatalf("expected credit restored, got %d", s.RoomCredits)
	}
	if _, err := store.Rooms().GetByCode(ctx, "ABC123"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected room rolled back, got %v", err)
	}
}

func TestStoreDeductRoomCreditFailsWhenEmpty(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	store.Students().Ensure(ctx, domain.Student{ID: "s1"})

	if err := store.Students().DeductRoomCredit(ctx, "s1"); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
}

func TestAttemptRepoCompleteOnce(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	a, created, err := store.Attempts().CreateIfAbsent(ctx, domain.Attempt{ID: "a1", StudentID: "s1", TestID: "t1"})
	if err != nil || !created {
		t.Fatalf("create: %v created=%v", err, created)
	}
	again, created, err := store.Attempts().CreateIfAbsent(ctx, domain.Attempt{ID: "a2", StudentID: "s1", TestID: "t1"})
	if err != nil || created || again.ID != a.ID {
		t.Fatalf("expected existing attempt, got %+v created=%v err=%v", again, created, err)
	}

	a.Completed = true
	if err := store.Attempts().Complete(ctx, a); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := store.Attempts().Complete(ctx, a); !errors.Is(err, domain.ErrAlreadySubmitted) {
		t.Fatalf("expected already submitted, got %v", err)
	}
}

func TestAttemptRepoUpsertAnswerOverwrites(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	first, _ := store.Attempts().UpsertAnswer(ctx, domain.Answer{ID: "ans1", AttemptID: "a1", QuestionID: "q1", SelectedAnswer: "A"})
	second, _ := store.Attempts().UpsertAnswer(ctx, domain.Answer{ID: "ans2", AttemptID: "a1", QuestionID: "q1", SelectedAnswer: "B"})
	if second.ID != first.ID {
		t.Fatalf("expected row id kept, got %q", second.ID)
	}
	answers, _ := store.Attempts().ListAnswers(ctx, "a1")
	if len(answers) != 1 || answers[0].SelectedAnswer != "B" {
		t.Fatalf("unexpected answers %+v", answers)
	}
}

func TestRoomRepoCompareAndSet(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	room := domain.Room{ID: "r1", Code: "ABC123", Status: domain.RoomWaiting}
	if err := store.Rooms().Create(ctx, room); err != nil {
		t.Fatalf("create: %v", err)
	}

	room.Status = domain.RoomActive
	if err := store.Rooms().TransitionStatus(ctx, room, domain.RoomWaiting); err != nil {
		t.Fatalf("transition: %v", err)
	}
	room.Status = domain.RoomCompleted
	if err := store.Rooms().TransitionStatus(ctx, room, domain.RoomWaiting); !errors.Is(err, domain.ErrState) {
		t.Fatalf("expected state error, got %v", err)
	}

	flipped, _ := store.Rooms().MarkResultsNotified(ctx, "r1")
	again, _ := store.Rooms().MarkResultsNotified(ctx, "r1")
	if !flipped || again {
		t.Fatalf("expected single flip, got %v then %v", flipped, again)
	}
}

func TestRoomRepoSeedAndClockAssignedOnce(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	store.Rooms().AddParticipant(ctx, domain.RoomParticipant{ID: "p1", RoomID: "r1", UserID: "u1", Status: domain.ParticipantJoined})

	seed, _ := store.Rooms().AssignSeed(ctx, "p1", 42)
	again, _ := store.Rooms().AssignSeed(ctx, "p1", 7)
	if seed != 42 || again != 42 {
		t.Fatalf("expected seed 42 kept, got %d and %d", seed, again)
	}

	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	start, _ := store.Rooms().StartClock(ctx, "p1", t0)
	later, _ := store.Rooms().StartClock(ctx, "p1", t0.Add(time.Minute))
	if !start.Equal(t0) || !later.Equal(t0) {
		t.Fatalf("expected clock fixed at first start, got %v and %v", start, later)
	}

	if err := store.Rooms().AddParticipant(ctx, domain.RoomParticipant{ID: "p2", RoomID: "r1", UserID: "u1"}); !errors.Is(err, domain.ErrDuplicate) {
		t.Fatalf("expected duplicate participant rejected, got %v", err)
	}
}

func TestXPRepoWindowedQueries(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	entries := []domain.XPLog{
		{StudentID: "s1", Amount: 10, Action: "test_completion", SourceType: "test_completion", SourceID: "a1", CreatedAt: day.Add(time.Hour)},
		{StudentID: "s1", Amount: 50, Action: "first_test_of_day", SourceType: "task", CreatedAt: day.Add(2 * time.Hour)},
		{StudentID: "s1", Amount: 5, Action: "test_completion", SourceType: "test_completion", SourceID: "a0", CreatedAt: day.Add(-time.Hour)},
	}
	for _, e := range entries {
		store.XP().Append(ctx, e)
	}

	sum, _ := store.XP().Sum(ctx, domain.XPQuery{StudentID: "s1", From: day, To: day.Add(24 * time.Hour)})
	if sum != 60 {
		t.Fatalf("expected 60 for the day, got %d", sum)
	}
	ok, _ := store.XP().Exists(ctx, domain.XPQuery{StudentID: "s1", SourceType: "task", Action: "first_test_of_day"})
	if !ok {
		t.Fatalf("expected task entry found")
	}
	recent, _ := store.XP().List(ctx, "s1", 2)
	if len(recent) != 2 || recent[0].Amount != 50 {
		t.Fatalf("unexpected recent entries %+v", recent)
	}
}

func TestActivityTouchRaisesToPresent(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	store.Activity().Touch(ctx, "s1", day, domain.ActivityPartial, 0, day)
	store.Activity().Touch(ctx, "s1", day, domain.ActivityPresent, 1, day)
	store.Activity().Touch(ctx, "s1", day, domain.ActivityPartial, 0, day)

	days, _ := store.Activity().ListDays(ctx, "s1")
	if len(days) != 1 || days[0].Status != domain.ActivityPresent || days[0].TestsCompleted != 1 {
		t.Fatalf("unexpected activity %+v", days)
	}
}
