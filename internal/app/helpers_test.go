package app_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"exam-arena-service/internal/app"
	"exam-arena-service/internal/domain"
	"exam-arena-service/internal/infra/memory"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	clock     *clock
	store     *memory.Store
	bank      *memory.QuestionBank
	outbox    *memory.Outbox
	hub       *memory.RoomHub
	ledger    *app.Ledger
	attempts  *app.AttemptService
	rooms     *app.RoomService
	tests     *app.TestGenerator
	referrals *app.ReferralService
}

// Monday noon, so a working week fits in one goal window.
var monday = time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)

func newFixture(t *testing.T, nQuestions int) *fixture {
	t.Helper()
	c := &clock{now: monday}
	settings := app.DefaultSettings()
	settings.Now = c.Now

	f := &fixture{
		clock:  c,
		store:  memory.NewStore(),
		bank:   memory.NewQuestionBank(questions(nQuestions)...),
		outbox: memory.NewOutbox(),
		hub:    memory.NewRoomHub(),
	}
	f.ledger = app.NewLedger(f.store, settings)
	f.attempts = app.NewAttemptService(f.store, f.bank, f.ledger, settings)
	f.rooms = app.NewRoomService(f.store, f.bank, f.outbox, f.hub, settings)
	f.tests = app.NewTestGenerator(f.store, f.bank, settings)
	f.referrals = app.NewReferralService(f.store, f.outbox, settings)
	return f
}

func questions(n int) []domain.Question {
	out := make([]domain.Question, n)
	for i := range out {
		out[i] = domain.Question{
			Text: fmt.Sprintf("What is %d + %d?", i, i),
			Type: domain.QuestionMCQ,
			Options: []domain.Option{
				{Label: "A", Text: "right"},
				{Label: "B", Text: "wrong"},
				{Label: "C", Text: "wrong"},
				{Label: "D", Text: "wrong"},
			},
			CorrectAnswer: "A",
			Marks:         4,
			NegativeMarks: 1,
			Difficulty:    "easy",
			Subject:       "physics",
			Exam:          "JEE",
			Year:          2023,
			Active:        true,
		}
	}
	return out
}

func student(id string) domain.Principal {
	return domain.Principal{UserID: id, Name: id, Email: id + "@example.com"}
}

// practiceTest generates a JEE practice test of n questions for p.
func (f *fixture) practiceTest(t *testing.T, p domain.Principal, n int) domain.MockTest {
	t.Helper()
	test, err := f.tests.Generate(context.Background(), p, app.GenerateRequest{Kind: domain.TestPractice, Exam: "JEE", Count: n})
	if err != nil {
		t.Fatalf("generate test: %v", err)
	}
	return test
}

// takeTest starts, answers and submits test for p. answers maps question position to answer.
func (f *fixture) takeTest(t *testing.T, p domain.Principal, test domain.MockTest, answers map[int]string) app.SubmitResult {
	t.Helper()
	ctx := context.Background()
	attempt, err := f.attempts.Start(ctx, p, test.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	for i, answer := range answers {
		if _, err := f.attempts.Answer(ctx, p, attempt.ID, test.QuestionIDs[i], answer); err != nil {
			t.Fatalf("answer %d: %v", i, err)
		}
	}
	result, err := f.attempts.Submit(ctx, p, attempt.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return result
}

func (f *fixture) createRoom(t *testing.T, host domain.Principal, cfg domain.RoomConfig) app.RoomView {
	t.Helper()
	if cfg.Exam == "" {
		cfg.Exam = "JEE"
	}
	if cfg.TimePerQuestionSeconds == 0 {
		cfg.TimePerQuestionSeconds = 60
	}
	room, err := f.rooms.Create(context.Background(), host, app.CreateRoomRequest{RoomConfig: cfg})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	return room
}

type fakeLocker struct {
	mu       sync.Mutex
	held     bool
	acquired int
}

func (l *fakeLocker) TryLock(_ context.Context, _ string, _ time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return nil, false, nil
	}
	l.held = true
	l.acquired++
	return func() {
		l.mu.Lock()
		l.held = false
		l.mu.Unlock()
	}, true, nil
}

// flakyNotifier fails the next failures enqueues, then forwards to next.
type flakyNotifier struct {
	mu       sync.Mutex
	failures int
	next     app.Notifier
}

func (n *flakyNotifier) Enqueue(ctx context.Context, note domain.Notification) error {
	n.mu.Lock()
	if n.failures > 0 {
		n.failures--
		n.mu.Unlock()
		return errors.New("outbox unavailable")
	}
	n.mu.Unlock()
	return n.next.Enqueue(ctx, note)
}

// countActions counts queued notifications of actionType for userID.
func (f *fixture) countActions(userID, actionType string) int {
	n := 0
	for _, note := range f.outbox.List(userID) {
		if note.ActionType == actionType {
			n++
		}
	}
	return n
}
