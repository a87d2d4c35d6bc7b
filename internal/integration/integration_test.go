package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"exam-arena-service/internal/app"
	"exam-arena-service/internal/domain"
	"exam-arena-service/internal/infra/postgres"
	pgmigrations "exam-arena-service/internal/infra/postgres/migrations"
	infraredis "exam-arena-service/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun/migrate"
)

type stack struct {
	mu       sync.Mutex
	offset   time.Duration
	store    *postgres.Store
	bank     *postgres.QuestionBank
	outbox   *infraredis.Outbox
	attempts *app.AttemptService
	rooms    *app.RoomService
	tests    *app.TestGenerator
	ledger   *app.Ledger
	sweeper  *app.Sweeper
}

func (s *stack) now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Now().Add(s.offset)
}

func (s *stack) advance(d time.Duration) {
	s.mu.Lock()
	s.offset += d
	s.mu.Unlock()
}

func TestRoomFlowEndToEnd(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, ctx)
	seedQuestions(t, ctx, s.bank, 3)

	host := domain.Principal{UserID: "host", Name: "Host"}
	player := domain.Principal{UserID: "p1", Name: "Alice"}

	room, err := s.rooms.Create(ctx, host, app.CreateRoomRequest{RoomConfig: domain.RoomConfig{
		Exam: "JEE", QuestionCount: 2, TimePerQuestionSeconds: 60, Privacy: domain.RoomPrivate, Password: "secret",
	}})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	_, err = s.rooms.Create(ctx, host, app.CreateRoomRequest{RoomConfig: domain.RoomConfig{
		Exam: "JEE", QuestionCount: 2, TimePerQuestionSeconds: 60,
	}})
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient credits on second room, got %v", err)
	}

	if _, err := s.rooms.Join(ctx, player, room.Code, "wrong"); !errors.Is(err, domain.ErrWrongPassword) {
		t.Fatalf("expected wrong password, got %v", err)
	}
	if _, err := s.rooms.Join(ctx, player, room.Code, "secret"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := s.rooms.Start(ctx, host, room.Code); err != nil {
		t.Fatalf("start: %v", err)
	}

	first, err := s.rooms.Questions(ctx, player, room.Code)
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	again, err := s.rooms.Questions(ctx, player, room.Code)
	if err != nil {
		t.Fatalf("questions again: %v", err)
	}
	for i := range first.Questions {
		if first.Questions[i].ID != again.Questions[i].ID {
			t.Fatalf("question order changed between calls")
		}
	}

	for _, q := range first.Questions {
		if _, err := s.rooms.SubmitAnswer(ctx, player, app.RoomAnswerRequest{
			RoomCode: room.Code, RoomQuestionID: q.ID, Answer: "A",
		}); err != nil {
			t.Fatalf("submit answer: %v", err)
		}
	}

	if _, err := s.rooms.End(ctx, host, room.Code); err != nil {
		t.Fatalf("end: %v", err)
	}
	ended, err := s.rooms.End(ctx, host, room.Code)
	if err != nil || ended.Message != "room already ended" {
		t.Fatalf("second end: %v %q", err, ended.Message)
	}

	board, err := s.rooms.Leaderboard(ctx, player, room.Code)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(board.Entries) != 2 || board.Entries[0].UserID != "p1" || board.Entries[0].Score != 8 {
		t.Fatalf("unexpected standings %+v", board.Entries)
	}

	pending, err := s.outbox.Pending(ctx, 100)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	results := 0
	for _, n := range pending {
		if n.ActionType == "room_results" {
			results++
		}
	}
	if results != 2 {
		t.Fatalf("expected one results notification per participant, got %d", results)
	}
}

func TestAttemptFlowEndToEnd(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, ctx)
	seedQuestions(t, ctx, s.bank, 4)

	student := domain.Principal{UserID: "s1", Name: "Student"}
	test, err := s.tests.Generate(ctx, student, app.GenerateRequest{Kind: domain.TestPractice, Exam: "JEE", Count: 4})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	// concurrent starts collapse onto one row
	var wg sync.WaitGroup
	ids := make([]string, 4)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := s.attempts.Start(ctx, student, test.ID)
			if err != nil {
				t.Errorf("start: %v", err)
				return
			}
			ids[i] = a.ID
		}(i)
	}
	wg.Wait()
	for _, id := range ids[1:] {
		if id != ids[0] {
			t.Fatalf("expected a single attempt, got %v", ids)
		}
	}

	if _, err := s.attempts.Answer(ctx, student, ids[0], test.QuestionIDs[0], "A"); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if _, err := s.attempts.Answer(ctx, student, ids[0], test.QuestionIDs[1], "B"); err != nil {
		t.Fatalf("answer: %v", err)
	}
	result, err := s.attempts.Submit(ctx, student, ids[0])
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	// +4 -1 and two blanks
	if result.Attempt.Score != 3 || result.Attempt.CorrectCount != 1 || result.Attempt.WrongCount != 1 || result.Attempt.UnansweredCount != 2 {
		t.Fatalf("unexpected attempt %+v", result.Attempt)
	}
	if _, err := s.attempts.Submit(ctx, student, ids[0]); !errors.Is(err, domain.ErrState) {
		t.Fatalf("expected already submitted, got %v", err)
	}

	summary, err := s.ledger.Summary(ctx, student, 10)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.TotalXP != 60 || summary.CurrentStreak != 1 {
		t.Fatalf("unexpected xp summary %+v", summary)
	}

	review, err := s.tests.Generate(ctx, student, app.GenerateRequest{Kind: domain.TestMistakeReview, Count: 10})
	if err != nil {
		t.Fatalf("mistake review: %v", err)
	}
	if len(review.QuestionIDs) != 3 {
		t.Fatalf("expected 3 review questions, got %d", len(review.QuestionIDs))
	}
}

func TestSweepCompletesExpiredRooms(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, ctx)
	seedQuestions(t, ctx, s.bank, 1)

	host := domain.Principal{UserID: "host"}
	room, err := s.rooms.Create(ctx, host, app.CreateRoomRequest{RoomConfig: domain.RoomConfig{
		Exam: "JEE", QuestionCount: 1, TimePerQuestionSeconds: 60,
	}})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	if n, err := s.sweeper.SweepOnce(ctx); err != nil || n != 0 {
		t.Fatalf("expected nothing to sweep yet, got %d (%v)", n, err)
	}
	s.advance(25 * time.Hour)
	if n, err := s.sweeper.SweepOnce(ctx); err != nil || n != 1 {
		t.Fatalf("expected one swept room, got %d (%v)", n, err)
	}
	view, err := s.rooms.Get(ctx, host, room.Code)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if view.Status != domain.RoomCompleted {
		t.Fatalf("expected completed room, got %s", view.Status)
	}
	if n, err := s.sweeper.SweepOnce(ctx); err != nil || n != 0 {
		t.Fatalf("expected second sweep to be empty, got %d (%v)", n, err)
	}
}

func TestDuplicateParticipantIsConflict(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, ctx)
	seedQuestions(t, ctx, s.bank, 1)

	host := domain.Principal{UserID: "host", Name: "Host"}
	room, err := s.rooms.Create(ctx, host, app.CreateRoomRequest{RoomConfig: domain.RoomConfig{
		Exam: "JEE", QuestionCount: 1, TimePerQuestionSeconds: 60,
	}})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	err = s.store.Rooms().AddParticipant(ctx, domain.RoomParticipant{
		ID: "dup", RoomID: room.ID, UserID: host.UserID, Status: domain.ParticipantJoined, JoinedAt: s.now(),
	})
	if !errors.Is(err, domain.ErrDuplicate) || !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected a duplicate participant to map to a conflict, got %v", err)
	}
}

func TestAnswerRacingSubmitIsScored(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, ctx)
	seedQuestions(t, ctx, s.bank, 6)

	student := domain.Principal{UserID: "s1", Name: "Student"}
	test, err := s.tests.Generate(ctx, student, app.GenerateRequest{Kind: domain.TestPractice, Exam: "JEE", Count: 6})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	attempt, err := s.attempts.Start(ctx, student, test.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for _, qid := range test.QuestionIDs {
		wg.Add(1)
		go func(qid string) {
			defer wg.Done()
			_, err := s.attempts.Answer(ctx, student, attempt.ID, qid, "A")
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			} else if !errors.Is(err, domain.ErrState) {
				t.Errorf("answer: %v", err)
			}
		}(qid)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := s.attempts.Submit(ctx, student, attempt.ID); err != nil {
			t.Errorf("submit: %v", err)
		}
	}()
	wg.Wait()

	view, err := s.attempts.Get(ctx, student, attempt.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(view.Answers) != accepted || view.Attempt.CorrectCount != accepted {
		t.Fatalf("accepted %d answers, stored %d, scored %d correct", accepted, len(view.Answers), view.Attempt.CorrectCount)
	}
}

func TestQuestionIngestDedupes(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, ctx)

	q := question(1)
	first, err := s.bank.Ingest(ctx, q)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	q.Text = "  " + strings.ToUpper(q.Text) + " "
	second, err := s.bank.Ingest(ctx, q)
	if err != nil {
		t.Fatalf("ingest again: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected dedupe by content hash, got %s and %s", first.ID, second.ID)
	}
	n, err := s.bank.Count(ctx, domain.QuestionFilter{Exam: "jee"})
	if err != nil || n != 1 {
		t.Fatalf("expected one question, got %d (%v)", n, err)
	}
}

func newStack(t *testing.T, ctx context.Context) *stack {
	t.Helper()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	t.Cleanup(pgCleanup)
	redisURL, redisCleanup := startRedis(t, ctx)
	t.Cleanup(redisCleanup)

	db := postgres.Open(pgURL)
	t.Cleanup(func() { db.Close() })
	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	t.Cleanup(pool.Close)

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	t.Cleanup(func() { redisClient.Close() })

	store := postgres.NewStore(db)
	bank := postgres.NewQuestionBank(pool)
	cache := infraredis.NewQuestionCache(redisClient, bank, 5*time.Minute)
	outbox := infraredis.NewOutbox(redisClient, "", time.Hour)
	s := &stack{store: store, bank: bank, outbox: outbox}
	settings := app.DefaultSettings()
	settings.Now = s.now
	s.ledger = app.NewLedger(store, settings)
	s.rooms = app.NewRoomService(store, cache, outbox, infraredis.NewRoomHub(redisClient), settings)
	s.attempts = app.NewAttemptService(store, cache, s.ledger, settings)
	s.tests = app.NewTestGenerator(store, cache, settings)
	s.sweeper = app.NewSweeper(store, s.rooms, infraredis.NewLocker(redisClient), settings)
	return s
}

func seedQuestions(t *testing.T, ctx context.Context, bank *postgres.QuestionBank, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		if _, err := bank.Ingest(ctx, question(i)); err != nil {
			t.Fatalf("ingest question %d: %v", i, err)
		}
	}
}

func question(i int) domain.Question {
	return domain.Question{
		Text: fmt.Sprintf("Question %d", i),
		Type: domain.QuestionMCQ,
		Options: []domain.Option{
			{Label: "A", Text: "right"},
			{Label: "B", Text: "wrong"},
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

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "arena", "POSTGRES_PASSWORD": "arenapass", "POSTGRES_DB": "arenadb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://arena:arenapass@%s:%s/arenadb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
