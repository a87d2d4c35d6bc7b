package memory

import (
	"context"
	"sync"

	"exam-arena-service/internal/app"
	"exam-arena-service/internal/domain"
)

// state is the whole relational dataset. Transactions work on a clone and swap it in on commit.
type state struct {
	students      map[string]domain.Student
	tests         map[string]domain.MockTest
	attempts      map[string]domain.Attempt
	answers       map[string]domain.Answer
	reviews       map[string]domain.ReviewEntry
	rooms         map[string]domain.Room
	roomQuestions map[string][]domain.RoomQuestion
	participants  map[string]domain.RoomParticipant
	partAttempts  map[string]domain.ParticipantAttempt
	xp            []domain.XPLog
	activity      map[string]domain.DailyActivity
	referrals     map[string]domain.Referral
}

func newState() *state {
	return &state{
		students:      make(map[string]domain.Student),
		tests:         make(map[string]domain.MockTest),
		attempts:      make(map[string]domain.Attempt),
		answers:       make(map[string]domain.Answer),
		reviews:       make(map[string]domain.ReviewEntry),
		rooms:         make(map[string]domain.Room),
		roomQuestions: make(map[string][]domain.RoomQuestion),
		participants:  make(map[string]domain.RoomParticipant),
		partAttempts:  make(map[string]domain.ParticipantAttempt),
		activity:      make(map[string]domain.DailyActivity),
		referrals:     make(map[string]domain.Referral),
	}
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (s *state) clone() *state {
	rq := make(map[string][]domain.RoomQuestion, len(s.roomQuestions))
	for k, v := range s.roomQuestions {
		rq[k] = append([]domain.RoomQuestion(nil), v...)
	}
	return &state{
		students:      cloneMap(s.students),
		tests:         cloneMap(s.tests),
		attempts:      cloneMap(s.attempts),
		answers:       cloneMap(s.answers),
		reviews:       cloneMap(s.reviews),
		rooms:         cloneMap(s.rooms),
		roomQuestions: rq,
		participants:  cloneMap(s.participants),
		partAttempts:  cloneMap(s.partAttempts),
		xp:            append([]domain.XPLog(nil), s.xp...),
		activity:      cloneMap(s.activity),
		referrals:     cloneMap(s.referrals),
	}
}

// Store is an in-memory implementation of app.Store. Transactions are serialized with a
// mutex and roll back by discarding the working copy.
type Store struct {
	mu sync.Mutex
	st *state

	// tx is set on the store handed to a WithinTx callback; it operates on st without locking.
	tx bool
}

var _ app.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{st: newState()}
}

func (s *Store) do(fn func(st *state) error) error {
	if s.tx {
		return fn(s.st)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

func (s *Store) WithinTx(ctx context.Context, fn func(app.Store) error) error {
	if s.tx {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := &Store{st: s.st.clone(), tx: true}
	if err := fn(work); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = work.st
	return nil
}

func (s *Store) Students() app.StudentRepository   { return studentRepo{s} }
func (s *Store) Tests() app.TestRepository         { return testRepo{s} }
func (s *Store) Attempts() app.AttemptRepository   { return attemptRepo{s} }
func (s *Store) Rooms() app.RoomRepository         { return roomRepo{s} }
func (s *Store) XP() app.XPRepository              { return xpRepo{s} }
func (s *Store) Activity() app.ActivityRepository  { return activityRepo{s} }
func (s *Store) Referrals() app.ReferralRepository { return referralRepo{s} }
