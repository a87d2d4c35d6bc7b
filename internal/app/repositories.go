package app

import (
	"context"
	"time"

	"exam-arena-service/internal/domain"
)

// QuestionBank is the read-mostly content catalog (Postgres, memory, or a cache in front of either).
type QuestionBank interface {
	Query(ctx context.Context, filter domain.QuestionFilter) ([]domain.Question, error)
	Count(ctx context.Context, filter domain.QuestionFilter) (int, error)
	Get(ctx context.Context, id string) (domain.Question, error)
	GetMany(ctx context.Context, ids []string) ([]domain.Question, error)
}

// Notifier enqueues notifications; delivery and read tracking belong to the outbox.
// Implementations drop repeats of a non-empty DedupeKey.
type Notifier interface {
	Enqueue(ctx context.Context, n domain.Notification) error
}

// RoomHub fans room events out to live subscribers.
type RoomHub interface {
	Publish(ctx context.Context, event domain.RoomEvent) error
	Subscribe(ctx context.Context, roomCode string) (<-chan domain.RoomEvent, func(), error)
}

// Store is the transactional unit of work over all relational state.
// WithinTx runs fn against a store bound to one transaction; nested calls join it.
type Store interface {
	Students() StudentRepository
	Tests() TestRepository
	Attempts() AttemptRepository
	Rooms() RoomRepository
	XP() XPRepository
	Activity() ActivityRepository
	Referrals() ReferralRepository
	WithinTx(ctx context.Context, fn func(Store) error) error
}

type StudentRepository interface {
	Get(ctx context.Context, id string) (domain.Student, error)
	// Ensure inserts the student when missing and returns the stored row.
	Ensure(ctx context.Context, s domain.Student) (domain.Student, error)
	FindByReferralCode(ctx context.Context, code string) (domain.Student, error)
	// DeductRoomCredit takes one credit or fails with domain.ErrInsufficientFunds.
	DeductRoomCredit(ctx context.Context, id string) error
	AddRoomCredits(ctx context.Context, id string, n int) error
	AddXP(ctx context.Context, id string, amount int) error
	SetTotalXP(ctx context.Context, id string, total int) error
	UpdateStreak(ctx context.Context, id string, current, max int) error
	SetReferralCreditsAwarded(ctx context.Context, id string, n int) error
	SetPhoneVerified(ctx context.Context, id string, verified bool) error
	TopByXP(ctx context.Context, limit int) ([]domain.Student, error)
}

type TestRepository interface {
	Create(ctx context.Context, t domain.MockTest) error
	Get(ctx context.Context, id string) (domain.MockTest, error)
}

type AttemptRepository interface {
	// CreateIfAbsent inserts the attempt unless one exists for (student, test); the stored
	// row is returned either way.
	CreateIfAbsent(ctx context.Context, a domain.Attempt) (domain.Attempt, bool, error)
	Get(ctx context.Context, id string) (domain.Attempt, error)
	// GetForUpdate is Get that also locks the attempt row until the transaction ends.
	GetForUpdate(ctx context.Context, id string) (domain.Attempt, error)
	UpsertAnswer(ctx context.Context, ans domain.Answer) (domain.Answer, error)
	ListAnswers(ctx context.Context, attemptID string) ([]domain.Answer, error)
	// Complete finalizes an incomplete attempt or returns domain.ErrAlreadySubmitted.
	Complete(ctx context.Context, a domain.Attempt) error
	// CompletedScoreCounts returns how many other completed attempts on the test score at
	// or below score, and how many other completed attempts there are.
	CompletedScoreCounts(ctx context.Context, testID, excludeAttemptID string, score float64) (int, int, error)
	CountCompletedBetween(ctx context.Context, studentID string, from, to time.Time) (int, error)
	ListCompleted(ctx context.Context, testID string, limit int) ([]domain.Attempt, error)
	AddReviewEntries(ctx context.Context, entries []domain.ReviewEntry) error
	ListReviewQuestionIDs(ctx context.Context, studentID string, limit int) ([]string, error)
}

type RoomRepository interface {
	Create(ctx context.Context, r domain.Room) error
	GetByCode(ctx context.Context, code string) (domain.Room, error)
	UpdateConfig(ctx context.Context, r domain.Room) error
	// TransitionStatus writes status and timestamps only when the stored status equals from.
	TransitionStatus(ctx context.Context, r domain.Room, from domain.RoomStatus) error
	// MarkResultsNotified flips the flag once and reports whether this call flipped it.
	MarkResultsNotified(ctx context.Context, roomID string) (bool, error)
	ListPublicWaiting(ctx context.Context, now time.Time, limit int) ([]domain.Room, error)
	// ListUnfinished returns open rooms past their expiry and completed rooms whose
	// results notifications have not all gone out.
	ListUnfinished(ctx context.Context, now time.Time, limit int) ([]domain.Room, error)

	ReplaceQuestions(ctx context.Context, roomID string, qs []domain.RoomQuestion) error
	ListQuestions(ctx context.Context, roomID string) ([]domain.RoomQuestion, error)

	AddParticipant(ctx context.Context, p domain.RoomParticipant) error
	GetParticipant(ctx context.Context, roomID, userID string) (domain.RoomParticipant, error)
	SetParticipantStatus(ctx context.Context, participantID string, status domain.ParticipantStatus, at time.Time) error
	ListParticipants(ctx context.Context, roomID string) ([]domain.RoomParticipant, error)
	CountJoined(ctx context.Context, roomID string) (int, error)
	// AssignSeed stores seed unless one is already set and returns the stored seed.
	AssignSeed(ctx context.Context, participantID string, seed int64) (int64, error)
	// StartClock stores at unless a start time is already set and returns the stored one.
	StartClock(ctx context.Context, participantID string, at time.Time) (time.Time, error)

	UpsertAttempt(ctx context.Context, a domain.ParticipantAttempt) (domain.ParticipantAttempt, error)
	ListAttempts(ctx context.Context, roomID string) ([]domain.ParticipantAttempt, error)
}

type XPRepository interface {
	Append(ctx context.Context, entry domain.XPLog) error
	Exists(ctx context.Context, q domain.XPQuery) (bool, error)
	Sum(ctx context.Context, q domain.XPQuery) (int, error)
	List(ctx context.Context, studentID string, limit int) ([]domain.XPLog, error)
}

type ActivityRepository interface {
	// Touch get-or-creates the row for the day, adds testsDelta and raises status to
	// present when status is present.
	Touch(ctx context.Context, studentID string, day time.Time, status domain.ActivityStatus, testsDelta int, now time.Time) error
	// ListDays returns activity rows newest first.
	ListDays(ctx context.Context, studentID string) ([]domain.DailyActivity, error)
}

type ReferralRepository interface {
	Create(ctx context.Context, r domain.Referral) error
	GetByReferred(ctx context.Context, referredID string) (domain.Referral, error)
	// Activate marks the referral active once and reports whether this call did it.
	Activate(ctx context.Context, referredID string, at time.Time) (bool, error)
	CountActive(ctx context.Context, referrerID string) (int, error)
}
