package domain

import "time"

// QuestionType distinguishes choice questions from numeric-entry questions.
type QuestionType string

const (
	QuestionMCQ       QuestionType = "mcq"
	QuestionNumerical QuestionType = "numerical"
)

// Option is one labelled choice of an MCQ question.
type Option struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// Question is an immutable content unit from the question bank.
type Question struct {
	ID            string       `json:"id"`
	Hash          string       `json:"hash"`
	Text          string       `json:"text"`
	Type          QuestionType `json:"type"`
	Options       []Option     `json:"options,omitempty"`
	CorrectAnswer string       `json:"correct_answer"`
	Marks         float64      `json:"marks"`
	NegativeMarks float64      `json:"negative_marks"`
	Difficulty    string       `json:"difficulty"`
	Subject       string       `json:"subject"`
	Topic         string       `json:"topic"`
	Exam          string       `json:"exam"`
	Year          int          `json:"year"`
	Active        bool         `json:"active"`
	CreatedAt     time.Time    `json:"created_at"`
}

// QuestionFilter narrows a question bank query. Empty fields match everything.
type QuestionFilter struct {
	Exam       string
	Years      []int
	Subjects   []string
	Difficulty string
	Type       QuestionType
	ExcludeIDs []string
}

// TestKind records how a mock test was produced.
type TestKind string

const (
	TestCurated       TestKind = "curated"
	TestPractice      TestKind = "practice"
	TestCustom        TestKind = "custom"
	TestMistakeReview TestKind = "mistake_review"
)

// MockTest is a named ordered collection of questions.
type MockTest struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Slug            string    `json:"slug"`
	Kind            TestKind  `json:"kind"`
	Exam            string    `json:"exam"`
	QuestionIDs     []string  `json:"question_ids"`
	TotalMarks      float64   `json:"total_marks"`
	DurationMinutes int       `json:"duration_minutes"`
	CreatedBy       string    `json:"created_by,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// AttemptStatus is derived from the attempt row; not_started means no row exists yet.
type AttemptStatus string

const (
	AttemptNotStarted AttemptStatus = "not_started"
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptCompleted  AttemptStatus = "completed"
)

// Attempt is one student's run through one mock test.
type Attempt struct {
	ID               string     `json:"id"`
	StudentID        string     `json:"student_id"`
	TestID           string     `json:"test_id"`
	Score            float64    `json:"score"`
	TotalMarks       float64    `json:"total_marks"`
	Percentage       float64    `json:"percentage"`
	Percentile       float64    `json:"percentile"`
	CorrectCount     int        `json:"correct_count"`
	WrongCount       int        `json:"wrong_count"`
	UnansweredCount  int        `json:"unanswered_count"`
	TimeTakenSeconds int        `json:"time_taken_seconds"`
	StartedAt        time.Time  `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	Completed        bool       `json:"completed"`
}

// Status reports the state machine position of the attempt.
func (a Attempt) Status() AttemptStatus {
	if a.Completed {
		return AttemptCompleted
	}
	return AttemptInProgress
}

// Answer is the response to one question within one attempt.
type Answer struct {
	ID             string    `json:"id"`
	AttemptID      string    `json:"attempt_id"`
	QuestionID     string    `json:"question_id"`
	SelectedAnswer string    `json:"selected_answer"`
	IsCorrect      *bool     `json:"is_correct"`
	MarksObtained  float64   `json:"marks_obtained"`
	AnsweredAt     time.Time `json:"answered_at"`
}

// ReviewReason tells why a question landed in the mistake log.
type ReviewReason string

const (
	ReviewIncorrect  ReviewReason = "incorrect"
	ReviewUnanswered ReviewReason = "unanswered"
)

// ReviewEntry logs a question a student got wrong or skipped.
type ReviewEntry struct {
	StudentID  string       `json:"student_id"`
	QuestionID string       `json:"question_id"`
	AttemptID  string       `json:"attempt_id"`
	Reason     ReviewReason `json:"reason"`
	CreatedAt  time.Time    `json:"created_at"`
}

// ActivityStatus marks how a student showed up on a given day.
type ActivityStatus string

const (
	ActivityPresent ActivityStatus = "present"
	ActivityPartial ActivityStatus = "partial"
)

// DailyActivity is one row per (student, day).
type DailyActivity struct {
	StudentID      string         `json:"student_id"`
	Day            time.Time      `json:"day"`
	Status         ActivityStatus `json:"status"`
	TestsCompleted int            `json:"tests_completed"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Student is the local profile projection of an authenticated principal.
type Student struct {
	ID                     string    `json:"id"`
	Email                  string    `json:"email"`
	Name                   string    `json:"name"`
	PhoneVerified          bool      `json:"phone_verified"`
	RoomCredits            int       `json:"room_credits"`
	TotalXP                int       `json:"total_xp"`
	CurrentStreak          int       `json:"current_streak"`
	MaxStreak              int       `json:"max_streak"`
	WeeklyGoal             int       `json:"weekly_goal"`
	ReferralCode           string    `json:"referral_code"`
	ReferralCreditsAwarded int       `json:"referral_credits_awarded"`
	CreatedAt              time.Time `json:"created_at"`
}

// Principal is the authenticated caller as supplied by the identity provider.
type Principal struct {
	UserID        string
	Email         string
	Name          string
	PhoneVerified bool
}

// Referral links a new student to the student whose code they used.
type Referral struct {
	ReferrerID  string     `json:"referrer_id"`
	ReferredID  string     `json:"referred_id"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"created_at"`
	ActivatedAt *time.Time `json:"activated_at,omitempty"`
}

// XPLog is one append-only ledger entry.
type XPLog struct {
	ID         string    `json:"id"`
	StudentID  string    `json:"student_id"`
	Amount     int       `json:"amount"`
	Action     string    `json:"action"`
	SourceType string    `json:"source_type"`
	SourceID   string    `json:"source_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// XPQuery selects ledger entries for idempotency checks and daily sums.
// Zero From/To leave the window open on that side.
type XPQuery struct {
	StudentID  string
	SourceType string
	SourceID   string
	Action     string
	From       time.Time
	To         time.Time
}

// Notification is a message enqueued for delivery to one user.
type Notification struct {
	UserID     string            `json:"user_id"`
	Category   string            `json:"category"`
	Message    string            `json:"message"`
	ActionType string            `json:"action_type,omitempty"`
	ActionData map[string]string `json:"action_data,omitempty"`
	DedupeKey  string            `json:"dedupe_key,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}
