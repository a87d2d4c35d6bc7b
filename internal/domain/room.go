package domain

import "time"

type RoomStatus string

const (
	RoomWaiting   RoomStatus = "waiting"
	RoomActive    RoomStatus = "active"
	RoomCompleted RoomStatus = "completed"
	// RoomLocked is reserved; nothing transitions into it.
	RoomLocked RoomStatus = "locked"
)

type AttemptMode string

const (
	AllAtOnce  AttemptMode = "ALL_AT_ONCE"
	Individual AttemptMode = "INDIVIDUAL"
)

type RandomizationMode string

const (
	RandomizeQuestions           RandomizationMode = "questions"
	RandomizeQuestionsAndOptions RandomizationMode = "questions_and_options"
)

type Privacy string

const (
	RoomPublic  Privacy = "public"
	RoomPrivate Privacy = "private"
)

type ParticipantStatus string

const (
	ParticipantJoined ParticipantStatus = "joined"
	ParticipantLeft   ParticipantStatus = "left"
	ParticipantKicked ParticipantStatus = "kicked"
)

// RoomConfig holds the host-chosen settings of a room.
type RoomConfig struct {
	Name                   string            `json:"name"`
	Exam                   string            `json:"exam"`
	Subjects               []string          `json:"subjects,omitempty"`
	Difficulty             string            `json:"difficulty,omitempty"`
	QuestionType           QuestionType      `json:"question_type,omitempty"`
	QuestionCount          int               `json:"question_count"`
	TimePerQuestionSeconds int               `json:"time_per_question_seconds"`
	Privacy                Privacy           `json:"privacy"`
	Password               string            `json:"password,omitempty"`
	AttemptMode            AttemptMode       `json:"attempt_mode"`
	RandomizationMode      RandomizationMode `json:"randomization_mode"`
	ParticipantLimit       int               `json:"participant_limit"`
}

// Filter maps the room selection settings onto a question bank filter.
func (c RoomConfig) Filter() QuestionFilter {
	difficulty := c.Difficulty
	if difficulty == "mixed" {
		difficulty = ""
	}
	qtype := c.QuestionType
	if qtype == "mixed" {
		qtype = ""
	}
	return QuestionFilter{
		Exam:       c.Exam,
		Subjects:   c.Subjects,
		Difficulty: difficulty,
		Type:       qtype,
	}
}

// Room is a tournament session.
type Room struct {
	ID                     string            `json:"id"`
	Code                   string            `json:"code"`
	Name                   string            `json:"name"`
	Exam                   string            `json:"exam"`
	Subjects               []string          `json:"subjects,omitempty"`
	Difficulty             string            `json:"difficulty,omitempty"`
	QuestionType           QuestionType      `json:"question_type,omitempty"`
	QuestionCount          int               `json:"question_count"`
	TimePerQuestionSeconds int               `json:"time_per_question_seconds"`
	DurationSeconds        int               `json:"duration_seconds"`
	Privacy                Privacy           `json:"privacy"`
	PasswordHash           string            `json:"-"`
	AttemptMode            AttemptMode       `json:"attempt_mode"`
	RandomizationMode      RandomizationMode `json:"randomization_mode"`
	ParticipantLimit       int               `json:"participant_limit"`
	Status                 RoomStatus        `json:"status"`
	HostID                 string            `json:"host_id"`
	StartTime              *time.Time        `json:"start_time,omitempty"`
	EndedAt                *time.Time        `json:"ended_at,omitempty"`
	ResultsNotified        bool              `json:"-"`
	CreatedAt              time.Time         `json:"created_at"`
	ExpiresAt              time.Time         `json:"expires_at"`
}

// Expired reports whether the 24h window has passed at now.
func (r Room) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Duration is the answering window of the room.
func (r Room) Duration() time.Duration {
	return time.Duration(r.DurationSeconds) * time.Second
}

// RoomParticipant is a user's membership in a room.
type RoomParticipant struct {
	ID        string            `json:"id"`
	RoomID    string            `json:"room_id"`
	UserID    string            `json:"user_id"`
	Name      string            `json:"name"`
	Status    ParticipantStatus `json:"status"`
	Seed      *int64            `json:"-"`
	StartTime *time.Time        `json:"start_time,omitempty"`
	JoinedAt  time.Time         `json:"joined_at"`
	LeftAt    *time.Time        `json:"left_at,omitempty"`
}

// RoomQuestion is a numbered slot in the room's fixed question set.
type RoomQuestion struct {
	ID         string   `json:"id"`
	RoomID     string   `json:"room_id"`
	QuestionID string   `json:"question_id"`
	Number     int      `json:"number"`
	Question   Question `json:"-"`
}

// ParticipantAttempt is one participant's answer to one room question.
type ParticipantAttempt struct {
	ID               string    `json:"id"`
	ParticipantID    string    `json:"participant_id"`
	RoomQuestionID   string    `json:"room_question_id"`
	SelectedAnswer   string    `json:"selected_answer"`
	IsCorrect        *bool     `json:"is_correct"`
	MarksObtained    float64   `json:"marks_obtained"`
	TimeSpentSeconds int       `json:"time_spent_seconds"`
	SubmittedAt      time.Time `json:"submitted_at"`
}

// StandingEntry is one ranked row of a room or test leaderboard.
type StandingEntry struct {
	Rank             int     `json:"rank"`
	UserID           string  `json:"user_id"`
	Name             string  `json:"name,omitempty"`
	Score            float64 `json:"score"`
	TotalMarks       float64 `json:"total_marks"`
	Percentage       float64 `json:"percentage"`
	Correct          int     `json:"correct"`
	Wrong            int     `json:"wrong"`
	Unanswered       int     `json:"unanswered"`
	TimeSpentSeconds int     `json:"time_spent_seconds"`
}

// RoomEvent is pushed to live subscribers of a room.
type RoomEvent struct {
	Type     string          `json:"type"`
	RoomCode string          `json:"room_code"`
	UserID   string          `json:"user_id,omitempty"`
	Status   RoomStatus      `json:"status,omitempty"`
	Answered int             `json:"answered,omitempty"`
	Entries  []StandingEntry `json:"entries,omitempty"`
	At       time.Time       `json:"at"`
}
