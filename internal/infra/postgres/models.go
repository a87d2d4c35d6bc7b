package postgres

import (
	"time"

	"exam-arena-service/internal/domain"
	"github.com/uptrace/bun"
)

type studentModel struct {
	bun.BaseModel `bun:"table:students"`

	ID                     string    `bun:"id,pk"`
	Email                  string    `bun:"email"`
	Name                   string    `bun:"name"`
	PhoneVerified          bool      `bun:"phone_verified"`
	RoomCredits            int       `bun:"room_credits"`
	TotalXP                int       `bun:"total_xp"`
	CurrentStreak          int       `bun:"current_streak"`
	MaxStreak              int       `bun:"max_streak"`
	WeeklyGoal             int       `bun:"weekly_goal"`
	ReferralCode           string    `bun:"referral_code"`
	ReferralCreditsAwarded int       `bun:"referral_credits_awarded"`
	CreatedAt              time.Time `bun:"created_at"`
}

func (m studentModel) toDomain() domain.Student {
	return domain.Student{
		ID:                     m.ID,
		Email:                  m.Email,
		Name:                   m.Name,
		PhoneVerified:          m.PhoneVerified,
		RoomCredits:            m.RoomCredits,
		TotalXP:                m.TotalXP,
		CurrentStreak:          m.CurrentStreak,
		MaxStreak:              m.MaxStreak,
		WeeklyGoal:             m.WeeklyGoal,
		ReferralCode:           m.ReferralCode,
		ReferralCreditsAwarded: m.ReferralCreditsAwarded,
		CreatedAt:              m.CreatedAt,
	}
}

func newStudentModel(s domain.Student) *studentModel {
	return &studentModel{
		ID:                     s.ID,
		Email:                  s.Email,
		Name:                   s.Name,
		PhoneVerified:          s.PhoneVerified,
		RoomCredits:            s.RoomCredits,
		TotalXP:                s.TotalXP,
		CurrentStreak:          s.CurrentStreak,
		MaxStreak:              s.MaxStreak,
		WeeklyGoal:             s.WeeklyGoal,
		ReferralCode:           s.ReferralCode,
		ReferralCreditsAwarded: s.ReferralCreditsAwarded,
		CreatedAt:              s.CreatedAt,
	}
}

type testModel struct {
	bun.BaseModel `bun:"table:mock_tests"`

	ID              string    `bun:"id,pk"`
	Name            string    `bun:"name"`
	Slug            string    `bun:"slug"`
	Kind            string    `bun:"kind"`
	Exam            string    `bun:"exam"`
	QuestionIDs     []string  `bun:"question_ids,array"`
	TotalMarks      float64   `bun:"total_marks"`
	DurationMinutes int       `bun:"duration_minutes"`
	CreatedBy       string    `bun:"created_by,nullzero"`
	CreatedAt       time.Time `bun:"created_at"`
}

func (m testModel) toDomain() domain.MockTest {
	return domain.MockTest{
		ID:              m.ID,
		Name:            m.Name,
		Slug:            m.Slug,
		Kind:            domain.TestKind(m.Kind),
		Exam:            m.Exam,
		QuestionIDs:     m.QuestionIDs,
		TotalMarks:      m.TotalMarks,
		DurationMinutes: m.DurationMinutes,
		CreatedBy:       m.CreatedBy,
		CreatedAt:       m.CreatedAt,
	}
}

func newTestModel(t domain.MockTest) *testModel {
	return &testModel{
		ID:              t.ID,
		Name:            t.Name,
		Slug:            t.Slug,
		Kind:            string(t.Kind),
		Exam:            t.Exam,
		QuestionIDs:     t.QuestionIDs,
		TotalMarks:      t.TotalMarks,
		DurationMinutes: t.DurationMinutes,
		CreatedBy:       t.CreatedBy,
		CreatedAt:       t.CreatedAt,
	}
}

type attemptModel struct {
	bun.BaseModel `bun:"table:test_attempts"`

	ID               string     `bun:"id,pk"`
	StudentID        string     `bun:"student_id"`
	TestID           string     `bun:"test_id"`
	Score            float64    `bun:"score"`
	TotalMarks       float64    `bun:"total_marks"`
	Percentage       float64    `bun:"percentage"`
	Percentile       float64    `bun:"percentile"`
	CorrectCount     int        `bun:"correct_count"`
	WrongCount       int        `bun:"wrong_count"`
	UnansweredCount  int        `bun:"unanswered_count"`
	TimeTakenSeconds int        `bun:"time_taken_seconds"`
	StartedAt        time.Time  `bun:"started_at"`
	CompletedAt      *time.Time `bun:"completed_at"`
	Completed        bool       `bun:"completed"`
}

func (m attemptModel) toDomain() domain.Attempt {
	return domain.Attempt{
		ID:               m.ID,
		StudentID:        m.StudentID,
		TestID:           m.TestID,
		Score:            m.Score,
		TotalMarks:       m.TotalMarks,
		Percentage:       m.Percentage,
		Percentile:       m.Percentile,
		CorrectCount:     m.CorrectCount,
		WrongCount:       m.WrongCount,
		UnansweredCount:  m.UnansweredCount,
		TimeTakenSeconds: m.TimeTakenSeconds,
		StartedAt:        m.StartedAt,
		CompletedAt:      m.CompletedAt,
		Completed:        m.Completed,
	}
}

func newAttemptModel(a domain.Attempt) *attemptModel {
	return &attemptModel{
		ID:               a.ID,
		StudentID:        a.StudentID,
		TestID:           a.TestID,
		Score:            a.Score,
		TotalMarks:       a.TotalMarks,
		Percentage:       a.Percentage,
		Percentile:       a.Percentile,
		CorrectCount:     a.CorrectCount,
		WrongCount:       a.WrongCount,
		UnansweredCount:  a.UnansweredCount,
		TimeTakenSeconds: a.TimeTakenSeconds,
		StartedAt:        a.StartedAt,
		CompletedAt:      a.CompletedAt,
		Completed:        a.Completed,
	}
}

type answerModel struct {
	bun.BaseModel `bun:"table:attempt_answers"`

	ID             string    `bun:"id,pk"`
	AttemptID      string    `bun:"attempt_id"`
	QuestionID     string    `bun:"question_id"`
	SelectedAnswer string    `bun:"selected_answer"`
	IsCorrect      *bool     `bun:"is_correct"`
	MarksObtained  float64   `bun:"marks_obtained"`
	AnsweredAt     time.Time `bun:"answered_at"`
}

func (m answerModel) toDomain() domain.Answer {
	return domain.Answer{
		ID:             m.ID,
		AttemptID:      m.AttemptID,
		QuestionID:     m.QuestionID,
		SelectedAnswer: m.SelectedAnswer,
		IsCorrect:      m.IsCorrect,
		MarksObtained:  m.MarksObtained,
		AnsweredAt:     m.AnsweredAt,
	}
}

type reviewModel struct {
	bun.BaseModel `bun:"table:review_entries"`

	StudentID  string    `bun:"student_id"`
	QuestionID string    `bun:"question_id"`
	AttemptID  string    `bun:"attempt_id"`
	Reason     string    `bun:"reason"`
	CreatedAt  time.Time `bun:"created_at"`
}

type activityModel struct {
	bun.BaseModel `bun:"table:daily_activity,alias:da"`

	StudentID      string    `bun:"student_id"`
	Day            time.Time `bun:"day,type:date"`
	Status         string    `bun:"status"`
	TestsCompleted int       `bun:"tests_completed"`
	UpdatedAt      time.Time `bun:"updated_at"`
}

type xpLogModel struct {
	bun.BaseModel `bun:"table:xp_logs"`

	ID         string    `bun:"id,pk"`
	StudentID  string    `bun:"student_id"`
	Amount     int       `bun:"amount"`
	Action     string    `bun:"action"`
	SourceType string    `bun:"source_type"`
	SourceID   string    `bun:"source_id"`
	CreatedAt  time.Time `bun:"created_at"`
}

type referralModel struct {
	bun.BaseModel `bun:"table:referrals"`

	ReferrerID  string     `bun:"referrer_id"`
	ReferredID  string     `bun:"referred_id,pk"`
	Active      bool       `bun:"active"`
	CreatedAt   time.Time  `bun:"created_at"`
	ActivatedAt *time.Time `bun:"activated_at"`
}

type roomModel struct {
	bun.BaseModel `bun:"table:rooms"`

	ID                     string     `bun:"id,pk"`
	Code                   string     `bun:"code"`
	Name                   string     `bun:"name"`
	Exam                   string     `bun:"exam"`
	Subjects               []string   `bun:"subjects,array"`
	Difficulty             string     `bun:"difficulty"`
	QuestionType           string     `bun:"question_type"`
	QuestionCount          int        `bun:"question_count"`
	TimePerQuestionSeconds int        `bun:"time_per_question_seconds"`
	DurationSeconds        int        `bun:"duration_seconds"`
	Privacy                string     `bun:"privacy"`
	PasswordHash           string     `bun:"password_hash"`
	AttemptMode            string     `bun:"attempt_mode"`
	RandomizationMode      string     `bun:"randomization_mode"`
	ParticipantLimit       int        `bun:"participant_limit"`
	Status                 string     `bun:"status"`
	HostID                 string     `bun:"host_id"`
	StartTime              *time.Time `bun:"start_time"`
	EndedAt                *time.Time `bun:"ended_at"`
	ResultsNotified        bool       `bun:"results_notified"`
	CreatedAt              time.Time  `bun:"created_at"`
	ExpiresAt              time.Time  `bun:"expires_at"`
}

func (m roomModel) toDomain() domain.Room {
	return domain.Room{
		ID:                     m.ID,
		Code:                   m.Code,
		Name:                   m.Name,
		Exam:                   m.Exam,
		Subjects:               m.Subjects,
		Difficulty:             m.Difficulty,
		QuestionType:           domain.QuestionType(m.QuestionType),
		QuestionCount:          m.QuestionCount,
		TimePerQuestionSeconds: m.TimePerQuestionSeconds,
		DurationSeconds:        m.DurationSeconds,
		Privacy:                domain.Privacy(m.Privacy),
		PasswordHash:           m.PasswordHash,
		AttemptMode:            domain.AttemptMode(m.AttemptMode),
		RandomizationMode:      domain.RandomizationMode(m.RandomizationMode),
		ParticipantLimit:       m.ParticipantLimit,
		Status:                 domain.RoomStatus(m.Status),
		HostID:                 m.HostID,
		StartTime:              m.StartTime,
		EndedAt:                m.EndedAt,
		ResultsNotified:        m.ResultsNotified,
		CreatedAt:              m.CreatedAt,
		ExpiresAt:              m.ExpiresAt,
	}
}

func newRoomModel(r domain.Room) *roomModel {
	return &roomModel{
		ID:                     r.ID,
		Code:                   r.Code,
		Name:                   r.Name,
		Exam:                   r.Exam,
		Subjects:               r.Subjects,
		Difficulty:             r.Difficulty,
		QuestionType:           string(r.QuestionType),
		QuestionCount:          r.QuestionCount,
		TimePerQuestionSeconds: r.TimePerQuestionSeconds,
		DurationSeconds:        r.DurationSeconds,
		Privacy:                string(r.Privacy),
		PasswordHash:           r.PasswordHash,
		AttemptMode:            string(r.AttemptMode),
		RandomizationMode:      string(r.RandomizationMode),
		ParticipantLimit:       r.ParticipantLimit,
		Status:                 string(r.Status),
		HostID:                 r.HostID,
		StartTime:              r.StartTime,
		EndedAt:                r.EndedAt,
		ResultsNotified:        r.ResultsNotified,
		CreatedAt:              r.CreatedAt,
		ExpiresAt:              r.ExpiresAt,
	}
}

type roomQuestionModel struct {
	bun.BaseModel `bun:"table:room_questions"`

	ID         string `bun:"id,pk"`
	RoomID     string `bun:"room_id"`
	QuestionID string `bun:"question_id"`
	Number     int    `bun:"number"`
}

type participantModel struct {
	bun.BaseModel `bun:"table:room_participants"`

	ID        string     `bun:"id,pk"`
	RoomID    string     `bun:"room_id"`
	UserID    string     `bun:"user_id"`
	Name      string     `bun:"name"`
	Status    string     `bun:"status"`
	Seed      *int64     `bun:"seed"`
	StartTime *time.Time `bun:"start_time"`
	JoinedAt  time.Time  `bun:"joined_at"`
	LeftAt    *time.Time `bun:"left_at"`
}

func (m participantModel) toDomain() domain.RoomParticipant {
	return domain.RoomParticipant{
		ID:        m.ID,
		RoomID:    m.RoomID,
		UserID:    m.UserID,
		Name:      m.Name,
		Status:    domain.ParticipantStatus(m.Status),
		Seed:      m.Seed,
		StartTime: m.StartTime,
		JoinedAt:  m.JoinedAt,
		LeftAt:    m.LeftAt,
	}
}

type participantAttemptModel struct {
	bun.BaseModel `bun:"table:participant_attempts,alias:pa"`

	ID               string    `bun:"id,pk"`
	ParticipantID    string    `bun:"participant_id"`
	RoomQuestionID   string    `bun:"room_question_id"`
	SelectedAnswer   string    `bun:"selected_answer"`
	IsCorrect        *bool     `bun:"is_correct"`
	MarksObtained    float64   `bun:"marks_obtained"`
	TimeSpentSeconds int       `bun:"time_spent_seconds"`
	SubmittedAt      time.Time `bun:"submitted_at"`
}

func (m participantAttemptModel) toDomain() domain.ParticipantAttempt {
	return domain.ParticipantAttempt{
		ID:               m.ID,
		ParticipantID:    m.ParticipantID,
		RoomQuestionID:   m.RoomQuestionID,
		SelectedAnswer:   m.SelectedAnswer,
		IsCorrect:        m.IsCorrect,
		MarksObtained:    m.MarksObtained,
		TimeSpentSeconds: m.TimeSpentSeconds,
		SubmittedAt:      m.SubmittedAt,
	}
}
