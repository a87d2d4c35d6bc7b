package app

import (
	"context"
	"strings"
	"time"

	"exam-arena-service/internal/domain"
	"github.com/google/uuid"
)

// Settings carries the tunables shared by the services.
type Settings struct {
	Now                 func() time.Time
	Location            *time.Location
	RoomExpiry          time.Duration
	InitialRoomCredits  int
	WeeklyGoal          int
	MinTimePerQuestion  time.Duration
	MaxTimePerQuestion  time.Duration
	MaxQuestionsPerRoom int
}

// DefaultSettings returns production defaults.
func DefaultSettings() Settings {
	return Settings{
		Now:                 time.Now,
		Location:            time.UTC,
		RoomExpiry:          24 * time.Hour,
		InitialRoomCredits:  1,
		WeeklyGoal:          5,
		MinTimePerQuestion:  30 * time.Second,
		MaxTimePerQuestion:  10 * time.Minute,
		MaxQuestionsPerRoom: 200,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.Now == nil {
		s.Now = d.Now
	}
	if s.Location == nil {
		s.Location = d.Location
	}
	if s.RoomExpiry <= 0 {
		s.RoomExpiry = d.RoomExpiry
	}
	if s.WeeklyGoal <= 0 {
		s.WeeklyGoal = d.WeeklyGoal
	}
	if s.MinTimePerQuestion <= 0 {
		s.MinTimePerQuestion = d.MinTimePerQuestion
	}
	if s.MaxTimePerQuestion <= 0 {
		s.MaxTimePerQuestion = d.MaxTimePerQuestion
	}
	if s.MaxQuestionsPerRoom <= 0 {
		s.MaxQuestionsPerRoom = d.MaxQuestionsPerRoom
	}
	return s
}

// calendarDay returns the date of t in loc as midnight UTC, the key used for daily activity rows.
func calendarDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// dayWindow returns the [start, end) instants of the calendar day containing t.
func dayWindow(t time.Time, loc *time.Location) (time.Time, time.Time) {
	y, m, d := t.In(loc).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// weekWindow returns the [start, end) instants of the Monday-based week containing t.
func weekWindow(t time.Time, loc *time.Location) (time.Time, time.Time) {
	start, _ := dayWindow(t, loc)
	offset := (int(start.Weekday()) + 6) % 7
	start = start.AddDate(0, 0, -offset)
	return start, start.AddDate(0, 0, 7)
}

func newID() string {
	return uuid.NewString()
}

// ensureStudent returns the local profile of the principal, provisioning it on first sight.
func ensureStudent(ctx context.Context, store Store, p domain.Principal, settings Settings) (domain.Student, error) {
	if p.UserID == "" {
		return domain.Student{}, domain.ErrUnauthorized
	}
	return store.Students().Ensure(ctx, domain.Student{
		ID:            p.UserID,
		Email:         p.Email,
		Name:          p.Name,
		PhoneVerified: p.PhoneVerified,
		RoomCredits:   settings.InitialRoomCredits,
		WeeklyGoal:    settings.WeeklyGoal,
		ReferralCode:  strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8]),
		CreatedAt:     settings.Now(),
	})
}
