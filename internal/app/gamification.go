package app

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"exam-arena-service/internal/domain"
)

// XP sources.
const (
	SourceTestCompletion = "test_completion"
	SourceTask           = "task"
	SourceStreak         = "streak"
)

// Tasks with fixed bonuses.
const (
	TaskFirstTestOfDay = "first_test_of_day"
	TaskWeeklyGoal     = "weekly_goal"
	TaskReview         = "review"
)

const (
	firstCompletionXP  = 10
	laterCompletionXP  = 5
	dailyCompletionCap = 20
	streakFiveBonus    = 25
	streakTenBonus     = 50
)

type taskRule struct {
	reward int
	weekly bool
}

var taskRules = map[string]taskRule{
	TaskFirstTestOfDay: {reward: 50},
	TaskWeeklyGoal:     {reward: 30, weekly: true},
	TaskReview:         {reward: 20},
}

// XPAward summarizes what a single completion earned.
type XPAward struct {
	Completion int      `json:"completion"`
	Bonuses    int      `json:"bonuses"`
	Tasks      []string `json:"tasks,omitempty"`
	Streak     int      `json:"streak"`
}

// Total is everything granted by the completion.
func (a XPAward) Total() int { return a.Completion + a.Bonuses }

// TaskResult is returned by explicit task completions.
type TaskResult struct {
	Task    string `json:"task"`
	Granted int    `json:"granted"`
	Message string `json:"message"`
}

// XPSummary is the student-facing gamification view.
type XPSummary struct {
	TotalXP       int            `json:"total_xp"`
	CurrentStreak int            `json:"current_streak"`
	MaxStreak     int            `json:"max_streak"`
	TodayXP       int            `json:"today_xp"`
	Recent        []domain.XPLog `json:"recent"`
}

// Ledger grants XP through idempotency-guarded log writes and keeps the profile total in step.
type Ledger struct {
	store    Store
	settings Settings
}

func NewLedger(store Store, settings Settings) *Ledger {
	return &Ledger{store: store, settings: settings.withDefaults()}
}

// grant appends the log entry and bumps the materialized total in the caller's transaction.
func (l *Ledger) grant(ctx context.Context, tx Store, entry domain.XPLog) error {
	if entry.Amount <= 0 {
		return nil
	}
	if entry.ID == "" {
		entry.ID = newID()
	}
	if err := tx.XP().Append(ctx, entry); err != nil {
		return fmt.Errorf("append xp log: %w", err)
	}
	if err := tx.Students().AddXP(ctx, entry.StudentID, entry.Amount); err != nil {
		return fmt.Errorf("add xp: %w", err)
	}
	return nil
}

// awardCompletion grants 10 XP for the first completed test of the day, 5 for later ones,
// never more than 20 per day from completions.
func (l *Ledger) awardCompletion(ctx context.Context, tx Store, studentID, attemptID string, at time.Time) (int, error) {
	already, err := tx.XP().Exists(ctx, domain.XPQuery{StudentID: studentID, SourceType: SourceTestCompletion, SourceID: attemptID})
	if err != nil || already {
		return 0, err
	}

	from, to := dayWindow(at, l.settings.Location)
	today := domain.XPQuery{StudentID: studentID, SourceType: SourceTestCompletion, From: from, To: to}
	earned, err := tx.XP().Sum(ctx, today)
	if err != nil {
		return 0, err
	}
	if earned >= dailyCompletionCap {
		return 0, nil
	}
	amount := laterCompletionXP
	if earlier, err := tx.XP().Exists(ctx, today); err != nil {
		return 0, err
	} else if !earlier {
		amount = firstCompletionXP
	}
	if amount > dailyCompletionCap-earned {
		amount = dailyCompletionCap - earned
	}

	err = l.grant(ctx, tx, domain.XPLog{
		StudentID:  studentID,
		Amount:     amount,
		Action:     "completed test",
		SourceType: SourceTestCompletion,
		SourceID:   attemptID,
		CreatedAt:  at,
	})
	return amount, err
}

// completeTask grants a task bonus once per day or week. It reports false when already granted.
func (l *Ledger) completeTask(ctx context.Context, tx Store, studentID, task string, at time.Time) (int, bool, error) {
	rule, ok := taskRules[task]
	if !ok {
		return 0, false, domain.Validationf("unknown task %q", task)
	}
	from, to := dayWindow(at, l.settings.Location)
	window := from.Format("2006-01-02")
	if rule.weekly {
		from, to = weekWindow(at, l.settings.Location)
		year, week := from.ISOWeek()
		window = fmt.Sprintf("%d-W%02d", year, week)
	}

	done, err := tx.XP().Exists(ctx, domain.XPQuery{StudentID: studentID, SourceType: SourceTask, Action: task, From: from, To: to})
	if err != nil {
		return 0, false, err
	}
	if done {
		return 0, false, nil
	}
	err = l.grant(ctx, tx, domain.XPLog{
		StudentID:  studentID,
		Amount:     rule.reward,
		Action:     task,
		SourceType: SourceTask,
		SourceID:   task + ":" + window,
		CreatedAt:  at,
	})
	if err != nil {
		return 0, false, err
	}
	return rule.reward, true, nil
}

// refreshStreak recomputes streaks from daily activity, stores them, and grants the
// 5 and 10 day bonuses once per day when the current streak sits on a milestone.
func (l *Ledger) refreshStreak(ctx context.Context, tx Store, studentID string, at time.Time) (int, int, error) {
	days, err := tx.Activity().ListDays(ctx, studentID)
	if err != nil {
		return 0, 0, err
	}
	current, longest := ComputeStreak(days, calendarDay(at, l.settings.Location))
	if err := tx.Students().UpdateStreak(ctx, studentID, current, longest); err != nil {
		return 0, 0, err
	}

	var action string
	var amount int
	switch current {
	case 5:
		action, amount = "streak_5", streakFiveBonus
	case 10:
		action, amount = "streak_10", streakTenBonus
	default:
		return current, longest, nil
	}

	from, to := dayWindow(at, l.settings.Location)
	granted, err := tx.XP().Exists(ctx, domain.XPQuery{StudentID: studentID, SourceType: SourceStreak, Action: action, From: from, To: to})
	if err != nil || granted {
		return current, longest, err
	}
	err = l.grant(ctx, tx, domain.XPLog{
		StudentID:  studentID,
		Amount:     amount,
		Action:     action,
		SourceType: SourceStreak,
		SourceID:   action + ":" + from.Format("2006-01-02"),
		CreatedAt:  at,
	})
	return current, longest, err
}

// OnTestCompleted runs every gamification side effect of a finalized attempt inside tx.
func (l *Ledger) OnTestCompleted(ctx context.Context, tx Store, studentID, attemptID string, at time.Time) (XPAward, error) {
	var award XPAward

	if err := tx.Activity().Touch(ctx, studentID, calendarDay(at, l.settings.Location), domain.ActivityPresent, 1, at); err != nil {
		return award, fmt.Errorf("touch daily activity: %w", err)
	}

	amount, err := l.awardCompletion(ctx, tx, studentID, attemptID, at)
	if err != nil {
		return award, err
	}
	award.Completion = amount

	granted, ok, err := l.completeTask(ctx, tx, studentID, TaskFirstTestOfDay, at)
	if err != nil {
		return award, err
	}
	if ok {
		award.Bonuses += granted
		award.Tasks = append(award.Tasks, TaskFirstTestOfDay)
	}

	student, err := tx.Students().Get(ctx, studentID)
	if err != nil {
		return award, err
	}
	goal := student.WeeklyGoal
	if goal <= 0 {
		goal = l.settings.WeeklyGoal
	}
	from, to := weekWindow(at, l.settings.Location)
	completed, err := tx.Attempts().CountCompletedBetween(ctx, studentID, from, to)
	if err != nil {
		return award, err
	}
	if completed >= goal {
		granted, ok, err := l.completeTask(ctx, tx, studentID, TaskWeeklyGoal, at)
		if err != nil {
			return award, err
		}
		if ok {
			award.Bonuses += granted
			award.Tasks = append(award.Tasks, TaskWeeklyGoal)
		}
	}

	before, err := tx.XP().Sum(ctx, domain.XPQuery{StudentID: studentID, SourceType: SourceStreak})
	if err != nil {
		return award, err
	}
	streak, _, err := l.refreshStreak(ctx, tx, studentID, at)
	if err != nil {
		return award, err
	}
	after, err := tx.XP().Sum(ctx, domain.XPQuery{StudentID: studentID, SourceType: SourceStreak})
	if err != nil {
		return award, err
	}
	award.Bonuses += after - before
	award.Streak = streak
	return award, nil
}

// CompleteTask is the explicit task endpoint. Only the review task can be claimed by hand;
// the others are earned by completing tests.
func (l *Ledger) CompleteTask(ctx context.Context, p domain.Principal, task string) (TaskResult, error) {
	if task != TaskReview {
		if _, ok := taskRules[task]; ok {
			return TaskResult{}, domain.Validationf("task %q is granted automatically", task)
		}
		return TaskResult{}, domain.Validationf("unknown task %q", task)
	}
	if _, err := ensureStudent(ctx, l.store, p, l.settings); err != nil {
		return TaskResult{}, err
	}

	result := TaskResult{Task: task}
	now := l.settings.Now()
	err := l.store.WithinTx(ctx, func(tx Store) error {
		if err := tx.Activity().Touch(ctx, p.UserID, calendarDay(now, l.settings.Location), domain.ActivityPartial, 0, now); err != nil {
			return err
		}
		granted, ok, err := l.completeTask(ctx, tx, p.UserID, task, now)
		if err != nil {
			return err
		}
		if !ok {
			result.Message = "task already completed"
			return nil
		}
		result.Granted = granted
		result.Message = "task completed"
		_, _, err = l.refreshStreak(ctx, tx, p.UserID, now)
		return err
	})
	return result, err
}

// Summary returns totals, streaks and the most recent ledger entries.
func (l *Ledger) Summary(ctx context.Context, p domain.Principal, recent int) (XPSummary, error) {
	student, err := ensureStudent(ctx, l.store, p, l.settings)
	if err != nil {
		return XPSummary{}, err
	}
	from, to := dayWindow(l.settings.Now(), l.settings.Location)
	today, err := l.store.XP().Sum(ctx, domain.XPQuery{StudentID: p.UserID, From: from, To: to})
	if err != nil {
		return XPSummary{}, err
	}
	logs, err := l.store.XP().List(ctx, p.UserID, recent)
	if err != nil {
		return XPSummary{}, err
	}
	return XPSummary{
		TotalXP:       student.TotalXP,
		CurrentStreak: student.CurrentStreak,
		MaxStreak:     student.MaxStreak,
		TodayXP:       today,
		Recent:        logs,
	}, nil
}

// TopByXP returns the global XP leaderboard.
func (l *Ledger) TopByXP(ctx context.Context, limit int) ([]domain.Student, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return l.store.Students().TopByXP(ctx, limit)
}

// Reconcile recomputes the total from the log and repairs the profile counter.
// It returns the stored total before the repair and the ledger sum.
func (l *Ledger) Reconcile(ctx context.Context, studentID string) (int, int, error) {
	var before, sum int
	err := l.store.WithinTx(ctx, func(tx Store) error {
		student, err := tx.Students().Get(ctx, studentID)
		if err != nil {
			return err
		}
		before = student.TotalXP
		sum, err = tx.XP().Sum(ctx, domain.XPQuery{StudentID: studentID})
		if err != nil {
			return err
		}
		if sum == before {
			return nil
		}
		log.Printf("xp drift for student %s: total=%d ledger=%d", studentID, before, sum)
		return tx.Students().SetTotalXP(ctx, studentID, sum)
	})
	return before, sum, err
}

// ComputeStreak walks activity days backward from today. A missing today does not break
// the streak until the day is over, so the walk then starts at yesterday. longest is the
// longest run of consecutive active days in the whole history.
func ComputeStreak(days []domain.DailyActivity, today time.Time) (current, longest int) {
	active := make(map[time.Time]bool, len(days))
	dates := make([]time.Time, 0, len(days))
	for _, d := range days {
		if d.Status != domain.ActivityPresent && d.Status != domain.ActivityPartial {
			continue
		}
		key := calendarDay(d.Day, time.UTC)
		if !active[key] {
			active[key] = true
			dates = append(dates, key)
		}
	}

	cursor := calendarDay(today, time.UTC)
	if !active[cursor] {
		cursor = cursor.AddDate(0, 0, -1)
	}
	for active[cursor] {
		current++
		cursor = cursor.AddDate(0, 0, -1)
	}

	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	run := 0
	for i, d := range dates {
		if i > 0 && dates[i-1].AddDate(0, 0, 1).Equal(d) {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
	}
	return current, longest
}
