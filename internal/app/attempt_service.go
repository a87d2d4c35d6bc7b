package app

import (
	"context"
	"fmt"
	"log"
	"strings"

	"exam-arena-service/internal/domain"
	"exam-arena-service/internal/ranking"
	"exam-arena-service/internal/scoring"
)

// AttemptView is an attempt together with its answers.
type AttemptView struct {
	domain.Attempt
	Status  domain.AttemptStatus `json:"status"`
	Answers []domain.Answer      `json:"answers"`
}

// SubmitResult is the outcome of finalizing an attempt.
type SubmitResult struct {
	Attempt domain.Attempt `json:"attempt"`
	XP      XPAward        `json:"xp"`
}

// AttemptService drives a single student's attempt through not_started, in_progress and completed.
type AttemptService struct {
	store    Store
	bank     QuestionBank
	ledger   *Ledger
	settings Settings
}

func NewAttemptService(store Store, bank QuestionBank, ledger *Ledger, settings Settings) *AttemptService {
	return &AttemptService{store: store, bank: bank, ledger: ledger, settings: settings.withDefaults()}
}

// Start returns the caller's open attempt on the test, creating it on first access.
func (s *AttemptService) Start(ctx context.Context, p domain.Principal, testID string) (domain.Attempt, error) {
	if strings.TrimSpace(testID) == "" {
		return domain.Attempt{}, domain.Validationf("test_id is required")
	}
	if _, err := ensureStudent(ctx, s.store, p, s.settings); err != nil {
		return domain.Attempt{}, err
	}
	test, err := s.store.Tests().Get(ctx, testID)
	if err != nil {
		return domain.Attempt{}, err
	}

	attempt, created, err := s.store.Attempts().CreateIfAbsent(ctx, domain.Attempt{
		ID:         newID(),
		StudentID:  p.UserID,
		TestID:     test.ID,
		TotalMarks: test.TotalMarks,
		StartedAt:  s.settings.Now(),
	})
	if err != nil {
		return domain.Attempt{}, err
	}
	if attempt.Completed {
		return attempt, &domain.StateError{
			Status: string(domain.AttemptCompleted),
			Msg:    "test already completed",
			Extra:  map[string]any{"attempt_id": attempt.ID},
		}
	}
	if created {
		log.Printf("attempt %s started by %s on test %s", attempt.ID, p.UserID, test.ID)
	}
	return attempt, nil
}

// ownedAttempt loads an attempt and checks it belongs to the caller.
func (s *AttemptService) ownedAttempt(ctx context.Context, store Store, p domain.Principal, attemptID string) (domain.Attempt, error) {
	attempt, err := store.Attempts().Get(ctx, attemptID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if err := checkOwner(attempt, p); err != nil {
		return domain.Attempt{}, err
	}
	return attempt, nil
}

// lockedAttempt is ownedAttempt holding the attempt row until tx ends.
func (s *AttemptService) lockedAttempt(ctx context.Context, tx Store, p domain.Principal, attemptID string) (domain.Attempt, error) {
	attempt, err := tx.Attempts().GetForUpdate(ctx, attemptID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if err := checkOwner(attempt, p); err != nil {
		return domain.Attempt{}, err
	}
	return attempt, nil
}

func checkOwner(attempt domain.Attempt, p domain.Principal) error {
	if attempt.StudentID != p.UserID {
		return domain.ErrNotAttemptOwner
	}
	return nil
}

// Get returns the caller's attempt with its answers.
func (s *AttemptService) Get(ctx context.Context, p domain.Principal, attemptID string) (AttemptView, error) {
	attempt, err := s.ownedAttempt(ctx, s.store, p, attemptID)
	if err != nil {
		return AttemptView{}, err
	}
	answers, err := s.store.Attempts().ListAnswers(ctx, attempt.ID)
	if err != nil {
		return AttemptView{}, err
	}
	return AttemptView{Attempt: attempt, Status: attempt.Status(), Answers: answers}, nil
}

// Answer scores and stores the answer for one question, overwriting any earlier answer.
// The attempt row stays locked from the completed check through the write.
func (s *AttemptService) Answer(ctx context.Context, p domain.Principal, attemptID, questionID, answer string) (domain.Answer, error) {
	var out domain.Answer
	err := s.store.WithinTx(ctx, func(tx Store) error {
		attempt, err := s.lockedAttempt(ctx, tx, p, attemptID)
		if err != nil {
			return err
		}
		if attempt.Completed {
			return domain.NewStateError(string(domain.AttemptCompleted), "attempt already submitted")
		}
		test, err := tx.Tests().Get(ctx, attempt.TestID)
		if err != nil {
			return err
		}
		if !contains(test.QuestionIDs, questionID) {
			return domain.ErrQuestionNotFound
		}
		question, err := s.bank.Get(ctx, questionID)
		if err != nil {
			return err
		}

		result := scoring.Score(question, answer)
		out, err = tx.Attempts().UpsertAnswer(ctx, domain.Answer{
			ID:             newID(),
			AttemptID:      attempt.ID,
			QuestionID:     questionID,
			SelectedAnswer: strings.TrimSpace(answer),
			IsCorrect:      result.IsCorrect,
			MarksObtained:  result.Marks,
			AnsweredAt:     s.settings.Now(),
		})
		return err
	})
	if err != nil {
		return domain.Answer{}, err
	}
	return out, nil
}

// Submit finalizes the attempt exactly once and runs its review and XP side effects in
// the same transaction.
func (s *AttemptService) Submit(ctx context.Context, p domain.Principal, attemptID string) (SubmitResult, error) {
	var out SubmitResult
	err := s.store.WithinTx(ctx, func(tx Store) error {
		attempt, err := s.lockedAttempt(ctx, tx, p, attemptID)
		if err != nil {
			return err
		}
		if attempt.Completed {
			return domain.ErrAlreadySubmitted
		}
		if attempt.TestID == "" {
			return domain.Validationf("attempt has no test")
		}
		test, err := tx.Tests().Get(ctx, attempt.TestID)
		if err != nil {
			return err
		}
		questions, err := loadQuestions(ctx, s.bank, test.QuestionIDs)
		if err != nil {
			return err
		}
		answers, err := tx.Attempts().ListAnswers(ctx, attempt.ID)
		if err != nil {
			return err
		}

		now := s.settings.Now()
		reviews := aggregate(&attempt, test, questions, answers)

		othersAtOrBelow, others, err := tx.Attempts().CompletedScoreCounts(ctx, test.ID, attempt.ID, attempt.Score)
		if err != nil {
			return err
		}
		attempt.Percentile = ranking.PercentileFromCounts(othersAtOrBelow, others)
		attempt.TimeTakenSeconds = int(now.Sub(attempt.StartedAt).Seconds())
		if attempt.TimeTakenSeconds < 0 {
			attempt.TimeTakenSeconds = 0
		}
		attempt.Completed = true
		attempt.CompletedAt = &now

		if err := tx.Attempts().Complete(ctx, attempt); err != nil {
			return err
		}

		for i := range reviews {
			reviews[i].StudentID = attempt.StudentID
			reviews[i].AttemptID = attempt.ID
			reviews[i].CreatedAt = now
		}
		if err := tx.Attempts().AddReviewEntries(ctx, reviews); err != nil {
			return fmt.Errorf("log review entries: %w", err)
		}

		award, err := s.ledger.OnTestCompleted(ctx, tx, attempt.StudentID, attempt.ID, now)
		if err != nil {
			return err
		}
		out = SubmitResult{Attempt: attempt, XP: award}
		return nil
	})
	if err != nil {
		return SubmitResult{}, err
	}
	log.Printf("attempt %s submitted: score=%.2f percentile=%.2f xp=%d", out.Attempt.ID, out.Attempt.Score, out.Attempt.Percentile, out.XP.Total())
	return out, nil
}

// aggregate fills the score fields of attempt from the stored answers, rescoring each one,
// and returns review entries for incorrect and unanswered questions.
func aggregate(attempt *domain.Attempt, test domain.MockTest, questions map[string]domain.Question, answers []domain.Answer) []domain.ReviewEntry {
	byQuestion := make(map[string]domain.Answer, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionID] = a
	}

	attempt.Score, attempt.TotalMarks = 0, 0
	attempt.CorrectCount, attempt.WrongCount, attempt.UnansweredCount = 0, 0, 0
	var reviews []domain.ReviewEntry
	for _, id := range test.QuestionIDs {
		q := questions[id]
		attempt.TotalMarks += q.Marks

		result := scoring.Score(q, byQuestion[id].SelectedAnswer)
		attempt.Score += result.Marks
		switch {
		case result.IsCorrect == nil:
			attempt.UnansweredCount++
			reviews = append(reviews, domain.ReviewEntry{QuestionID: id, Reason: domain.ReviewUnanswered})
		case *result.IsCorrect:
			attempt.CorrectCount++
		default:
			attempt.WrongCount++
			reviews = append(reviews, domain.ReviewEntry{QuestionID: id, Reason: domain.ReviewIncorrect})
		}
	}
	attempt.Percentage = ranking.Percentage(attempt.Score, attempt.TotalMarks)
	return reviews
}

// Unattempted lists the test questions the caller has not answered yet.
func (s *AttemptService) Unattempted(ctx context.Context, p domain.Principal, attemptID string) ([]QuestionView, error) {
	attempt, err := s.ownedAttempt(ctx, s.store, p, attemptID)
	if err != nil {
		return nil, err
	}
	test, err := s.store.Tests().Get(ctx, attempt.TestID)
	if err != nil {
		return nil, err
	}
	answers, err := s.store.Attempts().ListAnswers(ctx, attempt.ID)
	if err != nil {
		return nil, err
	}
	answered := make(map[string]bool, len(answers))
	for _, a := range answers {
		if a.SelectedAnswer != "" {
			answered[a.QuestionID] = true
		}
	}

	var pending []string
	for _, id := range test.QuestionIDs {
		if !answered[id] {
			pending = append(pending, id)
		}
	}
	if len(pending) == 0 {
		return []QuestionView{}, nil
	}
	questions, err := loadQuestions(ctx, s.bank, pending)
	if err != nil {
		return nil, err
	}
	views := make([]QuestionView, 0, len(pending))
	for i, id := range test.QuestionIDs {
		if answered[id] {
			continue
		}
		views = append(views, questionView(id, i+1, questions[id]))
	}
	return views, nil
}

// TestLeaderboard ranks completed attempts of a test.
func (s *AttemptService) TestLeaderboard(ctx context.Context, testID string, limit int) ([]domain.StandingEntry, error) {
	if _, err := s.store.Tests().Get(ctx, testID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	attempts, err := s.store.Attempts().ListCompleted(ctx, testID, limit)
	if err != nil {
		return nil, err
	}
	return ranking.TestStandings(attempts), nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
