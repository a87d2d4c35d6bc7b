package postgres

import (
	"context"
	"time"

	"exam-arena-service/internal/domain"
	"github.com/uptrace/bun"
)

type testRepo struct{ db bun.IDB }

func (r testRepo) Create(ctx context.Context, t domain.MockTest) error {
	_, err := r.db.NewInsert().Model(newTestModel(t)).Exec(ctx)
	return mapErr(err, domain.ErrTestNotFound)
}

func (r testRepo) Get(ctx context.Context, id string) (domain.MockTest, error) {
	var m testModel
	if err := r.db.NewSelect().Model(&m).Where("id = ?", id).Scan(ctx); err != nil {
		return domain.MockTest{}, mapErr(err, domain.ErrTestNotFound)
	}
	return m.toDomain(), nil
}

type attemptRepo struct{ db bun.IDB }

func (r attemptRepo) CreateIfAbsent(ctx context.Context, a domain.Attempt) (domain.Attempt, bool, error) {
	res, err := r.db.NewInsert().Model(newAttemptModel(a)).On("CONFLICT (student_id, test_id) DO NOTHING").Exec(ctx)
	if err != nil {
		return domain.Attempt{}, false, mapErr(err, domain.ErrAttemptNotFound)
	}
	n, err := affected(res)
	if err != nil {
		return domain.Attempt{}, false, err
	}
	var m attemptModel
	err = r.db.NewSelect().Model(&m).
		Where("student_id = ?", a.StudentID).
		Where("test_id = ?", a.TestID).
		Scan(ctx)
	if err != nil {
		return domain.Attempt{}, false, mapErr(err, domain.ErrAttemptNotFound)
	}
	return m.toDomain(), n == 1, nil
}

func (r attemptRepo) Get(ctx context.Context, id string) (domain.Attempt, error) {
	var m attemptModel
	if err := r.db.NewSelect().Model(&m).Where("id = ?", id).Scan(ctx); err != nil {
		return domain.Attempt{}, mapErr(err, domain.ErrAttemptNotFound)
	}
	return m.toDomain(), nil
}

func (r attemptRepo) GetForUpdate(ctx context.Context, id string) (domain.Attempt, error) {
	var m attemptModel
	if err := r.db.NewSelect().Model(&m).Where("id = ?", id).For("UPDATE").Scan(ctx); err != nil {
		return domain.Attempt{}, mapErr(err, domain.ErrAttemptNotFound)
	}
	return m.toDomain(), nil
}

func (r attemptRepo) UpsertAnswer(ctx context.Context, ans domain.Answer) (domain.Answer, error) {
	m := &answerModel{
		ID:             ans.ID,
		AttemptID:      ans.AttemptID,
		QuestionID:     ans.QuestionID,
		SelectedAnswer: ans.SelectedAnswer,
		IsCorrect:      ans.IsCorrect,
		MarksObtained:  ans.MarksObtained,
		AnsweredAt:     ans.AnsweredAt,
	}
	_, err := r.db.NewInsert().Model(m).
		On("CONFLICT (attempt_id, question_id) DO UPDATE").
		Set("selected_answer = EXCLUDED.selected_answer").
		Set("is_correct = EXCLUDED.is_correct").
		Set("marks_obtained = EXCLUDED.marks_obtained").
		Set("answered_at = EXCLUDED.answered_at").
		Exec(ctx)
	if err != nil {
		return domain.Answer{}, mapErr(err, domain.ErrAttemptNotFound)
	}
	var stored answerModel
	err = r.db.NewSelect().Model(&stored).
		Where("attempt_id = ?", ans.AttemptID).
		Where("question_id = ?", ans.QuestionID).
		Scan(ctx)
	if err != nil {
		return domain.Answer{}, mapErr(err, domain.ErrAttemptNotFound)
	}
	return stored.toDomain(), nil
}

func (r attemptRepo) ListAnswers(ctx context.Context, attemptID string) ([]domain.Answer, error) {
	var rows []answerModel
	err := r.db.NewSelect().Model(&rows).Where("attempt_id = ?", attemptID).Order("answered_at ASC").Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Answer, len(rows))
	for i, m := range rows {
		out[i] = m.toDomain()
	}
	return out, nil
}

func (r attemptRepo) Complete(ctx context.Context, a domain.Attempt) error {
	res, err := r.db.NewUpdate().Model(newAttemptModel(a)).
		Column("score", "total_marks", "percentage", "percentile", "correct_count", "wrong_count",
			"unanswered_count", "time_taken_seconds", "completed_at", "completed").
		WherePK().
		Where("completed = false").
		Exec(ctx)
	if err != nil {
		return mapErr(err, domain.ErrAttemptNotFound)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := r.Get(ctx, a.ID); err != nil {
			return err
		}
		return domain.ErrAlreadySubmitted
	}
	return nil
}

func (r attemptRepo) completed(testID string) *bun.SelectQuery {
	return r.db.NewSelect().Model((*attemptModel)(nil)).
		Where("test_id = ?", testID).
		Where("completed = true")
}

func (r attemptRepo) CompletedScoreCounts(ctx context.Context, testID, excludeAttemptID string, score float64) (int, int, error) {
	total, err := r.completed(testID).Where("id <> ?", excludeAttemptID).Count(ctx)
	if err != nil {
		return 0, 0, err
	}
	atOrBelow, err := r.completed(testID).Where("id <> ?", excludeAttemptID).Where("score <= ?", score).Count(ctx)
	if err != nil {
		return 0, 0, err
	}
	return atOrBelow, total, nil
}

func (r attemptRepo) CountCompletedBetween(ctx context.Context, studentID string, from, to time.Time) (int, error) {
	return r.db.NewSelect().Model((*attemptModel)(nil)).
		Where("student_id = ?", studentID).
		Where("completed = true").
		Where("completed_at >= ?", from).
		Where("completed_at < ?", to).
		Count(ctx)
}

func (r attemptRepo) ListCompleted(ctx context.Context, testID string, limit int) ([]domain.Attempt, error) {
	var rows []attemptModel
	q := r.db.NewSelect().Model(&rows).
		Where("test_id = ?", testID).
		Where("completed = true").
		Order("score DESC", "time_taken_seconds ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]domain.Attempt, len(rows))
	for i, m := range rows {
		out[i] = m.toDomain()
	}
	return out, nil
}

func (r attemptRepo) AddReviewEntries(ctx context.Context, entries []domain.ReviewEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]reviewModel, len(entries))
	for i, e := range entries {
		rows[i] = reviewModel{
			StudentID:  e.StudentID,
			QuestionID: e.QuestionID,
			AttemptID:  e.AttemptID,
			Reason:     string(e.Reason),
			CreatedAt:  e.CreatedAt,
		}
	}
	_, err := r.db.NewInsert().Model(&rows).On("CONFLICT (student_id, question_id, attempt_id) DO NOTHING").Exec(ctx)
	return mapErr(err, domain.ErrAttemptNotFound)
}

func (r attemptRepo) ListReviewQuestionIDs(ctx context.Context, studentID string, limit int) ([]string, error) {
	var ids []string
	q := r.db.NewSelect().Model((*reviewModel)(nil)).
		Column("question_id").
		Where("student_id = ?", studentID).
		Group("question_id").
		OrderExpr("MAX(created_at) DESC, question_id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}
