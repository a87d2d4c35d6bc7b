package memory

import (
	"context"
	"sort"
	"time"

	"exam-arena-service/internal/domain"
)

type testRepo struct{ s *Store }

func (r testRepo) Create(_ context.Context, t domain.MockTest) error {
	return r.s.do(func(st *state) error {
		if _, ok := st.tests[t.ID]; ok {
			return domain.ErrDuplicate
		}
		st.tests[t.ID] = t
		return nil
	})
}

func (r testRepo) Get(_ context.Context, id string) (domain.MockTest, error) {
	var out domain.MockTest
	err := r.s.do(func(st *state) error {
		t, ok := st.tests[id]
		if !ok {
			return domain.ErrTestNotFound
		}
		out = t
		return nil
	})
	return out, err
}

type attemptRepo struct{ s *Store }

func (r attemptRepo) CreateIfAbsent(_ context.Context, a domain.Attempt) (domain.Attempt, bool, error) {
	var out domain.Attempt
	created := false
	err := r.s.do(func(st *state) error {
		for _, existing := range st.attempts {
			if existing.StudentID == a.StudentID && existing.TestID == a.TestID {
				out = existing
				return nil
			}
		}
		st.attempts[a.ID] = a
		out, created = a, true
		return nil
	})
	return out, created, err
}

func (r attemptRepo) Get(_ context.Context, id string) (domain.Attempt, error) {
	var out domain.Attempt
	err := r.s.do(func(st *state) error {
		a, ok := st.attempts[id]
		if !ok {
			return domain.ErrAttemptNotFound
		}
		out = a
		return nil
	})
	return out, err
}

// GetForUpdate is Get; memory transactions are serialized.
func (r attemptRepo) GetForUpdate(ctx context.Context, id string) (domain.Attempt, error) {
	return r.Get(ctx, id)
}

func answerKey(attemptID, questionID string) string { return attemptID + "|" + questionID }

func (r attemptRepo) UpsertAnswer(_ context.Context, ans domain.Answer) (domain.Answer, error) {
	var out domain.Answer
	err := r.s.do(func(st *state) error {
		key := answerKey(ans.AttemptID, ans.QuestionID)
		if existing, ok := st.answers[key]; ok {
			ans.ID = existing.ID
		}
		st.answers[key] = ans
		out = ans
		return nil
	})
	return out, err
}

func (r attemptRepo) ListAnswers(_ context.Context, attemptID string) ([]domain.Answer, error) {
	var out []domain.Answer
	err := r.s.do(func(st *state) error {
		for _, a := range st.answers {
			if a.AttemptID == attemptID {
				out = append(out, a)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].AnsweredAt.Before(out[j].AnsweredAt) })
	return out, err
}

func (r attemptRepo) Complete(_ context.Context, a domain.Attempt) error {
	return r.s.do(func(st *state) error {
		existing, ok := st.attempts[a.ID]
		if !ok {
			return domain.ErrAttemptNotFound
		}
		if existing.Completed {
			return domain.ErrAlreadySubmitted
		}
		st.attempts[a.ID] = a
		return nil
	})
}

func (r attemptRepo) CompletedScoreCounts(_ context.Context, testID, excludeAttemptID string, score float64) (int, int, error) {
	atOrBelow, total := 0, 0
	err := r.s.do(func(st *state) error {
		for _, a := range st.attempts {
			if a.TestID != testID || !a.Completed || a.ID == excludeAttemptID {
				continue
			}
			total++
			if a.Score <= score {
				atOrBelow++
			}
		}
		return nil
	})
	return atOrBelow, total, err
}

func (r attemptRepo) CountCompletedBetween(_ context.Context, studentID string, from, to time.Time) (int, error) {
	n := 0
	err := r.s.do(func(st *state) error {
		for _, a := range st.attempts {
			if a.StudentID != studentID || !a.Completed || a.CompletedAt == nil {
				continue
			}
			if !a.CompletedAt.Before(from) && a.CompletedAt.Before(to) {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r attemptRepo) ListCompleted(_ context.Context, testID string, limit int) ([]domain.Attempt, error) {
	var out []domain.Attempt
	err := r.s.do(func(st *state) error {
		for _, a := range st.attempts {
			if a.TestID == testID && a.Completed {
				out = append(out, a)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].TimeTakenSeconds < out[j].TimeTakenSeconds
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (r attemptRepo) AddReviewEntries(_ context.Context, entries []domain.ReviewEntry) error {
	return r.s.do(func(st *state) error {
		for _, e := range entries {
			key := e.StudentID + "|" + e.QuestionID + "|" + e.AttemptID
			if _, ok := st.reviews[key]; ok {
				continue
			}
			st.reviews[key] = e
		}
		return nil
	})
}

func (r attemptRepo) ListReviewQuestionIDs(_ context.Context, studentID string, limit int) ([]string, error) {
	var entries []domain.ReviewEntry
	err := r.s.do(func(st *state) error {
		for _, e := range st.reviews {
			if e.StudentID == studentID {
				entries = append(entries, e)
			}
		}
		return nil
	})
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		}
		return entries[i].QuestionID < entries[j].QuestionID
	})
	seen := make(map[string]bool)
	var ids []string
	for _, e := range entries {
		if seen[e.QuestionID] {
			continue
		}
		seen[e.QuestionID] = true
		ids = append(ids, e.QuestionID)
		if limit > 0 && len(ids) == limit {
			break
		}
	}
	return ids, err
}
