package app

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"exam-arena-service/internal/domain"
	"github.com/gosimple/slug"
)

// GenerateRequest describes a generated mock test.
type GenerateRequest struct {
	Kind            domain.TestKind     `json:"kind"`
	Name            string              `json:"name"`
	Exam            string              `json:"exam"`
	Years           []int               `json:"years,omitempty"`
	Subjects        []string            `json:"subjects,omitempty"`
	Difficulty      string              `json:"difficulty,omitempty"`
	Type            domain.QuestionType `json:"type,omitempty"`
	Count           int                 `json:"count"`
	DurationMinutes int                 `json:"duration_minutes"`
}

// TestGenerator builds practice, custom and mistake-review tests through one code path.
type TestGenerator struct {
	store    Store
	bank     QuestionBank
	settings Settings
}

func NewTestGenerator(store Store, bank QuestionBank, settings Settings) *TestGenerator {
	return &TestGenerator{store: store, bank: bank, settings: settings.withDefaults()}
}

// Generate picks questions for the request and stores a new mock test.
func (g *TestGenerator) Generate(ctx context.Context, p domain.Principal, req GenerateRequest) (domain.MockTest, error) {
	if req.Count < 1 || req.Count > g.settings.MaxQuestionsPerRoom {
		return domain.MockTest{}, domain.Validationf("count must be between 1 and %d", g.settings.MaxQuestionsPerRoom)
	}
	if _, err := ensureStudent(ctx, g.store, p, g.settings); err != nil {
		return domain.MockTest{}, err
	}

	var questions []domain.Question
	var err error
	switch req.Kind {
	case domain.TestPractice, domain.TestCustom:
		if strings.TrimSpace(req.Exam) == "" {
			return domain.MockTest{}, domain.Validationf("exam is required")
		}
		questions, err = g.fromBank(ctx, req)
	case domain.TestMistakeReview:
		questions, err = g.fromReviewLog(ctx, p.UserID, req.Count)
	default:
		return domain.MockTest{}, domain.Validationf("unknown test kind %q", req.Kind)
	}
	if err != nil {
		return domain.MockTest{}, err
	}

	now := g.settings.Now()
	test := domain.MockTest{
		ID:              newID(),
		Name:            strings.TrimSpace(req.Name),
		Kind:            req.Kind,
		Exam:            req.Exam,
		DurationMinutes: req.DurationMinutes,
		CreatedBy:       p.UserID,
		CreatedAt:       now,
	}
	if test.Name == "" {
		test.Name = fmt.Sprintf("%s %s %s", strings.ReplaceAll(string(req.Kind), "_", " "), req.Exam, now.Format("2006-01-02"))
	}
	test.Slug = slug.Make(test.Name) + "-" + test.ID[:8]
	if test.DurationMinutes <= 0 {
		test.DurationMinutes = 2 * len(questions)
	}
	for _, q := range questions {
		test.QuestionIDs = append(test.QuestionIDs, q.ID)
		test.TotalMarks += q.Marks
	}

	if err := g.store.Tests().Create(ctx, test); err != nil {
		return domain.MockTest{}, err
	}
	return test, nil
}

func (g *TestGenerator) fromBank(ctx context.Context, req GenerateRequest) ([]domain.Question, error) {
	filter := domain.QuestionFilter{
		Exam:       req.Exam,
		Years:      req.Years,
		Subjects:   req.Subjects,
		Difficulty: req.Difficulty,
		Type:       req.Type,
	}
	pool, err := g.bank.Query(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(pool) < req.Count {
		return nil, &domain.InsufficientQuestionsError{Available: len(pool), Requested: req.Count}
	}
	rnd := rand.New(rand.NewSource(g.settings.Now().UnixNano()))
	picked := make([]domain.Question, req.Count)
	for i, idx := range rnd.Perm(len(pool))[:req.Count] {
		picked[i] = pool[idx]
	}
	return picked, nil
}

func (g *TestGenerator) fromReviewLog(ctx context.Context, studentID string, count int) ([]domain.Question, error) {
	ids, err := g.store.Attempts().ListReviewQuestionIDs(ctx, studentID, count)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, domain.Validationf("no questions to review yet")
	}
	return g.bank.GetMany(ctx, ids)
}

// Get returns a mock test by id.
func (g *TestGenerator) Get(ctx context.Context, id string) (domain.MockTest, error) {
	return g.store.Tests().Get(ctx, id)
}
