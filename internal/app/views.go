package app

import (
	"context"
	"fmt"

	"exam-arena-service/internal/domain"
)

// QuestionView is a question as shown to a test taker: no correct answer.
type QuestionView struct {
	ID             string              `json:"id"`
	QuestionID     string              `json:"question_id"`
	Number         int                 `json:"number"`
	Text           string              `json:"text"`
	Type           domain.QuestionType `json:"type"`
	Options        []domain.Option     `json:"options,omitempty"`
	Marks          float64             `json:"marks"`
	NegativeMarks  float64             `json:"negative_marks"`
	Subject        string              `json:"subject"`
	SelectedAnswer string              `json:"selected_answer,omitempty"`
}

func questionView(id string, number int, q domain.Question) QuestionView {
	return QuestionView{
		ID:            id,
		QuestionID:    q.ID,
		Number:        number,
		Text:          q.Text,
		Type:          q.Type,
		Options:       q.Options,
		Marks:         q.Marks,
		NegativeMarks: q.NegativeMarks,
		Subject:       q.Subject,
	}
}

// loadQuestions fetches ids from the bank and returns them keyed by id, failing if any is missing.
func loadQuestions(ctx context.Context, bank QuestionBank, ids []string) (map[string]domain.Question, error) {
	questions, err := bank.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	byID := make(map[string]domain.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrQuestionNotFound, id)
		}
	}
	return byID, nil
}
