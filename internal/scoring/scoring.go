// Package scoring holds the pure answer scoring and seeded shuffle helpers.
package scoring

import (
	"math"
	"math/rand"
	"strconv"
	"strings"

	"exam-arena-service/internal/domain"
)

// NumericTolerance is the absolute tolerance for numerical answers.
const NumericTolerance = 0.01

// Result is the outcome of scoring one submitted answer. IsCorrect is nil when unanswered.
type Result struct {
	IsCorrect *bool
	Marks     float64
}

// Answered reports whether a non-blank answer was given.
func (r Result) Answered() bool { return r.IsCorrect != nil }

// Score maps a question and a submitted answer to correctness and a marks delta.
func Score(q domain.Question, submitted string) Result {
	answer := strings.TrimSpace(submitted)
	if answer == "" {
		return Result{}
	}

	var correct bool
	switch q.Type {
	case domain.QuestionNumerical:
		correct = numericMatch(q.CorrectAnswer, answer)
	default:
		correct = strings.EqualFold(strings.TrimSpace(q.CorrectAnswer), answer)
	}

	if correct {
		return Result{IsCorrect: boolPtr(true), Marks: q.Marks}
	}
	return Result{IsCorrect: boolPtr(false), Marks: -q.NegativeMarks}
}

func numericMatch(expected, got string) bool {
	want, errWant := strconv.ParseFloat(strings.TrimSpace(expected), 64)
	have, errHave := strconv.ParseFloat(got, 64)
	if errWant == nil && errHave == nil {
		return math.Abs(want-have) <= NumericTolerance
	}
	return strings.EqualFold(strings.TrimSpace(expected), got)
}

func boolPtr(v bool) *bool { return &v }

// Shuffle returns a permuted copy of items. The same seed always yields the same order.
func Shuffle[T any](items []T, seed int64) []T {
	out := make([]T, len(items))
	copy(out, items)
	rnd := rand.New(rand.NewSource(seed))
	rnd.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}
