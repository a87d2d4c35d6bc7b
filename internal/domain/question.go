package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// ContentHash identifies a question by its normalized text and provenance.
func ContentHash(q Question) string {
	parts := []string{
		strings.ToLower(strings.TrimSpace(q.Text)),
		strings.ToLower(q.Exam),
		strconv.Itoa(q.Year),
		strings.ToLower(q.Subject),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// Matches reports whether q passes every non-empty field of f.
func (f QuestionFilter) Matches(q Question) bool {
	if !q.Active {
		return false
	}
	if f.Exam != "" && !strings.EqualFold(q.Exam, f.Exam) {
		return false
	}
	if f.Difficulty != "" && !strings.EqualFold(q.Difficulty, f.Difficulty) {
		return false
	}
	if f.Type != "" && q.Type != f.Type {
		return false
	}
	if len(f.Years) > 0 && !containsInt(f.Years, q.Year) {
		return false
	}
	if len(f.Subjects) > 0 && !containsFold(f.Subjects, q.Subject) {
		return false
	}
	for _, id := range f.ExcludeIDs {
		if id == q.ID {
			return false
		}
	}
	return true
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func containsFold(xs []string, v string) bool {
	for _, x := range xs {
		if strings.EqualFold(x, v) {
			return true
		}
	}
	return false
}
