// Package ranking recomputes leaderboards and percentiles from stored results.
// Nothing here is maintained incrementally.
package ranking

import (
	"sort"

	"exam-arena-service/internal/domain"
)

// Percentile returns the share of completed attempts scoring at or below score, the
// subject attempt included in both counts. others holds the scores of the other
// completed attempts on the same test.
func Percentile(score float64, others []float64) float64 {
	atOrBelow := 1
	for _, s := range others {
		if s <= score {
			atOrBelow++
		}
	}
	return PercentileFromCounts(atOrBelow-1, len(others))
}

// PercentileFromCounts is Percentile for stores that count rows instead of returning them.
func PercentileFromCounts(othersAtOrBelow, othersTotal int) float64 {
	if othersTotal <= 0 {
		return 100
	}
	p := float64(othersAtOrBelow+1) / float64(othersTotal+1) * 100
	if p > 100 {
		return 100
	}
	return p
}

// Percentage returns score over total as a percentage, 0 when total is 0.
func Percentage(score, total float64) float64 {
	if total == 0 {
		return 0
	}
	return score / total * 100
}

// RoomStandings ranks joined participants of a room. Unanswered questions contribute
// nothing and the denominator is the marks of every room question for everyone.
func RoomStandings(questions []domain.RoomQuestion, participants []domain.RoomParticipant, attempts []domain.ParticipantAttempt) []domain.StandingEntry {
	var total float64
	for _, q := range questions {
		total += q.Question.Marks
	}

	byParticipant := make(map[string][]domain.ParticipantAttempt, len(participants))
	for _, a := range attempts {
		byParticipant[a.ParticipantID] = append(byParticipant[a.ParticipantID], a)
	}

	entries := make([]domain.StandingEntry, 0, len(participants))
	for _, p := range participants {
		if p.Status != domain.ParticipantJoined {
			continue
		}
		entry := domain.StandingEntry{UserID: p.UserID, Name: p.Name, TotalMarks: total}
		answered := 0
		for _, a := range byParticipant[p.ID] {
			entry.Score += a.MarksObtained
			if a.TimeSpentSeconds > entry.TimeSpentSeconds {
				entry.TimeSpentSeconds = a.TimeSpentSeconds
			}
			if a.IsCorrect == nil {
				continue
			}
			answered++
			if *a.IsCorrect {
				entry.Correct++
			} else {
				entry.Wrong++
			}
		}
		entry.Unanswered = len(questions) - answered
		entry.Percentage = Percentage(entry.Score, total)
		entries = append(entries, entry)
	}

	sortAndRank(entries)
	return entries
}

// TestStandings ranks completed attempts of a mock test.
func TestStandings(attempts []domain.Attempt) []domain.StandingEntry {
	entries := make([]domain.StandingEntry, 0, len(attempts))
	for _, a := range attempts {
		if !a.Completed {
			continue
		}
		entries = append(entries, domain.StandingEntry{
			UserID:           a.StudentID,
			Score:            a.Score,
			TotalMarks:       a.TotalMarks,
			Percentage:       a.Percentage,
			Correct:          a.CorrectCount,
			Wrong:            a.WrongCount,
			Unanswered:       a.UnansweredCount,
			TimeSpentSeconds: a.TimeTakenSeconds,
		})
	}
	sortAndRank(entries)
	return entries
}

// sortAndRank orders by score desc then time asc, and assigns dense ranks: entries
// equal on both keys share a rank and the next distinct entry gets rank+1.
func sortAndRank(entries []domain.StandingEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		if entries[i].TimeSpentSeconds != entries[j].TimeSpentSeconds {
			return entries[i].TimeSpentSeconds < entries[j].TimeSpentSeconds
		}
		return entries[i].UserID < entries[j].UserID
	})

	rank := 0
	for i := range entries {
		if i == 0 || entries[i].Score != entries[i-1].Score || entries[i].TimeSpentSeconds != entries[i-1].TimeSpentSeconds {
			rank++
		}
		entries[i].Rank = rank
	}
}
