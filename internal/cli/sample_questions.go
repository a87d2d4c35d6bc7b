package cli

import "exam-arena-service/internal/domain"

// sampleQuestions seeds the in-memory bank so a local server is usable without Postgres.
func sampleQuestions() []domain.Question {
	mcq := func(exam, subject, difficulty, text, correct string, options ...string) domain.Question {
		q := domain.Question{
			Text:          text,
			Type:          domain.QuestionMCQ,
			CorrectAnswer: correct,
			Marks:         4,
			NegativeMarks: 1,
			Difficulty:    difficulty,
			Subject:       subject,
			Exam:          exam,
			Year:          2023,
			Active:        true,
		}
		for i, o := range options {
			q.Options = append(q.Options, domain.Option{Label: string(rune('A' + i)), Text: o})
		}
		return q
	}
	numeric := func(exam, subject, difficulty, text, correct string) domain.Question {
		return domain.Question{
			Text:          text,
			Type:          domain.QuestionNumerical,
			CorrectAnswer: correct,
			Marks:         4,
			Difficulty:    difficulty,
			Subject:       subject,
			Exam:          exam,
			Year:          2023,
			Active:        true,
		}
	}
	return []domain.Question{
		mcq("JEE", "physics", "easy", "The SI unit of force is", "B", "Joule", "Newton", "Watt", "Pascal"),
		mcq("JEE", "physics", "medium", "A body in uniform circular motion has constant", "C", "velocity", "acceleration", "speed", "momentum"),
		mcq("JEE", "chemistry", "easy", "The atomic number of carbon is", "A", "6", "12", "8", "14"),
		mcq("JEE", "chemistry", "medium", "Which gas is evolved when zinc reacts with dilute HCl?", "D", "Oxygen", "Chlorine", "Nitrogen", "Hydrogen"),
		mcq("JEE", "mathematics", "easy", "The derivative of x^2 is", "B", "x", "2x", "x^3/3", "2"),
		numeric("JEE", "mathematics", "medium", "Evaluate the sum 1 + 2 + ... + 10", "55"),
		numeric("JEE", "physics", "hard", "A ball is dropped from 20 m (g = 10 m/s^2). Time to reach the ground in seconds?", "2"),
		mcq("NEET", "biology", "easy", "The powerhouse of the cell is the", "A", "mitochondrion", "nucleus", "ribosome", "golgi body"),
		mcq("NEET", "biology", "medium", "Which blood cells carry oxygen?", "C", "platelets", "leucocytes", "erythrocytes", "lymphocytes"),
		mcq("NEET", "chemistry", "easy", "pH of pure water at 25 C is", "B", "0", "7", "14", "1"),
		numeric("NEET", "physics", "medium", "Resistance in ohms of a conductor carrying 2 A at 10 V", "5"),
	}
}
