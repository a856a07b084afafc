package trivia

import (
	"html"
	"math/rand/v2"

	"github.com/victornm/tquiz/internal/domain"
)

// Normalize decodes and shuffles raw provider questions. IDs are assigned by
// position starting at 1, and the provider order is kept.
func Normalize(raw []rawQuestion, rnd *rand.Rand) []domain.Question {
	questions := make([]domain.Question, 0, len(raw))

	for i, r := range raw {
		choices := make([]string, 0, len(r.IncorrectAnswers)+1)
		for _, a := range r.IncorrectAnswers {
			choices = append(choices, Decode(a))
		}
		choices = append(choices, Decode(r.CorrectAnswer))

		Shuffle(choices, rnd)

		questions = append(questions, domain.Question{
			ID:            i + 1,
			Category:      Decode(r.Category),
			Difficulty:    Decode(r.Difficulty),
			Prompt:        Decode(r.Question),
			Choices:       choices,
			CorrectChoice: Decode(r.CorrectAnswer),
		})
	}

	return questions
}

// Decode replaces HTML entities, named and numeric, with the characters they
// stand for.
func Decode(s string) string {
	return html.UnescapeString(s)
}

// Shuffle permutes s in place with Fisher–Yates.
func Shuffle[T any](s []T, rnd *rand.Rand) {
	for i := len(s) - 1; i > 0; i-- {
		j := rnd.IntN(i + 1)
		s[i], s[j] = s[j], s[i]
	}
}
