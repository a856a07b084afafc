package domain

import "slices"

// Redacted returns a copy of s safe to show while the attempt is running:
// correct choices and correctness flags are hidden until the session is
// completed.
func (s Snapshot) Redacted() Snapshot {
	if s.Status == StatusCompleted {
		return s
	}

	s.Questions = slices.Clone(s.Questions)
	for i := range s.Questions {
		s.Questions[i].CorrectChoice = ""
	}

	if s.CurrentQuestion != nil {
		q := *s.CurrentQuestion
		q.CorrectChoice = ""
		s.CurrentQuestion = &q
	}

	if s.CurrentAnswer != nil {
		a := *s.CurrentAnswer
		a.IsCorrect = false
		s.CurrentAnswer = &a
	}

	s.Answers = slices.Clone(s.Answers)
	for i := range s.Answers {
		s.Answers[i].IsCorrect = false
	}

	return s
}
