// Package quiz implements the timed quiz session: a pure state machine, the
// countdown that drives it, and the Session handle that owns both.
package quiz

import (
	"slices"

	"github.com/victornm/tquiz/internal/domain"
	"github.com/victornm/tquiz/internal/scoring"
)

const (
	// BatchSize is the number of questions fetched per session.
	BatchSize = 15
	// DurationSeconds is the time budget of a session.
	DurationSeconds = 30 * 60
)

type op int

const (
	opBegin op = iota
	opAnswer
	opNavigate
	opComplete
	opTick
)

// allowed is the transition table. Reset is valid from every state and is not
// listed.
var allowed = map[domain.Status]map[op]bool{
	domain.StatusNotStarted: {
		opBegin: true,
	},
	domain.StatusInProgress: {
		opAnswer:   true,
		opNavigate: true,
		opComplete: true,
		opTick:     true,
	},
	domain.StatusCompleted: {},
}

// Machine holds the state of one quiz attempt. It performs no I/O and is not
// safe for concurrent use; Session serializes access to it.
type Machine struct {
	status    domain.Status
	email     string
	questions []domain.Question
	current   int
	answers   map[int]domain.AnswerRecord
	visited   map[int]struct{}
	remaining int
}

func NewMachine() *Machine {
	m := &Machine{}
	m.Reset()
	return m
}

func (m *Machine) can(o op) bool {
	return allowed[m.status][o]
}

func (m *Machine) Status() domain.Status { return m.status }

func (m *Machine) Email() string { return m.email }

func (m *Machine) TimeRemaining() int { return m.remaining }

// Begin moves a fresh machine to InProgress with the given questions.
func (m *Machine) Begin(email string, questions []domain.Question) error {
	if !m.can(opBegin) {
		return ErrAlreadyStarted
	}
	if len(questions) == 0 {
		return ErrNoQuestions
	}

	m.status = domain.StatusInProgress
	m.email = email
	m.questions = slices.Clone(questions)
	m.current = 0
	m.answers = make(map[int]domain.AnswerRecord)
	m.visited = map[int]struct{}{0: {}}
	m.remaining = DurationSeconds

	return nil
}

// SelectAnswer records choice for the current question, replacing any earlier
// selection. It reports whether a record was written.
func (m *Machine) SelectAnswer(choice string) bool {
	if !m.can(opAnswer) {
		return false
	}

	q, ok := m.CurrentQuestion()
	if !ok {
		return false
	}

	m.answers[q.ID] = domain.AnswerRecord{
		QuestionID:     q.ID,
		SelectedChoice: choice,
		IsCorrect:      choice == q.CorrectChoice,
	}

	return true
}

// GoTo makes index the current question. Out of range indexes are ignored.
func (m *Machine) GoTo(index int) bool {
	if !m.can(opNavigate) || index < 0 || index >= len(m.questions) {
		return false
	}

	m.current = index
	m.visited[index] = struct{}{}

	return true
}

func (m *Machine) Next() bool {
	return m.GoTo(m.current + 1)
}

func (m *Machine) Previous() bool {
	return m.GoTo(m.current - 1)
}

// Complete ends the attempt. It reports false when the machine was not in
// progress, so callers fire completion side effects once.
func (m *Machine) Complete() bool {
	if !m.can(opComplete) {
		return false
	}

	m.status = domain.StatusCompleted
	return true
}

// Tick consumes one second of the budget. It reports true when this tick ran
// the clock out and completed the attempt.
func (m *Machine) Tick() bool {
	if !m.can(opTick) || m.remaining <= 0 {
		return false
	}

	m.remaining--
	if m.remaining > 0 {
		return false
	}

	return m.Complete()
}

// Reset discards everything and returns to NotStarted.
func (m *Machine) Reset() {
	m.status = domain.StatusNotStarted
	m.email = ""
	m.questions = nil
	m.current = 0
	m.answers = make(map[int]domain.AnswerRecord)
	m.visited = make(map[int]struct{})
	m.remaining = DurationSeconds
}

func (m *Machine) CurrentQuestion() (domain.Question, bool) {
	if m.current < 0 || m.current >= len(m.questions) {
		return domain.Question{}, false
	}

	return m.questions[m.current], true
}

func (m *Machine) CurrentAnswer() (domain.AnswerRecord, bool) {
	q, ok := m.CurrentQuestion()
	if !ok {
		return domain.AnswerRecord{}, false
	}

	a, ok := m.answers[q.ID]
	return a, ok
}

func (m *Machine) IsAttempted(index int) bool {
	if index < 0 || index >= len(m.questions) {
		return false
	}

	_, ok := m.answers[m.questions[index].ID]
	return ok
}

func (m *Machine) IsVisited(index int) bool {
	_, ok := m.visited[index]
	return ok
}

// Results is meaningful once completed but can be called in any state.
func (m *Machine) Results() domain.Results {
	answers := m.sortedAnswers()

	correct := 0
	for _, a := range answers {
		if a.IsCorrect {
			correct++
		}
	}

	return domain.Results{
		TotalQuestions: len(m.questions),
		CorrectAnswers: correct,
		Score:          scoring.Score(len(m.questions), correct),
		TimeSpent:      DurationSeconds - m.remaining,
		Answers:        answers,
	}
}

func (m *Machine) Progress() domain.Progress {
	return domain.Progress{
		TotalQuestions:       len(m.questions),
		AttemptedQuestions:   len(m.answers),
		VisitedQuestions:     len(m.visited),
		CompletionPercentage: scoring.CompletionPercentage(len(m.questions), len(m.answers)),
	}
}

// Review lists every question with the recorded answer, if any. A question
// without a record counts as answered wrong.
func (m *Machine) Review() []domain.ReviewItem {
	items := make([]domain.ReviewItem, 0, len(m.questions))

	for _, q := range m.questions {
		item := domain.ReviewItem{Question: q}
		if a, ok := m.answers[q.ID]; ok {
			item.Answered = true
			item.SelectedChoice = a.SelectedChoice
			item.IsCorrect = a.IsCorrect
		}
		items = append(items, item)
	}

	return items
}

func (m *Machine) Snapshot() domain.Snapshot {
	snap := domain.Snapshot{
		Status:               m.status,
		UserEmail:            m.email,
		Questions:            make([]domain.Question, len(m.questions)),
		CurrentIndex:         m.current,
		Answers:              m.sortedAnswers(),
		Visited:              m.sortedVisited(),
		TimeRemainingSeconds: m.remaining,
		TimeRemaining:        scoring.FormatDuration(m.remaining),
		TimeLevel:            scoring.TimeLevel(m.remaining),
		Progress:             m.Progress(),
	}
	copy(snap.Questions, m.questions)

	if q, ok := m.CurrentQuestion(); ok {
		snap.CurrentQuestion = &q
	}
	if a, ok := m.CurrentAnswer(); ok {
		snap.CurrentAnswer = &a
	}
	if m.status == domain.StatusCompleted {
		r := m.Results()
		snap.Results = &r
	}

	return snap
}

func (m *Machine) sortedAnswers() []domain.AnswerRecord {
	answers := make([]domain.AnswerRecord, 0, len(m.answers))
	for _, a := range m.answers {
		answers = append(answers, a)
	}

	slices.SortFunc(answers, func(a, b domain.AnswerRecord) int {
		return a.QuestionID - b.QuestionID
	})

	return answers
}

func (m *Machine) sortedVisited() []int {
	visited := make([]int, 0, len(m.visited))
	for i := range m.visited {
		visited = append(visited, i)
	}

	slices.Sort(visited)
	return visited
}
