package domain

import (
	"fmt"
	"time"
)

// Question is a normalized multiple-choice question. It is never modified after
// the question source builds it.
type Question struct {
	ID            int      `json:"id"`
	Category      string   `json:"category"`
	Difficulty    string   `json:"difficulty"`
	Prompt        string   `json:"prompt"`
	Choices       []string `json:"choices"`
	CorrectChoice string   `json:"correctChoice"`
}

// AnswerRecord is the stored selection for one question. There is at most one
// record per question within a session.
type AnswerRecord struct {
	QuestionID     int    `json:"questionId"`
	SelectedChoice string `json:"selectedChoice"`
	IsCorrect      bool   `json:"isCorrect"`
}

// Status is the state of a quiz session.
type Status int

const (
	StatusNotStarted Status = iota
	StatusInProgress
	StatusCompleted
)

func (s Status) String() string {
	switch s {
	case StatusNotStarted:
		return "not_started"
	case StatusInProgress:
		return "in_progress"
	case StatusCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "not_started":
		*s = StatusNotStarted
	case "in_progress":
		*s = StatusInProgress
	case "completed":
		*s = StatusCompleted
	default:
		return fmt.Errorf("unknown status %q", b)
	}

	return nil
}

// Results summarizes a session for the review screen. Unanswered questions
// have no entry in Answers.
type Results struct {
	TotalQuestions int            `json:"totalQuestions"`
	CorrectAnswers int            `json:"correctAnswers"`
	Score          int            `json:"score"`
	TimeSpent      int            `json:"timeSpent"`
	Answers        []AnswerRecord `json:"answers"`
}

// ReviewItem pairs a question with what the user answered.
type ReviewItem struct {
	Question       Question `json:"question"`
	SelectedChoice string   `json:"selectedChoice,omitempty"`
	Answered       bool     `json:"answered"`
	IsCorrect      bool     `json:"isCorrect"`
}

type Progress struct {
	TotalQuestions       int `json:"totalQuestions"`
	AttemptedQuestions   int `json:"attemptedQuestions"`
	VisitedQuestions     int `json:"visitedQuestions"`
	CompletionPercentage int `json:"completionPercentage"`
}

// Snapshot is a read-only view of a session handed to the presentation layer.
type Snapshot struct {
	SessionID            string         `json:"sessionId,omitempty"`
	Status               Status         `json:"status"`
	Loading              bool           `json:"loading"`
	Error                string         `json:"error,omitempty"`
	UserEmail            string         `json:"userEmail,omitempty"`
	Questions            []Question     `json:"questions"`
	CurrentIndex         int            `json:"currentIndex"`
	CurrentQuestion      *Question      `json:"currentQuestion,omitempty"`
	CurrentAnswer        *AnswerRecord  `json:"currentAnswer,omitempty"`
	Answers              []AnswerRecord `json:"answers"`
	Visited              []int          `json:"visited"`
	TimeRemainingSeconds int            `json:"timeRemainingSeconds"`
	TimeRemaining        string         `json:"timeRemaining"`
	TimeLevel            string         `json:"timeLevel"`
	Progress             Progress       `json:"progress"`
	Results              *Results       `json:"results,omitempty"`
}

// CompletedSession is what gets archived once a session reaches Completed.
type CompletedSession struct {
	SessionID   string    `json:"sessionId"`
	UserEmail   string    `json:"userEmail"`
	Results     Results   `json:"results"`
	Auto        bool      `json:"auto"`
	CompletedAt time.Time `json:"completedAt"`
}

// Leaderboard lists the best score per user, sorted by score in descending order.
type Leaderboard struct {
	Entries []LeaderboardEntry `json:"entries"`
}

type LeaderboardEntry struct {
	UserEmail string  `json:"userEmail"`
	Score     float64 `json:"score"`
}
