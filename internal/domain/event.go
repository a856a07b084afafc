package domain

const (
	EventNameQuizStarted        = "quiz.started"
	EventNameQuizStartFailed    = "quiz.start_failed"
	EventNameQuizCompleted      = "quiz.completed"
	EventNameQuizReset          = "quiz.reset"
	EventNameLeaderboardUpdated = "leaderboard.updated"
)

type EventQuizStarted struct {
	SessionID string
	UserEmail string
	Questions int
}

func (EventQuizStarted) Name() string { return EventNameQuizStarted }

// EventQuizStartFailed is published when the question source fails.
type EventQuizStartFailed struct {
	SessionID string
	Reason    string
}

func (EventQuizStartFailed) Name() string { return EventNameQuizStartFailed }

// EventQuizCompleted is published once per session, either on explicit
// submission or when the countdown runs out (Auto).
type EventQuizCompleted struct {
	Session CompletedSession
}

func (EventQuizCompleted) Name() string { return EventNameQuizCompleted }

type EventQuizReset struct {
	SessionID string
}

func (EventQuizReset) Name() string { return EventNameQuizReset }

type EventLeaderboardUpdated struct {
	Leaderboard Leaderboard
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }
