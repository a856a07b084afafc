package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/victornm/tquiz/internal/domain"
	"github.com/victornm/tquiz/internal/scoring"
)

const maxConcurrent = 100

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	QuizCompleted struct {
		SessionID      string `json:"session_id"`
		Score          int    `json:"score"`
		Grade          string `json:"grade"`
		CorrectAnswers int    `json:"correct_answers"`
		TotalQuestions int    `json:"total_questions"`
		TimeSpent      string `json:"time_spent"`
		Auto           bool   `json:"auto"`
	}

	Leaderboard struct {
		Entries []LeaderboardEntry `json:"entries"`
	}

	LeaderboardEntry struct {
		Email string `json:"email"`
		Score string `json:"score"`
	}
)

// PublishQuizCompleted notifies the user who finished the quiz.
func (a *API) PublishQuizCompleted(ctx context.Context, e domain.EventQuizCompleted) error {
	cs := e.Session

	data := QuizCompleted{
		SessionID:      cs.SessionID,
		Score:          cs.Results.Score,
		Grade:          scoring.Grade(cs.Results.Score),
		CorrectAnswers: cs.Results.CorrectAnswers,
		TotalQuestions: cs.Results.TotalQuestions,
		TimeSpent:      scoring.FormatDuration(cs.Results.TimeSpent),
		Auto:           cs.Auto,
	}

	return a.publishNotification(ctx, cs.UserEmail, e.Name(), data)
}

// PublishLeaderboardUpdated sends the new leaderboard to everyone on it. Each
// recipient sees their own email; the others are masked.
func (a *API) PublishLeaderboardUpdated(ctx context.Context, e domain.EventLeaderboardUpdated) error {
	l := e.Leaderboard

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	for _, recipient := range l.Entries {
		eg.Go(func() error {
			return a.publishNotification(ctx, recipient.UserEmail, e.Name(), leaderboardFor(l, recipient.UserEmail))
		})
	}

	return eg.Wait()
}

func leaderboardFor(l domain.Leaderboard, recipient string) Leaderboard {
	data := Leaderboard{
		Entries: make([]LeaderboardEntry, 0, len(l.Entries)),
	}

	for _, entry := range l.Entries {
		email := entry.UserEmail
		if email != recipient {
			email = MaskEmail(email)
		}

		data.Entries = append(data.Entries, LeaderboardEntry{
			Email: email,
			Score: strconv.FormatFloat(entry.Score, 'f', -1, 64),
		})
	}

	return data
}

// MaskEmail keeps the first character of the local part and the domain:
// "alice@example.com" becomes "a***@example.com".
func MaskEmail(email string) string {
	local, host, ok := strings.Cut(email, "@")
	if !ok || local == "" {
		return "***"
	}

	return string([]rune(local)[0]) + "***@" + host
}

func (a *API) publishNotification(ctx context.Context, user, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, a.userChannel(user), b).Err()
}

func (a *API) userChannel(user string) string {
	return fmt.Sprintf("%s:user:%s", a.prefix, user)
}
