package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/tquiz/internal/domain"
	"github.com/victornm/tquiz/internal/errors"
	"github.com/victornm/tquiz/internal/event"
)

const (
	publishInterval = 200 * time.Millisecond
	defaultLimit    = 10
)

type Config struct {
	EventBus *event.Bus
	Redis    redis.UniversalClient
	Prefix   string
}

type Service struct {
	eb     *event.Bus
	redis  redis.UniversalClient
	prefix string
}

func NewService(c Config) *Service {
	s := &Service{
		eb:     c.EventBus,
		redis:  c.Redis,
		prefix: c.Prefix,
	}

	s.eb.Subscribe(domain.EventNameQuizCompleted, func(ctx context.Context, e event.Event) error {
		return s.UpdateLeaderboard(ctx, e.(domain.EventQuizCompleted))
	})

	return s
}

type GetLeaderboardRequest struct {
	// Limit is the number of top entries returned. Zero means the default.
	Limit int
}

// GetLeaderboard returns the best score of every user, highest first.
func (s *Service) GetLeaderboard(ctx context.Context, req GetLeaderboardRequest) (*domain.Leaderboard, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	res, err := s.redis.ZRevRangeWithScores(ctx, s.getLeaderboardKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}

	if len(res) == 0 {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("leaderboard is empty"))
	}

	entries := make([]domain.LeaderboardEntry, 0, len(res))
	for _, z := range res {
		entries = append(entries, domain.LeaderboardEntry{
			UserEmail: z.Member.(string),
			Score:     z.Score,
		})
	}

	return &domain.Leaderboard{
		Entries: entries,
	}, nil
}

// UpdateLeaderboard keeps the user's best score. A lower score never replaces
// a higher one.
func (s *Service) UpdateLeaderboard(ctx context.Context, e domain.EventQuizCompleted) error {
	cs := e.Session

	if err := s.redis.ZAddGT(ctx, s.getLeaderboardKey(), redis.Z{
		Score:  float64(cs.Results.Score),
		Member: cs.UserEmail,
	}).Err(); err != nil {
		return fmt.Errorf("update leaderboard: %w", err)
	}

	return s.schedulePublishLeaderboard(ctx, cs)
}

// schedulePublishLeaderboard publishes at most one leaderboard.updated event per
// publish interval, however many sessions complete within it.
func (s *Service) schedulePublishLeaderboard(ctx context.Context, cs domain.CompletedSession) error {
	// SETNX across instances; a gate held by a crashed instance expires on its own.
	ok, err := s.redis.SetNX(ctx, s.getLeaderboardTimeKey(), cs.CompletedAt.UnixMilli(), publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if !ok {
		return nil
	}

	return s.publishLeaderboard(ctx)
}

func (s *Service) publishLeaderboard(ctx context.Context) error {
	l, err := s.GetLeaderboard(ctx, GetLeaderboardRequest{})
	if err != nil {
		return fmt.Errorf("get leaderboard failed: %w", err)
	}

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{
		Leaderboard: *l,
	})

	return nil
}

func (s *Service) getLeaderboardKey() string {
	return fmt.Sprintf("%s:leaderboard", s.prefix)
}

func (s *Service) getLeaderboardTimeKey() string {
	return fmt.Sprintf("%s:leaderboard:time", s.prefix)
}
