package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/victornm/tquiz/internal/errors"
	"github.com/victornm/tquiz/internal/event"
	"github.com/victornm/tquiz/internal/quiz"
)

const (
	defaultIdleTTL         = 2 * time.Hour
	defaultJanitorInterval = time.Minute
)

type Config struct {
	Source          quiz.Source
	EventBus        *event.Bus
	IdleTTL         time.Duration
	JanitorInterval time.Duration

	// NewTickerFunc drives both the quiz countdowns and the janitor.
	NewTickerFunc quiz.NewTickerFunc
	Now           func() time.Time
}

// Service keeps the live quiz sessions of this process. Sessions live in
// memory only and are closed after IdleTTL without activity.
type Service struct {
	source          quiz.Source
	eb              *event.Bus
	idleTTL         time.Duration
	janitorInterval time.Duration
	newTicker       quiz.NewTickerFunc
	now             func() time.Time

	mu       sync.RWMutex
	sessions map[string]*quiz.Session
}

func NewService(c Config) *Service {
	s := &Service{
		source:          c.Source,
		eb:              c.EventBus,
		idleTTL:         c.IdleTTL,
		janitorInterval: c.JanitorInterval,
		newTicker:       c.NewTickerFunc,
		now:             c.Now,
		sessions:        make(map[string]*quiz.Session),
	}

	if s.idleTTL <= 0 {
		s.idleTTL = defaultIdleTTL
	}
	if s.janitorInterval <= 0 {
		s.janitorInterval = defaultJanitorInterval
	}
	if s.newTicker == nil {
		s.newTicker = quiz.NewTicker
	}
	if s.now == nil {
		s.now = time.Now
	}

	return s
}

// CreateSession registers a new session in the NotStarted state.
func (s *Service) CreateSession(ctx context.Context) (*quiz.Session, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate session ID: %w", err)
	}

	ss := quiz.NewSession(quiz.Config{
		ID:            id.String(),
		Source:        s.source,
		EventBus:      s.eb,
		NewTickerFunc: s.newTicker,
		Now:           s.now,
	})

	s.mu.Lock()
	s.sessions[ss.ID()] = ss
	s.mu.Unlock()

	slog.InfoContext(ctx, "session: created", "session", ss.ID())

	return ss, nil
}

func (s *Service) GetSession(_ context.Context, id string) (*quiz.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ss, ok := s.sessions[id]
	if !ok {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("session not found: session=%s", id))
	}

	return ss, nil
}

// DeleteSession closes the session and forgets it.
func (s *Service) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	ss, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if !ok {
		return errors.New(errors.CodeNotFound, errors.WithMessagef("session not found: session=%s", id))
	}

	ss.Close()
	slog.InfoContext(ctx, "session: deleted", "session", id)

	return nil
}

func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.sessions)
}

// EvictIdle closes every session untouched for longer than IdleTTL and returns
// how many were evicted.
func (s *Service) EvictIdle(ctx context.Context) int {
	deadline := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	var idle []*quiz.Session
	for id, ss := range s.sessions {
		if ss.LastActive().Before(deadline) {
			idle = append(idle, ss)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, ss := range idle {
		ss.Close()
	}

	if len(idle) > 0 {
		slog.InfoContext(ctx, "session: evicted idle sessions", "count", len(idle))
	}

	return len(idle)
}

// Run evicts idle sessions on every janitor tick until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	t := s.newTicker(s.janitorInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C():
			s.EvictIdle(ctx)
		}
	}
}

// Stop closes all sessions.
func (s *Service) Stop() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*quiz.Session)
	s.mu.Unlock()

	for _, ss := range sessions {
		ss.Close()
	}
}
