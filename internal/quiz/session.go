package quiz

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/victornm/tquiz/internal/domain"
	"github.com/victornm/tquiz/internal/errors"
	"github.com/victornm/tquiz/internal/event"
	"github.com/victornm/tquiz/internal/scoring"
)

// Source supplies question batches.
type Source interface {
	FetchQuestions(ctx context.Context, count int) ([]domain.Question, error)
}

type Config struct {
	ID            string
	Source        Source
	EventBus      *event.Bus
	NewTickerFunc NewTickerFunc
	Now           func() time.Time
}

// Session owns one Machine and the resources around it: the countdown, the
// in-flight question fetch and the snapshot watchers. All transitions happen
// under mu, so there is a single writer at any time.
type Session struct {
	id        string
	source    Source
	eb        *event.Bus
	newTicker NewTickerFunc
	now       func() time.Time

	mu         sync.Mutex
	m          *Machine
	loading    bool
	lastErr    string
	generation uint64
	closed     bool
	countdown  *Countdown
	lastActive time.Time
	watchers   map[chan domain.Snapshot]struct{}
}

func NewSession(c Config) *Session {
	s := &Session{
		id:        c.ID,
		source:    c.Source,
		eb:        c.EventBus,
		newTicker: c.NewTickerFunc,
		now:       c.Now,
		m:         NewMachine(),
		watchers:  make(map[chan domain.Snapshot]struct{}),
	}

	if s.newTicker == nil {
		s.newTicker = NewTicker
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.lastActive = s.now()

	return s
}

func (s *Session) ID() string { return s.id }

// Start validates the email, fetches a question batch and begins the attempt.
// The fetch runs without holding the session lock; a second Start while it is
// outstanding fails with ErrBusy. If the session is reset or closed before the
// fetch returns, the questions are dropped and ErrDiscarded is returned.
func (s *Session) Start(ctx context.Context, email string) error {
	s.mu.Lock()
	if err := s.checkStartLocked(email); err != nil {
		s.mu.Unlock()
		return err
	}

	s.loading = true
	s.lastErr = ""
	gen := s.generation
	s.touchLocked()
	s.broadcastLocked()
	s.mu.Unlock()

	questions, fetchErr := s.source.FetchQuestions(ctx, BatchSize)

	s.mu.Lock()
	if s.closed || gen != s.generation {
		s.mu.Unlock()
		slog.InfoContext(ctx, "quiz: discarded questions fetched for a retired session", "session", s.id)
		return ErrDiscarded
	}

	s.loading = false
	if fetchErr != nil {
		s.lastErr = ErrFetchFailed.Message
		s.broadcastLocked()
		s.mu.Unlock()

		s.publish(ctx, domain.EventQuizStartFailed{SessionID: s.id, Reason: fetchErr.Error()})
		return ErrFetchFailed.With(errors.WithCause(fetchErr))
	}

	if err := s.m.Begin(email, questions); err != nil {
		s.lastErr = errors.Convert(err).Message
		s.broadcastLocked()
		s.mu.Unlock()
		return err
	}

	s.startCountdownLocked()
	s.broadcastLocked()
	started := domain.EventQuizStarted{SessionID: s.id, UserEmail: email, Questions: len(questions)}
	s.mu.Unlock()

	slog.InfoContext(ctx, "quiz: session started", "session", s.id, "questions", started.Questions)
	s.publish(ctx, started)

	return nil
}

func (s *Session) checkStartLocked(email string) error {
	switch {
	case s.closed:
		return ErrClosed
	case s.loading:
		return ErrBusy
	case s.m.Status() != domain.StatusNotStarted:
		return ErrAlreadyStarted
	case !scoring.IsValidEmail(email):
		s.lastErr = ErrInvalidEmail.Message
		s.broadcastLocked()
		return ErrInvalidEmail
	}

	return nil
}

func (s *Session) SelectAnswer(choice string) domain.Snapshot {
	return s.mutate(func(m *Machine) bool { return m.SelectAnswer(choice) })
}

func (s *Session) GoTo(index int) domain.Snapshot {
	return s.mutate(func(m *Machine) bool { return m.GoTo(index) })
}

func (s *Session) Next() domain.Snapshot {
	return s.mutate((*Machine).Next)
}

func (s *Session) Previous() domain.Snapshot {
	return s.mutate((*Machine).Previous)
}

func (s *Session) mutate(fn func(m *Machine) bool) domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return s.snapshotLocked()
	}

	s.touchLocked()
	if fn(s.m) {
		s.broadcastLocked()
	}

	return s.snapshotLocked()
}

// Complete submits the attempt. Calling it again after completion changes
// nothing and publishes nothing.
func (s *Session) Complete(ctx context.Context) domain.Snapshot {
	s.mu.Lock()
	if s.closed || !s.m.Complete() {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap
	}

	s.touchLocked()
	s.stopCountdownLocked()
	s.broadcastLocked()
	completed := s.completedEventLocked(false)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	slog.InfoContext(ctx, "quiz: session completed", "session", s.id, "score", completed.Session.Results.Score)
	s.publish(ctx, completed)

	return snap
}

// Reset discards all session data, stops the countdown and drops any
// outstanding fetch.
func (s *Session) Reset(ctx context.Context) domain.Snapshot {
	s.mu.Lock()
	if s.closed {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap
	}

	s.generation++
	s.loading = false
	s.lastErr = ""
	s.stopCountdownLocked()
	s.m.Reset()
	s.touchLocked()
	s.broadcastLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(ctx, domain.EventQuizReset{SessionID: s.id})

	return snap
}

// Close tears the session down. It is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.closed = true
	s.generation++
	s.loading = false
	s.stopCountdownLocked()

	for ch := range s.watchers {
		close(ch)
	}
	clear(s.watchers)
}

func (s *Session) Snapshot() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshotLocked()
}

func (s *Session) Results() domain.Results {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.m.Results()
}

func (s *Session) Review() []domain.ReviewItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.m.Review()
}

// Report returns the results and the per question review of a completed
// session in one consistent read.
func (s *Session) Report() (domain.Results, []domain.ReviewItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.m.Status() != domain.StatusCompleted {
		return domain.Results{}, nil, ErrNotCompleted
	}

	return s.m.Results(), s.m.Review(), nil
}

func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastActive
}

// Watch returns a channel receiving a snapshot after every change, starting
// with the current one. Slow readers only see the latest snapshot. The channel
// is closed by cancel or when the session closes.
func (s *Session) Watch() (<-chan domain.Snapshot, func()) {
	ch := make(chan domain.Snapshot, 1)

	s.mu.Lock()
	ch <- s.snapshotLocked()
	if s.closed {
		close(ch)
		s.mu.Unlock()
		return ch, func() {}
	}
	s.watchers[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if _, ok := s.watchers[ch]; ok {
			delete(s.watchers, ch)
			close(ch)
		}
	}

	return ch, cancel
}

func (s *Session) onTick(c *Countdown) bool {
	s.mu.Lock()
	if s.closed || s.countdown != c {
		s.mu.Unlock()
		return false
	}

	if !s.m.Tick() {
		running := s.m.Status() == domain.StatusInProgress
		s.broadcastLocked()
		s.mu.Unlock()
		return running
	}

	s.countdown = nil
	s.broadcastLocked()
	completed := s.completedEventLocked(true)
	s.mu.Unlock()

	ctx := context.Background()
	slog.InfoContext(ctx, "quiz: time is up, session auto-submitted", "session", s.id, "score", completed.Session.Results.Score)
	s.publish(ctx, completed)

	return false
}

func (s *Session) startCountdownLocked() {
	s.stopCountdownLocked()
	s.countdown = startCountdown(s.newTicker, s.onTick)
}

func (s *Session) stopCountdownLocked() {
	if s.countdown != nil {
		s.countdown.Stop()
		s.countdown = nil
	}
}

func (s *Session) completedEventLocked(auto bool) domain.EventQuizCompleted {
	return domain.EventQuizCompleted{
		Session: domain.CompletedSession{
			SessionID:   s.id,
			UserEmail:   s.m.Email(),
			Results:     s.m.Results(),
			Auto:        auto,
			CompletedAt: s.now(),
		},
	}
}

func (s *Session) snapshotLocked() domain.Snapshot {
	snap := s.m.Snapshot()
	snap.SessionID = s.id
	snap.Loading = s.loading
	snap.Error = s.lastErr
	return snap
}

func (s *Session) broadcastLocked() {
	if len(s.watchers) == 0 {
		return
	}

	snap := s.snapshotLocked()
	for ch := range s.watchers {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

func (s *Session) touchLocked() {
	s.lastActive = s.now()
}

func (s *Session) publish(ctx context.Context, e event.Event) {
	if s.eb != nil {
		s.eb.Publish(ctx, e)
	}
}
