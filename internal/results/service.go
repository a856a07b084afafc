// Package results archives completed quiz sessions in Postgres.
package results

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/victornm/tquiz/internal/domain"
	"github.com/victornm/tquiz/internal/errors"
	"github.com/victornm/tquiz/internal/event"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

type Config struct {
	EventBus *event.Bus
	DB       *pgxpool.Pool
}

type Service struct {
	eb *event.Bus
	db *pgxpool.Pool
}

func NewService(c Config) *Service {
	s := &Service{
		eb: c.EventBus,
		db: c.DB,
	}

	s.eb.Subscribe(domain.EventNameQuizCompleted, func(ctx context.Context, e event.Event) error {
		err := s.ArchiveResult(ctx, e.(domain.EventQuizCompleted).Session)
		if errors.HasCode(err, errors.CodeAlreadyExists) {
			return nil
		}
		return err
	})

	return s
}

// Migrate creates the archive table when it does not exist yet.
func (s *Service) Migrate(ctx context.Context) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS quiz_results (
	session_id      TEXT PRIMARY KEY,
	email           TEXT NOT NULL,
	total_questions INT NOT NULL,
	correct_answers INT NOT NULL,
	score           NUMERIC(5, 0) NOT NULL,
	time_spent      INT NOT NULL,
	answers         JSONB NOT NULL,
	auto_submitted  BOOLEAN NOT NULL DEFAULT FALSE,
	completed_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS quiz_results_email_idx ON quiz_results (email, completed_at DESC);`

	if _, err := s.db.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("migrate quiz_results: %w", err)
	}

	slog.InfoContext(ctx, "results: migrated")
	return nil
}

// ArchiveResult stores a completed session. A session is archived at most once;
// a second attempt fails with CodeAlreadyExists.
func (s *Service) ArchiveResult(ctx context.Context, cs domain.CompletedSession) error {
	answers, err := json.Marshal(cs.Results.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}

	const stmt = `
INSERT INTO quiz_results (session_id, email, total_questions, correct_answers, score, time_spent, answers, auto_submitted, completed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);`

	_, err = s.db.Exec(ctx, stmt,
		cs.SessionID,
		cs.UserEmail,
		cs.Results.TotalQuestions,
		cs.Results.CorrectAnswers,
		decimal.NewFromInt(int64(cs.Results.Score)),
		cs.Results.TimeSpent,
		answers,
		cs.Auto,
		cs.CompletedAt,
	)

	var pgErr *pgconn.PgError
	const codeUniqueViolation = "23505"
	if stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("result already archived: session=%s", cs.SessionID),
			errors.WithCause(err))
	}

	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}

	slog.InfoContext(ctx, "results: archived", "session", cs.SessionID, "score", cs.Results.Score)
	return nil
}

type ListResultsRequest struct {
	UserEmail string
	Limit     int
}

// ListResults returns the archived results of a user, most recent first.
func (s *Service) ListResults(ctx context.Context, req ListResultsRequest) ([]domain.CompletedSession, error) {
	if req.UserEmail == "" {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("email is required"))
	}

	const stmt = `
SELECT session_id, email, total_questions, correct_answers, score, time_spent, answers, auto_submitted, completed_at
FROM quiz_results
WHERE email = $1
ORDER BY completed_at DESC
LIMIT $2;`

	rows, err := s.db.Query(ctx, stmt, req.UserEmail, clampLimit(req.Limit))
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}

	return pgx.CollectRows(rows, scanResult)
}

func scanResult(r pgx.CollectableRow) (domain.CompletedSession, error) {
	var (
		cs      domain.CompletedSession
		score   decimal.Decimal
		answers []byte
	)

	if err := r.Scan(
		&cs.SessionID,
		&cs.UserEmail,
		&cs.Results.TotalQuestions,
		&cs.Results.CorrectAnswers,
		&score,
		&cs.Results.TimeSpent,
		&answers,
		&cs.Auto,
		&cs.CompletedAt,
	); err != nil {
		return domain.CompletedSession{}, err
	}

	cs.Results.Score = int(score.IntPart())
	if err := json.Unmarshal(answers, &cs.Results.Answers); err != nil {
		return domain.CompletedSession{}, fmt.Errorf("decode answers: %w", err)
	}

	return cs, nil
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return defaultListLimit
	case n > maxListLimit:
		return maxListLimit
	default:
		return n
	}
}
