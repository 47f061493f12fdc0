package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/phonepilot/api/schemas"
	"github.com/xkilldash9x/phonepilot/internal/config"
)

// DBPool abstracts pgxpool.Pool for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS tasks (
    id          TEXT PRIMARY KEY,
    goal        TEXT NOT NULL,
    outcome     TEXT,
    message     TEXT,
    steps       INT NOT NULL DEFAULT 0,
    duration_ms BIGINT NOT NULL DEFAULT 0,
    started_at  TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS task_steps (
    task_id     TEXT NOT NULL REFERENCES tasks(id),
    step_number INT NOT NULL,
    attempt     INT NOT NULL DEFAULT 1,
    thinking    TEXT,
    raw_action  TEXT,
    action      JSONB,
    success     BOOLEAN NOT NULL,
    detail      TEXT,
    duration_ms BIGINT NOT NULL,
    ttft_ms     BIGINT NOT NULL,
    started_at  TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (task_id, step_number, attempt)
);
`

// PostgresStore persists tasks and steps to PostgreSQL.
type PostgresStore struct {
	pool DBPool
	log  *zap.Logger
}

var _ Store = (*PostgresStore)(nil)

// NewPostgres verifies the connection and creates the schema if missing.
func NewPostgres(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresStore, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}
	return &PostgresStore{pool: pool, log: logger.Named("history")}, nil
}

func (s *PostgresStore) BeginTask(ctx context.Context, taskID, goal string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tasks (id, goal, started_at) VALUES ($1, $2, NOW())`,
		taskID, goal)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecordStep(ctx context.Context, rec *schemas.StepRecord) error {
	var action []byte
	if rec.Action != nil {
		var err error
		action, err = json.Marshal(rec.Action)
		if err != nil {
			return fmt.Errorf("failed to marshal action: %w", err)
		}
	} else {
		action = []byte("null")
	}

	attempt := rec.Attempt
	if attempt <= 0 {
		attempt = 1
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO task_steps
		 (task_id, step_number, attempt, thinking, raw_action, action, success, detail, duration_ms, ttft_ms, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.TaskID, rec.StepNumber, attempt, rec.Thinking, rec.RawAction, action,
		rec.Success, rec.Detail, rec.Duration.Milliseconds(),
		rec.Metrics.TimeToFirstToken.Milliseconds(), rec.StartedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert step: %w", err)
	}
	return nil
}

func (s *PostgresStore) FinishTask(ctx context.Context, res *schemas.TaskResult) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE tasks
		 SET outcome = $2, message = $3, steps = $4, duration_ms = $5, finished_at = NOW()
		 WHERE id = $1`,
		res.TaskID, string(res.Outcome), res.Message, res.Steps, res.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to finish task: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

// NewFromConfig builds the configured store. Disabled history yields the
// no-op store.
func NewFromConfig(ctx context.Context, cfg config.HistoryConfig, logger *zap.Logger) (Store, error) {
	if !cfg.Enabled {
		return NopStore{}, nil
	}
	pool, err := pgxpool.New(ctx, cfg.Postgres.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	store, err := NewPostgres(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}
