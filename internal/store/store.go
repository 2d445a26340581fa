package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/opera-farm/internal/farm"
	"github.com/xkilldash9x/opera-farm/internal/observability"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS farm_runs (
    run_id          TEXT PRIMARY KEY,
    profile_id      TEXT NOT NULL,
    wallet_address  TEXT NOT NULL,
    started_at      TIMESTAMPTZ NOT NULL,
    finished_at     TIMESTAMPTZ NOT NULL,
    reached_stage   TEXT NOT NULL,
    check_in        TEXT NOT NULL,
    wallet_switched BOOLEAN NOT NULL,
    prompts_planned INTEGER NOT NULL,
    prompts_sent    INTEGER NOT NULL,
    start_points    INTEGER,
    end_points      INTEGER,
    error           TEXT
);
CREATE INDEX IF NOT EXISTS farm_runs_profile_started_idx ON farm_runs (profile_id, started_at DESC);
`

const insertRunSQL = `
INSERT INTO farm_runs (
    run_id, profile_id, wallet_address, started_at, finished_at, reached_stage, check_in,
    wallet_switched, prompts_planned, prompts_sent, start_points, end_points, error
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (run_id) DO NOTHING;
`

const recentRunsSQL = `
SELECT run_id, profile_id, wallet_address, started_at, finished_at, reached_stage, check_in,
    wallet_switched, prompts_planned, prompts_sent, start_points, end_points, error
FROM farm_runs
WHERE ($1 = '' OR profile_id = $1)
ORDER BY started_at DESC
LIMIT $2;
`

// Run is one row of the ledger.
type Run struct {
	RunID          string    `json:"run_id"`
	ProfileID      string    `json:"profile_id"`
	WalletAddress  string    `json:"wallet_address"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	ReachedStage   string    `json:"reached_stage"`
	CheckIn        string    `json:"check_in"`
	WalletSwitched bool      `json:"wallet_switched"`
	PromptsPlanned int       `json:"prompts_planned"`
	PromptsSent    int       `json:"prompts_sent"`
	StartPoints    *int      `json:"start_points,omitempty"`
	EndPoints      *int      `json:"end_points,omitempty"`
	Error          *string   `json:"error,omitempty"`
}

// Delta is the points earned, when both readings were taken.
func (r Run) Delta() (int, bool) {
	if r.StartPoints == nil || r.EndPoints == nil {
		return 0, false
	}
	return *r.EndPoints - *r.StartPoints, true
}

// Store is the PostgreSQL run ledger.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// Connect opens a pgx pool for url and wraps it in a Store. The returned
// close function releases the pool.
func Connect(ctx context.Context, url string, logger *zap.Logger) (*Store, func(), error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	s, err := New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool.Close, nil
}

// EnsureSchema creates the ledger table when it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// RecordRun inserts one report. Recording the same run twice is a no-op.
func (s *Store) RecordRun(ctx context.Context, report *farm.RunReport) error {
	var errText *string
	if report.Err != nil {
		msg := observability.TrimError(report.Err)
		errText = &msg
	}

	tag, err := s.pool.Exec(ctx, insertRunSQL,
		report.RunID,
		report.ProfileID,
		report.WalletAddress,
		report.StartedAt.UTC(),
		report.FinishedAt.UTC(),
		report.Reached.String(),
		report.CheckIn.String(),
		report.WalletSwitched,
		report.PromptsPlanned,
		report.PromptsSent,
		pointsOrNull(report.Start),
		pointsOrNull(report.End),
		errText,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", report.RunID, err)
	}
	if tag.RowsAffected() == 0 {
		s.log.Debug("Run already recorded.", zap.String("run_id", report.RunID))
	}
	return nil
}

func pointsOrNull(p farm.PointsReading) *int {
	if !p.Known() {
		return nil
	}
	v := p.Value
	return &v
}

// RecentRuns returns the newest runs first. An empty profileID matches every
// profile.
func (s *Store) RecentRuns(ctx context.Context, profileID string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, recentRunsSQL, profileID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(
			&r.RunID, &r.ProfileID, &r.WalletAddress, &r.StartedAt, &r.FinishedAt,
			&r.ReachedStage, &r.CheckIn, &r.WalletSwitched, &r.PromptsPlanned, &r.PromptsSent,
			&r.StartPoints, &r.EndPoints, &r.Error,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return runs, nil
}
