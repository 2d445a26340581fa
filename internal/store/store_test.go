package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/opera-farm/internal/farm"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace for more robust SQL mock testing.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

func intPtr(v int) *int { return &v }

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing()
	s, err := New(context.Background(), mockPool, zap.NewNop())
	require.NoError(t, err)
	return s, mockPool
}

func sampleReport() *farm.RunReport {
	started := time.Date(2024, 5, 1, 9, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	return &farm.RunReport{
		RunID:          "run-1",
		ProfileID:      "p-1",
		WalletAddress:  "0xAbCd..",
		StartedAt:      started,
		FinishedAt:     started.Add(4 * time.Minute),
		Reached:        farm.StagePromptsSubmitted,
		CheckIn:        farm.CheckInClaimed,
		WalletSwitched: true,
		PromptsPlanned: 7,
		PromptsSent:    6,
		Start:          farm.KnownPoints(120),
		End:            farm.KnownPoints(126),
	}
}

func TestNewStore(t *testing.T) {
	t.Run("should return error if ping fails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer mockPool.Close()

		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err = New(context.Background(), mockPool, zap.NewNop())
		require.Error(t, err)
		assert.ErrorIs(t, err, pingErr, "Error from ping should be propagated")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("pings the database once on creation", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectPing()
		s, err := New(context.Background(), mockPool, zap.NewNop())
		require.NoError(t, err)
		assert.NotNil(t, s)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestEnsureSchema(t *testing.T) {
	t.Run("creates the ledger table", func(t *testing.T) {
		s, mockPool := newMockStore(t)
		mockPool.ExpectExec(flexibleSQLMatcher(schemaSQL)).
			WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

		require.NoError(t, s.EnsureSchema(context.Background()))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("wraps exec errors", func(t *testing.T) {
		s, mockPool := newMockStore(t)
		dbErr := errors.New("permission denied")
		mockPool.ExpectExec(flexibleSQLMatcher(schemaSQL)).WillReturnError(dbErr)

		err := s.EnsureSchema(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, dbErr)
		assert.Contains(t, err.Error(), "failed to create schema")
	})
}

func TestRecordRun(t *testing.T) {
	t.Run("inserts a successful run in UTC", func(t *testing.T) {
		s, mockPool := newMockStore(t)
		r := sampleReport()

		mockPool.ExpectExec(flexibleSQLMatcher(insertRunSQL)).
			WithArgs(
				"run-1", "p-1", "0xAbCd..",
				r.StartedAt.UTC(), r.FinishedAt.UTC(),
				"prompts_submitted", "claimed", true, 7, 6,
				intPtr(120), intPtr(126), (*string)(nil),
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, s.RecordRun(context.Background(), r))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("stores unknown readings as NULL and keeps the error text", func(t *testing.T) {
		s, mockPool := newMockStore(t)
		r := sampleReport()
		r.Reached = farm.StageWalletUnlocked
		r.CheckIn = farm.CheckInSkipped
		r.PromptsPlanned, r.PromptsSent = 0, 0
		r.Start = farm.UnknownPoints(nil)
		r.End = farm.UnknownPoints(errors.New("label missing"))
		r.Err = errors.New("sign in: context deadline exceeded")

		errText := "sign in: context deadline exceeded"
		mockPool.ExpectExec(flexibleSQLMatcher(insertRunSQL)).
			WithArgs(
				"run-1", "p-1", "0xAbCd..",
				r.StartedAt.UTC(), r.FinishedAt.UTC(),
				"wallet_unlocked", "skipped", true, 0, 0,
				(*int)(nil), (*int)(nil), &errText,
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, s.RecordRun(context.Background(), r))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("a duplicate run id is not an error", func(t *testing.T) {
		s, mockPool := newMockStore(t)
		mockPool.ExpectExec(flexibleSQLMatcher(insertRunSQL)).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 0))

		assert.NoError(t, s.RecordRun(context.Background(), sampleReport()))
	})

	t.Run("wraps insert errors with the run id", func(t *testing.T) {
		s, mockPool := newMockStore(t)
		dbErr := errors.New("connection reset")
		mockPool.ExpectExec(flexibleSQLMatcher(insertRunSQL)).WillReturnError(dbErr)

		err := s.RecordRun(context.Background(), sampleReport())
		require.Error(t, err)
		assert.ErrorIs(t, err, dbErr)
		assert.Contains(t, err.Error(), "run-1")
	})
}

func TestRecentRuns(t *testing.T) {
	columns := []string{
		"run_id", "profile_id", "wallet_address", "started_at", "finished_at", "reached_stage", "check_in",
		"wallet_switched", "prompts_planned", "prompts_sent", "start_points", "end_points", "error",
	}
	started := time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC)
	failure := "open wallet: context deadline exceeded"

	t.Run("scans rows newest first", func(t *testing.T) {
		s, mockPool := newMockStore(t)
		rows := pgxmock.NewRows(columns).
			AddRow("run-2", "p-1", "0xAbCd..", started.Add(time.Hour), started.Add(65*time.Minute),
				"prompts_submitted", "cooldown", false, 6, 6, intPtr(10), intPtr(16), (*string)(nil)).
			AddRow("run-1", "p-1", "0xAbCd..", started, started.Add(time.Minute),
				"profile_opened", "skipped", false, 0, 0, (*int)(nil), (*int)(nil), &failure)
		mockPool.ExpectQuery(flexibleSQLMatcher(recentRunsSQL)).WithArgs("p-1", 5).WillReturnRows(rows)

		runs, err := s.RecentRuns(context.Background(), "p-1", 5)
		require.NoError(t, err)
		require.Len(t, runs, 2)

		assert.Equal(t, "run-2", runs[0].RunID)
		delta, ok := runs[0].Delta()
		assert.True(t, ok)
		assert.Equal(t, 6, delta)
		assert.Nil(t, runs[0].Error)

		assert.Equal(t, "profile_opened", runs[1].ReachedStage)
		_, ok = runs[1].Delta()
		assert.False(t, ok)
		require.NotNil(t, runs[1].Error)
		assert.Equal(t, failure, *runs[1].Error)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("defaults the limit", func(t *testing.T) {
		s, mockPool := newMockStore(t)
		mockPool.ExpectQuery(flexibleSQLMatcher(recentRunsSQL)).WithArgs("", 20).
			WillReturnRows(pgxmock.NewRows(columns))

		runs, err := s.RecentRuns(context.Background(), "", 0)
		require.NoError(t, err)
		assert.Empty(t, runs)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("wraps query errors", func(t *testing.T) {
		s, mockPool := newMockStore(t)
		dbErr := errors.New("relation does not exist")
		mockPool.ExpectQuery(flexibleSQLMatcher(recentRunsSQL)).WillReturnError(dbErr)

		_, err := s.RecentRuns(context.Background(), "", 10)
		require.Error(t, err)
		assert.ErrorIs(t, err, dbErr)
	})
}
