// File: cmd/farm_test.go
package cmd

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/opera-farm/internal/config"
	"github.com/xkilldash9x/opera-farm/internal/engine"
	"github.com/xkilldash9x/opera-farm/internal/farm"
	"github.com/xkilldash9x/opera-farm/internal/mocks"
	"github.com/xkilldash9x/opera-farm/internal/profile"
	"github.com/xkilldash9x/opera-farm/internal/prompt"
)

// stubRunner returns canned reports keyed by profile id.
type stubRunner struct {
	mu      sync.Mutex
	reports map[string]*farm.RunReport
	ran     []string
}

func (s *stubRunner) Run(ctx context.Context, p farm.Profile, profileNum int) *farm.RunReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ran = append(s.ran, p.ID())
	return s.reports[p.ID()]
}

func okReport(id string, start, end int) *farm.RunReport {
	return &farm.RunReport{
		RunID:          id + "-run",
		ProfileID:      id,
		Reached:        farm.StagePromptsSubmitted,
		CheckIn:        farm.CheckInClaimed,
		PromptsPlanned: 7,
		PromptsSent:    7,
		Start:          farm.KnownPoints(start),
		End:            farm.KnownPoints(end),
	}
}

type farmHarness struct {
	deps        farmDeps
	runner      *stubRunner
	provider    *fakeProvider
	generated   bool
	concurrency int
}

func newFarmHarness() *farmHarness {
	h := &farmHarness{
		runner: &stubRunner{reports: map[string]*farm.RunReport{
			"p-1": okReport("p-1", 100, 107),
			"p-2": okReport("p-2", 50, 56),
		}},
		provider: &fakeProvider{},
	}
	h.deps = farmDeps{
		profiles: func(cfg *config.Config, specs []profile.Spec, logger *zap.Logger) []farm.Profile {
			h.concurrency = cfg.Runner.Concurrency
			out := make([]farm.Profile, len(specs))
			for i, s := range specs {
				out[i] = mocks.NewProfile(s.ID, s.WalletAddress)
			}
			return out
		},
		generator: func(ctx context.Context, cfg config.PromptConfig, logger *zap.Logger) (prompt.Generator, error) {
			h.generated = true
			return prompt.NewStatic(1), nil
		},
		workflow: func(cfg *config.Config, gen prompt.Generator, logger *zap.Logger) (engine.Runner, error) {
			return h.runner, nil
		},
		stores: h.provider,
	}
	return h
}

func TestRunFarm(t *testing.T) {
	profilesPath := writeFile(t, "profiles.yaml", twoProfiles)

	t.Run("farms every profile and prints a summary", func(t *testing.T) {
		h := newFarmHarness()
		var out bytes.Buffer

		err := runFarm(context.Background(), zap.NewNop(), newTestConfig(),
			farmOptions{profilesFile: profilesPath, concurrency: 2}, h.deps, &out)
		require.NoError(t, err)

		assert.ElementsMatch(t, []string{"p-1", "p-2"}, h.runner.ran)
		assert.Equal(t, 2, h.concurrency, "flag overrides runner.concurrency")
		assert.Contains(t, out.String(), "p-1")
		assert.Contains(t, out.String(), "+7")
		assert.Contains(t, out.String(), "prompts_submitted")
		assert.Contains(t, out.String(), "runs: 2  failed: 0  earned: 13")
		assert.Zero(t, h.provider.cleanups, "no store without database.url")
	})

	t.Run("only farms the selected profiles", func(t *testing.T) {
		h := newFarmHarness()
		err := runFarm(context.Background(), zap.NewNop(), newTestConfig(),
			farmOptions{profilesFile: profilesPath, only: []string{"p-2"}}, h.deps, &bytes.Buffer{})
		require.NoError(t, err)
		assert.Equal(t, []string{"p-2"}, h.runner.ran)
	})

	t.Run("unknown profile ids fail before anything runs", func(t *testing.T) {
		h := newFarmHarness()
		err := runFarm(context.Background(), zap.NewNop(), newTestConfig(),
			farmOptions{profilesFile: profilesPath, only: []string{"p-9"}}, h.deps, &bytes.Buffer{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "p-9")
		assert.Empty(t, h.runner.ran)
	})

	t.Run("fails fast without a wallet password", func(t *testing.T) {
		h := newFarmHarness()
		cfg := newTestConfig()
		cfg.Wallet.Password = ""

		err := runFarm(context.Background(), zap.NewNop(), cfg,
			farmOptions{profilesFile: profilesPath}, h.deps, &bytes.Buffer{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "wallet.password is required")
		assert.False(t, h.generated)
		assert.Empty(t, h.runner.ran)
	})

	t.Run("a missing profiles file is an error", func(t *testing.T) {
		h := newFarmHarness()
		err := runFarm(context.Background(), zap.NewNop(), newTestConfig(),
			farmOptions{profilesFile: "/nonexistent/profiles.yaml"}, h.deps, &bytes.Buffer{})
		assert.Error(t, err)
	})

	t.Run("reports failed runs in the exit error", func(t *testing.T) {
		h := newFarmHarness()
		failed := okReport("p-2", 0, 0)
		failed.Reached = farm.StageProfileOpened
		failed.Err = errors.New("open wallet: context deadline exceeded")
		h.runner.reports["p-2"] = failed
		var out bytes.Buffer

		err := runFarm(context.Background(), zap.NewNop(), newTestConfig(),
			farmOptions{profilesFile: profilesPath}, h.deps, &out)
		require.Error(t, err)
		assert.Equal(t, "1 of 2 runs failed", err.Error())
		assert.Contains(t, out.String(), "open wallet: context deadline exceeded")
		assert.Contains(t, out.String(), "runs: 2  failed: 1")
	})

	t.Run("records runs when a database is configured", func(t *testing.T) {
		h := newFarmHarness()
		ledger := new(mockLedger)
		ledger.On("EnsureSchema", mock.Anything).Return(nil).Once()
		ledger.On("RecordRun", mock.Anything, mock.AnythingOfType("*farm.RunReport")).Return(nil).Times(2)
		h.provider.ledger = ledger

		cfg := newTestConfig()
		cfg.Database.URL = "postgres://farm@localhost/farm"
		err := runFarm(context.Background(), zap.NewNop(), cfg,
			farmOptions{profilesFile: profilesPath}, h.deps, &bytes.Buffer{})
		require.NoError(t, err)
		ledger.AssertExpectations(t)
		assert.Equal(t, 1, h.provider.cleanups)
	})

	t.Run("store errors stop the run", func(t *testing.T) {
		h := newFarmHarness()
		h.provider.err = errors.New("connection refused")

		cfg := newTestConfig()
		cfg.Database.URL = "postgres://farm@localhost/farm"
		err := runFarm(context.Background(), zap.NewNop(), cfg,
			farmOptions{profilesFile: profilesPath}, h.deps, &bytes.Buffer{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to initialize store")
		assert.Empty(t, h.runner.ran)
	})

	t.Run("schema errors stop the run", func(t *testing.T) {
		h := newFarmHarness()
		ledger := new(mockLedger)
		ledger.On("EnsureSchema", mock.Anything).Return(errors.New("permission denied"))
		h.provider.ledger = ledger

		cfg := newTestConfig()
		cfg.Database.URL = "postgres://farm@localhost/farm"
		err := runFarm(context.Background(), zap.NewNop(), cfg,
			farmOptions{profilesFile: profilesPath}, h.deps, &bytes.Buffer{})
		require.Error(t, err)
		assert.Empty(t, h.runner.ran)
		assert.Equal(t, 1, h.provider.cleanups)
	})

	t.Run("a canceled context returns the interruption", func(t *testing.T) {
		h := newFarmHarness()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := runFarm(ctx, zap.NewNop(), newTestConfig(),
			farmOptions{profilesFile: profilesPath}, h.deps, &bytes.Buffer{})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestFarmCmdFlags(t *testing.T) {
	cmd := newFarmCmd(newFarmHarness().deps)
	require.NoError(t, cmd.ParseFlags([]string{"-p", "x.yaml", "--only", "a,b", "-j", "4"}))

	p, _ := cmd.Flags().GetString("profiles")
	only, _ := cmd.Flags().GetStringSlice("only")
	j, _ := cmd.Flags().GetInt("concurrency")
	assert.Equal(t, "x.yaml", p)
	assert.Equal(t, []string{"a", "b"}, only)
	assert.Equal(t, 4, j)
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "?", formatReading(farm.UnknownPoints(nil)))
	assert.Equal(t, "1234", formatReading(farm.KnownPoints(1234)))
	assert.Equal(t, "+6", formatDelta(6, true))
	assert.Equal(t, "+0", formatDelta(0, true))
	assert.Equal(t, "?", formatDelta(0, false))
}
