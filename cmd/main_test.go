// File: cmd/main_test.go
package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/opera-farm/internal/config"
	"github.com/xkilldash9x/opera-farm/internal/farm"
	"github.com/xkilldash9x/opera-farm/internal/observability"
	"github.com/xkilldash9x/opera-farm/internal/store"
)

// resetForTest provides the single source of truth for resetting test state.
func resetForTest(t *testing.T) {
	t.Helper()

	// 1. Reset Viper and prevent auto-discovery
	viper.Reset()
	viper.SetConfigName("a-config-file-that-does-not-exist")

	// 2. Reset package-level flag variables
	cfgFile = ""
	envFile = ""

	// 3. Reset the logger to a silent state with no log file
	observability.ResetForTest()
	observability.InitializeLogger(config.LoggerConfig{Level: "fatal", Format: "console", ServiceName: "test"})
	t.Cleanup(observability.ResetForTest)

	// 4. Rebuild the command tree
	rootCmd = NewRootCommand()
}

// executeCommand runs the root command with args and returns its output.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

// writeFile creates name under a temp dir and returns its path.
func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const twoProfiles = `
profiles:
  - id: p-1
    wallet_address: "0xAAAA.."
  - id: p-2
    wallet_address: "0xBBBB.."
    debugger_url: ws://127.0.0.1:9222/devtools/browser/abc
`

// newTestConfig returns the defaults with the secrets a farm run needs.
func newTestConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Wallet.Password = "hunter2"
	cfg.Logger.LogFile = ""
	return cfg
}

// -- Ledger Mock --

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) RecordRun(ctx context.Context, report *farm.RunReport) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

func (m *mockLedger) EnsureSchema(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockLedger) RecentRuns(ctx context.Context, profileID string, limit int) ([]store.Run, error) {
	args := m.Called(ctx, profileID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]store.Run), args.Error(1)
}

// fakeProvider hands out a prepared ledger.
type fakeProvider struct {
	ledger   runLedger
	err      error
	cleanups int
}

func (p *fakeProvider) Create(ctx context.Context, cfg *config.Config) (runLedger, func(), error) {
	if p.err != nil {
		return nil, nil, p.err
	}
	return p.ledger, func() { p.cleanups++ }, nil
}
