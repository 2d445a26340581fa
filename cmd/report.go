// File: cmd/report.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/opera-farm/internal/config"
	"github.com/xkilldash9x/opera-farm/internal/engine"
	"github.com/xkilldash9x/opera-farm/internal/observability"
	"github.com/xkilldash9x/opera-farm/internal/store"
)

// runLedger is what the commands need from the run store.
type runLedger interface {
	engine.Recorder
	EnsureSchema(ctx context.Context) error
	RecentRuns(ctx context.Context, profileID string, limit int) ([]store.Run, error)
}

// storeProvider defines an interface for components that can create a run
// ledger. This abstraction allows tests to inject a mock store instead of a
// live database connection.
type storeProvider interface {
	// Create returns the ledger, a cleanup function to release resources,
	// and an error if the creation fails.
	Create(ctx context.Context, cfg *config.Config) (runLedger, func(), error)
}

// defaultStoreProvider connects to PostgreSQL.
type defaultStoreProvider struct{}

// NewStoreProvider creates the production store provider.
func NewStoreProvider() storeProvider {
	return &defaultStoreProvider{}
}

// Create connects to the PostgreSQL database named by database.url.
func (p *defaultStoreProvider) Create(ctx context.Context, cfg *config.Config) (runLedger, func(), error) {
	logger := observability.GetLogger()
	if cfg.Database.URL == "" {
		return nil, nil, fmt.Errorf("database URL is not configured (OPERA_DATABASE_URL)")
	}

	s, closePool, err := store.Connect(ctx, cfg.Database.URL, logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		closePool()
		logger.Debug("Database connection pool closed.")
	}
	return s, cleanup, nil
}

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func newReportCmd(provider storeProvider) *cobra.Command {
	var profileID string
	var limit int
	var format string

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Show recent farming runs from the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			return runReport(ctx, observability.GetLogger(), cfg, profileID, limit, format, provider, cmd.OutOrStdout())
		},
	}

	reportCmd.Flags().StringVar(&profileID, "profile", "", "only show runs of this profile")
	reportCmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs to show")
	reportCmd.Flags().StringVarP(&format, "format", "f", "text", "output format: text or json")

	return reportCmd
}

// runReport contains the core, testable logic for printing the ledger.
func runReport(
	ctx context.Context,
	logger *zap.Logger,
	cfg *config.Config,
	profileID string,
	limit int,
	format string,
	provider storeProvider,
	out io.Writer,
) error {
	if format != "text" && format != "json" {
		return fmt.Errorf("unsupported format %q (want text or json)", format)
	}

	ledger, cleanup, err := provider.Create(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	if cleanup != nil {
		defer cleanup()
	}

	runs, err := ledger.RecentRuns(ctx, profileID, limit)
	if err != nil {
		return err
	}
	logger.Debug("Loaded runs.", zap.Int("count", len(runs)), zap.String("profile_id", profileID))

	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if runs == nil {
			runs = []store.Run{}
		}
		return enc.Encode(runs)
	}
	return printRuns(out, runs)
}

func printRuns(out io.Writer, runs []store.Run) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(out, "No runs recorded.")
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tPROFILE\tREACHED\tCHECK-IN\tPROMPTS\tEARNED\tDURATION\tERROR")
	for _, r := range runs {
		errText := ""
		if r.Error != nil {
			errText = observability.TrimMessage(*r.Error, 60)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%s\t%s\t%s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			r.ProfileID,
			r.ReachedStage,
			r.CheckIn,
			r.PromptsSent, r.PromptsPlanned,
			formatDelta(r.Delta()),
			r.FinishedAt.Sub(r.StartedAt).Round(time.Second),
			errText,
		)
	}
	return w.Flush()
}
