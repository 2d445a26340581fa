// File: cmd/farm.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/opera-farm/internal/config"
	"github.com/xkilldash9x/opera-farm/internal/engine"
	"github.com/xkilldash9x/opera-farm/internal/farm"
	"github.com/xkilldash9x/opera-farm/internal/observability"
	"github.com/xkilldash9x/opera-farm/internal/profile"
	"github.com/xkilldash9x/opera-farm/internal/prompt"
)

// farmDeps holds the factories the farm command builds its collaborators
// with, so tests can run the command without a browser or database.
type farmDeps struct {
	profiles  func(cfg *config.Config, specs []profile.Spec, logger *zap.Logger) []farm.Profile
	generator func(ctx context.Context, cfg config.PromptConfig, logger *zap.Logger) (prompt.Generator, error)
	workflow  func(cfg *config.Config, gen prompt.Generator, logger *zap.Logger) (engine.Runner, error)
	stores    storeProvider
}

func defaultFarmDeps() farmDeps {
	return farmDeps{
		profiles: func(cfg *config.Config, specs []profile.Spec, logger *zap.Logger) []farm.Profile {
			handles := profile.NewLauncher(cfg.Browser, logger).Handles(specs)
			out := make([]farm.Profile, len(handles))
			for i, h := range handles {
				out[i] = h
			}
			return out
		},
		generator: prompt.New,
		workflow: func(cfg *config.Config, gen prompt.Generator, logger *zap.Logger) (engine.Runner, error) {
			return farm.New(cfg, gen, logger)
		},
		stores: NewStoreProvider(),
	}
}

type farmOptions struct {
	profilesFile string
	only         []string
	concurrency  int
}

func newFarmCmd(deps farmDeps) *cobra.Command {
	var opts farmOptions

	farmCmd := &cobra.Command{
		Use:   "farm",
		Short: "Run the daily farming routine for every profile",
		Long: `Opens each profile, unlocks and selects its wallet, signs in to ChainOpera,
claims the daily check-in and submits chat prompts. Runs are recorded in the
ledger when database.url is configured.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			return runFarm(ctx, observability.GetLogger(), cfg, opts, deps, cmd.OutOrStdout())
		},
	}

	farmCmd.Flags().StringVarP(&opts.profilesFile, "profiles", "p", "", "profiles file (defaults to runner.profiles_file)")
	farmCmd.Flags().StringSliceVar(&opts.only, "only", nil, "comma-separated profile ids to farm (default all)")
	farmCmd.Flags().IntVarP(&opts.concurrency, "concurrency", "j", 0, "profiles farmed at once (overrides runner.concurrency)")

	return farmCmd
}

// runFarm contains the core, testable logic of the farm command.
func runFarm(ctx context.Context, logger *zap.Logger, cfg *config.Config, opts farmOptions, deps farmDeps, out io.Writer) error {
	if opts.concurrency > 0 {
		cfg.Runner.Concurrency = opts.concurrency
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	path := opts.profilesFile
	if path == "" {
		path = cfg.Runner.ProfilesFile
	}
	specs, err := profile.LoadFile(path)
	if err != nil {
		return err
	}
	specs, err = profile.Filter(specs, opts.only)
	if err != nil {
		return err
	}

	gen, err := deps.generator(ctx, cfg.Prompt, logger)
	if err != nil {
		return fmt.Errorf("failed to create prompt generator: %w", err)
	}
	runner, err := deps.workflow(cfg, gen, logger)
	if err != nil {
		return fmt.Errorf("failed to create workflow: %w", err)
	}

	engineOpts := []engine.Option{engine.WithConcurrency(cfg.Runner.Concurrency)}
	if cfg.Database.URL != "" {
		ledger, cleanup, err := deps.stores.Create(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize store: %w", err)
		}
		if cleanup != nil {
			defer cleanup()
		}
		if err := ledger.EnsureSchema(ctx); err != nil {
			return err
		}
		engineOpts = append(engineOpts, engine.WithRecorder(ledger))
	} else {
		logger.Info("No database configured; runs will not be recorded.")
	}

	summary, runErr := engine.New(runner, logger, engineOpts...).Run(ctx, deps.profiles(cfg, specs, logger))
	if summary != nil {
		if err := printSummary(out, summary); err != nil {
			return err
		}
	}
	if runErr != nil {
		return runErr
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d runs failed", summary.Failed, summary.Runs)
	}
	return nil
}

func printSummary(out io.Writer, s *engine.Summary) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PROFILE\tREACHED\tCHECK-IN\tPROMPTS\tPOINTS\tEARNED\tERROR")
	for _, r := range s.Reports {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\t%s\t%s\n",
			r.ProfileID,
			r.Reached,
			r.CheckIn,
			r.PromptsSent, r.PromptsPlanned,
			formatReading(r.End),
			formatDelta(r.Delta()),
			observability.TrimMessage(observability.TrimError(r.Err), 60),
		)
	}
	fmt.Fprintf(w, "\nruns: %d  failed: %d  earned: %d  unmeasured: %d  skipped: %d\n",
		s.Runs, s.Failed, s.Earned, s.Unmeasured, s.Skipped)
	return w.Flush()
}

func formatReading(p farm.PointsReading) string {
	if !p.Known() {
		return "?"
	}
	return fmt.Sprint(p.Value)
}

func formatDelta(delta int, ok bool) string {
	if !ok {
		return "?"
	}
	return fmt.Sprintf("%+d", delta)
}
