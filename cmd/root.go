// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/opera-farm/internal/config"
	"github.com/xkilldash9x/opera-farm/internal/observability"
)

var (
	cfgFile string
	envFile string
)

type configKey struct{}

// rootCmd represents the base command when called without any subcommands
var rootCmd = NewRootCommand()

// NewRootCommand builds a fresh command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "opera-farm",
		Short: "Farms ChainOpera points across browser profiles.",
		Long: `opera-farm drives a set of Chrome profiles, each holding an OKX wallet,
through the daily ChainOpera routine: unlock the wallet, sign in, claim the
daily check-in and submit a handful of chat prompts.`,
		// Version is dynamically set at build time. See cmd/version.go.
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := initializeConfig()
			if err != nil {
				// Errors before logger setup still need somewhere to go.
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "opera-farm"})
				return err
			}
			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Debug("Starting opera-farm", zap.String("version", Version))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey{}, cfg))
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file holding secrets; missing files are ignored")
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.AddCommand(
		newFarmCmd(defaultFarmDeps()),
		newReportCmd(NewStoreProvider()),
		newProfilesCmd(),
		newLogsCmd(),
		newVersionCmd(),
	)
	return root
}

// Execute runs the root command with ctx. Canceled runs are not logged as
// failures.
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		observability.GetLogger().Warn("Interrupted.", zap.Error(err))
	} else {
		observability.GetLogger().Error("Command execution failed", zap.Error(err))
	}
	observability.Sync()
	return err
}

// initializeConfig loads the dotenv file, then the config file and
// environment, into the global viper instance.
func initializeConfig() (*config.Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("error reading env file %s: %w", envFile, err)
		}
	}

	v := viper.GetViper()
	config.SetDefaults(v)
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("OPERA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults/env vars
	}

	// Validation is left to the commands; report and profiles run without
	// wallet secrets.
	return config.Unmarshal(v)
}

// getConfigFromContext returns the configuration stored by the root command.
func getConfigFromContext(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey{}).(*config.Config)
	if !ok || cfg == nil {
		return nil, fmt.Errorf("configuration is not initialized")
	}
	return cfg, nil
}
