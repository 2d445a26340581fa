// File: cmd/logs.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/opera-farm/internal/observability"
)

func newLogsCmd() *cobra.Command {
	var opts observability.TailOptions

	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the JSON log file, optionally for one profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if cfg.Logger.LogFile == "" {
				return fmt.Errorf("logger.log_file is not configured")
			}
			return observability.Tail(cmd.Context(), cfg.Logger.LogFile, opts, cmd.OutOrStdout())
		},
	}
	logsCmd.Flags().StringVar(&opts.ProfileID, "profile", "", "only show entries of this profile")
	logsCmd.Flags().BoolVarP(&opts.Follow, "follow", "f", false, "keep printing new entries until interrupted")
	return logsCmd
}
