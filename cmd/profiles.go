// File: cmd/profiles.go
package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/opera-farm/internal/config"
	"github.com/xkilldash9x/opera-farm/internal/profile"
)

func newProfilesCmd() *cobra.Command {
	var profilesFile string

	profilesCmd := &cobra.Command{
		Use:   "profiles",
		Short: "List the configured profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			return runProfiles(cfg, profilesFile, cmd.OutOrStdout())
		},
	}
	profilesCmd.Flags().StringVarP(&profilesFile, "profiles", "p", "", "profiles file (defaults to runner.profiles_file)")
	return profilesCmd
}

func runProfiles(cfg *config.Config, path string, out io.Writer) error {
	if path == "" {
		path = cfg.Runner.ProfilesFile
	}
	specs, err := profile.LoadFile(path)
	if err != nil {
		return err
	}

	launcher := profile.NewLauncher(cfg.Browser, zap.NewNop())
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tWALLET\tBROWSER")
	for _, s := range specs {
		where := s.DebuggerURL
		if !s.Remote() {
			dir, err := launcher.UserDataDir(s)
			if err != nil {
				return err
			}
			where = dir
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", s.ID, s.WalletAddress, where)
	}
	return w.Flush()
}
