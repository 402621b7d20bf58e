// Package cli implements monctl, the operator-facing cobra CLI over the
// Supervisor, structured after mini-msg's internal/command package.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

const AppName = "monctl"

// Version is overwritten at build time via -ldflags.
var Version = "dev"

// NewRootCmd builds the monctl command tree. deps supplies everything
// the subcommands need to reach a live Supervisor, kept out of each
// subcommand's own flags so tests can construct a root command against
// a fake.
func NewRootCmd(deps Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:           AppName,
		Short:         "monctl - operate a mentionrunner deployment",
		Long:          "monctl starts, stops, and inspects agent monitor processes managed by a mentionrunner Supervisor.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.Version = Version
	cmd.SetVersionTemplate(AppName + " version {{.Version}}\n")
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.PersistentFlags().Bool("json", false, "output in JSON format")
	cmd.PersistentFlags().String("data-dir", defaultDataDir(), "supervisor data directory (not read: monctl takes it from MENTIONRUNNER_DATA_DIR, default ~/.mentionrunner)")

	cmd.AddCommand(
		newStartCmd(deps),
		newStopCmd(deps),
		newRestartCmd(deps),
		newKillCmd(deps),
		newDeleteCmd(deps),
		newListCmd(deps),
		newKillSwitchCmd(deps),
		newGroupCmd(deps),
		newServeCmd(deps),
	)

	return cmd
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mentionrunner"
	}
	return home + "/.mentionrunner"
}

// Execute runs the CLI built from deps.
func Execute(deps Deps) error {
	return NewRootCmd(deps).Execute()
}
