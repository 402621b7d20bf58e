package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newKillSwitchCmd(deps Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kill-switch",
		Short: "inspect or toggle the process-wide kill switch",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "show whether the kill switch is active",
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			active := deps.KillSwitch.Active()
			return printResult(cmd, asJSON, fmt.Sprintf("active=%v", active), map[string]bool{"active": active})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "activate",
		Short: "engage the kill switch, halting processing process-wide",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := deps.KillSwitch.Activate(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "kill switch activated")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "deactivate",
		Short: "disengage the kill switch, resuming processing",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := deps.KillSwitch.Deactivate(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "kill switch deactivated")
			return nil
		},
	})

	return cmd
}

func newGroupCmd(deps Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "operate on deployment groups",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "start <group-id>",
		Short: "start every member of a deployment group in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			group, ok := deps.Groups[args[0]]
			if !ok {
				return fmt.Errorf("unknown group %q", args[0])
			}
			errs := deps.Supervisor.StartGroup(group)
			for _, err := range errs {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
			}
			if len(errs) > 0 {
				return fmt.Errorf("%d member(s) of group %q failed to start", len(errs), args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "started group %s\n", args[0])
			return nil
		},
	})

	return cmd
}
