package cli

import (
	"encoding/json"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func printResult(cmd *cobra.Command, asJSON bool, human string, v any) error {
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	fmt.Fprintln(cmd.OutOrStdout(), human)
	return nil
}

func newStartCmd(deps Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start <agent-id>",
		Short: "start an agent monitor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			handlerKind, _ := cmd.Flags().GetString("handler")
			paramsJSON, _ := cmd.Flags().GetString("handler-params")
			var params map[string]any
			if paramsJSON != "" {
				if err := json.Unmarshal([]byte(paramsJSON), &params); err != nil {
					return fmt.Errorf("parse --handler-params: %w", err)
				}
			}
			rec, err := deps.Supervisor.Start(args[0], handlerKind, params)
			if err != nil {
				return err
			}
			asJSON, _ := cmd.Flags().GetBool("json")
			return printResult(cmd, asJSON, fmt.Sprintf("started %s (pid %d)", rec.AgentID, rec.PID), rec)
		},
	}
	cmd.Flags().String("handler", "echo", "handler to run: echo or anthropic")
	cmd.Flags().String("handler-params", "", "JSON object of call-time handler params")
	return cmd
}

func newStopCmd(deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <agent-id>",
		Short: "stop a running agent monitor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := deps.Supervisor.Stop(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stopped %s\n", args[0])
			return nil
		},
	}
}

func newRestartCmd(deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "restart <agent-id>",
		Short: "restart an agent monitor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := deps.Supervisor.Restart(args[0])
			if err != nil {
				return err
			}
			asJSON, _ := cmd.Flags().GetBool("json")
			return printResult(cmd, asJSON, fmt.Sprintf("restarted %s (pid %d)", rec.AgentID, rec.PID), rec)
		},
	}
}

func newKillCmd(deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "kill <agent-id>",
		Short: "forcibly kill an agent monitor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := deps.Supervisor.Kill(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "killed %s\n", args[0])
			return nil
		},
	}
}

func newDeleteCmd(deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <agent-id>",
		Short: "delete an agent's registration and durable queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := deps.Supervisor.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

func newListCmd(deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list running agent monitors",
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			monitors := deps.Supervisor.List()
			if asJSON {
				return printResult(cmd, true, "", monitors)
			}
			for _, m := range monitors {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\tpid=%d\tstarted %s\n", m.AgentID, m.PID, humanize.Time(m.StartedAt))
			}
			return nil
		},
	}
}
