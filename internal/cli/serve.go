package cli

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/adamavenir/mentionrunner/internal/controlplane"
)

// newServeCmd starts the thin control-plane HTTP API in the foreground.
func newServeCmd(deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the control-plane HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := deps.HTTPAddr
			if addr == "" {
				addr = "127.0.0.1:8787"
			}
			handler := controlplane.New(deps.Supervisor, deps.KillSwitch, deps.Metrics, deps.Groups)
			fmt.Fprintf(cmd.OutOrStdout(), "control plane listening on %s\n", addr)
			return http.ListenAndServe(addr, handler)
		},
	}
}
