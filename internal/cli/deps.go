package cli

import (
	"github.com/adamavenir/mentionrunner/internal/killswitch"
	"github.com/adamavenir/mentionrunner/internal/metrics"
	"github.com/adamavenir/mentionrunner/internal/supervisor"
)

// Deps bundles the live objects monctl's subcommands operate on. main()
// constructs these once at startup; subcommands never build their own.
type Deps struct {
	Supervisor *supervisor.Supervisor
	KillSwitch *killswitch.KillSwitch
	Groups     map[string]supervisor.Group
	HTTPAddr   string
	Metrics    *metrics.Collector
}
