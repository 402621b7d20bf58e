package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/adamavenir/mentionrunner/internal/cli"
	"github.com/adamavenir/mentionrunner/internal/core"
	"github.com/adamavenir/mentionrunner/internal/killswitch"
	"github.com/adamavenir/mentionrunner/internal/logging"
	"github.com/adamavenir/mentionrunner/internal/metrics"
	"github.com/adamavenir/mentionrunner/internal/store"
	"github.com/adamavenir/mentionrunner/internal/supervisor"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	dataDir := os.Getenv("MENTIONRUNNER_DATA_DIR")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		dataDir = filepath.Join(home, ".mentionrunner")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}

	log, err := logging.New(os.Getenv("MENTIONRUNNER_DEBUG") != "")
	if err != nil {
		return err
	}
	defer log.Sync()

	st, err := store.Open(filepath.Join(dataDir, "messages.db"))
	if err != nil {
		return err
	}
	defer st.Close()

	kill, err := killswitch.Open(dataDir, log)
	if err != nil {
		return err
	}
	defer kill.Close()

	agentmonBinary := os.Getenv("MENTIONRUNNER_AGENTMON_BIN")
	if agentmonBinary == "" {
		agentmonBinary = "agentmon"
	}

	spawn := supervisor.SpawnSpec{
		Binary: agentmonBinary,
		Args: func(cfg core.AgentConfig, descriptorPath string, handlerKind string, params map[string]any) []string {
			args := []string{"--agent-descriptor", descriptorPath, "--data-dir", dataDir, "--handler", handlerKind}
			if len(params) > 0 {
				if encoded, err := json.Marshal(params); err == nil {
					args = append(args, "--handler-params", string(encoded))
				} else {
					log.Warn("encode handler params for spawn failed", zap.Error(err))
				}
			}
			return args
		},
		Env: os.Environ(),
	}

	sup, err := supervisor.Open(dataDir, spawn, supervisor.OSLauncher{}, st, log)
	if err != nil {
		return err
	}

	descriptorsDir := filepath.Join(dataDir, "agents")
	configs, loadErrs := core.LoadAgentConfigs(descriptorsDir)
	for _, loadErr := range loadErrs {
		log.Warn("skipping malformed agent descriptor", zap.Error(loadErr))
	}
	for _, cfg := range configs {
		sup.RegisterConfig(cfg, filepath.Join(descriptorsDir, string(cfg.AgentID)+".yaml"))
	}

	if reaped := sup.ReapOrphans(); len(reaped) > 0 {
		log.Warn("reaped orphaned monitor processes", zap.Strings("agent_ids", reaped))
	}

	collector := metrics.New(prometheus.NewRegistry())

	deps := cli.Deps{
		Supervisor: sup,
		KillSwitch: kill,
		Groups:     map[string]supervisor.Group{},
		HTTPAddr:   os.Getenv("MENTIONRUNNER_HTTP_ADDR"),
		Metrics:    collector,
	}

	return cli.Execute(deps)
}
