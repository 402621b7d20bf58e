// agentmon runs a single agent's Queue Engine: the process a Supervisor
// spawns per agent, grounded on original_source/monitors/echo_monitor.py's
// single-monitor entry point.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/adamavenir/mentionrunner/internal/core"
	"github.com/adamavenir/mentionrunner/internal/engine"
	"github.com/adamavenir/mentionrunner/internal/handler"
	"github.com/adamavenir/mentionrunner/internal/killswitch"
	"github.com/adamavenir/mentionrunner/internal/logging"
	"github.com/adamavenir/mentionrunner/internal/metrics"
	"github.com/adamavenir/mentionrunner/internal/store"
	"github.com/adamavenir/mentionrunner/internal/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	descriptorPath := flag.String("agent-descriptor", "", "path to the agent's YAML descriptor")
	dataDir := flag.String("data-dir", "", "shared supervisor data directory")
	handlerKind := flag.String("handler", "echo", "handler to run: echo or anthropic")
	handlerParamsJSON := flag.String("handler-params", "", "JSON object of call-time handler params, overriding the descriptor's handler_params")
	debug := flag.Bool("debug", os.Getenv("MENTIONRUNNER_DEBUG") != "", "enable debug logging")
	metricsAddr := flag.String("metrics-addr", "", "address to serve Prometheus metrics on, empty disables")
	flag.Parse()

	if *descriptorPath == "" || *dataDir == "" {
		return fmt.Errorf("--agent-descriptor and --data-dir are required")
	}

	log, err := logging.New(*debug)
	if err != nil {
		return err
	}
	defer log.Sync()

	cfg, err := core.LoadAgentConfig(*descriptorPath)
	if err != nil {
		return err
	}
	agentLog := logging.ForMonitor(log, string(cfg.AgentID), fmt.Sprintf("%d", os.Getpid()))

	if *handlerParamsJSON != "" {
		var override map[string]any
		if err := json.Unmarshal([]byte(*handlerParamsJSON), &override); err != nil {
			return fmt.Errorf("parse --handler-params: %w", err)
		}
		if cfg.HandlerParams == nil {
			cfg.HandlerParams = make(map[string]any, len(override))
		}
		for k, v := range override {
			cfg.HandlerParams[k] = v
		}
	}

	st, err := store.Open(filepath.Join(*dataDir, "messages.db"))
	if err != nil {
		return err
	}
	defer st.Close()

	kill, err := killswitch.Open(*dataDir, agentLog)
	if err != nil {
		return err
	}
	defer kill.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	mgr, err := transport.Open(ctx, agentLog, cfg)
	if err != nil {
		return err
	}
	defer mgr.Close()

	h, err := buildHandler(*handlerKind, cfg)
	if err != nil {
		return err
	}

	heartbeats := make(map[string]transport.MessageTransport)
	for name, session := range mgr.All() {
		if session.IsRemote() {
			heartbeats[name] = session
		}
	}

	registry := prometheus.NewRegistry()
	collector := metrics.New(registry)
	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: *metricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				agentLog.Warn("metrics server stopped", zap.Error(err))
			}
		}()
		go func() {
			<-ctx.Done()
			_ = srv.Close()
		}()
	}

	e := engine.New(engine.Config{
		AgentID:     string(cfg.AgentID),
		Store:       st,
		Transport:   mgr.Primary(),
		Heartbeats:  heartbeats,
		Handler:     h,
		KillSwitch:  kill,
		Log:         agentLog,
		MetricsSink: collector,
	})

	agentLog.Info("agent monitor starting", zap.String("handler", *handlerKind))
	if err := e.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	agentLog.Info("agent monitor shutting down")
	return nil
}

func buildHandler(kind string, cfg core.AgentConfig) (handler.MessageHandler, error) {
	switch kind {
	case "echo":
		return handler.NewEchoHandler(), nil
	case "anthropic":
		apiKey, _ := cfg.HandlerParams["anthropic_api_key"].(string)
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		model, _ := cfg.HandlerParams["model"].(string)
		systemPrompt, _ := cfg.HandlerParams["system_prompt"].(string)
		tools, err := parseToolDefinitions(cfg.HandlerParams["tools"])
		if err != nil {
			return nil, err
		}
		return handler.NewAnthropicHandler(handler.AnthropicConfig{
			APIKey:       apiKey,
			Model:        model,
			SystemPrompt: systemPrompt,
			Tools:        tools,
		}), nil
	default:
		return nil, fmt.Errorf("unknown handler kind %q", kind)
	}
}

// parseToolDefinitions decodes handler_params.tools (a YAML/JSON list of
// {name, description, input_schema} objects) into handler.ToolDefinition
// values. A nil or absent field yields no tools.
func parseToolDefinitions(raw any) ([]handler.ToolDefinition, error) {
	if raw == nil {
		return nil, nil
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode handler_params.tools: %w", err)
	}
	var specs []struct {
		Name        string             `json:"name"`
		Description string             `json:"description"`
		InputSchema *jsonschema.Schema `json:"input_schema"`
	}
	if err := json.Unmarshal(encoded, &specs); err != nil {
		return nil, fmt.Errorf("decode handler_params.tools: %w", err)
	}
	tools := make([]handler.ToolDefinition, len(specs))
	for i, s := range specs {
		tools[i] = handler.ToolDefinition{Name: s.Name, Description: s.Description, InputSchema: s.InputSchema}
	}
	return tools, nil
}
