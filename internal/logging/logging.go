// Package logging provides the structured logger construction shared by
// every long-lived component.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process-wide base logger. debug widens the level to
// Debug; production defaults to Info.
func New(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

// ForMonitor returns a logger scoped to one agent's engine.
func ForMonitor(base *zap.Logger, agentID, monitorID string) *zap.Logger {
	return base.With(zap.String("agent_id", agentID), zap.String("monitor_id", monitorID))
}

// ForAgent returns a logger scoped to one agent, without a monitor id
// (used before a monitor_id has been assigned, e.g. in the supervisor).
func ForAgent(base *zap.Logger, agentID string) *zap.Logger {
	return base.With(zap.String("agent_id", agentID))
}
