package transport

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/adamavenir/mentionrunner/internal/core"
)

// Manager opens every transport declared in an AgentConfig, in
// declaration order, and exposes the primary session the engine sends
// and checks through.
type Manager struct {
	log      *zap.Logger
	sessions map[string]MessageTransport
	order    []string
	primary  string
}

// openerFunc opens one named transport. Exposed so tests can substitute
// a fake without spawning a real MCP subprocess.
type openerFunc func(ctx context.Context, name string, spec core.TransportSpec) (MessageTransport, error)

func defaultOpener(ctx context.Context, name string, spec core.TransportSpec) (MessageTransport, error) {
	return OpenMCPTransport(ctx, name, spec)
}

// Open opens every transport in cfg.TransportOrder via OpenMCPTransport.
// A failure opening the primary transport aborts startup; a failure
// opening a secondary transport is logged and skipped, treating
// secondary sessions as best-effort.
func Open(ctx context.Context, log *zap.Logger, cfg core.AgentConfig) (*Manager, error) {
	return open(ctx, log, cfg, defaultOpener)
}

func open(ctx context.Context, log *zap.Logger, cfg core.AgentConfig, opener openerFunc) (*Manager, error) {
	primaryName, _, ok := cfg.PrimaryTransport()
	if !ok {
		return nil, fmt.Errorf("agent %s: no transports declared", cfg.AgentID)
	}

	m := &Manager{
		log:      log,
		sessions: make(map[string]MessageTransport, len(cfg.TransportOrder)),
		primary:  primaryName,
	}

	for _, name := range cfg.TransportOrder {
		spec := cfg.Transports[name]
		t, err := opener(ctx, name, spec)
		if err != nil {
			if name == primaryName {
				m.closeAll()
				return nil, fmt.Errorf("open primary transport %q: %w", name, err)
			}
			log.Warn("secondary transport failed to open, skipping",
				zap.String("transport", name), zap.Error(err))
			continue
		}
		m.sessions[name] = NewCircuitTransport(name, t)
		m.order = append(m.order, name)
	}

	return m, nil
}

// Primary returns the primary session the engine polls and sends
// through.
func (m *Manager) Primary() MessageTransport {
	return m.sessions[m.primary]
}

// All returns every opened session, for heartbeat fan-out.
func (m *Manager) All() map[string]MessageTransport {
	return m.sessions
}

func (m *Manager) closeAll() {
	for _, t := range m.sessions {
		_ = t.Close()
	}
}

// Close tears down every session in reverse declaration order.
func (m *Manager) Close() error {
	var firstErr error
	for i := len(m.order) - 1; i >= 0; i-- {
		name := m.order[i]
		if err := m.sessions[name].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
