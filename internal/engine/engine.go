// Package engine implements the per-agent Queue Engine: the
// Poller, Processor, and Heartbeat tasks that together turn a
// MessageTransport's raw traffic into durably queued, FIFO-processed
// replies, grounded on original_source's queue_manager.py::QueueManager.
package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/adamavenir/mentionrunner/internal/handler"
	"github.com/adamavenir/mentionrunner/internal/heartbeat"
	"github.com/adamavenir/mentionrunner/internal/killswitch"
	"github.com/adamavenir/mentionrunner/internal/store"
	"github.com/adamavenir/mentionrunner/internal/transport"
)

// Config bundles everything one Engine instance needs. Handler,
// Transport and Store are capabilities the engine consumes, never
// constructs, so tests can substitute fakes; one engine owns exactly
// one of each.
type Config struct {
	AgentID     string
	Store       store.Store
	Transport   transport.MessageTransport
	Heartbeats  map[string]transport.MessageTransport // name -> remote session, heartbeat-eligible
	Handler     handler.MessageHandler
	KillSwitch  *killswitch.KillSwitch
	Log         *zap.Logger
	SweepLimit  int
	MetricsSink MetricsSink
}

// MetricsSink lets the engine report counters without importing the
// metrics package directly, keeping engine free of the prometheus
// dependency; the concrete sink is wired in at the cmd layer.
type MetricsSink interface {
	IncMessagesProcessed(agent string)
	IncMessagesStored(agent string)
	SetQueuePending(agent string, n int)
	IncHeartbeatFailure(agent string)
}

type noopMetrics struct{}

func (noopMetrics) IncMessagesProcessed(string) {}
func (noopMetrics) IncMessagesStored(string)    {}
func (noopMetrics) SetQueuePending(string, int) {}
func (noopMetrics) IncHeartbeatFailure(string)  {}

// Engine runs one agent's Poller, Processor, and every configured
// Heartbeat under a single cancellation scope.
type Engine struct {
	cfg     Config
	metrics MetricsSink
	signal  chan struct{}
}

// New builds an Engine from cfg, filling in a no-op metrics sink if none
// was supplied.
func New(cfg Config) *Engine {
	m := cfg.MetricsSink
	if m == nil {
		m = noopMetrics{}
	}
	return &Engine{cfg: cfg, metrics: m, signal: make(chan struct{}, 1)}
}

// notify wakes the processor loop without blocking if it's busy or
// already has a pending wakeup queued.
func (e *Engine) notify() {
	select {
	case e.signal <- struct{}{}:
	default:
	}
}

// refreshQueuePending reports this agent's current pending count to the
// metrics sink, called whenever the poller or processor changes it.
func (e *Engine) refreshQueuePending() {
	n, err := e.cfg.Store.CountPending(e.cfg.AgentID)
	if err != nil {
		e.cfg.Log.Warn("count pending for gauge failed", zap.Error(err))
		return
	}
	e.metrics.SetQueuePending(e.cfg.AgentID, n)
}

// Run blocks until ctx is cancelled or a task fails; a failed task
// cancels the whole monitor scope.
func (e *Engine) Run(parent context.Context) error {
	g, ctx := errgroup.WithContext(parent)

	g.Go(func() error {
		return e.runPoller(ctx)
	})
	g.Go(func() error {
		return e.runProcessor(ctx)
	})

	for name, session := range e.cfg.Heartbeats {
		name, session := name, session
		g.Go(func() error {
			onFailure := func() { e.metrics.IncHeartbeatFailure(e.cfg.AgentID) }
			hb := heartbeat.New(name, session, heartbeat.DefaultInterval, e.cfg.Log, onFailure)
			if err := hb.Run(ctx); err != nil && ctx.Err() == nil {
				return fmt.Errorf("heartbeat %s: %w", name, err)
			}
			return nil
		})
	}

	err := g.Wait()
	if parent.Err() != nil && err != nil {
		return nil // clean shutdown, not a failure
	}
	return err
}
