// Package heartbeat implements the Heartbeat capability, grounded
// on original_source's mcp_heartbeat.py::keep_alive: a periodic
// liveness ping sent over a remote MessageTransport, independent of
// whether the agent is actively processing mentions.
package heartbeat

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/adamavenir/mentionrunner/internal/transport"
)

// maxInterval is the hard cap: heartbeats must fire well inside
// any remote endpoint's idle-connection timeout.
const maxInterval = 290 * time.Second

// DefaultInterval matches the original keep_alive's 240s cadence.
const DefaultInterval = 240 * time.Second

// failureBackoff is the short retry delay after a failed ping, so a
// single transient failure doesn't wait a full interval to retry.
const failureBackoff = 10 * time.Second

// Heartbeat periodically pings a transport session until its context is
// cancelled. An interval <= 0 disables it entirely; heartbeats
// are opt-in per session.
type Heartbeat struct {
	name      string
	session   transport.MessageTransport
	interval  time.Duration
	log       *zap.Logger
	onFailure func()
}

// New builds a Heartbeat for session. interval is clamped to
// maxInterval; values <= 0 mean "disabled", reported by Enabled().
// onFailure, if non-nil, is called once per failed ping so a caller can
// track per-failure counters independent of Run's own retry/backoff
// loop; a nil onFailure is a no-op.
func New(name string, session transport.MessageTransport, interval time.Duration, log *zap.Logger, onFailure func()) *Heartbeat {
	if interval > maxInterval {
		interval = maxInterval
	}
	return &Heartbeat{name: name, session: session, interval: interval, log: log, onFailure: onFailure}
}

// Enabled reports whether this heartbeat will actually run.
func (h *Heartbeat) Enabled() bool {
	return h.interval > 0
}

// Run blocks, sending periodic pings until ctx is cancelled. A failed
// ping is logged and retried sooner rather than abandoning the loop —
// per the original's "never let a flaky ping kill the monitor".
func (h *Heartbeat) Run(ctx context.Context) error {
	if !h.Enabled() {
		<-ctx.Done()
		return ctx.Err()
	}

	timer := time.NewTimer(h.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			_, err := h.session.SendPing(ctx)
			if err != nil {
				h.log.Warn("heartbeat ping failed",
					zap.String("transport", h.name), zap.Error(err))
				if h.onFailure != nil {
					h.onFailure()
				}
				timer.Reset(failureBackoff)
				continue
			}
			h.log.Debug("heartbeat ping ok", zap.String("transport", h.name))
			timer.Reset(h.interval)
		}
	}
}
