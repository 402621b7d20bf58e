package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/adamavenir/mentionrunner/internal/mention"
	"github.com/adamavenir/mentionrunner/internal/store"
	"github.com/adamavenir/mentionrunner/internal/transport"
)

// startupSweepDelay is the inter-call pause during the startup sweep,
// grounded on queue_manager.py's rate-limited backlog drain.
const startupSweepDelay = 700 * time.Millisecond

// defaultSweepLimit bounds how many backlog messages the startup sweep
// will drain before switching to steady-state blocking checks.
const defaultSweepLimit = 50

// runPoller drains any backlog at startup, then blocks on check() calls
// for the lifetime of ctx, enqueueing every parsed mention.
func (e *Engine) runPoller(ctx context.Context) error {
	limit := e.cfg.SweepLimit
	if limit <= 0 {
		limit = defaultSweepLimit
	}

	if err := e.sweepBacklog(ctx, limit); err != nil {
		return err
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		payload, err := e.cfg.Transport.Check(ctx, transport.CheckOptions{
			Wait:     true,
			MarkRead: true,
			Mode:     "unread",
			Timeout:  0,
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.cfg.Log.Warn("poller check failed, retrying", zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		e.enqueue(payload)
	}
}

// enqueueOutcome distinguishes why enqueue didn't add a new row, so
// sweepBacklog can tell an exhausted backlog from a transient store
// failure on an otherwise non-empty one.
type enqueueOutcome int

const (
	enqueuedOK enqueueOutcome = iota
	enqueueNoMention
	enqueueStoreFailed
)

// sweepBacklog drains up to limit unread messages at startup without
// blocking indefinitely on any single call, pacing requests so a large
// backlog doesn't hammer the transport during the startup sweep. A
// store write failure is logged and the sweep continues; only the
// absence of a parseable mention ends it.
func (e *Engine) sweepBacklog(ctx context.Context, limit int) error {
	for i := 0; i < limit; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		payload, err := e.cfg.Transport.Check(ctx, transport.CheckOptions{
			Wait:     false,
			MarkRead: true,
			Mode:     "unread",
			Limit:    1,
		})
		if err != nil {
			e.cfg.Log.Warn("startup sweep check failed", zap.Error(err))
			return nil
		}
		if e.enqueue(payload) == enqueueNoMention {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(startupSweepDelay):
		}
	}
	return nil
}

// enqueue parses payload and, if it canonicalizes to a real mention of
// this agent, durably stores it.
func (e *Engine) enqueue(payload mention.Payload) enqueueOutcome {
	m := mention.Parse(e.cfg.AgentID, payload, func(sender string) {
		e.cfg.Log.Debug("suppressed self-mention", zap.String("sender", sender))
	})
	if m == nil {
		return enqueueNoMention
	}

	res, err := e.cfg.Store.Put(m.ID, e.cfg.AgentID, m.Sender, m.Content)
	if err != nil {
		e.cfg.Log.Warn("store mention failed, continuing", zap.String("message_id", m.ID), zap.Error(err))
		return enqueueStoreFailed
	}
	if res == store.PutAccepted {
		e.metrics.IncMessagesStored(e.cfg.AgentID)
		e.refreshQueuePending()
		e.notify()
	}
	return enqueuedOK
}
