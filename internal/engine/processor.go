package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/adamavenir/mentionrunner/internal/handler"
	"github.com/adamavenir/mentionrunner/internal/mention"
)

// idlePollInterval is how often the processor rechecks for work when it
// has no pending signal: a safety net under the signal channel, so a
// missed wakeup (e.g. during a pause) never stalls the agent forever.
const idlePollInterval = 2 * time.Second

// runProcessor implements the per-mention processing loop: kill
// switch, pause/auto-resume, peek, mark-processing, handle, reply,
// mark-processed.
func (e *Engine) runProcessor(ctx context.Context) error {
	timer := time.NewTimer(idlePollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.signal:
		case <-timer.C:
		}
		timer.Reset(idlePollInterval)

		for e.processOne(ctx) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
}

// processOne processes at most one pending mention. It returns true if
// it did useful work (so the caller should immediately try again) and
// false if there's nothing to do right now.
func (e *Engine) processOne(ctx context.Context) bool {
	log := e.cfg.Log

	// Step 1: kill switch halts processing, not polling.
	if e.cfg.KillSwitch != nil && e.cfg.KillSwitch.Active() {
		return false
	}

	// Step 2: auto-resume check, then current status.
	if _, err := e.cfg.Store.CheckAutoResume(e.cfg.AgentID); err != nil {
		log.Error("check auto resume failed", zap.Error(err))
		return false
	}
	status, err := e.cfg.Store.GetStatus(e.cfg.AgentID)
	if err != nil {
		log.Error("get status failed", zap.Error(err))
		return false
	}
	if status.Status == "paused" {
		return false
	}

	// Step 3: peek the oldest pending row, FIFO.
	rows, err := e.cfg.Store.PeekPending(e.cfg.AgentID, 1)
	if err != nil {
		log.Error("peek pending failed", zap.Error(err))
		return false
	}
	if len(rows) == 0 {
		return false
	}
	row := rows[0]

	// Step 4: mark processing started, before invoking the handler, so
	// a crash mid-handler leaves the row visibly in-flight rather than
	// silently still "new" (at-least-once redelivery on restart).
	if err := e.cfg.Store.MarkProcessing(row.ID, row.Agent); err != nil {
		log.Error("mark processing failed", zap.String("message_id", row.ID), zap.Error(err))
		return false
	}

	m := &mention.CanonicalMention{ID: row.ID, Sender: row.Sender, Content: row.Content}
	reply, handleErr := e.invokeHandler(ctx, m)

	if handleErr != nil {
		log.Error("handler failed", zap.String("message_id", row.ID), zap.Error(handleErr))
	} else if reply != "" {
		e.dispatchReply(ctx, row.ID, m, reply)
	}

	// Step 5 (always, regardless of handler outcome): mark processed.
	// No row is ever replayed once it reaches this point.
	if err := e.cfg.Store.MarkProcessed(row.ID, row.Agent); err != nil {
		log.Error("mark processed failed", zap.String("message_id", row.ID), zap.Error(err))
	}
	e.metrics.IncMessagesProcessed(e.cfg.AgentID)
	e.refreshQueuePending()

	return true
}

// invokeHandler calls the configured MessageHandler, converting a panic
// into an error so one bad mention never takes down the processor task;
// a handler panic is treated the same as a handler error.
func (e *Engine) invokeHandler(ctx context.Context, m *mention.CanonicalMention) (reply string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()

	var res handler.Result
	res, err = e.cfg.Handler.Handle(ctx, e.cfg.AgentID, m)
	if err != nil {
		return "", err
	}
	return res.Reply, nil
}

// dispatchReply posts a handler's reply, stripping every occurrence of
// the agent's own self-mention (a handler echoing "@agent ..." back
// anywhere in its reply would otherwise re-trigger itself through a
// fan-out transport), then scans for self-throttle tokens.
func (e *Engine) dispatchReply(ctx context.Context, parentID string, m *mention.CanonicalMention, reply string) {
	reply = strings.ReplaceAll(reply, "@"+e.cfg.AgentID, "")

	if _, err := e.cfg.Transport.Send(ctx, reply, parentID); err != nil {
		e.cfg.Log.Error("send reply failed", zap.String("message_id", parentID), zap.Error(err))
	}

	switch action := scanThrottleTokens(reply); action {
	case throttleDone:
		resumeAt := time.Now().Add(doneResumeDelay)
		e.applyPause(action, reply, &resumeAt)
	case throttleStop:
		e.applyPause(action, reply, nil)
	case throttlePause:
		e.applyPause(action, reply, nil)
	}
}

func (e *Engine) applyPause(action throttleAction, reply string, resumeAt *time.Time) {
	reason := pauseReasonFor(action, reply)
	if err := e.cfg.Store.Pause(e.cfg.AgentID, reason, resumeAt); err != nil {
		e.cfg.Log.Error("self-throttle pause failed", zap.Error(err))
	}
}
