package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/adamavenir/mentionrunner/internal/mention"
)

// selfEchoMarker is the substring whose presence in a mention makes
// Handle return no reply, matching original_source's echo_monitor.py so
// an agent's own echoed reply never re-triggers itself across a fan-out
// transport.
const selfEchoMarker = "Echo received at"

// EchoHandler deterministically echoes the sender and a short id back
// into a threaded reply, grounded on original_source/monitors/echo_monitor.py.
// It exists primarily as a reference handler for exercising the engine
// end-to-end without an LLM dependency.
type EchoHandler struct {
	// Clock is overridable for tests; defaults to time.Now.
	Clock func() time.Time
}

// NewEchoHandler builds an EchoHandler with the real wall clock.
func NewEchoHandler() *EchoHandler {
	return &EchoHandler{Clock: time.Now}
}

// Handle implements MessageHandler.
func (h *EchoHandler) Handle(_ context.Context, _ string, m *mention.CanonicalMention) (Result, error) {
	if strings.Contains(m.Content, selfEchoMarker) {
		return Result{}, nil
	}

	now := time.Now
	if h.Clock != nil {
		now = h.Clock
	}

	shortID := m.ID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}

	reply := fmt.Sprintf("%s %s from @%s [id:%s]: %s",
		selfEchoMarker, now().Format("15:04:05"), m.Sender, shortID, m.Content)

	return Result{Reply: reply}, nil
}
