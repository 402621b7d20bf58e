// Package handler implements the pluggable MessageHandler capability:
// given a canonical mention, produce a reply. The engine does nothing
// with a handler's text beyond stripping the agent's own @mention and
// the self-throttle token scan; the
// SchemaCleaner strategy stays owned by the handler, not the engine.
package handler

import (
	"context"

	"github.com/adamavenir/mentionrunner/internal/mention"
)

// Result is a handler's response to one mention.
type Result struct {
	// Reply is the text posted back to the transport. Empty means "no
	// reply sent", a valid outcome.
	Reply string
}

// MessageHandler turns one canonical mention into a reply. Implementations
// must treat ctx cancellation as a hard abort: the processor attributes
// any resulting error to the message and still marks it processed.
type MessageHandler interface {
	Handle(ctx context.Context, agentID string, m *mention.CanonicalMention) (Result, error)
}
