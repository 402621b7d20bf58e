// Package transport implements the MessageTransport capability:
// the three operations the engine needs from a remote or local messaging
// channel, plus a concrete MCP-backed implementation and resilience
// wrappers.
package transport

import (
	"context"
	"time"

	"github.com/adamavenir/mentionrunner/internal/mention"
)

// Ack is the result of a successful send.
type Ack struct {
	MessageID string
}

// PingResult is the result of a liveness check.
type PingResult struct {
	Status    string
	Timestamp time.Time
}

// CheckOptions configures a check() call.
type CheckOptions struct {
	Wait        bool
	MarkRead    bool
	Mode        string // "unread" | "latest"
	Limit       int
	Timeout     time.Duration
	FilterAgent string
}

// MessageTransport is the capability the engine consumes. Implementations
// must be safe for concurrent use only across distinct sessions; a single
// session is owned by exactly one engine.
type MessageTransport interface {
	Send(ctx context.Context, content string, parentMessageID string) (Ack, error)
	Check(ctx context.Context, opts CheckOptions) (mention.Payload, error)
	SendPing(ctx context.Context) (PingResult, error)
	// Close releases the underlying session.
	Close() error
	// IsRemote reports whether this session warrants a Heartbeat:
	// local in-process transports do not receive one.
	IsRemote() bool
}
