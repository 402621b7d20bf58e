// Package mention implements the pure-function parser that turns a raw
// transport payload into a canonical mention, or nothing.
package mention

import (
	"regexp"
	"strings"
)

// CanonicalMention is the parsed result of a transport payload that
// genuinely mentions the agent being polled.
type CanonicalMention struct {
	ID      string
	Sender  string
	Content string
}

// statusMarkers are substrings that identify a payload as a status
// report rather than an actual mention.
var statusMarkers = []string{"No mentions", "WAIT SUCCESS"}

var (
	idPattern     = regexp.MustCompile(`\[id:([a-f0-9-]+)\]`)
	bulletPattern = regexp.MustCompile(`•\s*([^:]+):\s*(@\S+)\s+(.+)`)
)

// event is the structured alternative payload shape some transports
// return instead of a textual block.
type event struct {
	ID         string
	SenderName string
	Content    string
}

// Payload is whatever the transport's check() call returned: either a
// list of structured events, or a single text block.
type Payload struct {
	Events []event
	Text   string
}

// Parse applies the MentionParser contract: it returns nil
// when the payload is a status report, when the text doesn't mention
// @agentID, or when the sender is the agent itself (self-mention
// suppression). onSelfMention, if non-nil, is invoked for logging when a
// self-mention is suppressed.
func Parse(agentID string, payload Payload, onSelfMention func(sender string)) *CanonicalMention {
	if len(payload.Events) > 0 {
		ev := payload.Events[0]
		if ev.ID == "" {
			return nil
		}
		if ev.SenderName == agentID {
			if onSelfMention != nil {
				onSelfMention(ev.SenderName)
			}
			return nil
		}
		return &CanonicalMention{ID: ev.ID, Sender: ev.SenderName, Content: ev.Content}
	}

	text := payload.Text
	if text == "" {
		return nil
	}

	for _, marker := range statusMarkers {
		if strings.Contains(text, marker) {
			return nil
		}
	}

	idMatch := idPattern.FindStringSubmatch(text)
	if idMatch == nil {
		return nil
	}

	bulletMatch := bulletPattern.FindStringSubmatch(text)
	if bulletMatch == nil {
		return nil
	}

	if !strings.Contains(text, "@"+agentID) {
		return nil
	}

	sender := strings.TrimSpace(bulletMatch[1])
	if sender == agentID {
		if onSelfMention != nil {
			onSelfMention(sender)
		}
		return nil
	}

	return &CanonicalMention{
		ID:      idMatch[1],
		Sender:  sender,
		Content: text,
	}
}
