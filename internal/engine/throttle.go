package engine

import (
	"strings"
	"time"
)

// throttleAction is the self-throttle command a handler's own reply can
// carry, scanned case-insensitively.
type throttleAction int

const (
	throttleNone throttleAction = iota
	throttlePause
	throttleStop
	throttleDone
)

// doneResumeDelay is how long a #done pause lasts before auto-resume.
const doneResumeDelay = 60 * time.Second

// scanThrottleTokens inspects a handler's reply text for #pause, #stop,
// or #done control tokens. Detection is case-insensitive and matches
// anywhere in the text, mirroring the original's substring scan.
func scanThrottleTokens(reply string) throttleAction {
	lower := strings.ToLower(reply)
	switch {
	case strings.Contains(lower, "#done"):
		return throttleDone
	case strings.Contains(lower, "#stop"):
		return throttleStop
	case strings.Contains(lower, "#pause"):
		return throttlePause
	default:
		return throttleNone
	}
}

// pauseReasonFor builds the paused_reason string an action writes to the
// store. #done's "Done:" prefix is what CheckAutoResume later matches to
// decide whether to clear the backlog.
func pauseReasonFor(action throttleAction, reply string) string {
	switch action {
	case throttleDone:
		return doneReasonPrefix + " " + reply
	case throttleStop:
		return "Stopped: " + reply
	case throttlePause:
		return "Self-paused: " + reply
	default:
		return ""
	}
}

const doneReasonPrefix = "Done:"
