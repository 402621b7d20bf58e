package supervisor

import (
	"fmt"
	"time"
)

// GroupMember is one agent's placement within a deployment group: which
// handler kind to run and how long to wait after the prior member
// before starting it, so a group of agents with warm-up dependencies
// comes up in a stable order.
type GroupMember struct {
	AgentID     string
	HandlerKind string
	Params      map[string]any
	StartDelay  time.Duration
}

// Group is a named, ordered set of agents started together.
type Group struct {
	ID      string
	Members []GroupMember
}

// StartGroup starts every member of group in order, sleeping
// StartDelay before each one after the first. A member that's already
// running is skipped rather than aborting the whole group.
func (s *Supervisor) StartGroup(group Group) []error {
	var errs []error
	for i, member := range group.Members {
		if i > 0 && member.StartDelay > 0 {
			time.Sleep(member.StartDelay)
		}
		if _, err := s.Start(member.AgentID, member.HandlerKind, member.Params); err != nil {
			if _, already := err.(*ErrAlreadyRunning); already {
				continue
			}
			errs = append(errs, fmt.Errorf("group %s member %s: %w", group.ID, member.AgentID, err))
		}
	}
	return errs
}
