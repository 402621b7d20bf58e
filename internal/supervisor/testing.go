package supervisor

import (
	"sync"
	"sync/atomic"
	"syscall"
)

// InMemoryLauncher is a ProcessLauncher that never forks a real process,
// for exercising Supervisor and its HTTP projection in other packages'
// tests without spawning anything.
type InMemoryLauncher struct {
	mu      sync.Mutex
	nextPID int32
	alive   map[int]bool
}

// NewInMemoryLauncher builds a ready-to-use InMemoryLauncher.
func NewInMemoryLauncher() *InMemoryLauncher {
	return &InMemoryLauncher{alive: map[int]bool{}}
}

// Launch satisfies ProcessLauncher.
func (l *InMemoryLauncher) Launch(agentID, binary string, args []string, env []string) (*MonitorRecord, error) {
	pid := int(atomic.AddInt32(&l.nextPID, 1)) + 9000
	l.mu.Lock()
	l.alive[pid] = true
	l.mu.Unlock()
	return &MonitorRecord{AgentID: agentID, PID: pid}, nil
}

func (l *InMemoryLauncher) Signal(pid int, sig syscall.Signal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.alive[pid] = false
	return nil
}

func (l *InMemoryLauncher) Alive(pid int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.alive[pid]
}
