package supervisor

import (
	"sync"
	"syscall"
	"testing"

	"go.uber.org/zap"

	"github.com/adamavenir/mentionrunner/internal/core"
	"github.com/adamavenir/mentionrunner/internal/store"
)

type fakeLauncher struct {
	mu      sync.Mutex
	nextPID int
	alive   map[int]bool
	signals []signalCall
}

type signalCall struct {
	pid int
	sig syscall.Signal
}

func newFakeLauncher() *fakeLauncher {
	return &fakeLauncher{nextPID: 1000, alive: map[int]bool{}}
}

func (f *fakeLauncher) Launch(agentID, binary string, args []string, env []string) (*MonitorRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextPID++
	pid := f.nextPID
	f.alive[pid] = true
	return &MonitorRecord{AgentID: agentID, PID: pid}, nil
}

func (f *fakeLauncher) Signal(pid int, sig syscall.Signal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, signalCall{pid: pid, sig: sig})
	f.alive[pid] = false
	return nil
}

func (f *fakeLauncher) Alive(pid int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive[pid]
}

func newTestSupervisor(t *testing.T) (*Supervisor, *fakeLauncher) {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })

	launcher := newFakeLauncher()
	spawn := SpawnSpec{
		Binary: "/bin/agentmon",
		Args: func(cfg core.AgentConfig, descriptorPath string, handlerKind string, params map[string]any) []string {
			return []string{"--config", descriptorPath, "--handler", handlerKind}
		},
	}

	s, err := Open(t.TempDir(), spawn, launcher, st, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	agentID, err := core.ValidateAgentID("agent-a")
	if err != nil {
		t.Fatal(err)
	}
	s.RegisterConfig(core.AgentConfig{AgentID: agentID}, "/tmp/agent-a.yaml")

	return s, launcher
}

func TestSupervisor_StartThenAlreadyRunning(t *testing.T) {
	s, _ := newTestSupervisor(t)

	if _, err := s.Start("agent-a", "echo", nil); err != nil {
		t.Fatal(err)
	}

	_, err := s.Start("agent-a", "echo", nil)
	if _, ok := err.(*ErrAlreadyRunning); !ok {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestSupervisor_StopThenRestart(t *testing.T) {
	s, launcher := newTestSupervisor(t)

	rec, err := s.Start("agent-a", "echo", nil)
	if err != nil {
		t.Fatal(err)
	}
	firstPID := rec.PID

	if err := s.Stop("agent-a"); err != nil {
		t.Fatal(err)
	}
	if launcher.Alive(firstPID) {
		t.Fatal("expected process marked dead after Stop")
	}

	rec2, err := s.Start("agent-a", "echo", nil)
	if err != nil {
		t.Fatal(err)
	}
	if rec2.PID == firstPID {
		t.Fatal("expected a new PID on restart")
	}
}

func TestSupervisor_StopNotRunning(t *testing.T) {
	s, _ := newTestSupervisor(t)

	err := s.Stop("agent-a")
	if _, ok := err.(*ErrNotRunning); !ok {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}

func TestSupervisor_DeleteWhileRunningFails(t *testing.T) {
	s, _ := newTestSupervisor(t)

	if _, err := s.Start("agent-a", "echo", nil); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete("agent-a"); err == nil {
		t.Fatal("expected delete to fail while agent is running")
	}
}

func TestSupervisor_KillAllAndClear(t *testing.T) {
	s, launcher := newTestSupervisor(t)

	rec, err := s.Start("agent-a", "echo", nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.KillAllAndClear(); err != nil {
		t.Fatal(err)
	}
	if launcher.Alive(rec.PID) {
		t.Fatal("expected process killed")
	}
	if len(s.List()) != 0 {
		t.Fatal("expected no running monitors after kill-all")
	}
}
