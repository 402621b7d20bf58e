package supervisor

import (
	"fmt"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/adamavenir/mentionrunner/internal/core"
	"github.com/adamavenir/mentionrunner/internal/store"
)

// ErrAlreadyRunning enforces at most one running monitor per agent.
type ErrAlreadyRunning struct {
	AgentID string
}

func (e *ErrAlreadyRunning) Error() string {
	return fmt.Sprintf("agent %s already has a running monitor", e.AgentID)
}

// ErrNotRunning is returned by stop/restart/kill against an agent with
// no tracked running monitor.
type ErrNotRunning struct {
	AgentID string
}

func (e *ErrNotRunning) Error() string {
	return fmt.Sprintf("agent %s has no running monitor", e.AgentID)
}

// Binary and Args describe the child process command line the
// Supervisor execs for each agent: the agentmon entry point plus its
// descriptor path and the handler kind/params this start requested.
type SpawnSpec struct {
	Binary string
	Args   func(cfg core.AgentConfig, descriptorPath string, handlerKind string, params map[string]any) []string
	Env    []string
}

// stopGracePeriod is how long Stop waits for a cooperative termination
// signal to take effect before escalating to SIGKILL.
const stopGracePeriod = 5 * time.Second

// stopPollInterval is how often Stop polls the child's liveness while
// waiting out stopGracePeriod.
const stopPollInterval = 100 * time.Millisecond

// defaultHandlerKind is used when a start request leaves handlerKind empty.
const defaultHandlerKind = "echo"

// Supervisor manages one running-process-per-agent over a data
// directory holding per-agent descriptors, the shared message store,
// and this instance's ownership record.
type Supervisor struct {
	mu       sync.Mutex
	dataDir  string
	spawn    SpawnSpec
	launcher ProcessLauncher
	store    store.Store
	log      *zap.Logger
	instance SupervisorInstance
	running  map[string]*MonitorRecord
	configs  map[string]configEntry
}

type configEntry struct {
	cfg            core.AgentConfig
	descriptorPath string
}

// Open loads or creates this data directory's ownership record. It does
// not reap orphaned children; callers do that with ReapOrphans.
func Open(dataDir string, spawn SpawnSpec, launcher ProcessLauncher, st store.Store, log *zap.Logger) (*Supervisor, error) {
	inst, liveElsewhere, err := loadOrCreateInstance(dataDir, launcher)
	if err != nil {
		return nil, err
	}
	if liveElsewhere {
		return nil, fmt.Errorf("another supervisor (pid %d) already owns %s", inst.PID, dataDir)
	}

	s := &Supervisor{
		dataDir:  dataDir,
		spawn:    spawn,
		launcher: launcher,
		store:    st,
		log:      log,
		instance: inst,
		running:  make(map[string]*MonitorRecord),
		configs:  make(map[string]configEntry),
	}

	if err := persistInstance(dataDir, s.instance); err != nil {
		return nil, err
	}

	return s, nil
}

// RegisterConfig associates a resolved AgentConfig with its descriptor
// path, making it startable by agent id.
func (s *Supervisor) RegisterConfig(cfg core.AgentConfig, descriptorPath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[string(cfg.AgentID)] = configEntry{cfg: cfg, descriptorPath: descriptorPath}
}

// Start spawns a monitor for agentID running handlerKind with params,
// clearing any stale queued messages first so every start begins from a
// clean backlog. An empty handlerKind defaults to the echo handler.
// Returns ErrAlreadyRunning if one is already tracked running.
func (s *Supervisor) Start(agentID, handlerKind string, params map[string]any) (*MonitorRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.running[agentID]; ok {
		return nil, &ErrAlreadyRunning{AgentID: agentID}
	}
	entry, ok := s.configs[agentID]
	if !ok {
		return nil, fmt.Errorf("unknown agent %q", agentID)
	}
	if handlerKind == "" {
		handlerKind = defaultHandlerKind
	}

	if _, err := s.store.ClearAgent(agentID); err != nil {
		s.log.Warn("clear agent backlog before start failed", zap.String("agent_id", agentID), zap.Error(err))
	}

	args := s.spawn.Args(entry.cfg, entry.descriptorPath, handlerKind, params)
	rec, err := s.launcher.Launch(agentID, s.spawn.Binary, args, s.spawn.Env)
	if err != nil {
		return nil, err
	}
	rec.HandlerKind = handlerKind
	rec.Params = params

	s.running[agentID] = rec
	s.instance.Children[agentID] = rec.PID
	if err := persistInstance(s.dataDir, s.instance); err != nil {
		s.log.Warn("persist supervisor instance failed", zap.Error(err))
	}

	return rec, nil
}

// Stop sends a cooperative termination signal to agentID's process
// group, waits up to stopGracePeriod for it to exit, and escalates to
// SIGKILL if it's still alive afterward.
func (s *Supervisor) Stop(agentID string) error {
	rec, err := s.beginSignal(agentID, syscall.SIGTERM)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(stopGracePeriod)
	for s.launcher.Alive(rec.PID) && time.Now().Before(deadline) {
		time.Sleep(stopPollInterval)
	}
	if s.launcher.Alive(rec.PID) {
		s.log.Warn("monitor ignored termination signal, escalating to kill",
			zap.String("agent_id", agentID), zap.Int("pid", rec.PID))
		if err := s.launcher.Signal(rec.PID, syscall.SIGKILL); err != nil {
			return err
		}
	}

	return s.endSignal(agentID)
}

// Kill sends an immediate SIGKILL to agentID's process group, with no
// grace period; reserved for forced cleanup.
func (s *Supervisor) Kill(agentID string) error {
	if _, err := s.beginSignal(agentID, syscall.SIGKILL); err != nil {
		return err
	}
	return s.endSignal(agentID)
}

// beginSignal looks up agentID's record and delivers sig, leaving the
// tracking entry in place so callers can poll it before endSignal
// removes it.
func (s *Supervisor) beginSignal(agentID string, sig syscall.Signal) (*MonitorRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.running[agentID]
	if !ok {
		return nil, &ErrNotRunning{AgentID: agentID}
	}
	if err := s.launcher.Signal(rec.PID, sig); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Supervisor) endSignal(agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.running, agentID)
	delete(s.instance.Children, agentID)
	return persistInstance(s.dataDir, s.instance)
}

// Restart stops (if running) and starts agentID with the handler kind
// and params it was last started with.
func (s *Supervisor) Restart(agentID string) (*MonitorRecord, error) {
	s.mu.Lock()
	prior, wasRunning := s.running[agentID]
	var handlerKind string
	var params map[string]any
	if wasRunning {
		handlerKind = prior.HandlerKind
		params = prior.Params
	}
	s.mu.Unlock()

	if err := s.Stop(agentID); err != nil {
		if _, notRunning := err.(*ErrNotRunning); !notRunning {
			return nil, err
		}
	}
	// Give the old process group a moment to exit before reusing state;
	// the OS is free to recycle the PID once the process reaps.
	time.Sleep(100 * time.Millisecond)
	return s.Start(agentID, handlerKind, params)
}

// Delete removes agentID's descriptor registration and clears its
// durable queue. The agent must not be running.
func (s *Supervisor) Delete(agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, running := s.running[agentID]; running {
		return fmt.Errorf("agent %s is running, stop it before deleting", agentID)
	}
	delete(s.configs, agentID)
	_, err := s.store.ClearAgent(agentID)
	return err
}

// List returns every currently-tracked running monitor.
func (s *Supervisor) List() []MonitorRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]MonitorRecord, 0, len(s.running))
	for _, rec := range s.running {
		out = append(out, *rec)
	}
	return out
}

// KillAllAndClear kills every running monitor and clears every
// registered agent's queue, the bulk operation behind a full restart
// of the deployment.
func (s *Supervisor) KillAllAndClear() error {
	s.mu.Lock()
	agentIDs := make([]string, 0, len(s.running))
	for id := range s.running {
		agentIDs = append(agentIDs, id)
	}
	s.mu.Unlock()

	for _, id := range agentIDs {
		if err := s.Kill(id); err != nil {
			s.log.Warn("kill during kill-all failed", zap.String("agent_id", id), zap.Error(err))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.configs {
		if _, err := s.store.ClearAgent(id); err != nil {
			s.log.Warn("clear during kill-all failed", zap.String("agent_id", id), zap.Error(err))
		}
	}
	return nil
}
