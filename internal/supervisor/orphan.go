package supervisor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// SupervisorInstance identifies one supervisor process's lineage of
// spawned children, persisted so a restarted supervisor can
// distinguish its own prior children from a sibling supervisor's.
type SupervisorInstance struct {
	InstanceID string    `json:"instance_id"`
	PID        int       `json:"pid"`
	StartedAt  time.Time `json:"started_at"`
	Children   map[string]int `json:"children"` // agent_id -> pid, as of last persist
}

const instanceFileName = "supervisor.json"

func instancePath(dataDir string) string {
	return filepath.Join(dataDir, instanceFileName)
}

// loadOrCreateInstance reads the prior instance record, if its PID no
// longer exists (the common restart case), or creates a fresh one.
// A live PID at the recorded path means another supervisor is already
// running against this data directory.
func loadOrCreateInstance(dataDir string, launcher ProcessLauncher) (SupervisorInstance, bool, error) {
	path := instancePath(dataDir)
	data, err := os.ReadFile(path)
	if err == nil {
		var prior SupervisorInstance
		if jsonErr := json.Unmarshal(data, &prior); jsonErr == nil {
			if launcher.Alive(prior.PID) {
				return prior, true, nil
			}
			prior.PID = os.Getpid()
			prior.StartedAt = time.Now()
			return prior, false, nil
		}
	}

	return SupervisorInstance{
		InstanceID: uuid.NewString(),
		PID:        os.Getpid(),
		StartedAt:  time.Now(),
		Children:   map[string]int{},
	}, false, nil
}

func persistInstance(dataDir string, inst SupervisorInstance) error {
	data, err := json.MarshalIndent(inst, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(instancePath(dataDir), data, 0o644)
}

// ReapOrphans kills any process recorded as this instance's child whose
// PID is alive but is no longer tracked as running by the current
// Supervisor state, e.g. left behind by a crash between spawn and a
// clean shutdown record. It never touches a PID it didn't itself
// record, so a sibling supervisor's children are untouched.
func (s *Supervisor) ReapOrphans() []string {
	var reaped []string
	for agentID, pid := range s.instance.Children {
		if _, running := s.running[agentID]; running {
			continue
		}
		if !s.launcher.Alive(pid) {
			continue
		}
		if err := s.launcher.Signal(pid, syscall.SIGTERM); err == nil {
			reaped = append(reaped, agentID)
		}
	}
	return reaped
}
