package controlplane

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/adamavenir/mentionrunner/internal/core"
	"github.com/adamavenir/mentionrunner/internal/killswitch"
	"github.com/adamavenir/mentionrunner/internal/store"
	"github.com/adamavenir/mentionrunner/internal/supervisor"
)

func newTestAPI(t *testing.T) http.Handler {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })

	spawn := supervisor.SpawnSpec{
		Binary: "/bin/agentmon",
		Args: func(cfg core.AgentConfig, descriptorPath string, handlerKind string, params map[string]any) []string {
			return nil
		},
	}
	sup, err := supervisor.Open(t.TempDir(), spawn, supervisor.NewInMemoryLauncher(), st, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	agentID, err := core.ValidateAgentID("agent-a")
	if err != nil {
		t.Fatal(err)
	}
	sup.RegisterConfig(core.AgentConfig{AgentID: agentID}, "/tmp/agent-a.yaml")

	agentB, err := core.ValidateAgentID("agent-b")
	if err != nil {
		t.Fatal(err)
	}
	sup.RegisterConfig(core.AgentConfig{AgentID: agentB}, "/tmp/agent-b.yaml")

	kill, err := killswitch.Open(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = kill.Close() })

	groups := map[string]supervisor.Group{
		"pair": {
			ID: "pair",
			Members: []supervisor.GroupMember{
				{AgentID: "agent-b", HandlerKind: "echo"},
			},
		},
	}

	return New(sup, kill, nil, groups)
}

func TestAPI_StartAndListMonitors(t *testing.T) {
	api := newTestAPI(t)

	body, _ := json.Marshal(map[string]string{"agent_id": "agent-a"})
	req := httptest.NewRequest(http.MethodPost, "/monitors", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/monitors", nil)
	rec = httptest.NewRecorder()
	api.ServeHTTP(rec, req)

	var monitors []supervisor.MonitorRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &monitors); err != nil {
		t.Fatal(err)
	}
	if len(monitors) != 1 || monitors[0].AgentID != "agent-a" {
		t.Fatalf("unexpected monitors: %+v", monitors)
	}
}

func TestAPI_StartConflict(t *testing.T) {
	api := newTestAPI(t)

	body, _ := json.Marshal(map[string]string{"agent_id": "agent-a"})
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/monitors", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		api.ServeHTTP(rec, req)
		if i == 1 && rec.Code != http.StatusConflict {
			t.Fatalf("expected 409 on second start, got %d", rec.Code)
		}
	}
}

func TestAPI_KillSwitchLifecycle(t *testing.T) {
	api := newTestAPI(t)

	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/kill-switch/activate", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("activate: expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/kill-switch", nil))
	var status map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if !status["active"] {
		t.Fatal("expected kill switch active")
	}
}

func TestAPI_StartGroup(t *testing.T) {
	api := newTestAPI(t)

	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/groups/pair/start", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var monitors []supervisor.MonitorRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &monitors); err != nil {
		t.Fatal(err)
	}
	if len(monitors) != 1 || monitors[0].AgentID != "agent-b" {
		t.Fatalf("unexpected monitors after group start: %+v", monitors)
	}
}

func TestAPI_StartGroupUnknown(t *testing.T) {
	api := newTestAPI(t)

	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/groups/missing/start", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
