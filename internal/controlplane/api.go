// Package controlplane projects Supervisor and KillSwitch operations as
// a thin JSON/HTTP API. It holds no business logic beyond
// request/response marshaling; the supervisor unauthenticated, so
// deployments are expected to bind it to a trusted interface or front
// it with their own auth proxy.
package controlplane

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adamavenir/mentionrunner/internal/killswitch"
	"github.com/adamavenir/mentionrunner/internal/metrics"
	"github.com/adamavenir/mentionrunner/internal/supervisor"
)

// API wires a Supervisor and KillSwitch into an http.Handler.
type API struct {
	sup     *supervisor.Supervisor
	kill    *killswitch.KillSwitch
	metrics *metrics.Collector
	groups  map[string]supervisor.Group
}

// New builds a chi.Router exposing the supervisor and kill-switch routes. When
// collector is non-nil its /metrics endpoint is mounted and the
// monitors-running/kill-switch-active gauges are kept in sync with
// every mutating request this router handles. groups is the deployment
// group registry that /groups/{id}/start resolves against; a nil or
// empty map just means every group id 404s.
func New(sup *supervisor.Supervisor, kill *killswitch.KillSwitch, collector *metrics.Collector, groups map[string]supervisor.Group) http.Handler {
	a := &API{sup: sup, kill: kill, metrics: collector, groups: groups}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/monitors", a.listMonitors)
	r.Post("/monitors", a.startMonitor)
	r.Post("/monitors/{id}/stop", a.stopMonitor)
	r.Post("/monitors/{id}/restart", a.restartMonitor)
	r.Post("/monitors/{id}/kill", a.killMonitor)
	r.Delete("/monitors/{id}", a.deleteMonitor)

	r.Get("/kill-switch", a.getKillSwitch)
	r.Post("/kill-switch/activate", a.activateKillSwitch)
	r.Post("/kill-switch/deactivate", a.deactivateKillSwitch)

	r.Post("/groups/{id}/start", a.startGroup)

	if collector != nil {
		r.Handle("/metrics", promhttp.HandlerFor(collector.Gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

// syncGauges refreshes the point-in-time supervisor gauges after a
// mutating operation. Per-agent counters are updated by the engine
// process itself, not here.
func (a *API) syncGauges() {
	if a.metrics == nil {
		return
	}
	a.metrics.MonitorsRunning.Set(float64(len(a.sup.List())))
	active := 0.0
	if a.kill.Active() {
		active = 1.0
	}
	a.metrics.KillSwitchActive.Set(active)
}

type startRequest struct {
	AgentID     string         `json:"agent_id"`
	HandlerKind string         `json:"handler_kind"`
	Params      map[string]any `json:"params"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (a *API) listMonitors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.sup.List())
}

func (a *API) startMonitor(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rec, err := a.sup.Start(req.AgentID, req.HandlerKind, req.Params)
	if err != nil {
		if _, already := err.(*supervisor.ErrAlreadyRunning); already {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}
	a.syncGauges()
	writeJSON(w, http.StatusCreated, rec)
}

func (a *API) stopMonitor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.sup.Stop(id); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	a.syncGauges()
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (a *API) restartMonitor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := a.sup.Restart(id)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	a.syncGauges()
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) killMonitor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.sup.Kill(id); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	a.syncGauges()
	writeJSON(w, http.StatusOK, map[string]string{"status": "killed"})
}

func (a *API) deleteMonitor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.sup.Delete(id); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) getKillSwitch(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"active": a.kill.Active()})
}

func (a *API) activateKillSwitch(w http.ResponseWriter, r *http.Request) {
	if err := a.kill.Activate(); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	a.syncGauges()
	writeJSON(w, http.StatusOK, map[string]bool{"active": true})
}

func (a *API) deactivateKillSwitch(w http.ResponseWriter, r *http.Request) {
	if err := a.kill.Deactivate(); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	a.syncGauges()
	writeJSON(w, http.StatusOK, map[string]bool{"active": false})
}

func (a *API) startGroup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	group, ok := a.groups[id]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown group %q", id))
		return
	}
	errs := a.sup.StartGroup(group)
	a.syncGauges()
	if len(errs) > 0 {
		messages := make([]string, len(errs))
		for i, err := range errs {
			messages[i] = err.Error()
		}
		writeJSON(w, http.StatusConflict, map[string]any{"errors": messages})
		return
	}
	writeJSON(w, http.StatusOK, a.sup.List())
}
