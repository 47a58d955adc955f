package status

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/GoCodeAlone/modgraph"
	"github.com/GoCodeAlone/modgraph/phase"
)

type healthResponse struct {
	Status string      `json:"status"`
	Phase  phase.Phase `json:"phase"`
}

type phaseResponse struct {
	ID    string      `json:"id"`
	Name  string      `json:"name"`
	Phase phase.Phase `json:"phase"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (m *Module) health(w http.ResponseWriter, _ *http.Request) {
	p := m.app.Phase()
	if p != phase.Execute {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "starting", Phase: p})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Phase: p})
}

func (m *Module) phase(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, phaseResponse{ID: m.app.ID(), Name: m.app.Name(), Phase: m.app.Phase()})
}

func (m *Module) nodes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, m.app.Snapshot())
}

func (m *Module) node(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(chi.URLParam(r, "*"), "/")
	for _, info := range m.app.Snapshot() {
		if info.Path == path {
			writeJSON(w, http.StatusOK, info)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, errorResponse{Error: modgraph.ErrNodeNotFound.Error() + ": " + path})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
