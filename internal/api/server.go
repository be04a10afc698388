// Package api adapts the net/http transport to the script registry,
// fan-out runner, and audit log, following the same pattern-based
// ServeMux wiring the teacher's internal/relay/server.go uses.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/scriptrunner/scriptd/internal/audit"
	"github.com/scriptrunner/scriptd/internal/executor"
	"github.com/scriptrunner/scriptd/internal/fanout"
	"github.com/scriptrunner/scriptd/internal/registry"
	"github.com/scriptrunner/scriptd/internal/scriptname"
	"github.com/scriptrunner/scriptd/internal/supervisor"
)

// Server wires the HTTP surface described in spec.md §6 to the execution
// core.
type Server struct {
	Dir      string
	Ext      string
	Registry *registry.Registry
	Runner   *fanout.Runner
	Audit    *audit.Store // nil disables GET /audit

	mux *http.ServeMux
}

// New builds a Server and registers its routes.
func New(dir, ext string, reg *registry.Registry, runner *fanout.Runner, auditStore *audit.Store) *Server {
	s := &Server{Dir: dir, Ext: ext, Registry: reg, Runner: runner, Audit: auditStore, mux: http.NewServeMux()}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /scripts", s.handleList)
	s.mux.HandleFunc("POST /scripts", s.handleCreate)
	s.mux.HandleFunc("PUT /scripts/{name}", s.handleUpdate)
	s.mux.HandleFunc("DELETE /scripts/{name}", s.handleDelete)
	s.mux.HandleFunc("POST /run/{name}", s.handleRunOne)
	s.mux.HandleFunc("POST /run", s.handleRunMany)
	s.mux.HandleFunc("GET /audit", s.handleAudit)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Registry.List())
}

type createRequest struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request: "+err.Error())
		return
	}
	if err := scriptname.Check(req.Name, s.Ext); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	path := scriptname.Path(s.Dir, req.Name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			writeError(w, http.StatusConflict, "script already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "create: "+err.Error())
		return
	}
	defer f.Close()
	if _, err := f.WriteString(req.Code); err != nil {
		writeError(w, http.StatusInternalServerError, "write: "+err.Error())
		return
	}

	s.Registry.Add(req.Name)
	w.WriteHeader(http.StatusCreated)
}

type updateRequest struct {
	Code string `json:"code"`
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := scriptname.Check(name, s.Ext); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request: "+err.Error())
		return
	}

	path := scriptname.Path(s.Dir, name)
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "script not found")
		return
	}
	if err := os.WriteFile(path, []byte(req.Code), 0o644); err != nil {
		writeError(w, http.StatusInternalServerError, "write: "+err.Error())
		return
	}

	s.Registry.Add(name)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := scriptname.Check(name, s.Ext); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	path := scriptname.Path(s.Dir, name)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			writeError(w, http.StatusNotFound, "script not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "delete: "+err.Error())
		return
	}

	s.Registry.Remove(name)
	w.WriteHeader(http.StatusNoContent)
}

type runRequest struct {
	Data any      `json:"data"`
	Args []string `json:"args"`
}

func (req runRequest) toSupervisorRequest() supervisor.Request {
	return supervisor.Request{Data: req.Data, Args: req.Args}
}

func (s *Server) handleRunOne(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req runRequest
	if err := decodeRunBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.Runner.RunOne(r.Context(), name, req.toSupervisorRequest())
	if err != nil && !errors.Is(err, executor.ErrTimeout) {
		writeExecutorError(w, err)
		return
	}
	if errors.Is(err, executor.ErrTimeout) {
		writeJSON(w, http.StatusGatewayTimeout, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRunMany(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := decodeRunBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var names []string
	if q := r.URL.Query().Get("names"); q != "" {
		for _, n := range strings.Split(q, ",") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
	} else {
		names = s.Runner.AllNames()
	}

	results := s.Runner.RunMany(r.Context(), names, req.toSupervisorRequest())
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.Audit == nil {
		writeError(w, http.StatusNotFound, "audit log not enabled")
		return
	}
	limit := 50
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil {
			limit = n
		}
	}
	records, err := s.Audit.Recent(r.URL.Query().Get("script"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "audit query: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func decodeRunBody(r *http.Request, req *runRequest) error {
	if r.Body == nil || r.ContentLength == 0 {
		return errors.New("bad request: missing body")
	}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		return errors.New("bad request: " + err.Error())
	}
	return nil
}

func writeExecutorError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, executor.ErrInvalidName):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, executor.ErrScriptNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, supervisor.ErrSpawnFailed):
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		log.Printf("[api] unexpected execution error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
