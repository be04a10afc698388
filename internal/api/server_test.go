package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/scriptrunner/scriptd/internal/execcache"
	"github.com/scriptrunner/scriptd/internal/executor"
	"github.com/scriptrunner/scriptd/internal/fanout"
	"github.com/scriptrunner/scriptd/internal/gate"
	"github.com/scriptrunner/scriptd/internal/registry"
	"github.com/scriptrunner/scriptd/internal/supervisor"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	sup := supervisor.New(supervisor.Config{Interpreter: "sh", Deadline: 2 * time.Second})
	exec := executor.New(dir, ".py", execcache.New(), gate.New(4), sup)
	reg := registry.New()
	runner := fanout.New(exec, reg, nil)
	return New(dir, ".py", reg, runner, nil), dir
}

func TestHandleCreateListRunUpdateDelete(t *testing.T) {
	srv, dir := newTestServer(t)

	// Create
	body := strings.NewReader(`{"name":"cat.py","code":"cat\n"}`)
	req := httptest.NewRequest(http.MethodPost, "/scripts", body)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if _, err := os.Stat(filepath.Join(dir, "cat.py")); err != nil {
		t.Fatalf("expected file on disk: %v", err)
	}

	// Duplicate create fails
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/scripts", strings.NewReader(`{"name":"cat.py","code":"cat\n"}`)))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate create, got %d", rec.Code)
	}

	// List includes the new script immediately (Add, not waiting for scan)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/scripts", nil))
	var names []string
	if err := json.Unmarshal(rec.Body.Bytes(), &names); err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != "cat.py" {
		t.Fatalf("List = %v", names)
	}

	// Run
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/run/cat.py", strings.NewReader(`{"data":{"got":1}}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("run status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var result supervisor.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result.Stdout != `{"got":1}` {
		t.Fatalf("Stdout = %q", result.Stdout)
	}

	// Update
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/scripts/cat.py", strings.NewReader(`{"code":"cat; echo extra\n"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// Update missing script fails
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/scripts/missing.py", strings.NewReader(`{"code":"cat\n"}`)))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 updating missing script, got %d", rec.Code)
	}

	// Delete
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/scripts/cat.py", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if _, err := os.Stat(filepath.Join(dir, "cat.py")); !os.IsNotExist(err) {
		t.Fatalf("expected file removed, stat err = %v", err)
	}

	// Delete again fails
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/scripts/cat.py", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 re-deleting, got %d", rec.Code)
	}
}

func TestHandleCreateInvalidName(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/scripts", strings.NewReader(`{"name":"../x.py","code":"cat\n"}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for path traversal name, got %d", rec.Code)
	}
}

func TestHandleRunMissingScript(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/run/missing.py", strings.NewReader(`{"data":null}`)))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleRunManyAllRegistered(t *testing.T) {
	srv, dir := newTestServer(t)
	for _, name := range []string{"a.py", "b.py"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("cat\n"), 0o755); err != nil {
			t.Fatal(err)
		}
		srv.Registry.Add(name)
	}

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/run", strings.NewReader(`{"data":"x"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Results map[string]fanout.TargetResult `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatal(err)
	}
	if len(payload.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(payload.Results))
	}
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
