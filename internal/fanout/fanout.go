// Package fanout executes a request against one or many scripts
// concurrently and assembles the combined result, per spec.md §4.5.
package fanout

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scriptrunner/scriptd/internal/audit"
	"github.com/scriptrunner/scriptd/internal/executor"
	"github.com/scriptrunner/scriptd/internal/registry"
	"github.com/scriptrunner/scriptd/internal/supervisor"
)

// TargetResult folds a per-target outcome: either a Result or an error
// string, never both populated meaningfully. A per-target failure never
// aborts its peers.
type TargetResult struct {
	Result supervisor.Result `json:"result"`
	Error  string            `json:"error,omitempty"`
}

// Runner composes an Executor with the registry (for "all scripts" fan-out)
// and an optional audit sink.
type Runner struct {
	Executor *executor.Executor
	Registry *registry.Registry
	Audit    *audit.Store // nil disables audit recording
}

// New builds a Runner.
func New(exec *executor.Executor, reg *registry.Registry, store *audit.Store) *Runner {
	return &Runner{Executor: exec, Registry: reg, Audit: store}
}

// RunOne executes req against a single named script and returns the bare
// outcome. err is non-nil for ErrInvalidName, ErrScriptNotFound, and
// ErrTimeout; a timed-out run still returns a populated Result alongside
// executor.ErrTimeout.
func (r *Runner) RunOne(ctx context.Context, name string, req supervisor.Request) (supervisor.Result, error) {
	start := time.Now()
	outcome, err := r.Executor.Execute(ctx, name, req)
	r.record(name, start, outcome, err)

	if err != nil && !errors.Is(err, executor.ErrTimeout) {
		return supervisor.Result{}, err
	}
	return outcome.Result, err
}

// RunMany executes req against every name in names concurrently (spec.md
// §4.5: ordering of starts is not guaranteed) and returns a mapping from
// name to that target's folded result. No per-target error aborts its
// peers.
func (r *Runner) RunMany(ctx context.Context, names []string, req supervisor.Request) map[string]TargetResult {
	results := make(map[string]TargetResult, len(names))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			result, err := r.RunOne(ctx, name, req)
			tr := TargetResult{Result: result}
			if err != nil && !errors.Is(err, executor.ErrTimeout) {
				tr.Error = err.Error()
			}
			mu.Lock()
			results[name] = tr
			mu.Unlock()
		}(name)
	}
	wg.Wait()
	return results
}

// AllNames returns the registry's current snapshot, used when a multi-run
// request omits an explicit target list.
func (r *Runner) AllNames() []string {
	return r.Registry.List()
}

func (r *Runner) record(name string, start time.Time, outcome executor.Outcome, err error) {
	if r.Audit == nil {
		return
	}
	rec := audit.Record{
		RunID:     uuid.New().String(),
		Script:    name,
		StartedAt: start,
		Duration:  time.Since(start),
		ExitCode:  outcome.Result.ExitCode,
		TimedOut:  outcome.Result.TimedOut,
		CacheHit:  outcome.CacheHit,
	}
	if err != nil && !errors.Is(err, executor.ErrTimeout) {
		// Invalid name / not found never reached the supervisor; nothing
		// meaningful to audit.
		return
	}
	if logErr := r.Audit.Record(rec); logErr != nil {
		audit.LogRecordFailure(name, logErr)
	}
}
