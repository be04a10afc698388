// Package executor composes the pieces spec.md's Execution Supervisor
// section folds together: resolving and stat-ing the script, constructing
// the cache key, checking the cache, acquiring the concurrency gate, and
// running the supervisor on a miss.
package executor

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/scriptrunner/scriptd/internal/execcache"
	"github.com/scriptrunner/scriptd/internal/gate"
	"github.com/scriptrunner/scriptd/internal/scriptname"
	"github.com/scriptrunner/scriptd/internal/supervisor"
)

// ErrScriptNotFound means the resolved path is not a regular, stat-able
// file at the moment of resolution.
var ErrScriptNotFound = errors.New("script not found")

// ErrInvalidName re-exports scriptname's sentinel so api callers only need
// to import this package's error set.
var ErrInvalidName = scriptname.ErrInvalid

// ErrTimeout is returned alongside a Result with TimedOut=true so HTTP
// handlers can map it to 504 without inspecting the result body.
var ErrTimeout = errors.New("execution timed out")

// Outcome is what Execute returns: the result and whether it was served
// from cache.
type Outcome struct {
	Result   supervisor.Result
	CacheHit bool
}

// Executor ties the directory, the naming rules, the cache, the gate, and
// the supervisor together into the single-target algorithm from spec.md
// §4.4.
type Executor struct {
	Dir        string
	Ext        string
	Cache      *execcache.Cache
	Gate       *gate.Gate
	Supervisor *supervisor.Supervisor
}

// New builds an Executor from its collaborators.
func New(dir, ext string, cache *execcache.Cache, g *gate.Gate, sup *supervisor.Supervisor) *Executor {
	return &Executor{Dir: dir, Ext: ext, Cache: cache, Gate: g, Supervisor: sup}
}

// Execute runs req against name, following spec.md §4.4's algorithm:
// validate name, stat for mtime, check cache, acquire the gate, spawn,
// release the gate, and insert into the cache only on a clean exit.
func (e *Executor) Execute(ctx context.Context, name string, req supervisor.Request) (Outcome, error) {
	if err := scriptname.Check(name, e.Ext); err != nil {
		return Outcome{}, err
	}

	path := scriptname.Path(e.Dir, name)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return Outcome{}, fmt.Errorf("%w: %s", ErrScriptNotFound, name)
	}

	key, err := execcache.NewKey(name, info.ModTime().UnixNano(), req.Data, req.Args)
	if err != nil {
		return Outcome{}, fmt.Errorf("build cache key: %w", err)
	}

	if result, ok := e.Cache.Lookup(key); ok {
		return Outcome{Result: result, CacheHit: true}, nil
	}

	if err := e.Gate.Acquire(ctx); err != nil {
		return Outcome{}, fmt.Errorf("acquire concurrency gate: %w", err)
	}
	result, err := e.Supervisor.Run(ctx, path, req)
	e.Gate.Release()
	if err != nil {
		return Outcome{}, err
	}

	if !result.TimedOut && result.ExitCode == 0 {
		e.Cache.Insert(key, result)
	}

	if result.TimedOut {
		return Outcome{Result: result}, ErrTimeout
	}
	return Outcome{Result: result}, nil
}
