// Package scanner periodically rebuilds the script registry from the
// contents of the scripts directory, with an fsnotify-driven fast path for
// lower-latency convergence between scans.
package scanner

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/scriptrunner/scriptd/internal/registry"
)

// Scanner owns the periodic directory-to-registry reconciliation loop.
type Scanner struct {
	dir      string
	ext      string
	interval time.Duration
	reg      *registry.Registry
}

// New constructs a Scanner. It does not touch the filesystem until Run is
// called.
func New(dir, ext string, interval time.Duration, reg *registry.Registry) *Scanner {
	return &Scanner{dir: dir, ext: ext, interval: interval, reg: reg}
}

// Run blocks until ctx is canceled, scanning every interval and reacting to
// filesystem events in between. A directory read failure is logged and
// retried on the next tick; it never stops the loop.
func (s *Scanner) Run(ctx context.Context) {
	s.scanOnce()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("[scanner] fsnotify unavailable, falling back to ticker-only: %v", err)
		s.runTickerOnly(ctx)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(s.dir); err != nil {
		log.Printf("[scanner] watch %s: %v (ticker-only)", s.dir, err)
		s.runTickerOnly(ctx)
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var debounce *time.Timer
	debounceCh := make(<-chan time.Time)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.scanOnce()
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(ev.Name, s.ext) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.NewTimer(250 * time.Millisecond)
			debounceCh = debounce.C
		case <-debounceCh:
			s.scanOnce()
			debounceCh = make(<-chan time.Time)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[scanner] watch error: %v", err)
		}
	}
}

func (s *Scanner) runTickerOnly(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.scanOnce()
		}
	}
}

// scanOnce enumerates the directory and replaces the registry's contents
// atomically. A read failure is logged and left for the next tick.
func (s *Scanner) scanOnce() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		log.Printf("[scanner] read %s: %v", s.dir, err)
		return
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !strings.HasSuffix(e.Name(), s.ext) {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		names = append(names, e.Name())
	}

	s.reg.Replace(names)
}
