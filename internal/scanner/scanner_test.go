package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/scriptrunner/scriptd/internal/registry"
)

func TestScanOnceFindsMatchingExtension(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.py", "b.py", "ignore.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "subdir.py"), 0o755); err != nil {
		t.Fatal(err)
	}

	reg := registry.New()
	s := New(dir, ".py", time.Hour, reg)
	s.scanOnce()

	names := reg.List()
	if len(names) != 2 || names[0] != "a.py" || names[1] != "b.py" {
		t.Fatalf("List() = %v, want [a.py b.py]", names)
	}
}

func TestScanOnceSurvivesUnreadableDir(t *testing.T) {
	reg := registry.New()
	reg.Replace([]string{"stale.py"})

	s := New(filepath.Join(t.TempDir(), "missing"), ".py", time.Hour, reg)
	s.scanOnce()

	// A failed read must not clobber the last-known-good snapshot.
	if !reg.Has("stale.py") {
		t.Fatal("expected snapshot to survive a failed scan")
	}
}

func TestRunTickerOnlyConverges(t *testing.T) {
	dir := t.TempDir()
	reg := registry.New()
	s := New(dir, ".py", 10*time.Millisecond, reg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.runTickerOnly(ctx)
		close(done)
	}()

	if err := os.WriteFile(filepath.Join(dir, "new.py"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(time.Second)
	for {
		if reg.Has("new.py") {
			break
		}
		select {
		case <-deadline:
			t.Fatal("ticker never picked up the new script")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done
}
