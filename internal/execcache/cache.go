// Package execcache memoizes execution results by a key derived from the
// script name, its mtime, and the canonical encoding of the request. No
// TTL, no eviction: the cache is discarded wholesale at process shutdown.
package execcache

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/scriptrunner/scriptd/internal/supervisor"
)

// Key identifies a memoizable execution. Two requests that are semantically
// identical — same script, same mtime, same canonical data, same args —
// produce an equal Key.
type Key string

// NewKey derives a Key from the script name, its mtime (nanoseconds since
// epoch), and the request payload. data is re-marshaled through
// canonicalJSON so that key order and insignificant whitespace in the
// caller's original JSON never affect the key.
func NewKey(name string, mtimeNanos int64, data any, args []string) (Key, error) {
	canon, err := canonicalJSON(data)
	if err != nil {
		return "", fmt.Errorf("canonicalize request data: %w", err)
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("marshal args: %w", err)
	}
	return Key(fmt.Sprintf("%s\x00%d\x00%s\x00%s", name, mtimeNanos, canon, argsJSON)), nil
}

// canonicalJSON decodes and re-encodes v so that object keys are sorted and
// no insignificant whitespace remains. encoding/json already sorts map
// keys when marshaling, so a decode-then-encode round trip through a
// generic interface{} is sufficient.
func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

// Cache is safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[Key]supervisor.Result
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[Key]supervisor.Result)}
}

// Lookup is a pure read; it never blocks on a writer for long and performs
// no suspension of its own.
func (c *Cache) Lookup(key Key) (supervisor.Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.entries[key]
	return r, ok
}

// Insert overwrites any existing entry for key. Concurrent inserts of an
// equal key are fine: the value is a pure function of the key, so the last
// writer's value is equivalent to any other writer's.
func (c *Cache) Insert(key Key, result supervisor.Result) {
	c.mu.Lock()
	c.entries[key] = result
	c.mu.Unlock()
}

// Len reports the number of cached entries, for tests and diagnostics.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
