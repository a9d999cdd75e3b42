// Package analysiscache remembers focus results for image bytes that have
// already been scored, keyed by the MD5 of the bytes.
package analysiscache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"strconv"
	"sync"

	"github.com/stevecastle/galleria/focus"
)

// Cache looks up and stores analysis results. A miss is (nil, nil).
type Cache interface {
	Get(ctx context.Context, key string) (*focus.Result, error)
	Set(ctx context.Context, key string, res focus.Result) error
}

// Key derives the cache key for data scored at maxWidth. The threshold is
// not part of the key; callers re-apply it to the cached score.
func Key(data []byte, maxWidth int) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:]) + ":" + strconv.Itoa(maxWidth)
}

// Nop never hits.
type Nop struct{}

func (Nop) Get(context.Context, string) (*focus.Result, error) { return nil, nil }
func (Nop) Set(context.Context, string, focus.Result) error { return nil }

// Memory is an unbounded in-process cache, used by tests and the focus CLI.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]focus.Result
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]focus.Result)}
}

func (m *Memory) Get(_ context.Context, key string) (*focus.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	return &res, nil
}

func (m *Memory) Set(_ context.Context, key string, res focus.Result) error {
	m.mu.Lock()
	m.entries[key] = res
	m.mu.Unlock()
	return nil
}

// Len returns the number of cached entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
