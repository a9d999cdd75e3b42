// Package storage keeps uploaded image bytes in an object store and hands
// back the URL the gallery links to.
package storage

import (
	"context"
	"errors"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrNotFound   = errors.New("object not found")
	ErrInvalidKey = errors.New("invalid object key")
)

// Store is an object store addressed by slash-separated keys.
type Store interface {
	// Put writes data under key and returns a stable reference URL.
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
	Delete(ctx context.Context, key string) error
}

// Key builds a fresh object key "<prefix>/<userID>/<uuid><ext>".
func Key(prefix, userID, ext string) string {
	name := uuid.NewString() + ext
	if prefix == "" {
		return path.Join(userID, name)
	}
	return path.Join(prefix, userID, name)
}

func validKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return false
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return false
		}
	}
	return true
}

// Object is one entry held by a Memory store.
type Object struct {
	ContentType string
	Data        []byte
}

// Memory keeps objects in a map. SetFailPut makes Put fail for tests.
type Memory struct {
	BaseURL string

	mu      sync.Mutex
	objects map[string]Object
	failPut error
}

func NewMemory(baseURL string) *Memory {
	return &Memory{BaseURL: baseURL, objects: make(map[string]Object)}
}

func (m *Memory) Put(_ context.Context, key, contentType string, data []byte) (string, error) {
	if !validKey(key) {
		return "", ErrInvalidKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPut != nil {
		return "", m.failPut
	}
	m.objects[key] = Object{ContentType: contentType, Data: append([]byte(nil), data...)}
	return strings.TrimSuffix(m.BaseURL, "/") + "/" + key, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return ErrNotFound
	}
	delete(m.objects, key)
	return nil
}

// Get returns the stored object.
func (m *Memory) Get(key string) (Object, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[key]
	return o, ok
}

// SetFailPut makes subsequent Puts fail with err; nil restores them.
func (m *Memory) SetFailPut(err error) {
	m.mu.Lock()
	m.failPut = err
	m.mu.Unlock()
}

// Len returns the number of stored objects.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
