// Package sources is the lifecycle registry for file-tail workers. It
// assigns opaque ids and owns the workers it starts.
package sources

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/tinytelemetry/magpie/internal/model"
	"github.com/tinytelemetry/magpie/internal/tailer"
)

// Manager maps opaque source ids to owned tail workers.
type Manager struct {
	store   tailer.Inserter
	mu      sync.Mutex
	tailers map[string]*tailer.Tailer
	nextID  int
}

// NewManager creates an empty registry inserting into store.
func NewManager(store tailer.Inserter) *Manager {
	return &Manager{
		store:   store,
		tailers: make(map[string]*tailer.Tailer),
		nextID:  1,
	}
}

// AddFile constructs a tailer for path, starts it, and registers it under a
// fresh "file-<N>" id. If the worker fails to start (file not found) it is
// dropped and an error is returned.
func (m *Manager) AddFile(path, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := fmt.Sprintf("file-%d", m.nextID)
	m.nextID++

	t := tailer.New(m.store, path, name)
	t.Start()
	if !t.Running() {
		return "", fmt.Errorf("sources: failed to start tailer for %s", path)
	}

	m.tailers[id] = t
	return id, nil
}

// Remove stops and forgets the source. Returns false if the id is unknown.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tailers[id]
	if !ok {
		return false
	}
	t.Stop()
	delete(m.tailers, id)
	return true
}

// List returns descriptors for every registered source with its current
// running state, sorted by id for stable output.
func (m *Manager) List() []model.SourceInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]model.SourceInfo, 0, len(m.tailers))
	for id, t := range m.tailers {
		result = append(result, model.SourceInfo{
			ID:      id,
			Kind:    "file-tailer",
			Name:    t.Name(),
			Path:    t.Path(),
			Running: t.Running(),
		})
	}
	sort.Slice(result, func(i, j int) bool { return sourceSeq(result[i].ID) < sourceSeq(result[j].ID) })
	return result
}

// sourceSeq extracts the numeric counter from a "file-<N>" id so listings
// sort in assignment order.
func sourceSeq(id string) int {
	n, _ := strconv.Atoi(strings.TrimPrefix(id, "file-"))
	return n
}

// StopAll stops and forgets every source. Used at teardown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.tailers {
		t.Stop()
	}
	m.tailers = make(map[string]*tailer.Tailer)
}
