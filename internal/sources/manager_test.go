package sources

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/tinytelemetry/magpie/internal/model"
)

type memInserter struct {
	mu sync.Mutex
	n  int64
}

func (m *memInserter) Insert(model.LogRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.n++
	return m.n, nil
}

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatalf("touch %s: %v", path, err)
	}
	return path
}

func TestAddRemoveList(t *testing.T) {
	m := NewManager(&memInserter{})
	t.Cleanup(m.StopAll)
	dir := t.TempDir()

	id1, err := m.AddFile(touch(t, dir, "a.log"), "")
	if err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if id1 != "file-1" {
		t.Errorf("first id = %q, want file-1", id1)
	}

	id2, err := m.AddFile(touch(t, dir, "b.log"), "backend")
	if err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if id2 != "file-2" {
		t.Errorf("second id = %q, want file-2", id2)
	}

	list := m.List()
	if len(list) != 2 {
		t.Fatalf("List returned %d sources, want 2", len(list))
	}
	if list[0].ID != "file-1" || list[1].ID != "file-2" {
		t.Errorf("list order: %+v", list)
	}
	if list[0].Kind != "file-tailer" || !list[0].Running {
		t.Errorf("descriptor: %+v", list[0])
	}
	if list[1].Name != "backend" {
		t.Errorf("name = %q, want backend", list[1].Name)
	}

	if !m.Remove(id1) {
		t.Error("Remove(file-1) = false")
	}
	if m.Remove(id1) {
		t.Error("second Remove(file-1) = true")
	}
	if m.Remove("file-99") {
		t.Error("Remove(unknown) = true")
	}
	if got := len(m.List()); got != 1 {
		t.Errorf("after remove, %d sources remain", got)
	}
}

func TestAddMissingFileFails(t *testing.T) {
	m := NewManager(&memInserter{})
	t.Cleanup(m.StopAll)

	id, err := m.AddFile(filepath.Join(t.TempDir(), "nope.log"), "")
	if err == nil {
		t.Fatal("AddFile should fail for a missing file")
	}
	if id != "" {
		t.Errorf("id = %q, want empty", id)
	}
	if got := len(m.List()); got != 0 {
		t.Errorf("failed add left %d sources registered", got)
	}
}

func TestIDsKeepAdvancingAfterFailure(t *testing.T) {
	m := NewManager(&memInserter{})
	t.Cleanup(m.StopAll)
	dir := t.TempDir()

	if _, err := m.AddFile(filepath.Join(dir, "missing.log"), ""); err == nil {
		t.Fatal("expected failure")
	}
	id, err := m.AddFile(touch(t, dir, "real.log"), "")
	if err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	// The counter is monotone; a failed add burns its id.
	if id != "file-2" {
		t.Errorf("id = %q, want file-2", id)
	}
}

func TestStopAll(t *testing.T) {
	m := NewManager(&memInserter{})
	dir := t.TempDir()
	if _, err := m.AddFile(touch(t, dir, "a.log"), ""); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if _, err := m.AddFile(touch(t, dir, "b.log"), ""); err != nil {
		t.Fatalf("AddFile: %v", err)
	}

	m.StopAll()
	if got := len(m.List()); got != 0 {
		t.Errorf("StopAll left %d sources", got)
	}
}
