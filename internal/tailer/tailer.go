// Package tailer follows one file path and emits one record per
// newline-terminated line observed after start. Pre-existing content is
// skipped: the worker tails the future, not the past.
package tailer

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinytelemetry/magpie/internal/diag"
	"github.com/tinytelemetry/magpie/internal/model"
)

const (
	// pollInterval is how often the worker checks the file for growth.
	pollInterval = 200 * time.Millisecond

	// missingBackoff is slept when the file has disappeared or a read
	// failed, before rechecking.
	missingBackoff = 1 * time.Second

	// MaxLineSize caps a single emitted line. Longer lines are dropped with
	// an input-error diagnostic; the whole line is still read into memory
	// before its length is checked.
	MaxLineSize = 1024 * 1024
)

// Inserter is the narrow store contract the tailer needs.
type Inserter interface {
	Insert(model.LogRecord) (int64, error)
}

// Tailer polls a single file and turns appended lines into records with
// source "file-tailer" and the tailer's display name as category.
type Tailer struct {
	store   Inserter
	path    string
	name    string
	offset  int64
	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// New creates a tailer for path. If name is empty the filename is used as
// the display name.
func New(store Inserter, path, name string) *Tailer {
	if name == "" {
		name = filepath.Base(path)
	}
	return &Tailer{
		store: store,
		path:  path,
		name:  name,
		done:  make(chan struct{}),
	}
}

// Path returns the followed file path.
func (t *Tailer) Path() string { return t.path }

// Name returns the display name (and record category).
func (t *Tailer) Name() string { return t.name }

// Running reports whether the worker is active.
func (t *Tailer) Running() bool { return t.running.Load() }

// Start begins following the file. If the file does not exist the failure
// is diagnosed, the worker is marked not-running, and Start returns without
// spawning anything. A tailer is single-use: once stopped, construct a new
// one rather than restarting it.
func (t *Tailer) Start() {
	if t.running.Load() {
		return
	}

	info, err := os.Stat(t.path)
	if err != nil {
		diag.Errorf("FileTailer", "File not found: %s", t.path)
		return
	}
	// Current size is the initial read offset: only future content counts.
	t.offset = info.Size()
	t.running.Store(true)

	diag.Logf("FileTailer", "Started tailing: %s (as %s)", t.path, t.name)

	t.wg.Add(1)
	go t.monitorLoop()
}

// Stop signals the worker and joins it.
func (t *Tailer) Stop() {
	if !t.running.Load() {
		return
	}
	t.running.Store(false)
	close(t.done)
	t.wg.Wait()
	diag.Logf("FileTailer", "Stopped tailing: %s", t.path)
}

// sleep waits for d or until Stop, whichever comes first. Returns false
// when the worker should exit.
func (t *Tailer) sleep(d time.Duration) bool {
	select {
	case <-t.done:
		return false
	case <-time.After(d):
		return true
	}
}

func (t *Tailer) monitorLoop() {
	defer t.wg.Done()

	for t.sleep(pollInterval) {
		info, err := os.Stat(t.path)
		if err != nil {
			// File was deleted; wait for it to reappear.
			if !t.sleep(missingBackoff) {
				return
			}
			continue
		}

		size := info.Size()
		if size < t.offset {
			diag.Logf("FileTailer", "File rotated, resetting position: %s", t.path)
			t.offset = 0
		}
		if size > t.offset {
			if err := t.readNewLines(size); err != nil {
				diag.Errorf("FileTailer", "Error reading file: %v", err)
				if !t.sleep(missingBackoff) {
					return
				}
			}
		}
	}
}

// readNewLines reads complete lines from the saved offset up to EOF,
// advancing the offset past each line it handles and setting it to size
// on reaching EOF.
func (t *Tailer) readNewLines(size int64) error {
	f, err := os.Open(t.path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return err
	}

	reader := bufio.NewReader(f)
	pos := t.offset
	for {
		select {
		case <-t.done:
			t.offset = pos
			return nil
		default:
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			// End of file: the offset moves to the size seen by this
			// poll, so an unterminated trailing fragment is not emitted.
			if err == io.EOF {
				t.offset = size
				return nil
			}
			t.offset = pos
			return err
		}
		pos += int64(len(line))

		trimmed := chompLine(line)
		if trimmed == "" {
			t.offset = pos
			continue
		}
		if len(trimmed) > MaxLineSize {
			diag.Errorf("FileTailer", "dropped oversized line (%d bytes) from %s", len(trimmed), t.path)
			t.offset = pos
			continue
		}

		now := float64(time.Now().UnixNano()) / 1e9
		_, err = t.store.Insert(model.LogRecord{
			Source:     "file-tailer",
			Category:   t.name,
			Severity:   model.Log,
			Message:    trimmed,
			Timestamp:  now,
			ReceivedAt: now,
		})
		if err != nil {
			diag.Errorf("FileTailer", "insert failed: %v", err)
		}
		t.offset = pos
	}
}

// chompLine strips the trailing newline and carriage return.
func chompLine(line string) string {
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line
}
