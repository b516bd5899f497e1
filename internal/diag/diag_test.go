package diag

import (
	"sync"
	"testing"
)

func TestSetSinkRoutesMessages(t *testing.T) {
	type line struct {
		component, message string
		isError            bool
	}
	var mu sync.Mutex
	var got []line

	SetSink(func(component, message string, isError bool) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, line{component, message, isError})
	})
	t.Cleanup(func() { SetSink(nil) })

	Log("UDP", "listening")
	Error("FileTailer", "file not found")
	Logf("HTTP", "client %s connected", "session_1_deadbeef")

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 3 {
		t.Fatalf("got %d lines, want 3", len(got))
	}
	if got[0].component != "UDP" || got[0].isError {
		t.Errorf("line 0 = %+v", got[0])
	}
	if got[1].component != "FileTailer" || !got[1].isError {
		t.Errorf("line 1 = %+v", got[1])
	}
	if got[2].message != "client session_1_deadbeef connected" {
		t.Errorf("line 2 message = %q", got[2].message)
	}
}

func TestSetSinkNilRestoresDefault(t *testing.T) {
	SetSink(func(string, string, bool) {})
	SetSink(nil)
	// Must not panic writing to the default sink.
	Log("test", "back to default")
}
