package sseserver

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tinytelemetry/magpie/internal/mcp"
	"github.com/tinytelemetry/magpie/internal/model"
	"github.com/tinytelemetry/magpie/internal/sources"
	"github.com/tinytelemetry/magpie/internal/store"
)

// streamClient wraps one open event stream for frame-level reads.
type streamClient struct {
	endpoint string
	reader   *bufio.Reader
	close    func()
}

func openStream(t *testing.T, baseURL string) *streamClient {
	t.Helper()
	resp, err := http.Get(baseURL + "/sse")
	if err != nil {
		t.Fatalf("GET /sse: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	reader := bufio.NewReader(resp.Body)
	var endpoint string
	for i := 0; i < 3; i++ {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read handshake: %v", err)
		}
		if strings.HasPrefix(line, "data: ") {
			endpoint = strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}
	if endpoint == "" {
		t.Fatal("handshake did not carry the endpoint payload")
	}
	return &streamClient{
		endpoint: endpoint,
		reader:   reader,
		close:    func() { resp.Body.Close() },
	}
}

// readMessageData reads frames until an "event: message" frame arrives and
// returns its data payload.
func (c *streamClient) readMessageData(t *testing.T) string {
	t.Helper()
	type frameResult struct {
		data string
		ok   bool
	}
	ch := make(chan frameResult, 1)
	go func() {
		var event, data string
		for {
			line, err := c.reader.ReadString('\n')
			if err != nil {
				ch <- frameResult{}
				return
			}
			switch {
			case strings.HasPrefix(line, "event: "):
				event = strings.TrimSpace(strings.TrimPrefix(line, "event: "))
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimSpace(strings.TrimPrefix(line, "data: "))
			case line == "\n":
				if event == "message" {
					ch <- frameResult{data: data, ok: true}
					return
				}
				event, data = "", ""
			}
		}
	}()

	select {
	case r := <-ch:
		if !r.ok {
			t.Fatal("stream closed before a message frame arrived")
		}
		return r.data
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a message frame")
	}
	return ""
}

// TestGetStatsRoundTrip drives the full path: store -> dispatcher ->
// transport -> event stream, per the get_stats scenario.
func TestGetStatsRoundTrip(t *testing.T) {
	st, err := store.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if _, err := st.Insert(model.LogRecord{Source: "client", Category: "LogTemp", Severity: model.Log, Message: "hello", SessionID: "s"}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	mgr := sources.NewManager(st)
	t.Cleanup(mgr.StopAll)

	dispatcher := mcp.NewDispatcher(st, mgr)

	srv := NewServer(0, "", "")
	srv.SetMessageHandler(dispatcher.Dispatch)
	testServer := httptest.NewServer(newTestRouter(srv))
	t.Cleanup(testServer.Close)

	client := openStream(t, testServer.URL)

	post, err := http.Post(testServer.URL+client.endpoint, "application/json",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get_stats","arguments":{}}}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	post.Body.Close()
	if post.StatusCode != http.StatusAccepted {
		t.Fatalf("POST status = %d, want 202", post.StatusCode)
	}

	data := client.readMessageData(t)

	var rpc struct {
		JSONRPC string `json:"jsonrpc"`
		ID      int    `json:"id"`
		Result  struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
			IsError bool `json:"isError"`
		} `json:"result"`
	}
	if err := json.Unmarshal([]byte(data), &rpc); err != nil {
		t.Fatalf("response payload: %v", err)
	}
	if rpc.JSONRPC != "2.0" || rpc.ID != 1 || rpc.Result.IsError {
		t.Fatalf("rpc = %+v", rpc)
	}
	if len(rpc.Result.Content) != 1 || rpc.Result.Content[0].Type != "text" {
		t.Fatalf("content = %+v", rpc.Result.Content)
	}

	var stats struct {
		Total *int64 `json:"total"`
	}
	if err := json.Unmarshal([]byte(rpc.Result.Content[0].Text), &stats); err != nil {
		t.Fatalf("stats text: %v", err)
	}
	if stats.Total == nil || *stats.Total != 1 {
		t.Errorf("total = %v, want 1", stats.Total)
	}
}
