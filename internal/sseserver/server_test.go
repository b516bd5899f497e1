package sseserver

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var sessionIDPattern = regexp.MustCompile(`^session_\d+_[0-9a-f]{8}$`)

// newTestRouter builds the gin engine without binding a listener.
func newTestRouter(s *Server) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/", s.handleEventStream)
	r.GET("/sse", s.handleEventStream)
	r.POST("/messages", s.handleMessage)
	r.OPTIONS("/messages", s.handleMessagesPreflight)
	r.GET("/health", s.handleHealth)
	return r
}

func TestGenerateSessionID(t *testing.T) {
	s := NewServer(0, "", "")
	seen := make(map[string]bool)
	for i := 1; i <= 5; i++ {
		id := s.generateSessionID()
		if !sessionIDPattern.MatchString(id) {
			t.Errorf("session id %q does not match pattern", id)
		}
		if !strings.HasPrefix(id, "session_"+string(rune('0'+i))+"_") {
			t.Errorf("session id %q counter not monotone (want %d)", id, i)
		}
		if seen[id] {
			t.Errorf("duplicate session id %q", id)
		}
		seen[id] = true
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := NewServer(0, "", "")
	r := newTestRouter(s)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestMessagesPreflight(t *testing.T) {
	s := NewServer(0, "", "")
	r := newTestRouter(s)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/messages", nil))

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, "POST") {
		t.Errorf("Allow-Methods = %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(got, "Content-Type") {
		t.Errorf("Allow-Headers = %q", got)
	}
}

func TestMessageMissingSession(t *testing.T) {
	s := NewServer(0, "", "")
	r := newTestRouter(s)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/messages", strings.NewReader(`{}`)))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("session_id")) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestMessageMalformedBody(t *testing.T) {
	s := NewServer(0, "", "")
	r := newTestRouter(s)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/messages?session_id=s", strings.NewReader(`{"jsonrpc":`)))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestMessageAcceptedAndDelivered(t *testing.T) {
	s := NewServer(0, "", "")
	s.SetMessageHandler(func(body []byte, sessionID string) []byte {
		return []byte(`{"jsonrpc":"2.0","id":1,"result":{}}`)
	})
	r := newTestRouter(s)

	// Register a client by hand; the stream handler normally does this.
	client := &sseClient{sessionID: "session_1_00000000", frames: make(chan []byte, 4)}
	s.register(client)
	defer s.unregister(client.sessionID)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost,
		"/messages?session_id=session_1_00000000",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)))

	if w.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("accepted")) {
		t.Errorf("ack body = %s", w.Body.String())
	}

	select {
	case frame := <-client.frames:
		text := string(frame)
		if !strings.HasPrefix(text, "event: message\ndata: ") || !strings.HasSuffix(text, "\n\n") {
			t.Errorf("frame = %q", text)
		}
	default:
		t.Error("no frame delivered to matching client")
	}
}

func TestNotificationProducesNoFrame(t *testing.T) {
	s := NewServer(0, "", "")
	s.SetMessageHandler(func(body []byte, sessionID string) []byte {
		return nil // notification
	})
	r := newTestRouter(s)

	client := &sseClient{sessionID: "session_1_00000000", frames: make(chan []byte, 4)}
	s.register(client)
	defer s.unregister(client.sessionID)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost,
		"/messages?session_id=session_1_00000000",
		strings.NewReader(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)))

	if w.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", w.Code)
	}
	select {
	case frame := <-client.frames:
		t.Errorf("unexpected frame: %q", frame)
	default:
	}
}

func TestFormatEvent(t *testing.T) {
	frame := formatEvent("endpoint", []byte("/messages?session_id=x"))
	want := "event: endpoint\ndata: /messages?session_id=x\n\n"
	if string(frame) != want {
		t.Errorf("frame = %q, want %q", frame, want)
	}
}

// TestEventStreamHandshake opens a stream and reads the first frame off it.
func TestEventStreamHandshake(t *testing.T) {
	srv := NewServer(0, "", "")
	r := newTestRouter(srv)
	testServer := httptest.NewServer(r)
	t.Cleanup(testServer.Close)

	resp, err := http.Get(testServer.URL + "/sse")
	if err != nil {
		t.Fatalf("GET /sse: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("Content-Type = %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	readLine := func() string {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		return line
	}

	if line := readLine(); line != "event: endpoint\n" {
		t.Fatalf("first line = %q, want endpoint event", line)
	}
	dataLine := readLine()
	if !strings.HasPrefix(dataLine, "data: /messages?session_id=") {
		t.Fatalf("data line = %q", dataLine)
	}
	sessionID := strings.TrimSpace(strings.TrimPrefix(dataLine, "data: /messages?session_id="))
	if !sessionIDPattern.MatchString(sessionID) {
		t.Errorf("session id %q does not match pattern", sessionID)
	}
	if line := readLine(); line != "\n" {
		t.Errorf("terminator = %q", line)
	}
}

// TestRPCRoundTripOverStream posts a request and reads the response frame
// from the same session's stream.
func TestRPCRoundTripOverStream(t *testing.T) {
	srv := NewServer(0, "", "")
	srv.SetMessageHandler(func(body []byte, sessionID string) []byte {
		return []byte(`{"jsonrpc":"2.0","id":1,"result":{"pong":true}}`)
	})
	r := newTestRouter(srv)
	testServer := httptest.NewServer(r)
	t.Cleanup(testServer.Close)

	resp, err := http.Get(testServer.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	reader := bufio.NewReader(resp.Body)
	// Consume the handshake: event, data, blank.
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
		t.Fatal("no endpoint payload in handshake")
	}

	post, err := http.Post(testServer.URL+endpoint, "application/json",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	post.Body.Close()
	if post.StatusCode != http.StatusAccepted {
		t.Fatalf("POST status = %d, want 202", post.StatusCode)
	}

	frameCh := make(chan string, 1)
	go func() {
		var frame strings.Builder
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			frame.WriteString(line)
			if line == "\n" {
				frameCh <- frame.String()
				return
			}
		}
	}()

	select {
	case frame := <-frameCh:
		if !strings.HasPrefix(frame, "event: message\n") {
			t.Fatalf("frame = %q", frame)
		}
		dataLine := ""
		for _, line := range strings.Split(frame, "\n") {
			if strings.HasPrefix(line, "data: ") {
				dataLine = strings.TrimPrefix(line, "data: ")
			}
		}
		var rpc struct {
			JSONRPC string          `json:"jsonrpc"`
			ID      int             `json:"id"`
			Result  json.RawMessage `json:"result"`
		}
		if err := json.Unmarshal([]byte(dataLine), &rpc); err != nil {
			t.Fatalf("data payload: %v", err)
		}
		if rpc.JSONRPC != "2.0" || rpc.ID != 1 || rpc.Result == nil {
			t.Errorf("rpc = %+v", rpc)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no message frame arrived on the stream")
	}
}
