// Package sseserver is the agent-facing transport: a long-lived
// server-sent-event stream per client plus a companion message-post
// endpoint. Responses to posted RPC messages are delivered over the
// caller's event stream, not the POST response.
package sseserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tinytelemetry/magpie/internal/diag"
)

const (
	// keepAliveInterval is how often an idle stream receives a comment
	// frame so intermediaries keep the connection open.
	keepAliveInterval = 15 * time.Second

	// clientBuffer bounds each client's outbound frame mailbox. A client
	// that cannot drain it loses frames rather than slowing the server.
	clientBuffer = 16
)

// MessageHandler consumes one posted RPC body for a session and returns
// the response to stream back, or nil for notifications.
type MessageHandler func(body []byte, sessionID string) []byte

type sseClient struct {
	sessionID string
	frames    chan []byte
}

// Server carries the event-stream channel per client and the message-post
// endpoint backing the RPC dispatcher.
type Server struct {
	addr     string
	certFile string
	keyFile  string

	handler MessageHandler

	mu      sync.Mutex
	clients map[string]*sseClient

	sessionCounter atomic.Uint64

	httpServer *http.Server
	listener   net.Listener
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewServer creates a transport server for the given port. Supplying both
// certFile and keyFile enables TLS on the same endpoints.
func NewServer(port int, certFile, keyFile string) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:     fmt.Sprintf("0.0.0.0:%d", port),
		certFile: certFile,
		keyFile:  keyFile,
		clients:  make(map[string]*sseClient),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// SetMessageHandler wires the RPC dispatcher. Must be called before Start.
func (s *Server) SetMessageHandler(h MessageHandler) {
	s.handler = h
}

// Start begins serving. The event stream is exposed at both "/" and
// "/sse" so clients of either profile can connect.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/", s.handleEventStream)
	r.GET("/sse", s.handleEventStream)
	r.POST("/messages", s.handleMessage)
	r.OPTIONS("/messages", s.handleMessagesPreflight)
	r.GET("/health", s.handleHealth)

	s.httpServer = &http.Server{
		Handler:           r,
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener

	scheme := "HTTP"
	if s.tlsEnabled() {
		scheme = "HTTPS"
	}
	diag.Logf(scheme, "Server starting on %s", listener.Addr())

	go func() {
		var err error
		if s.tlsEnabled() {
			err = s.httpServer.ServeTLS(listener, s.certFile, s.keyFile)
		} else {
			err = s.httpServer.Serve(listener)
		}
		if err != nil && err != http.ErrServerClosed {
			diag.Errorf(scheme, "server error: %v", err)
		}
	}()
	return nil
}

// Stop closes all event streams and shuts the listener down.
func (s *Server) Stop() error {
	s.cancel()
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the active listen address. Before Start, it returns the
// configured address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

func (s *Server) tlsEnabled() bool {
	return s.certFile != "" && s.keyFile != ""
}

// generateSessionID produces "session_<counter>_<8 hex chars>". The counter
// is strictly monotone per server instance.
func (s *Server) generateSessionID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("session_%d_%s", s.sessionCounter.Add(1), suffix)
}

func (s *Server) register(c *sseClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.sessionID] = c
}

func (s *Server) unregister(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, sessionID)
}

// formatEvent frames one event: name line, single-line data payload, blank
// terminator.
func formatEvent(name string, payload []byte) []byte {
	frame := make([]byte, 0, len(name)+len(payload)+16)
	frame = append(frame, "event: "...)
	frame = append(frame, name...)
	frame = append(frame, "\ndata: "...)
	frame = append(frame, payload...)
	frame = append(frame, "\n\n"...)
	return frame
}

// keepAliveFrame is a comment in SSE framing; clients ignore it.
var keepAliveFrame = []byte(": ping\n\n")

// handleEventStream opens the per-client stream: register, send the
// endpoint handshake event, then alternate between forwarding queued
// frames and keep-alive pings until the client disconnects or the server
// stops. The handler goroutine is the stream's single writer.
func (s *Server) handleEventStream(c *gin.Context) {
	sessionID := s.generateSessionID()
	diag.Logf("HTTP", "SSE client connected: %s (%s)", sessionID, c.ClientIP())

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Access-Control-Allow-Origin", "*")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.String(http.StatusInternalServerError, "streaming unsupported")
		return
	}

	client := &sseClient{
		sessionID: sessionID,
		frames:    make(chan []byte, clientBuffer),
	}
	s.register(client)
	defer func() {
		s.unregister(sessionID)
		diag.Logf("HTTP", "SSE client disconnected: %s", sessionID)
	}()

	// The endpoint event is the first frame on every stream; its payload
	// is the raw messages URL, not JSON.
	endpoint := fmt.Sprintf("/messages?session_id=%s", sessionID)
	if _, err := c.Writer.Write(formatEvent("endpoint", []byte(endpoint))); err != nil {
		diag.Errorf("HTTP", "Failed to send initial endpoint event: %s", sessionID)
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	clientGone := c.Request.Context().Done()
	for {
		select {
		case frame := <-client.frames:
			if _, err := c.Writer.Write(frame); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := c.Writer.Write(keepAliveFrame); err != nil {
				return
			}
			flusher.Flush()
		case <-clientGone:
			return
		case <-s.ctx.Done():
			return
		}
	}
}

// deliver queues a frame for every client registered under sessionID.
// A full mailbox drops the frame rather than blocking the POST worker.
func (s *Server) deliver(sessionID string, frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, client := range s.clients {
		if client.sessionID != sessionID {
			continue
		}
		select {
		case client.frames <- frame:
		default:
			diag.Errorf("HTTP", "dropping frame for slow client: %s", sessionID)
		}
	}
}

// Broadcast frames an event to every connected client, regardless of
// session. Used for server-initiated announcements.
func (s *Server) Broadcast(eventName string, payload []byte) {
	frame := formatEvent(eventName, payload)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, client := range s.clients {
		select {
		case client.frames <- frame:
		default:
		}
	}
}

func (s *Server) handleMessage(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "POST, OPTIONS")
	c.Header("Access-Control-Allow-Headers", "Content-Type")

	sessionID := c.Query("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing session_id"})
		return
	}

	body, err := c.GetRawData()
	if err != nil || len(body) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty request body"})
		return
	}
	if !json.Valid(body) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed JSON body"})
		return
	}

	if s.handler != nil {
		if response := s.handler(body, sessionID); len(response) > 0 {
			s.deliver(sessionID, formatEvent("message", response))
		}
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func (s *Server) handleMessagesPreflight(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "POST, OPTIONS")
	c.Header("Access-Control-Allow-Headers", "Content-Type")
	c.Status(http.StatusNoContent)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
