// Package udpserver receives single-datagram JSON log records and feeds
// them to the store. Datagrams are best-effort: malformed payloads are
// diagnosed and dropped, and receive errors never terminate the worker.
package udpserver

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/tinytelemetry/magpie/internal/diag"
	"github.com/tinytelemetry/magpie/internal/model"
)

// MaxDatagramSize is the largest accepted payload in bytes.
const MaxDatagramSize = 65536

// Inserter is the narrow store contract the receiver needs.
type Inserter interface {
	Insert(model.LogRecord) (int64, error)
}

// Server is a background worker bound to a UDP socket.
type Server struct {
	store  Inserter
	addr   string
	conn   *net.UDPConn
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates a receiver for the given port, inserting into store.
func NewServer(store Inserter, port int) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		store:  store,
		addr:   fmt.Sprintf("0.0.0.0:%d", port),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start binds the socket and begins receiving.
func (s *Server) Start() error {
	udpAddr, err := net.ResolveUDPAddr("udp4", s.addr)
	if err != nil {
		return fmt.Errorf("udpserver: resolve %s: %w", s.addr, err)
	}
	conn, err := net.ListenUDP("udp4", udpAddr)
	if err != nil {
		return fmt.Errorf("udpserver: listen %s: %w", s.addr, err)
	}
	s.conn = conn

	diag.Logf("UDP", "Listening on %s", conn.LocalAddr())

	s.wg.Add(1)
	go s.receiveLoop()
	return nil
}

// Stop ceases receiving, drains the in-flight datagram, and returns.
func (s *Server) Stop() {
	s.cancel()
	if s.conn != nil {
		s.conn.Close()
	}
	s.wg.Wait()
}

// Addr returns the bound address. Before Start it returns the configured
// address.
func (s *Server) Addr() string {
	if s.conn != nil {
		return s.conn.LocalAddr().String()
	}
	return s.addr
}

func (s *Server) receiveLoop() {
	defer s.wg.Done()

	buf := make([]byte, MaxDatagramSize)
	for {
		n, _, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			diag.Errorf("UDP", "receive error: %v", err)
			continue
		}
		if n == 0 {
			diag.Error("UDP", "dropped empty datagram")
			continue
		}
		s.handleDatagram(buf[:n])
	}
}

func (s *Server) handleDatagram(data []byte) {
	rec, err := model.ParseIngest(data)
	if err != nil {
		diag.Errorf("UDP", "Failed to parse log: %v", err)
		return
	}
	rec.ReceivedAt = float64(time.Now().UnixNano()) / 1e9

	if _, err := s.store.Insert(rec); err != nil {
		diag.Errorf("UDP", "insert failed: %v", err)
	}
}
