// Package dashboard provides a live view of the shipment cache.
//
// The server broadcasts sync, delete, flush and reset events to connected
// WebSocket clients and serves read-only JSON endpoints plus Prometheus
// metrics for the same store.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fieldagentpro/fieldsync/internal/shipment"
	"github.com/fieldagentpro/fieldsync/internal/store"
)

// MessageType defines the type of dashboard message
type MessageType string

const (
	// MessageTypeShipmentUpdate indicates a shipment was deleted locally
	MessageTypeShipmentUpdate MessageType = "shipment_update"

	// MessageTypeSyncComplete indicates a sync run finished (online or offline)
	MessageTypeSyncComplete MessageType = "sync_complete"

	// MessageTypeOutboxFlush indicates a flush pass over pending deletes
	MessageTypeOutboxFlush MessageType = "outbox_flush"

	// MessageTypeReset indicates the store was reset to the seed dataset
	MessageTypeReset MessageType = "reset"

	// MessageTypeStats indicates updated store statistics
	MessageTypeStats MessageType = "stats"

	// MessageTypeActiveDigest carries the active-task digest
	MessageTypeActiveDigest MessageType = "active_digest"
)

// Message represents a dashboard broadcast message
type Message struct {
	ID        string          `json:"id"`
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Reader is the read API the dashboard serves. *reconcile.Engine implements it.
type Reader interface {
	ListActive(ctx context.Context) ([]shipment.Shipment, error)
	ListByDay(ctx context.Context, day string) ([]shipment.Shipment, error)
	PendingDeletes(ctx context.Context) ([]store.OutboxEntry, error)
	Status(ctx context.Context) (*store.Stats, error)
}

// Server manages WebSocket connections and broadcasts dashboard messages
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server

	reader   Reader
	gatherer prometheus.Gatherer

	// WebSocket client management
	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	// Message broadcasting
	broadcast chan Message

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// Config holds server configuration
type Config struct {
	// Port to listen on (0 picks a free port)
	Port int

	// Reader backs /shipments, /outbox and the stats sent on connect.
	// Without it those endpoints return 503.
	Reader Reader

	// Gatherer backs /metrics (default: prometheus.DefaultGatherer)
	Gatherer prometheus.Gatherer

	// Logger for server activity (default: stderr logger)
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Port:   8080,
		Logger: log.Default(),
	}
}

// NewServer creates a new dashboard server
func NewServer(config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}
	gatherer := config.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		addr:      fmt.Sprintf(":%d", config.Port),
		reader:    config.Reader,
		gatherer:  gatherer,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Message, 100),
		ctx:       ctx,
		cancel:    cancel,
		logger:    config.Logger,
	}
}

// SetReader attaches the read API. Call it before Start.
func (s *Server) SetReader(r Reader) {
	s.reader = r
}

// Start begins the HTTP server and WebSocket handler
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/shipments", s.handleShipments)
	mux.HandleFunc("/outbox", s.handleOutbox)
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/", s.handleRoot)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go s.broadcastLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Dashboard server listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("Server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop() error {
	s.logger.Println("Stopping dashboard server")

	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "Server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.wg.Wait()

	s.logger.Println("Dashboard server stopped")
	return nil
}

// Broadcast sends a message to all connected clients
func (s *Server) Broadcast(msg Message) {
	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
		return
	default:
		s.logger.Println("Warning: broadcast channel full, dropping message")
	}
}

// BroadcastData wraps data in a message of type typ and broadcasts it.
func (s *Server) BroadcastData(typ MessageType, data any) {
	msg, err := newMessage(typ, data)
	if err != nil {
		s.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return
	}
	s.Broadcast(msg)
}

func newMessage(typ MessageType, data any) (Message, error) {
	msg := Message{
		ID:        uuid.NewString(),
		Type:      typ,
		Timestamp: time.Now(),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Message{}, err
		}
		msg.Data = raw
	}
	return msg, nil
}

// broadcastLoop handles message broadcasting to all clients
func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case msg := <-s.broadcast:
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now()
			}
			if msg.ID == "" {
				msg.ID = uuid.NewString()
			}

			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Printf("Failed to marshal message: %v", err)
				continue
			}

			s.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				clients = append(clients, conn)
			}
			s.clientsMu.RUnlock()

			// Send outside the read lock so a slow client can't block registration.
			for _, conn := range clients {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()

				if err != nil {
					s.logger.Printf("Failed to send to client: %v", err)
					s.removeClient(conn)
				}
			}
		}
	}
}

// handleWebSocket upgrades HTTP connections to WebSocket
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"}, // Allow all origins for development
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	clientCount := len(s.clients)
	s.clientsMu.Unlock()

	s.logger.Printf("Client connected (total: %d)", clientCount)

	// Welcome message: current stats when a reader is configured.
	var stats *store.Stats
	if s.reader != nil {
		if st, err := s.reader.Status(r.Context()); err == nil {
			stats = st
		} else {
			s.logger.Printf("Failed to load stats: %v", err)
		}
	}
	var welcome Message
	if stats != nil {
		welcome, err = newMessage(MessageTypeStats, stats)
	} else {
		welcome, err = newMessage(MessageTypeStats, nil)
	}
	if err == nil {
		welcomeData, _ := json.Marshal(welcome)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = conn.Write(ctx, websocket.MessageText, welcomeData)
		cancel()
	}

	go s.readLoop(conn)
}

// readLoop keeps the WebSocket connection alive and handles client disconnects
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn)

	for {
		if _, _, err := conn.Read(s.ctx); err != nil {
			return
		}
		// Client messages are ignored.
	}
}

// removeClient safely removes a client connection
func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if _, exists := s.clients[conn]; exists {
		delete(s.clients, conn)
		clientCount := len(s.clients)
		s.clientsMu.Unlock()

		_ = conn.Close(websocket.StatusNormalClosure, "")
		s.logger.Printf("Client disconnected (total: %d)", clientCount)
	} else {
		s.clientsMu.Unlock()
	}
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}

// handleShipments serves the cached shipments, optionally for one day.
//
//	GET /shipments
//	GET /shipments?day=2026-01-20
func (s *Server) handleShipments(w http.ResponseWriter, r *http.Request) {
	if s.reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no store attached"})
		return
	}

	var (
		rows []shipment.Shipment
		err  error
	)
	if day := r.URL.Query().Get("day"); day != "" {
		rows, err = s.reader.ListByDay(r.Context(), day)
	} else {
		rows, err = s.reader.ListActive(r.Context())
	}

	switch {
	case errors.Is(err, store.ErrInvalidDay):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case err != nil:
		s.logger.Printf("Failed to list shipments: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list shipments"})
	default:
		writeJSON(w, http.StatusOK, rows)
	}
}

// handleOutbox serves the pending deletes.
func (s *Server) handleOutbox(w http.ResponseWriter, r *http.Request) {
	if s.reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no store attached"})
		return
	}
	entries, err := s.reader.PendingDeletes(r.Context())
	if err != nil {
		s.logger.Printf("Failed to list outbox: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list outbox"})
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleRoot returns basic server information
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>fieldsync dashboard</title>
</head>
<body>
    <h1>fieldsync dashboard</h1>
    <p>WebSocket endpoint: <code>ws://%s/ws</code></p>
    <p>Shipments: <a href="/shipments">/shipments</a> (add <code>?day=YYYY-MM-DD</code>)</p>
    <p>Pending deletes: <a href="/outbox">/outbox</a></p>
    <p>Metrics: <a href="/metrics">/metrics</a></p>
    <p>Health check: <a href="/health">/health</a></p>
</body>
</html>`, r.Host)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// GetAddr returns the server's listening address
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the current number of connected clients
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
