package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fieldagentpro/fieldsync/internal/reconcile"
	"github.com/fieldagentpro/fieldsync/internal/shipment"
	"github.com/fieldagentpro/fieldsync/internal/store"
)

// staticRemote accepts every delete and returns a fixed collection.
type staticRemote struct{}

func (staticRemote) FetchAll(ctx context.Context) ([]shipment.Shipment, error) { return nil, nil }
func (staticRemote) DeleteOne(ctx context.Context, orderID int64) error     { return nil }
func (staticRemote) ResetSeed(ctx context.Context) (int, error)             { return 7, nil }

func testLogger(prefix string) *log.Logger {
	if testing.Verbose() {
		return log.New(os.Stderr, prefix, log.LstdFlags)
	}
	return log.New(io.Discard, "", 0)
}

// seededEngine returns an engine over a temp store holding the seed dataset.
func seededEngine(t *testing.T, reg prometheus.Registerer, opts ...reconcile.Option) *reconcile.Engine {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "fieldsync.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}

	seed, err := shipment.DefaultSeed()
	if err != nil {
		t.Fatalf("DefaultSeed() failed: %v", err)
	}
	rows, err := seed.Rows(time.Now())
	if err != nil {
		t.Fatalf("Rows() failed: %v", err)
	}
	if _, err := db.ResetToSeed(context.Background(), rows, seed.Version); err != nil {
		t.Fatalf("ResetToSeed() failed: %v", err)
	}

	opts = append([]reconcile.Option{
		reconcile.WithLogger(testLogger("[engine] ")),
		reconcile.WithRegisterer(reg),
	}, opts...)
	return reconcile.New(db, staticRemote{}, opts...)
}

func startServer(t *testing.T, config *Config) *Server {
	t.Helper()
	if config.Logger == nil {
		config.Logger = testLogger("[test] ")
	}
	server := NewServer(config)
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { server.Stop() })
	return server
}

// dial connects a client and consumes the welcome message.
func dial(t *testing.T, ctx context.Context, server *Server) (*websocket.Conn, Message) {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn, readMessage(t, ctx, conn)
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	return msg
}

func getJSON(t *testing.T, url string, want int, v any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		t.Fatalf("GET %s: expected status %d, got %d", url, want, resp.StatusCode)
	}
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("Failed to decode %s: %v", url, err)
		}
	}
}

func TestServerStartStop(t *testing.T) {
	server := NewServer(&Config{Port: 0, Logger: testLogger("[test] ")})

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}

	addr := server.GetAddr()
	if addr == "" || strings.HasSuffix(addr, ":0") {
		t.Fatalf("Expected a bound address, got %q", addr)
	}

	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
}

func TestWebSocketConnection(t *testing.T) {
	server := startServer(t, &Config{Port: 0})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, welcome := dial(t, ctx, server)
	if welcome.Type != MessageTypeStats {
		t.Errorf("Expected welcome message type %s, got %s", MessageTypeStats, welcome.Type)
	}
	if welcome.ID == "" {
		t.Error("Expected welcome message to carry an ID")
	}
	if len(welcome.Data) != 0 {
		t.Errorf("Expected empty stats without a reader, got %s", welcome.Data)
	}

	if count := server.ClientCount(); count != 1 {
		t.Errorf("Expected 1 client, got %d", count)
	}
}

func TestWelcomeCarriesStats(t *testing.T) {
	engine := seededEngine(t, prometheus.NewRegistry())
	server := startServer(t, &Config{Port: 0, Reader: engine})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, welcome := dial(t, ctx, server)

	var stats store.Stats
	if err := json.Unmarshal(welcome.Data, &stats); err != nil {
		t.Fatalf("Failed to unmarshal stats: %v", err)
	}
	if stats.Shipments != 7 {
		t.Errorf("Expected 7 shipments, got %d", stats.Shipments)
	}
	if stats.SeedVersion == "" {
		t.Error("Expected seed version in stats")
	}
}

func TestMultipleClients(t *testing.T) {
	server := startServer(t, &Config{Port: 0})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	numClients := 3
	clients := make([]*websocket.Conn, numClients)
	for i := 0; i < numClients; i++ {
		clients[i], _ = dial(t, ctx, server)
	}

	if count := server.ClientCount(); count != numClients {
		t.Errorf("Expected %d clients, got %d", numClients, count)
	}

	server.BroadcastData(MessageTypeOutboxFlush, OutboxFlushData{Flushed: 2})

	for i, conn := range clients {
		msg := readMessage(t, ctx, conn)
		if msg.Type != MessageTypeOutboxFlush {
			t.Errorf("client %d: expected %s, got %s", i, MessageTypeOutboxFlush, msg.Type)
		}
	}
}

func TestMessageBroadcast(t *testing.T) {
	server := startServer(t, &Config{Port: 0})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _ := dial(t, ctx, server)

	testData := ShipmentUpdateData{OrderID: 2049, Action: "deleted", Removed: true}
	dataJSON, _ := json.Marshal(testData)
	server.Broadcast(Message{Type: MessageTypeShipmentUpdate, Data: dataJSON})

	received := readMessage(t, ctx, conn)
	if received.Type != MessageTypeShipmentUpdate {
		t.Errorf("Expected message type %s, got %s", MessageTypeShipmentUpdate, received.Type)
	}
	if received.Timestamp.IsZero() || received.ID == "" {
		t.Errorf("Expected timestamp and ID to be filled in, got %+v", received)
	}

	var receivedData ShipmentUpdateData
	if err := json.Unmarshal(received.Data, &receivedData); err != nil {
		t.Fatalf("Failed to unmarshal shipment data: %v", err)
	}
	if receivedData != testData {
		t.Errorf("Expected %+v, got %+v", testData, receivedData)
	}
}

func TestHandlerEngineEvents(t *testing.T) {
	server := startServer(t, &Config{Port: 0})

	handler := NewHandler(server, nil, testLogger("[test-handler] "))
	engine := seededEngine(t, prometheus.NewRegistry(), reconcile.WithObserver(handler))
	handler.SetReader(engine)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _ := dial(t, ctx, server)

	res, err := engine.DeleteShipment(ctx, 2049)
	if err != nil {
		t.Fatalf("DeleteShipment() failed: %v", err)
	}
	if !res.Synced {
		t.Fatalf("Expected delete to sync, got %+v", res)
	}

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeShipmentUpdate {
		t.Fatalf("Expected %s, got %s", MessageTypeShipmentUpdate, msg.Type)
	}
	var update ShipmentUpdateData
	if err := json.Unmarshal(msg.Data, &update); err != nil {
		t.Fatalf("Failed to unmarshal update: %v", err)
	}
	if update.OrderID != 2049 || update.Action != "deleted" || !update.Synced {
		t.Errorf("Unexpected update: %+v", update)
	}

	msg = readMessage(t, ctx, conn)
	if msg.Type != MessageTypeStats {
		t.Fatalf("Expected %s, got %s", MessageTypeStats, msg.Type)
	}
	if st := handler.GetStats(); st == nil || st.Shipments != 6 {
		t.Errorf("Expected 6 shipments in cached stats, got %+v", st)
	}

	if _, err := engine.ResetToSeed(ctx); err != nil {
		t.Fatalf("ResetToSeed() failed: %v", err)
	}
	msg = readMessage(t, ctx, conn)
	if msg.Type != MessageTypeReset {
		t.Fatalf("Expected %s, got %s", MessageTypeReset, msg.Type)
	}
	var reset reconcile.ResetResult
	if err := json.Unmarshal(msg.Data, &reset); err != nil {
		t.Fatalf("Failed to unmarshal reset: %v", err)
	}
	if !reset.RemoteReset || reset.Written != 7 {
		t.Errorf("Unexpected reset payload: %+v", reset)
	}
}

func TestHandlerSyncAndDigest(t *testing.T) {
	server := startServer(t, &Config{Port: 0})
	handler := NewHandler(server, nil, testLogger("[test-handler] "))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _ := dial(t, ctx, server)

	// Offline runs are reported without a stats refresh.
	handler.OnSync(reconcile.SyncResult{RunID: "run-1", Offline: true})
	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeSyncComplete {
		t.Fatalf("Expected %s, got %s", MessageTypeSyncComplete, msg.Type)
	}
	var res reconcile.SyncResult
	if err := json.Unmarshal(msg.Data, &res); err != nil {
		t.Fatalf("Failed to unmarshal sync result: %v", err)
	}
	if res.RunID != "run-1" || !res.Offline {
		t.Errorf("Unexpected sync payload: %+v", res)
	}

	// Empty flush passes are not broadcast.
	handler.OnFlush(0)
	handler.OnDigest([]string{"Task #2049 - Acme"})

	msg = readMessage(t, ctx, conn)
	if msg.Type != MessageTypeActiveDigest {
		t.Fatalf("Expected %s, got %s", MessageTypeActiveDigest, msg.Type)
	}
	var digest ActiveDigestData
	if err := json.Unmarshal(msg.Data, &digest); err != nil {
		t.Fatalf("Failed to unmarshal digest: %v", err)
	}
	if len(digest.Lines) != 1 || digest.Lines[0] != "Task #2049 - Acme" {
		t.Errorf("Unexpected digest: %+v", digest.Lines)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := startServer(t, &Config{Port: 0})

	var health map[string]any
	getJSON(t, "http://"+server.GetAddr()+"/health", http.StatusOK, &health)

	if status, ok := health["status"].(string); !ok || status != "ok" {
		t.Errorf("Expected status 'ok', got %v", health["status"])
	}
}

func TestShipmentsEndpoint(t *testing.T) {
	engine := seededEngine(t, prometheus.NewRegistry())
	server := startServer(t, &Config{Port: 0, Reader: engine})
	base := "http://" + server.GetAddr()

	tests := []struct {
		name   string
		query  string
		status int
		count  int
	}{
		{name: "all", query: "", status: http.StatusOK, count: 7},
		{name: "one day", query: "?day=2026-01-20", status: http.StatusOK, count: 3},
		{name: "empty day", query: "?day=2030-01-01", status: http.StatusOK, count: 0},
		{name: "invalid day", query: "?day=tomorrow", status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.status != http.StatusOK {
				getJSON(t, base+"/shipments"+tt.query, tt.status, nil)
				return
			}
			var rows []shipment.Shipment
			getJSON(t, base+"/shipments"+tt.query, tt.status, &rows)
			if len(rows) != tt.count {
				t.Errorf("Expected %d shipments, got %d", tt.count, len(rows))
			}
		})
	}
}

func TestOutboxEndpoint(t *testing.T) {
	server := startServer(t, &Config{Port: 0})
	getJSON(t, "http://"+server.GetAddr()+"/outbox", http.StatusServiceUnavailable, nil)

	engine := seededEngine(t, prometheus.NewRegistry())
	server = startServer(t, &Config{Port: 0, Reader: engine})

	var entries []store.OutboxEntry
	getJSON(t, "http://"+server.GetAddr()+"/outbox", http.StatusOK, &entries)
	if len(entries) != 0 {
		t.Errorf("Expected empty outbox, got %d entries", len(entries))
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	engine := seededEngine(t, reg)
	server := startServer(t, &Config{Port: 0, Reader: engine, Gatherer: reg})

	if _, err := engine.SyncFromRemote(context.Background()); err != nil {
		t.Fatalf("SyncFromRemote() failed: %v", err)
	}

	resp, err := http.Get("http://" + server.GetAddr() + "/metrics")
	if err != nil {
		t.Fatalf("Failed to get metrics: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read metrics: %v", err)
	}
	if !strings.Contains(string(body), "fieldsync_sync_runs_total") {
		t.Errorf("Expected sync run counter in metrics output:\n%s", body)
	}
}
