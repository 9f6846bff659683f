package dashboard

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/fieldagentpro/fieldsync/internal/reconcile"
	"github.com/fieldagentpro/fieldsync/internal/store"
)

// ShipmentUpdateData is the payload of a shipment_update message.
type ShipmentUpdateData struct {
	OrderID int64  `json:"order_id"`
	Action  string `json:"action"`
	Removed bool   `json:"removed"`
	Synced  bool   `json:"synced"`
}

// OutboxFlushData is the payload of an outbox_flush message.
type OutboxFlushData struct {
	Flushed int `json:"flushed"`
}

// ActiveDigestData is the payload of an active_digest message.
type ActiveDigestData struct {
	Lines []string `json:"lines"`
}

// Handler turns engine events into dashboard messages.
// It implements reconcile.Observer.
type Handler struct {
	server *Server
	reader Reader
	logger *log.Logger

	mu    sync.Mutex
	stats *store.Stats
}

var _ reconcile.Observer = (*Handler)(nil)

// NewHandler creates a handler connected to a dashboard server. When reader
// is non-nil, stats are refreshed from it after every mutating event.
func NewHandler(server *Server, reader Reader, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		server: server,
		reader: reader,
		logger: logger,
	}
}

// SetReader attaches the reader used for stats refreshes. Call it before the
// handler receives events.
func (h *Handler) SetReader(r Reader) {
	h.reader = r
}

// OnSync handles sync completion, including offline runs.
func (h *Handler) OnSync(res reconcile.SyncResult) {
	h.logger.Printf("Sync complete: run=%s fetched=%d written=%d offline=%v", res.RunID, res.Fetched, res.Written, res.Offline)
	h.server.BroadcastData(MessageTypeSyncComplete, res)
	if !res.Offline {
		h.refreshStats()
	}
}

// OnDelete handles a local delete.
func (h *Handler) OnDelete(res reconcile.DeleteResult) {
	h.logger.Printf("Shipment deleted: %d (synced: %v)", res.OrderID, res.Synced)
	h.server.BroadcastData(MessageTypeShipmentUpdate, ShipmentUpdateData{
		OrderID: res.OrderID,
		Action:  "deleted",
		Removed: res.Removed,
		Synced:  res.Synced,
	})
	h.refreshStats()
}

// OnFlush handles a pass over the outbox.
func (h *Handler) OnFlush(flushed int) {
	if flushed == 0 {
		return
	}
	h.server.BroadcastData(MessageTypeOutboxFlush, OutboxFlushData{Flushed: flushed})
	h.refreshStats()
}

// OnReset handles a reset to the seed dataset.
func (h *Handler) OnReset(res reconcile.ResetResult) {
	h.logger.Printf("Reset to seed %s: %d shipments", res.Version, res.Written)
	h.server.BroadcastData(MessageTypeReset, res)
	h.refreshStats()
}

// OnDigest broadcasts the active-task digest. It matches the daemon's
// OnDigest hook.
func (h *Handler) OnDigest(lines []string) {
	h.server.BroadcastData(MessageTypeActiveDigest, ActiveDigestData{Lines: lines})
}

func (h *Handler) refreshStats() {
	if h.reader == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st, err := h.reader.Status(ctx)
	if err != nil {
		h.logger.Printf("Failed to refresh stats: %v", err)
		return
	}
	h.UpdateStats(st)
}

// UpdateStats replaces the cached statistics and broadcasts them.
func (h *Handler) UpdateStats(st *store.Stats) {
	h.mu.Lock()
	h.stats = st
	h.mu.Unlock()
	h.server.BroadcastData(MessageTypeStats, st)
}

// GetStats returns the last statistics seen, or nil.
func (h *Handler) GetStats() *store.Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}
