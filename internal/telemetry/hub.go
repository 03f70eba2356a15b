// Package telemetry streams simulation events and batch progress to websocket clients.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"alertlab/internal/domain"
	"alertlab/internal/strategy"
)

// Message types.
const (
	TypeEvent    = "event"
	TypeProgress = "progress"
)

// Message is one JSON frame sent to clients.
type Message struct {
	Type     string    `json:"type"`
	RunID    string    `json:"run_id,omitempty"`
	CallID   string    `json:"call_id,omitempty"`
	Event    *Event    `json:"event,omitempty"`
	Progress *Progress `json:"progress,omitempty"`
}

// Event is the wire form of a simulation event.
type Event struct {
	Seq               int     `json:"seq"`
	Type              string  `json:"type"`
	TimestampMs       int64   `json:"timestamp_ms"`
	Price             float64 `json:"price"`
	EffectivePrice    float64 `json:"effective_price"`
	Size              float64 `json:"size"`
	Description       string  `json:"description,omitempty"`
	RemainingPosition float64 `json:"remaining_position"`
	PnlSoFar          float64 `json:"pnl_so_far"`
}

// Progress reports batch completion counts.
type Progress struct {
	Total     int `json:"total"`
	Evaluated int `json:"evaluated"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// HubConfig configures client handling.
type HubConfig struct {
	// SendBuffer is the number of frames queued per client before it is dropped.
	SendBuffer int
	// WriteTimeout is the deadline for writing one frame.
	WriteTimeout time.Duration
}

// DefaultHubConfig returns default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		SendBuffer:   256,
		WriteTimeout: 10 * time.Second,
	}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans messages out to connected websocket clients. Slow clients are dropped
// rather than blocking publishers.
type Hub struct {
	config   HubConfig
	logger   zerolog.Logger
	upgrader websocket.Upgrader
	runID    string

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub creates a hub. config may be nil.
func NewHub(logger zerolog.Logger, config *HubConfig) *Hub {
	cfg := DefaultHubConfig()
	if config != nil {
		cfg = *config
	}
	return &Hub{
		config: cfg,
		logger: logger.With().Str("component", "telemetry").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// SetRunID tags subsequent messages with a run id.
func (h *Hub) SetRunID(runID string) {
	h.mu.Lock()
	h.runID = runID
	h.mu.Unlock()
}

// ServeHTTP upgrades the request and serves the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		http.Error(w, "telemetry hub closed", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, h.config.SendBuffer)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug().Str("remote", r.RemoteAddr).Msg("client connected")

	go h.writeLoop(c)

	// Clients only listen; reading detects disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.remove(c)
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()

	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.remove(c)
			return
		}
	}

	c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// remove unregisters c and stops its writer. Safe to call more than once.
func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends msg to every client.
func (h *Hub) Broadcast(msg Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if msg.RunID == "" {
		msg.RunID = h.runID
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal telemetry message: %w", err)
	}

	for c := range h.clients {
		select {
		case c.send <- b:
		default:
			h.logger.Warn().Msg("dropping slow telemetry client")
			delete(h.clients, c)
			close(c.send)
		}
	}
	return nil
}

// Record streams an evaluation's events. It implements strategy.Recorder.
func (h *Hub) Record(ctx context.Context, callID string, events iter.Seq[domain.SimulationEvent]) error {
	for ev := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := h.Broadcast(Message{Type: TypeEvent, CallID: callID, Event: toEvent(ev)}); err != nil {
			return err
		}
	}
	return nil
}

// PublishProgress sends a progress frame.
func (h *Hub) PublishProgress(p Progress) error {
	return h.Broadcast(Message{Type: TypeProgress, Progress: &p})
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func toEvent(ev domain.SimulationEvent) *Event {
	return &Event{
		Seq:               ev.Seq,
		Type:              string(ev.Type),
		TimestampMs:       ev.TimestampMs,
		Price:             ev.Price,
		EffectivePrice:    ev.EffectivePrice,
		Size:              ev.Size,
		Description:       ev.Description,
		RemainingPosition: ev.RemainingPosition,
		PnlSoFar:          ev.PnlSoFar,
	}
}

var _ strategy.Recorder = (*Hub)(nil)
