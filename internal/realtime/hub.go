// Package realtime streams audit and proposal events to connected agents
// over WebSocket.
//
// Every client is bound to one agent when it connects and only ever receives
// that agent's events. Clients may narrow the stream further by event type.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agentos/agentos/internal/metrics"
)

// EventType for streamed events
type EventType string

const (
	EventAudit    EventType = "audit"
	EventProposal EventType = "proposal"
)

// Event is one streamed message.
type Event struct {
	Type      EventType   `json:"type"`
	AgentID   string      `json:"agentId"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Subscription narrows what a client receives. Empty means every event type.
type Subscription struct {
	EventTypes []EventType `json:"eventTypes"`
}

func (s Subscription) wants(t EventType) bool {
	if len(s.EventTypes) == 0 {
		return true
	}
	for _, want := range s.EventTypes {
		if want == t {
			return true
		}
	}
	return false
}

const (
	// MaxClients caps concurrent streams across all agents.
	MaxClients = 10000

	queueSize      = 256
	clientSendSize = 256
)

// Stats is a snapshot of hub activity.
type Stats struct {
	ConnectedClients int   `json:"connectedClients"`
	TotalClients     int64 `json:"totalClients"`
	TotalEvents      int64 `json:"totalEvents"`
	Dropped          int64 `json:"dropped"`
}

// Hub routes events to the streams of the agent they belong to.
type Hub struct {
	logger     *slog.Logger
	queue      chan *Event
	maxClients int

	mu      sync.RWMutex
	byAgent map[string]map[*Client]struct{}
	count   int
	closed  bool

	totalClients atomic.Int64
	totalEvents  atomic.Int64
	dropped      atomic.Int64
}

// NewHub creates a hub. Run must be started before events are delivered.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:     logger,
		queue:      make(chan *Event, queueSize),
		maxClients: MaxClients,
		byAgent:    make(map[string]map[*Client]struct{}),
	}
}

// Run delivers queued events until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("realtime hub started")
	defer h.logger.Info("realtime hub stopped")

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case e := <-h.queue:
			h.deliver(e)
		}
	}
}

// Broadcast queues an event for delivery. It never blocks; events are
// dropped when the queue is full.
func (h *Hub) Broadcast(e *Event) {
	select {
	case h.queue <- e:
	default:
		h.dropped.Add(1)
		metrics.StreamEventsDropped.Inc()
		h.logger.Warn("stream queue full, dropping event", "type", e.Type, "agent_id", e.AgentID)
	}
}

// Stats returns a snapshot of hub counters.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	n := h.count
	h.mu.RUnlock()
	return Stats{
		ConnectedClients: n,
		TotalClients:     h.totalClients.Load(),
		TotalEvents:      h.totalEvents.Load(),
		Dropped:          h.dropped.Load(),
	}
}

// HandleWebSocket upgrades an authenticated request to a stream of agentID's events.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request, agentID string) {
	h.mu.RLock()
	closed, full := h.closed, h.count >= h.maxClients
	h.mu.RUnlock()
	if closed {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	if full {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := newClient(h, conn, agentID)
	if !h.add(c) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "unavailable"))
		_ = conn.Close()
		return
	}
	go c.writeLoop()
	go c.readLoop()
}

func (h *Hub) add(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || h.count >= h.maxClients {
		return false
	}
	set := h.byAgent[c.agentID]
	if set == nil {
		set = make(map[*Client]struct{})
		h.byAgent[c.agentID] = set
	}
	set[c] = struct{}{}
	h.count++
	h.totalClients.Add(1)
	metrics.ActiveStreamClients.Set(float64(h.count))
	h.logger.Debug("stream client connected", "agent_id", c.agentID, "total", h.count)
	return true
}

// remove detaches c and closes its send channel. It is safe to call more than once.
func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *Client) {
	set, ok := h.byAgent[c.agentID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.byAgent, c.agentID)
	}
	close(c.send)
	h.count--
	metrics.ActiveStreamClients.Set(float64(h.count))
	h.logger.Debug("stream client disconnected", "agent_id", c.agentID, "total", h.count)
}

func (h *Hub) deliver(e *Event) {
	if e == nil || e.AgentID == "" {
		return
	}
	h.totalEvents.Add(1)
	payload, err := json.Marshal(e)
	if err != nil {
		h.logger.Warn("stream event not serializable", "type", e.Type, "error", err)
		return
	}

	var slow []*Client
	h.mu.RLock()
	for c := range h.byAgent[e.AgentID] {
		if !c.subscription().wants(e.Type) {
			continue
		}
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	if len(slow) == 0 {
		return
	}
	// A client that cannot keep up is disconnected rather than allowed to stall others.
	metrics.StreamEventsDropped.Add(float64(len(slow)))
	h.dropped.Add(int64(len(slow)))
	h.mu.Lock()
	for _, c := range slow {
		h.removeLocked(c)
	}
	h.mu.Unlock()
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, set := range h.byAgent {
		for c := range set {
			h.removeLocked(c)
		}
	}
}
