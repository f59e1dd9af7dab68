package websocket

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

type frame struct {
	binary bool
	data   []byte
}

// Connection is one websocket member of an alert room.
type Connection struct {
	ID      string
	AlertID string
	Role    Role
	// Actor names the member in audit trails, e.g. the guardian's login.
	Actor    string
	Conn     *websocket.Conn
	Send     chan frame
	Hub      *Hub
	LastPing time.Time
	alive    atomic.Bool
	mu       sync.RWMutex
}

// NewConnection prepares a member; the hub takes ownership once it is registered.
func NewConnection(hub *Hub, id, alertID string, role Role, actor string, conn *websocket.Conn) *Connection {
	c := &Connection{
		ID:       id,
		AlertID:  alertID,
		Role:     role,
		Actor:    actor,
		Conn:     conn,
		Send:     make(chan frame, hub.config.MessageBufferSize),
		Hub:      hub,
		LastPing: time.Now(),
	}
	c.alive.Store(true)
	return c
}

func (c *Connection) IsAlive() bool { return c.alive.Load() }

func (c *Connection) close() {
	c.alive.Store(false)
	if c.Conn != nil {
		_ = c.Conn.Close()
	}
}

// room groups every connection of one alert.
type room struct {
	id      string
	members map[string]*Connection
	// head is the publisher's first media frame, replayed to late viewers
	// so they can initialise their decoder.
	head     []byte
	headOnce sync.Once
}

func (r *room) count(role Role) int {
	n := 0
	for _, m := range r.members {
		if m.Role == role {
			n++
		}
	}
	return n
}

// RoomStats is a snapshot of one room.
type RoomStats struct {
	AlertID    string `json:"alert_id"`
	Publishers int    `json:"publishers"`
	Viewers    int    `json:"viewers"`
	Guardians  int    `json:"guardians"`
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithViewerObserver is told the viewer count of a room whenever it changes.
func WithViewerObserver(fn func(alertID string, viewers int)) HubOption {
	return func(h *Hub) { h.onViewers = fn }
}

// Hub relays media and signalling between the members of alert rooms.
type Hub struct {
	connections     map[string]*Connection
	rooms           map[string]*room
	register        chan *Connection
	unregister      chan *Connection
	connectionCount int64
	config          *Config
	onViewers       func(alertID string, viewers int)
	mu              sync.RWMutex
	ctx             context.Context
	cancel          context.CancelFunc
}

// NewHub starts the hub loop. A nil config uses DefaultConfig.
func NewHub(config *Config, opts ...HubOption) *Hub {
	if config == nil {
		config = DefaultConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())
	hub := &Hub{
		connections: make(map[string]*Connection),
		rooms:       make(map[string]*room),
		register:    make(chan *Connection, 64),
		unregister:  make(chan *Connection, 64),
		config:      config,
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(hub)
	}
	go hub.run()
	return hub
}

func (h *Hub) run() {
	ticker := time.NewTicker(h.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case conn := <-h.register:
			h.registerConnection(conn)
		case conn := <-h.unregister:
			h.unregisterConnection(conn)
		case <-ticker.C:
			h.checkHeartbeats()
		}
	}
}

func (h *Hub) registerConnection(conn *Connection) {
	h.mu.Lock()
	if atomic.LoadInt64(&h.connectionCount) >= h.config.MaxConnections {
		h.mu.Unlock()
		conn.close()
		close(conn.Send)
		logrus.Warnf("relay connection limit reached: %d", h.config.MaxConnections)
		return
	}

	h.connections[conn.ID] = conn
	atomic.AddInt64(&h.connectionCount, 1)
	r := h.rooms[conn.AlertID]
	if r == nil {
		r = &room{id: conn.AlertID, members: make(map[string]*Connection)}
		h.rooms[conn.AlertID] = r
	}
	r.members[conn.ID] = conn
	if conn.Role == RoleViewer && r.head != nil {
		h.trySend(conn, frame{binary: true, data: r.head})
	}
	viewers := h.announceViewersLocked(r)
	h.mu.Unlock()

	h.observeViewers(conn.AlertID, viewers)
	logrus.Infof("relay connection registered: %s room=%s role=%s total=%d",
		conn.ID, conn.AlertID, conn.Role, atomic.LoadInt64(&h.connectionCount))
}

func (h *Hub) unregisterConnection(conn *Connection) {
	h.mu.Lock()
	if _, exists := h.connections[conn.ID]; !exists {
		h.mu.Unlock()
		return
	}
	delete(h.connections, conn.ID)
	atomic.AddInt64(&h.connectionCount, -1)

	viewers := -1
	if r := h.rooms[conn.AlertID]; r != nil {
		delete(r.members, conn.ID)
		if len(r.members) == 0 {
			delete(h.rooms, conn.AlertID)
			viewers = 0
		} else if conn.Role == RoleViewer {
			viewers = h.announceViewersLocked(r)
		}
	}
	conn.alive.Store(false)
	close(conn.Send)
	h.mu.Unlock()

	if viewers >= 0 {
		h.observeViewers(conn.AlertID, viewers)
	}
	logrus.Infof("relay connection unregistered: %s total=%d", conn.ID, atomic.LoadInt64(&h.connectionCount))
}

// announceViewersLocked tells every member the current viewer count.
func (h *Hub) announceViewersLocked(r *room) int {
	n := r.count(RoleViewer)
	data, err := Encode(Signal{Kind: KindViewerCount, AlertID: r.id, Count: n})
	if err != nil {
		logrus.Errorf("encode viewer count: %v", err)
		return n
	}
	for _, m := range r.members {
		h.trySend(m, frame{data: data})
	}
	return n
}

func (h *Hub) observeViewers(alertID string, n int) {
	if h.onViewers != nil {
		h.onViewers(alertID, n)
	}
}

// relayBinary fans publisher media out to the room's viewers.
func (h *Hub) relayBinary(from *Connection, data []byte) {
	if from.Role != RolePublisher {
		logrus.Debugf("dropping binary frame from %s %s", from.Role, from.ID)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	r := h.rooms[from.AlertID]
	if r == nil {
		return
	}
	r.headOnce.Do(func() { r.head = data })
	for _, m := range r.members {
		if m.Role == RoleViewer && m.IsAlive() {
			h.trySend(m, frame{binary: true, data: data})
		}
	}
}

// relaySignal routes a decoded signal inside the sender's room.
func (h *Hub) relaySignal(from *Connection, sig Signal) {
	sig.From = from.ID
	switch sig.Kind {
	case KindViewerCount:
		// owned by the hub
		return
	case KindResolved:
		if from.Role == RoleViewer {
			logrus.Warnf("viewer %s tried to resolve alert %s", from.ID, from.AlertID)
			return
		}
		sig.AlertID = from.AlertID
		if sig.By == "" {
			sig.By = from.Actor
		}
	}

	data, err := Encode(sig)
	if err != nil {
		logrus.Warnf("relay encode %s: %v", sig.Kind, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	r := h.rooms[from.AlertID]
	if r == nil {
		return
	}
	if sig.To != "" {
		if m, ok := r.members[sig.To]; ok {
			h.trySend(m, frame{data: data})
		}
		return
	}
	for _, m := range r.members {
		if m.ID == from.ID || !m.IsAlive() || !routes(sig.Kind, from.Role, m.Role) {
			continue
		}
		h.trySend(m, frame{data: data})
	}
}

// routes decides whether a signal of kind from a sender role reaches a member role.
func routes(kind string, from, to Role) bool {
	switch kind {
	case KindOffer, KindAnswer, KindCandidate:
		if from == RolePublisher {
			return to == RoleViewer
		}
		return to == RolePublisher
	}
	return true
}

// Notify delivers sig to every member of a room and returns how many
// publishers were reached.
func (h *Hub) Notify(alertID string, sig Signal) (int, error) {
	if sig.AlertID == "" {
		sig.AlertID = alertID
	}
	data, err := Encode(sig)
	if err != nil {
		return 0, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	r := h.rooms[alertID]
	if r == nil {
		return 0, nil
	}
	publishers := 0
	for _, m := range r.members {
		if !m.IsAlive() {
			continue
		}
		if h.trySend(m, frame{data: data}) && m.Role == RolePublisher {
			publishers++
		}
	}
	return publishers, nil
}

func (h *Hub) checkHeartbeats() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	now := time.Now()
	for _, conn := range h.connections {
		conn.mu.RLock()
		last := conn.LastPing
		conn.mu.RUnlock()
		if now.Sub(last) > h.config.ConnectionTimeout {
			logrus.Warnf("relay connection %s missed heartbeat, closing", conn.ID)
			conn.close()
		}
	}
}

// GetConnectionCount returns the number of registered connections.
func (h *Hub) GetConnectionCount() int64 {
	return atomic.LoadInt64(&h.connectionCount)
}

// ViewerCount returns the viewers currently watching an alert.
func (h *Hub) ViewerCount(alertID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if r := h.rooms[alertID]; r != nil {
		return r.count(RoleViewer)
	}
	return 0
}

// Rooms lists every open room ordered by alert id.
func (h *Hub) Rooms() []RoomStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]RoomStats, 0, len(h.rooms))
	for id, r := range h.rooms {
		out = append(out, RoomStats{
			AlertID:    id,
			Publishers: r.count(RolePublisher),
			Viewers:    r.count(RoleViewer),
			Guardians:  r.count(RoleGuardian),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AlertID < out[j].AlertID })
	return out
}

// Close stops the hub loop and drops every connection.
func (h *Hub) Close() {
	h.cancel()

	h.mu.Lock()
	for _, conn := range h.connections {
		conn.close()
	}
	h.mu.Unlock()

	logrus.Info("relay hub closed")
}

// trySend queues f on conn honouring the backpressure policy.
// Callers hold h.mu, so Send cannot be closed underneath them.
func (h *Hub) trySend(conn *Connection, f frame) bool {
	if h.config.DropOnFull {
		select {
		case conn.Send <- f:
			return true
		default:
		}
	} else {
		timeout := h.config.SendTimeout
		if timeout <= 0 {
			timeout = 50 * time.Millisecond
		}
		select {
		case conn.Send <- f:
			return true
		case <-time.After(timeout):
		}
	}
	logrus.Debugf("relay connection %s queue full, frame dropped", conn.ID)
	if h.config.CloseOnBackpressure {
		conn.close()
	}
	return false
}
