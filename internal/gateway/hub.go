package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Hub is the registry of connected display clients. A client is admitted to
// the primary set and the role index only after it announces a role; before
// that it is connected but inert. The hub is the single fan-out point, so
// clients observe state transitions in the order the server applied them.
type Hub struct {
	clients map[*Client]bool
	roles   map[Role]map[*Client]bool
	mu      sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	outboundCh chan outbound

	// Join/leave subscribers, wired once before Start.
	joinFn  func(c *Client, role Role)
	leaveFn func(c *Client, role Role)
}

// Client represents one WebSocket connection to a display client.
type Client struct {
	ID   string
	Conn *websocket.Conn

	// send is never closed; done signals the write pump to exit. Fan-out
	// may race a disconnect, and sending on a closed channel panics.
	send chan []byte
	done chan struct{}
	hub  *Hub

	ConnectedAt time.Time
	LastPing    time.Time

	// Guarded by hub.mu.
	role      Role
	announced bool
	closed    bool
}

// Role returns the client's declared role, empty until announced.
func (c *Client) Role() Role {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	return c.role
}

// ConnectionConfig holds configuration for WebSocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Overlay and panel pages are served from other origins.
			return true
		},
	}
}

// outbound is a queued message: target set means a single client, role set
// means one role bucket, neither means the full primary set.
type outbound struct {
	msg    Message
	target *Client
	role   Role
}

// NewHub creates a hub with the given connection configuration.
func NewHub(config ConnectionConfig) *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		roles:   make(map[Role]map[*Client]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:     config,
		outboundCh: make(chan outbound, 1000),
	}
}

// OnJoin registers the handler invoked when a client announces its role.
// Must be called before Start.
func (h *Hub) OnJoin(fn func(c *Client, role Role)) { h.joinFn = fn }

// OnLeave registers the handler invoked once per role membership found when
// a client disconnects. Must be called before Start.
func (h *Hub) OnLeave(fn func(c *Client, role Role)) { h.leaveFn = fn }

// Start processes outbound messages until the context is cancelled.
func (h *Hub) Start(ctx context.Context) {
	log.Info().Msg("broadcast hub started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("broadcast hub shutting down")
			return
		case out := <-h.outboundCh:
			h.handleOutbound(out)
		}
	}
}

// Broadcast queues a message for every admitted client.
func (h *Hub) Broadcast(msg Message) {
	h.enqueue(outbound{msg: msg})
}

// BroadcastRole queues a message for one role bucket only.
func (h *Hub) BroadcastRole(role Role, msg Message) {
	h.enqueue(outbound{msg: msg, role: role})
}

// SendTo queues a message for a single client. Routed through the same
// queue as broadcasts so per-connection ordering holds.
func (h *Hub) SendTo(c *Client, msg Message) {
	h.enqueue(outbound{msg: msg, target: c})
}

func (h *Hub) enqueue(out outbound) {
	select {
	case h.outboundCh <- out:
	default:
		log.Warn().Str("type", string(out.msg.Type)).Msg("outbound queue full, dropping message")
	}
}

// handleOutbound marshals a message once and fans it out to its targets.
func (h *Hub) handleOutbound(out outbound) {
	data, err := json.Marshal(out.msg)
	if err != nil {
		log.Error().Err(err).Str("type", string(out.msg.Type)).Msg("failed to marshal outbound message")
		return
	}

	h.mu.RLock()
	var targets []*Client
	switch {
	case out.target != nil:
		if h.clients[out.target] {
			targets = []*Client{out.target}
		}
	case out.role != "":
		for c := range h.roles[out.role] {
			targets = append(targets, c)
		}
	default:
		for c := range h.clients {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.send <- data:
		default:
			// Slow or dead client; drop it without affecting the rest.
			log.Warn().
				Str("client_id", c.ID).
				Str("role", string(c.Role())).
				Msg("client send buffer full, closing connection")
			h.unregister(c)
			c.Conn.Close()
		}
	}

	log.Debug().
		Str("type", string(out.msg.Type)).
		Int("clients", len(targets)).
		Msg("message fanned out")
}

// Upgrade upgrades an HTTP request to a WebSocket connection. The client
// stays inert until it sends a role announcement.
func (h *Hub) Upgrade(w http.ResponseWriter, r *http.Request) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	client := &Client{
		ID:          uuid.New().String(),
		Conn:        conn,
		send:        make(chan []byte, 256),
		done:        make(chan struct{}),
		hub:         h,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}

	go client.writePump()
	go client.readPump()

	log.Info().Str("client_id", client.ID).Msg("WebSocket connection established")
	return nil
}

// admit places an announced client in the primary set and its role bucket,
// then notifies the join subscriber so it can push the current snapshot.
func (h *Hub) admit(c *Client, role Role) {
	h.mu.Lock()
	if c.closed || c.announced {
		h.mu.Unlock()
		return
	}
	c.announced = true
	c.role = role
	h.clients[c] = true
	if h.roles[role] == nil {
		h.roles[role] = make(map[*Client]bool)
	}
	h.roles[role][c] = true
	total := len(h.clients)
	h.mu.Unlock()

	log.Info().
		Str("client_id", c.ID).
		Str("role", string(role)).
		Int("total_clients", total).
		Msg("client admitted")

	if h.joinFn != nil {
		h.joinFn(c, role)
	}
}

// unregister removes a client from the primary set and from every role
// bucket it appears in, emitting one leave notification per membership
// found. A client should belong to exactly one role, but removal does not
// assume it.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if c.closed {
		h.mu.Unlock()
		return
	}
	c.closed = true
	delete(h.clients, c)
	close(c.done)

	var memberships []Role
	for role, bucket := range h.roles {
		if bucket[c] {
			delete(bucket, c)
			memberships = append(memberships, role)
			if len(bucket) == 0 {
				delete(h.roles, role)
			}
		}
	}
	h.mu.Unlock()

	log.Info().
		Str("client_id", c.ID).
		Int("role_memberships", len(memberships)).
		Msg("client unregistered")

	if h.leaveFn != nil {
		for _, role := range memberships {
			h.leaveFn(c, role)
		}
	}
}

// Stats returns counts of admitted clients, total and per role.
func (h *Hub) Stats() (total int, byRole map[Role]int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	byRole = make(map[Role]int, len(h.roles))
	for role, bucket := range h.roles {
		byRole[role] = len(bucket)
	}
	return len(h.clients), byRole
}

// writePump drains the client's send channel onto the wire and keeps the
// connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.hub.unregister(c)
	}()

	for {
		select {
		case <-c.done:
			c.Conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("client_id", c.ID).Msg("failed to write message")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("client_id", c.ID).Msg("failed to send ping")
				return
			}
			c.LastPing = time.Now()
		}
	}
}

// readPump consumes inbound frames. The only meaningful inbound message is
// the role announcement; everything else is logged and ignored.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.hub.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("client_id", c.ID).Msg("unexpected WebSocket close")
			}
			break
		}

		c.handleInbound(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	}
}

func (c *Client) handleInbound(message []byte) {
	var ann announcement
	if err := json.Unmarshal(message, &ann); err != nil || ann.Type != "announce" {
		log.Debug().Str("client_id", c.ID).RawJSON("message", message).Msg("ignoring inbound message")
		return
	}

	if !ValidRole(ann.Role) {
		log.Warn().Str("client_id", c.ID).Str("role", string(ann.Role)).Msg("unknown role announced")
		return
	}

	c.hub.admit(c, ann.Role)
}
