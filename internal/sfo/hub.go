// Package sfo is the Session Fan-Out component of spec.md §4.4: it
// routes events to authenticated sessions scoped to per-user and
// per-contract rooms, and forwards inbound confirmation responses to
// the Matching Engine by opaque key. The Hub/Client machinery is
// grounded directly on the teacher's pkg/api/websocket.go
// (Hub/Client/readPump/writePump, ping/pong keepalive), generalized
// from a flat channel-subscription model to the room model spec.md
// requires.
package sfo

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	readDeadline  = 60 * time.Second
	pingPeriod    = 54 * time.Second
	writeDeadline = 10 * time.Second
	sendBuffer    = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// CommandHandler resolves an inbound confirmation response to a
// Matching Engine transition (spec.md §4.4 "Inbound ... each forwarded
// to ME by opaque key").
type CommandHandler interface {
	HandleConfirmationResponse(key string, accepted bool) error
}

// Hub maintains every attached session and the room membership needed
// to route events without leaking information across contracts a user
// has no stake in (spec.md §4.4).
type Hub struct {
	logger  *zap.Logger
	handler CommandHandler

	mu      sync.RWMutex
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
}

func NewHub(logger *zap.Logger, handler CommandHandler) *Hub {
	return &Hub{
		logger:     logger,
		handler:    handler,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run is the hub's single-goroutine registration loop.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Debug("session attached", zap.String("owner", c.owner), zap.Int("total", len(h.clients)))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Debug("session detached", zap.String("owner", c.owner))
		}
	}
}

// BroadcastToRoom sends data to every client currently a member of
// room. Slow clients are dropped from delivery rather than blocking
// the publisher, matching the teacher's Hub.broadcast discipline.
func (h *Hub) BroadcastToRoom(room string, data interface{}) {
	message, err := json.Marshal(data)
	if err != nil {
		h.logger.Warn("sfo marshal failed", zap.String("room", room), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.inRoom(room) {
			continue
		}
		select {
		case c.send <- message:
		default:
			h.logger.Warn("client send buffer full, dropping message", zap.String("owner", c.owner))
		}
	}
}

// DetachContractForOwner removes every session belonging to owner from
// a contract's room (spec.md §4.4: "When an owner cancels their last
// active order in a contract, SFO unsubscribes them from the contract
// room").
func (h *Hub) DetachContractForOwner(owner, contract string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.owner == owner {
			c.leaveRoom(marketRoom(contract))
		}
	}
}

// Client is one attached WebSocket session.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	owner  string
	admin  bool

	roomsMu sync.RWMutex
	rooms   map[string]bool
}

func (c *Client) inRoom(room string) bool {
	c.roomsMu.RLock()
	defer c.roomsMu.RUnlock()
	return c.rooms[room]
}

func (c *Client) joinRoom(room string) {
	c.roomsMu.Lock()
	c.rooms[room] = true
	c.roomsMu.Unlock()
}

func (c *Client) leaveRoom(room string) {
	c.roomsMu.Lock()
	delete(c.rooms, room)
	c.roomsMu.Unlock()
}

// inboundEnvelope is the wire shape of a session's outbound-to-us
// message: match:approval_response, quantity:confirmation_response,
// and negotiation:response (spec.md §4.4) all reduce to the same
// {confirmation_key, accepted} shape once routed to ME.
type inboundEnvelope struct {
	Type            string `json:"type"`
	ConfirmationKey string `json:"confirmation_key"`
	Accepted        bool   `json:"accepted"`
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("sfo read error", zap.String("owner", c.owner), zap.Error(err))
			}
			return
		}

		var env inboundEnvelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.hub.logger.Warn("sfo invalid inbound message", zap.String("owner", c.owner), zap.Error(err))
			continue
		}

		switch env.Type {
		case "match:approval_response", "quantity:confirmation_response", "negotiation:response":
			if err := c.hub.handler.HandleConfirmationResponse(env.ConfirmationKey, env.Accepted); err != nil {
				c.hub.logger.Warn("confirmation response rejected", zap.String("key", env.ConfirmationKey), zap.Error(err))
			}
		default:
			c.hub.logger.Warn("sfo unknown inbound type", zap.String("type", env.Type))
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Attach upgrades an HTTP request to a WebSocket session, auto-joins
// user:<owner> and market:<contract> for every contract the caller
// currently holds an active order in, plus the admin room if admin
// (spec.md §4.4 "On session attach").
func (h *Hub) Attach(w http.ResponseWriter, r *http.Request, owner string, admin bool, activeContracts []string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &Client{
		hub:   h,
		conn:  conn,
		send:  make(chan []byte, sendBuffer),
		owner: owner,
		admin: admin,
		rooms: make(map[string]bool),
	}
	c.joinRoom(userRoom(owner))
	for _, contract := range activeContracts {
		c.joinRoom(marketRoom(contract))
	}
	if admin {
		c.joinRoom(AdminRoom)
	}

	h.register <- c
	go c.writePump()
	go c.readPump()
	return nil
}
