package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-notify/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-notify/internal/infrastructure/logging"
)

// Message types of the source stream protocol.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 256
)

// Source list channels a client can subscribe to.
const (
	ChannelSourcesAll     = "sources.all"
	ChannelSourcesEnabled = "sources.enabled"
)

var knownChannels = []string{ChannelSourcesAll, ChannelSourcesEnabled}

// WSMessage is the envelope of every frame sent to a client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload for subscribe/unsubscribe messages.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// wsRequest is a frame received from a client. The payload is decoded
// according to Type.
type wsRequest struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// Hub tracks stream clients and fans source list updates out to them.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	clients map[*WSClient]struct{}
	mu      sync.RWMutex

	// snapshot returns the current value of a channel, sent to a client
	// right after it subscribes. Optional.
	snapshot func(channel string) (any, bool)
}

// WSClient is one stream connection.
type WSClient struct {
	hub           *Hub
	conn          *websocket.Conn
	subscriptions map[string]struct{}
	mu            sync.RWMutex // guards subscriptions
	subject       string       // token subject from the ticket; empty when auth is disabled

	// send is closed exactly once, under sendMu, when the client leaves.
	send    chan []byte
	sendMu  sync.Mutex
	stopped bool
}

// wsTimings are the connection deadlines derived from WebSocketConfig.
type wsTimings struct {
	pingEvery time.Duration
	readWait  time.Duration
	writeWait time.Duration
}

func newTimings(cfg config.WebSocketConfig) wsTimings {
	pong := time.Duration(cfg.PongTimeout) * time.Second
	ping := time.Duration(cfg.PingInterval) * time.Second
	return wsTimings{pingEvery: ping, readWait: ping + pong, writeWait: pong}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are checked by the CORS middleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewHub creates a hub with no clients.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*WSClient]struct{})
	h.mu.Unlock()

	for client := range clients {
		h.drop(client)
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	wsClientsGauge.Inc()
	h.logger.Debug("stream client connected", "clients", count, "subject", client.subject)
}

// Unregister removes a client. Repeated calls are no-ops.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, ok := h.clients[client]
	delete(h.clients, client)
	count := len(h.clients)
	h.mu.Unlock()

	if ok {
		h.drop(client)
		h.logger.Debug("stream client disconnected", "clients", count)
	}
}

func (h *Hub) drop(client *WSClient) {
	if client.stop() {
		wsClientsGauge.Dec()
	}
	if client.conn != nil {
		client.conn.Close()
	}
}

// Broadcast sends payload as an event to every client subscribed to channel.
// A client whose buffer is full misses the event.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := eventMessage(channel, payload)
	if err != nil {
		h.logger.Error("encoding stream event", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	var sent, dropped int
	for _, client := range clients {
		if !client.isSubscribed(channel) {
			continue
		}
		if client.trySend(data) {
			sent++
		} else {
			dropped++
		}
	}
	if sent+dropped > 0 {
		h.logger.Debug("stream event broadcast", "channel", channel, "recipients", sent, "dropped", dropped)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// handleWebSocket upgrades the request to a source stream.
// When authentication is enabled a ticket from POST /auth/ws-ticket is required.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	var subject string
	if s.authEnabled() {
		ticket := r.URL.Query().Get("ticket")
		if ticket == "" {
			writeUnauthorized(w, "ticket query parameter is required")
			return
		}
		entry, ok := s.tickets.consume(ticket)
		if !ok {
			writeUnauthorized(w, "invalid or expired ticket")
			return
		}
		subject = entry.subject
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		hub:           s.hub,
		conn:          conn,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
		subject:       subject,
	}
	s.hub.Register(client)

	timings := newTimings(s.wsCfg)
	go client.writeLoop(timings)
	go client.readLoop(timings, int64(s.wsCfg.MaxMessageSize))
}

// readLoop handles client frames until the connection fails, then
// unregisters the client.
func (c *WSClient) readLoop(t wsTimings, limit int64) {
	defer c.hub.Unregister(c)

	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(t.readWait)) }

	c.conn.SetReadLimit(limit)
	if err := extend(); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("stream read failed", "subject", c.subject, "error", err)
			}
			return
		}
		// Browsers may not answer protocol pings; any frame proves liveness.
		if err := extend(); err != nil {
			return
		}
		c.handleMessage(frame)
	}
}

// writeLoop drains send and pings on a timer. It returns when send is
// closed or a write fails.
func (c *WSClient) writeLoop(t wsTimings) {
	ticker := time.NewTicker(t.pingEvery)
	defer ticker.Stop()
	defer c.conn.Close()

	write := func(kind int, data []byte) error {
		if err := c.conn.SetWriteDeadline(time.Now().Add(t.writeWait)); err != nil {
			return err
		}
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				write(websocket.CloseMessage, nil) //nolint:errcheck // connection is going away
				return
			}
			if err := write(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches one client frame.
func (c *WSClient) handleMessage(data []byte) {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch req.Type {
	case WSTypeSubscribe:
		c.changeSubscriptions(req, true)
	case WSTypeUnsubscribe:
		c.changeSubscriptions(req, false)
	default:
		c.sendError(req.ID, "unknown message type: "+req.Type)
	}
}

// changeSubscriptions adds or removes the channels named in req. Unknown
// channels reject the whole request. A new subscriber receives the current
// value of each channel after the acknowledgement.
func (c *WSClient) changeSubscriptions(req wsRequest, subscribe bool) {
	var sub WSSubscribePayload
	if err := json.Unmarshal(req.Payload, &sub); err != nil || len(sub.Channels) == 0 {
		c.sendError(req.ID, "payload must list channels")
		return
	}
	for _, ch := range sub.Channels {
		if !slices.Contains(knownChannels, ch) {
			c.sendError(req.ID, "unknown channel: "+ch)
			return
		}
	}

	c.mu.Lock()
	for _, ch := range sub.Channels {
		if subscribe {
			c.subscriptions[ch] = struct{}{}
		} else {
			delete(c.subscriptions, ch)
		}
	}
	c.mu.Unlock()

	key := "unsubscribed"
	if subscribe {
		key = "subscribed"
	}
	c.hub.logger.Debug("stream subscriptions changed", key, sub.Channels, "subject", c.subject)
	c.sendFrame(WSMessage{Type: WSTypeResponse, ID: req.ID, Payload: map[string]any{key: sub.Channels}})

	if !subscribe || c.hub.snapshot == nil {
		return
	}
	for _, ch := range sub.Channels {
		if payload, ok := c.hub.snapshot(ch); ok {
			if data, err := eventMessage(ch, payload); err == nil {
				c.trySend(data)
			}
		}
	}
}

// stop closes send. It reports false if send was already closed.
func (c *WSClient) stop() bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.stopped {
		return false
	}
	c.stopped = true
	close(c.send)
	return true
}

// trySend queues data without blocking. It reports false when the client
// has left or its buffer is full.
func (c *WSClient) trySend(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.stopped {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *WSClient) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subscriptions[channel]
	return ok
}

func (c *WSClient) sendFrame(msg WSMessage) {
	msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	data, err := json.Marshal(msg)
	if err != nil {
		c.hub.logger.Error("encoding stream frame", "type", msg.Type, "error", err)
		return
	}
	c.trySend(data)
}

func (c *WSClient) sendError(id, message string) {
	c.sendFrame(WSMessage{Type: WSTypeError, ID: id, Payload: map[string]string{"message": message}})
}

// eventMessage encodes an event frame for channel.
func eventMessage(channel string, payload any) ([]byte, error) {
	return json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
}
