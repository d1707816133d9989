package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"space-arena/internal/arena"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/time/rate"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 1024
	sendBufSize       = 16
	maxMessagesPerSec = 50
)

// SnapshotSource provides the frames streamed to clients.
type SnapshotSource interface {
	DynamicSnapshot() []arena.BodySnapshot
}

// Commander applies player commands received over the socket.
type Commander interface {
	Execute(playerID string, cmd arena.Command) error
}

// Frame is one binary msgpack message broadcast to every client.
type Frame struct {
	Seq    uint64               `msgpack:"seq"`
	At     int64                `msgpack:"at"` // unix millis
	Bodies []arena.BodySnapshot `msgpack:"bodies"`
}

// CommandMessage is the JSON text message a client sends to steer a player.
type CommandMessage struct {
	Player  string `json:"player"`
	Command string `json:"command"`
}

// HubConfig tunes the WebSocket hub.
type HubConfig struct {
	BroadcastInterval time.Duration
	MaxConnections    int
	MaxPerIP          int
	AllowedOrigins    []string
}

// DefaultHubConfig returns the stock hub settings.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		BroadcastInterval: 50 * time.Millisecond,
		MaxConnections:    500,
		MaxPerIP:          10,
		AllowedOrigins:    []string{"http://localhost:*", "http://127.0.0.1:*"},
	}
}

// outbound is a queued message and its websocket frame type.
type outbound struct {
	kind int
	data []byte
}

type wsClient struct {
	hub      *Hub
	conn     *websocket.Conn
	ip       string
	send     chan outbound
	limiter  *rate.Limiter
	closeOne sync.Once
}

// Hub streams dynamic snapshots to WebSocket clients and forwards their
// commands to the arena.
type Hub struct {
	cfg      HubConfig
	source   SnapshotSource
	commands Commander
	log      zerolog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	limiter *ConnLimiter

	seq     atomic.Uint64
	dropped atomic.Uint64
}

// NewHub creates a hub. Nothing runs until Run is called.
func NewHub(cfg HubConfig, source SnapshotSource, commands Commander, log zerolog.Logger) *Hub {
	def := DefaultHubConfig()
	if cfg.BroadcastInterval <= 0 {
		cfg.BroadcastInterval = def.BroadcastInterval
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = def.MaxConnections
	}
	if cfg.MaxPerIP <= 0 {
		cfg.MaxPerIP = def.MaxPerIP
	}
	if cfg.AllowedOrigins == nil {
		cfg.AllowedOrigins = def.AllowedOrigins
	}

	h := &Hub{
		cfg:      cfg,
		source:   source,
		commands: commands,
		log:      log.With().Str("component", "ws").Logger(),
		clients:  make(map[*wsClient]struct{}),
		limiter:  NewConnLimiter(cfg.MaxPerIP),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if originAllowed(origin, h.cfg.AllowedOrigins) {
				return true
			}
			h.log.Warn().Str("origin", origin).Msg("WebSocket connection rejected")
			RecordConnectionRejected("origin")
			return false
		},
	}
	return h
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Run broadcasts a frame every interval until ctx is done, then closes all
// connections.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.BroadcastInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-ticker.C:
			if h.ClientCount() == 0 {
				continue
			}
			if err := h.BroadcastSnapshot(); err != nil {
				h.log.Error().Err(err).Msg("Encoding frame failed")
			}
		}
	}
}

// BroadcastSnapshot encodes the current dynamic snapshot and queues it for
// every client.
func (h *Hub) BroadcastSnapshot() error {
	frame := Frame{
		Seq:    h.seq.Add(1),
		At:     time.Now().UnixMilli(),
		Bodies: h.source.DynamicSnapshot(),
	}
	data, err := msgpack.Marshal(&frame)
	if err != nil {
		return err
	}
	h.broadcast(outbound{kind: websocket.BinaryMessage, data: data})
	return nil
}

// SpawnMessage is the JSON text frame sent when a body appears.
type SpawnMessage struct {
	Event    string `json:"event"`
	EntityID string `json:"entityId"`
	AssetID  string `json:"assetId"`
	Kind     string `json:"kind"`
}

// NotifySpawn implements arena.Notifier by relaying spawn notices to every
// client as JSON text frames.
func (h *Hub) NotifySpawn(n arena.SpawnNotice) {
	if h.ClientCount() == 0 {
		return
	}
	data, err := json.Marshal(SpawnMessage{
		Event:    "spawn",
		EntityID: n.EntityID,
		AssetID:  n.AssetID,
		Kind:     n.Kind.String(),
	})
	if err != nil {
		return
	}
	h.broadcast(outbound{kind: websocket.TextMessage, data: data})
}

// broadcast queues msg for every client. Slow clients miss messages instead
// of stalling the hub.
func (h *Hub) broadcast(msg outbound) {
	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.dropped.Add(1)
		}
	}
	h.mu.RUnlock()

	IncrementWSMessages()
}

// Dropped returns how many queued messages were discarded for slow clients.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

func (h *Hub) add(c *wsClient) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	return len(h.clients)
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	count := len(h.clients)
	h.mu.Unlock()

	if ok {
		h.limiter.Release(c.ip)
		UpdateWSConnections(count)
		h.log.Debug().Str("ip", c.ip).Int("clients", count).Msg("Client disconnected")
	}
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.conn.Close()
	}
}

// HandleWebSocket upgrades the request and starts the client pumps.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ip := GetClientIP(r)

	if h.ClientCount() >= h.cfg.MaxConnections {
		h.log.Warn().Int("limit", h.cfg.MaxConnections).Msg("WebSocket connection rejected: total limit reached")
		RecordConnectionRejected("ws_total_limit")
		writeError(w, "Too many connections", http.StatusServiceUnavailable)
		return
	}
	if !h.limiter.Acquire(ip) {
		h.log.Warn().Str("ip", ip).Msg("WebSocket connection rejected: per-IP limit reached")
		RecordConnectionRejected("ws_ip_limit")
		writeError(w, "Too many connections from your IP", http.StatusTooManyRequests)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("WebSocket upgrade failed")
		h.limiter.Release(ip)
		return
	}

	c := &wsClient{
		hub:     h,
		conn:    conn,
		ip:      ip,
		send:    make(chan outbound, sendBufSize),
		limiter: rate.NewLimiter(maxMessagesPerSec, maxMessagesPerSec),
	}
	count := h.add(c)
	UpdateWSConnections(count)
	h.log.Debug().Str("ip", ip).Int("clients", count).Msg("Client connected")

	go c.writePump()
	go c.readPump()
}

func (c *wsClient) close() {
	c.closeOne.Do(func() { c.conn.Close() })
}

func (c *wsClient) readPump() {
	defer func() {
		c.hub.remove(c)
		c.close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debug().Err(err).Str("ip", c.ip).Msg("WebSocket read error")
			}
			return
		}
		if !c.limiter.Allow() {
			c.hub.log.Warn().Str("ip", c.ip).Msg("WebSocket message rate exceeded, disconnecting")
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if err := c.hub.handleCommand(message); err != nil {
			c.hub.log.Debug().Err(err).Str("ip", c.ip).Msg("Rejected command")
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(message.kind, message.data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var errMissingPlayer = errors.New("missing player")

func (h *Hub) handleCommand(message []byte) error {
	var msg CommandMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return err
	}
	if msg.Player == "" {
		return errMissingPlayer
	}
	cmd, err := arena.ParseCommand(msg.Command)
	if err != nil {
		return err
	}
	return h.commands.Execute(msg.Player, cmd)
}
