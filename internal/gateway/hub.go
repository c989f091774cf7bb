// Package gateway serves the chart over HTTP: read-only JSON views of the
// cache, indicator overlays and watchlist, the settings actions, and a
// WebSocket that pushes series and watchlist updates.
package gateway

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"stockchart/internal/model"
)

// Channels and envelope types.
const (
	ChannelWatchlist = "watchlist"
	ChannelSettings  = "settings"

	TypeSeries    = "series"
	TypeWatchlist = "watchlist"
	TypeSettings  = "settings"
)

const seriesPrefix = "series:"

// SeriesChannel is the channel a (stock, interval) pair is pushed on.
func SeriesChannel(k model.Key) string { return seriesPrefix + k.String() }

// Hub tracks WebSocket clients and fans envelopes out to them.
type Hub struct {
	log *zap.Logger
	now func() time.Time

	mu      sync.RWMutex
	clients map[*Client]bool
	seq     int64

	// Per-channel monotonic sequence numbers for gap detection
	channelSeqs map[string]int64

	// Per-channel replay buffers for gap backfill
	replayBufs map[string]*ReplayBuffer

	// Last envelope of each shared channel, sent to new clients
	latest map[string][]byte

	// OnSubscribe is called when a client subscribes to a pair.
	OnSubscribe func(c *Client, k model.Key)
	// OnClients reports the client count after every connect/disconnect.
	OnClients func(n int)
	// OnDrop is called when a slow client's buffer is full and an
	// envelope is dropped.
	OnDrop func()
}

// NewHub creates an empty hub.
func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		log:         log.Named("hub"),
		now:         time.Now,
		clients:     make(map[*Client]bool),
		channelSeqs: make(map[string]int64),
		replayBufs:  make(map[string]*ReplayBuffer),
		latest:      make(map[string][]byte),
	}
}

// Register takes over conn and starts the client's pumps.
func (h *Hub) Register(conn *websocket.Conn) *Client {
	c := &Client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
	}
	conn.EnableWriteCompression(true)

	h.mu.Lock()
	h.clients[c] = true
	count := len(h.clients)
	for _, env := range h.latest {
		c.send <- env
	}
	h.mu.Unlock()

	h.log.Info("ws client connected", zap.String("client", c.id), zap.Int("total", count))
	if h.OnClients != nil {
		h.OnClients(count)
	}

	go c.writePump()
	go c.readPump()
	return c
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	close(c.send)
	h.mu.Unlock()

	h.log.Info("ws client disconnected", zap.String("client", c.id), zap.Int("total", count))
	if h.OnClients != nil {
		h.OnClients(count)
	}
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Subscribers returns how many clients would receive channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for c := range h.clients {
		if c.matches(channel) {
			n++
		}
	}
	return n
}

// Replay returns buffered envelopes for a channel in [fromSeq, toSeq].
func (h *Hub) Replay(channel string, fromSeq, toSeq int64) [][]byte {
	h.mu.RLock()
	rb, exists := h.replayBufs[channel]
	h.mu.RUnlock()
	if !exists {
		return nil
	}
	entries := rb.Range(fromSeq, toSeq)
	result := make([][]byte, len(entries))
	for i, e := range entries {
		result[i] = e.Data
	}
	return result
}

// ChannelSeq returns the current sequence number for a channel.
func (h *Hub) ChannelSeq(channel string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channelSeqs[channel]
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		c.conn.Close()
	}
}
