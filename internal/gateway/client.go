package gateway

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"stockchart/internal/interval"
	"stockchart/internal/model"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	readLimit  = 4096
)

// Client represents a single WebSocket peer. A client follows at most one
// (stock, interval) pair and always receives the shared channels.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	subMu sync.RWMutex
	sub   *model.Key
}

// ID returns the client's connection id.
func (c *Client) ID() string { return c.id }

// Subscription returns the pair the client follows.
func (c *Client) Subscription() (model.Key, bool) {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	if c.sub == nil {
		return model.Key{}, false
	}
	return *c.sub, true
}

// clientMsg is any message a client sends.
type clientMsg struct {
	Type     string `json:"type"`
	Stock    string `json:"stock"`
	Interval string `json:"interval"`
	ReqID    string `json:"reqId"`
	Ping     int64  `json:"ping"`
}

type ackMsg struct {
	Type     string `json:"type"`
	ReqID    string `json:"reqId,omitempty"`
	Stock    string `json:"stock,omitempty"`
	Interval string `json:"interval,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			// Coalesce queued envelopes into one frame, newline separated
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
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

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debug("ws read failed", zap.String("client", c.id), zap.Error(err))
			}
			return
		}

		var msg clientMsg
		if json.Unmarshal(raw, &msg) != nil {
			c.sendJSON(ackMsg{Type: "error", Error: "invalid message"})
			continue
		}

		switch strings.ToUpper(msg.Type) {
		case "SUBSCRIBE":
			c.handleSubscribe(msg)
		case "UNSUBSCRIBE":
			c.subMu.Lock()
			c.sub = nil
			c.subMu.Unlock()
			c.sendJSON(ackMsg{Type: "unsubscribed", ReqID: msg.ReqID})
		default:
			if msg.Ping > 0 {
				c.sendJSON(map[string]int64{"ping": msg.Ping, "serverTs": time.Now().UnixMilli()})
				continue
			}
			c.sendJSON(ackMsg{Type: "error", ReqID: msg.ReqID, Error: "unknown message type"})
		}
	}
}

func (c *Client) handleSubscribe(msg clientMsg) {
	stock := strings.ToUpper(strings.TrimSpace(msg.Stock))
	code, err := interval.Parse(msg.Interval)
	if stock == "" || err != nil {
		c.sendJSON(ackMsg{Type: "error", ReqID: msg.ReqID, Error: "stock and a valid interval are required"})
		return
	}
	k := model.Key{Stock: stock, Interval: code}

	c.subMu.Lock()
	c.sub = &k
	c.subMu.Unlock()

	c.hub.log.Debug("ws client subscribed", zap.String("client", c.id), zap.Stringer("key", k))
	c.sendJSON(ackMsg{Type: "subscribed", ReqID: msg.ReqID, Stock: stock, Interval: string(code)})

	if c.hub.OnSubscribe != nil {
		go c.hub.OnSubscribe(c, k)
	}
}

// matches reports whether the client should receive channel.
func (c *Client) matches(channel string) bool {
	if !strings.HasPrefix(channel, seriesPrefix) {
		return true
	}
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return c.sub != nil && SeriesChannel(*c.sub) == channel
}

// sendJSON queues v without blocking. Only the read pump calls it, so the
// send channel is still open.
func (c *Client) sendJSON(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
		if c.hub.OnDrop != nil {
			c.hub.OnDrop()
		}
	}
}
