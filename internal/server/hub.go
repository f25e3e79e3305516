package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 256
)

// Hub tracks websocket clients and fans broadcasts out to them. A client
// that cannot keep up with broadcasts is dropped.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	clients    map[*Client]bool
	broadcast  chan []byte
	done       chan struct{}
	count      atomic.Int32
	dropped    atomic.Int64
}

type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	src  Source
	log  *slog.Logger
}

func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, sendBuffer),
		done:       make(chan struct{}),
	}
}

// Run serves the hub until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return
		case c := <-h.register:
			h.clients[c] = true
			h.count.Add(1)
		case c := <-h.unregister:
			if h.clients[c] {
				h.drop(c)
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					h.drop(c)
				}
			}
		}
	}
}

func (h *Hub) drop(c *Client) {
	delete(h.clients, c)
	close(c.send)
	h.count.Add(-1)
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	return int(h.count.Load())
}

// BroadcastJSON sends v to every client without blocking. The message is
// dropped once the hub stopped, or when the queue is full because Run is
// not serving it.
func (h *Hub) BroadcastJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- b:
	case <-h.done:
	default:
		h.dropped.Add(1)
	}
	return nil
}

// Dropped returns how many broadcasts found the queue full.
func (h *Hub) Dropped() int {
	return int(h.dropped.Load())
}

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

func serveWS(h *Hub, src Source, logger *slog.Logger, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("ws upgrade failed", "err", err)
		return
	}

	client := &Client{hub: h, conn: conn, send: make(chan []byte, sendBuffer), src: src, log: logger.With("remote", r.RemoteAddr)}
	select {
	case h.register <- client:
	case <-h.done:
		_ = conn.Close()
		return
	}

	// the request context ends with ServeHTTP, so clients get their own
	ctx, cancel := context.WithCancel(context.Background())
	go client.readPump(cancel)
	go client.writePump(ctx)
}

// readPump consumes control frames and notices when the peer goes away.
func (c *Client) readPump(cancel context.CancelFunc) {
	defer cancel()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump streams feed events and broadcasts to the peer. It is the only
// writer on the connection.
func (c *Client) writePump(ctx context.Context) {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	var f follower
	for {
		stats := c.src.Stats().Changed()
		traj := c.src.Trajectories().Changed()
		obs := c.src.Obstacles().Changed()
		status := c.src.Status().Changed()

		for _, ev := range f.collect(c.src) {
			b, err := json.Marshal(ev)
			if err != nil {
				c.log.Debug("ws event not encodable", "type", ev.Type, "err", err)
				continue
			}
			if err := c.write(websocket.TextMessage, b); err != nil {
				c.log.Debug("ws write failed", "err", err)
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
				return
			}
			if err := c.write(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ping.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-stats:
		case <-traj:
		case <-obs:
		case <-status:
		}
	}
}

func (c *Client) write(kind int, data []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(kind, data)
}
