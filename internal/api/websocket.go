package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"inverter-drive/internal/drive"
)

// Event types pushed to websocket clients.
const (
	EventSample = "sample"
	EventFault  = "fault"
)

// WSEvent is the JSON envelope broadcast to WebSocket clients.
type WSEvent struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Hub manages WebSocket client connections and broadcasts events. It is a
// drive.Sink: every Nth sample is broadcast as a "sample" event.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool

	registerCh   chan *Client
	unregisterCh chan *Client
	broadcastCh  chan []byte
	done         chan struct{} // closed when Run returns

	every   uint64
	dropped atomic.Uint64
	logger  *zap.Logger
}

var _ drive.Sink = (*Hub)(nil)

// Client wraps a single WebSocket connection.
type Client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a hub that forwards one sample in every.
func NewHub(every int, logger *zap.Logger) *Hub {
	if every < 1 {
		every = 1
	}
	return &Hub{
		clients:      make(map[*Client]bool),
		registerCh:   make(chan *Client, 16),
		unregisterCh: make(chan *Client, 16),
		broadcastCh:  make(chan []byte, 256),
		done:         make(chan struct{}),
		every:        uint64(every),
		logger:       logger,
	}
}

// Run processes register, unregister, and broadcast events.
// Blocks until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return

		case client := <-h.registerCh:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregisterCh:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()

		case data := <-h.broadcastCh:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- data:
				default:
					// slow client, skip
					h.dropped.Add(1)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast sends data to all connected clients. Never blocks.
func (h *Hub) Broadcast(data []byte) {
	select {
	case h.broadcastCh <- data:
	default:
		h.dropped.Add(1)
	}
}

// BroadcastEvent marshals a WSEvent and broadcasts it.
func (h *Hub) BroadcastEvent(eventType string, payload interface{}) {
	data, err := json.Marshal(WSEvent{Type: eventType, Payload: payload})
	if err != nil {
		h.logger.Error("websocket: failed to marshal event", zap.String("type", eventType), zap.Error(err))
		return
	}
	h.Broadcast(data)
}

// Accept implements drive.Sink.
func (h *Hub) Accept(s drive.Sample) {
	if s.Tick%h.every != 0 {
		return
	}
	h.BroadcastEvent(EventSample, s)
}

// OnFault is a drive.FaultObserver.
func (h *Hub) OnFault(t drive.FaultTransition) {
	h.BroadcastEvent(EventFault, t)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped counts messages lost to full buffers.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// HandleWebSocket is an HTTP handler that upgrades to WebSocket.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // LAN tool, any origin
	})
	if err != nil {
		h.logger.Warn("websocket: accept failed", zap.Error(err))
		return
	}

	client := &Client{
		conn: conn,
		send: make(chan []byte, 64),
	}

	if !h.register(client) {
		conn.Close(websocket.StatusGoingAway, "hub stopped")
		return
	}
	h.logger.Debug("websocket client connected", zap.String("remote_addr", r.RemoteAddr))

	go h.writePump(r.Context(), client)
	h.readPump(r.Context(), client)
}

// register hands c to Run, false once the hub has stopped.
func (h *Hub) register(c *Client) bool {
	select {
	case <-h.done:
		return false
	default:
	}
	select {
	case h.registerCh <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) writePump(ctx context.Context, c *Client) {
	defer c.conn.Close(websocket.StatusNormalClosure, "")

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := c.conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// readPump drains the connection; clients only listen.
func (h *Hub) readPump(ctx context.Context, c *Client) {
	defer func() {
		select {
		case h.unregisterCh <- c:
		case <-h.done:
		}
	}()

	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			return
		}
	}
}
