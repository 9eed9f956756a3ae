package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"agentconsole/internal/logging"
	"agentconsole/internal/observability"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	peerBuffer     = 32
)

// ErrHubClosed is returned by Send after Close.
var ErrHubClosed = errors.New("broadcast hub closed")

// Hub is the websocket relay. Every key received from a peer is forwarded to
// the other peers on the same channel and delivered to the local registry.
// The hub is also a Transport, so the server can publish to all peers.
type Hub struct {
	registry *Registry
	metrics  *observability.MetricsCollector
	logger   logging.Logger
	upgrader websocket.Upgrader

	mu     sync.RWMutex
	peers  map[*hubPeer]struct{}
	closed bool
}

type hubPeer struct {
	conn    *websocket.Conn
	channel string
	send    chan Message
	once    sync.Once
}

func (p *hubPeer) close() {
	p.once.Do(func() {
		close(p.send)
	})
}

// NewHub builds a hub that delivers incoming keys to registry, which may be nil.
func NewHub(registry *Registry, metrics *observability.MetricsCollector, logger logging.Logger) *Hub {
	return &Hub{
		registry: registry,
		metrics:  metrics,
		logger:   logging.OrNop(logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		peers: make(map[*hubPeer]struct{}),
	}
}

// ServeHTTP upgrades the request and serves the peer until it disconnects.
// The channel is taken from the "channel" query parameter.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	channel := strings.TrimSpace(r.URL.Query().Get("channel"))
	if channel == "" {
		channel = DefaultChannel
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Channel upgrade failed: %v", err)
		return
	}

	p := &hubPeer{conn: conn, channel: channel, send: make(chan Message, peerBuffer)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.peers[p] = struct{}{}
	h.mu.Unlock()
	h.metrics.ChannelClientConnected()
	h.logger.Debug("Peer joined channel %q from %s", channel, r.RemoteAddr)

	go h.writeLoop(p)
	h.readLoop(p)
}

func (h *Hub) readLoop(p *hubPeer) {
	defer h.remove(p)

	p.conn.SetReadLimit(maxMessageSize)
	_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("Peer read failed: %v", err)
			}
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil || strings.TrimSpace(msg.Key) == "" {
			h.logger.Debug("Dropping malformed channel message: %q", string(data))
			continue
		}
		h.broadcast(p, p.channel, msg)
		if h.registry != nil && p.channel == DefaultChannel {
			h.registry.Deliver(msg.Key)
		}
	}
}

func (h *Hub) writeLoop(p *hubPeer) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = p.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = p.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := p.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// broadcast queues msg for every peer on channel except from. Peers whose
// buffer is full are dropped.
func (h *Hub) broadcast(from *hubPeer, channel string, msg Message) {
	var slow []*hubPeer

	h.mu.RLock()
	for p := range h.peers {
		if p == from || p.channel != channel {
			continue
		}
		select {
		case p.send <- msg:
		default:
			slow = append(slow, p)
		}
	}
	h.mu.RUnlock()

	for _, p := range slow {
		h.logger.Warn("Dropping slow channel peer")
		h.remove(p)
	}
	if channel == DefaultChannel {
		h.metrics.RecordChannelPublish(msg.Key)
	}
}

func (h *Hub) remove(p *hubPeer) {
	h.mu.Lock()
	_, ok := h.peers[p]
	delete(h.peers, p)
	h.mu.Unlock()
	if ok {
		p.close()
		h.metrics.ChannelClientDisconnected()
	}
}

// Send publishes key to every peer on the default channel.
func (h *Hub) Send(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		return ErrHubClosed
	}
	h.broadcast(nil, DefaultChannel, Message{Key: key})
	return nil
}

// PeerCount returns the number of connected peers.
func (h *Hub) PeerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// Close disconnects every peer and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	peers := make([]*hubPeer, 0, len(h.peers))
	for p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.Unlock()

	for _, p := range peers {
		h.remove(p)
	}
}
