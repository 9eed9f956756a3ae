package broadcast

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"agentconsole/internal/logging"
)

// ChannelPath is where the console serves the relay.
const ChannelPath = "/api/channel"

// Remote is a websocket connection to a relay hub. It forwards published keys
// to the hub and delivers keys from other peers to its registry.
type Remote struct {
	conn     *websocket.Conn
	registry *Registry
	logger   logging.Logger

	writeMu sync.Mutex
	done    chan struct{}
	once    sync.Once
}

// ChannelURL turns a console base URL into the relay websocket URL.
func ChannelURL(baseURL, channel string) (string, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path += ChannelPath
	if channel = strings.TrimSpace(channel); channel != "" {
		q := u.Query()
		q.Set("channel", channel)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Dial connects registry to the relay at baseURL and attaches itself as the
// registry's transport.
func Dial(ctx context.Context, baseURL, channel string, registry *Registry, logger logging.Logger) (*Remote, error) {
	if registry == nil {
		return nil, errors.New("registry is required")
	}
	target, err := ChannelURL(baseURL, channel)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}

	r := &Remote{
		conn:     conn,
		registry: registry,
		logger:   logging.OrNop(logger),
		done:     make(chan struct{}),
	}
	registry.SetTransport(r)
	go r.readLoop()
	return r, nil
}

func (r *Remote) readLoop() {
	defer r.shutdown()
	for {
		var msg Message
		if err := r.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				r.logger.Debug("Channel read failed: %v", err)
			}
			return
		}
		if msg.Key == "" {
			continue
		}
		r.registry.Deliver(msg.Key)
	}
}

// Send writes key to the relay.
func (r *Remote) Send(ctx context.Context, key string) error {
	select {
	case <-r.done:
		return errors.New("channel connection closed")
	default:
	}

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	_ = r.conn.SetWriteDeadline(deadline)
	return r.conn.WriteJSON(Message{Key: key})
}

// Done is closed when the connection ends.
func (r *Remote) Done() <-chan struct{} {
	return r.done
}

// Close sends a close frame and tears the connection down.
func (r *Remote) Close() error {
	r.writeMu.Lock()
	_ = r.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	r.writeMu.Unlock()
	r.shutdown()
	return nil
}

func (r *Remote) shutdown() {
	r.once.Do(func() {
		r.registry.detachTransport(r)
		_ = r.conn.Close()
		close(r.done)
	})
}
