// Package broadcast relays keyed notifications between console instances.
// A Registry is built once per process and passed to whoever needs it.
package broadcast

import (
	"context"
	"sort"
	"strings"
	"sync"

	"agentconsole/internal/logging"
)

// DefaultChannel is the relay channel consoles join unless told otherwise.
const DefaultChannel = "agentconsole"

// Well-known keys.
const (
	KeyTasksChanged    = "tasks-changed"
	KeySettingsChanged = "settings-changed"
)

// Handler reacts to a key published by a peer.
type Handler func(key string)

// Transport carries a published key to peers. It never delivers back to the
// sender.
type Transport interface {
	Send(ctx context.Context, key string) error
}

// Message is the wire form exchanged with the relay.
type Message struct {
	Key string `json:"key"`
}

// Registry maps keys to local handlers and forwards published keys to peers.
type Registry struct {
	logger logging.Logger

	mu        sync.RWMutex
	handlers  map[string]map[uint64]Handler
	nextID    uint64
	transport Transport
}

// NewRegistry builds an empty registry without a transport.
func NewRegistry(logger logging.Logger) *Registry {
	return &Registry{
		logger:   logging.OrNop(logger),
		handlers: make(map[string]map[uint64]Handler),
	}
}

// SetTransport attaches the peer transport. Passing nil detaches it.
func (r *Registry) SetTransport(t Transport) {
	r.mu.Lock()
	r.transport = t
	r.mu.Unlock()
}

// detachTransport clears the transport only if it is still t.
func (r *Registry) detachTransport(t Transport) {
	r.mu.Lock()
	if r.transport == t {
		r.transport = nil
	}
	r.mu.Unlock()
}

// Subscribe registers h for key and returns a function that removes it.
// The returned function is safe to call more than once.
func (r *Registry) Subscribe(key string, h Handler) func() {
	key = strings.TrimSpace(key)
	if key == "" || h == nil {
		return func() {}
	}

	r.mu.Lock()
	r.nextID++
	id := r.nextID
	if r.handlers[key] == nil {
		r.handlers[key] = make(map[uint64]Handler)
	}
	r.handlers[key][id] = h
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			delete(r.handlers[key], id)
			if len(r.handlers[key]) == 0 {
				delete(r.handlers, key)
			}
		})
	}
}

// Publish sends key to every peer. Local handlers are not invoked. Without a
// transport the call is a no-op.
func (r *Registry) Publish(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	r.mu.RLock()
	transport := r.transport
	r.mu.RUnlock()

	if transport == nil {
		r.logger.Debug("No transport attached, dropping %q", key)
		return nil
	}
	return transport.Send(ctx, key)
}

// Deliver invokes the handlers registered for key and returns how many ran.
// Transports call it for keys received from peers.
func (r *Registry) Deliver(key string) int {
	r.mu.RLock()
	set := r.handlers[key]
	handlers := make([]Handler, 0, len(set))
	ids := make([]uint64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		handlers = append(handlers, set[id])
	}
	r.mu.RUnlock()

	for _, h := range handlers {
		r.invoke(key, h)
	}
	return len(handlers)
}

func (r *Registry) invoke(key string, h Handler) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Handler for %q panicked: %v", key, rec)
		}
	}()
	h(key)
}

// Keys lists keys with at least one handler, sorted.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
