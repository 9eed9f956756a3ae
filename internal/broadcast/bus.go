package broadcast

import (
	"context"
	"sync"
)

// Bus connects registries living in the same process, the way browser tabs
// share a channel.
type Bus struct {
	mu      sync.RWMutex
	members []*Registry
}

// NewBus builds an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Join attaches r to the bus and returns a function that detaches it.
func (b *Bus) Join(r *Registry) func() {
	b.mu.Lock()
	b.members = append(b.members, r)
	b.mu.Unlock()
	transport := &busTransport{bus: b, self: r}
	r.SetTransport(transport)

	return func() {
		b.mu.Lock()
		for i, m := range b.members {
			if m == r {
				b.members = append(b.members[:i], b.members[i+1:]...)
				break
			}
		}
		b.mu.Unlock()
		r.detachTransport(transport)
	}
}

type busTransport struct {
	bus  *Bus
	self *Registry
}

func (t *busTransport) Send(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.bus.mu.RLock()
	peers := make([]*Registry, 0, len(t.bus.members))
	for _, m := range t.bus.members {
		if m != t.self {
			peers = append(peers, m)
		}
	}
	t.bus.mu.RUnlock()

	for _, p := range peers {
		p.Deliver(key)
	}
	return nil
}
