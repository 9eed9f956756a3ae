package broadcast

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type keyLog struct {
	mu   sync.Mutex
	keys []string
}

func (l *keyLog) handler(key string) {
	l.mu.Lock()
	l.keys = append(l.keys, key)
	l.mu.Unlock()
}

func (l *keyLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.keys...)
}

func TestSubscribeDeliverUnsubscribe(t *testing.T) {
	r := NewRegistry(nil)
	var first, second keyLog

	unsubscribe := r.Subscribe(KeyTasksChanged, first.handler)
	r.Subscribe(KeyTasksChanged, second.handler)
	assert.Equal(t, []string{KeyTasksChanged}, r.Keys())

	assert.Equal(t, 2, r.Deliver(KeyTasksChanged))
	assert.Equal(t, 0, r.Deliver("unknown"))

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 1, r.Deliver(KeyTasksChanged))
	assert.Equal(t, []string{KeyTasksChanged}, first.snapshot())
	assert.Equal(t, []string{KeyTasksChanged, KeyTasksChanged}, second.snapshot())
}

func TestBlankSubscriptionsAreIgnored(t *testing.T) {
	r := NewRegistry(nil)
	r.Subscribe("  ", func(string) {})()
	r.Subscribe("k", nil)()
	assert.Empty(t, r.Keys())
}

func TestPanickingHandlerDoesNotStopOthers(t *testing.T) {
	r := NewRegistry(nil)
	var log keyLog
	r.Subscribe("k", func(string) { panic("boom") })
	r.Subscribe("k", log.handler)

	assert.Equal(t, 2, r.Deliver("k"))
	assert.Equal(t, []string{"k"}, log.snapshot())
}

func TestPublishWithoutTransportIsNoop(t *testing.T) {
	r := NewRegistry(nil)
	var log keyLog
	r.Subscribe("k", log.handler)

	require.NoError(t, r.Publish(context.Background(), "k"))
	assert.Empty(t, log.snapshot(), "publish never invokes local handlers")
}

func TestBusDeliversToPeersOnly(t *testing.T) {
	bus := NewBus()
	a, b, c := NewRegistry(nil), NewRegistry(nil), NewRegistry(nil)
	bus.Join(a)
	bus.Join(b)
	leave := bus.Join(c)

	var logA, logB, logC keyLog
	a.Subscribe(KeySettingsChanged, logA.handler)
	b.Subscribe(KeySettingsChanged, logB.handler)
	c.Subscribe(KeySettingsChanged, logC.handler)

	leave()
	require.NoError(t, a.Publish(context.Background(), KeySettingsChanged))

	assert.Empty(t, logA.snapshot())
	assert.Equal(t, []string{KeySettingsChanged}, logB.snapshot())
	assert.Empty(t, logC.snapshot())
}

func TestChannelURL(t *testing.T) {
	got, err := ChannelURL("http://localhost:8080/", "")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/api/channel", got)

	got, err = ChannelURL("https://console.example.com", "ai-dev")
	require.NoError(t, err)
	assert.Equal(t, "wss://console.example.com/api/channel?channel=ai-dev", got)

	_, err = ChannelURL("ftp://x", "")
	assert.Error(t, err)
}

func TestHubRelaysBetweenRemotes(t *testing.T) {
	serverRegistry := NewRegistry(nil)
	var serverLog keyLog
	serverRegistry.Subscribe(KeyTasksChanged, serverLog.handler)

	hub := NewHub(serverRegistry, nil, nil)
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	regA, regB := NewRegistry(nil), NewRegistry(nil)
	remoteA, err := Dial(ctx, srv.URL, "", regA, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = remoteA.Close() })
	remoteB, err := Dial(ctx, srv.URL, "", regB, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = remoteB.Close() })

	require.Eventually(t, func() bool { return hub.PeerCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	var logA, logB keyLog
	regA.Subscribe(KeyTasksChanged, logA.handler)
	regB.Subscribe(KeyTasksChanged, logB.handler)

	require.NoError(t, regA.Publish(ctx, KeyTasksChanged))
	require.Eventually(t, func() bool { return len(logB.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return len(serverLog.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, logA.snapshot(), "sender does not receive its own key")

	// Server-side publish reaches every peer.
	serverRegistry.SetTransport(hub)
	require.NoError(t, serverRegistry.Publish(ctx, KeyTasksChanged))
	require.Eventually(t, func() bool {
		return len(logA.snapshot()) == 1 && len(logB.snapshot()) == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHubSeparatesChannels(t *testing.T) {
	hub := NewHub(nil, nil, nil)
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})

	ctx := context.Background()
	regA, regB, regC := NewRegistry(nil), NewRegistry(nil), NewRegistry(nil)
	for _, pair := range []struct {
		reg     *Registry
		channel string
	}{{regA, "one"}, {regB, "one"}, {regC, "two"}} {
		remote, err := Dial(ctx, srv.URL, pair.channel, pair.reg, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = remote.Close() })
	}
	require.Eventually(t, func() bool { return hub.PeerCount() == 3 }, 2*time.Second, 10*time.Millisecond)

	var logB, logC keyLog
	regB.Subscribe("ping", logB.handler)
	regC.Subscribe("ping", logC.handler)

	require.NoError(t, regA.Publish(ctx, "ping"))
	require.Eventually(t, func() bool { return len(logB.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, logC.snapshot())
}

func TestRemoteDoneAfterHubClose(t *testing.T) {
	hub := NewHub(nil, nil, nil)
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	reg := NewRegistry(nil)
	remote, err := Dial(context.Background(), srv.URL, "", reg, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.PeerCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Close()
	select {
	case <-remote.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("remote did not notice hub shutdown")
	}
	assert.Error(t, remote.Send(context.Background(), "k"))
	assert.ErrorIs(t, hub.Send(context.Background(), "k"), ErrHubClosed)
}
