package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/realmbridge/internal/forward"
	"github.com/GriffinCanCode/realmbridge/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/realmbridge/internal/proxify"
	"github.com/GriffinCanCode/realmbridge/internal/realm"
)

type harness struct {
	client      *Peer
	server      *Peer
	origin      *realm.Realm
	destination *realm.Realm
}

// bindFunc returns the handler for the server side of a connection, or nil
// to leave it unbound.
type bindFunc func(r *realm.Realm, p *Peer) forward.Handler

func newRealm(t *testing.T, name string) *realm.Realm {
	t.Helper()
	r, err := realm.New(realm.DefaultConfig(name), nil)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func newHarness(t *testing.T, bind bindFunc, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		origin:      newRealm(t, "origin"),
		destination: newRealm(t, "destination"),
	}

	upgrader := websocket.Upgrader{}
	accepted := make(chan *Peer, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		p := NewPeer(conn, h.destination, WithName("server"))
		if handler := bind(h.destination, p); handler != nil {
			p.Bind(handler)
		}
		accepted <- p
		_ = p.Run(context.Background())
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, err := Dial(context.Background(), url, h.origin, append([]Option{WithName("client")}, opts...)...)
	require.NoError(t, err)
	go func() { _ = client.Run(context.Background()) }()
	t.Cleanup(func() { client.Close() })

	h.client = client
	select {
	case h.server = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("server peer not accepted")
	}
	return h
}

func echo(r *realm.Realm, p *Peer) forward.Handler {
	return forward.HandlerFunc(func(cmd forward.Command) forward.Result {
		return forward.Success(cmd.Kind().String() + ":" + cmd.Type())
	})
}

func TestPeerForward(t *testing.T) {
	h := newHarness(t, echo)
	require.True(t, h.client.Available())

	res, err := h.client.Forward(context.Background(), forward.Create{TypeName: "Req"})
	require.NoError(t, err)
	assert.Equal(t, "create:Req", res.Value)

	got := make(chan forward.Result, 1)
	require.NoError(t, h.client.ForwardAsync(forward.TakedownType{TypeName: "Req"}, func(res forward.Result) {
		got <- res
	}))

	select {
	case res := <-got:
		assert.Equal(t, "takedown_type:Req", res.Value)
	case <-time.After(2 * time.Second):
		t.Fatal("continuation did not run")
	}
}

func TestPeerRequestsRunInOrder(t *testing.T) {
	var seen []string
	h := newHarness(t, func(r *realm.Realm, p *Peer) forward.Handler {
		return forward.HandlerFunc(func(cmd forward.Command) forward.Result {
			seen = append(seen, cmd.Type())
			return forward.Success(len(seen))
		})
	})

	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, h.client.ForwardAsync(forward.TakedownType{TypeName: name}, nil))
	}
	res, err := h.client.Forward(context.Background(), forward.TakedownType{TypeName: "d"})
	require.NoError(t, err)

	assert.Equal(t, float64(4), res.Value)
	require.NoError(t, h.destination.Do(context.Background(), func() {
		assert.Equal(t, []string{"a", "b", "c", "d"}, seen)
	}))
}

func TestPeerUnboundHandler(t *testing.T) {
	h := newHarness(t, func(*realm.Realm, *Peer) forward.Handler { return nil })

	res, err := h.client.Forward(context.Background(), forward.Create{TypeName: "Req"})
	require.NoError(t, err)
	require.NotNil(t, res.Error)
	assert.Equal(t, forward.CodeUnavailable, res.Error.Code)
}

func TestPeerClose(t *testing.T) {
	h := newHarness(t, echo)

	require.NoError(t, h.client.Close())
	assert.False(t, h.client.Available())

	_, err := h.client.Forward(context.Background(), forward.Create{TypeName: "Req"})
	assert.ErrorIs(t, err, forward.ErrUnavailable)
	assert.ErrorIs(t, h.client.ForwardAsync(forward.Create{TypeName: "Req"}, nil), forward.ErrUnavailable)

	select {
	case <-h.server.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("server peer did not notice the close")
	}
	assert.False(t, h.server.Available())
}

func TestPeerBrokenConnectionIsUnavailable(t *testing.T) {
	h := newHarness(t, echo)

	require.NoError(t, h.client.conn.Close())

	_, err := h.client.Forward(context.Background(), forward.Create{TypeName: "Req"})
	assert.ErrorIs(t, err, forward.ErrUnavailable)
	assert.ErrorIs(t, h.client.ForwardAsync(forward.Create{TypeName: "Req"}, nil), forward.ErrUnavailable)
	assert.False(t, h.client.Available())
}

func TestPeerBreakerOpensOnTimeouts(t *testing.T) {
	h := newHarness(t, func(*realm.Realm, *Peer) forward.Handler {
		return forward.HandlerFunc(func(forward.Command) forward.Result {
			time.Sleep(200 * time.Millisecond)
			return forward.Success(nil)
		})
	}, WithBreaker(resilience.Settings{MaxFailures: 1, Cooldown: time.Minute}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := h.client.Forward(ctx, forward.Create{TypeName: "Req"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Equal(t, resilience.StateOpen, h.client.Breaker().State())
	assert.False(t, h.client.Available())

	_, err = h.client.Forward(context.Background(), forward.Create{TypeName: "Req"})
	assert.ErrorIs(t, err, forward.ErrUnavailable)
}

func TestPeerBridgesRealms(t *testing.T) {
	h := newHarness(t, func(r *realm.Realm, p *Peer) forward.Handler {
		return proxify.NewDestination(r, p)
	})

	_, err := h.destination.Execute(context.Background(), `
		function Counter() { this.value = 0; this.listeners = []; }
		Counter.prototype.inc = function (by) {
			var self = this;
			this.value += by;
			setTimeout(function () {
				if (typeof self.onchange === 'function') self.onchange({ type: 'change', value: self.value });
			}, 0);
			return this.value;
		};
	`)
	require.NoError(t, err)

	origin := proxify.NewOrigin(h.origin, h.client)
	h.client.Bind(origin)
	require.NoError(t, proxify.NewBridge(origin).Install(context.Background()))

	_, err = h.origin.Execute(context.Background(), `
		Proxify.setupOriginProxyType('Counter', ['value'], ['inc'], ['onchange']);
		var c = new Counter();
		var changed = null, returned = null;
		c.onchange = function (e) { changed = { value: e.value, read: c.value, same: e.target === c }; };
		c.inc(5).then(function (v) { returned = v; });
	`)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		res, err := h.origin.Execute(context.Background(), "changed !== null && returned === 5")
		return err == nil && res.Value == true
	}, 3*time.Second, 10*time.Millisecond)

	res, err := h.origin.Execute(context.Background(), "JSON.stringify(changed)")
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":5,"read":5,"same":true}`, res.Value.(string))
}
