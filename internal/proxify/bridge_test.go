package proxify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/GriffinCanCode/realmbridge/internal/forward"
)

func TestEndToEndEventHandler(t *testing.T) {
	p := newPair(t)

	run(t, p.origin, setupReq+`
		var req = new Req();
		var observed = null;
		var sent = null;
		req.onDone = function (e) {
			observed = {
				sameTarget: e.target === req,
				status: req.status,
				type: e.type,
				code: e.code
			};
		};
		req.send('payload').then(function (v) { sent = v; });
	`)

	eventually(t, p.origin, "observed !== null && sent !== null")
	assert.JSONEq(t,
		`{"sameTarget":true,"status":200,"type":"done","code":7}`,
		run(t, p.origin, "JSON.stringify(observed)").(string),
	)
	assert.Equal(t, "sent:payload", run(t, p.origin, "sent"))
}

func TestAttributeRoundTrip(t *testing.T) {
	p := newPair(t)

	ok := run(t, p.origin, setupReq+`
		var r = new Req();
		[5, 'text', true, null, 1.5, 0, '', -3].every(function (v) {
			r.status = v;
			return r.status === v;
		});
	`)
	assert.Equal(t, true, ok)

	var status interface{}
	onLoop(t, p.destination, func() {
		status, _ = p.rt.Destination().GetDestinationProxyObjectAttribute("Req", 0, "status")
	})
	assert.Equal(t, int64(-3), status)
}

func TestAttributeObjectsCrossAsData(t *testing.T) {
	p := newPair(t)

	ok := run(t, p.origin, setupReq+`
		var r = new Req();
		r.status = { code: 1, tags: ['a', 'b'], skip: function () {} };
		var back = r.status;
		back.code === 1 && back.tags.length === 2 && back.skip === undefined;
	`)
	assert.Equal(t, true, ok)
}

func TestMethodForwarding(t *testing.T) {
	p := newPair(t)

	run(t, p.origin, setupReq+`
		var r = new Req();
		var got = null, failed = null;
		r.add(1, 2).then(function (v) { got = v; });
		r.fail().catch(function (e) { failed = e.message; });
	`)

	eventually(t, p.origin, "got === 3 && failed !== null")
	assert.Contains(t, run(t, p.origin, "failed"), "nope")
	assert.Equal(t, run(t, p.destination, "new Req().add(1, 2)"), run(t, p.origin, "got"))
}

func TestMethodCallsRunInOrder(t *testing.T) {
	p := newPair(t)

	ok := run(t, p.origin, setupReq+`
		var r = new Req();
		r.status = 0;
		r.bump();
		r.bump();
		r.status === 2;
	`)
	assert.Equal(t, true, ok)
}

func TestFunctionArgumentsAreRejected(t *testing.T) {
	p := newPair(t)

	ok := run(t, p.origin, setupReq+`
		var r = new Req();
		var threw = false;
		try { r.add(function () {}, 1); } catch (e) { threw = e instanceof TypeError; }
		threw;
	`)
	assert.Equal(t, true, ok)
}

func TestListenerDeduplication(t *testing.T) {
	p := newPair(t)

	run(t, p.origin, setupReq+`
		var r = new Req();
		var count = 0, other = 0, lastTarget = null;
		function l(e) { count++; lastTarget = e.currentTarget; }
		function m() { other++; }
		r.addEventListener('done', l);
		r.addEventListener('done', l);
		r.addEventListener('done', m);
		r.removeEventListener('done', m);
		r.send('x');
	`)

	eventually(t, p.origin, "count === 1")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, true, run(t, p.origin, "count === 1 && other === 0 && lastTarget === r"))
	assert.Equal(t, int64(1), run(t, p.destination, "instances[0].listenerCount('done')"))

	info, ok, err := p.rt.Bridge().Lookup(context.Background(), "Req", 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StateLive, info.State)
	assert.Equal(t, map[string]int{"done": 1}, info.Listeners)
}

func TestTakedownRestoresBinding(t *testing.T) {
	p := newPair(t)

	ok := run(t, p.origin, `
		function Req() { this.local = true; }
		var before = Req;
		`+setupReq+`
		var replaced = Req !== before;
		var keep = new Req();
		Proxify.takedownOriginProxyType('Req');
		var deleted = false;
		try { keep.status; } catch (e) { deleted = e.message.indexOf('object deleted') >= 0; }
		replaced && deleted && Req === before && new Req().local === true;
	`)
	assert.Equal(t, true, ok)

	ok = run(t, p.origin, `
		Proxify.setupOriginProxyType('Widget', ['x']);
		var defined = typeof Widget === 'function';
		Proxify.takedownOriginProxyType('Widget');
		Proxify.takedownOriginProxyType('Widget');
		defined && typeof Widget === 'undefined';
	`)
	assert.Equal(t, true, ok)

	require.Eventually(t, func() bool { return p.destinationLen(t, "Req") == 0 }, 2*time.Second, 10*time.Millisecond)

	// the type can be proxified again after takedown
	ok = run(t, p.origin, setupReq+`new Req() instanceof Req`)
	assert.Equal(t, true, ok)
}

func TestSetupErrors(t *testing.T) {
	p := newPair(t)

	ok := run(t, p.origin, `
		function typeError(f) {
			try { f(); } catch (e) { return e instanceof TypeError; }
			return false;
		}
		[
			function () { Proxify.setupOriginProxyType(); },
			function () { Proxify.setupOriginProxyType('Req'); },
			function () { Proxify.setupOriginProxyType('Req', 'status'); },
			function () { Proxify.setupOriginProxyType('Req', ['a', 'a']); },
			function () { Proxify.setupOriginProxyType('Req', ['status'], ['addEventListener']); },
			function () { Proxify.preset('Nope'); }
		].every(typeError);
	`)
	assert.Equal(t, true, ok)

	run(t, p.origin, setupReq)
	ok = run(t, p.origin, `
		var dup = false;
		try { Proxify.setupOriginProxyType('Req', ['status']); } catch (e) { dup = e instanceof TypeError; }
		dup;
	`)
	assert.Equal(t, true, ok)

	err := p.rt.Bridge().SetupOriginProxyType(context.Background(), "", []string{"x"}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestUnavailableIsNoOp(t *testing.T) {
	r := newRealm(t, "origin")
	b := NewBridge(NewOrigin(r, forward.Unavailable{}))
	require.NoError(t, b.Install(context.Background()))

	out := run(t, r, `
		var results = [
			Proxify.setupOriginProxyType('Req', ['status']),
			Proxify.setupOriginProxyType(''),
			Proxify.setupOriginProxyType(),
			Proxify.takedownOriginProxyType('Req'),
			Proxify.deleteOriginProxyObject({}),
			Proxify.xhr(),
			Proxify.preset('Nope'),
			Proxify.console(),
			Proxify.available()
		];
		JSON.stringify(results) + ':' + (typeof Req);
	`)
	assert.Equal(t, "[null,null,null,null,null,null,null,null,false]:undefined", out)

	ctx := context.Background()
	assert.NoError(t, b.SetupOriginProxyType(ctx, "", nil, nil, nil))
	assert.NoError(t, b.SetupPreset(ctx, "Audio"))
	assert.NoError(t, b.TakedownOriginProxyType(ctx, "Req"))
	assert.NoError(t, b.DeleteOriginProxyObject(ctx, nil))
	assert.Empty(t, b.Origin().Types())
}

func TestDestinationRealmGoneIsNoOp(t *testing.T) {
	p := newPair(t)
	run(t, p.origin, setupReq+`var r = new Req();`)

	require.NoError(t, p.rt.DestinationRealm().Close())

	out := run(t, p.rt.OriginRealm(), `
		var results = [r.send('x'), r.status, Proxify.available()];
		var late = new Req();
		results.push(late.send('y'), late.status);
		JSON.stringify(results);
	`)
	assert.Equal(t, `[null,null,false,null,null]`, out)
	assert.Equal(t, true, run(t, p.origin, "r.send('x') === undefined && late.status === undefined"))

	onLoop(t, p.origin, func() {
		vm := p.origin.VM()

		live := p.rt.Origin().HandleOf(vm.Get("r"))
		require.NotNil(t, live)
		assert.Equal(t, StateLive, live.State())
		assert.Equal(t, int64(0), live.ID())
		assert.Equal(t, "Req", live.TypeName())
		assert.NotNil(t, live.Object())

		detached := p.rt.Origin().HandleOf(vm.Get("late"))
		require.NotNil(t, detached)
		assert.Equal(t, StateDetached, detached.State())

		assert.Nil(t, p.rt.Origin().HandleOf(vm.ToValue(1)))
	})
}

func TestMethodWithoutResultResolvesUndefined(t *testing.T) {
	p := newPair(t)

	run(t, p.origin, setupReq+`
		var r = new Req();
		var settled = false, value = null;
		r.bump().then(function (v) { settled = true; value = v; });
	`)
	eventually(t, p.origin, "settled")
	assert.Equal(t, true, run(t, p.origin, "value === undefined"))
}

func TestProxiesDetachWhenLinkCloses(t *testing.T) {
	p := newPair(t)
	run(t, p.origin, setupReq)

	require.NoError(t, p.rt.toDestination.Close())

	ok := run(t, p.origin, `
		var r = new Req();
		r.status = 5;
		r.onDone = function () {};
		r.addEventListener('done', function () {});
		r.status === undefined && r.send('x') === undefined && r.onDone === undefined;
	`)
	assert.Equal(t, true, ok)
	assert.Zero(t, p.destinationLen(t, "Req"))
}

func TestDeletedObjectThrows(t *testing.T) {
	origin := newRealm(t, "origin")
	destination := newRealm(t, "destination")
	run(t, destination, reqScript)

	toDestination := forward.NewLink(DirectionToDestination, origin, destination)
	toOrigin := forward.NewLink(DirectionToOrigin, destination, origin)
	counter := &counting{Forwarder: toDestination}

	o := NewOrigin(origin, counter)
	d := NewDestination(destination, toOrigin)
	toDestination.Bind(d)
	toOrigin.Bind(o)
	require.NoError(t, NewBridge(o).Install(context.Background()))

	run(t, origin, setupReq+`
		var r = new Req();
		Proxify.deleteOriginProxyObject(r);
		Proxify.deleteOriginProxyObject(r);
		Proxify.deleteOriginProxyObject(42);
	`)
	before := counter.calls.Load()

	out := run(t, origin, `
		var errors = [];
		[
			function () { return r.status; },
			function () { r.status = 1; },
			function () { r.send('x'); },
			function () { r.onDone = null; },
			function () { r.addEventListener('done', function () {}); }
		].forEach(function (f) {
			try { f(); errors.push(null); } catch (e) { errors.push(e.message); }
		});
		errors;
	`)

	messages, ok := out.([]interface{})
	require.True(t, ok)
	require.Len(t, messages, 5)
	for _, msg := range messages {
		require.IsType(t, "", msg)
		assert.Contains(t, msg, "object deleted")
	}
	assert.Equal(t, before, counter.calls.Load())

	require.Eventually(t, func() bool {
		var n int
		onLoop(t, destination, func() { n = d.Len("Req") })
		return n == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDroppedReferencesStayLive(t *testing.T) {
	p := newPair(t)

	run(t, p.origin, setupReq+`
		var r = new Req();
		r = null;
	`)
	assert.Equal(t, 1, p.destinationLen(t, "Req"))

	_, ok, err := p.rt.Bridge().Lookup(context.Background(), "Req", 0)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, p.rt.Bridge().TakedownOriginProxyType(context.Background(), "Req"))
	require.Eventually(t, func() bool { return p.destinationLen(t, "Req") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestConsoleForwarding(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	p := newPair(t, WithLogger(zap.New(core)))

	ok := run(t, p.origin, `
		var original = console;
		Proxify.console();
		var replaced = console !== original;
		console.log('hi', { a: 1 });
		console.assert(false, 'broken');
		Proxify.deproxifyConsole();
		replaced && console === original;
	`)
	assert.Equal(t, true, ok)

	require.Eventually(t, func() bool {
		return logs.FilterMessage(`Proxified log: hi {"a":1}`).Len() == 1 &&
			logs.FilterMessage("Proxified log: Assertion failed: broken").Len() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPresetsAndGoSetup(t *testing.T) {
	p := newPair(t)
	ctx := context.Background()

	ok := run(t, p.origin, `
		Proxify.xhr();
		Proxify.audio();
		typeof XMLHttpRequest === 'function' && typeof Audio === 'function';
	`)
	assert.Equal(t, true, ok)

	require.NoError(t, p.rt.Bridge().SetupOriginProxyType(ctx, "Req", []string{"status"}, []string{"add"}, nil))
	assert.ElementsMatch(t, []string{"Audio", "Req", "XMLHttpRequest"}, p.rt.Origin().Types())

	require.NoError(t, p.rt.Close(ctx))
	assert.Equal(t, true, run(t, p.origin, "typeof XMLHttpRequest === 'undefined' && typeof Req === 'undefined'"))
}
