package proxify

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/realmbridge/internal/forward"
	"github.com/GriffinCanCode/realmbridge/internal/realm"
)

// reqScript defines the real Req type used by destination realms in tests.
const reqScript = `
var instances = [];
function Req() {
	this.status = 0;
	this._listeners = {};
	instances.push(this);
}
Req.prototype.send = function (body) {
	var self = this;
	setTimeout(function () {
		self.status = 200;
		if (typeof self.onDone === 'function') self.onDone({ type: 'done', code: 7 });
		self.dispatch('done', { code: 7 });
	}, 0);
	return 'sent:' + body;
};
Req.prototype.add = function (a, b) { return a + b; };
Req.prototype.bump = function () { this.status += 1; };
Req.prototype.fail = function () { throw new Error('nope'); };
Req.prototype.addEventListener = function (type, fn) {
	(this._listeners[type] = this._listeners[type] || []).push(fn);
};
Req.prototype.removeEventListener = function (type, fn) {
	var l = this._listeners[type] || [];
	var i = l.indexOf(fn);
	if (i >= 0) l.splice(i, 1);
};
Req.prototype.dispatch = function (type, extra) {
	var l = (this._listeners[type] || []).slice();
	for (var i = 0; i < l.length; i++) {
		var e = { type: type };
		for (var k in extra) e[k] = extra[k];
		l[i].call(this, e);
	}
};
Req.prototype.listenerCount = function (type) {
	return (this._listeners[type] || []).length;
};
`

// setupReq proxifies Req in an origin realm with the full test surface.
const setupReq = `Proxify.setupOriginProxyType('Req', ['status'], ['send', 'add', 'bump', 'fail'], ['onDone']);`

func newRealm(t *testing.T, name string) *realm.Realm {
	t.Helper()
	r, err := realm.New(realm.DefaultConfig(name), nil)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func run(t *testing.T, r *realm.Realm, script string) interface{} {
	t.Helper()
	res, err := r.Execute(context.Background(), script)
	require.NoError(t, err)
	return res.Value
}

func onLoop(t *testing.T, r *realm.Realm, fn func()) {
	t.Helper()
	require.NoError(t, r.Do(context.Background(), fn))
}

func eventually(t *testing.T, r *realm.Realm, script string) {
	t.Helper()
	require.Eventually(t, func() bool {
		res, err := r.Execute(context.Background(), script)
		return err == nil && res.Value == true
	}, 2*time.Second, 10*time.Millisecond, script)
}

// recorder is a destination->origin forwarder that only records.
type recorder struct {
	mu   sync.Mutex
	cmds []forward.Command
}

func (r *recorder) Available() bool { return true }

func (r *recorder) Forward(_ context.Context, cmd forward.Command) (forward.Result, error) {
	r.record(cmd)
	return forward.Success(nil), nil
}

func (r *recorder) ForwardAsync(cmd forward.Command, _ func(forward.Result)) error {
	r.record(cmd)
	return nil
}

func (r *recorder) record(cmd forward.Command) {
	r.mu.Lock()
	r.cmds = append(r.cmds, cmd)
	r.mu.Unlock()
}

func (r *recorder) Commands() []forward.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]forward.Command(nil), r.cmds...)
}

// counting wraps a forwarder and counts every command sent through it.
type counting struct {
	forward.Forwarder
	calls atomic.Int64
}

func (c *counting) Forward(ctx context.Context, cmd forward.Command) (forward.Result, error) {
	c.calls.Add(1)
	return c.Forwarder.Forward(ctx, cmd)
}

func (c *counting) ForwardAsync(cmd forward.Command, cont func(forward.Result)) error {
	c.calls.Add(1)
	return c.Forwarder.ForwardAsync(cmd, cont)
}

type pair struct {
	rt          *Runtime
	origin      *realm.Realm
	destination *realm.Realm
}

func newPair(t *testing.T, opts ...Option) *pair {
	t.Helper()
	origin := newRealm(t, "origin")
	destination := newRealm(t, "destination")
	run(t, destination, reqScript)

	rt := NewRuntime(origin, destination, opts...)
	require.NoError(t, rt.Install(context.Background()))
	t.Cleanup(func() { rt.Close(context.Background()) })

	return &pair{rt: rt, origin: origin, destination: destination}
}

func (p *pair) destinationLen(t *testing.T, typeName string) int {
	t.Helper()
	var n int
	onLoop(t, p.destination, func() { n = p.rt.Destination().Len(typeName) })
	return n
}
