package proxify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/realmbridge/internal/forward"
	"github.com/GriffinCanCode/realmbridge/internal/realm"
)

func newDestination(t *testing.T) (*Destination, *realm.Realm, *recorder) {
	t.Helper()
	r := newRealm(t, "destination")
	run(t, r, reqScript)
	rec := &recorder{}
	return NewDestination(r, rec), r, rec
}

func handle(t *testing.T, r *realm.Realm, d *Destination, cmd forward.Command) forward.Result {
	t.Helper()
	var res forward.Result
	onLoop(t, r, func() { res = d.Handle(cmd) })
	return res
}

var setupCmd = forward.SetupType{
	TypeName:      "Req",
	Attributes:    []string{"status"},
	Methods:       []string{"send", "add", "fail"},
	EventHandlers: []string{"onDone"},
}

func TestDestinationCreateAllocatesIncreasingIDs(t *testing.T) {
	d, r, _ := newDestination(t)
	require.True(t, handle(t, r, d, setupCmd).OK())

	var ids []any
	for i := 0; i < 3; i++ {
		res := handle(t, r, d, forward.Create{TypeName: "Req"})
		require.True(t, res.OK())
		ids = append(ids, res.Value)
	}
	handle(t, r, d, forward.Delete{TypeName: "Req", ID: 2})
	res := handle(t, r, d, forward.Create{TypeName: "Req"})

	assert.Equal(t, []any{int64(0), int64(1), int64(2)}, ids)
	assert.Equal(t, int64(3), res.Value)
	assert.Equal(t, 3, d.Len("Req"))
}

func TestDestinationAttributesAndMethods(t *testing.T) {
	d, r, _ := newDestination(t)
	require.True(t, handle(t, r, d, setupCmd).OK())
	require.True(t, handle(t, r, d, forward.Create{TypeName: "Req"}).OK())

	res := handle(t, r, d, forward.SetAttribute{TypeName: "Req", ID: 0, Name: "status", Value: "ready"})
	require.True(t, res.OK())

	res = handle(t, r, d, forward.GetAttribute{TypeName: "Req", ID: 0, Name: "status"})
	assert.Equal(t, "ready", res.Value)

	res = handle(t, r, d, forward.Invoke{TypeName: "Req", ID: 0, Method: "add", Args: []any{1.0, 2.0}})
	require.True(t, res.OK())
	assert.Equal(t, int64(3), res.Value)
}

func TestDestinationFailures(t *testing.T) {
	d, r, _ := newDestination(t)

	tests := []struct {
		name string
		cmd  forward.Command
		code string
	}{
		{"create before setup", forward.Create{TypeName: "Req"}, forward.CodeNotFound},
		{"setup without names", forward.SetupType{TypeName: "Req"}, forward.CodeInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := handle(t, r, d, tt.cmd)
			require.NotNil(t, res.Error)
			assert.Equal(t, tt.code, res.Error.Code)
		})
	}

	require.True(t, handle(t, r, d, setupCmd).OK())
	require.True(t, handle(t, r, d, forward.Create{TypeName: "Req"}).OK())

	tests = []struct {
		name string
		cmd  forward.Command
		code string
	}{
		{"setup twice", setupCmd, forward.CodeInvalidArgument},
		{"unknown id", forward.Invoke{TypeName: "Req", ID: 42, Method: "send"}, forward.CodeNotFound},
		{"undeclared method", forward.Invoke{TypeName: "Req", ID: 0, Method: "dispatch"}, forward.CodeInvalidArgument},
		{"undeclared attribute", forward.GetAttribute{TypeName: "Req", ID: 0, Name: "_listeners"}, forward.CodeInvalidArgument},
		{"method throws", forward.Invoke{TypeName: "Req", ID: 0, Method: "fail"}, forward.CodeCallFailed},
		{"origin-only command", forward.HandlerFired{TypeName: "Req", ID: 0, Handler: "onDone"}, forward.CodeInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := handle(t, r, d, tt.cmd)
			require.NotNil(t, res.Error)
			assert.Equal(t, tt.code, res.Error.Code)
		})
	}

	res := handle(t, r, d, forward.Invoke{TypeName: "Req", ID: 0, Method: "fail"})
	assert.Contains(t, res.Error.Message, "nope")
}

func TestDestinationForwardsEvents(t *testing.T) {
	d, r, rec := newDestination(t)
	require.True(t, handle(t, r, d, setupCmd).OK())
	require.True(t, handle(t, r, d, forward.Create{TypeName: "Req"}).OK())

	require.True(t, handle(t, r, d, forward.AddListener{TypeName: "Req", ID: 0, EventType: "done"}).OK())
	require.True(t, handle(t, r, d, forward.AddListener{TypeName: "Req", ID: 0, EventType: "done"}).OK())
	assert.Equal(t, int64(1), run(t, r, "instances[0].listenerCount('done')"))

	require.True(t, handle(t, r, d, forward.Invoke{TypeName: "Req", ID: 0, Method: "send", Args: []any{"x"}}).OK())

	require.Eventually(t, func() bool { return len(rec.Commands()) == 2 }, 2*time.Second, 10*time.Millisecond)
	cmds := rec.Commands()
	assert.Equal(t, forward.HandlerFired{
		TypeName: "Req",
		ID:       0,
		Handler:  "onDone",
		Event:    map[string]any{"type": "done", "code": int64(7)},
	}, cmds[0])
	assert.Equal(t, forward.ListenerFired{
		TypeName:  "Req",
		ID:        0,
		EventType: "done",
		Event:     map[string]any{"type": "done", "code": int64(7)},
	}, cmds[1])
}

func TestDestinationDeleteDetachesCallbacks(t *testing.T) {
	d, r, rec := newDestination(t)
	require.True(t, handle(t, r, d, setupCmd).OK())
	require.True(t, handle(t, r, d, forward.Create{TypeName: "Req"}).OK())
	require.True(t, handle(t, r, d, forward.AddListener{TypeName: "Req", ID: 0, EventType: "done"}).OK())

	require.True(t, handle(t, r, d, forward.Delete{TypeName: "Req", ID: 0}).OK())
	// deleting again is a no-op
	require.True(t, handle(t, r, d, forward.Delete{TypeName: "Req", ID: 0}).OK())

	assert.Equal(t, int64(0), run(t, r, "instances[0].listenerCount('done')"))
	assert.Equal(t, true, run(t, r, "instances[0].onDone === null"))

	run(t, r, "instances[0].dispatch('done', {})")
	assert.Empty(t, rec.Commands())

	res := handle(t, r, d, forward.GetAttribute{TypeName: "Req", ID: 0, Name: "status"})
	require.NotNil(t, res.Error)
	assert.Equal(t, forward.CodeNotFound, res.Error.Code)
}

func TestDestinationTakedown(t *testing.T) {
	d, r, _ := newDestination(t)
	require.True(t, handle(t, r, d, setupCmd).OK())
	require.True(t, handle(t, r, d, forward.Create{TypeName: "Req"}).OK())
	require.True(t, handle(t, r, d, forward.Create{TypeName: "Req"}).OK())

	require.True(t, handle(t, r, d, forward.TakedownType{TypeName: "Req"}).OK())
	require.True(t, handle(t, r, d, forward.TakedownType{TypeName: "Never"}).OK())
	assert.Zero(t, d.Len("Req"))
	assert.Equal(t, true, run(t, r, "instances[1].onDone === null"))

	// ids keep counting after a fresh setup
	require.True(t, handle(t, r, d, setupCmd).OK())
	res := handle(t, r, d, forward.Create{TypeName: "Req"})
	assert.Equal(t, int64(2), res.Value)
}
