package proxify

import (
	"context"
	"errors"

	"github.com/GriffinCanCode/realmbridge/internal/forward"
	"github.com/GriffinCanCode/realmbridge/internal/realm"
)

// Link names, also used as the direction label on forward metrics.
const (
	DirectionToDestination = "origin->destination"
	DirectionToOrigin      = "destination->origin"
)

// Runtime pairs an origin and a destination realm in one process. It owns
// both factories and the two links between them; the realms stay owned by
// the caller.
type Runtime struct {
	originRealm      *realm.Realm
	destinationRealm *realm.Realm

	toDestination *forward.Link
	toOrigin      *forward.Link

	origin      *Origin
	destination *Destination
	bridge      *Bridge
}

// NewRuntime wires origin and destination together
func NewRuntime(origin, destination *realm.Realm, opts ...Option) *Runtime {
	o := buildOptions(opts)
	linkOpts := []forward.LinkOption{
		forward.WithLogger(o.logger),
		forward.WithMetrics(o.metrics),
	}

	rt := &Runtime{
		originRealm:      origin,
		destinationRealm: destination,
		toDestination:    forward.NewLink(DirectionToDestination, origin, destination, linkOpts...),
		toOrigin:         forward.NewLink(DirectionToOrigin, destination, origin, linkOpts...),
	}

	rt.origin = NewOrigin(origin, rt.toDestination, opts...)
	rt.destination = NewDestination(destination, rt.toOrigin, opts...)
	rt.bridge = NewBridge(rt.origin)

	rt.toDestination.Bind(rt.destination)
	rt.toOrigin.Bind(rt.origin)
	return rt
}

func (rt *Runtime) Bridge() *Bridge                { return rt.bridge }
func (rt *Runtime) Origin() *Origin                { return rt.origin }
func (rt *Runtime) Destination() *Destination      { return rt.destination }
func (rt *Runtime) OriginRealm() *realm.Realm      { return rt.originRealm }
func (rt *Runtime) DestinationRealm() *realm.Realm { return rt.destinationRealm }

// Install defines the Proxify global in the origin realm.
func (rt *Runtime) Install(ctx context.Context) error {
	return rt.bridge.Install(ctx)
}

// Close takes down every proxified type on both sides and closes the links.
func (rt *Runtime) Close(ctx context.Context) error {
	errOrigin := rt.originRealm.Do(ctx, rt.origin.Close)
	errDest := rt.destinationRealm.Do(ctx, rt.destination.Close)

	rt.toDestination.Close()
	rt.toOrigin.Close()

	return errors.Join(ignoreClosed(errOrigin), ignoreClosed(errDest))
}

func ignoreClosed(err error) error {
	if errors.Is(err, realm.ErrClosed) {
		return nil
	}
	return err
}
