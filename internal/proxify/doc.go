/*
Package proxify makes objects that live in one realm usable from another.

The origin realm gets a substitute constructor for each proxified type.
Instances expose the declared attributes, methods and onX handler slots, but
every operation becomes a command for the destination realm, where the real
object lives:

	construction, attribute reads and writes   blocking forward
	method calls                                async forward, returns a Promise
	onX handlers, addEventListener              events replayed from the destination

Objects are identified across the boundary by (type name, id). Ids are
allocated by the destination, start at 0 and are never reused.

# Lifecycle

	Constructing -> Live -> Deleted

A proxy constructed while the destination is unreachable is Detached and
every operation on it does nothing. Operations on a Deleted proxy throw.

Nothing is collected across the boundary. A real object stays alive in the
destination until the origin calls Proxify.deleteOriginProxyObject, or the
type is taken down, however many origin references were dropped. Deleting
also detaches the destination listeners, so late native events are not
forwarded for dead ids.

# Ordering

Commands from the origin run on the destination in the order they were
issued, blocking and async alike, so an attribute read observes every
method call issued before it. Events travel the other way on their own queue
and have no ordering relative to method results.

The origin may block on the destination but never the reverse. Two realms
that both proxify types from each other in blocking mode can deadlock and are
not supported.

# Usage

	rt := proxify.NewRuntime(originRealm, destinationRealm, proxify.WithLogger(logger))
	if err := rt.Install(ctx); err != nil {
		return err
	}

	_, err := originRealm.Execute(ctx, `
		Proxify.setupOriginProxyType("Req", ["status"], ["send"], ["onDone"]);
		var req = new Req();
		req.onDone = function (e) { console.log(e.target.status); };
		req.send();
	`)
*/
package proxify
