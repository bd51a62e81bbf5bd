/*
Package forward is the command channel between two realms.

A realm never touches another realm's objects. It sends a Command describing
the operation to run on the other side and receives a Result. Commands form a
closed set of typed payloads; every one is encoded through the JSON codec
before it crosses a boundary, so only literal values (null, booleans, numbers,
strings, arrays and objects) ever reach the receiver.

A Forwarder offers two modes:

	Forward      blocks the caller until the receiver has run the command
	ForwardAsync queues the command and later runs a continuation on the
	             caller's own loop

Commands sent from one realm in one direction are handled in the order they
were sent, whichever mode was used. No ordering is promised across the two
directions.

Link is the in-process Forwarder between two loops. transport/ws provides one
over a websocket.
*/
package forward
