package forward

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when the other realm cannot be reached.
var ErrUnavailable = errors.New("forwarder unavailable")

// Handler runs commands on the receiving realm's loop.
type Handler interface {
	Handle(cmd Command) Result
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(cmd Command) Result

// Handle calls f(cmd)
func (f HandlerFunc) Handle(cmd Command) Result { return f(cmd) }

// Loop is a single-goroutine task queue, as provided by realm.Realm.
type Loop interface {
	Do(ctx context.Context, fn func()) error
	Post(fn func()) error
	Closed() bool
}

// Forwarder sends commands to the other realm.
type Forwarder interface {
	// Available reports whether the other realm can currently be reached.
	Available() bool
	// Forward runs cmd on the other realm and waits for its result.
	Forward(ctx context.Context, cmd Command) (Result, error)
	// ForwardAsync queues cmd and returns immediately. cont, if not nil,
	// later runs on the sender's loop with the result.
	ForwardAsync(cmd Command, cont func(Result)) error
}

// Unavailable is a Forwarder with no other side.
type Unavailable struct{}

func (Unavailable) Available() bool { return false }

func (Unavailable) Forward(context.Context, Command) (Result, error) {
	return Result{}, ErrUnavailable
}

func (Unavailable) ForwardAsync(Command, func(Result)) error {
	return ErrUnavailable
}
