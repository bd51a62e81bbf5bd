package resilience

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests")
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configures the circuit breaker behavior
type Settings struct {
	// MaxFailures is the number of consecutive failures that opens the circuit
	MaxFailures uint32
	// Cooldown is how long the circuit stays open before probing
	Cooldown time.Duration
	// Probes is the number of calls admitted while half-open
	Probes uint32
	// OnStateChange is called whenever the state changes, outside the lock
	OnStateChange func(name string, from State, to State)
}

// Counts holds the statistics for the circuit breaker
type Counts struct {
	Requests            uint32
	Successes           uint32
	Failures            uint32
	ConsecutiveFailures uint32
}

// Breaker guards a peer link. Callers ask Allow before sending and report
// the outcome through the returned done function.
type Breaker struct {
	name     string
	settings Settings
	now      func() time.Time

	mu         sync.Mutex
	state      State
	counts     Counts
	openedAt   time.Time
	generation uint64
}

// New creates a new circuit breaker with the given settings
func New(name string, settings Settings) *Breaker {
	if settings.MaxFailures == 0 {
		settings.MaxFailures = 5
	}
	if settings.Cooldown == 0 {
		settings.Cooldown = 30 * time.Second
	}
	if settings.Probes == 0 {
		settings.Probes = 1
	}

	return &Breaker{
		name:     name,
		settings: settings,
		now:      time.Now,
		state:    StateClosed,
	}
}

// Name returns the name of the circuit breaker
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state of the circuit breaker
func (b *Breaker) State() State {
	b.mu.Lock()
	state, change := b.currentState()
	b.mu.Unlock()

	change.notify(b)
	return state
}

// Counts returns a copy of the internal counts
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.counts
}

// Ready reports whether a call would currently be admitted without
// consuming a half-open probe.
func (b *Breaker) Ready() bool {
	b.mu.Lock()
	state, change := b.currentState()
	ready := state == StateClosed ||
		(state == StateHalfOpen && b.counts.Requests < b.settings.Probes)
	b.mu.Unlock()

	change.notify(b)
	return ready
}

// Allow admits one call. The returned function must be called exactly once
// with the outcome of the call.
func (b *Breaker) Allow() (func(success bool), error) {
	b.mu.Lock()
	state, change := b.currentState()

	var err error
	switch {
	case state == StateOpen:
		err = ErrCircuitOpen
	case state == StateHalfOpen && b.counts.Requests >= b.settings.Probes:
		err = ErrTooManyRequests
	default:
		b.counts.Requests++
	}
	generation := b.generation
	b.mu.Unlock()

	change.notify(b)
	if err != nil {
		return nil, err
	}

	var once sync.Once
	return func(success bool) {
		once.Do(func() { b.record(generation, success) })
	}, nil
}

// Reset closes the circuit and clears all counts.
func (b *Breaker) Reset() {
	b.mu.Lock()
	change := b.setState(StateClosed)
	b.counts = Counts{}
	b.mu.Unlock()

	change.notify(b)
}

func (b *Breaker) record(generation uint64, success bool) {
	b.mu.Lock()
	state, change := b.currentState()

	// outcomes from before the last transition are stale
	if generation != b.generation {
		b.mu.Unlock()
		change.notify(b)
		return
	}

	var next transition
	if success {
		b.counts.Successes++
		b.counts.ConsecutiveFailures = 0
		if state == StateHalfOpen && b.counts.Successes >= b.settings.Probes {
			next = b.setState(StateClosed)
		}
	} else {
		b.counts.Failures++
		b.counts.ConsecutiveFailures++
		if state == StateHalfOpen || b.counts.ConsecutiveFailures >= b.settings.MaxFailures {
			next = b.setState(StateOpen)
		}
	}
	b.mu.Unlock()

	change.notify(b)
	next.notify(b)
}

type transition struct {
	from, to State
	changed  bool
}

func (t transition) notify(b *Breaker) {
	if t.changed && b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, t.from, t.to)
	}
}

// currentState must be called with mu held.
func (b *Breaker) currentState() (State, transition) {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.settings.Cooldown {
		return StateHalfOpen, b.setState(StateHalfOpen)
	}
	return b.state, transition{}
}

// setState must be called with mu held.
func (b *Breaker) setState(state State) transition {
	if b.state == state {
		return transition{}
	}

	prev := b.state
	b.state = state
	b.generation++
	b.counts = Counts{}
	if state == StateOpen {
		b.openedAt = b.now()
	}

	return transition{from: prev, to: state, changed: true}
}
