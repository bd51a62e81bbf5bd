package forward

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/realmbridge/internal/infrastructure/logging"
	"github.com/GriffinCanCode/realmbridge/internal/infrastructure/monitoring"
)

// Link forwards commands between two loops in the same process. Commands
// still pass through the codec so both sides only exchange literals.
type Link struct {
	name     string
	from, to Loop
	logger   *zap.Logger
	metrics  *monitoring.Metrics

	mu      sync.RWMutex
	handler Handler
	closed  atomic.Bool
}

// LinkOption configures a Link
type LinkOption func(*Link)

// WithLogger sets the link logger
func WithLogger(logger *zap.Logger) LinkOption {
	return func(l *Link) { l.logger = logging.OrNop(logger) }
}

// WithMetrics sets the metrics collector
func WithMetrics(metrics *monitoring.Metrics) LinkOption {
	return func(l *Link) { l.metrics = metrics }
}

// NewLink creates a link that sends from one loop to the other. The link is
// unavailable until a handler is bound.
func NewLink(name string, from, to Loop, opts ...LinkOption) *Link {
	l := &Link{
		name:   name,
		from:   from,
		to:     to,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With(zap.String("link", name))
	return l
}

// Bind sets the handler that runs commands on the receiving loop.
func (l *Link) Bind(h Handler) {
	l.mu.Lock()
	l.handler = h
	l.mu.Unlock()
}

// Close makes the link unavailable. Commands already queued still run.
func (l *Link) Close() error {
	l.closed.Store(true)
	return nil
}

// Available implements Forwarder. A link whose receiving loop has closed is
// unavailable.
func (l *Link) Available() bool {
	return l.current() != nil
}

func (l *Link) current() Handler {
	if l.closed.Load() || l.to.Closed() {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.handler
}

// Forward implements Forwarder
func (l *Link) Forward(ctx context.Context, cmd Command) (res Result, err error) {
	timer := monitoring.NewTimer(l.metrics, l.name, cmd.Kind().String(), monitoring.ModeBlocking)
	defer func() { timer.Stop(firstErr(err, res.Err())) }()

	h := l.current()
	if h == nil {
		return Result{}, ErrUnavailable
	}

	data, err := EncodeCommand(cmd)
	if err != nil {
		return Result{}, err
	}

	var out []byte
	if err := l.to.Do(ctx, func() { out = l.deliver(h, data) }); err != nil {
		return Result{}, fmt.Errorf("forward %s over %s: %w", cmd.Kind(), l.name, l.unavailable(err))
	}

	return DecodeResult(out)
}

// ForwardAsync implements Forwarder
func (l *Link) ForwardAsync(cmd Command, cont func(Result)) error {
	h := l.current()
	if h == nil {
		return ErrUnavailable
	}

	data, err := EncodeCommand(cmd)
	if err != nil {
		return err
	}

	timer := monitoring.NewTimer(l.metrics, l.name, cmd.Kind().String(), monitoring.ModeAsync)
	err = l.to.Post(func() {
		out := l.deliver(h, data)

		res, err := DecodeResult(out)
		if err != nil {
			res = Fail(CodeInternal, "%v", err)
		}
		timer.Stop(res.Err())

		if cont == nil {
			return
		}
		if err := l.from.Post(func() { cont(res) }); err != nil {
			l.logger.Debug("Dropping continuation", zap.Stringer("kind", cmd.Kind()), zap.Error(err))
		}
	})
	if err != nil {
		err = l.unavailable(err)
		timer.Stop(err)
		return fmt.Errorf("forward %s over %s: %w", cmd.Kind(), l.name, err)
	}
	return nil
}

// unavailable reports err as ErrUnavailable once the receiving loop is gone.
func (l *Link) unavailable(err error) error {
	if l.to.Closed() && !errors.Is(err, ErrUnavailable) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

// deliver decodes and handles one command on the receiving loop.
func (l *Link) deliver(h Handler, data []byte) (out []byte) {
	res := Dispatch(h, data, l.logger)

	out, err := EncodeResult(res)
	if err != nil {
		l.logger.Warn("Result not encodable", zap.Error(err))
		out, _ = EncodeResult(Fail(CodeInternal, "%v", err))
	}
	return out
}

// Dispatch decodes data and runs it through h, turning decode errors and
// handler panics into failed results.
func Dispatch(h Handler, data []byte, logger *zap.Logger) (res Result) {
	cmd, err := DecodeCommand(data)
	if err != nil {
		return Fail(CodeInvalidArgument, "%v", err)
	}

	defer func() {
		if p := recover(); p != nil {
			logging.OrNop(logger).Error("Command handler panicked",
				zap.Stringer("kind", cmd.Kind()),
				zap.Any("panic", p),
			)
			res = Fail(CodeInternal, "%s: %v", cmd.Kind(), p)
		}
	}()

	return h.Handle(cmd)
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
