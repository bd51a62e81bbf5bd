package ws

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/realmbridge/internal/forward"
	"github.com/GriffinCanCode/realmbridge/internal/infrastructure/logging"
	"github.com/GriffinCanCode/realmbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/realmbridge/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/realmbridge/internal/shared/id"
)

const writeWait = 10 * time.Second

type pendingCall struct {
	kind  forward.Kind
	ch    chan forward.Result
	cont  func(forward.Result)
	done  func(success bool)
	timer *monitoring.Timer
}

// Peer is one end of a websocket link between two realms.
type Peer struct {
	name           string
	conn           *websocket.Conn
	loop           forward.Loop
	logger         *zap.Logger
	metrics        *monitoring.Metrics
	breaker        *resilience.Breaker
	requestTimeout time.Duration

	writeMu sync.Mutex

	mu      sync.Mutex
	handler forward.Handler
	pending map[string]*pendingCall
	closed  bool

	done      chan struct{}
	closeOnce sync.Once
}

// Option configures a Peer
type Option func(*options)

type options struct {
	name           string
	logger         *zap.Logger
	metrics        *monitoring.Metrics
	breaker        resilience.Settings
	requestTimeout time.Duration
	readLimit      int64
}

// WithName sets the link name used in logs and metrics
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithLogger sets the peer logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics sets the metrics collector
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(o *options) { o.metrics = metrics }
}

// WithBreaker configures the circuit breaker guarding outgoing calls
func WithBreaker(settings resilience.Settings) Option {
	return func(o *options) { o.breaker = settings }
}

// WithRequestTimeout bounds blocking calls whose context has no deadline
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

// WithReadLimit caps the size of an incoming message
func WithReadLimit(n int64) Option {
	return func(o *options) { o.readLimit = n }
}

// NewPeer wraps an established connection. Incoming commands run on loop.
// Call Run to start reading.
func NewPeer(conn *websocket.Conn, loop forward.Loop, opts ...Option) *Peer {
	o := options{
		name:           "ws",
		requestTimeout: 10 * time.Second,
		readLimit:      1 << 20,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if o.readLimit > 0 {
		conn.SetReadLimit(o.readLimit)
	}

	logger := logging.OrNop(o.logger).Named("peer").With(
		zap.String("link", o.name),
		zap.String("remote", conn.RemoteAddr().String()),
	)

	return &Peer{
		name:           o.name,
		conn:           conn,
		loop:           loop,
		logger:         logger,
		metrics:        o.metrics,
		breaker:        resilience.New(o.name, o.breaker),
		requestTimeout: o.requestTimeout,
		pending:        make(map[string]*pendingCall),
		done:           make(chan struct{}),
	}
}

// Dial connects to a realm host and returns the peer for the connection.
func Dial(ctx context.Context, url string, loop forward.Loop, opts ...Option) (*Peer, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, http.Header{})
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return NewPeer(conn, loop, opts...), nil
}

// Bind sets the handler for commands sent by the remote side.
func (p *Peer) Bind(h forward.Handler) {
	p.mu.Lock()
	p.handler = h
	p.mu.Unlock()
}

// Done is closed once the peer has shut down.
func (p *Peer) Done() <-chan struct{} {
	return p.done
}

// Breaker exposes the circuit breaker guarding outgoing calls
func (p *Peer) Breaker() *resilience.Breaker {
	return p.breaker
}

// Available implements forward.Forwarder
func (p *Peer) Available() bool {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	return !closed && p.breaker.Ready()
}

// Forward implements forward.Forwarder
func (p *Peer) Forward(ctx context.Context, cmd forward.Command) (forward.Result, error) {
	if _, ok := ctx.Deadline(); !ok && p.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.requestTimeout)
		defer cancel()
	}

	call := &pendingCall{ch: make(chan forward.Result, 1)}
	callID, err := p.send(cmd, call, monitoring.ModeBlocking)
	if err != nil {
		return forward.Result{}, err
	}

	select {
	case res := <-call.ch:
		return res, nil
	case <-ctx.Done():
		if p.take(callID) != nil {
			call.finish(false, ctx.Err())
		}
		return forward.Result{}, fmt.Errorf("forward %s over %s: %w", cmd.Kind(), p.name, ctx.Err())
	case <-p.done:
		return forward.Result{}, fmt.Errorf("forward %s over %s: %w", cmd.Kind(), p.name, forward.ErrUnavailable)
	}
}

// ForwardAsync implements forward.Forwarder. Without a continuation the
// remote side sends no response.
func (p *Peer) ForwardAsync(cmd forward.Command, cont func(forward.Result)) error {
	call := &pendingCall{cont: cont}
	_, err := p.send(cmd, call, monitoring.ModeAsync)
	return err
}

func (p *Peer) send(cmd forward.Command, call *pendingCall, mode string) (string, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return "", forward.ErrUnavailable
	}

	done, err := p.breaker.Allow()
	if err != nil {
		return "", fmt.Errorf("%w: %v", forward.ErrUnavailable, err)
	}

	body, err := forward.EncodeCommand(cmd)
	if err != nil {
		done(true)
		return "", err
	}

	call.kind = cmd.Kind()
	call.done = done
	call.timer = monitoring.NewTimer(p.metrics, p.name, cmd.Kind().String(), mode)

	reply := call.ch != nil || call.cont != nil
	callID := id.NewCallID().String()

	if reply {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			call.finish(false, forward.ErrUnavailable)
			return "", forward.ErrUnavailable
		}
		p.pending[callID] = call
		p.mu.Unlock()
	}

	err = p.write(frame{
		Type:  frameRequest,
		ID:    callID,
		Async: mode == monitoring.ModeAsync,
		Reply: reply,
		Body:  body,
	})
	if err != nil {
		if !reply || p.take(callID) != nil {
			call.finish(false, err)
		}
		p.shutdown()
		return "", fmt.Errorf("send %s over %s: %w: %w", cmd.Kind(), p.name, forward.ErrUnavailable, err)
	}

	if !reply {
		call.finish(true, nil)
	}
	return callID, nil
}

func (p *Peer) write(f frame) error {
	data, err := encodeFrame(f)
	if err != nil {
		return err
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

func (p *Peer) take(callID string) *pendingCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	call, ok := p.pending[callID]
	if !ok {
		return nil
	}
	delete(p.pending, callID)
	return call
}

// Run reads frames until the connection fails or ctx is cancelled, then
// closes the peer. It returns nil after a normal close.
func (p *Peer) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { p.Close() })
	defer stop()

	var err error
	for {
		var data []byte
		_, data, err = p.conn.ReadMessage()
		if err != nil {
			break
		}

		f, decodeErr := decodeFrame(data)
		if decodeErr != nil {
			p.logger.Warn("Dropping frame", zap.Error(decodeErr))
			continue
		}

		switch f.Type {
		case frameRequest:
			p.serve(f)
		case frameResponse:
			p.resolve(f)
		}
	}

	closing := p.isClosing()
	p.shutdown()

	if closing || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil
	}
	return fmt.Errorf("peer %s: %w", p.name, err)
}

// serve runs one incoming command on the local loop. Posting keeps
// requests in arrival order.
func (p *Peer) serve(f frame) {
	p.mu.Lock()
	h := p.handler
	p.mu.Unlock()

	if h == nil {
		p.reply(f, forward.Fail(forward.CodeUnavailable, "no handler bound on %s", p.name))
		return
	}

	err := p.loop.Post(func() {
		res := forward.Dispatch(h, f.Body, p.logger)
		p.reply(f, res)
	})
	if err != nil {
		p.reply(f, forward.Fail(forward.CodeUnavailable, "%v", err))
	}
}

func (p *Peer) reply(f frame, res forward.Result) {
	if !f.Reply {
		return
	}

	body, err := forward.EncodeResult(res)
	if err != nil {
		p.logger.Warn("Result not encodable", zap.Error(err))
		body, _ = forward.EncodeResult(forward.Fail(forward.CodeInternal, "%v", err))
	}

	if err := p.write(frame{Type: frameResponse, ID: f.ID, Body: body}); err != nil {
		p.logger.Debug("Reply not sent", zap.String("id", f.ID), zap.Error(err))
	}
}

func (p *Peer) resolve(f frame) {
	call := p.take(f.ID)
	if call == nil {
		p.logger.Debug("Response for unknown call", zap.String("id", f.ID))
		return
	}

	res, err := forward.DecodeResult(f.Body)
	if err != nil {
		res = forward.Fail(forward.CodeInternal, "%v", err)
	}
	call.finish(true, res.Err())
	p.deliver(call, res)
}

func (p *Peer) deliver(call *pendingCall, res forward.Result) {
	if call.ch != nil {
		call.ch <- res
		return
	}
	if call.cont == nil {
		return
	}
	if err := p.loop.Post(func() { call.cont(res) }); err != nil {
		p.logger.Debug("Dropping continuation", zap.Stringer("kind", call.kind), zap.Error(err))
	}
}

// Close shuts the connection down. Pending async calls are completed with
// an unavailable failure.
func (p *Peer) Close() error {
	_ = p.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	p.shutdown()
	return nil
}

func (p *Peer) shutdown() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		pending := p.pending
		p.pending = make(map[string]*pendingCall)
		p.mu.Unlock()

		_ = p.conn.Close()
		close(p.done)

		for _, call := range pending {
			call.finish(false, forward.ErrUnavailable)
			if call.cont != nil {
				p.deliver(call, forward.Fail(forward.CodeUnavailable, "%s closed", p.name))
			}
		}
		p.logger.Debug("Peer closed", zap.Int("pending", len(pending)))
	})
}

func (p *Peer) isClosing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// finish reports the transport outcome to the breaker and metrics once.
func (c *pendingCall) finish(success bool, err error) {
	if c.done != nil {
		c.done(success)
		c.done = nil
	}
	if c.timer != nil {
		c.timer.Stop(err)
		c.timer = nil
	}
}
