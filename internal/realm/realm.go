package realm

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/realmbridge/internal/infrastructure/logging"
)

type task struct {
	fn       func()
	done     chan struct{} // nil for posted tasks
	err      error
	canceled atomic.Bool
}

// Realm is a goja runtime driven by its own loop goroutine.
type Realm struct {
	id     string
	config Config
	logger *zap.Logger

	// loop only
	vm     *goja.Runtime
	timers *timers

	// current mirrors vm for Interrupt from other goroutines
	current atomic.Pointer[goja.Runtime]

	mu     sync.Mutex
	queue  []*task
	closed bool

	wake    chan struct{}
	stopped chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates a realm and starts its loop. The returned realm has its
// globals installed and Init already run.
func New(config Config, logger *zap.Logger) (*Realm, error) {
	ctx, cancel := context.WithCancel(context.Background())

	r := &Realm{
		id:      uuid.NewString(),
		config:  config,
		logger:  logging.OrNop(logger).With(zap.String("realm", config.Name)),
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}

	go r.loop()

	var setupErr error
	if err := r.Do(context.Background(), func() { setupErr = r.setup() }); err != nil {
		r.Close()
		return nil, err
	}
	if setupErr != nil {
		r.Close()
		return nil, fmt.Errorf("realm %s setup: %w", config.Name, setupErr)
	}

	r.logger.Debug("Realm started", zap.String("id", r.id))
	return r, nil
}

// ID returns the realm's unique identifier
func (r *Realm) ID() string { return r.id }

// Name returns the configured realm name
func (r *Realm) Name() string { return r.config.Name }

// Logger returns the realm's logger
func (r *Realm) Logger() *zap.Logger { return r.logger }

// VM returns the runtime. It must only be used from a task on this realm.
func (r *Realm) VM() *goja.Runtime { return r.vm }

// Context is cancelled when the realm closes.
func (r *Realm) Context() context.Context { return r.ctx }

// Do runs fn on the loop and waits for it to finish. If ctx ends first, Do
// returns ctx.Err() and fn is skipped unless it already started.
func (r *Realm) Do(ctx context.Context, fn func()) error {
	t := &task{fn: fn, done: make(chan struct{})}
	if err := r.enqueue(t); err != nil {
		return err
	}

	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		t.canceled.Store(true)
		return ctx.Err()
	}
}

// Post queues fn on the loop without waiting.
func (r *Realm) Post(fn func()) error {
	return r.enqueue(&task{fn: fn})
}

// Execute runs script on the loop. The VM is interrupted when ctx ends or
// the configured timeout elapses.
func (r *Realm) Execute(ctx context.Context, script string) (*Result, error) {
	return r.ExecuteNamed(ctx, "", script)
}

// ExecuteNamed is Execute with a script name used in stack traces.
func (r *Realm) ExecuteNamed(ctx context.Context, name, script string) (*Result, error) {
	var (
		result *Result
		runErr error
	)
	err := r.Do(ctx, func() {
		result, runErr = r.execute(ctx, name, script)
	})
	if err != nil {
		return nil, err
	}
	return result, runErr
}

func (r *Realm) execute(ctx context.Context, name, script string) (*Result, error) {
	start := time.Now()
	vm := r.vm

	var timeout <-chan time.Time
	if r.config.Timeout > 0 {
		timer := time.NewTimer(r.config.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-timeout:
			vm.Interrupt("execution timeout exceeded")
		case <-ctx.Done():
			vm.Interrupt("context cancelled")
		case <-r.ctx.Done():
			vm.Interrupt(ErrClosed.Error())
		case <-stop:
		}
	}()

	val, err := vm.RunScript(name, script)

	close(stop)
	wg.Wait()
	vm.ClearInterrupt()

	if err != nil {
		return nil, err
	}

	return &Result{
		Value:    exportValue(val),
		Raw:      val,
		Duration: time.Since(start),
	}, nil
}

// Reset swaps in a fresh runtime, cancels pending timers and runs Init again.
func (r *Realm) Reset(ctx context.Context) error {
	var setupErr error
	if err := r.Do(ctx, func() { setupErr = r.setup() }); err != nil {
		return err
	}
	return setupErr
}

// Close stops the loop. Tasks still queued are dropped and their waiters
// get ErrClosed. Close must not be called from a task on this realm.
func (r *Realm) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.stopped
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	if vm := r.current.Load(); vm != nil {
		vm.Interrupt(ErrClosed.Error())
	}
	r.signal()
	<-r.stopped

	r.logger.Debug("Realm closed", zap.String("id", r.id))
	return nil
}

// Closed reports whether Close has been called.
func (r *Realm) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Realm) enqueue(t *task) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	r.queue = append(r.queue, t)
	r.mu.Unlock()

	r.signal()
	return nil
}

func (r *Realm) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Realm) loop() {
	defer close(r.stopped)
	defer r.config.Metrics.RealmStopped()
	r.config.Metrics.RealmStarted()

	for {
		t, ok := r.next()
		if !ok {
			r.drain()
			if r.timers != nil {
				r.timers.stopAll()
			}
			return
		}
		r.run(t)
	}
}

func (r *Realm) next() (*task, bool) {
	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return nil, false
		}
		if len(r.queue) > 0 {
			t := r.queue[0]
			r.queue[0] = nil
			r.queue = r.queue[1:]
			r.mu.Unlock()
			return t, true
		}
		r.mu.Unlock()
		<-r.wake
	}
}

// drain fails every task left in the queue after close.
func (r *Realm) drain() {
	r.mu.Lock()
	pending := r.queue
	r.queue = nil
	r.mu.Unlock()

	for _, t := range pending {
		if t.done != nil {
			t.err = ErrClosed
			close(t.done)
		}
	}
}

func (r *Realm) run(t *task) {
	if t.done != nil {
		defer close(t.done)
	}
	if t.canceled.Load() {
		return
	}

	defer func() {
		if p := recover(); p != nil {
			t.err = fmt.Errorf("realm %s: task panic: %v", r.config.Name, p)
			r.logger.Error("Realm task panicked", zap.Any("panic", p))
		}
	}()

	t.fn()
}

// setup runs on the loop.
func (r *Realm) setup() error {
	if r.timers != nil {
		r.timers.stopAll()
	}

	vm := goja.New()
	if r.config.MaxCallStackSize > 0 {
		vm.SetMaxCallStackSize(r.config.MaxCallStackSize)
	}

	r.vm = vm
	r.current.Store(vm)
	r.timers = newTimers(r)

	r.setupGlobals()

	if r.config.Init != nil {
		return r.config.Init(r)
	}
	return nil
}

// setupGlobals configures global objects
func (r *Realm) setupGlobals() {
	for _, name := range []string{"require", "process", "module", "exports"} {
		r.vm.GlobalObject().Delete(name)
	}

	if r.config.EnableConsole {
		console := r.vm.NewObject()
		for _, level := range []string{"log", "info", "warn", "error", "debug"} {
			console.Set(level, r.makeConsoleFunc(level))
		}
		r.vm.Set("console", console)
	}

	r.timers.install(r.vm)
}

// makeConsoleFunc creates a console function
func (r *Realm) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	logger := r.logger.Named("console")

	return func(call goja.FunctionCall) goja.Value {
		var msg string
		for i, arg := range call.Arguments {
			if i > 0 {
				msg += " "
			}
			msg += arg.String()
		}

		switch level {
		case "warn":
			logger.Warn(msg)
		case "error":
			logger.Error(msg)
		case "debug":
			logger.Debug(msg)
		default:
			logger.Info(msg)
		}
		return goja.Undefined()
	}
}

// exportValue converts goja value to Go value
func exportValue(val goja.Value) interface{} {
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil
	}
	return val.Export()
}
