package realm

import (
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

type timer struct {
	t        *time.Timer
	fn       goja.Callable
	args     []goja.Value
	interval time.Duration
	repeat   bool
}

// timers backs setTimeout and friends. The map is only touched on the loop;
// expiry posts a task instead of calling into the runtime directly.
type timers struct {
	realm  *Realm
	nextID int64
	active map[int64]*timer
}

func newTimers(r *Realm) *timers {
	return &timers{realm: r, active: make(map[int64]*timer)}
}

func (ts *timers) install(vm *goja.Runtime) {
	vm.Set("setTimeout", ts.makeSet(vm, false))
	vm.Set("setInterval", ts.makeSet(vm, true))
	vm.Set("clearTimeout", ts.clear)
	vm.Set("clearInterval", ts.clear)
}

func (ts *timers) makeSet(vm *goja.Runtime, repeat bool) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			panic(vm.NewTypeError("callback must be a function"))
		}

		delay := time.Duration(call.Argument(1).ToInteger()) * time.Millisecond
		if delay < 0 {
			delay = 0
		}

		var args []goja.Value
		if len(call.Arguments) > 2 {
			args = append(args, call.Arguments[2:]...)
		}

		ts.nextID++
		id := ts.nextID
		tm := &timer{fn: fn, args: args, interval: delay, repeat: repeat}
		ts.active[id] = tm
		ts.arm(id, tm)

		return vm.ToValue(id)
	}
}

func (ts *timers) arm(id int64, tm *timer) {
	tm.t = time.AfterFunc(tm.interval, func() {
		_ = ts.realm.Post(func() { ts.fire(id, tm) })
	})
}

func (ts *timers) fire(id int64, tm *timer) {
	// cleared, or replaced after a Reset
	if ts.realm.timers != ts || ts.active[id] != tm {
		return
	}

	if tm.repeat {
		ts.arm(id, tm)
	} else {
		delete(ts.active, id)
	}

	if _, err := tm.fn(goja.Undefined(), tm.args...); err != nil {
		ts.realm.logger.Warn("Timer callback failed", zap.Int64("timer", id), zap.Error(err))
	}
}

func (ts *timers) clear(call goja.FunctionCall) goja.Value {
	id := call.Argument(0).ToInteger()
	if tm, ok := ts.active[id]; ok {
		tm.t.Stop()
		delete(ts.active, id)
	}
	return goja.Undefined()
}

func (ts *timers) stopAll() {
	for id, tm := range ts.active {
		tm.t.Stop()
		delete(ts.active, id)
	}
}
