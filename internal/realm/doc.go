/*
Package realm provides isolated JavaScript execution contexts.

A Realm is a goja runtime owned by exactly one loop goroutine. Every touch of
the runtime happens inside a task on that loop, so realm state needs no
locking. Tasks run to completion in FIFO order, whether they were queued with
Do (caller waits) or Post (caller does not).

# Usage

	r, err := realm.New(realm.DefaultConfig("destination"), logger)
	if err != nil {
		return err
	}
	defer r.Close()

	res, err := r.Execute(ctx, "1 + 1")

	err = r.Do(ctx, func() {
		r.VM().Set("answer", 42)
	})

Do must not be called from a task already running on the same realm; the
task would wait on itself.

# Globals

Realms expose console (logged through zap), setTimeout, clearTimeout,
setInterval and clearInterval. Timers fire as tasks on the loop. require,
process, module and exports are removed.
*/
package realm
