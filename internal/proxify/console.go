package proxify

import (
	"strings"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/realmbridge/internal/forward"
)

var consoleLevels = []string{"log", "error", "info", "debug", "warn"}

type consoleProxy struct {
	original goja.Value
}

// proxifyConsole replaces console with one that still logs locally and also
// forwards every message to the other realm.
func (o *Origin) proxifyConsole() {
	if o.console != nil {
		return
	}

	vm := o.realm.VM()
	original := vm.Get("console")
	o.console = &consoleProxy{original: original}

	var originalObj *goja.Object
	if obj, ok := original.(*goja.Object); ok {
		originalObj = obj
	}

	proxy := vm.NewObject()
	for _, level := range consoleLevels {
		var local goja.Callable
		if originalObj != nil {
			local, _ = goja.AssertFunction(originalObj.Get(level))
		}
		_ = proxy.Set(level, func(call goja.FunctionCall) goja.Value {
			if local != nil {
				_, _ = local(originalObj, call.Arguments...)
			}
			o.send(forward.Log{Level: level, Message: formatArgs(vm, call.Arguments)})
			return goja.Undefined()
		})
	}

	_ = proxy.Set("assert", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) > 0 && !call.Arguments[0].ToBoolean() {
			msg := "Assertion failed: " + formatArgs(vm, call.Arguments[1:])
			o.send(forward.Log{Level: "error", Message: strings.TrimSpace(msg)})
		}
		return goja.Undefined()
	})

	_ = vm.Set("console", proxy)
}

// restoreConsole puts back the console replaced by proxifyConsole.
func (o *Origin) restoreConsole() {
	if o.console == nil {
		return
	}

	vm := o.realm.VM()
	if o.console.original == nil {
		vm.GlobalObject().Delete("console")
	} else {
		_ = vm.Set("console", o.console.original)
	}
	o.console = nil
}

func formatArgs(vm *goja.Runtime, args []goja.Value) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		if obj, ok := arg.(*goja.Object); ok {
			if _, isFn := goja.AssertFunction(obj); !isFn {
				if text, ok, err := stringify(vm, obj); err == nil && ok {
					parts = append(parts, text)
					continue
				}
			}
		}
		parts = append(parts, arg.String())
	}
	return strings.Join(parts, " ")
}
