package proxify

import (
	"fmt"
	"math"

	"github.com/bytedance/sonic"
	"github.com/dop251/goja"
)

// toLiteral converts a script value into the literal data that may cross
// the bridge. Objects go through JSON.stringify, so functions and symbols
// nested inside them are dropped the way JSON drops them.
func toLiteral(vm *goja.Runtime, v goja.Value) (any, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil
	}
	if _, ok := goja.AssertFunction(v); ok {
		return nil, fmt.Errorf("%w: functions cannot cross realms", ErrInvalidArgument)
	}

	if obj, ok := v.(*goja.Object); ok {
		return objectLiteral(vm, obj)
	}

	switch x := v.Export().(type) {
	case int64, string, bool:
		return x, nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, nil
		}
		return x, nil
	default:
		return nil, fmt.Errorf("%w: %s cannot cross realms", ErrInvalidArgument, v.String())
	}
}

func objectLiteral(vm *goja.Runtime, obj *goja.Object) (any, error) {
	text, ok, err := stringify(vm, obj)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if !ok {
		return nil, nil
	}

	var out any
	if err := sonic.ConfigStd.UnmarshalFromString(text, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return out, nil
}

// stringify runs the realm's JSON.stringify. ok is false when the value has
// no JSON form.
func stringify(vm *goja.Runtime, v goja.Value) (text string, ok bool, err error) {
	var out goja.Value
	if ex := vm.Try(func() {
		fn, isFn := goja.AssertFunction(vm.Get("JSON").ToObject(vm).Get("stringify"))
		if !isFn {
			err = fmt.Errorf("JSON.stringify is not available")
			return
		}
		out, err = fn(goja.Undefined(), v)
	}); ex != nil {
		return "", false, ex
	}
	if err != nil {
		return "", false, err
	}
	if out == nil || goja.IsUndefined(out) {
		return "", false, nil
	}
	return out.String(), true, nil
}

func toLiterals(vm *goja.Runtime, args []goja.Value) ([]any, error) {
	if len(args) == 0 {
		return nil, nil
	}
	out := make([]any, len(args))
	for i, arg := range args {
		v, err := toLiteral(vm, arg)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func toValues(vm *goja.Runtime, args []any) []goja.Value {
	out := make([]goja.Value, len(args))
	for i, arg := range args {
		out[i] = vm.ToValue(arg)
	}
	return out
}

// eventFields are read even when they live on a prototype.
var eventFields = []string{"type", "loaded", "total", "lengthComputable", "timeStamp"}

// snapshotEvent copies the primitive fields of a native event. References
// such as target cannot cross realms and are rebuilt on the origin side.
func snapshotEvent(vm *goja.Runtime, v goja.Value) map[string]any {
	obj, ok := v.(*goja.Object)
	if !ok || obj == nil {
		return nil
	}

	fields := make(map[string]any)
	read := func(key string) {
		switch key {
		case "target", "currentTarget", "srcElement":
			return
		}
		val := obj.Get(key)
		if val == nil {
			return
		}
		switch x := val.Export().(type) {
		case string, bool, int64:
			fields[key] = x
		case float64:
			if !math.IsNaN(x) && !math.IsInf(x, 0) {
				fields[key] = x
			}
		}
	}

	if ex := vm.Try(func() {
		for _, key := range obj.Keys() {
			read(key)
		}
		for _, key := range eventFields {
			if _, done := fields[key]; !done {
				read(key)
			}
		}
	}); ex != nil {
		return fields
	}

	if len(fields) == 0 {
		return nil
	}
	return fields
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case float64:
		return int64(n), n == math.Trunc(n)
	case int:
		return int64(n), true
	}
	return 0, false
}
