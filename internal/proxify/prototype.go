package proxify

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"
)

// buildType synthesizes the constructor for desc. Accessors and methods are
// defined on the shared prototype by walking the name lists once; each
// closure captures its own name.
func (o *Origin) buildType(vm *goja.Runtime, desc TypeDescriptor) (*goja.Object, error) {
	typeName := desc.TypeName

	ctor, ok := vm.ToValue(func(call goja.ConstructorCall) *goja.Object {
		o.construct(vm, typeName, call.This)
		return call.This
	}).(*goja.Object)
	if !ok {
		return nil, fmt.Errorf("constructor for %s is not an object", typeName)
	}
	_ = ctor.DefineDataProperty("name", vm.ToValue(typeName), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_TRUE)

	proto := ctor.Get("prototype").ToObject(vm)

	var errs []error
	accessor := func(name string, get func(goja.FunctionCall) goja.Value, set func(goja.FunctionCall) goja.Value) {
		errs = append(errs, proto.DefineAccessorProperty(name, vm.ToValue(get), vm.ToValue(set), goja.FLAG_TRUE, goja.FLAG_TRUE))
	}
	method := func(name string, fn func(goja.FunctionCall) goja.Value) {
		errs = append(errs, proto.DefineDataProperty(name, vm.ToValue(fn), goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_FALSE))
	}

	for _, name := range desc.Attributes {
		accessor(name,
			func(call goja.FunctionCall) goja.Value {
				return o.getAttribute(vm, call.This, name)
			},
			func(call goja.FunctionCall) goja.Value {
				o.setAttribute(vm, call.This, name, call.Argument(0))
				return goja.Undefined()
			},
		)
	}

	for _, name := range desc.Methods {
		method(name, func(call goja.FunctionCall) goja.Value {
			return o.invoke(vm, call.This, name, call.Arguments)
		})
	}

	for _, name := range desc.EventHandlers {
		accessor(name,
			func(call goja.FunctionCall) goja.Value {
				return o.getHandler(vm, call.This, name)
			},
			func(call goja.FunctionCall) goja.Value {
				o.setHandler(vm, call.This, name, call.Argument(0))
				return goja.Undefined()
			},
		)
	}

	method(addEventListenerName, func(call goja.FunctionCall) goja.Value {
		return o.addEventListener(vm, call)
	})
	method(removeEventListenerName, func(call goja.FunctionCall) goja.Value {
		return o.removeEventListener(vm, call)
	})

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return ctor, nil
}
