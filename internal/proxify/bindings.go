package proxify

import (
	"strconv"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/realmbridge/internal/manifest"
)

// installBindings defines the Proxify global. It runs on the origin loop.
//
//	Proxify.setupOriginProxyType(typeName, attributes?, methods?, eventHandlers?)
//	Proxify.takedownOriginProxyType(typeName)
//	Proxify.deleteOriginProxyObject(object)
//	Proxify.xhr() / Proxify.audio() / Proxify.preset(name)
//	Proxify.console() / Proxify.deproxifyConsole()
//	Proxify.available()
func installBindings(vm *goja.Runtime, b *Bridge) error {
	o := b.origin
	p := vm.NewObject()

	setup := func(desc TypeDescriptor) goja.Value {
		if !o.Available() {
			return goja.Undefined()
		}
		if err := desc.Validate(); err != nil {
			throw(vm, err)
		}
		ctx, cancel := o.requestContext()
		defer cancel()
		if err := o.Setup(ctx, desc); err != nil {
			throw(vm, err)
		}
		return goja.Undefined()
	}

	preset := func(name string) goja.Value {
		if !o.Available() {
			return goja.Undefined()
		}
		spec, ok := manifest.Preset(name)
		if !ok {
			throw(vm, invalidf("unknown preset %q", name))
		}
		return setup(descriptorOf(spec))
	}

	funcs := map[string]func(goja.FunctionCall) goja.Value{
		"setupOriginProxyType": func(call goja.FunctionCall) goja.Value {
			if !o.Available() {
				return goja.Undefined()
			}
			desc := TypeDescriptor{TypeName: typeNameArg(vm, call.Argument(0))}
			desc.Attributes = stringList(vm, call.Argument(1), "attributeNames")
			desc.Methods = stringList(vm, call.Argument(2), "methodNames")
			desc.EventHandlers = stringList(vm, call.Argument(3), "eventHandlerNames")
			return setup(desc)
		},
		"takedownOriginProxyType": func(call goja.FunctionCall) goja.Value {
			o.Takedown(call.Argument(0).String())
			return goja.Undefined()
		},
		"deleteOriginProxyObject": func(call goja.FunctionCall) goja.Value {
			o.DeleteObject(call.Argument(0))
			return goja.Undefined()
		},
		"xhr": func(goja.FunctionCall) goja.Value {
			return preset("XMLHttpRequest")
		},
		"audio": func(goja.FunctionCall) goja.Value {
			return preset("Audio")
		},
		"preset": func(call goja.FunctionCall) goja.Value {
			return preset(call.Argument(0).String())
		},
		"console": func(goja.FunctionCall) goja.Value {
			if o.Available() {
				o.proxifyConsole()
			}
			return goja.Undefined()
		},
		"deproxifyConsole": func(goja.FunctionCall) goja.Value {
			o.restoreConsole()
			return goja.Undefined()
		},
		"available": func(goja.FunctionCall) goja.Value {
			return vm.ToValue(o.Available())
		},
	}

	for name, fn := range funcs {
		if err := p.Set(name, fn); err != nil {
			return err
		}
	}
	return vm.Set("Proxify", p)
}

func typeNameArg(vm *goja.Runtime, v goja.Value) string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		throw(vm, invalidf("type name is required"))
	}
	if _, ok := v.Export().(string); !ok {
		throw(vm, invalidf("type name must be a string"))
	}
	return v.String()
}

// stringList reads an optional array of names.
func stringList(vm *goja.Runtime, v goja.Value, what string) []string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	obj, ok := v.(*goja.Object)
	if !ok || obj.ClassName() != "Array" {
		throw(vm, invalidf("%s must be an array", what))
	}

	n := int(obj.Get("length").ToInteger())
	names := make([]string, 0, n)
	for i := 0; i < n; i++ {
		names = append(names, obj.Get(strconv.Itoa(i)).String())
	}
	return names
}
