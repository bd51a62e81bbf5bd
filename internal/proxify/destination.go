package proxify

import (
	"fmt"
	"strings"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/realmbridge/internal/forward"
	"github.com/GriffinCanCode/realmbridge/internal/realm"
)

const sideDestination = "destination"

// destObject is the destination half of a proxy: the real instance plus the
// forwarding callbacks wired into it.
type destObject struct {
	id        int64
	typeName  string
	obj       *goja.Object
	listeners map[string]goja.Value
	deleted   bool
}

// Destination owns the real objects behind origin proxies. It runs every
// command on its realm's loop and reports events back to the origin through
// back, which is never used in blocking mode.
type Destination struct {
	realm    *realm.Realm
	back     forward.Forwarder
	registry *Registry[*destObject]
	opts     options
	logger   *zap.Logger
}

// NewDestination creates the destination factory for r
func NewDestination(r *realm.Realm, back forward.Forwarder, opts ...Option) *Destination {
	o := buildOptions(opts)
	return &Destination{
		realm:    r,
		back:     back,
		registry: NewRegistry[*destObject](),
		opts:     o,
		logger:   o.logger.Named("destination").With(zap.String("realm", r.Name())),
	}
}

// Handle implements forward.Handler. It must run on the destination loop.
func (d *Destination) Handle(cmd forward.Command) (res forward.Result) {
	defer func() {
		if p := recover(); p != nil {
			d.logger.Error("Destination command panicked", zap.Stringer("kind", cmd.Kind()), zap.Any("panic", p))
			res = forward.Fail(forward.CodeInternal, "%s %s: %v", cmd.Kind(), cmd.Type(), p)
		}
	}()

	switch c := cmd.(type) {
	case forward.SetupType:
		return result(nil, d.SetupDestinationProxyType(TypeDescriptor{
			TypeName:      c.TypeName,
			Attributes:    c.Attributes,
			Methods:       c.Methods,
			EventHandlers: c.EventHandlers,
		}))
	case forward.TakedownType:
		d.TakedownDestinationProxyType(c.TypeName)
		return forward.Success(nil)
	case forward.Create:
		id, err := d.NewDestinationProxyObject(c.TypeName)
		return result(id, err)
	case forward.Invoke:
		return result(d.CallDestinationProxyObjectFunction(c.TypeName, c.ID, c.Method, c.Args...))
	case forward.GetAttribute:
		return result(d.GetDestinationProxyObjectAttribute(c.TypeName, c.ID, c.Name))
	case forward.SetAttribute:
		return result(nil, d.SetDestinationProxyObjectAttribute(c.TypeName, c.ID, c.Name, c.Value))
	case forward.AddListener:
		return result(nil, d.AddDestinationProxyObjectEventListener(c.TypeName, c.ID, c.EventType))
	case forward.Delete:
		d.DeleteDestinationProxyObject(c.TypeName, c.ID)
		return forward.Success(nil)
	case forward.Log:
		logForwarded(d.logger, c)
		return forward.Success(nil)
	default:
		return forward.Fail(forward.CodeInvalidArgument, "destination cannot handle %s", cmd.Kind())
	}
}

// SetupDestinationProxyType starts tracking a type. Instances created before
// setup are not affected.
func (d *Destination) SetupDestinationProxyType(desc TypeDescriptor) error {
	if err := d.registry.RegisterType(desc); err != nil {
		return err
	}
	d.logger.Debug("Type set up", zap.String("type", desc.TypeName))
	return nil
}

// TakedownDestinationProxyType drops a type and detaches all of its live
// objects. Unknown types are ignored.
func (d *Destination) TakedownDestinationProxyType(typeName string) {
	desc, _ := d.registry.Descriptor(typeName)
	objects, ok := d.registry.UnregisterType(typeName)
	if !ok {
		return
	}
	for _, o := range objects {
		d.detach(o, desc)
	}
	d.opts.metrics.ObjectsDeleted(sideDestination, typeName, len(objects))
	d.logger.Debug("Type taken down", zap.String("type", typeName), zap.Int("objects", len(objects)))
}

// NewDestinationProxyObject constructs a real instance through the global
// constructor named typeName and returns its id.
func (d *Destination) NewDestinationProxyObject(typeName string) (int64, error) {
	desc, ok := d.registry.Descriptor(typeName)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrTypeNotFound, typeName)
	}

	vm := d.realm.VM()
	ctor := vm.Get(typeName)
	if ctor == nil || goja.IsUndefined(ctor) || goja.IsNull(ctor) {
		return 0, fmt.Errorf("%w: %q is not defined", ErrCallFailed, typeName)
	}

	obj, err := vm.New(ctor)
	if err != nil {
		return 0, fmt.Errorf("%w: new %s: %v", ErrCallFailed, typeName, err)
	}

	id, err := d.registry.AllocateID(typeName)
	if err != nil {
		return 0, err
	}

	o := &destObject{
		id:        id,
		typeName:  typeName,
		obj:       obj,
		listeners: make(map[string]goja.Value),
	}

	for _, name := range desc.EventHandlers {
		if err := obj.Set(name, d.handlerShim(o, name)); err != nil {
			return 0, fmt.Errorf("%w: install %s.%s: %v", ErrCallFailed, typeName, name, err)
		}
	}

	if err := d.registry.Put(typeName, id, o); err != nil {
		return 0, err
	}

	d.opts.metrics.ObjectCreated(sideDestination, typeName)
	return id, nil
}

// CallDestinationProxyObjectFunction applies a declared method to the
// instance and returns its result as a literal.
func (d *Destination) CallDestinationProxyObjectFunction(typeName string, id int64, method string, args ...any) (any, error) {
	o, desc, err := d.lookup(typeName, id)
	if err != nil {
		return nil, err
	}
	if !desc.HasMethod(method) {
		return nil, invalidf("%s has no method %q", typeName, method)
	}

	vm := d.realm.VM()

	var fnVal goja.Value
	if ex := vm.Try(func() { fnVal = o.obj.Get(method) }); ex != nil {
		return nil, fmt.Errorf("%w: %s.%s: %v", ErrCallFailed, typeName, method, ex)
	}
	fn, ok := goja.AssertFunction(fnVal)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s is not a function", ErrCallFailed, typeName, method)
	}

	ret, err := fn(o.obj, toValues(vm, args)...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s.%s: %v", ErrCallFailed, typeName, method, err)
	}

	value, err := toLiteral(vm, ret)
	if err != nil {
		return nil, fmt.Errorf("%w: %s.%s result: %v", ErrCallFailed, typeName, method, err)
	}
	return value, nil
}

// GetDestinationProxyObjectAttribute reads a declared attribute.
func (d *Destination) GetDestinationProxyObjectAttribute(typeName string, id int64, name string) (any, error) {
	o, desc, err := d.lookup(typeName, id)
	if err != nil {
		return nil, err
	}
	if !desc.HasAttribute(name) {
		return nil, invalidf("%s has no attribute %q", typeName, name)
	}

	vm := d.realm.VM()

	var val goja.Value
	if ex := vm.Try(func() { val = o.obj.Get(name) }); ex != nil {
		return nil, fmt.Errorf("%w: get %s.%s: %v", ErrCallFailed, typeName, name, ex)
	}

	value, err := toLiteral(vm, val)
	if err != nil {
		return nil, fmt.Errorf("%w: %s.%s: %v", ErrCallFailed, typeName, name, err)
	}
	return value, nil
}

// SetDestinationProxyObjectAttribute writes a declared attribute.
func (d *Destination) SetDestinationProxyObjectAttribute(typeName string, id int64, name string, value any) error {
	o, desc, err := d.lookup(typeName, id)
	if err != nil {
		return err
	}
	if !desc.HasAttribute(name) {
		return invalidf("%s has no attribute %q", typeName, name)
	}

	if err := o.obj.Set(name, d.realm.VM().ToValue(value)); err != nil {
		return fmt.Errorf("%w: set %s.%s: %v", ErrCallFailed, typeName, name, err)
	}
	return nil
}

// AddDestinationProxyObjectEventListener installs one forwarding listener
// for eventType. Repeated calls for the same event type do nothing.
func (d *Destination) AddDestinationProxyObjectEventListener(typeName string, id int64, eventType string) error {
	o, _, err := d.lookup(typeName, id)
	if err != nil {
		return err
	}
	if eventType == "" {
		return invalidf("event type is empty")
	}
	if _, ok := o.listeners[eventType]; ok {
		return nil
	}

	vm := d.realm.VM()
	listener := d.listenerShim(o, eventType)

	var add goja.Value
	if ex := vm.Try(func() { add = o.obj.Get(addEventListenerName) }); ex != nil {
		return fmt.Errorf("%w: %s.%s: %v", ErrCallFailed, typeName, addEventListenerName, ex)
	}
	fn, ok := goja.AssertFunction(add)
	if !ok {
		return fmt.Errorf("%w: %s has no %s", ErrCallFailed, typeName, addEventListenerName)
	}
	if _, err := fn(o.obj, vm.ToValue(eventType), listener); err != nil {
		return fmt.Errorf("%w: %s.%s(%q): %v", ErrCallFailed, typeName, addEventListenerName, eventType, err)
	}

	o.listeners[eventType] = listener
	return nil
}

// DeleteDestinationProxyObject removes an instance and detaches the
// callbacks that would otherwise keep firing into a dead id. Unknown ids
// are ignored.
func (d *Destination) DeleteDestinationProxyObject(typeName string, id int64) {
	desc, _ := d.registry.Descriptor(typeName)
	o, ok := d.registry.Delete(typeName, id)
	if !ok {
		return
	}
	d.detach(o, desc)
	d.opts.metrics.ObjectsDeleted(sideDestination, typeName, 1)
}

// Len returns the number of live objects of typeName.
func (d *Destination) Len(typeName string) int {
	return d.registry.Len(typeName)
}

// Close takes down every type still set up.
func (d *Destination) Close() {
	for _, name := range d.registry.Types() {
		d.TakedownDestinationProxyType(name)
	}
}

func (d *Destination) lookup(typeName string, id int64) (*destObject, TypeDescriptor, error) {
	desc, ok := d.registry.Descriptor(typeName)
	if !ok {
		return nil, TypeDescriptor{}, fmt.Errorf("%w: %q", ErrTypeNotFound, typeName)
	}
	o, err := d.registry.Get(typeName, id)
	if err != nil {
		return nil, TypeDescriptor{}, err
	}
	return o, desc, nil
}

func (d *Destination) detach(o *destObject, desc TypeDescriptor) {
	o.deleted = true
	vm := d.realm.VM()

	if len(o.listeners) > 0 {
		var remove goja.Value
		vm.Try(func() { remove = o.obj.Get(removeEventListenerName) })
		if fn, ok := goja.AssertFunction(remove); ok {
			for eventType, listener := range o.listeners {
				if _, err := fn(o.obj, vm.ToValue(eventType), listener); err != nil {
					d.logger.Debug("Listener detach failed", zap.String("type", o.typeName), zap.String("event", eventType), zap.Error(err))
				}
			}
		}
		o.listeners = nil
	}

	for _, name := range desc.EventHandlers {
		_ = o.obj.Set(name, goja.Null())
	}
}

// handlerShim is stored in an onX slot of the real object.
func (d *Destination) handlerShim(o *destObject, handler string) goja.Value {
	vm := d.realm.VM()
	return vm.ToValue(func(call goja.FunctionCall) goja.Value {
		if o.deleted {
			return goja.Undefined()
		}
		d.send(forward.HandlerFired{
			TypeName: o.typeName,
			ID:       o.id,
			Handler:  handler,
			Event:    snapshotEvent(vm, call.Argument(0)),
		})
		return goja.Undefined()
	})
}

func (d *Destination) listenerShim(o *destObject, eventType string) goja.Value {
	vm := d.realm.VM()
	return vm.ToValue(func(call goja.FunctionCall) goja.Value {
		if o.deleted {
			return goja.Undefined()
		}
		d.send(forward.ListenerFired{
			TypeName:  o.typeName,
			ID:        o.id,
			EventType: eventType,
			Event:     snapshotEvent(vm, call.Argument(0)),
		})
		return goja.Undefined()
	})
}

func (d *Destination) send(cmd forward.Command) {
	if !d.back.Available() {
		return
	}
	if err := d.back.ForwardAsync(cmd, nil); err != nil {
		d.logger.Debug("Event not forwarded", zap.Stringer("kind", cmd.Kind()), zap.Error(err))
	}
}

func result(value any, err error) forward.Result {
	if err != nil {
		return failure(err)
	}
	return forward.Success(value)
}

func logForwarded(logger *zap.Logger, c forward.Log) {
	msg := "Proxified log: " + c.Message
	switch strings.ToLower(c.Level) {
	case "error":
		logger.Error(msg)
	case "warn":
		logger.Warn(msg)
	case "debug":
		logger.Debug(msg)
	default:
		logger.Info(msg)
	}
}
