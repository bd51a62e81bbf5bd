package proxify

import (
	"context"
	"errors"
	"fmt"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/realmbridge/internal/forward"
	"github.com/GriffinCanCode/realmbridge/internal/realm"
)

const sideOrigin = "origin"

type originType struct {
	desc       TypeDescriptor
	ctor       *goja.Object
	original   goja.Value
	hadBinding bool
}

// Origin synthesizes substitute constructors in the origin realm. Proxy
// instances carry no state of their own beyond a hidden link to their
// Handle; the surface lives on a prototype built once per type.
type Origin struct {
	realm  *realm.Realm
	fwd    forward.Forwarder
	opts   options
	logger *zap.Logger

	handles *Registry[*Handle]
	types   map[string]*originType
	link    *goja.Symbol
	console *consoleProxy
}

// NewOrigin creates the origin factory for r, forwarding through fwd
func NewOrigin(r *realm.Realm, fwd forward.Forwarder, opts ...Option) *Origin {
	o := buildOptions(opts)
	return &Origin{
		realm:   r,
		fwd:     fwd,
		opts:    o,
		logger:  o.logger.Named("origin").With(zap.String("realm", r.Name())),
		handles: NewRegistry[*Handle](),
		types:   make(map[string]*originType),
		link:    goja.NewSymbol("proxify.handle"),
	}
}

// Available reports whether the destination can be reached.
func (o *Origin) Available() bool {
	return o.fwd.Available()
}

// Handle implements forward.Handler for commands sent by the destination.
func (o *Origin) Handle(cmd forward.Command) forward.Result {
	switch c := cmd.(type) {
	case forward.HandlerFired:
		return result(nil, o.CallOriginProxyObjectEventHandler(c.TypeName, c.ID, c.Handler, c.Event))
	case forward.ListenerFired:
		return result(nil, o.CallOriginProxyObjectEventListeners(c.TypeName, c.ID, c.EventType, c.Event))
	case forward.Log:
		logForwarded(o.logger, c)
		return forward.Success(nil)
	default:
		return forward.Fail(forward.CodeInvalidArgument, "origin cannot handle %s", cmd.Kind())
	}
}

// Setup has the destination set up desc, then replaces the global binding
// for the type name with a synthesized constructor. It runs on the origin
// loop and blocks it until the destination answers.
func (o *Origin) Setup(ctx context.Context, desc TypeDescriptor) error {
	if err := desc.Validate(); err != nil {
		return err
	}
	if _, ok := o.types[desc.TypeName]; ok {
		return invalidf("type %q is already set up", desc.TypeName)
	}

	res, err := o.fwd.Forward(ctx, forward.SetupType{
		TypeName:      desc.TypeName,
		Attributes:    desc.Attributes,
		Methods:       desc.Methods,
		EventHandlers: desc.EventHandlers,
	})
	if err != nil {
		return fmt.Errorf("set up %s: %w", desc.TypeName, err)
	}
	if res.Error != nil {
		return fmt.Errorf("set up %s: %w", desc.TypeName, remoteError(res.Error))
	}

	if err := o.handles.RegisterType(desc); err != nil {
		return err
	}

	vm := o.realm.VM()
	global := vm.GlobalObject()

	t := &originType{desc: desc.clone()}
	t.original = global.Get(desc.TypeName)
	t.hadBinding = t.original != nil

	ctor, err := o.buildType(vm, t.desc)
	if err == nil {
		err = global.Set(desc.TypeName, ctor)
	}
	if err != nil {
		o.handles.UnregisterType(desc.TypeName)
		o.send(forward.TakedownType{TypeName: desc.TypeName})
		return fmt.Errorf("set up %s: %w", desc.TypeName, err)
	}

	t.ctor = ctor
	o.types[desc.TypeName] = t
	o.logger.Debug("Type proxified", zap.String("type", desc.TypeName))
	return nil
}

// Takedown restores the global binding saved at setup, deletes every proxy
// of the type and has the destination drop it. Unknown types are ignored.
func (o *Origin) Takedown(typeName string) {
	t, ok := o.types[typeName]
	if !ok {
		return
	}

	global := o.realm.VM().GlobalObject()
	if t.hadBinding {
		if err := global.Set(typeName, t.original); err != nil {
			o.logger.Warn("Restoring original binding failed", zap.String("type", typeName), zap.Error(err))
		}
	} else {
		global.Delete(typeName)
	}

	handles, _ := o.handles.UnregisterType(typeName)
	for _, h := range handles {
		h.clear(StateDeleted)
	}
	delete(o.types, typeName)

	o.opts.metrics.ObjectsDeleted(sideOrigin, typeName, len(handles))
	o.send(forward.TakedownType{TypeName: typeName})
	o.logger.Debug("Type restored", zap.String("type", typeName), zap.Int("objects", len(handles)))
}

// DeleteObject deletes the proxy behind value on both sides. Values that
// are not proxies, and proxies already deleted, are ignored.
func (o *Origin) DeleteObject(value goja.Value) {
	h := o.handleOf(value)
	if h == nil {
		return
	}

	switch h.state {
	case StateDeleted:
		return
	case StateDetached:
		h.clear(StateDeleted)
		return
	}

	o.handles.Delete(h.typeName, h.id)
	o.send(forward.Delete{TypeName: h.typeName, ID: h.id})
	h.clear(StateDeleted)
	o.opts.metrics.ObjectsDeleted(sideOrigin, h.typeName, 1)
}

// Lookup returns a snapshot of the live proxy (typeName, id).
func (o *Origin) Lookup(typeName string, id int64) (HandleInfo, bool) {
	h, err := o.handles.Get(typeName, id)
	if err != nil {
		return HandleInfo{}, false
	}
	return h.info(), true
}

// HandleOf returns the handle behind a proxy instance, or nil.
func (o *Origin) HandleOf(value goja.Value) *Handle {
	return o.handleOf(value)
}

// Types returns the proxified type names.
func (o *Origin) Types() []string {
	return o.handles.Types()
}

// Close takes down every proxified type.
func (o *Origin) Close() {
	for name := range o.types {
		o.Takedown(name)
	}
	o.restoreConsole()
}

// CallOriginProxyObjectEventHandler runs the handler stored in the named
// slot with a synthetic event whose target is the proxy.
func (o *Origin) CallOriginProxyObjectEventHandler(typeName string, id int64, handler string, fields map[string]any) error {
	h, err := o.replayTarget(typeName, id)
	if err != nil {
		return err
	}

	fn, ok := goja.AssertFunction(h.handlers[handler])
	if !ok {
		return nil
	}

	eventType := handlerEventType(handler, fields)
	o.opts.metrics.EventReplayed(typeName, "handler")

	if _, err := fn(h.object, o.newEvent(h, eventType, fields)); err != nil {
		o.logger.Warn("Event handler threw",
			zap.String("type", typeName),
			zap.Int64("id", id),
			zap.String("handler", handler),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %s#%d.%s: %v", ErrCallFailed, typeName, id, handler, err)
	}
	return nil
}

// CallOriginProxyObjectEventListeners runs every listener registered for
// eventType. Listeners added or removed while dispatching take effect on
// the next event.
func (o *Origin) CallOriginProxyObjectEventListeners(typeName string, id int64, eventType string, fields map[string]any) error {
	h, err := o.replayTarget(typeName, id)
	if err != nil {
		return err
	}

	listeners := append([]goja.Value(nil), h.listeners[eventType]...)
	if len(listeners) == 0 {
		return nil
	}

	o.opts.metrics.EventReplayed(typeName, "listener")
	event := o.newEvent(h, eventType, fields)

	var firstErr error
	for _, listener := range listeners {
		fn, ok := goja.AssertFunction(listener)
		if !ok {
			continue
		}
		if _, err := fn(h.object, event); err != nil {
			o.logger.Warn("Event listener threw",
				zap.String("type", typeName),
				zap.Int64("id", id),
				zap.String("event", eventType),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = fmt.Errorf("%w: %s#%d %s listener: %v", ErrCallFailed, typeName, id, eventType, err)
			}
		}
	}
	return firstErr
}

func (o *Origin) replayTarget(typeName string, id int64) (*Handle, error) {
	h, err := o.handles.Get(typeName, id)
	if err != nil {
		return nil, err
	}
	if h.state != StateLive {
		return nil, fmt.Errorf("%w: %s#%d", ErrObjectDeleted, typeName, id)
	}
	return h, nil
}

func (o *Origin) newEvent(h *Handle, eventType string, fields map[string]any) *goja.Object {
	vm := o.realm.VM()
	event := vm.NewObject()
	for k, v := range fields {
		_ = event.Set(k, v)
	}
	_ = event.Set("type", eventType)
	_ = event.Set("target", h.object)
	_ = event.Set("currentTarget", h.object)
	return event
}

func handlerEventType(handler string, fields map[string]any) string {
	if t, ok := fields["type"].(string); ok && t != "" {
		return t
	}
	if len(handler) > 2 && handler[:2] == "on" {
		return handler[2:]
	}
	return handler
}

func (o *Origin) handleOf(value goja.Value) *Handle {
	obj, ok := value.(*goja.Object)
	if !ok || obj == nil {
		return nil
	}
	link := obj.GetSymbol(o.link)
	if link == nil || goja.IsUndefined(link) {
		return nil
	}
	h, _ := link.Export().(*Handle)
	return h
}

// live returns the handle behind this, nil for detached proxies, and throws
// for deleted ones or for values that are not proxies.
func (o *Origin) live(vm *goja.Runtime, this goja.Value, op string) *Handle {
	h := o.handleOf(this)
	if h == nil {
		panic(vm.NewTypeError("Illegal invocation: %s called on a value that is not a proxy", op))
	}
	switch h.state {
	case StateDeleted:
		panic(vm.NewGoError(fmt.Errorf("%w: %s#%d.%s", ErrObjectDeleted, h.typeName, h.id, op)))
	case StateDetached:
		return nil
	}
	return h
}

func (o *Origin) requestContext() (context.Context, context.CancelFunc) {
	if o.opts.requestTimeout > 0 {
		return context.WithTimeout(o.realm.Context(), o.opts.requestTimeout)
	}
	return context.WithCancel(o.realm.Context())
}

func (o *Origin) construct(vm *goja.Runtime, typeName string, this *goja.Object) {
	h := newHandle(typeName, this)
	if err := this.DefineDataPropertySymbol(o.link, vm.ToValue(h), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE); err != nil {
		panic(vm.NewGoError(fmt.Errorf("new %s: %w", typeName, err)))
	}

	if !o.fwd.Available() {
		h.state = StateDetached
		return
	}

	ctx, cancel := o.requestContext()
	defer cancel()

	res, err := o.fwd.Forward(ctx, forward.Create{TypeName: typeName})
	if errors.Is(err, forward.ErrUnavailable) {
		h.state = StateDetached
		return
	}
	if err != nil {
		panic(vm.NewGoError(fmt.Errorf("new %s: %w", typeName, err)))
	}
	if res.Error != nil {
		panic(vm.NewGoError(fmt.Errorf("new %s: %w", typeName, remoteError(res.Error))))
	}

	id, ok := toInt64(res.Value)
	if !ok {
		panic(vm.NewGoError(fmt.Errorf("new %s: destination returned id %v", typeName, res.Value)))
	}

	h.id = id
	h.state = StateLive
	if err := o.handles.Put(typeName, id, h); err != nil {
		panic(vm.NewGoError(err))
	}
	o.opts.metrics.ObjectCreated(sideOrigin, typeName)
}

func (o *Origin) getAttribute(vm *goja.Runtime, this goja.Value, name string) goja.Value {
	h := o.live(vm, this, name)
	if h == nil {
		return goja.Undefined()
	}

	ctx, cancel := o.requestContext()
	defer cancel()

	res, err := o.fwd.Forward(ctx, forward.GetAttribute{TypeName: h.typeName, ID: h.id, Name: name})
	if err == nil {
		err = remoteError(res.Error)
	}
	if err != nil {
		o.logger.Debug("Attribute read failed",
			zap.String("type", h.typeName),
			zap.Int64("id", h.id),
			zap.String("attribute", name),
			zap.Error(err),
		)
		return goja.Undefined()
	}
	return vm.ToValue(res.Value)
}

func (o *Origin) setAttribute(vm *goja.Runtime, this goja.Value, name string, value goja.Value) {
	h := o.live(vm, this, name)
	if h == nil {
		return
	}

	literal, err := toLiteral(vm, value)
	if err != nil {
		panic(vm.NewTypeError("%s.%s: %v", h.typeName, name, err))
	}

	ctx, cancel := o.requestContext()
	defer cancel()

	res, err := o.fwd.Forward(ctx, forward.SetAttribute{TypeName: h.typeName, ID: h.id, Name: name, Value: literal})
	if err == nil {
		err = remoteError(res.Error)
	}
	if err != nil {
		o.logger.Debug("Attribute write failed",
			zap.String("type", h.typeName),
			zap.Int64("id", h.id),
			zap.String("attribute", name),
			zap.Error(err),
		)
	}
}

// invoke forwards a method call without blocking and returns a promise for
// its result.
func (o *Origin) invoke(vm *goja.Runtime, this goja.Value, method string, args []goja.Value) goja.Value {
	h := o.live(vm, this, method)
	if h == nil || !o.fwd.Available() {
		return goja.Undefined()
	}

	literals, err := toLiterals(vm, args)
	if err != nil {
		panic(vm.NewTypeError("%s.%s: %v", h.typeName, method, err))
	}

	promise, resolve, reject := vm.NewPromise()
	cmd := forward.Invoke{TypeName: h.typeName, ID: h.id, Method: method, Args: literals}

	err = o.fwd.ForwardAsync(cmd, func(res forward.Result) {
		var settleErr error
		if res.Error != nil {
			settleErr = reject(vm.NewGoError(fmt.Errorf("%s#%d.%s: %w", cmd.TypeName, cmd.ID, method, remoteError(res.Error))))
		} else if res.Value == nil {
			settleErr = resolve(goja.Undefined())
		} else {
			settleErr = resolve(res.Value)
		}
		if settleErr != nil {
			o.logger.Warn("Promise reaction failed", zap.String("method", method), zap.Error(settleErr))
		}
	})
	if errors.Is(err, forward.ErrUnavailable) {
		return goja.Undefined()
	}
	if err != nil {
		panic(vm.NewGoError(fmt.Errorf("%s.%s: %w", h.typeName, method, err)))
	}
	return vm.ToValue(promise)
}

func (o *Origin) getHandler(vm *goja.Runtime, this goja.Value, name string) goja.Value {
	h := o.live(vm, this, name)
	if h == nil {
		return goja.Undefined()
	}
	if fn, ok := h.handlers[name]; ok {
		return fn
	}
	return goja.Null()
}

// setHandler stores the callback locally. Only the destination shim
// installed at construction forwards anything.
func (o *Origin) setHandler(vm *goja.Runtime, this goja.Value, name string, value goja.Value) {
	h := o.live(vm, this, name)
	if h == nil {
		return
	}
	if _, ok := goja.AssertFunction(value); ok {
		h.handlers[name] = value
	} else {
		delete(h.handlers, name)
	}
}

func (o *Origin) addEventListener(vm *goja.Runtime, call goja.FunctionCall) goja.Value {
	h := o.live(vm, call.This, addEventListenerName)
	if h == nil {
		return goja.Undefined()
	}

	eventType := call.Argument(0).String()
	listener := call.Argument(1)
	if _, ok := goja.AssertFunction(listener); !ok {
		return goja.Undefined()
	}

	list, registered := h.listeners[eventType]
	if !registered {
		h.listeners[eventType] = nil
		o.send(forward.AddListener{TypeName: h.typeName, ID: h.id, EventType: eventType})
	}
	for _, existing := range list {
		if existing.SameAs(listener) {
			return goja.Undefined()
		}
	}
	h.listeners[eventType] = append(list, listener)
	return goja.Undefined()
}

// removeEventListener only edits the local list; the destination keeps
// its forwarding listener until the object is deleted.
func (o *Origin) removeEventListener(vm *goja.Runtime, call goja.FunctionCall) goja.Value {
	h := o.live(vm, call.This, removeEventListenerName)
	if h == nil {
		return goja.Undefined()
	}

	eventType := call.Argument(0).String()
	listener := call.Argument(1)
	list := h.listeners[eventType]
	for i, existing := range list {
		if existing.SameAs(listener) {
			h.listeners[eventType] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	return goja.Undefined()
}

func (o *Origin) send(cmd forward.Command) {
	if !o.fwd.Available() {
		return
	}
	if err := o.fwd.ForwardAsync(cmd, nil); err != nil {
		o.logger.Debug("Command not forwarded", zap.Stringer("kind", cmd.Kind()), zap.Error(err))
	}
}
