package proxify

import (
	"context"
	"errors"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/realmbridge/internal/manifest"
)

// Bridge is the Go entry point to an origin realm's proxies. Every method
// hops onto the origin loop, so it must not be called from a task already
// running there; script code uses the Proxify global instead.
//
// While the destination is unreachable, every method is a no-op that
// returns nil.
type Bridge struct {
	origin *Origin
}

// NewBridge creates a facade over origin
func NewBridge(origin *Origin) *Bridge {
	return &Bridge{origin: origin}
}

// Origin returns the origin factory
func (b *Bridge) Origin() *Origin { return b.origin }

// Available reports whether the destination can be reached
func (b *Bridge) Available() bool { return b.origin.Available() }

// SetupOriginProxyType proxifies the global type typeName. At least one of
// the name lists must be non-empty.
func (b *Bridge) SetupOriginProxyType(ctx context.Context, typeName string, attributes, methods, eventHandlers []string) error {
	return b.SetupType(ctx, TypeDescriptor{
		TypeName:      typeName,
		Attributes:    attributes,
		Methods:       methods,
		EventHandlers: eventHandlers,
	})
}

// SetupType is SetupOriginProxyType taking a descriptor.
func (b *Bridge) SetupType(ctx context.Context, desc TypeDescriptor) error {
	if !b.Available() {
		return nil
	}
	if err := desc.Validate(); err != nil {
		return err
	}
	return b.do(ctx, func() error { return b.origin.Setup(ctx, desc) })
}

// TakedownOriginProxyType restores the binding typeName had before setup.
// Types that were never set up are ignored.
func (b *Bridge) TakedownOriginProxyType(ctx context.Context, typeName string) error {
	return b.do(ctx, func() error {
		b.origin.Takedown(typeName)
		return nil
	})
}

// DeleteOriginProxyObject deletes the proxy object on both sides.
func (b *Bridge) DeleteOriginProxyObject(ctx context.Context, object goja.Value) error {
	return b.do(ctx, func() error {
		b.origin.DeleteObject(object)
		return nil
	})
}

// SetupPreset proxifies one of the built-in types by name.
func (b *Bridge) SetupPreset(ctx context.Context, name string) error {
	spec, ok := manifest.Preset(name)
	if !ok {
		return invalidf("unknown preset %q", name)
	}
	return b.SetupType(ctx, descriptorOf(spec))
}

// SetupManifest proxifies every type of m, stopping at the first failure.
func (b *Bridge) SetupManifest(ctx context.Context, m *manifest.Manifest) error {
	for _, spec := range m.Types {
		if err := b.SetupType(ctx, descriptorOf(spec)); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns a snapshot of the live proxy (typeName, id).
func (b *Bridge) Lookup(ctx context.Context, typeName string, id int64) (HandleInfo, bool, error) {
	var (
		info HandleInfo
		ok   bool
	)
	err := b.do(ctx, func() error {
		info, ok = b.origin.Lookup(typeName, id)
		return nil
	})
	return info, ok, err
}

// Install defines the Proxify global in the origin realm.
func (b *Bridge) Install(ctx context.Context) error {
	return b.do(ctx, func() error { return b.InstallOnLoop() })
}

// InstallOnLoop is Install for callers already on the origin loop, such as
// a realm Init hook.
func (b *Bridge) InstallOnLoop() error {
	return installBindings(b.origin.realm.VM(), b)
}

func (b *Bridge) do(ctx context.Context, fn func() error) error {
	var err error
	if doErr := b.origin.realm.Do(ctx, func() { err = fn() }); doErr != nil {
		return doErr
	}
	return err
}

func descriptorOf(spec manifest.TypeSpec) TypeDescriptor {
	return TypeDescriptor{
		TypeName:      spec.Name,
		Attributes:    spec.Attributes,
		Methods:       spec.Methods,
		EventHandlers: spec.EventHandlers,
	}
}

// throw raises err in script code: invalid arguments as TypeError, the
// rest as a GoError.
func throw(vm *goja.Runtime, err error) {
	if errors.Is(err, ErrInvalidArgument) {
		panic(vm.NewTypeError(err.Error()))
	}
	panic(vm.NewGoError(err))
}
