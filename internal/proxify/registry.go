package proxify

import (
	"fmt"
	"sort"
)

type typeTable[T any] struct {
	desc    TypeDescriptor
	objects map[int64]T
}

// Registry stores the descriptors and live objects of one realm. It is
// only used from that realm's loop and does no locking.
//
// Id counters outlive the type table, so an id handed out once is never
// handed out again even across takedown and setup of the same type.
type Registry[T any] struct {
	types  map[string]*typeTable[T]
	nextID map[string]int64
}

// NewRegistry creates an empty registry
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{
		types:  make(map[string]*typeTable[T]),
		nextID: make(map[string]int64),
	}
}

// RegisterType validates and stores desc. A type that is already
// registered is rejected.
func (r *Registry[T]) RegisterType(desc TypeDescriptor) error {
	if err := desc.Validate(); err != nil {
		return err
	}
	if _, ok := r.types[desc.TypeName]; ok {
		return invalidf("type %q is already set up", desc.TypeName)
	}

	r.types[desc.TypeName] = &typeTable[T]{
		desc:    desc.clone(),
		objects: make(map[int64]T),
	}
	return nil
}

// UnregisterType drops a type and returns its live objects in id order.
// ok is false if the type was not registered.
func (r *Registry[T]) UnregisterType(typeName string) (objects []T, ok bool) {
	table, ok := r.types[typeName]
	if !ok {
		return nil, false
	}

	for _, id := range sortedIDs(table.objects) {
		objects = append(objects, table.objects[id])
	}
	delete(r.types, typeName)
	return objects, true
}

// Descriptor returns the surface registered for typeName
func (r *Registry[T]) Descriptor(typeName string) (TypeDescriptor, bool) {
	table, ok := r.types[typeName]
	if !ok {
		return TypeDescriptor{}, false
	}
	return table.desc, true
}

// Types returns the registered type names, sorted
func (r *Registry[T]) Types() []string {
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AllocateID returns the next unused id for typeName.
func (r *Registry[T]) AllocateID(typeName string) (int64, error) {
	if _, ok := r.types[typeName]; !ok {
		return 0, fmt.Errorf("%w: %q", ErrTypeNotFound, typeName)
	}
	id := r.nextID[typeName]
	r.nextID[typeName] = id + 1
	return id, nil
}

// Put stores obj under (typeName, id)
func (r *Registry[T]) Put(typeName string, id int64, obj T) error {
	table, ok := r.types[typeName]
	if !ok {
		return fmt.Errorf("%w: %q", ErrTypeNotFound, typeName)
	}
	table.objects[id] = obj
	return nil
}

// Get returns the object stored under (typeName, id)
func (r *Registry[T]) Get(typeName string, id int64) (T, error) {
	var zero T
	table, ok := r.types[typeName]
	if !ok {
		return zero, fmt.Errorf("%w: %q", ErrTypeNotFound, typeName)
	}
	obj, ok := table.objects[id]
	if !ok {
		return zero, fmt.Errorf("%w: %s#%d", ErrObjectNotFound, typeName, id)
	}
	return obj, nil
}

// Delete removes (typeName, id). Deleting a missing entry is a no-op.
func (r *Registry[T]) Delete(typeName string, id int64) (T, bool) {
	var zero T
	table, ok := r.types[typeName]
	if !ok {
		return zero, false
	}
	obj, ok := table.objects[id]
	if !ok {
		return zero, false
	}
	delete(table.objects, id)
	return obj, true
}

// Len returns the number of live objects of typeName
func (r *Registry[T]) Len(typeName string) int {
	table, ok := r.types[typeName]
	if !ok {
		return 0
	}
	return len(table.objects)
}

// Each calls fn for every live object of typeName in id order.
func (r *Registry[T]) Each(typeName string, fn func(id int64, obj T)) {
	table, ok := r.types[typeName]
	if !ok {
		return
	}
	for _, id := range sortedIDs(table.objects) {
		fn(id, table.objects[id])
	}
}

func sortedIDs[T any](objects map[int64]T) []int64 {
	ids := make([]int64, 0, len(objects))
	for id := range objects {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
