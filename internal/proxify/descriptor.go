package proxify

import "slices"

// Names reserved for the event listener methods every proxy carries.
const (
	addEventListenerName    = "addEventListener"
	removeEventListenerName = "removeEventListener"
)

// TypeDescriptor is the proxied surface of one type. It is identical on both
// sides of the bridge and never changes after setup.
type TypeDescriptor struct {
	TypeName      string   `json:"type_name"`
	Attributes    []string `json:"attributes,omitempty"`
	Methods       []string `json:"methods,omitempty"`
	EventHandlers []string `json:"event_handlers,omitempty"`
}

// Validate checks that the descriptor names a type and declares a surface.
func (d TypeDescriptor) Validate() error {
	if d.TypeName == "" {
		return invalidf("type name is empty")
	}
	if len(d.Attributes)+len(d.Methods)+len(d.EventHandlers) == 0 {
		return invalidf("type %q declares no attributes, methods or event handlers", d.TypeName)
	}

	seen := make(map[string]string)
	for _, set := range []struct {
		kind  string
		names []string
	}{
		{"attribute", d.Attributes},
		{"method", d.Methods},
		{"event handler", d.EventHandlers},
	} {
		for _, name := range set.names {
			if name == "" {
				return invalidf("type %q has an empty %s name", d.TypeName, set.kind)
			}
			if name == addEventListenerName || name == removeEventListenerName {
				return invalidf("type %q: %q is reserved", d.TypeName, name)
			}
			if prev, dup := seen[name]; dup {
				return invalidf("type %q declares %q as %s and %s", d.TypeName, name, prev, set.kind)
			}
			seen[name] = set.kind
		}
	}
	return nil
}

func (d TypeDescriptor) clone() TypeDescriptor {
	return TypeDescriptor{
		TypeName:      d.TypeName,
		Attributes:    slices.Clone(d.Attributes),
		Methods:       slices.Clone(d.Methods),
		EventHandlers: slices.Clone(d.EventHandlers),
	}
}

func (d TypeDescriptor) HasAttribute(name string) bool {
	return slices.Contains(d.Attributes, name)
}

func (d TypeDescriptor) HasMethod(name string) bool {
	return slices.Contains(d.Methods, name)
}

func (d TypeDescriptor) HasEventHandler(name string) bool {
	return slices.Contains(d.EventHandlers, name)
}
