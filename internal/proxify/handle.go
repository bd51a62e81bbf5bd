package proxify

import "github.com/dop251/goja"

// State is the lifecycle position of an origin proxy
type State int

const (
	StateConstructing State = iota
	StateLive
	StateDeleted
	// StateDetached proxies were constructed while the other realm was
	// unreachable. Every operation on them does nothing.
	StateDetached
)

func (s State) String() string {
	switch s {
	case StateConstructing:
		return "constructing"
	case StateLive:
		return "live"
	case StateDeleted:
		return "deleted"
	case StateDetached:
		return "detached"
	default:
		return "unknown"
	}
}

// Handle is the origin half of a proxy. It is only touched on the origin
// loop.
type Handle struct {
	id        int64
	typeName  string
	state     State
	object    *goja.Object
	handlers  map[string]goja.Value
	listeners map[string][]goja.Value
}

func newHandle(typeName string, object *goja.Object) *Handle {
	return &Handle{
		typeName:  typeName,
		state:     StateConstructing,
		object:    object,
		handlers:  make(map[string]goja.Value),
		listeners: make(map[string][]goja.Value),
	}
}

func (h *Handle) ID() int64            { return h.id }
func (h *Handle) TypeName() string     { return h.typeName }
func (h *Handle) State() State         { return h.state }
func (h *Handle) Object() *goja.Object { return h.object }

// HandleInfo is a copy of a handle's state that is safe to read anywhere.
type HandleInfo struct {
	ID        int64
	TypeName  string
	State     State
	Handlers  []string
	Listeners map[string]int
}

func (h *Handle) info() HandleInfo {
	info := HandleInfo{
		ID:        h.id,
		TypeName:  h.typeName,
		State:     h.state,
		Listeners: make(map[string]int, len(h.listeners)),
	}
	for name := range h.handlers {
		info.Handlers = append(info.Handlers, name)
	}
	for eventType, list := range h.listeners {
		info.Listeners[eventType] = len(list)
	}
	return info
}

func (h *Handle) clear(state State) {
	h.state = state
	h.handlers = make(map[string]goja.Value)
	h.listeners = make(map[string][]goja.Value)
}
