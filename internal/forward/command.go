package forward

import "fmt"

// Kind identifies a command payload on the wire
type Kind string

const (
	KindSetupType     Kind = "setup_type"
	KindTakedownType  Kind = "takedown_type"
	KindCreate        Kind = "create"
	KindInvoke        Kind = "invoke"
	KindGetAttribute  Kind = "get_attribute"
	KindSetAttribute  Kind = "set_attribute"
	KindAddListener   Kind = "add_listener"
	KindDelete        Kind = "delete"
	KindHandlerFired  Kind = "handler_fired"
	KindListenerFired Kind = "listener_fired"
	KindLog           Kind = "log"
)

func (k Kind) String() string { return string(k) }

// Command is one operation forwarded to the other realm.
type Command interface {
	Kind() Kind
	// Type is the proxied type name the command addresses
	Type() string
	command()
}

// SetupType asks the destination to start tracking a type.
type SetupType struct {
	TypeName      string   `json:"type_name"`
	Attributes    []string `json:"attributes,omitempty"`
	Methods       []string `json:"methods,omitempty"`
	EventHandlers []string `json:"event_handlers,omitempty"`
}

// TakedownType asks the destination to drop a type and its objects.
type TakedownType struct {
	TypeName string `json:"type_name"`
}

// Create constructs a real instance and returns its id.
type Create struct {
	TypeName string `json:"type_name"`
}

// Invoke calls a method on a real instance.
type Invoke struct {
	TypeName string `json:"type_name"`
	ID       int64  `json:"id"`
	Method   string `json:"method"`
	Args     []any  `json:"args,omitempty"`
}

// GetAttribute reads a property of a real instance.
type GetAttribute struct {
	TypeName string `json:"type_name"`
	ID       int64  `json:"id"`
	Name     string `json:"name"`
}

// SetAttribute writes a property of a real instance.
type SetAttribute struct {
	TypeName string `json:"type_name"`
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Value    any    `json:"value"`
}

// AddListener installs the forwarding listener for one event type.
type AddListener struct {
	TypeName  string `json:"type_name"`
	ID        int64  `json:"id"`
	EventType string `json:"event_type"`
}

// Delete drops a real instance.
type Delete struct {
	TypeName string `json:"type_name"`
	ID       int64  `json:"id"`
}

// HandlerFired tells the origin that an onX handler slot fired.
type HandlerFired struct {
	TypeName string         `json:"type_name"`
	ID       int64          `json:"id"`
	Handler  string         `json:"handler"`
	Event    map[string]any `json:"event,omitempty"`
}

// ListenerFired tells the origin that a listened event type fired.
type ListenerFired struct {
	TypeName  string         `json:"type_name"`
	ID        int64          `json:"id"`
	EventType string         `json:"event_type"`
	Event     map[string]any `json:"event,omitempty"`
}

// Log carries a console message from a proxified console.
type Log struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

func (SetupType) Kind() Kind     { return KindSetupType }
func (TakedownType) Kind() Kind  { return KindTakedownType }
func (Create) Kind() Kind        { return KindCreate }
func (Invoke) Kind() Kind        { return KindInvoke }
func (GetAttribute) Kind() Kind  { return KindGetAttribute }
func (SetAttribute) Kind() Kind  { return KindSetAttribute }
func (AddListener) Kind() Kind   { return KindAddListener }
func (Delete) Kind() Kind        { return KindDelete }
func (HandlerFired) Kind() Kind  { return KindHandlerFired }
func (ListenerFired) Kind() Kind { return KindListenerFired }
func (Log) Kind() Kind           { return KindLog }

func (c SetupType) Type() string     { return c.TypeName }
func (c TakedownType) Type() string  { return c.TypeName }
func (c Create) Type() string        { return c.TypeName }
func (c Invoke) Type() string        { return c.TypeName }
func (c GetAttribute) Type() string  { return c.TypeName }
func (c SetAttribute) Type() string  { return c.TypeName }
func (c AddListener) Type() string   { return c.TypeName }
func (c Delete) Type() string        { return c.TypeName }
func (c HandlerFired) Type() string  { return c.TypeName }
func (c ListenerFired) Type() string { return c.TypeName }
func (Log) Type() string             { return "" }

func (SetupType) command()     {}
func (TakedownType) command()  {}
func (Create) command()        {}
func (Invoke) command()        {}
func (GetAttribute) command()  {}
func (SetAttribute) command()  {}
func (AddListener) command()   {}
func (Delete) command()        {}
func (HandlerFired) command()  {}
func (ListenerFired) command() {}
func (Log) command()           {}

// newCommand returns a zero payload for kind, used by the decoder.
func newCommand(kind Kind) (Command, error) {
	switch kind {
	case KindSetupType:
		return &SetupType{}, nil
	case KindTakedownType:
		return &TakedownType{}, nil
	case KindCreate:
		return &Create{}, nil
	case KindInvoke:
		return &Invoke{}, nil
	case KindGetAttribute:
		return &GetAttribute{}, nil
	case KindSetAttribute:
		return &SetAttribute{}, nil
	case KindAddListener:
		return &AddListener{}, nil
	case KindDelete:
		return &Delete{}, nil
	case KindHandlerFired:
		return &HandlerFired{}, nil
	case KindListenerFired:
		return &ListenerFired{}, nil
	case KindLog:
		return &Log{}, nil
	default:
		return nil, fmt.Errorf("unknown command kind %q", kind)
	}
}
