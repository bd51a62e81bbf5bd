package forward

import (
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
)

// api decodes numbers as float64 and sorts map keys, matching encoding/json.
var api = sonic.ConfigStd

type envelope struct {
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// EncodeCommand serializes cmd into a self-describing envelope.
func EncodeCommand(cmd Command) ([]byte, error) {
	if cmd == nil {
		return nil, fmt.Errorf("encode command: nil command")
	}

	payload, err := api.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", cmd.Kind(), err)
	}

	return api.Marshal(envelope{Kind: cmd.Kind(), Payload: payload})
}

// DecodeCommand parses an envelope produced by EncodeCommand. The returned
// command is a value type, never a pointer.
func DecodeCommand(data []byte) (Command, error) {
	var env envelope
	if err := api.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode command: %w", err)
	}

	ptr, err := newCommand(env.Kind)
	if err != nil {
		return nil, fmt.Errorf("decode command: %w", err)
	}
	if len(env.Payload) > 0 {
		if err := api.Unmarshal(env.Payload, ptr); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Kind, err)
		}
	}

	return deref(ptr), nil
}

// EncodeResult serializes a result.
func EncodeResult(res Result) ([]byte, error) {
	data, err := api.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return data, nil
}

// DecodeResult parses a result produced by EncodeResult.
func DecodeResult(data []byte) (Result, error) {
	var res Result
	if err := api.Unmarshal(data, &res); err != nil {
		return Result{}, fmt.Errorf("decode result: %w", err)
	}
	return res, nil
}

// Normalize passes a value through the codec, leaving only the literal
// shapes a remote receiver would see.
func Normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := api.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := api.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func deref(cmd Command) Command {
	switch c := cmd.(type) {
	case *SetupType:
		return *c
	case *TakedownType:
		return *c
	case *Create:
		return *c
	case *Invoke:
		return *c
	case *GetAttribute:
		return *c
	case *SetAttribute:
		return *c
	case *AddListener:
		return *c
	case *Delete:
		return *c
	case *HandlerFired:
		return *c
	case *ListenerFired:
		return *c
	case *Log:
		return *c
	}
	return cmd
}
