package ws

import (
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
)

var api = sonic.ConfigStd

const (
	frameRequest  = "req"
	frameResponse = "res"
)

type frame struct {
	Type  string          `json:"t"`
	ID    string          `json:"id"`
	Async bool            `json:"async,omitempty"`
	Reply bool            `json:"reply,omitempty"`
	Body  json.RawMessage `json:"body"`
}

func encodeFrame(f frame) ([]byte, error) {
	data, err := api.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return data, nil
}

func decodeFrame(data []byte) (frame, error) {
	var f frame
	if err := api.Unmarshal(data, &f); err != nil {
		return frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if f.ID == "" {
		return frame{}, fmt.Errorf("decode frame: missing id")
	}
	switch f.Type {
	case frameRequest, frameResponse:
	default:
		return frame{}, fmt.Errorf("decode frame: unknown type %q", f.Type)
	}
	return f, nil
}
