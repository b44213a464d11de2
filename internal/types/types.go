package types

import (
	"bytes"
	"encoding/json"
	"errors"
)

var errActionNotObject = errors.New("action is not a JSON object")

// EditRequest is the body of POST /process. CurrentElements is the canvas
// state as sent by the builder and is never interpreted here.
type EditRequest struct {
	UserMessage     string          `json:"userMessage"`
	CurrentElements json.RawMessage `json:"currentElements,omitempty"`
	APIKey          string          `json:"apiKey,omitempty"`
	PreferredModel  string          `json:"preferredModel,omitempty"`
}

type ActionType string

const (
	ActionAddElement    ActionType = "ADD_ELEMENT"
	ActionSetElements   ActionType = "SET_ELEMENTS"
	ActionUpdateElement ActionType = "UPDATE_ELEMENT"
	ActionClearCanvas   ActionType = "CLEAR_CANVAS"
)

// Action is one canvas mutation as the model wrote it. The object is kept
// byte-for-byte; only its JSON shape is checked.
type Action struct {
	raw json.RawMessage
}

// NewAction builds an action object with the given type and payload.
func NewAction(typ ActionType, payload json.RawMessage) (Action, error) {
	b, err := json.Marshal(struct {
		Type    ActionType      `json:"type"`
		Payload json.RawMessage `json:"payload,omitempty"`
	}{typ, payload})
	if err != nil {
		return Action{}, err
	}
	return Action{raw: b}, nil
}

func (a *Action) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return errActionNotObject
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return err
	}
	a.raw = append(json.RawMessage(nil), trimmed...)
	return nil
}

func (a Action) MarshalJSON() ([]byte, error) {
	if len(a.raw) == 0 {
		return []byte("{}"), nil
	}
	return a.raw, nil
}

// Type reads the "type" key; it is empty when absent or not a string.
func (a Action) Type() ActionType {
	var head struct {
		Type json.RawMessage `json:"type"`
	}
	if json.Unmarshal(a.raw, &head) != nil {
		return ""
	}
	var typ string
	if json.Unmarshal(head.Type, &typ) != nil {
		return ""
	}
	return ActionType(typ)
}

// Payload returns the raw "payload" value, or nil when absent.
func (a Action) Payload() json.RawMessage {
	var head struct {
		Payload json.RawMessage `json:"payload"`
	}
	if json.Unmarshal(a.raw, &head) != nil {
		return nil
	}
	return head.Payload
}

// ActionEnvelope is the only success body of POST /process.
type ActionEnvelope struct {
	Text    string   `json:"text"`
	Actions []Action `json:"actions"`
}

type ErrorResponse struct {
	Detail string `json:"detail"`
}

type StatusResponse struct {
	Status  string `json:"status"`
	Engine  string `json:"engine"`
	Version string `json:"version"`
}

type HealthResponse struct {
	Status    string  `json:"status"`
	Timestamp float64 `json:"timestamp"`
}
