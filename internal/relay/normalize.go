package relay

import (
	"encoding/json"
	"errors"
	"strings"

	"clown-builder-backend/internal/types"
)

// FallbackText is returned to the caller when the model output cannot be
// read as an action envelope.
const FallbackText = "I understood your request, but I couldn't turn the AI response into canvas changes. Please try rephrasing it."

// ParseStage reports which strategy produced the envelope.
type ParseStage int

const (
	StageDirect ParseStage = iota
	StageExtracted
	StageFallback
)

func (s ParseStage) String() string {
	switch s {
	case StageDirect:
		return "direct"
	case StageExtracted:
		return "extracted"
	default:
		return "fallback"
	}
}

var (
	errNotObject      = errors.New("not a JSON object")
	errNoEnvelopeKeys = errors.New("object has neither text nor actions")
)

// Normalize turns raw model text into an envelope: a direct parse first, then
// the substring from the first '{' to the last '}', then the fallback
// envelope. It never fails.
func Normalize(raw string) (types.ActionEnvelope, ParseStage) {
	text := strings.TrimSpace(raw)
	if env, err := parseEnvelope(text); err == nil {
		return env, StageDirect
	}
	if candidate, ok := extractObject(text); ok {
		if env, err := parseEnvelope(candidate); err == nil {
			return env, StageExtracted
		}
	}
	return FallbackEnvelope(), StageFallback
}

// FallbackEnvelope is the safe response for unusable model output.
func FallbackEnvelope() types.ActionEnvelope {
	return types.ActionEnvelope{Text: FallbackText, Actions: []types.Action{}}
}

func parseEnvelope(s string) (types.ActionEnvelope, error) {
	if !strings.HasPrefix(s, "{") {
		return types.ActionEnvelope{}, errNotObject
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &keys); err != nil {
		return types.ActionEnvelope{}, err
	}
	_, hasText := keys["text"]
	_, hasActions := keys["actions"]
	if !hasText && !hasActions {
		return types.ActionEnvelope{}, errNoEnvelopeKeys
	}
	var env types.ActionEnvelope
	if err := json.Unmarshal([]byte(s), &env); err != nil {
		return types.ActionEnvelope{}, err
	}
	if env.Actions == nil {
		env.Actions = []types.Action{}
	}
	return env, nil
}

// extractObject returns the greedy span from the first '{' to the last '}'.
func extractObject(raw string) (string, bool) {
	first := strings.IndexByte(raw, '{')
	last := strings.LastIndexByte(raw, '}')
	if first < 0 || last <= first {
		return "", false
	}
	return raw[first : last+1], true
}
