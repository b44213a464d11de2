package relay

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"clown-builder-backend/internal/llm"
)

//go:embed prompts/editor.yaml
var defaultPromptSpec []byte

const (
	messagePlaceholder  = "{{message}}"
	elementsPlaceholder = "{{elements}}"
	defaultMaxTokens    = 8192
)

// PromptSpec is the fixed instruction set sent with every call. It is loaded
// once at startup and never derived from a request.
type PromptSpec struct {
	System       string               `yaml:"system"`
	UserTemplate string               `yaml:"user_template"`
	Generation   llm.GenerationConfig `yaml:"generation"`
}

// LoadPromptSpec reads the spec from path, or the embedded default when path
// is empty.
func LoadPromptSpec(path string) (PromptSpec, error) {
	b := defaultPromptSpec
	if strings.TrimSpace(path) != "" {
		var err error
		b, err = os.ReadFile(path)
		if err != nil {
			return PromptSpec{}, err
		}
	}
	return ParsePromptSpec(b)
}

func ParsePromptSpec(b []byte) (PromptSpec, error) {
	var spec PromptSpec
	if err := yaml.Unmarshal(b, &spec); err != nil {
		return PromptSpec{}, fmt.Errorf("parse prompt spec: %w", err)
	}
	if strings.TrimSpace(spec.System) == "" {
		return PromptSpec{}, fmt.Errorf("prompt spec: system instruction is empty")
	}
	if !strings.Contains(spec.UserTemplate, messagePlaceholder) {
		return PromptSpec{}, fmt.Errorf("prompt spec: user_template must contain %s", messagePlaceholder)
	}
	if spec.Generation.MaxOutputTokens <= 0 {
		spec.Generation.MaxOutputTokens = defaultMaxTokens
	}
	return spec, nil
}

// BuildPrompt fills the user template with the message and the indented
// canvas JSON. Substitution is single-pass, so placeholders typed by the user
// are left alone.
func (p PromptSpec) BuildPrompt(message string, elements json.RawMessage) string {
	r := strings.NewReplacer(
		messagePlaceholder, message,
		elementsPlaceholder, formatElements(elements),
	)
	return r.Replace(p.UserTemplate)
}

func formatElements(elements json.RawMessage) string {
	trimmed := bytes.TrimSpace(elements)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "[]"
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, trimmed, "", "  "); err != nil {
		return string(trimmed)
	}
	return buf.String()
}
