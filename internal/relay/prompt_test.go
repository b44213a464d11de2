package relay

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPromptSpec_Embedded(t *testing.T) {
	spec, err := LoadPromptSpec("")
	require.NoError(t, err)

	assert.Contains(t, spec.System, "JSON")
	for _, action := range []string{"ADD_ELEMENT", "SET_ELEMENTS", "UPDATE_ELEMENT", "CLEAR_CANVAS"} {
		assert.Contains(t, spec.System, action)
	}
	assert.InDelta(t, 0.2, spec.Generation.Temperature, 0.0001)
	assert.InDelta(t, 0.8, spec.Generation.TopP, 0.0001)
	assert.Equal(t, 40, spec.Generation.TopK)
	assert.Equal(t, 8192, spec.Generation.MaxOutputTokens)
	assert.True(t, spec.Generation.JSONResponse)
}

func TestLoadPromptSpec_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.yaml")
	body := "system: be brief\nuser_template: \"Q: {{message}}\"\ngeneration:\n  temperature: 0.1\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	spec, err := LoadPromptSpec(path)
	require.NoError(t, err)
	assert.Equal(t, "be brief", spec.System)
	assert.Equal(t, defaultMaxTokens, spec.Generation.MaxOutputTokens)
	assert.Equal(t, "Q: hi", spec.BuildPrompt("hi", nil))
}

func TestLoadPromptSpec_Invalid(t *testing.T) {
	_, err := LoadPromptSpec(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = ParsePromptSpec([]byte("system: \"\"\nuser_template: \"{{message}}\"\n"))
	require.Error(t, err)

	_, err = ParsePromptSpec([]byte("system: x\nuser_template: no placeholder\n"))
	require.Error(t, err)

	_, err = ParsePromptSpec([]byte("system: [unclosed"))
	require.Error(t, err)
}

func TestBuildPrompt(t *testing.T) {
	spec, err := LoadPromptSpec("")
	require.NoError(t, err)

	t.Run("indents elements", func(t *testing.T) {
		out := spec.BuildPrompt("add a footer", json.RawMessage(`[{"tag":"div","style":{}}]`))
		assert.Contains(t, out, "add a footer")
		assert.Contains(t, out, "[\n  {\n    \"tag\": \"div\"")
	})

	t.Run("missing elements become empty list", func(t *testing.T) {
		for _, raw := range []json.RawMessage{nil, json.RawMessage("null"), json.RawMessage("  ")} {
			out := spec.BuildPrompt("x", raw)
			assert.Contains(t, out, "CURRENT CANVAS ELEMENTS (JSON):\n[]")
		}
	})

	t.Run("user placeholders are not expanded", func(t *testing.T) {
		out := spec.BuildPrompt("literal {{elements}} please", json.RawMessage(`[]`))
		assert.Contains(t, out, "literal {{elements}} please")
	})

	t.Run("empty message is allowed", func(t *testing.T) {
		out := spec.BuildPrompt("", json.RawMessage(`[]`))
		assert.Contains(t, out, "USER REQUEST:\n\n")
	})
}
