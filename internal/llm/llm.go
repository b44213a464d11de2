package llm

import "context"

// GenerationConfig holds the sampling parameters sent with every call.
// Providers ignore fields they cannot express.
type GenerationConfig struct {
	Temperature     float32 `yaml:"temperature"`
	TopP            float32 `yaml:"top_p"`
	TopK            int     `yaml:"top_k"`
	MaxOutputTokens int     `yaml:"max_output_tokens"`
	JSONResponse    bool    `yaml:"json_response"`
}

// Call is everything one upstream invocation needs. The credential lives
// here and nowhere else, so concurrent calls cannot observe each other's key.
type Call struct {
	APIKey string
	Model  string
	System string
	Prompt string
	Config GenerationConfig
}

// Generator turns a prompt into raw model text. Implementations must not
// keep per-call state on the receiver.
type Generator interface {
	Generate(ctx context.Context, call Call) (string, error)
}

// GeneratorFunc adapts a plain function to Generator.
type GeneratorFunc func(ctx context.Context, call Call) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, call Call) (string, error) {
	return f(ctx, call)
}
