package server

import (
	"fmt"

	"clown-builder-backend/internal/config"
	"clown-builder-backend/internal/llm"
	"clown-builder-backend/internal/llm/gemini"
	"clown-builder-backend/internal/llm/openai"
)

func newGenerator(cfg config.Config) (llm.Generator, error) {
	switch cfg.Provider {
	case "gemini", "":
		return gemini.NewClient(cfg.BaseURL, nil), nil
	case "openai":
		return openai.NewClient(cfg.BaseURL), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", cfg.Provider)
	}
}
