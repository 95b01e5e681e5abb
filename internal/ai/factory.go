// Package ai selects the configured inference provider. The pipeline stages
// only ever see the models.AIProvider interface; the error taxonomy lives in
// the aierr subpackage so providers stay free of this package.
package ai

import (
	"fmt"

	"github.com/finsighthq/finsight/internal/ai/anthropic"
	"github.com/finsighthq/finsight/internal/ai/ollama"
	"github.com/finsighthq/finsight/internal/ai/openai"
	"github.com/finsighthq/finsight/internal/ai/vllm"
	"github.com/finsighthq/finsight/internal/config"
	"github.com/finsighthq/finsight/pkg/models"
)

// NewProvider constructs the appropriate AI provider based on config.
// Called once at server startup.
func NewProvider(cfg config.AIConfig) (models.AIProvider, error) {
	switch cfg.Provider {
	case "ollama":
		return ollama.NewProvider(cfg.Ollama, cfg.InferenceTimeout), nil
	case "vllm":
		return vllm.NewProvider(cfg.VLLM, cfg.InferenceTimeout), nil
	case "openai":
		return openai.NewProvider(cfg.OpenAI, cfg.InferenceTimeout), nil
	case "anthropic":
		return anthropic.NewProvider(cfg.Anthropic, cfg.InferenceTimeout), nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q: must be one of ollama, vllm, openai, anthropic", cfg.Provider)
	}
}
