package agents

import (
	"context"
	"fmt"

	"github.com/snappy-loop/storybook/internal/config"
	"github.com/snappy-loop/storybook/internal/llm"
	"github.com/snappy-loop/storybook/internal/models"
)

// ImageAgent turns a prompt into one image. It returns an image or an error, never both.
type ImageAgent interface {
	Name() string
	// Ready returns the provider's CredentialError when it cannot be called at all.
	Ready() error
	GenerateImage(ctx context.Context, prompt string) (*models.GeneratedImage, error)
}

// StoryAgent produces the story skeleton (title, page texts, illustration prompts) for a theme.
type StoryAgent interface {
	Pages() int
	GenerateStory(ctx context.Context, theme string) (*models.StorySkeleton, error)
}

// NewImageAgent returns the ImageAgent for cfg.ImageProvider, instrumented with provider metrics.
func NewImageAgent(ctx context.Context, cfg *config.Config) (ImageAgent, error) {
	var provider ImageAgent
	switch cfg.ImageProvider {
	case config.ProviderHuggingFace, "":
		provider = llm.NewHuggingFaceClient(cfg.HFToken, cfg.HFAPIEndpoint, cfg.HFImageModel, cfg.ProviderTimeout)
	case config.ProviderGemini:
		c, err := llm.NewGeminiImageClient(ctx, cfg.GeminiAPIKey, cfg.GeminiAPIEndpoint, cfg.GeminiModelImage, cfg.ProviderTimeout)
		if err != nil {
			return nil, fmt.Errorf("gemini image client: %w", err)
		}
		provider = c
	case config.ProviderOpenAI:
		provider = llm.NewOpenAIImageClient(cfg.OpenAIAPIKey, cfg.OpenAIAPIEndpoint, cfg.OpenAIImageModel, cfg.ProviderTimeout)
	default:
		return nil, fmt.Errorf("unknown IMAGE_PROVIDER %q (want huggingface, gemini or openai)", cfg.ImageProvider)
	}
	return &instrumentedImageAgent{next: provider}, nil
}

// NewStoryAgent returns the Gemini StoryAgent, instrumented with provider metrics.
func NewStoryAgent(ctx context.Context, cfg *config.Config) StoryAgent {
	client := llm.NewStoryClient(ctx, llm.StoryClientConfig{
		APIKey:        cfg.GeminiAPIKey,
		APIEndpoint:   cfg.GeminiAPIEndpoint,
		Model:         cfg.GeminiModelStory,
		FallbackModel: cfg.GeminiModelStoryFallback,
		Pages:         cfg.StoryPageCount,
		Timeout:       cfg.ProviderTimeout,
	})
	return &instrumentedStoryAgent{next: client}
}
