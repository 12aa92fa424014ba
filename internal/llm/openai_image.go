package llm

import (
	"context"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
	"github.com/snappy-loop/storybook/internal/models"
)

// ProviderOpenAI is the provider tag for the OpenAI images API.
const ProviderOpenAI = "openai"

// OpenAIImageClient generates images with the OpenAI images API
type OpenAIImageClient struct {
	model  string
	client *openai.Client // nil when no API key is configured
}

// NewOpenAIImageClient creates the client. baseURL optionally overrides the API base URL (OpenAI-compatible servers).
func NewOpenAIImageClient(apiKey, baseURL, model string, timeout time.Duration) *OpenAIImageClient {
	c := &OpenAIImageClient{model: model}
	if apiKey == "" {
		log.Warn().Msg("OPENAI_API_KEY not set; OpenAI image requests will fail")
		return c
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	config.HTTPClient = &http.Client{Timeout: timeout}
	c.client = openai.NewClientWithConfig(config)

	log.Info().
		Str("model", model).
		Str("base_url", config.BaseURL).
		Msg("OpenAI image client initialized")
	return c
}

// Name returns the provider tag.
func (c *OpenAIImageClient) Name() string { return ProviderOpenAI }

// Ready reports a missing OPENAI_API_KEY.
func (c *OpenAIImageClient) Ready() error {
	if c.client == nil {
		return &CredentialError{Name: "OPENAI_API_KEY"}
	}
	return nil
}

// GenerateImage requests a single base64-encoded image.
func (c *OpenAIImageClient) GenerateImage(ctx context.Context, prompt string) (*models.GeneratedImage, error) {
	if err := c.Ready(); err != nil {
		return nil, err
	}

	log.Debug().
		Str("model", c.model).
		Str("prompt", promptPreview(prompt, 50)).
		Msg("Generating image")

	resp, err := c.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          c.model,
		N:              1,
		Size:           openai.CreateImageSize1024x1024,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return nil, upstreamFromSDK(ProviderOpenAI, err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, ErrEmptyBody
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, &MalformedResponseError{Provider: ProviderOpenAI, Reason: "invalid base64 image", Err: err}
	}
	return buildImage(ProviderOpenAI, c.model, prompt, data, "")
}
