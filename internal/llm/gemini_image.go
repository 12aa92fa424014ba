package llm

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/snappy-loop/storybook/internal/models"
	unifiedgenai "google.golang.org/genai"
)

// ProviderGemini is the provider tag for Gemini native image output.
const ProviderGemini = "gemini"

type geminiContentFunc func(ctx context.Context, model string, contents []*unifiedgenai.Content, config *unifiedgenai.GenerateContentConfig) (*unifiedgenai.GenerateContentResponse, error)

// GeminiImageClient generates images with the unified genai SDK and IMAGE response modality
type GeminiImageClient struct {
	model    string
	generate geminiContentFunc // nil when no API key is configured
}

// NewGeminiImageClient creates the client. apiEndpoint optionally overrides the Gemini API base URL.
func NewGeminiImageClient(ctx context.Context, apiKey, apiEndpoint, model string, timeout time.Duration) (*GeminiImageClient, error) {
	c := &GeminiImageClient{model: model}
	if apiKey == "" {
		log.Warn().Msg("GEMINI_API_KEY not set; Gemini image requests will fail")
		return c, nil
	}

	cfg := &unifiedgenai.ClientConfig{
		APIKey:     apiKey,
		Backend:    unifiedgenai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: timeout},
	}
	if apiEndpoint != "" {
		cfg.HTTPOptions = unifiedgenai.HTTPOptions{BaseURL: apiEndpoint}
	}
	client, err := unifiedgenai.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c.generate = client.Models.GenerateContent

	log.Info().
		Str("model", model).
		Str("api_endpoint", apiEndpoint).
		Msg("Gemini image client initialized")
	return c, nil
}

// Name returns the provider tag.
func (c *GeminiImageClient) Name() string { return ProviderGemini }

// Ready reports a missing GEMINI_API_KEY.
func (c *GeminiImageClient) Ready() error {
	if c.generate == nil {
		return &CredentialError{Name: "GEMINI_API_KEY"}
	}
	return nil
}

// GenerateImage returns the first inline image blob of the response.
func (c *GeminiImageClient) GenerateImage(ctx context.Context, prompt string) (*models.GeneratedImage, error) {
	if err := c.Ready(); err != nil {
		return nil, err
	}

	contents := []*unifiedgenai.Content{
		{
			Role:  "user",
			Parts: []*unifiedgenai.Part{unifiedgenai.NewPartFromText(prompt)},
		},
	}
	config := &unifiedgenai.GenerateContentConfig{
		// Image models reject IMAGE alone; the text part is ignored.
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}

	log.Debug().
		Str("model", c.model).
		Str("prompt", promptPreview(prompt, 50)).
		Msg("Generating image")

	resp, err := c.generate(ctx, c.model, contents, config)
	if err != nil {
		return nil, upstreamFromSDK(ProviderGemini, err)
	}
	return c.imageFromResponse(prompt, resp)
}

func (c *GeminiImageClient) imageFromResponse(prompt string, resp *unifiedgenai.GenerateContentResponse) (*models.GeneratedImage, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, ErrEmptyBody
	}
	var text string
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil {
				continue
			}
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return buildImage(ProviderGemini, c.model, prompt, part.InlineData.Data, part.InlineData.MIMEType)
			}
			text += part.Text
		}
	}
	if text == "" {
		return nil, ErrEmptyBody
	}
	logProviderResponse("GenerateImage", ProviderGemini, text)
	return nil, &MalformedResponseError{Provider: ProviderGemini, Reason: "no image blob in response"}
}
