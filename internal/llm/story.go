package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog/log"
	"github.com/snappy-loop/storybook/internal/models"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"google.golang.org/api/option"
)

// StoryClientConfig configures the story structure requester
type StoryClientConfig struct {
	APIKey        string
	APIEndpoint   string // optional Gemini API base URL
	Model         string // primary, e.g. gemini-2.0-flash
	FallbackModel string // optional, tried when the primary fails
	Pages         int    // requested page count
	Timeout       time.Duration
}

// storyTier is one model able to answer the story prompt with raw JSON text.
type storyTier struct {
	name     string
	model    string
	generate func(ctx context.Context, prompt string) (string, error)
}

// StoryClient asks Gemini for a children's story skeleton (title plus page text and illustration prompts)
type StoryClient struct {
	hasKey  bool
	pages   int
	timeout time.Duration
	tiers   []storyTier
}

// NewStoryClient creates the client. Without an API key the client is still returned and every call fails with a CredentialError.
func NewStoryClient(ctx context.Context, cfg StoryClientConfig) *StoryClient {
	c := &StoryClient{hasKey: cfg.APIKey != "", pages: cfg.Pages, timeout: cfg.Timeout}
	if c.pages < 1 {
		c.pages = 1
	}
	if !c.hasKey {
		log.Warn().Msg("GEMINI_API_KEY not set; story requests will fail")
		return c
	}

	// Primary: genai client with response schema for structured JSON output
	genaiOpts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.APIEndpoint != "" {
		genaiOpts = append(genaiOpts, option.WithEndpoint(cfg.APIEndpoint))
	}
	genaiClient, err := genai.NewClient(ctx, genaiOpts...)
	if err != nil {
		log.Error().Err(err).Str("model", cfg.Model).Msg("Failed to initialize genai client for story generation")
	} else {
		c.tiers = append(c.tiers, storyTier{name: "primary", model: cfg.Model, generate: genaiStoryFunc(genaiClient, cfg.Model)})
	}

	// Fallback: langchaingo with JSON MIME type (no schema)
	if cfg.FallbackModel != "" {
		lcOpts := []googleai.Option{googleai.WithAPIKey(cfg.APIKey), googleai.WithDefaultModel(cfg.FallbackModel)}
		if cfg.APIEndpoint != "" {
			if hc := httpClientForEndpoint(cfg.APIEndpoint, 0); hc != nil {
				lcOpts = append(lcOpts, googleai.WithHTTPClient(hc))
			}
		}
		lc, err := googleai.New(ctx, lcOpts...)
		if err != nil {
			log.Error().Err(err).Str("model", cfg.FallbackModel).Msg("Failed to initialize story fallback model")
		} else {
			c.tiers = append(c.tiers, storyTier{name: "fallback", model: cfg.FallbackModel, generate: langchainStoryFunc(lc)})
		}
	}

	log.Info().
		Str("model_story", cfg.Model).
		Str("model_story_fallback", cfg.FallbackModel).
		Str("api_endpoint", cfg.APIEndpoint).
		Int("pages", c.pages).
		Int("tiers", len(c.tiers)).
		Msg("Story client initialized")
	return c
}

func genaiStoryFunc(client *genai.Client, modelName string) func(ctx context.Context, prompt string) (string, error) {
	return func(ctx context.Context, prompt string) (string, error) {
		model := client.GenerativeModel(modelName)
		model.ResponseMIMEType = "application/json"
		model.ResponseSchema = storyResponseSchema()
		resp, err := model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			return "", err
		}
		return extractTextFromGenaiResponse(resp), nil
	}
}

func langchainStoryFunc(model llms.Model) func(ctx context.Context, prompt string) (string, error) {
	return func(ctx context.Context, prompt string) (string, error) {
		messages := []llms.MessageContent{
			{Role: llms.ChatMessageTypeHuman, Parts: []llms.ContentPart{llms.TextContent{Text: prompt}}},
		}
		resp, err := model.GenerateContent(ctx, messages, llms.WithResponseMIMEType("application/json"))
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", nil
		}
		return resp.Choices[0].Content, nil
	}
}

// extractTextFromGenaiResponse returns the concatenated text from the first candidate's parts.
func extractTextFromGenaiResponse(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String()
}

// storyResponseSchema returns the genai.Schema for {"title": "...", "pages": [{"text": "...", "imagePrompt": "..."}]}.
func storyResponseSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"title": {Type: genai.TypeString, Description: "Story title"},
			"pages": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"text":        {Type: genai.TypeString, Description: "A few sentences of the story"},
						"imagePrompt": {Type: genai.TypeString, Description: "Illustration prompt for this page"},
					},
					Required: []string{"text", "imagePrompt"},
				},
			},
		},
		Required: []string{"title", "pages"},
	}
}

// buildStoryPrompt renders the story instruction for a theme.
func buildStoryPrompt(theme string, pages int) string {
	return fmt.Sprintf(`Create a short children's story based on: %q.
The story should have exactly %d pages.
For each page, provide:
1. 'text': A few sentences of the story.
2. 'imagePrompt': A detailed, descriptive prompt for an AI image generator to illustrate this specific page. Keep the character descriptions consistent across pages. Use a vibrant, magical, storybook illustration style.

Return the response in this exact JSON format:
{
  "title": "Story Title",
  "pages": [
    { "text": "...", "imagePrompt": "..." },
    ...
  ]
}`, theme, pages)
}

// Pages returns the page count requested from the provider.
func (c *StoryClient) Pages() int { return c.pages }

// GenerateStory requests a story skeleton for the theme. Tiers are tried in order; if all fail the primary's error is returned.
func (c *StoryClient) GenerateStory(ctx context.Context, theme string) (*models.StorySkeleton, error) {
	if !c.hasKey {
		return nil, &CredentialError{Name: "GEMINI_API_KEY"}
	}
	if len(c.tiers) == 0 {
		return nil, &UpstreamError{Provider: ProviderGemini, StatusCode: http.StatusBadGateway, Message: "no story model available"}
	}

	prompt := buildStoryPrompt(theme, c.pages)
	var firstErr error
	for _, tier := range c.tiers {
		skeleton, err := c.tryTier(ctx, tier, prompt)
		if err == nil {
			return skeleton, nil
		}
		log.Warn().Err(err).Str("model_tier", tier.name).Str("model", tier.model).Msg("Story model failed, trying next")
		if firstErr == nil {
			firstErr = err
		}
		if ctx.Err() != nil {
			break
		}
	}
	return nil, firstErr
}

func (c *StoryClient) tryTier(ctx context.Context, tier storyTier, prompt string) (*models.StorySkeleton, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	raw, err := tier.generate(ctx, prompt)
	if err != nil {
		return nil, upstreamFromSDK(ProviderGemini, err)
	}
	logProviderResponse("GenerateStory", ProviderGemini, raw)
	return parseStorySkeleton(raw)
}

// parseStorySkeleton decodes the provider JSON into a skeleton. Pages without an illustration prompt use their text.
func parseStorySkeleton(raw string) (*models.StorySkeleton, error) {
	raw = trimCodeFence(raw)
	if raw == "" {
		return nil, ErrEmptyBody
	}

	var skeleton models.StorySkeleton
	if err := json.Unmarshal([]byte(raw), &skeleton); err != nil {
		var syntaxErr *json.SyntaxError
		reason := "invalid story JSON"
		if errors.As(err, &syntaxErr) {
			reason = fmt.Sprintf("invalid story JSON at offset %d", syntaxErr.Offset)
		}
		return nil, &MalformedResponseError{Provider: ProviderGemini, Reason: reason, Err: err}
	}
	if len(skeleton.Pages) == 0 {
		return nil, &MalformedResponseError{Provider: ProviderGemini, Reason: "story has no pages"}
	}

	skeleton.Title = strings.TrimSpace(skeleton.Title)
	for i := range skeleton.Pages {
		p := &skeleton.Pages[i]
		p.Text = strings.TrimSpace(p.Text)
		p.ImagePrompt = strings.TrimSpace(p.ImagePrompt)
		if p.Text == "" && p.ImagePrompt == "" {
			return nil, &MalformedResponseError{Provider: ProviderGemini, Reason: fmt.Sprintf("page %d is empty", i+1)}
		}
		if p.ImagePrompt == "" {
			p.ImagePrompt = p.Text
		}
	}
	return &skeleton, nil
}
