package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/snappy-loop/storybook/internal/models"
)

// ProviderHuggingFace is the provider tag for the Hugging Face Inference API.
const ProviderHuggingFace = "huggingface"

// maxImageBytes bounds a single provider image response.
const maxImageBytes = 32 << 20

// HuggingFaceClient calls a text-to-image model on the Hugging Face Inference API
type HuggingFaceClient struct {
	token      string
	endpoint   string
	model      string
	httpClient *http.Client
	maxBytes   int64
}

// NewHuggingFaceClient creates a client for the given model. An empty token is accepted; calls then fail with a CredentialError.
func NewHuggingFaceClient(token, endpoint, model string, timeout time.Duration) *HuggingFaceClient {
	log.Info().
		Str("endpoint", endpoint).
		Str("model", model).
		Bool("token", token != "").
		Msg("Hugging Face image client initialized")
	return &HuggingFaceClient{
		token:      token,
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		maxBytes:   maxImageBytes,
	}
}

// Name returns the provider tag.
func (c *HuggingFaceClient) Name() string { return ProviderHuggingFace }

// Ready reports a missing HF_TOKEN.
func (c *HuggingFaceClient) Ready() error {
	if c.token == "" {
		return &CredentialError{Name: "HF_TOKEN"}
	}
	return nil
}

// GenerateImage sends the prompt as {"inputs": prompt} and returns the binary image from the response body.
func (c *HuggingFaceClient) GenerateImage(ctx context.Context, prompt string) (*models.GeneratedImage, error) {
	if err := c.Ready(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(map[string]string{"inputs": prompt})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	url := c.endpoint + "/models/" + c.model
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	log.Debug().
		Str("model", c.model).
		Str("prompt", promptPreview(prompt, 50)).
		Msg("Generating image")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UpstreamError{
			Provider:   ProviderHuggingFace,
			StatusCode: http.StatusBadGateway,
			Message:    fmt.Sprintf("Hugging Face request failed: %v", err),
			Err:        err,
		}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, &UpstreamError{
			Provider:   ProviderHuggingFace,
			StatusCode: http.StatusBadGateway,
			Message:    fmt.Sprintf("read Hugging Face response: %v", err),
			Err:        err,
		}
	}

	if int64(len(data)) > c.maxBytes {
		return nil, &MalformedResponseError{
			Provider: ProviderHuggingFace,
			Reason:   fmt.Sprintf("body exceeds %d bytes", c.maxBytes),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := huggingFaceErrorMessage(resp.StatusCode, data)
		log.Warn().
			Int("status", resp.StatusCode).
			Str("model", c.model).
			Str("error", msg).
			Msg("Hugging Face image request rejected")
		return nil, &UpstreamError{Provider: ProviderHuggingFace, StatusCode: resp.StatusCode, Message: msg}
	}

	img, err := buildImage(ProviderHuggingFace, c.model, prompt, data, resp.Header.Get("Content-Type"))
	if err != nil {
		if IsMalformed(err) {
			logProviderResponse("GenerateImage", ProviderHuggingFace, string(data))
		}
		return nil, err
	}
	log.Info().
		Str("caller", "GenerateImage").
		Str("provider", ProviderHuggingFace).
		Int("image_size_bytes", len(img.Data)).
		Str("mime_type", img.MimeType).
		Msg("Provider response (image)")
	return img, nil
}

// huggingFaceErrorMessage returns the "error" field of a JSON error body, or a generic message built from the status text.
func huggingFaceErrorMessage(status int, body []byte) string {
	var payload struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Error) > 0 {
		var s string
		if json.Unmarshal(payload.Error, &s) == nil {
			if s != "" {
				return s
			}
		} else if string(payload.Error) != "null" {
			// Some models return a list of errors; surface it raw.
			return string(payload.Error)
		}
	}
	return "Hugging Face API error: " + http.StatusText(status)
}
