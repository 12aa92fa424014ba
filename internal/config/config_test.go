package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"IMAGE_PROVIDER", "STORY_PAGE_COUNT", "KAFKA_BROKERS", "S3_BUCKET", "GEMINI_MODEL_STORY_FALLBACK", "WEBHOOK_URL", "WEBHOOK_MAX_RETRIES"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, ProviderHuggingFace, cfg.ImageProvider)
	assert.Equal(t, "black-forest-labs/FLUX.1-schnell", cfg.HFImageModel)
	assert.Equal(t, "gemini-2.0-flash", cfg.GeminiModelStory)
	assert.Equal(t, "gemini-2.0-flash-lite", cfg.GeminiModelStoryFallback)
	assert.Equal(t, 4, cfg.StoryPageCount)
	assert.Equal(t, time.Hour, cfg.StoryTTL)
	assert.Zero(t, cfg.ImageRateInterval)
	assert.False(t, cfg.EventsEnabled())
	assert.False(t, cfg.StorageEnabled())
	assert.False(t, cfg.WebhookEnabled())
	assert.Equal(t, 3, cfg.WebhookMaxRetries)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("IMAGE_PROVIDER", "OpenAI")
	t.Setenv("STORY_PAGE_COUNT", "0")
	t.Setenv("STORY_TTL", "15m")
	t.Setenv("KAFKA_BROKERS", "k1:9092, ,k2:9092")
	t.Setenv("S3_BUCKET", "storybook")
	t.Setenv("GEMINI_MODEL_STORY_FALLBACK", "none")
	t.Setenv("MAX_PROMPT_LENGTH", "not-a-number")
	t.Setenv("WEBHOOK_URL", "https://hooks.example.com/storybook")
	t.Setenv("WEBHOOK_MAX_RETRIES", "-2")

	cfg := Load()

	assert.Equal(t, ProviderOpenAI, cfg.ImageProvider)
	assert.Equal(t, 1, cfg.StoryPageCount, "page count is clamped to at least one")
	assert.Equal(t, 15*time.Minute, cfg.StoryTTL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.EventsEnabled())
	assert.True(t, cfg.StorageEnabled())
	assert.Empty(t, cfg.GeminiModelStoryFallback)
	assert.Equal(t, 4000, cfg.MaxPromptLength)
	assert.True(t, cfg.WebhookEnabled())
	assert.Equal(t, 0, cfg.WebhookMaxRetries)
}
