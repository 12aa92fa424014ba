package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Image provider names accepted by IMAGE_PROVIDER.
const (
	ProviderHuggingFace = "huggingface"
	ProviderGemini      = "gemini"
	ProviderOpenAI      = "openai"
)

// Config holds application configuration
type Config struct {
	// Server
	HTTPAddr         string
	HTTPWriteTimeout time.Duration
	LogLevel         string

	// Access: bcrypt hash of the shared access key; empty disables auth
	AccessKeyHash string

	// Requests
	MaxPromptLength int

	// Image provider
	ImageProvider   string // huggingface, gemini, openai
	ProviderTimeout time.Duration

	// Hugging Face Inference API
	HFToken       string
	HFAPIEndpoint string
	HFImageModel  string

	// Gemini API
	GeminiAPIKey             string
	GeminiAPIEndpoint        string // if set, overrides default Gemini API base URL
	GeminiModelStory         string
	GeminiModelStoryFallback string // "none" in the environment disables the fallback tier
	GeminiModelImage         string

	// OpenAI
	OpenAIAPIKey      string
	OpenAIAPIEndpoint string
	OpenAIImageModel  string

	// Stories
	StoryPageCount    int
	StoryTTL          time.Duration
	ImageRateInterval time.Duration // 0 disables pacing
	ImageRateBurst    int

	// Kafka (empty brokers disables event publishing)
	KafkaBrokers     []string
	KafkaTopicEvents string

	// Webhook (empty URL disables delivery)
	WebhookURL            string
	WebhookSecret         string
	WebhookMaxRetries     int
	WebhookRetryBaseDelay time.Duration
	WebhookRetryMaxDelay  time.Duration

	// S3/Storage (empty bucket disables export)
	S3Endpoint   string
	S3Region     string
	S3Bucket     string
	S3AccessKey  string
	S3SecretKey  string
	S3PublicURL  string
	S3PresignTTL time.Duration
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		HTTPWriteTimeout: getEnvDuration("HTTP_WRITE_TIMEOUT", 120*time.Second),
		LogLevel:         getEnv("LOG_LEVEL", "info"),

		AccessKeyHash: getEnv("ACCESS_KEY_HASH", ""),

		MaxPromptLength: clampMin(getEnvInt("MAX_PROMPT_LENGTH", 4000), 1),

		ImageProvider:   strings.ToLower(getEnv("IMAGE_PROVIDER", ProviderHuggingFace)),
		ProviderTimeout: getEnvDuration("PROVIDER_TIMEOUT", 0),

		HFToken:       getEnv("HF_TOKEN", ""),
		HFAPIEndpoint: getEnv("HF_API_ENDPOINT", "https://api-inference.huggingface.co"),
		HFImageModel:  getEnv("HF_IMAGE_MODEL", "black-forest-labs/FLUX.1-schnell"),

		GeminiAPIKey:             getEnv("GEMINI_API_KEY", ""),
		GeminiAPIEndpoint:        getEnv("GEMINI_API_ENDPOINT", ""),
		GeminiModelStory:         getEnv("GEMINI_MODEL_STORY", "gemini-2.0-flash"),
		GeminiModelStoryFallback: getEnvOptional("GEMINI_MODEL_STORY_FALLBACK", "gemini-2.0-flash-lite"),
		GeminiModelImage:         getEnv("GEMINI_MODEL_IMAGE", "gemini-2.0-flash-preview-image-generation"),

		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIAPIEndpoint: getEnv("OPENAI_API_ENDPOINT", ""),
		OpenAIImageModel:  getEnv("OPENAI_IMAGE_MODEL", "dall-e-3"),

		StoryPageCount:    clampMin(getEnvInt("STORY_PAGE_COUNT", 4), 1),
		StoryTTL:          getEnvDuration("STORY_TTL", time.Hour),
		ImageRateInterval: getEnvDuration("IMAGE_RATE_INTERVAL", 0),
		ImageRateBurst:    clampMin(getEnvInt("IMAGE_RATE_BURST", 2), 1),

		KafkaBrokers:     getEnvList("KAFKA_BROKERS"),
		KafkaTopicEvents: getEnv("KAFKA_TOPIC_EVENTS", "storybook.events.v1"),

		WebhookURL:            getEnv("WEBHOOK_URL", ""),
		WebhookSecret:         getEnv("WEBHOOK_SECRET", ""),
		WebhookMaxRetries:     clampMin(getEnvInt("WEBHOOK_MAX_RETRIES", 3), 0),
		WebhookRetryBaseDelay: getEnvDuration("WEBHOOK_RETRY_BASE_DELAY", time.Second),
		WebhookRetryMaxDelay:  getEnvDuration("WEBHOOK_RETRY_MAX_DELAY", 30*time.Second),

		S3Endpoint:   getEnv("S3_ENDPOINT", ""),
		S3Region:     getEnv("S3_REGION", "us-east-1"),
		S3Bucket:     getEnv("S3_BUCKET", ""),
		S3AccessKey:  getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:  getEnv("S3_SECRET_KEY", ""),
		S3PublicURL:  getEnv("S3_PUBLIC_URL", ""),
		S3PresignTTL: getEnvDuration("S3_PRESIGN_TTL", 24*time.Hour),
	}
}

// StorageEnabled reports whether story export to S3 is configured.
func (c *Config) StorageEnabled() bool {
	return c.S3Bucket != ""
}

// WebhookEnabled reports whether story events are posted to a webhook.
func (c *Config) WebhookEnabled() bool {
	return c.WebhookURL != ""
}

// EventsEnabled reports whether story events are published to Kafka.
func (c *Config) EventsEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOptional is getEnv where the literal value "none" means explicitly unset.
func getEnvOptional(key, defaultValue string) string {
	value := getEnv(key, defaultValue)
	if strings.EqualFold(value, "none") {
		return ""
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated value, dropping empty items.
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// clampMin returns v if v >= min, otherwise min. Used to ensure config values are in valid range.
func clampMin(v, min int) int {
	if v < min {
		return min
	}
	return v
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
