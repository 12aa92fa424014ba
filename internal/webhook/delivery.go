package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/snappy-loop/storybook/internal/config"
	"github.com/snappy-loop/storybook/internal/models"
)

// DeliveryError wraps webhook delivery errors with HTTP status code
type DeliveryError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *DeliveryError) Error() string {
	return e.Message
}

// IsRetryable reports whether the receiver may accept the same event later (5xx, 429).
func (e *DeliveryError) IsRetryable() bool {
	if e.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// Notifier posts story events to a webhook URL. The first attempt is made inline;
// transient failures are retried in the background with exponential backoff.
type Notifier struct {
	url        string
	secret     string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	retries sync.WaitGroup
}

// NewNotifier creates a notifier for cfg.WebhookURL.
func NewNotifier(cfg *config.Config) *Notifier {
	ctx, cancel := context.WithCancel(context.Background())
	return &Notifier{
		url:        cfg.WebhookURL,
		secret:     cfg.WebhookSecret,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		maxRetries: cfg.WebhookMaxRetries,
		baseDelay:  cfg.WebhookRetryBaseDelay,
		maxDelay:   cfg.WebhookRetryMaxDelay,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// PublishStoryEvent delivers ev. A transient failure is scheduled for retry and not returned.
func (n *Notifier) PublishStoryEvent(ctx context.Context, ev models.StoryEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = n.send(ctx, body)
	if err == nil {
		log.Debug().Str("story_id", ev.StoryID.String()).Str("event", ev.Type).Msg("Webhook delivered")
		return nil
	}
	if !retryable(err) || n.maxRetries <= 0 {
		return err
	}

	log.Warn().Err(err).
		Str("story_id", ev.StoryID.String()).
		Str("event", ev.Type).
		Msg("Webhook delivery failed on first attempt - scheduled for retry")

	n.retries.Add(1)
	go func() {
		defer n.retries.Done()
		n.retry(ev, body)
	}()
	return nil
}

// Close stops pending retries and waits for them to exit.
func (n *Notifier) Close() error {
	n.cancel()
	n.retries.Wait()
	return nil
}

func (n *Notifier) retry(ev models.StoryEvent, body []byte) {
	for attempt := 1; attempt <= n.maxRetries; attempt++ {
		select {
		case <-n.ctx.Done():
			return
		case <-time.After(n.backoff(attempt)):
		}

		err := n.send(n.ctx, body)
		if err == nil {
			log.Info().
				Str("story_id", ev.StoryID.String()).
				Str("event", ev.Type).
				Int("attempts", attempt+1).
				Msg("Webhook delivered successfully after retry")
			return
		}
		if !retryable(err) {
			log.Error().Err(err).Str("story_id", ev.StoryID.String()).Msg("Webhook delivery failed with permanent error - not retrying")
			return
		}
		log.Warn().Err(err).
			Str("story_id", ev.StoryID.String()).
			Int("attempt", attempt+1).
			Int("max_retries", n.maxRetries).
			Msg("Webhook retry failed")
	}
	log.Error().Str("story_id", ev.StoryID.String()).Str("event", ev.Type).Msg("Webhook delivery failed permanently after max retries")
}

// backoff returns baseDelay * 2^(attempt-1), capped at maxDelay.
func (n *Notifier) backoff(attempt int) time.Duration {
	d := n.baseDelay * time.Duration(1<<uint(attempt-1))
	if d > n.maxDelay || d <= 0 {
		d = n.maxDelay
	}
	return d
}

func (n *Notifier) send(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Storybook-Webhook/1.0")
	req.Header.Set("X-Storybook-Timestamp", fmt.Sprintf("%d", time.Now().Unix()))
	if n.secret != "" {
		req.Header.Set("X-Storybook-Signature", generateSignature(body, n.secret))
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &DeliveryError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("webhook returned status %d", resp.StatusCode),
			Body:       string(respBody),
		}
	}
	return nil
}

// retryable treats network errors as transient.
func retryable(err error) bool {
	var deliveryErr *DeliveryError
	if errors.As(err, &deliveryErr) {
		return deliveryErr.IsRetryable()
	}
	return true
}

// generateSignature generates HMAC-SHA256 signature for the payload
func generateSignature(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
