package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"github.com/snappy-loop/storybook/internal/models"
)

// messageReader is the subset of *kafka.Reader the consumer needs.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// EventHandler processes story events
type EventHandler interface {
	HandleEvent(ctx context.Context, ev *models.StoryEvent) error
}

// EventHandlerFunc adapts a func to EventHandler.
type EventHandlerFunc func(ctx context.Context, ev *models.StoryEvent) error

func (f EventHandlerFunc) HandleEvent(ctx context.Context, ev *models.StoryEvent) error {
	return f(ctx, ev)
}

// Consumer reads story events from Kafka
type Consumer struct {
	reader  messageReader
	handler EventHandler
	commit  bool
}

// NewConsumer creates a new Kafka consumer. An empty groupID reads without committing offsets.
func NewConsumer(brokers []string, topic, groupID string, handler EventHandler) *Consumer {
	cfg := kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	}
	if groupID != "" {
		cfg.CommitInterval = 0 // manual commits
		cfg.StartOffset = kafka.FirstOffset
	}
	reader := kafka.NewReader(cfg)
	if groupID == "" {
		// Without a group, tail new events only.
		if err := reader.SetOffset(kafka.LastOffset); err != nil {
			log.Warn().Err(err).Msg("Failed to seek Kafka reader to the last offset")
		}
	}

	log.Info().
		Strs("brokers", brokers).
		Str("topic", topic).
		Str("group_id", groupID).
		Msg("Kafka consumer initialized")

	return &Consumer{
		reader:  reader,
		handler: handler,
		commit:  groupID != "",
	}
}

// Start consumes events until ctx is cancelled. A handler error is retried with backoff, then the event is skipped.
func (c *Consumer) Start(ctx context.Context) error {
	log.Info().Msg("Starting Kafka consumer")

	const (
		maxAttempts = 5
		baseDelay   = 500 * time.Millisecond
		maxDelay    = 10 * time.Second
	)

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("Consumer context cancelled, stopping")
				return ctx.Err()
			}
			log.Error().Err(err).Msg("Failed to fetch message")
			continue
		}

		var lastErr error
		for attempt := 0; attempt < maxAttempts; attempt++ {
			if lastErr = c.processMessage(ctx, msg); lastErr == nil {
				break
			}
			log.Error().
				Err(lastErr).
				Str("topic", msg.Topic).
				Int("partition", msg.Partition).
				Int64("offset", msg.Offset).
				Int("attempt", attempt+1).
				Msg("Failed to process message - will retry")

			delay := baseDelay * time.Duration(1<<uint(attempt))
			if delay > maxDelay {
				delay = maxDelay
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		if lastErr != nil {
			log.Error().
				Err(lastErr).
				Int64("offset", msg.Offset).
				Msg("Message processing failed after all retries - skipping message")
		}

		if c.commit {
			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				log.Error().Err(err).Msg("Failed to commit message")
			}
		}
	}
}

// processMessage decodes and handles a single Kafka message. Undecodable messages are not retried.
func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) error {
	var ev models.StoryEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		log.Warn().Err(err).Int64("offset", msg.Offset).Msg("Skipping undecodable story event")
		return nil
	}
	if err := c.handler.HandleEvent(ctx, &ev); err != nil {
		return fmt.Errorf("handler error: %w", err)
	}
	return nil
}

// Close closes the consumer
func (c *Consumer) Close() error {
	log.Info().Msg("Closing Kafka consumer")
	return c.reader.Close()
}
