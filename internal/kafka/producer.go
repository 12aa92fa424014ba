package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"github.com/snappy-loop/storybook/internal/models"
)

// messageWriter is the subset of *kafka.Writer the producer needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes story events to Kafka
type Producer struct {
	writer messageWriter
	topic  string
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireOne,
		Async:                  false,
	}

	log.Info().
		Strs("brokers", brokers).
		Str("topic", topic).
		Msg("Kafka producer initialized")

	return &Producer{
		writer: writer,
		topic:  topic,
	}
}

// PublishStoryEvent publishes a story event keyed by story ID, so events of one story stay ordered.
func (p *Producer) PublishStoryEvent(ctx context.Context, ev models.StoryEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal story event: %w", err)
	}

	kafkaMsg := kafka.Message{
		Key:   []byte(ev.StoryID.String()),
		Value: data,
	}

	if err := p.writer.WriteMessages(ctx, kafkaMsg); err != nil {
		return fmt.Errorf("failed to write story event to kafka: %w", err)
	}

	log.Debug().
		Str("story_id", ev.StoryID.String()).
		Str("event", ev.Type).
		Str("topic", p.topic).
		Msg("Story event published to Kafka")

	return nil
}

// Close closes the producer
func (p *Producer) Close() error {
	log.Info().Msg("Closing Kafka producer")
	return p.writer.Close()
}
