package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/snappy-loop/storybook/internal/config"
	"github.com/snappy-loop/storybook/internal/kafka"
	"github.com/snappy-loop/storybook/internal/models"
	"github.com/spf13/cobra"
)

func newEventsCmd(cfg *config.Config) *cobra.Command {
	var (
		groupID string
		storyID string
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print story events from Kafka as JSON lines",
		Long: `Tails KAFKA_TOPIC_EVENTS and prints one JSON object per event. Without --group
only new events are shown and no offsets are committed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(cfg.KafkaBrokers) == 0 {
				return errors.New("KAFKA_BROKERS is not configured")
			}
			out := cmd.OutOrStdout()
			enc := json.NewEncoder(out)

			handler := kafka.EventHandlerFunc(func(ctx context.Context, ev *models.StoryEvent) error {
				if storyID != "" && ev.StoryID.String() != storyID {
					return nil
				}
				return enc.Encode(ev)
			})
			consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopicEvents, groupID, handler)
			defer consumer.Close()

			err := consumer.Start(cmd.Context())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("consume %s: %w", cfg.KafkaTopicEvents, err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&groupID, "group", "", "consumer group ID (commits offsets)")
	cmd.Flags().StringVar(&storyID, "story", "", "only print events of this story ID")
	return cmd
}
