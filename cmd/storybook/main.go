package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/snappy-loop/storybook/internal/config"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	logLevel string
	provider string
	pages    int
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cfg := &config.Config{}

	root := &cobra.Command{
		Use:          "storybook",
		Short:        "Generate images and illustrated stories from a prompt",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			*cfg = *config.Load()

			if opts.logLevel == "" {
				opts.logLevel = cfg.LogLevel
			}
			level, err := zerolog.ParseLevel(opts.logLevel)
			if err != nil {
				level = zerolog.InfoLevel
			}
			zerolog.SetGlobalLevel(level)
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

			if opts.provider != "" {
				cfg.ImageProvider = opts.provider
			}
			if opts.pages > 0 {
				cfg.StoryPageCount = opts.pages
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (default LOG_LEVEL or info)")
	root.PersistentFlags().StringVar(&opts.provider, "provider", "", "image provider: huggingface, gemini or openai (default IMAGE_PROVIDER)")
	root.PersistentFlags().IntVar(&opts.pages, "pages", 0, "number of story pages (default STORY_PAGE_COUNT)")

	root.AddCommand(newImageCmd(cfg), newStoryCmd(cfg), newEventsCmd(cfg))
	return root
}
