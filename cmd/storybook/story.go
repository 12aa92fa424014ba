package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/snappy-loop/storybook/internal/agents"
	"github.com/snappy-loop/storybook/internal/config"
	"github.com/snappy-loop/storybook/internal/markup"
	"github.com/snappy-loop/storybook/internal/models"
	"github.com/snappy-loop/storybook/internal/processor"
	"github.com/snappy-loop/storybook/internal/services"
	"github.com/snappy-loop/storybook/internal/session"
	"github.com/spf13/cobra"
)

func newStoryCmd(cfg *config.Config) *cobra.Command {
	var (
		outDir string
		retry  bool
	)

	cmd := &cobra.Command{
		Use:   "story <theme>",
		Short: "Write an illustrated story to a directory",
		Long: `Generates the story text, illustrates every page concurrently and writes
page-N.<ext> images plus story.md to the output directory. Pages whose
illustration failed are kept in story.md with the provider error.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := newLocalService(ctx, cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			created, err := svc.CreateStory(ctx, &models.StoryRequest{Prompt: strings.Join(args, " ")})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%q: illustrating %d pages\n", created.Title, len(created.Pages))
			story, err := follow(ctx, svc, created.ID, out)
			if err != nil {
				return err
			}

			if retry && story.Progress.Failed > 0 {
				for _, p := range story.Pages {
					if p.State != models.PageStateFailed {
						continue
					}
					fmt.Fprintf(out, "retrying page %d\n", p.Index+1)
					if _, err := svc.RetryPage(ctx, story.ID, p.Index); err != nil {
						if errors.Is(err, services.ErrPageNotRetryable) {
							fmt.Fprintf(out, "page %d: %v\n", p.Index+1, err)
							continue
						}
						return err
					}
				}
				if story, err = follow(ctx, svc, created.ID, out); err != nil {
					return err
				}
			}

			if err := writeStory(outDir, story); err != nil {
				return err
			}
			fmt.Fprintf(out, "wrote %s (%d/%d pages illustrated)\n",
				filepath.Join(outDir, "story.md"), story.Progress.Completed-story.Progress.Failed, story.Progress.Total)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "output", "o", "story", "output directory")
	cmd.Flags().BoolVar(&retry, "retry", false, "retry failed pages once")
	return cmd
}

// newLocalService wires an in-process story service without storage or event publishing.
func newLocalService(ctx context.Context, cfg *config.Config) (*services.StoryService, error) {
	images, err := agents.NewImageAgent(ctx, cfg)
	if err != nil {
		return nil, err
	}
	stories := agents.NewStoryAgent(ctx, cfg)
	proc := processor.NewStoryProcessor(images, nil, cfg)
	return services.NewStoryService(images, stories, proc, session.NewStore(cfg.StoryTTL), nil, cfg), nil
}

// follow prints page events until every page has finished its current attempt and returns the final snapshot.
func follow(ctx context.Context, svc *services.StoryService, id uuid.UUID, out io.Writer) (*models.Story, error) {
	snapshot, events, cancel, err := svc.Subscribe(ctx, id)
	if err != nil {
		return nil, err
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- svc.Wait(ctx)
		cancel()
	}()

	total := snapshot.Progress.Total
	for ev := range events {
		status := string(ev.Page.State)
		if ev.Page.State == models.PageStateFailed {
			status += ": " + ev.Page.Error
		}
		fmt.Fprintf(out, "[%d/%d] page %d %s\n", ev.Progress.Completed, total, ev.Page.Index+1, status)
	}
	if err := <-waitErr; err != nil {
		return nil, err
	}
	return svc.GetStory(ctx, id)
}

// writeStory writes page images and story.md into dir.
func writeStory(dir string, story *models.Story) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, p := range story.Pages {
		if p.Image == nil {
			continue
		}
		if err := os.WriteFile(filepath.Join(dir, markup.PageFileName(p)), p.Image.Data, 0o644); err != nil {
			return err
		}
	}
	return os.WriteFile(filepath.Join(dir, "story.md"), []byte(markup.StoryMarkdown(*story, markup.FileRef)), 0o644)
}
