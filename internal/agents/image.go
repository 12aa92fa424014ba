package agents

import (
	"context"
	"time"

	"github.com/snappy-loop/storybook/internal/llm"
	"github.com/snappy-loop/storybook/internal/metrics"
	"github.com/snappy-loop/storybook/internal/models"
)

// instrumentedImageAgent records request count and latency around an ImageAgent.
type instrumentedImageAgent struct {
	next ImageAgent
}

func (a *instrumentedImageAgent) Name() string { return a.next.Name() }

func (a *instrumentedImageAgent) Ready() error { return a.next.Ready() }

func (a *instrumentedImageAgent) GenerateImage(ctx context.Context, prompt string) (*models.GeneratedImage, error) {
	start := time.Now()
	img, err := a.next.GenerateImage(ctx, prompt)
	metrics.ObserveProviderRequest(a.next.Name(), "image", start, err)
	if err != nil {
		return nil, err
	}
	return img, nil
}

// instrumentedStoryAgent records request count and latency around a StoryAgent.
type instrumentedStoryAgent struct {
	next StoryAgent
}

func (a *instrumentedStoryAgent) Pages() int { return a.next.Pages() }

func (a *instrumentedStoryAgent) GenerateStory(ctx context.Context, theme string) (*models.StorySkeleton, error) {
	start := time.Now()
	skeleton, err := a.next.GenerateStory(ctx, theme)
	metrics.ObserveProviderRequest(llm.ProviderGemini, "story", start, err)
	if err != nil {
		return nil, err
	}
	return skeleton, nil
}
