package processor

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/snappy-loop/storybook/internal/agents"
	"github.com/snappy-loop/storybook/internal/config"
	"github.com/snappy-loop/storybook/internal/metrics"
	"github.com/snappy-loop/storybook/internal/models"
	"github.com/snappy-loop/storybook/internal/session"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var (
	// ErrPageNotFound is returned for a page index outside the story.
	ErrPageNotFound = session.ErrPageNotFound
	// ErrPageNotRetryable is returned when retrying a page that is not failed.
	ErrPageNotRetryable = session.ErrPageNotRetryable
)

// EventPublisher publishes story lifecycle events (implemented by *kafka.Producer).
type EventPublisher interface {
	PublishStoryEvent(ctx context.Context, ev models.StoryEvent) error
}

// Publishers fans an event out to every publisher. All are tried; their errors are joined.
type Publishers []EventPublisher

func (ps Publishers) PublishStoryEvent(ctx context.Context, ev models.StoryEvent) error {
	var errs []error
	for _, p := range ps {
		if err := p.PublishStoryEvent(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StoryProcessor illustrates story pages: one image request per page, all issued at once,
// each completion landing in its own page slot.
type StoryProcessor struct {
	images    agents.ImageAgent
	publisher EventPublisher // nil disables event publishing
	limiter   *rate.Limiter  // nil disables pacing
}

// NewStoryProcessor creates a processor. publisher may be nil.
func NewStoryProcessor(images agents.ImageAgent, publisher EventPublisher, cfg *config.Config) *StoryProcessor {
	p := &StoryProcessor{images: images, publisher: publisher}
	if cfg.ImageRateInterval > 0 {
		p.limiter = rate.NewLimiter(rate.Every(cfg.ImageRateInterval), cfg.ImageRateBurst)
	}
	return p
}

// Illustrate issues an image request for every page that has not been attempted yet and
// returns once all of them have resolved. A failing page never affects its siblings.
func (p *StoryProcessor) Illustrate(ctx context.Context, s *session.Session) {
	work := s.StartPending()
	if len(work) == 0 {
		return
	}
	log.Info().
		Str("story_id", s.ID().String()).
		Int("pages", len(work)).
		Str("provider", p.images.Name()).
		Msg("Illustrating story")

	start := time.Now()
	p.run(ctx, s, work)

	snap := s.Snapshot()
	log.Info().
		Str("story_id", s.ID().String()).
		Int("completed", snap.Progress.Completed).
		Int("failed", snap.Progress.Failed).
		Dur("elapsed", time.Since(start)).
		Msg("Story illustration finished")
}

// RetryPage reissues the illustration of one failed page with the same prompt and returns once it has resolved.
func (p *StoryProcessor) RetryPage(ctx context.Context, s *session.Session, index int) error {
	run, err := p.PrepareRetry(ctx, s, index)
	if err != nil {
		return err
	}
	run(ctx)
	return nil
}

// PrepareRetry moves a failed page back to pending and returns the func that issues its request.
// Callers that must answer before the provider does run it in the background.
func (p *StoryProcessor) PrepareRetry(ctx context.Context, s *session.Session, index int) (func(context.Context), error) {
	w, err := s.Retry(index)
	if err != nil {
		return nil, err
	}
	metrics.PageRetried()
	p.publish(ctx, models.StoryEvent{Type: models.EventPageRetry, StoryID: s.ID(), PageIndex: &index})

	log.Info().
		Str("story_id", s.ID().String()).
		Int("page", index).
		Int("attempt", w.Attempt).
		Msg("Retrying page illustration")

	return func(ctx context.Context) {
		p.run(ctx, s, []session.Work{w})
	}, nil
}

// PublishCreated announces a new story.
func (p *StoryProcessor) PublishCreated(ctx context.Context, s *session.Session) {
	p.publish(ctx, models.StoryEvent{Type: models.EventStoryCreated, StoryID: s.ID(), Pages: s.Len(), Provider: p.images.Name()})
}

// run fans out one call per work item with no shared cancellation and waits for all of them.
func (p *StoryProcessor) run(ctx context.Context, s *session.Session, work []session.Work) {
	var g errgroup.Group
	for _, w := range work {
		g.Go(func() error {
			p.illustratePage(ctx, s, w)
			return nil
		})
	}
	_ = g.Wait()
}

func (p *StoryProcessor) illustratePage(ctx context.Context, s *session.Session, w session.Work) {
	var img *models.GeneratedImage
	var err error
	if p.limiter != nil {
		err = p.limiter.Wait(ctx)
	}
	if err == nil {
		img, err = p.images.GenerateImage(ctx, w.Prompt)
	}

	ev, ok := s.Complete(w, img, err)
	if !ok {
		log.Warn().
			Str("story_id", s.ID().String()).
			Int("page", w.Index).
			Int("attempt", w.Attempt).
			Msg("Discarding stale page result")
		return
	}

	index := w.Index
	if err != nil {
		log.Error().Err(err).
			Str("story_id", s.ID().String()).
			Int("page", index).
			Str("provider", p.images.Name()).
			Msg("Page illustration failed")
		metrics.PageFinished(string(models.PageStateFailed))
		p.publish(ctx, models.StoryEvent{Type: models.EventPageFailed, StoryID: s.ID(), PageIndex: &index, Provider: p.images.Name(), Error: err.Error()})
		return
	}

	log.Info().
		Str("story_id", s.ID().String()).
		Int("page", index).
		Int("image_size_bytes", len(img.Data)).
		Int("completed", ev.Progress.Completed).
		Int("total", ev.Progress.Total).
		Msg("Page illustrated")
	metrics.PageFinished(string(models.PageStateDone))
	p.publish(ctx, models.StoryEvent{Type: models.EventPageDone, StoryID: s.ID(), PageIndex: &index, Provider: p.images.Name()})
}

// publish sends an event when a publisher is configured. Failures are logged only.
func (p *StoryProcessor) publish(ctx context.Context, ev models.StoryEvent) {
	if p.publisher == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	if err := p.publisher.PublishStoryEvent(ctx, ev); err != nil {
		log.Warn().Err(err).
			Str("story_id", ev.StoryID.String()).
			Str("event", ev.Type).
			Msg("Failed to publish story event")
	}
}
