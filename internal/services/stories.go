package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/snappy-loop/storybook/internal/agents"
	"github.com/snappy-loop/storybook/internal/config"
	"github.com/snappy-loop/storybook/internal/models"
	"github.com/snappy-loop/storybook/internal/session"
)

// StoryService handles image and story generation and the lifecycle of illustrated stories
type StoryService struct {
	images    agents.ImageAgent
	stories   agents.StoryAgent
	processor storyProcessor
	store     *session.Store
	storage   AssetStorage // nil disables export
	config    *config.Config

	exported sync.Map // story ID -> struct{}, stories with files in storage
	inFlight sync.WaitGroup
}

// NewStoryService creates a new StoryService. storage may be nil.
func NewStoryService(
	images agents.ImageAgent,
	stories agents.StoryAgent,
	proc storyProcessor,
	store *session.Store,
	storage AssetStorage,
	cfg *config.Config,
) *StoryService {
	return &StoryService{
		images:    images,
		stories:   stories,
		processor: proc,
		store:     store,
		storage:   storage,
		config:    cfg,
	}
}

// GenerateImage turns a prompt into a single image.
func (s *StoryService) GenerateImage(ctx context.Context, req *models.StoryRequest) (*models.ImageResponse, error) {
	prompt, err := s.validatePrompt(req)
	if err != nil {
		return nil, err
	}

	img, err := s.images.GenerateImage(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate image: %w", err)
	}
	return &models.ImageResponse{
		ImageURL: img.DataURL(),
		MimeType: img.MimeType,
		Prompt:   prompt,
		Width:    img.Width,
		Height:   img.Height,
	}, nil
}

// GenerateStory returns the story skeleton for a theme without illustrating it.
func (s *StoryService) GenerateStory(ctx context.Context, req *models.StoryRequest) (*models.StorySkeleton, error) {
	prompt, err := s.validatePrompt(req)
	if err != nil {
		return nil, err
	}

	skeleton, err := s.stories.GenerateStory(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate story: %w", err)
	}
	return skeleton, nil
}

// CreateStory generates the skeleton, stores a new story with every page pending and starts
// illustrating all pages in the background. The returned snapshot has no images yet.
// A missing image credential fails the request before the story provider is called.
func (s *StoryService) CreateStory(ctx context.Context, req *models.StoryRequest) (*models.Story, error) {
	prompt, err := s.validatePrompt(req)
	if err != nil {
		return nil, err
	}
	if err := s.images.Ready(); err != nil {
		return nil, fmt.Errorf("image provider %s: %w", s.images.Name(), err)
	}

	skeleton, err := s.stories.GenerateStory(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate story: %w", err)
	}

	sess := session.New(prompt, skeleton)
	s.store.Put(sess)
	snapshot := sess.Snapshot()

	log.Info().
		Str("story_id", sess.ID().String()).
		Str("title", snapshot.Title).
		Int("pages", sess.Len()).
		Msg("Story created")

	s.processor.PublishCreated(ctx, sess)
	s.background(ctx, func(ctx context.Context) {
		s.processor.Illustrate(ctx, sess)
	})
	return &snapshot, nil
}

// GetStory returns the current snapshot of a story.
func (s *StoryService) GetStory(ctx context.Context, id uuid.UUID) (*models.Story, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	snapshot := sess.Snapshot()
	return &snapshot, nil
}

// DeleteStory forgets a story and removes its exported files. In-flight requests finish but their results are dropped.
func (s *StoryService) DeleteStory(ctx context.Context, id uuid.UUID) error {
	if !s.store.Delete(id) {
		return ErrStoryNotFound
	}
	if _, ok := s.exported.LoadAndDelete(id); ok && s.storage != nil {
		if err := s.storage.DeletePrefix(ctx, exportPrefix(id)); err != nil {
			log.Warn().Err(err).Str("story_id", id.String()).Msg("Failed to delete exported story files")
		}
	}
	log.Info().Str("story_id", id.String()).Msg("Story deleted")
	return nil
}

// RetryPage moves a failed page back to pending and reissues its illustration in the background.
func (s *StoryService) RetryPage(ctx context.Context, id uuid.UUID, index int) (*models.Story, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	run, err := s.processor.PrepareRetry(ctx, sess, index)
	if err != nil {
		return nil, err
	}
	snapshot := sess.Snapshot()
	s.background(ctx, run)
	return &snapshot, nil
}

// PageImage returns the image of a done page.
func (s *StoryService) PageImage(ctx context.Context, id uuid.UUID, index int) (*models.GeneratedImage, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	page, err := sess.Page(index)
	if err != nil {
		return nil, err
	}
	if page.Image == nil {
		return nil, ErrNoImage
	}
	return page.Image, nil
}

// Subscribe returns the current snapshot and a channel of subsequent page events.
// Events may repeat state already present in the snapshot. The caller must call cancel.
func (s *StoryService) Subscribe(ctx context.Context, id uuid.UUID) (*models.Story, <-chan models.PageEvent, func(), error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, nil, nil, err
	}
	events, cancel := sess.Subscribe()
	snapshot := sess.Snapshot()
	return &snapshot, events, cancel, nil
}

// Services returns the service catalogue.
func (s *StoryService) Services() []models.Service {
	return []models.Service{
		{ID: "generate-image", Name: "Image Generator", Path: "/generate-image", Description: "Create images from text prompts"},
		{ID: "generate-story", Name: "Story Generator", Path: "/generate-story", Description: "Generate illustrated stories from a short prompt"},
		{ID: "chat", Name: "Chat Assistant", Path: "/chat", Description: "Conversational AI assistant (coming soon)"},
	}
}

// Wait blocks until background illustrations finish or ctx is done.
func (s *StoryService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inFlight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// background runs fn detached from the caller's cancellation; the HTTP request ends before the provider answers.
func (s *StoryService) background(ctx context.Context, fn func(context.Context)) {
	ctx = context.WithoutCancel(ctx)
	s.inFlight.Add(1)
	go func() {
		defer s.inFlight.Done()
		fn(ctx)
	}()
}

func (s *StoryService) session(id uuid.UUID) (*session.Session, error) {
	sess, ok := s.store.Get(id)
	if !ok {
		return nil, ErrStoryNotFound
	}
	return sess, nil
}

func (s *StoryService) validatePrompt(req *models.StoryRequest) (string, error) {
	if req == nil {
		return "", &ValidationError{Message: "Prompt is required"}
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return "", &ValidationError{Message: "Prompt is required"}
	}
	if max := s.config.MaxPromptLength; max > 0 && len(prompt) > max {
		return "", &ValidationError{Message: fmt.Sprintf("Prompt must be at most %d bytes", max)}
	}
	return prompt, nil
}
