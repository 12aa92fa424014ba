package services

import (
	"context"

	"github.com/snappy-loop/storybook/internal/session"
)

// storyProcessor is the subset of processor.StoryProcessor used by StoryService.
type storyProcessor interface {
	Illustrate(ctx context.Context, s *session.Session)
	PrepareRetry(ctx context.Context, s *session.Session, index int) (func(context.Context), error)
	PublishCreated(ctx context.Context, s *session.Session)
}

// AssetStorage stores exported story files (implemented by *storage.Client). May be nil to disable export.
type AssetStorage interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	ObjectURL(ctx context.Context, key string) (string, error)
	DeletePrefix(ctx context.Context, prefix string) error
}
