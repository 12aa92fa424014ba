package services

import (
	"errors"

	"github.com/snappy-loop/storybook/internal/processor"
	"github.com/snappy-loop/storybook/internal/session"
)

var (
	// ErrInvalidRequest matches every ValidationError.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrStoryNotFound is returned for an unknown or expired story ID.
	ErrStoryNotFound = errors.New("story not found")
	// ErrExportDisabled is returned by ExportStory when no storage is configured.
	ErrExportDisabled = errors.New("story export is not configured")

	ErrPageNotFound     = processor.ErrPageNotFound
	ErrPageNotRetryable = processor.ErrPageNotRetryable
	ErrNoImage          = session.ErrNoImage
	// ErrCredentialFailure matches ErrPageNotRetryable.
	ErrCredentialFailure = session.ErrCredentialFailure
)

// ValidationError is a client input error; its message is safe to return as-is.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidRequest }
