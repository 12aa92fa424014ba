package models

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PageState is the illustration state of a single story page
type PageState string

const (
	PageStatePending PageState = "pending"
	PageStateDone    PageState = "done"
	PageStateFailed  PageState = "failed"
)

// Terminal reports whether the page has finished its current illustration attempt.
func (s PageState) Terminal() bool {
	return s == PageStateDone || s == PageStateFailed
}

// GeneratedImage is an encoded image payload tagged with the prompt that produced it
type GeneratedImage struct {
	Data     []byte `json:"-"`
	MimeType string `json:"mimeType"`
	Prompt   string `json:"prompt"`
	Model    string `json:"model,omitempty"`
	Provider string `json:"provider,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
}

// DataURL returns the image as a data: URL, the form the browser client renders directly.
func (g *GeneratedImage) DataURL() string {
	return "data:" + g.MimeType + ";base64," + base64.StdEncoding.EncodeToString(g.Data)
}

// Extension returns the file extension for the image media type.
func (g *GeneratedImage) Extension() string {
	switch g.MimeType {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".bin"
	}
}

// SkeletonPage is one page of the story structure returned by the text provider
type SkeletonPage struct {
	Text        string `json:"text"`
	ImagePrompt string `json:"imagePrompt"`
}

// StorySkeleton is the title and page texts/illustration prompts of a story, before any image exists
type StorySkeleton struct {
	Title string         `json:"title"`
	Pages []SkeletonPage `json:"pages"`
}

// StoryPage is a page of a story together with its illustration state
type StoryPage struct {
	Index       int             `json:"index"`
	Text        string          `json:"text"`
	ImagePrompt string          `json:"imagePrompt"`
	State       PageState       `json:"state"`
	Image       *GeneratedImage `json:"-"`
	Error       string          `json:"error,omitempty"`
	Attempts    int             `json:"attempts"`
}

// MarshalJSON adds imageUrl and mimeType for pages that have an image.
func (p StoryPage) MarshalJSON() ([]byte, error) {
	type page StoryPage
	out := struct {
		page
		ImageURL string `json:"imageUrl,omitempty"`
		MimeType string `json:"mimeType,omitempty"`
	}{page: page(p)}
	if p.Image != nil {
		out.ImageURL = p.Image.DataURL()
		out.MimeType = p.Image.MimeType
	}
	return json.Marshal(out)
}

// Progress counts pages whose current attempt has finished
type Progress struct {
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Total     int `json:"total"`
}

// Story is a snapshot of an illustrated story owned by one session
type Story struct {
	ID        uuid.UUID   `json:"id"`
	Prompt    string      `json:"prompt"`
	Title     string      `json:"title"`
	Pages     []StoryPage `json:"pages"`
	Progress  Progress    `json:"progress"`
	CreatedAt time.Time   `json:"createdAt"`
}

// StoryRequest carries the user prompt for both image and story generation
type StoryRequest struct {
	Prompt string `json:"prompt"`
}

// ImageResponse is returned by the single image endpoint
type ImageResponse struct {
	ImageURL string `json:"imageUrl"`
	MimeType string `json:"mimeType"`
	Prompt   string `json:"prompt"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
}

// ExportedPage is the stored location of one page image
type ExportedPage struct {
	Index int    `json:"index"`
	URL   string `json:"url"`
}

// ExportResponse lists the stored locations of an exported story
type ExportResponse struct {
	StoryID     uuid.UUID      `json:"storyId"`
	StoryURL    string         `json:"storyUrl"`
	ManifestURL string         `json:"manifestUrl"`
	Pages       []ExportedPage `json:"pages"`
}

// PageEvent is pushed to live subscribers whenever a page changes state
type PageEvent struct {
	StoryID  uuid.UUID `json:"storyId"`
	Page     StoryPage `json:"page"`
	Progress Progress  `json:"progress"`
}

// Story event types published to the broker
const (
	EventStoryCreated = "story.created"
	EventPageDone     = "page.done"
	EventPageFailed   = "page.failed"
	EventPageRetry    = "page.retry"
)

// StoryEvent is the broker message for story lifecycle changes (never carries image bytes)
type StoryEvent struct {
	Type      string    `json:"type"`
	StoryID   uuid.UUID `json:"story_id"`
	PageIndex *int      `json:"page_index,omitempty"`
	Pages     int       `json:"pages,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// Service is an entry of the service catalogue shown on the landing page
type Service struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Path        string `json:"path"`
	Description string `json:"description,omitempty"`
}
