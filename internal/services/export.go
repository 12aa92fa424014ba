package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/snappy-loop/storybook/internal/markup"
	"github.com/snappy-loop/storybook/internal/models"
	"github.com/snappy-loop/storybook/internal/storage"
	"golang.org/x/sync/errgroup"
)

const (
	exportMarkdownName = "story.md"
	exportManifestName = "story.json"
	exportConcurrency  = 4
)

// manifestPage is one page in story.json; the image is referenced by file name instead of inlined.
type manifestPage struct {
	Index       int              `json:"index"`
	Text        string           `json:"text"`
	ImagePrompt string           `json:"imagePrompt"`
	State       models.PageState `json:"state"`
	Image       string           `json:"image,omitempty"`
	MimeType    string           `json:"mimeType,omitempty"`
	Error       string           `json:"error,omitempty"`
}

type manifest struct {
	ID        uuid.UUID      `json:"id"`
	Prompt    string         `json:"prompt"`
	Title     string         `json:"title"`
	CreatedAt string         `json:"createdAt"`
	Pages     []manifestPage `json:"pages"`
}

// ExportStory uploads the illustrated pages of a story together with story.md and story.json
// to object storage and returns where they live. Pages without an image are listed in the
// manifest but not uploaded.
func (s *StoryService) ExportStory(ctx context.Context, id uuid.UUID) (*models.ExportResponse, error) {
	if s.storage == nil {
		return nil, ErrExportDisabled
	}
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	story := sess.Snapshot()

	body, err := json.MarshalIndent(buildManifest(story), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(exportConcurrency)

	g.Go(func() error {
		return s.storage.Upload(gctx, storage.StoryKey(id, exportMarkdownName), []byte(markup.StoryMarkdown(story, markup.FileRef)), "text/markdown; charset=utf-8")
	})
	g.Go(func() error {
		return s.storage.Upload(gctx, storage.StoryKey(id, exportManifestName), body, "application/json")
	})
	for _, p := range story.Pages {
		if p.Image == nil {
			continue
		}
		g.Go(func() error {
			return s.storage.Upload(gctx, storage.StoryKey(id, markup.PageFileName(p)), p.Image.Data, p.Image.MimeType)
		})
	}
	// Mark before waiting so a partial upload is still cleaned up on delete.
	s.exported.Store(id, struct{}{})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to upload story: %w", err)
	}

	resp := &models.ExportResponse{StoryID: id}
	if resp.StoryURL, err = s.storage.ObjectURL(ctx, storage.StoryKey(id, exportMarkdownName)); err != nil {
		return nil, err
	}
	if resp.ManifestURL, err = s.storage.ObjectURL(ctx, storage.StoryKey(id, exportManifestName)); err != nil {
		return nil, err
	}
	for _, p := range story.Pages {
		if p.Image == nil {
			continue
		}
		u, err := s.storage.ObjectURL(ctx, storage.StoryKey(id, markup.PageFileName(p)))
		if err != nil {
			return nil, err
		}
		resp.Pages = append(resp.Pages, models.ExportedPage{Index: p.Index, URL: u})
	}

	log.Info().
		Str("story_id", id.String()).
		Int("images", len(resp.Pages)).
		Msg("Story exported")
	return resp, nil
}

func buildManifest(story models.Story) manifest {
	m := manifest{
		ID:        story.ID,
		Prompt:    story.Prompt,
		Title:     story.Title,
		CreatedAt: story.CreatedAt.UTC().Format(time.RFC3339),
		Pages:     make([]manifestPage, len(story.Pages)),
	}
	for i, p := range story.Pages {
		mp := manifestPage{
			Index:       p.Index,
			Text:        p.Text,
			ImagePrompt: p.ImagePrompt,
			State:       p.State,
			Error:       p.Error,
		}
		if p.Image != nil {
			mp.Image = markup.PageFileName(p)
			mp.MimeType = p.Image.MimeType
		}
		m.Pages[i] = mp
	}
	return m
}

func exportPrefix(id uuid.UUID) string {
	return storage.StoryKey(id, "") + "/"
}
