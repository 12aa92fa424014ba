package handlers

import (
	"net/http"
	"strconv"

	"github.com/snappy-loop/storybook/internal/markup"
	"github.com/snappy-loop/storybook/internal/models"
)

// GenerateImage handles POST /api/generate-image
func (h *Handler) GenerateImage(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeStoryRequest(w, r)
	if !ok {
		return
	}
	resp, err := h.stories.GenerateImage(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GenerateStory handles POST /api/generate-story
func (h *Handler) GenerateStory(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeStoryRequest(w, r)
	if !ok {
		return
	}
	resp, err := h.stories.GenerateStory(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateStory handles POST /api/stories
func (h *Handler) CreateStory(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeStoryRequest(w, r)
	if !ok {
		return
	}
	story, err := h.stories.CreateStory(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/stories/"+story.ID.String())
	writeJSON(w, http.StatusAccepted, story)
}

// GetStory handles GET /api/stories/{id}
func (h *Handler) GetStory(w http.ResponseWriter, r *http.Request) {
	id, ok := storyIDVar(w, r)
	if !ok {
		return
	}
	story, err := h.stories.GetStory(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, story)
}

// ViewStory handles GET /api/stories/{id}/view
func (h *Handler) ViewStory(w http.ResponseWriter, r *http.Request) {
	id, ok := storyIDVar(w, r)
	if !ok {
		return
	}
	story, err := h.stories.GetStory(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(markup.StoryHTML(*story, markup.DataURLRef)))
}

// DeleteStory handles DELETE /api/stories/{id}
func (h *Handler) DeleteStory(w http.ResponseWriter, r *http.Request) {
	id, ok := storyIDVar(w, r)
	if !ok {
		return
	}
	if err := h.stories.DeleteStory(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RetryPage handles POST /api/stories/{id}/pages/{index}/retry
func (h *Handler) RetryPage(w http.ResponseWriter, r *http.Request) {
	id, ok := storyIDVar(w, r)
	if !ok {
		return
	}
	index, ok := pageIndexVar(w, r)
	if !ok {
		return
	}
	story, err := h.stories.RetryPage(r.Context(), id, index)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, story)
}

// PageImage handles GET /api/stories/{id}/pages/{index}/image
func (h *Handler) PageImage(w http.ResponseWriter, r *http.Request) {
	id, ok := storyIDVar(w, r)
	if !ok {
		return
	}
	index, ok := pageIndexVar(w, r)
	if !ok {
		return
	}
	img, err := h.stories.PageImage(r.Context(), id, index)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	name := markup.PageFileName(models.StoryPage{Index: index, Image: img})
	w.Header().Set("Content-Type", img.MimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(img.Data)
}

// ExportStory handles POST /api/stories/{id}/export
func (h *Handler) ExportStory(w http.ResponseWriter, r *http.Request) {
	id, ok := storyIDVar(w, r)
	if !ok {
		return
	}
	resp, err := h.stories.ExportStory(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
