package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"github.com/snappy-loop/storybook/internal/llm"
	"github.com/snappy-loop/storybook/internal/models"
	"github.com/snappy-loop/storybook/internal/services"
)

// storyService is the subset of services.StoryService used by the handlers.
type storyService interface {
	GenerateImage(ctx context.Context, req *models.StoryRequest) (*models.ImageResponse, error)
	GenerateStory(ctx context.Context, req *models.StoryRequest) (*models.StorySkeleton, error)
	CreateStory(ctx context.Context, req *models.StoryRequest) (*models.Story, error)
	GetStory(ctx context.Context, id uuid.UUID) (*models.Story, error)
	DeleteStory(ctx context.Context, id uuid.UUID) error
	RetryPage(ctx context.Context, id uuid.UUID, index int) (*models.Story, error)
	PageImage(ctx context.Context, id uuid.UUID, index int) (*models.GeneratedImage, error)
	Subscribe(ctx context.Context, id uuid.UUID) (*models.Story, <-chan models.PageEvent, func(), error)
	ExportStory(ctx context.Context, id uuid.UUID) (*models.ExportResponse, error)
	Services() []models.Service
}

// Handler contains all HTTP handlers
type Handler struct {
	stories storyService
}

// NewHandler creates a new handler
func NewHandler(stories storyService) *Handler {
	return &Handler{stories: stories}
}

// Health handles GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListServices handles GET /api/services
func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"services": h.stories.Services()})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeServiceError maps a service or provider error to its status and writes it.
// Provider messages are passed through unchanged.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := errorResponse(err)
	ev := log.Warn()
	if status >= http.StatusInternalServerError {
		ev = log.Error()
	}
	ev.Err(err).Str("path", r.URL.Path).Int("status", status).Msg("Request failed")
	writeJSONError(w, status, message)
}

func errorResponse(err error) (int, string) {
	var (
		validation *services.ValidationError
		credential *llm.CredentialError
		upstream   *llm.UpstreamError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, validation.Message
	case errors.As(err, &credential):
		return http.StatusInternalServerError, credential.Error()
	case errors.As(err, &upstream):
		return http.StatusBadGateway, upstream.Message
	case errors.Is(err, llm.ErrEmptyBody):
		return http.StatusBadGateway, llm.ErrEmptyBody.Error()
	case llm.IsMalformed(err):
		var m *llm.MalformedResponseError
		errors.As(err, &m)
		return http.StatusBadGateway, m.Error()
	case errors.Is(err, services.ErrStoryNotFound):
		return http.StatusNotFound, services.ErrStoryNotFound.Error()
	case errors.Is(err, services.ErrPageNotFound):
		return http.StatusNotFound, services.ErrPageNotFound.Error()
	case errors.Is(err, services.ErrCredentialFailure):
		return http.StatusConflict, services.ErrCredentialFailure.Error()
	case errors.Is(err, services.ErrPageNotRetryable):
		return http.StatusConflict, services.ErrPageNotRetryable.Error()
	case errors.Is(err, services.ErrNoImage):
		return http.StatusConflict, services.ErrNoImage.Error()
	case errors.Is(err, services.ErrExportDisabled):
		return http.StatusServiceUnavailable, services.ErrExportDisabled.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "upstream request timed out"
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

func decodeStoryRequest(w http.ResponseWriter, r *http.Request) (*models.StoryRequest, bool) {
	var req models.StoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	return &req, true
}

func storyIDVar(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid story id")
		return uuid.Nil, false
	}
	return id, true
}

func pageIndexVar(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil || index < 0 {
		writeJSONError(w, http.StatusBadRequest, "invalid page index")
		return 0, false
	}
	return index, true
}
