package handlers

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/snappy-loop/storybook/internal/models"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

var pageTemplates = mustParseTemplates()

func mustParseTemplates() *template.Template {
	t, err := template.New("").ParseFS(templatesFS, "templates/*.tmpl")
	if err != nil {
		panic("parse templates: " + err.Error())
	}
	return t
}

// Index handles GET / with the service catalogue.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	data := struct{ Services []models.Service }{Services: h.stories.Services()}
	if err := pageTemplates.ExecuteTemplate(&buf, "index", data); err != nil {
		log.Error().Err(err).Msg("Failed to render index")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
