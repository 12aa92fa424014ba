package llm

import (
	"bytes"
	"image"
	_ "image/gif"  // register GIF decoder for image.DecodeConfig
	_ "image/jpeg" // register JPEG decoder for image.DecodeConfig
	_ "image/png"  // register PNG decoder for image.DecodeConfig
	"mime"
	"net/http"
	"strings"

	"github.com/snappy-loop/storybook/internal/models"
	_ "golang.org/x/image/webp" // register WebP decoder for image.DecodeConfig
)

// defaultImageMimeType is used when a provider labels nothing and sniffing only says "image".
const defaultImageMimeType = "image/webp"

// buildImage validates a provider payload and tags it with its media type and dimensions.
// declared is the provider-reported media type (Content-Type header or blob MIME type), possibly empty.
func buildImage(provider, model, prompt string, data []byte, declared string) (*models.GeneratedImage, error) {
	if len(data) == 0 {
		return nil, ErrEmptyBody
	}

	mimeType := imageMimeType(data, declared)
	if mimeType == "" {
		return nil, &MalformedResponseError{
			Provider: provider,
			Reason:   "body is not an image (content type " + quoteOrNone(declared) + ")",
		}
	}

	img := &models.GeneratedImage{
		Data:     data,
		MimeType: mimeType,
		Prompt:   prompt,
		Model:    model,
		Provider: provider,
	}
	// Dimensions are informational; formats we cannot decode keep zero values.
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		img.Width = cfg.Width
		img.Height = cfg.Height
	}
	return img, nil
}

// imageMimeType picks the media type of an image payload: declared image/* type first, then the
// sniffed type, then the default when the payload decodes as an image of an unknown label.
// Returns "" when the payload is not an image.
func imageMimeType(data []byte, declared string) string {
	if declared != "" {
		if mt, _, err := mime.ParseMediaType(declared); err == nil && strings.HasPrefix(mt, "image/") {
			return mt
		}
	}
	if sniffed := http.DetectContentType(data); strings.HasPrefix(sniffed, "image/") {
		return sniffed
	}
	if _, format, err := image.DecodeConfig(bytes.NewReader(data)); err == nil && format != "" {
		return "image/" + format
	}
	// Unlabelled, unsniffable binary from a provider that only returns images.
	if declared == "" && !looksLikeText(data) {
		return defaultImageMimeType
	}
	return ""
}

func looksLikeText(data []byte) bool {
	ct := http.DetectContentType(data)
	return strings.HasPrefix(ct, "text/") || strings.HasPrefix(ct, "application/json")
}

func quoteOrNone(s string) string {
	if s == "" {
		return "none"
	}
	return `"` + s + `"`
}
