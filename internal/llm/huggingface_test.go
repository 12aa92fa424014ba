package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testPNG returns a small encoded PNG of the given size.
func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestHuggingFaceClient_GenerateImage(t *testing.T) {
	pngBytes := testPNG(t, 8, 6)

	tests := []struct {
		name        string
		status      int
		contentType string
		body        []byte
		check       func(t *testing.T, err error)
		wantMime    string
	}{
		{
			name:        "png image",
			status:      http.StatusOK,
			contentType: "image/png",
			body:        pngBytes,
			wantMime:    "image/png",
		},
		{
			name:     "unlabelled binary defaults to webp",
			status:   http.StatusOK,
			body:     []byte{0x00, 0x01, 0x02, 0xfe, 0xff, 0x10},
			wantMime: "image/webp",
		},
		{
			name:        "json error body",
			status:      http.StatusServiceUnavailable,
			contentType: "application/json",
			body:        []byte(`{"error":"Model is currently loading","estimated_time":20}`),
			check: func(t *testing.T, err error) {
				var ue *UpstreamError
				require.ErrorAs(t, err, &ue)
				assert.Equal(t, http.StatusServiceUnavailable, ue.StatusCode)
				assert.Equal(t, "Model is currently loading", ue.Message)
			},
		},
		{
			name:   "error without json",
			status: http.StatusInternalServerError,
			body:   []byte("upstream exploded"),
			check: func(t *testing.T, err error) {
				var ue *UpstreamError
				require.ErrorAs(t, err, &ue)
				assert.Equal(t, http.StatusInternalServerError, ue.StatusCode)
				assert.Equal(t, "Hugging Face API error: Internal Server Error", ue.Message)
			},
		},
		{
			name:   "empty body",
			status: http.StatusOK,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrEmptyBody)
			},
		},
		{
			name:        "non-image body",
			status:      http.StatusOK,
			contentType: "text/html",
			body:        []byte("<html>maintenance</html>"),
			check: func(t *testing.T, err error) {
				assert.True(t, IsMalformed(err), "got %v", err)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/models/black-forest-labs/FLUX.1-schnell", r.URL.Path)
				assert.Equal(t, "Bearer hf_test", r.Header.Get("Authorization"))
				var body map[string]string
				raw, _ := io.ReadAll(r.Body)
				assert.NoError(t, json.Unmarshal(raw, &body))
				assert.Equal(t, "a robot learns to paint", body["inputs"])

				if tt.contentType != "" {
					w.Header().Set("Content-Type", tt.contentType)
				} else {
					// Suppress net/http content sniffing.
					w.Header()["Content-Type"] = nil
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write(tt.body)
			}))
			defer srv.Close()

			c := NewHuggingFaceClient("hf_test", srv.URL+"/", "black-forest-labs/FLUX.1-schnell", 0)
			img, err := c.GenerateImage(context.Background(), "a robot learns to paint")

			if tt.check != nil {
				require.Error(t, err)
				assert.Nil(t, img, "image and error are exclusive")
				tt.check(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMime, img.MimeType)
			assert.Equal(t, tt.body, img.Data)
			assert.Equal(t, "a robot learns to paint", img.Prompt)
			assert.Equal(t, ProviderHuggingFace, img.Provider)
			if tt.wantMime == "image/png" {
				assert.Equal(t, 8, img.Width)
				assert.Equal(t, 6, img.Height)
			}
		})
	}
}

func TestHuggingFaceClient_MissingToken(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := NewHuggingFaceClient("", srv.URL, "m", 0)
	img, err := c.GenerateImage(context.Background(), "anything")

	assert.Nil(t, img)
	assert.True(t, errors.Is(err, ErrMissingCredential))
	assert.EqualError(t, err, "HF_TOKEN is not configured")
	assert.False(t, called, "no provider call without a credential")
}

func TestHuggingFaceClient_OversizedBody(t *testing.T) {
	pngBytes := testPNG(t, 8, 6)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngBytes)
	}))
	defer srv.Close()

	c := NewHuggingFaceClient("hf_test", srv.URL, "m", 0)
	c.maxBytes = int64(len(pngBytes) - 1)
	img, err := c.GenerateImage(context.Background(), "p")
	assert.Nil(t, img)
	assert.True(t, IsMalformed(err), "got %v", err)

	c.maxBytes = int64(len(pngBytes))
	img, err = c.GenerateImage(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, pngBytes, img.Data)
}

func TestHuggingFaceErrorMessage(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"string error", 400, `{"error":"bad input"}`, "bad input"},
		{"list error", 400, `{"error":["a","b"]}`, `["a","b"]`},
		{"empty string error", 502, `{"error":""}`, "Hugging Face API error: Bad Gateway"},
		{"null error", 503, `{"error":null}`, "Hugging Face API error: Service Unavailable"},
		{"not json", 429, `slow down`, "Hugging Face API error: Too Many Requests"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := huggingFaceErrorMessage(tt.status, []byte(tt.body))
			if got != tt.want {
				t.Errorf("huggingFaceErrorMessage(%d, %q) = %q, want %q", tt.status, tt.body, got, tt.want)
			}
		})
	}
}
