package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIImageClient_GenerateImage(t *testing.T) {
	pngBytes := testPNG(t, 3, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/images/generations", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "b64_json", req["response_format"])
		assert.Equal(t, "a lighthouse at dusk", req["prompt"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"created": 1,
			"data":    []map[string]string{{"b64_json": base64.StdEncoding.EncodeToString(pngBytes)}},
		})
	}))
	defer srv.Close()

	c := NewOpenAIImageClient("sk-test", srv.URL+"/v1", "dall-e-3", 0)
	img, err := c.GenerateImage(context.Background(), "a lighthouse at dusk")
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MimeType)
	assert.Equal(t, pngBytes, img.Data)
	assert.Equal(t, 3, img.Width)
	assert.Equal(t, 2, img.Height)
}

func TestOpenAIImageClient_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Your request was rejected by the safety system.","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	c := NewOpenAIImageClient("sk-test", srv.URL+"/v1", "dall-e-3", 0)
	img, err := c.GenerateImage(context.Background(), "p")
	assert.Nil(t, img)

	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, http.StatusBadRequest, ue.StatusCode)
	assert.Equal(t, "Your request was rejected by the safety system.", ue.Message)
}
