package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoryKey(t *testing.T) {
	id := uuid.MustParse("7d3a4b0e-0000-4000-8000-000000000001")
	assert.Equal(t, "stories/7d3a4b0e-0000-4000-8000-000000000001/page-1.webp", StoryKey(id, "page-1.webp"))
}

func TestObjectURL(t *testing.T) {
	ctx := context.Background()

	public, err := NewClient(ctx, "http://127.0.0.1:9000", "us-east-1", "storybook", "key", "secret", "https://cdn.example.com/storybook/", time.Hour)
	require.NoError(t, err)
	u, err := public.ObjectURL(ctx, "stories/x/story.md")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/storybook/stories/x/story.md", u)

	private, err := NewClient(ctx, "http://127.0.0.1:9000", "us-east-1", "storybook", "key", "secret", "", time.Hour)
	require.NoError(t, err)
	u, err = private.ObjectURL(ctx, "stories/x/story.md")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "http://127.0.0.1:9000/storybook/stories/x/story.md?"), u)
	assert.Contains(t, u, "X-Amz-Signature=")
	assert.Contains(t, u, "X-Amz-Expires=3600")
}

func TestUpload(t *testing.T) {
	var gotPath, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := NewClient(context.Background(), srv.URL, "us-east-1", "storybook", "key", "secret", "", time.Hour)
	require.NoError(t, err)

	err = c.Upload(context.Background(), "stories/x/page-1.png", []byte("png-bytes"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "/storybook/stories/x/page-1.png", gotPath)
	assert.Equal(t, "image/png", gotType)
	assert.Equal(t, "png-bytes", string(gotBody))
}
