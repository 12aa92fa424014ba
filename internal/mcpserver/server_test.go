package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/snappy-loop/storybook/internal/llm"
	"github.com/snappy-loop/storybook/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStories struct {
	generateImage func(ctx context.Context, req *models.StoryRequest) (*models.ImageResponse, error)
	generateStory func(ctx context.Context, req *models.StoryRequest) (*models.StorySkeleton, error)
}

func (f *fakeStories) GenerateImage(ctx context.Context, req *models.StoryRequest) (*models.ImageResponse, error) {
	return f.generateImage(ctx, req)
}

func (f *fakeStories) GenerateStory(ctx context.Context, req *models.StoryRequest) (*models.StorySkeleton, error) {
	return f.generateStory(ctx, req)
}

type rpcResult struct {
	ID     interface{}     `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func call(t *testing.T, s *Server, body string) rpcResult {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var out rpcResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestToolsList(t *testing.T) {
	s := NewServer(&fakeStories{})
	out := call(t, s, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	require.Nil(t, out.Error)

	var list toolsListResult
	require.NoError(t, json.Unmarshal(out.Result, &list))
	require.Len(t, list.Tools, 2)
	assert.Equal(t, "generate_image", list.Tools[0].Name)
	assert.Equal(t, "generate_story", list.Tools[1].Name)
	assert.Equal(t, []string{"prompt"}, list.Tools[0].InputSchema.Required)
}

func TestInitialize(t *testing.T) {
	out := call(t, NewServer(&fakeStories{}), `{"jsonrpc":"2.0","id":"a","method":"initialize","params":{}}`)
	require.Nil(t, out.Error)
	assert.Contains(t, string(out.Result), `"protocolVersion":"2024-11-05"`)
}

func TestGenerateImageTool(t *testing.T) {
	var got string
	s := NewServer(&fakeStories{
		generateImage: func(_ context.Context, req *models.StoryRequest) (*models.ImageResponse, error) {
			got = req.Prompt
			return &models.ImageResponse{ImageURL: "data:image/png;base64,iVBORw0K", MimeType: "image/png"}, nil
		},
	})
	out := call(t, s, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"generate_image","arguments":{"prompt":"a fox"}}}`)
	require.Nil(t, out.Error)
	assert.Equal(t, "a fox", got)

	var res toolsCallResult
	require.NoError(t, json.Unmarshal(out.Result, &res))
	assert.False(t, res.IsError)
	require.Len(t, res.Content, 1)
	assert.Equal(t, contentItem{Type: "image", Data: "iVBORw0K", MimeType: "image/png"}, res.Content[0])
}

func TestGenerateStoryTool_ProviderError(t *testing.T) {
	s := NewServer(&fakeStories{
		generateStory: func(context.Context, *models.StoryRequest) (*models.StorySkeleton, error) {
			return nil, &llm.UpstreamError{Provider: llm.ProviderGemini, StatusCode: 429, Message: "Resource has been exhausted"}
		},
	})
	out := call(t, s, `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"generate_story","arguments":{"prompt":"robots"}}}`)
	require.Nil(t, out.Error)

	var res toolsCallResult
	require.NoError(t, json.Unmarshal(out.Result, &res))
	assert.True(t, res.IsError)
	assert.Equal(t, "Resource has been exhausted", res.Content[0].Text)
}

func TestErrors(t *testing.T) {
	s := NewServer(&fakeStories{})

	out := call(t, s, `{"jsonrpc":"1.0","id":4,"method":"tools/list"}`)
	require.NotNil(t, out.Error)
	assert.Equal(t, -32600, out.Error.Code)

	out = call(t, s, `{"jsonrpc":"2.0","id":5,"method":"resources/list"}`)
	require.NotNil(t, out.Error)
	assert.Equal(t, -32601, out.Error.Code)

	out = call(t, s, `{"jsonrpc":"2.0","id":6,"method":"tools/call","params":{"name":"generate_audio"}}`)
	require.NotNil(t, out.Error)
	assert.Equal(t, "Unknown tool: generate_audio", out.Error.Message)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/mcp", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
