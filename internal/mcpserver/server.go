package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/snappy-loop/storybook/internal/llm"
	"github.com/snappy-loop/storybook/internal/models"
	"github.com/snappy-loop/storybook/internal/services"
)

// JSON-RPC 2.0 request
type jsonRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// JSON-RPC 2.0 response
type jsonRPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *rpcError   `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// MCP tools/list result
type toolsListResult struct {
	Tools      []mcpTool `json:"tools"`
	NextCursor *string   `json:"nextCursor,omitempty"`
}

type mcpTool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema inputSchema `json:"inputSchema"`
}

type inputSchema struct {
	Type       string                `json:"type"`
	Properties map[string]schemaProp `json:"properties"`
	Required   []string              `json:"required,omitempty"`
}

type schemaProp struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// MCP tools/call result
type toolsCallResult struct {
	Content []contentItem `json:"content"`
	IsError bool          `json:"isError"`
}

type contentItem struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// storyService is the subset of services.StoryService exposed as MCP tools.
type storyService interface {
	GenerateImage(ctx context.Context, req *models.StoryRequest) (*models.ImageResponse, error)
	GenerateStory(ctx context.Context, req *models.StoryRequest) (*models.StorySkeleton, error)
}

// Server implements MCP JSON-RPC 2.0 over HTTP (tools/list and tools/call).
type Server struct {
	stories storyService
}

// NewServer returns a new MCP server backed by the story service.
func NewServer(stories storyService) *Server {
	return &Server{stories: stories}
}

// Handler returns the HTTP handler for JSON-RPC requests.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.serveJSONRPC)
}

func (s *Server) serveJSONRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req jsonRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPCError(w, req.ID, -32700, "Parse error")
		return
	}
	if req.JSONRPC != "2.0" {
		writeRPCError(w, req.ID, -32600, "Invalid Request")
		return
	}

	var result interface{}
	var rpcErr *rpcError
	switch req.Method {
	case "initialize":
		result = initializeResult()
	case "notifications/initialized":
		w.WriteHeader(http.StatusAccepted)
		return
	case "tools/list":
		result, rpcErr = s.handleToolsList()
	case "tools/call":
		result, rpcErr = s.handleToolsCall(r.Context(), req.Params)
	default:
		writeRPCError(w, req.ID, -32601, "Method not found")
		return
	}

	if rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr.Code, rpcErr.Message)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(jsonRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: result})
}

const protocolVersion = "2024-11-05"

func initializeResult() map[string]interface{} {
	return map[string]interface{}{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]interface{}{"tools": map[string]interface{}{}},
		"serverInfo":      map[string]string{"name": "storybook", "version": "1.0.0"},
	}
}

func (s *Server) handleToolsList() (interface{}, *rpcError) {
	prompt := map[string]schemaProp{
		"prompt": {Type: "string", Description: "Text prompt"},
	}
	return &toolsListResult{
		Tools: []mcpTool{
			{
				Name:        "generate_image",
				Description: "Generate one image from a text prompt",
				InputSchema: inputSchema{Type: "object", Properties: prompt, Required: []string{"prompt"}},
			},
			{
				Name:        "generate_story",
				Description: "Write a short illustrated story outline: a title and pages with text and an illustration prompt each",
				InputSchema: inputSchema{Type: "object", Properties: prompt, Required: []string{"prompt"}},
			},
		},
	}, nil
}

type toolsCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

func (s *Server) handleToolsCall(ctx context.Context, paramsRaw json.RawMessage) (interface{}, *rpcError) {
	var params toolsCallParams
	if err := json.Unmarshal(paramsRaw, &params); err != nil {
		return nil, &rpcError{Code: -32602, Message: "Invalid params"}
	}
	req := &models.StoryRequest{Prompt: getStr(params.Arguments, "prompt")}
	switch params.Name {
	case "generate_image":
		return s.callGenerateImage(ctx, req)
	case "generate_story":
		return s.callGenerateStory(ctx, req)
	default:
		return nil, &rpcError{Code: -32602, Message: "Unknown tool: " + params.Name}
	}
}

func getStr(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// callGenerateImage returns the image as MCP image content (base64 without the data: prefix).
func (s *Server) callGenerateImage(ctx context.Context, req *models.StoryRequest) (interface{}, *rpcError) {
	img, err := s.stories.GenerateImage(ctx, req)
	if err != nil {
		return toolError(err), nil
	}
	data := img.ImageURL
	if i := strings.Index(data, ","); i >= 0 {
		data = data[i+1:]
	}
	return &toolsCallResult{
		Content: []contentItem{{Type: "image", Data: data, MimeType: img.MimeType}},
	}, nil
}

func (s *Server) callGenerateStory(ctx context.Context, req *models.StoryRequest) (interface{}, *rpcError) {
	skeleton, err := s.stories.GenerateStory(ctx, req)
	if err != nil {
		return toolError(err), nil
	}
	raw, err := json.Marshal(skeleton)
	if err != nil {
		return toolError(err), nil
	}
	return &toolsCallResult{
		Content: []contentItem{{Type: "text", Text: string(raw)}},
	}, nil
}

// toolError reports a failed call as tool output; provider messages are kept as they are.
func toolError(err error) *toolsCallResult {
	msg := err.Error()
	var upstream *llm.UpstreamError
	var credential *llm.CredentialError
	var validation *services.ValidationError
	switch {
	case errors.As(err, &upstream):
		msg = upstream.Message
	case errors.As(err, &credential):
		msg = credential.Error()
	case errors.As(err, &validation):
		msg = validation.Message
	}
	log.Warn().Err(err).Msg("MCP tool call failed")
	return &toolsCallResult{
		Content: []contentItem{{Type: "text", Text: msg}},
		IsError: true,
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeRPCError(w http.ResponseWriter, id interface{}, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(jsonRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &rpcError{Code: code, Message: message},
	})
}
