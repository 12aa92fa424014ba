package llm

import (
	"errors"
	"net/http"
	"net/url"
	"testing"
)

func TestImageMimeType(t *testing.T) {
	pngBytes := testPNG(t, 1, 1)
	tests := []struct {
		name     string
		data     []byte
		declared string
		want     string
	}{
		{"declared image type wins", pngBytes, "image/jpeg", "image/jpeg"},
		{"declared with params", pngBytes, "image/png; charset=binary", "image/png"},
		{"octet-stream sniffed", pngBytes, "application/octet-stream", "image/png"},
		{"undeclared sniffed", pngBytes, "", "image/png"},
		{"gif magic", []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00"), "", "image/gif"},
		{"json body", []byte(`{"error":"x"}`), "application/json", ""},
		{"undeclared text", []byte("hello there"), "", ""},
		{"undeclared binary", []byte{0x00, 0x9f, 0x42}, "", defaultImageMimeType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := imageMimeType(tt.data, tt.declared); got != tt.want {
				t.Errorf("imageMimeType() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildImage_Empty(t *testing.T) {
	_, err := buildImage("p", "m", "prompt", nil, "image/png")
	if !errors.Is(err, ErrEmptyBody) {
		t.Fatalf("buildImage(nil) error = %v, want ErrEmptyBody", err)
	}
}

func TestTrimCodeFence(t *testing.T) {
	tests := []struct{ in, want string }{
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{}\n```", "{}"},
		{"  {}  ", "{}"},
	}
	for _, tt := range tests {
		if got := trimCodeFence(tt.in); got != tt.want {
			t.Errorf("trimCodeFence(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEndpointRoundTripper(t *testing.T) {
	base, _ := url.Parse("http://proxy.local:31300/gemini")
	var got *http.Request
	rt := &endpointRoundTripper{base: base, next: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		got = r
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
	})}

	req, _ := http.NewRequest(http.MethodPost, "https://generativelanguage.googleapis.com/v1beta/models/x:generateContent?alt=json", nil)
	if _, err := rt.RoundTrip(req); err != nil {
		t.Fatal(err)
	}
	if got.URL.String() != "http://proxy.local:31300/gemini/v1beta/models/x:generateContent?alt=json" {
		t.Errorf("rewritten URL = %s", got.URL.String())
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
