package llm

import (
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// maxProviderResponseLogBytes is the max length of a provider response body to log in full (to avoid huge logs).
const maxProviderResponseLogBytes = 8192

// httpClientForEndpoint returns an http.Client that rewrites request URLs to the given base endpoint (e.g. http://host.docker.internal:31300/gemini).
func httpClientForEndpoint(baseEndpoint string, timeout time.Duration) *http.Client {
	base, err := url.Parse(baseEndpoint)
	if err != nil || base.Host == "" {
		log.Warn().Err(err).Str("endpoint", baseEndpoint).Msg("Invalid provider endpoint, using default")
		return nil
	}
	base.Path = strings.TrimSuffix(base.Path, "/")
	return &http.Client{
		Timeout:   timeout,
		Transport: &endpointRoundTripper{base: base, next: http.DefaultTransport},
	}
}

// endpointRoundTripper rewrites request URLs to a custom base (scheme, host, path prefix).
type endpointRoundTripper struct {
	base *url.URL
	next http.RoundTripper
}

func (e *endpointRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req2 := req.Clone(req.Context())
	req2.URL.Scheme = e.base.Scheme
	req2.URL.Host = e.base.Host
	req2.URL.Path = path.Join(e.base.Path, strings.TrimPrefix(req.URL.Path, "/"))
	if req.URL.RawQuery != "" {
		req2.URL.RawQuery = req.URL.RawQuery
	}
	return e.next.RoundTrip(req2)
}

// logProviderResponse logs provider response text, truncating if over maxProviderResponseLogBytes.
func logProviderResponse(caller, provider, raw string) {
	if len(raw) <= maxProviderResponseLogBytes {
		log.Info().Str("caller", caller).Str("provider", provider).Str("response", raw).Msg("Provider response")
		return
	}
	log.Info().
		Str("caller", caller).
		Str("provider", provider).
		Str("response", raw[:maxProviderResponseLogBytes]+"... [truncated]").
		Int("response_len", len(raw)).
		Msg("Provider response")
}

// promptPreview shortens a prompt for log fields.
func promptPreview(prompt string, n int) string {
	if len(prompt) <= n {
		return prompt
	}
	return prompt[:n] + "..."
}

// trimCodeFence strips a markdown code fence some models wrap around JSON output.
func trimCodeFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
