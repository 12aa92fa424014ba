package llm

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/googleapis/gax-go/v2/apierror"
	"github.com/sashabaranov/go-openai"
	"google.golang.org/api/googleapi"
	unifiedgenai "google.golang.org/genai"
)

// ErrMissingCredential matches every CredentialError.
var ErrMissingCredential = errors.New("missing credential")

// ErrEmptyBody is returned when a provider answers successfully with no payload.
var ErrEmptyBody = errors.New("upstream returned an empty body")

// CredentialError reports a provider credential that is not configured on the server.
type CredentialError struct {
	Name string // environment variable, e.g. HF_TOKEN
}

func (e *CredentialError) Error() string {
	return e.Name + " is not configured"
}

// Is makes errors.Is(err, ErrMissingCredential) true for any CredentialError.
func (e *CredentialError) Is(target error) bool {
	return target == ErrMissingCredential
}

// UpstreamError wraps a provider rejection or failure with its HTTP status code
type UpstreamError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	return e.Message
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// MalformedResponseError is returned when a provider response cannot be read as the expected shape
type MalformedResponseError struct {
	Provider string
	Reason   string
	Err      error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed %s response: %s: %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed %s response: %s", e.Provider, e.Reason)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// IsMalformed reports whether err is a MalformedResponseError.
func IsMalformed(err error) bool {
	var m *MalformedResponseError
	return errors.As(err, &m)
}

// IsUpstream reports whether err came from a provider (rejection, failure, empty or malformed body).
func IsUpstream(err error) bool {
	var u *UpstreamError
	return errors.As(err, &u) || errors.Is(err, ErrEmptyBody) || IsMalformed(err)
}

// upstreamFromSDK converts an SDK error into an UpstreamError, keeping the provider's status code when the SDK exposes one.
func upstreamFromSDK(provider string, err error) *UpstreamError {
	if err == nil {
		return nil
	}
	ue := &UpstreamError{Provider: provider, StatusCode: http.StatusBadGateway, Message: err.Error(), Err: err}

	var genaiErr unifiedgenai.APIError
	var gapiErr *googleapi.Error
	var gaxErr *apierror.APIError
	var oaiErr *openai.APIError
	var oaiReqErr *openai.RequestError
	switch {
	case errors.As(err, &genaiErr):
		ue.StatusCode = genaiErr.Code
		if genaiErr.Message != "" {
			ue.Message = genaiErr.Message
		}
	case errors.As(err, &gaxErr) && gaxErr.HTTPCode() > 0:
		ue.StatusCode = gaxErr.HTTPCode()
	case errors.As(err, &gapiErr):
		ue.StatusCode = gapiErr.Code
		if gapiErr.Message != "" {
			ue.Message = gapiErr.Message
		}
	case errors.As(err, &oaiErr):
		if oaiErr.HTTPStatusCode > 0 {
			ue.StatusCode = oaiErr.HTTPStatusCode
		}
		if oaiErr.Message != "" {
			ue.Message = oaiErr.Message
		}
	case errors.As(err, &oaiReqErr):
		if oaiReqErr.HTTPStatusCode > 0 {
			ue.StatusCode = oaiReqErr.HTTPStatusCode
		}
	}
	if ue.StatusCode == 0 {
		ue.StatusCode = http.StatusBadGateway
	}
	return ue
}
