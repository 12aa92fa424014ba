package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/snappy-loop/storybook/internal/llm"
	"github.com/stretchr/testify/assert"
)

func TestStatusLabel(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, StatusOK},
		{&llm.CredentialError{Name: "HF_TOKEN"}, StatusCredential},
		{fmt.Errorf("x: %w", llm.ErrEmptyBody), StatusEmpty},
		{&llm.MalformedResponseError{Provider: "p", Reason: "r"}, StatusMalformed},
		{&llm.UpstreamError{StatusCode: 503, Message: "busy"}, StatusUpstream},
		{errors.New("boom"), StatusError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusLabel(tt.err), "StatusLabel(%v)", tt.err)
	}
}

func TestObserveProviderRequest(t *testing.T) {
	before := testutil.ToFloat64(providerRequests.WithLabelValues("test", "image", StatusUpstream))
	ObserveProviderRequest("test", "image", time.Now(), &llm.UpstreamError{StatusCode: 500})
	after := testutil.ToFloat64(providerRequests.WithLabelValues("test", "image", StatusUpstream))
	assert.Equal(t, before+1, after)
}
