package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/snappy-loop/storybook/internal/config"
	"github.com/snappy-loop/storybook/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(url string) *config.Config {
	return &config.Config{
		WebhookURL:            url,
		WebhookSecret:         "shh",
		WebhookMaxRetries:     3,
		WebhookRetryBaseDelay: time.Millisecond,
		WebhookRetryMaxDelay:  5 * time.Millisecond,
	}
}

func TestPublishStoryEvent_Signed(t *testing.T) {
	var gotBody []byte
	var gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get("X-Storybook-Signature")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewNotifier(testConfig(srv.URL))
	defer n.Close()

	id := uuid.New()
	err := n.PublishStoryEvent(context.Background(), models.StoryEvent{Type: models.EventStoryCreated, StoryID: id, Pages: 4})
	require.NoError(t, err)

	var ev models.StoryEvent
	require.NoError(t, json.Unmarshal(gotBody, &ev))
	assert.Equal(t, id, ev.StoryID)
	assert.Equal(t, 4, ev.Pages)

	mac := hmac.New(sha256.New, []byte("shh"))
	mac.Write(gotBody)
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), gotSig)
}

func TestPublishStoryEvent_RetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier(testConfig(srv.URL))
	err := n.PublishStoryEvent(context.Background(), models.StoryEvent{Type: models.EventPageDone, StoryID: uuid.New()})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return calls.Load() == 3 }, 2*time.Second, 5*time.Millisecond)
	n.Close()
	assert.Equal(t, int32(3), calls.Load())
}

func TestPublishStoryEvent_PermanentFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	n := NewNotifier(testConfig(srv.URL))
	err := n.PublishStoryEvent(context.Background(), models.StoryEvent{Type: models.EventPageFailed, StoryID: uuid.New()})
	n.Close()

	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, http.StatusBadRequest, de.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDeliveryError_IsRetryable(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{500, true},
		{503, true},
		{429, true},
		{400, false},
		{404, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, (&DeliveryError{StatusCode: tt.status}).IsRetryable(), "status %d", tt.status)
	}
}

func TestBackoff(t *testing.T) {
	n := &Notifier{baseDelay: time.Second, maxDelay: 5 * time.Second}
	assert.Equal(t, time.Second, n.backoff(1))
	assert.Equal(t, 2*time.Second, n.backoff(2))
	assert.Equal(t, 4*time.Second, n.backoff(3))
	assert.Equal(t, 5*time.Second, n.backoff(4))
}
