package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/snappy-loop/storybook/internal/llm"
)

// Request status labels.
const (
	StatusOK         = "ok"
	StatusCredential = "credential"
	StatusUpstream   = "upstream"
	StatusEmpty      = "empty"
	StatusMalformed  = "malformed"
	StatusError      = "error"
)

var (
	providerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storybook_provider_requests_total",
			Help: "Total number of requests to generation providers.",
		},
		[]string{"provider", "operation", "status"},
	)
	providerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storybook_provider_request_duration_seconds",
			Help:    "Histogram of generation provider request durations.",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 20, 40, 80},
		},
		[]string{"provider", "operation"},
	)
	pageOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storybook_pages_total",
			Help: "Story page illustration outcomes.",
		},
		[]string{"outcome"},
	)
	pageRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storybook_page_retries_total",
			Help: "Total number of page illustration retries.",
		},
	)
	activeStories = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storybook_active_stories",
			Help: "Story sessions currently held in memory.",
		},
	)
)

// StatusLabel maps an error to its request status label.
func StatusLabel(err error) string {
	var malformed *llm.MalformedResponseError
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, llm.ErrMissingCredential):
		return StatusCredential
	case errors.Is(err, llm.ErrEmptyBody):
		return StatusEmpty
	case errors.As(err, &malformed):
		return StatusMalformed
	case llm.IsUpstream(err):
		return StatusUpstream
	default:
		return StatusError
	}
}

// ObserveProviderRequest records one provider call that started at start.
func ObserveProviderRequest(provider, operation string, start time.Time, err error) {
	providerRequests.WithLabelValues(provider, operation, StatusLabel(err)).Inc()
	providerDuration.WithLabelValues(provider, operation).Observe(time.Since(start).Seconds())
}

// PageFinished counts a page reaching done or failed.
func PageFinished(outcome string) {
	pageOutcomes.WithLabelValues(outcome).Inc()
}

// PageRetried counts a retry request.
func PageRetried() {
	pageRetries.Inc()
}

// StoryAdded and StoryRemoved track live sessions.
func StoryAdded()   { activeStories.Inc() }
func StoryRemoved() { activeStories.Dec() }
