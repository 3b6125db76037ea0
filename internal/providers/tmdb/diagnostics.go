package tmdb

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"cinefinder/searchservice/internal/metrics"
)

type endpointStats struct {
	consecutiveFailures int
	lastError           string
	lastSuccessAt       time.Time
	lastFailureAt       time.Time
	lastLatency         time.Duration
	lastTimeout         bool
	totalRequests       int64
	totalFailures       int64
	timeoutCount        int64
}

// EndpointDiagnostics is a point-in-time view of one upstream endpoint.
type EndpointDiagnostics struct {
	Endpoint            string     `json:"endpoint"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	LastError           string     `json:"lastError,omitempty"`
	LastSuccessAt       *time.Time `json:"lastSuccessAt,omitempty"`
	LastFailureAt       *time.Time `json:"lastFailureAt,omitempty"`
	LastLatencyMS       int64      `json:"lastLatencyMs,omitempty"`
	LastTimeout         bool       `json:"lastTimeout,omitempty"`
	TotalRequests       int64      `json:"totalRequests"`
	TotalFailures       int64      `json:"totalFailures"`
	TimeoutCount        int64      `json:"timeoutCount,omitempty"`
}

func (c *Client) recordResult(endpoint Endpoint, err error, latency time.Duration, now time.Time) {
	name := string(endpoint)

	c.statsMu.Lock()
	defer c.statsMu.Unlock()

	state := c.stats[endpoint]
	if state == nil {
		state = &endpointStats{}
		c.stats[endpoint] = state
	}
	state.totalRequests++
	if latency > 0 {
		state.lastLatency = latency
		metrics.UpstreamRequestDuration.WithLabelValues(name).Observe(latency.Seconds())
	}
	state.lastTimeout = isTimeoutLikeError(err)
	if state.lastTimeout {
		state.timeoutCount++
	}

	if err == nil {
		state.consecutiveFailures = 0
		state.lastError = ""
		state.lastSuccessAt = now
		metrics.UpstreamRequestsTotal.WithLabelValues(name, "ok").Inc()
		return
	}

	state.consecutiveFailures++
	state.totalFailures++
	state.lastFailureAt = now
	state.lastError = err.Error()

	status := "error"
	if state.lastTimeout {
		status = "timeout"
	}
	metrics.UpstreamRequestsTotal.WithLabelValues(name, status).Inc()
}

func isTimeoutLikeError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "timeout") || strings.Contains(value, "deadline exceeded")
}

// Diagnostics returns per-endpoint request statistics sorted by endpoint name.
func (c *Client) Diagnostics() []EndpointDiagnostics {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()

	items := make([]EndpointDiagnostics, 0, len(c.stats))
	for endpoint, state := range c.stats {
		item := EndpointDiagnostics{
			Endpoint:            string(endpoint),
			ConsecutiveFailures: state.consecutiveFailures,
			LastError:           state.lastError,
			LastLatencyMS:       state.lastLatency.Milliseconds(),
			LastTimeout:         state.lastTimeout,
			TotalRequests:       state.totalRequests,
			TotalFailures:       state.totalFailures,
			TimeoutCount:        state.timeoutCount,
		}
		if !state.lastSuccessAt.IsZero() {
			lastSuccessAt := state.lastSuccessAt
			item.LastSuccessAt = &lastSuccessAt
		}
		if !state.lastFailureAt.IsZero() {
			lastFailureAt := state.lastFailureAt
			item.LastFailureAt = &lastFailureAt
		}
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].Endpoint < items[j].Endpoint
	})
	return items
}
