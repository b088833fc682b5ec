package app

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"mapcore.psimaps.org/internal/metrics"
)

// latencyTrackingRoundTripper records the duration of every outgoing request
// in metrics.OutgoingLatency, labeled by URL (without query), method and status.
type latencyTrackingRoundTripper struct {
	next http.RoundTripper
}

func (rt *latencyTrackingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := rt.next.RoundTrip(req)
	duration := time.Since(start).Seconds()

	status := "error"
	if err == nil && resp != nil {
		status = strconv.Itoa(resp.StatusCode)
	}

	// no query string or credentials in the label
	safeURL := req.URL.Scheme + "://" + req.URL.Host + req.URL.Path

	metrics.OutgoingLatency.WithLabelValues(safeURL, req.Method, status).Observe(duration)
	return resp, err
}

// NewPooledClient returns the HTTP client used for snapshot fetches.
//
// Snapshots are fetched from one host roughly once a minute, so a handful of
// idle connections is plenty. The overall timeout is generous because a full
// snapshot can run to tens of megabytes.
func NewPooledClient() *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
	}

	return &http.Client{
		Transport: &latencyTrackingRoundTripper{next: transport},
		Timeout:   60 * time.Second,
	}
}
