package middleware

import (
	"bytes"
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

// CachedPromHandler serves a Prometheus exposition rendered at most once per ttl.
//
// Every catalog rebuild and tour tick touches the default registry; rendering it
// on each scrape would take the same locks the tour clock needs. The handler
// renders once at construction, then again on every ttl until ctx is cancelled.
type CachedPromHandler struct {
	mu    sync.RWMutex
	cache []byte
	ttl   time.Duration
	h     http.Handler
}

// NewCachedPromHandler renders the first exposition synchronously and starts
// the background refresh.
func NewCachedPromHandler(ctx context.Context, gatherer prometheus.Gatherer, ttl time.Duration) *CachedPromHandler {
	c := &CachedPromHandler{
		ttl: ttl,
		h:   promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
	}

	c.refresh()
	go c.refreshLoop(ctx)
	return c
}

func (c *CachedPromHandler) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.refresh()
		}
	}
}

func (c *CachedPromHandler) refresh() {
	rec := &responseRecorder{header: http.Header{}, status: http.StatusOK}
	req, _ := http.NewRequest(http.MethodGet, "/metrics", nil)
	c.h.ServeHTTP(rec, req)

	// keep serving the last good exposition if gathering failed
	if rec.status != http.StatusOK {
		return
	}

	c.mu.Lock()
	c.cache = rec.buf.Bytes()
	c.mu.Unlock()
}

// ServeHTTP writes the cached exposition, or falls through to the live handler
// if nothing has been cached yet.
func (c *CachedPromHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.mu.RLock()
	cached := c.cache
	c.mu.RUnlock()

	if len(cached) == 0 {
		c.h.ServeHTTP(w, r)
		return
	}
	// version=0.0.4 text format, the one promhttp renders without content negotiation
	w.Header().Set("Content-Type", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
	_, _ = w.Write(cached)
}

// responseRecorder captures what promhttp writes so it can be replayed.
type responseRecorder struct {
	buf    bytes.Buffer
	header http.Header
	status int
}

func (rr *responseRecorder) Write(b []byte) (int, error) { return rr.buf.Write(b) }
func (rr *responseRecorder) Header() http.Header         { return rr.header }
func (rr *responseRecorder) WriteHeader(statusCode int)  { rr.status = statusCode }
