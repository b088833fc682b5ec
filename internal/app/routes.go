package app

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"mapcore.psimaps.org/internal/middleware"
)

// Routes sets up the HTTP routing configuration for the application and returns the final http.Handler.
//
// Registered Routes:
//   - GET /v1/healthcheck: availability, version and whether a snapshot is loaded.
//   - GET /metrics: cached Prometheus exposition.
//   - GET /v1/clusters?bbox=w,s,e,n&zoom=z: markers for a viewport.
//   - GET /v1/clusters/:id/expansion-zoom?zoom=z and GET /v1/clusters/:id/leaves.
//   - POST /v1/polygon/vertices, DELETE /v1/polygon, GET /v1/polygon/records: lasso selection.
//   - GET /v1/camera: bounding box framing the current selection.
//   - POST /v1/tour/start|pause|resume|stop, GET /v1/tour: tour playback.
//   - POST /v1/presentations/:id/start: tour a saved presentation.
//   - GET /v1/records/:id/nearby, GET /v1/records/:id/related.
//   - GET /v1/communities/:category/centroid.
//
// Middleware, outermost first: security headers, Sentry, per-client rate limiting.
// /metrics and the healthcheck are not rate limited.
func (app *Application) Routes(ctx context.Context) http.Handler {
	api := httprouter.New()

	api.HandlerFunc(http.MethodGet, "/v1/clusters", app.clustersHandler)
	api.HandlerFunc(http.MethodGet, "/v1/clusters/:id/expansion-zoom", app.expansionZoomHandler)
	api.HandlerFunc(http.MethodGet, "/v1/clusters/:id/leaves", app.clusterLeavesHandler)

	api.HandlerFunc(http.MethodPost, "/v1/polygon/vertices", app.appendVertexHandler)
	api.HandlerFunc(http.MethodDelete, "/v1/polygon", app.clearPolygonHandler)
	api.HandlerFunc(http.MethodGet, "/v1/polygon/records", app.polygonRecordsHandler)
	api.HandlerFunc(http.MethodGet, "/v1/camera", app.cameraHandler)

	api.HandlerFunc(http.MethodPost, "/v1/tour/start", app.startTourHandler)
	api.HandlerFunc(http.MethodPost, "/v1/tour/pause", app.pauseTourHandler)
	api.HandlerFunc(http.MethodPost, "/v1/tour/resume", app.resumeTourHandler)
	api.HandlerFunc(http.MethodPost, "/v1/tour/stop", app.stopTourHandler)
	api.HandlerFunc(http.MethodGet, "/v1/tour", app.tourStatusHandler)
	api.HandlerFunc(http.MethodPost, "/v1/presentations/:id/start", app.startPresentationHandler)

	api.HandlerFunc(http.MethodGet, "/v1/records/:id/nearby", app.nearbyHandler)
	api.HandlerFunc(http.MethodGet, "/v1/records/:id/related", app.relatedHandler)
	api.HandlerFunc(http.MethodGet, "/v1/communities/:category/centroid", app.communityCentroidHandler)

	api.NotFound = http.HandlerFunc(app.notFoundResponse)
	api.MethodNotAllowed = http.HandlerFunc(app.methodNotAllowedResponse)

	limited := app.RateLimiter.Handler(api)

	router := httprouter.New()
	router.HandlerFunc(http.MethodGet, "/v1/healthcheck", app.healthcheckHandler)
	router.Handler(http.MethodGet, "/metrics", middleware.NewCachedPromHandler(ctx, prometheus.DefaultGatherer, 10*time.Second))
	router.NotFound = limited
	router.HandleMethodNotAllowed = false

	handler := middleware.SentryMiddleware(router)
	return middleware.SecurityHeaders(handler)
}
