package app

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"mapcore.psimaps.org/internal/catalog"
	"mapcore.psimaps.org/internal/cluster"
	"mapcore.psimaps.org/internal/middleware"
	"mapcore.psimaps.org/internal/models"
)

func serve(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(dst); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("got status %d want %d, body: %s", rr.Code, want, rr.Body.String())
	}
}

func TestHealthcheckHandler(t *testing.T) {
	app := newTestApplication(t, true)

	// Create a new httptest.ResponseRecorder and call the handler directly.
	rr := httptest.NewRecorder()
	request, err := http.NewRequest(http.MethodGet, "/v1/healthcheck", nil)
	if err != nil {
		t.Fatal(err)
	}
	app.healthcheckHandler(rr, request)

	if status := rr.Code; status != http.StatusOK {
		t.Errorf("handler returned wrong status code: got %v want %v",
			status, http.StatusOK)
	}

	var resp HealthStatus
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.Status != "available" {
		t.Errorf("expected status 'available', got %q", resp.Status)
	}
	if resp.Environment != "testing" {
		t.Errorf("expected environment 'testing', got %q", resp.Environment)
	}
	if resp.Version != "test-version" {
		t.Errorf("expected version 'test-version', got %q", resp.Version)
	}
	if resp.Records != 5 {
		t.Errorf("expected 5 records, got %d", resp.Records)
	}
	if !resp.Ready {
		t.Error("expected ready to be true")
	}
}

func TestHealthcheckNotReady(t *testing.T) {
	app := newTestApplication(t, false)

	rr := serve(t, app.Routes(context.Background()), http.MethodGet, "/v1/healthcheck", "")
	expectStatus(t, rr, http.StatusServiceUnavailable)

	var resp HealthStatus
	decode(t, rr, &resp)
	if resp.Ready || resp.Records != 0 {
		t.Errorf("expected not ready with no records, got %+v", resp)
	}
}

func TestEndpointsBeforeLoad(t *testing.T) {
	app := newTestApplication(t, false)
	h := app.Routes(context.Background())

	for _, target := range []string{"/v1/clusters", "/v1/clusters/0/expansion-zoom", "/v1/clusters/0/leaves"} {
		if rr := serve(t, h, http.MethodGet, target, ""); rr.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: got status %d want 503", target, rr.Code)
		}
	}
}

func TestClustersHandler(t *testing.T) {
	app := newTestApplication(t, true)
	h := app.Routes(context.Background())

	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantCount  uint
	}{
		{"whole world by default", "/v1/clusters?zoom=20", http.StatusOK, 5},
		{"viewport around marina", "/v1/clusters?bbox=0.5,0.5,1.5,1.5&zoom=20", http.StatusOK, 3},
		{"empty viewport", "/v1/clusters?bbox=100,10,110,20&zoom=5", http.StatusOK, 0},
		{"world at zoom 0", "/v1/clusters?zoom=0", http.StatusOK, 5},
		{"malformed bbox", "/v1/clusters?bbox=1,2,3", http.StatusBadRequest, 0},
		{"south above north", "/v1/clusters?bbox=0,10,1,5", http.StatusBadRequest, 0},
		{"bad zoom", "/v1/clusters?zoom=high", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(t, h, http.MethodGet, tt.target, "")
			expectStatus(t, rr, tt.wantStatus)
			if tt.wantStatus != http.StatusOK {
				return
			}

			var resp struct {
				Clusters []cluster.ClusterNode `json:"clusters"`
			}
			decode(t, rr, &resp)

			var total uint
			for _, n := range resp.Clusters {
				total += n.Count
			}
			if total != tt.wantCount {
				t.Errorf("expected %d records under the viewport, got %d", tt.wantCount, total)
			}
		})
	}
}

func TestClusterDrillDown(t *testing.T) {
	app := newTestApplication(t, true)
	h := app.Routes(context.Background())

	rr := serve(t, h, http.MethodGet, "/v1/clusters?zoom=0", "")
	expectStatus(t, rr, http.StatusOK)

	var resp struct {
		Clusters []cluster.ClusterNode `json:"clusters"`
	}
	decode(t, rr, &resp)

	var top *cluster.ClusterNode
	for i := range resp.Clusters {
		if !resp.Clusters[i].IsLeaf {
			top = &resp.Clusters[i]
			break
		}
	}
	if top == nil {
		t.Fatalf("expected a merged cluster at zoom 0, got %+v", resp.Clusters)
	}

	rr = serve(t, h, http.MethodGet, fmt.Sprintf("/v1/clusters/%d/expansion-zoom?zoom=0", top.ID), "")
	expectStatus(t, rr, http.StatusOK)
	var expansion struct {
		ExpansionZoom float64 `json:"expansion_zoom"`
	}
	decode(t, rr, &expansion)
	if expansion.ExpansionZoom <= 0 {
		t.Errorf("expected expansion zoom above 0, got %v", expansion.ExpansionZoom)
	}

	rr = serve(t, h, http.MethodGet, fmt.Sprintf("/v1/clusters/%d/leaves", top.ID), "")
	expectStatus(t, rr, http.StatusOK)
	var leaves struct {
		Count   int                `json:"count"`
		Records []models.GeoRecord `json:"records"`
	}
	decode(t, rr, &leaves)
	if leaves.Count != int(top.Count) || len(leaves.Records) != int(top.Count) {
		t.Errorf("expected %d leaves, got count %d with %d records", top.Count, leaves.Count, len(leaves.Records))
	}

	for target, want := range map[string]int{
		"/v1/clusters/99999/leaves":         http.StatusNotFound,
		"/v1/clusters/99999/expansion-zoom": http.StatusNotFound,
		"/v1/clusters/abc/leaves":           http.StatusBadRequest,
	} {
		if rr := serve(t, h, http.MethodGet, target, ""); rr.Code != want {
			t.Errorf("%s: got status %d want %d", target, rr.Code, want)
		}
	}
}

func TestPolygonEndpoints(t *testing.T) {
	app := newTestApplication(t, true)
	h := app.Routes(context.Background())

	rr := serve(t, h, http.MethodGet, "/v1/polygon/records", "")
	expectStatus(t, rr, http.StatusOK)
	var records struct {
		Polygon catalog.PolygonState `json:"polygon"`
		Count   int                  `json:"count"`
		Records []models.GeoRecord   `json:"records"`
	}
	decode(t, rr, &records)
	if records.Polygon.Closed || records.Count != 0 {
		t.Errorf("expected an open polygon with no matches, got %+v", records)
	}
	if records.Records == nil {
		t.Error("an empty selection should be a list, not null")
	}

	for _, v := range []string{
		`{"lat": 0.5, "lon": 0.5}`,
		`{"lat": 0.5, "lon": 1.5}`,
		`{"lat": 1.5, "lon": 1.5}`,
	} {
		rr = serve(t, h, http.MethodPost, "/v1/polygon/vertices", v)
		expectStatus(t, rr, http.StatusOK)
	}
	var state catalog.PolygonState
	decode(t, rr, &state)
	if !state.Closed || len(state.Vertices) != 3 {
		t.Errorf("expected a closed triangle, got %+v", state)
	}

	expectStatus(t, serve(t, h, http.MethodPost, "/v1/polygon/vertices", `{"lat": 1.5, "lon": 0.5}`), http.StatusOK)

	rr = serve(t, h, http.MethodGet, "/v1/polygon/records", "")
	expectStatus(t, rr, http.StatusOK)
	decode(t, rr, &records)
	if records.Count != 3 {
		t.Errorf("expected m1, m2 and school inside, got %d", records.Count)
	}

	expectStatus(t, serve(t, h, http.MethodGet, "/v1/camera", ""), http.StatusOK)

	rr = serve(t, h, http.MethodDelete, "/v1/polygon", "")
	expectStatus(t, rr, http.StatusOK)
	decode(t, rr, &state)
	if state.Closed || len(state.Vertices) != 0 {
		t.Errorf("expected a cleared polygon, got %+v", state)
	}
}

func TestAppendVertexRejectsBadInput(t *testing.T) {
	app := newTestApplication(t, true)
	h := app.Routes(context.Background())

	tests := []struct {
		name string
		body string
	}{
		{"out of range", `{"lat": 95, "lon": 0}`},
		{"missing lon", `{"lat": 1}`},
		{"unknown field", `{"lat": 1, "lon": 1, "alt": 3}`},
		{"not json", `lat=1&lon=1`},
		{"empty body", ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectStatus(t, serve(t, h, http.MethodPost, "/v1/polygon/vertices", tt.body), http.StatusBadRequest)
		})
	}

	if n := len(app.Catalog.PolygonState().Vertices); n != 0 {
		t.Errorf("rejected vertices must not be stored, got %d", n)
	}
}

func TestTourEndpoints(t *testing.T) {
	app := newTestApplication(t, true)
	h := app.Routes(context.Background())

	rr := serve(t, h, http.MethodPost, "/v1/tour/start", `{"group": "Harbor"}`)
	expectStatus(t, rr, http.StatusOK)

	var started struct {
		Focus struct {
			Record   models.GeoRecord `json:"record"`
			GroupKey string           `json:"group_key"`
		} `json:"focus"`
		Tour catalog.TourStatus `json:"tour"`
	}
	decode(t, rr, &started)
	if started.Focus.Record.ID != "h1" || started.Focus.GroupKey != "Harbor" {
		t.Errorf("expected focus on h1 in Harbor, got %+v", started.Focus)
	}
	if started.Tour.Phase != "playing" {
		t.Errorf("expected playing, got %q", started.Tour.Phase)
	}
	if len(started.Tour.Groups) != 3 {
		t.Errorf("expected Harbor, Marina and school groups, got %v", started.Tour.Groups)
	}

	steps := []struct {
		target string
		phase  string
	}{
		{"/v1/tour/pause", "paused"},
		{"/v1/tour/resume", "playing"},
		{"/v1/tour/stop", "idle"},
	}
	for _, s := range steps {
		rr = serve(t, h, http.MethodPost, s.target, "")
		expectStatus(t, rr, http.StatusOK)

		var status catalog.TourStatus
		decode(t, rr, &status)
		if status.Phase != s.phase {
			t.Errorf("%s: expected phase %q, got %q", s.target, s.phase, status.Phase)
		}
		if s.phase == "idle" && status.ActiveGroupKey != nil {
			t.Errorf("stopped tour still has active group %q", *status.ActiveGroupKey)
		}
	}

	rr = serve(t, h, http.MethodGet, "/v1/tour", "")
	expectStatus(t, rr, http.StatusOK)
	var polled struct {
		LastFocus struct {
			Record models.GeoRecord `json:"record"`
		} `json:"last_focus"`
	}
	decode(t, rr, &polled)
	if polled.LastFocus.Record.ID != "h1" {
		t.Errorf("expected last focus h1 after stop, got %q", polled.LastFocus.Record.ID)
	}
}

func TestStartTourErrors(t *testing.T) {
	app := newTestApplication(t, true)
	h := app.Routes(context.Background())

	expectStatus(t, serve(t, h, http.MethodPost, "/v1/tour/start", `{"group": "Nowhere"}`), http.StatusBadRequest)
	expectStatus(t, serve(t, h, http.MethodPost, "/v1/tour/start", `{"group": 3}`), http.StatusBadRequest)

	app.Catalog.ReplaceRecords(nil)
	expectStatus(t, serve(t, h, http.MethodPost, "/v1/tour/start", ""), http.StatusConflict)
}

func TestStartPresentationHandler(t *testing.T) {
	app := newTestApplication(t, true)
	h := app.Routes(context.Background())

	rr := serve(t, h, http.MethodPost, "/v1/presentations/p1/start", "")
	expectStatus(t, rr, http.StatusOK)

	var resp struct {
		Focus struct {
			Record models.GeoRecord `json:"record"`
		} `json:"focus"`
		Tour catalog.TourStatus `json:"tour"`
	}
	decode(t, rr, &resp)
	if resp.Focus.Record.ID != "h2" {
		t.Errorf("expected the first listed record h2, got %q", resp.Focus.Record.ID)
	}
	if resp.Tour.Presentation != "p1" {
		t.Errorf("expected presentation p1, got %q", resp.Tour.Presentation)
	}
	// two seconds at the default 50ms tick
	if resp.Tour.TicksPerStep != 40 {
		t.Errorf("expected 40 ticks per step, got %d", resp.Tour.TicksPerStep)
	}

	expectStatus(t, serve(t, h, http.MethodPost, "/v1/presentations/nope/start", ""), http.StatusNotFound)
}

func TestRecordNeighbourhoodEndpoints(t *testing.T) {
	app := newTestApplication(t, true)
	h := app.Routes(context.Background())

	rr := serve(t, h, http.MethodGet, "/v1/records/m1/nearby", "")
	expectStatus(t, rr, http.StatusOK)
	var nearby struct {
		Groups []struct {
			Category string `json:"category"`
		} `json:"groups"`
	}
	decode(t, rr, &nearby)
	if len(nearby.Groups) != 1 || nearby.Groups[0].Category != "school" {
		t.Errorf("expected one school group, got %+v", nearby.Groups)
	}

	rr = serve(t, h, http.MethodGet, "/v1/records/m1/related", "")
	expectStatus(t, rr, http.StatusOK)
	var related struct {
		Same  []json.RawMessage `json:"same_community"`
		Other []json.RawMessage `json:"other_communities"`
	}
	decode(t, rr, &related)
	if len(related.Same) != 1 || len(related.Other) != 3 {
		t.Errorf("expected 1 same and 3 other, got %d and %d", len(related.Same), len(related.Other))
	}

	rr = serve(t, h, http.MethodGet, "/v1/communities/Harbor/centroid", "")
	expectStatus(t, rr, http.StatusOK)
	var centroid struct {
		Centroid models.GeoPoint `json:"centroid"`
	}
	decode(t, rr, &centroid)
	if math.Abs(centroid.Centroid.Lat-3.05) > 1e-9 || math.Abs(centroid.Centroid.Lon-3.1) > 1e-9 {
		t.Errorf("unexpected Harbor centroid %+v", centroid.Centroid)
	}

	for _, target := range []string{
		"/v1/records/missing/nearby",
		"/v1/records/missing/related",
		"/v1/communities/Atlantis/centroid",
	} {
		if rr := serve(t, h, http.MethodGet, target, ""); rr.Code != http.StatusNotFound {
			t.Errorf("%s: got status %d want 404", target, rr.Code)
		}
	}
}

func TestRoutingFallbacks(t *testing.T) {
	app := newTestApplication(t, true)
	h := app.Routes(context.Background())

	rr := serve(t, h, http.MethodGet, "/v1/nothing-here", "")
	expectStatus(t, rr, http.StatusNotFound)
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON 404, got content type %q", ct)
	}

	rr = serve(t, h, http.MethodGet, "/v1/tour/start", "")
	expectStatus(t, rr, http.StatusMethodNotAllowed)

	if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("expected security headers on every response, got X-Content-Type-Options %q", got)
	}
}

func TestRateLimitedRoutes(t *testing.T) {
	app := newTestApplication(t, true)
	app.RateLimiter = middleware.NewRateLimiter(1, 1)
	h := app.Routes(context.Background())

	expectStatus(t, serve(t, h, http.MethodGet, "/v1/clusters", ""), http.StatusOK)

	rr := serve(t, h, http.MethodGet, "/v1/clusters", "")
	expectStatus(t, rr, http.StatusTooManyRequests)
	if rr.Header().Get("Retry-After") != "1" {
		t.Errorf("expected Retry-After header, got %q", rr.Header().Get("Retry-After"))
	}

	// the healthcheck stays reachable for load balancers
	expectStatus(t, serve(t, h, http.MethodGet, "/v1/healthcheck", ""), http.StatusOK)
}
