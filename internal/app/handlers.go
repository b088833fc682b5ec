package app

import (
	"errors"
	"net/http"

	"github.com/paulmach/orb"
	"mapcore.psimaps.org/internal/geo"
	"mapcore.psimaps.org/internal/models"
	"mapcore.psimaps.org/internal/utils"
)

// HealthStatus is the body of GET /v1/healthcheck.
//
// Ready is false until the first record snapshot has been loaded; load balancers
// should hold traffic until then, since viewport queries answer 503 before it.
type HealthStatus struct {
	Status      string `json:"status"`
	Environment string `json:"environment"`
	Version     string `json:"version"`
	Records     int    `json:"records"`
	Ready       bool   `json:"ready"`
}

func (app *Application) healthcheckHandler(w http.ResponseWriter, r *http.Request) {
	ready := app.Catalog.Ready()

	status := HealthStatus{
		Status:      "available",
		Environment: app.Config.Env,
		Version:     app.Version,
		Records:     len(app.Catalog.Records()),
		Ready:       ready,
	}

	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	if err := writeJSON(w, code, status); err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

var worldBound = orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}}

// clustersHandler answers a viewport poll. Without bbox the whole world is returned.
func (app *Application) clustersHandler(w http.ResponseWriter, r *http.Request) {
	if !app.Catalog.Ready() {
		app.notReadyResponse(w, r)
		return
	}

	q := r.URL.Query()
	bounds := worldBound
	if raw := q.Get("bbox"); raw != "" {
		b, err := utils.ParseBBox(raw)
		if err != nil {
			app.badRequestResponse(w, r, err)
			return
		}
		bounds = b
	}
	zoom, err := utils.FloatParam(q, "zoom", 0)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	nodes := app.Catalog.Clusters(bounds, zoom)
	app.respond(w, r, envelope{"zoom": zoom, "count": len(nodes), "clusters": nodes})
}

// clusterLookupError reports an unknown cluster id as 404.
func (app *Application) clusterLookupError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, geo.ErrInvalidInput) {
		app.errorResponse(w, r, http.StatusNotFound, err.Error())
		return
	}
	app.serverErrorResponse(w, r, err)
}

func (app *Application) expansionZoomHandler(w http.ResponseWriter, r *http.Request) {
	if !app.Catalog.Ready() {
		app.notReadyResponse(w, r)
		return
	}
	id, err := clusterIDParam(r)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	zoom, err := utils.FloatParam(r.URL.Query(), "zoom", 0)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	expansion, err := app.Catalog.ExpansionZoom(id, zoom)
	if err != nil {
		app.clusterLookupError(w, r, err)
		return
	}
	app.respond(w, r, envelope{"id": id, "expansion_zoom": expansion})
}

func (app *Application) clusterLeavesHandler(w http.ResponseWriter, r *http.Request) {
	if !app.Catalog.Ready() {
		app.notReadyResponse(w, r)
		return
	}
	id, err := clusterIDParam(r)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	leaves, err := app.Catalog.Leaves(id)
	if err != nil {
		app.clusterLookupError(w, r, err)
		return
	}
	app.respond(w, r, envelope{"id": id, "count": len(leaves), "records": leaves})
}

type vertexRequest struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

func (app *Application) appendVertexHandler(w http.ResponseWriter, r *http.Request) {
	var in vertexRequest
	if err := readJSON(w, r, &in); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if in.Lat == nil || in.Lon == nil {
		app.badRequestResponse(w, r, errors.New("lat and lon are required"))
		return
	}

	state, err := app.Catalog.AppendVertex(models.GeoPoint{Lat: *in.Lat, Lon: *in.Lon})
	if err != nil {
		app.engineErrorResponse(w, r, err)
		return
	}
	app.respond(w, r, state)
}

func (app *Application) clearPolygonHandler(w http.ResponseWriter, r *http.Request) {
	app.respond(w, r, app.Catalog.ClearPolygon())
}

// polygonRecordsHandler returns the lasso selection. Zero matches is a normal
// 200 with an empty list; the renderer decides what to show instead.
func (app *Application) polygonRecordsHandler(w http.ResponseWriter, r *http.Request) {
	records := app.Catalog.FilteredRecords()
	app.respond(w, r, envelope{
		"polygon": app.Catalog.PolygonState(),
		"count":   len(records),
		"records": records,
	})
}

func (app *Application) cameraHandler(w http.ResponseWriter, r *http.Request) {
	box, err := app.Catalog.FitCamera()
	if err != nil {
		app.engineErrorResponse(w, r, err)
		return
	}
	app.respond(w, r, envelope{"bounds": box, "center": box.Center()})
}

type startTourRequest struct {
	Group string `json:"group"`
}

func (app *Application) startTourHandler(w http.ResponseWriter, r *http.Request) {
	var in startTourRequest
	if err := readJSON(w, r, &in); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	focus, err := app.Catalog.StartTour(in.Group)
	if err != nil {
		app.engineErrorResponse(w, r, err)
		return
	}
	app.respond(w, r, envelope{"focus": focus, "tour": app.Catalog.TourStatus()})
}

func (app *Application) pauseTourHandler(w http.ResponseWriter, r *http.Request) {
	app.Catalog.PauseTour()
	app.respond(w, r, app.Catalog.TourStatus())
}

func (app *Application) resumeTourHandler(w http.ResponseWriter, r *http.Request) {
	app.Catalog.ResumeTour()
	app.respond(w, r, app.Catalog.TourStatus())
}

func (app *Application) stopTourHandler(w http.ResponseWriter, r *http.Request) {
	app.Catalog.StopTour()
	app.respond(w, r, app.Catalog.TourStatus())
}

func (app *Application) tourStatusHandler(w http.ResponseWriter, r *http.Request) {
	status := app.Catalog.TourStatus()
	out := envelope{"tour": status}
	if last, ok := app.Catalog.LastFocus(); ok {
		out["last_focus"] = last
	}
	app.respond(w, r, out)
}

func (app *Application) startPresentationHandler(w http.ResponseWriter, r *http.Request) {
	focus, err := app.Catalog.StartPresentation(pathParam(r, "id"))
	if err != nil {
		app.engineErrorResponse(w, r, err)
		return
	}
	app.respond(w, r, envelope{"focus": focus, "tour": app.Catalog.TourStatus()})
}

func (app *Application) nearbyHandler(w http.ResponseWriter, r *http.Request) {
	groups, err := app.Catalog.Nearby(pathParam(r, "id"))
	if err != nil {
		app.engineErrorResponse(w, r, err)
		return
	}
	app.respond(w, r, envelope{"groups": groups})
}

func (app *Application) relatedHandler(w http.ResponseWriter, r *http.Request) {
	same, other, err := app.Catalog.Related(pathParam(r, "id"))
	if err != nil {
		app.engineErrorResponse(w, r, err)
		return
	}
	app.respond(w, r, envelope{"same_community": same, "other_communities": other})
}

func (app *Application) communityCentroidHandler(w http.ResponseWriter, r *http.Request) {
	centroid, err := app.Catalog.CommunityCentroid(pathParam(r, "category"))
	if err != nil {
		app.engineErrorResponse(w, r, err)
		return
	}
	app.respond(w, r, envelope{"centroid": centroid})
}
