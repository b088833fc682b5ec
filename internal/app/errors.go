package app

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/getsentry/sentry-go"
	"mapcore.psimaps.org/internal/catalog"
	"mapcore.psimaps.org/internal/geo"
	"mapcore.psimaps.org/internal/report"
	"mapcore.psimaps.org/internal/utils"
)

func (app *Application) errorResponse(w http.ResponseWriter, r *http.Request, status int, message string) {
	if err := writeJSON(w, status, envelope{"error": message}); err != nil {
		app.Logger.Error("failed to write error response", "error", err, "method", r.Method, "path", r.URL.Path)
	}
}

// serverErrorResponse logs and reports err; the client only sees a generic message.
func (app *Application) serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.Logger.Error("request failed", "error", err, "method", r.Method, "path", r.URL.Path)
	report.ReportErrorWithSentryOptions(err, report.SentryReportOptions{
		Tags:  utils.MakeMap("path", r.URL.Path),
		Level: sentry.LevelError,
	})
	app.errorResponse(w, r, http.StatusInternalServerError, "the server encountered a problem and could not process your request")
}

func (app *Application) badRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.errorResponse(w, r, http.StatusBadRequest, err.Error())
}

func (app *Application) notFoundResponse(w http.ResponseWriter, r *http.Request) {
	app.errorResponse(w, r, http.StatusNotFound, "the requested resource could not be found")
}

func (app *Application) methodNotAllowedResponse(w http.ResponseWriter, r *http.Request) {
	app.errorResponse(w, r, http.StatusMethodNotAllowed, fmt.Sprintf("the %s method is not supported for this resource", r.Method))
}

func (app *Application) notReadyResponse(w http.ResponseWriter, r *http.Request) {
	app.errorResponse(w, r, http.StatusServiceUnavailable, "no record snapshot has been loaded yet")
}

// engineErrorResponse maps the engine's error taxonomy onto status codes.
func (app *Application) engineErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		app.errorResponse(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, geo.ErrInvalidInput):
		app.errorResponse(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, geo.ErrEmptyInput):
		app.errorResponse(w, r, http.StatusConflict, err.Error())
	default:
		app.serverErrorResponse(w, r, err)
	}
}
