package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"
)

type envelope map[string]any

func writeJSON(w http.ResponseWriter, status int, data any) error {
	js, err := json.Marshal(data)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(append(js, '\n'))
	return err
}

// readJSON decodes a single JSON object of at most 1MB into dst.
// An empty body leaves dst untouched.
func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("body contains badly-formed JSON: %w", err)
	}
	if dec.More() {
		return errors.New("body must only contain a single JSON value")
	}
	return nil
}

func (app *Application) respond(w http.ResponseWriter, r *http.Request, data any) {
	if err := writeJSON(w, http.StatusOK, data); err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func pathParam(r *http.Request, name string) string {
	return httprouter.ParamsFromContext(r.Context()).ByName(name)
}

func clusterIDParam(r *http.Request) (uint64, error) {
	raw := pathParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("cluster id must be a non-negative integer, got %q", raw)
	}
	return id, nil
}
