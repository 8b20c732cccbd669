// Package server implements the thin HTTP plumbing around the derivation
// core: a write API that forwards CRUD requests to the relational store and
// redirects stream requests, and a broker that serves view subscriptions over
// server-sent events. Neither surface touches the derivation graph beyond the
// view handles it is given.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-logr/logr"

	"liveview.io/liveview/pkg/database"
)

// Options configures the HTTP surfaces.
type Options struct {
	Logger logr.Logger

	// StreamBaseURL is the externally visible base URL of the stream
	// broker, used for redirects issued by the write API.
	StreamBaseURL string
}

// serve runs an HTTP server until ctx is cancelled, then drains it.
func serve(ctx context.Context, addr string, handler http.Handler, log logr.Logger) error {
	srv := &http.Server{Addr: addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	log.Info("server listening", "address", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// errorBody is the JSON error envelope of the write API.
type errorBody struct {
	Error      string `json:"error"`
	StatusCode int    `json:"statusCode"`
	Details    string `json:"details"`
}

// writeError maps an error to the JSON error envelope. Not-found errors from
// the store become 404s; unrecognized errors are reported as opaque 500s.
func writeError(w http.ResponseWriter, log logr.Logger, err error) {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
	case errors.Is(err, database.ErrNotFound):
		apiErr = NewNotFoundError("%s", err.Error())
	default:
		log.Error(err, "request failed")
		apiErr = NewInternalError("An unexpected error occurred")
	}

	writeJSON(w, apiErr.StatusCode, errorBody{
		Error:      apiErr.Name,
		StatusCode: apiErr.StatusCode,
		Details:    apiErr.Message,
	})
}

const notFoundText = `
=== 404 Not Found ===
The thing you asked for isn't here.
` + "¯\\_(ツ)_/¯" + `

`

func notFoundHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte(notFoundText))
}
