// Package web is the HUD control surface: JSON commands, read models and
// an SSE event stream over the engine.
package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/cjeanneret/WayGo/internal/debug"
)

// Server wraps the HTTP server and handlers.
type Server struct {
	addr     string
	handlers *Handlers
}

// NewServer creates a server configured for the given address and dependencies.
func NewServer(addr string, engine Engine, broadcaster *Broadcaster) *Server {
	return &Server{
		addr:     addr,
		handlers: NewHandlers(engine, broadcaster),
	}
}

// Router returns a handler with all routes registered.
func (s *Server) Router() *mux.Router {
	h := s.handlers
	r := mux.NewRouter()

	r.HandleFunc("/state", h.HandleState).Methods("GET")
	r.HandleFunc("/markers", h.HandleMarkers).Methods("GET")
	r.HandleFunc("/events", h.HandleEvents).Methods("GET")

	r.HandleFunc("/activate", h.HandleActivate).Methods("POST")
	r.HandleFunc("/permission", h.HandlePermission).Methods("POST")
	r.HandleFunc("/capture", h.HandleCapture).Methods("POST")
	r.HandleFunc("/filter", h.HandleFilter).Methods("POST")
	r.HandleFunc("/filter/cycle", h.HandleFilterCycle).Methods("POST")
	r.HandleFunc("/zoom", h.HandleZoom).Methods("POST")
	r.HandleFunc("/zoom/finalize", h.HandleZoomFinalize).Methods("POST")
	r.HandleFunc("/zoom/reset", h.HandleZoomReset).Methods("POST")
	r.HandleFunc("/focus", h.HandleFocus).Methods("POST")
	r.HandleFunc("/ar/toggle", h.HandleARToggle).Methods("POST")
	r.HandleFunc("/viewport", h.HandleViewport).Methods("POST")
	r.HandleFunc("/pose/location", h.HandleLocation).Methods("POST")
	r.HandleFunc("/pose/heading", h.HandleHeading).Methods("POST")
	r.HandleFunc("/sim/signal", h.HandleSimSignal).Methods("POST")

	r.HandleFunc("/photos", h.HandlePhotos).Methods("GET")
	r.HandleFunc("/photos/{id}", h.HandlePhoto).Methods("GET")
	r.HandleFunc("/photos/{id}/meta", h.HandlePhotoMeta).Methods("GET")

	r.HandleFunc("/waypoints", h.HandleWaypoints).Methods("GET")
	r.HandleFunc("/waypoints/{id}", h.HandlePutWaypoint).Methods("PUT")
	r.HandleFunc("/waypoints/{id}", h.HandleDeleteWaypoint).Methods("DELETE")

	return r
}

// Run starts the server and blocks until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		debug.Info("Web server listening on %s", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
