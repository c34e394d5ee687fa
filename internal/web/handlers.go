package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/cjeanneret/WayGo/internal/app"
	"github.com/cjeanneret/WayGo/internal/debug"
	"github.com/cjeanneret/WayGo/internal/hw/camera"
	"github.com/cjeanneret/WayGo/internal/imaging"
	"github.com/cjeanneret/WayGo/internal/logic/ar"
	"github.com/cjeanneret/WayGo/internal/logic/capture"
	"github.com/cjeanneret/WayGo/internal/logic/geometry"
	"github.com/cjeanneret/WayGo/internal/logic/pose"
	"github.com/cjeanneret/WayGo/internal/logic/session"
	"github.com/cjeanneret/WayGo/internal/store/photos"
	"github.com/cjeanneret/WayGo/internal/store/waypoints"
)

const (
	maxBodyBytes   = 64 << 10
	previewQuality = 80
)

// Engine is the part of app.App the HUD surface drives.
type Engine interface {
	View() app.View
	Activate()
	RequestPermission()
	CapturePhoto(ctx context.Context) (*capture.Photo, error)
	CycleFilter() capture.FilterMode
	SetFilter(m capture.FilterMode)
	UpdateZoom(multiplier float64) (float64, error)
	FinalizeZoom(multiplier float64) (float64, error)
	ResetZoom() error
	FocusAt(x, y float64) (camera.Point, error)
	ToggleAR() bool
	SetViewport(width, height float64) error
	UpdateLocation(l pose.Location)
	UpdateHeading(h pose.Heading)
	Markers() []ar.Marker
	Waypoints(ctx context.Context) ([]ar.Waypoint, error)
	UpsertWaypoint(ctx context.Context, wp ar.Waypoint) error
	DeleteWaypoint(ctx context.Context, id string) error
	Photo(ctx context.Context, id string) (photos.Entry, string, error)
	Photos(ctx context.Context, limit int) ([]photos.Entry, error)
	Hardware() camera.Hardware
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Engine      Engine
	Broadcaster *Broadcaster
	Heartbeat   time.Duration
}

// NewHandlers creates handlers with the given dependencies.
func NewHandlers(engine Engine, broadcaster *Broadcaster) *Handlers {
	return &Handlers{
		Engine:      engine,
		Broadcaster: broadcaster,
		Heartbeat:   30 * time.Second,
	}
}

// LocationUpdate is the body of POST /pose/location.
type LocationUpdate struct {
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Altitude float64 `json:"altitude"`
	Accuracy float64 `json:"accuracy"`
}

// HeadingUpdate is the body of POST /pose/heading.
type HeadingUpdate struct {
	Heading  float64 `json:"heading"`
	Accuracy float64 `json:"accuracy"`
}

// ValidateLocation checks a location sample before it reaches the tracker.
func ValidateLocation(u LocationUpdate) error {
	for name, v := range map[string]float64{"lat": u.Lat, "lon": u.Lon, "altitude": u.Altitude, "accuracy": u.Accuracy} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s must be a finite number", name)
		}
	}
	if u.Lat < -90 || u.Lat > 90 {
		return fmt.Errorf("lat must be between -90 and 90")
	}
	if u.Lon < -180 || u.Lon > 180 {
		return fmt.Errorf("lon must be between -180 and 180")
	}
	if u.Accuracy < 0 {
		return fmt.Errorf("accuracy must not be negative")
	}
	return nil
}

// ValidateHeading checks a compass sample.
func ValidateHeading(u HeadingUpdate) error {
	if math.IsNaN(u.Heading) || math.IsInf(u.Heading, 0) || math.IsNaN(u.Accuracy) || math.IsInf(u.Accuracy, 0) {
		return fmt.Errorf("heading and accuracy must be finite numbers")
	}
	if u.Heading < 0 || u.Heading >= 360 {
		return fmt.Errorf("heading must be in [0, 360)")
	}
	return nil
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, capture.ErrCaptureInFlight):
		return http.StatusConflict
	case errors.Is(err, capture.ErrStorageDenied), errors.Is(err, session.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, session.ErrNotRunning):
		return http.StatusServiceUnavailable
	case errors.Is(err, session.ErrInvalidZoom), errors.Is(err, app.ErrInvalidViewport), errors.Is(err, waypoints.ErrInvalidWaypoint):
		return http.StatusBadRequest
	case errors.Is(err, photos.ErrNotFound), errors.Is(err, waypoints.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		debug.Error(err)
	}
	http.Error(w, err.Error(), status)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

// HandleState handles GET /state.
func (h *Handlers) HandleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Engine.View())
}

// HandleMarkers handles GET /markers.
func (h *Handlers) HandleMarkers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Engine.Markers())
}

// HandleActivate handles POST /activate (camera screen appeared).
func (h *Handlers) HandleActivate(w http.ResponseWriter, r *http.Request) {
	h.Engine.Activate()
	writeJSON(w, http.StatusAccepted, map[string]session.State{"state": h.Engine.View().State})
}

// HandlePermission handles POST /permission.
func (h *Handlers) HandlePermission(w http.ResponseWriter, r *http.Request) {
	h.Engine.RequestPermission()
	writeJSON(w, http.StatusAccepted, map[string]session.State{"state": h.Engine.View().State})
}

// HandleCapture handles POST /capture. It blocks until the photo is stored.
func (h *Handlers) HandleCapture(w http.ResponseWriter, r *http.Request) {
	photo, err := h.Engine.CapturePhoto(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	id := photo.Request.ID.String()
	writeJSON(w, http.StatusCreated, app.CaptureNotice{
		ID:       id,
		Format:   photo.Format,
		Markers:  len(photo.Markers),
		Degraded: photo.Degraded,
	})
}

// HandleFilterCycle handles POST /filter/cycle.
func (h *Handlers) HandleFilterCycle(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]capture.FilterMode{"filter": h.Engine.CycleFilter()})
}

// HandleFilter handles POST /filter with {"filter":"night_vision"}.
func (h *Handlers) HandleFilter(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Filter string `json:"filter"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	m, err := capture.ParseFilterMode(body.Filter)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.Engine.SetFilter(m)
	writeJSON(w, http.StatusOK, map[string]capture.FilterMode{"filter": m})
}

type zoomBody struct {
	Multiplier float64 `json:"multiplier"`
}

// HandleZoom handles POST /zoom (pinch in progress).
func (h *Handlers) HandleZoom(w http.ResponseWriter, r *http.Request) {
	h.zoom(w, r, h.Engine.UpdateZoom)
}

// HandleZoomFinalize handles POST /zoom/finalize (pinch ended).
func (h *Handlers) HandleZoomFinalize(w http.ResponseWriter, r *http.Request) {
	h.zoom(w, r, h.Engine.FinalizeZoom)
}

func (h *Handlers) zoom(w http.ResponseWriter, r *http.Request, apply func(float64) (float64, error)) {
	var body zoomBody
	if !decodeJSON(w, r, &body) {
		return
	}
	z, err := apply(body.Multiplier)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"zoom": z})
}

// HandleZoomReset handles POST /zoom/reset.
func (h *Handlers) HandleZoomReset(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.ResetZoom(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"zoom": 1})
}

// HandleFocus handles POST /focus with a tap in viewport points.
func (h *Handlers) HandleFocus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	p, err := h.Engine.FocusAt(body.X, body.Y)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleARToggle handles POST /ar/toggle.
func (h *Handlers) HandleARToggle(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ar_enabled": h.Engine.ToggleAR()})
}

// HandleViewport handles POST /viewport.
func (h *Handlers) HandleViewport(w http.ResponseWriter, r *http.Request) {
	var vp ar.Surface
	if !decodeJSON(w, r, &vp) {
		return
	}
	if err := h.Engine.SetViewport(vp.Width, vp.Height); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleLocation handles POST /pose/location.
func (h *Handlers) HandleLocation(w http.ResponseWriter, r *http.Request) {
	var u LocationUpdate
	if !decodeJSON(w, r, &u) {
		return
	}
	if err := ValidateLocation(u); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.Engine.UpdateLocation(pose.Location{
		Point:              geometry.GeoPoint{Lat: u.Lat, Lon: u.Lon},
		Altitude:           u.Altitude,
		HorizontalAccuracy: u.Accuracy,
		Time:               time.Now(),
	})
	w.WriteHeader(http.StatusNoContent)
}

// HandleHeading handles POST /pose/heading.
func (h *Handlers) HandleHeading(w http.ResponseWriter, r *http.Request) {
	var u HeadingUpdate
	if !decodeJSON(w, r, &u) {
		return
	}
	if err := ValidateHeading(u); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.Engine.UpdateHeading(pose.Heading{TrueHeading: u.Heading, Accuracy: u.Accuracy, Time: time.Now()})
	w.WriteHeader(http.StatusNoContent)
}

// HandlePhotos handles GET /photos?limit=N.
func (h *Handlers) HandlePhotos(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	list, err := h.Engine.Photos(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandlePhoto handles GET /photos/{id} and serves the encoded image.
// With ?max=N it serves a jpeg preview whose longer side is at most N.
func (h *Handlers) HandlePhoto(w http.ResponseWriter, r *http.Request) {
	maxSide := 0
	if s := r.URL.Query().Get("max"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			http.Error(w, "max must be a positive integer", http.StatusBadRequest)
			return
		}
		maxSide = n
	}
	entry, path, err := h.Engine.Photo(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	if maxSide == 0 {
		w.Header().Set("Content-Type", entry.ContentType())
		http.ServeFile(w, r, path)
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		writeError(w, fmt.Errorf("read photo %s: %w", entry.ID, err))
		return
	}
	thumb, err := imaging.Thumbnail(data, maxSide, previewQuality)
	if err != nil {
		writeError(w, fmt.Errorf("preview %s: %w", entry.ID, err))
		return
	}
	w.Header().Set("Content-Type", imaging.ContentType(imaging.FormatJPEG))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(thumb)
}

// HandlePhotoMeta handles GET /photos/{id}/meta.
func (h *Handlers) HandlePhotoMeta(w http.ResponseWriter, r *http.Request) {
	entry, _, err := h.Engine.Photo(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// HandleWaypoints handles GET /waypoints.
func (h *Handlers) HandleWaypoints(w http.ResponseWriter, r *http.Request) {
	list, err := h.Engine.Waypoints(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandlePutWaypoint handles PUT /waypoints/{id}.
func (h *Handlers) HandlePutWaypoint(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string  `json:"name"`
		Lat  float64 `json:"lat"`
		Lon  float64 `json:"lon"`
		Type string  `json:"type"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	wp := ar.Waypoint{
		ID:    mux.Vars(r)["id"],
		Name:  body.Name,
		Point: geometry.GeoPoint{Lat: body.Lat, Lon: body.Lon},
		Type:  ar.WaypointType(body.Type),
	}
	if err := h.Engine.UpsertWaypoint(r.Context(), wp); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDeleteWaypoint handles DELETE /waypoints/{id}.
func (h *Handlers) HandleDeleteWaypoint(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.DeleteWaypoint(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSimSignal handles POST /sim/signal, injecting an interruption or
// runtime error into the simulated camera.
func (h *Handlers) HandleSimSignal(w http.ResponseWriter, r *http.Request) {
	sim, ok := h.Engine.Hardware().(*camera.Sim)
	if !ok {
		http.Error(w, "camera is not simulated", http.StatusNotFound)
		return
	}
	var body struct {
		Kind  string `json:"kind"`
		Error string `json:"error"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	var sig camera.Signal
	switch body.Kind {
	case "interrupted":
		sig.Kind = camera.SignalInterrupted
	case "interruption_ended":
		sig.Kind = camera.SignalInterruptionEnded
	case "runtime_error":
		sig.Kind = camera.SignalRuntimeError
		msg := body.Error
		if msg == "" {
			msg = "simulated runtime error"
		}
		sig.Err = errors.New(msg)
	default:
		http.Error(w, "kind must be interrupted, interruption_ended or runtime_error", http.StatusBadRequest)
		return
	}
	sim.Emit(sig)
	w.WriteHeader(http.StatusAccepted)
}

// HandleEvents handles GET /events for SSE.
func (h *Handlers) HandleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	if data, err := json.Marshal(Event{Time: time.Now().Format(time.RFC3339), Kind: "view", Data: h.Engine.View()}); err == nil {
		w.Write([]byte("data: " + string(data) + "\n\n"))
	}
	flusher.Flush()

	heartbeat := h.Heartbeat
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
