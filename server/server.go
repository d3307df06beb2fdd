// Package server exposes scan attempts over HTTP. It stands in for the
// presentation layer: one attempt runs at a time, started by a request that
// blocks until the attempt delivers or is cancelled.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	barcodescan "github.com/ericlevine/barcodescan"
	"github.com/ericlevine/barcodescan/device"
	"github.com/ericlevine/barcodescan/logger"
	"github.com/ericlevine/barcodescan/metrics"
	"github.com/ericlevine/barcodescan/scan"
	"github.com/ericlevine/barcodescan/sink"
	"github.com/ericlevine/barcodescan/view"
)

// CameraFactory returns the camera for a new attempt.
type CameraFactory func() device.Camera

// SinkFactory returns an extra sink for the attempt with the given ID, or
// nil.
type SinkFactory func(sessionID string) barcodescan.ResultSink

// Handler serves the scan API. It runs at most one attempt at a time.
type Handler struct {
	cameras  CameraFactory
	cfg      barcodescan.Configuration
	scanOpts []scan.Option
	sinks    SinkFactory
	metrics  *metrics.Metrics

	mu     sync.Mutex
	active *attempt
}

type attempt struct {
	scanner *scan.Scanner
	host    *host
}

// host records what the scanner asked of the presentation layer.
type host struct {
	mu        sync.Mutex
	dismissed bool
	fallback  error
}

func (h *host) DismissRequested() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dismissed = true
}

func (h *host) ShowFallback(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fallback = err
}

// Option configures a Handler.
type Option func(*Handler)

// WithConfiguration sets the base scan configuration.
func WithConfiguration(cfg barcodescan.Configuration) Option {
	return func(h *Handler) { h.cfg = cfg }
}

// WithScanOptions passes options to every scanner.
func WithScanOptions(opts ...scan.Option) Option {
	return func(h *Handler) { h.scanOpts = append(h.scanOpts, opts...) }
}

// WithSinkFactory adds a sink to every attempt, for example a NATS publisher.
func WithSinkFactory(f SinkFactory) Option {
	return func(h *Handler) { h.sinks = f }
}

// WithMetrics serves m on /metrics and records attempts in it.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// NewHandler returns a handler that opens a camera from cameras for every
// attempt.
func NewHandler(cameras CameraFactory, opts ...Option) *Handler {
	h := &Handler{
		cameras: cameras,
		cfg:     barcodescan.DefaultConfiguration(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetupRoutes configures all API routes.
func (h *Handler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/healthz", h.Healthz).Methods("GET")
	router.Handle("/metrics", h.metrics.Handler()).Methods("GET")

	router.HandleFunc("/api/scan", h.HandleScan).Methods("POST")
	router.HandleFunc("/api/scan", h.HandleStatus).Methods("GET")
	router.HandleFunc("/api/scan/cancel", h.HandleCancel).Methods("POST")
	router.HandleFunc("/api/scan/focus", h.HandleFocus).Methods("POST")

	return router
}

// Healthz reports liveness.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("healthy"))
}

// Close cancels the running attempt, if any.
func (h *Handler) Close() error {
	h.mu.Lock()
	a := h.active
	h.mu.Unlock()
	if a == nil {
		return nil
	}
	return a.scanner.Close()
}

type scanRequest struct {
	Extended   *bool `json:"extended,omitempty"`
	ShowHelper *bool `json:"show_helper,omitempty"`
}

type scanResponse struct {
	SessionID string `json:"session_id"`
	Payload   string `json:"payload"`
	Symbology string `json:"symbology"`
	Type      string `json:"type"`
}

type errorResponse struct {
	Error    string `json:"error"`
	Fallback bool   `json:"fallback,omitempty"`
}

// HandleScan runs one attempt and responds with its result, or 204 when it
// is cancelled. The attempt is cancelled if the client goes away.
func (h *Handler) HandleScan(w http.ResponseWriter, r *http.Request) {
	cfg := h.cfg
	if r.ContentLength != 0 {
		var req scanRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}
		if req.Extended != nil {
			cfg.UseExtendedFormat = *req.Extended
		}
		if req.ShowHelper != nil {
			cfg.ShowHelperOverlay = *req.ShowHelper
		}
	}

	id := uuid.NewString()
	hst := &host{}
	results := sink.NewChan()
	var out barcodescan.ResultSink = results
	if h.sinks != nil {
		if extra := h.sinks(id); extra != nil {
			out = sink.Multi{results, extra}
		}
	}

	opts := append([]scan.Option{
		scan.WithID(id),
		scan.WithHost(hst),
		scan.WithMetrics(h.metrics),
	}, h.scanOpts...)

	h.mu.Lock()
	if h.active != nil {
		h.mu.Unlock()
		writeJSON(w, http.StatusConflict, errorResponse{Error: "a scan is already running"})
		return
	}
	scanner := scan.New(h.cameras(), out, opts...)
	a := &attempt{scanner: scanner, host: hst}
	h.active = a
	h.mu.Unlock()
	defer h.clear(a)

	if err := scanner.Configure(cfg); err != nil {
		scanner.Close()
		if errors.Is(err, barcodescan.ErrDeviceUnavailable) {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error(), Fallback: true})
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	if err := scanner.Start(r.Context()); err != nil {
		scanner.Close()
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	result, err := scanner.Wait(r.Context())
	if err != nil {
		if r.Context().Err() != nil {
			logger.Log.Info("client went away, cancelling scan",
				slog.String("component", "http_server"),
				slog.String("session_id", id))
			scanner.Close()
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, scanResponse{
		SessionID: id,
		Payload:   result.Payload,
		Symbology: result.Symbology.String(),
		Type:      result.Symbology.TypeIdentifier(),
	})
}

func (h *Handler) clear(a *attempt) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.active == a {
		h.active = nil
	}
}

func (h *Handler) current() *attempt {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active
}

type rectJSON struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type statusResponse struct {
	SessionID    string    `json:"session_id"`
	State        string    `json:"state"`
	Symbologies  string    `json:"symbologies"`
	Overlay      *rectJSON `json:"overlay,omitempty"`
	CloseControl string    `json:"close_control"`
	CloseFrame   rectJSON  `json:"close_frame"`
	CancelLabel  string    `json:"cancel_label,omitempty"`
	CloseIcon    string    `json:"close_icon,omitempty"`
	Dismissed    bool      `json:"dismissed"`
}

// HandleStatus describes the running attempt and what the host should draw.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	a := h.current()
	if a == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no scan running"})
		return
	}

	cfg := a.scanner.Configuration()
	resp := statusResponse{
		SessionID:    a.scanner.ID(),
		State:        a.scanner.State().String(),
		Symbologies:  cfg.Symbologies.String(),
		CloseControl: a.scanner.CloseControl().String(),
	}
	f := a.scanner.CloseFrame()
	resp.CloseFrame = rectJSON{X: f.X, Y: f.Y, Width: f.Width, Height: f.Height}
	if a.scanner.CloseControl() == view.CloseIcon {
		resp.CloseIcon = cfg.CloseIcon
	} else {
		resp.CancelLabel = cfg.CancelLabel
	}
	if o := a.scanner.Overlay(); o != nil {
		resp.Overlay = &rectJSON{X: o.Frame.X, Y: o.Frame.Y, Width: o.Frame.Width, Height: o.Frame.Height}
	}
	a.host.mu.Lock()
	resp.Dismissed = a.host.dismissed
	a.host.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

// HandleCancel cancels the running attempt. The device is released when the
// response is written.
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	a := h.current()
	if a == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no scan running"})
		return
	}
	a.scanner.Cancel()
	w.WriteHeader(http.StatusNoContent)
}

type focusRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// HandleFocus forwards a tap at preview coordinates to the running attempt.
func (h *Handler) HandleFocus(w http.ResponseWriter, r *http.Request) {
	var req focusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	a := h.current()
	if a == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no scan running"})
		return
	}
	if !a.scanner.Tap(view.Point{X: req.X, Y: req.Y}) {
		writeJSON(w, http.StatusConflict, errorResponse{Error: "scan is not accepting taps"})
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Warn("write response failed",
			slog.String("component", "http_server"),
			slog.String("error", err.Error()))
	}
}
