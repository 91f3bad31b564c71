// Package api exposes the planner's trigger interface over HTTP/JSON.
// Upstream automation calls it when a device or rack enters a "ready
// for connectivity" state; every response is a structured per-interface
// outcome, never a bare pass/fail.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/signalsfoundry/fabric-planner/core"
	"github.com/signalsfoundry/fabric-planner/internal/logging"
	"github.com/signalsfoundry/fabric-planner/internal/observability"
	"github.com/signalsfoundry/fabric-planner/inventory"
)

// Server routes planner requests. It holds no request state; one
// instance serves concurrent invocations.
type Server struct {
	planner *core.Planner
	log     logging.Logger
}

// NewServer constructs the API surface over a Planner.
func NewServer(planner *core.Planner, log logging.Logger) *Server {
	if log == nil {
		log = logging.Noop()
	}
	return &Server{planner: planner, log: log}
}

// Handler assembles the route table with request-id and metrics
// middleware. The collector may be nil (e.g. in tests).
func (s *Server) Handler(collector *observability.PlannerCollector) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /v1/connect", s.instrument(collector, "/v1/connect", http.HandlerFunc(s.handleConnect)))
	mux.Handle("GET /v1/devices/{device}/plan", s.instrument(collector, "/v1/devices/plan", http.HandlerFunc(s.handlePlan)))
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	return RequestID(s.log, mux)
}

func (s *Server) instrument(collector *observability.PlannerCollector, route string, next http.Handler) http.Handler {
	if collector == nil {
		return next
	}
	return collector.Middleware(route, next)
}

// connectRequest is the trigger payload: one device, or a small
// explicitly scoped batch.
type connectRequest struct {
	Device    string   `json:"device,omitempty"`
	Devices   []string `json:"devices,omitempty"`
	Workspace string   `json:"workspace,omitempty"`
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Device == "" && len(req.Devices) == 0 {
		writeError(w, http.StatusBadRequest, "device or devices is required")
		return
	}

	if len(req.Devices) > 0 {
		batch := s.planner.ConnectBatch(ctx, req.Workspace, req.Devices)
		writeJSON(w, http.StatusOK, batch)
		return
	}

	result, err := s.planner.Connect(ctx, core.ConnectRequest{
		Device:    req.Device,
		Workspace: req.Workspace,
	})
	s.writeResult(w, result, err)
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	device := r.PathValue("device")
	result, err := s.planner.Plan(r.Context(), core.ConnectRequest{
		Device:    device,
		Workspace: r.URL.Query().Get("workspace"),
	})
	s.writeResult(w, result, err)
}

func (s *Server) writeResult(w http.ResponseWriter, result *core.DeviceResult, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, result)
	case errors.Is(err, inventory.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, core.ErrPlanValidation):
		// The rejected plan is still reported so operators can see
		// which interfaces offended.
		writeJSON(w, http.StatusUnprocessableEntity, struct {
			Error  string             `json:"error"`
			Result *core.DeviceResult `json:"result,omitempty"`
		}{Error: err.Error(), Result: result})
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
