package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/rmahmud/route-director/internal/domain"
	"github.com/rmahmud/route-director/internal/errors"
	"github.com/rmahmud/route-director/internal/service"
	"github.com/rmahmud/route-director/pkg/logger"
)

// AdminHandler exposes the routing core's administrative surface: backend
// registration, enable/disable, strategy selection, and statistics. It
// never touches the traffic path.
type AdminHandler struct {
	balancer  LoadBalancerAPI
	logger    *logger.Logger
	startTime time.Time
}

// LoadBalancerAPI is the slice of the facade the admin handler needs.
type LoadBalancerAPI interface {
	AddBackend(backend *domain.Backend) error
	RemoveBackend(id string) error
	EnableBackend(id string) error
	DisableBackend(id string) error
	SetDefaultStrategy(strategy domain.StrategyType) error
	GetBackendStatus(id string) (domain.BackendSnapshot, bool)
	ListBackendStatus() []domain.BackendSnapshot
	GetStats() map[string]interface{}
	GetTrafficDistribution() map[string]service.TrafficShare
	GetStrategyRecommendation() service.Recommendation
}

// NewAdminHandler creates the admin API handler.
func NewAdminHandler(balancer LoadBalancerAPI, log *logger.Logger) *AdminHandler {
	return &AdminHandler{
		balancer:  balancer,
		logger:    log.AdminLogger(),
		startTime: time.Now(),
	}
}

// Register mounts the admin routes on the given router.
func (h *AdminHandler) Register(router *mux.Router) {
	router.HandleFunc("/healthz", h.HealthzHandler).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/stats", h.StatsHandler).Methods(http.MethodGet)
	api.HandleFunc("/traffic", h.TrafficHandler).Methods(http.MethodGet)
	api.HandleFunc("/recommendation", h.RecommendationHandler).Methods(http.MethodGet)
	api.HandleFunc("/strategy", h.SetStrategyHandler).Methods(http.MethodPut)
	api.HandleFunc("/backends", h.ListBackendsHandler).Methods(http.MethodGet)
	api.HandleFunc("/backends", h.AddBackendHandler).Methods(http.MethodPost)
	api.HandleFunc("/backends/{id}", h.GetBackendHandler).Methods(http.MethodGet)
	api.HandleFunc("/backends/{id}", h.RemoveBackendHandler).Methods(http.MethodDelete)
	api.HandleFunc("/backends/{id}/enable", h.EnableBackendHandler).Methods(http.MethodPost)
	api.HandleFunc("/backends/{id}/disable", h.DisableBackendHandler).Methods(http.MethodPost)
}

// BackendRequest is the JSON body for registering a backend.
type BackendRequest struct {
	ID              string  `json:"id"`
	Address         string  `json:"address"`
	Weight          float64 `json:"weight"`
	MaxConnections  int     `json:"max_connections,omitempty"`
	HealthCheckPath string  `json:"health_check_path,omitempty"`
	Protocol        string  `json:"protocol,omitempty"`
	Timeout         string  `json:"timeout,omitempty"`
}

// StrategyRequest is the JSON body for changing the default strategy.
type StrategyRequest struct {
	Strategy string `json:"strategy"`
}

// HealthzHandler reports liveness of the admin surface itself.
func (h *AdminHandler) HealthzHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(h.startTime).String(),
	})
}

// StatsHandler returns aggregate routing statistics.
func (h *AdminHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.balancer.GetStats())
}

// TrafficHandler returns per-backend traffic shares over the recent window.
func (h *AdminHandler) TrafficHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.balancer.GetTrafficDistribution())
}

// RecommendationHandler returns the current strategy recommendation.
func (h *AdminHandler) RecommendationHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.balancer.GetStrategyRecommendation())
}

// SetStrategyHandler changes the default routing strategy.
func (h *AdminHandler) SetStrategyHandler(w http.ResponseWriter, r *http.Request) {
	var req StrategyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.balancer.SetDefaultStrategy(domain.StrategyType(req.Strategy)); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.logger.WithField("strategy", req.Strategy).Info("Default strategy updated via admin API")
	h.writeJSON(w, http.StatusOK, map[string]string{"strategy": req.Strategy})
}

// ListBackendsHandler returns runtime snapshots for every backend.
func (h *AdminHandler) ListBackendsHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.balancer.ListBackendStatus())
}

// GetBackendHandler returns one backend's runtime snapshot.
func (h *AdminHandler) GetBackendHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	snapshot, ok := h.balancer.GetBackendStatus(id)
	if !ok {
		h.writeError(w, http.StatusNotFound, "backend not found")
		return
	}
	h.writeJSON(w, http.StatusOK, snapshot)
}

// AddBackendHandler registers a new backend.
func (h *AdminHandler) AddBackendHandler(w http.ResponseWriter, r *http.Request) {
	var req BackendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	backend := domain.NewBackend(req.ID, req.Address, req.Weight)
	if req.MaxConnections > 0 {
		backend.MaxConnections = req.MaxConnections
	}
	if req.HealthCheckPath != "" {
		backend.HealthCheckPath = req.HealthCheckPath
	}
	if req.Protocol != "" {
		backend.Protocol = req.Protocol
	}
	if req.Timeout != "" {
		timeout, err := time.ParseDuration(req.Timeout)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid timeout")
			return
		}
		backend.Timeout = timeout
	}

	if err := h.balancer.AddBackend(backend); err != nil {
		status := http.StatusBadRequest
		if errors.IsCode(err, errors.ErrCodeDuplicateBackend) {
			status = http.StatusConflict
		}
		h.writeError(w, status, err.Error())
		return
	}

	h.logger.WithField("backend_id", backend.ID).Info("Backend added via admin API")
	h.writeJSON(w, http.StatusCreated, map[string]string{"id": backend.ID})
}

// RemoveBackendHandler deregisters a backend.
func (h *AdminHandler) RemoveBackendHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.balancer.RemoveBackend(id); err != nil {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}

	h.logger.WithField("backend_id", id).Info("Backend removed via admin API")
	w.WriteHeader(http.StatusNoContent)
}

// EnableBackendHandler re-admits a backend to routing.
func (h *AdminHandler) EnableBackendHandler(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, true)
}

// DisableBackendHandler excludes a backend from routing.
func (h *AdminHandler) DisableBackendHandler(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, false)
}

func (h *AdminHandler) setEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	id := mux.Vars(r)["id"]

	var err error
	if enabled {
		err = h.balancer.EnableBackend(id)
	} else {
		err = h.balancer.DisableBackend(id)
	}
	if err != nil {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "enabled": enabled})
}

func (h *AdminHandler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.WithError(err).Error("Failed to encode admin response")
	}
}

func (h *AdminHandler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]interface{}{
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}
