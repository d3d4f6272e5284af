package service

import (
	"sync"

	"github.com/rmahmud/route-director/internal/domain"
	"github.com/rmahmud/route-director/internal/errors"
	"github.com/rmahmud/route-director/internal/repository"
	"github.com/rmahmud/route-director/pkg/logger"
)

// LoadBalancer is the facade over the backend registry, the health checker,
// and the selection engine. Callers route through it, forward the request
// themselves, and report the outcome back through Complete.
type LoadBalancer struct {
	registry *repository.BackendRegistry
	checker  *HealthChecker
	engine   *Engine
	history  *History
	logger   *logger.Logger

	mu              sync.RWMutex
	defaultStrategy domain.StrategyType
}

// NewLoadBalancer creates the routing facade.
func NewLoadBalancer(
	defaultStrategy domain.StrategyType,
	registry *repository.BackendRegistry,
	checker *HealthChecker,
	engine *Engine,
	history *History,
	log *logger.Logger,
) (*LoadBalancer, error) {
	if !domain.ValidStrategy(defaultStrategy) {
		return nil, errors.NewUnknownStrategyError(string(defaultStrategy))
	}

	return &LoadBalancer{
		registry:        registry,
		checker:         checker,
		engine:          engine,
		history:         history,
		logger:          log.ServiceLogger(),
		defaultStrategy: defaultStrategy,
	}, nil
}

// Start launches health checking over the registered backends.
func (lb *LoadBalancer) Start() {
	backends := lb.registry.List()
	if len(backends) == 0 {
		lb.logger.Warn("Starting with an empty backend pool")
	}

	lb.checker.Start(backends)
	lb.logger.Infof("Load balancer started with %d backends", len(backends))
}

// Stop cancels health checking. In-flight Route and Complete calls are
// unaffected; only future probe ticks cease.
func (lb *LoadBalancer) Stop() {
	lb.checker.Stop()
	lb.logger.Info("Load balancer stopped")
}

// AddBackend validates and registers a backend, and begins tracking its
// health. Duplicate ids and invalid configurations are rejected
// synchronously.
func (lb *LoadBalancer) AddBackend(backend *domain.Backend) error {
	if err := lb.registry.Register(backend); err != nil {
		return err
	}

	lb.checker.Register(backend)
	lb.logger.WithField("backend_id", backend.ID).
		WithField("backend_address", backend.Address).
		Info("Added new backend")
	return nil
}

// RemoveBackend deregisters a backend and drops its runtime state.
// Sessions pinned to it are re-bound on their next request.
func (lb *LoadBalancer) RemoveBackend(id string) error {
	if err := lb.registry.Deregister(id); err != nil {
		return err
	}

	lb.checker.Deregister(id)
	lb.logger.WithField("backend_id", id).Info("Removed backend")
	return nil
}

// EnableBackend re-admits a backend to routing.
func (lb *LoadBalancer) EnableBackend(id string) error {
	return lb.checker.SetEnabled(id, true)
}

// DisableBackend excludes a backend from routing regardless of its probe
// state. Probing continues so a re-enabled backend has fresh health.
func (lb *LoadBalancer) DisableBackend(id string) error {
	return lb.checker.SetEnabled(id, false)
}

// SetDefaultStrategy changes the strategy used when Route is called
// without one. Unknown ids are rejected here, unlike at route time.
func (lb *LoadBalancer) SetDefaultStrategy(strategy domain.StrategyType) error {
	if !domain.ValidStrategy(strategy) {
		return errors.NewUnknownStrategyError(string(strategy))
	}

	lb.mu.Lock()
	lb.defaultStrategy = strategy
	lb.mu.Unlock()

	lb.logger.Infof("Default strategy set to %s", strategy)
	return nil
}

// DefaultStrategy returns the strategy used when Route is given none.
func (lb *LoadBalancer) DefaultStrategy() domain.StrategyType {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	return lb.defaultStrategy
}

// Route selects a backend for the request. A nil decision means no backend
// is eligible; the caller decides its own fallback. On a non-nil decision
// the chosen backend's in-flight count is incremented and the decision is
// recorded — the caller must invoke Complete exactly once afterwards or
// the in-flight count leaks.
func (lb *LoadBalancer) Route(req *domain.RequestContext, strategy domain.StrategyType) *domain.RoutingDecision {
	healthy := lb.checker.Healthy()
	if len(healthy) == 0 {
		lb.logger.Debug("No eligible backends for request")
		return nil
	}

	if strategy == "" {
		strategy = lb.DefaultStrategy()
	}

	decision := lb.engine.Select(req, strategy, healthy)
	if decision == nil {
		return nil
	}

	lb.checker.AdjustConnections(decision.Backend.ID, 1)

	record := domain.DecisionRecord{
		BackendID: decision.Backend.ID,
		Strategy:  decision.Strategy,
		Duration:  decision.Duration,
		Timestamp: decision.Timestamp,
	}
	if state, ok := lb.checker.State(decision.Backend.ID); ok {
		record.SuccessRate = state.SuccessRate()
		record.LatencyMs = state.RequestLatency()
	}
	lb.history.Append(record)

	return decision
}

// Complete reports the outcome of a routed request: it updates the
// backend's counters and request-latency average and releases the in-flight
// slot taken by Route. Unknown ids are a no-op.
func (lb *LoadBalancer) Complete(id string, success bool, latencyMs float64) {
	lb.checker.RecordResult(id, success, latencyMs)
	lb.checker.AdjustConnections(id, -1)
}

// GetBackendStatus returns the runtime snapshot for one backend.
func (lb *LoadBalancer) GetBackendStatus(id string) (domain.BackendSnapshot, bool) {
	state, ok := lb.checker.State(id)
	if !ok {
		return domain.BackendSnapshot{}, false
	}
	return state.Snapshot(), true
}

// ListBackendStatus returns runtime snapshots for every tracked backend in
// registration order.
func (lb *LoadBalancer) ListBackendStatus() []domain.BackendSnapshot {
	states := lb.checker.States()
	snapshots := make([]domain.BackendSnapshot, 0, len(states))
	for _, state := range states {
		snapshots = append(snapshots, state.Snapshot())
	}
	return snapshots
}
