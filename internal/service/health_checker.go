package service

import (
	"context"
	"sync"
	"time"

	"github.com/rmahmud/route-director/internal/domain"
	"github.com/rmahmud/route-director/internal/errors"
	"github.com/rmahmud/route-director/pkg/logger"
)

// DefaultProbeInterval is used when no interval is configured.
const DefaultProbeInterval = 30 * time.Second

const defaultProbeTimeout = 5 * time.Second

// HealthChecker owns the runtime state of every registered backend and
// keeps it current through a periodic concurrent probe loop. Routing reads
// state through Healthy() and never blocks on the loop.
type HealthChecker struct {
	interval time.Duration
	probers  map[string]Prober
	logger   *logger.Logger

	mu        sync.RWMutex
	states    map[string]*domain.BackendState
	order     []string
	stopChan  chan struct{}
	isRunning bool
	wg        sync.WaitGroup
}

// NewHealthChecker creates a health checker with HTTP and gRPC probers.
func NewHealthChecker(interval time.Duration, log *logger.Logger) *HealthChecker {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}

	return &HealthChecker{
		interval: interval,
		probers: map[string]Prober{
			domain.ProtocolHTTP: NewHTTPProber(),
			domain.ProtocolGRPC: NewGRPCProber(),
		},
		logger:   log.HealthCheckLogger(),
		states:   make(map[string]*domain.BackendState),
		stopChan: make(chan struct{}),
	}
}

// SetProber replaces the prober for a protocol. Probes already in flight
// keep the prober they started with.
func (hc *HealthChecker) SetProber(protocol string, prober Prober) {
	hc.mu.Lock()
	hc.probers[protocol] = prober
	hc.mu.Unlock()
}

// Start registers the given backends with Unknown state and launches the
// probe loop. Calling Start while running only registers the backends.
func (hc *HealthChecker) Start(backends []*domain.Backend) {
	for _, backend := range backends {
		hc.Register(backend)
	}

	hc.mu.Lock()
	defer hc.mu.Unlock()

	if hc.isRunning {
		return
	}

	hc.isRunning = true
	hc.logger.Infof("Starting health checker with interval %v", hc.interval)

	hc.wg.Add(1)
	go hc.run()
}

// Stop cancels the probe loop and waits for it to terminate. Safe to call
// when not running. Probes already dispatched for the current tick finish.
func (hc *HealthChecker) Stop() {
	hc.mu.Lock()
	if !hc.isRunning {
		hc.mu.Unlock()
		return
	}
	hc.logger.Info("Stopping health checker")
	close(hc.stopChan)
	hc.mu.Unlock()

	hc.wg.Wait()

	hc.mu.Lock()
	hc.isRunning = false
	hc.stopChan = make(chan struct{})
	hc.mu.Unlock()

	hc.logger.Info("Health checker stopped")
}

// IsRunning returns true if the probe loop is active
func (hc *HealthChecker) IsRunning() bool {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.isRunning
}

// Register adds runtime state for a backend if not already tracked and
// returns the state. The probe loop picks new backends up on its next tick.
func (hc *HealthChecker) Register(backend *domain.Backend) *domain.BackendState {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	if state, exists := hc.states[backend.ID]; exists {
		return state
	}

	state := domain.NewBackendState(backend)
	hc.states[backend.ID] = state
	hc.order = append(hc.order, backend.ID)
	hc.logger.BackendLogger(backend.ID, backend.Address).Info("Backend registered for health checking")
	return state
}

// Deregister drops a backend's runtime state.
func (hc *HealthChecker) Deregister(id string) {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	if _, exists := hc.states[id]; !exists {
		return
	}

	delete(hc.states, id)
	for i, known := range hc.order {
		if known == id {
			hc.order = append(hc.order[:i], hc.order[i+1:]...)
			break
		}
	}
}

// run drives the periodic probe sweep until stopped.
func (hc *HealthChecker) run() {
	defer hc.wg.Done()

	ticker := time.NewTicker(hc.interval)
	defer ticker.Stop()

	hc.mu.RLock()
	stopChan := hc.stopChan
	hc.mu.RUnlock()

	// Initial sweep so backends leave Unknown without waiting a full interval.
	hc.checkAll()

	for {
		select {
		case <-stopChan:
			return
		case <-ticker.C:
			hc.checkAll()
		}
	}
}

// checkAll probes every tracked backend concurrently and joins the fan-out
// before returning, so checker overhead per tick is bounded by the slowest
// single probe rather than the backend count.
func (hc *HealthChecker) checkAll() {
	states := hc.States()

	var wg sync.WaitGroup
	for _, state := range states {
		wg.Add(1)
		go func(state *domain.BackendState) {
			defer wg.Done()
			hc.probe(state)
		}(state)
	}
	wg.Wait()
}

// probe runs one health check and applies the outcome. No checker lock is
// held while the probe is in flight; the result is written through the
// per-backend state.
func (hc *HealthChecker) probe(state *domain.BackendState) {
	backend := state.Backend

	hc.mu.RLock()
	prober := hc.probers[backend.Protocol]
	hc.mu.RUnlock()

	log := hc.logger.BackendLogger(backend.ID, backend.Address)
	if prober == nil {
		log.Warnf("No prober for protocol %q, skipping probe", backend.Protocol)
		return
	}

	timeout := backend.Timeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	duration, err := prober.Probe(ctx, backend)

	previous := state.Health()
	current := state.RecordProbe(duration, err)

	if err != nil {
		perr := errors.WrapError(err, errors.ErrCodeProbeFailed, "health_check", "probe failed")
		log.WithError(perr).
			WithField("consecutive_failures", state.ConsecutiveFailures()).
			WithField("duration_ms", duration.Milliseconds()).
			Debug("Health probe failed")
	}

	if current != previous {
		transition := log.WithField("from", previous.String()).WithField("to", current.String())
		if current == domain.StateHealthy {
			transition.Info("Backend recovered")
		} else {
			transition.Warn("Backend health degraded")
		}
	}
}

// Healthy returns a snapshot of the enabled, healthy backend states in
// registration order. Called on the routing path; read-lock only.
func (hc *HealthChecker) Healthy() []*domain.BackendState {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	healthy := make([]*domain.BackendState, 0, len(hc.order))
	for _, id := range hc.order {
		if state := hc.states[id]; state != nil && state.Eligible() {
			healthy = append(healthy, state)
		}
	}
	return healthy
}

// States returns all tracked backend states in registration order.
func (hc *HealthChecker) States() []*domain.BackendState {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	states := make([]*domain.BackendState, 0, len(hc.order))
	for _, id := range hc.order {
		if state := hc.states[id]; state != nil {
			states = append(states, state)
		}
	}
	return states
}

// State returns the runtime state for one backend.
func (hc *HealthChecker) State(id string) (*domain.BackendState, bool) {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	state, exists := hc.states[id]
	return state, exists
}

// RecordResult applies a completed request outcome (not a probe) to the
// backend's counters and request-latency average. Unknown ids are a no-op.
func (hc *HealthChecker) RecordResult(id string, success bool, latencyMs float64) {
	state, exists := hc.State(id)
	if !exists {
		return
	}
	state.RecordRequest(success, latencyMs)
}

// AdjustConnections changes a backend's in-flight count, clamped at zero.
// Unknown ids are a no-op.
func (hc *HealthChecker) AdjustConnections(id string, delta int64) {
	state, exists := hc.State(id)
	if !exists {
		return
	}
	state.AdjustConnections(delta)
}

// SetEnabled flips the administrative override for a backend.
func (hc *HealthChecker) SetEnabled(id string, enabled bool) error {
	state, exists := hc.State(id)
	if !exists {
		return errors.NewBackendNotFoundError(id)
	}

	state.SetEnabled(enabled)
	hc.logger.BackendLogger(id, state.Backend.Address).
		WithField("enabled", enabled).
		Info("Backend administrative state changed")
	return nil
}
