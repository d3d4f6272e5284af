package domain

import (
	"sync"
	"sync/atomic"
	"time"
)

// HealthState classifies a backend's reachability as derived from
// consecutive probe failures. Routing code never sets it directly.
type HealthState int

const (
	// StateUnknown is the initial state before the first probe completes
	StateUnknown HealthState = iota
	// StateHealthy indicates the last probe succeeded
	StateHealthy
	// StateDegraded indicates 1-2 consecutive probe failures
	StateDegraded
	// StateUnhealthy indicates 3 or more consecutive probe failures
	StateUnhealthy
)

// String returns the string representation of HealthState
func (s HealthState) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateDegraded:
		return "degraded"
	case StateUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

const (
	// unhealthyThreshold is the consecutive-failure count that moves a
	// backend from degraded to unhealthy.
	unhealthyThreshold = 3

	// Probe latency smooths slowly; request latency tracks the live
	// traffic signal faster. The two averages are never conflated.
	probeEMAWeight   = 0.9
	requestEMAWeight = 0.95
)

// BackendState is the mutable runtime companion of one Backend, owned
// exclusively by the health checker. Counters use atomics so routing and
// probing never serialize against each other; the derived health fields
// are guarded by a per-backend mutex.
type BackendState struct {
	Backend *Backend

	activeConnections int64
	totalRequests     int64
	successRequests   int64
	failedRequests    int64

	mu                  sync.RWMutex
	health              HealthState
	enabled             bool
	consecutiveFailures int
	probeLatencyMs      float64
	probeSampled        bool
	requestLatencyMs    float64
	requestSampled      bool
	lastCheck           time.Time
	lastError           string
}

// NewBackendState creates runtime state for a backend, enabled and Unknown.
func NewBackendState(backend *Backend) *BackendState {
	return &BackendState{
		Backend: backend,
		health:  StateUnknown,
		enabled: true,
	}
}

// RecordProbe applies one probe outcome to the health state machine and
// returns the resulting state. A success from any state resets the failure
// count and restores Healthy; failures degrade and, at the threshold, mark
// the backend unhealthy. Probing has no terminal state.
func (s *BackendState) RecordProbe(latency time.Duration, err error) HealthState {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastCheck = time.Now()

	if err != nil {
		s.consecutiveFailures++
		s.lastError = err.Error()
		if s.consecutiveFailures >= unhealthyThreshold {
			s.health = StateUnhealthy
		} else {
			s.health = StateDegraded
		}
		return s.health
	}

	s.consecutiveFailures = 0
	s.lastError = ""
	s.health = StateHealthy

	sample := float64(latency.Microseconds()) / 1000.0
	if !s.probeSampled {
		s.probeLatencyMs = sample
		s.probeSampled = true
	} else {
		s.probeLatencyMs = s.probeLatencyMs*probeEMAWeight + sample*(1-probeEMAWeight)
	}

	return s.health
}

// RecordRequest applies one completed request outcome. It feeds the
// request-latency average, which is independent of the probe average.
func (s *BackendState) RecordRequest(success bool, latencyMs float64) {
	atomic.AddInt64(&s.totalRequests, 1)
	if success {
		atomic.AddInt64(&s.successRequests, 1)
	} else {
		atomic.AddInt64(&s.failedRequests, 1)
	}

	s.mu.Lock()
	if !s.requestSampled {
		s.requestLatencyMs = latencyMs
		s.requestSampled = true
	} else {
		s.requestLatencyMs = s.requestLatencyMs*requestEMAWeight + latencyMs*(1-requestEMAWeight)
	}
	s.mu.Unlock()
}

// AdjustConnections changes the in-flight counter by delta, clamped at zero,
// and returns the new value.
func (s *BackendState) AdjustConnections(delta int64) int64 {
	for {
		current := atomic.LoadInt64(&s.activeConnections)
		next := current + delta
		if next < 0 {
			next = 0
		}
		if atomic.CompareAndSwapInt64(&s.activeConnections, current, next) {
			return next
		}
	}
}

// ActiveConnections returns the current in-flight request count.
func (s *BackendState) ActiveConnections() int64 {
	return atomic.LoadInt64(&s.activeConnections)
}

// TotalRequests returns the number of completed requests recorded.
func (s *BackendState) TotalRequests() int64 {
	return atomic.LoadInt64(&s.totalRequests)
}

// SuccessRate returns the completed-request success percentage. A backend
// with no recorded traffic reports 100 so new targets are not penalized by
// score-based strategies.
func (s *BackendState) SuccessRate() float64 {
	total := atomic.LoadInt64(&s.totalRequests)
	if total == 0 {
		return 100.0
	}
	success := atomic.LoadInt64(&s.successRequests)
	return float64(success) / float64(total) * 100.0
}

// Health returns the current health classification.
func (s *BackendState) Health() HealthState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.health
}

// Enabled reports whether the backend accepts traffic administratively.
func (s *BackendState) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled
}

// SetEnabled flips the administrative override. Disabled backends are
// excluded from routing even while probes report them healthy.
func (s *BackendState) SetEnabled(enabled bool) {
	s.mu.Lock()
	s.enabled = enabled
	s.mu.Unlock()
}

// Eligible reports whether the backend may receive traffic now.
func (s *BackendState) Eligible() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled && s.health == StateHealthy
}

// ConsecutiveFailures returns the current probe failure streak.
func (s *BackendState) ConsecutiveFailures() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.consecutiveFailures
}

// ProbeLatency returns the probe-latency moving average in milliseconds.
func (s *BackendState) ProbeLatency() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.probeLatencyMs
}

// RequestLatency returns the request-latency moving average in milliseconds.
func (s *BackendState) RequestLatency() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.requestLatencyMs
}

// Utilization returns in-flight connections as a percentage of the
// configured maximum, or 0 when no maximum is set.
func (s *BackendState) Utilization() float64 {
	if s.Backend.MaxConnections <= 0 {
		return 0
	}
	return float64(s.ActiveConnections()) / float64(s.Backend.MaxConnections) * 100.0
}

// BackendSnapshot is a point-in-time copy of a backend's runtime state for
// reporting and the admin API.
type BackendSnapshot struct {
	ID                  string    `json:"id"`
	Address             string    `json:"address"`
	Weight              float64   `json:"weight"`
	Health              string    `json:"health"`
	Enabled             bool      `json:"enabled"`
	ActiveConnections   int64     `json:"active_connections"`
	TotalRequests       int64     `json:"total_requests"`
	SuccessRequests     int64     `json:"success_requests"`
	FailedRequests      int64     `json:"failed_requests"`
	SuccessRate         float64   `json:"success_rate"`
	ProbeLatencyMs      float64   `json:"probe_latency_ms"`
	RequestLatencyMs    float64   `json:"request_latency_ms"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastCheck           time.Time `json:"last_check"`
	LastError           string    `json:"last_error,omitempty"`
}

// Snapshot returns a consistent copy of the state for reporting.
func (s *BackendState) Snapshot() BackendSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return BackendSnapshot{
		ID:                  s.Backend.ID,
		Address:             s.Backend.Address,
		Weight:              s.Backend.Weight,
		Health:              s.health.String(),
		Enabled:             s.enabled,
		ActiveConnections:   atomic.LoadInt64(&s.activeConnections),
		TotalRequests:       atomic.LoadInt64(&s.totalRequests),
		SuccessRequests:     atomic.LoadInt64(&s.successRequests),
		FailedRequests:      atomic.LoadInt64(&s.failedRequests),
		SuccessRate:         s.successRateLocked(),
		ProbeLatencyMs:      s.probeLatencyMs,
		RequestLatencyMs:    s.requestLatencyMs,
		ConsecutiveFailures: s.consecutiveFailures,
		LastCheck:           s.lastCheck,
		LastError:           s.lastError,
	}
}

func (s *BackendState) successRateLocked() float64 {
	total := atomic.LoadInt64(&s.totalRequests)
	if total == 0 {
		return 100.0
	}
	return float64(atomic.LoadInt64(&s.successRequests)) / float64(total) * 100.0
}
