package domain

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Backend protocol identifiers used by the health checker to pick a prober.
const (
	ProtocolHTTP = "http"
	ProtocolGRPC = "grpc"
)

// Backend is the immutable configuration of a routable target. Runtime
// state lives in BackendState, owned by the health checker.
type Backend struct {
	ID              string        `json:"id" yaml:"id"`
	Address         string        `json:"address" yaml:"address"`
	Weight          float64       `json:"weight" yaml:"weight"`
	MaxConnections  int           `json:"max_connections" yaml:"max_connections"`
	HealthCheckPath string        `json:"health_check_path" yaml:"health_check_path"`
	Protocol        string        `json:"protocol" yaml:"protocol"`
	Timeout         time.Duration `json:"timeout" yaml:"timeout"`
}

// NewBackend creates a Backend with default health-check settings.
func NewBackend(id, address string, weight float64) *Backend {
	return &Backend{
		ID:              id,
		Address:         address,
		Weight:          weight,
		MaxConnections:  100,
		HealthCheckPath: "/health",
		Protocol:        ProtocolHTTP,
		Timeout:         5 * time.Second,
	}
}

// Validate checks the configuration invariants enforced at registration time.
func (b *Backend) Validate() error {
	return validation.ValidateStruct(b,
		validation.Field(&b.ID, validation.Required),
		validation.Field(&b.Address, validation.Required),
		validation.Field(&b.Weight, validation.Min(0.0)),
		validation.Field(&b.MaxConnections, validation.Required, validation.Min(1)),
		validation.Field(&b.Protocol, validation.In(ProtocolHTTP, ProtocolGRPC)),
	)
}

// RequestContext carries the request attributes the routing core consumes.
// It is built once by the calling layer and not mutated afterwards.
type RequestContext struct {
	ClientIP  string
	SessionID string
	TenantID  string
	Path      string
	Method    string
	Timestamp time.Time
}

// NewRequestContext creates a RequestContext stamped with the current time.
func NewRequestContext(clientIP, sessionID string) *RequestContext {
	return &RequestContext{
		ClientIP:  clientIP,
		SessionID: sessionID,
		Timestamp: time.Now(),
	}
}

// RoutingDecision is the outcome of one selection. It is consumed
// immediately by the caller and never persisted.
type RoutingDecision struct {
	Backend         *Backend      `json:"backend"`
	Strategy        StrategyType  `json:"strategy"`
	Duration        time.Duration `json:"duration"`
	Reason          string        `json:"reason"`
	Candidates      int           `json:"candidates"`
	SessionAffinity bool          `json:"session_affinity"`
	Timestamp       time.Time     `json:"timestamp"`
}

// DecisionRecord is the history entry written once per completed route.
// SuccessRate and LatencyMs are sampled from the chosen backend's state at
// route time so the adaptive strategy can score without touching live state.
type DecisionRecord struct {
	BackendID   string        `json:"backend_id"`
	Strategy    StrategyType  `json:"strategy"`
	Duration    time.Duration `json:"duration"`
	SuccessRate float64       `json:"success_rate"`
	LatencyMs   float64       `json:"latency_ms"`
	Timestamp   time.Time     `json:"timestamp"`
}
