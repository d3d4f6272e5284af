package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/rmahmud/route-director/internal/affinity"
	"github.com/rmahmud/route-director/internal/domain"
	"github.com/rmahmud/route-director/pkg/logger"
)

// selectFunc is the signature every strategy implements: pure selection
// over the caller-supplied healthy set, returning the pick and a
// reproducible reason string.
type selectFunc func(req *domain.RequestContext, healthy []*domain.BackendState) (*domain.BackendState, string)

// Engine is the pure selection core. It performs no I/O: strategies only
// inspect the in-memory states handed to them, so a Select call completes
// in well under a millisecond. Counter state is strategy-scoped and
// survives strategy switches.
type Engine struct {
	logger   *logger.Logger
	affinity affinity.Store
	history  *History

	rrIndex  uint64
	wrrIndex uint64

	ringMu  sync.Mutex
	ring    *hashRing
	ringKey string
}

// NewEngine creates a selection engine backed by the given affinity store
// and decision history.
func NewEngine(store affinity.Store, history *History, log *logger.Logger) *Engine {
	return &Engine{
		logger:   log.EngineLogger(),
		affinity: store,
		history:  history,
	}
}

// Select applies the requested strategy to the healthy set and then the
// session-affinity override. A nil return means no candidate was available.
// An unknown strategy falls back to round robin rather than failing the
// request.
func (e *Engine) Select(req *domain.RequestContext, strategy domain.StrategyType, healthy []*domain.BackendState) *domain.RoutingDecision {
	start := time.Now()

	if len(healthy) == 0 {
		return nil
	}

	fn, known := e.dispatch(strategy)
	applied := strategy
	if !known {
		e.logger.WithField("strategy", string(strategy)).
			Warn("Unknown strategy requested, falling back to round robin")
		fn = e.selectRoundRobin
		applied = domain.RoundRobin
	}

	selected, reason := fn(req, healthy)
	if selected == nil {
		return nil
	}
	if !known {
		reason = fmt.Sprintf("unknown strategy %q, fallback: %s", strategy, reason)
	}

	sessionAffinity := false
	if req != nil && req.SessionID != "" {
		if pinned := e.applyAffinity(req.SessionID, healthy); pinned != nil {
			selected = pinned
			reason = fmt.Sprintf("session %s pinned to %s", req.SessionID, pinned.Backend.ID)
			sessionAffinity = true
		} else {
			// New or stale session: the strategy's pick becomes its target.
			e.affinity.Bind(req.SessionID, selected.Backend.ID)
		}
	}

	return &domain.RoutingDecision{
		Backend:         selected.Backend,
		Strategy:        applied,
		Duration:        time.Since(start),
		Reason:          reason,
		Candidates:      len(healthy),
		SessionAffinity: sessionAffinity,
		Timestamp:       start,
	}
}

// applyAffinity returns the backend a session is mapped to, provided the
// mapping still points into the healthy set.
func (e *Engine) applyAffinity(sessionID string, healthy []*domain.BackendState) *domain.BackendState {
	mappedID, ok := e.affinity.Lookup(sessionID)
	if !ok {
		return nil
	}
	for _, state := range healthy {
		if state.Backend.ID == mappedID {
			return state
		}
	}
	return nil
}

// dispatch resolves a strategy id to its implementation. The strategy set
// is closed; anything else reports !known.
func (e *Engine) dispatch(strategy domain.StrategyType) (selectFunc, bool) {
	switch strategy {
	case domain.RoundRobin:
		return e.selectRoundRobin, true
	case domain.WeightedRoundRobin:
		return e.selectWeightedRoundRobin, true
	case domain.LeastConnections:
		return e.selectLeastConnections, true
	case domain.WeightedLeastConnections:
		return e.selectWeightedLeastConnections, true
	case domain.Random:
		return e.selectRandom, true
	case domain.WeightedRandom:
		return e.selectWeightedRandom, true
	case domain.IPHash:
		return e.selectIPHash, true
	case domain.ConsistentHash:
		return e.selectConsistentHash, true
	case domain.ResponseTime:
		return e.selectResponseTime, true
	case domain.HealthBased:
		return e.selectHealthBased, true
	case domain.Adaptive:
		return e.selectAdaptive, true
	default:
		return nil, false
	}
}
