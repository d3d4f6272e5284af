package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmahmud/route-director/internal/affinity"
	"github.com/rmahmud/route-director/internal/domain"
	routererrors "github.com/rmahmud/route-director/internal/errors"
	"github.com/rmahmud/route-director/internal/repository"
)

// newTestBalancer wires a full facade with a fake prober and sweeps once so
// every registered backend starts Healthy.
func newTestBalancer(t *testing.T, ids ...string) (*LoadBalancer, *HealthChecker, *fakeProber) {
	t.Helper()

	log := testLogger(t)
	registry := repository.NewBackendRegistry()
	checker := NewHealthChecker(time.Hour, log)
	prober := newFakeProber()
	checker.SetProber(domain.ProtocolHTTP, prober)
	history := NewHistory(100)
	engine := NewEngine(affinity.NewMemoryStore(), history, log)

	balancer, err := NewLoadBalancer(domain.RoundRobin, registry, checker, engine, history, log)
	require.NoError(t, err)

	for i, id := range ids {
		backend := domain.NewBackend(id, "http://localhost:808"+string(rune('1'+i)), 1)
		require.NoError(t, balancer.AddBackend(backend))
	}
	checker.checkAll()

	return balancer, checker, prober
}

func TestNewLoadBalancerRejectsUnknownStrategy(t *testing.T) {
	log := testLogger(t)
	history := NewHistory(10)
	_, err := NewLoadBalancer(
		domain.StrategyType("best_effort"),
		repository.NewBackendRegistry(),
		NewHealthChecker(time.Hour, log),
		NewEngine(affinity.NewMemoryStore(), history, log),
		history,
		log,
	)
	require.Error(t, err)
	assert.True(t, routererrors.IsCode(err, routererrors.ErrCodeUnknownStrategy))
}

func TestRouteNilWithoutBackends(t *testing.T) {
	balancer, _, _ := newTestBalancer(t)
	assert.Nil(t, balancer.Route(nil, domain.RoundRobin))
}

func TestRouteNilWhenAllDisabled(t *testing.T) {
	balancer, _, _ := newTestBalancer(t, "srv-1", "srv-2")

	require.NoError(t, balancer.DisableBackend("srv-1"))
	require.NoError(t, balancer.DisableBackend("srv-2"))

	assert.Nil(t, balancer.Route(nil, domain.RoundRobin))
}

func TestRouteUsesDefaultStrategyWhenUnspecified(t *testing.T) {
	balancer, _, _ := newTestBalancer(t, "srv-1")

	decision := balancer.Route(nil, "")
	require.NotNil(t, decision)
	assert.Equal(t, domain.RoundRobin, decision.Strategy)
}

func TestRouteAndCompleteTrackInFlight(t *testing.T) {
	balancer, checker, _ := newTestBalancer(t, "srv-1")

	decision := balancer.Route(nil, domain.RoundRobin)
	require.NotNil(t, decision)

	state, ok := checker.State("srv-1")
	require.True(t, ok)
	assert.EqualValues(t, 1, state.ActiveConnections())

	balancer.Complete("srv-1", true, 12.5)
	assert.EqualValues(t, 0, state.ActiveConnections())
	assert.EqualValues(t, 1, state.TotalRequests())
	assert.InDelta(t, 12.5, state.RequestLatency(), 0.01)
}

func TestCompleteUnknownBackendIsNoOp(t *testing.T) {
	balancer, _, _ := newTestBalancer(t, "srv-1")
	balancer.Complete("ghost", true, 10)
}

func TestAddBackendDuplicateRejected(t *testing.T) {
	balancer, _, _ := newTestBalancer(t, "srv-1")

	err := balancer.AddBackend(domain.NewBackend("srv-1", "http://localhost:9999", 1))
	require.Error(t, err)
	assert.True(t, routererrors.IsCode(err, routererrors.ErrCodeDuplicateBackend))
}

func TestAddBackendInvalidRejected(t *testing.T) {
	balancer, _, _ := newTestBalancer(t)

	backend := domain.NewBackend("", "http://localhost:8081", 1)
	assert.Error(t, balancer.AddBackend(backend))
}

func TestRemoveBackendStopsRouting(t *testing.T) {
	balancer, checker, _ := newTestBalancer(t, "srv-1")

	require.NoError(t, balancer.RemoveBackend("srv-1"))
	_, exists := checker.State("srv-1")
	assert.False(t, exists)
	assert.Nil(t, balancer.Route(nil, domain.RoundRobin))

	assert.Error(t, balancer.RemoveBackend("srv-1"))
}

func TestSetDefaultStrategy(t *testing.T) {
	balancer, _, _ := newTestBalancer(t, "srv-1")

	require.NoError(t, balancer.SetDefaultStrategy(domain.LeastConnections))
	assert.Equal(t, domain.LeastConnections, balancer.DefaultStrategy())

	err := balancer.SetDefaultStrategy(domain.StrategyType("best_effort"))
	require.Error(t, err)
	assert.Equal(t, domain.LeastConnections, balancer.DefaultStrategy())
}

func TestUnhealthyBackendExcludedFromRouting(t *testing.T) {
	balancer, checker, prober := newTestBalancer(t, "srv-1", "srv-2")

	prober.setFailing("srv-1", true)
	for i := 0; i < 3; i++ {
		checker.checkAll()
	}

	for i := 0; i < 4; i++ {
		decision := balancer.Route(nil, domain.RoundRobin)
		require.NotNil(t, decision)
		assert.Equal(t, "srv-2", decision.Backend.ID)
	}
}

func TestGetStats(t *testing.T) {
	balancer, _, _ := newTestBalancer(t, "srv-1", "srv-2")

	decision := balancer.Route(nil, domain.RoundRobin)
	require.NotNil(t, decision)
	balancer.Complete(decision.Backend.ID, true, 10)

	stats := balancer.GetStats()
	assert.Equal(t, 2, stats["total_backends"])
	assert.Equal(t, 2, stats["healthy_backends"])
	assert.EqualValues(t, 1, stats["total_requests"])
	assert.Equal(t, string(domain.RoundRobin), stats["default_strategy"])
	assert.InDelta(t, 100.0, stats["success_rate"].(float64), 0.01)
}

func TestGetTrafficDistribution(t *testing.T) {
	balancer, _, _ := newTestBalancer(t, "srv-1", "srv-2")

	for i := 0; i < 10; i++ {
		decision := balancer.Route(nil, domain.RoundRobin)
		require.NotNil(t, decision)
		balancer.Complete(decision.Backend.ID, true, 5)
	}

	distribution := balancer.GetTrafficDistribution()
	require.Len(t, distribution, 2)
	assert.Equal(t, 5, distribution["srv-1"].Requests)
	assert.Equal(t, 5, distribution["srv-2"].Requests)
	assert.InDelta(t, 50.0, distribution["srv-1"].Percentage, 0.01)
}

func TestStrategyRecommendation(t *testing.T) {
	balancer, _, _ := newTestBalancer(t, "srv-1")

	// Empty history: falls back to the default with zero confidence.
	rec := balancer.GetStrategyRecommendation()
	assert.Equal(t, string(domain.RoundRobin), rec.Strategy)
	assert.Zero(t, rec.Confidence)

	// Below the usage floor nothing qualifies.
	for i := 0; i < 4; i++ {
		require.NotNil(t, balancer.Route(nil, domain.LeastConnections))
		balancer.Complete("srv-1", true, 5)
	}
	rec = balancer.GetStrategyRecommendation()
	assert.Zero(t, rec.Confidence)

	// At five uses the strategy qualifies and owns the whole window.
	require.NotNil(t, balancer.Route(nil, domain.LeastConnections))
	balancer.Complete("srv-1", true, 5)

	rec = balancer.GetStrategyRecommendation()
	assert.Equal(t, string(domain.LeastConnections), rec.Strategy)
	assert.InDelta(t, 1.0, rec.Confidence, 0.01)
}
