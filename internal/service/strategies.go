package service

import (
	"fmt"
	"hash/crc32"
	"hash/fnv"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/rmahmud/route-director/internal/domain"
)

// adaptiveMinDecisions is the history size below which the adaptive
// strategy defers to weighted least connections.
const adaptiveMinDecisions = 10

// adaptiveWindow is how many recent decisions the adaptive strategy scores.
const adaptiveWindow = 50

// virtualNodes is the number of ring points per backend for consistent
// hashing.
const virtualNodes = 3

// selectRoundRobin cycles through the healthy set with a single counter.
// Weights are ignored; the counter is never reset, so switching strategies
// back and forth does not restart the cycle.
func (e *Engine) selectRoundRobin(req *domain.RequestContext, healthy []*domain.BackendState) (*domain.BackendState, string) {
	next := atomic.AddUint64(&e.rrIndex, 1) - 1
	idx := int(next % uint64(len(healthy)))
	selected := healthy[idx]
	return selected, fmt.Sprintf("round_robin: slot %d of %d", idx, len(healthy))
}

// selectWeightedRoundRobin walks the cumulative weight range driven by its
// own counter, giving each backend a share proportional to its weight over
// one full cycle. With all weights zero it degenerates to round robin.
func (e *Engine) selectWeightedRoundRobin(req *domain.RequestContext, healthy []*domain.BackendState) (*domain.BackendState, string) {
	total := 0.0
	for _, state := range healthy {
		total += state.Backend.Weight
	}

	next := atomic.AddUint64(&e.wrrIndex, 1) - 1
	if total <= 0 {
		idx := int(next % uint64(len(healthy)))
		return healthy[idx], fmt.Sprintf("weighted_round_robin: zero total weight, slot %d of %d", idx, len(healthy))
	}

	offset := math.Mod(float64(next), total)
	cumulative := 0.0
	for _, state := range healthy {
		cumulative += state.Backend.Weight
		if offset < cumulative {
			return state, fmt.Sprintf("weighted_round_robin: offset %.2f of %.2f", offset, total)
		}
	}
	// Unreachable with positive total weight; keep the last as a guard.
	return healthy[len(healthy)-1], fmt.Sprintf("weighted_round_robin: offset %.2f of %.2f", offset, total)
}

// selectLeastConnections picks the backend with the fewest in-flight
// requests, ties broken by input order.
func (e *Engine) selectLeastConnections(req *domain.RequestContext, healthy []*domain.BackendState) (*domain.BackendState, string) {
	selected := healthy[0]
	min := selected.ActiveConnections()
	for _, state := range healthy[1:] {
		if conns := state.ActiveConnections(); conns < min {
			min = conns
			selected = state
		}
	}
	return selected, fmt.Sprintf("least_connections: %s with %d in-flight", selected.Backend.ID, min)
}

// selectWeightedLeastConnections scores each backend as connections/weight.
// Zero-weight backends score +Inf and are never chosen while a
// positive-weight candidate exists; with every weight zero it falls back to
// plain least connections.
func (e *Engine) selectWeightedLeastConnections(req *domain.RequestContext, healthy []*domain.BackendState) (*domain.BackendState, string) {
	var selected *domain.BackendState
	best := math.Inf(1)
	for _, state := range healthy {
		score := math.Inf(1)
		if state.Backend.Weight > 0 {
			score = float64(state.ActiveConnections()) / state.Backend.Weight
		}
		if score < best {
			best = score
			selected = state
		}
	}

	if selected == nil {
		selected, _ = e.selectLeastConnections(req, healthy)
		return selected, fmt.Sprintf("weighted_least_connections: all weights zero, least connections pick %s", selected.Backend.ID)
	}
	return selected, fmt.Sprintf("weighted_least_connections: %s scored %.3f", selected.Backend.ID, best)
}

// selectRandom draws uniformly from the healthy set.
func (e *Engine) selectRandom(req *domain.RequestContext, healthy []*domain.BackendState) (*domain.BackendState, string) {
	idx := rand.Intn(len(healthy))
	return healthy[idx], fmt.Sprintf("random: slot %d of %d", idx, len(healthy))
}

// selectWeightedRandom draws proportionally to weight, uniform when the
// total weight is zero.
func (e *Engine) selectWeightedRandom(req *domain.RequestContext, healthy []*domain.BackendState) (*domain.BackendState, string) {
	total := 0.0
	for _, state := range healthy {
		total += state.Backend.Weight
	}

	if total <= 0 {
		idx := rand.Intn(len(healthy))
		return healthy[idx], fmt.Sprintf("weighted_random: zero total weight, uniform slot %d of %d", idx, len(healthy))
	}

	draw := rand.Float64() * total
	cumulative := 0.0
	for _, state := range healthy {
		cumulative += state.Backend.Weight
		if draw < cumulative {
			return state, fmt.Sprintf("weighted_random: draw %.2f of %.2f", draw, total)
		}
	}
	return healthy[len(healthy)-1], fmt.Sprintf("weighted_random: draw %.2f of %.2f", draw, total)
}

// selectIPHash maps the client IP deterministically onto the healthy set.
// Stable only while the set size and ordering are unchanged.
func (e *Engine) selectIPHash(req *domain.RequestContext, healthy []*domain.BackendState) (*domain.BackendState, string) {
	if req == nil || req.ClientIP == "" {
		return healthy[0], "ip_hash: no client ip, first candidate"
	}

	hash := fnvHash(req.ClientIP)
	idx := int(hash % uint32(len(healthy)))
	return healthy[idx], fmt.Sprintf("ip_hash: %s -> slot %d of %d", req.ClientIP, idx, len(healthy))
}

// selectConsistentHash maps the client IP onto a hash ring with virtual
// points per backend, so pool membership changes move only a fraction of
// clients. The ring is built lazily and rebuilt when membership changes.
func (e *Engine) selectConsistentHash(req *domain.RequestContext, healthy []*domain.BackendState) (*domain.BackendState, string) {
	if req == nil || req.ClientIP == "" {
		return healthy[0], "consistent_hash: no client ip, first candidate"
	}

	ring := e.ringFor(healthy)
	ownerID := ring.lookup(crc32.ChecksumIEEE([]byte(req.ClientIP)))
	for _, state := range healthy {
		if state.Backend.ID == ownerID {
			return state, fmt.Sprintf("consistent_hash: %s -> %s", req.ClientIP, ownerID)
		}
	}
	return healthy[0], "consistent_hash: ring owner missing, first candidate"
}

// selectResponseTime picks the backend with the lowest request-latency
// average. Probe latency is deliberately not consulted. Backends without
// recorded traffic report zero and therefore win until they carry samples.
func (e *Engine) selectResponseTime(req *domain.RequestContext, healthy []*domain.BackendState) (*domain.BackendState, string) {
	selected := healthy[0]
	min := selected.RequestLatency()
	for _, state := range healthy[1:] {
		if latency := state.RequestLatency(); latency < min {
			min = latency
			selected = state
		}
	}
	return selected, fmt.Sprintf("response_time: %s at %.2fms", selected.Backend.ID, min)
}

// selectHealthBased scores each backend from its health classification,
// success rate, request latency, and utilization, and picks the maximum.
func (e *Engine) selectHealthBased(req *domain.RequestContext, healthy []*domain.BackendState) (*domain.BackendState, string) {
	selected := healthy[0]
	best := healthScore(selected)
	for _, state := range healthy[1:] {
		if score := healthScore(state); score > best {
			best = score
			selected = state
		}
	}
	return selected, fmt.Sprintf("health_based: %s scored %.2f", selected.Backend.ID, best)
}

func healthScore(state *domain.BackendState) float64 {
	base := 50.0
	if state.Health() == domain.StateHealthy {
		base = 100.0
	}
	return base + state.SuccessRate() - state.RequestLatency()/10.0 - state.Utilization()
}

// selectAdaptive scores candidates from the recent decision history:
// per-backend mean of (success rate - latency/10) over the last
// adaptiveWindow records. With too little history, or when no candidate
// carries recent samples, it defers to weighted least connections.
func (e *Engine) selectAdaptive(req *domain.RequestContext, healthy []*domain.BackendState) (*domain.BackendState, string) {
	if e.history == nil || e.history.Len() < adaptiveMinDecisions {
		selected, reason := e.selectWeightedLeastConnections(req, healthy)
		return selected, "adaptive: insufficient history, " + reason
	}

	type aggregate struct {
		sum float64
		n   int
	}
	scores := make(map[string]*aggregate)
	for _, record := range e.history.Recent(adaptiveWindow) {
		agg := scores[record.BackendID]
		if agg == nil {
			agg = &aggregate{}
			scores[record.BackendID] = agg
		}
		agg.sum += record.SuccessRate - record.LatencyMs/10.0
		agg.n++
	}

	var selected *domain.BackendState
	best := math.Inf(-1)
	for _, state := range healthy {
		agg := scores[state.Backend.ID]
		if agg == nil || agg.n == 0 {
			continue
		}
		if mean := agg.sum / float64(agg.n); mean > best {
			best = mean
			selected = state
		}
	}

	if selected == nil {
		fallback, reason := e.selectWeightedLeastConnections(req, healthy)
		return fallback, "adaptive: no recent samples for candidates, " + reason
	}
	return selected, fmt.Sprintf("adaptive: %s scored %.2f over recent decisions", selected.Backend.ID, best)
}

// fnvHash implements FNV-1a over the input string.
func fnvHash(input string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(input))
	return h.Sum32()
}

// hashRing is a consistent-hash ring of backend ids.
type hashRing struct {
	points []uint32
	owners map[uint32]string
}

// buildRing places virtualNodes points per backend id on the ring.
func buildRing(ids []string) *hashRing {
	ring := &hashRing{
		points: make([]uint32, 0, len(ids)*virtualNodes),
		owners: make(map[uint32]string, len(ids)*virtualNodes),
	}

	for _, id := range ids {
		for i := 0; i < virtualNodes; i++ {
			hash := crc32.ChecksumIEEE([]byte(id + "#" + strconv.Itoa(i)))
			ring.points = append(ring.points, hash)
			ring.owners[hash] = id
		}
	}

	sort.Slice(ring.points, func(i, j int) bool { return ring.points[i] < ring.points[j] })
	return ring
}

// lookup returns the owner of the first ring point at or after hash,
// wrapping to the first point when none is greater.
func (r *hashRing) lookup(hash uint32) string {
	if len(r.points) == 0 {
		return ""
	}

	idx := sort.Search(len(r.points), func(i int) bool {
		return r.points[i] >= hash
	})
	if idx == len(r.points) {
		idx = 0
	}
	return r.owners[r.points[idx]]
}

// ringFor returns the cached ring, rebuilding it when pool membership has
// changed since the last build.
func (e *Engine) ringFor(healthy []*domain.BackendState) *hashRing {
	ids := make([]string, 0, len(healthy))
	for _, state := range healthy {
		ids = append(ids, state.Backend.ID)
	}
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	key := strings.Join(sorted, "|")

	e.ringMu.Lock()
	defer e.ringMu.Unlock()

	if e.ring == nil || e.ringKey != key {
		e.ring = buildRing(ids)
		e.ringKey = key
	}
	return e.ring
}
