package service

import (
	"time"

	"github.com/rmahmud/route-director/internal/domain"
)

// TrafficShare describes one backend's slice of the recent decision window.
type TrafficShare struct {
	Requests   int     `json:"requests"`
	Percentage float64 `json:"percentage"`
}

// Recommendation suggests the strategy with the best recent decision
// latency among those with enough samples to judge.
type Recommendation struct {
	Strategy   string  `json:"recommendation"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
}

// recommendationMinUses is the sample floor below which a strategy is not
// considered for recommendation.
const recommendationMinUses = 5

// GetStats returns aggregate service statistics.
func (lb *LoadBalancer) GetStats() map[string]interface{} {
	states := lb.checker.States()

	healthy := 0
	var totalRequests, successRequests int64
	for _, state := range states {
		if state.Eligible() {
			healthy++
		}
		snapshot := state.Snapshot()
		totalRequests += snapshot.TotalRequests
		successRequests += snapshot.SuccessRequests
	}

	successRate := 100.0
	if totalRequests > 0 {
		successRate = float64(successRequests) / float64(totalRequests) * 100.0
	}

	return map[string]interface{}{
		"total_backends":   len(states),
		"healthy_backends": healthy,
		"total_requests":   totalRequests,
		"success_rate":     successRate,
		"default_strategy": string(lb.DefaultStrategy()),
	}
}

// GetTrafficDistribution returns each backend's request count and share
// over the decision window.
func (lb *LoadBalancer) GetTrafficDistribution() map[string]TrafficShare {
	records := lb.history.All()

	counts := make(map[string]int)
	for _, record := range records {
		counts[record.BackendID]++
	}

	distribution := make(map[string]TrafficShare, len(counts))
	total := len(records)
	for id, count := range counts {
		distribution[id] = TrafficShare{
			Requests:   count,
			Percentage: float64(count) / float64(total) * 100.0,
		}
	}
	return distribution
}

// GetStrategyRecommendation picks, among strategies used at least
// recommendationMinUses times in the window, the one with the lowest mean
// decision latency. Confidence is that strategy's share of the window.
func (lb *LoadBalancer) GetStrategyRecommendation() Recommendation {
	records := lb.history.All()
	if len(records) == 0 {
		return Recommendation{
			Strategy:   string(lb.DefaultStrategy()),
			Reason:     "no recent decisions recorded",
			Confidence: 0,
		}
	}

	type usage struct {
		uses  int
		total time.Duration
	}
	usages := make(map[domain.StrategyType]*usage)
	for _, record := range records {
		u := usages[record.Strategy]
		if u == nil {
			u = &usage{}
			usages[record.Strategy] = u
		}
		u.uses++
		u.total += record.Duration
	}

	var best domain.StrategyType
	var bestMean time.Duration
	var bestUses int
	for strategy, u := range usages {
		if u.uses < recommendationMinUses {
			continue
		}
		mean := u.total / time.Duration(u.uses)
		if best == "" || mean < bestMean {
			best = strategy
			bestMean = mean
			bestUses = u.uses
		}
	}

	if best == "" {
		return Recommendation{
			Strategy:   string(lb.DefaultStrategy()),
			Reason:     "no strategy has enough recent uses to compare",
			Confidence: 0,
		}
	}

	return Recommendation{
		Strategy:   string(best),
		Reason:     "lowest mean decision latency over the recent window",
		Confidence: float64(bestUses) / float64(len(records)),
	}
}
