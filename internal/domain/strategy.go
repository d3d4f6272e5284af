package domain

import "fmt"

// StrategyType identifies one of the interchangeable selection algorithms.
// The set is closed; dispatch happens over a table in the engine.
type StrategyType string

const (
	RoundRobin               StrategyType = "round_robin"
	WeightedRoundRobin       StrategyType = "weighted_round_robin"
	LeastConnections         StrategyType = "least_connections"
	WeightedLeastConnections StrategyType = "weighted_least_connections"
	Random                   StrategyType = "random"
	WeightedRandom           StrategyType = "weighted_random"
	IPHash                   StrategyType = "ip_hash"
	ConsistentHash           StrategyType = "consistent_hash"
	ResponseTime             StrategyType = "response_time"
	HealthBased              StrategyType = "health_based"
	Adaptive                 StrategyType = "adaptive"
)

// Strategies lists every supported strategy type.
func Strategies() []StrategyType {
	return []StrategyType{
		RoundRobin,
		WeightedRoundRobin,
		LeastConnections,
		WeightedLeastConnections,
		Random,
		WeightedRandom,
		IPHash,
		ConsistentHash,
		ResponseTime,
		HealthBased,
		Adaptive,
	}
}

// ValidStrategy reports whether s names a supported strategy.
func ValidStrategy(s StrategyType) bool {
	for _, known := range Strategies() {
		if s == known {
			return true
		}
	}
	return false
}

// ParseStrategy converts a configuration string into a StrategyType.
func ParseStrategy(s string) (StrategyType, error) {
	st := StrategyType(s)
	if !ValidStrategy(st) {
		return "", fmt.Errorf("unknown load balancing strategy: %q", s)
	}
	return st, nil
}
