/*
Package domain contains the core entities of the routing subsystem.

Backend is the immutable configuration of one routable target; BackendState
is its mutable runtime companion (health classification, in-flight counter,
traffic counters, and two independent latency averages), owned exclusively
by the health checker. RequestContext and RoutingDecision are the ephemeral
input and output of one routing call, and DecisionRecord is the bounded
history entry the adaptive strategy and the reporting layer read.

The package has no dependencies on the service or transport layers; state
mutation is thread-safe via per-backend atomics and locks so probing and
routing on unrelated backends never serialize against each other.
*/
package domain
