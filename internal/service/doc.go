/*
Package service implements the routing core: health checking, strategy
selection, and the load balancer facade that ties them together.

HealthChecker owns every backend's runtime state and keeps it current with
a periodic probe loop that fans out one goroutine per backend per tick,
joined before the next tick. Probe failures are absorbed into the health
state machine (Unknown/Healthy/Degraded/Unhealthy) and never surface to
callers. Routing reads state through Healthy(), which only takes a read
lock on the checker's registry.

Engine is pure selection: given the healthy set and a request context it
applies one of the closed set of strategies and the session-affinity
override, and returns a RoutingDecision with a reproducible reason. It
performs no I/O and holds no locks across anything blocking.

LoadBalancer is the facade the embedding server calls:

	decision := lb.Route(reqCtx, "")
	if decision == nil {
		// no eligible backend; caller picks its own fallback
	}
	// ... caller forwards the request itself ...
	lb.Complete(decision.Backend.ID, err == nil, latencyMs)

Route increments the chosen backend's in-flight counter; Complete must be
called exactly once per successful Route to release it and to feed the
request-latency average. There is no automatic reclamation for callers
that drop a decision on the floor.
*/
package service
