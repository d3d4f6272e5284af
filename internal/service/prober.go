package service

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rmahmud/route-director/internal/domain"
)

// Prober performs a single health probe against a backend. Implementations
// must honor the context deadline and must not retain the backend.
type Prober interface {
	Probe(ctx context.Context, backend *domain.Backend) (time.Duration, error)
}

// HTTPProber probes backends over HTTP by requesting their health-check path.
type HTTPProber struct {
	client *http.Client
}

// NewHTTPProber creates an HTTP prober with a small keepalive pool.
func NewHTTPProber() *HTTPProber {
	return &HTTPProber{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				DisableCompression:  true,
				MaxIdleConnsPerHost: 2,
			},
		},
	}
}

// Probe issues a GET against the backend's health-check path. Any transport
// error or non-2xx status counts as a probe failure.
func (p *HTTPProber) Probe(ctx context.Context, backend *domain.Backend) (time.Duration, error) {
	probeURL := backend.Address + backend.HealthCheckPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create probe request: %w", err)
	}
	req.Header.Set("User-Agent", "RouteDirector-HealthProbe/1.0")
	req.Header.Set("Accept", "application/json, text/plain, */*")

	start := time.Now()
	resp, err := p.client.Do(req)
	duration := time.Since(start)

	if err != nil {
		return duration, fmt.Errorf("probe request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return duration, fmt.Errorf("probe failed with status %d", resp.StatusCode)
	}

	return duration, nil
}

// GRPCProber probes backends that expose the standard grpc.health.v1
// checking service. The backend address is expected as host:port.
type GRPCProber struct{}

// NewGRPCProber creates a gRPC health prober.
func NewGRPCProber() *GRPCProber {
	return &GRPCProber{}
}

// Probe dials the backend and issues a health check. Anything other than
// SERVING counts as a probe failure.
func (p *GRPCProber) Probe(ctx context.Context, backend *domain.Backend) (time.Duration, error) {
	start := time.Now()

	conn, err := grpc.NewClient(backend.Address,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return time.Since(start), fmt.Errorf("failed to dial backend: %w", err)
	}
	defer conn.Close()

	client := grpc_health_v1.NewHealthClient(conn)
	resp, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	duration := time.Since(start)

	if err != nil {
		return duration, fmt.Errorf("health check rpc failed: %w", err)
	}
	if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
		return duration, fmt.Errorf("backend reported status %s", resp.GetStatus())
	}

	return duration, nil
}
