package config

import (
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v2"

	"github.com/rmahmud/route-director/internal/affinity"
	"github.com/rmahmud/route-director/internal/domain"
	"github.com/rmahmud/route-director/internal/errors"
	"github.com/rmahmud/route-director/internal/middleware"
)

// Config is the top-level configuration for the routing service.
type Config struct {
	LoadBalancer LoadBalancerConfig `yaml:"load_balancer"`
	Backends     []BackendConfig    `yaml:"backends"`
	Affinity     AffinityConfig     `yaml:"affinity"`
	Admin        AdminConfig        `yaml:"admin"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// LoadBalancerConfig contains routing-core configuration
type LoadBalancerConfig struct {
	DefaultStrategy string            `yaml:"default_strategy"`
	HistorySize     int               `yaml:"history_size"`
	HealthCheck     HealthCheckConfig `yaml:"health_check"`
}

// HealthCheckConfig contains probe-loop configuration
type HealthCheckConfig struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
	Path     string        `yaml:"path"`
}

// BackendConfig contains one backend's static configuration
type BackendConfig struct {
	ID              string        `yaml:"id"`
	Address         string        `yaml:"address"`
	Weight          float64       `yaml:"weight"`
	MaxConnections  int           `yaml:"max_connections"`
	HealthCheckPath string        `yaml:"health_check_path"`
	Protocol        string        `yaml:"protocol"`
	Timeout         time.Duration `yaml:"timeout"`
}

// AffinityConfig selects and configures the session-affinity store.
type AffinityConfig struct {
	Store string               `yaml:"store"`
	Redis affinity.RedisConfig `yaml:"redis"`
}

// AdminConfig contains admin API configuration
type AdminConfig struct {
	Enabled   bool                       `yaml:"enabled"`
	Port      int                        `yaml:"port"`
	JWT       middleware.JWTAuthConfig   `yaml:"jwt"`
	RateLimit middleware.RateLimitConfig `yaml:"rate_limit"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	File   string `yaml:"file"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		LoadBalancer: LoadBalancerConfig{
			DefaultStrategy: string(domain.RoundRobin),
			HistorySize:     1000,
			HealthCheck: HealthCheckConfig{
				Interval: 30 * time.Second,
				Timeout:  5 * time.Second,
				Path:     "/health",
			},
		},
		Affinity: AffinityConfig{
			Store: "memory",
			Redis: affinity.RedisConfig{
				Addr: "localhost:6379",
				TTL:  30 * time.Minute,
			},
		},
		Admin: AdminConfig{
			Enabled: true,
			Port:    9090,
			RateLimit: middleware.RateLimitConfig{
				Enabled:           true,
				RequestsPerSecond: 50,
				BurstSize:         100,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Load reads configuration from a YAML file layered over the defaults.
// An empty path returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapError(err, errors.ErrCodeConfigLoad, "config", "failed to read configuration file")
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapError(err, errors.ErrCodeConfigLoad, "config", "failed to parse configuration file")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeConfigLoad, "config", "invalid configuration")
	}
	return cfg, nil
}

// Validate checks the configuration before any component is built.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(&c.LoadBalancer,
		validation.Field(&c.LoadBalancer.DefaultStrategy, validation.Required, validation.By(validStrategy)),
		validation.Field(&c.LoadBalancer.HistorySize, validation.Min(0)),
	); err != nil {
		return err
	}

	if err := validation.ValidateStruct(&c.Affinity,
		validation.Field(&c.Affinity.Store, validation.Required, validation.In("memory", "redis")),
	); err != nil {
		return err
	}

	for _, backend := range c.ToBackends() {
		if err := backend.Validate(); err != nil {
			return errors.NewInvalidBackendError(backend.ID, err)
		}
	}
	return nil
}

func validStrategy(value interface{}) error {
	s, _ := value.(string)
	_, err := domain.ParseStrategy(s)
	return err
}

// ToBackends converts the configured backends into domain entities,
// filling per-backend gaps from the health-check section.
func (c *Config) ToBackends() []*domain.Backend {
	backends := make([]*domain.Backend, 0, len(c.Backends))
	for _, bc := range c.Backends {
		backend := domain.NewBackend(bc.ID, bc.Address, bc.Weight)
		if bc.MaxConnections > 0 {
			backend.MaxConnections = bc.MaxConnections
		}
		if bc.HealthCheckPath != "" {
			backend.HealthCheckPath = bc.HealthCheckPath
		} else if c.LoadBalancer.HealthCheck.Path != "" {
			backend.HealthCheckPath = c.LoadBalancer.HealthCheck.Path
		}
		if bc.Protocol != "" {
			backend.Protocol = bc.Protocol
		}
		if bc.Timeout > 0 {
			backend.Timeout = bc.Timeout
		} else if c.LoadBalancer.HealthCheck.Timeout > 0 {
			backend.Timeout = c.LoadBalancer.HealthCheck.Timeout
		}
		backends = append(backends, backend)
	}
	return backends
}
