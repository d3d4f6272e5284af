package affinity

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/rmahmud/route-director/pkg/logger"
)

// Store maps session ids to backend ids. The engine binds a session on its
// first routed request and consults the mapping on every later request
// bearing the same id. Implementations must be safe for concurrent use and
// must never block routing on a slow lookup.
type Store interface {
	// Lookup returns the backend bound to the session, if any.
	Lookup(sessionID string) (string, bool)
	// Bind maps the session to a backend, replacing any previous mapping.
	Bind(sessionID, backendID string)
	// Remove drops the mapping for a session.
	Remove(sessionID string)
	// Len returns the number of tracked sessions.
	Len() int
}

// MemoryStore is the default in-process affinity table. It carries no
// eviction: mappings live until removed or the process exits, matching the
// single-process model of the routing core.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]string
}

// NewMemoryStore creates an empty in-memory affinity table.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]string),
	}
}

// Lookup returns the backend bound to the session, if any.
func (s *MemoryStore) Lookup(sessionID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	backendID, ok := s.sessions[sessionID]
	return backendID, ok
}

// Bind maps the session to a backend.
func (s *MemoryStore) Bind(sessionID, backendID string) {
	s.mu.Lock()
	s.sessions[sessionID] = backendID
	s.mu.Unlock()
}

// Remove drops the mapping for a session.
func (s *MemoryStore) Remove(sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
}

// Len returns the number of tracked sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

const redisOpTimeout = 200 * time.Millisecond

// RedisStore keeps session mappings in Redis so multiple balancer instances
// can share them, with a TTL bounding table growth. Store errors degrade to
// "no mapping": the engine then simply re-binds, so routing never fails on
// the affinity path.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *logger.Logger
}

// RedisConfig holds connection settings for the Redis affinity store.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

// NewRedisStore creates a Redis-backed affinity store.
func NewRedisStore(config RedisConfig, log *logger.Logger) *RedisStore {
	if config.Prefix == "" {
		config.Prefix = "affinity:"
	}

	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     config.Addr,
			Password: config.Password,
			DB:       config.DB,
		}),
		prefix: config.Prefix,
		ttl:    config.TTL,
		logger: log.AffinityLogger(),
	}
}

// Lookup returns the backend bound to the session, if any.
func (s *RedisStore) Lookup(sessionID string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	backendID, err := s.client.Get(ctx, s.prefix+sessionID).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		s.logger.WithError(err).WithField("session_id", sessionID).
			Warn("Affinity lookup failed, treating session as unmapped")
		return "", false
	}
	return backendID, true
}

// Bind maps the session to a backend with the configured TTL.
func (s *RedisStore) Bind(sessionID, backendID string) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	if err := s.client.Set(ctx, s.prefix+sessionID, backendID, s.ttl).Err(); err != nil {
		s.logger.WithError(err).WithField("session_id", sessionID).
			Warn("Affinity bind failed")
	}
}

// Remove drops the mapping for a session.
func (s *RedisStore) Remove(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	if err := s.client.Del(ctx, s.prefix+sessionID).Err(); err != nil {
		s.logger.WithError(err).WithField("session_id", sessionID).
			Warn("Affinity remove failed")
	}
}

// Len returns the number of tracked sessions under the store prefix.
func (s *RedisStore) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	keys, err := s.client.Keys(ctx, s.prefix+"*").Result()
	if err != nil {
		return 0
	}
	return len(keys)
}

// Close releases the underlying Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
