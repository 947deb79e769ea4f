package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

// Cache stores raw response bodies keyed by request
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration)
}

// Config selects and tunes the cache backend
type Config struct {
	Backend       string        `yaml:"backend"` // "memory", "redis" or "none"
	TTL           time.Duration `yaml:"ttl"`
	MaxEntries    int           `yaml:"max_entries"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	Prefix        string        `yaml:"prefix"`
	OpTimeout     time.Duration `yaml:"op_timeout"`
}

// DefaultConfig caches in memory for 2s, long enough to share one fetch across a command
func DefaultConfig() Config {
	return Config{
		Backend:    "memory",
		TTL:        2 * time.Second,
		MaxEntries: 1024,
		Prefix:     "bookscope:",
		OpTimeout:  500 * time.Millisecond,
	}
}

// New builds the configured backend. A redis backend is pinged once so a bad address fails fast.
// "none" returns a nil Cache.
func New(ctx context.Context, cfg Config) (Cache, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemory(cfg.MaxEntries), nil
	case "none":
		return nil, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
		}
		return NewRedis(client, cfg.Prefix, cfg.OpTimeout), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// Memory is an in-process TTL cache
type Memory struct {
	mu         sync.Mutex
	entries    map[string]entry
	maxEntries int
	now        func() time.Time
	hits       int64
	misses     int64
}

type entry struct {
	b   []byte
	exp time.Time
}

// NewMemory creates a memory cache; maxEntries <= 0 is unbounded
func NewMemory(maxEntries int) *Memory {
	return &Memory{
		entries:    make(map[string]entry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (c *Memory) Get(ctx context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || (!e.exp.IsZero() && c.now().After(e.exp)) {
		if ok {
			delete(c.entries, key)
		}
		c.misses++
		return nil, false
	}
	c.hits++
	return e.b, true
}

func (c *Memory) Set(ctx context.Context, key string, val []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.evict()
	}

	e := entry{b: append([]byte(nil), val...)}
	if ttl > 0 {
		e.exp = c.now().Add(ttl)
	}
	c.entries[key] = e
}

// evict drops expired entries, then the entry closest to expiry if the cache is still full
func (c *Memory) evict() {
	now := c.now()
	var victim string
	var victimExp time.Time
	found := false
	for k, e := range c.entries {
		if !e.exp.IsZero() && now.After(e.exp) {
			delete(c.entries, k)
			continue
		}
		if !found || expiresBefore(e.exp, victimExp) {
			victim, victimExp, found = k, e.exp, true
		}
	}
	if found && len(c.entries) >= c.maxEntries {
		delete(c.entries, victim)
	}
}

// expiresBefore orders entries by expiry; entries without a TTL sort last
func expiresBefore(a, b time.Time) bool {
	if a.IsZero() {
		return false
	}
	return b.IsZero() || a.Before(b)
}

// Stats returns hit/miss counts and the current size
func (c *Memory) Stats() (hits, misses int64, size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses, len(c.entries)
}

// Redis shares cached responses across processes
type Redis struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
}

// NewRedis wraps an existing client
func NewRedis(client *redis.Client, prefix string, timeout time.Duration) *Redis {
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &Redis{client: client, prefix: prefix, timeout: timeout}
}

// Get treats every redis failure as a miss
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	v, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Debug().Err(err).Str("key", key).Msg("redis get failed")
		}
		return nil, false
	}
	return v, true
}

func (r *Redis) Set(ctx context.Context, key string, val []byte, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.client.Set(ctx, r.prefix+key, val, ttl).Err(); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("redis set failed")
	}
}

// Close releases the redis connection pool
func (r *Redis) Close() error {
	return r.client.Close()
}
