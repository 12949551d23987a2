// Package cache stores prompt and image generation results. Redis is used
// while it answers; otherwise entries live in a small in-memory map.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	// MaxMemoryEntries caps the in-memory fallback; the oldest insert is evicted first.
	MaxMemoryEntries = 100
	// DefaultTTL applies when Options.TTL is zero.
	DefaultTTL = time.Hour
)

// RedisClient is the subset of *redis.Client the cache needs.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	SetEx(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// Options configures a Store.
type Options struct {
	Redis  RedisClient
	TTL    time.Duration
	Logger zerolog.Logger
	Now    func() time.Time
	// Offline starts on the memory fallback; Maintain switches to Redis once
	// it answers a ping.
	Offline bool
}

// Stats describes the cache backends.
type Stats struct {
	Redis       bool        `json:"redis"`
	MemoryCache MemoryStats `json:"memoryCache"`
}

// MemoryStats describes the in-memory fallback.
type MemoryStats struct {
	Size    int `json:"size"`
	MaxSize int `json:"maxSize"`
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// Store is safe for concurrent use. Its methods never return errors; a
// failing backend degrades to a cache miss.
type Store struct {
	redis     RedisClient
	connected atomic.Bool
	ttl       time.Duration
	logger    zerolog.Logger
	now       func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
	order   []string
}

// New builds a Store. A nil Options.Redis keeps everything in memory.
func New(opts Options) *Store {
	s := &Store{
		redis:   opts.Redis,
		ttl:     opts.TTL,
		logger:  opts.Logger,
		now:     opts.Now,
		entries: make(map[string]memoryEntry),
	}
	if s.ttl <= 0 {
		s.ttl = DefaultTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.connected.Store(s.redis != nil && !opts.Offline)
	return s
}

// Get decodes the cached value for key into dest and reports a hit.
func (s *Store) Get(ctx context.Context, key string, dest any) bool {
	raw, ok := s.getRaw(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("cache entry undecodable")
		return false
	}
	return true
}

func (s *Store) getRaw(ctx context.Context, key string) ([]byte, bool) {
	if s.useRedis() {
		raw, err := s.redis.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			return raw, true
		case errors.Is(err, redis.Nil):
			return nil, false
		default:
			s.disconnect(ctx, err, "get")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()
	entry, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	return entry.value, true
}

// Set stores value as JSON for the configured TTL and reports success.
func (s *Store) Set(ctx context.Context, key string, value any) bool {
	raw, err := json.Marshal(value)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("cache value not encodable")
		return false
	}

	if s.useRedis() {
		err := s.redis.SetEx(ctx, key, raw, s.ttl).Err()
		if err == nil {
			return true
		}
		s.disconnect(ctx, err, "set")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()
	if _, exists := s.entries[key]; !exists {
		s.order = append(s.order, key)
	}
	s.entries[key] = memoryEntry{value: raw, expiresAt: s.now().Add(s.ttl)}
	for len(s.order) > MaxMemoryEntries {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.entries, oldest)
	}
	return true
}

// Delete removes key and reports success.
func (s *Store) Delete(ctx context.Context, key string) bool {
	if s.useRedis() {
		err := s.redis.Del(ctx, key).Err()
		if err == nil {
			return true
		}
		s.disconnect(ctx, err, "delete")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(key)
	return true
}

// Exists reports whether key holds a live value.
func (s *Store) Exists(ctx context.Context, key string) bool {
	if s.useRedis() {
		n, err := s.redis.Exists(ctx, key).Result()
		if err == nil {
			return n == 1
		}
		s.disconnect(ctx, err, "exists")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()
	_, ok := s.entries[key]
	return ok
}

// Stats reports backend availability and memory usage.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	size := len(s.entries)
	s.mu.Unlock()
	return Stats{
		Redis:       s.useRedis(),
		MemoryCache: MemoryStats{Size: size, MaxSize: MaxMemoryEntries},
	}
}

// Maintain re-checks Redis and drops expired memory entries. It is meant to
// run on a schedule.
func (s *Store) Maintain(ctx context.Context) {
	if s.redis != nil {
		err := s.redis.Ping(ctx).Err()
		was := s.connected.Swap(err == nil)
		switch {
		case err != nil && was:
			s.logger.Warn().Err(err).Msg("redis unavailable, using in-memory cache")
		case err == nil && !was:
			s.logger.Info().Msg("redis connection restored")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()
}

func (s *Store) useRedis() bool {
	return s.redis != nil && s.connected.Load()
}

// disconnect marks Redis unavailable unless the failure came from the
// caller's own context.
func (s *Store) disconnect(ctx context.Context, err error, op string) {
	if ctx.Err() != nil {
		return
	}
	if s.connected.Swap(false) {
		s.logger.Warn().Err(err).Str("op", op).Msg("redis error, falling back to in-memory cache")
	}
}

func (s *Store) pruneLocked() {
	now := s.now()
	kept := s.order[:0]
	for _, key := range s.order {
		entry, ok := s.entries[key]
		if !ok {
			continue
		}
		if now.After(entry.expiresAt) {
			delete(s.entries, key)
			continue
		}
		kept = append(kept, key)
	}
	s.order = kept
}

func (s *Store) removeLocked(key string) {
	if _, ok := s.entries[key]; !ok {
		return
	}
	delete(s.entries, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// ImageKey identifies prompt generation for an image and instruction pair.
func ImageKey(image []byte, prompt string) string {
	return "img:" + md5Hex(image) + ":" + md5Hex([]byte(prompt))
}

// APIKey identifies an upstream API call by endpoint and parameters.
func APIKey(endpoint string, params any) string {
	raw, err := json.Marshal(params)
	if err != nil {
		raw = []byte(fmt.Sprintf("%v", params))
	}
	return "api:" + endpoint + ":" + md5Hex(raw)
}

func md5Hex(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}
