// Package cache implements the TTL key-value port the engine and gas
// service memoize against, with pluggable in-process and networked
// backends.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Backend is the cache port. Implementations must provide their own
// atomicity; the engine never locks around a cache call.
type Backend interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Kwargs is a keyword-argument group for BuildKey: its entries are
// order-free, sorted by key name before hashing. Pass positional arguments
// (contract addresses, provider names, enums) directly to BuildKey in call
// order; group only the order-independent keyword arguments into a Kwargs.
type Kwargs map[string]interface{}

// BuildKey builds the deterministic cache key described for the function
// memoization layer: MD5 of the qualified function name, the positional-arg
// tuple in call order, and any sorted kwargs group. Positional args are NOT
// reordered — only a Kwargs value is sorted by key before hashing, per spec
// §5's "positional-arg tuple ... and sorted kwargs".
func BuildKey(qualifiedName string, args ...interface{}) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, qualifiedName)
	for _, a := range args {
		if kw, ok := a.(Kwargs); ok {
			keys := make([]string, 0, len(kw))
			for k := range kw {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				parts = append(parts, fmt.Sprintf("%s=%v", k, kw[k]))
			}
			continue
		}
		parts = append(parts, fmt.Sprintf("%v", a))
	}
	sum := md5.Sum([]byte(fmt.Sprintf("%v", parts)))
	return hex.EncodeToString(sum[:])
}

// MemoryBackend is an in-process TTL cache guarded by a mutex, modeled on
// the per-resource DataCache/cacheDuration pattern used for gas, FX and
// provider-status data: a value plus the time it was stored, checked
// against a TTL on read.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryBackend creates an empty in-process cache.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]memoryEntry)}
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false, nil
	}
	return e.value, true, nil
}

func (m *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{value: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

// Sweep drops expired entries; callers may run it periodically from the
// cache-warmer worker to bound memory growth since stampede protection
// relies on TTLs being short rather than on explicit locking.
func (m *MemoryBackend) Sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for k, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, k)
		}
	}
}

// TTLs named in the concurrency & resource model.
const (
	TTLProviderPrice   = 30 * time.Second
	TTLGasPrices       = 5 * time.Second
	TTLBaseGasPrice    = 5 * time.Second
	TTLTokenAllowance  = 5 * time.Second
	TTLApproveCost     = 5 * time.Second
	TTLDecimals        = 2 * time.Hour
	TTLMetaPrice       = 5 * time.Second
)
