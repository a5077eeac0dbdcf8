package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/halloran/castellan/pkg/cache"
	"github.com/halloran/castellan/pkg/cache/memorycache"
)

// Collector collects and aggregates metrics for the decision engine.
type Collector struct {
	// Check metrics, keyed by "outcome|source"
	checkCounts   sync.Map // map[string]*uint64
	checkDuration sync.Map // map[string]*durationValue - outcome -> total seconds

	// gRPC metrics
	grpcRequests sync.Map // map[string]*uint64 - method -> count
	grpcErrors   sync.Map // map[string]*uint64 - method -> error count

	// Cache reference (optional, for querying cache-specific metrics)
	cache cache.Cache
}

// durationValue holds duration with mutex for thread-safe updates.
type durationValue struct {
	mu           sync.Mutex
	totalSeconds float64
}

// CacheMetrics holds cache performance metrics.
type CacheMetrics struct {
	Hits        uint64
	Misses      uint64
	HitRate     float64
	KeysCurrent int64
	MemoryBytes int64
	Evictions   uint64
}

// CheckMetrics holds permission check metrics.
type CheckMetrics struct {
	// Counts is keyed by "outcome|source", e.g. "granted|base_permission".
	Counts               map[string]uint64
	TotalDurationSeconds map[string]float64
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{}
}

// SetCache sets the cache instance for collecting cache metrics.
func (c *Collector) SetCache(cache cache.Cache) {
	c.cache = cache
}

// RecordCheck records a permission check by outcome and grant source.
func (c *Collector) RecordCheck(outcome, source string) {
	counter := c.getOrCreateCounter(&c.checkCounts, outcome+"|"+source)
	atomic.AddUint64(counter, 1)
}

// RecordCheckDuration records the duration of a check in seconds.
func (c *Collector) RecordCheckDuration(outcome string, durationSeconds float64) {
	val, _ := c.checkDuration.LoadOrStore(outcome, &durationValue{})
	dv := val.(*durationValue)

	dv.mu.Lock()
	dv.totalSeconds += durationSeconds
	dv.mu.Unlock()
}

// RecordRequest records a gRPC request.
func (c *Collector) RecordRequest(method string) {
	counter := c.getOrCreateCounter(&c.grpcRequests, method)
	atomic.AddUint64(counter, 1)
}

// RecordError records a gRPC error.
func (c *Collector) RecordError(method string) {
	counter := c.getOrCreateCounter(&c.grpcErrors, method)
	atomic.AddUint64(counter, 1)
}

// GetCacheMetrics returns current cache metrics.
func (c *Collector) GetCacheMetrics() *CacheMetrics {
	if c.cache == nil {
		return &CacheMetrics{}
	}

	metrics := c.cache.Metrics()
	if metrics == nil {
		return &CacheMetrics{}
	}

	result := &CacheMetrics{
		Hits:      metrics.Hits,
		Misses:    metrics.Misses,
		HitRate:   metrics.HitRate(),
		Evictions: metrics.KeysEvicted,
	}

	// Get current keys and memory if available
	if memCache, ok := c.cache.(*memorycache.Cache); ok {
		result.KeysCurrent = int64(memCache.Len())
		result.MemoryBytes = memCache.Size()
	}

	return result
}

// GRPCMetrics holds gRPC request metrics.
type GRPCMetrics struct {
	RequestCounts map[string]uint64
	ErrorCounts   map[string]uint64
}

// GetGRPCMetrics returns current gRPC request metrics.
func (c *Collector) GetGRPCMetrics() *GRPCMetrics {
	result := &GRPCMetrics{
		RequestCounts: make(map[string]uint64),
		ErrorCounts:   make(map[string]uint64),
	}

	c.grpcRequests.Range(func(key, value interface{}) bool {
		result.RequestCounts[key.(string)] = atomic.LoadUint64(value.(*uint64))
		return true
	})

	c.grpcErrors.Range(func(key, value interface{}) bool {
		result.ErrorCounts[key.(string)] = atomic.LoadUint64(value.(*uint64))
		return true
	})

	return result
}

// GetCheckMetrics returns current permission check metrics.
func (c *Collector) GetCheckMetrics() *CheckMetrics {
	result := &CheckMetrics{
		Counts:               make(map[string]uint64),
		TotalDurationSeconds: make(map[string]float64),
	}

	c.checkCounts.Range(func(key, value interface{}) bool {
		result.Counts[key.(string)] = atomic.LoadUint64(value.(*uint64))
		return true
	})

	c.checkDuration.Range(func(key, value interface{}) bool {
		dv := value.(*durationValue)
		dv.mu.Lock()
		result.TotalDurationSeconds[key.(string)] = dv.totalSeconds
		dv.mu.Unlock()
		return true
	})

	return result
}

// getOrCreateCounter gets or creates a counter for the given key.
func (c *Collector) getOrCreateCounter(m *sync.Map, key string) *uint64 {
	val, _ := m.LoadOrStore(key, new(uint64))
	return val.(*uint64)
}
