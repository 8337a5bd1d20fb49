package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics holds performance metrics for the application
type Metrics struct {
	// Request metrics
	TotalRequests      int64 `json:"total_requests"`
	SuccessfulRequests int64 `json:"successful_requests"`
	FailedRequests     int64 `json:"failed_requests"`

	// Response time metrics
	AverageResponseTime time.Duration `json:"average_response_time"`
	MinResponseTime     time.Duration `json:"min_response_time"`
	MaxResponseTime     time.Duration `json:"max_response_time"`

	// Balance cache metrics
	CacheHits   int64 `json:"cache_hits"`
	CacheMisses int64 `json:"cache_misses"`

	// Oracle RPC metrics
	RPCCalls       int64         `json:"rpc_calls"`
	RPCFailures    int64         `json:"rpc_failures"`
	AverageRPCTime time.Duration `json:"average_rpc_time"`

	// Gating metrics
	RateLimitDenials   int64 `json:"rate_limit_denials"`
	EntitlementAllows  int64 `json:"entitlement_allows"`
	EntitlementDenials int64 `json:"entitlement_denials"`
	UsageIncrements    int64 `json:"usage_increments"`

	// Concurrency metrics
	ActiveRequests int64 `json:"active_requests"`

	// Internal fields for calculations
	totalResponseTime time.Duration
	totalRPCTime      time.Duration
	mutex             sync.RWMutex
}

// MetricsCollector provides thread-safe metrics collection
type MetricsCollector struct {
	metrics   *Metrics
	startTime time.Time
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		metrics: &Metrics{
			MinResponseTime: time.Duration(^uint64(0) >> 1), // Max duration
		},
		startTime: time.Now(),
	}
}

// RecordRequest records a new request
func (mc *MetricsCollector) RecordRequest() {
	atomic.AddInt64(&mc.metrics.TotalRequests, 1)
	atomic.AddInt64(&mc.metrics.ActiveRequests, 1)
}

// RecordRequestComplete records request completion
func (mc *MetricsCollector) RecordRequestComplete(duration time.Duration, success bool) {
	atomic.AddInt64(&mc.metrics.ActiveRequests, -1)

	if success {
		atomic.AddInt64(&mc.metrics.SuccessfulRequests, 1)
	} else {
		atomic.AddInt64(&mc.metrics.FailedRequests, 1)
	}

	mc.metrics.mutex.Lock()
	defer mc.metrics.mutex.Unlock()

	mc.metrics.totalResponseTime += duration

	if duration < mc.metrics.MinResponseTime {
		mc.metrics.MinResponseTime = duration
	}
	if duration > mc.metrics.MaxResponseTime {
		mc.metrics.MaxResponseTime = duration
	}

	completed := mc.metrics.SuccessfulRequests + mc.metrics.FailedRequests
	if completed > 0 {
		mc.metrics.AverageResponseTime = mc.metrics.totalResponseTime / time.Duration(completed)
	}
}

// RecordCacheHit records a balance cache hit
func (mc *MetricsCollector) RecordCacheHit() {
	atomic.AddInt64(&mc.metrics.CacheHits, 1)
}

// RecordCacheMiss records a balance cache miss
func (mc *MetricsCollector) RecordCacheMiss() {
	atomic.AddInt64(&mc.metrics.CacheMisses, 1)
}

// RecordRPCCall records an oracle RPC call with its duration and outcome
func (mc *MetricsCollector) RecordRPCCall(duration time.Duration, success bool) {
	atomic.AddInt64(&mc.metrics.RPCCalls, 1)
	if !success {
		atomic.AddInt64(&mc.metrics.RPCFailures, 1)
	}

	mc.metrics.mutex.Lock()
	defer mc.metrics.mutex.Unlock()

	mc.metrics.totalRPCTime += duration
	if mc.metrics.RPCCalls > 0 {
		mc.metrics.AverageRPCTime = mc.metrics.totalRPCTime / time.Duration(mc.metrics.RPCCalls)
	}
}

// RecordRateLimitDenial records a request denied by the fixed-window limiter
func (mc *MetricsCollector) RecordRateLimitDenial() {
	atomic.AddInt64(&mc.metrics.RateLimitDenials, 1)
}

// RecordEntitlement records the outcome of an entitlement evaluation
func (mc *MetricsCollector) RecordEntitlement(allowed bool) {
	if allowed {
		atomic.AddInt64(&mc.metrics.EntitlementAllows, 1)
	} else {
		atomic.AddInt64(&mc.metrics.EntitlementDenials, 1)
	}
}

// RecordUsageIncrement records a successful usage ledger increment
func (mc *MetricsCollector) RecordUsageIncrement() {
	atomic.AddInt64(&mc.metrics.UsageIncrements, 1)
}

// GetMetrics returns a snapshot of the current metrics
func (mc *MetricsCollector) GetMetrics() *Metrics {
	mc.metrics.mutex.RLock()
	defer mc.metrics.mutex.RUnlock()

	return &Metrics{
		TotalRequests:       atomic.LoadInt64(&mc.metrics.TotalRequests),
		SuccessfulRequests:  atomic.LoadInt64(&mc.metrics.SuccessfulRequests),
		FailedRequests:      atomic.LoadInt64(&mc.metrics.FailedRequests),
		AverageResponseTime: mc.metrics.AverageResponseTime,
		MinResponseTime:     mc.metrics.MinResponseTime,
		MaxResponseTime:     mc.metrics.MaxResponseTime,
		CacheHits:           atomic.LoadInt64(&mc.metrics.CacheHits),
		CacheMisses:         atomic.LoadInt64(&mc.metrics.CacheMisses),
		RPCCalls:            atomic.LoadInt64(&mc.metrics.RPCCalls),
		RPCFailures:         atomic.LoadInt64(&mc.metrics.RPCFailures),
		AverageRPCTime:      mc.metrics.AverageRPCTime,
		RateLimitDenials:    atomic.LoadInt64(&mc.metrics.RateLimitDenials),
		EntitlementAllows:   atomic.LoadInt64(&mc.metrics.EntitlementAllows),
		EntitlementDenials:  atomic.LoadInt64(&mc.metrics.EntitlementDenials),
		UsageIncrements:     atomic.LoadInt64(&mc.metrics.UsageIncrements),
		ActiveRequests:      atomic.LoadInt64(&mc.metrics.ActiveRequests),
	}
}

// GetUptime returns how long the collector has been running
func (mc *MetricsCollector) GetUptime() time.Duration {
	return time.Since(mc.startTime)
}

// GetSuccessRate returns the percentage of successful requests
func (mc *MetricsCollector) GetSuccessRate() float64 {
	total := atomic.LoadInt64(&mc.metrics.SuccessfulRequests) + atomic.LoadInt64(&mc.metrics.FailedRequests)
	if total == 0 {
		return 0
	}
	return float64(atomic.LoadInt64(&mc.metrics.SuccessfulRequests)) / float64(total) * 100
}

// GetCacheHitRatio returns the percentage of cache hits
func (mc *MetricsCollector) GetCacheHitRatio() float64 {
	hits := atomic.LoadInt64(&mc.metrics.CacheHits)
	total := hits + atomic.LoadInt64(&mc.metrics.CacheMisses)
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}

// Reset clears all metrics
func (mc *MetricsCollector) Reset() {
	mc.metrics.mutex.Lock()
	defer mc.metrics.mutex.Unlock()

	mc.metrics = &Metrics{
		MinResponseTime: time.Duration(^uint64(0) >> 1),
	}
	mc.startTime = time.Now()
}
