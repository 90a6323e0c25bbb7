// concurrent_middleware.go
package main

import (
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

// RequestStats tracks in-process request counters. OCR plus multi-backend
// analysis makes individual requests slow, so the load ceiling and latency
// profile are worth watching.
type RequestStats struct {
	totalRequests      int64
	successfulRequests int64
	failedRequests     int64
	currentRequests    int64
	concurrentPeak     int64

	mutex           sync.Mutex
	totalLatency    time.Duration
	maxResponseTime time.Duration
	minResponseTime time.Duration
}

// Global request statistics, populated by RequestStatsMiddleware.
var requestStats = &RequestStats{}

// RequestStatsMiddleware tracks request concurrency and latency, and sheds
// load once the configured ceiling is reached.
func RequestStatsMiddleware(maxConcurrent int64) gin.HandlerFunc {
	if maxConcurrent <= 0 {
		maxConcurrent = int64(runtime.NumCPU() * 8)
	}

	return func(c *gin.Context) {
		current := atomic.AddInt64(&requestStats.currentRequests, 1)
		defer atomic.AddInt64(&requestStats.currentRequests, -1)

		if current > maxConcurrent {
			RespondWithError(c, http.StatusTooManyRequests, ErrCodeRateLimit, "Server at maximum capacity", "")
			c.Abort()
			requestStats.record(0, false)
			return
		}

		// Track the high-water mark
		for {
			peak := atomic.LoadInt64(&requestStats.concurrentPeak)
			if current <= peak || atomic.CompareAndSwapInt64(&requestStats.concurrentPeak, peak, current) {
				break
			}
		}

		start := time.Now()
		c.Next()
		requestStats.record(time.Since(start), c.Writer.Status() < http.StatusInternalServerError)
	}
}

// record folds one finished request into the counters.
func (s *RequestStats) record(latency time.Duration, success bool) {
	atomic.AddInt64(&s.totalRequests, 1)
	if success {
		atomic.AddInt64(&s.successfulRequests, 1)
	} else {
		atomic.AddInt64(&s.failedRequests, 1)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.totalLatency += latency
	if latency > s.maxResponseTime {
		s.maxResponseTime = latency
	}
	if s.minResponseTime == 0 || latency < s.minResponseTime {
		s.minResponseTime = latency
	}
}

// Snapshot returns a point-in-time copy of the counters for the stats
// endpoint.
func (s *RequestStats) Snapshot() map[string]interface{} {
	total := atomic.LoadInt64(&s.totalRequests)

	s.mutex.Lock()
	var avg time.Duration
	if total > 0 {
		avg = s.totalLatency / time.Duration(total)
	}
	maxResponse := s.maxResponseTime
	minResponse := s.minResponseTime
	s.mutex.Unlock()

	successRate := 0.0
	if total > 0 {
		successRate = float64(atomic.LoadInt64(&s.successfulRequests)) / float64(total) * 100
	}

	return map[string]interface{}{
		"total_requests":      total,
		"successful_requests": atomic.LoadInt64(&s.successfulRequests),
		"failed_requests":     atomic.LoadInt64(&s.failedRequests),
		"current_requests":    atomic.LoadInt64(&s.currentRequests),
		"peak_concurrent":     atomic.LoadInt64(&s.concurrentPeak),
		"success_rate":        successRate,
		"avg_response_time":   avg.String(),
		"max_response_time":   maxResponse.String(),
		"min_response_time":   minResponse.String(),
		"goroutines":          runtime.NumGoroutine(),
		"timestamp":           time.Now().Unix(),
	}
}
