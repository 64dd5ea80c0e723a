package monitor

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// SystemMetrics tracks loop and control-plane activity.
type SystemMetrics struct {
	FeedLatency  *LatencyHistogram
	OrderLatency *LatencyHistogram
	APILatency   *LatencyHistogram

	cycles        uint64
	idle          uint64
	noSignal      uint64
	ordersPlaced  uint64
	orderFailures uint64
	feedFailures  uint64
	apiRequests   uint64
	apiErrors     uint64

	startedAt time.Time
}

// LatencyHistogram tracks latency samples with sliding window.
// Stats are computed lazily and cached until the next Record.
type LatencyHistogram struct {
	mu          sync.Mutex
	samples     []float64
	maxSize     int
	dirty       bool
	cachedStats LatencyStats
}

// NewSystemMetrics creates a new metrics instance.
func NewSystemMetrics() *SystemMetrics {
	return &SystemMetrics{
		FeedLatency:  NewLatencyHistogram(1000),
		OrderLatency: NewLatencyHistogram(1000),
		APILatency:   NewLatencyHistogram(1000),
		startedAt:    time.Now(),
	}
}

// NewLatencyHistogram creates a sliding window histogram.
func NewLatencyHistogram(size int) *LatencyHistogram {
	if size <= 0 {
		size = 1000
	}
	return &LatencyHistogram{
		samples: make([]float64, 0, size),
		maxSize: size,
		dirty:   true,
	}
}

// Record adds a latency sample in milliseconds.
func (h *LatencyHistogram) Record(latencyMs float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) >= h.maxSize {
		h.samples = h.samples[1:]
	}
	h.samples = append(h.samples, latencyMs)
	h.dirty = true
}

// RecordDuration converts duration to ms and records.
func (h *LatencyHistogram) RecordDuration(d time.Duration) {
	h.Record(float64(d.Nanoseconds()) / 1e6)
}

// Stats returns min, max, avg, p50, p95, p99.
func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.dirty && h.cachedStats.Count > 0 {
		return h.cachedStats
	}

	n := len(h.samples)
	if n == 0 {
		return LatencyStats{}
	}

	sorted := make([]float64, n)
	copy(sorted, h.samples)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}

	h.cachedStats = LatencyStats{
		Min:   sorted[0],
		Max:   sorted[n-1],
		Avg:   sum / float64(n),
		P50:   sorted[n/2],
		P95:   sorted[int(float64(n)*0.95)],
		P99:   sorted[int(float64(n)*0.99)],
		Count: n,
	}
	h.dirty = false

	return h.cachedStats
}

// LatencyStats holds computed latency statistics.
type LatencyStats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Count int     `json:"count"`
}

func (m *SystemMetrics) IncrementCycles()        { atomic.AddUint64(&m.cycles, 1) }
func (m *SystemMetrics) IncrementIdle()          { atomic.AddUint64(&m.idle, 1) }
func (m *SystemMetrics) IncrementNoSignal()      { atomic.AddUint64(&m.noSignal, 1) }
func (m *SystemMetrics) IncrementOrders()        { atomic.AddUint64(&m.ordersPlaced, 1) }
func (m *SystemMetrics) IncrementOrderFailures() { atomic.AddUint64(&m.orderFailures, 1) }
func (m *SystemMetrics) IncrementFeedFailures()  { atomic.AddUint64(&m.feedFailures, 1) }
func (m *SystemMetrics) IncrementAPI()           { atomic.AddUint64(&m.apiRequests, 1) }
func (m *SystemMetrics) IncrementAPIErrors()     { atomic.AddUint64(&m.apiErrors, 1) }

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Cycles         uint64       `json:"cycles"`
	Idle           uint64       `json:"idle"`
	NoSignal       uint64       `json:"no_signal"`
	OrdersPlaced   uint64       `json:"orders_placed"`
	OrderFailures  uint64       `json:"order_failures"`
	FeedFailures   uint64       `json:"feed_failures"`
	APIRequests    uint64       `json:"api_requests"`
	APIErrors      uint64       `json:"api_errors"`
	FeedLatency    LatencyStats `json:"feed_latency"`
	OrderLatency   LatencyStats `json:"order_latency"`
	APILatency     LatencyStats `json:"api_latency"`
	GoroutineCount int          `json:"goroutine_count"`
	HeapAlloc      uint64       `json:"heap_alloc_bytes"`
	Uptime         string       `json:"uptime"`
	Timestamp      time.Time    `json:"timestamp"`
}

// GetSnapshot returns a point-in-time metrics snapshot.
func (m *SystemMetrics) GetSnapshot() MetricsSnapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return MetricsSnapshot{
		Cycles:         atomic.LoadUint64(&m.cycles),
		Idle:           atomic.LoadUint64(&m.idle),
		NoSignal:       atomic.LoadUint64(&m.noSignal),
		OrdersPlaced:   atomic.LoadUint64(&m.ordersPlaced),
		OrderFailures:  atomic.LoadUint64(&m.orderFailures),
		FeedFailures:   atomic.LoadUint64(&m.feedFailures),
		APIRequests:    atomic.LoadUint64(&m.apiRequests),
		APIErrors:      atomic.LoadUint64(&m.apiErrors),
		FeedLatency:    m.FeedLatency.Stats(),
		OrderLatency:   m.OrderLatency.Stats(),
		APILatency:     m.APILatency.Stats(),
		GoroutineCount: runtime.NumGoroutine(),
		HeapAlloc:      memStats.HeapAlloc,
		Uptime:         time.Since(m.startedAt).Truncate(time.Second).String(),
		Timestamp:      time.Now(),
	}
}

// Timer helps measure operation duration.
type Timer struct {
	start     time.Time
	histogram *LatencyHistogram
}

// NewTimer creates a timer that records to the given histogram.
func NewTimer(h *LatencyHistogram) *Timer {
	return &Timer{start: time.Now(), histogram: h}
}

// Stop records elapsed time to histogram.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	if t.histogram != nil {
		t.histogram.RecordDuration(elapsed)
	}
	return elapsed
}
