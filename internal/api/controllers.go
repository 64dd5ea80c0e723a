package api

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"band-trader/internal/engine"
	"band-trader/internal/monitor"
)

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"code":  code,
		"error": msg,
	})
}

func (s *Server) index(c *gin.Context) {
	c.String(http.StatusOK, "Hello, world!")
}

func (s *Server) startBot(c *gin.Context) {
	s.Engine.Start()
	c.String(http.StatusOK, "Bot started")
}

func (s *Server) stopBot(c *gin.Context) {
	s.Engine.Stop()
	c.String(http.StatusOK, "Bot stopped")
}

// status returns the engine snapshot.
func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, s.Engine.Snapshot())
}

func (s *Server) health(c *gin.Context) {
	snap := s.Engine.Snapshot()
	if !snap.Initialized {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "initializing"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "state": snap.State})
}

func (s *Server) getSystemStatus(c *gin.Context) {
	mode := "LIVE"
	if s.Meta.DryRun {
		mode = "DRY_RUN"
	}
	c.JSON(http.StatusOK, gin.H{
		"mode":          mode,
		"dry_run":       s.Meta.DryRun,
		"venue":         s.Meta.Venue,
		"symbol":        s.Meta.Symbol,
		"use_mock_feed": s.Meta.UseMockFeed,
		"version":       s.Meta.Version,
		"state":         s.Engine.Status(),
		"server_time":   time.Now().UTC(),
	})
}

func (s *Server) getMetrics(c *gin.Context) {
	if s.Metrics == nil {
		respondError(c, http.StatusServiceUnavailable, "METRICS_UNAVAILABLE", "metrics not available")
		return
	}
	c.JSON(http.StatusOK, s.Metrics.GetSnapshot())
}

// getPromMetrics returns a minimal Prometheus text exposition of key metrics.
func (s *Server) getPromMetrics(c *gin.Context) {
	if s.Metrics == nil {
		c.String(http.StatusServiceUnavailable, "# metrics not available\n")
		return
	}
	snapshot := s.Metrics.GetSnapshot()

	var b strings.Builder
	fmt.Fprintf(&b, "band_cycles_total %d\n", snapshot.Cycles)
	fmt.Fprintf(&b, "band_cycles_idle_total %d\n", snapshot.Idle)
	fmt.Fprintf(&b, "band_cycles_no_signal_total %d\n", snapshot.NoSignal)
	fmt.Fprintf(&b, "band_orders_placed_total %d\n", snapshot.OrdersPlaced)
	fmt.Fprintf(&b, "band_order_failures_total %d\n", snapshot.OrderFailures)
	fmt.Fprintf(&b, "band_feed_failures_total %d\n", snapshot.FeedFailures)
	fmt.Fprintf(&b, "band_api_requests_total %d\n", snapshot.APIRequests)
	fmt.Fprintf(&b, "band_api_errors_total %d\n", snapshot.APIErrors)

	writeLatency := func(prefix string, ls monitor.LatencyStats) {
		if ls.Count == 0 {
			return
		}
		fmt.Fprintf(&b, "band_%s_latency_ms_avg %f\n", prefix, ls.Avg)
		fmt.Fprintf(&b, "band_%s_latency_ms_p50 %f\n", prefix, ls.P50)
		fmt.Fprintf(&b, "band_%s_latency_ms_p95 %f\n", prefix, ls.P95)
		fmt.Fprintf(&b, "band_%s_latency_ms_p99 %f\n", prefix, ls.P99)
	}
	writeLatency("feed", snapshot.FeedLatency)
	writeLatency("order", snapshot.OrderLatency)
	writeLatency("api", snapshot.APILatency)

	running := 0
	if s.Engine.Status() == engine.Running {
		running = 1
	}
	fmt.Fprintf(&b, "band_running %d\n", running)
	fmt.Fprintf(&b, "band_goroutines %d\n", snapshot.GoroutineCount)
	fmt.Fprintf(&b, "band_heap_alloc_bytes %d\n", snapshot.HeapAlloc)

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.String(http.StatusOK, b.String())
}

// staticFallback serves files from the static directory at the root, so
// /index.html works as well as /static/index.html.
func (s *Server) staticFallback(c *gin.Context) {
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "no such route")
		return
	}
	rel := filepath.Clean("/" + c.Request.URL.Path)
	f, err := os.Open(filepath.Join(s.Meta.StaticDir, rel))
	if err != nil {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "no such route")
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "no such route")
		return
	}
	// ServeFile would redirect /index.html to /, which is the greeting route.
	http.ServeContent(c.Writer, c.Request, info.Name(), info.ModTime(), f)
}
