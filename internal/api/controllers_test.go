package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"band-trader/internal/engine"
	"band-trader/internal/events"
	"band-trader/internal/monitor"
	"band-trader/internal/order"
	"band-trader/internal/volatility"
)

type fakeEngine struct {
	mu          sync.Mutex
	state       engine.RunState
	initialized bool
	starts      int
	stops       int
}

func (f *fakeEngine) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	f.state = engine.Running
}

func (f *fakeEngine) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.state = engine.Stopped
}

func (f *fakeEngine) Status() engine.RunState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeEngine) calls() (starts, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops
}

func (f *fakeEngine) Snapshot() engine.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap := engine.Snapshot{State: f.state, Initialized: f.initialized, Symbol: "SOLUSDT"}
	if f.initialized {
		snap.Thresholds = &volatility.Thresholds{Low: 97.17, High: 102.83}
	}
	return snap
}

type testEnv struct {
	ts      *httptest.Server
	eng     *fakeEngine
	bus     *events.Bus
	metrics *monitor.SystemMetrics
}

func newTestAPIServer(t *testing.T, opts Options) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	static := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(static, "index.html"), []byte("<h1>band</h1>"), 0o600))

	l := logrus.New()
	l.SetOutput(io.Discard)

	env := &testEnv{
		eng:     &fakeEngine{initialized: true},
		bus:     events.NewBus(),
		metrics: monitor.NewSystemMetrics(),
	}
	server := NewServer(env.eng, env.bus, env.metrics, l, SystemMeta{
		DryRun:    true,
		Venue:     "dry-run",
		Symbol:    "SOLUSDT",
		StaticDir: static,
		Version:   "test",
	}, opts)

	env.ts = httptest.NewServer(server.Router)
	t.Cleanup(env.ts.Close)
	return env
}

func doRequest(t *testing.T, method, url string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestStartStopEndpoints(t *testing.T) {
	env := newTestAPIServer(t, Options{})

	status, body := doRequest(t, http.MethodPost, env.ts.URL+"/start")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Bot started", body)
	assert.Equal(t, engine.Running, env.eng.Status())

	// repeated start is still 200
	status, _ = doRequest(t, http.MethodPost, env.ts.URL+"/start")
	assert.Equal(t, http.StatusOK, status)

	status, body = doRequest(t, http.MethodPost, env.ts.URL+"/stop")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Bot stopped", body)
	assert.Equal(t, engine.Stopped, env.eng.Status())
	starts, stops := env.eng.calls()
	assert.Equal(t, 2, starts)
	assert.Equal(t, 1, stops)
}

func TestStartRequiresPost(t *testing.T) {
	env := newTestAPIServer(t, Options{})
	status, _ := doRequest(t, http.MethodGet, env.ts.URL+"/start")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, engine.Stopped, env.eng.Status())
}

func TestIndexAndStatic(t *testing.T) {
	env := newTestAPIServer(t, Options{})

	status, body := doRequest(t, http.MethodGet, env.ts.URL+"/")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Hello, world!", body)

	status, body = doRequest(t, http.MethodGet, env.ts.URL+"/static/index.html")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "band")

	status, body = doRequest(t, http.MethodGet, env.ts.URL+"/index.html")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "band")

	status, _ = doRequest(t, http.MethodGet, env.ts.URL+"/../../etc/passwd")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestStaticFallbackServesIndexWithoutRedirect(t *testing.T) {
	env := newTestAPIServer(t, Options{})
	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}

	resp, err := client.Get(env.ts.URL + "/index.html")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Location"))
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Equal(t, "<h1>band</h1>", string(body))
}

func TestStatusAndHealth(t *testing.T) {
	env := newTestAPIServer(t, Options{})
	env.eng.Start()

	status, body := doRequest(t, http.MethodGet, env.ts.URL+"/status")
	require.Equal(t, http.StatusOK, status)
	var snap struct {
		State      string `json:"state"`
		Thresholds struct {
			Low  float64 `json:"low"`
			High float64 `json:"high"`
		} `json:"thresholds"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &snap))
	assert.Equal(t, "running", snap.State)
	assert.Equal(t, 97.17, snap.Thresholds.Low)

	status, _ = doRequest(t, http.MethodGet, env.ts.URL+"/health")
	assert.Equal(t, http.StatusOK, status)

	env.eng.mu.Lock()
	env.eng.initialized = false
	env.eng.mu.Unlock()
	status, _ = doRequest(t, http.MethodGet, env.ts.URL+"/health")
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestMetricsEndpoints(t *testing.T) {
	env := newTestAPIServer(t, Options{})
	env.metrics.IncrementOrders()

	doRequest(t, http.MethodGet, env.ts.URL+"/")
	status, body := doRequest(t, http.MethodGet, env.ts.URL+"/api/metrics")
	require.Equal(t, http.StatusOK, status)
	var snap monitor.MetricsSnapshot
	require.NoError(t, json.Unmarshal([]byte(body), &snap))
	assert.Equal(t, uint64(1), snap.OrdersPlaced)
	assert.GreaterOrEqual(t, snap.APIRequests, uint64(1))

	status, body = doRequest(t, http.MethodGet, env.ts.URL+"/api/metrics/prom")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "band_orders_placed_total 1")
	assert.Contains(t, body, "band_running 0")
}

func TestRequestIDEchoed(t *testing.T) {
	env := newTestAPIServer(t, Options{})

	req, err := http.NewRequest(http.MethodGet, env.ts.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "abc-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "abc-123", resp.Header.Get("X-Request-ID"))

	resp, err = http.Get(env.ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestRateLimit(t *testing.T) {
	env := newTestAPIServer(t, Options{RateLimit: 0.001, RateBurst: 2})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		status, _ := doRequest(t, http.MethodGet, env.ts.URL+"/health")
		codes = append(codes, status)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestIPLimiterEvictsIdleBuckets(t *testing.T) {
	l := NewIPLimiter(1, 1)
	l.idleTTL = time.Millisecond
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))

	time.Sleep(5 * time.Millisecond)
	assert.True(t, l.Allow("10.0.0.2"))

	l.mu.Lock()
	_, kept := l.limiters["10.0.0.1"]
	l.mu.Unlock()
	assert.False(t, kept)
}

func TestWebsocketStreamsCycles(t *testing.T) {
	env := newTestAPIServer(t, Options{})

	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var first wsMessage
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, events.Event("snapshot"), first.Type)

	require.Eventually(t, func() bool { return env.bus.Subscribers(events.EventCycle) == 1 }, time.Second, time.Millisecond)
	env.bus.Publish(events.EventCycle, engine.CycleOutcome{Kind: engine.OutcomeNoSignal, Price: 100})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type string              `json:"type"`
		Data engine.CycleOutcome `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "cycle", msg.Type)
	assert.Equal(t, engine.OutcomeNoSignal, msg.Data.Kind)
	assert.Equal(t, 100.0, msg.Data.Price)
}

func TestWebsocketForwardsOrderEvents(t *testing.T) {
	env := newTestAPIServer(t, Options{})

	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var first wsMessage
	require.NoError(t, conn.ReadJSON(&first))
	require.Eventually(t, func() bool { return env.bus.Subscribers(events.EventOrderRejected) == 1 }, time.Second, time.Millisecond)

	env.bus.Publish(events.EventOrderRejected, &order.ExecutionError{OrderID: "o-9", Reason: "venue timeout"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type string `json:"type"`
		Data struct {
			OrderID string `json:"order_id"`
			Reason  string `json:"reason"`
		} `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "order.rejected", msg.Type)
	assert.Equal(t, "o-9", msg.Data.OrderID)
	assert.Equal(t, "venue timeout", msg.Data.Reason)
}
