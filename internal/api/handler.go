package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"band-trader/internal/engine"
	"band-trader/internal/events"
	"band-trader/internal/monitor"
)

// Server wires the HTTP control plane around the trading engine.
type Server struct {
	Router  *gin.Engine
	Engine  engine.Service
	Bus     *events.Bus
	Metrics *monitor.SystemMetrics
	Log     logrus.FieldLogger
	Meta    SystemMeta

	mu      sync.Mutex
	httpSrv *http.Server
}

// SystemMeta describes runtime status exposed to the UI.
type SystemMeta struct {
	DryRun      bool   `json:"dry_run"`
	Venue       string `json:"venue"`
	Symbol      string `json:"symbol"`
	UseMockFeed bool   `json:"use_mock_feed"`
	StaticDir   string `json:"-"`
	Version     string `json:"version"`
}

// Options tunes the middleware stack. Zero values pick the defaults.
type Options struct {
	RateLimit      float64 // requests per second per client IP
	RateBurst      int
	RequestTimeout time.Duration
}

func NewServer(eng engine.Service, bus *events.Bus, metrics *monitor.SystemMetrics, log logrus.FieldLogger, meta SystemMeta, opts Options) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 20
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 50
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	log = log.WithField("component", "api")

	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(log, metrics))
	r.Use(RateLimitMiddleware(NewIPLimiter(opts.RateLimit, opts.RateBurst), log))
	r.Use(TimeoutMiddleware(opts.RequestTimeout))
	r.Use(CORSMiddleware())

	s := &Server{
		Router:  r,
		Engine:  eng,
		Bus:     bus,
		Metrics: metrics,
		Log:     log,
		Meta:    meta,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/", s.index)
	s.Router.POST("/start", s.startBot)
	s.Router.POST("/stop", s.stopBot)
	s.Router.GET("/status", s.status)
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		api.GET("/system/status", s.getSystemStatus)
		api.GET("/metrics", s.getMetrics)
		api.GET("/metrics/prom", s.getPromMetrics)
	}

	if s.Meta.StaticDir != "" {
		s.Router.Static("/static", s.Meta.StaticDir)
		s.Router.NoRoute(s.staticFallback)
	}
}

// Start serves on addr until Shutdown. http.ErrServerClosed is not an error.
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.httpSrv = srv
	s.mu.Unlock()

	s.Log.WithField("addr", addr).Info("control plane listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpSrv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
