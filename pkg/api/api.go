package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/telekom/itsmctl/pkg/events"
	"github.com/telekom/itsmctl/pkg/metrics"
	"github.com/telekom/itsmctl/pkg/ratelimit"
	"github.com/telekom/itsmctl/pkg/slamonitor"
	"github.com/telekom/itsmctl/pkg/system"
)

// SnapshotSource is the monitor state the handlers read. *slamonitor.Monitor
// implements it.
type SnapshotSource interface {
	Snapshot() slamonitor.Snapshot
}

// SinkHealthReporter is implemented by *events.QueuedSink.
type SinkHealthReporter interface {
	Health() events.QueuedSinkHealth
}

type Config struct {
	ListenAddress string
	TLSCertFile   string
	TLSKeyFile    string
	Debug         bool
	// CORSOrigins is only applied in debug mode.
	CORSOrigins []string
	// RateLimit with a zero rate disables limiting of the /api routes.
	RateLimit ratelimit.Config
}

type Server struct {
	gin     *gin.Engine
	http    *http.Server
	config  Config
	log     *zap.SugaredLogger
	monitor SnapshotSource
	sinks   []SinkHealthReporter
	limiter *ratelimit.Limiter
}

func NewServer(log *zap.Logger, cfg Config, monitor SnapshotSource, sinks ...SinkHealthReporter) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8080"
	}

	engine := gin.New()
	engine.Use(
		ginzap.Ginzap(log, time.RFC3339, true),
		ginzap.RecoveryWithZap(log, true),
		system.RequestLogger(log.Sugar()),
	)

	if cfg.Debug {
		origins := cfg.CORSOrigins
		if len(origins) == 0 {
			origins = []string{"http://localhost:5173", "http://127.0.0.1:8080"}
		}
		engine.Use(cors.New(cors.Config{
			AllowOrigins: origins,
			AllowMethods: []string{"GET", "OPTIONS"},
			AllowHeaders: []string{"Origin", "Content-Type", system.RequestIDHeader},
			MaxAge:       12 * time.Hour,
		}))
	}

	s := &Server{
		gin:     engine,
		config:  cfg,
		log:     log.Sugar(),
		monitor: monitor,
		sinks:   sinks,
	}

	engine.GET("/healthz", s.healthz)
	engine.GET("/readyz", s.readyz)
	engine.GET("/metrics", gin.WrapH(metrics.MetricsHandler()))

	api := engine.Group("/api")
	if cfg.RateLimit.Enabled() {
		s.limiter = ratelimit.New(cfg.RateLimit)
		api.Use(s.limiter.Middleware())
	}
	api.GET("/violations", s.listViolations)
	api.GET("/violations/:id", s.getViolation)
	api.GET("/stats", s.stats)
	api.GET("/sinks", s.sinkHealth)
	api.GET("/version", s.version)

	s.http = &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the engine wrapped in the otelhttp server handler.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.gin, "sla-monitor")
}

// Listen serves until Shutdown. It returns nil after a graceful shutdown.
func (s *Server) Listen() error {
	s.log.Infow("Starting HTTP server", "address", s.config.ListenAddress, "tls", s.config.TLSCertFile != "")
	var err error
	if s.config.TLSCertFile != "" && s.config.TLSKeyFile != "" {
		err = s.http.ListenAndServeTLS(s.config.TLSCertFile, s.config.TLSKeyFile)
	} else {
		err = s.http.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains open connections and stops the rate limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.Stop()
	}
	return s.http.Shutdown(ctx)
}
