package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/nerrad567/gray-logic-notify/internal/audit"
	"github.com/nerrad567/gray-logic-notify/internal/device"
	"github.com/nerrad567/gray-logic-notify/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-notify/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-notify/internal/reactive"
	"github.com/nerrad567/gray-logic-notify/internal/sources"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// healthCheckTimeout bounds each dependency check made by GET /health.
const healthCheckTimeout = 2 * time.Second

// SourceProvider exposes the current store and its projections.
// *device.Manager implements it.
type SourceProvider interface {
	AwaitCurrent(ctx context.Context, timeout time.Duration) (*device.Store, error)
	AllDevices() *reactive.Feed[[]device.Device]
	EnabledDevices() *reactive.Feed[[]device.Device]
}

// Toggler changes enabled flags. *sources.Engine implements it.
type Toggler interface {
	ToggleDevice(ctx context.Context, address string) (*device.Device, error)
	SetDeviceEnabled(ctx context.Context, address string, enabled bool) (*device.Device, error)
}

// Syncer runs a probe-driven reconciliation. *sources.Watcher implements it.
type Syncer interface {
	Resync(ctx context.Context) (sources.Report, error)
}

// HealthChecker is implemented by every infrastructure client.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config       config.APIConfig
	WS           config.WebSocketConfig
	Security     config.SecurityConfig
	Logger       *logging.Logger
	Sources      SourceProvider
	Toggler      Toggler
	Syncer       Syncer           // optional: POST /sources/sync returns 503 without it
	Audit        audit.Repository // optional: GET /audit returns 503 without it
	AwaitTimeout time.Duration
	Checks       map[string]HealthChecker
	Version      string
}

// Server is the HTTP API server for graynotify.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg          config.APIConfig
	wsCfg        config.WebSocketConfig
	secCfg       config.SecurityConfig
	logger       *logging.Logger
	sources      SourceProvider
	toggler      Toggler
	syncer       Syncer
	auditRepo    audit.Repository
	auditCh      chan *audit.AuditLog
	awaitTimeout time.Duration
	checks       map[string]HealthChecker
	version      string
	startedAt    time.Time
	limiter      *rate.Limiter
	tickets      *ticketStore
	server       *http.Server
	hub          *Hub
	cancel       context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Sources == nil {
		return nil, fmt.Errorf("source provider is required")
	}
	if deps.Toggler == nil {
		return nil, fmt.Errorf("toggler is required")
	}
	if deps.AwaitTimeout <= 0 {
		deps.AwaitTimeout = sources.DefaultAwaitTimeout
	}

	s := &Server{
		cfg:          deps.Config,
		wsCfg:        deps.WS,
		secCfg:       deps.Security,
		logger:       deps.Logger,
		sources:      deps.Sources,
		toggler:      deps.Toggler,
		syncer:       deps.Syncer,
		auditRepo:    deps.Audit,
		awaitTimeout: deps.AwaitTimeout,
		checks:       deps.Checks,
		version:      deps.Version,
		startedAt:    time.Now(),
		tickets:      newTicketStore(),
	}
	if rl := deps.Security.RateLimit; rl.Enabled && rl.RequestsPerMinute > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(float64(rl.RequestsPerMinute)/60), rl.RequestsPerMinute)
	}
	if s.auditRepo != nil {
		s.auditCh = make(chan *audit.AuditLog, auditChanSize)
	}
	s.hub = NewHub(s.wsCfg, s.logger)
	s.hub.snapshot = s.latestForChannel
	return s, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, forwards projection emissions to subscribed
// clients, and launches the HTTP listener in a background goroutine. The
// server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	go s.tickets.cleanLoop(srvCtx)
	go s.forwardProjections(srvCtx)
	if s.auditCh != nil {
		go s.drainAuditLog(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}

// forwardProjections broadcasts every emission of the two projections to the
// matching WebSocket channel until ctx is done.
func (s *Server) forwardProjections(ctx context.Context) {
	allSub := s.sources.AllDevices().Subscribe()
	defer allSub.Close()
	enabledSub := s.sources.EnabledDevices().Subscribe()
	defer enabledSub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case list, ok := <-allSub.C():
			if !ok {
				return
			}
			s.hub.Broadcast(ChannelSourcesAll, nonNil(list))
		case list, ok := <-enabledSub.C():
			if !ok {
				return
			}
			s.hub.Broadcast(ChannelSourcesEnabled, nonNil(list))
		}
	}
}

// latestForChannel returns the last projection value for a channel, sent to
// a client as soon as it subscribes.
func (s *Server) latestForChannel(channel string) (any, bool) {
	var feed *reactive.Feed[[]device.Device]
	switch channel {
	case ChannelSourcesAll:
		feed = s.sources.AllDevices()
	case ChannelSourcesEnabled:
		feed = s.sources.EnabledDevices()
	default:
		return nil, false
	}
	list, ok := feed.Latest()
	if !ok {
		return nil, false
	}
	return nonNil(list), true
}

func nonNil(list []device.Device) []device.Device {
	if list == nil {
		return []device.Device{}
	}
	return list
}
