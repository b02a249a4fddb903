package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/private-judge/judge-api/config"
	"github.com/private-judge/judge-api/internal/adapters/workerauth"
	httpx "github.com/private-judge/judge-api/internal/http"
	"github.com/private-judge/judge-api/internal/service"
)

// writeTimeoutSlack is added to the long-poll cap so a full wait still gets its response out.
const writeTimeoutSlack = 30 * time.Second

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Workers  workerauth.Verifier
	Health   httpx.HealthCheck
	Logger   *slog.Logger
	// ErrCh receives the listener error if the server stops unexpectedly (optional).
	ErrCh chan<- error
}

// BuildWorkerVerifier creates the verifier protecting the worker routes.
//
//nolint:ireturn // the configured mode decides the concrete verifier
func BuildWorkerVerifier(ctx context.Context, cfg config.WorkerAuthConfig, logger *slog.Logger) (workerauth.Verifier, error) {
	verifier, err := workerauth.New(ctx, cfg, nil)
	if err != nil {
		return nil, err
	}
	if cfg.Mode == config.WorkerAuthNone && logger != nil {
		logger.WarnContext(ctx, "worker routes are unauthenticated", "mode", cfg.Mode)
	}
	return verifier, nil
}

// StartHTTPServer creates and starts the HTTP server.
// Returns the server instance for graceful shutdown.
func StartHTTPServer(cfg *HTTPServerConfig) *http.Server {
	if cfg == nil {
		return nil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	services := httpx.RouterServices{
		Jobs:     cfg.Services.Jobs,
		Rooms:    cfg.Services.Rooms,
		Motions:  cfg.Services.Motions,
		Debates:  cfg.Services.Debates,
		Verdicts: cfg.Services.Verdicts,
		Workers:  cfg.Workers,
		Health:   cfg.Health,
		MaxWait:  appCfg.HTTP.MaxWait,
		Logger:   logger,
	}

	handler := buildHTTPHandler(httpHandlerConfig{
		Logger:   logger,
		Services: services,
		HTTP:     appCfg.HTTP,
	})

	return startServer(logger, handler, appCfg.HTTP, cfg.ErrCh)
}

type httpHandlerConfig struct {
	Logger   *slog.Logger
	Services httpx.RouterServices
	HTTP     config.HTTPConfig
}

func buildHTTPHandler(cfg httpHandlerConfig) http.Handler {
	router := httpx.NewRouter(cfg.Services)

	// Order: Recover -> Logging -> LimitBody -> Router
	h := httpx.LimitBody(cfg.HTTP.MaxBodyBytes)(router)
	h = httpx.Logging(cfg.Logger)(h)
	h = httpx.Recover(cfg.Logger)(h)

	if cfg.HTTP.H2CEnabled {
		cfg.Logger.Info("cleartext HTTP/2 enabled")
		h = h2c.NewHandler(h, &http2.Server{})
	}
	return h
}

func startServer(logger *slog.Logger, handler http.Handler, cfg config.HTTPConfig, errCh chan<- error) *http.Server {
	addr := cfg.Addr
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		addr = ":8080"
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.MaxWait + writeTimeoutSlack,
		IdleTimeout:       120 * time.Second,
	}

	// Request contexts derive from baseCtx so Shutdown ends in-flight long polls.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	server.BaseContext = func(net.Listener) context.Context { return baseCtx }
	server.RegisterOnShutdown(cancelBase)

	go func() {
		logger.Info("starting HTTP server", "addr", server.Addr, "h2c", cfg.H2CEnabled)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
			if errCh != nil {
				select {
				case errCh <- err:
				default:
				}
			}
		}
	}()

	return server
}

// ShutdownConfig contains dependencies for HTTP server shutdown.
type ShutdownConfig struct {
	Context    context.Context
	Server     *http.Server
	JobService *service.JobService
	Logger     *slog.Logger
}

// ShutdownHTTPServer gracefully shuts down the HTTP server.
func ShutdownHTTPServer(cfg ShutdownConfig) error {
	if cfg.Server == nil {
		return nil
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("shutting down HTTP server")
	}

	// Stop job service listeners first
	if cfg.JobService != nil {
		cfg.JobService.StopAllListeners()
	}

	shutdownCtx, cancel := context.WithTimeout(cfg.Context, 10*time.Second)
	defer cancel()

	if err := cfg.Server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("HTTP server stopped")
	}

	return nil
}
