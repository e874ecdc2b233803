// Package app wires together configuration, logging, the router actor,
// and the HTTP edge into a runnable server: construct in New, block in
// Run, handle OS signals for graceful shutdown.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pion/logging"

	"game-room-router/internal/config"
	"game-room-router/internal/edge"
	"game-room-router/internal/router"
)

// App holds the running server's top-level components.
type App struct {
	cfg        *config.Config
	log        logging.LeveledLogger
	httpServer *http.Server
	router     *router.Router
	routerDone context.CancelFunc
}

// New loads configuration and constructs the router and HTTP edge, but
// does not yet start either — call Run for that.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("app: loading config: %w", err)
	}

	log := createLogger(cfg)
	log.Infof("resolved configuration: listen_port=%d debug_mode=%v log_level=%s server_uuid=%s",
		cfg.ListenPort, cfg.DebugMode, cfg.LogLevel, cfg.ServerUUID)

	rooms := router.NewRoomList()
	var serverJoined atomic.Bool

	r := router.New(log, rooms, &serverJoined)
	e := edge.New(log, cfg.ServerUUID, r, rooms, &serverJoined)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ListenPort),
		Handler:      e.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &App{
		cfg:        cfg,
		log:        log,
		httpServer: httpServer,
		router:     r,
	}, nil
}

// Run starts the router actor and the HTTP server and blocks until a
// termination signal or a fatal server error, then shuts both down.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	a.routerDone = cancel
	go a.router.Run(ctx)

	serverErrors := make(chan error, 1)
	go func() {
		a.log.Infof("starting HTTP server on %s", a.httpServer.Addr)
		serverErrors <- a.httpServer.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		a.log.Infof("received signal: %v, initiating graceful shutdown", sig)
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			a.log.Errorf("server error: %v", err)
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	a.log.Infof("shutting down HTTP server...")
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.log.Errorf("server shutdown error: %v", err)
		return err
	}

	a.log.Infof("stopping router...")
	a.routerDone()

	a.log.Infof("shutdown complete")
	return nil
}

func createLogger(cfg *config.Config) logging.LeveledLogger {
	factory := logging.NewDefaultLoggerFactory()

	switch cfg.LogLevel {
	case "debug":
		factory.DefaultLogLevel = logging.LogLevelDebug
	case "warn":
		factory.DefaultLogLevel = logging.LogLevelWarn
	case "error":
		factory.DefaultLogLevel = logging.LogLevelError
	default:
		factory.DefaultLogLevel = logging.LogLevelInfo
	}

	return factory.NewLogger("game-room-router")
}
