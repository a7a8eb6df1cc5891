// Package server wires configuration, storage, services and transports
// together and runs them until a termination signal arrives.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/dmitrijs2005/gophvault/internal/server/blobstore"
	"github.com/dmitrijs2005/gophvault/internal/server/config"
	"github.com/dmitrijs2005/gophvault/internal/server/httpapi"
	"github.com/dmitrijs2005/gophvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophvault/internal/server/services"

	gs "github.com/dmitrijs2005/gophvault/internal/server/grpc"
)

// sqlOpen is a seam for tests.
var sqlOpen = sql.Open

// pendingReaper clears uploads abandoned between the row insert and the
// ready mark.
type pendingReaper interface {
	ReapStalePending(ctx context.Context) (int, error)
}

type App struct {
	config       *config.Config
	logger       logging.Logger
	db           *sql.DB
	repomanager  repomanager.RepositoryManager
	httpServer   *httpapi.Server
	healthServer *gs.HealthServer
	reaper       pendingReaper
}

func NewApp(c *config.Config) (*App, error) {

	logger := logging.New(os.Stdout, c.LogLevel)

	db, err := sqlOpen("pgx", c.DSN())
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	store, err := blobstore.New(c)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()

	us := services.NewUserService(db, rm, c)
	fs := services.NewFileService(db, rm, store, c, logger.With("module", "file_service"))

	return &App{
		config:       c,
		logger:       logger,
		db:           db,
		repomanager:  rm,
		httpServer:   httpapi.NewServer(c, us, fs, logger),
		healthServer: gs.NewHealthServer(c.GRPCHealthAddr, logger, db),
		reaper:       fs,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startServer(ctx context.Context, cancelFunc context.CancelFunc, name string, run func(context.Context) error) error {
	if err := run(ctx); err != nil {
		app.logger.Error(ctx, "server failed", "server", name, "error", err)
		cancelFunc()
		return fmt.Errorf("%s server: %w", name, err)
	}
	return nil
}

// reapStalePending runs the reaper once at start and then every
// PendingFileTTL until ctx is done.
func (app *App) reapStalePending(ctx context.Context) {
	ttl := app.config.PendingFileTTL
	if ttl <= 0 {
		return
	}

	reap := func() {
		n, err := app.reaper.ReapStalePending(ctx)
		if err != nil {
			if ctx.Err() == nil {
				app.logger.Error(ctx, "stale upload reaping failed", "error", err)
			}
			return
		}
		if n > 0 {
			app.logger.Info(ctx, "stale uploads reaped", "count", n)
		}
	}

	reap()
	ticker := time.NewTicker(ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reap()
		}
	}
}

// Run applies migrations and serves HTTP and gRPC health until ctx is
// cancelled, a signal arrives or either server fails.
func (app *App) Run(ctx context.Context) error {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	defer func() {
		if err := app.db.Close(); err != nil {
			app.logger.Error(ctx, "db close error", "error", err)
		}
	}()

	app.logger.Info(ctx, "Starting app...")

	if err := app.repomanager.RunMigrations(ctx, app.db); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	app.initSignalHandler(cancelFunc)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	serve := func(name string, run func(context.Context) error) {
		defer wg.Done()
		if err := app.startServer(ctx, cancelFunc, name, run); err != nil {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}
	}

	wg.Add(3)
	go serve("http", app.httpServer.Run)
	go serve("grpc_health", app.healthServer.Run)
	go func() {
		defer wg.Done()
		app.reapStalePending(ctx)
	}()

	wg.Wait()

	app.logger.Info(ctx, "App stopped")
	return errors.Join(errs...)
}
