package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/cmabridge/internal/common"
	"github.com/ternarybob/cmabridge/internal/handlers"
	"github.com/ternarybob/cmabridge/internal/httpclient"
	"github.com/ternarybob/cmabridge/internal/interfaces"
	"github.com/ternarybob/cmabridge/internal/services/browser"
	"github.com/ternarybob/cmabridge/internal/services/capture"
	"github.com/ternarybob/cmabridge/internal/services/graphql"
	"github.com/ternarybob/cmabridge/internal/services/loginstate"
	"github.com/ternarybob/cmabridge/internal/services/profiles"
	"github.com/ternarybob/cmabridge/internal/services/session"
	"github.com/ternarybob/cmabridge/internal/services/topology"
	"github.com/ternarybob/cmabridge/internal/storage"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// Services
	Profiles     *profiles.Store
	Driver       interfaces.LoginDriver
	Sessions     *session.Manager
	Executor     *graphql.Executor
	LoginState   *loginstate.Service
	Topology     *topology.Aggregator
	CaptureStore *capture.FileStore // nil when capture is disabled
	Capture      *capture.Safe
	Pruner       *capture.Pruner

	// Handlers
	APIHandler     *handlers.APIHandler
	CMAHandler     *handlers.CMAHandler
	NetworkHandler *handlers.NetworkHandler
	WSHandler      *handlers.WebSocketHandler
}

// New initializes the application and all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	// Initialize database
	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Initialize services
	if err := app.initServices(); err != nil {
		app.StorageManager.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	// Initialize handlers
	app.initHandlers()

	logger.Info().
		Str("tenant", cfg.CMA.Tenant).
		Str("driver", app.Driver.Name()).
		Bool("capture_enabled", cfg.Capture.Enabled).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer (Badger) and settles attempts left by a previous run
func (a *App) initDatabase() error {
	storageManager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}
	a.StorageManager = storageManager

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	count, err := storageManager.LoginAttemptStorage().MarkInterrupted(ctx)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to mark interrupted login attempts")
	} else if count > 0 {
		a.Logger.Info().Int("count", count).Msg("Marked interrupted login attempts as failed")
	}

	return nil
}

func (a *App) initServices() error {
	// 1. Credential profiles; a malformed file fails startup
	a.Profiles = profiles.NewStore(a.Config.Profiles.File, a.Logger)
	if _, err := a.Profiles.Load(); err != nil {
		return err
	}

	// 2. Login driver
	driver, err := browser.NewDriver(a.Config, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create login driver: %w", err)
	}
	a.Driver = driver

	// 3. Response capture
	var inner interfaces.ResponseCapture = capture.NoopStore{}
	if a.Config.Capture.Enabled {
		a.CaptureStore = capture.NewFileStore(a.Config.Capture.Dir, a.Logger)
		inner = a.CaptureStore

		a.Pruner = capture.NewPruner(a.CaptureStore, a.Config.CaptureRetention(), a.Logger)
		if err := a.Pruner.Start(a.Config.Capture.PruneSchedule); err != nil {
			return fmt.Errorf("failed to start capture pruner: %w", err)
		}
	}
	a.Capture = capture.NewSafe(inner, a.Logger)

	// 4. Session manager and the bridged HTTP client
	client := httpclient.NewDefaultHTTPClient(a.Config.RequestTimeout())
	a.Sessions = session.NewManager(
		a.StorageManager.SessionStorage(),
		a.Profiles,
		a.Driver,
		session.TargetFromConfig(a.Config, client),
		a.Logger,
		session.WithDeleteOnShutdown(a.Config.Session.DeleteOnShutdown),
		session.WithAttemptStorage(a.StorageManager.LoginAttemptStorage()),
	)

	// 5. GraphQL executor, login state and topology
	a.Executor = graphql.NewExecutor(
		graphql.WithLogger(a.Logger),
		graphql.WithRateLimit(a.Config.CMA.RateLimit),
		graphql.WithTimeout(a.Config.RequestTimeout()),
		graphql.WithCapture(a.Capture),
	)
	a.LoginState = loginstate.NewService(a.Sessions, a.Executor, a.Config.AccountNames, a.Logger)
	a.Topology = topology.NewAggregator(a.Sessions, a.LoginState, a.Executor, a.Config.Topology.Concurrency, a.Logger)

	return nil
}

func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler(a.Logger)
	a.CMAHandler = handlers.NewCMAHandler(
		a.Sessions,
		a.LoginState,
		a.Profiles,
		a.Executor,
		a.StorageManager.LoginAttemptStorage(),
		a.Config.Profiles.Default,
		a.Logger,
	)
	a.NetworkHandler = handlers.NewNetworkHandler(a.Topology, a.Logger)
	a.WSHandler = handlers.NewWebSocketHandler(a.LoginState, a.Logger)

	// Registered after the login state service so its cache is already invalidated when the push reads status
	a.Sessions.OnSessionChange(a.WSHandler.OnSessionChange)
}

// Close shuts services down in reverse order of creation
func (a *App) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Cancel any running login and optionally drop the snapshot
	if a.Sessions != nil {
		if err := a.Sessions.Cleanup(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("Session cleanup failed")
		}
	}

	if a.WSHandler != nil {
		a.WSHandler.Close()
	}

	if a.Pruner != nil {
		a.Pruner.Stop()
	}

	// Let in-flight captures land before the directory is removed
	if a.Capture != nil {
		a.Capture.Wait()
	}
	if a.CaptureStore != nil && !a.Config.Capture.KeepOnExit {
		if err := a.CaptureStore.Cleanup(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to remove captured responses")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
