// Package service wires configuration into the running pieces of rvlookup:
// the browser launcher, the lookup engine, metrics and the HTTP facade.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/xkilldash9x/rvlookup/internal/api"
	"github.com/xkilldash9x/rvlookup/internal/config"
	"github.com/xkilldash9x/rvlookup/internal/lookup"
	"github.com/xkilldash9x/rvlookup/internal/observability"
)

const cleanupTimeout = 15 * time.Second

// ComponentFactory creates the components for one command invocation.
// Commands depend on this interface so tests can substitute their own.
type ComponentFactory interface {
	Create(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error)
}

// LauncherFunc builds the session launcher for a configuration.
type LauncherFunc func(cfg *config.Config, logger *zap.Logger) (lookup.Launcher, error)

type concreteFactory struct {
	newLauncher LauncherFunc
}

// NewComponentFactory creates the production factory.
func NewComponentFactory() ComponentFactory {
	return &concreteFactory{newLauncher: InitializeLauncher}
}

// NewComponentFactoryWithLauncher creates a factory that builds its launcher
// with fn instead of selecting a backend from the configuration.
func NewComponentFactoryWithLauncher(fn LauncherFunc) ComponentFactory {
	return &concreteFactory{newLauncher: fn}
}

// Create handles dependency injection for the launcher, engine and server.
func (f *concreteFactory) Create(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	components := &Components{logger: logger}

	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
			defer cancel()
			_ = components.Shutdown(shutdownCtx)
		}
	}()

	if err := ctx.Err(); err != nil {
		initializationErr = err
		return nil, initializationErr
	}

	// 1. Metrics
	components.Registry = prometheus.NewRegistry()
	components.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	components.Metrics = observability.NewMetrics(components.Registry)

	// 2. Launcher
	launcher, err := f.newLauncher(cfg, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize browser launcher: %w", err)
		return nil, initializationErr
	}
	components.Launcher = launcher
	logger.Debug("Browser launcher initialized.", zap.String("backend", cfg.Browser.Backend))

	// 3. Engine
	engine, err := lookup.New(launcher, cfg.Search,
		lookup.WithLogger(logger),
		lookup.WithObserver(components.Metrics),
	)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize lookup engine: %w", err)
		return nil, initializationErr
	}
	components.Engine = engine
	logger.Debug("Lookup engine initialized.", zap.Int("max_sessions", cfg.Search.MaxSessions))

	// 4. HTTP facade
	components.Server = api.NewServer(cfg.Server, engine, logger,
		api.WithMetrics(components.Metrics, components.Registry),
	)
	logger.Debug("HTTP server initialized.", zap.String("addr", cfg.Server.Addr()))

	return components, nil
}
