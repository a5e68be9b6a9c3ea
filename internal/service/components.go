package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/xkilldash9x/rvlookup/internal/api"
	"github.com/xkilldash9x/rvlookup/internal/lookup"
	"github.com/xkilldash9x/rvlookup/internal/observability"
)

// Components holds everything a command needs to run searches, and owns
// their shutdown order.
type Components struct {
	Launcher lookup.Launcher
	Engine   *lookup.Engine
	Server   *api.Server
	Metrics  *observability.Metrics
	Registry *prometheus.Registry

	logger *zap.Logger
}

// Shutdown closes the launcher, which releases every open session and the
// browser process behind them. Stop the HTTP server before calling it.
func (c *Components) Shutdown(ctx context.Context) error {
	if c == nil {
		return nil
	}
	logger := c.logger
	if logger == nil {
		logger = observability.GetLogger()
	}
	logger.Debug("Beginning components shutdown sequence.")

	var errs []error
	if c.Engine != nil {
		if n := c.Engine.Active(); n > 0 {
			logger.Warn("Shutting down with searches in flight.", zap.Int64("active", n))
		}
	}
	if c.Launcher != nil {
		if err := c.Launcher.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close launcher: %w", err))
		} else {
			logger.Debug("Launcher closed.")
		}
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	logger.Info("All components shut down successfully.")
	return nil
}
