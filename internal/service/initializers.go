package service

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/rvlookup/internal/browser"
	"github.com/xkilldash9x/rvlookup/internal/browser/rodbackend"
	"github.com/xkilldash9x/rvlookup/internal/browser/simulated"
	"github.com/xkilldash9x/rvlookup/internal/config"
	"github.com/xkilldash9x/rvlookup/internal/lookup"
)

// InitializeLauncher creates the session launcher for the configured backend.
// No browser process is started here; the real backends launch lazily on the
// first acquisition.
func InitializeLauncher(cfg *config.Config, logger *zap.Logger) (lookup.Launcher, error) {
	switch cfg.Browser.Backend {
	case config.BackendChromedp:
		logger.Info("Using chromedp browser backend.", zap.Bool("headless", cfg.Browser.Headless))
		return browser.NewManager(cfg, logger), nil
	case config.BackendRod:
		logger.Info("Using rod browser backend.", zap.Bool("headless", cfg.Browser.Headless))
		return rodbackend.New(cfg, logger), nil
	case config.BackendSimulated:
		logger.Warn("Using simulated browser backend; results come from the built-in demo site, not the live registry.")
		return simulated.NewLauncher(simulated.DemoSite()), nil
	default:
		return nil, fmt.Errorf("unknown browser backend %q", cfg.Browser.Backend)
	}
}
