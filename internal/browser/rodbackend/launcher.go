// Package rodbackend drives the license search with go-rod. Each session is a
// page in its own incognito browser context.
package rodbackend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/rvlookup/internal/config"
	"github.com/xkilldash9x/rvlookup/internal/lookup"
)

// Launcher starts one browser process and creates incognito sessions in it.
type Launcher struct {
	cfg    *config.Config
	logger *zap.Logger

	mu       sync.Mutex
	launch   *launcher.Launcher
	browser  *rod.Browser
	sessions map[string]*Session
	closed   bool
}

var _ lookup.Launcher = (*Launcher)(nil)

// New creates a rod launcher. The browser starts on first Acquire.
func New(cfg *config.Config, logger *zap.Logger) *Launcher {
	return &Launcher{
		cfg:      cfg,
		logger:   logger.Named("rod_launcher"),
		sessions: make(map[string]*Session),
	}
}

// newLauncher translates the browser configuration into launcher flags.
func newLauncher(cfg config.BrowserConfig) *launcher.Launcher {
	l := launcher.New().Headless(cfg.Headless).NoSandbox(true).Set(flags.Flag("disable-dev-shm-usage"))
	if cfg.ExecPath != "" {
		path, err := homedir.Expand(cfg.ExecPath)
		if err != nil {
			path = cfg.ExecPath
		}
		l = l.Bin(path)
	}
	if cfg.UserAgent != "" {
		l = l.Set(flags.Flag("user-agent"), cfg.UserAgent)
	}
	if cfg.IgnoreTLSErrors {
		l = l.Set(flags.Flag("ignore-certificate-errors")).Set(flags.Flag("allow-insecure-localhost"))
	}
	for _, raw := range cfg.Args {
		name, val, hasVal := strings.Cut(strings.TrimLeft(raw, "-"), "=")
		if name == "" {
			continue
		}
		if hasVal {
			l = l.Set(flags.Flag(name), val)
		} else {
			l = l.Set(flags.Flag(name))
		}
	}
	return l
}

// ensureBrowser launches and connects the browser once.
func (l *Launcher) ensureBrowser(ctx context.Context) (*rod.Browser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, fmt.Errorf("%w: launcher is shut down", lookup.ErrBackendUnavailable)
	}
	if l.browser != nil {
		err := l.healthCheck(ctx)
		if err == nil {
			return l.browser, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		l.logger.Warn("Stale browser connection detected, relaunching.", zap.Error(err))
		l.teardownLocked()
	}

	launchCtx, cancel := context.WithTimeout(ctx, l.cfg.Browser.LaunchTimeout)
	defer cancel()

	lc := newLauncher(l.cfg.Browser).Context(launchCtx)
	controlURL, err := lc.Launch()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: launch chrome: %w", lookup.ErrBackendUnavailable, err)
	}

	// The connection outlives the request that triggered the launch.
	browser := rod.New().ControlURL(controlURL).Context(context.Background())
	if err := browser.Connect(); err != nil {
		lc.Kill()
		return nil, fmt.Errorf("%w: connect to chrome: %w", lookup.ErrBackendUnavailable, err)
	}
	l.launch, l.browser = lc, browser
	l.logger.Info("Browser launched.", zap.Bool("headless", l.cfg.Browser.Headless))
	return browser, nil
}

// healthCheck asks the connected browser for its version. A half-open
// connection never answers, so the call is bounded by the launch timeout.
func (l *Launcher) healthCheck(ctx context.Context) error {
	checkCtx, cancel := context.WithTimeout(ctx, l.cfg.Browser.LaunchTimeout)
	defer cancel()
	_, err := l.browser.Context(checkCtx).Version()
	return err
}

// Acquire opens a page in a new incognito context and navigates it to targetURL.
func (l *Launcher) Acquire(ctx context.Context, targetURL string) (lookup.Session, error) {
	browser, err := l.ensureBrowser(ctx)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	incognito, err := browser.Context(ctx).Incognito()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: incognito context: %w", lookup.ErrBackendUnavailable, err)
	}
	// The session outlives this call; operations bind their own contexts.
	incognito = incognito.Context(context.Background())
	page, err := incognito.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = incognito.Context(cleanupCtx).Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: create page: %w", lookup.ErrBackendUnavailable, err)
	}
	page = page.Context(context.Background())

	var session *Session
	session = newSession(incognito, page, l.logger, func() {
		l.mu.Lock()
		delete(l.sessions, session.ID())
		l.mu.Unlock()
	})
	l.mu.Lock()
	l.sessions[session.ID()] = session
	l.mu.Unlock()

	search := l.cfg.Search
	if err := session.navigate(ctx, targetURL, search.NavigationTimeout, search.PollInterval); err != nil {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = session.Close(cleanupCtx)
		return nil, err
	}
	return session, nil
}

// Close closes every open session and the browser process.
func (l *Launcher) Close(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	sessions := make([]*Session, 0, len(l.sessions))
	for _, s := range l.sessions {
		sessions = append(sessions, s)
	}
	l.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.browser != nil {
		done := make(chan error, 1)
		browser := l.browser
		go func() { done <- browser.Close() }()
		select {
		case err := <-done:
			if err != nil {
				errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
			}
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("timed out closing browser: %w", ctx.Err()))
		case <-time.After(15 * time.Second):
			errs = append(errs, errors.New("browser did not close within the grace period"))
		}
	}
	l.teardownLocked()
	return errors.Join(errs...)
}

func (l *Launcher) teardownLocked() {
	if l.launch != nil {
		l.launch.Kill()
		l.launch.Cleanup()
	}
	l.launch, l.browser = nil, nil
}
