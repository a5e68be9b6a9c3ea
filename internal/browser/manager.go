// Package browser is the chromedp backend. A Manager owns the browser process
// and hands out one Session per search, each in its own browser context.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/rvlookup/internal/config"
	"github.com/xkilldash9x/rvlookup/internal/ctxutil"
	"github.com/xkilldash9x/rvlookup/internal/lookup"
)

const shutdownGracePeriod = 15 * time.Second

// Manager launches the browser lazily and creates isolated sessions.
type Manager struct {
	cfg    *config.Config
	logger *zap.Logger

	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	sessions      map[string]*Session
	closed        bool
	wg            sync.WaitGroup
}

var _ lookup.Launcher = (*Manager)(nil)

// NewManager creates a browser manager. The browser starts on first Acquire.
func NewManager(cfg *config.Config, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:      cfg,
		logger:   logger.Named("browser_manager"),
		sessions: make(map[string]*Session),
	}
}

// Acquire opens a new isolated session and navigates it to targetURL.
func (m *Manager) Acquire(ctx context.Context, targetURL string) (lookup.Session, error) {
	tabCtx, cancel, err := m.newTab(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		return nil, fmt.Errorf("%w: manager is shut down", lookup.ErrBackendUnavailable)
	}
	m.wg.Add(1)
	var session *Session
	session = newSession(tabCtx, cancel, m.logger, func() {
		m.mu.Lock()
		delete(m.sessions, session.ID())
		m.mu.Unlock()
		m.wg.Done()
	})
	m.sessions[session.ID()] = session
	m.mu.Unlock()
	session.dismissDialogs()

	search := m.cfg.Search
	if err := session.navigate(ctx, targetURL, search.NavigationTimeout, search.PollInterval); err != nil {
		cleanupCtx, cleanupCancel := ctxutil.DetachWithTimeout(ctx, 10*time.Second)
		defer cleanupCancel()
		_ = session.Close(cleanupCtx)
		return nil, err
	}
	m.logger.Debug("Session acquired.", zap.String("session_id", session.ID()))
	return session, nil
}

// newTab returns a started tab context in a fresh browser context, or in a
// fresh browser process when process_per_session is set.
func (m *Manager) newTab(ctx context.Context) (context.Context, context.CancelFunc, error) {
	var (
		tabCtx context.Context
		cancel context.CancelFunc
	)
	if m.cfg.Browser.ProcessPerSession {
		allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), DefaultAllocatorOptions(m.cfg.Browser)...)
		c, tabCancel := chromedp.NewContext(allocCtx, m.contextOptions()...)
		tabCtx, cancel = c, func() {
			tabCancel()
			allocCancel()
		}
	} else {
		browserCtx, err := m.ensureBrowser(ctx)
		if err != nil {
			return nil, nil, err
		}
		tabCtx, cancel = chromedp.NewContext(browserCtx, chromedp.WithNewBrowserContext())
	}

	if err := m.start(ctx, tabCtx); err != nil {
		cancel()
		return nil, nil, err
	}
	return tabCtx, cancel, nil
}

// ensureBrowser starts the shared browser process once.
func (m *Manager) ensureBrowser(ctx context.Context) (context.Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fmt.Errorf("%w: manager is shut down", lookup.ErrBackendUnavailable)
	}
	if m.browserCtx != nil && m.browserCtx.Err() == nil {
		return m.browserCtx, nil
	}

	m.logger.Info("Launching browser.", zap.Bool("headless", m.cfg.Browser.Headless))
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), DefaultAllocatorOptions(m.cfg.Browser)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx, m.contextOptions()...)
	if err := m.start(ctx, browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, err
	}
	m.allocCancel = allocCancel
	m.browserCtx, m.browserCancel = browserCtx, browserCancel
	m.logger.Info("Browser launched.")
	return browserCtx, nil
}

// start runs the first action on a chromedp context, which allocates its
// browser or target. That first Run must use the context itself, so the
// launch timeout and the caller's cancellation are applied around it.
func (m *Manager) start(ctx context.Context, c context.Context) error {
	timeout := m.cfg.Browser.LaunchTimeout
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	done := make(chan error, 1)
	go func() { done <- chromedp.Run(c) }()

	var err error
	select {
	case err = <-done:
	case <-timer.C:
		err = fmt.Errorf("browser did not start within %s", timeout)
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", lookup.ErrBackendUnavailable, err)
	}
	return nil
}

func (m *Manager) contextOptions() []chromedp.ContextOption {
	sugar := m.logger.Sugar()
	return []chromedp.ContextOption{
		chromedp.WithLogf(sugar.Debugf),
		// chromedp reports unknown CDP events as errors; they are noise here.
		chromedp.WithErrorf(sugar.Debugf),
	}
}

// Close releases every open session and then the browser process.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	m.logger.Info("Shutting down browser manager.", zap.Int("open_sessions", len(sessions)))
	var errs []error
	for _, s := range sessions {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	waitDone := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("timed out waiting for sessions to close: %w", ctx.Err()))
	}

	m.mu.Lock()
	browserCtx, browserCancel, allocCancel := m.browserCtx, m.browserCancel, m.allocCancel
	m.mu.Unlock()
	if browserCtx != nil {
		shutdownCtx, cancel := context.WithTimeout(ctxutil.Detach(ctx), shutdownGracePeriod)
		defer cancel()
		done := make(chan error, 1)
		go func() { done <- chromedp.Cancel(browserCtx) }()
		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				errs = append(errs, fmt.Errorf("failed to stop browser: %w", err))
			}
		case <-shutdownCtx.Done():
			errs = append(errs, errors.New("browser did not exit within the grace period"))
		}
		browserCancel()
		allocCancel()
	}
	m.logger.Info("Browser manager shut down.")
	return errors.Join(errs...)
}
