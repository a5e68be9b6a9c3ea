package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/rvlookup/internal/browser/shim"
	"github.com/xkilldash9x/rvlookup/internal/ctxutil"
	"github.com/xkilldash9x/rvlookup/internal/lookup"
	"github.com/xkilldash9x/rvlookup/internal/wait"
)

// ErrSessionClosed is returned by operations on a released session.
var ErrSessionClosed = errors.New("browser: session closed")

// Session is one isolated browser context with a single tab.
type Session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	onClose   func()
	closeOnce sync.Once
	mu        sync.Mutex
	isClosed  bool
}

var _ lookup.Session = (*Session)(nil)

func newSession(ctx context.Context, cancel context.CancelFunc, logger *zap.Logger, onClose func()) *Session {
	id := uuid.New().String()
	return &Session{
		id:      id,
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger.With(zap.String("session_id", id)),
		onClose: onClose,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// dialogTimeout bounds the command that dismisses a JavaScript dialog.
const dialogTimeout = 5 * time.Second

// dismissDialogs accepts every alert, confirm and prompt the page opens. An
// open dialog blocks script evaluation in the tab until it is handled.
func (s *Session) dismissDialogs() {
	chromedp.ListenTarget(s.ctx, func(ev interface{}) {
		e, ok := ev.(*page.EventJavascriptDialogOpening)
		if !ok {
			return
		}
		// Commands cannot be issued from the event handler itself.
		go func() {
			ctx, cancel := context.WithTimeout(s.ctx, dialogTimeout)
			defer cancel()
			if err := chromedp.Run(ctx, page.HandleJavaScriptDialog(true)); err != nil {
				s.logger.Debug("Failed to dismiss dialog.", zap.String("type", e.Type.String()), zap.Error(err))
				return
			}
			s.logger.Debug("Dismissed dialog.", zap.String("type", e.Type.String()), zap.String("message", e.Message))
		}()
	})
}

// operationContext derives a context carrying the tab from the session and the
// deadline and cancellation from the caller.
func (s *Session) operationContext(ctx context.Context) (context.Context, context.CancelFunc, error) {
	s.mu.Lock()
	closed := s.isClosed
	s.mu.Unlock()
	if closed {
		return nil, nil, ErrSessionClosed
	}
	opCtx, cancel := ctxutil.Combine(s.ctx, ctx)
	return opCtx, cancel, nil
}

// navigate commits a navigation to url and waits for the document to be
// constructed. Subresources and client-side rendering are not waited for.
func (s *Session) navigate(ctx context.Context, url string, timeout, interval time.Duration) error {
	opCtx, cancel, err := s.operationContext(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	opCtx, cancelTimeout := context.WithTimeout(opCtx, timeout)
	defer cancelTimeout()

	start := time.Now()
	err = chromedp.Run(opCtx, chromedp.ActionFunc(func(c context.Context) error {
		_, _, errorText, _, err := page.Navigate(url).Do(c)
		if err != nil {
			return err
		}
		if errorText != "" {
			return errors.New(errorText)
		}
		return nil
	}))
	if err != nil {
		return fmt.Errorf("%w: %s: %w", lookup.ErrNavigationFailed, url, contextual(ctx, err))
	}

	err = wait.Until(opCtx, interval, 0, func(c context.Context) (bool, error) {
		var doc shim.Document
		if err := s.eval(c, shim.ReadyState, &doc); err != nil {
			// The execution context is replaced while the new document commits.
			return false, nil
		}
		return doc.Constructed(), nil
	})
	if err != nil {
		return fmt.Errorf("%w: %s: document not constructed: %w", lookup.ErrNavigationFailed, url, contextual(ctx, err))
	}
	s.logger.Debug("Navigation complete.", zap.String("url", url), zap.Duration("elapsed", time.Since(start)))
	return nil
}

// contextual prefers the caller's cancellation over the derived error so that
// abandoned requests are reported as such.
func contextual(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// eval runs one of the shim scripts and decodes its JSON result into out.
func (s *Session) eval(ctx context.Context, script string, out any, args ...any) error {
	expr, err := shim.Call(script, args...)
	if err != nil {
		return err
	}
	var raw string
	if err := chromedp.Run(ctx, chromedp.Evaluate(expr, &raw)); err != nil {
		return err
	}
	return shim.Decode(raw, out)
}

func (s *Session) run(ctx context.Context, script string, out any, args ...any) error {
	opCtx, cancel, err := s.operationContext(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	if err := s.eval(opCtx, script, out, args...); err != nil {
		return contextual(ctx, err)
	}
	return nil
}

// Query lists the elements matching selector.
func (s *Session) Query(ctx context.Context, selector string) ([]lookup.Element, error) {
	var elements []lookup.Element
	if err := s.run(ctx, shim.QueryElements, &elements, selector); err != nil {
		return nil, fmt.Errorf("query %s: %w", selector, err)
	}
	return elements, nil
}

// SetValue sets the value of the first match.
func (s *Session) SetValue(ctx context.Context, selector, value string) error {
	var ack shim.Ack
	if err := s.run(ctx, shim.SetValue, &ack, selector, value); err != nil {
		return fmt.Errorf("set value of %s: %w", selector, err)
	}
	if !ack.OK {
		return fmt.Errorf("set value: no element matches %s", selector)
	}
	return nil
}

// Click dispatches a click on the first match.
func (s *Session) Click(ctx context.Context, selector string) error {
	var ack shim.Ack
	if err := s.run(ctx, shim.Click, &ack, selector); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	if !ack.OK {
		return fmt.Errorf("click: no element matches %s", selector)
	}
	return nil
}

// Content reads the first match.
func (s *Session) Content(ctx context.Context, selector string) (lookup.Content, error) {
	var content lookup.Content
	if err := s.run(ctx, shim.Content, &content, selector); err != nil {
		return lookup.Content{}, fmt.Errorf("read %s: %w", selector, err)
	}
	return content, nil
}

// Close closes the tab and disposes its browser context, waiting for the
// browser to confirm until ctx is done.
func (s *Session) Close(ctx context.Context) error {
	var closeErr error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.isClosed = true
		s.mu.Unlock()

		done := make(chan error, 1)
		go func() { done <- chromedp.Cancel(s.ctx) }()
		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				closeErr = fmt.Errorf("failed to close browser tab: %w", err)
			}
		case <-ctx.Done():
			closeErr = fmt.Errorf("timed out closing browser tab: %w", ctx.Err())
		}
		// Idempotent; releases the context even if Cancel timed out.
		s.cancel()

		if s.onClose != nil {
			s.onClose()
		}
		s.logger.Debug("Session closed.")
	})
	return closeErr
}
