package rodbackend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/rvlookup/internal/browser/shim"
	"github.com/xkilldash9x/rvlookup/internal/lookup"
	"github.com/xkilldash9x/rvlookup/internal/wait"
)

// ErrSessionClosed is returned by operations on a released session.
var ErrSessionClosed = errors.New("rodbackend: session closed")

// Session is a page in its own incognito browser context.
type Session struct {
	id        string
	incognito *rod.Browser
	page      *rod.Page
	logger    *zap.Logger
	onClose   func()

	mu     sync.Mutex
	closed bool
}

var _ lookup.Session = (*Session)(nil)

func newSession(incognito *rod.Browser, page *rod.Page, logger *zap.Logger, onClose func()) *Session {
	id := uuid.NewString()
	return &Session{
		id:        id,
		incognito: incognito,
		page:      page,
		logger:    logger.With(zap.String("session_id", id)),
		onClose:   onClose,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

func (s *Session) pageFor(ctx context.Context) (*rod.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	return s.page.Context(ctx), nil
}

// navigate returns once the server has answered and the document is constructed.
func (s *Session) navigate(ctx context.Context, url string, timeout, interval time.Duration) error {
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	p, err := s.pageFor(navCtx)
	if err != nil {
		return err
	}
	start := time.Now()
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("%w: %s: %w", lookup.ErrNavigationFailed, url, contextual(ctx, err))
	}

	err = wait.Until(navCtx, interval, 0, func(c context.Context) (bool, error) {
		var doc shim.Document
		if err := s.eval(c, shim.ReadyState, &doc); err != nil {
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

func contextual(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// eval calls a shim script with args and decodes its JSON result.
func (s *Session) eval(ctx context.Context, script string, out any, args ...any) error {
	p, err := s.pageFor(ctx)
	if err != nil {
		return err
	}
	res, err := p.Eval(script, args...)
	if err != nil {
		return contextual(ctx, err)
	}
	return shim.Decode(res.Value.Str(), out)
}

// Query lists the elements matching selector.
func (s *Session) Query(ctx context.Context, selector string) ([]lookup.Element, error) {
	var elements []lookup.Element
	if err := s.eval(ctx, shim.QueryElements, &elements, selector); err != nil {
		return nil, fmt.Errorf("query %s: %w", selector, err)
	}
	return elements, nil
}

// SetValue sets the value of the first match.
func (s *Session) SetValue(ctx context.Context, selector, value string) error {
	var ack shim.Ack
	if err := s.eval(ctx, shim.SetValue, &ack, selector, value); err != nil {
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
	if err := s.eval(ctx, shim.Click, &ack, selector); err != nil {
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
	if err := s.eval(ctx, shim.Content, &content, selector); err != nil {
		return lookup.Content{}, fmt.Errorf("read %s: %w", selector, err)
	}
	return content, nil
}

// Close closes the page and disposes the incognito context.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var errs []error
	if err := s.page.Context(ctx).Close(); err != nil {
		errs = append(errs, fmt.Errorf("close page: %w", err))
	}
	// Closing an incognito browser disposes its context only.
	if err := s.incognito.Context(ctx).Close(); err != nil {
		errs = append(errs, fmt.Errorf("dispose browser context: %w", err))
	}
	if s.onClose != nil {
		s.onClose()
	}
	s.logger.Debug("Session closed.")
	return errors.Join(errs...)
}
