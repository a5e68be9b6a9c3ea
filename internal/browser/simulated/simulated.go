// Package simulated is an in-memory browser backend. Pages are goquery
// documents whose content can be changed on a timer after a click, which is
// enough to model the client-side rendering of the license search results.
package simulated

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"github.com/xkilldash9x/rvlookup/internal/lookup"
)

// ErrClosed is returned by operations on a released page or launcher.
var ErrClosed = errors.New("simulated: session closed")

// ErrNoElement is returned when a selector matches nothing on the page.
var ErrNoElement = errors.New("simulated: no element matches selector")

// Handler reacts to a click. It runs synchronously inside Click and should use
// Page.After for anything that happens later.
type Handler func(p *Page)

// Site describes what the simulated backend serves.
type Site struct {
	// Document returns the markup of the given page load. Loads are numbered
	// from 1 and every Acquire is a new load.
	Document func(load int) string
	// OnClick maps a CSS selector to the handler run when an element matching
	// it is clicked.
	OnClick map[string]Handler
}

// Option configures a Launcher.
type Option func(*Launcher)

// WithNavigationError makes every Acquire fail with err wrapped in
// lookup.ErrNavigationFailed.
func WithNavigationError(err error) Option {
	return func(l *Launcher) { l.navErr = err }
}

// WithLoadDelay delays every Acquire by d, or until its context is done.
func WithLoadDelay(d time.Duration) Option {
	return func(l *Launcher) { l.loadDelay = d }
}

// Launcher hands out one fresh Page per Acquire and counts them.
type Launcher struct {
	site      Site
	navErr    error
	loadDelay time.Duration

	loads    atomic.Int64
	acquired atomic.Int64
	released atomic.Int64
	closed   atomic.Bool

	mu    sync.Mutex
	pages []*Page
}

var _ lookup.Launcher = (*Launcher)(nil)

// NewLauncher creates a launcher serving site.
func NewLauncher(site Site, opts ...Option) *Launcher {
	l := &Launcher{site: site}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire loads a new copy of the site.
func (l *Launcher) Acquire(ctx context.Context, targetURL string) (lookup.Session, error) {
	if l.closed.Load() {
		return nil, fmt.Errorf("%w: %w", lookup.ErrBackendUnavailable, ErrClosed)
	}
	if l.loadDelay > 0 {
		t := time.NewTimer(l.loadDelay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %w", lookup.ErrNavigationFailed, targetURL, ctx.Err())
		case <-t.C:
		}
	}
	if l.navErr != nil {
		return nil, fmt.Errorf("%w: %s: %w", lookup.ErrNavigationFailed, targetURL, l.navErr)
	}

	load := int(l.loads.Add(1))
	markup := ""
	if l.site.Document != nil {
		markup = l.site.Document(load)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %w", lookup.ErrNavigationFailed, targetURL, err)
	}

	p := &Page{
		id:       uuid.NewString(),
		load:     load,
		url:      targetURL,
		doc:      doc,
		handlers: l.site.OnClick,
		launcher: l,
	}
	l.mu.Lock()
	l.pages = append(l.pages, p)
	l.mu.Unlock()
	l.acquired.Add(1)
	return p, nil
}

// Close releases every page still open and rejects further Acquire calls.
func (l *Launcher) Close(ctx context.Context) error {
	l.closed.Store(true)
	l.mu.Lock()
	pages := append([]*Page(nil), l.pages...)
	l.mu.Unlock()
	for _, p := range pages {
		_ = p.Close(ctx)
	}
	return nil
}

// Acquired returns how many sessions have been handed out.
func (l *Launcher) Acquired() int64 { return l.acquired.Load() }

// Released returns how many sessions have been closed.
func (l *Launcher) Released() int64 { return l.released.Load() }

// Open returns how many sessions are currently held.
func (l *Launcher) Open() int64 { return l.acquired.Load() - l.released.Load() }

// Pages returns every page handed out so far, in acquisition order.
func (l *Launcher) Pages() []*Page {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Page(nil), l.pages...)
}

// Page is one simulated session. It is safe for concurrent use.
type Page struct {
	id       string
	load     int
	url      string
	handlers map[string]Handler
	launcher *Launcher

	mu     sync.Mutex
	doc    *goquery.Document
	timers []*time.Timer
	clicks []string
	closed bool
}

var _ lookup.Session = (*Page)(nil)

// ID returns the session identifier.
func (p *Page) ID() string { return p.id }

// Load returns the load number this page was created for.
func (p *Page) Load() int { return p.load }

// URL returns the address the page was acquired for.
func (p *Page) URL() string { return p.url }

// Query lists the elements matching selector.
func (p *Page) Query(ctx context.Context, selector string) ([]lookup.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	var elements []lookup.Element
	p.doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		elements = append(elements, describe(s))
	})
	return elements, nil
}

// SetValue stores value in the value attribute of the first match.
func (p *Page) SetValue(ctx context.Context, selector, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	s := p.doc.Find(selector).First()
	if s.Length() == 0 {
		return fmt.Errorf("%w: %s", ErrNoElement, selector)
	}
	s.SetAttr("value", value)
	return nil
}

// Click runs the handlers registered for selectors the first match satisfies.
func (p *Page) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	s := p.doc.Find(selector).First()
	if s.Length() == 0 {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNoElement, selector)
	}
	var matched []Handler
	for key, h := range p.handlers {
		if s.Is(key) {
			matched = append(matched, h)
		}
	}
	p.clicks = append(p.clicks, selector)
	p.mu.Unlock()

	for _, h := range matched {
		h(p)
	}
	return nil
}

// Content reads the first match. A missing element is not an error.
func (p *Page) Content(ctx context.Context, selector string) (lookup.Content, error) {
	if err := ctx.Err(); err != nil {
		return lookup.Content{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return lookup.Content{}, ErrClosed
	}
	s := p.doc.Find(selector).First()
	if s.Length() == 0 {
		return lookup.Content{}, nil
	}
	html, err := s.Html()
	if err != nil {
		return lookup.Content{}, fmt.Errorf("simulated: rendering %s: %w", selector, err)
	}
	return lookup.Content{Present: true, HTML: html, Text: s.Text()}, nil
}

// Close stops pending timers. Calling it more than once has no further effect.
func (p *Page) Close(context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	for _, t := range p.timers {
		t.Stop()
	}
	p.timers = nil
	p.mu.Unlock()
	p.launcher.released.Add(1)
	return nil
}

// Closed reports whether the page has been released.
func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Clicks returns the selectors clicked so far.
func (p *Page) Clicks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicks...)
}

// Value returns the value attribute of the first match.
func (p *Page) Value(selector string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, _ := p.doc.Find(selector).First().Attr("value")
	return v
}

// Values returns the value of every named input keyed by its name.
func (p *Page) Values() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	values := make(map[string]string)
	p.doc.Find("input[name]").Each(func(_ int, s *goquery.Selection) {
		name, _ := s.Attr("name")
		v, _ := s.Attr("value")
		values[name] = v
	})
	return values
}

// SetInnerHTML replaces the children of every match.
func (p *Page) SetInnerHTML(selector, html string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.doc.Find(selector).SetHtml(html)
	}
}

// AppendHTML adds markup to the end of every match.
func (p *Page) AppendHTML(selector, html string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.doc.Find(selector).AppendHtml(html)
	}
}

// Remove deletes every match from the document.
func (p *Page) Remove(selector string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.doc.Find(selector).Remove()
	}
}

// After runs fn once d has elapsed unless the page is closed first.
func (p *Page) After(d time.Duration, fn func(p *Page)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.timers = append(p.timers, time.AfterFunc(d, func() {
		if !p.Closed() {
			fn(p)
		}
	}))
}

func describe(s *goquery.Selection) lookup.Element {
	id, _ := s.Attr("id")
	name, _ := s.Attr("name")
	typ, _ := s.Attr("type")
	return lookup.Element{Tag: goquery.NodeName(s), ID: id, Name: name, Type: typ}
}
