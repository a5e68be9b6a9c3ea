package lookup

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/rvlookup/internal/config"
	"github.com/xkilldash9x/rvlookup/internal/ctxutil"
	"github.com/xkilldash9x/rvlookup/internal/observability"
)

// releaseTimeout bounds session teardown, which runs even after ctx is cancelled.
const releaseTimeout = 10 * time.Second

// statusFailed is reported to the Observer for searches that ended in a fatal error.
const statusFailed = "failed"

// Engine runs license searches, one isolated session per call.
type Engine struct {
	launcher   Launcher
	targetURL  string
	submitWait time.Duration
	resolver   *Resolver
	driver     *Driver
	awaiter    *Awaiter
	classifier Classifier
	sem        *semaphore.Weighted
	active     atomic.Int64
	observer   Observer
	logger     *zap.Logger
}

// Option customizes an Engine.
type Option func(*Engine)

// WithObserver reports session and search events to o.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithLogger sets the engine's logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New builds an engine from a validated search configuration.
func New(launcher Launcher, cfg config.SearchConfig, opts ...Option) (*Engine, error) {
	if launcher == nil {
		return nil, errors.New("lookup: launcher cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("lookup: %w", err)
	}

	e := &Engine{
		launcher:   launcher,
		targetURL:  cfg.TargetURL,
		submitWait: cfg.SubmitTimeout,
		classifier: Classifier{NotFoundMessage: cfg.NotFoundPhrase},
		sem:        semaphore.NewWeighted(int64(cfg.MaxSessions)),
		observer:   nopObserver{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = observability.GetLogger()
	}
	e.logger = e.logger.Named("engine")

	matchers := []Matcher{
		{Role: RoleLastName, Prefix: cfg.Fields.LastName},
		{Role: RoleSSN, Prefix: cfg.Fields.SSN},
		{Role: RoleDOB, Prefix: cfg.Fields.DOB},
	}
	e.resolver = NewResolver(matchers, cfg.PollInterval, cfg.DiscoveryGrace, e.logger.Named("resolver"))
	e.driver = NewDriver(cfg.SubmitTriggers, cfg.SubmitFallbacks, e.logger.Named("driver"))
	e.awaiter = NewAwaiter(AwaiterConfig{
		Selectors:      cfg.ResultSelectors,
		Signatures:     Signatures{NotFound: cfg.NotFoundPhrase, Found: cfg.FoundMarker},
		Interval:       cfg.PollInterval,
		Timeout:        cfg.ResultTimeout,
		ContainerGrace: cfg.ContainerGrace,
		Settle:         cfg.SettleDelay,
	}, e.logger.Named("awaiter"))
	return e, nil
}

// Active returns the number of sessions currently held.
func (e *Engine) Active() int64 { return e.active.Load() }

// Search performs one lookup. Classified outcomes, including not_found and
// timeouts, are returned as results. Fatal failures are returned as a
// *StageError and leave no session open.
func (e *Engine) Search(ctx context.Context, criteria SearchCriteria) (SearchResult, error) {
	criteria = criteria.Normalize()
	if err := criteria.Validate(); err != nil {
		return SearchResult{}, &StageError{Stage: StageValidate, Err: err}
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return SearchResult{}, &StageError{Stage: StageAcquire, Err: err}
	}
	defer e.sem.Release(1)

	start := time.Now()
	session, err := e.launcher.Acquire(ctx, e.targetURL)
	if err != nil {
		return SearchResult{}, e.fail(start, &StageError{Stage: StageAcquire, Err: err})
	}
	e.active.Add(1)
	e.observer.SessionOpened()
	defer e.release(ctx, session)

	logger := e.logger.With(zap.String("session_id", session.ID()))
	logger.Debug("Session acquired.", zap.String("last_name", criteria.LastName))

	result, err := e.run(ctx, session, criteria, logger)
	if err != nil {
		var serr *StageError
		if !errors.As(err, &serr) {
			serr = &StageError{Stage: StageAwait, SessionID: session.ID(), Err: err}
		}
		return SearchResult{}, e.fail(start, serr)
	}

	elapsed := time.Since(start)
	e.observer.SearchCompleted(string(result.Status), elapsed)
	logger.Info("Search completed.", zap.String("status", string(result.Status)), zap.Duration("elapsed", elapsed))
	return result, nil
}

// run executes the sequential stages on one session.
func (e *Engine) run(ctx context.Context, session Session, criteria SearchCriteria, logger *zap.Logger) (SearchResult, error) {
	binding, err := e.resolver.Resolve(ctx, session)
	if err != nil {
		return SearchResult{}, &StageError{Stage: StageResolve, SessionID: session.ID(), Err: err}
	}

	// A page handler such as a blocking alert can stall every round trip,
	// so snapshot and submission share one deadline.
	submitCtx, cancel := context.WithTimeout(ctx, e.submitWait)
	baseline := e.awaiter.Snapshot(submitCtx, session)
	err = e.driver.Submit(submitCtx, session, binding, criteria)
	stalled := submitCtx.Err() != nil && ctx.Err() == nil
	cancel()
	if err != nil {
		if stalled {
			err = fmt.Errorf("submission did not complete within %s: %w", e.submitWait, err)
		}
		return SearchResult{}, &StageError{Stage: StageSubmit, SessionID: session.ID(), Err: err}
	}

	outcome, err := e.awaiter.Await(ctx, session, baseline)
	if err != nil {
		return SearchResult{}, &StageError{Stage: StageAwait, SessionID: session.ID(), Err: err}
	}
	logger.Debug("Result awaited.", zap.Stringer("outcome", outcome.Kind),
		zap.String("selector", outcome.Selector), zap.Duration("elapsed", outcome.Elapsed))

	return e.classifier.Classify(outcome), nil
}

func (e *Engine) fail(start time.Time, err *StageError) error {
	e.observer.SearchCompleted(statusFailed, time.Since(start))
	fields := []zap.Field{zap.String("stage", string(err.Stage)), zap.Error(err.Err)}
	if err.SessionID != "" {
		fields = append(fields, zap.String("session_id", err.SessionID))
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		e.logger.Warn("Search abandoned.", fields...)
	} else {
		e.logger.Error("Search failed.", fields...)
	}
	return err
}

// release closes session on a context that survives cancellation of ctx.
func (e *Engine) release(ctx context.Context, session Session) {
	releaseCtx, cancel := ctxutil.DetachWithTimeout(ctx, releaseTimeout)
	defer cancel()
	if err := session.Close(releaseCtx); err != nil {
		e.logger.Warn("Failed to release session.", zap.String("session_id", session.ID()), zap.Error(err))
	}
	e.active.Add(-1)
	e.observer.SessionClosed()
}

type nopObserver struct{}

func (nopObserver) SessionOpened()                        {}
func (nopObserver) SessionClosed()                        {}
func (nopObserver) SearchCompleted(string, time.Duration) {}
