package lookup

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/rvlookup/internal/wait"
)

// OutcomeKind tags an AwaitOutcome.
type OutcomeKind int

const (
	OutcomeFound OutcomeKind = iota
	OutcomeNotFound
	OutcomeNoContentContainer
	OutcomeTimeout
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeFound:
		return "found"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeNoContentContainer:
		return "no_content_container"
	case OutcomeTimeout:
		return "timeout"
	}
	return "unknown"
}

// AwaitOutcome is the single terminal observation of the results container.
// HTML and Text are only set for OutcomeFound.
type AwaitOutcome struct {
	Kind     OutcomeKind
	HTML     string
	Text     string
	Selector string
	Elapsed  time.Duration
}

// awaitState is the awaiter's position in its state machine.
type awaitState int

const (
	stateSubmitted awaitState = iota
	stateMatchedNotFound
	stateMatchedFound
	stateTimedOut
	stateContainerMissing
)

func (s awaitState) String() string {
	return [...]string{"submitted", "matched_not_found", "matched_found", "timed_out", "container_missing"}[s]
}

// Signatures are the terminal content signatures looked for in the results
// container. Matching is case-insensitive and whitespace-normalized.
type Signatures struct {
	NotFound string
	Found    string
}

// AwaiterConfig tunes the result wait.
type AwaiterConfig struct {
	Selectors []string
	Signatures
	Interval time.Duration
	// Timeout is the hard ceiling for the whole wait.
	Timeout time.Duration
	// ContainerGrace bounds how long the container may be absent before the
	// page is considered to have no result section at all.
	ContainerGrace time.Duration
	// Settle is how long changed but unrecognized content must stay stable
	// before it is accepted as a result.
	Settle time.Duration
}

// Awaiter polls the results container until a terminal state is reached.
type Awaiter struct {
	cfg    AwaiterConfig
	logger *zap.Logger
}

// NewAwaiter creates a result awaiter.
func NewAwaiter(cfg AwaiterConfig, logger *zap.Logger) *Awaiter {
	return &Awaiter{cfg: cfg, logger: logger}
}

// Snapshot captures the normalized container text before submission. A
// missing container or a read failure yields an empty baseline.
func (a *Awaiter) Snapshot(ctx context.Context, page Page) string {
	content, _, err := a.read(ctx, page)
	if err != nil || !content.Present {
		return ""
	}
	return normalizeSpace(content.Text)
}

// Await runs the state machine against page, comparing container text with
// baseline. Timeouts and a missing container are outcomes; only cancellation
// of ctx produces an error.
func (a *Awaiter) Await(ctx context.Context, page Page, baseline string) (AwaitOutcome, error) {
	var (
		start    = time.Now()
		state    = stateSubmitted
		outcome  AwaitOutcome
		seen     bool
		pending  string
		since    time.Time
		notFound = strings.ToLower(normalizeSpace(a.cfg.NotFound))
		marker   = strings.ToLower(normalizeSpace(a.cfg.Found))
	)

	transition := func(next awaitState, kind OutcomeKind) {
		a.logger.Debug("Result awaiter transition.",
			zap.Stringer("from", state), zap.Stringer("to", next), zap.Duration("elapsed", time.Since(start)))
		state = next
		outcome.Kind = kind
	}

	err := wait.Until(ctx, a.cfg.Interval, a.cfg.Timeout, func(ctx context.Context) (bool, error) {
		content, selector, err := a.read(ctx, page)
		if err != nil {
			// Client-side rendering can replace nodes mid-read.
			a.logger.Debug("Container read failed, polling again.", zap.Error(err))
			return false, nil
		}
		if !content.Present {
			pending = ""
			if !seen && time.Since(start) >= a.cfg.ContainerGrace {
				transition(stateContainerMissing, OutcomeNoContentContainer)
				return true, nil
			}
			return false, nil
		}
		seen = true

		text := normalizeSpace(content.Text)
		lower := strings.ToLower(text)
		switch {
		case notFound != "" && strings.Contains(lower, notFound):
			transition(stateMatchedNotFound, OutcomeNotFound)
			return true, nil
		case marker != "" && strings.Contains(lower, marker):
			transition(stateMatchedFound, OutcomeFound)
			outcome.HTML, outcome.Text, outcome.Selector = content.HTML, text, selector
			return true, nil
		case text == "" || text == baseline:
			pending = ""
			return false, nil
		case text != pending:
			pending, since = text, time.Now()
			return false, nil
		case time.Since(since) >= a.cfg.Settle:
			transition(stateMatchedFound, OutcomeFound)
			outcome.HTML, outcome.Text, outcome.Selector = content.HTML, text, selector
			return true, nil
		}
		return false, nil
	})

	switch {
	case err == nil:
	case errors.Is(err, wait.ErrTimeout):
		transition(stateTimedOut, OutcomeTimeout)
	default:
		return AwaitOutcome{}, err
	}
	outcome.Elapsed = time.Since(start)
	return outcome, nil
}

// read returns the first present container among the configured selectors.
// An error from one selector does not hide the others; read fails only when
// every selector errored.
func (a *Awaiter) read(ctx context.Context, page Page) (Content, string, error) {
	var (
		firstErr error
		failed   int
	)
	for _, selector := range a.cfg.Selectors {
		content, err := page.Content(ctx, selector)
		if err != nil {
			if ctx.Err() != nil {
				return Content{}, "", err
			}
			a.logger.Debug("Result selector unreadable.", zap.String("selector", selector), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			failed++
			continue
		}
		if content.Present {
			return content, selector, nil
		}
	}
	if failed > 0 && failed == len(a.cfg.Selectors) {
		return Content{}, "", firstErr
	}
	return Content{}, "", nil
}

// normalizeSpace collapses runs of whitespace and trims the result.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
