package lookup_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/rvlookup/internal/browser/simulated"
	"github.com/xkilldash9x/rvlookup/internal/lookup"
)

func testAwaiterConfig(timeout time.Duration) lookup.AwaiterConfig {
	return lookup.AwaiterConfig{
		Selectors: []string{"#SearchResults", ".possesearchresults"},
		Signatures: lookup.Signatures{
			NotFound: simulated.NotFoundPhrase,
			Found:    simulated.FoundMarker,
		},
		Interval:       20 * time.Millisecond,
		Timeout:        timeout,
		ContainerGrace: 150 * time.Millisecond,
		Settle:         60 * time.Millisecond,
	}
}

// acquirePage returns a page serving markup. The page is closed with the test.
func acquirePage(t *testing.T, markup string) *simulated.Page {
	t.Helper()
	l := simulated.NewLauncher(simulated.Site{Document: func(int) string { return markup }})
	s, err := l.Acquire(context.Background(), testTargetURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s.(*simulated.Page)
}

func TestAwaiter_NotFoundAfterDelay(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for a two second render")
	}
	p := acquirePage(t, `<div id="SearchResults"></div>`)
	p.After(2*time.Second, func(p *simulated.Page) {
		p.SetInnerHTML("#SearchResults", `<span>`+simulated.NotFoundPhrase+`</span>`)
	})

	a := lookup.NewAwaiter(testAwaiterConfig(15*time.Second), zaptest.NewLogger(t))
	outcome, err := a.Await(context.Background(), p, "")
	require.NoError(t, err)
	assert.Equal(t, lookup.OutcomeNotFound, outcome.Kind)
	assert.GreaterOrEqual(t, outcome.Elapsed, 2*time.Second)
	assert.Less(t, outcome.Elapsed, 3*time.Second, "the wait should end as soon as the phrase appears")
}

func TestAwaiter_Outcomes(t *testing.T) {
	found := `<div class="license"><h3>License Number</h3><p>RV-1</p></div>`

	tests := []struct {
		name     string
		markup   string
		mutate   func(p *simulated.Page)
		baseline string
		want     lookup.OutcomeKind
		wantHTML string
	}{
		{
			name:   "never updates",
			markup: `<div id="SearchResults"></div>`,
			want:   lookup.OutcomeTimeout,
		},
		{
			name:   "container never appears",
			markup: `<div id="Other"></div>`,
			want:   lookup.OutcomeNoContentContainer,
		},
		{
			name:   "container appears late",
			markup: `<div id="Other"></div>`,
			mutate: func(p *simulated.Page) {
				p.After(50*time.Millisecond, func(p *simulated.Page) {
					p.AppendHTML("body", `<div id="SearchResults">`+simulated.NotFoundPhrase+`</div>`)
				})
			},
			want: lookup.OutcomeNotFound,
		},
		{
			name:   "positive marker",
			markup: `<div id="SearchResults"></div>`,
			mutate: func(p *simulated.Page) {
				p.After(40*time.Millisecond, func(p *simulated.Page) { p.SetInnerHTML("#SearchResults", found) })
			},
			want:     lookup.OutcomeFound,
			wantHTML: found,
		},
		{
			name:   "second candidate selector",
			markup: `<div class="possesearchresults"></div>`,
			mutate: func(p *simulated.Page) {
				p.After(40*time.Millisecond, func(p *simulated.Page) { p.SetInnerHTML(".possesearchresults", found) })
			},
			want:     lookup.OutcomeFound,
			wantHTML: found,
		},
		{
			name:   "not found phrase wins over marker",
			markup: `<div id="SearchResults"></div>`,
			mutate: func(p *simulated.Page) {
				p.SetInnerHTML("#SearchResults", `License Number<br>  no issued licenses were found  using your search criteria.`)
			},
			want: lookup.OutcomeNotFound,
		},
		{
			name:   "changed content settles",
			markup: `<div id="SearchResults">Enter criteria</div>`,
			mutate: func(p *simulated.Page) {
				p.After(30*time.Millisecond, func(p *simulated.Page) { p.SetInnerHTML("#SearchResults", "<b>Jane Sample</b>") })
			},
			baseline: "Enter criteria",
			want:     lookup.OutcomeFound,
			wantHTML: "<b>Jane Sample</b>",
		},
		{
			name:     "content equal to baseline keeps waiting",
			markup:   `<div id="SearchResults">Enter criteria</div>`,
			baseline: "Enter criteria",
			want:     lookup.OutcomeTimeout,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := acquirePage(t, tc.markup)
			if tc.mutate != nil {
				tc.mutate(p)
			}
			a := lookup.NewAwaiter(testAwaiterConfig(400*time.Millisecond), zaptest.NewLogger(t))

			start := time.Now()
			outcome, err := a.Await(context.Background(), p, tc.baseline)
			require.NoError(t, err)
			assert.Equal(t, tc.want, outcome.Kind, "got %s", outcome.Kind)
			assert.Equal(t, tc.wantHTML, outcome.HTML)
			assert.Less(t, time.Since(start), time.Second)
		})
	}
}

func TestAwaiter_HalfRenderedFrameIsNotRead(t *testing.T) {
	p := acquirePage(t, `<div id="SearchResults"></div>`)
	// Content keeps changing faster than the settle delay, then stops.
	for i, frag := range []string{"J", "Ja", "Jane", "Jane Sample"} {
		p.After(time.Duration(i+1)*25*time.Millisecond, func(p *simulated.Page) { p.SetInnerHTML("#SearchResults", frag) })
	}

	a := lookup.NewAwaiter(testAwaiterConfig(time.Second), zaptest.NewLogger(t))
	outcome, err := a.Await(context.Background(), p, "")
	require.NoError(t, err)
	require.Equal(t, lookup.OutcomeFound, outcome.Kind)
	assert.Equal(t, "Jane Sample", outcome.Text)
}

func TestAwaiter_Cancelled(t *testing.T) {
	p := acquirePage(t, `<div id="SearchResults"></div>`)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	a := lookup.NewAwaiter(testAwaiterConfig(5*time.Second), zaptest.NewLogger(t))
	start := time.Now()
	_, err := a.Await(ctx, p, "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestAwaiter_Snapshot(t *testing.T) {
	a := lookup.NewAwaiter(testAwaiterConfig(time.Second), zaptest.NewLogger(t))
	ctx := context.Background()

	assert.Equal(t, "Enter your criteria", a.Snapshot(ctx, acquirePage(t, `<div id="SearchResults">  Enter
	your criteria </div>`)))
	assert.Empty(t, a.Snapshot(ctx, acquirePage(t, `<p>none</p>`)))
}

// brokenSelectorPage fails every read of one selector.
type brokenSelectorPage struct {
	*simulated.Page
	broken string
}

func (p brokenSelectorPage) Content(ctx context.Context, selector string) (lookup.Content, error) {
	if selector == p.broken {
		return lookup.Content{}, errors.New("node is detached from document")
	}
	return p.Page.Content(ctx, selector)
}

func TestAwaiter_UnreadableSelectorFallsThrough(t *testing.T) {
	found := `<h3>License Number</h3><p>RV-7</p>`
	p := acquirePage(t, `<div class="possesearchresults">`+found+`</div>`)
	page := brokenSelectorPage{Page: p, broken: "#SearchResults"}

	a := lookup.NewAwaiter(testAwaiterConfig(400*time.Millisecond), zaptest.NewLogger(t))
	outcome, err := a.Await(context.Background(), page, "")
	require.NoError(t, err)
	assert.Equal(t, lookup.OutcomeFound, outcome.Kind)
	assert.Equal(t, ".possesearchresults", outcome.Selector)
	assert.Equal(t, found, outcome.HTML)
}

func TestAwaiter_EverySelectorUnreadable(t *testing.T) {
	cfg := testAwaiterConfig(150 * time.Millisecond)
	cfg.Selectors = []string{"#SearchResults"}
	p := acquirePage(t, `<div id="SearchResults">Enter criteria</div>`)
	page := brokenSelectorPage{Page: p, broken: "#SearchResults"}

	a := lookup.NewAwaiter(cfg, zaptest.NewLogger(t))
	assert.Empty(t, a.Snapshot(context.Background(), page))

	outcome, err := a.Await(context.Background(), page, "")
	require.NoError(t, err)
	assert.Equal(t, lookup.OutcomeTimeout, outcome.Kind, "errors are retried until the result timeout")
}
