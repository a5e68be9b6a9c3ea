package lookup_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/rvlookup/internal/browser/simulated"
	"github.com/xkilldash9x/rvlookup/internal/lookup"
)

var testMatchers = []lookup.Matcher{
	{Role: lookup.RoleLastName, Prefix: "LastName_"},
	{Role: lookup.RoleSSN, Prefix: "Last4SSN_"},
	{Role: lookup.RoleDOB, Prefix: "DateOfBirth_"},
}

func TestBind(t *testing.T) {
	t.Run("volatile suffixes", func(t *testing.T) {
		inputs := []lookup.Element{
			{Tag: "input", Name: "__VIEWSTATE", Type: "hidden"},
			{Tag: "input", Name: "DateOfBirth_q1w2"},
			{Tag: "input", Name: "LastName_abc123"},
			{Tag: "input", Name: "Last4SSN_xyz789"},
		}
		binding, missing := lookup.Bind(testMatchers, inputs)
		assert.Empty(t, missing)
		assert.Equal(t, lookup.FieldBinding{
			lookup.RoleLastName: `input[name="LastName_abc123"]`,
			lookup.RoleSSN:      `input[name="Last4SSN_xyz789"]`,
			lookup.RoleDOB:      `input[name="DateOfBirth_q1w2"]`,
		}, binding)
	})

	t.Run("prefix inside a container-qualified name", func(t *testing.T) {
		inputs := []lookup.Element{{Tag: "INPUT", Name: "ctl00$main$LastName_9f"}}
		binding, missing := lookup.Bind(testMatchers[:1], inputs)
		assert.Empty(t, missing)
		assert.Equal(t, `input[name="ctl00$main$LastName_9f"]`, binding[lookup.RoleLastName])
	})

	t.Run("first match wins", func(t *testing.T) {
		inputs := []lookup.Element{
			{Tag: "input", Name: "LastName_first"},
			{Tag: "input", Name: "LastName_second"},
		}
		binding, _ := lookup.Bind(testMatchers[:1], inputs)
		assert.Equal(t, `input[name="LastName_first"]`, binding[lookup.RoleLastName])
	})

	t.Run("missing role reported", func(t *testing.T) {
		inputs := []lookup.Element{
			{Tag: "input", Name: "LastName_a"},
			{Tag: "input", Name: "DateOfBirth_a"},
		}
		binding, missing := lookup.Bind(testMatchers, inputs)
		assert.Equal(t, []lookup.Role{lookup.RoleSSN}, missing)
		assert.Len(t, binding, 2)
	})

	t.Run("id alone does not match", func(t *testing.T) {
		inputs := []lookup.Element{{Tag: "input", ID: "LastName_a"}}
		_, missing := lookup.Bind(testMatchers[:1], inputs)
		assert.Equal(t, []lookup.Role{lookup.RoleLastName}, missing)
	})
}

func TestElement_Selector(t *testing.T) {
	tests := []struct {
		el   lookup.Element
		want string
	}{
		{lookup.Element{Tag: "INPUT", Name: "a", ID: "b"}, `input[name="a"]`},
		{lookup.Element{Tag: "a", ID: "x_PerformSearch"}, `a[id="x_PerformSearch"]`},
		{lookup.Element{Tag: "input", Type: "submit"}, `input[type="submit"]`},
		{lookup.Element{Tag: "button"}, `button`},
		{lookup.Element{Tag: "input", Name: `we"ird`}, `input[name="we\"ird"]`},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, tc.el.Selector())
	}
}

func TestResolver_Resolve(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	t.Run("random suffix per load", func(t *testing.T) {
		l := simulated.NewLauncher(notFoundSite(0))
		r := lookup.NewResolver(testMatchers, 10*time.Millisecond, 100*time.Millisecond, logger)
		for i := 0; i < 3; i++ {
			s, err := l.Acquire(ctx, testTargetURL)
			require.NoError(t, err)
			binding, err := r.Resolve(ctx, s)
			require.NoError(t, err)
			assert.Len(t, binding, 3)
			for _, role := range lookup.Roles {
				els, err := s.Query(ctx, binding[role])
				require.NoError(t, err)
				assert.Len(t, els, 1, "binding for %s must address exactly one input", role)
			}
			require.NoError(t, s.Close(ctx))
		}
	})

	t.Run("fields rendered late", func(t *testing.T) {
		site := simulated.Site{Document: func(int) string { return `<form id="f"></form>` }}
		l := simulated.NewLauncher(site)
		s, err := l.Acquire(ctx, testTargetURL)
		require.NoError(t, err)
		defer s.Close(ctx)
		p := s.(*simulated.Page)
		p.After(30*time.Millisecond, func(p *simulated.Page) {
			p.AppendHTML("#f", `<input name="LastName_z"><input name="Last4SSN_z"><input name="DateOfBirth_z">`)
		})

		r := lookup.NewResolver(testMatchers, 10*time.Millisecond, time.Second, logger)
		binding, err := r.Resolve(ctx, s)
		require.NoError(t, err)
		assert.Equal(t, `input[name="Last4SSN_z"]`, binding[lookup.RoleSSN])
	})

	t.Run("missing prefix fails", func(t *testing.T) {
		l := simulated.NewLauncher(simulated.LicenseSearchSite(
			simulated.PageOptions{OmitFields: []string{simulated.SSNPrefix}}, 0, simulated.DemoResponder))
		s, err := l.Acquire(ctx, testTargetURL)
		require.NoError(t, err)
		defer s.Close(ctx)

		r := lookup.NewResolver(testMatchers, 10*time.Millisecond, 50*time.Millisecond, logger)
		_, err = r.Resolve(ctx, s)
		require.Error(t, err)
		assert.ErrorIs(t, err, lookup.ErrFieldsNotFound)
		assert.Contains(t, err.Error(), "ssn")
		assert.Contains(t, err.Error(), "Last4SSN_")
	})

	t.Run("cancelled context", func(t *testing.T) {
		l := simulated.NewLauncher(simulated.Site{})
		s, err := l.Acquire(ctx, testTargetURL)
		require.NoError(t, err)
		defer s.Close(ctx)

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		r := lookup.NewResolver(testMatchers, 10*time.Millisecond, time.Second, logger)
		_, err = r.Resolve(cctx, s)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
