package lookup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/rvlookup/internal/wait"
)

// Role is the logical purpose of a search input.
type Role string

const (
	RoleLastName Role = "lastName"
	RoleSSN      Role = "ssn"
	RoleDOB      Role = "dob"
)

// Roles lists every role in fill order.
var Roles = []Role{RoleLastName, RoleSSN, RoleDOB}

// Matcher binds a role to the stable prefix of its input's name attribute.
type Matcher struct {
	Role   Role
	Prefix string
}

// Matches reports whether el carries the matcher's prefix. The page appends a
// per-load token to the prefix, and may add a container prefix before it, so
// this is a substring test.
func (m Matcher) Matches(el Element) bool {
	return m.Prefix != "" && strings.Contains(el.Name, m.Prefix)
}

// FieldBinding maps each role to a selector valid for the page it was resolved
// on. It must not outlive that page's session.
type FieldBinding map[Role]string

// Bind selects, for every matcher, the first input that matches it. It returns
// the roles left unmatched.
func Bind(matchers []Matcher, inputs []Element) (FieldBinding, []Role) {
	binding := make(FieldBinding, len(matchers))
	var missing []Role
	for _, m := range matchers {
		found := false
		for _, el := range inputs {
			if m.Matches(el) {
				binding[m.Role] = el.Selector()
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, m.Role)
		}
	}
	return binding, missing
}

// Resolver locates the three search inputs despite their volatile names.
type Resolver struct {
	matchers []Matcher
	interval time.Duration
	grace    time.Duration
	logger   *zap.Logger
}

// NewResolver creates a resolver that keeps looking for the inputs for up to
// grace, re-reading the DOM every interval.
func NewResolver(matchers []Matcher, interval, grace time.Duration, logger *zap.Logger) *Resolver {
	return &Resolver{matchers: matchers, interval: interval, grace: grace, logger: logger}
}

// Resolve returns a complete binding or an error wrapping ErrFieldsNotFound.
func (r *Resolver) Resolve(ctx context.Context, page Page) (FieldBinding, error) {
	var (
		binding FieldBinding
		missing []Role
		seen    int
	)
	err := wait.Until(ctx, r.interval, r.grace, func(ctx context.Context) (bool, error) {
		inputs, err := page.Query(ctx, "input")
		if err != nil {
			// The document may still be settling; keep polling.
			r.logger.Debug("Input enumeration failed, retrying.", zap.Error(err))
			return false, nil
		}
		seen = len(inputs)
		binding, missing = Bind(r.matchers, inputs)
		return len(missing) == 0, nil
	})
	switch {
	case err == nil:
		r.logger.Debug("Form fields resolved.", zap.Int("inputs_seen", seen), zap.Any("binding", binding))
		return binding, nil
	case errors.Is(err, wait.ErrTimeout):
		if missing == nil {
			missing = rolesOf(r.matchers)
		}
		return nil, fmt.Errorf("%w: no input matched %s after %s (%d inputs on page)",
			ErrFieldsNotFound, describeMissing(r.matchers, missing), r.grace, seen)
	default:
		return nil, err
	}
}

func rolesOf(matchers []Matcher) []Role {
	roles := make([]Role, 0, len(matchers))
	for _, m := range matchers {
		roles = append(roles, m.Role)
	}
	return roles
}

func describeMissing(matchers []Matcher, missing []Role) string {
	parts := make([]string, 0, len(missing))
	for _, role := range missing {
		for _, m := range matchers {
			if m.Role == role {
				parts = append(parts, fmt.Sprintf("%s (%q)", role, m.Prefix))
			}
		}
	}
	return strings.Join(parts, ", ")
}
