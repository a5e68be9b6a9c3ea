// Package lookup drives the Responsible Vendor license search form: it resolves
// the volatile form fields, submits the criteria, waits for the client-rendered
// result and classifies it.
package lookup

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// SearchCriteria is one license query. All three fields are required; their
// format is validated by the target site, not here.
type SearchCriteria struct {
	LastName    string `json:"lastName"`
	Last4SSN    string `json:"ssn"`
	DateOfBirth string `json:"dob"`
}

// Normalize returns a copy with surrounding whitespace removed.
func (c SearchCriteria) Normalize() SearchCriteria {
	return SearchCriteria{
		LastName:    strings.TrimSpace(c.LastName),
		Last4SSN:    strings.TrimSpace(c.Last4SSN),
		DateOfBirth: strings.TrimSpace(c.DateOfBirth),
	}
}

// Validate reports ErrInvalidCriteria naming every blank field.
func (c SearchCriteria) Validate() error {
	var missing []string
	n := c.Normalize()
	if n.LastName == "" {
		missing = append(missing, "lastName")
	}
	if n.Last4SSN == "" {
		missing = append(missing, "ssn")
	}
	if n.DateOfBirth == "" {
		missing = append(missing, "dob")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidCriteria, strings.Join(missing, ", "))
	}
	return nil
}

// value returns the criteria field that fills role.
func (c SearchCriteria) value(role Role) string {
	switch role {
	case RoleLastName:
		return c.LastName
	case RoleSSN:
		return c.Last4SSN
	case RoleDOB:
		return c.DateOfBirth
	}
	return ""
}

// Status is the closed set of classified outcomes.
type Status string

const (
	StatusFound    Status = "found"
	StatusNotFound Status = "not_found"
	StatusError    Status = "error"
)

// SearchResult is the engine's transport-agnostic output.
type SearchResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	HTML    string `json:"html,omitempty"`
	// Text is the plain-text rendering of HTML, kept for downstream inspection.
	Text string `json:"text,omitempty"`
}

// Element describes one DOM element as reported by a backend.
type Element struct {
	Tag  string `json:"tag"`
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Selector returns a CSS selector that addresses e on the current page,
// preferring the name attribute, then the id.
func (e Element) Selector() string {
	tag := strings.ToLower(e.Tag)
	switch {
	case e.Name != "":
		return fmt.Sprintf(`%s[name="%s"]`, tag, cssQuote(e.Name))
	case e.ID != "":
		return fmt.Sprintf(`%s[id="%s"]`, tag, cssQuote(e.ID))
	case e.Type != "":
		return fmt.Sprintf(`%s[type="%s"]`, tag, cssQuote(e.Type))
	}
	return tag
}

// cssQuote escapes a value for use inside a double-quoted attribute selector.
func cssQuote(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

// Content is a snapshot of one container element.
type Content struct {
	Present bool   `json:"present"`
	HTML    string `json:"html"`
	Text    string `json:"text"`
}

// Page is the set of DOM operations the engine needs from a browser backend.
type Page interface {
	// Query lists the elements currently matching a CSS selector, in document order.
	Query(ctx context.Context, selector string) ([]Element, error)
	// SetValue sets the value of the first match and fires input and change events.
	SetValue(ctx context.Context, selector, value string) error
	// Click dispatches a click on the first match and returns without waiting
	// for whatever the click triggers.
	Click(ctx context.Context, selector string) error
	// Content reads the inner markup and rendered text of the first match.
	// A missing element is reported as Content{Present: false}, not an error.
	Content(ctx context.Context, selector string) (Content, error)
}

// Session is one isolated browsing context with a single open page, owned by
// exactly one search.
type Session interface {
	Page
	ID() string
	// Close releases every resource held by the session. It is idempotent.
	Close(ctx context.Context) error
}

// Launcher creates sessions. Acquire returns a session whose page has navigated
// to targetURL and finished constructing its DOM.
type Launcher interface {
	Acquire(ctx context.Context, targetURL string) (Session, error)
	Close(ctx context.Context) error
}

// Observer receives engine lifecycle events, typically for metrics.
type Observer interface {
	SessionOpened()
	SessionClosed()
	SearchCompleted(status string, elapsed time.Duration)
}
