package lookup

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// triggerCandidates are the element kinds that may carry the search action.
const triggerCandidates = `a, button, input[type="button"], input[type="image"], input[type="submit"]`

// Driver fills the bound fields and fires the search.
type Driver struct {
	// triggers are substrings of the id or name of the primary action element.
	triggers []string
	// fallbacks are selectors for a conventional submit control, tried in order.
	fallbacks []string
	logger    *zap.Logger
}

// NewDriver creates a submission driver.
func NewDriver(triggers, fallbacks []string, logger *zap.Logger) *Driver {
	return &Driver{triggers: triggers, fallbacks: fallbacks, logger: logger}
}

// Submit sets every bound field and then dispatches the search trigger. It does
// not wait for results.
func (d *Driver) Submit(ctx context.Context, page Page, binding FieldBinding, criteria SearchCriteria) error {
	for _, role := range Roles {
		selector, ok := binding[role]
		if !ok {
			return fmt.Errorf("%w: binding has no %s field", ErrFieldsNotFound, role)
		}
		if err := page.SetValue(ctx, selector, criteria.value(role)); err != nil {
			return fmt.Errorf("failed to fill %s field: %w", role, err)
		}
	}

	trigger, err := d.findTrigger(ctx, page)
	if err != nil {
		return err
	}
	d.logger.Debug("Dispatching search trigger.", zap.String("selector", trigger))
	if err := page.Click(ctx, trigger); err != nil {
		return fmt.Errorf("failed to dispatch search trigger %s: %w", trigger, err)
	}
	return nil
}

// findTrigger prefers an action element matching a known trigger pattern over
// a plain submit control.
func (d *Driver) findTrigger(ctx context.Context, page Page) (string, error) {
	if len(d.triggers) > 0 {
		candidates, err := page.Query(ctx, triggerCandidates)
		if err != nil {
			return "", fmt.Errorf("failed to enumerate trigger candidates: %w", err)
		}
		for _, pattern := range d.triggers {
			for _, el := range candidates {
				if strings.Contains(el.ID, pattern) || strings.Contains(el.Name, pattern) {
					if el.ID != "" {
						return fmt.Sprintf(`%s[id="%s"]`, strings.ToLower(el.Tag), cssQuote(el.ID)), nil
					}
					return el.Selector(), nil
				}
			}
		}
	}

	for _, selector := range d.fallbacks {
		matches, err := page.Query(ctx, selector)
		if err != nil {
			return "", fmt.Errorf("failed to query fallback trigger %s: %w", selector, err)
		}
		if len(matches) > 0 {
			return selector, nil
		}
	}

	return "", fmt.Errorf("%w: nothing matched %v or %v", ErrSubmitTriggerNotFound, d.triggers, d.fallbacks)
}
