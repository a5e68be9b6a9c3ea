package lookup

import (
	"errors"
	"fmt"
)

// Fatal engine errors. Outcomes such as not_found or a timeout are never errors.
var (
	ErrInvalidCriteria       = errors.New("invalid search criteria")
	ErrNavigationFailed      = errors.New("navigation to search page failed")
	ErrFieldsNotFound        = errors.New("search form fields not found")
	ErrSubmitTriggerNotFound = errors.New("search submit trigger not found")
	// ErrBackendUnavailable marks a failure to launch or reach the automation backend.
	ErrBackendUnavailable = errors.New("browser backend unavailable")
)

// Stage names the engine step an error came from.
type Stage string

const (
	StageValidate Stage = "validate"
	StageAcquire  Stage = "acquire"
	StageResolve  Stage = "resolve"
	StageSubmit   Stage = "submit"
	StageAwait    Stage = "await"
)

// StageError wraps a fatal error with the stage and session it occurred in.
type StageError struct {
	Stage     Stage
	SessionID string
	Err       error
}

func (e *StageError) Error() string {
	if e.SessionID == "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s (session %s): %v", e.Stage, e.SessionID, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a transient failure of the target site or
// backend that a caller may reasonably retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNavigationFailed) || errors.Is(err, ErrBackendUnavailable)
}
