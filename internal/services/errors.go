package services

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Step names a stage of the accessibility check. It is used as the log and
// span label and is reported back to clients on failure.
type Step string

const (
	StepStage     Step = "stage"
	StepSession   Step = "session"
	StepNavigate  Step = "navigate"
	StepReadiness Step = "readiness"
	StepRender    Step = "render"
	StepAnalyze   Step = "analyze"
)

// Sentinel errors, one per failing step.
var (
	ErrStaging          = errors.New("staging failed")
	ErrSession          = errors.New("browser session could not start")
	ErrNavigation       = errors.New("viewer navigation failed")
	ErrReadinessTimeout = errors.New("viewer application did not become ready")
	ErrRenderTimeout    = errors.New("PDF page did not render")
	ErrAnalysis         = errors.New("accessibility analysis failed")
)

// StepError is a failed workflow step. Kind is one of the sentinels above.
type StepError struct {
	Step Step
	Kind error
	Err  error
	// Snippet holds the start of the page HTML for render timeouts.
	Snippet string
}

func (e *StepError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

func (e *StepError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// stepFailure wraps cause as a StepError with a stack trace attached.
func stepFailure(step Step, kind, cause error) error {
	return pkgerrors.WithStack(&StepError{Step: step, Kind: kind, Err: cause})
}

// AsStepError reports whether err is, or wraps, a *StepError.
func AsStepError(err error) (*StepError, bool) {
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return stepErr, true
	}
	return nil, false
}
