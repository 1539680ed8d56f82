// Package outcome carries the explicit result of a discovery strategy and the
// typed step errors that explain why a step produced nothing.
package outcome

import (
	"errors"
	"fmt"
	"time"

	"github.com/itsnelsonvargas/ClickTok/internal/models"
)

// Kind classifies a strategy result.
type Kind string

const (
	KindOK     Kind = "ok"
	KindEmpty  Kind = "empty"
	KindFailed Kind = "failed"
)

// Result is what every strategy returns instead of raising.
type Result struct {
	Kind     Kind
	Products []models.Product
	Reason   string
}

func OK(products []models.Product) Result {
	if len(products) == 0 {
		return Empty("no products accepted")
	}
	return Result{Kind: KindOK, Products: products}
}

func Empty(reason string) Result {
	return Result{Kind: KindEmpty, Reason: reason}
}

func Failed(err error) Result {
	reason := "unknown failure"
	if err != nil {
		reason = err.Error()
	}
	return Result{Kind: KindFailed, Reason: reason}
}

func (r Result) String() string {
	if r.Kind == KindOK {
		return fmt.Sprintf("%s(%d)", r.Kind, len(r.Products))
	}
	return fmt.Sprintf("%s(%s)", r.Kind, r.Reason)
}

// ErrorType represents the category of a step failure.
type ErrorType string

const (
	// ErrorTypeNetwork covers transport errors and unreachable hosts
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeTimeout covers navigation and request deadlines
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeAuthRequired means the target redirected to a login wall
	ErrorTypeAuthRequired ErrorType = "auth_required"
	// ErrorTypeStructural means the page or payload did not have the expected shape
	ErrorTypeStructural ErrorType = "structural_mismatch"
	// ErrorTypeNotFound means the surface answered with a 404 or equivalent
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeNoResults means a whole strategy yielded zero records
	ErrorTypeNoResults ErrorType = "no_results"
	// ErrorTypeUpstream means the remote API rejected the request
	ErrorTypeUpstream ErrorType = "upstream"
)

// StepError describes a failure of a single acquisition step.
type StepError struct {
	Type    ErrorType
	Step    string
	Message string
	Err     error
	Time    time.Time
}

func (e *StepError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Step, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Step, e.Message)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true for failures that may succeed on another attempt.
// A not-found surface is never retried.
func (e *StepError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeNetwork, ErrorTypeTimeout:
		return true
	default:
		return false
	}
}

func New(errType ErrorType, step, message string, err error) *StepError {
	return &StepError{
		Type:    errType,
		Step:    step,
		Message: message,
		Err:     err,
		Time:    time.Now(),
	}
}

func NewNetwork(step, message string, err error) *StepError {
	return New(ErrorTypeNetwork, step, message, err)
}

func NewStructural(step, message string, err error) *StepError {
	return New(ErrorTypeStructural, step, message, err)
}

func NewNotFound(step, message string) *StepError {
	return New(ErrorTypeNotFound, step, message, nil)
}

// TypeOf extracts the ErrorType from an error chain, or "" when err is not a StepError.
func TypeOf(err error) ErrorType {
	var se *StepError
	if errors.As(err, &se) {
		return se.Type
	}
	return ""
}

// Is reports whether err carries a StepError of the given type.
func Is(err error, errType ErrorType) bool {
	return TypeOf(err) == errType
}
