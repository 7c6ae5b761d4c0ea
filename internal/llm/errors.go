package llm

import (
	"errors"
	"fmt"
)

// ErrNotConfigured is returned when no Azure OpenAI endpoint is set.
var ErrNotConfigured = errors.New("azure openai configuration not found")

// ValidationError is the single failure type surfaced by the client. Details
// carries optional structured context such as a ValidationReport.
type ValidationError struct {
	Message string
	Details any
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("llm: %s: %v", e.Message, e.Err)
	}
	return "llm: " + e.Message
}

func (e *ValidationError) Unwrap() error { return e.Err }

func validationErr(msg string, err error) *ValidationError {
	return &ValidationError{Message: msg, Err: err}
}
