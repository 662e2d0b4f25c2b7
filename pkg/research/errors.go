package research

import (
	"errors"
	"fmt"
)

var (
	ErrSafetySchema     = errors.New("safety classifier returned malformed output")
	ErrPlanningSchema   = errors.New("planner returned malformed output")
	ErrDecisionSchema   = errors.New("decision step returned malformed output")
	ErrDeadlineExceeded = errors.New("research deadline exceeded")
	ErrEmptyQuery       = errors.New("query is empty")
)

// SchemaError reports structured output that could not be decoded or validated
// after every retry. It matches the stage sentinel with errors.Is.
type SchemaError struct {
	Stage    error
	Attempts int
	Err      error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%v after %d attempts: %v", e.Stage, e.Attempts, e.Err)
}

func (e *SchemaError) Unwrap() []error {
	return []error{e.Stage, e.Err}
}
