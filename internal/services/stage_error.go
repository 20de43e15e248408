package services

import "fmt"

// StageError is the outcome of a pipeline stage that did not fully succeed.
// Only fatal errors abort a run; the rest are logged and the run continues
// with degraded output.
type StageError struct {
	Stage Stage
	Fatal bool
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func recoverableError(stage Stage, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}

func fatalError(stage Stage, err error) *StageError {
	return &StageError{Stage: stage, Fatal: true, Err: err}
}
