package task

import (
    "errors"
    "fmt"
)

var (
    ErrNotFound            = errors.New("download not found")
    ErrDuplicateInProgress = errors.New("download already in progress")
    ErrNotApplicable       = errors.New("operation not applicable")
    ErrNotStarted          = errors.New("download manager is not accepting work")

    // ErrInterrupted is only ever recorded by recovery and shutdown.
    ErrInterrupted = errors.New("download interrupted by application restart")
)

// ValidationError rejects an Enqueue before anything is persisted.
type ValidationError struct {
    Field  string
    Reason string
}

func (e *ValidationError) Error() string {
    return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func notApplicable(id int64, s Status) error {
    return fmt.Errorf("%w: download %d is %s", ErrNotApplicable, id, s)
}
