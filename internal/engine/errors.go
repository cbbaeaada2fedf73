package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedType is returned for entries that are neither
	// directories nor regular files.
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrRelativePath is returned when Start is given a relative path.
	ErrRelativePath = errors.New("path must be absolute")
	// ErrDispatcherClosed is returned by a closed PoolDispatcher.
	ErrDispatcherClosed = errors.New("dispatcher closed")
)

// Phase names the step of a replication that failed.
type Phase string

const (
	PhaseMkdir    Phase = "mkdir"
	PhaseOpenDir  Phase = "opendir"
	PhaseReadDir  Phase = "readdir"
	PhaseCloseDir Phase = "closedir"
	PhasePath     Phase = "path"
	PhaseLstat    Phase = "lstat"
	PhaseDispatch Phase = "dispatch"
	PhaseOpen     Phase = "open"
	PhaseCreate   Phase = "create"
	PhaseCopy     Phase = "copy"
	PhaseClose    Phase = "close"
)

// PhaseError records which phase of a task failed and on which path.
type PhaseError struct {
	Err   error
	Phase Phase
	Path  string
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Phase, e.Path, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// PhaseOf returns the phase recorded in err, or "" if there is none.
func PhaseOf(err error) Phase {
	var pe *PhaseError
	if errors.As(err, &pe) {
		return pe.Phase
	}
	return ""
}
