package agent

import "errors"

var (
	// ErrInputRead is logged when the artifact cannot be read; the run continues with empty content.
	ErrInputRead = errors.New("input artifact could not be read")
	// ErrIterationBound is logged when the loop is forced into WRITE.
	ErrIterationBound = errors.New("iteration bound exceeded")
	// ErrRunTimeout is returned when the run deadline passes before any observation exists.
	ErrRunTimeout = errors.New("run timed out")
	// ErrPersist is returned when the report could not be stored.
	ErrPersist = errors.New("report could not be persisted")
)
