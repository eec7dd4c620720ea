package deduce

import (
	"errors"
	"fmt"
)

// ErrLeak is reported for a call site whose value flowed into a call target
// that cannot be resolved statically. Nothing can be deduced for such a site.
var ErrLeak = errors.New("type inference leaked into a dynamic call")

// InconsistentEvidenceError is reported when a value was observed both as a
// native scalar and as one of the available classes
type InconsistentEvidenceError struct {
	Conflict []string
}

func (e *InconsistentEvidenceError) Error() string {
	return fmt.Sprintf("found evidence for native type but also the following allowed classes: %v", e.Conflict)
}

// Structural violations. The evidence and the available classes were not
// produced from the same project snapshot, so no site can be trusted.
var (
	ErrNoAvailableClasses        = errors.New("no available classes entry for file")
	ErrDuplicateAvailableClasses = errors.New("more than one available classes entry for file")
	ErrLineNotCovered            = errors.New("call site line not covered by available classes entry")
)

// PreconditionError ties a structural violation to the call site that exposed it
type PreconditionError struct {
	Filename   string
	LineNumber int
	Err        error
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.Filename, e.LineNumber, e.Err)
}

func (e *PreconditionError) Unwrap() error {
	return e.Err
}
