package validation

import (
	"errors"
	"fmt"
	"strings"
)

// ErrRejected matches every RejectedError via errors.Is.
var ErrRejected = errors.New("operation rejected by validation")

// RejectedError reports a mutating operation vetoed by validation.
// State is unchanged when this error is returned.
//
// Cause is set when the kernel itself produced the veto from a structural
// rule (for example deleting a non-empty library); errors.As on the
// RejectedError reaches it.
type RejectedError struct {
	// Op names the operation, e.g. "library.delete".
	Op string

	// Results is the full list returned for the operation.
	Results ResultList

	// Cause is the structural error behind the veto, if any.
	Cause error
}

// Error implements the error interface.
func (e *RejectedError) Error() string {
	blocking := e.Results.Blocking()
	if len(blocking) == 0 {
		return fmt.Sprintf("%s: %v", e.Op, ErrRejected)
	}
	msgs := make([]string, len(blocking))
	for i, r := range blocking {
		msgs[i] = r.Message
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, ErrRejected, strings.Join(msgs, "; "))
}

// Unwrap exposes both ErrRejected and the structural cause.
func (e *RejectedError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrRejected}
	}
	return []error{ErrRejected, e.Cause}
}

// IsRejected reports whether err is (or wraps) a RejectedError.
func IsRejected(err error) bool {
	return errors.Is(err, ErrRejected)
}

// ResultsOf returns the result list carried by a RejectedError in err's chain.
func ResultsOf(err error) (ResultList, bool) {
	var re *RejectedError
	if errors.As(err, &re) {
		return re.Results, true
	}
	return nil, false
}
