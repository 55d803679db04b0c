package validation

import (
	"fmt"
	"strings"

	"github.com/roach88/amlkernel/internal/ident"
)

// Severity ranks a validation result.
type Severity int

const (
	// SeverityInfo annotates an operation without concern.
	SeverityInfo Severity = iota
	// SeverityWarning flags a questionable but usually acceptable change.
	SeverityWarning
	// SeverityError flags a change that violates a rule.
	SeverityError
)

// String returns the lowercase severity name.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// ParseSeverity maps "info", "warning" or "error" to a Severity.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "info":
		return SeverityInfo, nil
	case "warning", "warn":
		return SeverityWarning, nil
	case "error":
		return SeverityError, nil
	default:
		return SeverityError, fmt.Errorf("unknown severity %q", s)
	}
}

// Subject identifies the entity a result is about.
// The entity may not exist yet (create operations), in which case ID is empty.
type Subject struct {
	ID   ident.ID `json:"id,omitempty"`
	Name string   `json:"name"`
}

// Result is one finding produced for one attempted operation.
//
// OperationPermitted is independent of Severity: policy lives entirely in
// the validator, so a warning may block and an error may permit.
type Result struct {
	Subject            Subject  `json:"subject"`
	Severity           Severity `json:"severity"`
	Message            string   `json:"message"`
	OperationPermitted bool     `json:"operation_permitted"`
	Rule               string   `json:"rule,omitempty"`
}

// String renders the result for logs and CLI output.
func (r Result) String() string {
	verdict := "permitted"
	if !r.OperationPermitted {
		verdict = "blocked"
	}
	if r.Rule != "" {
		return fmt.Sprintf("[%s] %s: %s (%s, rule=%s)", r.Severity, r.Subject.Name, r.Message, verdict, r.Rule)
	}
	return fmt.Sprintf("[%s] %s: %s (%s)", r.Severity, r.Subject.Name, r.Message, verdict)
}

// Warn builds a permitted warning result.
func Warn(subject Subject, rule, message string) Result {
	return Result{Subject: subject, Severity: SeverityWarning, Message: message, OperationPermitted: true, Rule: rule}
}

// Deny builds a non-permitted error result.
func Deny(subject Subject, rule, message string) Result {
	return Result{Subject: subject, Severity: SeverityError, Message: message, OperationPermitted: false, Rule: rule}
}

// ResultList is the outcome of validating one operation.
// An empty list is an unconditional permit.
type ResultList []Result

// Permitted aggregates OperationPermitted with AND semantics.
func (l ResultList) Permitted() bool {
	for _, r := range l {
		if !r.OperationPermitted {
			return false
		}
	}
	return true
}

// Blocking returns the results that deny the operation.
func (l ResultList) Blocking() ResultList {
	return l.filter(func(r Result) bool { return !r.OperationPermitted })
}

// Warnings returns results of warning severity.
func (l ResultList) Warnings() ResultList {
	return l.filter(func(r Result) bool { return r.Severity == SeverityWarning })
}

// Errors returns results of error severity.
func (l ResultList) Errors() ResultList {
	return l.filter(func(r Result) bool { return r.Severity == SeverityError })
}

// MaxSeverity returns the highest severity in the list, SeverityInfo when empty.
func (l ResultList) MaxSeverity() Severity {
	top := SeverityInfo
	for _, r := range l {
		if r.Severity > top {
			top = r.Severity
		}
	}
	return top
}

func (l ResultList) filter(keep func(Result) bool) ResultList {
	var out ResultList
	for _, r := range l {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}
