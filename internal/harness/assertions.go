package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/amlkernel/internal/model"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, line := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, line)
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion against the session state
// and the result trace, returning one message per failure.
func EvaluateAssertions(s *model.Session, result *Result, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluate(s, result, a); err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func evaluate(s *model.Session, result *Result, a Assertion) error {
	fail := func(expected, actual string) error {
		return &AssertionError{Type: a.Type, Expected: expected, Actual: actual}
	}

	switch a.Type {
	case AssertEventCount:
		got := 0
		for _, e := range result.events {
			if a.Event == "" || e.Type.String() == a.Event {
				got++
			}
		}
		if got != *a.Count {
			what := "events"
			if a.Event != "" {
				what = a.Event + " events"
			}
			return fail(fmt.Sprintf("%d %s", *a.Count, what), fmt.Sprintf("%d", got))
		}
		return nil

	case AssertTraceContains:
		if !slices.Contains(result.Trace, a.Line) {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("trace line %q", a.Line),
				Actual:   "not found in trace",
				Trace:    result.Trace,
			}
		}
		return nil

	case AssertIdentifiersEmpty:
		if n := s.Identifiers().Len(); n != 0 {
			return fail("no live identifiers", fmt.Sprintf("%d live", n))
		}
		return nil

	case AssertSavepoints:
		if got := len(s.Savepoints()); got != *a.Count {
			return fail(fmt.Sprintf("%d savepoints", *a.Count), fmt.Sprintf("%d", got))
		}
		return nil
	}

	doc, found := s.Document(a.Document)
	if a.Path == "" && a.Library == "" && a.Type != AssertDirty {
		switch {
		case a.Type == AssertResolves && !found:
			return fail("document "+a.Document, "not found")
		case a.Type == AssertNotFound && found:
			return fail("no document "+a.Document, "document exists")
		}
		return nil
	}
	if !found {
		return fail("document "+a.Document, "not found")
	}

	if a.Type == AssertDirty {
		if doc.IsDirty() != *a.Dirty {
			return fail(fmt.Sprintf("dirty=%t", *a.Dirty), fmt.Sprintf("dirty=%t", doc.IsDirty()))
		}
		return nil
	}

	kind, err := model.ParseKind(a.Kind)
	if err != nil {
		return err
	}

	switch a.Type {
	case AssertLibraryExists, AssertLibraryMissing:
		_, ok := doc.Library(kind, a.Library)
		if a.Type == AssertLibraryExists && !ok {
			return fail(fmt.Sprintf("%s library %s", kind, a.Library), "not found")
		}
		if a.Type == AssertLibraryMissing && ok {
			return fail(fmt.Sprintf("no %s library %s", kind, a.Library), "library exists")
		}
		return nil
	}

	c, ok := doc.ClassByPath(kind, a.Path)
	switch a.Type {
	case AssertResolves:
		if !ok {
			return fail(fmt.Sprintf("%s class %s", kind, a.Path), "not found")
		}
	case AssertNotFound:
		if ok {
			return fail(fmt.Sprintf("no %s class %s", kind, a.Path), "class exists")
		}
	case AssertBaseClass:
		if !ok {
			return fail(fmt.Sprintf("%s class %s", kind, a.Path), "not found")
		}
		got := ""
		if b := c.BaseClass(); b != nil {
			got = b.Path()
		}
		if got != a.Base {
			return fail(fmt.Sprintf("base %q", a.Base), fmt.Sprintf("base %q", got))
		}
	}
	return nil
}
