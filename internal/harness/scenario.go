package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario is one scripted run against a fresh session.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario checks.
	Description string `yaml:"description"`

	// Policy is an optional CUE policy file installed as the session
	// validator. Relative paths resolve against the scenario file.
	Policy string `yaml:"policy,omitempty"`

	// IDPrefix prefixes the deterministic identifiers ("id" if empty).
	IDPrefix string `yaml:"id_prefix,omitempty"`

	// Steps run in order. A failing step does not stop the run.
	Steps []Step `yaml:"steps"`

	// Assertions are checked after the last step.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one mutation or savepoint operation.
//
// Entities are addressed by name: Document names a document, Kind one of
// interface, role or system-unit, Library a library name and Class a
// "library/class" path inside Document.
type Step struct {
	Op        string `yaml:"op"`
	Document  string `yaml:"document,omitempty"`
	Kind      string `yaml:"kind,omitempty"`
	Library   string `yaml:"library,omitempty"`
	Class     string `yaml:"class,omitempty"`
	Name      string `yaml:"name,omitempty"`
	Base      string `yaml:"base,omitempty"`
	Target    string `yaml:"target,omitempty"`
	Savepoint string `yaml:"savepoint,omitempty"`

	// ExpectError is an error code, "rejected" or "any". Empty means the
	// step must succeed.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Step operations.
const (
	OpCreateDocument  = "create_document"
	OpDeleteDocument  = "delete_document"
	OpMarkClean       = "mark_clean"
	OpCreateLibrary   = "create_library"
	OpRenameLibrary   = "rename_library"
	OpDeleteLibrary   = "delete_library"
	OpMoveLibrary     = "move_library"
	OpCreateClass     = "create_class"
	OpRenameClass     = "rename_class"
	OpDeleteClass     = "delete_class"
	OpSetBase         = "set_base"
	OpClearBase       = "clear_base"
	OpMoveClass       = "move_class"
	OpSavepoint       = "savepoint"
	OpDeleteSavepoint = "delete_savepoint"
	OpRollback        = "rollback"
)

// Special expect_error values.
const (
	ExpectRejected = "rejected"
	ExpectAny      = "any"
)

// Assertion checks final state or the trace.
type Assertion struct {
	// Type selects the check, see the Assert* constants.
	Type string `yaml:"type"`

	Document string `yaml:"document,omitempty"`
	Kind     string `yaml:"kind,omitempty"`
	Library  string `yaml:"library,omitempty"`

	// Path is a "library/class" path (resolves, not_found, base_class).
	Path string `yaml:"path,omitempty"`

	// Base is the expected base path for base_class; empty means none.
	Base string `yaml:"base,omitempty"`

	// Event filters event_count by event type name.
	Event string `yaml:"event,omitempty"`

	// Line is the trace line searched by trace_contains.
	Line string `yaml:"line,omitempty"`

	// Count is the expected count (event_count, savepoints).
	Count *int `yaml:"count,omitempty"`

	// Dirty is the expected dirty flag (dirty).
	Dirty *bool `yaml:"dirty,omitempty"`
}

// Assertion types.
const (
	AssertResolves         = "resolves"
	AssertNotFound         = "not_found"
	AssertLibraryExists    = "library_exists"
	AssertLibraryMissing   = "library_missing"
	AssertBaseClass        = "base_class"
	AssertDirty            = "dirty"
	AssertEventCount       = "event_count"
	AssertTraceContains    = "trace_contains"
	AssertIdentifiersEmpty = "identifiers_empty"
	AssertSavepoints       = "savepoints"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected, and a relative policy path is resolved
// against the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.Policy != "" && !filepath.IsAbs(scenario.Policy) {
		scenario.Policy = filepath.Join(filepath.Dir(path), scenario.Policy)
	}
	if scenario.Policy != "" {
		if _, err := os.Stat(scenario.Policy); err != nil {
			return nil, fmt.Errorf("invalid scenario: policy file: %w", err)
		}
	}
	return scenario, nil
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// required lists the fields each step operation needs.
var required = map[string][]string{
	OpCreateDocument:  {"name"},
	OpDeleteDocument:  {"document"},
	OpMarkClean:       {"document"},
	OpCreateLibrary:   {"document", "kind", "name"},
	OpRenameLibrary:   {"document", "kind", "library", "name"},
	OpDeleteLibrary:   {"document", "kind", "library"},
	OpMoveLibrary:     {"document", "kind", "library", "target"},
	OpCreateClass:     {"document", "kind", "library", "name"},
	OpRenameClass:     {"document", "kind", "class", "name"},
	OpDeleteClass:     {"document", "kind", "class"},
	OpSetBase:         {"document", "kind", "class", "base"},
	OpClearBase:       {"document", "kind", "class"},
	OpMoveClass:       {"document", "kind", "class", "target"},
	OpSavepoint:       {"savepoint"},
	OpDeleteSavepoint: {"savepoint"},
	OpRollback:        {"savepoint"},
}

func (s Step) field(name string) string {
	switch name {
	case "document":
		return s.Document
	case "kind":
		return s.Kind
	case "library":
		return s.Library
	case "class":
		return s.Class
	case "name":
		return s.Name
	case "base":
		return s.Base
	case "target":
		return s.Target
	case "savepoint":
		return s.Savepoint
	}
	return ""
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		fields, ok := required[step.Op]
		if !ok {
			return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
		}
		for _, f := range fields {
			if step.field(f) == "" {
				return fmt.Errorf("steps[%d]: %s is required for %s", i, f, step.Op)
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a Assertion) error {
	need := func(field, value string) error {
		if value == "" {
			return fmt.Errorf("assertions[%d]: %s is required for %s", index, field, a.Type)
		}
		return nil
	}

	switch a.Type {
	case AssertResolves, AssertNotFound:
		if err := need("document", a.Document); err != nil {
			return err
		}
		if a.Path != "" {
			return need("kind", a.Kind)
		}
	case AssertLibraryExists, AssertLibraryMissing:
		for _, f := range [][2]string{{"document", a.Document}, {"kind", a.Kind}, {"library", a.Library}} {
			if err := need(f[0], f[1]); err != nil {
				return err
			}
		}
	case AssertBaseClass:
		for _, f := range [][2]string{{"document", a.Document}, {"kind", a.Kind}, {"path", a.Path}} {
			if err := need(f[0], f[1]); err != nil {
				return err
			}
		}
	case AssertDirty:
		if err := need("document", a.Document); err != nil {
			return err
		}
		if a.Dirty == nil {
			return fmt.Errorf("assertions[%d]: dirty is required for %s", index, a.Type)
		}
	case AssertEventCount, AssertSavepoints:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for %s", index, a.Type)
		}
	case AssertTraceContains:
		return need("line", a.Line)
	case AssertIdentifiersEmpty:
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
