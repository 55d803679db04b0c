package policy

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/amlkernel/internal/validation"
)

//go:embed schema.cue
var schemaCUE string

// Names constrains library, class and document names.
type Names struct {
	Pattern   string `json:"pattern"`
	MaxLength int    `json:"max_length"`
	Severity  string `json:"severity"`
}

// Config is the decoded `policy` struct of a policy file, with defaults
// applied by the schema.
type Config struct {
	Names                  Names    `json:"names"`
	ReservedNames          []string `json:"reserved_names"`
	ProtectedLibraries     []string `json:"protected_libraries"`
	MaxClassesPerLibrary   int      `json:"max_classes_per_library"`
	ForbidCrossLibraryBase bool     `json:"forbid_cross_library_base"`
	RequireNFC             bool     `json:"require_nfc"`
	BlockWarnings          bool     `json:"block_warnings"`
}

// Policy is a compiled, immutable validation policy.
// One Policy may back validators in any number of sessions.
type Policy struct {
	Config Config

	// Source is the file name the policy was compiled from.
	Source string

	pattern   *regexp.Regexp
	severity  validation.Severity
	reserved  map[string]struct{}
	protected map[string]struct{}
}

// Default returns the policy used when no file is configured: only the
// NFC check is active.
func Default() *Policy {
	p, err := Compile([]byte("policy: {}"), "default.cue")
	if err != nil {
		panic(fmt.Sprintf("policy: default policy does not compile: %v", err))
	}
	return p
}

// Load reads and compiles the policy file at path.
func Load(path string) (*Policy, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy: %w", err)
	}
	return Compile(src, path)
}

// Compile parses src, checks it against the policy schema and returns the
// compiled policy. filename is used in error positions.
func Compile(src []byte, filename string) (*Policy, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("policy schema: %w", err)
	}

	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	pv := v.LookupPath(cue.ParsePath("policy"))
	if !pv.Exists() {
		return nil, &CompileError{
			Field:   "policy",
			Message: "policy is required",
			Pos:     v.Pos(),
		}
	}

	unified := schema.LookupPath(cue.ParsePath("#Policy")).Unify(pv)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var cfg Config
	if err := unified.Decode(&cfg); err != nil {
		return nil, formatCUEError(err)
	}

	p := &Policy{
		Config:    cfg,
		Source:    filename,
		reserved:  toSet(cfg.ReservedNames),
		protected: toSet(cfg.ProtectedLibraries),
	}

	if cfg.Names.Pattern != "" {
		re, err := regexp.Compile(cfg.Names.Pattern)
		if err != nil {
			return nil, &CompileError{
				Field:   "names.pattern",
				Message: err.Error(),
				Pos:     pv.LookupPath(cue.ParsePath("names.pattern")).Pos(),
			}
		}
		p.pattern = re
	}

	sev, err := validation.ParseSeverity(cfg.Names.Severity)
	if err != nil {
		return nil, &CompileError{Field: "names.severity", Message: err.Error()}
	}
	p.severity = sev

	return p, nil
}

// Summary lists the active rules, one per line.
func (p *Policy) Summary() []string {
	var out []string
	c := p.Config
	if c.Names.Pattern != "" {
		out = append(out, fmt.Sprintf("names must match %q (%s)", c.Names.Pattern, c.Names.Severity))
	}
	if c.Names.MaxLength > 0 {
		out = append(out, fmt.Sprintf("names at most %d characters (%s)", c.Names.MaxLength, c.Names.Severity))
	}
	if len(c.ReservedNames) > 0 {
		out = append(out, fmt.Sprintf("reserved names: %v", c.ReservedNames))
	}
	if len(c.ProtectedLibraries) > 0 {
		out = append(out, fmt.Sprintf("protected libraries: %v", c.ProtectedLibraries))
	}
	if c.MaxClassesPerLibrary > 0 {
		out = append(out, fmt.Sprintf("at most %d classes per library", c.MaxClassesPerLibrary))
	}
	if c.ForbidCrossLibraryBase {
		out = append(out, "base classes must live in the same library")
	}
	if c.RequireNFC {
		out = append(out, "names should be NFC-normalized")
	}
	if c.BlockWarnings {
		out = append(out, "warnings block operations")
	}
	return out
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, s := range items {
		set[s] = struct{}{}
	}
	return set
}

// CompileError represents a policy compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
