package harness

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/amlkernel/internal/ident"
	"github.com/roach88/amlkernel/internal/journal"
	"github.com/roach88/amlkernel/internal/model"
	"github.com/roach88/amlkernel/internal/policy"
	"github.com/roach88/amlkernel/internal/testutil"
	"github.com/roach88/amlkernel/internal/undo"
	"github.com/roach88/amlkernel/internal/validation"
)

// ErrNotFound is returned by a step whose target cannot be resolved.
// expect_error: NOT_FOUND matches it.
var ErrNotFound = errors.New("not found")

// ExpectNotFound is the expect_error value matching ErrNotFound.
const ExpectNotFound = "NOT_FOUND"

// DefaultIDPrefix prefixes identifiers when a scenario sets none.
const DefaultIDPrefix = "id"

// Option configures a run.
type Option func(*runConfig)

type runConfig struct {
	logger  *slog.Logger
	journal *journal.Journal
}

// WithLogger sets the session logger. Runs discard logs by default.
func WithLogger(l *slog.Logger) Option {
	return func(c *runConfig) { c.logger = l }
}

// WithJournal records the run's transactions into j.
func WithJournal(j *journal.Journal) Option {
	return func(c *runConfig) { c.journal = j }
}

// Harness executes the steps of one scenario against one session.
type Harness struct {
	session    *model.Session
	savepoints map[string]*undo.Savepoint
	trace      *testutil.Recorder
	logger     *slog.Logger
}

// Run executes scenario in a fresh session and returns the result.
//
// Execution flow:
//  1. create a session with sequence identifiers and the scenario policy
//  2. run every step, checking expect_error
//  3. evaluate assertions
//  4. close the session; a teardown leak is a failure
//
// The returned error is reserved for problems outside the scenario
// itself, such as an unreadable policy file.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&cfg)
	}

	prefix := scenario.IDPrefix
	if prefix == "" {
		prefix = DefaultIDPrefix
	}
	sessionOpts := []model.Option{
		model.WithGenerator(ident.NewSequenceGenerator(prefix)),
		model.WithLogger(cfg.logger.With("scenario", scenario.Name)),
	}
	if scenario.Policy != "" {
		p, err := policy.Load(scenario.Policy)
		if err != nil {
			return nil, fmt.Errorf("failed to load policy: %w", err)
		}
		sessionOpts = append(sessionOpts, model.WithValidator(p.Factory()))
	}

	h := &Harness{
		session:    model.NewSession(sessionOpts...),
		savepoints: make(map[string]*undo.Savepoint),
		trace:      testutil.NewRecorder(),
		logger:     cfg.logger,
	}
	h.session.AddObserver(h.trace)

	var jrec *journal.Recorder
	if cfg.journal != nil {
		jrec = cfg.journal.Attach(h.session, scenario.Name)
	}

	result := NewResult(scenario.Name)
	for i, step := range scenario.Steps {
		err := h.execute(step)
		if msg := checkExpectation(err, step.ExpectError); msg != "" {
			result.AddError(fmt.Sprintf("steps[%d] %s: %s", i, step.Op, msg))
		}
		result.Steps++
	}

	result.Trace = append(result.Trace, h.trace.Lines...)
	result.events = append(result.events, h.trace.Events...)

	for _, msg := range EvaluateAssertions(h.session, result, scenario.Assertions) {
		result.AddError(msg)
	}

	h.session.RemoveObserver(h.trace)
	if err := h.session.Close(); err != nil {
		result.AddError(fmt.Sprintf("teardown: %v", err))
	}
	if jrec != nil && jrec.Err() != nil {
		result.AddError(fmt.Sprintf("journal: %v", jrec.Err()))
	}

	h.logger.Debug("scenario finished",
		"scenario", scenario.Name,
		"pass", result.Pass,
		"events", len(result.Trace),
	)
	return result, nil
}

// checkExpectation compares a step outcome with expect_error and returns
// a failure message, or "" when the outcome is as expected.
func checkExpectation(err error, expect string) string {
	switch {
	case expect == "" && err == nil:
		return ""
	case expect == "":
		return fmt.Sprintf("unexpected error: %v", err)
	case err == nil:
		return fmt.Sprintf("expected error %s, got success", expect)
	}

	var ok bool
	switch expect {
	case ExpectAny:
		ok = true
	case ExpectRejected:
		ok = validation.IsRejected(err)
	case ExpectNotFound:
		ok = errors.Is(err, ErrNotFound)
	default:
		ok = model.HasCode(err, model.ErrorCode(expect))
	}
	if !ok {
		return fmt.Sprintf("expected error %s, got: %v", expect, err)
	}
	return ""
}

func (h *Harness) execute(step Step) error {
	s := h.session
	switch step.Op {
	case OpCreateDocument:
		_, err := s.CreateDocument(step.Name)
		return err
	case OpSavepoint:
		sp, err := s.CreateSavepoint(step.Savepoint)
		if err != nil {
			return err
		}
		h.savepoints[step.Savepoint] = sp
		return nil
	case OpDeleteSavepoint, OpRollback:
		sp, ok := h.savepoints[step.Savepoint]
		if !ok {
			return fmt.Errorf("savepoint %q: %w", step.Savepoint, ErrNotFound)
		}
		if step.Op == OpRollback {
			return s.RollbackTo(sp)
		}
		return sp.Delete()
	}

	doc, ok := s.Document(step.Document)
	if !ok {
		return fmt.Errorf("document %q: %w", step.Document, ErrNotFound)
	}
	switch step.Op {
	case OpDeleteDocument:
		return doc.Delete()
	case OpMarkClean:
		return doc.MarkClean()
	case OpMoveLibrary:
		target, ok := s.Document(step.Target)
		if !ok {
			return fmt.Errorf("document %q: %w", step.Target, ErrNotFound)
		}
		lib, err := h.library(doc, step.Kind, step.Library)
		if err != nil {
			return err
		}
		return lib.Reparent(target)
	}

	kind, err := model.ParseKind(step.Kind)
	if err != nil {
		return err
	}

	switch step.Op {
	case OpCreateLibrary:
		_, err := doc.CreateLibrary(kind, step.Name)
		return err
	case OpRenameLibrary, OpDeleteLibrary, OpCreateClass:
		lib, err := h.library(doc, step.Kind, step.Library)
		if err != nil {
			return err
		}
		switch step.Op {
		case OpRenameLibrary:
			return lib.SetName(step.Name)
		case OpDeleteLibrary:
			return lib.Delete()
		default:
			_, err := lib.CreateClass(step.Name)
			return err
		}
	}

	c, ok := doc.ClassByPath(kind, step.Class)
	if !ok {
		return fmt.Errorf("class %q: %w", step.Class, ErrNotFound)
	}
	switch step.Op {
	case OpRenameClass:
		return c.SetName(step.Name)
	case OpDeleteClass:
		return c.Delete()
	case OpClearBase:
		return c.SetBaseClass(nil)
	case OpSetBase:
		base, ok := doc.ClassByPath(kind, step.Base)
		if !ok {
			return fmt.Errorf("base %q: %w", step.Base, ErrNotFound)
		}
		return c.SetBaseClass(base)
	case OpMoveClass:
		target, err := h.library(doc, step.Kind, step.Target)
		if err != nil {
			return err
		}
		return c.Reparent(target)
	}
	return fmt.Errorf("unknown op %q", step.Op)
}

func (h *Harness) library(doc *model.Document, kindName, name string) (*model.Library, error) {
	kind, err := model.ParseKind(kindName)
	if err != nil {
		return nil, err
	}
	lib, ok := doc.Library(kind, name)
	if !ok {
		return nil, fmt.Errorf("%s library %q: %w", kind, name, ErrNotFound)
	}
	return lib, nil
}
