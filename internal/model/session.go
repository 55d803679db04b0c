package model

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/amlkernel/internal/ident"
	"github.com/roach88/amlkernel/internal/notify"
	"github.com/roach88/amlkernel/internal/undo"
	"github.com/roach88/amlkernel/internal/validation"
)

// Operation names used in errors, logs and validation results.
const (
	OpCreateDocument  = "document.create"
	OpDeleteDocument  = "document.delete"
	OpCreateLibrary   = "library.create"
	OpRenameLibrary   = "library.rename"
	OpDeleteLibrary   = "library.delete"
	OpReparentLibrary = "library.reparent"
	OpCreateClass     = "class.create"
	OpRenameClass     = "class.rename"
	OpDeleteClass     = "class.delete"
	OpSetBaseClass    = "class.set_base"
	OpReparentClass   = "class.reparent"
)

// RuleStructure tags results produced by the kernel's own structural
// checks in dry-run result lists.
const RuleStructure = "structure"

// IdentifierView is the read-only face of the session's identifier manager.
type IdentifierView interface {
	IsEmpty() bool
	Len() int
	IsLive(id ident.ID) bool
	Live() []ident.ID
}

// Option configures a Session.
type Option func(*Session)

// WithGenerator sets the identifier generator.
// Default: ident.UUIDv7Generator.
func WithGenerator(g ident.Generator) Option {
	return func(s *Session) {
		s.gen = g
	}
}

// WithLogger sets the session logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// WithValidator installs a validator at construction time.
func WithValidator(f ValidatorFactory) Option {
	return func(s *Session) {
		s.pending = f
	}
}

// Session is the aggregate root: it owns the documents together with the
// identifier manager, the savepoint stack, the notification bus and the
// installed validator.
//
// Every public mutating call on the session or on an entity it owns:
//  1. runs structural checks (names, uniqueness, containment, cycles)
//  2. consults the validator; a veto returns *validation.RejectedError
//  3. opens a notification transaction
//  4. applies the change, recording its inverse on the current savepoint
//  5. emits Validated (when the validator returned findings) and the
//     change event
//
// A failure in 1 or 2 leaves no trace: no state change, no savepoint
// entry, no event.
//
// Thread-safety: none. A session has a single writer; callers serialize.
type Session struct {
	gen     ident.Generator
	logger  *slog.Logger
	pending ValidatorFactory

	ids  *ident.Manager
	undo *undo.Manager
	bus  *notify.Bus[Event]

	validator Validator
	installed bool

	docs      []*Document
	listeners listenerSet
	observers listenerSet
	closed    bool
}

// NewSession creates an empty session.
func NewSession(opts ...Option) *Session {
	s := &Session{
		logger:    slog.Default(),
		bus:       notify.NewBus[Event](),
		validator: NopValidator{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ids = ident.NewManager(s.gen)
	s.undo = undo.New(
		undo.WithReplayHooks(s.bus.Enter, s.bus.Exit),
		undo.WithLogger(s.logger),
	)
	if s.pending != nil {
		// Cannot fail: no validator is installed yet.
		_ = s.SetValidator(s.pending)
		s.pending = nil
	}
	return s
}

// Logger returns the session logger.
func (s *Session) Logger() *slog.Logger {
	return s.logger
}

// Identifiers exposes the identifier manager for leak checks.
func (s *Session) Identifiers() IdentifierView {
	return s.ids
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	return s.closed
}

// --- documents ---

// Documents returns the live documents in creation order.
func (s *Session) Documents() []*Document {
	return slices.Clone(s.docs)
}

// Document returns the live document with the given name.
func (s *Session) Document(name string) (*Document, bool) {
	for _, d := range s.docs {
		if d.name == name {
			return d, true
		}
	}
	return nil, false
}

// CreateDocument adds a new, clean document.
// Document names are unique within the session.
func (s *Session) CreateDocument(name string) (*Document, error) {
	results, err := s.planCreateDocument(name)
	if err := s.admit(OpCreateDocument, results, err); err != nil {
		return nil, err
	}

	s.bus.Enter()
	defer s.bus.Exit()

	d := &Document{s: s, id: s.ids.Mint(), name: name}
	s.emitValidated(d, d, results)
	s.insertDocument(d, -1)
	return d, nil
}

// ValidateCreateDocument is the dry run of CreateDocument.
func (s *Session) ValidateCreateDocument(name string) validation.ResultList {
	results, err := s.planCreateDocument(name)
	return dryRun(validation.Subject{Name: name}, results, err)
}

func (s *Session) planCreateDocument(name string) (validation.ResultList, error) {
	if err := s.checkOpen(OpCreateDocument); err != nil {
		return nil, err
	}
	if err := checkName(OpCreateDocument, name); err != nil {
		return nil, err
	}
	if _, dup := s.Document(name); dup {
		return nil, newError(ErrCodeUniqueness, OpCreateDocument, "document "+name,
			"a document named %q already exists", name)
	}
	return s.validator.ValidateCreateDocument(s, name), nil
}

// insertDocument makes d live at position i (-1 appends).
func (s *Session) insertDocument(d *Document, i int) {
	d.deleted = false
	s.docs = insertAt(s.docs, i, d)
	s.record(func() { s.removeDocument(d) })
	s.emit(Event{Type: EventDocumentAdded, Document: d, Entity: d})
	s.emit(Event{Type: EventCreated, Document: d, Entity: d})
}

// removeDocument retires d and everything it owns.
//
// DocumentRemoving is dispatched first, while d is fully valid. Classes
// are removed derived-first so that a rollback recreates every base
// before the classes that reference it.
func (s *Session) removeDocument(d *Document) {
	s.emit(Event{Type: EventDocumentRemoving, Document: d, Entity: d})

	for _, kind := range Kinds {
		for _, c := range d.classesDerivedFirst(kind) {
			c.detach()
		}
		for len(d.libs[kind]) > 0 {
			libs := d.libs[kind]
			libs[len(libs)-1].detach()
		}
	}

	s.emit(Event{Type: EventDeleting, Document: d, Entity: d})
	i := slices.Index(s.docs, d)
	s.docs = slices.Delete(s.docs, i, i+1)
	d.deleted = true
	s.release(d.id)
	s.record(func() {
		s.reclaim(d.id)
		s.insertDocument(d, i)
	})
}

// --- validator slot ---

// SetValidator installs the validator created by factory.
// Fails with ErrCodeValidatorAlreadySet if one is installed. A nil factory,
// like a factory returning nil, installs a validator that permits
// everything.
func (s *Session) SetValidator(factory ValidatorFactory) error {
	if err := s.checkOpen("session.set_validator"); err != nil {
		return err
	}
	if s.installed {
		return newError(ErrCodeValidatorAlreadySet, "session.set_validator", "",
			"a validator is already installed; unset it first")
	}
	var v Validator
	if factory != nil {
		v = factory(s)
	}
	if v == nil {
		v = NopValidator{}
	}
	s.validator = v
	s.installed = true
	s.logger.Debug("validator installed", "type", fmt.Sprintf("%T", v))
	return nil
}

// UnsetValidator disposes the installed validator and restores the
// permit-all default. It reports whether a validator was installed.
func (s *Session) UnsetValidator() bool {
	if !s.installed {
		return false
	}
	v := s.validator
	s.validator = NopValidator{}
	s.installed = false
	v.Dispose()
	s.logger.Debug("validator disposed", "type", fmt.Sprintf("%T", v))
	return true
}

// HasValidator reports whether a validator is installed.
func (s *Session) HasValidator() bool {
	return s.installed
}

// --- savepoints ---

// CreateSavepoint pushes a savepoint; an empty name is generated.
// Fails with ErrCodeRollbackInProgress when called from a listener during
// a rollback.
func (s *Session) CreateSavepoint(name string) (*undo.Savepoint, error) {
	if err := s.checkOpen("session.create_savepoint"); err != nil {
		return nil, err
	}
	sp, err := s.undo.Create(name)
	if err != nil {
		return nil, fmt.Errorf("create savepoint: %w", err)
	}
	s.logger.Debug("savepoint created", "savepoint", sp.Name(), "depth", s.undo.Len())
	return sp, nil
}

// RollbackTo restores the state captured by sp and discards sp together
// with every newer savepoint. Compensating events are delivered in one
// notification transaction. Rolling back to a discarded savepoint is a
// no-op.
func (s *Session) RollbackTo(sp *undo.Savepoint) error {
	if err := s.undo.Rollback(sp); err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	s.logger.Info("rolled back to savepoint", "savepoint", sp.Name(), "depth", s.undo.Len())
	return nil
}

// HasCurrentSavepoint reports whether the savepoint stack is non-empty.
func (s *Session) HasCurrentSavepoint() bool {
	return s.undo.HasCurrent()
}

// CurrentSavepoint returns the topmost savepoint, or nil.
func (s *Session) CurrentSavepoint() *undo.Savepoint {
	return s.undo.Current()
}

// Savepoints returns the savepoint stack, oldest first.
func (s *Session) Savepoints() []*undo.Savepoint {
	return s.undo.Savepoints()
}

// --- listeners ---

// AddListener registers l for session-level events (document added and
// removing). Listeners must be comparable; pass pointers.
func (s *Session) AddListener(l Listener) {
	s.listeners.add(s.bus, l, func(e Event) bool { return e.Type.SessionLevel() })
}

// RemoveListener unregisters l.
func (s *Session) RemoveListener(l Listener) bool {
	return s.listeners.remove(s.bus, l)
}

// AddObserver registers l for every event of the session, document-level
// events of all documents included. Journals and tracers use it.
func (s *Session) AddObserver(l Listener) {
	s.observers.add(s.bus, l, nil)
}

// RemoveObserver unregisters an observer added with AddObserver.
func (s *Session) RemoveObserver(l Listener) bool {
	return s.observers.remove(s.bus, l)
}

// --- teardown ---

// Close deletes every document, commits all savepoints and disposes the
// validator. It returns ErrIdentifierLeak or ErrSavepointLeak when the
// session does not tear down clean. Close is idempotent, and is refused
// with ErrCodeRollbackInProgress from a listener during a rollback.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	if err := s.checkOpen("session.close"); err != nil {
		return err
	}

	s.undo.Clear()
	if len(s.docs) > 0 {
		s.bus.Enter()
		for len(s.docs) > 0 {
			s.removeDocument(s.docs[len(s.docs)-1])
		}
		s.bus.Exit()
	}
	s.UnsetValidator()
	s.closed = true

	var errs []error
	if s.undo.HasCurrent() {
		errs = append(errs, fmt.Errorf("%w: %d savepoints", ErrSavepointLeak, s.undo.Len()))
	}
	if !s.ids.IsEmpty() {
		errs = append(errs, fmt.Errorf("%w: %d outstanding %v", ErrIdentifierLeak, s.ids.Len(), s.ids.Live()))
	}
	if err := errors.Join(errs...); err != nil {
		s.logger.Error("session teardown defect", "error", err)
		return err
	}
	s.logger.Info("session closed")
	return nil
}

// --- internals shared by all entities ---

func (s *Session) checkOpen(op string) error {
	if s.closed {
		return newError(ErrCodeDeletedEntity, op, "", "session is closed")
	}
	if s.undo.Replaying() {
		return newError(ErrCodeRollbackInProgress, op, "", "changes are refused while a rollback is replaying")
	}
	return nil
}

// admit turns a plan outcome into the error returned by a mutation.
func (s *Session) admit(op string, results validation.ResultList, err error) error {
	if err != nil {
		s.logger.Debug("operation refused", "op", op, "error", err)
		return err
	}
	if !results.Permitted() {
		s.logger.Warn("operation rejected by validator",
			"op", op,
			"blocking", len(results.Blocking()),
		)
		return &validation.RejectedError{Op: op, Results: slices.Clone(results)}
	}
	return nil
}

// dryRun turns a plan outcome into the result list a Validate* method
// returns. Structural errors become non-permitted results.
func dryRun(subject validation.Subject, results validation.ResultList, err error) validation.ResultList {
	if err == nil {
		return results
	}
	var re *validation.RejectedError
	if errors.As(err, &re) {
		return re.Results
	}
	return validation.ResultList{validation.Deny(subject, RuleStructure, err.Error())}
}

func (s *Session) emit(e Event) {
	e.Compensating = s.undo.Replaying()
	s.logger.Debug("change event", "event", e.Type.String(), "entity", labelOf(e.Entity))
	s.bus.Emit(e)
}

func (s *Session) emitValidated(d *Document, subject Entity, results validation.ResultList) {
	if len(results) == 0 {
		return
	}
	s.emit(Event{Type: EventValidated, Document: d, Entity: subject, Results: slices.Clone(results)})
}

func (s *Session) record(inv undo.Inverse) {
	s.undo.Record(inv)
}

// release and reclaim only fail on bookkeeping defects.
func (s *Session) release(id ident.ID) {
	if err := s.ids.Release(id); err != nil {
		panic(fmt.Sprintf("model: %v", err))
	}
}

func (s *Session) reclaim(id ident.ID) {
	if err := s.ids.Reclaim(id); err != nil {
		panic(fmt.Sprintf("model: %v", err))
	}
}

func labelOf(e Entity) string {
	if e == nil {
		return ""
	}
	return e.Label()
}

// insertAt inserts v at i, appending when i is out of range.
func insertAt[T any](s []T, i int, v T) []T {
	if i < 0 || i > len(s) {
		return append(s, v)
	}
	return slices.Insert(s, i, v)
}
