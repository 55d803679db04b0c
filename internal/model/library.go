package model

import (
	"fmt"
	"slices"

	"github.com/roach88/amlkernel/internal/ident"
	"github.com/roach88/amlkernel/internal/validation"
)

// Library is a named container of classes of one hierarchy kind.
//
// INVARIANTS:
//   - the name is unique among live libraries of the same kind in the document
//   - class names are unique within the library
//   - a library that owns classes cannot be deleted
type Library struct {
	doc     *Document
	kind    Kind
	id      ident.ID
	name    string
	classes []*Class
	deleted bool
}

func (l *Library) ID() ident.ID { return l.id }
func (l *Library) Name() string { return l.name }
func (l *Library) Kind() Kind { return l.kind }

// Label renders the library as "<kind>-library <name>".
func (l *Library) Label() string {
	return fmt.Sprintf("%s-library %s", l.kind, l.name)
}

// Document returns the owning document.
func (l *Library) Document() *Document { return l.doc }

// IsDeleted reports whether the library was removed.
func (l *Library) IsDeleted() bool { return l.deleted }

// Classes returns the live classes in insertion order.
func (l *Library) Classes() []*Class {
	return slices.Clone(l.classes)
}

// Len returns the number of classes.
func (l *Library) Len() int { return len(l.classes) }

// Class returns the class named name.
func (l *Library) Class(name string) (*Class, bool) {
	for _, c := range l.classes {
		if c.name == name {
			return c, true
		}
	}
	return nil, false
}

func (l *Library) subject() validation.Subject {
	return validation.Subject{ID: l.id, Name: l.name}
}

func (l *Library) session() *Session { return l.doc.s }

// --- create class ---

// CreateClass adds a class to l. The name must be unique within l.
func (l *Library) CreateClass(name string) (*Class, error) {
	results, err := l.planCreateClass(name)
	s := l.session()
	if err := s.admit(OpCreateClass, results, err); err != nil {
		return nil, err
	}

	s.bus.Enter()
	defer s.bus.Exit()

	c := &Class{lib: l, kind: l.kind, id: s.ids.Mint(), name: name}
	s.emitValidated(l.doc, c, results)
	c.attach(l, -1)
	l.doc.touch()
	return c, nil
}

// ValidateCreateClass is the dry run of CreateClass.
func (l *Library) ValidateCreateClass(name string) validation.ResultList {
	results, err := l.planCreateClass(name)
	return dryRun(validation.Subject{Name: name}, results, err)
}

func (l *Library) planCreateClass(name string) (validation.ResultList, error) {
	if err := l.checkLive(OpCreateClass); err != nil {
		return nil, err
	}
	if err := checkName(OpCreateClass, name); err != nil {
		return nil, err
	}
	if err := l.checkClassNameFree(OpCreateClass, name, nil); err != nil {
		return nil, err
	}
	return l.session().validator.ValidateCreateClass(l, name), nil
}

// --- rename ---

// SetName renames l. Renaming to the current name is a no-op.
func (l *Library) SetName(name string) error {
	if err := l.checkLive(OpRenameLibrary); err != nil {
		return err
	}
	if name == l.name {
		return nil
	}
	results, err := l.planSetName(name)
	s := l.session()
	if err := s.admit(OpRenameLibrary, results, err); err != nil {
		return err
	}

	s.bus.Enter()
	defer s.bus.Exit()

	s.emitValidated(l.doc, l, results)
	l.rename(name)
	l.doc.touch()
	return nil
}

// ValidateSetName is the dry run of SetName.
func (l *Library) ValidateSetName(name string) validation.ResultList {
	results, err := l.planSetName(name)
	return dryRun(l.subject(), results, err)
}

func (l *Library) planSetName(name string) (validation.ResultList, error) {
	if err := l.checkLive(OpRenameLibrary); err != nil {
		return nil, err
	}
	if err := checkName(OpRenameLibrary, name); err != nil {
		return nil, err
	}
	if err := l.doc.checkLibraryNameFree(OpRenameLibrary, l.kind, name, l); err != nil {
		return nil, err
	}
	return l.session().validator.ValidateSetLibraryName(l, name), nil
}

// --- delete ---

// Delete removes an empty library.
//
// A library that still owns classes is refused with a
// *validation.RejectedError whose cause has ErrCodeNonEmptyContainer;
// the validator is not consulted in that case.
func (l *Library) Delete() error {
	results, err := l.planDelete()
	s := l.session()
	if err := s.admit(OpDeleteLibrary, results, err); err != nil {
		return err
	}

	s.bus.Enter()
	defer s.bus.Exit()

	doc := l.doc
	s.emitValidated(doc, l, results)
	l.detach()
	doc.touch()
	return nil
}

// ValidateDelete is the dry run of Delete.
func (l *Library) ValidateDelete() validation.ResultList {
	results, err := l.planDelete()
	return dryRun(l.subject(), results, err)
}

func (l *Library) planDelete() (validation.ResultList, error) {
	if err := l.checkLive(OpDeleteLibrary); err != nil {
		return nil, err
	}
	if n := len(l.classes); n > 0 {
		cause := newError(ErrCodeNonEmptyContainer, OpDeleteLibrary, l.Label(),
			"library still owns %d classes", n)
		return nil, &validation.RejectedError{
			Op:      OpDeleteLibrary,
			Results: validation.ResultList{validation.Deny(l.subject(), RuleStructure, cause.Message)},
			Cause:   cause,
		}
	}
	return l.session().validator.ValidateDeleteLibrary(l), nil
}

// --- reparent ---

// Reparent moves l to another document of the same session.
//
// The move is refused with ErrCodeCrossDocumentReference while a class of
// l derives from, or is the base of, a class outside l.
func (l *Library) Reparent(target *Document) error {
	if err := l.checkLive(OpReparentLibrary); err != nil {
		return err
	}
	if target == l.doc {
		return nil
	}
	results, err := l.planReparent(target)
	s := l.session()
	if err := s.admit(OpReparentLibrary, results, err); err != nil {
		return err
	}

	s.bus.Enter()
	defer s.bus.Exit()

	from := l.doc
	s.emitValidated(from, l, results)
	l.move(target, -1)
	from.touch()
	target.touch()
	return nil
}

// ValidateReparent is the dry run of Reparent.
func (l *Library) ValidateReparent(target *Document) validation.ResultList {
	results, err := l.planReparent(target)
	return dryRun(l.subject(), results, err)
}

func (l *Library) planReparent(target *Document) (validation.ResultList, error) {
	if err := l.checkLive(OpReparentLibrary); err != nil {
		return nil, err
	}
	if target == nil || target.s != l.doc.s {
		return nil, newError(ErrCodeForeignDocument, OpReparentLibrary, l.Label(),
			"target document belongs to another session")
	}
	if err := target.checkLive(OpReparentLibrary); err != nil {
		return nil, err
	}
	if target != l.doc {
		if err := target.checkLibraryNameFree(OpReparentLibrary, l.kind, l.name, nil); err != nil {
			return nil, err
		}
		for _, c := range l.classes {
			if ref := c.externalReference(); ref != nil {
				return nil, newError(ErrCodeCrossDocumentReference, OpReparentLibrary, l.Label(),
					"%s is linked to %s outside the library", c.Path(), ref.Path())
			}
		}
	}
	return l.session().validator.ValidateReparentLibrary(l, target), nil
}

// --- internals ---

func (l *Library) checkLive(op string) error {
	if err := l.session().checkOpen(op); err != nil {
		return err
	}
	if l.deleted {
		return newError(ErrCodeDeletedEntity, op, l.Label(), "library was deleted")
	}
	return nil
}

func (l *Library) checkClassNameFree(op, name string, self *Class) error {
	if other, ok := l.Class(name); ok && other != self {
		return newError(ErrCodeUniqueness, op, other.Label(),
			"class %q already exists in %s", name, l.Label())
	}
	return nil
}

// attach makes l live in d at position i (-1 appends).
func (l *Library) attach(d *Document, i int) {
	l.doc = d
	l.deleted = false
	d.libs[l.kind] = insertAt(d.libs[l.kind], i, l)
	s := d.s
	s.record(func() { l.detach() })
	s.emit(Event{Type: EventCreated, Document: d, Entity: l})
}

// detach retires l. Deleting is dispatched while l is still attached.
func (l *Library) detach() {
	d, s := l.doc, l.doc.s
	s.emit(Event{Type: EventDeleting, Document: d, Entity: l})

	i := slices.Index(d.libs[l.kind], l)
	d.libs[l.kind] = slices.Delete(d.libs[l.kind], i, i+1)
	l.deleted = true
	s.release(l.id)
	s.record(func() {
		s.reclaim(l.id)
		l.attach(d, i)
	})
}

func (l *Library) rename(name string) {
	old := l.name
	l.name = name
	s := l.session()
	s.record(func() { l.rename(old) })
	s.emit(Event{Type: EventModified, Document: l.doc, Entity: l})
}

// move transfers l to target at position at (-1 appends).
func (l *Library) move(target *Document, at int) {
	from := l.doc
	i := slices.Index(from.libs[l.kind], l)
	from.libs[l.kind] = slices.Delete(from.libs[l.kind], i, i+1)
	l.doc = target
	target.libs[l.kind] = insertAt(target.libs[l.kind], at, l)

	s := target.s
	s.record(func() { l.move(from, i) })
	s.emit(Event{Type: EventReparented, Document: from, Entity: l, OldParent: from, NewParent: target})
}
