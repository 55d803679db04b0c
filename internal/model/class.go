package model

import (
	"fmt"
	"slices"

	"github.com/roach88/amlkernel/internal/ident"
	"github.com/roach88/amlkernel/internal/validation"
)

// Class is an interface, role or system-unit class owned by a library.
//
// The base-class link is a non-owning reference to a class of the same
// kind in the same document. Every class keeps the reverse index of the
// classes deriving from it, so delete checks never walk the graph.
//
// INVARIANTS:
//   - base is nil or a live class of the same kind and document
//   - following base links from any class never returns to it
//   - c is in base.derived exactly when c.base == base and c is live
type Class struct {
	lib     *Library
	kind    Kind
	id      ident.ID
	name    string
	base    *Class
	derived []*Class
	deleted bool
}

func (c *Class) ID() ident.ID { return c.id }
func (c *Class) Name() string { return c.name }
func (c *Class) Kind() Kind { return c.kind }

// Label renders the class as "<kind>-class <library>/<class>".
func (c *Class) Label() string {
	return fmt.Sprintf("%s-class %s", c.kind, c.Path())
}

// Path returns "<library>/<class>".
func (c *Class) Path() string {
	return c.lib.name + PathSeparator + c.name
}

// Library returns the owning library.
func (c *Class) Library() *Library { return c.lib }

// Document returns the owning document.
func (c *Class) Document() *Document { return c.lib.doc }

// IsDeleted reports whether the class was removed.
func (c *Class) IsDeleted() bool { return c.deleted }

// BaseClass returns the base class, or nil.
func (c *Class) BaseClass() *Class { return c.base }

// DerivedClasses returns the live classes whose base is c.
func (c *Class) DerivedClasses() []*Class {
	return slices.Clone(c.derived)
}

// DerivesFrom reports whether other is reachable through base links.
func (c *Class) DerivesFrom(other *Class) bool {
	for b := c.base; b != nil; b = b.base {
		if b == other {
			return true
		}
	}
	return false
}

func (c *Class) subject() validation.Subject {
	return validation.Subject{ID: c.id, Name: c.Path()}
}

func (c *Class) session() *Session { return c.lib.doc.s }

// --- rename ---

// SetName renames c. Renaming to the current name is a no-op.
func (c *Class) SetName(name string) error {
	if err := c.checkLive(OpRenameClass); err != nil {
		return err
	}
	if name == c.name {
		return nil
	}
	results, err := c.planSetName(name)
	s := c.session()
	if err := s.admit(OpRenameClass, results, err); err != nil {
		return err
	}

	s.bus.Enter()
	defer s.bus.Exit()

	s.emitValidated(c.Document(), c, results)
	c.rename(name)
	c.Document().touch()
	return nil
}

// ValidateSetName is the dry run of SetName.
func (c *Class) ValidateSetName(name string) validation.ResultList {
	results, err := c.planSetName(name)
	return dryRun(c.subject(), results, err)
}

func (c *Class) planSetName(name string) (validation.ResultList, error) {
	if err := c.checkLive(OpRenameClass); err != nil {
		return nil, err
	}
	if err := checkName(OpRenameClass, name); err != nil {
		return nil, err
	}
	if err := c.lib.checkClassNameFree(OpRenameClass, name, c); err != nil {
		return nil, err
	}
	return c.session().validator.ValidateSetClassName(c, name), nil
}

// --- base class ---

// SetBaseClass points c at base; nil clears the link.
//
// base must be a live class of the same kind (ErrCodeKindMismatch) and
// document (ErrCodeForeignDocument). Fails with ErrCodeCyclicInheritance
// when base is c or already derives from c.
func (c *Class) SetBaseClass(base *Class) error {
	if err := c.checkLive(OpSetBaseClass); err != nil {
		return err
	}
	if base == c.base {
		return nil
	}
	results, err := c.planSetBaseClass(base)
	s := c.session()
	if err := s.admit(OpSetBaseClass, results, err); err != nil {
		return err
	}

	s.bus.Enter()
	defer s.bus.Exit()

	s.emitValidated(c.Document(), c, results)
	c.setBase(base, -1)
	c.Document().touch()
	return nil
}

// ValidateSetBaseClass is the dry run of SetBaseClass.
func (c *Class) ValidateSetBaseClass(base *Class) validation.ResultList {
	results, err := c.planSetBaseClass(base)
	return dryRun(c.subject(), results, err)
}

func (c *Class) planSetBaseClass(base *Class) (validation.ResultList, error) {
	if err := c.checkLive(OpSetBaseClass); err != nil {
		return nil, err
	}
	if base != nil {
		if err := base.checkLive(OpSetBaseClass); err != nil {
			return nil, err
		}
		if base.kind != c.kind {
			return nil, newError(ErrCodeKindMismatch, OpSetBaseClass, c.Label(),
				"base %s is not a %s class", base.Label(), c.kind)
		}
		if base.Document() != c.Document() {
			return nil, newError(ErrCodeForeignDocument, OpSetBaseClass, c.Label(),
				"base %s belongs to %s", base.Label(), base.Document().Label())
		}
		if base == c || base.DerivesFrom(c) {
			return nil, newError(ErrCodeCyclicInheritance, OpSetBaseClass, c.Label(),
				"deriving from %s would create an inheritance cycle", base.Path())
		}
	}
	return c.session().validator.ValidateSetBaseClass(c, base), nil
}

// --- delete ---

// Delete removes c.
//
// A class that is the base of another live class is refused with a
// *validation.RejectedError whose cause has ErrCodeNonEmptyContainer.
// Deleting a derived class only drops its own link; the base is untouched.
func (c *Class) Delete() error {
	results, err := c.planDelete()
	s := c.session()
	if err := s.admit(OpDeleteClass, results, err); err != nil {
		return err
	}

	s.bus.Enter()
	defer s.bus.Exit()

	doc := c.Document()
	s.emitValidated(doc, c, results)
	c.detach()
	doc.touch()
	return nil
}

// ValidateDelete is the dry run of Delete.
func (c *Class) ValidateDelete() validation.ResultList {
	results, err := c.planDelete()
	return dryRun(c.subject(), results, err)
}

func (c *Class) planDelete() (validation.ResultList, error) {
	if err := c.checkLive(OpDeleteClass); err != nil {
		return nil, err
	}
	if n := len(c.derived); n > 0 {
		cause := newError(ErrCodeNonEmptyContainer, OpDeleteClass, c.Label(),
			"class is the base of %d classes, e.g. %s", n, c.derived[0].Path())
		return nil, &validation.RejectedError{
			Op:      OpDeleteClass,
			Results: validation.ResultList{validation.Deny(c.subject(), RuleStructure, cause.Message)},
			Cause:   cause,
		}
	}
	return c.session().validator.ValidateDeleteClass(c), nil
}

// --- reparent ---

// Reparent moves c to another library of the same kind and document.
func (c *Class) Reparent(target *Library) error {
	if err := c.checkLive(OpReparentClass); err != nil {
		return err
	}
	if target == c.lib {
		return nil
	}
	results, err := c.planReparent(target)
	s := c.session()
	if err := s.admit(OpReparentClass, results, err); err != nil {
		return err
	}

	s.bus.Enter()
	defer s.bus.Exit()

	s.emitValidated(c.Document(), c, results)
	c.move(target, -1)
	c.Document().touch()
	return nil
}

// ValidateReparent is the dry run of Reparent.
func (c *Class) ValidateReparent(target *Library) validation.ResultList {
	results, err := c.planReparent(target)
	return dryRun(c.subject(), results, err)
}

func (c *Class) planReparent(target *Library) (validation.ResultList, error) {
	if err := c.checkLive(OpReparentClass); err != nil {
		return nil, err
	}
	if target == nil {
		return nil, newError(ErrCodeDeletedEntity, OpReparentClass, c.Label(), "no target library")
	}
	if err := target.checkLive(OpReparentClass); err != nil {
		return nil, err
	}
	if target.kind != c.kind {
		return nil, newError(ErrCodeKindMismatch, OpReparentClass, c.Label(),
			"target %s is not a %s library", target.Label(), c.kind)
	}
	if target.doc != c.Document() {
		return nil, newError(ErrCodeForeignDocument, OpReparentClass, c.Label(),
			"target %s belongs to %s", target.Label(), target.doc.Label())
	}
	if target != c.lib {
		if err := target.checkClassNameFree(OpReparentClass, c.name, nil); err != nil {
			return nil, err
		}
	}
	return c.session().validator.ValidateReparentClass(c, target), nil
}

// --- internals ---

func (c *Class) checkLive(op string) error {
	if err := c.session().checkOpen(op); err != nil {
		return err
	}
	if c.deleted {
		return newError(ErrCodeDeletedEntity, op, c.Label(), "class was deleted")
	}
	return nil
}

// externalReference returns a class outside c's library that c is linked
// to through its base or derived classes, or nil.
func (c *Class) externalReference() *Class {
	if c.base != nil && c.base.lib != c.lib {
		return c.base
	}
	for _, d := range c.derived {
		if d.lib != c.lib {
			return d
		}
	}
	return nil
}

func (c *Class) linkDerived(d *Class, at int) {
	c.derived = insertAt(c.derived, at, d)
}

func (c *Class) unlinkDerived(d *Class) int {
	i := slices.Index(c.derived, d)
	if i >= 0 {
		c.derived = slices.Delete(c.derived, i, i+1)
	}
	return i
}

// attach makes c live in lib at position i (-1 appends).
func (c *Class) attach(lib *Library, i int) {
	c.lib = lib
	c.deleted = false
	lib.classes = insertAt(lib.classes, i, c)
	s := lib.session()
	s.record(func() { c.detach() })
	s.emit(Event{Type: EventCreated, Document: lib.doc, Entity: c})
}

// detach retires c. Deleting is dispatched while c is still attached.
// The base link itself is kept so that a rollback can restore it.
func (c *Class) detach() {
	lib, s := c.lib, c.session()
	s.emit(Event{Type: EventDeleting, Document: lib.doc, Entity: c})

	i := slices.Index(lib.classes, c)
	lib.classes = slices.Delete(lib.classes, i, i+1)
	at := -1
	if c.base != nil {
		at = c.base.unlinkDerived(c)
	}
	c.deleted = true
	s.release(c.id)
	s.record(func() {
		s.reclaim(c.id)
		if c.base != nil {
			c.base.linkDerived(c, at)
		}
		c.attach(lib, i)
	})
}

func (c *Class) rename(name string) {
	old := c.name
	c.name = name
	s := c.session()
	s.record(func() { c.rename(old) })
	s.emit(Event{Type: EventModified, Document: c.Document(), Entity: c})
}

// setBase relinks c; at positions c in the new base's reverse index
// (-1 appends).
func (c *Class) setBase(base *Class, at int) {
	old := c.base
	oldAt := -1
	if old != nil {
		oldAt = old.unlinkDerived(c)
	}
	c.base = base
	if base != nil {
		base.linkDerived(c, at)
	}
	s := c.session()
	s.record(func() { c.setBase(old, oldAt) })
	s.emit(Event{Type: EventModified, Document: c.Document(), Entity: c})
}

// move transfers c to target at position at (-1 appends).
func (c *Class) move(target *Library, at int) {
	from := c.lib
	i := slices.Index(from.classes, c)
	from.classes = slices.Delete(from.classes, i, i+1)
	c.lib = target
	target.classes = insertAt(target.classes, at, c)

	s := c.session()
	s.record(func() { c.move(from, i) })
	s.emit(Event{Type: EventReparented, Document: target.doc, Entity: c, OldParent: from, NewParent: target})
}
