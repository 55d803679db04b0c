package model

import (
	"slices"
	"strings"

	"github.com/roach88/amlkernel/internal/ident"
	"github.com/roach88/amlkernel/internal/validation"
)

// PathSeparator joins a library name and a class name into a class path.
const PathSeparator = "/"

// Document owns one library set per hierarchy kind.
type Document struct {
	s       *Session
	id      ident.ID
	name    string
	libs    [kindCount][]*Library
	dirty   bool
	deleted bool

	listeners listenerSet
}

func (d *Document) ID() ident.ID { return d.id }
func (d *Document) Name() string { return d.name }
func (d *Document) Label() string { return "document " + d.name }

// Session returns the owning session.
func (d *Document) Session() *Session { return d.s }

// IsDeleted reports whether d was removed from its session.
func (d *Document) IsDeleted() bool { return d.deleted }

// IsDirty reports whether d changed since creation or the last MarkClean.
func (d *Document) IsDirty() bool { return d.dirty }

func (d *Document) subject() validation.Subject {
	return validation.Subject{ID: d.id, Name: d.name}
}

// --- read API ---

// Libraries returns the live libraries of kind in creation order.
func (d *Document) Libraries(kind Kind) []*Library {
	if !kind.Valid() {
		return nil
	}
	return slices.Clone(d.libs[kind])
}

// Library returns the live library of kind named name.
// Lookup is exact and isolated per kind.
func (d *Document) Library(kind Kind, name string) (*Library, bool) {
	if !kind.Valid() {
		return nil, false
	}
	for _, lib := range d.libs[kind] {
		if lib.name == name {
			return lib, true
		}
	}
	return nil, false
}

func (d *Document) InterfaceClassLibrary(name string) (*Library, bool) {
	return d.Library(KindInterface, name)
}

func (d *Document) RoleClassLibrary(name string) (*Library, bool) {
	return d.Library(KindRole, name)
}

func (d *Document) SystemUnitClassLibrary(name string) (*Library, bool) {
	return d.Library(KindSystemUnit, name)
}

// ClassByPath resolves "<library>/<class>" within one hierarchy kind.
// A malformed or absent path is reported as not found, never as an error.
func (d *Document) ClassByPath(kind Kind, path string) (*Class, bool) {
	libName, className, ok := strings.Cut(path, PathSeparator)
	if !ok {
		return nil, false
	}
	lib, ok := d.Library(kind, libName)
	if !ok {
		return nil, false
	}
	return lib.Class(className)
}

func (d *Document) InterfaceClassByPath(path string) (*Class, bool) {
	return d.ClassByPath(KindInterface, path)
}

func (d *Document) RoleClassByPath(path string) (*Class, bool) {
	return d.ClassByPath(KindRole, path)
}

func (d *Document) SystemUnitClassByPath(path string) (*Class, bool) {
	return d.ClassByPath(KindSystemUnit, path)
}

// classesDerivedFirst lists the live classes of kind so that every class
// precedes its base.
func (d *Document) classesDerivedFirst(kind Kind) []*Class {
	var all []*Class
	for _, lib := range d.libs[kind] {
		all = append(all, lib.classes...)
	}

	pending := make(map[*Class]int, len(all))
	for _, c := range all {
		pending[c] = len(c.derived)
	}
	out := make([]*Class, 0, len(all))
	for len(out) < len(all) {
		progressed := false
		for _, c := range all {
			if n, ok := pending[c]; !ok || n > 0 {
				continue
			}
			delete(pending, c)
			out = append(out, c)
			if c.base != nil {
				pending[c.base]--
			}
			progressed = true
		}
		if !progressed {
			// Unreachable while inheritance is acyclic; keep the rest in order.
			for _, c := range all {
				if _, ok := pending[c]; ok {
					out = append(out, c)
				}
			}
			break
		}
	}
	return out
}

// --- mutations ---

// CreateLibrary adds a library of kind. The name must be unique among
// the live libraries of that kind in d.
func (d *Document) CreateLibrary(kind Kind, name string) (*Library, error) {
	results, err := d.planCreateLibrary(kind, name)
	if err := d.s.admit(OpCreateLibrary, results, err); err != nil {
		return nil, err
	}

	d.s.bus.Enter()
	defer d.s.bus.Exit()

	lib := &Library{doc: d, kind: kind, id: d.s.ids.Mint(), name: name}
	d.s.emitValidated(d, lib, results)
	lib.attach(d, -1)
	d.touch()
	return lib, nil
}

func (d *Document) CreateInterfaceClassLibrary(name string) (*Library, error) {
	return d.CreateLibrary(KindInterface, name)
}

func (d *Document) CreateRoleClassLibrary(name string) (*Library, error) {
	return d.CreateLibrary(KindRole, name)
}

func (d *Document) CreateSystemUnitClassLibrary(name string) (*Library, error) {
	return d.CreateLibrary(KindSystemUnit, name)
}

// ValidateCreateLibrary is the dry run of CreateLibrary.
func (d *Document) ValidateCreateLibrary(kind Kind, name string) validation.ResultList {
	results, err := d.planCreateLibrary(kind, name)
	return dryRun(validation.Subject{Name: name}, results, err)
}

func (d *Document) planCreateLibrary(kind Kind, name string) (validation.ResultList, error) {
	if err := d.checkLive(OpCreateLibrary); err != nil {
		return nil, err
	}
	if !kind.Valid() {
		return nil, newError(ErrCodeKindMismatch, OpCreateLibrary, d.Label(), "unknown hierarchy kind %d", int(kind))
	}
	if err := checkName(OpCreateLibrary, name); err != nil {
		return nil, err
	}
	if err := d.checkLibraryNameFree(OpCreateLibrary, kind, name, nil); err != nil {
		return nil, err
	}
	return d.s.validator.ValidateCreateLibrary(d, kind, name), nil
}

// Delete removes d and everything it owns. Session listeners receive
// DocumentRemoving before anything is removed.
func (d *Document) Delete() error {
	results, err := d.planDelete()
	if err := d.s.admit(OpDeleteDocument, results, err); err != nil {
		return err
	}

	d.s.bus.Enter()
	defer d.s.bus.Exit()

	d.s.emitValidated(d, d, results)
	d.s.removeDocument(d)
	return nil
}

// ValidateDelete is the dry run of Delete.
func (d *Document) ValidateDelete() validation.ResultList {
	results, err := d.planDelete()
	return dryRun(d.subject(), results, err)
}

func (d *Document) planDelete() (validation.ResultList, error) {
	if err := d.checkLive(OpDeleteDocument); err != nil {
		return nil, err
	}
	return d.s.validator.ValidateDeleteDocument(d), nil
}

// MarkClean clears the dirty flag, typically after the document was saved.
// The change is recorded on the current savepoint like any other.
func (d *Document) MarkClean() error {
	if err := d.checkLive("document.mark_clean"); err != nil {
		return err
	}
	if !d.dirty {
		return nil
	}
	d.s.bus.Enter()
	defer d.s.bus.Exit()
	d.setDirty(false)
	return nil
}

// AddListener registers l for the change events of d.
// Listeners must be comparable; pass pointers.
func (d *Document) AddListener(l Listener) {
	d.listeners.add(d.s.bus, l, func(e Event) bool { return e.concerns(d) })
}

// RemoveListener unregisters l.
func (d *Document) RemoveListener(l Listener) bool {
	return d.listeners.remove(d.s.bus, l)
}

// --- internals ---

func (d *Document) checkLive(op string) error {
	if err := d.s.checkOpen(op); err != nil {
		return err
	}
	if d.deleted {
		return newError(ErrCodeDeletedEntity, op, d.Label(), "document was deleted")
	}
	return nil
}

// checkLibraryNameFree fails if a live library of kind other than self
// is named name.
func (d *Document) checkLibraryNameFree(op string, kind Kind, name string, self *Library) error {
	if other, ok := d.Library(kind, name); ok && other != self {
		return newError(ErrCodeUniqueness, op, other.Label(),
			"%s library %q already exists in %s", kind, name, d.Label())
	}
	return nil
}

// touch marks d dirty after an accepted change.
func (d *Document) touch() {
	if !d.dirty && !d.deleted {
		d.setDirty(true)
	}
}

func (d *Document) setDirty(v bool) {
	old := d.dirty
	d.dirty = v
	d.s.record(func() { d.setDirty(old) })
	d.s.emit(Event{Type: EventDirtyStateChanged, Document: d, Entity: d, Dirty: v})
}

func checkName(op, name string) error {
	if name == "" {
		return newError(ErrCodeInvalidName, op, "", "name must not be empty")
	}
	if strings.Contains(name, PathSeparator) {
		return newError(ErrCodeInvalidName, op, "", "name %q must not contain %q", name, PathSeparator)
	}
	return nil
}
