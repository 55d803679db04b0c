package model_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/amlkernel/internal/model"
	"github.com/roach88/amlkernel/internal/testutil"
	"github.com/roach88/amlkernel/internal/undo"
)

func savepoint(t *testing.T, s *model.Session, name string) *undo.Savepoint {
	t.Helper()
	sp, err := s.CreateSavepoint(name)
	require.NoError(t, err)
	return sp
}

// snapshot renders the full reachable state of s, identifiers included.
func snapshot(s *model.Session) []string {
	var out []string
	for _, d := range s.Documents() {
		out = append(out, fmt.Sprintf("%s id=%s dirty=%t", d.Label(), d.ID(), d.IsDirty()))
		for _, kind := range model.Kinds {
			for _, lib := range d.Libraries(kind) {
				out = append(out, fmt.Sprintf("  %s id=%s", lib.Label(), lib.ID()))
				for _, c := range lib.Classes() {
					line := fmt.Sprintf("    %s id=%s", c.Label(), c.ID())
					if b := c.BaseClass(); b != nil {
						line += " base=" + b.Path()
					}
					for _, d := range c.DerivedClasses() {
						line += " derived=" + d.Path()
					}
					out = append(out, line)
				}
			}
		}
	}
	return out
}

func TestSavepointsDeletedInReverseOrderLeaveNothing(t *testing.T) {
	s := newSession(t)

	sp1 := savepoint(t, s, "")
	doc := newDocument(t, s, "D")
	sp2 := savepoint(t, s, "")
	lib, err := doc.CreateInterfaceClassLibrary("lib1")
	require.NoError(t, err)
	sp3 := savepoint(t, s, "")
	c, err := lib.CreateClass("c")
	require.NoError(t, err)

	assert.True(t, s.HasCurrentSavepoint())
	assert.Equal(t, []*undo.Savepoint{sp1, sp2, sp3}, s.Savepoints())

	require.NoError(t, c.Delete())
	require.NoError(t, lib.Delete())
	require.NoError(t, doc.Delete())

	require.NoError(t, sp3.Delete())
	require.NoError(t, sp2.Delete())
	require.NoError(t, sp1.Delete())

	assert.False(t, s.HasCurrentSavepoint())
	assert.Empty(t, s.Savepoints())
	assert.Nil(t, s.CurrentSavepoint())
	assert.True(t, s.Identifiers().IsEmpty())
	require.NoError(t, s.Close())
}

func TestRollbackIdempotence(t *testing.T) {
	s := newSession(t)
	doc := newDocument(t, s, "D")
	before := snapshot(s)
	liveBefore := s.Identifiers().Live()

	sp := savepoint(t, s, "start")
	lib, err := doc.CreateInterfaceClassLibrary("lib1")
	require.NoError(t, err)
	var created []*model.Class
	for i := 0; i < 5; i++ {
		c, err := lib.CreateClass(fmt.Sprintf("c%d", i))
		require.NoError(t, err)
		created = append(created, c)
	}
	require.NoError(t, created[1].SetBaseClass(created[0]))
	assert.Equal(t, 7, s.Identifiers().Len())

	rec := testutil.NewRecorder()
	doc.AddListener(rec)

	require.NoError(t, s.RollbackTo(sp))
	assert.Equal(t, before, snapshot(s))
	assert.Equal(t, liveBefore, s.Identifiers().Live())
	for _, c := range created {
		assert.True(t, c.IsDeleted())
	}
	_, ok := doc.InterfaceClassLibrary("lib1")
	assert.False(t, ok)
	assert.False(t, s.HasCurrentSavepoint())
	assert.Equal(t, 1, rec.Begins)
	assert.Equal(t, 1, rec.Ends)
	for _, e := range rec.Events {
		assert.True(t, e.Compensating, e.String())
	}

	rec.Reset()
	require.NoError(t, s.RollbackTo(sp))
	assert.Empty(t, rec.Events, "second rollback must not emit")
	assert.Zero(t, rec.Begins)
	assert.Equal(t, before, snapshot(s))
}

func TestRollbackCompensatingEvents(t *testing.T) {
	s := newSession(t)
	doc := newDocument(t, s, "D")
	rec := testutil.NewRecorder()
	doc.AddListener(rec)

	sp := savepoint(t, s, "")
	lib, err := doc.CreateInterfaceClassLibrary("lib1")
	require.NoError(t, err)
	_, err = lib.CreateClass("c")
	require.NoError(t, err)
	rec.Reset()

	require.NoError(t, sp.Rollback())
	assert.Equal(t, []string{
		"deleting interface-class lib1/c (undo)",
		"dirty-state-changed document D dirty=false (undo)",
		"deleting interface-library lib1 (undo)",
	}, rec.Lines)
	assert.Equal(t, 1, rec.Begins)
	require.Len(t, rec.Batches, 1)
	assert.Len(t, rec.Batches[0], 3)
}

func TestRollbackRestoresExactState(t *testing.T) {
	s := newSession(t)
	doc := newDocument(t, s, "D")
	other := newDocument(t, s, "E")
	ic, _ := doc.CreateInterfaceClassLibrary("ic")
	ic2, _ := doc.CreateInterfaceClassLibrary("ic2")
	empty, _ := doc.CreateInterfaceClassLibrary("empty")
	free, _ := doc.CreateSystemUnitClassLibrary("free")
	a, _ := ic.CreateClass("a")
	b, _ := ic.CreateClass("b")
	c, _ := ic.CreateClass("c")
	d, _ := ic2.CreateClass("d")
	require.NoError(t, b.SetBaseClass(a))
	require.NoError(t, c.SetBaseClass(a))
	require.NoError(t, d.SetBaseClass(c))
	require.NoError(t, doc.MarkClean())

	before := snapshot(s)
	liveBefore := s.Identifiers().Live()

	sp := savepoint(t, s, "")
	require.NoError(t, a.SetName("a-renamed"))
	require.NoError(t, ic.SetName("ic-renamed"))
	require.NoError(t, b.SetBaseClass(nil))
	require.NoError(t, b.Delete())
	require.NoError(t, d.SetBaseClass(a))
	require.NoError(t, d.Reparent(ic))
	require.NoError(t, c.Delete())
	require.NoError(t, empty.Delete())
	require.NoError(t, free.Reparent(other))
	x, err := ic2.CreateClass("x")
	require.NoError(t, err)
	require.NoError(t, x.SetBaseClass(a))
	require.NoError(t, doc.MarkClean())
	require.NotEqual(t, before, snapshot(s))

	require.NoError(t, s.RollbackTo(sp))
	assert.Equal(t, before, snapshot(s))
	assert.Equal(t, liveBefore, s.Identifiers().Live())
	assert.Equal(t, []*model.Class{b, c}, a.DerivedClasses(), "reverse index order restored")
	assert.False(t, doc.IsDirty())
	assert.False(t, b.IsDeleted())
	assert.True(t, x.IsDeleted())
}

func TestRollbackRestoresDeletedDocument(t *testing.T) {
	s := newSession(t)
	doc := newDocument(t, s, "D")
	lib, _ := doc.CreateRoleClassLibrary("roles")
	base, _ := lib.CreateClass("base")
	derived, _ := lib.CreateClass("derived")
	require.NoError(t, derived.SetBaseClass(base))
	before := snapshot(s)

	sessionRec := testutil.NewRecorder()
	s.AddListener(sessionRec)

	sp := savepoint(t, s, "")
	require.NoError(t, doc.Delete())
	assert.Empty(t, s.Documents())

	require.NoError(t, s.RollbackTo(sp))
	got, ok := s.Document("D")
	require.True(t, ok)
	assert.Same(t, doc, got)
	assert.Equal(t, before, snapshot(s))
	c, ok := doc.RoleClassByPath("roles/derived")
	require.True(t, ok)
	assert.Same(t, base, c.BaseClass())
	assert.Equal(t, []model.EventType{
		model.EventDocumentRemoving,
		model.EventDocumentAdded,
	}, sessionRec.Types())
}

func TestNestedSavepoints(t *testing.T) {
	s := newSession(t)
	doc := newDocument(t, s, "D")

	outer := savepoint(t, s, "outer")
	l1, _ := doc.CreateInterfaceClassLibrary("l1")
	inner := savepoint(t, s, "inner")
	_, _ = doc.CreateInterfaceClassLibrary("l2")

	require.NoError(t, s.RollbackTo(inner))
	assert.Equal(t, []*model.Library{l1}, doc.Libraries(model.KindInterface))
	assert.Same(t, outer, s.CurrentSavepoint())

	inner = savepoint(t, s, "inner-again")
	_, _ = doc.CreateInterfaceClassLibrary("l3")
	require.NoError(t, inner.Delete())
	assert.Len(t, doc.Libraries(model.KindInterface), 2)

	require.NoError(t, s.RollbackTo(outer))
	assert.Empty(t, doc.Libraries(model.KindInterface), "changes under a deleted savepoint belong to its parent")
	assert.Equal(t, 1, s.Identifiers().Len())
}

func TestRollbackFromListenerIsRefused(t *testing.T) {
	s := newSession(t)
	doc := newDocument(t, s, "D")
	outer := savepoint(t, s, "outer")
	inner := savepoint(t, s, "inner")
	_, _ = doc.CreateInterfaceClassLibrary("lib")

	var nested error
	rec := testutil.NewRecorder()
	rec.OnNotify = func(e model.Event) {
		if e.Compensating && nested == nil {
			nested = s.RollbackTo(outer)
		}
	}
	doc.AddListener(rec)

	require.NoError(t, s.RollbackTo(inner))
	assert.ErrorIs(t, nested, undo.ErrReplaying)
	assert.Same(t, outer, s.CurrentSavepoint())
}

func TestSavepointStackFrozenDuringRollback(t *testing.T) {
	s := newSession(t)
	doc := newDocument(t, s, "D")
	sp := savepoint(t, s, "one")
	_, err := doc.CreateInterfaceClassLibrary("lib")
	require.NoError(t, err)

	var errs []error
	rec := testutil.NewRecorder()
	rec.OnNotify = func(e model.Event) {
		if !e.Compensating || len(errs) > 0 {
			return
		}
		errs = append(errs, sp.Delete())
		_, err := s.CreateSavepoint("during")
		errs = append(errs, err)
		errs = append(errs, s.Close())
	}
	doc.AddListener(rec)

	require.NoError(t, s.RollbackTo(sp))
	require.Len(t, errs, 3)
	assert.ErrorIs(t, errs[0], undo.ErrReplaying)
	assert.True(t, model.IsRollbackInProgress(errs[1]), errs[1])
	assert.True(t, model.IsRollbackInProgress(errs[2]), errs[2])

	assert.False(t, s.Closed())
	assert.Empty(t, s.Savepoints())
	_, ok := doc.InterfaceClassLibrary("lib")
	assert.False(t, ok)
	require.NoError(t, s.Close())
	assert.True(t, s.Identifiers().IsEmpty())
}

func TestChangesFromListenerDuringRollbackAreRefused(t *testing.T) {
	s := newSession(t)
	doc := newDocument(t, s, "D")
	before := snapshot(s)
	liveBefore := s.Identifiers().Live()

	outer := savepoint(t, s, "outer")
	_, err := doc.CreateInterfaceClassLibrary("l1")
	require.NoError(t, err)
	inner := savepoint(t, s, "inner")
	_, err = doc.CreateInterfaceClassLibrary("l2")
	require.NoError(t, err)

	var refused []error
	rec := testutil.NewRecorder()
	rec.OnNotify = func(e model.Event) {
		if !e.Compensating {
			return
		}
		_, err := doc.CreateRoleClassLibrary("sneaky")
		refused = append(refused, err)
		refused = append(refused, doc.MarkClean())
		_, err = s.CreateDocument("E")
		refused = append(refused, err)
	}
	doc.AddListener(rec)

	require.NoError(t, s.RollbackTo(inner))
	require.NotEmpty(t, refused)
	for _, err := range refused {
		assert.True(t, model.IsRollbackInProgress(err), err)
	}
	_, ok := doc.Library(model.KindRole, "sneaky")
	assert.False(t, ok)
	_, ok = s.Document("E")
	assert.False(t, ok)

	rec.OnNotify = nil
	require.NoError(t, s.RollbackTo(outer))
	assert.Equal(t, before, snapshot(s))
	assert.Equal(t, liveBefore, s.Identifiers().Live())

	_, err = doc.CreateRoleClassLibrary("after")
	assert.NoError(t, err, "changes are accepted again once the rollback is over")
}

func TestForeignSavepoint(t *testing.T) {
	s1, s2 := newSession(t), newSession(t)
	sp := savepoint(t, s1, "")
	assert.ErrorIs(t, s2.RollbackTo(sp), undo.ErrForeignSavepoint)
}
