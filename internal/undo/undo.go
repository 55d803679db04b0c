package undo

import (
	"errors"
	"fmt"
	"log/slog"
)

var (
	// ErrForeignSavepoint is returned when a savepoint is passed to a
	// manager that did not create it.
	ErrForeignSavepoint = errors.New("savepoint belongs to another manager")

	// ErrReplaying is returned when the savepoint stack is changed from
	// inside a rollback, e.g. by a listener reacting to compensating events.
	ErrReplaying = errors.New("rollback already in progress")
)

// Inverse reverts exactly one recorded mutation.
// Inverses must not fail: they restore state that was valid before.
type Inverse func()

// Manager keeps the savepoint stack of one session.
//
// Savepoints use delta logging: every accepted mutation records its
// inverse on the topmost savepoint, so creating a savepoint is O(1) and a
// rollback costs O(changes since the savepoint).
//
// INVARIANTS:
//   - stack order is creation order; only a suffix is ever removed
//   - an inverse is recorded on at most one savepoint at a time
//   - nothing is recorded while replaying or when the stack is empty
//
// Thread-safety: none. The owning session serializes all calls.
type Manager struct {
	stack     []*Savepoint
	seq       int64
	replaying bool
	begin     func()
	end       func()
	logger    *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithReplayHooks installs callbacks run around every rollback replay.
// The session uses them to wrap compensating events into one transaction.
func WithReplayHooks(begin, end func()) Option {
	return func(m *Manager) {
		m.begin = begin
		m.end = end
	}
}

// WithLogger sets the logger used for rollback diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// New creates an empty savepoint manager.
func New(opts ...Option) *Manager {
	m := &Manager{logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create pushes a new savepoint and makes it current.
// An empty name is replaced with "savepoint-<n>". Fails with ErrReplaying
// while a rollback is running.
func (m *Manager) Create(name string) (*Savepoint, error) {
	if m.replaying {
		return nil, ErrReplaying
	}
	m.seq++
	if name == "" {
		name = fmt.Sprintf("savepoint-%d", m.seq)
	}
	sp := &Savepoint{mgr: m, name: name, seq: m.seq}
	m.stack = append(m.stack, sp)
	return sp, nil
}

// Recording reports whether Record would keep an inverse.
func (m *Manager) Recording() bool {
	return len(m.stack) > 0 && !m.replaying
}

// Record appends inv to the current savepoint.
// Returns false (and drops inv) when there is nothing to roll back to
// or a rollback is replaying.
func (m *Manager) Record(inv Inverse) bool {
	if !m.Recording() {
		return false
	}
	top := m.stack[len(m.stack)-1]
	top.ops = append(top.ops, inv)
	return true
}

// Delete releases sp and every savepoint created after it.
//
// Their recorded inverses are folded into the savepoint below sp, so a
// later rollback to an older savepoint still restores the exact state.
// When sp is the bottom of the stack the inverses are dropped: the
// changes become permanent. Deleting an already released savepoint is a
// no-op. Fails with ErrReplaying while a rollback is running.
func (m *Manager) Delete(sp *Savepoint) error {
	if m.replaying {
		return ErrReplaying
	}
	i, err := m.indexOf(sp)
	if err != nil || i < 0 {
		return err
	}

	var folded []Inverse
	for _, s := range m.stack[i:] {
		folded = append(folded, s.ops...)
		s.release()
	}
	if i > 0 {
		below := m.stack[i-1]
		below.ops = append(below.ops, folded...)
	}
	m.truncate(i)
	return nil
}

// Rollback restores the state captured by sp.
//
// Inverses of sp and every later savepoint are replayed newest first,
// then those savepoints are released. Rolling back to a savepoint that
// was already released (by an earlier rollback or delete) is a no-op.
func (m *Manager) Rollback(sp *Savepoint) error {
	if m.replaying {
		return ErrReplaying
	}
	i, err := m.indexOf(sp)
	if err != nil || i < 0 {
		return err
	}

	if m.begin != nil {
		m.begin()
	}
	m.replaying = true
	defer func() {
		m.replaying = false
		if m.end != nil {
			m.end()
		}
	}()

	replayed := 0
	for j := len(m.stack) - 1; j >= i; j-- {
		s := m.stack[j]
		for k := len(s.ops) - 1; k >= 0; k-- {
			s.ops[k]()
			replayed++
		}
		s.release()
	}
	m.truncate(i)

	m.logger.Debug("savepoint rolled back",
		"savepoint", sp.name,
		"inverses", replayed,
		"remaining", len(m.stack),
	)
	return nil
}

// Clear releases every savepoint, keeping all changes.
func (m *Manager) Clear() {
	if len(m.stack) == 0 {
		return
	}
	for _, s := range m.stack {
		s.release()
	}
	m.truncate(0)
}

// HasCurrent reports whether any savepoint is active.
func (m *Manager) HasCurrent() bool {
	return len(m.stack) > 0
}

// Current returns the topmost savepoint, or nil.
func (m *Manager) Current() *Savepoint {
	if len(m.stack) == 0 {
		return nil
	}
	return m.stack[len(m.stack)-1]
}

// Savepoints returns the stack, oldest first.
func (m *Manager) Savepoints() []*Savepoint {
	out := make([]*Savepoint, len(m.stack))
	copy(out, m.stack)
	return out
}

// Len returns the stack depth.
func (m *Manager) Len() int {
	return len(m.stack)
}

// Replaying reports whether a rollback is in progress.
func (m *Manager) Replaying() bool {
	return m.replaying
}

// indexOf locates sp on the stack.
// Returns -1 without error for a released savepoint of this manager.
func (m *Manager) indexOf(sp *Savepoint) (int, error) {
	if sp == nil || sp.mgr != m {
		return -1, ErrForeignSavepoint
	}
	if sp.released {
		return -1, nil
	}
	for i, s := range m.stack {
		if s == sp {
			return i, nil
		}
	}
	return -1, nil
}

// truncate drops stack[i:] and clears the slots for GC.
func (m *Manager) truncate(i int) {
	for j := i; j < len(m.stack); j++ {
		m.stack[j] = nil
	}
	m.stack = m.stack[:i]
}

// Savepoint is a restorable checkpoint handle.
type Savepoint struct {
	mgr      *Manager
	name     string
	seq      int64
	ops      []Inverse
	released bool
}

// Name returns the savepoint name.
func (sp *Savepoint) Name() string {
	return sp.name
}

// Seq returns the creation sequence number (1-based per manager).
func (sp *Savepoint) Seq() int64 {
	return sp.seq
}

// Released reports whether the savepoint was deleted or rolled back.
func (sp *Savepoint) Released() bool {
	return sp.released
}

// Changes returns the number of inverses currently held by this savepoint.
func (sp *Savepoint) Changes() int {
	return len(sp.ops)
}

// Delete releases the savepoint; see Manager.Delete.
func (sp *Savepoint) Delete() error {
	return sp.mgr.Delete(sp)
}

// Rollback restores the savepoint; see Manager.Rollback.
func (sp *Savepoint) Rollback() error {
	return sp.mgr.Rollback(sp)
}

func (sp *Savepoint) release() {
	sp.released = true
	sp.ops = nil
}
