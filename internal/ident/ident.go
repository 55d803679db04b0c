package ident

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidIdentifier is returned when an identifier is released (or
// reclaimed) in a state that does not allow it. It signals a programming
// defect in the caller, not a recoverable condition.
var ErrInvalidIdentifier = errors.New("invalid identifier")

// maxMintAttempts bounds generator retries on collision with a live id.
const maxMintAttempts = 64

// ID is an opaque identifier for an addressable entity.
type ID string

// String returns the identifier text.
func (id ID) String() string {
	return string(id)
}

// Generator produces candidate identifier tokens.
// Implemented by UUIDv7Generator (production) and SequenceGenerator (tests).
type Generator interface {
	Generate() string
}

// Manager issues and retires identifiers and tracks the live set.
//
// Every entity creation mints exactly one identifier; every permanent
// removal releases exactly one. A manager that is not empty once all
// entities of a session are gone indicates a leak.
//
// Thread-safety: none. The owning session serializes all calls.
type Manager struct {
	gen  Generator
	live map[ID]struct{}
}

// NewManager creates a manager backed by gen.
// A nil generator selects UUIDv7Generator.
func NewManager(gen Generator) *Manager {
	if gen == nil {
		gen = UUIDv7Generator{}
	}
	return &Manager{
		gen:  gen,
		live: make(map[ID]struct{}),
	}
}

// Mint returns a fresh identifier that is not currently live.
//
// Panics if the generator keeps producing live identifiers, which only
// happens with a misconfigured deterministic generator.
func (m *Manager) Mint() ID {
	for i := 0; i < maxMintAttempts; i++ {
		id := ID(m.gen.Generate())
		if _, ok := m.live[id]; ok {
			continue
		}
		m.live[id] = struct{}{}
		return id
	}
	panic("ident: generator keeps returning live identifiers")
}

// Release retires a live identifier.
// Returns ErrInvalidIdentifier if id is unknown or already released.
func (m *Manager) Release(id ID) error {
	if _, ok := m.live[id]; !ok {
		return fmt.Errorf("release %q: %w", id, ErrInvalidIdentifier)
	}
	delete(m.live, id)
	return nil
}

// Reclaim makes a previously released identifier live again.
// Savepoint rollback uses it when a deleted entity is restored with its
// original identity. Returns ErrInvalidIdentifier if id is already live.
func (m *Manager) Reclaim(id ID) error {
	if id == "" {
		return fmt.Errorf("reclaim empty id: %w", ErrInvalidIdentifier)
	}
	if _, ok := m.live[id]; ok {
		return fmt.Errorf("reclaim %q: already live: %w", id, ErrInvalidIdentifier)
	}
	m.live[id] = struct{}{}
	return nil
}

// IsLive reports whether id is currently issued.
func (m *Manager) IsLive(id ID) bool {
	_, ok := m.live[id]
	return ok
}

// IsEmpty reports whether no identifier is outstanding.
func (m *Manager) IsEmpty() bool {
	return len(m.live) == 0
}

// Len returns the number of outstanding identifiers.
func (m *Manager) Len() int {
	return len(m.live)
}

// Live returns the outstanding identifiers in sorted order.
// Intended for leak diagnostics.
func (m *Manager) Live() []ID {
	ids := make([]ID, 0, len(m.live))
	for id := range m.live {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
