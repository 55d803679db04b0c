package ident

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// repeatGenerator replays a fixed token list, cycling at the end.
type repeatGenerator struct {
	tokens []string
	idx    int
}

func (g *repeatGenerator) Generate() string {
	t := g.tokens[g.idx%len(g.tokens)]
	g.idx++
	return t
}

func TestManager_MintRelease(t *testing.T) {
	m := NewManager(NewSequenceGenerator("t"))
	assert.True(t, m.IsEmpty())

	a := m.Mint()
	b := m.Mint()
	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, m.Len())
	assert.True(t, m.IsLive(a))

	require.NoError(t, m.Release(a))
	assert.False(t, m.IsLive(a))
	require.NoError(t, m.Release(b))
	assert.True(t, m.IsEmpty())
}

func TestManager_DoubleReleaseFails(t *testing.T) {
	m := NewManager(NewSequenceGenerator("t"))
	id := m.Mint()
	require.NoError(t, m.Release(id))

	err := m.Release(id)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidIdentifier)
}

func TestManager_ReleaseUnknownFails(t *testing.T) {
	m := NewManager(nil)
	err := m.Release(ID("never-minted"))
	assert.ErrorIs(t, err, ErrInvalidIdentifier)
}

func TestManager_MintSkipsLiveCollisions(t *testing.T) {
	gen := &repeatGenerator{tokens: []string{"a", "a", "b"}}
	m := NewManager(gen)

	first := m.Mint()
	second := m.Mint()
	assert.Equal(t, ID("a"), first)
	assert.Equal(t, ID("b"), second)
}

func TestManager_MintMayReuseReleasedToken(t *testing.T) {
	gen := &repeatGenerator{tokens: []string{"a"}}
	m := NewManager(gen)

	id := m.Mint()
	require.NoError(t, m.Release(id))
	assert.Equal(t, id, m.Mint(), "released tokens are no longer live")
}

func TestManager_MintPanicsWhenGeneratorStuck(t *testing.T) {
	gen := &repeatGenerator{tokens: []string{"a"}}
	m := NewManager(gen)
	m.Mint()

	assert.Panics(t, func() { m.Mint() })
}

func TestManager_Reclaim(t *testing.T) {
	m := NewManager(NewSequenceGenerator("t"))
	id := m.Mint()

	assert.ErrorIs(t, m.Reclaim(id), ErrInvalidIdentifier, "live id cannot be reclaimed")

	require.NoError(t, m.Release(id))
	require.NoError(t, m.Reclaim(id))
	assert.True(t, m.IsLive(id))
	assert.ErrorIs(t, m.Reclaim(""), ErrInvalidIdentifier)
}

func TestManager_LiveSorted(t *testing.T) {
	m := NewManager(NewSequenceGenerator("x"))
	m.Mint()
	m.Mint()
	m.Mint()

	assert.Equal(t, []ID{"x-1", "x-2", "x-3"}, m.Live())
}

func TestSequenceGenerator(t *testing.T) {
	g := NewSequenceGenerator("")
	assert.Equal(t, "id-1", g.Generate())
	assert.Equal(t, "id-2", g.Generate())
	g.Reset()
	assert.Equal(t, "id-1", g.Generate())
}

func TestUUIDv7Generator(t *testing.T) {
	g := UUIDv7Generator{}
	token := g.Generate()

	parsed, err := uuid.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
	assert.NotEqual(t, token, g.Generate())
}

func TestNewManager_DefaultsToUUID(t *testing.T) {
	m := NewManager(nil)
	id := m.Mint()
	_, err := uuid.Parse(id.String())
	assert.NoError(t, err)
}
