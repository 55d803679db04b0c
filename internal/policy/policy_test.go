package policy_test

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/amlkernel/internal/ident"
	"github.com/roach88/amlkernel/internal/model"
	"github.com/roach88/amlkernel/internal/policy"
	"github.com/roach88/amlkernel/internal/validation"
)

func compile(t *testing.T, src string) *policy.Policy {
	t.Helper()
	p, err := policy.Compile([]byte(src), "test.cue")
	require.NoError(t, err)
	return p
}

func newSession(t *testing.T, opts ...model.Option) *model.Session {
	t.Helper()
	base := []model.Option{
		model.WithGenerator(ident.NewSequenceGenerator("t")),
		model.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	s := model.NewSession(append(base, opts...)...)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func rules(results validation.ResultList) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Rule
	}
	return out
}

func rejectedRules(t *testing.T, err error) []string {
	t.Helper()
	require.Error(t, err)
	results, ok := validation.ResultsOf(err)
	require.True(t, ok, "expected a rejection, got %v", err)
	return rules(results.Blocking())
}

func TestCompileDefaults(t *testing.T) {
	p := compile(t, `policy: {}`)

	assert.Equal(t, "", p.Config.Names.Pattern)
	assert.Equal(t, 0, p.Config.Names.MaxLength)
	assert.Equal(t, "error", p.Config.Names.Severity)
	assert.Empty(t, p.Config.ReservedNames)
	assert.Empty(t, p.Config.ProtectedLibraries)
	assert.Equal(t, 0, p.Config.MaxClassesPerLibrary)
	assert.False(t, p.Config.ForbidCrossLibraryBase)
	assert.True(t, p.Config.RequireNFC)
	assert.False(t, p.Config.BlockWarnings)
	assert.Equal(t, []string{"names should be NFC-normalized"}, p.Summary())
	assert.Equal(t, "test.cue", p.Source)
}

func TestCompileFullPolicy(t *testing.T) {
	p := compile(t, `
policy: {
	names: {
		pattern:    "^[A-Z]"
		max_length: 8
		severity:   "warning"
	}
	reserved_names: ["System"]
	protected_libraries: ["Std"]
	max_classes_per_library: 2
	forbid_cross_library_base: true
	require_nfc: false
	block_warnings: true
}
`)
	assert.Equal(t, "^[A-Z]", p.Config.Names.Pattern)
	assert.Equal(t, 8, p.Config.Names.MaxLength)
	assert.Equal(t, "warning", p.Config.Names.Severity)
	assert.Equal(t, []string{"System"}, p.Config.ReservedNames)
	assert.Equal(t, []string{"Std"}, p.Config.ProtectedLibraries)
	assert.Equal(t, 2, p.Config.MaxClassesPerLibrary)
	assert.True(t, p.Config.ForbidCrossLibraryBase)
	assert.False(t, p.Config.RequireNFC)
	assert.True(t, p.Config.BlockWarnings)
	assert.Len(t, p.Summary(), 7)
}

func TestDefaultPolicy(t *testing.T) {
	p := policy.Default()
	assert.True(t, p.Config.RequireNFC)
}

func TestCompileErrors(t *testing.T) {
	t.Run("syntax error carries position", func(t *testing.T) {
		_, err := policy.Compile([]byte("policy: {\n\tnames: {\n"), "broken.cue")
		require.Error(t, err)
		var ce *policy.CompileError
		require.True(t, errors.As(err, &ce), "got %T: %v", err, err)
		assert.True(t, ce.Pos.IsValid())
		assert.Contains(t, err.Error(), "broken.cue:")
	})

	t.Run("missing policy struct", func(t *testing.T) {
		_, err := policy.Compile([]byte(`other: 1`), "x.cue")
		var ce *policy.CompileError
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, "policy", ce.Field)
	})

	t.Run("negative quota", func(t *testing.T) {
		_, err := policy.Compile([]byte(`policy: max_classes_per_library: -1`), "x.cue")
		require.Error(t, err)
	})

	t.Run("unknown severity", func(t *testing.T) {
		_, err := policy.Compile([]byte(`policy: names: severity: "fatal"`), "x.cue")
		require.Error(t, err)
	})

	t.Run("wrong type", func(t *testing.T) {
		_, err := policy.Compile([]byte(`policy: require_nfc: "yes"`), "x.cue")
		require.Error(t, err)
	})

	t.Run("invalid pattern", func(t *testing.T) {
		_, err := policy.Compile([]byte(`policy: names: pattern: "("`), "x.cue")
		var ce *policy.CompileError
		require.True(t, errors.As(err, &ce), "got %v", err)
		assert.Equal(t, "names.pattern", ce.Field)
	})
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.cue")
	require.NoError(t, os.WriteFile(path, []byte(`policy: reserved_names: ["X"]`), 0o644))

	p, err := policy.Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"X"}, p.Config.ReservedNames)
	assert.Equal(t, path, p.Source)

	_, err = policy.Load(filepath.Join(dir, "missing.cue"))
	assert.Error(t, err)
}

func TestReservedNames(t *testing.T) {
	p := compile(t, `policy: reserved_names: ["System"]`)
	s := newSession(t, model.WithValidator(p.Factory()))

	_, err := s.CreateDocument("System")
	assert.Equal(t, []string{policy.RuleReservedName}, rejectedRules(t, err))

	doc, err := s.CreateDocument("D")
	require.NoError(t, err)
	_, err = doc.CreateRoleClassLibrary("System")
	assert.Equal(t, []string{policy.RuleReservedName}, rejectedRules(t, err))

	lib, err := doc.CreateRoleClassLibrary("roles")
	require.NoError(t, err)
	_, err = lib.CreateClass("System")
	assert.Equal(t, []string{policy.RuleReservedName}, rejectedRules(t, err))
	assert.Zero(t, lib.Len())
}

func TestNamePatternAndLength(t *testing.T) {
	t.Run("error severity blocks", func(t *testing.T) {
		p := compile(t, `policy: names: { pattern: "^[A-Z]", max_length: 4 }`)
		s := newSession(t, model.WithValidator(p.Factory()))
		doc, err := s.CreateDocument("D")
		require.NoError(t, err)

		_, err = doc.CreateInterfaceClassLibrary("lower")
		assert.ElementsMatch(t,
			[]string{policy.RuleNamePattern, policy.RuleNameLength},
			rejectedRules(t, err))

		lib, err := doc.CreateInterfaceClassLibrary("Ifc")
		require.NoError(t, err)
		require.Error(t, lib.SetName("Interfaces"))
		assert.Equal(t, "Ifc", lib.Name())
	})

	t.Run("warning severity permits", func(t *testing.T) {
		p := compile(t, `policy: names: { pattern: "^[A-Z]", severity: "warning" }`)
		s := newSession(t, model.WithValidator(p.Factory()))
		doc, err := s.CreateDocument("D")
		require.NoError(t, err)

		results := doc.ValidateCreateLibrary(model.KindRole, "lower")
		require.Len(t, results, 1)
		assert.Equal(t, validation.SeverityWarning, results[0].Severity)
		assert.True(t, results.Permitted())

		_, err = doc.CreateRoleClassLibrary("lower")
		assert.NoError(t, err)
	})

	t.Run("block_warnings turns warnings into vetoes", func(t *testing.T) {
		p := compile(t, `policy: { names: { pattern: "^[A-Z]", severity: "warning" }, block_warnings: true }`)
		s := newSession(t, model.WithValidator(p.Factory()))
		doc, err := s.CreateDocument("D")
		require.NoError(t, err)

		_, err = doc.CreateRoleClassLibrary("lower")
		assert.Equal(t, []string{policy.RuleNamePattern}, rejectedRules(t, err))
	})
}

func TestNFC(t *testing.T) {
	p := compile(t, `policy: {}`)
	s := newSession(t, model.WithValidator(p.Factory()))
	doc, err := s.CreateDocument("D")
	require.NoError(t, err)

	decomposed := "Cafe\u0301"
	results := doc.ValidateCreateLibrary(model.KindSystemUnit, decomposed)
	require.Len(t, results, 1)
	assert.Equal(t, policy.RuleNFC, results[0].Rule)
	assert.True(t, results[0].OperationPermitted)

	assert.Empty(t, doc.ValidateCreateLibrary(model.KindSystemUnit, "Caf\u00e9"))

	off := compile(t, `policy: require_nfc: false`)
	s2 := newSession(t, model.WithValidator(off.Factory()))
	doc2, err := s2.CreateDocument("D")
	require.NoError(t, err)
	assert.Empty(t, doc2.ValidateCreateLibrary(model.KindSystemUnit, decomposed))
}

func TestProtectedLibraries(t *testing.T) {
	s := newSession(t)
	doc, err := s.CreateDocument("D")
	require.NoError(t, err)
	other, err := s.CreateDocument("E")
	require.NoError(t, err)
	std, err := doc.CreateInterfaceClassLibrary("Std")
	require.NoError(t, err)
	frozen, err := std.CreateClass("Frozen")
	require.NoError(t, err)
	empty, err := doc.CreateRoleClassLibrary("Std")
	require.NoError(t, err)
	user, err := doc.CreateInterfaceClassLibrary("User")
	require.NoError(t, err)
	mine, err := user.CreateClass("Mine")
	require.NoError(t, err)

	p := compile(t, `policy: protected_libraries: ["Std"]`)
	require.NoError(t, s.SetValidator(p.Factory()))

	protected := []string{policy.RuleProtectedLibrary}
	_, err = std.CreateClass("New")
	assert.Equal(t, protected, rejectedRules(t, err))
	assert.Equal(t, protected, rejectedRules(t, frozen.SetName("Thawed")))
	assert.Equal(t, protected, rejectedRules(t, frozen.Delete()))
	assert.Equal(t, protected, rejectedRules(t, frozen.SetBaseClass(mine)))
	assert.Equal(t, protected, rejectedRules(t, frozen.Reparent(user)))
	assert.Equal(t, protected, rejectedRules(t, mine.Reparent(std)))
	assert.Equal(t, protected, rejectedRules(t, empty.Delete()))
	assert.Equal(t, protected, rejectedRules(t, empty.SetName("Other")))
	assert.Equal(t, protected, rejectedRules(t, empty.Reparent(other)))

	assert.NoError(t, mine.SetBaseClass(frozen), "deriving from a protected class is allowed")
	assert.Equal(t, []*model.Class{frozen}, std.Classes())
}

func TestClassQuota(t *testing.T) {
	p := compile(t, `policy: max_classes_per_library: 2`)
	s := newSession(t, model.WithValidator(p.Factory()))
	doc, err := s.CreateDocument("D")
	require.NoError(t, err)
	full, err := doc.CreateSystemUnitClassLibrary("Full")
	require.NoError(t, err)
	spare, err := doc.CreateSystemUnitClassLibrary("Spare")
	require.NoError(t, err)

	_, err = full.CreateClass("A")
	require.NoError(t, err)
	_, err = full.CreateClass("B")
	require.NoError(t, err)
	_, err = full.CreateClass("C")
	assert.Equal(t, []string{policy.RuleClassQuota}, rejectedRules(t, err))

	x, err := spare.CreateClass("X")
	require.NoError(t, err)
	assert.Equal(t, []string{policy.RuleClassQuota}, rejectedRules(t, x.Reparent(full)))
	assert.Same(t, spare, x.Library())
}

func TestCrossLibraryBase(t *testing.T) {
	p := compile(t, `policy: forbid_cross_library_base: true`)
	s := newSession(t, model.WithValidator(p.Factory()))
	doc, err := s.CreateDocument("D")
	require.NoError(t, err)
	a, err := doc.CreateRoleClassLibrary("A")
	require.NoError(t, err)
	b, err := doc.CreateRoleClassLibrary("B")
	require.NoError(t, err)
	base, err := a.CreateClass("Base")
	require.NoError(t, err)
	local, err := a.CreateClass("Local")
	require.NoError(t, err)
	remote, err := b.CreateClass("Remote")
	require.NoError(t, err)

	assert.NoError(t, local.SetBaseClass(base))
	assert.Equal(t, []string{policy.RuleCrossLibraryBase}, rejectedRules(t, remote.SetBaseClass(base)))
	assert.Nil(t, remote.BaseClass())
	assert.NoError(t, local.SetBaseClass(nil))
}

func TestValidatorDisposedOnClose(t *testing.T) {
	p := compile(t, `policy: {}`)
	var v *policy.Validator
	factory := func(s *model.Session) model.Validator {
		v = p.Factory()(s).(*policy.Validator)
		return v
	}
	s := model.NewSession(
		model.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		model.WithValidator(factory),
	)
	require.NotNil(t, v)
	assert.False(t, v.Disposed())
	require.NoError(t, s.Close())
	assert.True(t, v.Disposed())
}
