package policy

import (
	"fmt"
	"log/slog"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/amlkernel/internal/model"
	"github.com/roach88/amlkernel/internal/validation"
)

// Rule names attached to the results this package produces.
const (
	RuleNamePattern      = "name-pattern"
	RuleNameLength       = "name-length"
	RuleReservedName     = "reserved-name"
	RuleProtectedLibrary = "protected-library"
	RuleClassQuota       = "class-quota"
	RuleCrossLibraryBase = "cross-library-base"
	RuleNFC              = "nfc"
)

// Factory returns a validator factory backed by p, suitable for
// model.WithValidator and Session.SetValidator.
func (p *Policy) Factory() model.ValidatorFactory {
	return func(s *model.Session) model.Validator {
		logger := s.Logger().With("policy", p.Source)
		logger.Debug("policy validator installed", "rules", len(p.Summary()))
		return &Validator{policy: p, logger: logger}
	}
}

// Validator applies a Policy to one session.
//
// Thread-safety: none beyond the session's own; a Validator is only called
// from the goroutine mutating its session.
type Validator struct {
	model.NopValidator

	policy   *Policy
	logger   *slog.Logger
	disposed bool
}

var _ model.Validator = (*Validator)(nil)

func (v *Validator) ValidateCreateDocument(_ *model.Session, name string) validation.ResultList {
	return v.finish(model.OpCreateDocument, v.names(validation.Subject{Name: name}, name))
}

func (v *Validator) ValidateCreateLibrary(_ *model.Document, _ model.Kind, name string) validation.ResultList {
	return v.finish(model.OpCreateLibrary, v.names(validation.Subject{Name: name}, name))
}

func (v *Validator) ValidateSetLibraryName(lib *model.Library, name string) validation.ResultList {
	subject := librarySubject(lib)
	out := v.protected(subject, lib, "renamed")
	out = append(out, v.names(subject, name)...)
	return v.finish(model.OpRenameLibrary, out)
}

func (v *Validator) ValidateDeleteLibrary(lib *model.Library) validation.ResultList {
	return v.finish(model.OpDeleteLibrary, v.protected(librarySubject(lib), lib, "deleted"))
}

func (v *Validator) ValidateReparentLibrary(lib *model.Library, _ *model.Document) validation.ResultList {
	return v.finish(model.OpReparentLibrary, v.protected(librarySubject(lib), lib, "moved"))
}

func (v *Validator) ValidateCreateClass(lib *model.Library, name string) validation.ResultList {
	subject := validation.Subject{Name: lib.Name() + model.PathSeparator + name}
	out := v.protected(subject, lib, "extended")
	out = append(out, v.quota(subject, lib)...)
	out = append(out, v.names(subject, name)...)
	return v.finish(model.OpCreateClass, out)
}

func (v *Validator) ValidateSetClassName(c *model.Class, name string) validation.ResultList {
	subject := classSubject(c)
	out := v.protected(subject, c.Library(), "modified")
	out = append(out, v.names(subject, name)...)
	return v.finish(model.OpRenameClass, out)
}

func (v *Validator) ValidateDeleteClass(c *model.Class) validation.ResultList {
	return v.finish(model.OpDeleteClass, v.protected(classSubject(c), c.Library(), "modified"))
}

func (v *Validator) ValidateSetBaseClass(c, base *model.Class) validation.ResultList {
	subject := classSubject(c)
	out := v.protected(subject, c.Library(), "modified")
	if base != nil && v.policy.Config.ForbidCrossLibraryBase && base.Library() != c.Library() {
		out = append(out, validation.Deny(subject, RuleCrossLibraryBase,
			fmt.Sprintf("base %s is outside library %s", base.Path(), c.Library().Name())))
	}
	return v.finish(model.OpSetBaseClass, out)
}

func (v *Validator) ValidateReparentClass(c *model.Class, target *model.Library) validation.ResultList {
	subject := classSubject(c)
	out := v.protected(subject, c.Library(), "modified")
	out = append(out, v.protected(subject, target, "extended")...)
	out = append(out, v.quota(subject, target)...)
	return v.finish(model.OpReparentClass, out)
}

// Dispose marks the validator as released.
func (v *Validator) Dispose() {
	v.disposed = true
	v.logger.Debug("policy validator disposed")
}

// Disposed reports whether Dispose was called.
func (v *Validator) Disposed() bool { return v.disposed }

// --- rules ---

func (v *Validator) names(subject validation.Subject, name string) validation.ResultList {
	var out validation.ResultList
	p := v.policy
	if _, ok := p.reserved[name]; ok {
		out = append(out, validation.Deny(subject, RuleReservedName,
			fmt.Sprintf("name %q is reserved", name)))
	}
	if p.pattern != nil && !p.pattern.MatchString(name) {
		out = append(out, v.nameFinding(subject, RuleNamePattern,
			fmt.Sprintf("name %q does not match %s", name, p.pattern)))
	}
	if limit := p.Config.Names.MaxLength; limit > 0 {
		if n := utf8.RuneCountInString(name); n > limit {
			out = append(out, v.nameFinding(subject, RuleNameLength,
				fmt.Sprintf("name %q has %d characters, limit is %d", name, n, limit)))
		}
	}
	if p.Config.RequireNFC && !norm.NFC.IsNormalString(name) {
		out = append(out, validation.Warn(subject, RuleNFC,
			fmt.Sprintf("name %q is not NFC-normalized", name)))
	}
	return out
}

func (v *Validator) nameFinding(subject validation.Subject, rule, msg string) validation.Result {
	return validation.Result{
		Subject:            subject,
		Severity:           v.policy.severity,
		Message:            msg,
		OperationPermitted: v.policy.severity < validation.SeverityError,
		Rule:               rule,
	}
}

func (v *Validator) protected(subject validation.Subject, lib *model.Library, verb string) validation.ResultList {
	if lib == nil {
		return nil
	}
	if _, ok := v.policy.protected[lib.Name()]; !ok {
		return nil
	}
	return validation.ResultList{validation.Deny(subject, RuleProtectedLibrary,
		fmt.Sprintf("protected library %s cannot be %s", lib.Name(), verb))}
}

func (v *Validator) quota(subject validation.Subject, lib *model.Library) validation.ResultList {
	limit := v.policy.Config.MaxClassesPerLibrary
	if lib == nil || limit == 0 || lib.Len() < limit {
		return nil
	}
	return validation.ResultList{validation.Deny(subject, RuleClassQuota,
		fmt.Sprintf("library %s already holds %d classes", lib.Name(), lib.Len()))}
}

// finish applies block_warnings and logs vetoes.
func (v *Validator) finish(op string, out validation.ResultList) validation.ResultList {
	if v.policy.Config.BlockWarnings {
		for i := range out {
			if out[i].Severity == validation.SeverityWarning {
				out[i].OperationPermitted = false
			}
		}
	}
	if !out.Permitted() {
		v.logger.Warn("policy veto", "op", op, "blocking", len(out.Blocking()))
	}
	return out
}

func librarySubject(lib *model.Library) validation.Subject {
	return validation.Subject{ID: lib.ID(), Name: lib.Name()}
}

func classSubject(c *model.Class) validation.Subject {
	return validation.Subject{ID: c.ID(), Name: c.Path()}
}
