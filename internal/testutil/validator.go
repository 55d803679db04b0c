package testutil

import (
	"github.com/roach88/amlkernel/internal/model"
	"github.com/roach88/amlkernel/internal/validation"
)

// ScriptedValidator returns canned results per operation and counts calls.
//
// Operations are keyed by the model.Op* names. Operations without a
// script permit with no findings.
type ScriptedValidator struct {
	model.NopValidator

	// Calls lists the operations consulted, in order.
	Calls []string

	// Disposed counts Dispose calls.
	Disposed int

	script map[string]validation.ResultList
}

// NewScriptedValidator creates a validator that permits everything.
func NewScriptedValidator() *ScriptedValidator {
	return &ScriptedValidator{script: make(map[string]validation.ResultList)}
}

// On scripts the results returned for op.
func (v *ScriptedValidator) On(op string, results ...validation.Result) *ScriptedValidator {
	v.script[op] = results
	return v
}

// Factory returns a factory that always installs v.
func (v *ScriptedValidator) Factory() model.ValidatorFactory {
	return func(*model.Session) model.Validator { return v }
}

func (v *ScriptedValidator) answer(op string) validation.ResultList {
	v.Calls = append(v.Calls, op)
	return v.script[op]
}

func (v *ScriptedValidator) ValidateCreateDocument(*model.Session, string) validation.ResultList {
	return v.answer(model.OpCreateDocument)
}

func (v *ScriptedValidator) ValidateDeleteDocument(*model.Document) validation.ResultList {
	return v.answer(model.OpDeleteDocument)
}

func (v *ScriptedValidator) ValidateCreateLibrary(*model.Document, model.Kind, string) validation.ResultList {
	return v.answer(model.OpCreateLibrary)
}

func (v *ScriptedValidator) ValidateSetLibraryName(*model.Library, string) validation.ResultList {
	return v.answer(model.OpRenameLibrary)
}

func (v *ScriptedValidator) ValidateDeleteLibrary(*model.Library) validation.ResultList {
	return v.answer(model.OpDeleteLibrary)
}

func (v *ScriptedValidator) ValidateReparentLibrary(*model.Library, *model.Document) validation.ResultList {
	return v.answer(model.OpReparentLibrary)
}

func (v *ScriptedValidator) ValidateCreateClass(*model.Library, string) validation.ResultList {
	return v.answer(model.OpCreateClass)
}

func (v *ScriptedValidator) ValidateSetClassName(*model.Class, string) validation.ResultList {
	return v.answer(model.OpRenameClass)
}

func (v *ScriptedValidator) ValidateDeleteClass(*model.Class) validation.ResultList {
	return v.answer(model.OpDeleteClass)
}

func (v *ScriptedValidator) ValidateSetBaseClass(*model.Class, *model.Class) validation.ResultList {
	return v.answer(model.OpSetBaseClass)
}

func (v *ScriptedValidator) ValidateReparentClass(*model.Class, *model.Library) validation.ResultList {
	return v.answer(model.OpReparentClass)
}

func (v *ScriptedValidator) Dispose() {
	v.Disposed++
}
