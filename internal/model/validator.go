package model

import "github.com/roach88/amlkernel/internal/validation"

// Validator is the policy consulted before every structural mutation.
//
// Each method receives the pre-mutation state and the proposed value and
// returns the findings for that operation. An empty list permits. The
// kernel ANDs OperationPermitted across the list; a single non-permitted
// result vetoes the operation.
//
// Validators must not mutate the model from inside a Validate call.
type Validator interface {
	ValidateCreateDocument(s *Session, name string) validation.ResultList
	ValidateDeleteDocument(d *Document) validation.ResultList

	ValidateCreateLibrary(d *Document, kind Kind, name string) validation.ResultList
	ValidateSetLibraryName(lib *Library, name string) validation.ResultList
	ValidateDeleteLibrary(lib *Library) validation.ResultList
	ValidateReparentLibrary(lib *Library, target *Document) validation.ResultList

	ValidateCreateClass(lib *Library, name string) validation.ResultList
	ValidateSetClassName(c *Class, name string) validation.ResultList
	ValidateDeleteClass(c *Class) validation.ResultList
	ValidateSetBaseClass(c *Class, base *Class) validation.ResultList
	ValidateReparentClass(c *Class, target *Library) validation.ResultList

	// Dispose is called exactly once, on UnsetValidator or Session.Close.
	Dispose()
}

// ValidatorFactory creates the validator of one session.
type ValidatorFactory func(s *Session) Validator

// NopValidator permits every operation with no findings.
//
// It is the session default. Validators that only care about a few
// operations embed it and override those methods; every hook they leave
// alone permits.
type NopValidator struct{}

var _ Validator = NopValidator{}

func (NopValidator) ValidateCreateDocument(*Session, string) validation.ResultList { return nil }
func (NopValidator) ValidateDeleteDocument(*Document) validation.ResultList        { return nil }

func (NopValidator) ValidateCreateLibrary(*Document, Kind, string) validation.ResultList {
	return nil
}
func (NopValidator) ValidateSetLibraryName(*Library, string) validation.ResultList { return nil }
func (NopValidator) ValidateDeleteLibrary(*Library) validation.ResultList         { return nil }
func (NopValidator) ValidateReparentLibrary(*Library, *Document) validation.ResultList {
	return nil
}

func (NopValidator) ValidateCreateClass(*Library, string) validation.ResultList { return nil }
func (NopValidator) ValidateSetClassName(*Class, string) validation.ResultList  { return nil }
func (NopValidator) ValidateDeleteClass(*Class) validation.ResultList           { return nil }
func (NopValidator) ValidateSetBaseClass(*Class, *Class) validation.ResultList  { return nil }
func (NopValidator) ValidateReparentClass(*Class, *Library) validation.ResultList {
	return nil
}

func (NopValidator) Dispose() {}
