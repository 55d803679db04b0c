// Package policy compiles CUE policy files into validators for the
// mutation kernel.
//
// A policy file declares a single top-level `policy` struct that is
// unified with the embedded schema (schema.cue). Omitted fields take the
// schema defaults, so `policy: {}` is a valid file.
//
//	policy: {
//		names: {
//			pattern:    "^[A-Za-z][A-Za-z0-9_]*$"
//			max_length: 64
//			severity:   "warning"
//		}
//		reserved_names: ["System"]
//		protected_libraries: ["Standard"]
//		max_classes_per_library: 500
//		forbid_cross_library_base: true
//	}
//
// Compile errors carry the CUE source position when one is known.
//
// A compiled Policy is immutable; Factory returns a model.ValidatorFactory
// that gives each session its own Validator.
package policy
