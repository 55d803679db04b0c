// Package harness runs YAML scenarios against a fresh mutation session.
//
// A scenario names a sequence of steps (create, rename, delete, move,
// set base, savepoint, rollback) and a list of assertions on the final
// state and on the event trace. Every scenario runs in its own session
// with deterministic identifiers, so traces are stable and can be
// compared against golden files in testdata/golden.
//
// Example:
//
//	name: class-lifecycle
//	description: Create a class, derive from it, roll everything back.
//	steps:
//	  - op: create_document
//	    name: D
//	  - op: savepoint
//	    savepoint: start
//	  - op: create_library
//	    document: D
//	    kind: interface
//	    name: lib
//	  - op: rollback
//	    savepoint: start
//	assertions:
//	  - type: library_missing
//	    document: D
//	    kind: interface
//	    library: lib
//
// A step that is expected to fail declares expect_error: an error code
// such as NON_EMPTY_CONTAINER, "rejected" for any validation veto, or
// "any".
//
// The session is closed after the assertions; a teardown leak fails the
// scenario.
package harness
