// Package undo implements the savepoint stack behind multi-level undo.
//
// Savepoints are LIFO. Deleting a savepoint collapses the stack down to and
// including it; rolling back restores the state captured at creation and
// discards it together with everything newer.
//
// The package knows nothing about the model: callers record an Inverse
// closure for every mutation they apply, and rollback replays the closures
// newest first.
package undo
