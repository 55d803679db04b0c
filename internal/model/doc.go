// Package model implements the class-library data model and the
// transactional mutation kernel around it.
//
// A Session owns Documents; each Document owns one set of Libraries per
// hierarchy Kind (interface, role, system unit); each Library owns
// Classes, and a Class may derive from a base Class of the same kind and
// document.
//
// Every public mutation is checked structurally, gated by the session's
// Validator, recorded on the current savepoint (see package undo) and
// announced on the notification bus (see package notify). Lookups never
// fail: absent names and paths report not-found.
//
// # Errors
//
// Structural failures are *Error values carrying an ErrorCode. Vetoes are
// *validation.RejectedError; when the kernel itself vetoes (deleting a
// non-empty library or a class other classes derive from) the rejected
// error wraps an *Error with ErrCodeNonEmptyContainer, so both
// validation.IsRejected and IsNonEmptyContainer hold.
package model
