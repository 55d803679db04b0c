// Package ident issues and retires identifiers for addressable model entities.
//
// The Manager is the leak detector of a session: every created entity holds
// exactly one live identifier, and a manager that still reports live
// identifiers after teardown means some entity was never removed.
//
// No ordering guarantee on identifier values is part of the contract.
// UUIDv7Generator is used in production; SequenceGenerator gives
// deterministic tokens for tests and golden traces.
package ident
