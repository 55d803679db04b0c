// Package journal persists committed change transactions to SQLite.
//
// A Recorder observes one session. Each notification transaction that
// delivers at least one event becomes one row in `transactions`, stamped
// with the journal's next seq, and one row per event in `changes`, written in a
// single SQL transaction. Savepoint rollbacks appear as transactions whose
// events are all compensating.
//
// The journal is a passive observer: a failing write is logged and kept
// on the Recorder, and the session carries on.
package journal
