// Package notify provides the transactional change-notification bus.
//
// Events are dispatched as they are emitted, which lets observers of
// pre-removal events inspect an entity while it is still valid. The same
// events are also collected per listener and handed over as one ordered
// batch when the outermost transaction ends.
package notify
