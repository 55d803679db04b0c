package model

import (
	"fmt"
	"strings"

	"github.com/roach88/amlkernel/internal/ident"
	"github.com/roach88/amlkernel/internal/notify"
	"github.com/roach88/amlkernel/internal/validation"
)

// Entity is implemented by *Document, *Library and *Class.
type Entity interface {
	ID() ident.ID
	Name() string

	// Label renders the entity for traces, e.g. "interface-class lib1/base".
	Label() string
}

// EventType enumerates change notifications.
type EventType int

const (
	EventCreated EventType = iota
	EventModified
	EventDeleting
	EventReparented
	EventDirtyStateChanged
	EventValidated

	// Session-level events.
	EventDocumentAdded
	EventDocumentRemoving
)

var eventTypeNames = [...]string{
	EventCreated:           "created",
	EventModified:          "modified",
	EventDeleting:          "deleting",
	EventReparented:        "reparented",
	EventDirtyStateChanged: "dirty-state-changed",
	EventValidated:         "validated",
	EventDocumentAdded:     "document-added",
	EventDocumentRemoving:  "document-removing",
}

func (t EventType) String() string {
	if t >= 0 && int(t) < len(eventTypeNames) {
		return eventTypeNames[t]
	}
	return fmt.Sprintf("event(%d)", int(t))
}

// SessionLevel reports whether t is delivered to session listeners
// rather than document listeners.
func (t EventType) SessionLevel() bool {
	return t == EventDocumentAdded || t == EventDocumentRemoving
}

// Event is one change notification.
//
// Deleting and DocumentRemoving are dispatched before the removal is
// applied, so Entity is still fully valid inside Notify.
type Event struct {
	Type EventType

	// Document is the document the change belongs to. For a library
	// moved between documents it is the source document.
	Document *Document

	// Entity is the affected document, library or class.
	Entity Entity

	// OldParent and NewParent are set for EventReparented.
	OldParent Entity
	NewParent Entity

	// Results carries the validator's findings for EventValidated.
	Results validation.ResultList

	// Dirty is the new dirty state for EventDirtyStateChanged.
	Dirty bool

	// Compensating is true for events emitted by a savepoint rollback.
	Compensating bool
}

// String renders the event as one trace line.
func (e Event) String() string {
	var b strings.Builder
	b.WriteString(e.Type.String())
	if e.Entity != nil {
		b.WriteByte(' ')
		b.WriteString(e.Entity.Label())
	}
	switch e.Type {
	case EventReparented:
		if e.OldParent != nil && e.NewParent != nil {
			fmt.Fprintf(&b, " from %s to %s", e.OldParent.Label(), e.NewParent.Label())
		}
	case EventDirtyStateChanged:
		fmt.Fprintf(&b, " dirty=%t", e.Dirty)
	case EventValidated:
		fmt.Fprintf(&b, " results=%d max=%s", len(e.Results), e.Results.MaxSeverity())
	}
	if e.Compensating {
		b.WriteString(" (undo)")
	}
	return b.String()
}

// concerns reports whether e belongs on d's listeners.
func (e Event) concerns(d *Document) bool {
	if e.Type.SessionLevel() {
		return false
	}
	if e.Document == d {
		return true
	}
	nd, ok := e.NewParent.(*Document)
	return ok && nd == d
}

// Listener observes notification transactions. Begin and end are only
// delivered for transactions that carry at least one event for the
// listener; see notify.Listener.
type Listener = notify.Listener[Event]

// listenerSet tracks the subscriptions one owner made on the session bus.
type listenerSet struct {
	subs []*notify.Subscription[Event]
}

func (ls *listenerSet) add(bus *notify.Bus[Event], l Listener, filter notify.Filter[Event]) {
	ls.subs = append(ls.subs, bus.Subscribe(l, filter))
}

func (ls *listenerSet) remove(bus *notify.Bus[Event], l Listener) bool {
	for i, sub := range ls.subs {
		if sub.Listener() == l {
			ls.subs = append(ls.subs[:i:i], ls.subs[i+1:]...)
			return bus.Unsubscribe(sub)
		}
	}
	return false
}
