package notify

// Listener receives the events of one notification transaction.
//
// TransactionBegin is called once, right before the first event the
// listener receives inside an outermost transaction. Notify is then called
// for each event in emission order. TransactionEnd is called once when the
// outermost transaction closes, with the listener's ordered batch.
//
// A transaction that produces no event for a listener delivers neither
// TransactionBegin nor TransactionEnd to it: begin marks the listener's
// first event, not the start of the outermost operation. A vetoed
// operation, or one whose events a filter rejects, is therefore invisible
// to that listener.
type Listener[E any] interface {
	TransactionBegin()
	Notify(event E)
	TransactionEnd(batch []E)
}

// Filter selects the events a subscription receives. Nil accepts all.
type Filter[E any] func(event E) bool

// Subscription is the handle returned by Subscribe.
type Subscription[E any] struct {
	listener Listener[E]
	filter   Filter[E]
	open     bool
	batch    []E
	removed  bool
}

// Bus batches events into transactions using a reentrancy counter.
//
// Every public mutating call brackets its work with Enter/Exit. Only the
// 0→1 and 1→0 transitions matter: nested calls (cascades, rollbacks)
// accumulate into the same transaction.
//
// INVARIANTS:
//   - events reach each listener in exactly the order they were emitted
//   - begin/end are balanced per listener per outermost transaction
//
// Thread-safety: none. The bus belongs to a single-writer session.
type Bus[E any] struct {
	depth int
	subs  []*Subscription[E]
}

// NewBus creates an empty bus.
func NewBus[E any]() *Bus[E] {
	return &Bus[E]{}
}

// Listener returns the subscribed listener.
func (s *Subscription[E]) Listener() Listener[E] {
	return s.listener
}

// Subscribe registers l for events accepted by filter.
// The same listener may hold several independent subscriptions.
func (b *Bus[E]) Subscribe(l Listener[E], filter Filter[E]) *Subscription[E] {
	sub := &Subscription[E]{listener: l, filter: filter}
	b.subs = append(b.subs, sub)
	return sub
}

// Unsubscribe cancels sub. It reports false if sub was not active.
// A listener removed mid-transaction receives no TransactionEnd.
func (b *Bus[E]) Unsubscribe(sub *Subscription[E]) bool {
	for i, s := range b.subs {
		if s == sub {
			s.removed = true
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of subscriptions.
func (b *Bus[E]) Len() int {
	return len(b.subs)
}

// Enter opens (or nests into) a transaction.
func (b *Bus[E]) Enter() {
	b.depth++
}

// Exit closes one nesting level. Closing the outermost level delivers
// TransactionEnd to every listener that received events.
func (b *Bus[E]) Exit() {
	if b.depth == 0 {
		return
	}
	b.depth--
	if b.depth > 0 {
		return
	}

	type pending struct {
		listener Listener[E]
		batch    []E
	}
	var ends []pending
	for _, s := range b.subs {
		if !s.open {
			continue
		}
		ends = append(ends, pending{listener: s.listener, batch: s.batch})
		s.open = false
		s.batch = nil
	}
	// State is reset before delivery so listeners may start new transactions.
	for _, p := range ends {
		p.listener.TransactionEnd(p.batch)
	}
}

// Depth returns the current nesting level.
func (b *Bus[E]) Depth() int {
	return b.depth
}

// InTransaction reports whether a transaction is open.
func (b *Bus[E]) InTransaction() bool {
	return b.depth > 0
}

// Emit dispatches event to every matching listener immediately.
// Outside a transaction the event forms a transaction of its own.
func (b *Bus[E]) Emit(event E) {
	if b.depth == 0 {
		b.Enter()
		defer b.Exit()
	}

	// Snapshot so listeners may (un)subscribe during dispatch.
	subs := make([]*Subscription[E], len(b.subs))
	copy(subs, b.subs)

	for _, s := range subs {
		if s.removed {
			continue
		}
		if s.filter != nil && !s.filter(event) {
			continue
		}
		if !s.open {
			s.open = true
			s.listener.TransactionBegin()
		}
		s.batch = append(s.batch, event)
		s.listener.Notify(event)
	}
}
