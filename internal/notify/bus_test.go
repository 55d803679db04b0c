package notify

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recorder struct {
	calls   []string
	batches [][]string
	onEnd   func()
}

func (r *recorder) TransactionBegin() { r.calls = append(r.calls, "begin") }
func (r *recorder) Notify(e string)   { r.calls = append(r.calls, e) }
func (r *recorder) TransactionEnd(batch []string) {
	r.calls = append(r.calls, "end")
	r.batches = append(r.batches, batch)
	if r.onEnd != nil {
		r.onEnd()
	}
}

func TestBus_BeginEndOncePerOutermostTransaction(t *testing.T) {
	b := NewBus[string]()
	r := &recorder{}
	b.Subscribe(r, nil)

	b.Enter()
	b.Emit("a")
	b.Enter()
	b.Emit("b")
	b.Exit()
	b.Emit("c")
	b.Exit()

	assert.Equal(t, []string{"begin", "a", "b", "c", "end"}, r.calls)
	assert.Equal(t, [][]string{{"a", "b", "c"}}, r.batches)
	assert.False(t, b.InTransaction())
}

func TestBus_EmptyTransactionIsSilent(t *testing.T) {
	b := NewBus[string]()
	r := &recorder{}
	b.Subscribe(r, nil)

	b.Enter()
	b.Exit()

	assert.Empty(t, r.calls)
}

func TestBus_EmitOutsideTransaction(t *testing.T) {
	b := NewBus[string]()
	r := &recorder{}
	b.Subscribe(r, nil)

	b.Emit("x")
	b.Emit("y")

	assert.Equal(t, []string{"begin", "x", "end", "begin", "y", "end"}, r.calls)
}

func TestBus_Filter(t *testing.T) {
	b := NewBus[string]()
	docs := &recorder{}
	session := &recorder{}
	b.Subscribe(docs, func(e string) bool { return strings.HasPrefix(e, "doc:") })
	b.Subscribe(session, func(e string) bool { return strings.HasPrefix(e, "session:") })

	b.Enter()
	b.Emit("doc:created")
	b.Emit("doc:modified")
	b.Exit()

	assert.Equal(t, []string{"begin", "doc:created", "doc:modified", "end"}, docs.calls)
	assert.Empty(t, session.calls, "listener with no matching events sees no transaction")
}

func TestBus_Unsubscribe(t *testing.T) {
	b := NewBus[string]()
	r := &recorder{}
	sub := b.Subscribe(r, nil)
	assert.Equal(t, 1, b.Len())
	assert.Same(t, r, sub.Listener())

	assert.True(t, b.Unsubscribe(sub))
	assert.False(t, b.Unsubscribe(sub))
	b.Emit("x")

	assert.Empty(t, r.calls)
	assert.Equal(t, 0, b.Len())
}

func TestBus_UnsubscribeMidTransactionSkipsEnd(t *testing.T) {
	b := NewBus[string]()
	r := &recorder{}
	sub := b.Subscribe(r, nil)

	b.Enter()
	b.Emit("a")
	b.Unsubscribe(sub)
	b.Emit("b")
	b.Exit()

	assert.Equal(t, []string{"begin", "a"}, r.calls)
}

func TestBus_ListenerMayStartNewTransactionInEnd(t *testing.T) {
	b := NewBus[string]()
	r := &recorder{}
	fired := false
	r.onEnd = func() {
		if !fired {
			fired = true
			b.Emit("follow-up")
		}
	}
	b.Subscribe(r, nil)

	b.Emit("first")

	assert.Equal(t, []string{"begin", "first", "end", "begin", "follow-up", "end"}, r.calls)
}

func TestBus_ExitWithoutEnterIsNoop(t *testing.T) {
	b := NewBus[string]()
	b.Exit()
	assert.Equal(t, 0, b.Depth())
}

func TestBus_SameListenerTwoSubscriptions(t *testing.T) {
	b := NewBus[string]()
	r := &recorder{}
	first := b.Subscribe(r, func(e string) bool { return e == "a" })
	b.Subscribe(r, func(e string) bool { return e == "b" })

	b.Unsubscribe(first)
	b.Emit("a")
	b.Emit("b")

	assert.Equal(t, []string{"begin", "b", "end"}, r.calls)
}
