package testutil

import (
	"github.com/roach88/amlkernel/internal/model"
)

// Recorder is a model.Listener that keeps everything it observes.
//
// Lines holds each event rendered at dispatch time, so labels reflect the
// state the listener actually saw (entities about to be deleted still
// carry their names and paths).
type Recorder struct {
	Begins  int
	Ends    int
	Events  []model.Event
	Lines   []string
	Batches [][]model.Event

	// OnNotify, if set, runs inside Notify after the event is recorded.
	OnNotify func(e model.Event)
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) TransactionBegin() {
	r.Begins++
}

func (r *Recorder) Notify(e model.Event) {
	r.Events = append(r.Events, e)
	r.Lines = append(r.Lines, e.String())
	if r.OnNotify != nil {
		r.OnNotify(e)
	}
}

func (r *Recorder) TransactionEnd(batch []model.Event) {
	r.Ends++
	r.Batches = append(r.Batches, batch)
}

// Types returns the recorded event types in order.
func (r *Recorder) Types() []model.EventType {
	out := make([]model.EventType, len(r.Events))
	for i, e := range r.Events {
		out[i] = e.Type
	}
	return out
}

// Count returns how many events of type t were recorded.
func (r *Recorder) Count(t model.EventType) int {
	n := 0
	for _, e := range r.Events {
		if e.Type == t {
			n++
		}
	}
	return n
}

// Reset forgets everything recorded so far.
func (r *Recorder) Reset() {
	r.Begins, r.Ends = 0, 0
	r.Events, r.Lines, r.Batches = nil, nil, nil
}
