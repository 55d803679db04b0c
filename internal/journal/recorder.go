package journal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/amlkernel/internal/model"
)

// Recorder is a model listener that persists every committed notification
// transaction of a session into the journal.
//
// Events are rendered when they are delivered, so labels reflect the state
// at the moment of the change rather than the end of the transaction.
// Write failures are logged and remembered (see Err); they never reach
// the kernel.
type Recorder struct {
	j       *Journal
	session string
	logger  *slog.Logger

	pending []Change
	err     error
	written int
}

var _ model.Listener = (*Recorder)(nil)

// Recorder returns a listener recording under the given session name.
// Register it with Session.AddObserver to capture every event.
func (j *Journal) Recorder(session string) *Recorder {
	return &Recorder{
		j:       j,
		session: session,
		logger:  j.logger.With("session", session),
	}
}

// Attach registers a new recorder as an observer of s and returns it.
func (j *Journal) Attach(s *model.Session, name string) *Recorder {
	r := j.Recorder(name)
	s.AddObserver(r)
	return r
}

func (r *Recorder) TransactionBegin() {
	r.pending = r.pending[:0]
}

func (r *Recorder) Notify(e model.Event) {
	r.pending = append(r.pending, changeOf(len(r.pending), e))
}

func (r *Recorder) TransactionEnd(_ []model.Event) {
	if len(r.pending) == 0 {
		return
	}
	seq := r.j.nextSeq()
	if err := r.j.writeTransaction(context.Background(), seq, r.session, r.pending); err != nil {
		r.logger.Error("journal write failed", "seq", seq, "changes", len(r.pending), "error", err)
		if r.err == nil {
			r.err = err
		}
		return
	}
	r.written++
	r.logger.Debug("journal transaction written", "seq", seq, "changes", len(r.pending))
}

// Err returns the first write failure, or nil.
func (r *Recorder) Err() error { return r.err }

// Written returns the number of transactions persisted so far.
func (r *Recorder) Written() int { return r.written }

func changeOf(idx int, e model.Event) Change {
	c := Change{
		Index:        idx,
		Type:         e.Type.String(),
		Line:         e.String(),
		Compensating: e.Compensating,
	}
	if e.Document != nil {
		c.Document = e.Document.Name()
	}
	if e.Entity != nil {
		c.EntityID = string(e.Entity.ID())
		c.Entity = e.Entity.Label()
	}
	return c
}

func (j *Journal) writeTransaction(ctx context.Context, seq int64, session string, changes []Change) (err error) {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	compensating := true
	for _, c := range changes {
		compensating = compensating && c.Compensating
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO transactions (seq, session, change_count, compensating)
		VALUES (?, ?, ?, ?)
	`, seq, session, len(changes), compensating); err != nil {
		return fmt.Errorf("write transaction %d: %w", seq, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO changes
		(tx_seq, idx, event_type, document, entity_id, entity, line, compensating)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare change insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range changes {
		if _, err = stmt.ExecContext(ctx,
			seq, c.Index, c.Type, c.Document, c.EntityID, c.Entity, c.Line, c.Compensating,
		); err != nil {
			return fmt.Errorf("write change %d/%d: %w", seq, c.Index, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
