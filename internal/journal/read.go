package journal

import (
	"context"
	"fmt"
)

// Transaction is one recorded notification transaction.
type Transaction struct {
	Seq          int64  `json:"seq"`
	Session      string `json:"session"`
	Changes      int    `json:"changes"`
	Compensating bool   `json:"compensating"`
}

// Change is one recorded event.
type Change struct {
	TxSeq        int64  `json:"tx_seq"`
	Index        int    `json:"index"`
	Type         string `json:"type"`
	Document     string `json:"document,omitempty"`
	EntityID     string `json:"entity_id,omitempty"`
	Entity       string `json:"entity,omitempty"`
	Line         string `json:"line"`
	Compensating bool   `json:"compensating,omitempty"`
}

// Transactions returns every recorded transaction in seq order.
func (j *Journal) Transactions(ctx context.Context) ([]Transaction, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT seq, session, change_count, compensating
		FROM transactions
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.Seq, &t.Session, &t.Changes, &t.Compensating); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

// Changes returns the events of transaction txSeq in delivery order.
func (j *Journal) Changes(ctx context.Context, txSeq int64) ([]Change, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT tx_seq, idx, event_type, document, entity_id, entity, line, compensating
		FROM changes
		WHERE tx_seq = ?
		ORDER BY idx ASC
	`, txSeq)
	if err != nil {
		return nil, fmt.Errorf("query changes: %w", err)
	}
	defer rows.Close()

	var out []Change
	for rows.Next() {
		var c Change
		if err := rows.Scan(&c.TxSeq, &c.Index, &c.Type, &c.Document, &c.EntityID, &c.Entity, &c.Line, &c.Compensating); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate changes: %w", err)
	}
	return out, nil
}

// CountChanges returns the total number of recorded events.
func (j *Journal) CountChanges(ctx context.Context) (int, error) {
	var n int
	if err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM changes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count changes: %w", err)
	}
	return n, nil
}
