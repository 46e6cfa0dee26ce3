package postgres

import (
	"context"
)

// Next hands out the next number for a scope as a single atomic
// increment-and-fetch. A fresh scope starts at the configured floor; two
// concurrent callers can never observe the same value because the whole
// read-modify-write is one statement.
func (r *sequenceRepository) Next(ctx context.Context, scope string) (int64, error) {
	query := `
		INSERT INTO sequences (name, seq)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE
		SET seq = sequences.seq + 1
		RETURNING seq
	`
	var seq int64
	if err := r.db.GetContext(ctx, &seq, query, scope, r.floor); err != nil {
		return 0, wrapError("next sequence value", err)
	}
	return seq, nil
}
