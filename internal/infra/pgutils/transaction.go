package pgutils

import (
	"context"
	"database/sql"
	"fmt"
)

// WithTx runs fn inside a single database transaction.
//
// Every multi-entity mutation in this codebase (event distribution, payment
// creation with deductions, wallet adjustments, repairs) goes through exactly
// one WithTx scope: commit on nil, rollback on any error, so partial state is
// never observable.
func WithTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	err = fn(tx)
	if err != nil {
		rbErr := tx.Rollback()
		if rbErr != nil {
			return fmt.Errorf("rollback after fn error: %v (fn err: %w)", rbErr, err)
		}
		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}
