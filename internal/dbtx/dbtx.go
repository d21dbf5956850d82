// Package dbtx runs units of work inside a single pgx transaction.
package dbtx

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// TxBeginner starts a transaction. *pgxpool.Pool satisfies it.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Run calls fn inside a transaction and commits if fn returns nil. Any error
// from fn rolls back every write fn made.
func Run(ctx context.Context, db TxBeginner, fn func(tx pgx.Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Savepoint runs fn inside a savepoint of tx. When fn fails only its writes
// are undone and fn's error is returned as is; tx itself stays usable. Any
// other returned error means tx is broken.
func Savepoint(ctx context.Context, tx pgx.Tx, fn func(sp pgx.Tx) error) error {
	sp, err := tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin savepoint: %w", err)
	}
	if err := fn(sp); err != nil {
		if rbErr := sp.Rollback(ctx); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback savepoint: %w", rbErr))
		}
		return err
	}
	if err := sp.Commit(ctx); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

// BestEffort is Savepoint for writes the caller can live without. fn's own
// failure comes back as skipped with tx intact; err is non-nil only when tx
// can no longer be used.
func BestEffort(ctx context.Context, tx pgx.Tx, fn func(sp pgx.Tx) error) (skipped, err error) {
	var fnErr error
	err = Savepoint(ctx, tx, func(sp pgx.Tx) error {
		fnErr = fn(sp)
		return fnErr
	})
	if err != nil && err == fnErr {
		return fnErr, nil
	}
	return nil, err
}
