package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/earnhub/backend/internal/models"
)

const transactionColumns = `id, reference, user_id, type, balance, direction, amount, balance_after, status,
	description, payment_method, job_id, work_id, metadata, created_at, updated_at`

type TransactionRepo struct {
	pool *pgxpool.Pool
}

func NewTransactionRepo(pool *pgxpool.Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(&t.ID, &t.Reference, &t.UserID, &t.Type, &t.Balance, &t.Direction, &t.Amount, &t.BalanceAfter,
		&t.Status, &t.Description, &t.PaymentMethod, &t.JobID, &t.WorkID, &t.Metadata, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTx appends a ledger row inside the given transaction. A reused
// reference yields models.ErrAlreadyProcessed.
func (r *TransactionRepo) CreateTx(ctx context.Context, tx pgx.Tx, t *models.Transaction) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO transactions (id, reference, user_id, type, balance, direction, amount, balance_after, status,
			description, payment_method, job_id, work_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at
	`, t.ID, t.Reference, t.UserID, t.Type, t.Balance, t.Direction, t.Amount, t.BalanceAfter, t.Status,
		t.Description, t.PaymentMethod, t.JobID, t.WorkID, t.Metadata).Scan(&t.CreatedAt, &t.UpdatedAt)
	if isUniqueViolation(err, "transactions_reference_key") {
		return fmt.Errorf("transaction reference %q: %w", t.Reference, models.ErrAlreadyProcessed)
	}
	return err
}

func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	t, err := scanTransaction(r.pool.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
	return t, noRows(err, "transaction")
}

// GetByIDForUpdate locks the transaction row. Call within a transaction.
func (r *TransactionRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Transaction, error) {
	t, err := scanTransaction(tx.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id))
	return t, noRows(err, "transaction")
}

// Transition moves a transaction from one status to another and records the
// review annotation when given. It only applies while the row is still in
// from; otherwise models.ErrConflict is returned.
func (r *TransactionRepo) Transition(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to models.TransactionStatus, review *models.Review) (*models.Transaction, error) {
	t, err := scanTransaction(tx.QueryRow(ctx, `
		UPDATE transactions SET status = $3,
			metadata = CASE WHEN $4::jsonb IS NULL THEN metadata ELSE jsonb_set(metadata, '{review}', $4::jsonb) END,
			updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING `+transactionColumns, id, from, to, review))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, casMiss(ctx, tx, "transactions", id)
	}
	return t, err
}

// List returns transactions newest first.
func (r *TransactionRepo) List(ctx context.Context, f models.TransactionFilter) ([]*models.Transaction, error) {
	var w where
	if f.UserID != nil {
		w.add("user_id = $%d", *f.UserID)
	}
	if f.Type != "" {
		w.add("type = $%d", f.Type)
	}
	if f.Status != "" {
		w.add("status = $%d", f.Status)
	}
	q := `SELECT ` + transactionColumns + ` FROM transactions` + w.String() + ` ORDER BY created_at DESC` + w.page(f.Limit, f.Offset)
	rows, err := r.pool.Query(ctx, q, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}
