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

const jobColumns = `id, employer_id, title, description, category, worker_need, worker_earn, budget,
	current_participants, status, admin_status, admin_remark, assigned_to, delete_requested, created_at, updated_at`

type JobRepo struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	err := row.Scan(&j.ID, &j.EmployerID, &j.Title, &j.Description, &j.Category, &j.WorkerNeed, &j.WorkerEarn, &j.Budget,
		&j.CurrentParticipants, &j.Status, &j.AdminStatus, &j.AdminRemark, &j.AssignedTo, &j.DeleteRequested,
		&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *JobRepo) CreateTx(ctx context.Context, tx pgx.Tx, j *models.Job) error {
	return tx.QueryRow(ctx, `
		INSERT INTO jobs (id, employer_id, title, description, category, worker_need, worker_earn, budget,
			current_participants, status, admin_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`, j.ID, j.EmployerID, j.Title, j.Description, j.Category, j.WorkerNeed, j.WorkerEarn, j.Budget,
		j.CurrentParticipants, j.Status, j.AdminStatus).Scan(&j.CreatedAt, &j.UpdatedAt)
}

func (r *JobRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	j, err := scanJob(r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	return j, noRows(err, "job")
}

// GetByIDForUpdate locks the job row. Call within a transaction.
func (r *JobRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Job, error) {
	j, err := scanJob(tx.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1 FOR UPDATE`, id))
	return j, noRows(err, "job")
}

// SetAdminDecision resolves moderation of a job still pending review.
func (r *JobRepo) SetAdminDecision(ctx context.Context, tx pgx.Tx, id uuid.UUID, decision models.AdminStatus, status models.JobStatus, remark string) (*models.Job, error) {
	j, err := scanJob(tx.QueryRow(ctx, `
		UPDATE jobs SET admin_status = $2, status = $3, admin_remark = $4, updated_at = now()
		WHERE id = $1 AND admin_status = 'pending'
		RETURNING `+jobColumns, id, decision, status, remark))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, casMiss(ctx, tx, "jobs", id)
	}
	return j, err
}

// IncrementParticipants consumes one paid slot and completes the job when
// the last slot is taken. A full job yields models.ErrInvalidState.
func (r *JobRepo) IncrementParticipants(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Job, error) {
	j, err := scanJob(tx.QueryRow(ctx, `
		UPDATE jobs SET current_participants = current_participants + 1,
			status = CASE WHEN current_participants + 1 >= worker_need THEN 'completed' ELSE status END,
			updated_at = now()
		WHERE id = $1 AND current_participants < worker_need
		RETURNING `+jobColumns, id))
	if errors.Is(err, pgx.ErrNoRows) {
		missErr := casMiss(ctx, tx, "jobs", id)
		if errors.Is(missErr, models.ErrConflict) {
			return nil, fmt.Errorf("job %s has no open slots: %w", id, models.ErrInvalidState)
		}
		return nil, missErr
	}
	return j, err
}

// SetAssignment updates the marketplace status and the assigned worker.
func (r *JobRepo) SetAssignment(ctx context.Context, tx pgx.Tx, id uuid.UUID, status models.JobStatus, assignedTo *uuid.UUID) error {
	tag, err := tx.Exec(ctx, `
		UPDATE jobs SET status = $2, assigned_to = $3, updated_at = now() WHERE id = $1
	`, id, status, assignedTo)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %w", id, models.ErrNotFound)
	}
	return nil
}

func (r *JobRepo) SetDeleteRequested(ctx context.Context, id uuid.UUID, requested bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE jobs SET delete_requested = $2, updated_at = now() WHERE id = $1`, id, requested)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// DeleteTx removes the job; its works cascade and ledger rows keep a null job_id.
func (r *JobRepo) DeleteTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	tag, err := tx.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// List returns jobs newest first.
func (r *JobRepo) List(ctx context.Context, f models.JobFilter) ([]*models.Job, error) {
	var w where
	if f.EmployerID != nil {
		w.add("employer_id = $%d", *f.EmployerID)
	}
	if f.Status != "" {
		w.add("status = $%d", f.Status)
	}
	if f.AdminStatus != "" {
		w.add("admin_status = $%d", f.AdminStatus)
	}
	if f.Category != "" {
		w.add("category = $%d", f.Category)
	}
	if f.DeleteRequested != nil {
		w.add("delete_requested = $%d", *f.DeleteRequested)
	}
	q := `SELECT ` + jobColumns + ` FROM jobs` + w.String() + ` ORDER BY created_at DESC` + w.page(f.Limit, f.Offset)
	rows, err := r.pool.Query(ctx, q, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, j)
	}
	return list, rows.Err()
}
