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

const workColumns = `id, job_id, worker_id, employer_id, origin, status, submission_proof, submission_message,
	submission_files, submitted_at, payment_amount, payment_status, rating, employer_feedback, paid_at,
	created_at, updated_at`

type WorkRepo struct {
	pool *pgxpool.Pool
}

func NewWorkRepo(pool *pgxpool.Pool) *WorkRepo {
	return &WorkRepo{pool: pool}
}

func scanWork(row pgx.Row) (*models.Work, error) {
	var w models.Work
	err := row.Scan(&w.ID, &w.JobID, &w.WorkerID, &w.EmployerID, &w.Origin, &w.Status, &w.SubmissionProof,
		&w.SubmissionMessage, &w.SubmissionFiles, &w.SubmittedAt, &w.PaymentAmount, &w.PaymentStatus, &w.Rating,
		&w.EmployerFeedback, &w.PaidAt, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// CreateTx inserts a work. A second work for the same job and worker
// yields models.ErrAlreadyProcessed.
func (r *WorkRepo) CreateTx(ctx context.Context, tx pgx.Tx, w *models.Work) error {
	files := w.SubmissionFiles
	if files == nil {
		files = []string{}
	}
	err := tx.QueryRow(ctx, `
		INSERT INTO works (id, job_id, worker_id, employer_id, origin, status, submission_proof, submission_message,
			submission_files, submitted_at, payment_amount, payment_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`, w.ID, w.JobID, w.WorkerID, w.EmployerID, w.Origin, w.Status, w.SubmissionProof, w.SubmissionMessage,
		files, w.SubmittedAt, w.PaymentAmount, w.PaymentStatus).Scan(&w.CreatedAt, &w.UpdatedAt)
	if isUniqueViolation(err, "") {
		return fmt.Errorf("work for job %s and worker %s exists: %w", w.JobID, w.WorkerID, models.ErrAlreadyProcessed)
	}
	return err
}

func (r *WorkRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Work, error) {
	w, err := scanWork(r.pool.QueryRow(ctx, `SELECT `+workColumns+` FROM works WHERE id = $1`, id))
	return w, noRows(err, "work")
}

// GetByIDForUpdate locks the work row. Call within a transaction.
func (r *WorkRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Work, error) {
	w, err := scanWork(tx.QueryRow(ctx, `SELECT `+workColumns+` FROM works WHERE id = $1 FOR UPDATE`, id))
	return w, noRows(err, "work")
}

// Transition moves a work from one status to another and writes the set
// fields of upd. It only applies while the work is still in from.
func (r *WorkRepo) Transition(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to models.WorkStatus, upd models.WorkUpdate) (*models.Work, error) {
	w, err := scanWork(tx.QueryRow(ctx, `
		UPDATE works SET status = $3,
			submission_proof = COALESCE($4, submission_proof),
			submission_message = COALESCE($5, submission_message),
			submission_files = COALESCE($6, submission_files),
			submitted_at = COALESCE($7, submitted_at),
			payment_status = COALESCE($8, payment_status),
			rating = COALESCE($9, rating),
			employer_feedback = COALESCE($10, employer_feedback),
			paid_at = COALESCE($11, paid_at),
			updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING `+workColumns, id, from, to, upd.SubmissionProof, upd.SubmissionMessage, upd.SubmissionFiles,
		upd.SubmittedAt, upd.PaymentStatus, upd.Rating, upd.EmployerFeedback, upd.PaidAt))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, casMiss(ctx, tx, "works", id)
	}
	return w, err
}

func (r *WorkRepo) ListByWorker(ctx context.Context, workerID uuid.UUID) ([]*models.Work, error) {
	return r.list(ctx, `WHERE worker_id = $1`, workerID)
}

func (r *WorkRepo) ListByEmployer(ctx context.Context, employerID uuid.UUID) ([]*models.Work, error) {
	return r.list(ctx, `WHERE employer_id = $1`, employerID)
}

func (r *WorkRepo) ListByJob(ctx context.Context, jobID uuid.UUID) ([]*models.Work, error) {
	return r.list(ctx, `WHERE job_id = $1`, jobID)
}

func (r *WorkRepo) list(ctx context.Context, cond string, arg any) ([]*models.Work, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+workColumns+` FROM works `+cond+` ORDER BY created_at DESC`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Work
	for rows.Next() {
		w, err := scanWork(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, w)
	}
	return list, rows.Err()
}
