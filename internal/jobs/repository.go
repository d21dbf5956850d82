package jobs

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/earnhub/backend/internal/ledger"
	"github.com/earnhub/backend/internal/models"
)

// JobStore is the job persistence the service needs. *repository.JobRepo
// satisfies it.
type JobStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, j *models.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Job, error)
	SetAdminDecision(ctx context.Context, tx pgx.Tx, id uuid.UUID, decision models.AdminStatus, status models.JobStatus, remark string) (*models.Job, error)
	SetAssignment(ctx context.Context, tx pgx.Tx, id uuid.UUID, status models.JobStatus, assignedTo *uuid.UUID) error
	SetDeleteRequested(ctx context.Context, id uuid.UUID, requested bool) error
	DeleteTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
	List(ctx context.Context, f models.JobFilter) ([]*models.Job, error)
}

// WorkStore opens work records for assignments and finds the one a
// deleted job leaves behind.
type WorkStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, w *models.Work) error
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]*models.Work, error)
}

// UserStore reads users and bumps their counters.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	ApplyStats(ctx context.Context, tx pgx.Tx, id uuid.UUID, d models.StatsDelta) error
}

// Ledger moves escrow in and out of deposit balances.
type Ledger interface {
	Credit(ctx context.Context, tx pgx.Tx, e ledger.Entry) (*models.Transaction, error)
	Debit(ctx context.Context, tx pgx.Tx, e ledger.Entry) (*models.Transaction, error)
}

// Notifier records side effects after commit. Implementations never fail.
type Notifier interface {
	Notify(ctx context.Context, n *models.Notification)
	Record(ctx context.Context, a *models.Activity)
}

// StatsTrigger asks for an admin dashboard refresh.
type StatsTrigger interface {
	TriggerStats(ctx context.Context)
}
