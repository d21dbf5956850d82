package works

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/earnhub/backend/internal/execution"
	"github.com/earnhub/backend/internal/ledger"
	"github.com/earnhub/backend/internal/models"
)

// WorkStore is satisfied by *repository.WorkRepo.
type WorkStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, w *models.Work) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Work, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Work, error)
	Transition(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to models.WorkStatus, upd models.WorkUpdate) (*models.Work, error)
	ListByWorker(ctx context.Context, workerID uuid.UUID) ([]*models.Work, error)
	ListByEmployer(ctx context.Context, employerID uuid.UUID) ([]*models.Work, error)
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]*models.Work, error)
}

// JobStore is the slice of the job repository a review touches.
type JobStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Job, error)
	IncrementParticipants(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Job, error)
	SetAssignment(ctx context.Context, tx pgx.Tx, id uuid.UUID, status models.JobStatus, assignedTo *uuid.UUID) error
}

type UserStore interface {
	ApplyStats(ctx context.Context, tx pgx.Tx, id uuid.UUID, d models.StatsDelta) error
}

// Ledger pays workers from the job's escrow.
type Ledger interface {
	Credit(ctx context.Context, tx pgx.Tx, e ledger.Entry) (*models.Transaction, error)
}

// CommissionQueue schedules the referral cascade inside the payout tx.
type CommissionQueue interface {
	EnqueueCommissionTx(ctx context.Context, tx pgx.Tx, args execution.CommissionArgs) error
}

type Notifier interface {
	Notify(ctx context.Context, n *models.Notification)
	Record(ctx context.Context, a *models.Activity)
}
