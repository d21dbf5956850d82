// Package jobs owns the job lifecycle: escrowed posting, admin moderation,
// assignment and deletion with refund of the unconsumed budget.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/earnhub/backend/internal/dbtx"
	"github.com/earnhub/backend/internal/ledger"
	"github.com/earnhub/backend/internal/metrics"
	"github.com/earnhub/backend/internal/models"
)

type CreateJobInput struct {
	Title       string
	Description string
	Category    string
	WorkerNeed  int
	WorkerEarn  decimal.Decimal
}

type Service interface {
	CreateJob(ctx context.Context, employerID uuid.UUID, in CreateJobInput) (*models.Job, error)
	ApproveJob(ctx context.Context, admin models.Actor, jobID uuid.UUID) (*models.Job, error)
	RejectJob(ctx context.Context, admin models.Actor, jobID uuid.UUID, reason string) (*models.Job, error)
	DeleteJob(ctx context.Context, actor models.Actor, jobID uuid.UUID) (refund decimal.Decimal, err error)
	RequestDeletion(ctx context.Context, actor models.Actor, jobID uuid.UUID) error
	ListDeleteRequests(ctx context.Context) ([]*models.Job, error)
	AssignJob(ctx context.Context, actor models.Actor, jobID, workerID uuid.UUID) (*models.Work, error)
	GetJob(ctx context.Context, jobID uuid.UUID) (*models.Job, error)
	ListJobs(ctx context.Context, f models.JobFilter) ([]*models.Job, error)
}

// Deps wires the service.
type Deps struct {
	DB       dbtx.TxBeginner
	Jobs     JobStore
	Works    WorkStore
	Users    UserStore
	Ledger   Ledger
	Notifier Notifier
	Stats    StatsTrigger
	MinSpend decimal.Decimal
	Logger   *slog.Logger
}

type service struct {
	Deps
}

func NewService(d Deps) *service {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &service{Deps: d}
}

var _ Service = (*service)(nil)

// CreateJob escrows worker_need × worker_earn from the employer's deposit
// balance and stores the job awaiting moderation.
func (s *service) CreateJob(ctx context.Context, employerID uuid.UUID, in CreateJobInput) (*models.Job, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.WorkerNeed <= 0 || !in.WorkerEarn.IsPositive() {
		return nil, fmt.Errorf("worker_need and worker_earn must be positive: %w", models.ErrInvalidAmount)
	}
	// Payouts and refunds use the stored worker_earn, so the escrowed
	// budget must be computed from exactly that value.
	if !models.FitsScale(in.WorkerEarn) {
		return nil, fmt.Errorf("worker_earn %s has more than %d decimals: %w", in.WorkerEarn, models.AmountScale, models.ErrInvalidAmount)
	}
	budget := in.WorkerEarn.Mul(decimal.NewFromInt(int64(in.WorkerNeed)))
	if budget.LessThan(s.MinSpend) {
		metrics.LedgerRejections.WithLabelValues("below_minimum_spend").Inc()
		return nil, fmt.Errorf("budget %s below %s: %w", budget, s.MinSpend, models.ErrBelowMinimumSpend)
	}
	if in.Description == "" {
		in.Description = in.Title
	}

	job := &models.Job{
		ID:          uuid.New(),
		EmployerID:  employerID,
		Title:       in.Title,
		Description: in.Description,
		Category:    in.Category,
		WorkerNeed:  in.WorkerNeed,
		WorkerEarn:  in.WorkerEarn,
		Budget:      budget,
		Status:      models.JobPendingApproval,
		AdminStatus: models.AdminPending,
	}
	err := dbtx.Run(ctx, s.DB, func(tx pgx.Tx) error {
		if err := s.Jobs.CreateTx(ctx, tx, job); err != nil {
			return err
		}
		_, err := s.Ledger.Debit(ctx, tx, ledger.Entry{
			UserID:      employerID,
			Balance:     models.BalanceDeposit,
			Amount:      budget,
			Type:        models.TxPayment,
			Description: "Job posting: " + job.Title,
			JobID:       &job.ID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("job posted", "job_id", job.ID, "employer_id", employerID, "budget", budget.String())
	s.Notifier.Record(ctx, &models.Activity{
		UserID: employerID, Type: models.ActivityJobPosted, JobID: &job.ID,
		Message: "Posted job: " + job.Title, IsPublic: true,
	})
	s.Stats.TriggerStats(ctx)
	return job, nil
}

// ApproveJob opens a pending job to workers. No money moves.
func (s *service) ApproveJob(ctx context.Context, admin models.Actor, jobID uuid.UUID) (*models.Job, error) {
	if !admin.IsAdmin() {
		return nil, models.ErrUnauthorized
	}
	var job *models.Job
	err := dbtx.Run(ctx, s.DB, func(tx pgx.Tx) error {
		var err error
		job, err = s.decide(ctx, tx, jobID, models.AdminApproved, models.JobOpen, "")
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Notifier.Notify(ctx, &models.Notification{
		UserID: job.EmployerID, Type: models.NotifySystem, Title: "Job Approved",
		Message: "Your job has been approved: " + job.Title, Link: "/jobs/" + job.ID.String(), JobID: &job.ID,
	})
	return job, nil
}

// RejectJob cancels a pending job and returns its whole budget to the
// employer in the same transaction.
func (s *service) RejectJob(ctx context.Context, admin models.Actor, jobID uuid.UUID, reason string) (*models.Job, error) {
	if !admin.IsAdmin() {
		return nil, models.ErrUnauthorized
	}
	var job *models.Job
	err := dbtx.Run(ctx, s.DB, func(tx pgx.Tx) error {
		var err error
		job, err = s.decide(ctx, tx, jobID, models.AdminRejected, models.JobCancelled, reason)
		if err != nil {
			return err
		}
		_, err = s.Ledger.Credit(ctx, tx, ledger.Entry{
			UserID:      job.EmployerID,
			Balance:     models.BalanceDeposit,
			Amount:      job.Budget,
			Type:        models.TxDeposit,
			Description: "Refund for rejected job: " + job.Title,
			JobID:       &job.ID,
			Metadata:    models.Metadata{Refund: &models.RefundDetail{Reason: reason}},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	msg := "Your job was rejected: " + job.Title
	if reason != "" {
		msg += ". Reason: " + reason
	}
	s.Notifier.Notify(ctx, &models.Notification{
		UserID: job.EmployerID, Type: models.NotifySystem, Title: "Job Rejected",
		Message: msg, JobID: &job.ID,
	})
	return job, nil
}

// decide applies a moderation decision to a job still pending review. A
// repeat of the same decision is reported as already processed; the
// opposite decision as an invalid state.
func (s *service) decide(ctx context.Context, tx pgx.Tx, jobID uuid.UUID, decision models.AdminStatus, status models.JobStatus, remark string) (*models.Job, error) {
	current, err := s.Jobs.GetByIDForUpdate(ctx, tx, jobID)
	if err != nil {
		return nil, err
	}
	switch current.AdminStatus {
	case models.AdminPending:
	case decision:
		metrics.SettlementConflicts.WithLabelValues("job_" + string(decision)).Inc()
		return nil, fmt.Errorf("job %s already %s: %w", jobID, decision, models.ErrAlreadyProcessed)
	default:
		return nil, fmt.Errorf("job %s is %s: %w", jobID, current.AdminStatus, models.ErrInvalidState)
	}
	return s.Jobs.SetAdminDecision(ctx, tx, jobID, decision, status, remark)
}

// DeleteJob removes a job and refunds the budget of its unfilled slots. A
// job already refunded by rejection refunds nothing. The refund and the
// delete commit together.
func (s *service) DeleteJob(ctx context.Context, actor models.Actor, jobID uuid.UUID) (decimal.Decimal, error) {
	refund := decimal.Zero
	err := dbtx.Run(ctx, s.DB, func(tx pgx.Tx) error {
		job, err := s.Jobs.GetByIDForUpdate(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if job.EmployerID != actor.ID && !actor.IsAdmin() {
			return models.ErrUnauthorized
		}
		if job.AdminStatus != models.AdminRejected {
			refund = job.Reserved()
		}
		if refund.IsPositive() {
			if _, err := s.Ledger.Credit(ctx, tx, ledger.Entry{
				UserID:      job.EmployerID,
				Balance:     models.BalanceDeposit,
				Amount:      refund,
				Type:        models.TxDeposit,
				Description: "Refund for deleted job: " + job.Title,
				JobID:       &job.ID,
				Metadata:    models.Metadata{Refund: &models.RefundDetail{Reason: "job deleted"}},
			}); err != nil {
				return err
			}
		}
		if err := s.releaseAssignee(ctx, tx, job); err != nil {
			return err
		}
		return s.Jobs.DeleteTx(ctx, tx, jobID)
	})
	if err != nil {
		return decimal.Zero, err
	}
	s.Logger.Info("job deleted", "job_id", jobID, "actor_id", actor.ID, "refund", refund.String())
	return refund, nil
}

// releaseAssignee gives back the active-job slot of a worker whose assigned
// work is deleted with its job before it was decided.
func (s *service) releaseAssignee(ctx context.Context, tx pgx.Tx, job *models.Job) error {
	if job.AssignedTo == nil {
		return nil
	}
	works, err := s.Works.ListByJob(ctx, job.ID)
	if err != nil {
		return err
	}
	for _, w := range works {
		if w.WorkerID != *job.AssignedTo || w.Origin != models.OriginAssigned {
			continue
		}
		if w.Status == models.WorkPending || w.Status == models.WorkSubmitted {
			return s.Users.ApplyStats(ctx, tx, w.WorkerID, models.StatsDelta{ActiveJobs: -1})
		}
	}
	return nil
}

// RequestDeletion flags a job for admin deletion.
func (s *service) RequestDeletion(ctx context.Context, actor models.Actor, jobID uuid.UUID) error {
	job, err := s.Jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.EmployerID != actor.ID {
		return models.ErrUnauthorized
	}
	return s.Jobs.SetDeleteRequested(ctx, jobID, true)
}

func (s *service) ListDeleteRequests(ctx context.Context) ([]*models.Job, error) {
	requested := true
	return s.Jobs.List(ctx, models.JobFilter{DeleteRequested: &requested, Limit: 100})
}

// AssignJob hands an open job to a worker. The work starts pending and is
// paid worker_earn on approval.
func (s *service) AssignJob(ctx context.Context, actor models.Actor, jobID, workerID uuid.UUID) (*models.Work, error) {
	if _, err := s.Users.GetByID(ctx, workerID); err != nil {
		return nil, err
	}
	var job *models.Job
	work := &models.Work{
		ID:            uuid.New(),
		JobID:         jobID,
		WorkerID:      workerID,
		Origin:        models.OriginAssigned,
		Status:        models.WorkPending,
		PaymentStatus: models.PaymentPending,
	}
	err := dbtx.Run(ctx, s.DB, func(tx pgx.Tx) error {
		var err error
		job, err = s.Jobs.GetByIDForUpdate(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if job.EmployerID != actor.ID && !actor.IsAdmin() {
			return models.ErrUnauthorized
		}
		if job.Status != models.JobOpen || !job.AcceptsWork() {
			return fmt.Errorf("job %s is %s: %w", jobID, job.Status, models.ErrInvalidState)
		}
		if workerID == job.EmployerID {
			return fmt.Errorf("employer cannot work own job: %w", models.ErrInvalidState)
		}
		work.EmployerID = job.EmployerID
		work.PaymentAmount = job.WorkerEarn
		if err := s.Works.CreateTx(ctx, tx, work); err != nil {
			return err
		}
		if err := s.Jobs.SetAssignment(ctx, tx, jobID, models.JobInProgress, &workerID); err != nil {
			return err
		}
		return s.Users.ApplyStats(ctx, tx, workerID, models.StatsDelta{ActiveJobs: 1})
	})
	if err != nil {
		return nil, err
	}

	s.Notifier.Record(ctx, &models.Activity{
		UserID: workerID, Type: models.ActivityJobAssigned, JobID: &jobID, WorkID: &work.ID,
		Message: "Assigned to: " + job.Title, IsPublic: true,
	})
	s.Notifier.Notify(ctx, &models.Notification{
		UserID: workerID, Type: models.NotifyJobAssigned, Title: "Job Assigned",
		Message: "You have been assigned to job: " + job.Title, Link: "/works/" + work.ID.String(),
		JobID: &jobID, WorkID: &work.ID,
	})
	return work, nil
}

func (s *service) GetJob(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	return s.Jobs.GetByID(ctx, jobID)
}

func (s *service) ListJobs(ctx context.Context, f models.JobFilter) ([]*models.Job, error) {
	return s.Jobs.List(ctx, f)
}
