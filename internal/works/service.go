// Package works runs the work state machine: proof submission, employer
// review and the payout that follows approval.
package works

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/earnhub/backend/internal/dbtx"
	"github.com/earnhub/backend/internal/execution"
	"github.com/earnhub/backend/internal/ledger"
	"github.com/earnhub/backend/internal/metrics"
	"github.com/earnhub/backend/internal/models"
)

// transitions lists every status change a work may make. Works enter the
// machine either submitted (direct) or pending (assigned).
var transitions = map[models.WorkStatus][]models.WorkStatus{
	models.WorkPending:   {models.WorkSubmitted},
	models.WorkSubmitted: {models.WorkApproved, models.WorkRejected},
}

// CanTransition reports whether a work may move from one status to another.
func CanTransition(from, to models.WorkStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// DefaultRating is recorded when an approval carries none.
const DefaultRating = 5

type SubmitInput struct {
	Proof   string
	Message string
	Files   []string
}

type ReviewInput struct {
	Rating   *int
	Feedback string
}

type Service interface {
	SubmitDirect(ctx context.Context, workerID, jobID uuid.UUID, in SubmitInput) (*models.Work, error)
	Submit(ctx context.Context, worker models.Actor, workID uuid.UUID, in SubmitInput) (*models.Work, error)
	Approve(ctx context.Context, actor models.Actor, workID uuid.UUID, in ReviewInput) (*models.Work, error)
	Reject(ctx context.Context, actor models.Actor, workID uuid.UUID, feedback string) (*models.Work, error)
	GetWork(ctx context.Context, actor models.Actor, workID uuid.UUID) (*models.Work, error)
	ListByWorker(ctx context.Context, workerID uuid.UUID) ([]*models.Work, error)
	ListByEmployer(ctx context.Context, employerID uuid.UUID) ([]*models.Work, error)
	ListByJob(ctx context.Context, actor models.Actor, jobID uuid.UUID) ([]*models.Work, error)
}

type Deps struct {
	DB          dbtx.TxBeginner
	Works       WorkStore
	Jobs        JobStore
	Users       UserStore
	Ledger      Ledger
	Commissions CommissionQueue
	Notifier    Notifier
	Logger      *slog.Logger
}

type service struct {
	Deps
	now func() time.Time
}

func NewService(d Deps) *service {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &service{Deps: d, now: time.Now}
}

var _ Service = (*service)(nil)

// SubmitDirect creates a submitted work for a worker who took an open job
// without assignment. One work per worker and job.
func (s *service) SubmitDirect(ctx context.Context, workerID, jobID uuid.UUID, in SubmitInput) (*models.Work, error) {
	now := s.now()
	var job *models.Job
	work := &models.Work{
		ID:                uuid.New(),
		JobID:             jobID,
		WorkerID:          workerID,
		Origin:            models.OriginDirect,
		Status:            models.WorkSubmitted,
		SubmissionProof:   in.Proof,
		SubmissionMessage: in.Message,
		SubmissionFiles:   in.Files,
		SubmittedAt:       &now,
		PaymentStatus:     models.PaymentPending,
	}
	err := dbtx.Run(ctx, s.DB, func(tx pgx.Tx) error {
		var err error
		job, err = s.Jobs.GetByIDForUpdate(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if !job.AcceptsWork() {
			return fmt.Errorf("job %s is %s/%s: %w", jobID, job.Status, job.AdminStatus, models.ErrInvalidState)
		}
		if job.EmployerID == workerID {
			return fmt.Errorf("employer cannot work own job: %w", models.ErrInvalidState)
		}
		work.EmployerID = job.EmployerID
		work.PaymentAmount = job.WorkerEarn
		return s.Works.CreateTx(ctx, tx, work)
	})
	if err != nil {
		return nil, err
	}
	s.submitted(ctx, job, work)
	return work, nil
}

// Submit attaches proof to an assigned work.
func (s *service) Submit(ctx context.Context, worker models.Actor, workID uuid.UUID, in SubmitInput) (*models.Work, error) {
	var job *models.Job
	var work *models.Work
	err := dbtx.Run(ctx, s.DB, func(tx pgx.Tx) error {
		current, err := s.Works.GetByIDForUpdate(ctx, tx, workID)
		if err != nil {
			return err
		}
		if current.WorkerID != worker.ID {
			return models.ErrUnauthorized
		}
		if err := checkTransition(current, models.WorkSubmitted); err != nil {
			return err
		}
		if job, err = s.Jobs.GetByID(ctx, current.JobID); err != nil {
			return err
		}
		now := s.now()
		work, err = s.Works.Transition(ctx, tx, workID, current.Status, models.WorkSubmitted, models.WorkUpdate{
			SubmissionProof:   &in.Proof,
			SubmissionMessage: &in.Message,
			SubmissionFiles:   in.Files,
			SubmittedAt:       &now,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.submitted(ctx, job, work)
	return work, nil
}

func (s *service) submitted(ctx context.Context, job *models.Job, work *models.Work) {
	s.Notifier.Notify(ctx, &models.Notification{
		UserID: job.EmployerID, Type: models.NotifyWorkSubmitted, Title: "New Work Submission",
		Message: "A worker submitted proof for: " + job.Title, Link: "/works/" + work.ID.String(),
		JobID: &job.ID, WorkID: &work.ID,
	})
	s.Notifier.Record(ctx, &models.Activity{
		UserID: work.WorkerID, Type: models.ActivityWorkSubmitted, JobID: &job.ID, WorkID: &work.ID,
		Message: "Submitted work for: " + job.Title,
	})
}

// Approve pays the worker. The status flip, slot consumption, earning
// credit, counters and referral enqueue commit together, so a work is paid
// at most once and never beyond the job's worker_need.
func (s *service) Approve(ctx context.Context, actor models.Actor, workID uuid.UUID, in ReviewInput) (*models.Work, error) {
	rating := DefaultRating
	if in.Rating != nil {
		rating = *in.Rating
	}
	var job *models.Job
	var work *models.Work
	err := dbtx.Run(ctx, s.DB, func(tx pgx.Tx) error {
		current, err := s.Works.GetByIDForUpdate(ctx, tx, workID)
		if err != nil {
			return err
		}
		if job, err = s.Jobs.GetByIDForUpdate(ctx, tx, current.JobID); err != nil {
			return err
		}
		if job.EmployerID != actor.ID && !actor.IsAdmin() {
			return models.ErrUnauthorized
		}
		if err := checkTransition(current, models.WorkApproved); err != nil {
			return err
		}

		now := s.now()
		paid := models.PaymentPaid
		work, err = s.Works.Transition(ctx, tx, workID, models.WorkSubmitted, models.WorkApproved, models.WorkUpdate{
			PaymentStatus:    &paid,
			Rating:           &rating,
			EmployerFeedback: &in.Feedback,
			PaidAt:           &now,
		})
		if err != nil {
			return err
		}
		if job, err = s.Jobs.IncrementParticipants(ctx, tx, job.ID); err != nil {
			return err
		}
		if job.Status == models.JobInProgress && job.AssignedTo != nil && *job.AssignedTo == work.WorkerID {
			if err := s.Jobs.SetAssignment(ctx, tx, job.ID, models.JobOpen, nil); err != nil {
				return err
			}
		}
		if _, err := s.Ledger.Credit(ctx, tx, ledger.Entry{
			UserID:      work.WorkerID,
			Balance:     models.BalanceEarning,
			Amount:      work.PaymentAmount,
			Type:        models.TxEarning,
			Description: "Earned from job: " + job.Title,
			Reference:   "earning:work:" + work.ID.String(),
			JobID:       &job.ID,
			WorkID:      &work.ID,
		}); err != nil {
			return err
		}
		delta := models.StatsDelta{Earned: work.PaymentAmount, CompletedJobs: 1}
		if work.Origin == models.OriginAssigned {
			delta.ActiveJobs = -1
		}
		if err := s.Users.ApplyStats(ctx, tx, work.WorkerID, delta); err != nil {
			return err
		}
		skipped, err := dbtx.BestEffort(ctx, tx, func(sp pgx.Tx) error {
			return s.Commissions.EnqueueCommissionTx(ctx, sp, execution.CommissionArgs{
				UserID:    work.WorkerID,
				Source:    models.SourceTask,
				Amount:    work.PaymentAmount,
				SourceRef: "work:" + work.ID.String(),
			})
		})
		if skipped != nil {
			s.Logger.WarnContext(ctx, "commission not enqueued", "work_id", work.ID, "error", skipped)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("work approved", "work_id", work.ID, "worker_id", work.WorkerID, "amount", work.PaymentAmount.String())
	amount := work.PaymentAmount
	s.Notifier.Notify(ctx, &models.Notification{
		UserID: work.WorkerID, Type: models.NotifyWorkApproved, Title: "Work Approved",
		Message: fmt.Sprintf("Your work for %s was approved. You earned $%s", job.Title, amount.StringFixed(2)),
		Link:    "/works/" + work.ID.String(), JobID: &job.ID, WorkID: &work.ID,
	})
	s.Notifier.Record(ctx, &models.Activity{
		UserID: work.WorkerID, Type: models.ActivityWorkApproved, JobID: &job.ID, WorkID: &work.ID,
		Message: "Completed job: " + job.Title, Amount: &amount, IsPublic: true,
	})
	return work, nil
}

// Reject refuses a submission. Only the job's employer may reject. The job
// reopens when this worker held its assignment. No money moves.
func (s *service) Reject(ctx context.Context, actor models.Actor, workID uuid.UUID, feedback string) (*models.Work, error) {
	var job *models.Job
	var work *models.Work
	err := dbtx.Run(ctx, s.DB, func(tx pgx.Tx) error {
		current, err := s.Works.GetByIDForUpdate(ctx, tx, workID)
		if err != nil {
			return err
		}
		if job, err = s.Jobs.GetByIDForUpdate(ctx, tx, current.JobID); err != nil {
			return err
		}
		if job.EmployerID != actor.ID {
			return models.ErrUnauthorized
		}
		if err := checkTransition(current, models.WorkRejected); err != nil {
			return err
		}
		work, err = s.Works.Transition(ctx, tx, workID, models.WorkSubmitted, models.WorkRejected, models.WorkUpdate{
			EmployerFeedback: &feedback,
		})
		if err != nil {
			return err
		}
		if job.Status == models.JobInProgress && job.AssignedTo != nil && *job.AssignedTo == work.WorkerID {
			if err := s.Jobs.SetAssignment(ctx, tx, job.ID, models.JobOpen, nil); err != nil {
				return err
			}
		}
		if work.Origin == models.OriginAssigned {
			return s.Users.ApplyStats(ctx, tx, work.WorkerID, models.StatsDelta{ActiveJobs: -1})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	msg := "Your work for " + job.Title + " was rejected"
	if feedback != "" {
		msg += ": " + feedback
	}
	s.Notifier.Notify(ctx, &models.Notification{
		UserID: work.WorkerID, Type: models.NotifyWorkRejected, Title: "Work Rejected",
		Message: msg, Link: "/works/" + work.ID.String(), JobID: &job.ID, WorkID: &work.ID,
	})
	return work, nil
}

// checkTransition reports a repeat of a finished step as already processed
// and any other illegal move as an invalid state.
func checkTransition(w *models.Work, to models.WorkStatus) error {
	if CanTransition(w.Status, to) {
		return nil
	}
	if w.Status == to {
		metrics.SettlementConflicts.WithLabelValues("work_" + string(to)).Inc()
		return fmt.Errorf("work %s already %s: %w", w.ID, to, models.ErrAlreadyProcessed)
	}
	return fmt.Errorf("work %s is %s, cannot become %s: %w", w.ID, w.Status, to, models.ErrInvalidState)
}

// GetWork is visible to its worker, the job's employer and admins.
func (s *service) GetWork(ctx context.Context, actor models.Actor, workID uuid.UUID) (*models.Work, error) {
	w, err := s.Works.GetByID(ctx, workID)
	if err != nil {
		return nil, err
	}
	if w.WorkerID != actor.ID && w.EmployerID != actor.ID && !actor.IsAdmin() {
		return nil, models.ErrUnauthorized
	}
	return w, nil
}

func (s *service) ListByWorker(ctx context.Context, workerID uuid.UUID) ([]*models.Work, error) {
	return s.Works.ListByWorker(ctx, workerID)
}

func (s *service) ListByEmployer(ctx context.Context, employerID uuid.UUID) ([]*models.Work, error) {
	return s.Works.ListByEmployer(ctx, employerID)
}

// ListByJob lists a job's submissions for its employer or an admin.
func (s *service) ListByJob(ctx context.Context, actor models.Actor, jobID uuid.UUID) ([]*models.Work, error) {
	job, err := s.Jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.EmployerID != actor.ID && !actor.IsAdmin() {
		return nil, models.ErrUnauthorized
	}
	return s.Works.ListByJob(ctx, jobID)
}
