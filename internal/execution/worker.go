package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/shopspring/decimal"

	"github.com/earnhub/backend/internal/events"
	"github.com/earnhub/backend/internal/models"
)

// CommissionArgs asks for the referral commission on one deposit or
// approved task. SourceRef identifies the triggering ledger row and makes
// the payout idempotent.
type CommissionArgs struct {
	UserID    uuid.UUID               `json:"user_id"`
	Source    models.CommissionSource `json:"source"`
	Amount    decimal.Decimal         `json:"amount"`
	SourceRef string                  `json:"source_ref"`
}

func (CommissionArgs) Kind() string { return "referral_commission" }

func (CommissionArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: 5}
}

// CommissionProcessor pays referral commissions.
type CommissionProcessor interface {
	Process(ctx context.Context, userID uuid.UUID, source models.CommissionSource, amount decimal.Decimal, sourceRef string) (*models.Transaction, error)
}

// CommissionWorker runs the referral cascade after the triggering
// transaction has committed. Domain failures are logged and dropped so a
// bad referral never blocks the queue; infrastructure errors are retried.
type CommissionWorker struct {
	river.WorkerDefaults[CommissionArgs]
	processor CommissionProcessor
	log       *slog.Logger
}

func NewCommissionWorker(p CommissionProcessor, log *slog.Logger) *CommissionWorker {
	if log == nil {
		log = slog.Default()
	}
	return &CommissionWorker{processor: p, log: log}
}

func (w *CommissionWorker) Work(ctx context.Context, job *river.Job[CommissionArgs]) error {
	args := job.Args
	txn, err := w.processor.Process(ctx, args.UserID, args.Source, args.Amount, args.SourceRef)
	switch {
	case err == nil && txn == nil:
		return nil
	case err == nil:
		w.log.Info("referral commission paid", "referrer_id", txn.UserID, "amount", txn.Amount.String(), "source_ref", args.SourceRef)
		return nil
	case isDomainError(err):
		w.log.Warn("referral commission skipped", "user_id", args.UserID, "source_ref", args.SourceRef, "error", err)
		return nil
	default:
		w.log.Error("referral commission failed", "user_id", args.UserID, "source_ref", args.SourceRef, "error", err)
		return fmt.Errorf("referral commission %s: %w", args.SourceRef, err)
	}
}

func isDomainError(err error) bool {
	for _, target := range []error{
		models.ErrAlreadyProcessed, models.ErrNotFound, models.ErrInvalidAmount,
		models.ErrInvalidState, models.ErrInsufficientBalance,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// LedgerEventArgs carries one committed ledger row to the event stream.
type LedgerEventArgs struct {
	Event events.LedgerEvent `json:"event"`
}

func (LedgerEventArgs) Kind() string { return "ledger_event" }

type LedgerEventWorker struct {
	river.WorkerDefaults[LedgerEventArgs]
	publisher events.Publisher
}

func NewLedgerEventWorker(p events.Publisher) *LedgerEventWorker {
	return &LedgerEventWorker{publisher: p}
}

func (w *LedgerEventWorker) Work(ctx context.Context, job *river.Job[LedgerEventArgs]) error {
	return w.publisher.Publish(ctx, job.Args.Event)
}

// BroadcastStatsArgs requests an admin dashboard refresh. Requests within
// the same five second window collapse into one job.
type BroadcastStatsArgs struct{}

func (BroadcastStatsArgs) Kind() string { return "broadcast_admin_stats" }

func (BroadcastStatsArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		MaxAttempts: 1,
		UniqueOpts:  river.UniqueOpts{ByPeriod: 5 * time.Second},
	}
}

// StatsBroadcaster pushes admin stats to connected admins.
type StatsBroadcaster interface {
	BroadcastStats(ctx context.Context) error
}

type BroadcastStatsWorker struct {
	river.WorkerDefaults[BroadcastStatsArgs]
	broadcaster StatsBroadcaster
	log         *slog.Logger
}

func NewBroadcastStatsWorker(b StatsBroadcaster, log *slog.Logger) *BroadcastStatsWorker {
	if log == nil {
		log = slog.Default()
	}
	return &BroadcastStatsWorker{broadcaster: b, log: log}
}

func (w *BroadcastStatsWorker) Work(ctx context.Context, _ *river.Job[BroadcastStatsArgs]) error {
	if err := w.broadcaster.BroadcastStats(ctx); err != nil {
		w.log.Warn("admin stats broadcast failed", "error", err)
	}
	return nil
}
