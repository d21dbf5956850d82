package execution

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"github.com/earnhub/backend/internal/events"
)

var errQueueNotWired = errors.New("job queue not wired")

// Inserter is the subset of *river.Client[pgx.Tx] the queue needs.
type Inserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
	InsertTx(ctx context.Context, tx pgx.Tx, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// Queue enqueues background jobs. The river client is attached after
// construction because the workers it runs depend on services that depend
// on the queue.
type Queue struct {
	mu     sync.RWMutex
	client Inserter
	log    *slog.Logger
}

func NewQueue(log *slog.Logger) *Queue {
	if log == nil {
		log = slog.Default()
	}
	return &Queue{log: log}
}

// SetClient attaches the river client.
func (q *Queue) SetClient(c Inserter) {
	q.mu.Lock()
	q.client = c
	q.mu.Unlock()
}

func (q *Queue) inserter() (Inserter, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.client == nil {
		return nil, errQueueNotWired
	}
	return q.client, nil
}

// EnqueueCommissionTx schedules a referral payout in the caller's
// transaction, so it exists only if the triggering movement commits.
func (q *Queue) EnqueueCommissionTx(ctx context.Context, tx pgx.Tx, args CommissionArgs) error {
	c, err := q.inserter()
	if err != nil {
		return err
	}
	_, err = c.InsertTx(ctx, tx, args, nil)
	return err
}

// EnqueueLedgerEventTx schedules publication of a ledger row in the
// caller's transaction.
func (q *Queue) EnqueueLedgerEventTx(ctx context.Context, tx pgx.Tx, ev events.LedgerEvent) error {
	c, err := q.inserter()
	if err != nil {
		return err
	}
	_, err = c.InsertTx(ctx, tx, LedgerEventArgs{Event: ev}, nil)
	return err
}

// TriggerStats requests an admin stats broadcast. Failures are logged only.
func (q *Queue) TriggerStats(ctx context.Context) {
	c, err := q.inserter()
	if err == nil {
		_, err = c.Insert(ctx, BroadcastStatsArgs{}, nil)
	}
	if err != nil {
		q.log.Warn("stats broadcast not scheduled", "error", err)
	}
}
