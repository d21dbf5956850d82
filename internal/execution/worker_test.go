package execution

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/shopspring/decimal"

	"github.com/earnhub/backend/internal/events"
	"github.com/earnhub/backend/internal/models"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type stubProcessor struct {
	txn   *models.Transaction
	err   error
	calls int
}

func (s *stubProcessor) Process(context.Context, uuid.UUID, models.CommissionSource, decimal.Decimal, string) (*models.Transaction, error) {
	s.calls++
	return s.txn, s.err
}

type recordingInserter struct {
	inserted []river.JobArgs
	txs      []pgx.Tx
	err      error
}

func (r *recordingInserter) Insert(_ context.Context, args river.JobArgs, _ *river.InsertOpts) (*rivertype.JobInsertResult, error) {
	r.inserted = append(r.inserted, args)
	return &rivertype.JobInsertResult{}, r.err
}

func (r *recordingInserter) InsertTx(_ context.Context, tx pgx.Tx, args river.JobArgs, _ *river.InsertOpts) (*rivertype.JobInsertResult, error) {
	r.inserted = append(r.inserted, args)
	r.txs = append(r.txs, tx)
	return &rivertype.JobInsertResult{}, r.err
}

type stubPublisher struct {
	got []events.LedgerEvent
	err error
}

func (s *stubPublisher) Publish(_ context.Context, ev events.LedgerEvent) error {
	s.got = append(s.got, ev)
	return s.err
}

type stubBroadcaster struct{ err error }

func (s stubBroadcaster) BroadcastStats(context.Context) error { return s.err }

func commissionJob() *river.Job[CommissionArgs] {
	return &river.Job[CommissionArgs]{Args: CommissionArgs{
		UserID:    uuid.New(),
		Source:    models.SourceTask,
		Amount:    decimal.RequireFromString("0.05"),
		SourceRef: "work:1",
	}}
}

// ---------------------------------------------------------------------------
// CommissionWorker
// ---------------------------------------------------------------------------

func TestCommissionWorkerSwallowsDomainErrors(t *testing.T) {
	cases := []error{
		fmt.Errorf("dup: %w", models.ErrAlreadyProcessed),
		fmt.Errorf("gone: %w", models.ErrNotFound),
	}
	for _, domainErr := range cases {
		p := &stubProcessor{err: domainErr}
		w := NewCommissionWorker(p, nil)
		if err := w.Work(context.Background(), commissionJob()); err != nil {
			t.Errorf("Work(%v) = %v, want nil", domainErr, err)
		}
	}
}

func TestCommissionWorkerRetriesInfrastructureErrors(t *testing.T) {
	boom := errors.New("connection reset")
	w := NewCommissionWorker(&stubProcessor{err: boom}, nil)
	if err := w.Work(context.Background(), commissionJob()); !errors.Is(err, boom) {
		t.Errorf("Work = %v, want wrapped %v", err, boom)
	}
}

func TestCommissionWorkerNoReferrer(t *testing.T) {
	p := &stubProcessor{}
	w := NewCommissionWorker(p, nil)
	if err := w.Work(context.Background(), commissionJob()); err != nil {
		t.Fatalf("Work: %v", err)
	}
	if p.calls != 1 {
		t.Errorf("processor calls = %d, want 1", p.calls)
	}
}

// ---------------------------------------------------------------------------
// Ledger events and stats
// ---------------------------------------------------------------------------

func TestLedgerEventWorkerPublishes(t *testing.T) {
	pub := &stubPublisher{}
	w := NewLedgerEventWorker(pub)
	ev := events.LedgerEvent{Reference: "ref-1"}
	if err := w.Work(context.Background(), &river.Job[LedgerEventArgs]{Args: LedgerEventArgs{Event: ev}}); err != nil {
		t.Fatalf("Work: %v", err)
	}
	if len(pub.got) != 1 || pub.got[0].Reference != "ref-1" {
		t.Errorf("published = %+v", pub.got)
	}
}

func TestBroadcastStatsWorkerNeverFails(t *testing.T) {
	w := NewBroadcastStatsWorker(stubBroadcaster{err: errors.New("db down")}, nil)
	if err := w.Work(context.Background(), &river.Job[BroadcastStatsArgs]{}); err != nil {
		t.Errorf("Work = %v, want nil", err)
	}
}

func TestBroadcastStatsArgsAreUniquePerWindow(t *testing.T) {
	opts := BroadcastStatsArgs{}.InsertOpts()
	if opts.UniqueOpts.ByPeriod <= 0 {
		t.Error("stats broadcasts should be unique by period")
	}
}

// ---------------------------------------------------------------------------
// Queue
// ---------------------------------------------------------------------------

func TestQueueBeforeClientIsWired(t *testing.T) {
	q := NewQueue(nil)
	err := q.EnqueueCommissionTx(context.Background(), nil, CommissionArgs{})
	if !errors.Is(err, errQueueNotWired) {
		t.Errorf("err = %v, want errQueueNotWired", err)
	}
	q.TriggerStats(context.Background()) // logs only
}

func TestQueueInsertsInCallerTx(t *testing.T) {
	ins := &recordingInserter{}
	q := NewQueue(nil)
	q.SetClient(ins)

	args := CommissionArgs{UserID: uuid.New(), Source: models.SourceDeposit, SourceRef: "txn:1"}
	if err := q.EnqueueCommissionTx(context.Background(), nil, args); err != nil {
		t.Fatalf("EnqueueCommissionTx: %v", err)
	}
	if err := q.EnqueueLedgerEventTx(context.Background(), nil, events.LedgerEvent{Reference: "r"}); err != nil {
		t.Fatalf("EnqueueLedgerEventTx: %v", err)
	}
	q.TriggerStats(context.Background())

	if len(ins.inserted) != 3 {
		t.Fatalf("inserted = %d, want 3", len(ins.inserted))
	}
	if len(ins.txs) != 2 {
		t.Errorf("tx inserts = %d, want 2", len(ins.txs))
	}
	if got := ins.inserted[0].(CommissionArgs); got.SourceRef != "txn:1" {
		t.Errorf("first job = %+v", got)
	}
	if _, ok := ins.inserted[2].(BroadcastStatsArgs); !ok {
		t.Errorf("third job kind = %s, want stats", ins.inserted[2].Kind())
	}
}
