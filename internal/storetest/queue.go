package storetest

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/earnhub/backend/internal/events"
	"github.com/earnhub/backend/internal/execution"
	"github.com/earnhub/backend/internal/models"
)

// Queue records enqueued jobs in store state, so jobs enqueued by a rolled
// back transaction disappear with it.
type Queue struct {
	s *Store

	// StatsTriggers counts TriggerStats calls.
	StatsTriggers int
	// Err fails every transactional enqueue.
	Err error
}

func (q *Queue) EnqueueCommissionTx(_ context.Context, _ pgx.Tx, args execution.CommissionArgs) error {
	if q.Err != nil {
		return q.Err
	}
	defer q.s.lock()()
	q.s.st.commissions = append(q.s.st.commissions, args)
	return nil
}

func (q *Queue) EnqueueLedgerEventTx(_ context.Context, _ pgx.Tx, ev events.LedgerEvent) error {
	if q.Err != nil {
		return q.Err
	}
	defer q.s.lock()()
	q.s.st.ledgerEvents = append(q.s.st.ledgerEvents, ev)
	return nil
}

func (q *Queue) TriggerStats(context.Context) {
	defer q.s.lock()()
	q.StatsTriggers++
}

// Commissions returns the committed commission jobs.
func (s *Store) Commissions() []execution.CommissionArgs {
	defer s.lock()()
	return append([]execution.CommissionArgs(nil), s.st.commissions...)
}

// LedgerEvents returns the committed ledger events.
func (s *Store) LedgerEvents() []events.LedgerEvent {
	defer s.lock()()
	return append([]events.LedgerEvent(nil), s.st.ledgerEvents...)
}

// Notifier writes notifications and activities straight into the store.
type Notifier struct{ s *Store }

// Notifier returns a notifier backed by the store.
func (s *Store) Notifier() *Notifier { return &Notifier{s: s} }

func (n *Notifier) Notify(ctx context.Context, note *models.Notification) {
	_ = n.s.Feed.CreateNotification(ctx, note)
}

func (n *Notifier) Record(ctx context.Context, a *models.Activity) {
	_ = n.s.Feed.CreateActivity(ctx, a)
}
