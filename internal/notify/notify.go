// Package notify records user notifications and activity and pushes them to
// live connections. Every method is best-effort: failures are logged and
// never reach the settlement flow that triggered them.
package notify

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/earnhub/backend/internal/models"
	"github.com/earnhub/backend/internal/realtime"
)

// FeedStore persists notifications and activity entries.
type FeedStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	CreateActivity(ctx context.Context, a *models.Activity) error
}

// StatsSource computes the admin dashboard snapshot.
type StatsSource interface {
	AdminStats(ctx context.Context, days int) (*models.AdminStats, error)
}

type Dispatcher struct {
	feed FeedStore
	push realtime.Pusher
	log  *slog.Logger
}

func NewDispatcher(feed FeedStore, push realtime.Pusher, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{feed: feed, push: push, log: log}
}

// Notify stores n and pushes it to the recipient.
func (d *Dispatcher) Notify(ctx context.Context, n *models.Notification) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if err := d.feed.CreateNotification(ctx, n); err != nil {
		d.log.Warn("notification not stored", "user_id", n.UserID, "type", n.Type, "error", err)
		return
	}
	if d.push == nil {
		return
	}
	if err := d.push.Push(ctx, n.UserID, realtime.Message{Type: realtime.TypeNotification, Data: n}); err != nil {
		d.log.Warn("notification not pushed", "user_id", n.UserID, "type", n.Type, "error", err)
	}
}

// Record appends an activity feed entry.
func (d *Dispatcher) Record(ctx context.Context, a *models.Activity) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if err := d.feed.CreateActivity(ctx, a); err != nil {
		d.log.Warn("activity not stored", "user_id", a.UserID, "type", a.Type, "error", err)
	}
}

// StatsBroadcaster pushes the admin dashboard snapshot to connected admins.
type StatsBroadcaster struct {
	stats StatsSource
	push  realtime.Pusher
	days  int
}

func NewStatsBroadcaster(stats StatsSource, push realtime.Pusher) *StatsBroadcaster {
	return &StatsBroadcaster{stats: stats, push: push, days: 7}
}

func (b *StatsBroadcaster) BroadcastStats(ctx context.Context) error {
	st, err := b.stats.AdminStats(ctx, b.days)
	if err != nil {
		return err
	}
	return b.push.PushAdmins(ctx, realtime.Message{Type: realtime.TypeAdminStats, Data: st})
}
