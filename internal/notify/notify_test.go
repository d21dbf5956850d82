package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/earnhub/backend/internal/models"
	"github.com/earnhub/backend/internal/realtime"
	"github.com/earnhub/backend/internal/storetest"
)

type failingFeed struct{}

func (failingFeed) CreateNotification(context.Context, *models.Notification) error {
	return errors.New("db down")
}
func (failingFeed) CreateActivity(context.Context, *models.Activity) error { return errors.New("db down") }

type recordingPusher struct {
	users  []uuid.UUID
	admins []realtime.Message
	err    error
}

func (p *recordingPusher) Push(_ context.Context, userID uuid.UUID, _ realtime.Message) error {
	p.users = append(p.users, userID)
	return p.err
}

func (p *recordingPusher) PushAdmins(_ context.Context, msg realtime.Message) error {
	p.admins = append(p.admins, msg)
	return p.err
}

func TestNotifyStoresThenPushes(t *testing.T) {
	st := storetest.New()
	push := &recordingPusher{}
	d := NewDispatcher(st.Feed, push, nil)
	u := uuid.New()

	d.Notify(context.Background(), &models.Notification{UserID: u, Type: models.NotifyPayment, Title: "Paid"})

	if got := st.Notifications(u); len(got) != 1 || got[0].ID == uuid.Nil {
		t.Fatalf("stored = %+v", got)
	}
	if len(push.users) != 1 || push.users[0] != u {
		t.Errorf("pushed to %v", push.users)
	}
}

func TestNotifySwallowsFailures(t *testing.T) {
	push := &recordingPusher{}
	d := NewDispatcher(failingFeed{}, push, nil)
	d.Notify(context.Background(), &models.Notification{UserID: uuid.New()})
	d.Record(context.Background(), &models.Activity{UserID: uuid.New()})
	if len(push.users) != 0 {
		t.Error("unstored notification should not be pushed")
	}

	st := storetest.New()
	d = NewDispatcher(st.Feed, &recordingPusher{err: errors.New("offline")}, nil)
	d.Notify(context.Background(), &models.Notification{UserID: uuid.New()}) // logs only
}

func TestRecordActivity(t *testing.T) {
	st := storetest.New()
	d := NewDispatcher(st.Feed, nil, nil)
	d.Record(context.Background(), &models.Activity{UserID: uuid.New(), Type: models.ActivityJobPosted, IsPublic: true})
	if got := st.Activities(); len(got) != 1 || got[0].Type != models.ActivityJobPosted {
		t.Errorf("activities = %+v", got)
	}
}

func TestBroadcastStatsReachesAdmins(t *testing.T) {
	st := storetest.New()
	st.AddUser(models.User{})
	push := &recordingPusher{}
	b := NewStatsBroadcaster(st.Stats, push)

	if err := b.BroadcastStats(context.Background()); err != nil {
		t.Fatalf("BroadcastStats: %v", err)
	}
	if len(push.admins) != 1 || push.admins[0].Type != realtime.TypeAdminStats {
		t.Fatalf("admin pushes = %+v", push.admins)
	}
	if stats := push.admins[0].Data.(*models.AdminStats); stats.TotalUsers != 1 {
		t.Errorf("total users = %d", stats.TotalUsers)
	}
}
