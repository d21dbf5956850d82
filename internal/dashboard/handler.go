// Package dashboard serves the read-side endpoints: notifications, the
// activity feed, the admin stats snapshot and presence.
package dashboard

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/earnhub/backend/internal/handlers"
	"github.com/earnhub/backend/internal/middleware"
	"github.com/earnhub/backend/internal/models"
)

// FeedReader reads notifications and activity. *repository.FeedRepo
// satisfies it.
type FeedReader interface {
	ListNotifications(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]*models.Notification, error)
	MarkNotificationRead(ctx context.Context, userID uuid.UUID, id *uuid.UUID) error
	ListActivities(ctx context.Context, userID *uuid.UUID, limit int) ([]*models.Activity, error)
}

type StatsSource interface {
	AdminStats(ctx context.Context, days int) (*models.AdminStats, error)
}

// Presence reports live connections. *realtime.Hub satisfies it.
type Presence interface {
	OnlineUsers() []uuid.UUID
}

type Handler struct {
	feed     FeedReader
	stats    StatsSource
	presence Presence
	log      *slog.Logger
}

func NewHandler(feed FeedReader, stats StatsSource, presence Presence, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{feed: feed, stats: stats, presence: presence, log: log}
}

// GET /api/v1/notifications?unread=true
func (h *Handler) Notifications(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromCtx(r.Context())
	limit, _ := handlers.Page(r)
	unread, _ := strconv.ParseBool(r.URL.Query().Get("unread"))
	list, err := h.feed.ListNotifications(r.Context(), actor.ID, unread, limit)
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	if list == nil {
		list = []*models.Notification{}
	}
	handlers.WriteJSON(w, http.StatusOK, list)
}

// PUT /api/v1/notifications/{id}/read
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromCtx(r.Context())
	id, err := handlers.PathID(r, "id")
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	if err := h.feed.MarkNotificationRead(r.Context(), actor.ID, &id); err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PUT /api/v1/notifications/read-all
func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromCtx(r.Context())
	if err := h.feed.MarkNotificationRead(r.Context(), actor.ID, nil); err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/activities?scope=public
func (h *Handler) Activities(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromCtx(r.Context())
	limit, _ := handlers.Page(r)
	var userID *uuid.UUID
	if r.URL.Query().Get("scope") != "public" {
		userID = &actor.ID
	}
	list, err := h.feed.ListActivities(r.Context(), userID, limit)
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	if list == nil {
		list = []*models.Activity{}
	}
	handlers.WriteJSON(w, http.StatusOK, list)
}

// GET /api/v1/admin/stats?days=7
func (h *Handler) AdminStats(w http.ResponseWriter, r *http.Request) {
	days, err := strconv.Atoi(r.URL.Query().Get("days"))
	if err != nil || days <= 0 || days > 90 {
		days = 7
	}
	st, err := h.stats.AdminStats(r.Context(), days)
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, st)
}

// GET /api/v1/admin/online
func (h *Handler) Online(w http.ResponseWriter, _ *http.Request) {
	ids := h.presence.OnlineUsers()
	if ids == nil {
		ids = []uuid.UUID{}
	}
	handlers.WriteJSON(w, http.StatusOK, map[string]any{"count": len(ids), "users": ids})
}
