package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/earnhub/backend/internal/models"
)

// FeedRepo stores notifications and activity feed entries.
type FeedRepo struct {
	pool *pgxpool.Pool
}

func NewFeedRepo(pool *pgxpool.Pool) *FeedRepo {
	return &FeedRepo{pool: pool}
}

func (r *FeedRepo) CreateNotification(ctx context.Context, n *models.Notification) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO notifications (id, user_id, type, title, message, link, job_id, work_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, n.ID, n.UserID, n.Type, n.Title, n.Message, n.Link, n.JobID, n.WorkID).Scan(&n.CreatedAt)
}

func (r *FeedRepo) ListNotifications(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]*models.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, type, title, message, link, job_id, work_id, is_read, created_at
		FROM notifications WHERE user_id = $1 AND (NOT $2 OR NOT is_read)
		ORDER BY created_at DESC LIMIT $3
	`, userID, unreadOnly, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.Link, &n.JobID, &n.WorkID, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &n)
	}
	return list, rows.Err()
}

// MarkNotificationRead marks one of the user's notifications read. A nil id
// marks all of them.
func (r *FeedRepo) MarkNotificationRead(ctx context.Context, userID uuid.UUID, id *uuid.UUID) error {
	if id == nil {
		_, err := r.pool.Exec(ctx, `UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND NOT is_read`, userID)
		return err
	}
	tag, err := r.pool.Exec(ctx, `UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`, *id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("notification %s: %w", *id, models.ErrNotFound)
	}
	return nil
}

func (r *FeedRepo) CreateActivity(ctx context.Context, a *models.Activity) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO activities (id, user_id, type, job_id, work_id, message, amount, is_public)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, a.ID, a.UserID, a.Type, a.JobID, a.WorkID, a.Message, a.Amount, a.IsPublic).Scan(&a.CreatedAt)
}

// ListActivities returns the user's feed, or the public feed when userID is nil.
func (r *FeedRepo) ListActivities(ctx context.Context, userID *uuid.UUID, limit int) ([]*models.Activity, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, type, job_id, work_id, message, amount, is_public, created_at
		FROM activities WHERE ($1::uuid IS NULL AND is_public) OR user_id = $1
		ORDER BY created_at DESC LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Activity
	for rows.Next() {
		var a models.Activity
		if err := rows.Scan(&a.ID, &a.UserID, &a.Type, &a.JobID, &a.WorkID, &a.Message, &a.Amount, &a.IsPublic, &a.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &a)
	}
	return list, rows.Err()
}
