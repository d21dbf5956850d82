package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/earnhub/backend/internal/models"
)

type StatsRepo struct {
	pool *pgxpool.Pool
}

func NewStatsRepo(pool *pgxpool.Pool) *StatsRepo {
	return &StatsRepo{pool: pool}
}

// AdminStats computes the dashboard snapshot, including completed volume
// per day over the last days days.
func (r *StatsRepo) AdminStats(ctx context.Context, days int) (*models.AdminStats, error) {
	var s models.AdminStats
	err := r.pool.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM users),
			(SELECT count(*) FROM jobs WHERE status IN ('open', 'in-progress')),
			(SELECT count(*) FROM jobs WHERE admin_status = 'pending'),
			(SELECT count(*) FROM works WHERE status = 'submitted'),
			(SELECT count(*) FROM transactions WHERE type = 'withdrawal' AND status = 'pending'),
			(SELECT COALESCE(sum(amount), 0) FROM transactions WHERE status = 'completed')
	`).Scan(&s.TotalUsers, &s.ActiveJobs, &s.PendingJobs, &s.PendingWorks, &s.PendingPayouts, &s.CompletedVolume)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT date_trunc('day', created_at) AS day, sum(amount), count(*)
		FROM transactions
		WHERE status = 'completed' AND created_at >= now() - make_interval(days => $1)
		GROUP BY day ORDER BY day
	`, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var d models.DailyVolume
		if err := rows.Scan(&d.Day, &d.Amount, &d.Count); err != nil {
			return nil, err
		}
		s.Daily = append(s.Daily, d)
	}
	return &s, rows.Err()
}
