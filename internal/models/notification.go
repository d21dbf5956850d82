package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Notification types.
const (
	NotifyJobAssigned   = "job_assigned"
	NotifyJobCompleted  = "job_completed"
	NotifyPayment       = "payment"
	NotifyMessage       = "message"
	NotifySystem        = "system"
	NotifyWorkSubmitted = "work_submitted"
	NotifyWorkApproved  = "work_approved"
	NotifyWorkRejected  = "work_rejected"
	NotifyReferral      = "referral"
)

type Notification struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Link      string     `json:"link,omitempty"`
	JobID     *uuid.UUID `json:"job_id,omitempty"`
	WorkID    *uuid.UUID `json:"work_id,omitempty"`
	IsRead    bool       `json:"is_read"`
	CreatedAt time.Time  `json:"created_at"`
}

// Activity types.
const (
	ActivityJobApplied      = "job_applied"
	ActivityJobCompleted    = "job_completed"
	ActivityWorkSubmitted   = "work_submitted"
	ActivityWorkApproved    = "work_approved"
	ActivityPaymentReceived = "payment_received"
	ActivityJobPosted       = "job_posted"
	ActivityJobAssigned     = "job_assigned"
)

// Activity is a feed entry. Public entries appear on the global feed.
type Activity struct {
	ID        uuid.UUID        `json:"id"`
	UserID    uuid.UUID        `json:"user_id"`
	Type      string           `json:"type"`
	JobID     *uuid.UUID       `json:"job_id,omitempty"`
	WorkID    *uuid.UUID       `json:"work_id,omitempty"`
	Message   string           `json:"message"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
	IsPublic  bool             `json:"is_public"`
	CreatedAt time.Time        `json:"created_at"`
}

// AdminStats is the dashboard snapshot pushed to connected admins.
type AdminStats struct {
	TotalUsers      int             `json:"total_users"`
	ActiveJobs      int             `json:"active_jobs"`
	PendingJobs     int             `json:"pending_jobs"`
	PendingWorks    int             `json:"pending_works"`
	PendingPayouts  int             `json:"pending_withdrawals"`
	CompletedVolume decimal.Decimal `json:"completed_volume"`
	Daily           []DailyVolume   `json:"daily"`
}

type DailyVolume struct {
	Day    time.Time       `json:"day"`
	Amount decimal.Decimal `json:"amount"`
	Count  int             `json:"count"`
}
