package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// JobStatus is the marketplace lifecycle of a job.
type JobStatus string

const (
	JobPendingApproval JobStatus = "pending-approval"
	JobOpen            JobStatus = "open"
	JobInProgress      JobStatus = "in-progress"
	JobCompleted       JobStatus = "completed"
	JobCancelled       JobStatus = "cancelled"
)

// AdminStatus is the moderation state of a job.
type AdminStatus string

const (
	AdminPending  AdminStatus = "pending"
	AdminApproved AdminStatus = "approved"
	AdminRejected AdminStatus = "rejected"
)

// Job is a paid micro-task. Budget is escrowed from the employer's deposit
// balance when the job is posted.
type Job struct {
	ID                  uuid.UUID       `json:"id"`
	EmployerID          uuid.UUID       `json:"employer_id"`
	Title               string          `json:"title"`
	Description         string          `json:"description"`
	Category            string          `json:"category"`
	WorkerNeed          int             `json:"worker_need"`
	WorkerEarn          decimal.Decimal `json:"worker_earn"`
	Budget              decimal.Decimal `json:"budget"`
	CurrentParticipants int             `json:"current_participants"`
	Status              JobStatus       `json:"status"`
	AdminStatus         AdminStatus     `json:"admin_status"`
	AdminRemark         string          `json:"admin_remark,omitempty"`
	AssignedTo          *uuid.UUID      `json:"assigned_to,omitempty"`
	DeleteRequested     bool            `json:"delete_requested"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// OpenSlots is the number of worker payouts the job can still make.
func (j *Job) OpenSlots() int {
	if n := j.WorkerNeed - j.CurrentParticipants; n > 0 {
		return n
	}
	return 0
}

// Reserved is the part of the escrowed budget not yet paid out.
func (j *Job) Reserved() decimal.Decimal {
	return j.WorkerEarn.Mul(decimal.NewFromInt(int64(j.OpenSlots())))
}

// AcceptsWork reports whether workers may start on the job.
func (j *Job) AcceptsWork() bool {
	return j.AdminStatus == AdminApproved && (j.Status == JobOpen || j.Status == JobInProgress) && j.OpenSlots() > 0
}

// JobFilter narrows job listings. Zero fields are ignored.
type JobFilter struct {
	EmployerID      *uuid.UUID
	Status          JobStatus
	AdminStatus     AdminStatus
	Category        string
	DeleteRequested *bool
	Limit           int
	Offset          int
}
