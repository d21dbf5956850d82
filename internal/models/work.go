package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WorkStatus is the state of a worker's engagement on a job.
type WorkStatus string

const (
	WorkPending   WorkStatus = "pending"
	WorkSubmitted WorkStatus = "submitted"
	WorkApproved  WorkStatus = "approved"
	WorkRejected  WorkStatus = "rejected"
)

// WorkOrigin records how a work record entered the state machine.
type WorkOrigin string

const (
	// OriginDirect works are created by the worker submitting proof directly.
	OriginDirect WorkOrigin = "direct"
	// OriginAssigned works are created by the employer assigning the job.
	OriginAssigned WorkOrigin = "assigned"
)

// Payment status values of a work.
const (
	PaymentPending  = "pending"
	PaymentPaid     = "paid"
	PaymentRefunded = "refunded"
)

type Work struct {
	ID                uuid.UUID       `json:"id"`
	JobID             uuid.UUID       `json:"job_id"`
	WorkerID          uuid.UUID       `json:"worker_id"`
	EmployerID        uuid.UUID       `json:"employer_id"`
	Origin            WorkOrigin      `json:"origin"`
	Status            WorkStatus      `json:"status"`
	SubmissionProof   string          `json:"submission_proof,omitempty"`
	SubmissionMessage string          `json:"submission_message,omitempty"`
	SubmissionFiles   []string        `json:"submission_files,omitempty"`
	SubmittedAt       *time.Time      `json:"submitted_at,omitempty"`
	PaymentAmount     decimal.Decimal `json:"payment_amount"`
	PaymentStatus     string          `json:"payment_status"`
	Rating            *int            `json:"rating,omitempty"`
	EmployerFeedback  string          `json:"employer_feedback,omitempty"`
	PaidAt            *time.Time      `json:"paid_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// WorkUpdate carries the fields written alongside a status transition.
// Nil fields are left unchanged.
type WorkUpdate struct {
	SubmissionProof   *string
	SubmissionMessage *string
	SubmissionFiles   []string
	SubmittedAt       *time.Time
	PaymentStatus     *string
	Rating            *int
	EmployerFeedback  *string
	PaidAt            *time.Time
}

// Apply copies the set fields of u onto w.
func (u WorkUpdate) Apply(w *Work) {
	if u.SubmissionProof != nil {
		w.SubmissionProof = *u.SubmissionProof
	}
	if u.SubmissionMessage != nil {
		w.SubmissionMessage = *u.SubmissionMessage
	}
	if u.SubmissionFiles != nil {
		w.SubmissionFiles = u.SubmissionFiles
	}
	if u.SubmittedAt != nil {
		w.SubmittedAt = u.SubmittedAt
	}
	if u.PaymentStatus != nil {
		w.PaymentStatus = *u.PaymentStatus
	}
	if u.Rating != nil {
		w.Rating = u.Rating
	}
	if u.EmployerFeedback != nil {
		w.EmployerFeedback = *u.EmployerFeedback
	}
	if u.PaidAt != nil {
		w.PaidAt = u.PaidAt
	}
}
