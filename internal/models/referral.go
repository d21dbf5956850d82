package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CommissionSource is the event that earned a referrer commission.
type CommissionSource string

const (
	SourceDeposit CommissionSource = "deposit"
	SourceTask    CommissionSource = "task"
)

func (s CommissionSource) Valid() bool { return s == SourceDeposit || s == SourceTask }

// Referral status values.
const (
	ReferralActive   = "active"
	ReferralInactive = "inactive"
)

// Referral links a referred user to their referrer. Earnings is a running
// tally of commission paid, not a balance.
type Referral struct {
	ID             uuid.UUID        `json:"id"`
	ReferrerID     uuid.UUID        `json:"referrer_id"`
	ReferredID     uuid.UUID        `json:"referred_id"`
	ReferralCode   string           `json:"referral_code"`
	Status         string           `json:"status"`
	Earnings       ReferralEarnings `json:"earnings"`
	FirstDepositAt *time.Time       `json:"first_deposit_at,omitempty"`
	FirstTaskAt    *time.Time       `json:"first_task_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

type ReferralEarnings struct {
	DepositEarnings decimal.Decimal `json:"deposit_earnings"`
	TaskEarnings    decimal.Decimal `json:"task_earnings"`
	TotalEarnings   decimal.Decimal `json:"total_earnings"`
}

// Add accumulates a commission under its source.
func (e *ReferralEarnings) Add(source CommissionSource, amount decimal.Decimal) {
	if source == SourceDeposit {
		e.DepositEarnings = e.DepositEarnings.Add(amount)
	} else {
		e.TaskEarnings = e.TaskEarnings.Add(amount)
	}
	e.TotalEarnings = e.TotalEarnings.Add(amount)
}

// ReferralSummary aggregates a referrer's network.
type ReferralSummary struct {
	ReferralCode    string          `json:"referral_code"`
	TotalReferrals  int             `json:"total_referrals"`
	ActiveReferrals int             `json:"active_referrals"`
	DepositEarnings decimal.Decimal `json:"deposit_earnings"`
	TaskEarnings    decimal.Decimal `json:"task_earnings"`
	TotalEarnings   decimal.Decimal `json:"total_earnings"`
	Referrals       []*Referral     `json:"referrals"`
}
