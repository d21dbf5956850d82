package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Role values.
const (
	RoleUser       = "user"
	RoleEmployer   = "employer"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"
)

// User status values.
const (
	UserActive    = "active"
	UserInactive  = "inactive"
	UserSuspended = "suspended"
)

// IsAdminRole reports whether role may act on admin endpoints.
func IsAdminRole(role string) bool {
	return role == RoleAdmin || role == RoleSuperAdmin
}

// Balance names one of the two balances a user holds.
type Balance string

const (
	BalanceDeposit Balance = "deposit"
	BalanceEarning Balance = "earning"
)

func (b Balance) Valid() bool { return b == BalanceDeposit || b == BalanceEarning }

// User is an account holder. DepositBalance funds job postings and paid
// features; EarningBalance accumulates pay and is withdrawable. Both only
// change through the ledger.
type User struct {
	ID             uuid.UUID       `json:"id"`
	Name           string          `json:"name"`
	Email          string          `json:"email"`
	PasswordHash   string          `json:"-"`
	Role           string          `json:"role"`
	Status         string          `json:"status"`
	ReferralCode   string          `json:"referral_code"`
	ReferredBy     *uuid.UUID      `json:"referred_by,omitempty"`
	DepositBalance decimal.Decimal `json:"deposit_balance"`
	EarningBalance decimal.Decimal `json:"earning_balance"`
	TotalEarnings  decimal.Decimal `json:"total_earnings"`
	CompletedJobs  int             `json:"completed_jobs"`
	ActiveJobs     int             `json:"active_jobs"`
	IsPremium      bool            `json:"is_premium"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// BalanceOf returns the named balance.
func (u *User) BalanceOf(b Balance) decimal.Decimal {
	if b == BalanceEarning {
		return u.EarningBalance
	}
	return u.DepositBalance
}

// SetBalance sets the named balance.
func (u *User) SetBalance(b Balance, v decimal.Decimal) {
	if b == BalanceEarning {
		u.EarningBalance = v
		return
	}
	u.DepositBalance = v
}

// StatsDelta is applied to a user's work counters in one update.
// ActiveJobs never drops below zero.
type StatsDelta struct {
	Earned        decimal.Decimal
	CompletedJobs int
	ActiveJobs    int
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   uuid.UUID
	Role string
}

func (a Actor) IsAdmin() bool { return IsAdminRole(a.Role) }
