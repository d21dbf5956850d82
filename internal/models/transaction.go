package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType classifies a ledger entry.
type TransactionType string

const (
	TxDeposit    TransactionType = "deposit"
	TxWithdrawal TransactionType = "withdrawal"
	TxPayment    TransactionType = "payment"
	TxEarning    TransactionType = "earning"
	TxReferral   TransactionType = "referral"
	TxRefund     TransactionType = "refund"
	TxBonus      TransactionType = "bonus"
	TxConversion TransactionType = "conversion"
)

// TransactionStatus is the settlement state of a ledger entry.
type TransactionStatus string

const (
	TxPending   TransactionStatus = "pending"
	TxCompleted TransactionStatus = "completed"
	TxFailed    TransactionStatus = "failed"
	TxCancelled TransactionStatus = "cancelled"
)

// Final reports whether no further status change is allowed.
func (s TransactionStatus) Final() bool { return s != TxPending }

// Direction is the sign of a ledger entry against its balance.
type Direction string

const (
	Credit Direction = "credit"
	Debit  Direction = "debit"
)

// Transaction is one append-only ledger row. Every balance mutation writes
// exactly one. Amount is always positive; Direction carries the sign.
type Transaction struct {
	ID            uuid.UUID         `json:"id"`
	Reference     string            `json:"reference"`
	UserID        uuid.UUID         `json:"user_id"`
	Type          TransactionType   `json:"type"`
	Balance       Balance           `json:"balance"`
	Direction     Direction         `json:"direction"`
	Amount        decimal.Decimal   `json:"amount"`
	BalanceAfter  decimal.Decimal   `json:"balance_after"`
	Status        TransactionStatus `json:"status"`
	Description   string            `json:"description"`
	PaymentMethod string            `json:"payment_method,omitempty"`
	JobID         *uuid.UUID        `json:"job_id,omitempty"`
	WorkID        *uuid.UUID        `json:"work_id,omitempty"`
	Metadata      Metadata          `json:"metadata"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Signed returns the amount with the direction applied.
func (t *Transaction) Signed() decimal.Decimal {
	if t.Direction == Debit {
		return t.Amount.Neg()
	}
	return t.Amount
}

// Metadata holds the typed detail of a transaction. At most one of the
// per-type members is set; Review is added when an admin resolves a pending
// entry.
type Metadata struct {
	Withdrawal *WithdrawalDetail `json:"withdrawal,omitempty"`
	Deposit    *DepositDetail    `json:"deposit,omitempty"`
	Conversion *ConversionDetail `json:"conversion,omitempty"`
	Referral   *ReferralDetail   `json:"referral,omitempty"`
	Refund     *RefundDetail     `json:"refund,omitempty"`
	Adjustment *AdjustmentDetail `json:"adjustment,omitempty"`
	Review     *Review           `json:"review,omitempty"`
}

type WithdrawalDetail struct {
	Method         string `json:"method"`
	AccountDetails string `json:"account_details"`
}

type DepositDetail struct {
	Method      string `json:"method"`
	ReferenceID string `json:"reference_id,omitempty"`
}

type ConversionDetail struct {
	From      Balance         `json:"from"`
	To        Balance         `json:"to"`
	Fee       decimal.Decimal `json:"fee"`
	NetAmount decimal.Decimal `json:"net_amount"`
}

type ReferralDetail struct {
	ReferredUserID uuid.UUID        `json:"referred_user_id"`
	OriginalAmount decimal.Decimal  `json:"original_amount"`
	Source         CommissionSource `json:"source"`
}

type RefundDetail struct {
	Reason string `json:"reason"`
}

type AdjustmentDetail struct {
	Previous decimal.Decimal `json:"previous"`
	New      decimal.Decimal `json:"new"`
	AdminID  uuid.UUID       `json:"admin_id"`
}

// Review records who resolved a pending transaction and why.
type Review struct {
	Status     TransactionStatus `json:"status"`
	Reason     string            `json:"reason,omitempty"`
	ReviewedBy uuid.UUID         `json:"reviewed_by"`
	ReviewedAt time.Time         `json:"reviewed_at"`
}

// TransactionFilter narrows transaction listings. Zero fields are ignored.
type TransactionFilter struct {
	UserID *uuid.UUID
	Type   TransactionType
	Status TransactionStatus
	Limit  int
	Offset int
}

// AmountScale is the number of decimal places the money columns store.
const AmountScale = 6

// FitsScale reports whether d is stored exactly by a NUMERIC(18,6) column.
func FitsScale(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(AmountScale))
}
