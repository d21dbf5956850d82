package models

import "errors"

// Settlement errors. Services wrap these with context; callers match with errors.Is.
var (
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("not authorized")
	ErrInvalidState        = errors.New("invalid state for operation")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrBelowMinimumSpend   = errors.New("below minimum spend")
	ErrAlreadyProcessed    = errors.New("already processed")
	ErrInvalidAmount       = errors.New("invalid amount")

	// ErrConflict is returned by a conditional update that matched no row
	// because another writer changed the row first.
	ErrConflict = errors.New("concurrent update")
)

// Unique-key violations surfaced by the user store.
var (
	ErrEmailTaken = errors.New("email already registered")
	ErrCodeTaken  = errors.New("referral code already in use")
)
