package auth

import (
	"context"

	"github.com/google/uuid"

	"github.com/earnhub/backend/internal/models"
)

// UserStore is the account persistence auth needs. *repository.UserRepo
// satisfies it; Create maps unique violations to models.ErrEmailTaken and
// models.ErrCodeTaken.
type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// Referrals links a new account to the owner of a referral code.
type Referrals interface {
	ApplyCode(ctx context.Context, userID uuid.UUID, code string) (*models.Referral, error)
}
