// Package auth registers accounts, checks passwords and issues the JWTs the
// API middleware accepts.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/earnhub/backend/internal/models"
)

var (
	// ErrInvalidCredentials covers both an unknown email and a wrong
	// password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidRole        = errors.New("invalid role")
)

// codeAttempts bounds retries on a referral code collision.
const codeAttempts = 3

type RegisterInput struct {
	Name         string
	Email        string
	Password     string
	Role         string
	ReferralCode string
}

// Session is returned by Register and Login.
type Session struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

type Service interface {
	Register(ctx context.Context, in RegisterInput) (*Session, error)
	Login(ctx context.Context, email, password string) (*Session, error)
	ValidateToken(ctx context.Context, token string) (uuid.UUID, string, error)
	Me(ctx context.Context, userID uuid.UUID) (*models.User, error)
}

type Deps struct {
	Users     UserStore
	Referrals Referrals // optional
	Secret    []byte
	TTL       time.Duration
	// Cost is the bcrypt cost; zero means bcrypt.DefaultCost.
	Cost   int
	Logger *slog.Logger
}

type service struct {
	Deps
	now func() time.Time
}

func NewService(d Deps) *service {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.TTL <= 0 {
		d.TTL = 24 * time.Hour
	}
	if d.Cost == 0 {
		d.Cost = bcrypt.DefaultCost
	}
	return &service{Deps: d, now: time.Now}
}

// Ensure service implements Service at compile time.
var _ Service = (*service)(nil)

type claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Register creates an account with zero balances and a fresh referral
// code. Only worker and employer accounts can sign up; admins are made by
// operators. A referral code that cannot be applied does not fail the
// registration.
func (s *service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	role := in.Role
	if role == "" {
		role = models.RoleUser
	}
	if role != models.RoleUser && role != models.RoleEmployer {
		return nil, fmt.Errorf("%q: %w", in.Role, ErrInvalidRole)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.Cost)
	if err != nil {
		return nil, err
	}
	u := &models.User{
		ID:             uuid.New(),
		Name:           strings.TrimSpace(in.Name),
		Email:          strings.ToLower(strings.TrimSpace(in.Email)),
		PasswordHash:   string(hash),
		Role:           role,
		Status:         models.UserActive,
		DepositBalance: decimal.Zero,
		EarningBalance: decimal.Zero,
		TotalEarnings:  decimal.Zero,
	}
	for attempt := 1; ; attempt++ {
		u.ReferralCode = NewReferralCode()
		err = s.Users.Create(ctx, u)
		if !errors.Is(err, models.ErrCodeTaken) || attempt == codeAttempts {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	s.Logger.Info("user registered", "user_id", u.ID, "role", u.Role)

	if code := strings.TrimSpace(in.ReferralCode); code != "" && s.Referrals != nil {
		if ref, err := s.Referrals.ApplyCode(ctx, u.ID, code); err != nil {
			s.Logger.Warn("referral code not applied", "user_id", u.ID, "code", code, "error", err)
		} else {
			u.ReferredBy = &ref.ReferrerID
		}
	}

	token, err := s.issueToken(u.ID, u.Role)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, User: u}, nil
}

func (s *service) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.Users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, models.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if u.Status != models.UserActive {
		return nil, fmt.Errorf("account %s: %w", u.Status, models.ErrUnauthorized)
	}
	token, err := s.issueToken(u.ID, u.Role)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, User: u}, nil
}

func (s *service) issueToken(userID uuid.UUID, role string) (string, error) {
	now := s.now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.TTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Role: role,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(s.Secret)
}

// ValidateToken checks the signature and expiry, then reloads the user so
// that a suspended account or a changed role takes effect before the token
// expires.
func (s *service) ValidateToken(ctx context.Context, token string) (uuid.UUID, string, error) {
	tok, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return uuid.Nil, "", errors.Join(ErrInvalidToken, err)
	}
	c, ok := tok.Claims.(*claims)
	if !ok || !tok.Valid {
		return uuid.Nil, "", ErrInvalidToken
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, "", errors.Join(ErrInvalidToken, err)
	}
	u, err := s.Users.GetByID(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return uuid.Nil, "", ErrInvalidToken
	}
	if err != nil {
		return uuid.Nil, "", err
	}
	if u.Status != models.UserActive {
		return uuid.Nil, "", fmt.Errorf("account %s: %w", u.Status, ErrInvalidToken)
	}
	return u.ID, u.Role, nil
}

func (s *service) Me(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	return s.Users.GetByID(ctx, userID)
}

// NewReferralCode returns an 8 character code taken from the random part
// of a ULID.
func NewReferralCode() string {
	id := ulid.Make().String()
	return id[len(id)-8:]
}
