package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/earnhub/backend/internal/ledger"
	"github.com/earnhub/backend/internal/models"
	"github.com/earnhub/backend/internal/referral"
	"github.com/earnhub/backend/internal/storetest"
)

var secret = []byte("test-secret")

func newService(st *storetest.Store) *service {
	refs := referral.NewService(referral.Deps{
		DB:        st,
		Users:     st.Users,
		Referrals: st.Referrals,
		Ledger:    ledger.NewService(st.Users, st.Transactions, st.Queue),
		Notifier:  st.Notifier(),
		Rate:      decimal.RequireFromString("0.05"),
	})
	return NewService(Deps{Users: st.Users, Referrals: refs, Secret: secret, Cost: bcrypt.MinCost})
}

func register(t *testing.T, svc *service, email, code string) *Session {
	t.Helper()
	sess, err := svc.Register(context.Background(), RegisterInput{
		Name: "Test", Email: email, Password: "hunter22", ReferralCode: code,
	})
	if err != nil {
		t.Fatalf("Register(%s): %v", email, err)
	}
	return sess
}

// ---------------------------------------------------------------------------
// Register / Login
// ---------------------------------------------------------------------------

func TestRegisterCreatesZeroBalanceAccount(t *testing.T) {
	st := storetest.New()
	svc := newService(st)

	sess := register(t, svc, " Worker@Example.com ", "")
	u := st.User(sess.User.ID)
	if u.Email != "worker@example.com" || u.Role != models.RoleUser || u.Status != models.UserActive {
		t.Errorf("user = %+v", u)
	}
	if len(u.ReferralCode) != 8 {
		t.Errorf("referral code %q, want 8 chars", u.ReferralCode)
	}
	if !u.DepositBalance.IsZero() || !u.EarningBalance.IsZero() {
		t.Error("new account has a balance")
	}
	if u.PasswordHash == "hunter22" || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("hunter22")) != nil {
		t.Error("password not stored as a bcrypt hash")
	}
	id, role, err := svc.ValidateToken(context.Background(), sess.Token)
	if err != nil || id != u.ID || role != models.RoleUser {
		t.Errorf("ValidateToken = %s, %q, %v", id, role, err)
	}
}

func TestRegisterAppliesReferralCode(t *testing.T) {
	st := storetest.New()
	svc := newService(st)
	referrer := register(t, svc, "ref@example.com", "")

	sess := register(t, svc, "new@example.com", referrer.User.ReferralCode)
	if sess.User.ReferredBy == nil || *sess.User.ReferredBy != referrer.User.ID {
		t.Errorf("session referred_by = %v", sess.User.ReferredBy)
	}
	if _, ok := st.Referral(sess.User.ID); !ok {
		t.Error("referral row not created")
	}

	// An unknown code is logged and ignored.
	other := register(t, svc, "other@example.com", "NOSUCHCD")
	if other.User.ReferredBy != nil {
		t.Error("unknown code set referred_by")
	}
}

func TestRegisterRejections(t *testing.T) {
	st := storetest.New()
	svc := newService(st)
	register(t, svc, "taken@example.com", "")

	if _, err := svc.Register(context.Background(), RegisterInput{Email: "taken@example.com", Password: "hunter22"}); !errors.Is(err, models.ErrEmailTaken) {
		t.Errorf("duplicate email err = %v", err)
	}
	if _, err := svc.Register(context.Background(), RegisterInput{Email: "boss@example.com", Password: "hunter22", Role: models.RoleAdmin}); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("admin signup err = %v", err)
	}
}

func TestLogin(t *testing.T) {
	st := storetest.New()
	svc := newService(st)
	reg := register(t, svc, "a@example.com", "")

	sess, err := svc.Login(context.Background(), "A@example.com", "hunter22")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if sess.User.ID != reg.User.ID || sess.Token == "" {
		t.Errorf("session = %+v", sess)
	}

	for _, tc := range []struct{ email, password string }{
		{"a@example.com", "wrong"},
		{"nobody@example.com", "hunter22"},
	} {
		if _, err := svc.Login(context.Background(), tc.email, tc.password); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("Login(%s, %s) err = %v", tc.email, tc.password, err)
		}
	}
}

func TestLoginSuspended(t *testing.T) {
	st := storetest.New()
	svc := newService(st)
	hash, _ := bcrypt.GenerateFromPassword([]byte("pw123456"), bcrypt.MinCost)
	st.AddUser(models.User{Email: "s@example.com", PasswordHash: string(hash), Status: models.UserSuspended})

	if _, err := svc.Login(context.Background(), "s@example.com", "pw123456"); !errors.Is(err, models.ErrUnauthorized) {
		t.Errorf("suspended login err = %v", err)
	}
}

// ---------------------------------------------------------------------------
// Tokens
// ---------------------------------------------------------------------------

func TestValidateTokenRejects(t *testing.T) {
	st := storetest.New()
	svc := newService(st)
	suspended := st.AddUser(models.User{Status: models.UserSuspended})

	sign := func(c claims, key []byte, method jwt.SigningMethod) string {
		s, err := jwt.NewWithClaims(method, c).SignedString(key)
		if err != nil {
			t.Fatal(err)
		}
		return s
	}
	valid := func(sub string, exp time.Time) claims {
		return claims{RegisteredClaims: jwt.RegisteredClaims{Subject: sub, ExpiresAt: jwt.NewNumericDate(exp)}, Role: models.RoleAdmin}
	}
	later := time.Now().Add(time.Hour)

	cases := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-jwt"},
		{"wrong key", sign(valid(suspended.ID.String(), later), []byte("other"), jwt.SigningMethodHS256)},
		{"wrong alg", sign(valid(suspended.ID.String(), later), secret, jwt.SigningMethodHS512)},
		{"expired", sign(valid(suspended.ID.String(), time.Now().Add(-time.Minute)), secret, jwt.SigningMethodHS256)},
		{"bad subject", sign(valid("nope", later), secret, jwt.SigningMethodHS256)},
		{"unknown user", sign(valid(uuid.NewString(), later), secret, jwt.SigningMethodHS256)},
		{"suspended user", sign(valid(suspended.ID.String(), later), secret, jwt.SigningMethodHS256)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := svc.ValidateToken(context.Background(), tc.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("err = %v, want ErrInvalidToken", err)
			}
		})
	}
}

// The role comes from the account, not from the token claims.
func TestValidateTokenUsesStoredRole(t *testing.T) {
	st := storetest.New()
	svc := newService(st)
	u := st.AddUser(models.User{Role: models.RoleEmployer})

	tok, err := svc.issueToken(u.ID, models.RoleAdmin)
	if err != nil {
		t.Fatal(err)
	}
	_, role, err := svc.ValidateToken(context.Background(), tok)
	if err != nil || role != models.RoleEmployer {
		t.Errorf("role = %q, %v; want employer", role, err)
	}
}

func TestNewReferralCodeUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		c := NewReferralCode()
		if seen[c] {
			t.Fatalf("duplicate code %q after %d", c, i)
		}
		seen[c] = true
	}
}
