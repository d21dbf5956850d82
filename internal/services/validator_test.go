package services

import (
	"context"
	"errors"
	"testing"
)

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator()
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	return v
}

func TestNewValidator_CompilesEverySchema(t *testing.T) {
	v := newTestValidator(t)
	for _, name := range []string{
		SchemaRegister, SchemaLogin, SchemaCreateJob, SchemaReason, SchemaSubmitWork,
		SchemaReviewWork, SchemaWithdraw, SchemaDeposit, SchemaConvert, SchemaSubscribe,
		SchemaApplyCode, SchemaTransactionStatus, SchemaSetBalances,
	} {
		if !v.Has(name) {
			t.Errorf("schema %q not registered", name)
		}
	}
}

func TestValidateRequest_Valid(t *testing.T) {
	v := newTestValidator(t)

	cases := []struct {
		schema string
		body   string
	}{
		{SchemaRegister, `{"name":"Ada","email":"ada@example.com","password":"secret1","referral_code":"REFABC"}`},
		{SchemaCreateJob, `{"title":"Follow our page","worker_need":10,"worker_earn":0.1}`},
		{SchemaWithdraw, `{"amount":20,"method":"bkash","account_details":"01700000000"}`},
		{SchemaSubmitWork, `{"proof":"https://example.com/shot.png","files":["a.png"]}`},
		{SchemaReviewWork, `{}`},
		{SchemaSubscribe, `{"plan":"premium"}`},
		{SchemaSetBalances, `{"earning_balance":0}`},
	}
	for _, tc := range cases {
		t.Run(tc.schema, func(t *testing.T) {
			if err := v.ValidateRequest(context.Background(), tc.schema, []byte(tc.body)); err != nil {
				t.Fatalf("expected valid body, got: %v", err)
			}
		})
	}
}

func TestValidateRequest_Invalid(t *testing.T) {
	v := newTestValidator(t)

	cases := []struct {
		name   string
		schema string
		body   string
	}{
		{"register missing password", SchemaRegister, `{"name":"Ada","email":"ada@example.com"}`},
		{"register bad email", SchemaRegister, `{"name":"Ada","email":"nope","password":"secret1"}`},
		{"register admin role", SchemaRegister, `{"name":"Ada","email":"a@b.co","password":"secret1","role":"admin"}`},
		{"job zero workers", SchemaCreateJob, `{"title":"Follow","worker_need":0,"worker_earn":1}`},
		{"job negative pay", SchemaCreateJob, `{"title":"Follow","worker_need":1,"worker_earn":-1}`},
		{"job unknown field", SchemaCreateJob, `{"title":"Follow","worker_need":1,"worker_earn":1,"budget":5}`},
		{"withdraw zero", SchemaWithdraw, `{"amount":0,"method":"bkash","account_details":"x"}`},
		{"job pay finer than a micro-unit", SchemaCreateJob, `{"title":"Follow","worker_need":100000,"worker_earn":0.0000085}`},
		{"withdraw finer than a micro-unit", SchemaWithdraw, `{"amount":1.0000001,"method":"bkash","account_details":"x"}`},
		{"unknown plan", SchemaSubscribe, `{"plan":"gold"}`},
		{"rating out of range", SchemaReviewWork, `{"rating":6}`},
		{"status pending", SchemaTransactionStatus, `{"status":"pending"}`},
		{"empty balances", SchemaSetBalances, `{}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.ValidateRequest(context.Background(), tc.schema, []byte(tc.body))
			if !errors.Is(err, ErrValidation) {
				t.Errorf("expected ErrValidation, got: %v", err)
			}
		})
	}
}

func TestValidateRequest_Malformed(t *testing.T) {
	v := newTestValidator(t)
	err := v.ValidateRequest(context.Background(), SchemaLogin, []byte(`{"email":`))
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed, got: %v", err)
	}
}

func TestValidateRequest_UnknownSchema(t *testing.T) {
	v := newTestValidator(t)
	err := v.ValidateRequest(context.Background(), "teleport", []byte(`{}`))
	if err == nil || errors.Is(err, ErrValidation) || errors.Is(err, ErrMalformed) {
		t.Errorf("expected a plain error for an unknown schema, got: %v", err)
	}
}
