// Package services holds cross-cutting request services. The Validator
// checks request bodies against JSON schemas compiled into the binary.
package services

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Request schema names.
const (
	SchemaRegister          = "register"
	SchemaLogin             = "login"
	SchemaCreateJob         = "create_job"
	SchemaReason            = "reason"
	SchemaSubmitWork        = "submit_work"
	SchemaReviewWork        = "review_work"
	SchemaWithdraw          = "withdraw"
	SchemaDeposit           = "deposit"
	SchemaConvert           = "convert"
	SchemaSubscribe         = "subscribe"
	SchemaApplyCode         = "apply_code"
	SchemaTransactionStatus = "transaction_status"
	SchemaSetBalances       = "set_balances"
)

// ErrValidation can be used with errors.Is to detect a body that is valid
// JSON but breaks its schema.
var ErrValidation = errors.New("validation failed")

// ErrMalformed marks a body that is not JSON at all.
var ErrMalformed = errors.New("malformed JSON")

type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// NewValidator compiles every embedded schema, keyed by file name without
// extension.
func NewValidator() (*Validator, error) {
	entries, err := fs.ReadDir(schemaFS, "schemas")
	if err != nil {
		return nil, fmt.Errorf("read embedded schemas: %w", err)
	}
	schemas := make(map[string]*jsonschema.Schema, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), path.Ext(e.Name()))
		data, err := schemaFS.ReadFile("schemas/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", e.Name(), err)
		}
		schemas[name], err = jsonschema.CompileString("https://earnhub.dev/schemas/"+e.Name(), string(data))
		if err != nil {
			return nil, fmt.Errorf("compile schema %q: %w", name, err)
		}
	}
	return &Validator{schemas: schemas}, nil
}

// ValidateRequest hard-rejects a body that does not match the named schema.
func (v *Validator) ValidateRequest(_ context.Context, name string, body []byte) error {
	schema, ok := v.schemas[name]
	if !ok {
		return fmt.Errorf("unknown request schema %q", name)
	}
	// json.Number keeps decimal amounts exact for multipleOf checks.
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// Has reports whether a schema is registered under name.
func (v *Validator) Has(name string) bool {
	_, ok := v.schemas[name]
	return ok
}
