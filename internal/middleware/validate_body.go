package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/earnhub/backend/internal/handlers"
	"github.com/earnhub/backend/internal/services"
)

// MaxBodyBytes caps request bodies read by ValidateBody.
const MaxBodyBytes = 1 << 20

// BodyValidator checks a JSON document against a named request schema.
type BodyValidator interface {
	ValidateRequest(ctx context.Context, name string, body []byte) error
}

// ValidateBody reads the body, validates it against the named schema and
// replaces r.Body so the handler can decode it again. An empty body is
// checked as {}. Malformed JSON is a 400; a schema violation is a 422
// carrying the validator's message.
func ValidateBody(v BodyValidator, schema string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
			r.Body.Close()
			if err != nil {
				http.Error(w, `{"error":"failed to read body"}`, http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))

			doc := bodyBytes
			if len(bytes.TrimSpace(doc)) == 0 {
				doc = []byte("{}")
			}
			if err := v.ValidateRequest(r.Context(), schema, doc); err != nil {
				if errors.Is(err, services.ErrMalformed) {
					err = errors.Join(handlers.ErrBadRequest, err)
				}
				handlers.WriteError(w, nil, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
