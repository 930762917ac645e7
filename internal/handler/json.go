package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/DukeRupert/tollgate/internal/domain"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

// reasonHeader mirrors middleware.ReasonHeader. The middleware package
// imports handler for error responses, so handler cannot import it back.
const reasonHeader = "X-Entitlement-Reason"

// decodeJSON reads a single JSON object from the request body into v.
// Unknown fields are rejected so typos surface as 400s.
func decodeJSON(w http.ResponseWriter, r *http.Request, op string, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return domain.Invalid(op, "Request body is too large")
		case errors.Is(err, io.EOF):
			return domain.Invalid(op, "Request body is required")
		default:
			return domain.Invalid(op, "Request body must be a JSON object")
		}
	}
	if dec.More() {
		return domain.Invalid(op, "Request body must contain a single JSON object")
	}
	return nil
}
