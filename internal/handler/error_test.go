package handler

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/DukeRupert/tollgate/internal/domain"
)

// =============================================================================
// Error Response Tests - Security Focus
// =============================================================================

func TestErrorResponse_InternalErrorHidesDetails(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// Create an internal error wrapping a database error
	dbErr := &mockDatabaseError{message: "ERROR: relation \"usage_counters\" does not exist (SQLSTATE 42P01)"}
	internalErr := domain.Internal(dbErr, "UsageRepository.GetCounter", "Database query failed")

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(w, r, logger, internalErr)
	})

	// Test HTML response
	req := httptest.NewRequest("GET", "/users/123", nil)
	req.Header.Set("Accept", "text/html")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	body := rec.Body.String()

	// Should NOT contain database error details
	if strings.Contains(body, "SQLSTATE") {
		t.Errorf("response exposes database error: %s", body)
	}
	if strings.Contains(body, "relation") {
		t.Errorf("response exposes database schema: %s", body)
	}
	if strings.Contains(body, "UsageRepository") {
		t.Errorf("response exposes internal operation: %s", body)
	}

	// Should return generic message
	if !strings.Contains(body, "internal error") {
		t.Errorf("response should contain generic internal error message, got: %s", body)
	}
}

func TestErrorResponse_InternalErrorHidesDetails_JSON(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// Create an internal error wrapping a sensitive error
	sensitiveErr := &mockDatabaseError{message: "connection to 192.168.1.100:5432 refused"}
	internalErr := domain.Internal(sensitiveErr, "DB.Connect", "Failed to connect")

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(w, r, logger, internalErr)
	})

	// Test JSON response
	req := httptest.NewRequest("GET", "/api/usage", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	body := rec.Body.String()

	// Should NOT contain sensitive details
	if strings.Contains(body, "192.168") {
		t.Errorf("JSON response exposes IP address: %s", body)
	}
	if strings.Contains(body, "5432") {
		t.Errorf("JSON response exposes port number: %s", body)
	}
	if strings.Contains(body, "DB.Connect") {
		t.Errorf("JSON response exposes internal operation: %s", body)
	}

	// Should contain generic message
	if !strings.Contains(body, "internal error") {
		t.Errorf("JSON response should contain generic error, got: %s", body)
	}
}

func TestErrorResponse_NotFoundDoesNotExposeInternals(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// Create a not found error
	notFoundErr := domain.NotFound("SubscriptionRepository.Get", "subscription", "a@example.com")

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(w, r, logger, notFoundErr)
	})

	req := httptest.NewRequest("GET", "/settings/billing", nil)
	req.Header.Set("Accept", "text/html")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	body := rec.Body.String()

	// Should NOT contain internal operation name
	if strings.Contains(body, "Repository") {
		t.Errorf("response exposes repository name: %s", body)
	}

	// Should contain user-friendly not found message (resource type is OK)
	if !strings.Contains(body, "subscription") && !strings.Contains(body, "not found") {
		t.Errorf("response should indicate resource not found: %s", body)
	}
}

func TestErrorResponse_UnwrappedErrorReturnsGeneric(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// Create a raw error (not a domain.Error)
	rawErr := &mockDatabaseError{message: "FATAL: password authentication failed for user \"postgres\""}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(w, r, logger, rawErr)
	})

	req := httptest.NewRequest("GET", "/data", nil)
	req.Header.Set("Accept", "text/html")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	body := rec.Body.String()

	// Should NOT contain the raw error
	if strings.Contains(body, "FATAL") {
		t.Errorf("response exposes raw error: %s", body)
	}
	if strings.Contains(body, "password") {
		t.Errorf("response exposes password-related error: %s", body)
	}
	if strings.Contains(body, "postgres") {
		t.Errorf("response exposes database user: %s", body)
	}

	// Should return generic message
	if !strings.Contains(body, "internal error") {
		t.Errorf("response should contain generic message, got: %s", body)
	}
}

// mockDatabaseError simulates a database error for testing
type mockDatabaseError struct {
	message string
}

func (e *mockDatabaseError) Error() string {
	return e.message
}

func TestErrorResponse_StorageUnavailableIs503(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	err := domain.Unavailable(&mockDatabaseError{message: "dial tcp 10.0.0.5:6379: i/o timeout"}, "usage.get_counter")

	req := httptest.NewRequest("GET", "/api/usage", nil)
	rec := httptest.NewRecorder()
	ErrorResponse(rec, req, logger, err)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	if strings.Contains(rec.Body.String(), "10.0.0.5") {
		t.Errorf("response exposes storage address: %s", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"code":"unavailable"`) {
		t.Errorf("expected JSON body for /api/ path, got: %s", rec.Body.String())
	}
}

func TestErrorCodeToHTTPStatus(t *testing.T) {
	tests := map[string]int{
		domain.EINVALID:      http.StatusBadRequest,
		domain.EUNAUTHORIZED: http.StatusUnauthorized,
		domain.EPAYMENT:      http.StatusPaymentRequired,
		domain.EFORBIDDEN:    http.StatusForbidden,
		domain.ENOTFOUND:     http.StatusNotFound,
		domain.ERATELIMIT:    http.StatusTooManyRequests,
		domain.EUNAVAILABLE:  http.StatusServiceUnavailable,
		"something-else":     http.StatusInternalServerError,
	}
	for code, want := range tests {
		if got := ErrorCodeToHTTPStatus(code); got != want {
			t.Errorf("ErrorCodeToHTTPStatus(%q) = %d, want %d", code, got, want)
		}
	}
}
