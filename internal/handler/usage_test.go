package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DukeRupert/tollgate/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveUsage(h *UsageHandler, r *http.Request) (*httptest.ResponseRecorder, UsageResponse) {
	rec := httptest.NewRecorder()
	h.Show(rec, r)
	var body UsageResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func TestUsage_ReturnsCounter(t *testing.T) {
	metering, store, _ := newRedisMetering(t)
	require.NoError(t, store.Ensure(context.Background(), "pro@example.com", 100))
	require.NoError(t, store.Increment(context.Background(), "pro@example.com", 30))

	h := NewUsageHandler(metering, newTestEntitlements(&memPlans{tiers: map[string]string{"pro@example.com": "pro"}}), 50, newDiscardLogger())

	req := withPrincipal(httptest.NewRequest("GET", "/api/usage", nil), "pro@example.com", domain.RoleUser)
	rec, body := serveUsage(h, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, UsageResponse{
		Email:     "pro@example.com",
		Tier:      "pro",
		Used:      30,
		Limit:     100,
		Remaining: 70,
	}, body)
}

func TestUsage_UsesCounterFromPlanLookup(t *testing.T) {
	metering, _, mr := newRedisMetering(t)
	// The metering store is unreachable, so a second read would degrade.
	mr.Close()

	plans := &memPlans{
		tiers:    map[string]string{"pro@example.com": "pro"},
		counters: map[string]*domain.UsageCounter{"pro@example.com": {Email: "pro@example.com", Used: 40, Limit: 100}},
	}
	h := NewUsageHandler(metering, newTestEntitlements(plans), 50, newDiscardLogger())

	req := withPrincipal(httptest.NewRequest("GET", "/api/usage", nil), "pro@example.com", domain.RoleUser)
	rec, body := serveUsage(h, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, UsageResponse{
		Email:     "pro@example.com",
		Tier:      "pro",
		Used:      40,
		Limit:     100,
		Remaining: 60,
	}, body)
}

func TestUsage_MissingCounterUsesPlanCredits(t *testing.T) {
	metering, _, _ := newRedisMetering(t)
	h := NewUsageHandler(metering, newTestEntitlements(&memPlans{tiers: map[string]string{"free@example.com": "free"}}), 50, newDiscardLogger())

	req := withPrincipal(httptest.NewRequest("GET", "/api/usage", nil), "free@example.com", domain.RoleUser)
	rec, body := serveUsage(h, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(2000), body.Limit)
	assert.Equal(t, int64(0), body.Used)
	assert.Equal(t, domain.ReasonAccountNotFound, body.Reason)
	assert.False(t, body.Degraded)
}

func TestUsage_FailsOpenWhenStorageIsDown(t *testing.T) {
	metering, store, mr := newRedisMetering(t)
	require.NoError(t, store.Ensure(context.Background(), "pro@example.com", 100))
	mr.Close()

	plans := &memPlans{err: domain.Unavailable(context.DeadlineExceeded, "plans.get_state")}
	h := NewUsageHandler(metering, newTestEntitlements(plans), 50, newDiscardLogger())

	req := withPrincipal(httptest.NewRequest("GET", "/api/usage", nil), "pro@example.com", domain.RoleUser)
	rec, body := serveUsage(h, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, body.Degraded)
	assert.Equal(t, int64(50), body.Limit)
	assert.Equal(t, int64(50), body.Remaining)
	assert.Equal(t, "none", body.Tier)
}

func TestUsage_RequiresPrincipal(t *testing.T) {
	metering, _, _ := newRedisMetering(t)
	h := NewUsageHandler(metering, newTestEntitlements(&memPlans{}), 50, newDiscardLogger())

	rec, _ := serveUsage(h, httptest.NewRequest("GET", "/api/usage", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
