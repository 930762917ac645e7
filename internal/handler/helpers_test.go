package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/DukeRupert/tollgate/internal/auth"
	"github.com/DukeRupert/tollgate/internal/catalog"
	"github.com/DukeRupert/tollgate/internal/domain"
	"github.com/DukeRupert/tollgate/internal/policy"
	"github.com/DukeRupert/tollgate/internal/repository"
	"github.com/DukeRupert/tollgate/internal/service"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newDiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubVerifier rejects every token; handler tests never verify tokens.
type stubVerifier struct{}

func (stubVerifier) Verify(string) (domain.Principal, error) {
	return domain.Principal{}, domain.ErrInvalidToken
}

// memPlans maps emails to active tiers and, optionally, joined counters.
type memPlans struct {
	tiers    map[string]string
	counters map[string]*domain.UsageCounter
	err      error
}

func (m *memPlans) GetPlanState(ctx context.Context, email string) (*domain.PlanState, error) {
	if m.err != nil {
		return nil, m.err
	}
	tier, ok := m.tiers[email]
	if !ok {
		return nil, domain.Wrap(domain.ErrPlanNotFound, domain.ENOTFOUND, "test", "no plan")
	}
	return &domain.PlanState{
		Subscription: domain.SubscriptionRecord{
			Email:  email,
			TierID: tier,
			Status: domain.SubscriptionStatusActive,
		},
		Usage: m.counters[email],
	}, nil
}

func newTestEntitlements(plans *memPlans) service.EntitlementService {
	return service.NewEntitlementService(service.EntitlementConfig{
		Verifier: stubVerifier{},
		Plans:    plans,
		Catalog:  catalog.Default(),
		Policy:   policy.Default(),
		Logger:   newDiscardLogger(),
	})
}

// newRedisMetering wires the metering service to a miniredis-backed store.
func newRedisMetering(t *testing.T) (service.MeteringService, *repository.RedisUsage, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := repository.NewRedisUsage(client, "", time.Second)
	return service.NewMeteringService(store, service.MeteringConfig{}, newDiscardLogger()), store, mr
}

func withPrincipal(r *http.Request, email string, role domain.Role) *http.Request {
	p := &domain.Principal{Email: email, Role: role}
	return r.WithContext(auth.SetPrincipal(r.Context(), p))
}

func jsonBody(s string) io.Reader {
	return strings.NewReader(s)
}
