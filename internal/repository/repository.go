// Package repository implements the storage side of the authorization layer:
// subscription lookups and usage counters on PostgreSQL, with an alternate
// Redis-backed usage counter store.
//
// Every call runs under a bounded timeout. Missing rows surface as
// domain.ErrPlanNotFound or domain.ErrAccountNotFound; timeouts and
// connection failures surface as domain.ErrStorageUnavailable so callers can
// pick fail-closed or fail-open behavior.
package repository

import (
	"context"
	"time"

	"github.com/DukeRupert/tollgate/internal/domain"
	"github.com/DukeRupert/tollgate/internal/metrics"
)

// DefaultTimeout bounds a single storage call when none is configured.
const DefaultTimeout = 2 * time.Second

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = DefaultTimeout
	}
	return context.WithTimeout(ctx, d)
}

func unavailable(err error, op string) error {
	metrics.StorageErrorsTotal.WithLabelValues(op).Inc()
	return domain.Unavailable(err, op)
}

func notFound(sentinel error, op, email string) error {
	return domain.Wrap(sentinel, domain.ENOTFOUND, op, "no record for "+email)
}
