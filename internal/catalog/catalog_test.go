package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/DukeRupert/tollgate/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_KnownTiers(t *testing.T) {
	c := Default()

	assert.Equal(t, []string{"enterprise", "free", "pro", "starter"}, c.Tiers())

	free := c.Lookup("free")
	assert.Equal(t, domain.Cap(0), free.Limit("maxSocialConnections"))
	assert.Equal(t, domain.Flag(false), free.Limit("abTesting"))

	pro := c.Lookup("pro")
	assert.Equal(t, domain.Flag(true), pro.Limit("abTesting"))

	ent := c.Lookup("enterprise")
	assert.True(t, ent.Limit("maxReports").Unlimited)
}

func TestLookup_UnknownTierIsRestrictive(t *testing.T) {
	c := Default()

	for _, tier := range []string{"", "gold", "legacy_pro_2019", "FREE"} {
		p := c.Lookup(tier)
		assert.Equal(t, DefaultTier, p.TierID, "tier %q", tier)
		assert.Empty(t, p.Limits)
		assert.False(t, domain.RequireEnabled().SatisfiedBy(p.Limit("abTesting")))
		assert.False(t, domain.RequireAtLeast(1).SatisfiedBy(p.Limit("maxReports")))
	}
}

func TestResolve_LapsedSubscriptionIsRestrictive(t *testing.T) {
	c := Default()

	tests := []struct {
		status domain.SubscriptionStatus
		want   string
	}{
		{domain.SubscriptionStatusActive, "pro"},
		{domain.SubscriptionStatusTrialing, "pro"},
		{domain.SubscriptionStatusPastDue, DefaultTier},
		{domain.SubscriptionStatusCanceled, DefaultTier},
		{domain.SubscriptionStatusNone, "pro"},
		{"paused", DefaultTier},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			p := c.Resolve(domain.SubscriptionRecord{TierID: "pro", Status: tt.status})
			assert.Equal(t, tt.want, p.TierID)
		})
	}
}

func TestResolve_UnsubscribedFreeAccountKeepsFreeTier(t *testing.T) {
	c := Default()

	p := c.Resolve(domain.SubscriptionRecord{TierID: "free", Status: domain.SubscriptionStatusNone})

	assert.Equal(t, "free", p.TierID)
	assert.True(t, domain.RequireAtLeast(1).SatisfiedBy(p.Limit("maxReports")))
	assert.True(t, domain.RequireEnabled().SatisfiedBy(p.Limit("aiGeneration")))
}

func TestWithAliases_ResolvesPriceIDs(t *testing.T) {
	c, err := Default().WithAliases(map[string]string{"price_1PRO": "pro"})
	require.NoError(t, err)

	assert.Equal(t, "pro", c.Lookup("price_1PRO").TierID)

	_, err = Default().WithAliases(map[string]string{"price_x": "platinum"})
	assert.Error(t, err)
}

func TestParse(t *testing.T) {
	doc := []byte(`
plans:
  basic:
    reports: 2
    widgets: true
    seats: unlimited
aliases:
  price_basic: basic
`)
	c, err := Parse(doc)
	require.NoError(t, err)

	p := c.Lookup("price_basic")
	assert.Equal(t, "basic", p.TierID)
	assert.Equal(t, domain.Cap(2), p.Limit("reports"))
	assert.Equal(t, domain.Flag(true), p.Limit("widgets"))
	assert.Equal(t, domain.Unlimited(), p.Limit("seats"))
	assert.Equal(t, domain.FeatureLimit{}, p.Limit("missing"))
}

func TestParse_Rejects(t *testing.T) {
	tests := map[string]string{
		"empty":           `plans: {}`,
		"negative cap":    "plans:\n  a:\n    x: -1\n",
		"bad string":      "plans:\n  a:\n    x: lots\n",
		"float":           "plans:\n  a:\n    x: 1.5\n",
		"nested":          "plans:\n  a:\n    x: [1]\n",
		"reserved tier":   "plans:\n  none:\n    x: 1\n",
		"unknown alias":   "plans:\n  a:\n    x: 1\naliases:\n  p: b\n",
		"not yaml at all": "plans: [",
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Contains(t, c.Tiers(), "free")

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("plans:\n  solo:\n    abTesting: true\n"), 0o600))

	c, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"solo"}, c.Tiers())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
