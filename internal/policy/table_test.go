package policy

import (
	"testing"

	"github.com/DukeRupert/tollgate/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatch_LongestPrefixWins(t *testing.T) {
	table, err := NewTable([]domain.PathRequirement{
		{PathPrefix: "/analytics", LimitKey: "maxReports", MinRequired: domain.RequireAtLeast(1)},
		{PathPrefix: "/analytics/google", LimitKey: "googleAnalytics", MinRequired: domain.RequireEnabled()},
	})
	require.NoError(t, err)

	req, ok := table.Match("/analytics/google/properties")
	require.True(t, ok)
	assert.Equal(t, "googleAnalytics", req.LimitKey)

	req, ok = table.Match("/analytics/overview")
	require.True(t, ok)
	assert.Equal(t, "maxReports", req.LimitKey)
}

func TestMatch_SegmentBoundaries(t *testing.T) {
	table := Default()

	tests := []struct {
		path  string
		gated bool
		key   string
	}{
		{"/reports", true, "maxReports"},
		{"/reports/", true, "maxReports"},
		{"/reports/42/export", true, "maxReports"},
		{"/reportsarchive", false, ""},
		{"/", false, ""},
		{"", false, ""},
		{"/dashboard", false, ""},
		{"/public/../reports", true, "maxReports"},
		{"//social", true, "maxSocialConnections"},
		{"/api/ai/generate", true, "aiGeneration"},
		{"/api/usage", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req, ok := table.Match(tt.path)
			assert.Equal(t, tt.gated, ok)
			assert.Equal(t, tt.key, req.LimitKey)
		})
	}
}

func TestNewTable_Rejects(t *testing.T) {
	tests := map[string][]domain.PathRequirement{
		"relative prefix": {{PathPrefix: "reports", LimitKey: "k"}},
		"root prefix":     {{PathPrefix: "/", LimitKey: "k"}},
		"missing key":     {{PathPrefix: "/reports"}},
		"duplicate": {
			{PathPrefix: "/reports", LimitKey: "a"},
			{PathPrefix: "/reports/", LimitKey: "b"},
		},
		"negative": {{PathPrefix: "/x", LimitKey: "k", MinRequired: domain.Requirement{Count: -1}}},
	}

	for name, entries := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewTable(entries)
			assert.Error(t, err)
		})
	}
}

func TestParse(t *testing.T) {
	table, err := Parse([]byte(`
paths:
  - prefix: /social
    limitKey: maxSocialConnections
    minRequired: 3
  - prefix: /experiments
    limitKey: abTesting
    minRequired: true
`))
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())

	req, ok := table.Match("/social/facebook")
	require.True(t, ok)
	assert.Equal(t, domain.RequireAtLeast(3), req.MinRequired)

	req, ok = table.Match("/experiments")
	require.True(t, ok)
	assert.True(t, req.MinRequired.IsBoolean())
}

func TestParse_Rejects(t *testing.T) {
	tests := map[string]string{
		"false requirement":   "paths:\n  - prefix: /a\n    limitKey: k\n    minRequired: false\n",
		"zero requirement":    "paths:\n  - prefix: /a\n    limitKey: k\n    minRequired: 0\n",
		"string requirement":  "paths:\n  - prefix: /a\n    limitKey: k\n    minRequired: yes please\n",
		"missing requirement": "paths:\n  - prefix: /a\n    limitKey: k\n",
		"broken yaml":         "paths: [",
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestEntries_ReturnsCopy(t *testing.T) {
	table := Default()

	entries := table.Entries()
	entries[0].LimitKey = "tampered"

	for _, e := range table.Entries() {
		assert.NotEqual(t, "tampered", e.LimitKey)
	}
}
