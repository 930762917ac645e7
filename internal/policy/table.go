// Package policy holds the static table that maps request paths to the
// feature a caller's plan must include.
package policy

import (
	_ "embed"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/DukeRupert/tollgate/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed default_policy.yaml
var defaultPolicy []byte

// Table is an immutable set of path requirements, matched by longest prefix.
// Build it once at startup and share it; it is safe for concurrent use.
type Table struct {
	entries []domain.PathRequirement // longest prefix first
}

type policyFile struct {
	Paths []struct {
		Prefix      string    `yaml:"prefix"`
		LimitKey    string    `yaml:"limitKey"`
		MinRequired yaml.Node `yaml:"minRequired"`
	} `yaml:"paths"`
}

// NewTable validates entries and returns a Table.
func NewTable(entries []domain.PathRequirement) (*Table, error) {
	seen := make(map[string]bool, len(entries))
	sorted := make([]domain.PathRequirement, 0, len(entries))

	for _, e := range entries {
		prefix := normalizePrefix(e.PathPrefix)
		if prefix == "" {
			return nil, fmt.Errorf("policy: prefix %q must start with /", e.PathPrefix)
		}
		if prefix == "/" {
			return nil, fmt.Errorf("policy: gating the root path is not supported")
		}
		if e.LimitKey == "" {
			return nil, fmt.Errorf("policy: %s: limitKey is required", prefix)
		}
		if e.MinRequired.Count < 0 {
			return nil, fmt.Errorf("policy: %s: minRequired must be positive", prefix)
		}
		if seen[prefix] {
			return nil, fmt.Errorf("policy: duplicate prefix %s", prefix)
		}
		seen[prefix] = true

		e.PathPrefix = prefix
		sorted = append(sorted, e)
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].PathPrefix) > len(sorted[j].PathPrefix)
	})

	return &Table{entries: sorted}, nil
}

// Default returns the policy compiled into the binary.
func Default() *Table {
	t, err := Parse(defaultPolicy)
	if err != nil {
		panic(fmt.Sprintf("policy: embedded default is invalid: %v", err))
	}
	return t
}

// Load reads a policy file. An empty path returns the embedded default.
func Load(file string) (*Table, error) {
	if file == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read path policy: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML policy document.
func Parse(data []byte) (*Table, error) {
	var f policyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse path policy: %w", err)
	}

	entries := make([]domain.PathRequirement, 0, len(f.Paths))
	for _, p := range f.Paths {
		req, err := decodeRequirement(&p.MinRequired)
		if err != nil {
			return nil, fmt.Errorf("parse path policy: %s: %w", p.Prefix, err)
		}
		entries = append(entries, domain.PathRequirement{
			PathPrefix:  p.Prefix,
			LimitKey:    p.LimitKey,
			MinRequired: req,
		})
	}
	return NewTable(entries)
}

func decodeRequirement(node *yaml.Node) (domain.Requirement, error) {
	switch node.Tag {
	case "!!bool":
		var b bool
		if err := node.Decode(&b); err != nil {
			return domain.Requirement{}, err
		}
		if !b {
			return domain.Requirement{}, fmt.Errorf("minRequired: false gates nothing; remove the entry instead")
		}
		return domain.RequireEnabled(), nil
	case "!!int":
		var n int64
		if err := node.Decode(&n); err != nil {
			return domain.Requirement{}, err
		}
		if n <= 0 {
			return domain.Requirement{}, fmt.Errorf("minRequired must be a positive integer, got %d", n)
		}
		return domain.RequireAtLeast(n), nil
	case "":
		return domain.Requirement{}, fmt.Errorf("minRequired is required")
	}
	return domain.Requirement{}, fmt.Errorf("minRequired must be true or a positive integer, got %q", node.Value)
}

// Match returns the requirement with the longest prefix matching the path.
// Prefixes match whole path segments: /reports matches /reports and
// /reports/7 but not /reportsarchive. ok is false for ungated paths.
func (t *Table) Match(requestPath string) (domain.PathRequirement, bool) {
	p := cleanPath(requestPath)
	for _, e := range t.entries {
		if p == e.PathPrefix || strings.HasPrefix(p, e.PathPrefix+"/") {
			return e, true
		}
	}
	return domain.PathRequirement{}, false
}

// Entries returns a copy of the table, longest prefix first.
func (t *Table) Entries() []domain.PathRequirement {
	out := make([]domain.PathRequirement, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of gated prefixes.
func (t *Table) Len() int {
	return len(t.entries)
}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if !strings.HasPrefix(prefix, "/") {
		return ""
	}
	return path.Clean(prefix)
}

// cleanPath resolves dot segments so /public/../reports cannot dodge the gate.
func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}
