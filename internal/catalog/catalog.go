// Package catalog maps subscription tiers to feature limits.
//
// The catalog is data, not code: it is parsed from YAML once at startup and
// never mutated afterwards. Unknown tiers resolve to an empty plan so that a
// legacy or misspelled tier can never grant more than intended.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/DukeRupert/tollgate/internal/domain"
	"gopkg.in/yaml.v3"
)

// DefaultTier is the tier name reported for principals that resolve to the
// restrictive default plan.
const DefaultTier = "none"

//go:embed default_catalog.yaml
var defaultCatalog []byte

// Catalog is an immutable tier -> plan lookup.
type Catalog struct {
	plans   map[string]domain.Plan
	aliases map[string]string
}

type catalogFile struct {
	Plans   map[string]map[string]yaml.Node `yaml:"plans"`
	Aliases map[string]string               `yaml:"aliases"`
}

// Default returns the catalog compiled into the binary.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded default is invalid: %v", err))
	}
	return c
}

// Load reads a catalog file. An empty path returns the embedded default.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse plan catalog: %w", err)
	}
	if len(f.Plans) == 0 {
		return nil, fmt.Errorf("parse plan catalog: no plans defined")
	}

	plans := make(map[string]domain.Plan, len(f.Plans))
	for tier, limits := range f.Plans {
		tier = strings.TrimSpace(tier)
		if tier == "" || tier == DefaultTier {
			return nil, fmt.Errorf("parse plan catalog: invalid tier name %q", tier)
		}
		plan := domain.Plan{TierID: tier, Limits: make(map[string]domain.FeatureLimit, len(limits))}
		for key, node := range limits {
			l, err := decodeLimit(&node)
			if err != nil {
				return nil, fmt.Errorf("parse plan catalog: %s.%s: %w", tier, key, err)
			}
			plan.Limits[key] = l
		}
		plans[tier] = plan
	}

	c := &Catalog{plans: plans, aliases: map[string]string{}}
	for alias, tier := range f.Aliases {
		if err := c.addAlias(alias, tier); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// decodeLimit turns a scalar YAML node into a FeatureLimit.
func decodeLimit(node *yaml.Node) (domain.FeatureLimit, error) {
	if node.Kind != yaml.ScalarNode {
		return domain.FeatureLimit{}, fmt.Errorf("limit must be a scalar")
	}
	switch node.Tag {
	case "!!bool":
		var b bool
		if err := node.Decode(&b); err != nil {
			return domain.FeatureLimit{}, err
		}
		return domain.Flag(b), nil
	case "!!int":
		var n int64
		if err := node.Decode(&n); err != nil {
			return domain.FeatureLimit{}, err
		}
		if n < 0 {
			return domain.FeatureLimit{}, fmt.Errorf("cap must be non-negative, got %d", n)
		}
		return domain.Cap(n), nil
	case "!!str":
		if strings.EqualFold(node.Value, "unlimited") {
			return domain.Unlimited(), nil
		}
	}
	return domain.FeatureLimit{}, fmt.Errorf("unsupported limit value %q", node.Value)
}

// WithAliases returns a copy of the catalog that also resolves the given
// billing price ids to tiers. Every alias must name a known tier.
func (c *Catalog) WithAliases(aliases map[string]string) (*Catalog, error) {
	next := &Catalog{plans: c.plans, aliases: make(map[string]string, len(c.aliases)+len(aliases))}
	for k, v := range c.aliases {
		next.aliases[k] = v
	}
	for alias, tier := range aliases {
		if err := next.addAlias(alias, tier); err != nil {
			return nil, err
		}
	}
	return next, nil
}

func (c *Catalog) addAlias(alias, tier string) error {
	if _, ok := c.plans[tier]; !ok {
		return fmt.Errorf("plan catalog: alias %q points at unknown tier %q", alias, tier)
	}
	c.aliases[alias] = tier
	return nil
}

// Lookup returns the plan for a tier id or billing price id. Unknown values
// resolve to the restrictive default plan.
func (c *Catalog) Lookup(tierID string) domain.Plan {
	tierID = strings.TrimSpace(tierID)
	if p, ok := c.plans[tierID]; ok {
		return p
	}
	if tier, ok := c.aliases[tierID]; ok {
		return c.plans[tier]
	}
	return Restrictive()
}

// Resolve returns the plan a subscription currently grants. Past-due and
// canceled subscriptions fall back to the restrictive plan.
func (c *Catalog) Resolve(sub domain.SubscriptionRecord) domain.Plan {
	if !sub.GrantsTier() {
		return Restrictive()
	}
	return c.Lookup(sub.TierID)
}

// Tiers returns the configured tier names in sorted order.
func (c *Catalog) Tiers() []string {
	tiers := make([]string, 0, len(c.plans))
	for t := range c.plans {
		tiers = append(tiers, t)
	}
	sort.Strings(tiers)
	return tiers
}

// Restrictive is the plan with no features enabled and zero caps.
func Restrictive() domain.Plan {
	return domain.Plan{TierID: DefaultTier}
}
