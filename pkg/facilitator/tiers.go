package facilitator

import (
	"fmt"
	"os"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

// Tier is one facilitator access tier: a minimum payment (in cents of the
// settlement asset), the identity/presentation budget it grants, and the
// credential's validity window.
type Tier struct {
	Tier            int    `yaml:"tier"`
	MinAmountCents  int64  `yaml:"min_amount_cents"`
	PriceUSDC       string `yaml:"price_usdc"`
	IdentityLimit   int    `yaml:"identity_limit"`
	DurationSeconds int64  `yaml:"duration_seconds"`
}

// tierFile is the on-disk shape of a tier table.
type tierFile struct {
	Tiers []Tier `yaml:"tiers"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// substituteEnvVars replaces ${VAR_NAME} and ${VAR_NAME:-default} references
// before parsing, the same convention the rest of this project's config
// loaders use for env-templated files.
func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultValue := ""
		if len(groups) >= 4 {
			defaultValue = groups[3]
		}
		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// LoadTiersFromFile reads a YAML tier table and returns it sorted descending
// by MinAmountCents, the order Settle's tier-selection scan expects.
func LoadTiersFromFile(path string) ([]Tier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("facilitator: read tiers file %s: %w", path, err)
	}
	expanded := substituteEnvVars(string(data))

	var f tierFile
	if err := yaml.Unmarshal([]byte(expanded), &f); err != nil {
		return nil, fmt.Errorf("facilitator: parse tiers file %s: %w", path, err)
	}
	if len(f.Tiers) == 0 {
		return nil, fmt.Errorf("facilitator: tiers file %s defines no tiers", path)
	}

	sort.Slice(f.Tiers, func(i, j int) bool {
		return f.Tiers[i].MinAmountCents > f.Tiers[j].MinAmountCents
	})
	return f.Tiers, nil
}

// DefaultTiers is used when no tiers file is configured.
func DefaultTiers() []Tier {
	return []Tier{
		{Tier: 2, MinAmountCents: 1000, PriceUSDC: "10.00", IdentityLimit: 1000, DurationSeconds: 30 * 24 * 3600},
		{Tier: 1, MinAmountCents: 100, PriceUSDC: "1.00", IdentityLimit: 100, DurationSeconds: 7 * 24 * 3600},
		{Tier: 0, MinAmountCents: 1, PriceUSDC: "0.01", IdentityLimit: 10, DurationSeconds: 24 * 3600},
	}
}
