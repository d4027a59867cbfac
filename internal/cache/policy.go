package cache

import (
	"encoding/json"
	"os"
	"time"

	"minerva/pkg/errors"
)

// Policy maps a data type to its cache TTL.
type Policy map[string]time.Duration

// DefaultPolicy returns the built-in TTLs by data type.
func DefaultPolicy() Policy {
	return Policy{
		"quote":                1 * time.Minute,
		"profile":              7 * 24 * time.Hour,
		"metrics":              7 * 24 * time.Hour,
		"dividends":            7 * 24 * time.Hour,
		"splits":               7 * 24 * time.Hour,
		"balance_sheet":        90 * 24 * time.Hour,
		"cashflow":             90 * 24 * time.Hour,
		"income_stmt":          90 * 24 * time.Hour,
		"insider_transactions": 7 * 24 * time.Hour,
		"insider_sentiment":    7 * 24 * time.Hour,
		"company_news":         30 * time.Minute,
		"global_news":          30 * time.Minute,
		"search_news":          30 * time.Minute,
		"reddit":               30 * time.Minute,
	}
}

// TTLFor returns the TTL for a data type, defaulting to 30 minutes for
// types the policy does not name.
func (p Policy) TTLFor(dataType string) time.Duration {
	if ttl, ok := p[dataType]; ok {
		return ttl
	}
	return 30 * time.Minute
}

// LoadPolicy reads TTL overrides from a JSON file of the form
// {"quote": "30s", "company_news": "1h"} and merges them over the defaults.
// An empty path returns the defaults unchanged.
func LoadPolicy(path string) (Policy, error) {
	policy := DefaultPolicy()
	if path == "" {
		return policy, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read cache policy %s", path)
	}

	var overrides map[string]string
	if err := json.Unmarshal(data, &overrides); err != nil {
		return nil, errors.Wrap(err, "parse cache policy")
	}

	for dataType, raw := range overrides {
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "cache policy ttl for %s", dataType)
		}
		policy[dataType] = ttl
	}

	return policy, nil
}
