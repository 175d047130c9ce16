package cache

import (
	"time"

	"github.com/eldopolis/portal-core/types"
)

const (
	MaxTTL     = 24 * time.Hour
	DefaultTTL = time.Hour
)

// PolicyTable resolves the freshness policy for a content type. Unknown
// types fall back to a one-hour policy so a missing table row degrades to
// stale-ish behavior instead of uncacheable content.
type PolicyTable struct {
	policies map[types.ContentType]types.TypePolicy
}

func NewPolicyTable(policies map[types.ContentType]types.TypePolicy) *PolicyTable {
	table := &PolicyTable{
		policies: make(map[types.ContentType]types.TypePolicy, len(policies)),
	}

	for contentType, policy := range policies {
		if policy.TTL <= 0 {
			policy.TTL = DefaultTTL
		}
		if policy.TTL > MaxTTL {
			policy.TTL = MaxTTL
		}
		if policy.Version == "" {
			policy.Version = "1.0"
		}
		table.policies[contentType] = policy
	}

	return table
}

func (t *PolicyTable) Resolve(contentType types.ContentType) types.TypePolicy {
	if policy, exists := t.policies[contentType]; exists {
		return policy
	}
	return types.TypePolicy{TTL: DefaultTTL, Version: "1.0"}
}

// Valid reports whether an entry satisfies its type policy at the given
// instant: the version matches and the TTL has not elapsed.
func (t *PolicyTable) Valid(entry *types.CacheEntry, contentType types.ContentType, now time.Time) bool {
	policy := t.Resolve(contentType)
	if entry.Version != policy.Version {
		return false
	}
	return !entry.Expired(now)
}
