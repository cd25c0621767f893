package engine

import "strings"

// PolicyResolver picks the remote policy a detector is enforced under.
//
// Resolution order for a detector id:
//  1. environment variable POLICY_ID_<ID> (upper-cased), via Lookup
//  2. Overrides[id]
//  3. Default
//
// The placeholder value "your_<id>_policy_id_here" from sample env files
// is treated as unset.
type PolicyResolver struct {
	Default   string
	Overrides map[string]string
	Lookup    func(key string) (string, bool) // nil disables environment lookups
}

// PolicyFor returns the policy id for detectorID.
func (p *PolicyResolver) PolicyFor(detectorID string) string {
	placeholder := "your_" + detectorID + "_policy_id_here"
	usable := func(v string) bool {
		return v != "" && v != placeholder
	}

	if p.Lookup != nil {
		if v, ok := p.Lookup(PolicyEnvKey(detectorID)); ok && usable(v) {
			return v
		}
	}
	if v := p.Overrides[detectorID]; usable(v) {
		return v
	}
	return p.Default
}

// PolicyEnvKey returns the environment variable consulted for detectorID.
func PolicyEnvKey(detectorID string) string {
	return "POLICY_ID_" + strings.ToUpper(detectorID)
}
