// Package gate answers token-gated access questions for opportunities.
package gate

import "talentlink-dao/internal/domain"

// Decision explains one access check.
type Decision struct {
	Allowed   bool
	Votes     uint64 // curator's reputation at check time
	Required  uint64
	Shortfall uint64 // tokens still needed, 0 when allowed
}

// Check decides whether a holder with the given vote balance may access an
// opportunity. Access is a pure threshold: votes >= required. The check is
// idempotent and holds no state; callers re-check when balances change.
func Check(votes, required uint64) Decision {
	d := Decision{
		Votes:    votes,
		Required: required,
		Allowed:  votes >= required,
	}
	if !d.Allowed {
		d.Shortfall = required - votes
	}
	return d
}

// CheckOpportunity is Check against an opportunity's configured threshold.
func CheckOpportunity(votes uint64, o *domain.Opportunity) Decision {
	return Check(votes, o.RequiredTokens)
}
