package domain

import "strings"

// ClaimInterval is the faucet cooldown in seconds.
const ClaimInterval int64 = 86400

// FaucetAmount is the fixed whole-token amount granted per claim.
const FaucetAmount uint64 = 100

// NormalizeAddress lowercases a 0x-prefixed wallet address so that
// comparisons and map keys are case-insensitive.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// AccountSnapshot is the cached view of an account's on-chain state.
// The ledger owns it; the reader refreshes it and nothing else writes it.
type AccountSnapshot struct {
	Address           string // normalized wallet address
	Balance           uint64 // whole tokens
	LastClaimAt       int64  // Unix seconds, 0 = never claimed
	CanClaim          bool
	CooldownRemaining int64 // seconds until next claim, 0 when CanClaim
	ObservedAt        int64 // Unix seconds of last successful refresh
	Stale             bool  // last refresh attempt failed, values are last-known
}

// ClaimEligibility is the derived claim-cooldown state.
type ClaimEligibility struct {
	CanClaim          bool
	CooldownRemaining int64 // seconds
}

// DeriveEligibility computes claim eligibility from the last claim timestamp.
// cooldownRemaining = max(0, interval - (now - lastClaimAt)); canClaim holds
// exactly when the remainder is zero.
func DeriveEligibility(now, lastClaimAt, interval int64) ClaimEligibility {
	if lastClaimAt == 0 {
		return ClaimEligibility{CanClaim: true}
	}
	remaining := interval - (now - lastClaimAt)
	if remaining <= 0 {
		return ClaimEligibility{CanClaim: true}
	}
	return ClaimEligibility{CooldownRemaining: remaining}
}
