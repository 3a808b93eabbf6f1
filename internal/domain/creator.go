package domain

// Creator represents a voteable creator profile.
// Corresponds to the creators table in PostgreSQL.
//
// TotalVotes is an off-chain aggregate maintained exclusively by the
// reconciliation engine as a monotonic increase. It is a cache of
// SUM(votes.amount) for the creator and can always be rebuilt from the
// vote audit log.
type Creator struct {
	ID            string // PRIMARY KEY, deterministic hash of the wallet
	WalletAddress string // normalized, unique (one profile per wallet)
	Name          string
	Bio           string
	Category      string
	Skills        []string
	AITags        []string // advisory enrichment output, never used for gating
	NFTTokenID    *int64   // nullable until minted
	NFTMinted     bool
	TotalVotes    uint64
	CreatedAt     int64 // Unix seconds, immutable
	UpdatedAt     int64 // Unix seconds
}
