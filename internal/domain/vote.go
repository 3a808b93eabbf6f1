package domain

// Vote amount bounds, inclusive.
const (
	MinVoteAmount uint64 = 1
	MaxVoteAmount uint64 = 10
)

// Vote is an immutable audit record of a single confirmed vote.
// Corresponds to the votes table in PostgreSQL; append-only.
type Vote struct {
	ID              string // PRIMARY KEY, deterministic hash
	CreatorID       string // creators.id
	CuratorAddress  string // normalized wallet of the voter
	Amount          uint64 // [MinVoteAmount, MaxVoteAmount]
	TransactionHash string // confirmed on-chain vote operation
	CreatedAt       int64  // Unix seconds
}

// ValidVoteAmount reports whether a is within the allowed vote range.
func ValidVoteAmount(a uint64) bool {
	return a >= MinVoteAmount && a <= MaxVoteAmount
}
