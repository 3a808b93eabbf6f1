package domain

// Opportunity is a token-gated listing. Read-only from the core's
// perspective; only RequiredTokens participates in the access gate.
// Corresponds to the opportunities table in PostgreSQL.
type Opportunity struct {
	ID             string // PRIMARY KEY
	Title          string
	Description    string
	Company        string
	Category       string
	RequiredTokens uint64 // vote threshold for access
	Tags           []string
	ApplicationURL string
	CreatedAt      int64 // Unix seconds
}
