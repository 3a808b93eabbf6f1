package idhash

import (
	"crypto/sha256"
	"encoding/hex"
)

// ComputeCreatorID computes a deterministic creator id from the normalized
// wallet address. One wallet, one profile.
func ComputeCreatorID(walletAddress string) string {
	hash := sha256.Sum256([]byte("creator|" + walletAddress))
	return hex.EncodeToString(hash[:])
}
