package idhash

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strconv"
)

// hashFields hashes each field with an 8-byte length prefix so that content
// can never shift across field boundaries: ("a|b","c") and ("a","b|c")
// digest differently.
func hashFields(fields ...string) string {
	h := sha256.New()
	var prefix [8]byte
	for _, f := range fields {
		binary.BigEndian.PutUint64(prefix[:], uint64(len(f)))
		h.Write(prefix[:])
		h.Write([]byte(f))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ComputeVoteID computes a deterministic vote id: SHA256 over the
// length-prefixed fields (creator_id, curator_address, tx_hash).
// Returns hex-encoded hash (64 characters).
//
// The transaction hash makes the id unique per confirmed vote while keeping
// replays of the same confirmation idempotent: recording the same transaction
// twice yields the same id and trips the store's duplicate-key check.
func ComputeVoteID(creatorID, curatorAddress, txHash string) string {
	return hashFields(creatorID, curatorAddress, txHash)
}

// ComputeOpportunityID computes a deterministic opportunity id: SHA256 over
// the length-prefixed fields (company, title, created_at).
func ComputeOpportunityID(company, title string, createdAt int64) string {
	return hashFields(company, title, strconv.FormatInt(createdAt, 10))
}
