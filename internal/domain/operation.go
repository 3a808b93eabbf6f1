package domain

// OpKind identifies a state-changing ledger operation.
type OpKind string

const (
	OpClaim   OpKind = "CLAIM"
	OpApprove OpKind = "APPROVE"
	OpVote    OpKind = "VOTE"
	OpMint    OpKind = "MINT"
)

// OpStatus is the lifecycle state of a submitted operation.
// Transitions: Submitted -> Pending -> {Confirmed | Failed}.
type OpStatus string

const (
	OpSubmitted OpStatus = "SUBMITTED"
	OpPending   OpStatus = "PENDING"
	OpConfirmed OpStatus = "CONFIRMED"
	OpFailed    OpStatus = "FAILED"
)

// Terminal reports whether the status is final.
func (s OpStatus) Terminal() bool {
	return s == OpConfirmed || s == OpFailed
}

// FailReason classifies why an operation or flow failed.
type FailReason string

const (
	FailNone           FailReason = ""
	FailValidation     FailReason = "VALIDATION_ERROR"
	FailSignerRejected FailReason = "SIGNER_REJECTED"
	FailInsufficient   FailReason = "INSUFFICIENT_FUNDS"
	FailNetwork        FailReason = "NETWORK_ERROR"
	FailReconciliation FailReason = "RECONCILIATION_ERROR"
)

// StatusUpdate is one transition observed for a pending operation.
type StatusUpdate struct {
	Status  OpStatus
	Reason  FailReason // set only when Status == OpFailed
	Err     error      // underlying cause, when any
	TokenID int64      // minted NFT id from the receipt, OpMint confirmations only (0 = not observed)
}

// PendingOperation is a transient in-flight claim/approve/vote. It lives in
// process memory only: an interrupted operation is re-derived from ledger
// state on restart, never resumed from here.
type PendingOperation struct {
	Kind        OpKind
	From        string // normalized sender address
	Hash        string // tx hash once assigned by the ledger
	SubmittedAt int64  // Unix seconds

	// Updates yields status transitions in order and is closed after a
	// terminal one. Callers must not infer success from anything but an
	// explicit OpConfirmed update.
	Updates <-chan StatusUpdate
}

// Await blocks until a terminal update arrives and returns it. A closed
// channel without a terminal update is reported as a network failure.
func (p *PendingOperation) Await() StatusUpdate {
	last := StatusUpdate{Status: OpFailed, Reason: FailNetwork}
	for u := range p.Updates {
		last = u
		if u.Status.Terminal() {
			return u
		}
	}
	if !last.Status.Terminal() {
		last = StatusUpdate{Status: OpFailed, Reason: FailNetwork}
	}
	return last
}
