package core

import (
	"math/big"
	"strings"
	"time"
)

// MarketStatus is the finite state a Market occupies, per spec.md §3's
// partial order: Open → {Proposed, Cancelled}; Proposed → {Resolved,
// Disputed, Cancelled}; Disputed → {Resolved, Cancelled}.
type MarketStatus int

const (
	StatusOpen MarketStatus = iota
	StatusProposed
	StatusResolved
	StatusDisputed
	StatusCancelled
)

func (s MarketStatus) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusProposed:
		return "proposed"
	case StatusResolved:
		return "resolved"
	case StatusDisputed:
		return "disputed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// CanTransitionTo enforces the monotonic partial order from spec.md §3.
func (s MarketStatus) CanTransitionTo(next MarketStatus) bool {
	switch s {
	case StatusOpen:
		return next == StatusProposed || next == StatusCancelled
	case StatusProposed:
		return next == StatusResolved || next == StatusDisputed || next == StatusCancelled
	case StatusDisputed:
		return next == StatusResolved || next == StatusCancelled
	default:
		return false
	}
}

// NormalizeAddress lower-cases a chain address per spec.md §3's identifier
// discipline. Callers at every boundary (HTTP decode, chain gateway
// responses) must run addresses through this before storing or comparing.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// Market mirrors the on-chain market identified by its contract address.
type Market struct {
	Address          string
	Topic            string
	ThresholdPercent int
	StakingToken     string
	ParticipantCount int
	TotalStaked      *big.Int
	Status           MarketStatus
	CreatedAt        time.Time
	ProposedAt       *time.Time
	ResolvedAt       *time.Time
	LastSyncAt       time.Time
	CancelReason     *string
}

// Participant is a (market, user) pair mirrored from chain.
type Participant struct {
	Market      string
	User        string
	Stake       *big.Int
	Outcome     int
	HasAttested bool
}

// Proposal is a result proposed for a market.
type Proposal struct {
	ID               string
	Market           string
	Proposer         string
	Outcome          int
	DisputeUntil     time.Time
	EvidenceHash     string
	AttestationCount int
	IsDisputed       bool
	CreatedAt        time.Time
}

// Attestation is a typed-data signature over (market, outcome, nonce).
type Attestation struct {
	ID          string
	Market      string
	ProposalID  string
	Signer      string
	Outcome     int
	Nonce       *big.Int
	Signature   string
	SubmittedAt time.Time
	IsValid     bool
}

// FinalizationQueueEntry tracks one market under finalization consideration.
type FinalizationQueueEntry struct {
	Market          string
	SignatureCount  int
	EligibleCount   int
	ProposalOutcome int
	LastCheckedAt   time.Time
	AttemptedAt     *time.Time
	CompletedAt     *time.Time
	ThresholdMet    bool
	LastError       string
	Attempts        int
}

// Completed reports whether the queue entry has reached its terminal state.
func (e *FinalizationQueueEntry) Completed() bool { return e.CompletedAt != nil }

// SyncLogEntry is an append-only observability record.
type SyncLogEntry struct {
	ID         string
	Op         string
	Market     string
	Status     string
	Message    string
	DurationMs int64
	CreatedAt  time.Time
}

// User is an optional identity record created lazily on first reference.
type User struct {
	Address   string
	CreatedAt time.Time
}

// RequiredSignatures computes ceil(eligible*threshold/100), per spec.md §4.5
// and §8's boundary example (eligible=5, threshold=60 -> required=3).
func RequiredSignatures(eligible, thresholdPercent int) int {
	if eligible <= 0 {
		return 0
	}
	num := eligible * thresholdPercent
	return (num + 99) / 100
}
