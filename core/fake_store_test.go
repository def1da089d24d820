package core

import (
	"context"
	"math/big"
	"time"
)

// fakeStore is a hand-written in-memory Store, grounded on the teacher's
// tests/fault_tolerance_test.go convention of writing small fakes instead of
// reaching for a mocking framework. It implements only enough behavior to
// exercise the service-layer logic under test.
type fakeStore struct {
	markets               map[string]Market
	participants          map[string]Participant
	proposals             map[string]Proposal
	queue                 map[string]FinalizationQueueEntry
	disputeWindowExpired  []Proposal
	staleOpenProposals    []Proposal
	enqueued              []string
	markedDisputed        []string
	touchedEntries        []string
	attemptedEntries      []string
	completedEntries      []string
	eligibleByMarket      map[string]int
	attestationsByMarket  map[string][][]byte
	signersByMarket       map[string][]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		markets:              make(map[string]Market),
		participants:         make(map[string]Participant),
		proposals:            make(map[string]Proposal),
		queue:                make(map[string]FinalizationQueueEntry),
		eligibleByMarket:     make(map[string]int),
		attestationsByMarket: make(map[string][][]byte),
		signersByMarket:      make(map[string][]string),
	}
}

func (f *fakeStore) Migrate(ctx context.Context) error { return nil }

func (f *fakeStore) UpsertMarket(ctx context.Context, m Market) error {
	f.markets[m.Address] = m
	return nil
}

func (f *fakeStore) GetMarket(ctx context.Context, address string) (*Market, error) {
	m, ok := f.markets[address]
	if !ok {
		return nil, NewError(KindNotFound, "market not found")
	}
	return &m, nil
}

func (f *fakeStore) ListMarkets(ctx context.Context, status *MarketStatus, limit, offset int) ([]Market, error) {
	var out []Market
	for _, m := range f.markets {
		if status == nil || m.Status == *status {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) ListAllMarketAddresses(ctx context.Context) ([]string, error) {
	var out []string
	for addr := range f.markets {
		out = append(out, addr)
	}
	return out, nil
}

func (f *fakeStore) ListStaleMarkets(ctx context.Context, olderThan time.Time) ([]string, error) {
	var out []string
	for addr, m := range f.markets {
		if m.LastSyncAt.Before(olderThan) {
			out = append(out, addr)
		}
	}
	return out, nil
}

func (f *fakeStore) CountMarketsByStatus(ctx context.Context) (map[MarketStatus]int, error) {
	counts := make(map[MarketStatus]int)
	for _, m := range f.markets {
		counts[m.Status]++
	}
	return counts, nil
}

func participantKey(market, user string) string { return market + "|" + user }

func (f *fakeStore) UpsertParticipant(ctx context.Context, market, user string, stake *big.Int, outcome int, hasAttested bool) error {
	f.participants[participantKey(market, user)] = Participant{
		Market: market, User: user, Stake: stake, Outcome: outcome, HasAttested: hasAttested,
	}
	return nil
}

func (f *fakeStore) GetParticipant(ctx context.Context, market, user string) (*Participant, error) {
	p, ok := f.participants[participantKey(market, user)]
	if !ok {
		return nil, NewError(KindNotFound, "participant not found")
	}
	return &p, nil
}

func (f *fakeStore) ListParticipants(ctx context.Context, market string) ([]Participant, error) {
	var out []Participant
	for _, p := range f.participants {
		if p.Market == market {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) CountEligibleParticipants(ctx context.Context, market string, outcome int) (int, error) {
	return f.eligibleByMarket[market], nil
}

func (f *fakeStore) CountParticipants(ctx context.Context) (int, error) {
	return len(f.participants), nil
}

func (f *fakeStore) CreateProposal(ctx context.Context, p Proposal) (*Proposal, error) {
	for _, existing := range f.proposals {
		if existing.Market == p.Market && !existing.IsDisputed {
			return nil, NewError(KindConflict, "an active proposal already exists")
		}
	}
	f.proposals[p.ID] = p
	return &p, nil
}

func (f *fakeStore) GetActiveProposal(ctx context.Context, market string) (*Proposal, error) {
	for _, p := range f.proposals {
		if p.Market == market && !p.IsDisputed {
			return &p, nil
		}
	}
	return nil, NewError(KindNoActiveProposal, "no active proposal")
}

func (f *fakeStore) MarkProposalDisputed(ctx context.Context, market string) error {
	f.markedDisputed = append(f.markedDisputed, market)
	return nil
}

func (f *fakeStore) UpdateProposalAttestationCount(ctx context.Context, proposalID string, count int) error {
	p, ok := f.proposals[proposalID]
	if !ok {
		return NewError(KindNotFound, "proposal not found")
	}
	p.AttestationCount = count
	f.proposals[proposalID] = p
	return nil
}

func (f *fakeStore) ListProposalsPastDisputeWindow(ctx context.Context, now time.Time) ([]Proposal, error) {
	return f.disputeWindowExpired, nil
}

func (f *fakeStore) ListStaleOpenProposals(ctx context.Context, olderThan time.Time, minAttestations int) ([]Proposal, error) {
	return f.staleOpenProposals, nil
}

func (f *fakeStore) CreateAttestation(ctx context.Context, a Attestation) (*Attestation, error) {
	return &a, nil
}

func (f *fakeStore) CountValidAttestations(ctx context.Context, market string, outcome int) (int, error) {
	return len(f.attestationsByMarket[market]), nil
}

func (f *fakeStore) CountAttestations(ctx context.Context) (int, error) {
	total := 0
	for _, s := range f.attestationsByMarket {
		total += len(s)
	}
	return total, nil
}

func (f *fakeStore) GetAttestations(ctx context.Context, market string, outcome *int) ([]Attestation, error) {
	return nil, nil
}

func (f *fakeStore) GetAttestationsForFinalization(ctx context.Context, market string, outcome int) ([][]byte, []*big.Int, []string, error) {
	sigs := f.attestationsByMarket[market]
	nonces := make([]*big.Int, len(sigs))
	for i := range nonces {
		nonces[i] = big.NewInt(int64(i))
	}
	return sigs, nonces, f.signersByMarket[market], nil
}

func (f *fakeStore) DeleteAttestations(ctx context.Context, market string) error {
	delete(f.attestationsByMarket, market)
	return nil
}

func (f *fakeStore) EnqueueFinalization(ctx context.Context, market string, signatureCount, eligibleCount, proposalOutcome int) error {
	f.enqueued = append(f.enqueued, market)
	f.queue[market] = FinalizationQueueEntry{
		Market: market, SignatureCount: signatureCount, EligibleCount: eligibleCount, ProposalOutcome: proposalOutcome,
	}
	return nil
}

func (f *fakeStore) GetFinalizationEntry(ctx context.Context, market string) (*FinalizationQueueEntry, error) {
	e, ok := f.queue[market]
	if !ok {
		return nil, NewError(KindNotFound, "queue entry not found")
	}
	return &e, nil
}

func (f *fakeStore) ListFinalizationQueue(ctx context.Context, onlyPending bool, limit int) ([]FinalizationQueueEntry, error) {
	var out []FinalizationQueueEntry
	for _, e := range f.queue {
		if onlyPending && e.Completed() {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeStore) TouchFinalizationEntry(ctx context.Context, market string) error {
	f.touchedEntries = append(f.touchedEntries, market)
	return nil
}

func (f *fakeStore) MarkFinalizationAttempted(ctx context.Context, market, errMsg string) error {
	f.attemptedEntries = append(f.attemptedEntries, market)
	return nil
}

func (f *fakeStore) MarkFinalizationCompleted(ctx context.Context, market string) error {
	f.completedEntries = append(f.completedEntries, market)
	e := f.queue[market]
	now := time.Now()
	e.CompletedAt = &now
	f.queue[market] = e
	return nil
}

func (f *fakeStore) LogSyncOperation(ctx context.Context, op, market, status, message string, duration time.Duration) error {
	return nil
}

func (f *fakeStore) ListRecentSyncLogs(ctx context.Context, limit int) ([]SyncLogEntry, error) {
	return nil, nil
}

func (f *fakeStore) DeleteOldSyncLogs(ctx context.Context, olderThan time.Time) (int64, error) {
	return 0, nil
}
