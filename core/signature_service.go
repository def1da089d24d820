package core

import (
	"context"
	"math/big"

	"go.uber.org/zap"
)

// SignatureService implements the submit-attestation algorithm from
// spec.md §4.3: validate shape, verify the EIP-712 signature, check
// participation and outcome agreement, persist the attestation, and hand
// off to finalization once threshold is met.
type SignatureService struct {
	store   Store
	chain   *ChainGateway
	sync    *SyncService
	minGlob int
	log     *zap.SugaredLogger
}

// NewSignatureService wires a SignatureService, grounded on the teacher's
// plain constructor-injection style (no DI framework, see
// core/escrow.go's NewEscrowManager).
func NewSignatureService(store Store, chain *ChainGateway, sync *SyncService, minGlobalThreshold int, log *zap.SugaredLogger) *SignatureService {
	return &SignatureService{store: store, chain: chain, sync: sync, minGlob: minGlobalThreshold, log: log}
}

// Submit runs the nine-step attestation pipeline:
//  1. validate shapes (delegated to the caller via core/validate.go)
//  2. load the market, syncing it from chain first if the Store has never
//     seen it, and confirm it is Proposed
//  3. load the active proposal and confirm outcome agreement
//  4. confirm signer is a participant whose own recorded outcome matches
//  5. verify the EIP-712 signature recovers to signer
//  6. persist the attestation (the (market,signer,nonce) unique index
//     rejects replays)
//  7. recompute the valid-attestation count for this outcome
//  8. update the proposal's cached attestation_count
//  9. if count has crossed RequiredSignatures, enqueue finalization
func (s *SignatureService) Submit(ctx context.Context, market, signer string, outcome int, nonce *big.Int, signatureHex string) (*Attestation, error) {
	market = NormalizeAddress(market)
	signer = NormalizeAddress(signer)

	m, err := s.store.GetMarket(ctx, market)
	if err != nil {
		coreErr, ok := AsError(err)
		if !ok || coreErr.Kind != KindNotFound {
			return nil, err
		}
		if syncErr := s.sync.SyncMarket(ctx, market); syncErr != nil {
			return nil, syncErr
		}
		m, err = s.store.GetMarket(ctx, market)
		if err != nil {
			return nil, err
		}
	}
	if m.Status != StatusProposed {
		return nil, NewError(KindConflict, "market has no proposal open for attestation")
	}

	proposal, err := s.store.GetActiveProposal(ctx, market)
	if err != nil {
		return nil, err
	}
	if proposal.Outcome != outcome {
		return nil, NewError(KindOutcomeMismatch, "outcome does not match the active proposal")
	}

	participant, err := s.store.GetParticipant(ctx, market, signer)
	if err != nil {
		return nil, err
	}
	if participant.Outcome != outcome {
		return nil, NewError(KindOutcomeMismatch, "signer's recorded outcome does not match the attestation")
	}

	ok, err := s.chain.VerifyAttestation(market, outcome, nonce, signatureHex, signer)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, NewError(KindSignatureInvalid, "signature does not recover to the claimed signer")
	}

	attestation, err := s.store.CreateAttestation(ctx, Attestation{
		Market:     market,
		ProposalID: proposal.ID,
		Signer:     signer,
		Outcome:    outcome,
		Nonce:      nonce,
		Signature:  signatureHex,
	})
	if err != nil {
		return nil, err
	}

	count, err := s.store.CountValidAttestations(ctx, market, outcome)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateProposalAttestationCount(ctx, proposal.ID, count); err != nil {
		return nil, err
	}

	eligible, err := s.store.CountEligibleParticipants(ctx, market, outcome)
	if err != nil {
		return nil, err
	}
	required := requiredSignaturesWithFloor(eligible, m.ThresholdPercent, s.minGlob)

	s.log.Infow("attestation recorded",
		"market", market, "signer", signer, "outcome", outcome,
		"count", count, "required", required)

	if count >= required {
		if err := s.store.EnqueueFinalization(ctx, market, count, eligible, outcome); err != nil {
			return nil, err
		}
		s.log.Infow("finalization threshold reached", "market", market, "count", count, "required", required)
	}

	return attestation, nil
}

// requiredSignaturesWithFloor applies spec.md §4.5/§8's floor: the
// percentage-derived requirement is clamped up to at least minGlobal, and
// to at least 1 so a threshold is never satisfied by zero signatures.
func requiredSignaturesWithFloor(eligible, thresholdPercent, minGlobal int) int {
	required := RequiredSignatures(eligible, thresholdPercent)
	if required < minGlobal {
		required = minGlobal
	}
	if required < 1 {
		required = 1
	}
	return required
}

// GetAttestations returns every valid attestation recorded for a market,
// optionally filtered to a single outcome.
func (s *SignatureService) GetAttestations(ctx context.Context, market string, outcome *int) ([]Attestation, error) {
	return s.store.GetAttestations(ctx, NormalizeAddress(market), outcome)
}
