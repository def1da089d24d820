package core

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// FinalizationService drains the finalization queue and submits the
// on-chain finalize transaction once a market's signature threshold is
// met, per spec.md §4.5. It also runs the two sweep checks that move
// proposals out of limbo: dispute windows that have closed, and proposals
// that have sat open longer than the maximum proposal age.
type FinalizationService struct {
	store          Store
	chain          *ChainGateway
	minGlob        int
	maxProposalAge time.Duration
	log            *zap.SugaredLogger
}

// NewFinalizationService wires a FinalizationService.
func NewFinalizationService(store Store, chain *ChainGateway, minGlobalThreshold int, maxProposalAge time.Duration, log *zap.SugaredLogger) *FinalizationService {
	return &FinalizationService{store: store, chain: chain, minGlob: minGlobalThreshold, maxProposalAge: maxProposalAge, log: log}
}

// IsReady reports whether a queue entry's recorded signature count meets the
// threshold computed from its recorded eligible count and thresholdPercent.
// Both counts are the values stored on the entry when it was last enqueued;
// participants and attestations are not recounted here.
func (f *FinalizationService) IsReady(entry FinalizationQueueEntry, thresholdPercent int) bool {
	required := requiredSignaturesWithFloor(entry.EligibleCount, thresholdPercent, f.minGlob)
	return entry.SignatureCount >= required
}

// ProcessQueue attempts to finalize every pending queue entry whose
// threshold is still met, submitting the finalize transaction and
// collecting the attesting signatures/signers for it.
func (f *FinalizationService) ProcessQueue(ctx context.Context) (finalized, failed int) {
	entries, err := f.store.ListFinalizationQueue(ctx, true, 100)
	if err != nil {
		f.log.Errorw("list finalization queue failed", "error", err)
		return 0, 0
	}

	for _, entry := range entries {
		start := time.Now()
		if err := f.processEntry(ctx, entry); err != nil {
			_ = f.store.LogSyncOperation(ctx, "finalize", entry.Market, "error", err.Error(), time.Since(start))
			failed++
			continue
		}
		_ = f.store.LogSyncOperation(ctx, "finalize", entry.Market, "ok", "", time.Since(start))
		finalized++
	}
	return finalized, failed
}

func (f *FinalizationService) processEntry(ctx context.Context, entry FinalizationQueueEntry) error {
	market, err := f.store.GetMarket(ctx, entry.Market)
	if err != nil {
		_ = f.store.MarkFinalizationAttempted(ctx, entry.Market, err.Error())
		return err
	}
	if !f.IsReady(entry, market.ThresholdPercent) {
		_ = f.store.TouchFinalizationEntry(ctx, entry.Market)
		return NewError(KindConflict, "threshold no longer met")
	}

	signatures, _, signers, err := f.store.GetAttestationsForFinalization(ctx, entry.Market, entry.ProposalOutcome)
	if err != nil {
		_ = f.store.MarkFinalizationAttempted(ctx, entry.Market, err.Error())
		return err
	}
	if len(signatures) == 0 {
		err := NewError(KindInternal, "no attestations available for a queued finalization")
		_ = f.store.MarkFinalizationAttempted(ctx, entry.Market, err.Error())
		return err
	}

	txHash, err := f.chain.FinalizeMarket(ctx, entry.Market, entry.ProposalOutcome, signers, signatures)
	if err != nil {
		_ = f.store.MarkFinalizationAttempted(ctx, entry.Market, err.Error())
		f.log.Errorw("finalize transaction failed", "market", entry.Market, "error", err)
		return err
	}

	if err := f.store.MarkFinalizationCompleted(ctx, entry.Market); err != nil {
		return err
	}
	f.log.Infow("market finalized", "market", entry.Market, "tx", txHash, "outcome", entry.ProposalOutcome)
	return nil
}

// CheckDisputeWindows moves every proposal whose dispute window has closed
// without dispute into the finalization queue, per spec.md §4.5's scheduled
// dispute-window sweep. Enqueueing is unconditional here — whether the
// proposal has actually met threshold is decided later by IsReady during
// ProcessQueue, so a market that expired its window short of threshold still
// shows up as pending on /health/queue rather than vanishing silently.
func (f *FinalizationService) CheckDisputeWindows(ctx context.Context) (enqueued int) {
	proposals, err := f.store.ListProposalsPastDisputeWindow(ctx, time.Now().UTC())
	if err != nil {
		f.log.Errorw("list expired dispute windows failed", "error", err)
		return 0
	}
	for _, p := range proposals {
		eligible, err := f.store.CountEligibleParticipants(ctx, p.Market, p.Outcome)
		if err != nil {
			continue
		}
		if err := f.store.EnqueueFinalization(ctx, p.Market, p.AttestationCount, eligible, p.Outcome); err != nil {
			continue
		}
		enqueued++
	}
	return enqueued
}

// CheckOldProposals handles proposals that have been open past
// maxProposalAge while their market is still Proposed. A proposal with at
// least the global minimum of attestations is put on the finalization queue
// (IsReady still decides during ProcessQueue); every other one is logged for
// operator attention and counted in the returned total — spec.md §4.5 stops
// short of auto-cancelling these, leaving that to a human decision.
func (f *FinalizationService) CheckOldProposals(ctx context.Context) (flagged int) {
	cutoff := time.Now().Add(-f.maxProposalAge).UTC()
	proposals, err := f.store.ListStaleOpenProposals(ctx, cutoff, 0)
	if err != nil {
		f.log.Errorw("list stale proposals failed", "error", err)
		return 0
	}
	for _, p := range proposals {
		if p.AttestationCount >= f.minGlob {
			eligible, err := f.store.CountEligibleParticipants(ctx, p.Market, p.Outcome)
			if err == nil && f.store.EnqueueFinalization(ctx, p.Market, p.AttestationCount, eligible, p.Outcome) == nil {
				continue
			}
		}
		f.log.Warnw("proposal has exceeded max age without finalizing",
			"market", p.Market, "proposal", p.ID, "age", time.Since(p.CreatedAt))
		flagged++
	}
	return flagged
}
