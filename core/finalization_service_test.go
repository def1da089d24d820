package core

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func TestFinalizationServiceIsReady(t *testing.T) {
	f := NewFinalizationService(newFakeStore(), nil, 3, 24*time.Hour, testLogger())

	entry := FinalizationQueueEntry{EligibleCount: 5, SignatureCount: 3}
	if !f.IsReady(entry, 60) {
		t.Fatal("expected 3/5 at 60% threshold to be ready")
	}

	entry.SignatureCount = 2
	if f.IsReady(entry, 60) {
		t.Fatal("expected 2/5 at 60% threshold to not be ready")
	}

	// minGlobal floor of 3 keeps a tiny market from finalizing on 1 signature
	// even if its percentage threshold would technically be met.
	tiny := FinalizationQueueEntry{EligibleCount: 1, SignatureCount: 1}
	if f.IsReady(tiny, 60) {
		t.Fatal("expected minGlobal floor of 3 to block a 1-signature market")
	}
}

func TestFinalizationServiceCheckDisputeWindows(t *testing.T) {
	store := newFakeStore()
	store.markets["0xmarket"] = Market{Address: "0xmarket", ThresholdPercent: 60}
	store.eligibleByMarket["0xmarket"] = 5
	store.disputeWindowExpired = []Proposal{
		{ID: "p1", Market: "0xmarket", Outcome: 1, AttestationCount: 3},
	}

	f := NewFinalizationService(store, nil, 1, 24*time.Hour, testLogger())
	enqueued := f.CheckDisputeWindows(context.Background())

	if enqueued != 1 {
		t.Fatalf("expected 1 enqueued, got %d", enqueued)
	}
	if len(store.enqueued) != 1 || store.enqueued[0] != "0xmarket" {
		t.Fatalf("expected 0xmarket enqueued, got %v", store.enqueued)
	}
}

func TestFinalizationServiceCheckDisputeWindowsEnqueuesBelowThreshold(t *testing.T) {
	store := newFakeStore()
	store.markets["0xmarket"] = Market{Address: "0xmarket", ThresholdPercent: 60}
	store.eligibleByMarket["0xmarket"] = 5
	store.disputeWindowExpired = []Proposal{
		{ID: "p1", Market: "0xmarket", Outcome: 1, AttestationCount: 1},
	}

	f := NewFinalizationService(store, nil, 1, 24*time.Hour, testLogger())
	enqueued := f.CheckDisputeWindows(context.Background())

	// A closed dispute window always moves the proposal onto the queue;
	// whether it is actually ready to finalize is IsReady's job during
	// ProcessQueue, not this sweep's.
	if enqueued != 1 {
		t.Fatalf("expected 1 enqueued even though attestations are below threshold, got %d", enqueued)
	}
	entry, err := store.GetFinalizationEntry(context.Background(), "0xmarket")
	if err != nil {
		t.Fatalf("expected a queue entry for 0xmarket: %v", err)
	}
	if f.IsReady(*entry, 60) {
		t.Fatal("expected the queued entry to not be ready given 1/5 attestations")
	}
}

func TestFinalizationServiceCheckOldProposals(t *testing.T) {
	store := newFakeStore()
	store.staleOpenProposals = []Proposal{
		{ID: "p1", Market: "0xmarket", CreatedAt: time.Now().Add(-48 * time.Hour)},
		{ID: "p2", Market: "0xother", CreatedAt: time.Now().Add(-48 * time.Hour)},
	}

	f := NewFinalizationService(store, nil, 1, 24*time.Hour, testLogger())
	flagged := f.CheckOldProposals(context.Background())

	if flagged != 2 {
		t.Fatalf("expected 2 flagged, got %d", flagged)
	}
}
