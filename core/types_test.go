package core

import "testing"

func TestMarketStatusCanTransitionTo(t *testing.T) {
	cases := []struct {
		from, to MarketStatus
		want     bool
	}{
		{StatusOpen, StatusProposed, true},
		{StatusOpen, StatusCancelled, true},
		{StatusOpen, StatusResolved, false},
		{StatusProposed, StatusResolved, true},
		{StatusProposed, StatusDisputed, true},
		{StatusProposed, StatusCancelled, true},
		{StatusProposed, StatusOpen, false},
		{StatusDisputed, StatusResolved, true},
		{StatusDisputed, StatusCancelled, true},
		{StatusDisputed, StatusProposed, false},
		{StatusResolved, StatusOpen, false},
		{StatusCancelled, StatusOpen, false},
	}
	for _, c := range cases {
		if got := c.from.CanTransitionTo(c.to); got != c.want {
			t.Errorf("%s -> %s: got %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestMarketStatusString(t *testing.T) {
	if StatusDisputed.String() != "disputed" {
		t.Errorf("got %q", StatusDisputed.String())
	}
	if MarketStatus(99).String() != "unknown" {
		t.Errorf("expected unknown for out-of-range status")
	}
}

func TestNormalizeAddress(t *testing.T) {
	got := NormalizeAddress("  0xABCDEF0123456789abcdef0123456789ABCDEF01  ")
	want := "0xabcdef0123456789abcdef0123456789abcdef01"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRequiredSignatures(t *testing.T) {
	cases := []struct {
		eligible, threshold, want int
	}{
		{5, 60, 3},
		{0, 60, 0},
		{-1, 60, 0},
		{1, 51, 1},
		{10, 100, 10},
		{3, 34, 2},
	}
	for _, c := range cases {
		if got := RequiredSignatures(c.eligible, c.threshold); got != c.want {
			t.Errorf("RequiredSignatures(%d,%d): got %d, want %d", c.eligible, c.threshold, got, c.want)
		}
	}
}

func TestRequiredSignaturesWithFloor(t *testing.T) {
	cases := []struct {
		eligible, threshold, minGlobal, want int
	}{
		{5, 60, 1, 3},
		{1, 51, 3, 3},
		{0, 60, 0, 1},
	}
	for _, c := range cases {
		if got := requiredSignaturesWithFloor(c.eligible, c.threshold, c.minGlobal); got != c.want {
			t.Errorf("requiredSignaturesWithFloor(%d,%d,%d): got %d, want %d", c.eligible, c.threshold, c.minGlobal, got, c.want)
		}
	}
}

func TestFinalizationQueueEntryCompleted(t *testing.T) {
	var e FinalizationQueueEntry
	if e.Completed() {
		t.Fatal("zero-value entry should not be completed")
	}
	now := e.LastCheckedAt
	e.CompletedAt = &now
	if !e.Completed() {
		t.Fatal("entry with CompletedAt set should be completed")
	}
}
