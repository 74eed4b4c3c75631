package ticket

import "testing"

func TestNextFromResponses(t *testing.T) {
	tests := []struct {
		name     string
		current  Status
		expected int
		received int
		want     Status
	}{
		{"no responses leaves status", StatusSubmitted, 3, 0, StatusSubmitted},
		{"partial responses move to in progress", StatusSubmitted, 3, 1, StatusInProgress},
		{"partial responses keep in progress", StatusInProgress, 3, 2, StatusInProgress},
		{"all responses move to responses in", StatusInProgress, 3, 3, StatusResponsesIn},
		{"all responses straight from submitted", StatusSubmitted, 2, 2, StatusResponsesIn},
		{"single member completes immediately", StatusSubmitted, 1, 1, StatusResponsesIn},
		{"responses in never regresses to in progress", StatusResponsesIn, 4, 3, StatusResponsesIn},
		{"ready to dig absorbs", StatusReadyToDig, 3, 3, StatusReadyToDig},
		{"cancelled absorbs", StatusCancelled, 3, 3, StatusCancelled},
		{"expired absorbs", StatusExpired, 3, 1, StatusExpired},
		{"legacy empty list completes on first response", StatusSubmitted, 0, 1, StatusResponsesIn},
		{"legacy empty list leaves other statuses", StatusDraft, 0, 1, StatusDraft},
		{"legacy empty list no responses", StatusSubmitted, 0, 0, StatusSubmitted},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := NextFromResponses(tc.current, tc.expected, tc.received); got != tc.want {
				t.Errorf("NextFromResponses(%s, %d, %d) = %s, want %s",
					tc.current, tc.expected, tc.received, got, tc.want)
			}
		})
	}
}

func TestNextFromResponses_MonotonicSequence(t *testing.T) {
	// Walk a five-member ticket through every arrival count and check the
	// status never moves backwards.
	const expected = 5
	current := StatusSubmitted
	prevRank := statusRank[current]
	for received := 0; received <= expected; received++ {
		current = NextFromResponses(current, expected, received)
		if rank := statusRank[current]; rank < prevRank {
			t.Fatalf("status regressed to %s at received=%d", current, received)
		} else {
			prevRank = rank
		}
	}
	if current != StatusResponsesIn {
		t.Errorf("final status = %s, want %s", current, StatusResponsesIn)
	}
}

func TestStatusTerminal(t *testing.T) {
	for _, s := range []Status{StatusReadyToDig, StatusCancelled, StatusExpired} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []Status{StatusDraft, StatusValidPendingConfirm, StatusReady, StatusSubmitted, StatusInProgress, StatusResponsesIn} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestStatusValid(t *testing.T) {
	if Status("open").Valid() {
		t.Error("unknown status reported valid")
	}
	if !StatusCancelled.Valid() || !StatusDraft.Valid() {
		t.Error("known status reported invalid")
	}
}
