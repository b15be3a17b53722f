package model

import "testing"

func TestTierForConfidence(t *testing.T) {
	tests := []struct {
		name       string
		want       MatchTier
		confidence float64
	}{
		{name: "perfect", confidence: 1.0, want: TierExact},
		{name: "exact boundary", confidence: 0.95, want: TierExact},
		{name: "just below exact", confidence: 0.94, want: TierProbable},
		{name: "probable boundary", confidence: 0.8, want: TierProbable},
		{name: "possible", confidence: 0.6, want: TierPossible},
		{name: "floor", confidence: 0.3, want: TierPossible},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TierForConfidence(tt.confidence); got != tt.want {
				t.Errorf("TierForConfidence(%v) = %s, want %s", tt.confidence, got, tt.want)
			}
		})
	}
}

func TestMatchStatusValid(t *testing.T) {
	for _, s := range []MatchStatus{StatusPending, StatusConfirmed, StatusRejected} {
		if !s.Valid() {
			t.Errorf("%s should be valid", s)
		}
	}
	if MatchStatus("MAYBE").Valid() {
		t.Error("unknown status should be invalid")
	}
}
