package store

import "testing"

func TestDecide(t *testing.T) {
	cases := []struct {
		name  string
		entry Entry
		want  Verdict
	}{
		{
			name:  "thin track record keeps",
			entry: Entry{Uses: 4, Successes: 4, Validated: true},
			want:  VerdictKeep,
		},
		{
			name:  "strong validated record promotes",
			entry: Entry{Uses: 5, Successes: 4, Failures: 1, Validated: true},
			want:  VerdictPromote,
		},
		{
			name:  "ratio exactly at threshold keeps",
			entry: Entry{Uses: 10, Successes: 7, Failures: 3, Validated: true},
			want:  VerdictKeep,
		},
		{
			name:  "ratio just above threshold promotes",
			entry: Entry{Uses: 10, Successes: 8, Failures: 2, Validated: true},
			want:  VerdictPromote,
		},
		{
			name:  "unvalidated never promotes",
			entry: Entry{Uses: 20, Successes: 20, Validated: false},
			want:  VerdictKeep,
		},
		{
			name:  "promoted with sunk ratio demotes",
			entry: Entry{Uses: 8, Successes: 4, Failures: 4, Validated: true, Promoted: true},
			want:  VerdictDemote,
		},
		{
			name:  "promoted at threshold demotes",
			entry: Entry{Uses: 10, Successes: 7, Failures: 3, Validated: true, Promoted: true},
			want:  VerdictDemote,
		},
		{
			name:  "promoted above threshold keeps",
			entry: Entry{Uses: 10, Successes: 9, Failures: 1, Validated: true, Promoted: true},
			want:  VerdictKeep,
		},
		{
			name:  "promoted but no longer validated demotes",
			entry: Entry{Uses: 6, Successes: 6, Validated: false, Promoted: true},
			want:  VerdictDemote,
		},
		{
			name:  "fresh entry keeps",
			entry: Entry{Uses: 1, Validated: true},
			want:  VerdictKeep,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Decide(tc.entry, DefaultThresholds()); got != tc.want {
				t.Fatalf("Decide(%+v) = %s, want %s", tc.entry, got, tc.want)
			}
		})
	}
}

func TestDecideHonorsCustomThresholds(t *testing.T) {
	strict := Thresholds{MinUses: 10, MinRatio: 0.9}
	entry := Entry{Uses: 9, Successes: 9, Validated: true}
	if got := Decide(entry, strict); got != VerdictKeep {
		t.Fatalf("expected keep below custom MinUses, got %s", got)
	}
	entry.Uses = 10
	entry.Successes = 10
	if got := Decide(entry, strict); got != VerdictPromote {
		t.Fatalf("expected promote at 10/10 with 0.9 threshold, got %s", got)
	}
}

func TestZeroThresholdsFallBackToDefaults(t *testing.T) {
	entry := Entry{Uses: 5, Successes: 4, Failures: 1, Validated: true}
	if got := Decide(entry, Thresholds{}); got != VerdictPromote {
		t.Fatalf("expected zero thresholds to behave like defaults, got %s", got)
	}
	entry = Entry{Uses: 4, Successes: 4, Validated: true}
	if got := Decide(entry, Thresholds{}); got != VerdictKeep {
		t.Fatalf("expected default MinUses floor to apply, got %s", got)
	}
}

func TestVerdictString(t *testing.T) {
	if VerdictKeep.String() != "keep" || VerdictPromote.String() != "promote" || VerdictDemote.String() != "demote" {
		t.Fatal("unexpected verdict labels")
	}
}
