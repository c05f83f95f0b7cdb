package store

// Thresholds tune the promotion gate. Zero values fall back to the
// defaults, so a partially filled config never disables the gate.
type Thresholds struct {
	MinUses  int
	MinRatio float64
}

const (
	defaultMinUses  = 5
	defaultMinRatio = 0.70
)

func DefaultThresholds() Thresholds {
	return Thresholds{MinUses: defaultMinUses, MinRatio: defaultMinRatio}
}

func (t Thresholds) normalized() Thresholds {
	if t.MinUses <= 0 {
		t.MinUses = defaultMinUses
	}
	if t.MinRatio <= 0 || t.MinRatio > 1 {
		t.MinRatio = defaultMinRatio
	}
	return t
}

// Verdict is the gate's decision for one entry.
type Verdict int

const (
	VerdictKeep Verdict = iota
	VerdictPromote
	VerdictDemote
)

func (v Verdict) String() string {
	switch v {
	case VerdictPromote:
		return "promote"
	case VerdictDemote:
		return "demote"
	default:
		return "keep"
	}
}

// Decide inspects a single entry and returns keep, promote, or demote. It is
// pure: no I/O, no clock, no mutation. Promotion requires the minimum track
// record, a success ratio strictly above the threshold, and a validated
// command; a ratio exactly at the threshold is not enough. A promoted entry
// demotes when its command stops validating or its ratio sinks to or below
// the threshold once the track record exists. Demotion only flips the flag;
// counters stay as history.
func Decide(entry Entry, thresholds Thresholds) Verdict {
	t := thresholds.normalized()
	if entry.Promoted {
		if !entry.Validated {
			return VerdictDemote
		}
		if entry.Uses >= t.MinUses && entry.SuccessRatio() <= t.MinRatio {
			return VerdictDemote
		}
		return VerdictKeep
	}
	if !entry.Validated {
		return VerdictKeep
	}
	if entry.Uses < t.MinUses {
		return VerdictKeep
	}
	if entry.SuccessRatio() > t.MinRatio {
		return VerdictPromote
	}
	return VerdictKeep
}
