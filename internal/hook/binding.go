package hook

import (
	"github.com/wut-cli/wut/internal/engine"
	"github.com/wut-cli/wut/internal/store"
)

// BindResult reports what, if anything, an event resolved in the store.
type BindResult struct {
	Bound       bool
	Fingerprint string
	Success     bool
	Verdict     store.Verdict
}

// BindOutcome matches an executed command against the engine's pending
// markers and, on a match, reports the exit status as that suggestion's
// outcome. Events that match no marker are ordinary history and bind to
// nothing.
func BindOutcome(eng *engine.Engine, ev Event) (BindResult, error) {
	marker, ok, err := engine.TakePending(ev.Command, eng.PendingTTL())
	if err != nil {
		return BindResult{}, err
	}
	if !ok {
		return BindResult{}, nil
	}
	success := ev.ExitCode == 0
	_, verdict, err := eng.ReportOutcome(marker.Fingerprint, success)
	if err != nil {
		return BindResult{}, err
	}
	return BindResult{
		Bound:       true,
		Fingerprint: marker.Fingerprint,
		Success:     success,
		Verdict:     verdict,
	}, nil
}
