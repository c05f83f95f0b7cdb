package store

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestGateProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("validated entries promote exactly when ratio is strictly above threshold", prop.ForAll(
		func(uses, rawSuccesses int) bool {
			successes := rawSuccesses % (uses + 1)
			entry := Entry{
				Uses:      uses,
				Successes: successes,
				Failures:  uses - successes,
				Validated: true,
			}
			got := Decide(entry, DefaultThresholds())
			if entry.SuccessRatio() > defaultMinRatio {
				return got == VerdictPromote
			}
			return got == VerdictKeep
		},
		gen.IntRange(defaultMinUses, 200),
		gen.IntRange(0, 200),
	))

	properties.Property("entries below the use floor never promote", prop.ForAll(
		func(uses int, validated bool) bool {
			entry := Entry{
				Uses:      uses,
				Successes: uses,
				Validated: validated,
			}
			return Decide(entry, DefaultThresholds()) != VerdictPromote
		},
		gen.IntRange(0, defaultMinUses-1),
		gen.Bool(),
	))

	properties.Property("unvalidated entries never promote", prop.ForAll(
		func(uses int) bool {
			entry := Entry{Uses: uses, Successes: uses, Validated: false}
			return Decide(entry, DefaultThresholds()) != VerdictPromote
		},
		gen.IntRange(0, 500),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
