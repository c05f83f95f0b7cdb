// Package safety scrubs credentials out of text before wut persists it or
// hands it to a generation backend. Hook events, seeded history, and prompts
// all pass through RedactText; key and flag names survive so a redacted line
// still reads as the command it was.
package safety

import (
	"fmt"
	"regexp"
)

// secretKeyNames are the identifier fragments that mark a value as a
// credential wherever they show up: env keys, flags, bare keywords.
const secretKeyNames = `token|secret|password|passwd|api[_-]?key|access[_-]?key`

// shellWord is one argument as the shell sees it: bare, double-quoted,
// or single-quoted.
const shellWord = `[^\s"']+|"[^"]*"|'[^']*'`

type redactionRule struct {
	pattern     *regexp.Regexp
	replacement string
}

// Rules run in sequence; each one rewrites the output of the one before it.
var secretRedactionRules = buildRedactionRules()

func buildRedactionRules() []redactionRule {
	rule := func(replacement, format string, args ...any) redactionRule {
		return redactionRule{
			pattern:     regexp.MustCompile(fmt.Sprintf(format, args...)),
			replacement: replacement,
		}
	}
	return []redactionRule{
		// KEY=value and KEY: value assignments.
		rule(`$1=<redacted>`, `(?i)\b([a-z0-9_]*(?:%s)[a-z0-9_]*)\s*=\s*(?:%s)`, secretKeyNames, shellWord),
		rule(`$1=<redacted>`, `(?i)\b([a-z0-9_]*(?:%s)[a-z0-9_]*)\s*:\s*(?:%s)`, secretKeyNames, shellWord),
		// HTTP Authorization headers pasted into curl invocations.
		rule(`$1 <redacted>`, `(?i)\b(authorization\s*:\s*bearer)\s+[^\s"']+`),
		// Bare "token VALUE" keyword arguments.
		rule(`$1 <redacted>`, `(?i)\b([a-z0-9_-]*(?:%s)[a-z0-9_-]*)\b\s+(?:%s)`, secretKeyNames, shellWord),
		// Long flags, both --api-key=VALUE and --api-key VALUE.
		rule(`$1=<redacted>`, `(?i)(--[a-z0-9_-]*(?:%s|authorization)[a-z0-9_-]*)\s*=\s*(?:%s)`, secretKeyNames, shellWord),
		rule(`$1 <redacted>`, `(?i)(--[a-z0-9_-]*(?:%s|authorization)[a-z0-9_-]*)\s+(?:%s)`, secretKeyNames, shellWord),
		// Conventional single-letter secret flags.
		rule(`$1$2=<redacted>`, `(?i)(^|\s)(-(?:p|k|t|s))\s*=\s*(?:%s)`, shellWord),
		rule(`$1$2 <redacted>`, `(?i)(^|\s)(-(?:p|k|t|s))\s+(?:%s)`, shellWord),
	}
}

// RedactText replaces anything that looks like a secret value with
// "<redacted>". Only values are touched; the key or flag that named them
// is kept.
func RedactText(input string) string {
	redacted := input
	for _, rule := range secretRedactionRules {
		redacted = rule.pattern.ReplaceAllString(redacted, rule.replacement)
	}
	return redacted
}
