// Package ui renders the interactive surfaces: the execution confirm, the
// command picker, and the init card. Every surface walks a candidate chain
// of TUI backends so a broken one degrades to the next instead of failing
// the whole invocation.
package ui

import "strings"

const (
	BackendAuto      = "auto"
	BackendBubbleTea = "bubbletea"
	BackendHuh       = "huh"
	BackendTView     = "tview"
	BackendPlain     = "plain"
)

// Interactive backends in default preference order.
var interactivePreference = []string{BackendBubbleTea, BackendHuh, BackendTView}

// NormalizeBackend maps user input to a known backend name. Anything
// unrecognized means auto.
func NormalizeBackend(backend string) string {
	switch b := strings.ToLower(strings.TrimSpace(backend)); b {
	case BackendBubbleTea, BackendHuh, BackendTView, BackendPlain:
		return b
	default:
		return BackendAuto
	}
}

// IsInteractiveBackend reports whether the backend may drive a TUI at all.
// Plain pins every surface to its non-interactive fallback.
func IsInteractiveBackend(backend string) bool {
	return NormalizeBackend(backend) != BackendPlain
}

// backendCandidates orders the backends to try: the requested one first,
// the rest as fallbacks. Plain never escalates to a TUI.
func backendCandidates(backend string) []string {
	normalized := NormalizeBackend(backend)
	if normalized == BackendPlain {
		return []string{BackendPlain}
	}
	if normalized == BackendAuto {
		return append([]string(nil), interactivePreference...)
	}
	candidates := make([]string, 0, len(interactivePreference))
	candidates = append(candidates, normalized)
	for _, b := range interactivePreference {
		if b != normalized {
			candidates = append(candidates, b)
		}
	}
	return candidates
}
