package ui

import (
	"testing"

	"github.com/wut-cli/wut/internal/history"
)

func TestBuildPickerOptionsDedupesAndLabels(t *testing.T) {
	suggested := Choice{Command: "docker ps -a", Source: "cache"}
	alternatives := []string{"docker ps --all", "docker ps -a", ""}
	matches := []history.Match{
		{Command: "docker ps -a", Score: 0.91, Source: "zsh"},
		{Command: "docker container ls", Score: 0.42, Source: "zsh"},
	}

	options := buildPickerOptions(suggested, alternatives, matches)
	if len(options) != 3 {
		t.Fatalf("expected 3 distinct options, got %d: %v", len(options), options)
	}
	if options[0].Label != "[suggested] docker ps -a" {
		t.Fatalf("unexpected first label: %q", options[0].Label)
	}
	if options[1].Label != "[alt] docker ps --all" {
		t.Fatalf("unexpected second label: %q", options[1].Label)
	}
	if options[2].Label != "[history] docker container ls" {
		t.Fatalf("unexpected third label: %q", options[2].Label)
	}
}

func TestPickCommandNeedsTwoOptions(t *testing.T) {
	picked, handled, err := PickCommand("plain", "list containers", Choice{Command: "docker ps"}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if handled {
		t.Fatalf("one option must not open a picker")
	}
	if picked.Command != "" {
		t.Fatalf("expected empty choice, got %q", picked.Command)
	}
}

func TestPickerSizeStandardTerminal(t *testing.T) {
	width, height := pickerSize(90, 30, 3)
	if width != 86 {
		t.Fatalf("expected width 86, got %d", width)
	}
	if height != 9 {
		t.Fatalf("expected height 9, got %d", height)
	}
}

func TestPickerSizeTinyTerminalStillFits(t *testing.T) {
	width, height := pickerSize(20, 5, 25)
	if width > 20 {
		t.Fatalf("expected width to fit terminal, got %d", width)
	}
	if height > 5 {
		t.Fatalf("expected height to fit terminal, got %d", height)
	}
	if width <= 0 || height <= 0 {
		t.Fatalf("expected positive dimensions, got width=%d height=%d", width, height)
	}
}

func TestHuhSelectHeightBounds(t *testing.T) {
	if got := huhSelectHeight(0); got != 4 {
		t.Fatalf("expected minimum huh height 4, got %d", got)
	}
	if got := huhSelectHeight(3); got != 4 {
		t.Fatalf("expected huh height 4 for small lists, got %d", got)
	}
	if got := huhSelectHeight(20); got != 10 {
		t.Fatalf("expected max huh height 10, got %d", got)
	}
}
