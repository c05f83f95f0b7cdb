package main

import (
	"errors"
	"flag"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wut-cli/wut/internal/config"
	"github.com/wut-cli/wut/internal/engine"
	"github.com/wut-cli/wut/internal/i18n"
)

func TestParseArgsHelpReturnsFlagErrHelp(t *testing.T) {
	_, _, err := parseArgs([]string{"--help"})
	if !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("expected flag.ErrHelp, got %v", err)
	}
}

func TestParseArgsVersionFlag(t *testing.T) {
	opts, args, err := parseArgs([]string{"--version"})
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if !opts.Version {
		t.Fatalf("expected version flag to be true")
	}
	if len(args) != 0 {
		t.Fatalf("expected no leftover args, got %v", args)
	}
}

func TestParseArgsKeepsQueryWords(t *testing.T) {
	opts, args, err := parseArgs([]string{"--copy", "show", "disk", "usage", "by", "directory"})
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if !opts.Copy {
		t.Fatalf("expected copy flag to be true")
	}
	if got := strings.Join(args, " "); got != "show disk usage by directory" {
		t.Fatalf("unexpected query: %q", got)
	}
}

func TestParseArgsExecuteAndModeFlags(t *testing.T) {
	opts, args, err := parseArgs([]string{"--execute", "--yes", "--mode", "yolo", "--no-cache", "free", "disk", "space"})
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if !opts.Execute || !opts.Yes || !opts.NoCache {
		t.Fatalf("expected execute/yes/no-cache flags, got %+v", opts)
	}
	if opts.Mode != "yolo" {
		t.Fatalf("expected mode=yolo, got %q", opts.Mode)
	}
	if got := strings.Join(args, " "); got != "free disk space" {
		t.Fatalf("unexpected query: %q", got)
	}
}

func TestParseArgsSuggestionsFlag(t *testing.T) {
	opts, _, err := parseArgs([]string{"--suggestions", "3", "list", "open", "ports"})
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if opts.Suggestions != 3 {
		t.Fatalf("expected suggestions=3, got %d", opts.Suggestions)
	}

	opts, _, err = parseArgs([]string{"list", "open", "ports"})
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if opts.Suggestions != 1 {
		t.Fatalf("expected default suggestions=1, got %d", opts.Suggestions)
	}
}

func TestParseArgsRejectsZeroSuggestions(t *testing.T) {
	_, _, err := parseArgs([]string{"--suggestions", "0", "list", "open", "ports"})
	if err == nil {
		t.Fatalf("expected zero suggestions to fail")
	}
}

func TestParseArgsUIFlag(t *testing.T) {
	opts, _, err := parseArgs([]string{"--ui", "tview", "show", "disk", "usage"})
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if opts.UI != "tview" {
		t.Fatalf("expected ui=tview, got %q", opts.UI)
	}
}

func TestParseArgsLocaleFlag(t *testing.T) {
	opts, _, err := parseArgs([]string{"--locale", "hi-IN", "show", "disk", "usage"})
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if opts.Locale != "hi-IN" {
		t.Fatalf("expected locale=hi-IN, got %q", opts.Locale)
	}
}

func TestDispatchSubcommandPassesPlainQueries(t *testing.T) {
	cfg := config.Default()
	if dispatchSubcommand("show", []string{"disk", "usage"}, cfg, "", options{}) {
		t.Fatalf("did not expect a plain query word to dispatch")
	}
	if dispatchSubcommand("clearly", nil, cfg, "", options{}) {
		t.Fatalf("did not expect a prefix of a reserved word to dispatch")
	}
}

func TestDispatchSubcommandVersionWord(t *testing.T) {
	out := captureStdout(t, func() {
		if !dispatchSubcommand("version", nil, config.Default(), "", options{}) {
			t.Fatalf("expected version word to dispatch")
		}
	})
	if !strings.Contains(out, version) {
		t.Fatalf("expected version output, got %q", out)
	}
}

func TestCompactReasonPrefersFirstSentenceWhenLong(t *testing.T) {
	input := "Lists listening sockets. Includes the owning process for each one."
	got := compactReason(input, 40)
	if got != "Lists listening sockets." {
		t.Fatalf("expected first sentence truncation, got %q", got)
	}
}

func TestCompactReasonTruncatesWhenNoSentenceBoundary(t *testing.T) {
	input := strings.Repeat("x", 60)
	got := compactReason(input, 20)
	if got == input || !strings.HasSuffix(got, "...") {
		t.Fatalf("expected truncated reason with ellipsis, got %q", got)
	}
}

func TestCompactReasonKeepsShortReason(t *testing.T) {
	if got := compactReason("Shows the top consumers.", 120); got != "Shows the top consumers." {
		t.Fatalf("expected short reason unchanged, got %q", got)
	}
}

func TestSourceLabelDescribesCacheTrackRecord(t *testing.T) {
	promoted := engine.Result{Source: engine.SourceCache, Promoted: true, Uses: 6, SuccessRatio: 0.84}
	if got := sourceLabel(promoted); got != "cache (promoted, 6 uses, 84% success)" {
		t.Fatalf("unexpected promoted label: %q", got)
	}
	tracked := engine.Result{Source: engine.SourceCache, Uses: 2, SuccessRatio: 0.5}
	if got := sourceLabel(tracked); got != "cache (2 uses, 50% success)" {
		t.Fatalf("unexpected cache label: %q", got)
	}
}

func TestSourceLabelNamesProviderForGenerated(t *testing.T) {
	generated := engine.Result{Source: engine.SourceGenerated, Provider: "llamacpp"}
	if got := sourceLabel(generated); got != "llamacpp" {
		t.Fatalf("unexpected generated label: %q", got)
	}
	bare := engine.Result{Source: engine.SourceGenerated}
	if got := sourceLabel(bare); got != engine.SourceGenerated {
		t.Fatalf("unexpected bare label: %q", got)
	}
}

func TestLoaderFramesUseLogoMotif(t *testing.T) {
	frames := loaderFrames()
	if len(frames) != 4 {
		t.Fatalf("expected 4 loader frames, got %d", len(frames))
	}
	if !strings.Contains(frames[0], "wut") {
		t.Fatalf("expected first frame to carry the wut motif, got %q", frames[0])
	}
	if !strings.Contains(frames[3], "WUT") {
		t.Fatalf("expected last frame to shout, got %q", frames[3])
	}
}

func useEnglishCatalog(t *testing.T) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))

	previous := localeCatalog
	localeCatalog = i18n.LoadCatalog("en")
	t.Cleanup(func() {
		localeCatalog = previous
	})
}

func TestLoaderMessagesGeneratingRotation(t *testing.T) {
	useEnglishCatalog(t)

	messages := loaderMessages(loaderPhaseGenerating, "drafting a command that fits the ask")
	if len(messages) < 12 {
		t.Fatalf("expected large message rotation, got %d", len(messages))
	}
	if messages[0] != "drafting a command that fits the ask" {
		t.Fatalf("expected first canonical message, got %q", messages[0])
	}
}

func TestLoaderMessagesPhaseRotations(t *testing.T) {
	useEnglishCatalog(t)

	cases := []struct {
		phase string
		label string
		min   int
	}{
		{phase: loaderPhaseValidating, label: "checking the backend", min: 6},
		{phase: loaderPhaseSeeding, label: "sifting your shell history", min: 5},
		{phase: loaderPhaseLearning, label: "sizing up this machine", min: 5},
	}
	for _, tc := range cases {
		messages := loaderMessages(tc.phase, tc.label)
		if len(messages) < tc.min {
			t.Fatalf("expected at least %d messages for %q, got %d", tc.min, tc.label, len(messages))
		}
		if messages[0] != tc.label {
			t.Fatalf("expected first message to echo label %q, got %q", tc.label, messages[0])
		}
	}
}

func TestLoaderMessagesDefaultTemplatesLabel(t *testing.T) {
	useEnglishCatalog(t)

	label := "putting the command into words"
	messages := loaderMessages(loaderPhaseDefault, label)
	if len(messages) < 5 {
		t.Fatalf("expected templated rotation, got %d", len(messages))
	}
	if messages[0] != label {
		t.Fatalf("expected first message to be the plain label, got %q", messages[0])
	}
	for _, message := range messages {
		if !strings.Contains(message, label) {
			t.Fatalf("expected label in every default message, got %q", message)
		}
	}
}

func TestApplyRuntimeLocalePrefersFlagOverConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	previous := localeCatalog
	t.Cleanup(func() {
		localeCatalog = previous
	})

	cfg := config.Default()
	cfg.Locale = "en"
	applyRuntimeLocale(cfg, options{Locale: "hi"})
	if localeCatalog.Locale != "hi" {
		t.Fatalf("expected hindi catalog from flag, got %q", localeCatalog.Locale)
	}

	applyRuntimeLocale(cfg, options{})
	if localeCatalog.Locale != "en" {
		t.Fatalf("expected english catalog from config, got %q", localeCatalog.Locale)
	}
}

func TestApplyRuntimeLocaleAutoFollowsEnvironment(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("WUT_LOCALE", "hi-IN")
	previous := localeCatalog
	t.Cleanup(func() {
		localeCatalog = previous
	})

	cfg := config.Default()
	cfg.Locale = "auto"
	applyRuntimeLocale(cfg, options{})
	if localeCatalog.Locale != "hi-IN" {
		t.Fatalf("expected detected locale hi-IN, got %q", localeCatalog.Locale)
	}
}

func TestIsConfirmMode(t *testing.T) {
	if !isConfirmMode("") || !isConfirmMode("confirm") || !isConfirmMode(" Confirm ") {
		t.Fatalf("expected confirm aliases to count as confirm mode")
	}
	if isConfirmMode("yolo") {
		t.Fatalf("did not expect yolo to count as confirm mode")
	}
}

func TestDetectShellRecognizesSupportedShells(t *testing.T) {
	t.Setenv("SHELL", "/usr/local/bin/fish")
	if got := detectShell(); got != "fish" {
		t.Fatalf("expected fish, got %q", got)
	}
	t.Setenv("SHELL", "/bin/tcsh")
	if got := detectShell(); got != "zsh" {
		t.Fatalf("expected unsupported shell to fall back to zsh, got %q", got)
	}
	t.Setenv("SHELL", "")
	if got := detectShell(); got != "zsh" {
		t.Fatalf("expected empty SHELL to fall back to zsh, got %q", got)
	}
}

func TestEffectiveUIBackendPrefersFlag(t *testing.T) {
	cfg := config.Default()
	cfg.UI.Backend = "huh"
	if got := effectiveUIBackend(cfg, options{UI: "tview"}); got != "tview" {
		t.Fatalf("expected flag backend to win, got %q", got)
	}
	if got := effectiveUIBackend(cfg, options{}); got != "huh" {
		t.Fatalf("expected config backend, got %q", got)
	}
	cfg.UI.Backend = "something-new"
	if got := effectiveUIBackend(cfg, options{}); got != "auto" {
		t.Fatalf("expected unknown backend to normalize to auto, got %q", got)
	}
}

func TestLoaderEnabledRespectsJSONAndEnv(t *testing.T) {
	cfg := config.Default()
	if loaderEnabled(cfg, options{JSON: true}) {
		t.Fatalf("did not expect loader in json mode")
	}

	cfg.UI.Loader = false
	if loaderEnabled(cfg, options{}) {
		t.Fatalf("did not expect loader when disabled in config")
	}

	cfg.UI.Loader = true
	t.Setenv("WUT_LOADER", "off")
	if loaderEnabled(cfg, options{}) {
		t.Fatalf("did not expect loader when WUT_LOADER=off")
	}
}

func TestLlamaModelNameFallsBackToDefaultLabel(t *testing.T) {
	cfg := config.Default()
	if got := llamaModelName(cfg); got == "(default)" || got == "" {
		t.Fatalf("expected catalog model name, got %q", got)
	}
	cfg.Providers = nil
	if got := llamaModelName(cfg); got != "(default)" {
		t.Fatalf("expected default label without provider config, got %q", got)
	}
}

func TestStatusFileAndWritableDir(t *testing.T) {
	dir := t.TempDir()
	if got := statusFile(filepath.Join(dir, "absent.toml")); got != "missing" {
		t.Fatalf("expected missing status, got %q", got)
	}
	if got := statusWritableDir(dir); got != "ok" {
		t.Fatalf("expected writable dir status ok, got %q", got)
	}
	if got := statusWritableDir(filepath.Join(dir, "absent")); got != "missing" {
		t.Fatalf("expected missing dir status, got %q", got)
	}
}
