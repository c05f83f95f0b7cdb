// Command wut turns a natural-language query into one runnable shell
// command. Answers come from the local suggestion cache when they have
// earned promotion, otherwise from the configured llama.cpp backend; every
// execution outcome feeds back into the cache so good answers get faster
// and bad ones get retired.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/wut-cli/wut/internal/config"
	"github.com/wut-cli/wut/internal/engine"
	"github.com/wut-cli/wut/internal/i18n"
	"github.com/wut-cli/wut/internal/logging"
	"github.com/wut-cli/wut/internal/router"
	"github.com/wut-cli/wut/internal/store"
	"github.com/wut-cli/wut/internal/ui"
	"github.com/wut-cli/wut/internal/validate"
)

var version = "dev"

var localeCatalog = i18n.LoadCatalog("")

type options struct {
	Model       string
	Provider    string
	Locale      string
	Mode        string
	UI          string
	Suggestions int
	Explain     bool
	NoCache     bool
	Verbose     bool
	Yes         bool
	JSON        bool
	Copy        bool
	Quiet       bool
	Execute     bool
	Version     bool
}

type response struct {
	Intent      string      `json:"intent"`
	Message     string      `json:"message,omitempty"`
	Command     string      `json:"command,omitempty"`
	Risk        string      `json:"risk,omitempty"`
	Executed    bool        `json:"executed,omitempty"`
	Results     interface{} `json:"results,omitempty"`
	ConfigPath  string      `json:"config_path,omitempty"`
	Suggestions []string    `json:"suggestions,omitempty"`
}

// suggestPayload is the machine shape of one served suggestion. The embedded
// result carries the fingerprint a caller needs to report the outcome later.
type suggestPayload struct {
	engine.Result
	Explanation string `json:"explanation,omitempty"`
	Executed    bool   `json:"executed"`
	Success     bool   `json:"success,omitempty"`
	Verdict     string `json:"verdict,omitempty"`
	Copied      bool   `json:"copied,omitempty"`
	Message     string `json:"message,omitempty"`
}

func main() {
	opts, args, err := parseArgs(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if opts.Version {
		fmt.Println(version)
		return
	}

	cfg, cfgPath, err := config.LoadOrCreate()
	if err != nil {
		fmt.Fprintf(os.Stderr, "wut: could not load config: %v\n", err)
		os.Exit(1)
	}
	if err := logging.Setup(logging.Options{
		Level:     cfg.Logging.Level,
		ToFile:    cfg.Logging.File,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
		Verbose:   opts.Verbose,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "wut: file logging disabled: %v\n", err)
	}
	applyRuntimeLocale(cfg, opts)

	if len(args) > 0 {
		if handled := dispatchSubcommand(args[0], args[1:], cfg, cfgPath, opts); handled {
			return
		}
	}

	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" {
		payload := response{Intent: string(router.IntentSuggest), Message: "add a query, e.g. wut show disk usage by directory"}
		printResponse(payload, opts.JSON)
		return
	}
	handleSuggest(query, cfg, opts)
}

func parseArgs(args []string) (options, []string, error) {
	fs := flag.NewFlagSet("wut", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts options
	fs.StringVar(&opts.Model, "model", "", "override model for this invocation")
	fs.StringVar(&opts.Provider, "provider", "", "override provider for this invocation")
	fs.StringVar(&opts.Locale, "locale", "", "override locale: auto|en|en-US|hi|hi-IN")
	fs.StringVar(&opts.Mode, "mode", "", "override execution mode: confirm|yolo")
	fs.StringVar(&opts.UI, "ui", "", "override ui backend: auto|bubbletea|huh|tview|plain")
	fs.IntVar(&opts.Suggestions, "suggestions", 1, "offer up to N candidate commands")
	fs.BoolVar(&opts.Explain, "explain", false, "describe what the suggested command does")
	fs.BoolVar(&opts.NoCache, "no-cache", false, "skip the cache and generate fresh")
	fs.BoolVar(&opts.Verbose, "verbose", false, "mirror log entries to stderr")
	fs.BoolVar(&opts.Yes, "yes", false, "auto-confirm execution prompts")
	fs.BoolVar(&opts.JSON, "json", false, "output JSON")
	fs.BoolVar(&opts.Copy, "copy", false, "copy suggested command to clipboard when possible")
	fs.BoolVar(&opts.Quiet, "quiet", false, "print only the suggested command")
	fs.BoolVar(&opts.Execute, "execute", false, "run the suggested command after confirmation")
	fs.BoolVar(&opts.Version, "version", false, "print version")

	if err := fs.Parse(args); err != nil {
		return options{}, nil, err
	}
	if opts.Suggestions < 1 {
		return options{}, nil, fmt.Errorf("--suggestions must be at least 1")
	}
	return opts, fs.Args(), nil
}

// dispatchSubcommand routes the reserved first tokens. A reserved word always
// wins over a query; queries that genuinely start with one need rephrasing.
func dispatchSubcommand(name string, rest []string, cfg config.Config, cfgPath string, opts options) bool {
	intent, reserved := router.Route(name)
	if !reserved {
		return false
	}
	switch intent {
	case router.IntentInit:
		cmdInit(rest, cfg, cfgPath, opts)
	case router.IntentUpdate:
		cmdUpdate(rest, cfg, cfgPath, opts)
	case router.IntentConfigShow:
		cmdConfig(rest, cfg, cfgPath, opts)
	case router.IntentStats:
		cmdStats(rest, cfg, opts)
	case router.IntentClearCache:
		cmdClear(rest, cfg, opts)
	case router.IntentDiagnose:
		cmdDoctor(cfg, opts)
	case router.IntentVersion:
		fmt.Println(version)
	default:
		return false
	}
	return true
}

func handleSuggest(query string, cfg config.Config, opts options) {
	eng := engine.New(cfg)

	var (
		result engine.Result
		err    error
	)
	withLoader(cfg, opts, loaderPhaseGenerating, "drafting a command that fits the ask", func() {
		result, err = eng.Suggest(context.Background(), query, engine.Options{
			NoCache:  opts.NoCache,
			Provider: opts.Provider,
			Model:    opts.Model,
		})
	})
	if err != nil {
		printSuggestFailure(err, opts)
		os.Exit(1)
	}
	logging.L().WithFields(log.Fields{
		"source":      result.Source,
		"fingerprint": result.Fingerprint,
	}).Debug("suggestion served")

	explanation := ""
	if opts.Explain && strings.TrimSpace(result.Command) != "" {
		withLoader(cfg, opts, loaderPhaseDefault, "putting the command into words", func() {
			explanation, _ = eng.Explain(context.Background(), result.Command, engine.Options{
				Provider: opts.Provider,
				Model:    opts.Model,
			})
		})
	}

	result = maybePickAlternative(eng, cfg, opts, query, result)

	if opts.Execute {
		executeSuggested(eng, cfg, opts, result, explanation)
		return
	}
	printSuggestResult(result, explanation, opts)
}

func printSuggestFailure(err error, opts options) {
	payload := response{Intent: string(router.IntentSuggest), Message: err.Error()}
	switch {
	case errors.Is(err, engine.ErrGenerationUnavailable):
		payload.Message = "no cached answer and no usable generation backend"
		payload.Suggestions = []string{
			err.Error(),
			"run `wut doctor` to check the llama.cpp binary and model",
			"set WUT_LLAMA_BIN or providers.llamacpp.command if the binary lives outside PATH",
		}
	case errors.Is(err, engine.ErrNoUsableCommand):
		payload.Message = "the backend answered but produced no usable command"
		payload.Suggestions = []string{
			err.Error(),
			"rephrase the query or retry with --no-cache",
		}
	case errors.Is(err, engine.ErrEmptyQuery):
		payload.Message = "add a query, e.g. wut show disk usage by directory"
	}
	printResponse(payload, opts.JSON)
}

// maybePickAlternative shows the interactive picker when the caller asked for
// more than one candidate and the backend offered alternatives.
func maybePickAlternative(eng *engine.Engine, cfg config.Config, opts options, query string, result engine.Result) engine.Result {
	if opts.Suggestions <= 1 || len(result.Alternatives) == 0 {
		return result
	}
	backend := effectiveUIBackend(cfg, opts)
	if !canUseInteractiveUI(opts, backend) {
		return result
	}

	alternatives := result.Alternatives
	if len(alternatives) > opts.Suggestions-1 {
		alternatives = alternatives[:opts.Suggestions-1]
	}
	choice, used, pickErr := ui.PickCommand(backend, query, ui.Choice{
		Command: result.Command,
		Reason:  compactReason(result.Reason, 120),
		Source:  sourceLabel(result),
	}, alternatives, nil)
	if pickErr != nil {
		fmt.Fprintf(os.Stderr, "wut: ui picker failed (%v); keeping the top suggestion\n", pickErr)
		return result
	}
	if !used {
		return result
	}
	picked := strings.TrimSpace(choice.Command)
	if picked == "" || picked == strings.TrimSpace(result.Command) {
		return result
	}
	return repointSuggestion(eng, cfg, result, picked)
}

// repointSuggestion records that the user chose a different command for this
// query. The store supersedes the old command under the same fingerprint and
// the pending marker is reissued so the shell hook credits the right one.
func repointSuggestion(eng *engine.Engine, cfg config.Config, result engine.Result, picked string) engine.Result {
	verdict := validate.CommandWithPath(picked, os.Getenv("PATH"), cfg.Validator.ExtraDirs)
	entry, err := store.Put(result.Fingerprint, result.Query, picked, verdict.Valid)
	if err != nil {
		logging.L().WithField("error", err).Warn("could not repoint cache entry")
		result.Command = picked
		result.Validated = verdict.Valid
		return result
	}
	_ = engine.RecordPending(result.Fingerprint, picked, eng.PendingTTL())
	result.Command = entry.Command
	result.Validated = entry.Validated
	result.Promoted = entry.Promoted
	result.Uses = entry.Uses
	result.SuccessRatio = entry.SuccessRatio()
	return result
}

func printSuggestResult(result engine.Result, explanation string, opts options) {
	if opts.JSON {
		payload := suggestPayload{Result: result, Explanation: explanation}
		payload.Copied = copySuggestedCommand(result.Command, opts)
		printIndented(payload)
		return
	}
	if opts.Quiet {
		// quiet mode emits only the command on stdout; the copy still happens.
		copySuggestedCommand(result.Command, opts)
		fmt.Println(result.Command)
		return
	}

	fmt.Println("Suggested command:")
	fmt.Println(result.Command)
	if reason := compactReason(result.Reason, 120); reason != "" {
		fmt.Printf("reason: %s\n", reason)
	}
	fmt.Printf("source: %s\n", sourceLabel(result))
	fmt.Printf("fingerprint: %s\n", result.Fingerprint)
	if !result.Validated {
		fmt.Println("unverified: the executable was not found on this machine")
	}
	if explanation != "" {
		fmt.Printf("explanation: %s\n", explanation)
	}
	if copySuggestedCommand(result.Command, opts) {
		fmt.Println("copied: yes")
	}
}

func sourceLabel(result engine.Result) string {
	if result.Source == engine.SourceCache {
		detail := fmt.Sprintf("%d uses, %.0f%% success", result.Uses, result.SuccessRatio*100)
		if result.Promoted {
			return "cache (promoted, " + detail + ")"
		}
		return "cache (" + detail + ")"
	}
	if strings.TrimSpace(result.Provider) != "" {
		return result.Provider
	}
	return result.Source
}

func printResponse(payload response, asJSON bool) {
	if asJSON {
		printIndented(payload)
		return
	}

	if payload.Message != "" {
		fmt.Println(payload.Message)
	}
	field := func(label, value string) {
		if value != "" {
			fmt.Printf("%s: %s\n", label, value)
		}
	}
	field("command", payload.Command)
	field("risk", payload.Risk)
	for _, suggestion := range payload.Suggestions {
		fmt.Printf("- %s\n", suggestion)
	}
	if payload.Results != nil {
		printIndented(payload.Results)
	}
	field("config", payload.ConfigPath)
}

func printIndented(v any) {
	encoded, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(encoded))
}

func applyRuntimeLocale(cfg config.Config, opts options) {
	locale := strings.TrimSpace(opts.Locale)
	if locale == "" {
		locale = strings.TrimSpace(cfg.Locale)
	}
	if strings.EqualFold(locale, "auto") {
		locale = ""
	}
	localeCatalog = i18n.LoadCatalog(locale)
}

// compactReason keeps reasons to one short line, preferring a sentence or
// clause boundary over a mid-word cut.
func compactReason(reason string, max int) string {
	trimmed := strings.TrimSpace(reason)
	if trimmed == "" || max <= 0 || len(trimmed) <= max {
		return trimmed
	}
	for _, sep := range []string{". ", "; ", "\n"} {
		if idx := strings.Index(trimmed, sep); idx > 0 && idx < max {
			return strings.TrimSpace(trimmed[:idx+1])
		}
	}
	return strings.TrimSpace(trimmed[:max]) + "..."
}

// Loader phases select which catalog phrase list rotates under the spinner.
const (
	loaderPhaseGenerating = "generating"
	loaderPhaseValidating = "validating"
	loaderPhaseRecalling  = "recalling"
	loaderPhaseLearning   = "learning"
	loaderPhaseSeeding    = "seeding"
	loaderPhaseDefault    = ""
)

func withLoader(cfg config.Config, opts options, phase string, label string, run func()) {
	if run == nil {
		return
	}
	if !loaderEnabled(cfg, opts) {
		run()
		return
	}

	stop := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		renderLoader(phase, label, stop)
	}()

	run()
	close(stop)
	<-finished
}

func loaderEnabled(cfg config.Config, opts options) bool {
	if opts.JSON || !cfg.UI.Loader {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(os.Getenv("WUT_LOADER"))) {
	case "0", "off", "false", "no":
		return false
	}
	return isTerminal(os.Stderr)
}

// renderLoader paints on stderr so stdout stays pipeable. The startup delay
// keeps cache hits from flashing a spinner that is gone before it is read.
func renderLoader(phase string, label string, stop <-chan struct{}) {
	delay := time.NewTimer(180 * time.Millisecond)
	defer delay.Stop()
	select {
	case <-stop:
		return
	case <-delay.C:
	}

	messages := loaderMessages(phase, label)
	frames := loaderFrames()
	ticker := time.NewTicker(260 * time.Millisecond)
	defer ticker.Stop()

	for tick := 0; ; tick++ {
		frame := frames[tick%len(frames)]
		message := messages[(tick/len(frames))%len(messages)]
		fmt.Fprintf(os.Stderr, "\r%s %s\x1b[K", frame, message)

		select {
		case <-stop:
			fmt.Fprint(os.Stderr, "\r\x1b[K")
			return
		case <-ticker.C:
		}
	}
}

func loaderFrames() []string {
	return []string{
		"wut   ",
		"wut?  ",
		"wut.. ",
		"WUT...",
	}
}

func loaderMessages(phase string, label string) []string {
	base := strings.TrimSpace(label)
	if base == "" {
		base = "working"
	}
	catalog := localeCatalog

	phased := map[string][]string{
		loaderPhaseGenerating: catalog.Loader.Generating,
		loaderPhaseValidating: catalog.Loader.Validating,
		loaderPhaseRecalling:  catalog.Loader.Recalling,
		loaderPhaseLearning:   catalog.Loader.Learning,
		loaderPhaseSeeding:    catalog.Loader.Seeding,
	}
	if category := phased[phase]; len(category) > 0 {
		return loaderCategoryMessages(base, category)
	}
	if defaults := loaderDefaultMessages(base, catalog.Loader.Default); len(defaults) > 0 {
		return defaults
	}
	return []string{base}
}

// loaderCategoryMessages leads with the concrete label so the first painted
// frame names the actual work, then cycles through the catalog lines.
func loaderCategoryMessages(base string, messages []string) []string {
	if len(messages) == 0 {
		return []string{base}
	}
	if strings.EqualFold(strings.TrimSpace(messages[0]), base) {
		return messages
	}
	return append([]string{base}, messages...)
}

func loaderDefaultMessages(base string, templates []string) []string {
	var out []string
	for _, template := range templates {
		trimmed := strings.TrimSpace(template)
		if trimmed == "" {
			continue
		}
		out = append(out, strings.ReplaceAll(trimmed, "{label}", base))
	}
	return out
}

func canUseInteractiveUI(opts options, backend string) bool {
	if opts.JSON || opts.Quiet || !ui.IsInteractiveBackend(backend) {
		return false
	}
	return isTerminal(os.Stdin) && isTerminal(os.Stdout)
}

func effectiveUIBackend(cfg config.Config, opts options) string {
	backend := strings.TrimSpace(opts.UI)
	if backend == "" {
		backend = cfg.UI.Backend
	}
	return ui.NormalizeBackend(backend)
}

func isTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

func isConfirmMode(mode string) bool {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "confirm":
		return true
	default:
		return false
	}
}

// runInternal invokes the _wut helper, preferring PATH and falling back to a
// sibling of the current executable for installs that ship both binaries in
// one directory.
func runInternal(args ...string) ([]byte, error) {
	seen := map[string]struct{}{}
	candidates := make([]string, 0, 2)

	if path, err := exec.LookPath("_wut"); err == nil {
		candidates = append(candidates, path)
		seen[path] = struct{}{}
	}
	if self, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(self), "_wut")
		if _, exists := seen[sibling]; !exists {
			if _, err := os.Stat(sibling); err == nil {
				candidates = append(candidates, sibling)
			}
		}
	}

	var lastErr error
	var lastOut []byte
	for _, bin := range candidates {
		cmd := exec.Command(bin, args...)
		out, err := cmd.CombinedOutput()
		if err == nil {
			return out, nil
		}
		lastErr = err
		lastOut = out
	}

	if lastErr == nil {
		return nil, fmt.Errorf("_wut executable not found")
	}
	return lastOut, lastErr
}

func detectShell() string {
	switch base := filepath.Base(strings.TrimSpace(os.Getenv("SHELL"))); base {
	case "zsh", "bash", "fish":
		return base
	}
	return "zsh"
}

func copySuggestedCommand(command string, opts options) bool {
	if !opts.Copy {
		return false
	}
	if err := copyToClipboard(command); err != nil {
		fmt.Fprintf(os.Stderr, "wut: could not copy command: %v\n", err)
		return false
	}
	return true
}

type clipboardTool struct {
	bin  string
	args []string
}

// clipboardTools lists the candidates for the current platform in preference
// order. On Linux the Wayland tool comes first because wl-copy works under
// XWayland while xclip under native Wayland does not.
func clipboardTools() []clipboardTool {
	switch goruntime.GOOS {
	case "darwin":
		return []clipboardTool{{bin: "pbcopy"}}
	case "windows":
		return []clipboardTool{{bin: "clip"}}
	default:
		return []clipboardTool{
			{bin: "wl-copy"},
			{bin: "xclip", args: []string{"-selection", "clipboard"}},
			{bin: "xsel", args: []string{"--clipboard", "--input"}},
		}
	}
}

func copyToClipboard(text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return fmt.Errorf("empty command")
	}

	for _, tool := range clipboardTools() {
		path, err := exec.LookPath(tool.bin)
		if err != nil {
			continue
		}
		cmd := exec.Command(path, tool.args...)
		cmd.Stdin = strings.NewReader(trimmed)
		if err := cmd.Run(); err == nil {
			return nil
		}
	}

	return fmt.Errorf("no supported clipboard tool found")
}
