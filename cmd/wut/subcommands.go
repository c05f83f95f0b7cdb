package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	goruntime "runtime"
	"strings"

	"github.com/wut-cli/wut/internal/appdirs"
	"github.com/wut-cli/wut/internal/config"
	"github.com/wut-cli/wut/internal/engine"
	"github.com/wut-cli/wut/internal/knowledge"
	"github.com/wut-cli/wut/internal/provider"
	"github.com/wut-cli/wut/internal/router"
	"github.com/wut-cli/wut/internal/store"
	"github.com/wut-cli/wut/internal/systemprofile"
	"github.com/wut-cli/wut/internal/ui"
)

// parseSubFlags applies the shared exit conventions to a subcommand flag
// set: -h exits 0, a bad flag exits 2.
func parseSubFlags(fs *flag.FlagSet, args []string) {
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

// cmdInit is the first-run setup: capture a system profile, confirm it with
// the user, seed the store from shell history, and point at the hook snippet.
// Safe to rerun; seeding is a no-op once the store has entries.
func cmdInit(args []string, cfg config.Config, cfgPath string, opts options) {
	fs := flag.NewFlagSet("wut init", flag.ContinueOnError)
	reseed := fs.Bool("reseed", false, "scan history again even if already seeded")
	parseSubFlags(fs, args)

	profile, status, profileErr := captureProfile(cfg, opts)
	if profileErr != nil {
		fmt.Fprintf(os.Stderr, "wut: system profile skipped: %v\n", profileErr)
	} else if !opts.JSON {
		switch {
		case status.Created:
			fmt.Println("Captured a system profile for prompt context.")
		case status.Refreshed:
			fmt.Println("Refreshed the system profile.")
		}
		runProfileOnboarding(&cfg, cfgPath, &profile, opts)
	}

	eng := engine.New(cfg)
	var (
		report  engine.SeedReport
		seedErr error
	)
	withLoader(cfg, opts, loaderPhaseSeeding, "sifting your shell history", func() {
		report, seedErr = eng.SeedFromHistory(*reseed)
	})
	if seedErr != nil {
		printResponse(response{
			Intent:  string(router.IntentInit),
			Message: fmt.Sprintf("history seeding failed: %v", seedErr),
		}, opts.JSON)
		os.Exit(1)
	}

	if opts.JSON {
		printResponse(response{
			Intent:     string(router.IntentInit),
			Message:    "initialized",
			Results:    report,
			ConfigPath: cfgPath,
		}, true)
		return
	}

	switch {
	case report.AlreadySeeded:
		fmt.Println("History already seeded; rerun with --reseed to scan again.")
	case report.Added == 0:
		fmt.Printf("Scanned %d history entries; nothing new to seed.\n", report.Scanned)
	default:
		fmt.Printf("Seeded %d commands from %d history entries (%d verified).\n", report.Added, report.Scanned, report.Validated)
		if report.Sections > 0 {
			fmt.Printf("Knowledge document covers %d command domains.\n", report.Sections)
		}
	}
	fmt.Println()
	printHookHint()
}

func captureProfile(cfg config.Config, opts options) (systemprofile.Profile, systemprofile.Status, error) {
	var (
		profile systemprofile.Profile
		status  systemprofile.Status
		err     error
	)
	withLoader(cfg, opts, loaderPhaseLearning, "sizing up this machine", func() {
		profile, status, err = systemprofile.Ensure(systemprofile.Options{
			AllowCapture: true,
			RefreshHours: cfg.System.RefreshHours,
		})
	})
	return profile, status, err
}

func runProfileOnboarding(cfg *config.Config, cfgPath string, profile *systemprofile.Profile, opts options) {
	if cfg == nil || profile == nil || opts.JSON || opts.Quiet {
		return
	}
	if !isTerminal(os.Stdin) || !isTerminal(os.Stdout) {
		return
	}
	summary := strings.TrimSpace(profile.HumanSummary(cfg.System.MaxPromptItems))
	if summary == "" {
		return
	}

	backend := effectiveUIBackend(*cfg, opts)
	decision, used, err := ui.ProfileOnboarding(backend, summary, profile.UserNote)
	if err != nil {
		fmt.Fprintf(os.Stderr, "wut: onboarding ui failed (%v); falling back to plain prompt\n", err)
	}
	if !used {
		var ok bool
		if decision, ok = profileOnboardingPlain(summary); !ok {
			return
		}
	}
	applyProfileDecision(cfg, cfgPath, profile, decision)
}

func profileOnboardingPlain(summary string) (ui.ProfileDecision, bool) {
	fmt.Println("wut learned this about your machine:")
	fmt.Println(summary)

	// One reader for both questions; a fresh reader could swallow the
	// second line into the first one's buffer.
	reader := bufio.NewReader(os.Stdin)
	ask := func(prompt string) (string, bool) {
		fmt.Print(prompt)
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", false
		}
		return strings.TrimSpace(line), true
	}

	choice, ok := ask("Use this context in prompts? [Y]es / [N]o / [E]dit note: ")
	if !ok {
		return ui.ProfileDecision{}, false
	}
	switch strings.ToLower(choice) {
	case "", "y", "yes":
		return ui.ProfileDecision{}, true
	case "n", "no":
		return ui.ProfileDecision{DisableContext: true}, true
	case "e", "edit":
		note, ok := ask("Add a short correction note (optional): ")
		if !ok {
			return ui.ProfileDecision{}, false
		}
		return ui.ProfileDecision{SetUserNote: true, UserNote: note}, true
	}
	return ui.ProfileDecision{}, false
}

func applyProfileDecision(cfg *config.Config, cfgPath string, profile *systemprofile.Profile, decision ui.ProfileDecision) {
	switch {
	case cfg == nil || profile == nil:
		return
	case decision.DisableContext:
		cfg.System.EnableContext = false
		if err := config.Save(cfgPath, *cfg); err != nil {
			fmt.Fprintf(os.Stderr, "wut: could not save system context preference: %v\n", err)
			return
		}
		fmt.Println("System context disabled.")
	case decision.SetUserNote:
		profile.UserNote = strings.TrimSpace(decision.UserNote)
		if err := systemprofile.Save(*profile); err != nil {
			fmt.Fprintf(os.Stderr, "wut: could not save system note: %v\n", err)
			return
		}
		if profile.UserNote == "" {
			fmt.Println("Cleared system note.")
		} else {
			fmt.Println("Saved system note.")
		}
	}
}

func printHookHint() {
	shell := detectShell()
	output, err := runInternal("hook-snippet", "--shell", shell)
	if err != nil {
		fmt.Println("Optional: install the shell hook so outcomes record automatically:")
		fmt.Println("  _wut hook-snippet --shell zsh|bash|fish")
		return
	}
	fmt.Printf("Optional: add this %s snippet to your shell rc file so outcomes record automatically:\n\n", shell)
	fmt.Println(strings.TrimRight(string(output), "\n"))
}

// cmdUpdate re-resolves the generation backend and recaptures the system
// profile. --model and --binary persist into the llamacpp provider config.
func cmdUpdate(args []string, cfg config.Config, cfgPath string, opts options) {
	fs := flag.NewFlagSet("wut update", flag.ContinueOnError)
	model := fs.String("model", "", "persist this model for the llamacpp provider")
	binary := fs.String("binary", "", "persist this llama.cpp binary path")
	parseSubFlags(fs, args)

	updates := []struct {
		key   string
		value string
		label string
	}{
		{"providers.llamacpp.model", strings.TrimSpace(*model), "model"},
		{"providers.llamacpp.command", strings.TrimSpace(*binary), "binary path"},
	}
	changed := false
	for _, update := range updates {
		if update.value == "" {
			continue
		}
		if err := cfg.Set(update.key, update.value); err != nil {
			fmt.Fprintf(os.Stderr, "wut: invalid %s: %v\n", update.label, err)
			os.Exit(1)
		}
		changed = true
	}
	if changed {
		if err := config.Save(cfgPath, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "wut: could not save config: %v\n", err)
			os.Exit(1)
		}
	}

	var profileErr error
	withLoader(cfg, opts, loaderPhaseLearning, "sizing up this machine", func() {
		profileErr = recaptureProfile(cfg)
	})

	binaryPath, binaryErr := resolveLlamaBinary(cfg)
	var healthErr error
	if binaryErr == nil {
		withLoader(cfg, opts, loaderPhaseValidating, "checking the backend", func() {
			healthErr = llamaHealthCheck(cfg)
		})
	}

	if opts.JSON {
		results := map[string]string{
			"binary":  binaryPath,
			"model":   llamaModelName(cfg),
			"backend": "ok",
			"profile": "refreshed",
		}
		if binaryErr != nil {
			results["binary"] = ""
			results["backend"] = binaryErr.Error()
		} else if healthErr != nil {
			results["backend"] = healthErr.Error()
		}
		if profileErr != nil {
			results["profile"] = profileErr.Error()
		}
		printResponse(response{
			Intent:     string(router.IntentUpdate),
			Message:    "updated",
			Results:    results,
			ConfigPath: cfgPath,
		}, true)
		return
	}

	switch {
	case binaryErr != nil:
		fmt.Printf("backend binary: %v\n", binaryErr)
	case healthErr != nil:
		fmt.Printf("backend binary: %s (not runnable: %v)\n", binaryPath, healthErr)
	default:
		fmt.Printf("backend binary: %s\n", binaryPath)
	}
	fmt.Printf("backend model: %s\n", llamaModelName(cfg))
	if profileErr != nil {
		fmt.Printf("system profile: %v\n", profileErr)
	} else {
		fmt.Println("system profile: refreshed")
	}
	if changed {
		fmt.Printf("config: %s\n", cfgPath)
	}
}

// recaptureProfile captures unconditionally; update means "look again". The
// user's correction note survives the recapture.
func recaptureProfile(cfg config.Config) error {
	current, _, err := systemprofile.Ensure(systemprofile.Options{RefreshHours: cfg.System.RefreshHours})
	captured := systemprofile.Capture()
	if err == nil {
		captured.UserNote = current.UserNote
	}
	return systemprofile.Save(captured)
}

func cmdConfig(args []string, cfg config.Config, cfgPath string, opts options) {
	if len(args) == 0 {
		printResponse(response{
			Intent:     string(router.IntentConfigShow),
			Message:    "effective settings",
			Results:    cfg,
			ConfigPath: cfgPath,
		}, opts.JSON)
		return
	}

	// Both the verb forms (config get <key>, config set <key> <value>) and
	// the bare forms (config <key>, config <key> <value>) work; no config
	// key is ever literally "get" or "set".
	switch strings.ToLower(args[0]) {
	case "get":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "usage: wut config get <key>")
			os.Exit(2)
		}
		configGetKey(cfg, args[1], opts)
	case "set":
		if len(args) != 3 {
			fmt.Fprintln(os.Stderr, "usage: wut config set <key> <value>")
			os.Exit(2)
		}
		configSetKey(cfg, cfgPath, args[1], args[2], opts)
	default:
		switch len(args) {
		case 1:
			configGetKey(cfg, args[0], opts)
		case 2:
			configSetKey(cfg, cfgPath, args[0], args[1], opts)
		default:
			fmt.Fprintln(os.Stderr, "usage: wut config [get] <key> | wut config [set] <key> <value>")
			os.Exit(2)
		}
	}
}

func configGetKey(cfg config.Config, key string, opts options) {
	value, err := cfg.Get(key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "wut: %v\n", err)
		os.Exit(1)
	}
	if opts.JSON {
		printResponse(response{
			Intent:  string(router.IntentConfigShow),
			Results: map[string]string{key: value},
		}, true)
		return
	}
	fmt.Println(value)
}

func configSetKey(cfg config.Config, cfgPath string, key, value string, opts options) {
	if err := cfg.Set(key, value); err != nil {
		fmt.Fprintf(os.Stderr, "wut: invalid config change %s=%s: %v\n", key, value, err)
		os.Exit(1)
	}
	if err := config.Save(cfgPath, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "wut: could not save config: %v\n", err)
		os.Exit(1)
	}
	printResponse(response{
		Intent:      string(router.IntentConfigSet),
		Message:     "saved settings",
		ConfigPath:  cfgPath,
		Suggestions: []string{fmt.Sprintf("%s=%s", key, value)},
	}, opts.JSON)
}

func cmdStats(args []string, cfg config.Config, opts options) {
	fs := flag.NewFlagSet("wut stats", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "output JSON")
	parseSubFlags(fs, args)

	report, err := engine.New(cfg).Stats()
	if err != nil {
		fmt.Fprintf(os.Stderr, "wut: could not read stats: %v\n", err)
		os.Exit(1)
	}

	if *asJSON || opts.JSON {
		printIndented(report)
		return
	}

	summary := report.Store
	fmt.Printf("store: %s\n", summary.Path)
	fmt.Printf("entries: %d (%d active, %d promoted, %d validated)\n",
		summary.Entries, summary.Active, summary.Promoted, summary.Validated)
	fmt.Printf("outcomes: %d uses, %d successes, %d failures (%.0f%% success)\n",
		summary.TotalUses, summary.Successes, summary.Failures, summary.SuccessRatio*100)
	fmt.Printf("knowledge: %d sections, %d worked examples\n",
		report.KnowledgeSections, report.KnowledgeExamples)
	if report.DocumentPath != "" {
		fmt.Printf("document: %s\n", report.DocumentPath)
	}
}

func cmdClear(args []string, cfg config.Config, opts options) {
	fs := flag.NewFlagSet("wut clear", flag.ContinueOnError)
	cache := fs.Bool("cache", false, "clear the suggestion store")
	contextDoc := fs.Bool("context", false, "clear the knowledge document")
	yes := fs.Bool("yes", false, "skip the confirmation prompt")
	parseSubFlags(fs, args)

	clearCache, clearContext := *cache, *contextDoc
	if !clearCache && !clearContext {
		clearCache, clearContext = true, true
	}

	var targets []string
	if clearCache {
		targets = append(targets, "suggestion cache")
	}
	if clearContext {
		targets = append(targets, "knowledge document")
	}

	if !*yes && !opts.Yes {
		if !isTerminal(os.Stdin) {
			fmt.Fprintln(os.Stderr, "wut: clearing needs --yes when not at a terminal")
			os.Exit(1)
		}
		fmt.Printf("This removes the %s. Continue? [y/N]: ", strings.Join(targets, " and "))
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
		default:
			fmt.Println("Cancelled.")
			return
		}
	}

	eng := engine.New(cfg)
	var cleared []string
	if clearCache {
		if err := eng.ClearCache(); err != nil {
			fmt.Fprintf(os.Stderr, "wut: could not clear cache: %v\n", err)
			os.Exit(1)
		}
		cleared = append(cleared, "cache")
	}
	if clearContext {
		if err := eng.ClearContext(); err != nil {
			fmt.Fprintf(os.Stderr, "wut: could not clear context: %v\n", err)
			os.Exit(1)
		}
		cleared = append(cleared, "context")
	}

	intent := router.IntentClearCache
	if clearContext && !clearCache {
		intent = router.IntentClearContext
	}
	printResponse(response{Intent: string(intent), Message: "cleared " + strings.Join(cleared, " and ")}, opts.JSON)
}

func cmdDoctor(cfg config.Config, opts options) {
	output, err := runInternal("doctor")
	if err != nil {
		output, err = fallbackDoctorOutput(cfg)
	}
	if err != nil {
		payload := response{
			Intent:      string(router.IntentDiagnose),
			Message:     "doctor check failed",
			Suggestions: []string{string(output)},
		}
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			payload.Suggestions = append(payload.Suggestions, msg)
		}
		printResponse(payload, opts.JSON)
		return
	}

	if !opts.JSON {
		fmt.Println("doctor checks:")
	}
	fmt.Println(string(output))
}

type doctorCheck struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Status string `json:"status"`
}

// fallbackDoctorOutput runs the checks locally when the _wut helper is not
// reachable, which is itself the last finding on the list.
func fallbackDoctorOutput(cfg config.Config) ([]byte, error) {
	cfgPath, err := appdirs.ConfigFilePath()
	if err != nil {
		return nil, err
	}
	stateDir, err := appdirs.StateDir()
	if err != nil {
		return nil, err
	}

	var checks []doctorCheck
	add := func(key, value, status string) {
		checks = append(checks, doctorCheck{Key: key, Value: value, Status: status})
	}

	add("os", goruntime.GOOS, "ok")
	add("config_path", cfgPath, statusFile(cfgPath))
	add("state_dir", stateDir, statusFile(stateDir))

	if binary, binErr := resolveLlamaBinary(cfg); binErr != nil {
		add("llama_binary", binErr.Error(), "missing")
	} else {
		add("llama_binary", binary, statusFile(binary))
	}
	add("llama_model", llamaModelName(cfg), "ok")

	issues := provider.NewRegistry().Validate(cfg)
	if len(issues) == 0 {
		add("providers", fmt.Sprintf("%d configured", len(cfg.Providers)), "ok")
	} else {
		add("providers", fmt.Sprintf("%d issue(s)", len(issues)), "error")
		for _, issue := range issues {
			add("provider_issue", issue.Error(), "error")
		}
	}

	for _, name := range cfg.ProviderNames() {
		providerCfg := cfg.Providers[name]
		status := "ok"
		if providerCfg.Enabled != nil && !*providerCfg.Enabled {
			status = "disabled"
		}
		add("provider."+name, fmt.Sprintf("type=%s command=%s model=%s", providerCfg.Type, providerCfg.Command, providerCfg.Model), status)
	}

	if summary, storeErr := store.Stats(); storeErr != nil {
		add("store", storeErr.Error(), "error")
	} else {
		add("store", fmt.Sprintf("%d entries (%d promoted)", summary.Entries, summary.Promoted), "ok")
	}

	if docPath, docErr := knowledge.DocPath(); docErr != nil {
		add("document", docErr.Error(), "error")
	} else {
		add("document", docPath, statusWritableDir(filepath.Dir(docPath)))
	}

	add("hook_helper", "_wut", "missing")
	return json.MarshalIndent(checks, "", "  ")
}

// resolveLlamaBinary reports which llama.cpp binary a generation would use,
// going through the adapter so config, WUT_LLAMA_BIN, PATH, and the known
// install locations resolve in the same order as a real call.
func resolveLlamaBinary(cfg config.Config) (string, error) {
	llama, err := llamaAdapter(cfg)
	if err != nil {
		return "", err
	}
	argv, err := llama.BuildInvocation(provider.Request{Prompt: "version probe"})
	if err != nil {
		return "", err
	}
	return argv[0], nil
}

func llamaHealthCheck(cfg config.Config) error {
	llama, err := llamaAdapter(cfg)
	if err != nil {
		return err
	}
	return llama.HealthCheck()
}

func llamaAdapter(cfg config.Config) (*provider.LlamaAdapter, error) {
	adapter, err := provider.NewLlamaAdapter("llamacpp", cfg.Providers["llamacpp"])
	if err != nil {
		return nil, err
	}
	llama, ok := adapter.(*provider.LlamaAdapter)
	if !ok {
		return nil, fmt.Errorf("llamacpp provider not available")
	}
	return llama, nil
}

func llamaModelName(cfg config.Config) string {
	if providerCfg, ok := cfg.Providers["llamacpp"]; ok && strings.TrimSpace(providerCfg.Model) != "" {
		return providerCfg.Model
	}
	return "(default)"
}

func statusFile(path string) string {
	switch _, err := os.Stat(path); {
	case err == nil:
		return "ok"
	case errors.Is(err, os.ErrNotExist):
		return "missing"
	default:
		return "error"
	}
}

func statusWritableDir(dir string) string {
	if status := statusFile(dir); status != "ok" {
		return status
	}
	probe, err := os.CreateTemp(dir, ".wut-doctor-*")
	if err != nil {
		return "readonly"
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return "ok"
}
