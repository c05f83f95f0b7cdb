// Command _wut is the plumbing helper behind wut. Shell hooks call it to
// report executed commands, and wut shells out to it for doctor output and
// hook snippets. It prints machine-readable output and never draws UI.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/wut-cli/wut/internal/appdirs"
	"github.com/wut-cli/wut/internal/config"
	"github.com/wut-cli/wut/internal/engine"
	"github.com/wut-cli/wut/internal/history"
	"github.com/wut-cli/wut/internal/hook"
	"github.com/wut-cli/wut/internal/knowledge"
	"github.com/wut-cli/wut/internal/provider"
	"github.com/wut-cli/wut/internal/store"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	sub := os.Args[1]
	args := os.Args[2:]

	var err error
	switch sub {
	case "hook-record":
		err = hookRecord(args)
	case "outcome":
		err = reportOutcome(args)
	case "latest-event":
		err = latestEvent()
	case "history-search":
		err = historySearch(args)
	case "config-get":
		err = configGet(args)
	case "config-set":
		err = configSet(args)
	case "config-path":
		err = printResolved(appdirs.ConfigFilePath)
	case "state-path":
		err = printResolved(appdirs.StateDir)
	case "doctor":
		err = doctor()
	case "hook-snippet":
		err = hookSnippet(args)
	default:
		fmt.Fprintf(os.Stderr, "unknown _wut subcommand: %s\n", sub)
		printUsage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "_wut error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("_wut <hook-record|outcome|latest-event|history-search|config-get|config-set|config-path|state-path|doctor|hook-snippet>")
}

func printResolved(resolve func() (string, error)) error {
	path, err := resolve()
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

func printJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	fmt.Println(string(payload))
	return nil
}

func printJSONIndent(v any) error {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(payload))
	return nil
}

func hookRecord(args []string) error {
	fs := flag.NewFlagSet("hook-record", flag.ContinueOnError)
	command := fs.String("command", "", "command to record")
	exitCode := fs.Int("exit-code", 1, "exit code of the command")
	cwd := fs.String("cwd", "", "directory the command ran in")
	shell := fs.String("shell", "", "shell that ran it")
	sessionID := fs.String("session-id", "", "terminal session identifier")
	timestamp := fs.String("timestamp", "", "event time, RFC3339")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*command) == "" {
		return fmt.Errorf("--command is required")
	}

	ev := hook.Event{
		Command:   *command,
		ExitCode:  *exitCode,
		CWD:       *cwd,
		Shell:     *shell,
		SessionID: *sessionID,
		Timestamp: *timestamp,
	}
	if err := hook.RecordEvent(ev); err != nil {
		return err
	}

	// Binding is best effort; a hook invocation must never break the user's
	// prompt loop over a missing marker or an unreadable store.
	if cfg, _, err := config.LoadOrCreate(); err == nil {
		_, _ = hook.BindOutcome(engine.New(cfg), ev)
	}
	return nil
}

// reportOutcome is the manual feedback channel: callers who copied a
// suggestion instead of executing it through wut can still credit or blame
// it by fingerprint.
func reportOutcome(args []string) error {
	fs := flag.NewFlagSet("outcome", flag.ContinueOnError)
	fingerprint := fs.String("fingerprint", "", "suggestion fingerprint")
	exitCode := fs.Int("exit-code", 0, "exit code of the executed command")
	if err := fs.Parse(args); err != nil {
		return err
	}

	key := strings.TrimSpace(*fingerprint)
	if key == "" {
		return fmt.Errorf("--fingerprint is required")
	}

	cfg, _, err := config.LoadOrCreate()
	if err != nil {
		return err
	}
	entry, verdict, err := engine.New(cfg).ReportOutcome(key, *exitCode == 0)
	if err != nil {
		return err
	}
	fmt.Printf("%s uses=%d success=%.0f%%\n", verdict.String(), entry.Uses, entry.SuccessRatio()*100)
	return nil
}

func latestEvent() error {
	ev, err := hook.LatestEvent()
	if err != nil {
		return err
	}
	if ev == nil {
		fmt.Println("{}")
		return nil
	}
	return printJSON(ev)
}

func historySearch(args []string) error {
	fs := flag.NewFlagSet("history-search", flag.ContinueOnError)
	query := fs.String("query", "", "query text")
	limit := fs.Int("limit", 8, "max results")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*query) == "" {
		return fmt.Errorf("--query is required")
	}

	matches, err := history.Search(*query, *limit)
	if err != nil {
		return err
	}
	return printJSON(matches)
}

func configGet(args []string) error {
	fs := flag.NewFlagSet("config-get", flag.ContinueOnError)
	key := fs.String("key", "", "config key, prints the whole file when omitted")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, _, err := config.LoadOrCreate()
	if err != nil {
		return err
	}
	if k := strings.TrimSpace(*key); k != "" {
		value, err := cfg.Get(k)
		if err != nil {
			return err
		}
		fmt.Println(value)
		return nil
	}
	return printJSONIndent(cfg)
}

func configSet(args []string) error {
	fs := flag.NewFlagSet("config-set", flag.ContinueOnError)
	key := fs.String("key", "", "config key")
	value := fs.String("value", "", "config value")
	if err := fs.Parse(args); err != nil {
		return err
	}
	k, v := strings.TrimSpace(*key), strings.TrimSpace(*value)
	switch {
	case k == "":
		return fmt.Errorf("--key is required")
	case v == "":
		return fmt.Errorf("--value is required")
	}

	cfg, path, err := config.LoadOrCreate()
	if err != nil {
		return err
	}
	if err := cfg.Set(k, v); err != nil {
		return err
	}
	if err := config.Save(path, cfg); err != nil {
		return err
	}
	fmt.Printf("saved %s=%s\n", k, v)
	return nil
}

type doctorCheck struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Status string `json:"status"`
}

func doctor() error {
	cfgPath, err := appdirs.ConfigFilePath()
	if err != nil {
		return err
	}
	stateDir, err := appdirs.StateDir()
	if err != nil {
		return err
	}

	checks := []doctorCheck{
		{Key: "os", Value: runtime.GOOS, Status: "ok"},
		{Key: "config_path", Value: cfgPath, Status: pathStatus(cfgPath)},
		{Key: "state_dir", Value: stateDir, Status: pathStatus(stateDir)},
	}
	if cfg, _, err := config.LoadOrCreate(); err == nil {
		checks = append(checks, providerChecks(cfg)...)
	}
	checks = append(checks, stateChecks()...)
	checks = append(checks, doctorCheck{Key: "hook_helper", Value: "_wut", Status: "ok"})
	return printJSONIndent(checks)
}

func providerChecks(cfg config.Config) []doctorCheck {
	var checks []doctorCheck

	if binary, err := llamaBinary(cfg); err != nil {
		checks = append(checks, doctorCheck{Key: "llama_binary", Value: err.Error(), Status: "missing"})
	} else {
		checks = append(checks, doctorCheck{Key: "llama_binary", Value: binary, Status: pathStatus(binary)})
	}

	if issues := provider.NewRegistry().Validate(cfg); len(issues) == 0 {
		checks = append(checks, doctorCheck{Key: "providers", Value: fmt.Sprintf("%d configured", len(cfg.Providers)), Status: "ok"})
	} else {
		checks = append(checks, doctorCheck{Key: "providers", Value: fmt.Sprintf("%d issue(s)", len(issues)), Status: "error"})
		for _, issue := range issues {
			checks = append(checks, doctorCheck{Key: "provider_issue", Value: issue.Error(), Status: "error"})
		}
	}

	names := cfg.ProviderNames()
	sort.Strings(names)
	for _, name := range names {
		providerCfg := cfg.Providers[name]
		status := "ok"
		if providerCfg.Enabled != nil && !*providerCfg.Enabled {
			status = "disabled"
		}
		checks = append(checks, doctorCheck{
			Key:    "provider." + name,
			Value:  fmt.Sprintf("type=%s command=%s model=%s", providerCfg.Type, providerCfg.Command, providerCfg.Model),
			Status: status,
		})
	}
	return checks
}

func stateChecks() []doctorCheck {
	var checks []doctorCheck

	if summary, err := store.Stats(); err != nil {
		checks = append(checks, doctorCheck{Key: "store", Value: err.Error(), Status: "error"})
	} else {
		checks = append(checks, doctorCheck{Key: "store", Value: fmt.Sprintf("%d entries (%d promoted)", summary.Entries, summary.Promoted), Status: "ok"})
	}

	if docPath, err := knowledge.DocPath(); err != nil {
		checks = append(checks, doctorCheck{Key: "document", Value: err.Error(), Status: "error"})
	} else {
		checks = append(checks, doctorCheck{Key: "document", Value: docPath, Status: pathStatus(filepath.Dir(docPath))})
	}

	if ev, err := hook.LatestEvent(); err != nil {
		checks = append(checks, doctorCheck{Key: "events", Value: err.Error(), Status: "error"})
	} else if ev == nil {
		checks = append(checks, doctorCheck{Key: "events", Value: "none recorded", Status: "missing"})
	} else {
		checks = append(checks, doctorCheck{Key: "events", Value: ev.Timestamp, Status: "ok"})
	}
	return checks
}

func llamaBinary(cfg config.Config) (string, error) {
	adapter, err := provider.NewLlamaAdapter("llamacpp", cfg.Providers["llamacpp"])
	if err != nil {
		return "", err
	}
	llama, ok := adapter.(*provider.LlamaAdapter)
	if !ok {
		return "", fmt.Errorf("llamacpp provider not available")
	}
	argv, err := llama.BuildInvocation(provider.Request{Prompt: "version probe"})
	if err != nil {
		return "", err
	}
	return argv[0], nil
}

func pathStatus(path string) string {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return "ok"
	case os.IsNotExist(err):
		return "missing"
	}
	return "error"
}

var snippetRenderers = map[string]func() string{
	"zsh":  zshSnippet,
	"bash": bashSnippet,
	"fish": fishSnippet,
}

func hookSnippet(args []string) error {
	fs := flag.NewFlagSet("hook-snippet", flag.ContinueOnError)
	shell := fs.String("shell", "zsh", "shell to emit a snippet for")
	if err := fs.Parse(args); err != nil {
		return err
	}

	render, ok := snippetRenderers[strings.ToLower(*shell)]
	if !ok {
		return fmt.Errorf("unsupported shell: %s", *shell)
	}
	fmt.Println(render())
	return nil
}

func zshSnippet() string {
	return `export WUT_SESSION_ID=${WUT_SESSION_ID:-"$$.$(date +%s)"}
typeset -g _WUT_LAST_CMD=""
_wut_capture() {
  _WUT_LAST_CMD="$1"
}
_wut_report() {
  local exit_code=$?
  if [ -z "$_WUT_LAST_CMD" ]; then
    return
  fi
  _wut hook-record --command "$_WUT_LAST_CMD" --exit-code "$exit_code" --cwd "$PWD" --shell "zsh" --session-id "$WUT_SESSION_ID" >/dev/null 2>&1
  _WUT_LAST_CMD=""
}
autoload -Uz add-zsh-hook
add-zsh-hook preexec _wut_capture
add-zsh-hook precmd _wut_report`
}

func bashSnippet() string {
	return `export WUT_SESSION_ID=${WUT_SESSION_ID:-"$$.$(date +%s)"}
_WUT_LAST_HISTCMD="$HISTCMD"
_wut_report() {
  local exit_code=$?
  # HISTCMD only moves when a new command entered history; an empty prompt
  # (plain enter) keeps it still and records nothing.
  if [ "$HISTCMD" = "$_WUT_LAST_HISTCMD" ]; then
    return
  fi
  _WUT_LAST_HISTCMD="$HISTCMD"
  local last_command
  last_command=$(fc -ln -1 2>/dev/null)
  if [ -n "$last_command" ]; then
    _wut hook-record --command "$last_command" --exit-code "$exit_code" --cwd "$PWD" --shell "bash" --session-id "$WUT_SESSION_ID" >/dev/null 2>&1
  fi
}
case ";$PROMPT_COMMAND;" in
  *";_wut_report;"*) ;;
  *) PROMPT_COMMAND="_wut_report${PROMPT_COMMAND:+;$PROMPT_COMMAND}" ;;
esac`
}

func fishSnippet() string {
	return `set -q WUT_SESSION_ID; or set -gx WUT_SESSION_ID "$fish_pid".(date +%s)
function __wut_capture --on-event fish_preexec
  set -g _WUT_LAST_CMD $argv[1]
end
function __wut_report --on-event fish_postexec
  set -l exit_code $status
  if test -n "$_WUT_LAST_CMD"
    _wut hook-record --command "$_WUT_LAST_CMD" --exit-code "$exit_code" --cwd "$PWD" --shell "fish" --session-id "$WUT_SESSION_ID" >/dev/null 2>&1
    set -e _WUT_LAST_CMD
  end
end`
}
