package provider

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/wut-cli/wut/internal/config"
)

const (
	defaultLlamaModel       = "ggml-org/gemma-3-1b-it-GGUF"
	defaultLlamaMaxTokens   = 64
	defaultLlamaTemperature = 0.2
	maxCompletionLineBytes  = 300
	starterConfidence       = 0.8
	fallbackConfidence      = 0.6
	healthCheckTimeout      = 5 * time.Second
)

var llamaBinaryNames = []string{"llama-cli", "llama"}

var commandTokenPattern = regexp.MustCompile(`^[a-zA-Z0-9._/-]+$`)

// commandStarters holds the leading tokens the model is expected to emit for
// everyday shell work. A completion line opening with one of these is
// accepted with high confidence without further shape checks.
var commandStarters = map[string]struct{}{
	"ls": {}, "cd": {}, "grep": {}, "find": {}, "docker": {}, "kubectl": {},
	"git": {}, "curl": {}, "wget": {}, "ssh": {}, "sudo": {}, "cp": {},
	"mv": {}, "rm": {}, "cat": {}, "tail": {}, "head": {}, "ps": {},
	"kill": {}, "top": {}, "df": {}, "du": {}, "tar": {}, "zip": {},
	"unzip": {}, "chmod": {}, "chown": {}, "systemctl": {}, "service": {},
	"apt": {}, "yum": {}, "npm": {}, "yarn": {}, "pip": {}, "cargo": {},
	"make": {}, "cmake": {}, "rsync": {}, "scp": {}, "awk": {}, "sed": {},
	"sort": {}, "uniq": {}, "cut": {}, "tr": {}, "xargs": {},
}

// proseMarkers flag completion lines that read as explanation rather than a
// command. Checked lowercase with surrounding spaces so single tokens such
// as a file named "the" do not trip them.
var proseMarkers = []string{" is ", " are ", " the ", " this ", " you ", " your ", " will "}

type LlamaAdapter struct {
	name string
	cfg  config.ProviderConfig
}

func NewLlamaAdapter(name string, cfg config.ProviderConfig) (Adapter, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = defaultLlamaModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultLlamaMaxTokens
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = defaultLlamaTemperature
	}
	return &LlamaAdapter{name: name, cfg: cfg}, nil
}

func (a *LlamaAdapter) Name() string {
	return a.name
}

func (a *LlamaAdapter) Type() string {
	return "llamacpp"
}

func (a *LlamaAdapter) Generate(ctx context.Context, req Request) (Suggestion, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	invocation, err := a.BuildInvocation(req)
	if err != nil {
		return Suggestion{}, err
	}

	cmd := exec.CommandContext(ctx, invocation[0], invocation[1:]...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if runErr := cmd.Run(); runErr != nil {
		return Suggestion{}, fmt.Errorf("llama invocation failed (%s): %w; stderr=%s", invocation[0], runErr, truncate(stderr.String(), 800))
	}

	suggestion, ok := parseCompletion(stdout.String())
	if !ok {
		return Suggestion{}, fmt.Errorf("llama output contained no usable command: %s", truncate(stdout.String(), 800))
	}
	return normalizeSuggestion(suggestion), nil
}

func (a *LlamaAdapter) BuildInvocation(req Request) ([]string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("prompt cannot be empty")
	}

	binary, err := a.binaryPath()
	if err != nil {
		return nil, err
	}

	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = strings.TrimSpace(a.cfg.Model)
	}
	if model == "" {
		return nil, fmt.Errorf("model cannot be empty")
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = a.cfg.MaxTokens
	}
	temperature := req.Temperature
	if temperature <= 0 {
		temperature = a.cfg.Temperature
	}

	// Local .gguf files load with -m; anything else is treated as a Hugging
	// Face repository reference that llama.cpp fetches and caches itself.
	modelFlag := "-hf"
	if strings.HasSuffix(strings.ToLower(model), ".gguf") {
		modelFlag = "-m"
	}

	return []string{
		binary,
		modelFlag, model,
		"-c", "0",
		"-fa",
		"-p", req.Prompt,
		"-n", strconv.Itoa(maxTokens),
		"--temp", strconv.FormatFloat(temperature, 'f', -1, 64),
		"--no-display-prompt",
	}, nil
}

func (a *LlamaAdapter) HealthCheck() error {
	binary, err := a.binaryPath()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()
	if err := exec.CommandContext(ctx, binary, "--version").Run(); err != nil {
		return fmt.Errorf("llama binary is not runnable (%s): %w", binary, err)
	}
	return nil
}

// binaryPath resolves the llama.cpp CLI. Resolution order: the provider's
// configured command, the WUT_LLAMA_BIN environment variable, PATH lookup,
// then a handful of well-known install locations.
func (a *LlamaAdapter) binaryPath() (string, error) {
	if configured := strings.TrimSpace(a.cfg.Command); configured != "" {
		return configured, nil
	}
	if override := strings.TrimSpace(os.Getenv("WUT_LLAMA_BIN")); override != "" {
		return override, nil
	}
	for _, name := range llamaBinaryNames {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	for _, dir := range llamaFallbackDirs() {
		for _, name := range llamaBinaryNames {
			candidate := filepath.Join(dir, name)
			info, err := os.Stat(candidate)
			if err != nil || info.IsDir() {
				continue
			}
			if info.Mode()&0o111 == 0 {
				continue
			}
			return candidate, nil
		}
	}
	return "", fmt.Errorf("llama.cpp binary not found; install llama.cpp or set WUT_LLAMA_BIN")
}

func llamaFallbackDirs() []string {
	dirs := make([]string, 0, 5)
	if home, err := os.UserHomeDir(); err == nil && strings.TrimSpace(home) != "" {
		dirs = append(dirs, filepath.Join(home, ".local", "bin"))
	}
	dirs = append(dirs,
		"/usr/local/bin",
		"/usr/bin",
		"/opt/homebrew/bin",
		"/opt/llama.cpp/bin",
	)
	return dirs
}

// parseCompletion extracts command candidates from raw model output, one
// line at a time. Lines opening with a known command starter rank above
// lines that merely look command shaped; the best candidate becomes the
// suggestion and the rest become alternatives.
func parseCompletion(raw string) (Suggestion, bool) {
	type candidate struct {
		command    string
		confidence float64
	}

	candidates := make([]candidate, 0, 4)
	seen := map[string]struct{}{}
	for _, line := range strings.Split(raw, "\n") {
		command, confidence, ok := commandFromLine(line)
		if !ok {
			continue
		}
		if _, dup := seen[command]; dup {
			continue
		}
		seen[command] = struct{}{}
		candidates = append(candidates, candidate{command: command, confidence: confidence})
	}
	if len(candidates) == 0 {
		return Suggestion{}, false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].confidence > candidates[j].confidence
	})

	alternatives := make([]string, 0, len(candidates)-1)
	for _, extra := range candidates[1:] {
		alternatives = append(alternatives, extra.command)
	}

	return Suggestion{
		Command:           candidates[0].command,
		Reason:            ReasonModelCompletion,
		Risk:              "low",
		Confidence:        candidates[0].confidence,
		NeedsConfirmation: true,
		Alternatives:      alternatives,
	}, true
}

func commandFromLine(line string) (string, float64, bool) {
	trimmed := strings.TrimSpace(line)
	trimmed = strings.TrimPrefix(trimmed, "$ ")
	trimmed = strings.TrimPrefix(trimmed, "> ")
	trimmed = strings.TrimSpace(trimmed)

	if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "```") {
		return "", 0, false
	}
	if len(trimmed) > maxCompletionLineBytes {
		return "", 0, false
	}

	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return "", 0, false
	}
	if _, ok := commandStarters[strings.ToLower(fields[0])]; ok {
		return trimmed, starterConfidence, true
	}
	if looksLikeCommandShape(trimmed, fields) {
		return trimmed, fallbackConfidence, true
	}
	return "", 0, false
}

func looksLikeCommandShape(line string, fields []string) bool {
	if len(fields) > 12 {
		return false
	}
	first := fields[0]
	if len(first) > 32 || !commandTokenPattern.MatchString(first) {
		return false
	}
	if !strings.ContainsFunc(first, func(r rune) bool { return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' }) {
		return false
	}
	if strings.HasSuffix(line, ".") && len(fields) > 4 {
		return false
	}
	padded := " " + strings.ToLower(line) + " "
	for _, marker := range proseMarkers {
		if strings.Contains(padded, marker) {
			return false
		}
	}
	return true
}
