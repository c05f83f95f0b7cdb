package provider

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/wut-cli/wut/internal/config"
)

func TestParseSuggestionHandlesWrapperResultWithFencedJSON(t *testing.T) {
	wrapper := map[string]any{
		"type":    "result",
		"subtype": "success",
		"result":  "```json\n{\n  \"command\": \"docker ps -a\",\n  \"reason\": \"lists all containers\",\n  \"risk\": \"low\",\n  \"confidence\": 0.95,\n  \"needs_confirmation\": false\n}\n```",
	}
	bytes, err := json.Marshal(wrapper)
	if err != nil {
		t.Fatalf("marshal wrapper failed: %v", err)
	}
	raw := string(bytes)

	parsed, err := parseSuggestion(raw)
	if err != nil {
		t.Fatalf("parseSuggestion failed: %v", err)
	}

	normalized := normalizeSuggestion(parsed)
	if normalized.Command != "docker ps -a" {
		t.Fatalf("expected docker ps -a command, got %q", normalized.Command)
	}
	if normalized.Confidence != 0.95 {
		t.Fatalf("expected confidence 0.95, got %.2f", normalized.Confidence)
	}
}

func TestPreprocessStructuredTextStripsCodeFence(t *testing.T) {
	raw := "```json\n{\"command\":\"ls\"}\n```"
	got := preprocessStructuredText(raw)
	if got != `{"command":"ls"}` {
		t.Fatalf("expected stripped JSON, got %q", got)
	}
}

func TestAdaptLooseSuggestionAcceptsAlternateCommandKeys(t *testing.T) {
	payload := map[string]any{
		"cmd":       "df -h",
		"rationale": "shows disk usage in human units",
	}
	suggestion, ok := adaptLooseSuggestion(payload)
	if !ok {
		t.Fatalf("expected loose adaptation to succeed")
	}
	if suggestion.Command != "df -h" {
		t.Fatalf("expected cmd key to map to command, got %q", suggestion.Command)
	}
	if suggestion.Confidence < 0.70 {
		t.Fatalf("expected elevated default confidence when a reason is present, got %.2f", suggestion.Confidence)
	}
	if !suggestion.NeedsConfirmation {
		t.Fatalf("expected confirmation to default on")
	}
}

func TestAdaptLooseSuggestionRejectsPayloadWithoutCommand(t *testing.T) {
	payload := map[string]any{
		"reason": "no command here",
	}
	if _, ok := adaptLooseSuggestion(payload); ok {
		t.Fatalf("expected payload without command to be rejected")
	}
}

func TestNormalizeSuggestionDefaultsRiskAndReason(t *testing.T) {
	got := normalizeSuggestion(Suggestion{Command: " ls -la ", Risk: "catastrophic", Confidence: 1.4})
	if got.Command != "ls -la" {
		t.Fatalf("expected trimmed command, got %q", got.Command)
	}
	if got.Risk != "low" {
		t.Fatalf("expected unknown risk to normalize to low, got %q", got.Risk)
	}
	if got.Reason != "provider suggestion" {
		t.Fatalf("expected default reason, got %q", got.Reason)
	}
	if got.Confidence != 1 {
		t.Fatalf("expected confidence clamped to 1, got %.2f", got.Confidence)
	}
}

func TestBuildInvocationRendersTemplateArgs(t *testing.T) {
	adapter, err := NewCommandAdapter("custom", config.ProviderConfig{
		Type:        "command",
		Command:     "my-backend",
		Model:       "my-model",
		MaxTokens:   64,
		Temperature: 0.2,
		Args:        []string{"--model", "{model}", "--max-tokens", "{max_tokens}", "{prompt}"},
	})
	if err != nil {
		t.Fatalf("NewCommandAdapter failed: %v", err)
	}

	invocation, err := adapter.BuildInvocation(Request{Prompt: "list files"})
	if err != nil {
		t.Fatalf("BuildInvocation failed: %v", err)
	}

	joined := strings.Join(invocation, " ")
	want := "my-backend --model my-model --max-tokens 64 list files"
	if joined != want {
		t.Fatalf("expected %q, got %q", want, joined)
	}
}

func TestBuildInvocationAppendsPromptWhenNoPlaceholder(t *testing.T) {
	adapter, err := NewCommandAdapter("custom", config.ProviderConfig{
		Type:    "command",
		Command: "my-backend",
		Model:   "my-model",
		Args:    []string{"--json"},
	})
	if err != nil {
		t.Fatalf("NewCommandAdapter failed: %v", err)
	}

	invocation, err := adapter.BuildInvocation(Request{Prompt: "list files"})
	if err != nil {
		t.Fatalf("BuildInvocation failed: %v", err)
	}
	if invocation[len(invocation)-1] != "list files" {
		t.Fatalf("expected prompt appended last, got %v", invocation)
	}
}

func TestBuildInvocationDropsArgsWithMissingTemplateValues(t *testing.T) {
	adapter, err := NewCommandAdapter("custom", config.ProviderConfig{
		Type:    "command",
		Command: "my-backend",
		Model:   "my-model",
		Args:    []string{"--session", "{session_id}", "{prompt}"},
	})
	if err != nil {
		t.Fatalf("NewCommandAdapter failed: %v", err)
	}

	invocation, err := adapter.BuildInvocation(Request{Prompt: "list files"})
	if err != nil {
		t.Fatalf("BuildInvocation failed: %v", err)
	}

	joined := strings.Join(invocation, " ")
	if strings.Contains(joined, "{session_id}") || strings.Contains(joined, "--session {") {
		t.Fatalf("expected unresolved template arg to be dropped, got %q", joined)
	}
	if !strings.Contains(joined, "list files") {
		t.Fatalf("expected prompt to survive, got %q", joined)
	}
}

func TestGenerateFailsWhenProviderExitsNonZeroEvenWithParseableJSON(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script test is not portable on windows")
	}

	tempDir := t.TempDir()
	scriptPath := filepath.Join(tempDir, "provider.sh")
	script := `#!/bin/sh
echo '{"command":"ls -la","reason":"ok","risk":"low","confidence":0.99,"needs_confirmation":false}'
exit 1
`
	if err := os.WriteFile(scriptPath, []byte(script), 0o755); err != nil {
		t.Fatalf("write script failed: %v", err)
	}

	adapter, err := NewCommandAdapter("test", config.ProviderConfig{
		Type:    "command",
		Command: scriptPath,
		Model:   "test-model",
		Args:    []string{"{prompt}"},
	})
	if err != nil {
		t.Fatalf("NewCommandAdapter failed: %v", err)
	}

	_, genErr := adapter.Generate(context.Background(), Request{
		Prompt: "list all files with details",
		Model:  "test-model",
	})
	if genErr == nil {
		t.Fatalf("expected non-zero provider exit to fail even when output contains JSON")
	}
	if !strings.Contains(genErr.Error(), "provider command failed") {
		t.Fatalf("expected provider command failure error, got: %v", genErr)
	}
}

func TestGenerateReadsOutputFileWhenBackendWritesOne(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script test is not portable on windows")
	}

	tempDir := t.TempDir()
	scriptPath := filepath.Join(tempDir, "provider.sh")
	script := `#!/bin/sh
printf '{"command":"df -h","reason":"disk usage","risk":"low","confidence":0.9,"needs_confirmation":false}' > "$1"
`
	if err := os.WriteFile(scriptPath, []byte(script), 0o755); err != nil {
		t.Fatalf("write script failed: %v", err)
	}

	adapter, err := NewCommandAdapter("test", config.ProviderConfig{
		Type:    "command",
		Command: scriptPath,
		Model:   "test-model",
		Args:    []string{"{output_file}", "{prompt}"},
	})
	if err != nil {
		t.Fatalf("NewCommandAdapter failed: %v", err)
	}

	suggestion, genErr := adapter.Generate(context.Background(), Request{
		Prompt: "how much disk space is left",
		Model:  "test-model",
	})
	if genErr != nil {
		t.Fatalf("Generate failed: %v", genErr)
	}
	if suggestion.Command != "df -h" {
		t.Fatalf("expected command from output file, got %q", suggestion.Command)
	}
}
