package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/wut-cli/wut/internal/config"
)

// argPlaceholder matches {name} slots inside configured argument templates.
var argPlaceholder = regexp.MustCompile(`\{([a-z_]+)\}`)

// CommandAdapter shells out to a configured executable and parses whatever
// structured reply it prints. It is the escape hatch for wiring any local
// tool as a generation backend.
type CommandAdapter struct {
	name string
	cfg  config.ProviderConfig
}

func NewCommandAdapter(name string, cfg config.ProviderConfig) (Adapter, error) {
	cfg.Command = pickString(cfg.Command, name)
	cfg.Model = pickString(cfg.Model, name)
	return &CommandAdapter{name: name, cfg: cfg}, nil
}

func (a *CommandAdapter) Name() string { return a.name }

func (a *CommandAdapter) Type() string { return "command" }

// Generate runs the configured command and interprets its reply. The backend
// may answer on stdout or by writing the file named in the {output_file}
// template; the file wins when both are present.
func (a *CommandAdapter) Generate(ctx context.Context, req Request) (Suggestion, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	working, cleanup, err := a.prepareRequest(req)
	if err != nil {
		return Suggestion{}, err
	}
	defer cleanup()

	invocation, err := a.BuildInvocation(working)
	if err != nil {
		return Suggestion{}, err
	}
	stdout, stderr, runErr := runInvocation(ctx, invocation)
	if runErr != nil {
		return Suggestion{}, fmt.Errorf("provider command failed (%s): %w; stderr=%s", a.cfg.Command, runErr, truncate(stderr, 800))
	}
	return interpretReply(working, stdout, stderr)
}

func runInvocation(ctx context.Context, invocation []string) (stdout, stderr string, err error) {
	cmd := exec.CommandContext(ctx, invocation[0], invocation[1:]...)
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	err = cmd.Run()
	return outBuf.String(), errBuf.String(), err
}

func interpretReply(req Request, stdout, stderr string) (Suggestion, error) {
	raw := strings.TrimSpace(readPreferredOutput(req, stdout))
	if raw == "" {
		raw = strings.TrimSpace(stdout)
	}
	if suggestion, err := parseSuggestion(raw); err == nil {
		return normalizeSuggestion(suggestion), nil
	}
	// Some tools print banners around the payload; scan the combined output
	// for a balanced object before giving up.
	combined := strings.TrimSpace(strings.TrimSpace(stdout) + "\n" + strings.TrimSpace(stderr))
	if extracted, ok := extractJSONObject(combined); ok {
		if parsed, err := parseSuggestion(extracted); err == nil {
			return normalizeSuggestion(parsed), nil
		}
	}
	return Suggestion{}, fmt.Errorf("provider returned unparseable output: %s", truncate(raw, 800))
}

// BuildInvocation renders the argv for one request. Configured args may carry
// {placeholder} slots; an arg whose placeholder has no value drops whole, and
// a template with no {prompt} slot gets the prompt appended last.
func (a *CommandAdapter) BuildInvocation(req Request) ([]string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("prompt cannot be empty")
	}
	model := strings.TrimSpace(pickString(req.Model, a.cfg.Model))
	if model == "" {
		return nil, fmt.Errorf("model cannot be empty")
	}
	if len(a.cfg.Args) == 0 {
		return []string{a.cfg.Command, req.Prompt}, nil
	}

	values := templateValues(req, model, a.cfg)
	argv := []string{a.cfg.Command}
	promptPlaced := false
	for _, template := range a.cfg.Args {
		if strings.Contains(template, "{prompt}") {
			promptPlaced = true
		}
		rendered, ok := renderTemplateArg(template, values)
		if !ok {
			continue
		}
		argv = append(argv, rendered)
	}
	if !promptPlaced {
		argv = append(argv, req.Prompt)
	}
	return argv, nil
}

func (a *CommandAdapter) HealthCheck() error {
	_, err := exec.LookPath(a.cfg.Command)
	if err != nil {
		return fmt.Errorf("%s is not on PATH", a.cfg.Command)
	}
	return nil
}

// prepareRequest gives the backend a scratch file it may write its reply to
// instead of stdout; the {output_file} template exposes the path.
func (a *CommandAdapter) prepareRequest(req Request) (Request, func(), error) {
	if req.Context == nil {
		req.Context = map[string]any{}
	}
	tmpDir, err := os.MkdirTemp("", "wut-provider-")
	if err != nil {
		return Request{}, nil, fmt.Errorf("could not create provider scratch dir: %w", err)
	}
	req.Context["output_file"] = filepath.Join(tmpDir, "suggestion.output.json")
	return req, func() { _ = os.RemoveAll(tmpDir) }, nil
}

func templateValues(req Request, model string, cfg config.ProviderConfig) map[string]string {
	values := map[string]string{
		"model":  model,
		"prompt": req.Prompt,
		"query":  req.Query,
	}
	if tokens := pickInt(req.MaxTokens, cfg.MaxTokens); tokens > 0 {
		values["max_tokens"] = strconv.Itoa(tokens)
	}
	if temp := pickFloat(req.Temperature, cfg.Temperature); temp > 0 {
		values["temperature"] = strconv.FormatFloat(temp, 'f', -1, 64)
	}
	for key, value := range req.Context {
		if text, ok := value.(string); ok {
			values[key] = text
		}
	}
	return values
}

func pickString(primary, fallback string) string {
	if strings.TrimSpace(primary) != "" {
		return primary
	}
	return fallback
}

func pickInt(primary, fallback int) int {
	if primary > 0 {
		return primary
	}
	return fallback
}

func pickFloat(primary, fallback float64) float64 {
	if primary > 0 {
		return primary
	}
	return fallback
}

func renderTemplateArg(template string, values map[string]string) (string, bool) {
	missing := false
	rendered := argPlaceholder.ReplaceAllStringFunc(template, func(slot string) string {
		value, ok := values[strings.Trim(slot, "{}")]
		if !ok || strings.TrimSpace(value) == "" {
			missing = true
			return ""
		}
		return value
	})
	if missing {
		return "", false
	}
	rendered = strings.TrimSpace(rendered)
	return rendered, rendered != ""
}

// parseSuggestion decodes a backend reply. Accepted shapes, in order: the
// suggestion object itself, a wrapper carrying the payload under "result" or
// "content" (as a string, an object, or a list of text parts), and finally
// any balanced JSON object buried in surrounding prose.
func parseSuggestion(raw string) (Suggestion, error) {
	trimmed := preprocessStructuredText(raw)
	if trimmed == "" {
		return Suggestion{}, fmt.Errorf("empty response")
	}
	if parsed, err := decodeSuggestionJSON(trimmed); err == nil {
		return parsed, nil
	}
	var wrapper map[string]any
	if err := json.Unmarshal([]byte(trimmed), &wrapper); err == nil {
		for _, key := range []string{"result", "content"} {
			if parsed, ok := parseWrapped(wrapper[key]); ok {
				return parsed, nil
			}
		}
	}
	if extracted, ok := extractJSONObject(trimmed); ok {
		if parsed, err := decodeSuggestionJSON(extracted); err == nil {
			return parsed, nil
		}
	}
	return Suggestion{}, fmt.Errorf("could not parse structured suggestion")
}

func parseWrapped(value any) (Suggestion, bool) {
	switch wrapped := value.(type) {
	case string:
		if parsed, err := parseSuggestion(wrapped); err == nil {
			return parsed, true
		}
	case map[string]any:
		if encoded, err := json.Marshal(wrapped); err == nil {
			if parsed, err := parseSuggestion(string(encoded)); err == nil {
				return parsed, true
			}
		}
	case []any:
		for _, part := range wrapped {
			obj, ok := part.(map[string]any)
			if !ok {
				continue
			}
			text, ok := obj["text"].(string)
			if !ok {
				continue
			}
			if parsed, err := parseSuggestion(text); err == nil {
				return parsed, true
			}
		}
	}
	return Suggestion{}, false
}

func decodeSuggestionJSON(raw string) (Suggestion, error) {
	trimmed := preprocessStructuredText(raw)

	var direct Suggestion
	if err := json.Unmarshal([]byte(trimmed), &direct); err == nil && strings.TrimSpace(direct.Command) != "" {
		return direct, nil
	}

	var loose map[string]any
	if err := json.Unmarshal([]byte(trimmed), &loose); err != nil {
		if extracted, ok := extractJSONObject(trimmed); ok && strings.TrimSpace(extracted) != strings.TrimSpace(trimmed) {
			return decodeSuggestionJSON(extracted)
		}
		return Suggestion{}, err
	}
	if adapted, ok := adaptLooseSuggestion(loose); ok {
		return adapted, nil
	}
	return Suggestion{}, fmt.Errorf("missing command field")
}

// normalizeSuggestion enforces the reply contract: trimmed command, a known
// risk level (unknown collapses to low), a non-empty reason, and confidence
// clamped into [0, 1].
func normalizeSuggestion(in Suggestion) Suggestion {
	out := in
	out.Command = strings.TrimSpace(out.Command)
	switch strings.ToLower(strings.TrimSpace(out.Risk)) {
	case "medium":
		out.Risk = "medium"
	case "high":
		out.Risk = "high"
	default:
		out.Risk = "low"
	}
	if strings.TrimSpace(out.Reason) == "" {
		out.Reason = ReasonFallback
	}
	out.Confidence = min(max(out.Confidence, 0), 1)
	return out
}

func readPreferredOutput(req Request, stdout string) string {
	outputFile, _ := req.Context["output_file"].(string)
	if outputFile == "" {
		return stdout
	}
	payload, err := os.ReadFile(outputFile)
	if err != nil {
		return stdout
	}
	if content := strings.TrimSpace(string(payload)); content != "" {
		return content
	}
	return stdout
}

// extractJSONObject returns the first balanced top-level {...} in raw,
// ignoring braces inside JSON strings.
func extractJSONObject(raw string) (string, bool) {
	depth, start := 0, -1
	inString, escaped := false, false
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			if depth == 0 {
				start = i
			}
			depth++
		case c == '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				return raw[start : i+1], true
			}
		}
	}
	return "", false
}

// preprocessStructuredText strips a surrounding markdown fence. A language
// tag on the opening fence line drops; a fence that opens straight into the
// payload keeps its first line.
func preprocessStructuredText(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	body := strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		head := strings.TrimSpace(body[:nl])
		if !strings.HasPrefix(head, "{") && !strings.HasPrefix(head, "[") {
			body = body[nl+1:]
		}
	}
	if fence := strings.LastIndex(body, "```"); fence >= 0 {
		body = body[:fence]
	}
	return strings.TrimSpace(body)
}

func truncate(text string, max int) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) > max {
		return trimmed[:max] + "..."
	}
	return trimmed
}

// adaptLooseSuggestion salvages a reply that is JSON but not our schema, as
// long as something recognizable as a command is present. Unknown shapes get
// conservative defaults: confirmation required, and confidence well under
// any auto-run threshold unless the payload said otherwise.
func adaptLooseSuggestion(payload map[string]any) (Suggestion, bool) {
	command := firstString(payload, "command", "cmd", "suggestion")
	if command == "" {
		return Suggestion{}, false
	}
	suggestion := Suggestion{
		Command:           command,
		Reason:            firstString(payload, "reason", "rationale", "explanation", "message"),
		Risk:              strings.ToLower(strings.TrimSpace(asString(payload["risk"]))),
		NeedsConfirmation: true,
	}
	if suggestion.Risk == "" {
		suggestion.Risk = "low"
	}
	if value, ok := asFloat(payload["confidence"]); ok {
		suggestion.Confidence = value
	} else if suggestion.Reason != "" {
		suggestion.Confidence = 0.75
	} else {
		suggestion.Confidence = 0.45
	}
	if explicit, ok := asBool(payload["needs_confirmation"]); ok {
		suggestion.NeedsConfirmation = explicit
	}
	return suggestion, true
}

func firstString(payload map[string]any, keys ...string) string {
	for _, key := range keys {
		if value := asString(payload[key]); value != "" {
			return value
		}
	}
	return ""
}

// asString and friends read fields out of an Unmarshal-produced map, where
// the only possible dynamic types are nil, bool, float64, string, slice,
// and map. Quoted numbers and bools still show up in the wild, so the
// string forms are accepted too.
func asString(value any) string {
	text, _ := value.(string)
	return strings.TrimSpace(text)
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return parsed, err == nil
	}
	return 0, false
}

func asBool(value any) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "1":
			return true, true
		case "false", "no", "0":
			return false, true
		}
	}
	return false, false
}
