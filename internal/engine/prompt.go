package engine

import (
	"strings"

	"github.com/wut-cli/wut/internal/config"
	"github.com/wut-cli/wut/internal/history"
	"github.com/wut-cli/wut/internal/knowledge"
	"github.com/wut-cli/wut/internal/systemprofile"
)

const promptRecentCommands = 3

// BuildPrompt renders the generation prompt: instruction, machine context,
// recent shell history, learned patterns, then the task. Context blocks that
// have nothing to say are omitted entirely.
func BuildPrompt(cfg config.Config, query string) string {
	var b strings.Builder
	b.WriteString("You convert a task written in plain language into one shell command.\n")

	if cfg.System.EnableContext {
		profile, _, err := systemprofile.Ensure(systemprofile.Options{RefreshHours: cfg.System.RefreshHours})
		if err == nil {
			if machine := profile.PromptContext(cfg.System.MaxPromptItems); machine != "" {
				b.WriteString("Machine:\n")
				writeIndented(&b, strings.Split(machine, "\n"))
			}
		}
	}

	if recents := history.RecentCommands(promptRecentCommands); len(recents) > 0 {
		b.WriteString("Recent commands:\n")
		writeIndented(&b, recents)
	}

	if cfg.Context.Enabled {
		if doc, err := knowledge.Load(); err == nil {
			if lines := knowledge.PromptLines(doc, cfg.Context.MaxPromptLines); len(lines) > 0 {
				b.WriteString("Patterns that worked before:\n")
				writeIndented(&b, lines)
			}
		}
	}

	b.WriteString("Task: ")
	b.WriteString(query)
	b.WriteString("\nReply with shell commands only, one per line, best answer first. No prose, no code fences.\n")
	return b.String()
}

// buildExplainPrompt asks for the command back with a one-sentence
// explanation after " # ". Explain parses exactly that shape.
func buildExplainPrompt(command string) string {
	var b strings.Builder
	b.WriteString("Explain what this shell command does.\n")
	b.WriteString("Command: ")
	b.WriteString(command)
	b.WriteString("\nReply with one line: the command, then \" # \", then one short sentence. No other text.\n")
	return b.String()
}

func writeIndented(b *strings.Builder, lines []string) {
	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		b.WriteString("  ")
		b.WriteString(line)
		b.WriteString("\n")
	}
}
