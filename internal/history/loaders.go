// Package history reads shell history files (zsh, bash, fish), filters out
// secrets and pasted output, and serves recent commands for seeding and
// prompt context.
package history

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/wut-cli/wut/internal/validate"
)

type Entry struct {
	Command   string
	Timestamp time.Time
	FirstSeen time.Time
	Source    string
	Repeats   int
	order     int
	approxTS  bool
}

const (
	maxHistoryLineBytes = 1024 * 1024
	maxEntries          = 12000
)

var promptClockSuffix = regexp.MustCompile(`\s{2,}\d{1,2}:\d{2}$`)

type historySource struct {
	name string
	file string // relative to the home directory
	load func(string) ([]Entry, error)
}

var historySources = []historySource{
	{name: "zsh", file: ".zsh_history", load: loadZshHistory},
	{name: "bash", file: ".bash_history", load: loadBashHistory},
	{name: "fish", file: filepath.Join(".local", "share", "fish", "fish_history"), load: loadFishHistory},
}

// LoadEntries reads every known history file, newest first.
func LoadEntries() ([]Entry, error) {
	return LoadEntriesFiltered(nil)
}

// LoadEntriesFiltered reads history restricted to the named sources (zsh,
// bash, fish). An empty list means all of them. Unreadable files are skipped;
// a shell the user never ran is not an error.
func LoadEntriesFiltered(sources []string) ([]Entry, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("could not determine home directory: %w", err)
	}

	wanted := make(map[string]bool, len(sources))
	for _, source := range sources {
		wanted[strings.ToLower(strings.TrimSpace(source))] = true
	}

	var entries []Entry
	for _, src := range historySources {
		if len(wanted) > 0 && !wanted[src.name] {
			continue
		}
		loaded, err := src.load(filepath.Join(home, src.file))
		if err != nil {
			continue
		}
		entries = append(entries, loaded...)
	}
	if len(entries) == 0 {
		return nil, nil
	}
	for i := range entries {
		entries[i].order = i
	}

	entries = dedupeEntries(entries)
	sort.Slice(entries, func(i, j int) bool { return newerFirst(entries[i], entries[j]) })
	if len(entries) > maxEntries {
		entries = entries[:maxEntries]
	}
	return entries, nil
}

// RecentCommands returns up to n of the most recent distinct commands for
// prompt context.
func RecentCommands(n int) []string {
	if n <= 0 {
		return nil
	}
	entries, err := LoadEntries()
	if err != nil || len(entries) == 0 {
		return nil
	}
	if len(entries) > n {
		entries = entries[:n]
	}
	commands := make([]string, 0, len(entries))
	for _, entry := range entries {
		commands = append(commands, entry.Command)
	}
	return commands
}

// newerFirst orders by timestamp, breaking ties by file position so the line
// written later wins.
func newerFirst(a, b Entry) bool {
	if a.Timestamp.Equal(b.Timestamp) {
		return a.order > b.order
	}
	return a.Timestamp.After(b.Timestamp)
}

// dedupeEntries keeps the newest entry per command; duplicates fold into the
// survivor's Repeats count and FirstSeen timestamp.
func dedupeEntries(entries []Entry) []Entry {
	latestByCommand := make(map[string]Entry, len(entries))
	for _, entry := range entries {
		cmd := normalizeHistoryCommand(entry.Command)
		if !keepHistoryLine(cmd) {
			continue
		}
		entry.Command = cmd
		key := strings.ToLower(cmd)

		current, ok := latestByCommand[key]
		if !ok {
			entry.Repeats = 1
			entry.FirstSeen = entry.Timestamp
			latestByCommand[key] = entry
			continue
		}
		merged := current
		if entry.Timestamp.After(current.Timestamp) || (entry.Timestamp.Equal(current.Timestamp) && entry.order > current.order) {
			merged = entry
			merged.FirstSeen = current.FirstSeen
		}
		merged.Repeats = current.Repeats + 1
		if entry.Timestamp.Before(merged.FirstSeen) {
			merged.FirstSeen = entry.Timestamp
		}
		latestByCommand[key] = merged
	}
	out := make([]Entry, 0, len(latestByCommand))
	for _, entry := range latestByCommand {
		out = append(out, entry)
	}
	return out
}

// keepHistoryLine decides whether a normalized line is a real command worth
// remembering at all.
func keepHistoryLine(cmd string) bool {
	return cmd != "" && !isSensitiveCommand(cmd) && !isLikelyShellOutput(cmd) && !isInternalCommand(cmd)
}

func normalizeHistoryCommand(command string) string {
	cmd := strings.TrimSpace(command)
	for strings.HasSuffix(cmd, `\`) {
		cmd = strings.TrimSpace(strings.TrimSuffix(cmd, `\`))
	}
	return strings.TrimSpace(promptClockSuffix.ReplaceAllString(cmd, ""))
}

// loadHistoryFile owns the open/scan/close plumbing shared by every shell
// format; parse consumes the scanner line by line.
func loadHistoryFile(path string, parse func(*bufio.Scanner) []Entry) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxHistoryLineBytes)
	entries := parse(scanner)
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	backfillTimestamps(entries)
	return entries, nil
}

func loadZshHistory(path string) ([]Entry, error) {
	return loadHistoryFile(path, parseZshLines)
}

func loadBashHistory(path string) ([]Entry, error) {
	return loadHistoryFile(path, parseBashLines)
}

func loadFishHistory(path string) ([]Entry, error) {
	return loadHistoryFile(path, parseFishLines)
}

func parseZshLines(scanner *bufio.Scanner) []Entry {
	var entries []Entry
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		command, timestamp := parseZshLine(line)
		entries = append(entries, Entry{
			Command:   command,
			Timestamp: timestamp,
			Source:    "zsh",
			approxTS:  timestamp.IsZero(),
		})
	}
	return entries
}

// parseZshLine splits the extended-history form ": <epoch>:<duration>;<cmd>".
// Plain lines come back untimed.
func parseZshLine(line string) (string, time.Time) {
	if !strings.HasPrefix(line, ": ") {
		return line, time.Time{}
	}
	meta, command, found := strings.Cut(strings.TrimPrefix(line, ": "), ";")
	if !found {
		return line, time.Time{}
	}
	epochField, _, _ := strings.Cut(meta, ":")
	if timestamp, ok := parseEpoch(epochField); ok {
		return command, timestamp
	}
	return command, time.Time{}
}

func parseBashLines(scanner *bufio.Scanner) []Entry {
	var entries []Entry
	var pending time.Time
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			// HISTTIMEFORMAT writes "#<epoch>" before each command; any
			// other comment invalidates the pending stamp.
			pending, _ = parseEpoch(strings.TrimPrefix(line, "#"))
			continue
		}
		entries = append(entries, Entry{
			Command:   line,
			Timestamp: pending,
			Source:    "bash",
			approxTS:  pending.IsZero(),
		})
		pending = time.Time{}
	}
	return entries
}

func parseFishLines(scanner *bufio.Scanner) []Entry {
	var entries []Entry
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "- cmd:") {
			command := strings.TrimSpace(strings.TrimPrefix(line, "- cmd:"))
			if command == "" {
				continue
			}
			entries = append(entries, Entry{Command: command, Source: "fish", approxTS: true})
			continue
		}
		if len(entries) == 0 || !strings.HasPrefix(line, "when:") {
			continue
		}
		if timestamp, ok := parseEpoch(strings.TrimPrefix(line, "when:")); ok {
			entries[len(entries)-1].Timestamp = timestamp
			entries[len(entries)-1].approxTS = false
		}
	}
	return entries
}

// backfillTimestamps gives untimed entries synthetic near-now timestamps that
// preserve file order: the last untimed line sits closest to now.
func backfillTimestamps(entries []Entry) {
	var untimed []int
	for i := range entries {
		if entries[i].Timestamp.IsZero() {
			untimed = append(untimed, i)
		}
	}
	if len(untimed) == 0 {
		return
	}
	start := time.Now().UTC().Add(-time.Duration(len(untimed)) * time.Second)
	for n, i := range untimed {
		entries[i].Timestamp = start.Add(time.Duration(n) * time.Second)
		entries[i].approxTS = true
	}
}

func parseEpoch(s string) (time.Time, bool) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || v <= 0 {
		return time.Time{}, false
	}
	return time.Unix(v, 0).UTC(), true
}

// sensitiveFragments flags history lines that embed credentials. Matching is
// substring, so plain and export-prefixed assignments both hit.
var sensitiveFragments = []string{
	"aws_access_key_id=",
	"aws_secret_access_key=",
	"aws_session_token=",
	"password=",
	"passwd",
	"token=",
	"secret=",
	"private_key",
	"authorization: bearer",
}

func isSensitiveCommand(command string) bool {
	low := strings.ToLower(command)
	for _, fragment := range sensitiveFragments {
		if strings.Contains(low, fragment) {
			return true
		}
	}
	return false
}

// outputPrefixes open lines that shells and tools print, not lines users
// type.
var outputPrefixes = []string{
	"bash:", "zsh:", "fish:",
	"error:", "fatal:", "usage:",
	"reason:", "source:", "tip:",
	"suggested command:",
	"top matches for:",
	"cancelled. command not executed.",
}

var outputFragments = []string{
	"command not found",
	"[error]",
	"do you want to",
	"run this command? [y/n]",
	"worktree created",
	"created successfully",
}

// isLikelyShellOutput guesses whether a history line is pasted program output
// rather than a command. History files happily record both.
func isLikelyShellOutput(command string) bool {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return true
	}
	first, _ := utf8.DecodeRuneInString(trimmed)
	if first == utf8.RuneError || first > unicode.MaxASCII || !isLikelyCommandStarter(first) {
		return true
	}
	low := strings.ToLower(trimmed)
	if isEnumeratedOutputLine(low) {
		return true
	}
	for _, prefix := range outputPrefixes {
		if strings.HasPrefix(low, prefix) {
			return true
		}
	}
	for _, fragment := range outputFragments {
		if strings.Contains(low, fragment) {
			return true
		}
	}
	return looksLikeToolError(low) || looksLikeNarrativeOutput(trimmed, low)
}

// isEnumeratedOutputLine catches numbered list lines like "1. git push" that
// pagers and assistants leave behind.
func isEnumeratedOutputLine(low string) bool {
	digits := 0
	for digits < len(low) && low[digits] >= '0' && low[digits] <= '9' {
		digits++
	}
	if digits == 0 || digits+1 >= len(low) {
		return false
	}
	return (low[digits] == '.' || low[digits] == ')') && low[digits+1] == ' '
}

func looksLikeToolError(low string) bool {
	fields := strings.Fields(low)
	if len(fields) < 2 {
		return false
	}
	switch fields[1] {
	case "error", "warn", "warning":
	default:
		return false
	}
	switch fields[0] {
	case "npm", "pnpm", "yarn", "pip", "poetry", "go", "cargo", "aws", "terraform", "docker", "kubectl":
		return true
	}
	return false
}

// narrativeWords are glue words English sentences carry but shell commands
// rarely do; two or more in a long punctuated line means prose.
var narrativeWords = func() map[string]struct{} {
	words := strings.Fields(
		"the this that is are was were for with from and or to of in on" +
			" only directly matches request command candidates operations unrelated")
	set := make(map[string]struct{}, len(words))
	for _, word := range words {
		set[word] = struct{}{}
	}
	return set
}()

func looksLikeNarrativeOutput(trimmed string, low string) bool {
	fields := strings.Fields(low)
	if len(fields) < 7 || !strings.ContainsAny(low, ".!?") {
		return false
	}
	if strings.Contains(trimmed, " -") || strings.ContainsAny(trimmed, "|&;$<>`/\\") {
		return false
	}
	count := 0
	for _, field := range fields {
		if _, ok := narrativeWords[strings.Trim(field, `"'.,!?;:()[]{}<>`)]; ok {
			count++
		}
	}
	return count >= 2
}

func isLikelyCommandStarter(r rune) bool {
	switch r {
	case '.', '/', '_', '~':
		return true
	}
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// isInternalCommand drops this tool's own invocations so seeding and search
// never learn from them.
func isInternalCommand(command string) bool {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return true
	}
	low := strings.ToLower(trimmed)
	if strings.Contains(low, "go run ./cmd/wut") || strings.Contains(low, "go run ./cmd/_wut") {
		return true
	}
	base := strings.ToLower(filepath.Base(validate.LeadingToken(trimmed)))
	return base == "wut" || base == "_wut"
}
