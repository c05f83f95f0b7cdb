// Package systemprofile captures a small picture of the machine wut runs on:
// OS, shell, package manager, installed tools. The profile is folded into
// generation prompts so the model suggests commands that exist here, and it
// is recaptured on demand rather than on a timer in the hot path.
package systemprofile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/wut-cli/wut/internal/appdirs"
)

const (
	profileFileName     = "system_profile.json"
	schemaVersion       = 1
	defaultRefreshHours = 24 * 7

	// git config can hang on broken network filesystems; keep it on a leash.
	gitProbeTimeout = 800 * time.Millisecond
)

// Options govern one Ensure call. AllowCapture permits creating or refreshing
// the profile; without it Ensure only serves what is already on disk, so
// suggestion-path callers never pay for a capture.
type Options struct {
	AllowCapture bool
	RefreshHours int
}

// Status reports what Ensure actually did.
type Status struct {
	Created   bool
	Refreshed bool
}

// Profile is the persisted snapshot of this machine. CapturedAt is RFC3339
// in UTC so staleness math survives timezone hops.
type Profile struct {
	Version    int    `json:"version"`
	CapturedAt string `json:"captured_at"`

	OS             string `json:"os"`
	Arch           string `json:"arch"`
	Shell          string `json:"shell,omitempty"`
	PackageManager string `json:"package_manager,omitempty"`
	Locale         string `json:"locale,omitempty"`

	ConfigFiles     []string `json:"config_files,omitempty"`
	Tools           []string `json:"tools,omitempty"`
	GitGlobalIgnore string   `json:"git_global_ignore,omitempty"`

	// UserNote is the free-text line collected during onboarding. It is the
	// one field that survives recaptures.
	UserNote string `json:"user_note,omitempty"`
}

// Ensure returns the current profile, capturing a new one only when allowed
// and needed. A usable profile on disk is served as-is unless it has gone
// stale; a stale, corrupt, or missing one is recaptured when capture is
// allowed, and the user's note carries over.
func Ensure(opts Options) (Profile, Status, error) {
	if opts.RefreshHours <= 0 {
		opts.RefreshHours = defaultRefreshHours
	}

	path, err := appdirs.StateFilePath(profileFileName)
	if err != nil {
		return Profile{}, Status{}, err
	}

	current, exists, readErr := readProfile(path)
	usable := exists && readErr == nil
	if !opts.AllowCapture {
		if usable {
			return current, Status{}, nil
		}
		return Profile{}, Status{}, nil
	}
	if usable && !current.IsStale(opts.RefreshHours) {
		return current, Status{}, nil
	}

	captured := Capture()
	if note := strings.TrimSpace(current.UserNote); exists && note != "" {
		captured.UserNote = note
	}
	if writeErr := writeProfile(path, captured); writeErr != nil {
		// A stale copy beats an error the caller cannot act on.
		if usable {
			return current, Status{}, nil
		}
		return Profile{}, Status{}, writeErr
	}
	return captured, Status{Created: !exists, Refreshed: exists}, nil
}

// Save persists a profile, typically after the user edited the note.
func Save(profile Profile) error {
	path, err := appdirs.StateFilePath(profileFileName)
	if err != nil {
		return err
	}
	return writeProfile(path, profile)
}

// Capture inspects the machine right now. It never fails; fields whose
// detection comes up empty are simply omitted.
func Capture() Profile {
	profile := Profile{
		Version:         schemaVersion,
		CapturedAt:      time.Now().UTC().Format(time.RFC3339),
		OS:              runtime.GOOS,
		Arch:            runtime.GOARCH,
		Shell:           detectShell(),
		PackageManager:  detectPackageManager(),
		Locale:          detectLocale(),
		ConfigFiles:     detectConfigFiles(),
		Tools:           detectTools(),
		GitGlobalIgnore: detectGitGlobalIgnore(),
	}
	profile.normalize()
	return profile
}

func (p Profile) IsStale(refreshHours int) bool {
	if refreshHours <= 0 {
		refreshHours = defaultRefreshHours
	}
	capturedAt, err := time.Parse(time.RFC3339, strings.TrimSpace(p.CapturedAt))
	if err != nil {
		return true
	}
	// A future timestamp (clock skew) reads as fresh, not stale.
	return time.Since(capturedAt) > time.Duration(refreshHours)*time.Hour
}

// PromptContext renders the profile as the compact key=value lines that go
// into a generation prompt. maxItems caps list fields so a tool-heavy
// machine cannot crowd out the query.
func (p Profile) PromptContext(maxItems int) string {
	p.normalize()
	if maxItems <= 0 {
		maxItems = 16
	}

	appendKV := func(list []string, key, value string) []string {
		if strings.TrimSpace(value) == "" {
			return list
		}
		return append(list, key+"="+strings.TrimSpace(value))
	}

	base := make([]string, 0, 5)
	base = appendKV(base, "os", p.OS)
	base = appendKV(base, "arch", p.Arch)
	base = appendKV(base, "shell", p.Shell)
	base = appendKV(base, "pkg", p.PackageManager)
	base = appendKV(base, "locale", p.Locale)

	lines := make([]string, 0, 6)
	if len(base) > 0 {
		lines = append(lines, strings.Join(base, " "))
	}
	if len(p.ConfigFiles) > 0 {
		lines = append(lines, "config_files="+strings.Join(capList(p.ConfigFiles, maxItems/2), ", "))
	}
	if len(p.Tools) > 0 {
		lines = append(lines, "tools="+strings.Join(capList(p.Tools, maxItems), ", "))
	}
	lines = appendKV(lines, "git_global_ignore", p.GitGlobalIgnore)
	lines = appendKV(lines, "user_note", p.UserNote)
	return strings.Join(lines, "\n")
}

// HumanSummary is PromptContext reshaped as bullets for the onboarding card.
func (p Profile) HumanSummary(maxItems int) string {
	context := p.PromptContext(maxItems)
	if context == "" {
		return ""
	}
	var b strings.Builder
	for _, line := range strings.Split(context, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(line)
	}
	return b.String()
}

func detectShell() string {
	if shell := strings.TrimSpace(os.Getenv("SHELL")); shell != "" {
		return filepath.Base(shell)
	}
	if runtime.GOOS == "windows" {
		if comspec := strings.TrimSpace(os.Getenv("COMSPEC")); comspec != "" {
			return filepath.Base(comspec)
		}
	}
	return ""
}

func detectPackageManager() string {
	managers := []string{"brew", "apt-get", "apt", "dnf", "yum", "pacman", "apk", "zypper", "winget"}
	for _, manager := range managers {
		if _, err := exec.LookPath(manager); err == nil {
			return manager
		}
	}
	return ""
}

func detectLocale() string {
	for _, key := range []string{"WUT_LOCALE", "LC_ALL", "LC_MESSAGES", "LANG"} {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			return value
		}
	}
	return ""
}

func detectConfigFiles() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	relative := []string{
		".zshrc",
		".bashrc",
		".bash_profile",
		".profile",
		filepath.Join(".config", "fish", "config.fish"),
		".gitconfig",
		".gitignore_global",
		filepath.Join(".config", "git", "ignore"),
	}
	var found []string
	for _, rel := range relative {
		if _, err := os.Stat(filepath.Join(home, rel)); err == nil {
			found = append(found, "~"+string(os.PathSeparator)+rel)
		}
	}
	return cleanList(found)
}

// toolCandidates is the closed set of binaries Capture probes for. Probing a
// fixed list keeps Capture fast and keeps surprise PATH contents out of the
// prompt.
var toolCandidates = []string{
	"git", "gh", "docker", "kubectl", "terraform", "terragrunt", "aws",
	"python3", "python", "uv", "node", "npm", "pnpm", "yarn", "go",
	"rustc", "cargo", "brew", "jq", "rg", "fzf", "make", "curl", "tar",
	"ssh", "llama-cli", "llama-server",
}

func detectTools() []string {
	installed := make([]string, 0, len(toolCandidates))
	for _, tool := range toolCandidates {
		if _, err := exec.LookPath(tool); err == nil {
			installed = append(installed, tool)
		}
	}
	return cleanList(installed)
}

func detectGitGlobalIgnore() string {
	if _, err := exec.LookPath("git"); err != nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(context.Background(), gitProbeTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "git", "config", "--global", "core.excludesFile").Output()
	value := strings.TrimSpace(string(out))
	if err != nil || value == "" {
		return ""
	}
	if home, homeErr := os.UserHomeDir(); homeErr == nil {
		return homeRelative(value, home)
	}
	return value
}

func readProfile(path string) (Profile, bool, error) {
	payload, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return Profile{}, false, nil
	case err != nil:
		return Profile{}, false, fmt.Errorf("could not read profile file: %w", err)
	}
	var profile Profile
	if err := json.Unmarshal(payload, &profile); err != nil {
		return Profile{}, true, fmt.Errorf("could not parse profile file: %w", err)
	}
	profile.normalize()
	return profile, true, nil
}

// writeProfile replaces the file atomically and keeps it 0600; the profile
// names real paths and tools on this machine.
func writeProfile(path string, profile Profile) error {
	profile.normalize()
	payload, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return fmt.Errorf("could not serialize system profile: %w", err)
	}
	dir, err := appdirs.EnsureStateDir()
	if err != nil {
		return err
	}

	// CreateTemp opens 0600, so the snapshot is never world-readable, not
	// even between write and rename.
	tempFile, err := os.CreateTemp(dir, ".wut-system-profile-*.json")
	if err != nil {
		return fmt.Errorf("could not stage profile write: %w", err)
	}
	tempPath := tempFile.Name()

	_, writeErr := tempFile.Write(payload)
	closeErr := tempFile.Close()
	if writeErr == nil {
		writeErr = closeErr
	}
	if writeErr == nil {
		writeErr = os.Rename(tempPath, path)
	}
	if writeErr == nil {
		// Rename keeps the temp file's mode on POSIX filesystems; the chmod
		// makes the guarantee explicit everywhere else.
		writeErr = os.Chmod(path, 0o600)
	}
	if writeErr != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("could not persist system profile: %w", writeErr)
	}
	return nil
}

func (p *Profile) normalize() {
	lower := func(s string) string { return strings.TrimSpace(strings.ToLower(s)) }
	p.Version = max(p.Version, schemaVersion)
	p.CapturedAt = strings.TrimSpace(p.CapturedAt)
	p.OS = lower(p.OS)
	p.Arch = lower(p.Arch)
	if p.Shell != "" {
		p.Shell = lower(filepath.Base(p.Shell))
	}
	p.PackageManager = lower(p.PackageManager)
	p.Locale = strings.TrimSpace(p.Locale)
	p.GitGlobalIgnore = strings.TrimSpace(p.GitGlobalIgnore)
	p.UserNote = strings.TrimSpace(p.UserNote)
	p.ConfigFiles = cleanList(p.ConfigFiles)
	p.Tools = cleanList(p.Tools)
}

// cleanList trims, drops empties, dedupes case-insensitively, and sorts.
func cleanList(values []string) []string {
	unique := make(map[string]string, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			unique[strings.ToLower(trimmed)] = trimmed
		}
	}
	if len(unique) == 0 {
		return nil
	}
	out := make([]string, 0, len(unique))
	for _, spelling := range unique {
		out = append(out, spelling)
	}
	sort.Strings(out)
	return out
}

// capList truncates to limit entries and appends a "+N more" marker so the
// prompt line still says how much was cut.
func capList(values []string, limit int) []string {
	if limit <= 0 || limit >= len(values) {
		return values
	}
	out := append([]string(nil), values[:limit]...)
	return append(out, fmt.Sprintf("+%d more", len(values)-limit))
}

func homeRelative(path string, home string) string {
	path = strings.TrimSpace(path)
	home = strings.TrimSpace(home)
	if path == "" || home == "" || strings.HasPrefix(path, "~/") {
		return path
	}
	cleanPath := filepath.Clean(path)
	cleanHome := filepath.Clean(home)
	switch {
	case cleanPath == cleanHome:
		return "~"
	case strings.HasPrefix(cleanPath, cleanHome+string(os.PathSeparator)):
		rest := strings.TrimPrefix(cleanPath, cleanHome+string(os.PathSeparator))
		return "~" + string(os.PathSeparator) + rest
	}
	return path
}
