// Package knowledge maintains the learned-context document: a structured
// model of per-domain command examples persisted as JSON, rendered into a
// human-readable markdown doc. The doc is always regenerated whole from the
// model and swapped in atomically; the previous rendering is backed up first,
// so an interrupted rewrite never leaves a truncated document behind.
package knowledge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/wut-cli/wut/internal/appdirs"
	"github.com/wut-cli/wut/internal/logging"
)

const (
	docFileName   = "knowledge.md"
	modelFileName = "knowledge.json"
	backupDirName = "knowledge_backups"
	backupStamp   = "20060102-150405"
	backupKeep    = 20
	schemaVersion = 1
)

type Example struct {
	Context string `json:"context"`
	Command string `json:"command"`
	AddedAt string `json:"added_at"`
}

type Section struct {
	Domain    string    `json:"domain"`
	Successes int       `json:"successes"`
	Examples  []Example `json:"examples"`
}

type Document struct {
	Version   int       `json:"version"`
	UpdatedAt string    `json:"updated_at"`
	Sections  []Section `json:"sections"`
}

// Load reads the structured model. Missing file means nothing learned yet.
// The markdown doc is never parsed back; the model is the source of truth.
func Load() (Document, error) {
	path, err := appdirs.StateFilePath(modelFileName)
	if err != nil {
		return Document{}, err
	}
	payload, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Document{Version: schemaVersion}, nil
	}
	if err != nil {
		return Document{}, fmt.Errorf("could not read knowledge model: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		logging.L().WithField("path", path).Warnf("knowledge model corrupt, starting over: %v", err)
		if renameErr := os.Rename(path, path+".corrupt"); renameErr != nil {
			logging.L().Warnf("could not set aside corrupt knowledge model: %v", renameErr)
		}
		return Document{Version: schemaVersion}, nil
	}
	if doc.Version == 0 {
		doc.Version = schemaVersion
	}
	doc.normalize()
	return doc, nil
}

// Learn records one context→command example under a domain section. Examples
// are deduplicated by (context, command); the return value reports whether
// the document actually changed.
func (d *Document) Learn(domain, context, command string) bool {
	domain = strings.ToLower(strings.TrimSpace(domain))
	context = strings.TrimSpace(context)
	command = strings.TrimSpace(command)
	if domain == "" || context == "" || command == "" {
		return false
	}
	idx := d.sectionIndex(domain)
	if idx < 0 {
		d.Sections = append(d.Sections, Section{Domain: domain})
		idx = len(d.Sections) - 1
	}
	for _, example := range d.Sections[idx].Examples {
		if example.Context == context && example.Command == command {
			return false
		}
	}
	d.Sections[idx].Examples = append(d.Sections[idx].Examples, Example{
		Context: context,
		Command: command,
		AddedAt: time.Now().UTC().Format(time.RFC3339),
	})
	d.normalize()
	return true
}

// RecordSuccess bumps the per-domain confirmed tally and makes sure the
// (context, command) pair that succeeded is kept as an example.
func (d *Document) RecordSuccess(domain, context, command string) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return
	}
	d.Learn(domain, context, command)
	idx := d.sectionIndex(domain)
	if idx < 0 {
		d.Sections = append(d.Sections, Section{Domain: domain, Successes: 1})
		d.normalize()
		return
	}
	d.Sections[idx].Successes++
}

// EnsureSection guarantees a domain heading exists without recording any
// example or success. It reports whether the document changed.
func (d *Document) EnsureSection(domain string) bool {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return false
	}
	if d.sectionIndex(domain) >= 0 {
		return false
	}
	d.Sections = append(d.Sections, Section{Domain: domain})
	d.normalize()
	return true
}

func (d *Document) sectionIndex(domain string) int {
	for idx, section := range d.Sections {
		if section.Domain == domain {
			return idx
		}
	}
	return -1
}

// normalize keeps sections ordered by domain and examples chronological,
// deduplicated by (context, command).
func (d *Document) normalize() {
	sections := make([]Section, 0, len(d.Sections))
	for _, section := range d.Sections {
		section.Domain = strings.ToLower(strings.TrimSpace(section.Domain))
		if section.Domain == "" {
			continue
		}
		examples := make([]Example, 0, len(section.Examples))
		seen := map[string]struct{}{}
		for _, example := range section.Examples {
			example.Context = strings.TrimSpace(example.Context)
			example.Command = strings.TrimSpace(example.Command)
			if example.Context == "" || example.Command == "" {
				continue
			}
			key := example.Context + "\x00" + example.Command
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			examples = append(examples, example)
		}
		sort.SliceStable(examples, func(i, j int) bool {
			return examples[i].AddedAt < examples[j].AddedAt
		})
		section.Examples = examples
		sections = append(sections, section)
	}
	sort.SliceStable(sections, func(i, j int) bool {
		return sections[i].Domain < sections[j].Domain
	})
	d.Sections = sections
}

// Render produces the whole markdown doc from the model. The doc is never
// patched in place; rendering the full model is the only way it is written.
func Render(doc Document) string {
	doc.normalize()
	var b strings.Builder
	b.WriteString("# Learned command patterns\n\n")
	if doc.UpdatedAt != "" {
		fmt.Fprintf(&b, "Updated: %s\n\n", doc.UpdatedAt)
	}
	if len(doc.Sections) == 0 {
		b.WriteString("Nothing learned yet.\n")
		return b.String()
	}
	for _, section := range doc.Sections {
		fmt.Fprintf(&b, "## %s\n\n", section.Domain)
		if section.Successes > 0 {
			fmt.Fprintf(&b, "Confirmed successes: %d\n\n", section.Successes)
		}
		for _, example := range section.Examples {
			fmt.Fprintf(&b, "- %s -> %s\n", example.Context, example.Command)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

// Save persists the model and regenerates the markdown doc. The current doc
// is copied into the backup dir before being replaced; a failed doc write is
// retried once and then reported to the caller, who treats it as a warning.
func Save(doc Document) (string, error) {
	doc.normalize()
	doc.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	if doc.Version == 0 {
		doc.Version = schemaVersion
	}

	modelPath, err := appdirs.StateFilePath(modelFileName)
	if err != nil {
		return "", err
	}
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("could not encode knowledge model: %w", err)
	}
	if _, err := appdirs.EnsureStateDir(); err != nil {
		return "", err
	}
	if err := writeAtomic(modelPath, payload); err != nil {
		return "", fmt.Errorf("could not write knowledge model: %w", err)
	}

	docPath, err := appdirs.StateFilePath(docFileName)
	if err != nil {
		return "", err
	}
	if err := backupDoc(docPath); err != nil {
		return "", err
	}
	rendered := []byte(Render(doc))
	if err := writeAtomic(docPath, rendered); err != nil {
		logging.L().Warnf("knowledge doc write failed, retrying once: %v", err)
		if err := writeAtomic(docPath, rendered); err != nil {
			return "", fmt.Errorf("could not write knowledge doc: %w", err)
		}
	}
	return docPath, nil
}

// backupDoc copies the current doc into the backup dir with a timestamped
// name before it gets replaced. No doc yet means nothing to back up.
func backupDoc(docPath string) error {
	current, err := os.ReadFile(docPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("could not read knowledge doc for backup: %w", err)
	}
	backupDir, err := appdirs.EnsureStateSubdir(backupDirName)
	if err != nil {
		return err
	}
	name := fmt.Sprintf("knowledge-%s.md", time.Now().UTC().Format(backupStamp))
	backupPath := filepath.Join(backupDir, name)
	if _, err := os.Stat(backupPath); err == nil {
		// Same-second rewrite; this state is already backed up.
		pruneBackups(backupDir)
		return nil
	}
	if err := os.WriteFile(backupPath, current, 0o600); err != nil {
		return fmt.Errorf("could not back up knowledge doc: %w", err)
	}
	pruneBackups(backupDir)
	return nil
}

func pruneBackups(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasPrefix(entry.Name(), "knowledge-") && strings.HasSuffix(entry.Name(), ".md") {
			names = append(names, entry.Name())
		}
	}
	if len(names) <= backupKeep {
		return
	}
	sort.Strings(names)
	for _, name := range names[:len(names)-backupKeep] {
		_ = os.Remove(filepath.Join(dir, name))
	}
}

func writeAtomic(path string, payload []byte) error {
	dir := filepath.Dir(path)
	tempFile, err := os.CreateTemp(dir, ".wut-knowledge-*")
	if err != nil {
		return fmt.Errorf("could not create temp knowledge file: %w", err)
	}
	tempPath := tempFile.Name()
	cleanup := func() {
		_ = os.Remove(tempPath)
	}
	if _, err := tempFile.Write(payload); err != nil {
		_ = tempFile.Close()
		cleanup()
		return fmt.Errorf("could not write temp knowledge file: %w", err)
	}
	if err := tempFile.Chmod(0o600); err != nil {
		_ = tempFile.Close()
		cleanup()
		return fmt.Errorf("could not secure temp knowledge file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		cleanup()
		return fmt.Errorf("could not close temp knowledge file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		cleanup()
		return fmt.Errorf("could not atomically replace knowledge file: %w", err)
	}
	return nil
}

// PromptLines flattens the newest examples across all sections for prompt
// context, oldest first so the most recent line sits closest to the query.
func PromptLines(doc Document, n int) []string {
	if n <= 0 {
		return nil
	}
	type dated struct {
		addedAt string
		line    string
	}
	flat := make([]dated, 0, 16)
	for _, section := range doc.Sections {
		for _, example := range section.Examples {
			flat = append(flat, dated{
				addedAt: example.AddedAt,
				line:    fmt.Sprintf("%s -> %s", example.Context, example.Command),
			})
		}
	}
	sort.SliceStable(flat, func(i, j int) bool {
		return flat[i].addedAt < flat[j].addedAt
	})
	if len(flat) > n {
		flat = flat[len(flat)-n:]
	}
	lines := make([]string, 0, len(flat))
	for _, item := range flat {
		lines = append(lines, item.line)
	}
	return lines
}

// DocPath returns where the rendered doc lives.
func DocPath() (string, error) {
	return appdirs.StateFilePath(docFileName)
}

// Clear removes the model, the rendered doc, and all backups. Callers
// confirm with the user first.
func Clear() error {
	modelPath, err := appdirs.StateFilePath(modelFileName)
	if err != nil {
		return err
	}
	docPath, err := appdirs.StateFilePath(docFileName)
	if err != nil {
		return err
	}
	for _, path := range []string{modelPath, docPath} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("could not clear knowledge state: %w", err)
		}
	}
	backupDir, err := appdirs.StateSubdir(backupDirName)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(backupDir); err != nil {
		return fmt.Errorf("could not clear knowledge backups: %w", err)
	}
	return nil
}
