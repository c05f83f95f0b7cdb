package knowledge

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wut-cli/wut/internal/appdirs"
)

func pointStateAt(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(dir, "state"))
	return dir
}

func TestLoadMissingModelMeansNothingLearned(t *testing.T) {
	pointStateAt(t)

	doc, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(doc.Sections) != 0 {
		t.Fatalf("expected empty document, got %d sections", len(doc.Sections))
	}
}

func TestLearnDeduplicatesAndOrders(t *testing.T) {
	var doc Document

	if !doc.Learn("docker", "list running containers", "docker ps") {
		t.Fatal("expected first example to change the document")
	}
	if doc.Learn("docker", "list running containers", "docker ps") {
		t.Fatal("expected duplicate (context, command) to be dropped")
	}
	if !doc.Learn("docker", "list running containers", "docker ps -a") {
		t.Fatal("expected same context with new command to be kept")
	}
	if !doc.Learn("git", "undo last commit", "git reset --soft HEAD~1") {
		t.Fatal("expected new domain to change the document")
	}

	if len(doc.Sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(doc.Sections))
	}
	if doc.Sections[0].Domain != "docker" || doc.Sections[1].Domain != "git" {
		t.Fatalf("expected sections ordered by domain, got %q, %q", doc.Sections[0].Domain, doc.Sections[1].Domain)
	}
	if len(doc.Sections[0].Examples) != 2 {
		t.Fatalf("expected 2 docker examples, got %d", len(doc.Sections[0].Examples))
	}
	if doc.Sections[0].Examples[0].Command != "docker ps" {
		t.Fatalf("expected examples in insertion order, got %q first", doc.Sections[0].Examples[0].Command)
	}
}

func TestEnsureSectionCreatesBareHeadingOnce(t *testing.T) {
	var doc Document

	if !doc.EnsureSection("Kubectl") {
		t.Fatal("expected new domain section to change the document")
	}
	if doc.EnsureSection("kubectl") {
		t.Fatal("expected existing section to be left alone")
	}
	if len(doc.Sections) != 1 || doc.Sections[0].Domain != "kubectl" {
		t.Fatalf("expected single lowercased section, got %+v", doc.Sections)
	}
	if doc.Sections[0].Successes != 0 || len(doc.Sections[0].Examples) != 0 {
		t.Fatalf("bare section must not invent successes or examples, got %+v", doc.Sections[0])
	}

	rendered := Render(doc)
	if !strings.Contains(rendered, "## kubectl") {
		t.Fatalf("expected rendered doc to keep the bare heading:\n%s", rendered)
	}
}

func TestRenderRegeneratesWholeDocument(t *testing.T) {
	var doc Document
	doc.Learn("docker", "list running containers", "docker ps")
	doc.Learn("git", "show working tree status", "git status")
	doc.RecordSuccess("docker", "list running containers", "docker ps")

	rendered := Render(doc)
	if !strings.HasPrefix(rendered, "# Learned command patterns") {
		t.Fatalf("unexpected doc header:\n%s", rendered)
	}
	dockerAt := strings.Index(rendered, "## docker")
	gitAt := strings.Index(rendered, "## git")
	if dockerAt < 0 || gitAt < 0 || dockerAt > gitAt {
		t.Fatalf("expected domain sections in order:\n%s", rendered)
	}
	if !strings.Contains(rendered, "- list running containers -> docker ps") {
		t.Fatalf("expected example line:\n%s", rendered)
	}
	if !strings.Contains(rendered, "Confirmed successes: 1") {
		t.Fatalf("expected success tally:\n%s", rendered)
	}
	if Render(doc) != rendered {
		t.Fatal("expected rendering to be deterministic")
	}
}

func TestSaveWritesDocAndModel(t *testing.T) {
	pointStateAt(t)

	var doc Document
	doc.Learn("docker", "list running containers", "docker ps")
	docPath, err := Save(doc)
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	payload, err := os.ReadFile(docPath)
	if err != nil {
		t.Fatalf("could not read rendered doc: %v", err)
	}
	if !strings.Contains(string(payload), "docker ps") {
		t.Fatalf("rendered doc missing example:\n%s", payload)
	}

	reloaded, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(reloaded.Sections) != 1 || reloaded.Sections[0].Domain != "docker" {
		t.Fatalf("model did not round-trip: %+v", reloaded)
	}

	info, err := os.Stat(docPath)
	if err != nil {
		t.Fatalf("stat doc failed: %v", err)
	}
	if info.Mode().Perm()&0o077 != 0 {
		t.Fatalf("expected private doc file, got mode %v", info.Mode())
	}
}

func TestSaveBacksUpPreviousDocBeforeOverwrite(t *testing.T) {
	pointStateAt(t)

	var doc Document
	doc.Learn("docker", "list running containers", "docker ps")
	if _, err := Save(doc); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	doc, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	doc.Learn("git", "show working tree status", "git status")
	if _, err := Save(doc); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	backupDir, err := appdirs.StateSubdir(backupDirName)
	if err != nil {
		t.Fatalf("could not resolve backup dir: %v", err)
	}
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		t.Fatalf("could not read backup dir: %v", err)
	}
	var backups []string
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), "knowledge-") && strings.HasSuffix(entry.Name(), ".md") {
			backups = append(backups, entry.Name())
		}
	}
	if len(backups) == 0 {
		t.Fatal("expected a timestamped backup of the previous doc")
	}
	payload, err := os.ReadFile(filepath.Join(backupDir, backups[0]))
	if err != nil {
		t.Fatalf("could not read backup: %v", err)
	}
	if !strings.Contains(string(payload), "docker ps") {
		t.Fatalf("backup does not hold the previous doc:\n%s", payload)
	}
	if strings.Contains(string(payload), "git status") {
		t.Fatalf("backup holds the new doc, not the previous one:\n%s", payload)
	}
}

func TestFailedRewriteLeavesPreviousDocIntact(t *testing.T) {
	pointStateAt(t)

	var doc Document
	doc.Learn("docker", "list running containers", "docker ps")
	docPath, err := Save(doc)
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	before, err := os.ReadFile(docPath)
	if err != nil {
		t.Fatalf("could not read doc: %v", err)
	}

	// Plant a file where the backup dir must be created so the rewrite
	// fails before the doc is touched.
	backupDir, err := appdirs.StateSubdir(backupDirName)
	if err != nil {
		t.Fatalf("could not resolve backup dir: %v", err)
	}
	if err := os.RemoveAll(backupDir); err != nil {
		t.Fatalf("could not remove backup dir: %v", err)
	}
	if err := os.WriteFile(backupDir, []byte("in the way"), 0o600); err != nil {
		t.Fatalf("could not plant blocking file: %v", err)
	}

	doc.Learn("git", "show working tree status", "git status")
	if _, err := Save(doc); err == nil {
		t.Fatal("expected Save to fail while the backup dir is blocked")
	}

	after, err := os.ReadFile(docPath)
	if err != nil {
		t.Fatalf("could not reread doc: %v", err)
	}
	if string(after) != string(before) {
		t.Fatalf("interrupted rewrite corrupted the doc:\nbefore:\n%s\nafter:\n%s", before, after)
	}
}

func TestPromptLinesReturnsNewestExamples(t *testing.T) {
	var doc Document
	doc.Sections = []Section{
		{Domain: "docker", Examples: []Example{
			{Context: "a", Command: "docker ps", AddedAt: "2026-01-01T00:00:00Z"},
			{Context: "b", Command: "docker images", AddedAt: "2026-01-03T00:00:00Z"},
		}},
		{Domain: "git", Examples: []Example{
			{Context: "c", Command: "git status", AddedAt: "2026-01-02T00:00:00Z"},
		}},
	}

	lines := PromptLines(doc, 2)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0] != "c -> git status" || lines[1] != "b -> docker images" {
		t.Fatalf("unexpected prompt lines: %v", lines)
	}
	if got := PromptLines(doc, 0); got != nil {
		t.Fatalf("expected no lines for n=0, got %v", got)
	}
}

func TestClearRemovesDocModelAndBackups(t *testing.T) {
	pointStateAt(t)

	var doc Document
	doc.Learn("docker", "list running containers", "docker ps")
	if _, err := Save(doc); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	doc.Learn("git", "show working tree status", "git status")
	if _, err := Save(doc); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	if err := Clear(); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	docPath, err := DocPath()
	if err != nil {
		t.Fatalf("DocPath() error: %v", err)
	}
	if _, err := os.Stat(docPath); !os.IsNotExist(err) {
		t.Fatalf("expected doc removed, stat err = %v", err)
	}
	reloaded, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(reloaded.Sections) != 0 {
		t.Fatalf("expected empty model after clear, got %+v", reloaded)
	}
}

func TestRecordSuccessEnsuresExampleAndBumpsTally(t *testing.T) {
	var doc Document
	doc.RecordSuccess("kubectl", "list pods in kube-system", "kubectl get pods -n kube-system")
	doc.RecordSuccess("kubectl", "list pods in kube-system", "kubectl get pods -n kube-system")

	if len(doc.Sections) != 1 {
		t.Fatalf("expected one section, got %d", len(doc.Sections))
	}
	section := doc.Sections[0]
	if section.Successes != 2 {
		t.Fatalf("expected 2 confirmed successes, got %d", section.Successes)
	}
	if len(section.Examples) != 1 {
		t.Fatalf("expected repeated success to keep one deduplicated example, got %d", len(section.Examples))
	}
	if section.Examples[0].Command != "kubectl get pods -n kube-system" {
		t.Fatalf("unexpected example command %q", section.Examples[0].Command)
	}
}
