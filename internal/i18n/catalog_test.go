package i18n

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wut-cli/wut/internal/appdirs"
)

func TestNormalizeLocale(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "en_US.UTF-8", want: "en-US"},
		{in: "pt_BR@latin", want: "pt-BR"},
		{in: "HI_in", want: "hi-IN"},
		{in: "fr", want: "fr"},
		{in: "es-419", want: "es-419"},
		{in: "  es-ES  ", want: "es-ES"},
		{in: "C", want: ""},
		{in: "!!", want: ""},
		{in: "", want: ""},
	}
	for _, tc := range cases {
		if got := NormalizeLocale(tc.in); got != tc.want {
			t.Fatalf("NormalizeLocale(%q)=%q want=%q", tc.in, got, tc.want)
		}
	}
}

func TestDetectLocalePrefersWutLocale(t *testing.T) {
	t.Setenv("WUT_LOCALE", "hi-IN")
	t.Setenv("LC_ALL", "en_US.UTF-8")
	t.Setenv("LANG", "en_US.UTF-8")

	if got := DetectLocale(); got != "hi-IN" {
		t.Fatalf("expected WUT_LOCALE to win, got %q", got)
	}
}

func TestDetectLocaleWalksEnvChain(t *testing.T) {
	t.Setenv("WUT_LOCALE", "")
	t.Setenv("LC_ALL", "not a locale")
	t.Setenv("LC_MESSAGES", "de_DE.UTF-8")
	t.Setenv("LANG", "en_US.UTF-8")

	if got := DetectLocale(); got != "de-DE" {
		t.Fatalf("expected LC_MESSAGES fallback, got %q", got)
	}
}

// hasPhrase reports whether any entry in the list contains the fragment,
// case-insensitively.
func hasPhrase(list []string, fragment string) bool {
	for _, msg := range list {
		if strings.Contains(strings.ToLower(msg), strings.ToLower(fragment)) {
			return true
		}
	}
	return false
}

func writeLocaleFile(t *testing.T, name string, payload string) {
	t.Helper()
	configDir, err := appdirs.ConfigDir()
	if err != nil {
		t.Fatalf("config dir failed: %v", err)
	}
	localesDir := filepath.Join(configDir, "locales")
	if err := os.MkdirAll(localesDir, 0o755); err != nil {
		t.Fatalf("mkdir locales failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(localesDir, name), []byte(payload), 0o644); err != nil {
		t.Fatalf("write locale file failed: %v", err)
	}
}

func TestLoadCatalogMergesCommunityOverrides(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("WUT_LOCALE", "es-ES")

	writeLocaleFile(t, "es-ES.json", `{
	  "locale": "es-ES",
	  "loader": {
	    "generating": ["pensando en un comando que encaje"],
	    "validating": ["comprobando que el comando exista"]
	  }
	}`)

	catalog := LoadCatalog("")
	if !strings.EqualFold(catalog.Locale, "es-ES") {
		t.Fatalf("expected merged locale es-ES, got %q", catalog.Locale)
	}
	if !hasPhrase(catalog.Loader.Generating, "pensando") {
		t.Fatalf("expected merged Spanish generating message")
	}
	if !hasPhrase(catalog.Loader.Validating, "comprobando") {
		t.Fatalf("expected merged Spanish validating message")
	}
	// The English base must survive the merge as fallback.
	if !hasPhrase(catalog.Loader.Generating, "drafting a command") {
		t.Fatalf("expected english fallback phrases to remain available")
	}
}

func TestLoadCatalogFallsBackToLanguageFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))

	writeLocaleFile(t, "es.json", `{
	  "loader": {"generating": ["pensando en voz alta"]}
	}`)

	catalog := LoadCatalog("es-MX")
	if catalog.Locale != "es-MX" {
		t.Fatalf("expected requested locale preserved, got %q", catalog.Locale)
	}
	if !hasPhrase(catalog.Loader.Generating, "pensando en voz alta") {
		t.Fatalf("expected bare-language override to apply")
	}
}

func TestLoadCatalogSkipsMalformedCommunityFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))

	writeLocaleFile(t, "es.json", `{"loader": not json`)

	catalog := LoadCatalog("es")
	if catalog.Locale != "es" {
		t.Fatalf("expected locale es, got %q", catalog.Locale)
	}
	if !hasPhrase(catalog.Loader.Generating, "drafting a command") {
		t.Fatalf("expected built-in English catalog when override is malformed")
	}
}

func TestLoadCatalogHindiHasRichCoverage(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))

	catalog := LoadCatalog("hi-IN")
	if len(catalog.Loader.Generating) < 16 {
		t.Fatalf("expected rich Hindi generating coverage, got %d", len(catalog.Loader.Generating))
	}
	if len(catalog.Loader.Seeding) < 5 {
		t.Fatalf("expected rich Hindi seeding coverage, got %d", len(catalog.Loader.Seeding))
	}
	if len(catalog.Loader.Validating) < 4 {
		t.Fatalf("expected Hindi validating coverage, got %d", len(catalog.Loader.Validating))
	}
}
