// Package i18n resolves the phrase catalog the spinner rotates through.
// Built-in English and Hindi catalogs ship with the binary; community
// locale files under <config>/locales/<locale>.json extend them.
package i18n

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/wut-cli/wut/internal/appdirs"
)

type Catalog struct {
	Locale string        `json:"locale"`
	Loader LoaderCatalog `json:"loader"`
}

// LoaderCatalog holds the spinner phrases shown while each pipeline stage
// runs. Merged entries keep the base phrases as fallback, so a sparse
// community file extends a list without hollowing it out.
type LoaderCatalog struct {
	Generating []string `json:"generating"`
	Validating []string `json:"validating"`
	Recalling  []string `json:"recalling"`
	Learning   []string `json:"learning"`
	Seeding    []string `json:"seeding"`
	Default    []string `json:"default"`
}

// LoadCatalog resolves the catalog for a locale: the built-in base for the
// language, extended by a community override file when one exists.
func LoadCatalog(requestedLocale string) Catalog {
	locale := NormalizeLocale(requestedLocale)
	if locale == "" {
		locale = DetectLocale()
	}
	if locale == "" {
		locale = "en"
	}

	catalog := builtinCatalog(locale)
	catalog.Locale = locale

	override, ok := loadCommunityCatalog(locale)
	if !ok {
		return catalog
	}
	merged := mergeCatalog(catalog, override)
	if community := NormalizeLocale(override.Locale); community != "" {
		merged.Locale = community
	}
	return merged
}

func builtinCatalog(locale string) Catalog {
	if strings.HasPrefix(strings.ToLower(NormalizeLocale(locale)), "hi") {
		// Hindi phrases first; the English set stays behind them as fallback.
		merged := mergeCatalog(hindiCatalog(), englishCatalog())
		merged.Locale = "hi"
		return merged
	}
	catalog := englishCatalog()
	catalog.Locale = "en"
	return catalog
}

// DetectLocale walks the usual environment chain. WUT_LOCALE wins so users
// can pin the tool's language without touching their shell locale.
func DetectLocale() string {
	for _, env := range []string{"WUT_LOCALE", "LC_ALL", "LC_MESSAGES", "LANG"} {
		if locale := NormalizeLocale(os.Getenv(env)); locale != "" {
			return locale
		}
	}
	return "en"
}

// NormalizeLocale canonicalizes "en_US.UTF-8" style values to "en-US".
// Values that do not look like a locale normalize to "".
func NormalizeLocale(raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return ""
	}
	// Encoding and modifier suffixes carry no language information.
	if idx := strings.IndexAny(value, ".@"); idx >= 0 {
		value = value[:idx]
	}
	parts := strings.SplitN(strings.ReplaceAll(value, "_", "-"), "-", 3)

	lang := strings.ToLower(parts[0])
	if !localeToken(lang, false) {
		return ""
	}
	if len(parts) == 1 {
		return lang
	}
	region := strings.ToUpper(parts[1])
	if region == "" {
		return lang
	}
	if !localeToken(strings.ToLower(region), true) {
		return ""
	}
	return lang + "-" + region
}

// localeToken accepts 2-8 lowercase letters; digitsOK additionally admits
// UN M.49 numeric region codes.
func localeToken(token string, digitsOK bool) bool {
	if len(token) < 2 || len(token) > 8 {
		return false
	}
	for _, r := range token {
		switch {
		case r >= 'a' && r <= 'z':
		case digitsOK && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

// loadCommunityCatalog looks for <config>/locales/<locale>.json, then the
// bare language file ("es.json" for "es-MX"). Unreadable or malformed files
// are skipped rather than surfaced.
func loadCommunityCatalog(locale string) (Catalog, bool) {
	configDir, err := appdirs.ConfigDir()
	if err != nil {
		return Catalog{}, false
	}
	normalized := NormalizeLocale(locale)
	if normalized == "" {
		return Catalog{}, false
	}

	names := []string{normalized}
	if lang, _, hasRegion := strings.Cut(normalized, "-"); hasRegion {
		names = append(names, lang)
	}
	for _, name := range names {
		payload, err := os.ReadFile(filepath.Join(configDir, "locales", name+".json"))
		if err != nil {
			continue
		}
		var catalog Catalog
		if err := json.Unmarshal(payload, &catalog); err != nil {
			continue
		}
		return catalog, true
	}
	return Catalog{}, false
}

func mergeCatalog(base Catalog, override Catalog) Catalog {
	merged := base
	lists := []struct {
		dst *[]string
		src []string
	}{
		{&merged.Loader.Generating, override.Loader.Generating},
		{&merged.Loader.Validating, override.Loader.Validating},
		{&merged.Loader.Recalling, override.Loader.Recalling},
		{&merged.Loader.Learning, override.Loader.Learning},
		{&merged.Loader.Seeding, override.Loader.Seeding},
		{&merged.Loader.Default, override.Loader.Default},
	}
	for _, list := range lists {
		*list.dst = mergeStringSlices(*list.dst, list.src)
	}
	return merged
}

func mergeStringSlices(base []string, override []string) []string {
	if len(base)+len(override) == 0 {
		return nil
	}
	merged := make([]string, 0, len(base)+len(override))
	seen := make(map[string]struct{}, len(base)+len(override))
	for _, list := range [][]string{base, override} {
		for _, item := range list {
			phrase := strings.TrimSpace(item)
			if phrase == "" {
				continue
			}
			if _, dup := seen[phrase]; dup {
				continue
			}
			seen[phrase] = struct{}{}
			merged = append(merged, phrase)
		}
	}
	return merged
}

func englishCatalog() Catalog {
	return Catalog{
		Locale: "en",
		Loader: LoaderCatalog{
			Generating: []string{
				"drafting a command that fits the ask",
				"drafting a command that does one thing well",
				"drafting a command you can run twice",
				"drafting a command that fits on one line",
				"drafting a command that minds its exit code",
				"drafting a command that quotes its paths",
				"drafting a command that stays out of sudo",
				"drafting a command that leaves prod alone",
				"drafting a command worth an alias",
				"drafting a command that behaves in a pipe",
				"drafting a command that won't need undoing",
				"drafting a command that respects your dotfiles",
				"drafting a command that skips the man-page dive",
				"drafting a command that would pass review",
				"drafting a command that ages well in history",
				"drafting a command you'd teach a friend",
			},
			Validating: []string{
				"checking the command actually exists",
				"checking your PATH for the binary",
				"checking this runs on your machine",
				"checking the executable is where it should be",
				"checking before you paste",
				"checking the command is more than wishful thinking",
			},
			Recalling: []string{
				"checking what worked last time",
				"checking the suggestion cache",
				"checking if you've asked this before",
				"checking commands you already trust",
				"checking for a proven answer first",
			},
			Learning: []string{
				"noting what worked",
				"noting this one for next time",
				"noting the pattern in your playbook",
				"noting which commands earn your trust",
				"noting outcomes so reruns get smarter",
			},
			Seeding: []string{
				"sifting your shell history",
				"sifting history and skipping shell noise",
				"sifting for commands you actually ran",
				"sifting out prompts, errors, and pasted output",
				"sifting recent commands to the top",
				"sifting history for runs worth repeating",
			},
			Default: []string{
				"{label}",
				"{label} (one sec)",
				"{label} (nearly done)",
				"{label} (checking twice)",
				"{label} (smoothing the edges)",
				"{label} (any moment now)",
			},
		},
	}
}

func hindiCatalog() Catalog {
	return Catalog{
		Locale: "hi",
		Loader: LoaderCatalog{
			Generating: []string{
				"ऐसा कमांड तैयार कर रहा हूँ जो पहली बार में सही चले",
				"ऐसा कमांड तैयार कर रहा हूँ जो एक लाइन में काम पूरा करे",
				"ऐसा कमांड तैयार कर रहा हूँ जिसे दो बार चलाना भी ठीक हो",
				"ऐसा कमांड तैयार कर रहा हूँ जो exit code का ध्यान रखे",
				"ऐसा कमांड तैयार कर रहा हूँ जो sudo के बिना काम कर जाए",
				"ऐसा कमांड तैयार कर रहा हूँ जो prod को छुए तक नहीं",
				"ऐसा कमांड तैयार कर रहा हूँ जो pipe में भी सही चले",
				"ऐसा कमांड तैयार कर रहा हूँ जिसे undo न करना पड़े",
				"ऐसा कमांड तैयार कर रहा हूँ जो alias बनाने लायक हो",
				"ऐसा कमांड तैयार कर रहा हूँ जो आपके dotfiles की कदर करे",
				"ऐसा कमांड तैयार कर रहा हूँ जो review में पास हो जाए",
				"ऐसा कमांड तैयार कर रहा हूँ जो history में अच्छा लगे",
			},
			Validating: []string{
				"जाँच रहा हूँ कि binary सच में installed है",
				"आपके PATH में executable खोज रहा हूँ",
				"देख रहा हूँ कि यह आपकी मशीन पर चलेगा या नहीं",
				"चलाने से पहले एक बार परख रहा हूँ",
			},
			Recalling: []string{
				"cache में आज़माया हुआ जवाब खोज रहा हूँ",
				"देख रहा हूँ कि यह सवाल पहले आया था या नहीं",
				"आपके भरोसेमंद commands टटोल रहा हूँ",
				"पिछली कामयाबी याद कर रहा हूँ",
			},
			Learning: []string{
				"नतीजा नोट कर रहा हूँ ताकि अगली बार तेज़ हो",
				"कामयाब pattern याद रख रहा हूँ",
				"भरोसे वाले commands की सूची ताज़ा कर रहा हूँ",
			},
			Seeding: []string{
				"आपकी shell history खँगाल रहा हूँ",
				"history से काम के commands चुन रहा हूँ",
				"noise हटाकर असली commands रख रहा हूँ",
				"जो आपने सच में चलाया, वही गिन रहा हूँ",
				"हाल के commands को आगे रख रहा हूँ",
			},
			Default: []string{
				"{label}",
				"{label} (बस एक पल)",
				"{label} (लगभग तैयार)",
				"{label} (आख़िरी जाँच)",
				"{label} (अभी हुआ)",
			},
		},
	}
}
