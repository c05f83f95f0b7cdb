// Package config owns the wut.toml file: defaults, atomic persistence, and
// the dotted-key surface that `wut config` exposes. Every load path runs
// normalize, so the rest of the tool never sees a half-filled Config.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/wut-cli/wut/internal/appdirs"
	"github.com/wut-cli/wut/internal/i18n"
)

type EngineConfig struct {
	PromoteMinUses    int     `toml:"promote_min_uses" json:"promote_min_uses"`
	PromoteMinRatio   float64 `toml:"promote_min_ratio" json:"promote_min_ratio"`
	PendingTTLMinutes int     `toml:"pending_ttl_minutes" json:"pending_ttl_minutes"`
	SeedHistoryLimit  int     `toml:"seed_history_limit" json:"seed_history_limit"`
}

type ContextConfig struct {
	Enabled        bool `toml:"enabled" json:"enabled"`
	MaxPromptLines int  `toml:"max_prompt_lines" json:"max_prompt_lines"`
}

type ValidatorConfig struct {
	ExtraDirs []string `toml:"extra_dirs,omitempty" json:"extra_dirs,omitempty"`
}

type HistoryConfig struct {
	Sources []string `toml:"sources,omitempty" json:"sources,omitempty"`
}

type ProviderConfig struct {
	Type           string   `toml:"type,omitempty" json:"type,omitempty"`
	Command        string   `toml:"command,omitempty" json:"command,omitempty"`
	Enabled        *bool    `toml:"enabled,omitempty" json:"enabled,omitempty"`
	Model          string   `toml:"model" json:"model"`
	Args           []string `toml:"args,omitempty" json:"args,omitempty"`
	MaxTokens      int      `toml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
	Temperature    float64  `toml:"temperature,omitempty" json:"temperature,omitempty"`
	TimeoutSeconds int      `toml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
}

type SafetyConfig struct {
	RedactSecrets     bool `toml:"redact_secrets" json:"redact_secrets"`
	BlockHighRisk     bool `toml:"block_high_risk" json:"block_high_risk"`
	AllowYoloHighRisk bool `toml:"allow_yolo_high_risk" json:"allow_yolo_high_risk"`
}

type AIConfig struct {
	MinConfidence float64 `toml:"min_confidence" json:"min_confidence"`
}

type UIConfig struct {
	Backend string `toml:"backend" json:"backend"`
	Loader  bool   `toml:"loader" json:"loader"`
}

type SystemConfig struct {
	EnableContext  bool `toml:"enable_context" json:"enable_context"`
	RefreshHours   int  `toml:"refresh_hours" json:"refresh_hours"`
	MaxPromptItems int  `toml:"max_prompt_items" json:"max_prompt_items"`
}

type LoggingConfig struct {
	Level     string `toml:"level" json:"level"`
	File      bool   `toml:"file" json:"file"`
	MaxSizeMB int    `toml:"max_size_mb" json:"max_size_mb"`
}

type Config struct {
	Version   int                       `toml:"version" json:"version"`
	Locale    string                    `toml:"locale" json:"locale"`
	Provider  string                    `toml:"provider" json:"provider"`
	Mode      string                    `toml:"mode" json:"mode"`
	Engine    EngineConfig              `toml:"engine" json:"engine"`
	Context   ContextConfig             `toml:"context" json:"context"`
	Validator ValidatorConfig           `toml:"validator" json:"validator"`
	History   HistoryConfig             `toml:"history" json:"history"`
	Providers map[string]ProviderConfig `toml:"providers" json:"providers"`
	Safety    SafetyConfig              `toml:"safety" json:"safety"`
	AI        AIConfig                  `toml:"ai" json:"ai"`
	UI        UIConfig                  `toml:"ui" json:"ui"`
	System    SystemConfig              `toml:"system" json:"system"`
	Logging   LoggingConfig             `toml:"logging" json:"logging"`
}

func Default() Config {
	return Config{
		Version:  1,
		Locale:   "auto",
		Provider: "llamacpp",
		Mode:     "confirm",
		Engine: EngineConfig{
			PromoteMinUses:    5,
			PromoteMinRatio:   0.70,
			PendingTTLMinutes: 10,
			SeedHistoryLimit:  400,
		},
		Context: ContextConfig{
			Enabled:        true,
			MaxPromptLines: 5,
		},
		Providers: defaultProviderCatalog(),
		Safety: SafetyConfig{
			RedactSecrets:     true,
			BlockHighRisk:     true,
			AllowYoloHighRisk: false,
		},
		AI: AIConfig{
			MinConfidence: 0.60,
		},
		UI: UIConfig{
			Backend: "auto",
			Loader:  true,
		},
		System: SystemConfig{
			EnableContext:  true,
			RefreshHours:   168,
			MaxPromptItems: 16,
		},
		Logging: LoggingConfig{
			Level:     "info",
			File:      true,
			MaxSizeMB: 10,
		},
	}
}

func defaultProviderCatalog() map[string]ProviderConfig {
	llamaEnabled := true
	customEnabled := false

	return map[string]ProviderConfig{
		"llamacpp": {
			Type:           "llamacpp",
			Enabled:        &llamaEnabled,
			Model:          "ggml-org/gemma-3-1b-it-GGUF",
			MaxTokens:      64,
			Temperature:    0.2,
			TimeoutSeconds: 120,
		},
		"custom": {
			Type:    "command",
			Enabled: &customEnabled,
			Args:    []string{"{prompt}"},
		},
	}
}

// LoadOrCreate reads the config file, writing the defaults first when none
// exists yet. The returned path is where the file lives either way.
func LoadOrCreate() (Config, string, error) {
	path, err := appdirs.ConfigFilePath()
	if err != nil {
		return Config{}, "", err
	}

	cfg := Default()
	payload, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		if _, err := appdirs.EnsureConfigDir(); err != nil {
			return Config{}, "", err
		}
		if err := Save(path, cfg); err != nil {
			return Config{}, "", err
		}
		return cfg, path, nil
	}
	if err != nil {
		return Config{}, "", fmt.Errorf("could not read config file: %w", err)
	}

	if err := toml.Unmarshal(payload, &cfg); err != nil {
		return Config{}, "", fmt.Errorf("could not parse config file: %w", err)
	}
	cfg.normalize()
	return cfg, path, nil
}

// Save writes the config through a temp file and rename, so a crash or a
// concurrent save leaves a complete file behind, never a torn one.
func Save(path string, cfg Config) error {
	cfg.normalize()
	payload, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("could not serialize config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("could not create config directory: %w", err)
	}

	// CreateTemp opens 0600, so credentials in provider settings are never
	// world-readable, not even between write and rename.
	tmp, err := os.CreateTemp(dir, ".wut-config-*.toml")
	if err != nil {
		return fmt.Errorf("could not stage config write: %w", err)
	}
	_, writeErr := tmp.Write(payload)
	closeErr := tmp.Close()
	if writeErr == nil {
		writeErr = closeErr
	}
	if writeErr == nil {
		writeErr = os.Rename(tmp.Name(), path)
	}
	if writeErr != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("could not persist config: %w", writeErr)
	}

	if err := os.Chmod(path, 0o600); err != nil {
		return fmt.Errorf("could not secure config file permissions: %w", err)
	}
	return nil
}

func (c *Config) normalize() {
	defaults := Default()

	if c.Version == 0 {
		c.Version = defaults.Version
	}
	c.Locale = normalizeLocaleSetting(c.Locale, defaults.Locale)
	fallbackString(&c.Provider, defaults.Provider)
	fallbackString(&c.Mode, defaults.Mode)

	fallbackPositive(&c.Engine.PromoteMinUses, defaults.Engine.PromoteMinUses)
	fallbackRatio(&c.Engine.PromoteMinRatio, defaults.Engine.PromoteMinRatio)
	fallbackPositive(&c.Engine.PendingTTLMinutes, defaults.Engine.PendingTTLMinutes)
	fallbackPositive(&c.Engine.SeedHistoryLimit, defaults.Engine.SeedHistoryLimit)
	fallbackPositive(&c.Context.MaxPromptLines, defaults.Context.MaxPromptLines)
	fallbackRatio(&c.AI.MinConfidence, defaults.AI.MinConfidence)
	c.UI.Backend = normalizeUIBackend(c.UI.Backend, defaults.UI.Backend)
	fallbackPositive(&c.System.RefreshHours, defaults.System.RefreshHours)
	fallbackPositive(&c.System.MaxPromptItems, defaults.System.MaxPromptItems)
	fallbackString(&c.Logging.Level, defaults.Logging.Level)
	fallbackPositive(&c.Logging.MaxSizeMB, defaults.Logging.MaxSizeMB)

	c.normalizeProviders(defaults)
}

// normalizeProviders folds the default catalog into whatever the file
// declared and repairs partial provider entries. A provider referenced by
// name but never configured becomes a plain command provider, so pointing
// wut at an installed CLI needs nothing beyond `config set provider`.
func (c *Config) normalizeProviders(defaults Config) {
	if c.Providers == nil {
		c.Providers = map[string]ProviderConfig{}
	}

	for name, def := range defaultProviderCatalog() {
		current, ok := c.Providers[name]
		if !ok {
			c.Providers[name] = def
			continue
		}
		mergeProviderDefaults(&current, def)
		c.Providers[name] = current
	}

	for name, provider := range c.Providers {
		fallbackString(&provider.Type, "command")
		if provider.Type == "command" {
			fallbackString(&provider.Command, name)
		}
		if provider.Enabled == nil {
			provider.Enabled = boolPtr(true)
		}
		fallbackPositive(&provider.TimeoutSeconds, defaults.Providers["llamacpp"].TimeoutSeconds)
		c.Providers[name] = provider
	}

	if c.Provider == "auto" {
		return
	}
	if _, ok := c.Providers[c.Provider]; !ok {
		c.Providers[c.Provider] = commandProvider(c.Provider)
	}
}

func mergeProviderDefaults(target *ProviderConfig, defaults ProviderConfig) {
	fallbackString(&target.Type, defaults.Type)
	fallbackString(&target.Command, defaults.Command)
	fallbackString(&target.Model, defaults.Model)
	if target.Enabled == nil {
		target.Enabled = defaults.Enabled
	}
	if len(target.Args) == 0 {
		target.Args = append([]string(nil), defaults.Args...)
	}
	fallbackPositive(&target.MaxTokens, defaults.MaxTokens)
	if target.Temperature <= 0 {
		target.Temperature = defaults.Temperature
	}
	fallbackPositive(&target.TimeoutSeconds, defaults.TimeoutSeconds)
}

func commandProvider(command string) ProviderConfig {
	return ProviderConfig{
		Type:    "command",
		Command: command,
		Enabled: boolPtr(true),
		Args:    []string{"{prompt}"},
	}
}

// keySpec binds one dotted config key to its setter and getter. The typed
// builders below keep parse rules and print formats in step for every key
// of the same kind.
type keySpec struct {
	get func(*Config) string
	set func(*Config, string) error
}

var configKeys = buildKeyTable()

func buildKeyTable() map[string]keySpec {
	table := map[string]keySpec{
		"locale": {
			get: func(c *Config) string { return c.Locale },
			set: func(c *Config, value string) error {
				locale := normalizeLocaleSetting(value, "")
				if locale == "" {
					return fmt.Errorf("locale must be 'auto' or a locale like en, en-US, hi, hi-IN")
				}
				c.Locale = locale
				return nil
			},
		},
		"provider": {
			get: func(c *Config) string { return c.Provider },
			set: func(c *Config, value string) error {
				c.Provider = value
				return nil
			},
		},
		"mode": {
			get: func(c *Config) string { return c.Mode },
			set: func(c *Config, value string) error {
				if value != "confirm" && value != "yolo" {
					return fmt.Errorf("mode must be confirm or yolo")
				}
				c.Mode = value
				return nil
			},
		},
		"ui.backend": {
			get: func(c *Config) string { return c.UI.Backend },
			set: func(c *Config, value string) error {
				backend := normalizeUIBackend(value, "")
				if backend == "" {
					return fmt.Errorf("ui.backend must be one of auto|bubbletea|huh|tview|plain")
				}
				c.UI.Backend = backend
				return nil
			},
		},
		"logging.level": {
			get: func(c *Config) string { return c.Logging.Level },
			set: func(c *Config, value string) error {
				c.Logging.Level = strings.ToLower(value)
				return nil
			},
		},
	}

	number := func(key string, field func(*Config) *int) {
		table[key] = keySpec{
			get: func(c *Config) string { return strconv.Itoa(*field(c)) },
			set: func(c *Config, value string) error {
				n, err := strconv.Atoi(value)
				if err != nil || n <= 0 {
					return fmt.Errorf("%s must be a positive number", key)
				}
				*field(c) = n
				return nil
			},
		}
	}
	boolean := func(key string, field func(*Config) *bool) {
		table[key] = keySpec{
			get: func(c *Config) string { return strconv.FormatBool(*field(c)) },
			set: func(c *Config, value string) error {
				b, err := parseBool(value)
				if err != nil {
					return fmt.Errorf("%s must be boolean", key)
				}
				*field(c) = b
				return nil
			},
		}
	}
	ratio := func(key string, field func(*Config) *float64) {
		table[key] = keySpec{
			get: func(c *Config) string { return formatFloat(*field(c)) },
			set: func(c *Config, value string) error {
				n, err := parseConfidence(value)
				if err != nil {
					return fmt.Errorf("%s must be between 0 and 1", key)
				}
				*field(c) = n
				return nil
			},
		}
	}
	list := func(key string, field func(*Config) *[]string) {
		table[key] = keySpec{
			get: func(c *Config) string { return strings.Join(*field(c), ",") },
			set: func(c *Config, value string) error {
				*field(c) = splitCommaList(value)
				return nil
			},
		}
	}

	number("engine.promote_min_uses", func(c *Config) *int { return &c.Engine.PromoteMinUses })
	ratio("engine.promote_min_ratio", func(c *Config) *float64 { return &c.Engine.PromoteMinRatio })
	number("engine.pending_ttl_minutes", func(c *Config) *int { return &c.Engine.PendingTTLMinutes })
	number("engine.seed_history_limit", func(c *Config) *int { return &c.Engine.SeedHistoryLimit })
	boolean("context.enabled", func(c *Config) *bool { return &c.Context.Enabled })
	number("context.max_prompt_lines", func(c *Config) *int { return &c.Context.MaxPromptLines })
	list("validator.extra_dirs", func(c *Config) *[]string { return &c.Validator.ExtraDirs })
	list("history.sources", func(c *Config) *[]string { return &c.History.Sources })
	boolean("safety.redact_secrets", func(c *Config) *bool { return &c.Safety.RedactSecrets })
	boolean("safety.block_high_risk", func(c *Config) *bool { return &c.Safety.BlockHighRisk })
	boolean("safety.allow_yolo_high_risk", func(c *Config) *bool { return &c.Safety.AllowYoloHighRisk })
	ratio("ai.min_confidence", func(c *Config) *float64 { return &c.AI.MinConfidence })
	boolean("ui.loader", func(c *Config) *bool { return &c.UI.Loader })
	boolean("system.enable_context", func(c *Config) *bool { return &c.System.EnableContext })
	number("system.refresh_hours", func(c *Config) *int { return &c.System.RefreshHours })
	number("system.max_prompt_items", func(c *Config) *int { return &c.System.MaxPromptItems })
	boolean("logging.file", func(c *Config) *bool { return &c.Logging.File })
	number("logging.max_size_mb", func(c *Config) *int { return &c.Logging.MaxSizeMB })

	return table
}

// Set applies one dotted key. On success the whole config is re-normalized,
// so a set can never leave dependent fields inconsistent.
func (c *Config) Set(key, value string) error {
	key = strings.TrimSpace(strings.ToLower(key))
	value = strings.TrimSpace(value)

	if strings.HasPrefix(key, "providers.") {
		if err := c.setProviderKey(key, value); err != nil {
			return err
		}
		c.normalize()
		return nil
	}

	spec, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("unknown config key: %s", key)
	}
	if err := spec.set(c, value); err != nil {
		return err
	}
	c.normalize()
	return nil
}

func (c Config) Get(key string) (string, error) {
	key = strings.TrimSpace(strings.ToLower(key))

	if strings.HasPrefix(key, "providers.") {
		return c.getProviderKey(key)
	}

	spec, ok := configKeys[key]
	if !ok {
		return "", fmt.Errorf("unknown config key: %s", key)
	}
	return spec.get(&c), nil
}

type providerField struct {
	get func(ProviderConfig) string
	set func(*ProviderConfig, string) error
}

// providerFieldTable is rebuilt per lookup so the error messages can carry
// the provider's name.
func providerFieldTable(name string) map[string]providerField {
	return map[string]providerField{
		"type": {
			get: func(p ProviderConfig) string { return p.Type },
			set: func(p *ProviderConfig, value string) error {
				if value != "llamacpp" && value != "command" {
					return fmt.Errorf("providers.%s.type must be llamacpp or command", name)
				}
				p.Type = value
				return nil
			},
		},
		"command": {
			get: func(p ProviderConfig) string { return p.Command },
			set: func(p *ProviderConfig, value string) error {
				p.Command = value
				return nil
			},
		},
		"model": {
			get: func(p ProviderConfig) string { return p.Model },
			set: func(p *ProviderConfig, value string) error {
				p.Model = value
				return nil
			},
		},
		"enabled": {
			get: func(p ProviderConfig) string {
				return strconv.FormatBool(p.Enabled == nil || *p.Enabled)
			},
			set: func(p *ProviderConfig, value string) error {
				b, err := parseBool(value)
				if err != nil {
					return fmt.Errorf("providers.%s.enabled must be boolean", name)
				}
				p.Enabled = boolPtr(b)
				return nil
			},
		},
		"args": {
			get: func(p ProviderConfig) string { return strings.Join(p.Args, ",") },
			set: func(p *ProviderConfig, value string) error {
				p.Args = splitCommaList(value)
				return nil
			},
		},
		"max_tokens": {
			get: func(p ProviderConfig) string { return strconv.Itoa(p.MaxTokens) },
			set: func(p *ProviderConfig, value string) error {
				n, err := strconv.Atoi(value)
				if err != nil || n <= 0 {
					return fmt.Errorf("providers.%s.max_tokens must be a positive number", name)
				}
				p.MaxTokens = n
				return nil
			},
		},
		"temperature": {
			get: func(p ProviderConfig) string { return formatFloat(p.Temperature) },
			set: func(p *ProviderConfig, value string) error {
				n, err := strconv.ParseFloat(value, 64)
				if err != nil || n < 0 || n > 2 {
					return fmt.Errorf("providers.%s.temperature must be between 0 and 2", name)
				}
				p.Temperature = n
				return nil
			},
		},
		"timeout_seconds": {
			get: func(p ProviderConfig) string { return strconv.Itoa(p.TimeoutSeconds) },
			set: func(p *ProviderConfig, value string) error {
				n, err := strconv.Atoi(value)
				if err != nil || n <= 0 {
					return fmt.Errorf("providers.%s.timeout_seconds must be a positive number", name)
				}
				p.TimeoutSeconds = n
				return nil
			},
		},
	}
}

func splitProviderKey(key string) (name string, field string, err error) {
	parts := strings.Split(key, ".")
	if len(parts) != 3 {
		return "", "", fmt.Errorf("invalid provider key: %s", key)
	}
	return parts[1], parts[2], nil
}

func (c *Config) setProviderKey(key, value string) error {
	name, field, err := splitProviderKey(key)
	if err != nil {
		return err
	}
	spec, ok := providerFieldTable(name)[field]
	if !ok {
		return fmt.Errorf("unknown provider field: %s", field)
	}

	provider := c.ensureProvider(name)
	if err := spec.set(&provider, value); err != nil {
		return err
	}
	c.Providers[name] = provider
	return nil
}

func (c Config) getProviderKey(key string) (string, error) {
	name, field, err := splitProviderKey(key)
	if err != nil {
		return "", err
	}
	provider, ok := c.Providers[name]
	if !ok {
		return "", fmt.Errorf("unknown provider: %s", name)
	}
	spec, ok := providerFieldTable(name)[field]
	if !ok {
		return "", fmt.Errorf("unknown provider field: %s", field)
	}
	return spec.get(provider), nil
}

// ensureProvider returns the named provider, or a fresh command provider
// when none is configured. The caller commits it to the map only after the
// field set succeeds, so a rejected value never leaves a half-made entry.
func (c *Config) ensureProvider(name string) ProviderConfig {
	if c.Providers == nil {
		c.Providers = map[string]ProviderConfig{}
	}
	if provider, ok := c.Providers[name]; ok {
		return provider
	}
	return commandProvider(name)
}

func (c Config) ProviderNames() []string {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func fallbackString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func fallbackPositive(dst *int, def int) {
	if *dst <= 0 {
		*dst = def
	}
}

func fallbackRatio(dst *float64, def float64) {
	if *dst <= 0 || *dst > 1 {
		*dst = def
	}
}

var boolWords = map[string]bool{
	"1": true, "true": true, "yes": true, "on": true,
	"0": false, "false": false, "no": false, "off": false,
}

func parseBool(value string) (bool, error) {
	b, ok := boolWords[strings.ToLower(strings.TrimSpace(value))]
	if !ok {
		return false, fmt.Errorf("invalid bool: %s", value)
	}
	return b, nil
}

func splitCommaList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if item := strings.TrimSpace(part); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseConfidence(value string) (float64, error) {
	n, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	switch {
	case err != nil:
		return 0, err
	case n <= 0 || n > 1:
		return 0, fmt.Errorf("confidence must be between 0 and 1")
	}
	return n, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func boolPtr(v bool) *bool {
	return &v
}

func normalizeUIBackend(value string, fallback string) string {
	switch normalized := strings.ToLower(strings.TrimSpace(value)); normalized {
	case "auto", "bubbletea", "huh", "tview", "plain":
		return normalized
	}
	return strings.ToLower(strings.TrimSpace(fallback))
}

func normalizeLocaleSetting(value string, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		trimmed = strings.TrimSpace(fallback)
	}
	if strings.EqualFold(trimmed, "auto") {
		return "auto"
	}
	return i18n.NormalizeLocale(trimmed)
}