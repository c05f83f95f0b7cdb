// Package engine ties the suggestion pipeline together: fingerprint lookup,
// the promoted-cache fast path, generation through a provider backend,
// validation, storage, and outcome recording that drives the promotion gate
// and the knowledge document.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wut-cli/wut/internal/config"
	"github.com/wut-cli/wut/internal/fingerprint"
	"github.com/wut-cli/wut/internal/knowledge"
	"github.com/wut-cli/wut/internal/logging"
	"github.com/wut-cli/wut/internal/provider"
	"github.com/wut-cli/wut/internal/runtime"
	"github.com/wut-cli/wut/internal/safety"
	"github.com/wut-cli/wut/internal/store"
	"github.com/wut-cli/wut/internal/validate"
)

var (
	// ErrEmptyQuery rejects queries that normalize to nothing.
	ErrEmptyQuery = errors.New("query is empty")
	// ErrGenerationUnavailable wraps any backend failure. A failed generation
	// is reported as such; the engine never substitutes a fabricated command.
	ErrGenerationUnavailable = errors.New("generation backend unavailable")
	// ErrNoUsableCommand means the backend answered but nothing in the reply
	// was a command.
	ErrNoUsableCommand = errors.New("backend returned no usable command")
)

const (
	SourceCache     = "cache"
	SourceGenerated = "generated"
)

// Options tune a single Suggest or Explain call.
type Options struct {
	NoCache  bool
	Provider string
	Model    string
}

// Result is one served suggestion, from either the cache or a backend.
type Result struct {
	Query             string   `json:"query"`
	Fingerprint       string   `json:"fingerprint"`
	Command           string   `json:"command"`
	Source            string   `json:"source"`
	Validated         bool     `json:"validated"`
	Promoted          bool     `json:"promoted"`
	Uses              int      `json:"uses"`
	SuccessRatio      float64  `json:"success_ratio"`
	Provider          string   `json:"provider,omitempty"`
	Reason            string   `json:"reason,omitempty"`
	Risk              string   `json:"risk,omitempty"`
	Confidence        float64  `json:"confidence,omitempty"`
	Alternatives      []string `json:"alternatives,omitempty"`
	NeedsConfirmation bool     `json:"needs_confirmation"`
}

// Engine is the facade the CLI talks to. It holds no mutable state of its
// own; the store and knowledge packages guard their files.
type Engine struct {
	cfg     config.Config
	service *provider.Service
}

func New(cfg config.Config) *Engine {
	return NewWithService(cfg, provider.NewService(nil))
}

// NewWithService injects a provider service built on a custom registry.
func NewWithService(cfg config.Config, service *provider.Service) *Engine {
	if service == nil {
		service = provider.NewService(nil)
	}
	return &Engine{cfg: cfg, service: service}
}

// Suggest serves one query. A promoted, validated, live cache entry
// short-circuits generation entirely; everything else goes to the backend,
// gets validated, and is stored before it is returned.
func (e *Engine) Suggest(ctx context.Context, query string, opts Options) (Result, error) {
	normalized := fingerprint.Normalize(query)
	if normalized == "" {
		return Result{}, ErrEmptyQuery
	}
	key := fingerprint.Key(query)

	if !opts.NoCache {
		if cached, ok := e.cachedResult(key, normalized); ok {
			return cached, nil
		}
	}

	prompt := BuildPrompt(e.cfg, normalized)
	if e.cfg.Safety.RedactSecrets {
		prompt = safety.RedactText(prompt)
	}
	suggestion, providerName, err := e.service.Generate(ctx, e.cfg, provider.Request{
		Query:  normalized,
		Prompt: prompt,
		Model:  opts.Model,
	}, opts.Provider)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
	}
	command, err := runtime.NormalizeCommand(suggestion.Command)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrNoUsableCommand, err)
	}

	// An inconclusive scan counts as not validated. The flag can still flip
	// later: outcomes re-run the validator once PATH is scannable again.
	verdict := validate.CommandWithPath(command, os.Getenv("PATH"), e.cfg.Validator.ExtraDirs)
	entry, err := store.Put(key, normalized, command, verdict.Valid)
	if err != nil {
		logging.L().Warnf("could not store suggestion: %v", err)
		entry = store.Entry{Fingerprint: key, QueryText: normalized, Command: command, Uses: 1, Validated: verdict.Valid}
	}
	if err := RecordPending(key, command, e.PendingTTL()); err != nil {
		logging.L().Warnf("could not record pending marker: %v", err)
	}

	return Result{
		Query:             normalized,
		Fingerprint:       key,
		Command:           command,
		Source:            SourceGenerated,
		Validated:         entry.Validated,
		Promoted:          entry.Promoted,
		Uses:              entry.Uses,
		SuccessRatio:      entry.SuccessRatio(),
		Provider:          providerName,
		Reason:            suggestion.Reason,
		Risk:              suggestion.Risk,
		Confidence:        suggestion.Confidence,
		Alternatives:      suggestion.Alternatives,
		NeedsConfirmation: suggestion.NeedsConfirmation,
	}, nil
}

// cachedResult serves the fast path. Only promoted, validated, live entries
// qualify; a hit bumps the usage counters and leaves a pending marker so the
// executed command can report its outcome, exactly like a generated one.
func (e *Engine) cachedResult(key, normalized string) (Result, bool) {
	entry, ok, err := store.Get(key)
	if err != nil {
		logging.L().Warnf("cache lookup failed: %v", err)
		return Result{}, false
	}
	if !ok || !entry.Promoted || !entry.Validated || entry.Superseded {
		return Result{}, false
	}
	bumped, err := store.RecordUse(key)
	if err != nil {
		logging.L().Warnf("could not record cache use: %v", err)
		bumped = entry
	}
	if err := RecordPending(key, bumped.Command, e.PendingTTL()); err != nil {
		logging.L().Warnf("could not record pending marker: %v", err)
	}
	return Result{
		Query:        normalized,
		Fingerprint:  key,
		Command:      bumped.Command,
		Source:       SourceCache,
		Validated:    true,
		Promoted:     true,
		Uses:         bumped.Uses,
		SuccessRatio: bumped.SuccessRatio(),
	}, true
}

// ReportOutcome feeds one execution result back into the store. Promoted
// entries are re-validated so a binary that vanished demotes its entry, and
// an entry whose binary appeared later can start earning promotion. Promotion
// and validated successes flow on into the knowledge document.
func (e *Engine) ReportOutcome(fingerprintKey string, success bool) (store.Entry, store.Verdict, error) {
	fingerprintKey = strings.TrimSpace(fingerprintKey)
	if fingerprintKey == "" {
		return store.Entry{}, store.VerdictKeep, errors.New("fingerprint is empty")
	}
	thresholds := e.thresholds()
	entry, verdict, err := store.RecordOutcome(fingerprintKey, success, thresholds)
	if err != nil {
		return store.Entry{}, store.VerdictKeep, err
	}

	check := validate.CommandWithPath(entry.Command, os.Getenv("PATH"), e.cfg.Validator.ExtraDirs)
	if !check.Inconclusive && check.Valid != entry.Validated {
		revalidated, reverdict, rerr := store.RecordValidation(fingerprintKey, check.Valid, thresholds)
		if rerr != nil {
			logging.L().Warnf("could not record re-validation: %v", rerr)
		} else {
			entry = revalidated
			if reverdict != store.VerdictKeep {
				verdict = reverdict
			}
		}
	}

	e.feedKnowledge(entry, verdict, success)
	return entry, verdict, nil
}

// feedKnowledge mirrors store progress into the context document. Promotions
// and validated successes land as examples; failures never erase anything.
func (e *Engine) feedKnowledge(entry store.Entry, verdict store.Verdict, success bool) {
	if !e.cfg.Context.Enabled || !entry.Validated {
		return
	}
	promoted := verdict == store.VerdictPromote
	if !success && !promoted {
		return
	}
	domain := commandDomain(entry.Command)
	if domain == "" {
		return
	}
	doc, err := knowledge.Load()
	if err != nil {
		logging.L().Warnf("could not load knowledge document: %v", err)
		return
	}
	changed := false
	if promoted {
		changed = doc.Learn(domain, entry.QueryText, entry.Command) || changed
	}
	if success {
		doc.RecordSuccess(domain, entry.QueryText, entry.Command)
		changed = true
	}
	if !changed {
		return
	}
	if _, err := knowledge.Save(doc); err != nil {
		logging.L().Warnf("could not update knowledge document: %v", err)
	}
}

// Explain asks the backend what a command does. The reply contract mirrors
// generation: the command back, then " # ", then one short sentence.
func (e *Engine) Explain(ctx context.Context, command string, opts Options) (string, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return "", errors.New("nothing to explain")
	}
	suggestion, _, err := e.service.Generate(ctx, e.cfg, provider.Request{
		Query:  command,
		Prompt: buildExplainPrompt(command),
		Model:  opts.Model,
	}, opts.Provider)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
	}
	if idx := strings.Index(suggestion.Command, " # "); idx >= 0 {
		if explanation := strings.TrimSpace(suggestion.Command[idx+3:]); explanation != "" {
			return explanation, nil
		}
	}
	reason := strings.TrimSpace(suggestion.Reason)
	if reason != "" && reason != provider.ReasonFallback && reason != provider.ReasonModelCompletion {
		return reason, nil
	}
	return "", ErrNoUsableCommand
}

// StatsReport combines store counters with knowledge reach for the stats
// command.
type StatsReport struct {
	Store             store.Summary `json:"store"`
	KnowledgeSections int           `json:"knowledge_sections"`
	KnowledgeExamples int           `json:"knowledge_examples"`
	DocumentPath      string        `json:"document_path,omitempty"`
}

func (e *Engine) Stats() (StatsReport, error) {
	summary, err := store.Stats()
	if err != nil {
		return StatsReport{}, err
	}
	report := StatsReport{Store: summary}
	doc, err := knowledge.Load()
	if err != nil {
		return report, nil
	}
	report.KnowledgeSections = len(doc.Sections)
	for i := 0; i < len(doc.Sections); i++ {
		report.KnowledgeExamples += len(doc.Sections[i].Examples)
	}
	if path, pathErr := knowledge.DocPath(); pathErr == nil {
		report.DocumentPath = path
	}
	return report, nil
}

// ClearCache wipes the suggestion store. The knowledge document survives.
func (e *Engine) ClearCache() error {
	return store.Clear()
}

// ClearContext removes the knowledge document, its model, and its backups.
func (e *Engine) ClearContext() error {
	return knowledge.Clear()
}

func (e *Engine) thresholds() store.Thresholds {
	return store.Thresholds{
		MinUses:  e.cfg.Engine.PromoteMinUses,
		MinRatio: e.cfg.Engine.PromoteMinRatio,
	}
}

// PendingTTL is how long a served suggestion stays bindable to a later hook
// event before its marker expires.
func (e *Engine) PendingTTL() time.Duration {
	minutes := e.cfg.Engine.PendingTTLMinutes
	if minutes <= 0 {
		minutes = 10
	}
	return time.Duration(minutes) * time.Minute
}

// commandDomain is the executable a command leads with, reduced to its base
// name so /usr/bin/docker and docker land in the same knowledge section.
func commandDomain(command string) string {
	token := validate.LeadingToken(command)
	if token == "" {
		return ""
	}
	return strings.ToLower(filepath.Base(token))
}
