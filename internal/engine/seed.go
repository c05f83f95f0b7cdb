package engine

import (
	"os"
	"sort"
	"strings"
	"time"

	"github.com/wut-cli/wut/internal/fingerprint"
	"github.com/wut-cli/wut/internal/history"
	"github.com/wut-cli/wut/internal/knowledge"
	"github.com/wut-cli/wut/internal/logging"
	"github.com/wut-cli/wut/internal/store"
	"github.com/wut-cli/wut/internal/validate"
)

const defaultSeedLimit = 400

// SeedReport summarizes one history ingestion run.
type SeedReport struct {
	AlreadySeeded bool `json:"already_seeded,omitempty"`
	Scanned       int  `json:"scanned"`
	Added         int  `json:"added"`
	Validated     int  `json:"validated"`
	Sections      int  `json:"sections"`
}

// SeedFromHistory bootstraps the store from shell history. It runs only when
// the store is empty unless forced. Repeated commands become one entry whose
// uses count is the repetition; each command is validated once; nothing
// seeded is ever promoted, promotion is earned through real outcomes.
func (e *Engine) SeedFromHistory(force bool) (SeedReport, error) {
	existing, err := store.List()
	if err != nil {
		return SeedReport{}, err
	}
	if len(existing) > 0 && !force {
		return SeedReport{AlreadySeeded: true}, nil
	}

	entries, err := history.LoadEntriesFiltered(e.cfg.History.Sources)
	if err != nil {
		return SeedReport{}, err
	}
	limit := e.cfg.Engine.SeedHistoryLimit
	if limit <= 0 {
		limit = defaultSeedLimit
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}
	report := SeedReport{Scanned: len(entries)}
	if len(entries) == 0 {
		return report, nil
	}

	// History is already deduplicated per command; grouping by fingerprint
	// additionally merges commands that normalize to the same key.
	type seedGroup struct {
		command string
		query   string
		uses    int
		firstAt time.Time
		lastAt  time.Time
	}
	groups := map[string]*seedGroup{}
	order := make([]string, 0, len(entries))
	for i := 0; i < len(entries); i++ {
		command := strings.TrimSpace(entries[i].Command)
		query := fingerprint.Normalize(command)
		if command == "" || query == "" {
			continue
		}
		key := fingerprint.Key(command)
		group, ok := groups[key]
		if !ok {
			group = &seedGroup{command: command, query: query}
			groups[key] = group
			order = append(order, key)
		}
		repeats := entries[i].Repeats
		if repeats <= 0 {
			repeats = 1
		}
		group.uses += repeats
		firstSeen := entries[i].FirstSeen
		if firstSeen.IsZero() {
			firstSeen = entries[i].Timestamp
		}
		if group.firstAt.IsZero() || firstSeen.Before(group.firstAt) {
			group.firstAt = firstSeen
		}
		if entries[i].Timestamp.After(group.lastAt) {
			group.lastAt = entries[i].Timestamp
		}
	}
	if len(order) == 0 {
		return report, nil
	}

	pathEnv := os.Getenv("PATH")
	seeded := make([]store.Entry, 0, len(order))
	for i := 0; i < len(order); i++ {
		group := groups[order[i]]
		verdict := validate.CommandWithPath(group.command, pathEnv, e.cfg.Validator.ExtraDirs)
		seeded = append(seeded, store.Entry{
			Fingerprint: order[i],
			QueryText:   group.query,
			Command:     group.command,
			Uses:        group.uses,
			CreatedAt:   stampOrNow(group.firstAt),
			LastUsedAt:  stampOrNow(group.lastAt),
			Validated:   verdict.Valid,
		})
	}

	domains := map[string]bool{}
	_, err = store.Mutate(func(s *store.Store) error {
		for i := 0; i < len(seeded); i++ {
			entry := seeded[i]
			if _, taken := s.Find(entry.Fingerprint); taken {
				continue
			}
			s.Entries = append(s.Entries, entry)
			report.Added++
			if entry.Validated {
				report.Validated++
				if domain := commandDomain(entry.Command); domain != "" {
					domains[domain] = true
				}
			}
		}
		return nil
	})
	if err != nil {
		return report, err
	}

	if e.cfg.Context.Enabled && len(domains) > 0 {
		report.Sections = e.seedKnowledgeSections(domains)
	}
	return report, nil
}

// seedKnowledgeSections makes sure every validated seeded domain has a
// heading in the knowledge document, without inventing successes the user
// never confirmed.
func (e *Engine) seedKnowledgeSections(domains map[string]bool) int {
	doc, err := knowledge.Load()
	if err != nil {
		logging.L().Warnf("could not load knowledge document: %v", err)
		return 0
	}
	names := make([]string, 0, len(domains))
	for domain := range domains {
		names = append(names, domain)
	}
	sort.Strings(names)
	changed := false
	for i := 0; i < len(names); i++ {
		if doc.EnsureSection(names[i]) {
			changed = true
		}
	}
	if changed {
		if _, err := knowledge.Save(doc); err != nil {
			logging.L().Warnf("could not update knowledge document: %v", err)
		}
	}
	return len(names)
}

func stampOrNow(ts time.Time) string {
	if ts.IsZero() {
		ts = time.Now()
	}
	return ts.UTC().Format(time.RFC3339)
}
