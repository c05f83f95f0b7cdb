package history

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"
)

// Match is one history command scored against a natural-language query.
type Match struct {
	Command   string  `json:"command"`
	Score     float64 `json:"score"`
	Source    string  `json:"source"`
	Timestamp string  `json:"timestamp,omitempty"`
}

// Ranking weights. The absolute numbers only matter relative to each other;
// they were tuned against real shell histories.
const (
	phraseWeight      = 12.0 // whole query appears inside the command
	prefixWeight      = 8.0  // command starts with the query
	termWeight        = 4.0  // each query term found as a whole word
	orderStepWeight   = 1.2  // each term hit that advances left to right
	missedTermPenalty = 2.8  // a long, distinctive term the command lacks
)

const searchDefaultLimit = 8

// Search ranks history entries against a natural-language query, best
// first, newest first on ties.
func Search(query string, limit int) ([]Match, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}
	if limit <= 0 {
		limit = searchDefaultLimit
	}
	entries, err := LoadEntries()
	if err != nil {
		return nil, err
	}
	return rankEntries(entries, strings.ToLower(trimmed), limit), nil
}

func rankEntries(entries []Entry, query string, limit int) []Match {
	if len(entries) == 0 {
		return nil
	}
	terms := queryTerms(query)
	now := time.Now()
	matches := make([]Match, 0, len(entries))
	for position, entry := range entries {
		score := scoreEntry(query, terms, strings.ToLower(entry.Command), position, now.Sub(entry.Timestamp))
		if score <= 0 {
			continue
		}
		matches = append(matches, Match{
			Command:   entry.Command,
			Score:     score,
			Source:    entry.Source,
			Timestamp: entry.Timestamp.Format(time.RFC3339),
		})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score == matches[j].Score {
			return matches[i].Timestamp > matches[j].Timestamp
		}
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// scoreEntry is the whole ranking model: phrase and prefix bonuses, per-term
// hits with an in-order bonus, penalties for missing distinctive terms and
// for long path-heavy lines, and a freshness boost. Entries arrive newest
// first, so position doubles as a recency rank.
func scoreEntry(query string, terms []string, command string, position int, age time.Duration) float64 {
	if command == "" {
		return 0
	}
	var score float64
	if strings.Contains(command, query) {
		score += phraseWeight
	}
	if strings.HasPrefix(command, query) {
		score += prefixWeight
	}

	hits, ordered := countTermHits(terms, command)
	if hits < requiredTermHits(len(terms)) {
		return 0
	}
	score += float64(hits) * termWeight
	score += float64(ordered) * orderStepWeight
	score -= missedDistinctivePenalty(terms, command)
	score -= verbosityPenalty(command)
	score += freshnessBonus(position, age)

	if score <= 0 {
		return 0
	}
	return score
}

// countTermHits reports how many terms appear as whole words, and how many
// of those hits advance left to right through the command.
func countTermHits(terms []string, command string) (hits, ordered int) {
	last := -1
	for _, term := range terms {
		pos := wordIndex(command, term)
		if pos < 0 {
			continue
		}
		hits++
		if last >= 0 && pos > last {
			ordered++
		}
		last = pos
	}
	return hits, ordered
}

// requiredTermHits scales with query size so one stray word cannot match a
// long query, while a single-term query still can.
func requiredTermHits(terms int) int {
	switch {
	case terms == 0:
		return 0
	case terms >= 6:
		return 3
	case terms >= 2:
		return 2
	default:
		return 1
	}
}

func missedDistinctivePenalty(terms []string, command string) float64 {
	var penalty float64
	for _, term := range terms {
		if len(term) >= 8 && wordIndex(command, term) < 0 {
			penalty += missedTermPenalty
		}
	}
	return penalty
}

// verbosityPenalty pushes down pasted one-liners and deep path invocations
// that technically match but are rarely what anyone wants back.
func verbosityPenalty(command string) float64 {
	var penalty float64
	if len(command) > 160 {
		penalty += 2
	}
	if len(command) > 280 {
		penalty += 3
	}
	if strings.Count(command, "/") >= 4 {
		penalty += 1.5
	}
	return penalty
}

func freshnessBonus(position int, age time.Duration) float64 {
	var bonus float64
	switch {
	case age < 24*time.Hour:
		bonus += 4
	case age < 7*24*time.Hour:
		bonus += 2
	}
	switch {
	case position < 20:
		bonus += 2
	case position < 200:
		bonus += 1
	}
	return bonus
}

// queryStopwords carry no command intent: English glue words plus the
// meta-vocabulary of asking for a command in the first place.
var queryStopwords = func() map[string]struct{} {
	words := strings.Fields(
		"the for and with from into onto that this you your can could" +
			" how what when where why are is to me my find search please help" +
			" command commands run execute path paths file files location")
	set := make(map[string]struct{}, len(words))
	for _, word := range words {
		set[word] = struct{}{}
	}
	return set
}()

// queryTerms splits a query into lowercase searchable terms. Separators
// include -, _, :, and / so "re-index" and "pkg/mod" break apart; short
// words, stopwords, and duplicates drop.
func queryTerms(query string) []string {
	parts := strings.FieldsFunc(query, func(r rune) bool {
		switch r {
		case ' ', '\t', '\n', '-', '_', ':', '/':
			return true
		}
		return false
	})
	terms := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		term := strings.ToLower(strings.Trim(part, `"'.,!?;:()[]{}<>`))
		if len(term) < 3 {
			continue
		}
		if _, drop := queryStopwords[term]; drop {
			continue
		}
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		terms = append(terms, term)
	}
	return terms
}

// wordIndex finds term as a whole word inside command: the bytes on both
// sides must not be letters or digits. Returns -1 when absent.
func wordIndex(command, term string) int {
	if term == "" {
		return -1
	}
	for start := 0; start <= len(command)-len(term); {
		idx := strings.Index(command[start:], term)
		if idx < 0 {
			return -1
		}
		idx += start
		leftOK := idx == 0 || !isWordRune(rune(command[idx-1]))
		right := idx + len(term)
		rightOK := right >= len(command) || !isWordRune(rune(command[right]))
		if leftOK && rightOK {
			return idx
		}
		start = idx + 1
	}
	return -1
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
