// Package router names the actions wut can take and maps reserved first
// tokens onto them. There is no natural-language intent detection; a bare
// query always means suggest.
package router

import "strings"

// Intent labels the action a run reports in its JSON output.
type Intent string

const (
	IntentSuggest      Intent = "suggest"
	IntentInit         Intent = "init"
	IntentUpdate       Intent = "update"
	IntentConfigShow   Intent = "config_show"
	IntentConfigSet    Intent = "config_set"
	IntentStats        Intent = "stats"
	IntentClearCache   Intent = "clear_cache"
	IntentClearContext Intent = "clear_context"
	IntentDiagnose     Intent = "diagnose"
	IntentVersion      Intent = "version"
)

// Route maps a reserved subcommand word to its primary intent. A reserved
// word always wins over a query; anything unrecognized is query text.
// "config" and "clear" refine further once their arguments are parsed
// (config_set, clear_context).
func Route(word string) (Intent, bool) {
	switch strings.ToLower(strings.TrimSpace(word)) {
	case "init":
		return IntentInit, true
	case "update":
		return IntentUpdate, true
	case "config":
		return IntentConfigShow, true
	case "stats":
		return IntentStats, true
	case "clear":
		return IntentClearCache, true
	case "doctor":
		return IntentDiagnose, true
	case "version":
		return IntentVersion, true
	}
	return "", false
}
