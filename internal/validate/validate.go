// Package validate resolves the leading executable of a candidate shell
// command. Resolution walks the current PATH first and falls back to a fixed
// set of system directories so minimal shells still validate correctly. The
// check is purely local and synchronous; it says nothing about what a command
// does, only that its leading token exists to be run.
package validate

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Result reports what validation learned about a single command. It is never
// persisted on its own; callers fold Valid and ResolvedPath into their own
// records.
type Result struct {
	Command      string
	Valid        bool
	ResolvedPath string
	Builtin      bool
	Inconclusive bool
}

// wellKnownDirs are probed when PATH resolution yields nothing, tolerating
// stripped-down environments (cron, minimal login shells).
var wellKnownDirs = []string{
	"/usr/local/bin",
	"/usr/bin",
	"/bin",
	"/usr/sbin",
	"/sbin",
	"/opt/homebrew/bin",
}

// shellBuiltins are valid without executable resolution. Control-flow
// keywords are included so compound commands validate by their real intent.
var shellBuiltins = map[string]struct{}{
	"cd": {}, "echo": {}, "pwd": {}, "export": {}, "alias": {},
	"source": {}, "set": {}, "unset": {}, "type": {}, "read": {},
	"eval": {}, "exec": {}, "wait": {}, "trap": {}, "ulimit": {},
	"if": {}, "for": {}, "while": {}, "case": {}, "then": {}, "do": {},
}

// dangerousFragments disqualify a command outright regardless of whether the
// executable resolves.
var dangerousFragments = []string{
	"rm -rf /",
	"rm -rf *",
	"dd if=",
	"mkfs",
	"fdisk",
	"> /dev/",
	":(){ :|:& };",
}

const maxCommandLength = 500

// Command validates against the process PATH plus the well-known system
// directories.
func Command(command string) Result {
	return CommandWithPath(command, os.Getenv("PATH"), nil)
}

// CommandWithPath is the testable core: pathEnv stands in for $PATH and
// extraDirs are appended to the well-known fallback list (config tunable).
func CommandWithPath(command string, pathEnv string, extraDirs []string) Result {
	res := Result{Command: strings.TrimSpace(command)}
	if res.Command == "" || len(res.Command) > maxCommandLength {
		return res
	}

	lowered := strings.ToLower(res.Command)
	for _, fragment := range dangerousFragments {
		if strings.Contains(lowered, fragment) {
			return res
		}
	}

	token := LeadingToken(res.Command)
	if token == "" {
		return res
	}

	if _, ok := shellBuiltins[strings.ToLower(token)]; ok {
		res.Valid = true
		res.Builtin = true
		return res
	}

	// Explicit paths resolve by themselves.
	if strings.ContainsAny(token, "/\\") {
		if isExecutable(token) {
			res.Valid = true
			res.ResolvedPath = token
		}
		return res
	}

	dirs := filepath.SplitList(pathEnv)
	scanned := 0
	for _, dir := range dirs {
		if dir == "" {
			dir = "."
		}
		scanned++
		if found, ok := findExecutable(dir, token); ok {
			res.Valid = true
			res.ResolvedPath = found
			return res
		}
	}

	fallback := append(append([]string(nil), wellKnownDirs...), extraDirs...)
	for _, dir := range fallback {
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		scanned++
		if found, ok := findExecutable(dir, token); ok {
			res.Valid = true
			res.ResolvedPath = found
			return res
		}
	}

	// Nothing scannable at all: the environment gave us no way to decide.
	// Callers treat inconclusive the same as invalid.
	if scanned == 0 {
		res.Inconclusive = true
	}
	return res
}

// LeadingToken returns the presumed executable of a command line, skipping
// env assignments and common wrapper commands so "sudo docker ps" validates
// docker, not sudo.
func LeadingToken(command string) string {
	fields := strings.Fields(command)
	idx := 0
	for idx < len(fields) {
		token := fields[idx]
		if isEnvAssignment(token) {
			idx++
			continue
		}
		base := strings.ToLower(filepath.Base(token))
		switch base {
		case "sudo", "env", "command", "time", "nohup", "builtin", "exec":
			idx++
			for idx < len(fields) {
				next := fields[idx]
				if strings.HasPrefix(next, "-") || (base == "env" && isEnvAssignment(next)) {
					idx++
					continue
				}
				break
			}
			continue
		default:
			return token
		}
	}
	return ""
}

func isEnvAssignment(token string) bool {
	if strings.HasPrefix(token, "-") {
		return false
	}
	eq := strings.IndexRune(token, '=')
	if eq <= 0 {
		return false
	}
	return strings.IndexAny(token[:eq], "/\\") == -1
}

func findExecutable(dir, name string) (string, bool) {
	path := filepath.Join(dir, name)
	if isExecutable(path) {
		return path, true
	}
	if runtime.GOOS == "windows" {
		for _, ext := range []string{".exe", ".cmd", ".bat"} {
			if isExecutable(path + ext) {
				return path + ext, true
			}
		}
	}
	return "", false
}

func isExecutable(path string) bool {
	st, err := os.Stat(path)
	if err != nil || st.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return st.Mode()&0o111 != 0
}
