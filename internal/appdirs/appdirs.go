// Package appdirs resolves where wut keeps its configuration and state.
// Unix follows XDG with the usual fallbacks; darwin and windows use their
// native application-support locations.
package appdirs

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const AppName = "wut"

// ConfigDir is ~/.config/wut on unix (XDG_CONFIG_HOME honored), the
// Application Support dir on darwin, and %APPDATA% on windows.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not resolve home directory: %w", err)
	}
	var base string
	switch runtime.GOOS {
	case "darwin":
		base = filepath.Join(home, "Library", "Application Support")
	case "windows":
		if base = os.Getenv("APPDATA"); base == "" {
			base = filepath.Join(home, "AppData", "Roaming")
		}
	default:
		if base = os.Getenv("XDG_CONFIG_HOME"); base == "" {
			base = filepath.Join(home, ".config")
		}
	}
	return filepath.Join(base, AppName), nil
}

func ConfigFilePath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

func EnsureConfigDir() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	if err := ensurePrivateDir(dir, "config"); err != nil {
		return "", err
	}
	return dir, nil
}

// StateDir is where mutable data lives: the suggestion store, knowledge
// document, event log, rotated logs, and backups.
func StateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not resolve home directory: %w", err)
	}
	var base string
	switch runtime.GOOS {
	case "darwin":
		base = filepath.Join(home, "Library", "Application Support")
	case "windows":
		if base = os.Getenv("LOCALAPPDATA"); base == "" {
			base = filepath.Join(home, "AppData", "Local")
		}
	default:
		if base = os.Getenv("XDG_STATE_HOME"); base == "" {
			base = filepath.Join(home, ".local", "state")
		}
	}
	return filepath.Join(base, AppName, "state"), nil
}

func EnsureStateDir() (string, error) {
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	if err := ensurePrivateDir(dir, "state"); err != nil {
		return "", err
	}
	return dir, nil
}

func StateFilePath(name string) (string, error) {
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// StateSubdir resolves (without creating) a directory under the state dir,
// used for knowledge-document backups and rotated logs.
func StateSubdir(name string) (string, error) {
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

func EnsureStateSubdir(name string) (string, error) {
	dir, err := StateSubdir(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("could not create state subdir: %w", err)
	}
	return dir, nil
}

// ensurePrivateDir creates dir and pins 0700 even when it already existed
// with looser permissions.
func ensurePrivateDir(dir, label string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("could not create %s dir: %w", label, err)
	}
	if err := os.Chmod(dir, 0o700); err != nil {
		return fmt.Errorf("could not secure %s dir permissions: %w", label, err)
	}
	return nil
}
