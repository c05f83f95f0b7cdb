package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/wut-cli/wut/internal/logging"
)

const (
	lockFileName = "suggestions.lock"

	// A short-lived CLI transaction holds the lock for milliseconds; a
	// lock older than this belongs to a dead process and may be taken.
	lockStaleAfter = 10 * time.Second

	lockAcquireTimeout = 5 * time.Second
	lockRetryDelay     = 25 * time.Millisecond
)

// fileLock is an exclusive-create lock file holding the owner's token. It
// works on any filesystem and across unrelated processes.
type fileLock struct {
	path  string
	token string
}

func acquireLock(dir string) (*fileLock, error) {
	path := filepath.Join(dir, lockFileName)
	token := uuid.NewString()
	deadline := time.Now().Add(lockAcquireTimeout)
	for {
		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err == nil {
			if _, err := file.WriteString(token + "\n"); err != nil {
				_ = file.Close()
				_ = os.Remove(path)
				return nil, fmt.Errorf("could not write store lock: %w", err)
			}
			if err := file.Close(); err != nil {
				_ = os.Remove(path)
				return nil, fmt.Errorf("could not close store lock: %w", err)
			}
			return &fileLock{path: path, token: token}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("could not create store lock: %w", err)
		}
		if info, statErr := os.Stat(path); statErr == nil && time.Since(info.ModTime()) > lockStaleAfter {
			logging.L().WithField("path", path).Warn("removing stale store lock")
			_ = os.Remove(path)
			continue
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("could not lock suggestion store: %s held too long", path)
		}
		time.Sleep(lockRetryDelay)
	}
}

// release removes the lock only if this process still owns it, so a stale
// takeover by another process is never undone.
func (l *fileLock) release() {
	if l == nil {
		return
	}
	payload, err := os.ReadFile(l.path)
	if err != nil {
		return
	}
	if len(payload) < len(l.token) || string(payload[:len(l.token)]) != l.token {
		return
	}
	_ = os.Remove(l.path)
}
