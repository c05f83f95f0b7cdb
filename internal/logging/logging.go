// Package logging owns the shared logrus instance. Output goes to a rotating
// file under the state directory so every short-lived invocation appends to
// the same trail; --verbose mirrors entries to stderr for live debugging.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/wut-cli/wut/internal/appdirs"
)

const logFileName = "wut.log"

var (
	setupOnce  sync.Once
	writerMu   sync.Mutex
	fileWriter *lumberjack.Logger
)

// Options come from the [logging] config table plus the --verbose flag.
type Options struct {
	Level     string
	ToFile    bool
	MaxSizeMB int
	Verbose   bool
}

// lineFormatter renders one entry per line:
// [2026-01-02 15:04:05] [level] message | key=value
type lineFormatter struct{}

func (f *lineFormatter) Format(entry *log.Entry) ([]byte, error) {
	var buffer *bytes.Buffer
	if entry.Buffer != nil {
		buffer = entry.Buffer
	} else {
		buffer = &bytes.Buffer{}
	}

	level := entry.Level.String()
	if level == "warning" {
		level = "warn"
	}
	timestamp := entry.Time.Format("2006-01-02 15:04:05")
	message := strings.TrimRight(entry.Message, "\r\n")

	formatted := fmt.Sprintf("[%s] [%-5s] %s", timestamp, level, message)
	if len(entry.Data) > 0 {
		formatted += " |"
		first := true
		for _, key := range sortedKeys(entry.Data) {
			if !first {
				formatted += ","
			}
			formatted += fmt.Sprintf(" %s=%v", key, entry.Data[key])
			first = false
		}
	}
	formatted += "\n"

	buffer.WriteString(formatted)
	return buffer.Bytes(), nil
}

func sortedKeys(data log.Fields) []string {
	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

// Setup configures the shared logger. Safe to call more than once; only the
// first call wires the formatter, later calls still retarget the output.
func Setup(opts Options) error {
	setupOnce.Do(func() {
		log.SetFormatter(&lineFormatter{})
		log.RegisterExitHandler(closeOutputs)
	})

	level, err := log.ParseLevel(strings.TrimSpace(opts.Level))
	if err != nil || strings.TrimSpace(opts.Level) == "" {
		level = log.InfoLevel
	}
	if opts.Verbose && level < log.DebugLevel {
		level = log.DebugLevel
	}
	log.SetLevel(level)

	writerMu.Lock()
	defer writerMu.Unlock()

	var sinks []io.Writer
	if opts.ToFile {
		dir, err := appdirs.EnsureStateSubdir("logs")
		if err != nil {
			return fmt.Errorf("could not prepare log directory: %w", err)
		}
		maxSize := opts.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 10
		}
		if fileWriter != nil {
			_ = fileWriter.Close()
		}
		fileWriter = &lumberjack.Logger{
			Filename:   filepath.Join(dir, logFileName),
			MaxSize:    maxSize,
			MaxBackups: 3,
			Compress:   false,
		}
		sinks = append(sinks, fileWriter)
	}
	if opts.Verbose {
		sinks = append(sinks, os.Stderr)
	}

	switch len(sinks) {
	case 0:
		log.SetOutput(io.Discard)
	case 1:
		log.SetOutput(sinks[0])
	default:
		log.SetOutput(io.MultiWriter(sinks...))
	}
	return nil
}

// L returns the shared logger; packages attach fields with L().WithField.
func L() *log.Logger {
	return log.StandardLogger()
}

func closeOutputs() {
	writerMu.Lock()
	defer writerMu.Unlock()
	if fileWriter != nil {
		_ = fileWriter.Close()
		fileWriter = nil
	}
}
