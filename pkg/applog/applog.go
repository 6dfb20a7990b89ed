// Package applog provides the rotating, per-subsystem loggers every
// pykuang package pulls from. It mirrors the original Python project's
// common.get_logger: one *log.Logger per name, cached, writing to a
// shared rotating log file under the application's base directory.
package applog

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// MaxLogSizeMB and MaxLogBackups match the 4 MiB x 10 rotation
	// policy spec'd for pykuang.log.
	MaxLogSizeMB   = 4
	MaxLogBackups  = 10
	logFileName    = "pykuang.log"
	defaultFlags   = log.Ldate | log.Ltime | log.Lmicroseconds
	terminalPrefix = ""
)

var (
	mu      sync.Mutex
	cache   = map[string]*log.Logger{}
	writer  io.Writer
	console bool = true
)

// Init wires the rotating file sink for the given base directory.
// Loggers already handed out by Get are switched over to the new sink;
// tests may call it repeatedly with a fresh directory.
func Init(baseDir string, mirrorToStderr bool) error {
	mu.Lock()
	defer mu.Unlock()

	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return fmt.Errorf("applog: create base dir %s: %w", baseDir, err)
	}

	lj := &lumberjack.Logger{
		Filename:   filepath.Join(baseDir, logFileName),
		MaxSize:    MaxLogSizeMB,
		MaxBackups: MaxLogBackups,
		Compress:   false,
	}

	console = mirrorToStderr
	if console {
		writer = io.MultiWriter(lj, os.Stderr)
	} else {
		writer = lj
	}

	// Any loggers already handed out should pick up the new sink too.
	for name, l := range cache {
		l.SetOutput(writer)
		l.SetPrefix(prefix(name))
	}
	return nil
}

func prefix(name string) string {
	return fmt.Sprintf("[%-12s] ", name)
}

// Get returns (creating if necessary) the named logger. Until Init is
// called, loggers write to stderr only, so packages can log during early
// startup without crashing.
func Get(name string) *log.Logger {
	mu.Lock()
	defer mu.Unlock()

	if l, ok := cache[name]; ok {
		return l
	}

	out := writer
	if out == nil {
		out = os.Stderr
	}
	l := log.New(out, prefix(name), defaultFlags)
	cache[name] = l
	return l
}
