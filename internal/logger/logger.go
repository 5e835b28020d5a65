// Package logger provides leveled logging for docrag. Debug output is only
// written in verbose mode; Info, Warn and Error are always written.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/fatih/color"
)

var (
	mu      sync.RWMutex
	verbose bool
	output  io.Writer = os.Stderr
	logFile *os.File
	colored = true
)

var (
	debugTag = color.New(color.FgHiBlack).SprintFunc()
	infoTag  = color.New(color.FgCyan).SprintFunc()
	warnTag  = color.New(color.FgYellow).SprintFunc()
	errorTag = color.New(color.FgRed, color.Bold).SprintFunc()
)

// Init routes log output to stderr and, when logPath is set, appends to
// that file as well. Colors are disabled once a file is attached.
func Init(logPath string) error {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	writers := []io.Writer{os.Stderr}
	colored = true
	if logPath != "" {
		if dir := filepath.Dir(logPath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		logFile = file
		writers = append(writers, file)
		colored = false
	}
	output = io.MultiWriter(writers...)
	return nil
}

// Close detaches the log file, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	output = os.Stderr
	colored = true
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

// SetVerbose enables or disables debug logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput sets the output writer. Output written through SetOutput is
// never colored, which keeps it stable for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	colored = false
}

// Debug prints a message if verbose mode is enabled.
func Debug(format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	if verbose {
		write(debugTag, "[DEBUG]", format, args...)
	}
}

// Section prints a section header if verbose mode is enabled.
func Section(name string) {
	mu.RLock()
	defer mu.RUnlock()
	if verbose {
		fmt.Fprintf(output, "\n=== %s ===\n", name)
	}
}

func Info(format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	write(infoTag, "[INFO]", format, args...)
}

func Warn(format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	write(warnTag, "[WARN]", format, args...)
}

func Error(format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	write(errorTag, "[ERROR]", format, args...)
}

// write must be called with mu held.
func write(paint func(a ...any) string, tag, format string, args ...any) {
	if colored {
		tag = paint(tag)
	}
	fmt.Fprintf(output, tag+" "+format+"\n", args...)
}
