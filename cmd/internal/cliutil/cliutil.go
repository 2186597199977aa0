// Package cliutil holds helpers shared by the service binaries.
package cliutil

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// StdLogger adapts the standard library logger to the pipeline's Logger
// interface.
type StdLogger struct {
	Logger  *log.Logger
	Verbose bool
}

// NewStdLogger returns a StdLogger writing to stdout.
func NewStdLogger(verbose bool) StdLogger {
	return StdLogger{Logger: log.New(os.Stdout, "", log.LstdFlags), Verbose: verbose}
}

// Debug logs only when verbose is enabled.
func (l StdLogger) Debug(msg string, args ...any) {
	if !l.Verbose {
		return
	}
	l.Logger.Printf("DEBUG %s %s", msg, formatArgs(args))
}

// Info logs at info level.
func (l StdLogger) Info(msg string, args ...any) {
	l.Logger.Printf("INFO %s %s", msg, formatArgs(args))
}

// Warn logs at warning level.
func (l StdLogger) Warn(msg string, args ...any) {
	l.Logger.Printf("WARN %s %s", msg, formatArgs(args))
}

// Error logs at error level.
func (l StdLogger) Error(msg string, args ...any) {
	l.Logger.Printf("ERROR %s %s", msg, formatArgs(args))
}

func formatArgs(args []any) string {
	if len(args) == 0 {
		return ""
	}
	pairs := make([]string, 0, len(args))
	for i := 0; i < len(args); i += 2 {
		key := args[i]
		val := any("<missing>")
		if i+1 < len(args) {
			val = args[i+1]
		}
		pairs = append(pairs, fmt.Sprintf("%v=%v", key, val))
	}

	return strings.Join(pairs, " ")
}

// Env returns the environment value for key, or fallback when unset. Used
// for flag defaults so container deployments can configure without argv.
func Env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}
