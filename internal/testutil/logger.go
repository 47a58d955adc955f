package testutil

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Entry is one recorded log call.
type Entry struct {
	Level string
	Msg   string
	Args  []any
}

func (e Entry) String() string {
	var b strings.Builder
	b.WriteString(e.Level + " " + e.Msg)
	for i := 0; i+1 < len(e.Args); i += 2 {
		fmt.Fprintf(&b, " %v=%v", e.Args[i], e.Args[i+1])
	}
	return b.String()
}

// Logger records every call and is safe for concurrent use.
type Logger struct {
	mu      sync.Mutex
	entries []Entry
}

func NewLogger() *Logger { return &Logger{} }

func (l *Logger) Debug(msg string, args ...any) { l.record("DEBUG", msg, args) }

func (l *Logger) Info(msg string, args ...any) { l.record("INFO", msg, args) }

func (l *Logger) Warn(msg string, args ...any) { l.record("WARN", msg, args) }

func (l *Logger) Error(msg string, args ...any) { l.record("ERROR", msg, args) }

func (l *Logger) record(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, Entry{Level: level, Msg: msg, Args: slices.Clone(args)})
}

// Entries returns the recorded calls, optionally filtered by level.
func (l *Logger) Entries(levels ...string) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(levels) == 0 {
		return slices.Clone(l.entries)
	}
	var out []Entry
	for _, e := range l.entries {
		if slices.Contains(levels, e.Level) {
			out = append(out, e)
		}
	}
	return out
}

// Contains reports whether a call at level carried msg.
func (l *Logger) Contains(level, msg string) bool {
	for _, e := range l.Entries(level) {
		if e.Msg == msg {
			return true
		}
	}
	return false
}
