// Copyright (C) 2024  wwhai
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License along
// with this program; if not, see <https://www.gnu.org/licenses/>.

package zaber

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// LogLevel type defines the severity of a log message.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarning
	LevelError
	LevelNone // Disables logging
)

var levelNames = map[LogLevel]string{
	LevelDebug:   "DEBUG",
	LevelInfo:    "INFO",
	LevelWarning: "WARNING",
	LevelError:   "ERROR",
	LevelNone:    "NONE",
}

func (l LogLevel) String() string {
	if s, ok := levelNames[l]; ok {
		return s
	}
	return fmt.Sprintf("LogLevel(%d)", int(l))
}

// ParseLogLevel accepts the level names case-insensitively; WARN is an alias
// of WARNING.
func ParseLogLevel(s string) (LogLevel, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	if upper == "WARN" {
		return LevelWarning, nil
	}
	for level, name := range levelNames {
		if name == upper {
			return level, nil
		}
	}
	return LevelNone, fmt.Errorf("invalid log level: %q", s)
}

// logf writes one "LEVEL: message" line to w. Nil writers are ignored, which
// keeps logging optional throughout the package.
func logf(w io.Writer, level LogLevel, format string, args ...any) {
	if w == nil {
		return
	}
	fmt.Fprintf(w, "%s: %s\n", level, fmt.Sprintf(format, args...))
}

// SimpleLogger is an io.Writer that filters lines by the level prefix written
// by this package and stamps them with time and prefix.
type SimpleLogger struct {
	mu         sync.Mutex
	level      LogLevel
	output     io.Writer
	timeFormat string
	prefix     string
}

// NewSimpleLogger creates a new SimpleLogger instance.
// If output is nil, it defaults to os.Stdout.
func NewSimpleLogger(output io.Writer, level LogLevel, prefix string) *SimpleLogger {
	if output == nil {
		output = os.Stdout
	}
	return &SimpleLogger{
		level:      level,
		output:     output,
		timeFormat: time.RFC3339,
		prefix:     prefix,
	}
}

// SetLevel sets the logging level of the SimpleLogger.
func (l *SimpleLogger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// GetLevel returns the current logging level of the SimpleLogger.
func (l *SimpleLogger) GetLevel() LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// SetLevelFromString sets the logging level from a string representation (e.g., "DEBUG").
func (l *SimpleLogger) SetLevelFromString(levelStr string) error {
	level, err := ParseLogLevel(levelStr)
	if err != nil {
		return err
	}
	l.SetLevel(level)
	return nil
}

// Write implements io.Writer. Lines below the configured level are dropped
// but still reported as written.
func (l *SimpleLogger) Write(p []byte) (n int, err error) {
	message := string(p)
	level, text := SplitLevel(message)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.level == LevelNone || level < l.level {
		return len(p), nil
	}
	line := fmt.Sprintf("%s [%s] <%s> %s\n", time.Now().Format(l.timeFormat), level, l.prefix, strings.TrimSpace(text))
	if _, err := io.WriteString(l.output, line); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close closes the underlying output if it's not os.Stdout or os.Stderr.
func (l *SimpleLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.output == os.Stdout || l.output == os.Stderr {
		return nil
	}
	if closer, ok := l.output.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// SplitLevel infers the level from the message prefix and strips it.
// Messages without a known prefix are INFO.
func SplitLevel(message string) (LogLevel, string) {
	upper := strings.ToUpper(message)
	for _, p := range []struct {
		prefix string
		level  LogLevel
	}{
		{"DEBUG:", LevelDebug},
		{"[DEBUG]", LevelDebug},
		{"INFO:", LevelInfo},
		{"[INFO]", LevelInfo},
		{"WARNING:", LevelWarning},
		{"[WARNING]", LevelWarning},
		{"WARN:", LevelWarning},
		{"ERROR:", LevelError},
		{"[ERROR]", LevelError},
	} {
		if strings.HasPrefix(upper, p.prefix) {
			return p.level, message[len(p.prefix):]
		}
	}
	return LevelInfo, message
}
