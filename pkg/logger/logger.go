package logger

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// Level represents the severity level of a log message.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	NoticeLevel
	ErrorLevel
)

// ParseLevel converts a level name such as "debug" or "ERROR" into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "info":
		return InfoLevel, nil
	case "notice", "warn", "warning":
		return NoticeLevel, nil
	case "error":
		return ErrorLevel, nil
	}
	return InfoLevel, fmt.Errorf("unknown log level: %q", s)
}

type Chain int

const (
	None Chain = iota
	Eth
	ArbOne
	ArbNova
	ArbSepolia
)

var chainIDMap = map[int]Chain{
	1:      Eth,
	42161:  ArbOne,
	42170:  ArbNova,
	421614: ArbSepolia,
}

var chainPrefixes = map[Chain]string{
	None:       "",
	Eth:        "[ETH]     ",
	ArbOne:     "[ARB]     ",
	ArbNova:    "[NOVA]    ",
	ArbSepolia: "[ARB-SEP] ",
}

var colors = map[Chain]color.Attribute{
	None:       color.FgWhite,
	Eth:        color.FgHiGreen,
	ArbOne:     color.FgHiBlue,
	ArbNova:    color.FgYellow,
	ArbSepolia: color.FgMagenta,
}

// Logger is a simple interface for logging messages.
type Logger interface {
	// Info logs an informational message.
	Info(format string, args ...interface{})
	InfoWithChain(chainID int, format string, args ...interface{})

	// Error logs an error message.
	Error(format string, args ...interface{})
	ErrorWithChain(chainID int, format string, args ...interface{})

	// Debug logs a debug message.
	Debug(format string, args ...interface{})
	DebugWithChain(chainID int, format string, args ...interface{})

	// Notice logs a notice message. Used for warnings that need operator attention.
	Notice(format string, args ...interface{})
	NoticeWithChain(chainID int, format string, args ...interface{})
}

// EmptyLogger is a simple implementation of the Logger interface that does nothing.
type EmptyLogger struct{}

var _ Logger = (*EmptyLogger)(nil)

func (l *EmptyLogger) Info(_ string, _ ...interface{})                   {}
func (l *EmptyLogger) InfoWithChain(_ int, _ string, _ ...interface{})   {}
func (l *EmptyLogger) Error(_ string, _ ...interface{})                  {}
func (l *EmptyLogger) ErrorWithChain(_ int, _ string, _ ...interface{})  {}
func (l *EmptyLogger) Debug(_ string, _ ...interface{})                  {}
func (l *EmptyLogger) DebugWithChain(_ int, _ string, _ ...interface{})  {}
func (l *EmptyLogger) Notice(_ string, _ ...interface{})                 {}
func (l *EmptyLogger) NoticeWithChain(_ int, _ string, _ ...interface{}) {}

// StdLogger is a standard implementation of the Logger interface that logs messages to the console.
type StdLogger struct {
	enableColoring bool
	level          Level
	mu             sync.Mutex
}

var _ Logger = (*StdLogger)(nil)

func NewStdLogger(enableColoring bool, level Level) *StdLogger {
	return &StdLogger{
		enableColoring: enableColoring,
		level:          level,
	}
}

// formatMessage formats the log message with the appropriate log level, chain prefix, and coloring if enabled.
func (l *StdLogger) formatMessage(level Level, chain Chain, format string) string {
	chainPrefix := chainPrefixes[chain]
	if l.enableColoring && chainPrefix != "" {
		chainPrefix = color.New(colors[chain]).Sprint(chainPrefix)
	}

	var levelStr string
	switch level {
	case DebugLevel:
		levelStr = "[DEBUG]  "
	case InfoLevel:
		levelStr = "[INFO]   "
	case NoticeLevel:
		levelStr = "[NOTICE] "
	case ErrorLevel:
		levelStr = "[ERROR]  "
	}

	return levelStr + chainPrefix + format
}

func (l *StdLogger) write(level Level, chainID int, format string, args ...interface{}) {
	if l.level > level {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	log.Printf(l.formatMessage(level, chainIDMap[chainID], format), args...)
}

func (l *StdLogger) Info(format string, args ...interface{}) {
	l.write(InfoLevel, 0, format, args...)
}

func (l *StdLogger) InfoWithChain(chainID int, format string, args ...interface{}) {
	l.write(InfoLevel, chainID, format, args...)
}

func (l *StdLogger) Error(format string, args ...interface{}) {
	l.write(ErrorLevel, 0, format, args...)
}

func (l *StdLogger) ErrorWithChain(chainID int, format string, args ...interface{}) {
	l.write(ErrorLevel, chainID, format, args...)
}

func (l *StdLogger) Debug(format string, args ...interface{}) {
	l.write(DebugLevel, 0, format, args...)
}

func (l *StdLogger) DebugWithChain(chainID int, format string, args ...interface{}) {
	l.write(DebugLevel, chainID, format, args...)
}

func (l *StdLogger) Notice(format string, args ...interface{}) {
	l.write(NoticeLevel, 0, format, args...)
}

func (l *StdLogger) NoticeWithChain(chainID int, format string, args ...interface{}) {
	l.write(NoticeLevel, chainID, format, args...)
}
