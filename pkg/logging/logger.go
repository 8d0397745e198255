package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Logger provides structured logging for browserforge components.
// All logs are written as JSON lines to a session-specific file in
// ~/.browserforge/logs/. Every entry carries the component and session id.
//
// Entries below the level set with SetLevel are dropped.
type Logger struct {
	sessionID string
	component string
	file      *os.File
	zl        zerolog.Logger
	mu        sync.Mutex
	logPath   string
	closeOnce sync.Once
}

var (
	// Global session ID for the current execution
	sessionID     string
	sessionIDOnce sync.Once

	// logDir is the directory where log files are stored
	logDir string

	initOnce sync.Once
	initErr  error
)

func getSessionID() string {
	sessionIDOnce.Do(func() {
		sessionID = uuid.New().String()
	})
	return sessionID
}

// initLogDirectory ensures the log directory exists. A directory assigned
// before the first call is kept.
func initLogDirectory() error {
	initOnce.Do(func() {
		if logDir == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				initErr = fmt.Errorf("failed to get home directory: %w", err)
				return
			}
			logDir = filepath.Join(homeDir, ".browserforge", "logs")
		}

		if err := os.MkdirAll(logDir, 0750); err != nil {
			initErr = fmt.Errorf("failed to create log directory: %w", err)
			return
		}
	})
	return initErr
}

// NewLogger creates a new logger for a specific component.
// The logger writes to ~/.browserforge/logs/<session-id>-browserforge.log
//
// If the log directory cannot be created or the log file cannot be opened,
// it returns a fallback logger that writes to stderr along with the error.
func NewLogger(component string) (*Logger, error) {
	if err := initLogDirectory(); err != nil {
		return newFallbackLogger(component, err), err
	}

	sessID := getSessionID()
	logPath := filepath.Join(logDir, fmt.Sprintf("%s-browserforge.log", sessID))

	// Append mode: every component of the session shares the file
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		err = fmt.Errorf("failed to open log file: %w", err)
		return newFallbackLogger(component, err), err
	}

	return &Logger{
		sessionID: sessID,
		component: component,
		file:      file,
		zl:        newZerolog(file, component, sessID),
		logPath:   logPath,
	}, nil
}

// NewWriterLogger creates a logger that writes JSON lines to w instead of the
// session file. The caller owns w.
func NewWriterLogger(component string, w io.Writer) *Logger {
	sessID := getSessionID()
	return &Logger{
		sessionID: sessID,
		component: component,
		zl:        newZerolog(w, component, sessID),
	}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{component: "nop", zl: zerolog.Nop()}
}

func newZerolog(w io.Writer, component, sessID string) zerolog.Logger {
	return zerolog.New(w).With().
		Timestamp().
		Str("component", component).
		Str("session", sessID).
		Logger()
}

func newFallbackLogger(component string, err error) *Logger {
	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	zl := zerolog.New(console).With().Timestamp().Str("component", component).Logger()
	zl.Warn().Err(err).Msg("failed to initialize file logging, falling back to stderr")

	return &Logger{
		sessionID: getSessionID(),
		component: component,
		zl:        zl,
	}
}

func (l *Logger) log(level zerolog.Level, format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.zl.WithLevel(level).Msgf(format, v...)
}

// Printf logs a formatted message at info level
func (l *Logger) Printf(format string, v ...interface{}) {
	l.log(zerolog.InfoLevel, format, v...)
}

// Debugf logs a debug-level message
func (l *Logger) Debugf(format string, v ...interface{}) {
	l.log(zerolog.DebugLevel, format, v...)
}

// Infof logs an info-level message
func (l *Logger) Infof(format string, v ...interface{}) {
	l.log(zerolog.InfoLevel, format, v...)
}

// Warnf logs a warning-level message
func (l *Logger) Warnf(format string, v ...interface{}) {
	l.log(zerolog.WarnLevel, format, v...)
}

// Errorf logs an error-level message
func (l *Logger) Errorf(format string, v ...interface{}) {
	l.log(zerolog.ErrorLevel, format, v...)
}

// Fields logs msg at the given level with structured fields attached.
func (l *Logger) Fields(level, msg string, fields map[string]interface{}) {
	lvl, err := ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.zl.WithLevel(lvl).Fields(fields).Msg(msg)
}

// Writer returns an io.Writer that writes to this logger's destination
func (l *Logger) Writer() io.Writer {
	if l.file != nil {
		return l.file
	}
	return os.Stderr
}

// SessionID returns the current session ID
func (l *Logger) SessionID() string {
	return l.sessionID
}

// LogPath returns the path to the log file
func (l *Logger) LogPath() string {
	return l.logPath
}

// Close closes the log file. Safe to call multiple times.
func (l *Logger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		if l.file != nil {
			err = l.file.Close()
		}
	})
	return err
}

// ParseLevel maps a level name to a zerolog level. Both the zerolog names and
// the upper-case names used in configuration files (DEBUG, INFO, WARNING,
// ERROR, CRITICAL) are accepted.
func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "WARNING":
		return zerolog.WarnLevel, nil
	case "CRITICAL":
		return zerolog.FatalLevel, nil
	}
	return zerolog.ParseLevel(strings.ToLower(level))
}

// SetLevel sets the minimum level written by every logger.
func SetLevel(level string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}

// GetSessionID returns the current global session ID
func GetSessionID() string {
	return getSessionID()
}

// GetLogDirectory returns the directory where logs are stored
func GetLogDirectory() (string, error) {
	if err := initLogDirectory(); err != nil {
		return "", err
	}
	return logDir, nil
}
