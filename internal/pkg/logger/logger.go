package logger

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Level represents the severity of a log entry.
type Level = logrus.Level

const (
	DEBUG = logrus.DebugLevel
	INFO  = logrus.InfoLevel
	WARN  = logrus.WarnLevel
	ERROR = logrus.ErrorLevel
)

// Options configures the process-wide logger.
type Options struct {
	Level     string // debug, info, warn, error
	RedactPII bool
	// File, when set, also writes rotated JSON logs to this path.
	File       string
	MaxSizeMB  int
	MaxBackups int
}

var (
	mu        sync.RWMutex
	base      = newBase(os.Stderr)
	redactPII = true
)

func newBase(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(INFO)
	l.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05Z07:00",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime: "time",
			logrus.FieldKeyMsg:  "msg",
		},
	})
	return l
}

// Configure applies opts to the default logger. An unknown level falls back
// to info.
func Configure(opts Options) {
	lvl, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		lvl = INFO
	}
	var w io.Writer = os.Stderr
	if opts.File != "" {
		w = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    nonZero(opts.MaxSizeMB, 50),
			MaxBackups: nonZero(opts.MaxBackups, 5),
			Compress:   true,
		})
	}

	mu.Lock()
	defer mu.Unlock()
	base.SetOutput(w)
	base.SetLevel(lvl)
	redactPII = opts.RedactPII
}

// SetOutput redirects the default logger. Tests use it to capture entries.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	base.SetOutput(w)
}

// SetLevel sets the minimum log level for the default logger.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	base.SetLevel(l)
}

// SetRedactPII enables or disables PII redaction for the default logger.
func SetRedactPII(r bool) {
	mu.Lock()
	defer mu.Unlock()
	redactPII = r
}

// Debug emits a DEBUG-level structured log entry.
func Debug(msg string, fields ...interface{}) { log(DEBUG, msg, fields...) }

// Info emits an INFO-level structured log entry.
func Info(msg string, fields ...interface{}) { log(INFO, msg, fields...) }

// Warn emits a WARN-level structured log entry.
func Warn(msg string, fields ...interface{}) { log(WARN, msg, fields...) }

// Error emits an ERROR-level structured log entry.
func Error(msg string, fields ...interface{}) { log(ERROR, msg, fields...) }

func log(level Level, msg string, fields ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	if !base.IsLevelEnabled(level) {
		return
	}

	entry := logrus.Fields{}
	// Parse key-value pairs from fields
	for i := 0; i < len(fields)-1; i += 2 {
		key := fmt.Sprintf("%v", fields[i])
		entry[key] = fieldValue(key, fields[i+1])
	}
	base.WithFields(entry).Log(level, msg)
}

// fieldValue keeps typed values so logrus encodes them as JSON numbers,
// bools and so on. Strings, errors and Stringers are redacted.
func fieldValue(key string, v interface{}) interface{} {
	var s string
	switch val := v.(type) {
	case string:
		s = val
	case error:
		s = val.Error()
	case fmt.Stringer:
		s = val.String()
	default:
		return v
	}
	if redactPII {
		s = redactPIIValue(key, s)
	}
	return s
}

var emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

func redactPIIValue(key, val string) string {
	key = strings.ToLower(key)
	if strings.Contains(key, "email") || key == "to" || key == "recipient" {
		return RedactEmail(val)
	}
	if strings.Contains(key, "donor_name") {
		return RedactName(val)
	}
	// Redact any embedded emails in generic fields
	return emailRegex.ReplaceAllStringFunc(val, RedactEmail)
}

func nonZero(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
