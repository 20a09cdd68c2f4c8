package test

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// NewLogger returns a logger that discards output unless TEST_LOGS is set.
// TEST_LOGS=2 enables debug, TEST_LOGS=3 enables trace.
func NewLogger() *logrus.Logger {
	l := logrus.New()

	v := os.Getenv("TEST_LOGS")
	if v == "" {
		l.SetOutput(io.Discard)
		return l
	}

	switch v {
	case "2":
		l.SetLevel(logrus.DebugLevel)
	case "3":
		l.SetLevel(logrus.TraceLevel)
	default:
		l.SetLevel(logrus.InfoLevel)
	}

	return l
}

// LogWriter collects every log line written to it
type LogWriter struct {
	mu   sync.Mutex
	Logs []string
}

func (tl *LogWriter) Write(p []byte) (n int, err error) {
	tl.mu.Lock()
	tl.Logs = append(tl.Logs, string(p))
	tl.mu.Unlock()
	return len(p), nil
}

func (tl *LogWriter) Lines() []string {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return append([]string(nil), tl.Logs...)
}

// Contains reports whether any collected line contains s
func (tl *LogWriter) Contains(s string) bool {
	for _, line := range tl.Lines() {
		if strings.Contains(line, s) {
			return true
		}
	}
	return false
}

func (tl *LogWriter) Reset() {
	tl.mu.Lock()
	tl.Logs = tl.Logs[:0]
	tl.mu.Unlock()
}

// NewCapturingLogger returns a text logger without timestamps or colors that writes into the returned LogWriter
func NewCapturingLogger() (*logrus.Logger, *LogWriter) {
	tl := &LogWriter{}
	l := logrus.New()
	l.Formatter = &logrus.TextFormatter{
		DisableTimestamp: true,
		DisableColors:    true,
	}
	l.Out = tl
	return l, tl
}
