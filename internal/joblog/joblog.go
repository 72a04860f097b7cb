// Package joblog defines the structured log records attached to a job and
// the wire format used by existing log viewers.
package joblog

import (
	"fmt"
	"strings"
)

// Level tags a job log line.
type Level string

const (
	LevelInfo  Level = "I"
	LevelDebug Level = "D"
	LevelWarn  Level = "W"
	LevelError Level = "E"
)

// Record is one job log entry. The level is stored as an enum; the legacy
// "[I] message" prefix exists only at the wire boundary.
type Record struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

func normalize(l Level) Level {
	switch l {
	case LevelInfo, LevelDebug, LevelWarn, LevelError:
		return l
	}
	return LevelInfo
}

// Format renders a record in the wire format consumed by log viewers.
func Format(r Record) string {
	return fmt.Sprintf("[%s] %s", normalize(r.Level), r.Message)
}

// Parse reads a wire-format line back into a record. Lines without a
// recognized prefix come back as info records with the raw text.
func Parse(line string) Record {
	if len(line) >= 4 && line[0] == '[' && line[2] == ']' && line[3] == ' ' {
		lvl := Level(line[1:2])
		switch lvl {
		case LevelInfo, LevelDebug, LevelWarn, LevelError:
			return Record{Level: lvl, Message: line[4:]}
		}
	}
	return Record{Level: LevelInfo, Message: strings.TrimSpace(line)}
}

// Appender persists formatted log lines for a job.
type Appender interface {
	AppendLog(jobID, line string) error
}

// Logger writes leveled records for one job through an Appender. A nil
// Logger or one with an empty job id drops everything, which lets callers
// log unconditionally.
type Logger struct {
	jobID string
	out   Appender
}

// New returns a Logger bound to the given job.
func New(out Appender, jobID string) *Logger {
	return &Logger{jobID: jobID, out: out}
}

func (l *Logger) write(level Level, format string, args ...any) {
	if l == nil || l.jobID == "" || l.out == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	// Persisting the log tail is best effort; a full Redis must not
	// abort the pipeline.
	_ = l.out.AppendLog(l.jobID, Format(Record{Level: level, Message: msg}))
}

func (l *Logger) Infof(format string, args ...any)  { l.write(LevelInfo, format, args...) }
func (l *Logger) Debugf(format string, args ...any) { l.write(LevelDebug, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.write(LevelWarn, format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.write(LevelError, format, args...) }
