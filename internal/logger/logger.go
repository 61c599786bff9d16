// Package logger provides structured event logging for the sync engine.
//
// Components never write to stdout or files directly. They hold a *Logger,
// which filters by level and hands every event to a Sink. Production wiring
// uses the zap-backed sink; tests use a Capture sink and assert on events.
//
//	log.Warn("Team not found", logger.Fields{
//	    "group": "N2F-A",
//	    "team":  "Sete VB",
//	})
package logger

import (
	"strings"
	"sync"
	"time"
)

// Level represents log severity
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

var levelRank = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// ParseLevel maps a config string onto a Level, defaulting to INFO.
func ParseLevel(s string) Level {
	l := Level(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := levelRank[l]; ok {
		return l
	}
	if l == "WARNING" {
		return LevelWarn
	}
	return LevelInfo
}

// Fields represents structured log fields
type Fields map[string]interface{}

// Event is one structured log record.
type Event struct {
	Time    time.Time `json:"time"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	Fields  Fields    `json:"fields,omitempty"`
}

// Sink receives events.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Emit calls f.
func (f SinkFunc) Emit(e Event) { f(e) }

// Logger filters events by level and forwards them to a sink
type Logger struct {
	minLevel Level
	sink     Sink
	fields   Fields
}

// New creates a logger writing events at or above level into sink.
func New(level Level, sink Sink) *Logger {
	return &Logger{minLevel: level, sink: sink}
}

// Nop returns a logger that drops everything.
func Nop() *Logger {
	return New(LevelError, SinkFunc(func(Event) {}))
}

// With returns a child logger that adds fields to every event.
func (l *Logger) With(fields Fields) *Logger {
	return &Logger{minLevel: l.minLevel, sink: l.sink, fields: mergeFields(l.fields, fields)}
}

func (l *Logger) log(level Level, message string, fields Fields, err error) {
	if l == nil || levelRank[level] < levelRank[l.minLevel] {
		return
	}
	merged := mergeFields(l.fields, fields)
	if err != nil {
		if merged == nil {
			merged = Fields{}
		}
		merged["error"] = err.Error()
	}
	l.sink.Emit(Event{
		Time:    time.Now().UTC(),
		Level:   level,
		Message: message,
		Fields:  merged,
	})
}

// Debug logs a debug message
func (l *Logger) Debug(message string, fields Fields) {
	l.log(LevelDebug, message, fields, nil)
}

// Info logs an informational message
func (l *Logger) Info(message string, fields Fields) {
	l.log(LevelInfo, message, fields, nil)
}

// Warn logs a warning message
func (l *Logger) Warn(message string, fields Fields) {
	l.log(LevelWarn, message, fields, nil)
}

// Error logs an error message along with err.
func (l *Logger) Error(message string, fields Fields, err error) {
	l.log(LevelError, message, fields, err)
}

func mergeFields(base, extra Fields) Fields {
	if len(base) == 0 && len(extra) == 0 {
		return nil
	}
	out := make(Fields, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// Multi fans each event out to several sinks.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(e Event) {
		for _, s := range sinks {
			s.Emit(e)
		}
	})
}

// Capture is a Sink that records events in memory.
type Capture struct {
	mu     sync.Mutex
	events []Event
}

// NewCapture creates an empty capture sink.
func NewCapture() *Capture {
	return &Capture{}
}

// Emit records e.
func (c *Capture) Emit(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

// Events returns a copy of everything captured so far.
func (c *Capture) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

// Find returns captured events at level whose message equals message.
func (c *Capture) Find(level Level, message string) []Event {
	var out []Event
	for _, e := range c.Events() {
		if e.Level == level && e.Message == message {
			out = append(out, e)
		}
	}
	return out
}
