package logger

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
)

// Level type
type Level uint32

const (
	// ErrorLevel level. Used for errors that should definitely be noted.
	ErrorLevel Level = iota
	// WarnLevel level. Non-critical entries that deserve eyes, like a dropped
	// connection or an exhausted reconnect budget.
	WarnLevel
	// InfoLevel level. General operational entries about the connection lifecycle.
	InfoLevel
	// DebugLevel level. Usually only enabled when debugging.
	DebugLevel
	// TraceLevel level. Every envelope sent and received.
	TraceLevel
)

var LevelMap = map[Level]string{
	ErrorLevel: "error",
	WarnLevel:  "warn",
	InfoLevel:  "info",
	DebugLevel: "debug",
	TraceLevel: "trace",
}

// String returns the lower case level name
func (l Level) String() string {
	if s, ok := LevelMap[l]; ok {
		return s
	}
	return fmt.Sprintf("level(%d)", uint32(l))
}

// ParseLevel converts a level name to a Level
func ParseLevel(name string) (Level, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "warning" {
		return WarnLevel, nil
	}

	for level, s := range LevelMap {
		if s == name {
			return level, nil
		}
	}

	return InfoLevel, fmt.Errorf("unknown log level %q", name)
}

type LogPayload struct {
	Level   Level
	Fields  map[string]interface{}
	Error   error
	Message string
}

type LogFunc func(payload LogPayload)

func NoopLogFunc(payload LogPayload) {}

func NewNoopLogger() *LogWrapper {
	return NewLogWrapper(NoopLogFunc, map[string]interface{}{})
}

// NewSimpleLogFunc returns a simple logging func that writes to stdout
func NewSimpleLogFunc(level Level) LogFunc {
	return NewWriterLogFunc(os.Stdout, level)
}

// NewWriterLogFunc returns a logging func that writes sorted key=value
// lines to w. Writes are serialized so the func can be shared between
// the connection goroutines.
func NewWriterLogFunc(w io.Writer, level Level) LogFunc {
	var mx sync.Mutex

	return func(payload LogPayload) {
		if level < payload.Level {
			return
		}

		m := map[string]interface{}{}
		keys := []string{"msg", "level"}

		for k, v := range payload.Fields {
			if k != "msg" && k != "level" && k != "error" {
				keys = append(keys, k)
				m[k] = v
			}
		}

		m["msg"] = payload.Message
		m["level"] = payload.Level.String()

		if payload.Error != nil {
			keys = append(keys, "error")
			m["error"] = payload.Error.Error()
		}

		sort.Strings(keys)

		fields := make([]string, 0, len(keys))
		for _, k := range keys {
			fields = append(fields, fmt.Sprintf("%s=%q", k, fmt.Sprint(m[k])))
		}

		mx.Lock()
		defer mx.Unlock()
		fmt.Fprintln(w, strings.Join(fields, " "))
	}
}

type LogWrapper struct {
	LogFunc LogFunc
	Fields  map[string]interface{}
	Error   error
}

// NewLogWrapper returns a new log wrapper
func NewLogWrapper(logFunc LogFunc, fields map[string]interface{}) *LogWrapper {
	if logFunc == nil {
		logFunc = NoopLogFunc
	}

	if fields == nil {
		fields = map[string]interface{}{}
	}

	return &LogWrapper{
		LogFunc: logFunc,
		Fields:  fields,
	}
}

// clone clones a log wrapper to iteratively build the log
func (l *LogWrapper) clone() *LogWrapper {
	newWrapper := &LogWrapper{
		LogFunc: l.LogFunc,
		Error:   l.Error,
		Fields:  make(map[string]interface{}, len(l.Fields)+1),
	}

	for k, v := range l.Fields {
		newWrapper.Fields[k] = v
	}

	return newWrapper
}

func (l *LogWrapper) WithError(err error) *LogWrapper {
	newWrapper := l.clone()
	newWrapper.Error = err
	return newWrapper
}

func (l *LogWrapper) WithField(key string, value interface{}) *LogWrapper {
	newWrapper := l.clone()
	newWrapper.Fields[key] = value
	return newWrapper
}

func (l *LogWrapper) log(level Level, format string, v ...interface{}) {
	l.LogFunc(LogPayload{
		Level:   level,
		Fields:  l.Fields,
		Error:   l.Error,
		Message: fmt.Sprintf(format, v...),
	})
}

func (l *LogWrapper) Tracef(format string, v ...interface{}) {
	l.log(TraceLevel, format, v...)
}

func (l *LogWrapper) Debugf(format string, v ...interface{}) {
	l.log(DebugLevel, format, v...)
}

func (l *LogWrapper) Infof(format string, v ...interface{}) {
	l.log(InfoLevel, format, v...)
}

func (l *LogWrapper) Warnf(format string, v ...interface{}) {
	l.log(WarnLevel, format, v...)
}

func (l *LogWrapper) Errorf(format string, v ...interface{}) {
	l.log(ErrorLevel, format, v...)
}
