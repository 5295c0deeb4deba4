package dvid

import (
	"fmt"
	"strings"
	"time"
)

// LogLevel is the severity of a log message.  Messages below the process threshold
// set by SetLogLevel are dropped.
type LogLevel uint8

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarningLevel
	ErrorLevel
	CriticalLevel
	SilentLevel
)

var levelNames = [...]string{"DEBUG", "INFO", "WARNING", "ERROR", "CRITICAL", "SILENT"}

func (l LogLevel) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return fmt.Sprintf("LogLevel(%d)", uint8(l))
}

// ParseLogLevel accepts a level name in any case.  An empty name is InfoLevel.
func ParseLogLevel(s string) (LogLevel, error) {
	if s == "" {
		return InfoLevel, nil
	}
	for i, name := range levelNames {
		if strings.EqualFold(s, name) {
			return LogLevel(i), nil
		}
	}
	return InfoLevel, ConfigErrorf("unknown log level %q", s)
}

// Logger receives messages that passed the level threshold.
type Logger interface {
	Logf(level LogLevel, format string, args ...interface{})
	Shutdown()
}

var threshold = InfoLevel

// SetLogLevel sets the lowest severity that is logged.  SilentLevel turns off logging.
func SetLogLevel(l LogLevel) {
	threshold = l
}

func logf(l LogLevel, format string, args ...interface{}) {
	if l >= threshold {
		logger.Logf(l, format, args...)
	}
}

func Debugf(format string, args ...interface{})    { logf(DebugLevel, format, args...) }
func Infof(format string, args ...interface{})     { logf(InfoLevel, format, args...) }
func Warningf(format string, args ...interface{})  { logf(WarningLevel, format, args...) }
func Errorf(format string, args ...interface{})    { logf(ErrorLevel, format, args...) }
func Criticalf(format string, args ...interface{}) { logf(CriticalLevel, format, args...) }

// Shutdown closes the package logger.
func Shutdown() {
	logger.Shutdown()
}

// TimeLog appends the time since its creation to messages, e.g. a block compute
// logged with Debugf reads "... computed block 0_1 in 12.5ms".
type TimeLog struct {
	start time.Time
}

func NewTimeLog() TimeLog {
	return TimeLog{time.Now()}
}

// Elapsed returns time since the TimeLog was created.
func (t TimeLog) Elapsed() time.Duration {
	return time.Since(t.start)
}

func (t TimeLog) logf(l LogLevel, format string, args ...interface{}) {
	if l >= threshold {
		logger.Logf(l, format+" in %s\n", append(args, t.Elapsed())...)
	}
}

func (t TimeLog) Debugf(format string, args ...interface{}) { t.logf(DebugLevel, format, args...) }
func (t TimeLog) Infof(format string, args ...interface{})  { t.logf(InfoLevel, format, args...) }
func (t TimeLog) Errorf(format string, args ...interface{}) { t.logf(ErrorLevel, format, args...) }
