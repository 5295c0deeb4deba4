package dvid

import (
	"fmt"
	"log"

	"github.com/dustin/go-humanize"
	"github.com/natefinch/lumberjack"
)

// LogConfig is the [logging] section of a configuration.  Without a logfile,
// messages go to stderr through the standard logger.
type LogConfig struct {
	Logfile string
	Level   string
	MaxSize int `toml:"max_log_size"` // megabytes before rotation
	MaxAge  int `toml:"max_log_age"`  // days
}

// rotatingLogger prefixes messages with their level and writes them through the
// standard logger, whose output is a lumberjack file when one is configured.
type rotatingLogger struct {
	file *lumberjack.Logger
}

var logger Logger = rotatingLogger{}

func (r rotatingLogger) Logf(level LogLevel, format string, args ...interface{}) {
	log.Printf(" "+level.String()+" "+format, args...)
}

func (r rotatingLogger) Shutdown() {
	if r.file != nil {
		log.Printf("Closing log file %s\n", r.file.Filename)
		r.file.Close()
	}
}

// SetLogger applies the level and, if a logfile is given, sends messages to it.
func (c *LogConfig) SetLogger() error {
	if c == nil {
		return nil
	}
	level, err := ParseLogLevel(c.Level)
	if err != nil {
		return err
	}
	SetLogLevel(level)
	if c.Logfile == "" {
		return nil
	}
	fmt.Printf("Sending log messages to: %s (rotating at %s)\n", c.Logfile,
		humanize.Bytes(uint64(c.MaxSize)*1000000))
	file := &lumberjack.Logger{
		Filename: c.Logfile,
		MaxSize:  c.MaxSize,
		MaxAge:   c.MaxAge,
	}
	log.SetOutput(file)
	logger = rotatingLogger{file}
	return nil
}
