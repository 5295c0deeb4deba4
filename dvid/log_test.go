package dvid

import (
	"fmt"
	"strings"

	. "github.com/janelia-flyem/go/gocheck"
)

type recordingLogger struct {
	lines []string
}

func (r *recordingLogger) Logf(level LogLevel, format string, args ...interface{}) {
	r.lines = append(r.lines, level.String()+" "+fmt.Sprintf(format, args...))
}

func (r *recordingLogger) Shutdown() {}

type LogSuite struct {
	saved    Logger
	savedLvl LogLevel
	rec      *recordingLogger
}

var _ = Suite(&LogSuite{})

func (s *LogSuite) SetUpTest(c *C) {
	s.saved, s.savedLvl = logger, threshold
	s.rec = &recordingLogger{}
	logger = s.rec
}

func (s *LogSuite) TearDownTest(c *C) {
	logger, threshold = s.saved, s.savedLvl
}

func (s *LogSuite) TestThreshold(c *C) {
	SetLogLevel(WarningLevel)
	Debugf("debug %d\n", 1)
	Infof("info %d\n", 2)
	Warningf("warning %d\n", 3)
	Criticalf("critical %d\n", 4)
	c.Assert(s.rec.lines, DeepEquals, []string{"WARNING warning 3\n", "CRITICAL critical 4\n"})

	SetLogLevel(SilentLevel)
	Criticalf("dropped\n")
	c.Assert(s.rec.lines, HasLen, 2)
}

func (s *LogSuite) TestTimeLog(c *C) {
	SetLogLevel(DebugLevel)
	tlog := NewTimeLog()
	tlog.Debugf("computed block %s", "0_1")
	c.Assert(s.rec.lines, HasLen, 1)
	c.Assert(strings.HasPrefix(s.rec.lines[0], "DEBUG computed block 0_1 in "), Equals, true)
	c.Assert(tlog.Elapsed() > 0, Equals, true)

	SetLogLevel(ErrorLevel)
	tlog.Infof("not logged")
	c.Assert(s.rec.lines, HasLen, 1)
}

func (s *LogSuite) TestParseLogLevel(c *C) {
	for name, want := range map[string]LogLevel{"": InfoLevel, "debug": DebugLevel, "Warning": WarningLevel, "SILENT": SilentLevel} {
		got, err := ParseLogLevel(name)
		c.Assert(err, IsNil)
		c.Assert(got, Equals, want)
	}
	_, err := ParseLogLevel("verbose")
	c.Assert(err, NotNil)
}
