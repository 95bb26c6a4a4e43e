// Package slog is a leveled terminal logger that prints the code location of
// every entry, with a Check shortcut for error handling in conditionals:
//
//	var log, chk = slog.New(os.Stderr)
//
//	if err = doThing(); chk.E(err) {
//		return
//	}
package slog

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/gookit/color"
)

const (
	Off = iota
	Fatal
	Error
	Warn
	Info
	Debug
	Trace
)

type (
	// Ln prints lists of interfaces with spaces in between
	Ln func(a ...interface{})
	// F prints like fmt.Println surrounded by log details
	F func(format string, a ...interface{})
	// S prints a spew.Sdump for an interface slice
	S func(a ...interface{})
	// C accepts a function so that the extra computation can be avoided if it is
	// not being viewed
	C func(closure func() string)
	// Chk is a shortcut for printing if there is an error, or returning true
	Chk func(e error) bool
	// Err is a pass-through function that uses fmt.Errorf to construct an error
	// and returns the error after printing it to the log
	Err func(format string, a ...interface{}) error
	// LevelPrinter defines a set of terminal printing primitives that output
	// with level, text and code location.
	LevelPrinter struct {
		Ln
		F
		S
		C
		Chk
		Err
	}
	LevelSpec struct {
		ID        int
		Name      string
		Colorizer func(a ...interface{}) string
	}
)

var (
	currentLevel atomic.Int32
	writerMx     sync.Mutex
	// LevelSpecs specifies the id, string name and color-printing function
	LevelSpecs = []LevelSpec{
		{Off, "   ", color.Bit24(0, 0, 0, false).Sprint},
		{Fatal, "FTL", color.Bit24(128, 0, 0, false).Sprint},
		{Error, "ERR", color.Bit24(255, 0, 0, false).Sprint},
		{Warn, "WRN", color.Bit24(0, 255, 0, false).Sprint},
		{Info, "INF", color.Bit24(255, 255, 0, false).Sprint},
		{Debug, "DBG", color.Bit24(0, 125, 255, false).Sprint},
		{Trace, "TRC", color.Bit24(125, 0, 255, false).Sprint},
	}
	// levelNames maps the accepted level strings to their level.
	levelNames = map[string]int{
		"off":   Off,
		"fatal": Fatal,
		"error": Error,
		"warn":  Warn,
		"info":  Info,
		"debug": Debug,
		"trace": Trace,
	}
)

func init() {
	currentLevel.Store(Info)
	switch strings.ToUpper(os.Getenv("GODEBUG")) {
	case "1", "TRUE", "ON", "DEBUG":
		SetLogLevel(Debug)
	case "TRACE":
		SetLogLevel(Trace)
	case "0", "OFF", "FALSE":
		SetLogLevel(Off)
	}
}

// Log is a set of log printers for the various Level items.
type Log struct {
	F, E, W, I, D, T LevelPrinter
}

// Check is the set of error check printers of a Log.
type Check struct {
	F, E, W, I, D, T Chk
}

func JoinStrings(a ...any) (s string) {
	for i := range a {
		s += fmt.Sprint(a[i])
		if i < len(a)-1 {
			s += " "
		}
	}
	return
}

// sink serializes writes so lines from concurrent goroutines don't interleave.
type sink struct{ w io.Writer }

func (s *sink) print(l int32, text string) {
	if l > currentLevel.Load() {
		return
	}
	writerMx.Lock()
	defer writerMx.Unlock()
	_, _ = fmt.Fprintf(s.w, "%s %s %s %s\n",
		UnixNanoAsFloat(),
		LevelSpecs[l].Colorizer(LevelSpecs[l].Name),
		text,
		GetLoc(3),
	)
}

func GetPrinter(l int32, s *sink) LevelPrinter {
	return LevelPrinter{
		Ln: func(a ...interface{}) {
			s.print(l, JoinStrings(a...))
		},
		F: func(format string, a ...interface{}) {
			s.print(l, fmt.Sprintf(format, a...))
		},
		S: func(a ...interface{}) {
			if l > currentLevel.Load() {
				return
			}
			s.print(l, strings.TrimSpace(spew.Sdump(a...)))
		},
		C: func(closure func() string) {
			if l > currentLevel.Load() {
				return
			}
			s.print(l, closure())
		},
		Chk: func(e error) bool {
			if e != nil {
				s.print(l, e.Error())
				return true
			}
			return false
		},
		Err: func(format string, a ...interface{}) error {
			err := fmt.Errorf(format, a...)
			s.print(l, err.Error())
			return err
		},
	}
}

// New returns a Log and Check that print to writer.
func New(writer io.Writer) (l *Log, c *Check) {
	s := &sink{w: writer}
	l = &Log{
		F: GetPrinter(Fatal, s),
		E: GetPrinter(Error, s),
		W: GetPrinter(Warn, s),
		I: GetPrinter(Info, s),
		D: GetPrinter(Debug, s),
		T: GetPrinter(Trace, s),
	}
	c = &Check{
		F: l.F.Chk,
		E: l.E.Chk,
		W: l.W.Chk,
		I: l.I.Chk,
		D: l.D.Chk,
		T: l.T.Chk,
	}
	return
}

// SetLogLevel sets the highest level that will be printed.
func SetLogLevel(l int) { currentLevel.Store(int32(l)) }

func GetLogLevel() (l int) { return int(currentLevel.Load()) }

// SetLogLevelString sets the log level by name, returning false if the name
// is not one of off, fatal, error, warn, info, debug or trace.
func SetLogLevelString(name string) (ok bool) {
	var l int
	if l, ok = levelNames[strings.ToLower(strings.TrimSpace(name))]; ok {
		SetLogLevel(l)
	}
	return
}

// UnixNanoAsFloat renders the current time as seconds with a nanosecond
// fraction.
func UnixNanoAsFloat() (s string) {
	timeText := fmt.Sprint(time.Now().UnixNano())
	lt := len(timeText)
	lb := lt + 1
	var timeBytes = make([]byte, lb)
	copy(timeBytes[lb-9:lb], timeText[lt-9:lt])
	timeBytes[lb-10] = '.'
	lb -= 10
	lt -= 9
	copy(timeBytes[:lb], timeText[:lt])
	return string(timeBytes)
}

func GetLoc(skip int) (output string) {
	_, file, line, _ := runtime.Caller(skip)
	output = color.Bit24(0, 128, 255, false).Sprint(
		file, ":", line,
	)
	return
}
