// Package debug builds the zerolog loggers used by the commands.
package debug

import (
	"fmt"
	"io"
	"path"
	"reflect"
	"runtime"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
)

type Options struct {
	Level zerolog.Level
	// Color highlights the caller, for terminals.
	Color   bool
	Caller  bool
	Service string
}

// NewLogger writes JSON lines to w with a millisecond timestamp and, when
// asked, the calling file and line.
func NewLogger(w io.Writer, opts Options) zerolog.Logger {
	l := zerolog.New(w).Level(opts.Level).Hook(TimeHook{})
	if opts.Caller {
		l = l.Hook(CallerHook{Color: opts.Color})
	}
	if opts.Service != "" {
		l = l.With().Str("service", opts.Service).Logger()
	}
	return l
}

// TimeHook stamps events with the time in Format, or with millisecond
// precision in UTC.
type TimeHook struct {
	Format string
	Now    func() time.Time
}

func (h TimeHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	if h.Format == "" {
		e.Str("time", now().UTC().Format("2006-01-02T15:04:05.000Z"))
		return
	}
	e.Str("time", now().Format(h.Format))
}

// CallerHook adds the package, file and line that logged the event.
type CallerHook struct {
	Color bool
}

func (h CallerHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	// Run <- Event.msg <- Event.Msg <- caller
	pc, file, line, ok := runtime.Caller(skippedFrames(e) + 3)
	if !ok {
		return
	}
	pkg := ""
	if fn := runtime.FuncForPC(pc); fn != nil {
		pkg = packageOf(fn.Name())
	}
	e.Str("caller", FormatCaller(pkg, file, line, h.Color))
}

// skippedFrames reads the frames requested with Event.CallerSkipFrame,
// which zerolog keeps unexported.
func skippedFrames(e *zerolog.Event) int {
	f := reflect.ValueOf(e).Elem().FieldByName("skipFrame")
	if !f.IsValid() {
		return 0
	}
	return int(f.Int())
}

// packageOf trims a qualified function name such as
// "github.com/a/b/pkg.(*T).Method" down to "pkg".
func packageOf(funcName string) string {
	slash := strings.LastIndexByte(funcName, '/')
	rest := funcName[slash+1:]
	if dot := strings.IndexByte(rest, '.'); dot >= 0 {
		rest = rest[:dot]
	}
	return rest
}

func FormatCaller(pkg, file string, line int, colorize bool) string {
	name := path.Base(file)
	if !colorize {
		return fmt.Sprintf("%s:%s:%d", pkg, name, line)
	}
	sep := color.New(color.Faint).Sprint(":")
	return pkg + sep +
		color.New(color.Bold).Sprint(name) + sep +
		color.New(color.FgHiRed, color.Bold).Sprintf("%d", line)
}
