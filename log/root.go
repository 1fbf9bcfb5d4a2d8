package log

import (
	"flag"
	"strconv"
)

var root = &logger{}

func init() {
	// glog logs to files unless told otherwise; a LAN peer wants its
	// diagnostics on stderr.
	flag.Set("logtostderr", "true")
}

// Root returns the root logger.
func Root() Logger {
	return root
}

// New returns a new logger with the given context.
// New is a convenient alias for Root().New
func New(ctx ...interface{}) Logger {
	return root.New(ctx...)
}

// SetVerbosity adjusts the glog verbosity gate. Levels follow the Lvl scale:
// LvlInfo shows Info and above, LvlTrace shows everything.
func SetVerbosity(lvl Lvl) {
	v := 0
	switch {
	case lvl >= LvlTrace:
		v = 3
	case lvl == LvlDebug:
		v = 2
	}
	flag.Set("v", strconv.Itoa(v))
}

// The following functions bypass the exported logger methods (logger.Debug,
// etc.) to keep the call depth the same for all paths to getLogMsg so the
// call site is reported correctly.

// Trace is a convenient alias for Root().Trace
func Trace(msg string, ctx ...interface{}) {
	root.write(msg, LvlTrace, ctx, skipLevel)
}

// Debug is a convenient alias for Root().Debug
func Debug(msg string, ctx ...interface{}) {
	root.write(msg, LvlDebug, ctx, skipLevel)
}

// Info is a convenient alias for Root().Info
func Info(msg string, ctx ...interface{}) {
	root.write(msg, LvlInfo, ctx, skipLevel)
}

// Warn is a convenient alias for Root().Warn
func Warn(msg string, ctx ...interface{}) {
	root.write(msg, LvlWarn, ctx, skipLevel)
}

// Error is a convenient alias for Root().Error
func Error(msg string, ctx ...interface{}) {
	root.write(msg, LvlError, ctx, skipLevel)
}

// Crit is a convenient alias for Root().Crit
func Crit(msg string, ctx ...interface{}) {
	root.write(msg, LvlCrit, ctx, skipLevel)
}
