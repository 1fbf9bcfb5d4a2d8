package log

import (
	"bytes"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/go-stack/stack"
	"github.com/golang/glog"
)

const errorKey = "LOG_ERROR"
const skipLevel = 2

type Lvl int

const (
	LvlCrit Lvl = iota
	LvlError
	LvlWarn
	LvlInfo
	LvlDebug
	LvlTrace
)

// AlignedString returns a 5-character string containing the name of a Lvl.
func (l Lvl) AlignedString() string {
	switch l {
	case LvlTrace:
		return "TRACE"
	case LvlDebug:
		return "DEBUG"
	case LvlInfo:
		return "INFO "
	case LvlWarn:
		return "WARN "
	case LvlError:
		return "ERROR"
	case LvlCrit:
		return "CRIT "
	default:
		panic("bad level")
	}
}

// String returns the name of a Lvl.
func (l Lvl) String() string {
	switch l {
	case LvlTrace:
		return "trce"
	case LvlDebug:
		return "dbug"
	case LvlInfo:
		return "info"
	case LvlWarn:
		return "warn"
	case LvlError:
		return "eror"
	case LvlCrit:
		return "crit"
	default:
		panic("bad level")
	}
}

// LvlFromString returns the appropriate Lvl from a string name.
// Useful for parsing command line args and configuration files.
func LvlFromString(lvlString string) (Lvl, error) {
	switch lvlString {
	case "trace", "trce":
		return LvlTrace, nil
	case "debug", "dbug":
		return LvlDebug, nil
	case "info":
		return LvlInfo, nil
	case "warn":
		return LvlWarn, nil
	case "error", "eror":
		return LvlError, nil
	case "crit":
		return LvlCrit, nil
	default:
		return LvlDebug, fmt.Errorf("unknown level: %v", lvlString)
	}
}

// A Logger writes key/value pairs to the logging backend.
type Logger interface {
	// New returns a new Logger that has this logger's context plus the given context
	New(ctx ...interface{}) Logger

	// Log a message at the given level with context key/value pairs
	Trace(msg string, ctx ...interface{})
	Debug(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Warn(msg string, ctx ...interface{})
	Error(msg string, ctx ...interface{})
	Crit(msg string, ctx ...interface{})
}

type logger struct {
	ctx []interface{}
}

func (l *logger) write(msg string, lvl Lvl, ctx []interface{}, skip int) {
	switch lvl {
	case LvlTrace:
		glog.V(3).Info(getLogMsg(msg, newContext(l.ctx, ctx), skip))
	case LvlDebug:
		glog.V(2).Info(getLogMsg(msg, newContext(l.ctx, ctx), skip))
	case LvlInfo:
		glog.Info(getLogMsg(msg, newContext(l.ctx, ctx), skip))
	case LvlWarn:
		glog.Warning(getLogMsg(msg, newContext(l.ctx, ctx), skip))
	case LvlError:
		glog.Error(getLogMsg(msg, newContext(l.ctx, ctx), skip))
	case LvlCrit:
		glog.Fatal(getLogMsg(msg, newContext(l.ctx, ctx), skip))
	default:
		glog.Info(getLogMsg(msg, newContext(l.ctx, ctx), skip))
	}
}

func (l *logger) New(ctx ...interface{}) Logger {
	return &logger{newContext(l.ctx, ctx)}
}

func newContext(prefix []interface{}, suffix []interface{}) []interface{} {
	normalizedSuffix := normalize(suffix)
	newCtx := make([]interface{}, len(prefix)+len(normalizedSuffix))
	n := copy(newCtx, prefix)
	copy(newCtx[n:], normalizedSuffix)
	return newCtx
}

func (l *logger) Trace(msg string, ctx ...interface{}) {
	l.write(msg, LvlTrace, ctx, skipLevel)
}

func (l *logger) Debug(msg string, ctx ...interface{}) {
	l.write(msg, LvlDebug, ctx, skipLevel)
}

func (l *logger) Info(msg string, ctx ...interface{}) {
	l.write(msg, LvlInfo, ctx, skipLevel)
}

func (l *logger) Warn(msg string, ctx ...interface{}) {
	l.write(msg, LvlWarn, ctx, skipLevel)
}

func (l *logger) Error(msg string, ctx ...interface{}) {
	l.write(msg, LvlError, ctx, skipLevel)
}

func (l *logger) Crit(msg string, ctx ...interface{}) {
	l.write(msg, LvlCrit, ctx, skipLevel)
}

// getLogMsg returns the log message in the following format:
// <origin call site> <log message> <context keys & values>
func getLogMsg(msg string, ctx []interface{}, skip int) string {
	location := fmt.Sprintf("%+v", stack.Caller(skip))
	align := int(atomic.LoadUint32(&locationLength))
	if align < len(location) {
		align = len(location)
		atomic.StoreUint32(&locationLength, uint32(align))
	}
	padding := strings.Repeat(" ", align-len(location))
	buf := &bytes.Buffer{}
	buf.WriteString(location)
	buf.WriteString(padding)
	buf.WriteString(" ")
	buf.WriteString(msg)
	logfmt(buf, ctx)
	return buf.String()
}

// locationLength is the maximum observed length of a call-site string, kept
// for alignment.
var locationLength uint32

func normalize(ctx []interface{}) []interface{} {
	// if the caller passed a Ctx object, then expand it
	if len(ctx) == 1 {
		if ctxMap, ok := ctx[0].(Ctx); ok {
			ctx = ctxMap.toArray()
		}
	}

	// ctx needs to be even because it's a series of key/value pairs
	// no one wants to check for errors on logging functions,
	// so instead of erroring on bad input, we'll just make sure
	// that things are the right length and users can fix bugs
	// when they see the output looks wrong
	if len(ctx)%2 != 0 {
		ctx = append(ctx, nil, errorKey, "Normalized odd number of arguments by adding nil")
	}

	return ctx
}

// Ctx is a map of key/value pairs to pass as context to a log function
// Use this only if you really need greater safety around the arguments you pass
// to the logging functions.
type Ctx map[string]interface{}

func (c Ctx) toArray() []interface{} {
	arr := make([]interface{}, len(c)*2)

	i := 0
	for k, v := range c {
		arr[i] = k
		arr[i+1] = v
		i += 2
	}

	return arr
}
