package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/crytic/provenance/logging/colors"
	"github.com/rs/zerolog"
)

// GlobalLogger is the Logger every package derives its sub-logger from. It is disabled until the CLI (or an embedding
// application) configures a level and writers.
var GlobalLogger = NewLogger(zerolog.Disabled)

// Logger fans log events out to three groups of writers: structured JSON, unstructured plain text, and unstructured
// colorized text. Sub-loggers carry key-value context that is applied to every group.
type Logger struct {
	// level describes the log level
	level zerolog.Level

	// context holds the key-value pairs attached through NewSubLogger, in insertion order.
	context [][2]string

	structuredLogger  zerolog.Logger
	structuredWriters []io.Writer

	unstructuredLogger  zerolog.Logger
	unstructuredWriters []io.Writer

	unstructuredColorLogger  zerolog.Logger
	unstructuredColorWriters []io.Writer
}

// LogFormat describes what format to log in
type LogFormat string

const (
	// STRUCTURED describes that logging should be done in structured JSON format
	STRUCTURED LogFormat = "structured"
	// UNSTRUCTURED describes that logging should be done in an unstructured format
	UNSTRUCTURED LogFormat = "unstructured"
)

// StructuredLogInfo describes a key-value mapping that can be used to log structured data
type StructuredLogInfo map[string]any

// NewLogger creates a Logger with the provided level and no writers.
func NewLogger(level zerolog.Level) *Logger {
	l := &Logger{level: level}
	l.rebuild()
	return l
}

// NewSubLogger creates a copy of the Logger with an additional key-value pair attached to every event, so that each
// package's output is grep-able by its service name.
func (l *Logger) NewSubLogger(key string, value string) *Logger {
	sub := &Logger{
		level:                    l.level,
		context:                  append(append([][2]string{}, l.context...), [2]string{key, value}),
		structuredWriters:        append([]io.Writer{}, l.structuredWriters...),
		unstructuredWriters:      append([]io.Writer{}, l.unstructuredWriters...),
		unstructuredColorWriters: append([]io.Writer{}, l.unstructuredColorWriters...),
	}
	sub.rebuild()
	return sub
}

// AddWriter adds a writer to the group matching the provided format (and colorization, for unstructured output).
// Adding a writer twice is a no-op.
func (l *Logger) AddWriter(writer io.Writer, format LogFormat, colored bool) {
	writers := l.writerGroup(format, colored)
	for _, w := range *writers {
		if w == writer {
			return
		}
	}
	*writers = append(*writers, writer)
	l.rebuild()
}

// RemoveWriter removes a writer from the group matching the provided format and colorization. Removing an unknown
// writer is a no-op.
func (l *Logger) RemoveWriter(writer io.Writer, format LogFormat, colored bool) {
	writers := l.writerGroup(format, colored)
	for i, w := range *writers {
		if w == writer {
			*writers = append((*writers)[:i], (*writers)[i+1:]...)
			l.rebuild()
			return
		}
	}
}

// Level will get the log level of the Logger
func (l *Logger) Level() zerolog.Level {
	return l.level
}

// SetLevel will update the log level of the Logger
func (l *Logger) SetLevel(level zerolog.Level) {
	l.level = level
	l.rebuild()
}

// Trace logs a trace event
func (l *Logger) Trace(args ...any) {
	l.log(zerolog.TraceLevel, args...)
}

// Debug logs a debug event
func (l *Logger) Debug(args ...any) {
	l.log(zerolog.DebugLevel, args...)
}

// Info logs an info event
func (l *Logger) Info(args ...any) {
	l.log(zerolog.InfoLevel, args...)
}

// Warn logs a warning event
func (l *Logger) Warn(args ...any) {
	l.log(zerolog.WarnLevel, args...)
}

// Error logs an error event
func (l *Logger) Error(args ...any) {
	l.log(zerolog.ErrorLevel, args...)
}

// Panic logs a panic event to every writer and then panics.
func (l *Logger) Panic(args ...any) {
	l.log(zerolog.PanicLevel, args...)
}

// writerGroup returns the writer slice matching the format and colorization.
func (l *Logger) writerGroup(format LogFormat, colored bool) *[]io.Writer {
	if format == STRUCTURED {
		return &l.structuredWriters
	}
	if colored {
		return &l.unstructuredColorWriters
	}
	return &l.unstructuredWriters
}

// rebuild recreates the underlying zerolog loggers from the current writers, level, and context.
func (l *Logger) rebuild() {
	l.structuredLogger = l.newZerolog(l.structuredWriters, func(w io.Writer) io.Writer { return w }, true)
	l.unstructuredLogger = l.newZerolog(l.unstructuredWriters, func(w io.Writer) io.Writer {
		return setupDefaultFormatting(zerolog.ConsoleWriter{Out: w, NoColor: true}, l.level)
	}, false)
	l.unstructuredColorLogger = l.newZerolog(l.unstructuredColorWriters, func(w io.Writer) io.Writer {
		return setupDefaultFormatting(zerolog.ConsoleWriter{Out: w}, l.level)
	}, false)
}

// newZerolog builds a zerolog.Logger over the provided writers, or a disabled logger if there are none.
func (l *Logger) newZerolog(writers []io.Writer, wrap func(io.Writer) io.Writer, timestamp bool) zerolog.Logger {
	if len(writers) == 0 {
		return zerolog.New(os.Stdout).Level(zerolog.Disabled)
	}

	wrapped := make([]io.Writer, len(writers))
	for i, w := range writers {
		wrapped[i] = wrap(w)
	}
	ctx := zerolog.New(zerolog.MultiLevelWriter(wrapped...)).Level(l.level).With()
	if timestamp {
		ctx = ctx.Timestamp()
	}
	for _, kv := range l.context {
		ctx = ctx.Str(kv[0], kv[1])
	}
	return ctx.Logger()
}

// log builds the messages for the provided arguments and sends an event at the given level to every writer group.
func (l *Logger) log(level zerolog.Level, args ...any) {
	colorMsg, plainMsg, err, info := buildMsgs(args...)

	events := []struct {
		event *zerolog.Event
		msg   string
	}{
		{l.structuredLogger.WithLevel(level), plainMsg},
		{l.unstructuredLogger.WithLevel(level), plainMsg},
		{l.unstructuredColorLogger.WithLevel(level), colorMsg},
	}

	for _, e := range events {
		if e.event == nil {
			continue
		}
		if err != nil {
			e.event = e.event.Err(err)
			if l.level <= zerolog.DebugLevel || level == zerolog.PanicLevel {
				e.event = e.event.Stack()
			}
		}
		if info != nil {
			e.event = e.event.Any("info", info)
		}
		e.event.Msg(e.msg)
	}

	if level == zerolog.PanicLevel {
		panic(plainMsg)
	}
}

// buildMsgs takes a variadic list of arguments and returns a colorized message for console output, a plain message for
// every other output, and optionally the error and StructuredLogInfo found among the arguments. A colors.ColorFunc
// argument changes the color applied to the arguments that follow it.
func buildMsgs(args ...any) (string, string, error, StructuredLogInfo) {
	if len(args) == 0 {
		return "", "", nil, nil
	}

	colorCtx := colors.Reset
	var colorOutput, plainOutput strings.Builder
	var info StructuredLogInfo
	var err error

	for _, arg := range args {
		switch t := arg.(type) {
		case colors.ColorFunc:
			colorCtx = t
		case StructuredLogInfo:
			// Only one structured log info is kept per message
			info = t
		case error:
			// Only one error is kept per message
			err = t
		default:
			colorOutput.WriteString(colorCtx(t))
			plainOutput.WriteString(fmt.Sprintf("%v", t))
		}
	}

	return colorOutput.String(), plainOutput.String(), err, info
}

// setupDefaultFormatting updates a console writer's formatting: no timestamps, glyph-based level markers, and the
// module field hidden unless debugging. All coloring goes through the colors package, so writers with NoColor set and
// writers used while colors are disabled emit no ANSI codes.
func setupDefaultFormatting(writer zerolog.ConsoleWriter, level zerolog.Level) zerolog.ConsoleWriter {
	paint := func(colorFunc colors.ColorFunc, s any) string {
		if writer.NoColor {
			return fmt.Sprintf("%v", s)
		}
		return colorFunc(s)
	}

	writer.FormatTimestamp = func(i interface{}) string {
		return ""
	}

	writer.FormatLevel = func(i any) string {
		levelStr, _ := i.(string)
		parsed, err := zerolog.ParseLevel(levelStr)
		if err != nil {
			return levelStr
		}

		switch parsed {
		case zerolog.TraceLevel:
			return paint(colors.CyanBold, zerolog.LevelTraceValue)
		case zerolog.DebugLevel:
			return paint(colors.BlueBold, zerolog.LevelDebugValue)
		case zerolog.InfoLevel:
			return paint(colors.GreenBold, colors.LEFT_ARROW)
		case zerolog.WarnLevel:
			return paint(colors.YellowBold, zerolog.LevelWarnValue)
		case zerolog.ErrorLevel, zerolog.FatalLevel, zerolog.PanicLevel:
			return paint(colors.RedBold, levelStr)
		default:
			return levelStr
		}
	}

	// The message already carries the colors requested by the caller
	writer.FormatMessage = func(i any) string {
		if i == nil {
			return ""
		}
		return fmt.Sprintf("%v", i)
	}
	writer.FormatFieldName = func(i any) string {
		return paint(colors.Cyan, fmt.Sprintf("%v=", i))
	}
	writer.FormatFieldValue = func(i any) string {
		return fmt.Sprintf("%v", i)
	}
	writer.FormatErrFieldName = func(i any) string {
		return paint(colors.Red, fmt.Sprintf("%v=", i))
	}
	writer.FormatErrFieldValue = func(i any) string {
		return paint(colors.Red, i)
	}

	if level > zerolog.DebugLevel {
		writer.FieldsExclude = []string{"module"}
	}

	return writer
}
