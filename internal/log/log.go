package log

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelError Level = "ERROR"
)

var (
	mu     sync.RWMutex
	logger zerolog.Logger
	once   sync.Once
)

// initLogger installs the default logger: human-readable console output on
// stderr at INFO. Setup replaces it once the environment is known.
func initLogger() {
	once.Do(func() {
		mu.Lock()
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			With().Timestamp().Logger().
			Level(zerolog.InfoLevel)
		mu.Unlock()
	})
}

// Setup configures the process logger. Development gets console output at
// DEBUG, everything else gets JSON lines at INFO.
func Setup(environment string) {
	SetupWithWriter(environment, os.Stderr)
}

// SetupWithWriter is Setup with an explicit destination, used by tests.
func SetupWithWriter(environment string, w io.Writer) {
	initLogger()

	level := zerolog.InfoLevel
	out := w
	if environment == "development" {
		level = zerolog.DebugLevel
		out = zerolog.ConsoleWriter{Out: w}
	}

	mu.Lock()
	logger = zerolog.New(out).With().Timestamp().Logger().Level(level)
	mu.Unlock()
}

func SetLevel(l Level) {
	initLogger()
	mu.Lock()
	logger = logger.Level(toZerolog(l))
	mu.Unlock()
}

// Logger returns the underlying zerolog logger for packages that accept one.
func Logger() zerolog.Logger {
	initLogger()
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func Debug(msg string, kv ...any) {
	l := Logger()
	withKVs(l.Debug(), kv...).Msg(msg)
}

func Info(msg string, kv ...any) {
	l := Logger()
	withKVs(l.Info(), kv...).Msg(msg)
}

func Error(msg string, err error, kv ...any) {
	l := Logger()
	withKVs(l.Error().Err(err), kv...).Msg(msg)
}

// withKVs attaches key/value pairs. Non-string keys are skipped and a
// trailing key without a value is ignored.
func withKVs(e *zerolog.Event, kv ...any) *zerolog.Event {
	if e == nil {
		return nil
	}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, kv[i+1])
	}
	return e
}

func toZerolog(l Level) zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
