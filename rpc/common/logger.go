package common

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/rs/zerolog"
)

// --------------------------------------------------------------------------
// Custom Logger (implements dragonboats logger.ILogger)
// --------------------------------------------------------------------------

// dtxLogger implements the ILogger interface on top of zerolog.
type dtxLogger struct {
	mu    sync.RWMutex
	level logger.LogLevel
	zl    zerolog.Logger
}

func (l *dtxLogger) SetLevel(level logger.LogLevel) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

func (l *dtxLogger) enabled(level logger.LogLevel) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level >= level
}

func (l *dtxLogger) Debugf(format string, args ...interface{}) {
	if l.enabled(logger.DEBUG) {
		l.zl.Debug().Msgf(format, args...)
	}
}

func (l *dtxLogger) Infof(format string, args ...interface{}) {
	if l.enabled(logger.INFO) {
		l.zl.Info().Msgf(format, args...)
	}
}

func (l *dtxLogger) Warningf(format string, args ...interface{}) {
	if l.enabled(logger.WARNING) {
		l.zl.Warn().Msgf(format, args...)
	}
}

func (l *dtxLogger) Errorf(format string, args ...interface{}) {
	if l.enabled(logger.ERROR) {
		l.zl.Error().Msgf(format, args...)
	}
}

func (l *dtxLogger) Panicf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.zl.Error().Msg(msg)
	panic(msg)
}

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

var (
	logOutputMu sync.RWMutex
	logOutput   io.Writer = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
)

// SetLogOutput replaces the writer of loggers created afterwards.
func SetLogOutput(w io.Writer) {
	logOutputMu.Lock()
	logOutput = w
	logOutputMu.Unlock()
}

// CreateLogger implements dragonboats logger.Factory.
func CreateLogger(pkgName string) logger.ILogger {
	logOutputMu.RLock()
	out := logOutput
	logOutputMu.RUnlock()

	return &dtxLogger{
		level: logger.INFO,
		zl:    zerolog.New(out).With().Timestamp().Str("pkg", pkgName).Logger(),
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// ParseLogLevel converts a string level to logger.LogLevel
func ParseLogLevel(level string) (logger.LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG, nil
	case "info":
		return logger.INFO, nil
	case "warning", "warn":
		return logger.WARNING, nil
	case "error":
		return logger.ERROR, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error", level)
	}
}

// --------------------------------------------------------------------------
// Logger initialization
// --------------------------------------------------------------------------

var dragonboatLoggers = []string{"raft", "raftdb", "rsm", "transport", "dragonboat", "grpc", "util", "logdb"}

// Loggers of this module.
var dtxLoggers = []string{"store", "transport/rpc", "rpc", "rpc/client", "rpc/server", "access", "perf"}

var factoryOnce sync.Once

// InitLoggers installs the zerolog backed factory and applies the level to
// all dragonboat and dTX loggers.
func InitLoggers(level string) error {
	lvl, err := ParseLogLevel(level)
	if err != nil {
		return err
	}

	factoryOnce.Do(func() {
		logger.SetLoggerFactory(CreateLogger)
	})

	for _, name := range dragonboatLoggers {
		logger.GetLogger(name).SetLevel(lvl)
	}
	for _, name := range dtxLoggers {
		logger.GetLogger(name).SetLevel(lvl)
	}
	return nil
}
