package logger

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/microsoft/chromedap/pkg/osutil"
	"github.com/microsoft/chromedap/pkg/resiliency"
)

const (
	CHROMEDAP_DIAGNOSTICS_LOG_FOLDER = "CHROMEDAP_DIAGNOSTICS_LOG_FOLDER" // Folder to write diagnostics logs to (defaults to a temp folder)
	CHROMEDAP_DIAGNOSTICS_LOG_LEVEL  = "CHROMEDAP_DIAGNOSTICS_LOG_LEVEL"  // Log level to include in diagnostics logs (defaults to none)
	CHROMEDAP_LOG_SOCKET             = "CHROMEDAP_LOG_SOCKET"             // Unix socket to write console logs to instead of stderr
	CHROMEDAP_LOG_FILE_NAME_SUFFIX   = "CHROMEDAP_LOG_FILE_NAME_SUFFIX"   // Suffix to append to the log file name (defaults to process ID)
	CHROMEDAP_LOG_SESSION_ID         = "CHROMEDAP_LOG_SESSION_ID"         // Session ID to include in log names

	CHROMEDAP_EPOCH = 1748736000 // chromedap epoch is the unix timestamp at the start of the day UTC time of the first commit to the chromedap repo (2025-06-01T00:00:00.000Z)
)

var (
	defaultLogPath = filepath.Join(os.TempDir(), "chromedap", "logs")
	sessionId      string
	startTime      time.Time
)

// Set to "true" via -ldflags "-X github.com/microsoft/chromedap/pkg/logger.consoleDisabled=true"
// to force console output off in packaged builds, independent of runtime options.
var consoleDisabled string

// Options control the console half of the logger. The diagnostics file log is
// configured through environment variables and is not affected by these: it is
// always safe to enable because it never shares a channel with protocol traffic.
type Options struct {
	// Console enables human-readable output to stderr (or the log socket).
	// Must stay off when the process owns its standard streams for protocol
	// traffic, or log bytes would corrupt the client connection.
	Console bool

	// SeparatorInterval is how often the logger checks for an idle gap in
	// console output; a separator line is emitted when a burst of writes is
	// followed by a quiet interval. Zero disables separators.
	SeparatorInterval time.Duration

	// ConsoleOut overrides the console destination. Nil means stderr, or the
	// socket named by CHROMEDAP_LOG_SOCKET if set.
	ConsoleOut zapcore.WriteSyncer
}

type Logger struct {
	logr.Logger
	name        string
	atomicLevel zap.AtomicLevel
	flush       func()
}

// New creates a logger with console output enabled. Use NewWithOptions for
// sessions where stdout/stderr carry protocol traffic.
func New(name string) *Logger {
	return NewWithOptions(name, Options{Console: true})
}

func NewWithOptions(name string, opts Options) *Logger {
	encoderConfig := newEncoderConfig()
	consoleAtomicLevel := zap.NewAtomicLevel()

	cores := []zapcore.Core{}

	if opts.Console && consoleAllowed() {
		out := opts.ConsoleOut
		if out == nil {
			out = defaultConsoleSyncer()
		}
		activity := &countingSyncer{WriteSyncer: out}
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), activity, consoleAtomicLevel))
		if opts.SeparatorInterval > 0 {
			go emitSeparators(out, activity, opts.SeparatorInterval)
		}
	}

	diagCore, diagErr := newDiagnosticsCore(name, encoderConfig)
	if diagCore != nil {
		cores = append(cores, diagCore)
	}

	zapLogger := zap.New(zapcore.NewTee(cores...))
	logger := zapr.NewLogger(zapLogger)

	if diagErr != nil {
		// The freshly built logger is the only place left to report this;
		// stderr gets a copy in case console output is off.
		logger.Error(diagErr, "could not enable diagnostics log output")
		fmt.Fprintf(os.Stderr, "could not enable diagnostics log output: %v\n", diagErr)
	}

	return &Logger{
		Logger:      logger,
		name:        name,
		atomicLevel: consoleAtomicLevel,
		flush: func() {
			_ = zapLogger.Sync()
		},
	}
}

// The console and the diagnostics file share the time and field encoding;
// only the framing differs (human-readable console lines vs. JSON).
func newEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if runtime.GOOS == "windows" {
		cfg.LineEnding = string(osutil.CRLF())
	}
	return cfg
}

func consoleAllowed() bool {
	return !strings.EqualFold(strings.TrimSpace(consoleDisabled), "true")
}

// Console output goes to stderr, never stdout, which may carry protocol
// traffic. When CHROMEDAP_LOG_SOCKET names a Unix domain socket, console
// output is redirected there instead.
func defaultConsoleSyncer() zapcore.WriteSyncer {
	logSocket, found := os.LookupEnv(CHROMEDAP_LOG_SOCKET)
	if !found {
		return zapcore.Lock(os.Stderr)
	}

	dialer := &net.Dialer{Timeout: 2 * time.Second}
	conn, err := dialer.DialContext(context.Background(), "unix", logSocket)
	if err != nil {
		fmt.Fprintf(os.Stderr, "console logs should go to the Unix domain socket '%s' but connecting failed: %s\n", logSocket, err.Error())
		return zapcore.Lock(os.Stderr)
	}

	return zapcore.Lock(zapcore.AddSync(conn))
}

type countingSyncer struct {
	zapcore.WriteSyncer
	writes atomic.Uint64
}

func (cs *countingSyncer) Write(p []byte) (int, error) {
	cs.writes.Add(1)
	return cs.WriteSyncer.Write(p)
}

// emitSeparators watches console write activity and emits one separator line
// when a burst of output is followed by a quiet interval, making bursty logs
// human-scannable. Runs for the lifetime of the process.
func emitSeparators(out zapcore.WriteSyncer, activity *countingSyncer, interval time.Duration) {
	separator := osutil.WithNewline([]byte(strings.Repeat("-", 64)))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastSeen uint64
	idle := true
	for range ticker.C {
		n := activity.writes.Load()
		if n != lastSeen {
			lastSeen = n
			idle = false
			continue
		}
		if !idle {
			idle = true
			_, _ = out.Write(separator)
		}
	}
}

func (l *Logger) WithName(name string) *Logger {
	l.Logger = l.Logger.WithName(name)
	return l
}

func (l *Logger) SetLevel(level zapcore.Level) {
	l.atomicLevel.SetLevel(level)
}

func (l *Logger) Flush() {
	l.flush()
}

// newDiagnosticsCore builds the machine-readable file core for the logger.
// Returns (nil, nil) when the diagnostics log is not enabled.
func newDiagnosticsCore(name string, encoderConfig zapcore.EncoderConfig) (zapcore.Core, error) {
	logLevel, err := GetDiagnosticsLogLevel()
	if errors.Is(err, errDiagnosticsLogNotEnabled) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	logFolder, err := EnsureDiagnosticsLogsFolder()
	if err != nil {
		return nil, err
	}

	logFile, err := createDiagnosticsLogFile(logFolder, name)
	if err != nil {
		return nil, err
	}

	return zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(logFile), zap.NewAtomicLevelAt(logLevel)), nil
}

// Log files are named <sessionid>-<name>-<timestamp>-<suffix>.log. The suffix
// defaults to the PID, but CHROMEDAP_LOG_FILE_NAME_SUFFIX can override it; an
// override may collide with a file left by an earlier run, so creation relies
// on O_EXCL and retries briefly. Worst case the process runs without a log
// file.
func createDiagnosticsLogFile(logFolder string, name string) (*os.File, error) {
	suffix, found := os.LookupEnv(CHROMEDAP_LOG_FILE_NAME_SUFFIX)
	if !found || suffix == "" {
		suffix = fmt.Sprintf("%d", os.Getpid())
	}

	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(20*time.Millisecond),
		backoff.WithMaxInterval(100*time.Millisecond),
		backoff.WithMaxElapsedTime(2*time.Second),
	)
	logFile, err := resiliency.RetryGet(context.Background(), b, func() (*os.File, error) {
		logName := fmt.Sprintf("%s-%s-%d-%s.log", sessionId, name, startTime.UnixMilli()-CHROMEDAP_EPOCH*1000, suffix)
		return os.OpenFile(
			filepath.Join(logFolder, logName),
			os.O_RDWR|os.O_CREATE|os.O_EXCL,
			osutil.PermissionOnlyOwnerReadWrite,
		)
	})
	if err != nil {
		return nil, fmt.Errorf("could not create log file: %w", err)
	}

	return logFile, nil
}

// EnsureDiagnosticsLogsFolder returns the folder for diagnostics logs,
// creating it if it does not exist yet.
func EnsureDiagnosticsLogsFolder() (string, error) {
	logFolder, found := os.LookupEnv(CHROMEDAP_DIAGNOSTICS_LOG_FOLDER)
	if !found {
		logFolder = defaultLogPath
	}

	info, err := os.Stat(logFolder)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if mkdirErr := os.MkdirAll(logFolder, osutil.PermissionOnlyOwnerReadWriteSetCurrent); mkdirErr != nil {
			return "", fmt.Errorf("could not create the diagnostics log folder '%s': %w", logFolder, mkdirErr)
		}
	case err != nil:
		return "", fmt.Errorf("could not check the diagnostics log folder '%s': %w", logFolder, err)
	case !info.IsDir():
		return "", fmt.Errorf("'%s' is not a directory and cannot be used as a log folder", logFolder)
	}

	return logFolder, nil
}

var errDiagnosticsLogNotEnabled = errors.New("diagnostics log not enabled")

// GetDiagnosticsLogLevel reads the diagnostics log level from the
// environment. The error distinguishes "not enabled" from a level value that
// does not parse, but callers that only care about on/off can treat both the
// same way.
func GetDiagnosticsLogLevel() (zapcore.Level, error) {
	raw, found := os.LookupEnv(CHROMEDAP_DIAGNOSTICS_LOG_LEVEL)
	if !found {
		return zapcore.InvalidLevel, errDiagnosticsLogNotEnabled
	}

	logLevel, err := StringToLevel(raw, zapcore.ErrorLevel)
	if err != nil {
		return zapcore.InvalidLevel, fmt.Errorf("invalid diagnostics log level %q: %w", raw, err)
	}

	return logLevel, nil
}

func SessionId() string {
	return sessionId
}

func init() {
	startTime = time.Now()
	sessionId = os.Getenv(CHROMEDAP_LOG_SESSION_ID)
	if sessionId == "" {
		sessionId = fmt.Sprintf("%d%d", startTime.Unix()-CHROMEDAP_EPOCH, os.Getpid())
	}
}
