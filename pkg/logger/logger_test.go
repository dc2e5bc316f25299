package logger

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// syncBuffer is a WriteSyncer that captures console output for assertions.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (sb *syncBuffer) Write(p []byte) (int, error) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.buf.Write(p)
}

func (sb *syncBuffer) Sync() error { return nil }

func (sb *syncBuffer) String() string {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.buf.String()
}

var _ zapcore.WriteSyncer = &syncBuffer{}

func TestConsoleDisabledWritesNothing(t *testing.T) {
	t.Parallel()

	out := &syncBuffer{}
	log := NewWithOptions("test", Options{Console: false, ConsoleOut: out})

	log.Info("protocol channel must stay clean")
	log.Error(assert.AnError, "not even errors may leak")
	log.Flush()

	assert.Empty(t, out.String())
}

func TestConsoleEnabledWritesAndHonorsLevel(t *testing.T) {
	t.Parallel()

	out := &syncBuffer{}
	log := NewWithOptions("test", Options{Console: true, ConsoleOut: out})

	log.V(1).Info("too detailed for the default level")
	log.Info("visible at info")
	log.Flush()

	output := out.String()
	assert.Contains(t, output, "visible at info")
	assert.NotContains(t, output, "too detailed")

	log.SetLevel(zap.DebugLevel)
	log.V(1).Info("now visible")
	log.Flush()

	assert.Contains(t, out.String(), "now visible")
}

func TestSeparatorMarksIdleGaps(t *testing.T) {
	t.Parallel()

	out := &syncBuffer{}
	log := NewWithOptions("test", Options{
		Console:           true,
		SeparatorInterval: 20 * time.Millisecond,
		ConsoleOut:        out,
	})

	countSeparators := func() int {
		return strings.Count(out.String(), strings.Repeat("-", 64))
	}

	log.Info("first burst")
	log.Flush()

	require.Eventually(t, func() bool { return countSeparators() == 1 },
		time.Second, 5*time.Millisecond, "one separator should close off the burst")

	// No additional separators while output stays idle.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, countSeparators())

	log.Info("second burst")
	log.Flush()

	require.Eventually(t, func() bool { return countSeparators() == 2 },
		time.Second, 5*time.Millisecond, "a new burst should be closed off by a new separator")
}

func TestStringToLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     string
		expected  zapcore.Level
		expectErr bool
	}{
		{"debug", "debug", zap.DebugLevel, false},
		{"info mixed case", "Info", zap.InfoLevel, false},
		{"error", "error", zap.ErrorLevel, false},
		{"numeric verbosity", "4", zapcore.Level(-4), false},
		{"zero is invalid", "0", zap.InfoLevel, true},
		{"negative is invalid", "-2", zap.InfoLevel, true},
		{"garbage", "loud", zap.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			level, err := StringToLevel(tt.input, zap.InfoLevel)
			if tt.expectErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expected, level)
			}
		})
	}
}
