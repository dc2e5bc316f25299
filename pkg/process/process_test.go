package process

import (
	"errors"
	"io"
	"math"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPidConversions(t *testing.T) {
	t.Parallel()

	pid, err := IntToPidT(1234)
	require.NoError(t, err)
	assert.Equal(t, Pid_t(1234), pid)

	_, err = IntToPidT(-5)
	require.Error(t, err)

	osPid, err := PidT_ToInt(pid)
	require.NoError(t, err)
	assert.Equal(t, 1234, osPid)

	u32Pid, err := PidT_ToUint32(pid)
	require.NoError(t, err)
	assert.Equal(t, uint32(1234), u32Pid)

	_, err = PidT_ToUint32(Pid_t(math.MaxUint32) + 1)
	require.Error(t, err)

	assert.Equal(t, Pid_t(77), Uint32_ToPidT(77))
}

func TestIsEarlyProcessExitError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"process done", os.ErrProcessDone, true},
		{"wrapped process done", errors.Join(errors.New("outer"), os.ErrProcessDone), true},
		{"echild from wait", os.NewSyscallError("waitid", syscall.ECHILD), true},
		{"echild from unrelated syscall", os.NewSyscallError("read", syscall.ECHILD), false},
		{"unrelated error", io.ErrUnexpectedEOF, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, IsEarlyProcessExitError(tt.err))
		})
	}
}

func TestProcessExitHandlerFunc(t *testing.T) {
	t.Parallel()

	var gotPid Pid_t
	var gotCode int32
	var handler ProcessExitHandlerFunc = func(pid Pid_t, exitCode int32, err error) {
		gotPid = pid
		gotCode = exitCode
	}

	handler.OnProcessExited(42, 3, nil)
	assert.Equal(t, Pid_t(42), gotPid)
	assert.Equal(t, int32(3), gotCode)
}
