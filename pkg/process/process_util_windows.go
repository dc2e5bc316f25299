//go:build windows

package process

import (
	"os/exec"
	"syscall"
)

// DecoupleFromParent puts the command in its own process group, so the child
// is not signalled together with us and keeps running if we exit first.
func DecoupleFromParent(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}
