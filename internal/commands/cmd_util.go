package commands

import (
	"fmt"
	"os"

	"github.com/microsoft/chromedap/pkg/logger"
)

// ErrorExit reports a fatal command error on stderr and in the log, flushes
// pending log output, and exits with the given code. In stdio mode stdout may
// carry protocol traffic, so the report goes to stderr only.
func ErrorExit(log *logger.Logger, err error, exitCode int) {
	log.Error(err, "exiting with error", "exitCode", exitCode)
	fmt.Fprintln(os.Stderr, err)
	log.Flush()
	os.Exit(exitCode)
}
