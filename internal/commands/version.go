package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/microsoft/chromedap/internal/version"
)

// If set, the value of this variable is written to the log as one of the
// first messages. Development tools use it to stamp sessions with their own
// correlation data.
const CHROMEDAP_LOGGING_CONTEXT = "CHROMEDAP_LOGGING_CONTEXT"

func NewVersionCommand() (*cobra.Command, error) {
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Prints version information",
		Long:  `Prints version information.`,
		RunE:  printVersion,
		Args:  cobra.NoArgs,
	}

	return versionCmd, nil
}

func printVersion(cmd *cobra.Command, args []string) error {
	versionStr, err := versionString()
	if err != nil {
		return fmt.Errorf("could not serialize version information: %w", err)
	}

	fmt.Println(versionStr)
	return nil
}

// LogVersion records the process identity at startup, so a diagnostics log
// alone is enough to tell which build produced it and how it was invoked.
func LogVersion(log logr.Logger, programStartMsg string) {
	versionStr, err := versionString()
	if err != nil {
		versionStr = fmt.Sprintf("unknown: %v", err)
	}

	launchPath, pathErr := os.Executable()
	if pathErr != nil {
		launchPath = os.Args[0]
	}

	log.V(1).Info(programStartMsg,
		"PID", os.Getpid(),
		"Exe", launchPath,
		"Args", os.Args[1:],
		"Version", versionStr,
	)

	logContext, found := os.LookupEnv(CHROMEDAP_LOGGING_CONTEXT)
	if found && len(logContext) > 0 {
		log.V(1).Info(logContext)
	}
}

func versionString() (string, error) {
	if versionJson, err := json.Marshal(version.Version()); err != nil {
		return "", err
	} else {
		return string(versionJson), nil
	}
}
