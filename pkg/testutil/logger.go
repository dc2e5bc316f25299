// Copyright (c) Microsoft Corporation. All rights reserved.

package testutil

import (
	"flag"
	"testing"

	"github.com/go-logr/logr"
	"go.uber.org/zap/zapcore"

	"github.com/microsoft/chromedap/pkg/logger"
)

// NewLogForTesting returns a console logger for tests: errors only by
// default, everything when the test binary runs with -v.
func NewLogForTesting(name string) logr.Logger {
	log := logger.New(name)

	// testing.Verbose panics if flags have not been parsed yet.
	if !flag.Parsed() {
		flag.Parse()
	}
	if testing.Verbose() {
		log.SetLevel(zapcore.DebugLevel)
	} else {
		log.SetLevel(zapcore.ErrorLevel)
	}

	return log.Logger.WithValues("test", true)
}
