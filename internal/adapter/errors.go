/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package adapter

import (
	"context"
	"errors"

	"github.com/go-logr/logr"
)

var (
	// ErrUnknownCommand is returned by an Engine when it has no handler for the
	// requested command. The string form is a fixed sentinel so that engines built
	// on other error types can participate by matching it verbatim.
	ErrUnknownCommand = errors.New("unknowncommand")

	// ErrSessionClosed is returned when attempting to use a closed session.
	ErrSessionClosed = errors.New("session is closed")
)

// IsUnknownCommand returns true if the error identifies a command the engine
// could not resolve. Both the sentinel value and its string form are accepted.
func IsUnknownCommand(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrUnknownCommand) || err.Error() == ErrUnknownCommand.Error()
}

// filterContextError filters out redundant context errors during shutdown.
// If the error is a context.Canceled or context.DeadlineExceeded and the
// context is already done, the error is logged at debug level and nil is returned.
// Otherwise, the original error is returned unchanged.
//
// This is useful when winding down a session to avoid reporting context
// cancellation errors that are expected side effects of the shutdown.
func filterContextError(err error, ctx context.Context, log logr.Logger) error {
	if err == nil {
		return nil
	}

	if ctx.Err() != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			log.V(1).Info("Filtering redundant context error", "error", err)
			return nil
		}
	}

	return err
}
