/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package resiliency

import (
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"
)

// MakePanicError turns a recovered panic value into an error, logging the
// value together with the goroutine stack. It returns nil for a nil value so
// it can wrap recover() directly. The result is a permanent error: a panic
// inside a retried operation must end the retry loop, not restart it.
func MakePanicError(panicVal any, log logr.Logger) error {
	if panicVal == nil {
		return nil
	}

	err, isError := panicVal.(error)
	if !isError {
		err = fmt.Errorf("panic: %v", panicVal)
	}

	log.Error(err, "A goroutine panicked", "stack", string(debug.Stack()))

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return err
	}
	return Permanent(err)
}
