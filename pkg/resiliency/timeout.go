/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package resiliency

import (
	"time"
)

// RunWithTimeout runs op and reports whether it finished before the timeout.
// When it returns false the operation is still running on its goroutine; op
// must therefore be safe to abandon. Each call spends a goroutine and a timer,
// so this is for shutdown paths and the like, not hot loops.
func RunWithTimeout(op func(), timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		defer close(done)
		op()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
