/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package osutil

import (
	"time"
)

const (
	// RFC3339 with millisecond precision, fixed width. The value is Go's
	// reference time; the trailing Z07:00 renders as "Z" for UTC and as a
	// +hh:mm or -hh:mm offset otherwise.
	RFC3339MiliTimestampFormat = "2006-01-02T15:04:05.000Z07:00"
)

// Ensures two given timestamps are within a given duration of each other.
func Within(a, b time.Time, max time.Duration) bool {
	return a.Sub(b).Abs() <= max
}
