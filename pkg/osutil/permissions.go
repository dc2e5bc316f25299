package osutil

import "os"

// Diagnostics logs and telemetry files can contain URLs, paths and other
// details of the debugged application, so they stay private to the owner.
const (
	PermissionOnlyOwnerReadWrite           os.FileMode = 0600
	PermissionOnlyOwnerReadWriteSetCurrent os.FileMode = 0700 // For directories
)
