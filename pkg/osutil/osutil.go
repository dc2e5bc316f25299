package osutil

import (
	"runtime"
)

var (
	lf   = []byte("\n")
	crlf = []byte("\r\n")
)

func CRLF() []byte {
	return crlf
}

// LineSep returns the native line separator for the current OS.
func LineSep() []byte {
	if runtime.GOOS == "windows" {
		return crlf
	}
	return lf
}

// WithNewline returns a copy of b with the native line separator appended.
// The input slice is never modified.
func WithNewline(b []byte) []byte {
	sep := LineSep()
	retval := make([]byte, 0, len(b)+len(sep))
	retval = append(retval, b...)
	return append(retval, sep...)
}
