// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package chrome

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/microsoft/chromedap/internal/networking"
)

// DefaultDebugPort is the remote debugging port used when the client
// configuration does not name one.
const DefaultDebugPort = 9222

// LaunchConfig is the argument payload of a "launch" request: start a new
// browser instance with its remote debugging endpoint enabled and attach to it.
type LaunchConfig struct {
	// RuntimeExecutable is an absolute path to the browser binary to run.
	// When empty, the browser is discovered via platform conventions.
	RuntimeExecutable string `json:"runtimeExecutable,omitempty"`

	// RuntimeArgs are extra command line arguments passed to the browser verbatim.
	RuntimeArgs []string `json:"runtimeArgs,omitempty"`

	// Port is the remote debugging port the browser will listen on.
	// Defaults to DefaultDebugPort.
	Port int `json:"port,omitempty"`

	// Address is the host on which the debugging endpoint is expected,
	// defaulting to localhost.
	Address string `json:"address,omitempty"`

	// UserDataDir makes the browser store its profile under the given
	// directory, isolating the debugged instance from the user's everyday one.
	UserDataDir string `json:"userDataDir,omitempty"`

	// File is a local HTML file to open on startup.
	File string `json:"file,omitempty"`

	// URL is the address to open on startup. Ignored when File is also set.
	URL string `json:"url,omitempty"`
}

// AttachConfig is the argument payload of an "attach" request: connect to a
// browser that is already running with its debugging endpoint open.
type AttachConfig struct {
	// Port is the remote debugging port the browser is listening on.
	// Defaults to DefaultDebugPort.
	Port int `json:"port,omitempty"`

	// Address is the host on which the debugging endpoint is reachable,
	// defaulting to localhost.
	Address string `json:"address,omitempty"`

	// URL selects the page to attach to when the browser has several open.
	URL string `json:"url,omitempty"`
}

// BrowserArgs constructs the browser command line for this configuration.
// The browser's argument parsing is positional for the opening URL, so the
// shape is fixed: the debugging port first, then the flags that suppress
// first-run UI, then caller arguments verbatim, then the profile directory,
// with the page to open always last.
func (c LaunchConfig) BrowserArgs() []string {
	args := []string{
		fmt.Sprintf("--remote-debugging-port=%d", c.DebugPort()),
		"--no-first-run",
		"--no-default-browser-check",
	}
	args = append(args, c.RuntimeArgs...)
	if c.UserDataDir != "" {
		args = append(args, "--user-data-dir="+c.UserDataDir)
	}
	if launchURL := c.LaunchURL(); launchURL != "" {
		args = append(args, launchURL)
	}
	return args
}

// DebugPort returns the remote debugging port to use, applying the default
// when the configuration holds no usable port.
func (c LaunchConfig) DebugPort() int {
	return defaultedPort(c.Port)
}

// DebugPort returns the remote debugging port to use, applying the default
// when the configuration holds no usable port.
func (c AttachConfig) DebugPort() int {
	return defaultedPort(c.Port)
}

// LaunchURL returns what the browser should open on startup, or empty when
// the configuration requests no navigation. A local file takes precedence
// over a URL and is converted to the file:// form the browser expects.
func (c LaunchConfig) LaunchURL() string {
	if c.File != "" {
		return FileURL(c.File)
	}
	return c.URL
}

// FileURL converts a local filesystem path into a file:// URL.
// Windows paths gain a leading slash so drive letters survive the conversion
// ("C:\pages\a.html" becomes "file:///C:/pages/a.html").
func FileURL(path string) string {
	p := filepath.ToSlash(path)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return "file://" + p
}

func defaultedPort(port int) int {
	if networking.IsValidPort(port) {
		return port
	}
	return DefaultDebugPort
}
