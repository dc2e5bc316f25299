// Copyright (c) Microsoft Corporation. All rights reserved.

package networking

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"
	"github.com/tidwall/gjson"

	"github.com/microsoft/chromedap/pkg/resiliency"
)

const (
	// Per-attempt timeout for DevTools HTTP requests.
	// The overall wait is governed by the caller's context.
	devToolsRequestTimeout = 2 * time.Second

	// A browser with many open tabs can produce a sizeable target list.
	maxDevToolsBodyLength = 1024 * 1024 // 1 MB
)

// DebugTarget describes one debuggable target reported by the browser
// DevTools endpoint (http://<address>:<port>/json).
type DebugTarget struct {
	ID                   string
	Title                string
	Type                 string
	URL                  string
	WebSocketDebuggerURL string
}

func AddressAndPort(address string, port int) string {
	if address == "" {
		address = "localhost"
	}
	return fmt.Sprintf("%s:%d", address, port)
}

func IsValidPort(port int) bool {
	return port >= 1 && port <= 65535
}

// Gets a free TCP port for a given address (defaults to localhost).
func GetFreePort(address string) (int, error) {
	tcpaddr, err := net.ResolveTCPAddr("tcp", AddressAndPort(address, 0))
	if err != nil {
		return 0, err
	}

	listener, listenErr := net.ListenTCP("tcp", tcpaddr)
	if listenErr != nil {
		return 0, listenErr
	}
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()
	return port, nil
}

// CheckPortAvailable reports whether a TCP port can be bound on the given address.
func CheckPortAvailable(address string, port int) error {
	tcpaddr, err := net.ResolveTCPAddr("tcp", AddressAndPort(address, port))
	if err != nil {
		return err
	}

	listener, listenErr := net.ListenTCP("tcp", tcpaddr)
	if listenErr != nil {
		return listenErr
	}
	listener.Close()
	return nil
}

// WaitForDebugTarget polls the browser DevTools endpoint until it reports a
// debuggable page target, or the context is cancelled. When targetURL is not
// empty, a page whose URL matches it is preferred; a page is still accepted
// if no URL matches, so a redirected navigation does not stall the wait.
func WaitForDebugTarget(ctx context.Context, address string, port int, targetURL string, log logr.Logger) (DebugTarget, error) {
	log.V(1).Info("waiting for browser debugger endpoint",
		"address", AddressAndPort(address, port),
		"targetUrl", targetURL)

	return resiliency.RetryGet(ctx, devToolsBackoff(), func() (DebugTarget, error) {
		targets, err := FetchTargets(ctx, address, port)
		if err != nil {
			return DebugTarget{}, err
		}

		target, found := pickTarget(targets, targetURL)
		if !found {
			return DebugTarget{}, fmt.Errorf("browser at %s reports no debuggable page targets yet", AddressAndPort(address, port))
		}
		return target, nil
	})
}

// FetchTargets retrieves the current list of debuggable targets from the browser.
func FetchTargets(ctx context.Context, address string, port int) ([]DebugTarget, error) {
	body, err := devToolsGet(ctx, fmt.Sprintf("http://%s/json", AddressAndPort(address, port)))
	if err != nil {
		return nil, err
	}

	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("browser debugger endpoint returned malformed JSON")
	}

	var targets []DebugTarget
	gjson.ParseBytes(body).ForEach(func(_, item gjson.Result) bool {
		targets = append(targets, DebugTarget{
			ID:                   item.Get("id").String(),
			Title:                item.Get("title").String(),
			Type:                 item.Get("type").String(),
			URL:                  item.Get("url").String(),
			WebSocketDebuggerURL: item.Get("webSocketDebuggerUrl").String(),
		})
		return true
	})
	return targets, nil
}

// BrowserVersion returns the browser identification string reported by the
// DevTools version endpoint (e.g. "Chrome/126.0.6478.127").
func BrowserVersion(ctx context.Context, address string, port int) (string, error) {
	body, err := devToolsGet(ctx, fmt.Sprintf("http://%s/json/version", AddressAndPort(address, port)))
	if err != nil {
		return "", err
	}

	version := gjson.GetBytes(body, "Browser")
	if !version.Exists() {
		return "", fmt.Errorf("browser debugger endpoint did not report a version")
	}
	return version.String(), nil
}

func devToolsGet(ctx context.Context, url string) ([]byte, error) {
	dialer := &net.Dialer{
		Timeout: devToolsRequestTimeout,
	}

	transport := http.Transport{
		DialContext:        dialer.DialContext,
		DisableKeepAlives:  true,
		DisableCompression: true, // Removes Accept-Encoding: gzip header
	}
	client := http.Client{
		Transport: &transport,
		Timeout:   devToolsRequestTimeout,
	}

	reqCtx, reqCtxCancel := context.WithTimeout(ctx, devToolsRequestTimeout)
	defer reqCtxCancel()

	req, reqCreationErr := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if reqCreationErr != nil {
		// A request that cannot even be built will not get better with retries.
		return nil, resiliency.Permanent(fmt.Errorf("failed to create HTTP request: %w", reqCreationErr))
	}

	resp, respErr := client.Do(req)
	if respErr != nil {
		return nil, respErr
	}
	defer resp.Body.Close()

	lr := io.LimitedReader{R: resp.Body, N: maxDevToolsBodyLength}
	body, bodyErr := io.ReadAll(&lr)
	if bodyErr != nil {
		return nil, bodyErr
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("browser debugger endpoint returned status code %d", resp.StatusCode)
	}

	return body, nil
}

// Only page targets with an open debugger socket are eligible; service workers
// and other target kinds are not debuggable page content.
func pickTarget(targets []DebugTarget, targetURL string) (DebugTarget, bool) {
	var fallback *DebugTarget
	for i := range targets {
		t := &targets[i]
		if t.Type != "page" || t.WebSocketDebuggerURL == "" {
			continue
		}
		if targetURL == "" || urlsMatch(t.URL, targetURL) {
			return *t, true
		}
		if fallback == nil {
			fallback = t
		}
	}

	if fallback != nil {
		return *fallback, true
	}
	return DebugTarget{}, false
}

// urlsMatch compares page URLs loosely: casing and a trailing slash
// do not matter.
func urlsMatch(a, b string) bool {
	return canonicalURL(a) == canonicalURL(b)
}

func canonicalURL(u string) string {
	return strings.TrimRight(strings.ToLower(u), "/")
}

func devToolsBackoff() *backoff.ExponentialBackOff {
	return backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(100*time.Millisecond),
		backoff.WithMaxInterval(time.Second),
		backoff.WithMaxElapsedTime(0),
	)
}
