// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package adapter

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/google/go-dap"
)

// ErrTransportClosed is returned by ReadMessage and WriteMessage after the
// transport has been closed. Callers that race against session teardown can
// detect it with errors.Is and treat the failed send as a no-op.
var ErrTransportClosed = errors.New("transport is closed")

// Transport carries DAP messages between the session and one client.
// ReadMessage and WriteMessage may be used from different goroutines and
// writes are serialized internally, but at most one reader may be active at
// a time.
type Transport interface {
	// ReadMessage blocks until a complete message arrives and returns it.
	ReadMessage() (dap.Message, error)

	// WriteMessage frames one message and flushes it to the peer before
	// returning.
	WriteMessage(msg dap.Message) error

	// Close releases the underlying streams. Calls made after Close return
	// ErrTransportClosed; a read already blocked in the underlying stream
	// fails with that stream's own close error instead.
	Close() error
}

// streamTransport frames DAP messages over a pair of byte streams. TCP and
// stdio transports differ only in where the bytes go and how the streams are
// released, so both are this type with a different closer.
type streamTransport struct {
	reader *bufio.Reader
	writer *bufio.Writer
	closer func() error

	// writeMu serializes message writes so interleaved sends cannot corrupt
	// the framing.
	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool
}

// NewTCPTransport creates a Transport over an established TCP connection.
func NewTCPTransport(conn net.Conn) Transport {
	return &streamTransport{
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
		closer: conn.Close,
	}
}

// DialTCP connects to a DAP endpoint at the given address and returns a
// Transport over the connection.
func DialTCP(ctx context.Context, address string) (Transport, error) {
	var d net.Dialer
	conn, dialErr := d.DialContext(ctx, "tcp", address)
	if dialErr != nil {
		return nil, fmt.Errorf("could not connect to %s: %w", address, dialErr)
	}

	return NewTCPTransport(conn), nil
}

// NewStdioTransport creates a Transport that reads messages from stdin and
// writes them to stdout. While it is in use nothing else may write to stdout;
// stray output corrupts the message framing.
func NewStdioTransport(stdin io.ReadCloser, stdout io.WriteCloser) Transport {
	return &streamTransport{
		reader: bufio.NewReader(stdin),
		writer: bufio.NewWriter(stdout),
		closer: func() error {
			return errors.Join(stdin.Close(), stdout.Close())
		},
	}
}

func (t *streamTransport) ReadMessage() (dap.Message, error) {
	if t.isClosed() {
		return nil, ErrTransportClosed
	}

	msg, readErr := dap.ReadProtocolMessage(t.reader)
	if readErr != nil {
		return nil, fmt.Errorf("could not read DAP message: %w", readErr)
	}

	return msg, nil
}

func (t *streamTransport) WriteMessage(msg dap.Message) error {
	if t.isClosed() {
		return ErrTransportClosed
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if writeErr := dap.WriteProtocolMessage(t.writer, msg); writeErr != nil {
		return fmt.Errorf("could not write DAP message: %w", writeErr)
	}
	if flushErr := t.writer.Flush(); flushErr != nil {
		return fmt.Errorf("could not flush DAP message: %w", flushErr)
	}

	return nil
}

func (t *streamTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	return t.closer()
}

func (t *streamTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
