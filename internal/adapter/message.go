// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package adapter

import (
	"sync"

	"github.com/microsoft/chromedap/pkg/maps"
)

// pendingRequests tracks client requests that have been received but not yet
// answered, keyed by the client's sequence number. Removing an entry acts as
// the send latch for that request: whichever path removes it owns sending the
// one and only response.
type pendingRequests struct {
	mu       sync.Mutex
	commands map[int]string
}

// newPendingRequests creates a new empty pending request map.
func newPendingRequests() *pendingRequests {
	return &pendingRequests{
		commands: make(map[int]string),
	}
}

// Add records a request awaiting a response.
func (m *pendingRequests) Add(seq int, command string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands[seq] = command
}

// Remove removes the entry for the given sequence number and reports whether
// it was present.
func (m *pendingRequests) Remove(seq int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.commands[seq]
	if ok {
		delete(m.commands, seq)
	}
	return ok
}

// Len returns the number of requests still awaiting a response.
func (m *pendingRequests) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.commands)
}

// Outstanding returns the sequence numbers of all requests still awaiting a
// response. The order is unspecified.
func (m *pendingRequests) Outstanding() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Keys(m.commands)
}

// sequenceCounter provides thread-safe sequence number generation for
// messages the session originates (responses and events).
type sequenceCounter struct {
	mu  sync.Mutex
	seq int
}

// newSequenceCounter creates a new sequence counter starting at 0.
func newSequenceCounter() *sequenceCounter {
	return &sequenceCounter{seq: 0}
}

// Next returns the next sequence number.
func (c *sequenceCounter) Next() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// Current returns the current sequence number without incrementing.
func (c *sequenceCounter) Current() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}
