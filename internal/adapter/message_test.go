/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequenceCounter(t *testing.T) {
	t.Parallel()

	counter := newSequenceCounter()

	assert.Equal(t, 0, counter.Current(), "initial value should be 0")

	assert.Equal(t, 1, counter.Next(), "first Next() should return 1")
	assert.Equal(t, 1, counter.Current(), "Current() should return 1 after first Next()")

	assert.Equal(t, 2, counter.Next(), "second Next() should return 2")
	assert.Equal(t, 3, counter.Next(), "third Next() should return 3")
	assert.Equal(t, 3, counter.Current(), "Current() should not advance the counter")
}

func TestPendingRequests(t *testing.T) {
	t.Parallel()

	pending := newPendingRequests()

	assert.Equal(t, 0, pending.Len(), "initial map should be empty")

	pending.Add(10, "evaluate")
	pending.Add(11, "threads")

	assert.Equal(t, 2, pending.Len(), "map should have 2 entries")
	assert.ElementsMatch(t, []int{10, 11}, pending.Outstanding())

	assert.True(t, pending.Remove(10), "first Remove should win the latch")
	assert.False(t, pending.Remove(10), "second Remove for same seq should lose")
	assert.Equal(t, 1, pending.Len(), "map should have 1 entry after Remove")

	assert.False(t, pending.Remove(999), "Remove for unknown seq should report absent")

	assert.True(t, pending.Remove(11))
	assert.Equal(t, 0, pending.Len(), "map should be empty")
	assert.Empty(t, pending.Outstanding())
}
