/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

// Package syncmap puts types on standard library sync.Map.

package syncmap

import "sync"

type Map[Key comparable, Value any] sync.Map

func (m *Map[Key, Value]) syncMap() *sync.Map {
	return (*sync.Map)(m)
}

func (m *Map[Key, Value]) Store(key Key, value Value) {
	m.syncMap().Store(key, value)
}

// Load returns the value stored for the key, if any.
func (m *Map[Key, Value]) Load(key Key) (Value, bool) {
	anyValue, found := m.syncMap().Load(key)
	if !found {
		return zero[Value](), false
	}
	return valueOf[Value](anyValue), true
}

// Delete removes the value for the key; a missing key leaves the map unchanged.
func (m *Map[Key, Value]) Delete(key Key) {
	m.syncMap().Delete(key)
}

// Range calls f for each key-value pair until f returns false.
func (m *Map[Key, Value]) Range(f func(key Key, value Value) bool) {
	m.syncMap().Range(func(key, value any) bool {
		return f(key.(Key), valueOf[Value](value))
	})
}

// When Value is itself an interface type, storing a nil Value puts an untyped
// nil into the underlying map, which a plain type assertion would reject.
func valueOf[T any](v any) T {
	if v == nil {
		return zero[T]()
	}
	return v.(T)
}

func zero[T any]() T {
	return *new(T)
}
