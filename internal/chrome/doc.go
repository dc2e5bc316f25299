/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

/*
Package chrome drives a Chrome-family browser as the debugging target.

The Launcher starts the browser detached from the adapter process, with its
remote debugging endpoint enabled, and supervises it until the session
disconnects or the browser exits. The Engine exposes the browser to the
protocol layer: it implements the session lifecycle commands and raises the
events that mark session progress (initialized after a successful attach,
terminated when the browser goes away).

Everything after attach runs over the browser's debugging endpoint; the
browser's standard streams are not used.
*/
package chrome
