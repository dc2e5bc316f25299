/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

/*
Package adapter implements the Debug Adapter Protocol (DAP) front end of the
debugger: the session loop that talks to the client, the proxy that hands
requests to a debugging engine, and the transformer pipeline that adjusts
messages in transit.

# Key Components

  - Session: owns one client connection; guarantees exactly one response per
    request and interleaves engine events with responses
  - Proxy: runs messages through the transformer pipeline and dispatches
    requests to the Engine
  - Engine: the debugging backend, implemented elsewhere
  - Transformer: in-place message adjustment between client and engine
    conventions (line numbering, for example)
  - Transport: DAP message framing over stdio or TCP

# Request Flow

 1. Session reads the next request from the Transport and logs it
 2. Proxy runs the request through the transformers, in registration order
 3. The Engine receives the request and eventually produces an outcome
 4. Successful outcomes pass back through the transformers in the same order;
    failures bypass them
 5. Session sends the response and logs it

The session never blocks on the engine: each request's response is produced by
its own completion goroutine, so responses can be sent in any order relative
to request arrival. Events raised by the engine follow the same outbound
transformer path and are interleaved with responses on the wire.

# Error Responses

A command the engine does not recognize produces error id 1014; a request that
fails while being processed produces error id 1104. Failure text originated by
the adapter is tagged so users can tell it apart from output produced by the
debugged page; per-command policies (see responsePolicies) relax this for
commands whose failures are ordinary user-visible output.
*/
package adapter
