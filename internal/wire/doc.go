// TaskMesh - Team Task Tracking and Real-Time Collaboration
// Copyright 2026 TaskMesh contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/taskmesh/taskmesh

// Package wire implements the RFC 6455 WebSocket wire format used by the
// TaskMesh real-time gateway: the opening handshake and the frame codec.
//
// The gateway deliberately speaks the protocol directly over raw TCP instead
// of delegating to a websocket server library, so this package is the single
// place where byte-level protocol knowledge lives. It is pure: no sockets,
// no I/O, just bytes in and bytes out, which keeps it unit-testable in
// isolation from the event loop.
//
// # Frames
//
// Decode interprets a single masked client-to-server text frame and returns
// the unmasked payload. Encode produces a single unmasked server-to-client
// text frame using the minimal length encoding. All three RFC 6455 length
// encodings are supported in both directions, including the 64-bit extended
// path for payloads larger than 65535 bytes.
//
// # Handshake
//
// ParseUpgrade extracts the Sec-WebSocket-Key header and the optional token
// query parameter from the client's opening request. AcceptKey derives the
// Sec-WebSocket-Accept value, and Response renders the 101 Switching
// Protocols reply.
package wire
