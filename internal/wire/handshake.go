// TaskMesh - Team Task Tracking and Real-Time Collaboration
// Copyright 2026 TaskMesh contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/taskmesh/taskmesh

package wire

import (
	"crypto/sha1" //nolint:gosec // SHA-1 is mandated by RFC 6455 for the accept key
	"encoding/base64"
	"errors"
	"net/url"
	"strings"
)

// websocketGUID is the protocol-fixed GUID appended to the client key when
// deriving the accept token (RFC 6455 section 1.3).
const websocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// ErrNoWebSocketKey is returned when the opening request carries no
// Sec-WebSocket-Key header. Such a request cannot be promoted and the
// connection is closed.
var ErrNoWebSocketKey = errors.New("wire: missing Sec-WebSocket-Key header")

// Upgrade holds the fields the gateway cares about from a client's opening
// HTTP upgrade request.
type Upgrade struct {
	// Key is the Sec-WebSocket-Key header value.
	Key string

	// Token is the optional token query parameter from the request line.
	// Empty when the client did not pre-authenticate. An invalid or absent
	// token is not fatal to the handshake; the connection is simply
	// unauthenticated until an explicit register event.
	Token string
}

// ParseUpgrade extracts the handshake fields from the raw bytes of the
// client's opening request. The request is parsed leniently: header names
// are matched case-insensitively and anything beyond the key header and the
// request line's query string is ignored.
func ParseUpgrade(raw []byte) (*Upgrade, error) {
	lines := strings.Split(string(raw), "\r\n")

	up := &Upgrade{}
	if len(lines) > 0 {
		up.Token = tokenFromRequestLine(lines[0])
	}

	for _, line := range lines[1:] {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(name), "Sec-WebSocket-Key") {
			up.Key = strings.TrimSpace(value)
			break
		}
	}

	if up.Key == "" {
		return nil, ErrNoWebSocketKey
	}
	return up, nil
}

// tokenFromRequestLine pulls the token query parameter out of a request line
// such as "GET /ws?token=abc HTTP/1.1". Returns empty on any parse failure;
// pre-authentication is best-effort.
func tokenFromRequestLine(line string) string {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return ""
	}
	u, err := url.ParseRequestURI(fields[1])
	if err != nil {
		return ""
	}
	return u.Query().Get("token")
}

// AcceptKey computes the Sec-WebSocket-Accept value for a client key:
// base64 of the SHA-1 digest of key + the protocol-fixed GUID.
func AcceptKey(key string) string {
	digest := sha1.Sum([]byte(key + websocketGUID)) //nolint:gosec // protocol-mandated
	return base64.StdEncoding.EncodeToString(digest[:])
}

// Response renders the 101 Switching Protocols reply that promotes the
// connection to the WebSocket protocol.
func Response(acceptKey string) []byte {
	var b strings.Builder
	b.WriteString("HTTP/1.1 101 Switching Protocols\r\n")
	b.WriteString("Upgrade: websocket\r\n")
	b.WriteString("Connection: Upgrade\r\n")
	b.WriteString("Sec-WebSocket-Accept: " + acceptKey + "\r\n\r\n")
	return []byte(b.String())
}
