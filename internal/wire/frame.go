// TaskMesh - Team Task Tracking and Real-Time Collaboration
// Copyright 2026 TaskMesh contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/taskmesh/taskmesh

package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Frame header constants per RFC 6455 section 5.2.
const (
	finBit  = 0x80
	maskBit = 0x80

	opcodeText = 0x1

	// maskKeyLen is the length of the client masking key.
	maskKeyLen = 4

	// maxInlineLen is the largest payload length encodable in the 7-bit field.
	maxInlineLen = 125

	// len16Marker and len64Marker select the 16-bit and 64-bit extended
	// length encodings.
	len16Marker = 126
	len64Marker = 127

	// maxLen16 is the largest payload length encodable in 16 bits.
	maxLen16 = 0xFFFF
)

// ErrCorruptFrame is returned when a frame's declared payload length exceeds
// the bytes actually available, or the buffer is shorter than the header it
// implies.
var ErrCorruptFrame = errors.New("wire: corrupt frame")

// ErrUnmaskedFrame is returned when a client-to-server frame arrives without
// the mask bit set. RFC 6455 requires clients to mask every frame.
var ErrUnmaskedFrame = errors.New("wire: client frame not masked")

// Decode interprets a single masked client-to-server frame and returns the
// unmasked payload text.
//
// The payload length is read from the 7-bit inline field, the 16-bit extended
// field, or the 64-bit extended field, and the payload is unmasked by XOR-ing
// each byte with the cyclically repeating 4-byte masking key.
func Decode(raw []byte) (string, error) {
	if len(raw) < 2 {
		return "", fmt.Errorf("%w: %d byte header", ErrCorruptFrame, len(raw))
	}

	if raw[1]&maskBit == 0 {
		return "", ErrUnmaskedFrame
	}

	var (
		payloadLen uint64
		offset     int
	)

	switch lenField := raw[1] & 0x7F; lenField {
	case len16Marker:
		if len(raw) < 4 {
			return "", fmt.Errorf("%w: truncated 16-bit length", ErrCorruptFrame)
		}
		payloadLen = uint64(binary.BigEndian.Uint16(raw[2:4]))
		offset = 4
	case len64Marker:
		if len(raw) < 10 {
			return "", fmt.Errorf("%w: truncated 64-bit length", ErrCorruptFrame)
		}
		payloadLen = binary.BigEndian.Uint64(raw[2:10])
		offset = 10
	default:
		payloadLen = uint64(lenField)
		offset = 2
	}

	if len(raw) < offset+maskKeyLen {
		return "", fmt.Errorf("%w: truncated masking key", ErrCorruptFrame)
	}
	// Compare without adding to payloadLen: a hostile 64-bit length near
	// the type's maximum would wrap the sum around and pass the check.
	available := uint64(len(raw) - offset - maskKeyLen)
	if payloadLen > available {
		return "", fmt.Errorf("%w: declared %d payload bytes, %d available",
			ErrCorruptFrame, payloadLen, available)
	}

	var maskKey [maskKeyLen]byte
	copy(maskKey[:], raw[offset:offset+maskKeyLen])

	payload := raw[offset+maskKeyLen : offset+maskKeyLen+int(payloadLen)]
	text := make([]byte, len(payload))
	for i, b := range payload {
		text[i] = b ^ maskKey[i%maskKeyLen]
	}

	return string(text), nil
}

// Encode produces a single unmasked server-to-client text frame. Server
// frames are never masked per RFC 6455, so the payload is carried verbatim.
//
// The minimal length encoding is chosen: 7-bit inline for payloads up to 125
// bytes, 16-bit extended up to 65535, and the full 64-bit extended field
// beyond that. Payloads above 65535 bytes are never truncated.
func Encode(text string) []byte {
	payloadLen := len(text)

	var header []byte
	switch {
	case payloadLen <= maxInlineLen:
		header = []byte{finBit | opcodeText, byte(payloadLen)}
	case payloadLen <= maxLen16:
		header = make([]byte, 4)
		header[0] = finBit | opcodeText
		header[1] = len16Marker
		binary.BigEndian.PutUint16(header[2:4], uint16(payloadLen))
	default:
		header = make([]byte, 10)
		header[0] = finBit | opcodeText
		header[1] = len64Marker
		binary.BigEndian.PutUint64(header[2:10], uint64(payloadLen))
	}

	frame := make([]byte, 0, len(header)+payloadLen)
	frame = append(frame, header...)
	frame = append(frame, text...)
	return frame
}
