// TaskMesh - Team Task Tracking and Real-Time Collaboration
// Copyright 2026 TaskMesh contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/taskmesh/taskmesh

package wire

import (
	"crypto/rand"
	"crypto/sha1" //nolint:gosec // protocol-mandated
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func TestAcceptKeyRFC6455Vector(t *testing.T) {
	// The worked example from RFC 6455 section 1.3.
	got := AcceptKey("dGhlIHNhbXBsZSBub25jZQ==")
	want := "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
	if got != want {
		t.Errorf("AcceptKey() = %q, want %q", got, want)
	}
}

func TestAcceptKeyProperty(t *testing.T) {
	// For arbitrary keys the accept value must equal
	// base64(SHA-1(key + GUID)).
	for i := 0; i < 50; i++ {
		nonce := make([]byte, 16)
		if _, err := rand.Read(nonce); err != nil {
			t.Fatalf("rand: %v", err)
		}
		key := base64.StdEncoding.EncodeToString(nonce)

		digest := sha1.Sum([]byte(key + "258EAFA5-E914-47DA-95CA-C5AB0DC85B11")) //nolint:gosec
		want := base64.StdEncoding.EncodeToString(digest[:])

		if got := AcceptKey(key); got != want {
			t.Fatalf("AcceptKey(%q) = %q, want %q", key, got, want)
		}
	}
}

func upgradeRequest(target, key string) []byte {
	var b strings.Builder
	b.WriteString("GET " + target + " HTTP/1.1\r\n")
	b.WriteString("Host: localhost:8080\r\n")
	b.WriteString("Upgrade: websocket\r\n")
	b.WriteString("Connection: Upgrade\r\n")
	if key != "" {
		b.WriteString("Sec-WebSocket-Key: " + key + "\r\n")
	}
	b.WriteString("Sec-WebSocket-Version: 13\r\n\r\n")
	return []byte(b.String())
}

func TestParseUpgrade(t *testing.T) {
	tests := []struct {
		name      string
		raw       []byte
		wantKey   string
		wantToken string
		wantErr   error
	}{
		{
			name:    "plain upgrade",
			raw:     upgradeRequest("/ws", "dGhlIHNhbXBsZSBub25jZQ=="),
			wantKey: "dGhlIHNhbXBsZSBub25jZQ==",
		},
		{
			name:      "upgrade with token",
			raw:       upgradeRequest("/ws?token=abc.def.ghi", "c29tZSBvdGhlciBub25jZQ=="),
			wantKey:   "c29tZSBvdGhlciBub25jZQ==",
			wantToken: "abc.def.ghi",
		},
		{
			name:      "token amid other params",
			raw:       upgradeRequest("/ws?v=2&token=tok123&x=1", "a2V5a2V5a2V5a2V5a2V5aw=="),
			wantKey:   "a2V5a2V5a2V5a2V5a2V5aw==",
			wantToken: "tok123",
		},
		{
			name:    "missing key header",
			raw:     upgradeRequest("/ws", ""),
			wantErr: ErrNoWebSocketKey,
		},
		{
			name:    "not an http request",
			raw:     []byte("garbage\r\nmore garbage\r\n"),
			wantErr: ErrNoWebSocketKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up, err := ParseUpgrade(tt.raw)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseUpgrade() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseUpgrade() error = %v", err)
			}
			if up.Key != tt.wantKey {
				t.Errorf("Key = %q, want %q", up.Key, tt.wantKey)
			}
			if up.Token != tt.wantToken {
				t.Errorf("Token = %q, want %q", up.Token, tt.wantToken)
			}
		})
	}
}

func TestParseUpgradeCaseInsensitiveHeader(t *testing.T) {
	raw := []byte("GET /ws HTTP/1.1\r\nsec-websocket-key: bG93ZXJjYXNlIGhlYWRlcg==\r\n\r\n")
	up, err := ParseUpgrade(raw)
	if err != nil {
		t.Fatalf("ParseUpgrade() error = %v", err)
	}
	if up.Key != "bG93ZXJjYXNlIGhlYWRlcg==" {
		t.Errorf("Key = %q", up.Key)
	}
}

func TestResponseFormat(t *testing.T) {
	resp := string(Response("s3pPLMBiTxaQ9kYGzzhZRbK+xOo="))

	if !strings.HasPrefix(resp, "HTTP/1.1 101 Switching Protocols\r\n") {
		t.Error("response missing 101 status line")
	}
	if !strings.Contains(resp, "Sec-WebSocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=\r\n") {
		t.Error("response missing accept header")
	}
	if !strings.HasSuffix(resp, "\r\n\r\n") {
		t.Error("response not terminated by blank line")
	}
}
