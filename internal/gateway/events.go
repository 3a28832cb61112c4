// TaskMesh - Team Task Tracking and Real-Time Collaboration
// Copyright 2026 TaskMesh contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/taskmesh/taskmesh

package gateway

import (
	"bytes"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/taskmesh/taskmesh/internal/store"
	"github.com/taskmesh/taskmesh/internal/wire"
)

// Inbound client event names.
const (
	eventRegister    = "register"
	eventJoinTeam    = "joinTeam"
	eventLeaveTeam   = "leaveTeam"
	eventSendMessage = "sendMessage"
	eventTyping      = "typing"
)

// Outbound event names.
const (
	eventNewMessage  = "newMessage"
	eventUserTyping  = "userTyping"
	typeNotification = "notification"
)

// flexInt64 decodes a JSON number or a numeric string. The web client sends
// ids as numbers; older clients sent them quoted.
type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		*f = 0
		return nil // tolerate junk; the dispatcher treats 0 as absent
	}
	*f = flexInt64(n)
	return nil
}

// flexString decodes a JSON string or number into the room-key form.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(bytes.TrimSpace(b))
	return nil
}

// clientEvent is the decoded form of one inbound application message. The
// discriminator arrives as either "event" or "type" depending on client
// code path; name() folds the two.
type clientEvent struct {
	Event   string     `json:"event"`
	Type    string     `json:"type"`
	UserID  flexInt64  `json:"user_id"`
	TeamID  flexString `json:"team_id"`
	Content string     `json:"content"`
}

func (e *clientEvent) name() string {
	if e.Event != "" {
		return e.Event
	}
	return e.Type
}

// serverEvent is one outbound application message. Room events use the
// "event" key; bridge notifications use "type", matching what the web
// client's two handlers switch on.
type serverEvent struct {
	Event string      `json:"event,omitempty"`
	Type  string      `json:"type,omitempty"`
	Data  interface{} `json:"data"`
}

// encode marshals the event and wraps it in a single server-to-client frame.
func (e serverEvent) encode() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return wire.Encode(string(b)), nil
}

func newMessageEvent(msg *store.ChatMessage) serverEvent {
	return serverEvent{Event: eventNewMessage, Data: msg}
}

func userTypingEvent(userID int64) serverEvent {
	return serverEvent{Event: eventUserTyping, Data: map[string]int64{"user_id": userID}}
}

func notificationEvent(payload json.RawMessage) serverEvent {
	return serverEvent{Type: typeNotification, Data: payload}
}
