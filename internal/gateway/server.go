// TaskMesh - Team Task Tracking and Real-Time Collaboration
// Copyright 2026 TaskMesh contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/taskmesh/taskmesh

package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sys/unix"

	"github.com/taskmesh/taskmesh/internal/auth"
	"github.com/taskmesh/taskmesh/internal/bridge"
	"github.com/taskmesh/taskmesh/internal/logging"
	"github.com/taskmesh/taskmesh/internal/metrics"
	"github.com/taskmesh/taskmesh/internal/store"
	"github.com/taskmesh/taskmesh/internal/wire"
)

// opcodeClose is the RFC 6455 close opcode; a close frame ends the
// connection without interpreting its payload.
const opcodeClose = 0x8

// Config holds gateway configuration.
type Config struct {
	// Host is the listen address. Default: 0.0.0.0
	Host string

	// Port is the WebSocket listen port. Default: 8080
	Port int

	// Tick bounds the accept wait and therefore the bridge poll cadence.
	// Default: 50ms
	Tick time.Duration

	// ReadBufferSize is the per-read buffer. Default: 4096
	ReadBufferSize int

	// WriteTimeout bounds each connection write so one stalled client
	// cannot wedge the fan-out. Default: 1s
	WriteTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.Tick <= 0 {
		c.Tick = 50 * time.Millisecond
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = 4096
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = time.Second
	}
}

// Gateway is the event-loop driver. All connection, room, and dispatch state
// is owned by the goroutine running Serve; the only cross-process resource
// it touches is the notification bridge.
type Gateway struct {
	cfg      Config
	registry *Registry
	rooms    *Rooms
	queue    *bridge.Queue
	store    store.MessageStore
	resolver auth.TokenResolver
	readBuf  []byte
}

// New creates a gateway. The resolver may be nil, in which case token
// pre-authentication during the handshake is skipped and clients identify
// via the register event.
func New(cfg Config, queue *bridge.Queue, msgStore store.MessageStore, resolver auth.TokenResolver) *Gateway {
	cfg.applyDefaults()
	return &Gateway{
		cfg:      cfg,
		registry: NewRegistry(),
		rooms:    NewRooms(),
		queue:    queue,
		store:    msgStore,
		resolver: resolver,
		readBuf:  make([]byte, cfg.ReadBufferSize),
	}
}

// Serve runs the event loop until the context is canceled. It implements
// suture.Service; a listen failure returns an error and lets the supervisor
// restart with backoff.
func (g *Gateway) Serve(ctx context.Context) error {
	addr := net.JoinHostPort(g.cfg.Host, strconv.Itoa(g.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("gateway: listen on %s: %w", addr, err)
	}
	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		_ = ln.Close()
		return fmt.Errorf("gateway: unexpected listener type %T", ln)
	}

	lnFD := listenerFD(tcpLn)
	if lnFD < 0 {
		_ = tcpLn.Close()
		return errors.New("gateway: cannot obtain listener descriptor")
	}

	logging.Info().
		Str("component", "gateway").
		Str("addr", addr).
		Dur("tick", g.cfg.Tick).
		Msg("realtime gateway listening")

	defer g.shutdown(tcpLn)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		g.drainBridge(ctx)

		acceptReady, readable := g.pollReady(lnFD)
		if acceptReady {
			g.acceptPending(tcpLn)
		}
		for _, id := range readable {
			g.readConn(ctx, id)
		}
	}
}

// listenerFD extracts the listening socket's descriptor.
func listenerFD(ln *net.TCPListener) int {
	raw, err := ln.SyscallConn()
	if err != nil {
		return -1
	}
	fd := -1
	_ = raw.Control(func(f uintptr) { fd = int(f) })
	return fd
}

// pollReady waits up to one tick for readiness on the listener and every
// open connection. This is the loop's only blocking wait; the bounded
// timeout is what keeps the bridge drained at a steady cadence when no
// client traffic arrives.
func (g *Gateway) pollReady(lnFD int) (acceptReady bool, readable []ConnID) {
	ids := g.registry.all()

	fds := make([]unix.PollFd, 1, len(ids)+1)
	fds[0] = unix.PollFd{Fd: int32(lnFD), Events: unix.POLLIN}

	polled := make([]ConnID, 0, len(ids))
	for _, id := range ids {
		c, ok := g.registry.Get(id)
		if !ok || c.fd < 0 {
			continue
		}
		fds = append(fds, unix.PollFd{Fd: int32(c.fd), Events: unix.POLLIN})
		polled = append(polled, id)
	}

	n, err := unix.Poll(fds, int(g.cfg.Tick.Milliseconds()))
	if err != nil {
		if !errors.Is(err, unix.EINTR) {
			logging.Warn().Err(err).Msg("poll failed")
		}
		return false, nil
	}
	if n == 0 {
		return false, nil
	}

	const readyMask = unix.POLLIN | unix.POLLHUP | unix.POLLERR
	acceptReady = fds[0].Revents&readyMask != 0
	for i, id := range polled {
		if fds[i+1].Revents&readyMask != 0 {
			readable = append(readable, id)
		}
	}
	return acceptReady, readable
}

// String implements fmt.Stringer for supervisor logging.
func (g *Gateway) String() string { return "realtime-gateway" }

// shutdown closes every connection and the listener.
func (g *Gateway) shutdown(ln *net.TCPListener) {
	closed := g.registry.Len()
	for _, id := range g.registry.all() {
		g.closeConn(id, "shutdown")
	}
	_ = ln.Close()

	logging.Info().
		Str("component", "gateway").
		Int("clients_closed", closed).
		Msg("realtime gateway stopped")
}

// acceptPending accepts every connection already queued on the listener.
// The poll said the listener is readable, so at least one accept completes
// without blocking; the short deadline stops the drain once the backlog is
// empty.
func (g *Gateway) acceptPending(ln *net.TCPListener) {
	_ = ln.SetDeadline(time.Now().Add(time.Millisecond))
	for {
		sock, err := ln.Accept()
		if err != nil {
			var netErr net.Error
			if !errors.As(err, &netErr) || !netErr.Timeout() {
				logging.Warn().Err(err).Msg("accept failed")
			}
			return
		}

		c := g.registry.Add(sock)
		logging.Debug().
			Uint64("conn_id", uint64(c.id)).
			Str("remote", sock.RemoteAddr().String()).
			Int("total_connections", g.registry.Len()).
			Msg("connection accepted")
	}
}

// readConn reads one ready connection. The poll reported it readable, so
// the read returns promptly: either buffered bytes or the peer's EOF. An
// empty or failed read is the normal end of a connection's life, not an
// error condition.
func (g *Gateway) readConn(ctx context.Context, id ConnID) {
	c, ok := g.registry.Get(id)
	if !ok {
		return // removed earlier this tick
	}

	_ = c.sock.SetReadDeadline(time.Now().Add(g.cfg.Tick))
	n, err := c.sock.Read(g.readBuf)
	if err != nil || n == 0 {
		g.closeConn(id, "peer disconnected")
		return
	}

	data := g.readBuf[:n]
	if c.state == StateConnecting {
		g.handleHandshake(c, data)
	} else {
		g.handleFrame(ctx, c, data)
	}
}

// handleHandshake promotes a connecting socket to the open state. A request
// without a websocket key closes the connection; an invalid auth token does
// not, it only downgrades to unauthenticated.
func (g *Gateway) handleHandshake(c *Conn, data []byte) {
	up, err := wire.ParseUpgrade(data)
	if err != nil {
		metrics.HandshakeFailuresTotal.Inc()
		logging.Warn().Err(err).Uint64("conn_id", uint64(c.id)).Msg("handshake rejected")
		g.closeConn(c.id, "malformed handshake")
		return
	}

	if err := g.write(c, wire.Response(wire.AcceptKey(up.Key))); err != nil {
		g.closeConn(c.id, "handshake write failed")
		return
	}
	c.state = StateOpen

	if up.Token != "" && g.resolver != nil {
		userID, err := g.resolver.ResolveToken(up.Token)
		if err != nil {
			logging.Debug().Uint64("conn_id", uint64(c.id)).Msg("pre-auth token invalid, connection unauthenticated")
			return
		}
		g.registry.SetIdentity(c.id, userID)
		logging.Info().
			Uint64("conn_id", uint64(c.id)).
			Int64("user_id", userID).
			Msg("connection authenticated during handshake")
	}
}

// handleFrame decodes one frame from an open connection and dispatches the
// application event it carries. Transport errors drop the connection.
func (g *Gateway) handleFrame(ctx context.Context, c *Conn, raw []byte) {
	if raw[0]&0x0F == opcodeClose {
		g.closeConn(c.id, "close frame")
		return
	}

	text, err := wire.Decode(raw)
	if err != nil {
		metrics.FrameErrorsTotal.Inc()
		logging.Warn().Err(err).Uint64("conn_id", uint64(c.id)).Msg("dropping connection on corrupt frame")
		g.closeConn(c.id, "corrupt frame")
		return
	}

	var ev clientEvent
	if err := json.Unmarshal([]byte(text), &ev); err != nil {
		logging.Debug().Uint64("conn_id", uint64(c.id)).Msg("ignoring non-JSON payload")
		return
	}
	g.dispatch(ctx, c, &ev)
}

// dispatch routes one decoded client event.
func (g *Gateway) dispatch(ctx context.Context, c *Conn, ev *clientEvent) {
	name := ev.name()
	if name == "" {
		return
	}
	metrics.EventsTotal.WithLabelValues(name).Inc()

	switch name {
	case eventRegister:
		if userID := int64(ev.UserID); userID != 0 {
			g.registry.SetIdentity(c.id, userID)
			logging.Info().
				Uint64("conn_id", uint64(c.id)).
				Int64("user_id", userID).
				Msg("connection registered identity")
		}

	case eventJoinTeam:
		if team := string(ev.TeamID); team != "" {
			g.rooms.Join(team, c.id)
			c.rooms[team] = struct{}{}
			logging.Debug().Uint64("conn_id", uint64(c.id)).Str("team", team).Msg("joined room")
		}

	case eventLeaveTeam:
		if team := string(ev.TeamID); team != "" {
			g.rooms.Leave(team, c.id)
			delete(c.rooms, team)
			logging.Debug().Uint64("conn_id", uint64(c.id)).Str("team", team).Msg("left room")
		}

	case eventSendMessage:
		g.handleSendMessage(ctx, c, ev)

	case eventTyping:
		if team := string(ev.TeamID); team != "" {
			g.broadcastRoom(team, userTypingEvent(c.userID), c.id, eventUserTyping)
		}

	default:
		logging.Debug().Str("event", name).Msg("ignoring unknown event")
	}
}

// handleSendMessage persists the chat message via the storage collaborator
// and broadcasts the enriched record. A storage failure drops the event
// without broadcasting; the client infers failure from the missing echo.
func (g *Gateway) handleSendMessage(ctx context.Context, c *Conn, ev *clientEvent) {
	team := string(ev.TeamID)
	if team == "" || ev.Content == "" || c.userID == 0 {
		return
	}
	teamID, err := strconv.ParseInt(team, 10, 64)
	if err != nil {
		logging.Debug().Str("team", team).Msg("ignoring sendMessage with non-numeric team id")
		return
	}

	msg, err := g.store.PersistMessage(ctx, teamID, c.userID, ev.Content)
	if err != nil {
		logging.Warn().Err(err).
			Int64("team_id", teamID).
			Int64("user_id", c.userID).
			Msg("message persist failed, dropping event")
		return
	}

	g.broadcastRoom(team, newMessageEvent(msg), c.id, eventNewMessage)
}

// broadcastRoom encodes the event once and fans it out to the room,
// excluding the sender. Failed members are removed after the fan-out.
func (g *Gateway) broadcastRoom(roomID string, ev serverEvent, exclude ConnID, label string) {
	frame, err := ev.encode()
	if err != nil {
		logging.Error().Err(err).Str("event", label).Msg("encode broadcast failed")
		return
	}

	failed := g.rooms.Broadcast(roomID, frame, exclude, g.writeByID)
	for _, id := range failed {
		g.closeConn(id, "write failed")
	}
	metrics.BroadcastsTotal.WithLabelValues(label).Inc()
}

// drainBridge empties the notification queue and pushes each item to every
// open connection of its target user. Items with no connected target are
// discarded; the durable notification row already exists upstream. A lock
// timeout leaves the queue untouched for the next tick.
func (g *Gateway) drainBridge(ctx context.Context) {
	items, err := g.queue.DrainAll(ctx)
	if err != nil {
		if errors.Is(err, bridge.ErrLockTimeout) {
			logging.Warn().Msg("bridge lock contended, retrying next tick")
		} else {
			logging.Error().Err(err).Msg("bridge drain failed")
		}
		return
	}

	for _, item := range items {
		ids := g.registry.ConnectionsForUser(item.UserID)
		if len(ids) == 0 {
			logging.Debug().Int64("user_id", item.UserID).Msg("notification target offline, discarded")
			continue
		}

		frame, err := notificationEvent(item.Payload).encode()
		if err != nil {
			logging.Error().Err(err).Msg("encode notification failed")
			continue
		}

		delivered := false
		var failed []ConnID
		for _, id := range ids {
			if err := g.writeByID(id, frame); err != nil {
				failed = append(failed, id)
			} else {
				delivered = true
			}
		}
		for _, id := range failed {
			g.closeConn(id, "write failed")
		}
		if delivered {
			metrics.BridgeDeliveredTotal.Inc()
		}
	}
}

// writeByID writes an encoded frame to the connection with the given id.
func (g *Gateway) writeByID(id ConnID, frame []byte) error {
	c, ok := g.registry.Get(id)
	if !ok {
		return errors.New("gateway: connection gone")
	}
	return g.write(c, frame)
}

// write sends raw bytes with the configured write deadline.
func (g *Gateway) write(c *Conn, data []byte) error {
	_ = c.sock.SetWriteDeadline(time.Now().Add(g.cfg.WriteTimeout))
	_, err := c.sock.Write(data)
	return err
}

// closeConn removes the connection from the registry, purges it from every
// room it joined, and closes the socket. Idempotent.
func (g *Gateway) closeConn(id ConnID, reason string) {
	c := g.registry.Remove(id)
	if c == nil {
		return
	}
	g.rooms.DropConn(id, c.rooms)
	_ = c.sock.Close()

	logging.Debug().
		Uint64("conn_id", uint64(id)).
		Str("reason", reason).
		Int("total_connections", g.registry.Len()).
		Msg("connection closed")
}
