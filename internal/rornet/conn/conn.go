// Package conn drives one live connection to a RoRnet server: handshake,
// packet dispatch, heartbeat and frame clock. Game-level behavior lives in
// the client package; conn only speaks the protocol and publishes events.
package conn

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	rorerrors "github.com/alxayo/go-rornet/internal/errors"
	"github.com/alxayo/go-rornet/internal/logger"
	"github.com/alxayo/go-rornet/internal/rornet/events"
	"github.com/alxayo/go-rornet/internal/rornet/registry"
	"github.com/alxayo/go-rornet/internal/rornet/wire"
)

// Events published on the bus. Payload conventions are documented per name.
const (
	// EventConnected fires once the handshake finishes: (*wire.ServerInfo).
	EventConnected = "connected"
	// EventDisconnected fires when the connection dies: (error).
	EventDisconnected = "disconnected"
	// EventChat fires for public chat from other users: (uid uint32, msg string).
	EventChat = "chat"
	// EventPrivateChat fires for whispers addressed to the bot: (uid uint32, msg string).
	EventPrivateChat = "private_chat"
	// EventUserJoin fires when a user appears: (uid uint32, *wire.UserInfo).
	EventUserJoin = "user_join"
	// EventUserInfo fires when the server re-sends a user's info:
	// (uid uint32, *wire.UserInfo).
	EventUserInfo = "user_info"
	// EventUserLeave fires when a user leaves: (uid uint32, *registry.User).
	EventUserLeave = "user_leave"
	// EventGameCmd fires for server script commands: (uid uint32, cmd string).
	EventGameCmd = "game_cmd"
	// EventNetQuality fires when the reported link quality changes:
	// (quality uint32).
	EventNetQuality = "net_quality"
	// EventStreamRegister fires for every foreign stream register:
	// (uid uint32, *wire.StreamRegister).
	EventStreamRegister = "stream_register"
	// EventStreamRegisterResult fires when a peer acknowledges a register:
	// (uid uint32, *wire.StreamRegister).
	EventStreamRegisterResult = "stream_register_result"
	// EventStreamData fires for foreign stream payloads:
	// (uid uint32, *wire.StreamRegister, wire.StreamData). The data is nil
	// for chat and AI streams, whose payloads stay opaque.
	EventStreamData = "stream_data"
	// EventStreamUnregister fires when a peer withdraws a stream:
	// (uid uint32, sid uint32).
	EventStreamUnregister = "stream_unregister"
	// EventFrameStep fires on the frame clock: (dt float64 seconds).
	EventFrameStep = "frame_step"
)

const (
	// Stream ids below 10 are reserved for the server; client allocation
	// starts above them.
	firstClientStreamID = 10

	frameClockTick     = 10 * time.Millisecond
	frameStepInterval  = 50 * time.Millisecond
	heartbeatTick      = 100 * time.Millisecond
	privateChatPayload = 8000
)

// DefaultHeartbeatInterval is how often the bot re-broadcasts its character
// position when Options leave it unset.
const DefaultHeartbeatInterval = time.Second

// Options configure one connection.
type Options struct {
	// Addr is the host:port of the server.
	Addr string
	// User carries the identity offered in the handshake: Username,
	// UserToken, ServerPassword (already hashed), Language, ClientName,
	// ClientVersion, ClientGUID, SessionType.
	User wire.UserInfo
	// Bus receives every protocol event. Required.
	Bus *events.Bus
	// Registry tracks users and streams. Required.
	Registry *registry.Registry
	// HeartbeatInterval throttles position broadcasts.
	HeartbeatInterval time.Duration
	// Log defaults to the package logger.
	Log *slog.Logger
}

// Conn is one live server connection. Create with Connect, run with Run.
type Conn struct {
	addr string
	bus  *events.Bus
	reg  *registry.Registry
	log  *slog.Logger

	netConn net.Conn
	fr      *wire.FrameReader
	fw      *wire.FrameWriter

	heartbeatInterval time.Duration
	connectedAt       time.Time

	mu         sync.Mutex
	uid        uint32
	serverInfo *wire.ServerInfo
	nextSID    uint32
	chatSID    uint32
	charSID    uint32
	netQuality uint32

	closeOnce sync.Once
	leaveOnce sync.Once
}

// Connect dials the server and completes the full handshake: HELLO exchange,
// USER_INFO / WELCOME, then registration of the bot's chat and character
// streams. The returned connection is ready for Run.
func Connect(ctx context.Context, opts Options) (*Conn, error) {
	var d net.Dialer
	netConn, err := d.DialContext(ctx, "tcp", opts.Addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", opts.Addr, err)
	}
	return NewSession(netConn, opts)
}

// NewSession completes the handshake over an established transport. Most
// callers want Connect; this entry point serves custom transports.
func NewSession(netConn net.Conn, opts Options) (*Conn, error) {
	log := opts.Log
	if log == nil {
		log = logger.Logger()
	}
	log = logger.WithServer(log, opts.Addr)

	interval := opts.HeartbeatInterval
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	return newConn(netConn, opts, log, interval)
}

// newConn completes the handshake over an established transport.
func newConn(netConn net.Conn, opts Options, log *slog.Logger, interval time.Duration) (*Conn, error) {
	c := &Conn{
		addr:              opts.Addr,
		bus:               opts.Bus,
		reg:               opts.Registry,
		log:               log,
		netConn:           netConn,
		fr:                wire.NewFrameReader(netConn),
		fw:                wire.NewFrameWriter(netConn),
		heartbeatInterval: interval,
		nextSID:           firstClientStreamID,
	}
	if err := c.handshake(&opts.User); err != nil {
		netConn.Close()
		return nil, err
	}
	return c, nil
}

func (c *Conn) handshake(user *wire.UserInfo) error {
	if err := c.send(wire.MsgHello, 0, 0, []byte(wire.ProtocolVersion)); err != nil {
		return err
	}
	p, err := c.fr.ReadPacket()
	if err != nil {
		return err
	}
	if err := refusal(p); err != nil {
		return err
	}
	if p.Type != wire.MsgHello {
		return rorerrors.NewProtocolError("handshake",
			fmt.Errorf("expected HELLO reply, got %s", p.Type))
	}
	info, err := wire.DecodeServerInfo(p.Payload)
	if err != nil {
		return err
	}
	c.serverInfo = info
	c.log.Info("server hello",
		"server_name", info.ServerName,
		"terrain", info.TerrainName,
		"protocol", info.ProtocolVersion,
		"has_password", info.HasPassword)

	raw, err := user.Encode()
	if err != nil {
		return err
	}
	if err := c.send(wire.MsgUserInfo, 0, 0, raw); err != nil {
		return err
	}
	p, err = c.fr.ReadPacket()
	if err != nil {
		return err
	}
	if err := refusal(p); err != nil {
		return err
	}
	if p.Type != wire.MsgWelcome {
		return rorerrors.NewProtocolError("handshake",
			fmt.Errorf("expected WELCOME, got %s", p.Type))
	}
	assigned, err := wire.DecodeUserInfo(p.Payload)
	if err != nil {
		return err
	}
	c.uid = assigned.UniqueID
	c.connectedAt = time.Now()
	c.log = logger.WithUser(c.log, assigned.UniqueID, assigned.Username)
	c.log.Info("welcome", "color_num", assigned.ColorNum, "auth", uint32(assigned.AuthStatus))

	if _, err := c.reg.AddUser(assigned); err != nil {
		return err
	}

	chatSID, err := c.RegisterStream(wire.NewChatStreamRegister())
	if err != nil {
		return err
	}
	charSID, err := c.RegisterStream(wire.NewCharacterStreamRegister())
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.chatSID = chatSID
	c.charSID = charSID
	c.mu.Unlock()

	c.bus.Emit(EventConnected, info)
	return nil
}

// refusal maps the four rejection replies to a RefusalError.
func refusal(p *wire.Packet) error {
	var reason string
	switch p.Type {
	case wire.MsgServerFull:
		reason = "server is full"
	case wire.MsgWrongPassword:
		reason = "wrong password"
	case wire.MsgWrongVersion:
		reason = "protocol version rejected"
	case wire.MsgBanned:
		reason = "banned from this server"
	default:
		return nil
	}
	return rorerrors.NewRefusalError(uint32(p.Type), reason)
}

// UID returns the server-assigned uid, valid after Connect.
func (c *Conn) UID() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uid
}

// ServerInfo returns the handshake server info.
func (c *Conn) ServerInfo() *wire.ServerInfo { return c.serverInfo }

// ChatStreamID returns the bot's own chat stream id.
func (c *Conn) ChatStreamID() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chatSID
}

// CharacterStreamID returns the bot's own character stream id.
func (c *Conn) CharacterStreamID() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.charSID
}

// Position returns the bot's current character position. The pose lives on
// the character stream register like everyone else's.
func (c *Conn) Position() wire.Vector3 {
	c.mu.Lock()
	uid, sid := c.uid, c.charSID
	c.mu.Unlock()
	pos, _ := c.reg.Position(uid, sid)
	return pos
}

// Rotation returns the bot's current heading in radians.
func (c *Conn) Rotation() float32 {
	c.mu.Lock()
	uid, sid := c.uid, c.charSID
	c.mu.Unlock()
	rot, _ := c.reg.Rotation(uid, sid)
	return rot
}

// Close tears the connection down. Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.netConn.Close()
	})
	return err
}
