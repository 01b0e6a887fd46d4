package conn

import (
	"encoding/binary"
	"fmt"
	"strings"

	rorerrors "github.com/alxayo/go-rornet/internal/errors"
	"github.com/alxayo/go-rornet/internal/rornet/wire"
)

// handlePacket routes one inbound packet. A non-nil return is fatal to the
// session: decode failures, protocol violations and registry inconsistencies
// all mean we can no longer trust the stream. Only STREAM_DATA lookups are
// forgiven, since data can legitimately race the register.
func (c *Conn) handlePacket(p *wire.Packet) error {
	switch p.Type {
	case wire.MsgNetQuality:
		return c.handleNetQuality(p)
	case wire.MsgUserJoin:
		return c.handleUserJoin(p)
	case wire.MsgUserInfo:
		return c.handleUserInfo(p)
	case wire.MsgUserLeave:
		return c.handleUserLeave(p)
	case wire.MsgChat:
		return c.handleChat(p)
	case wire.MsgPrivateChat:
		return c.handlePrivateChat(p)
	case wire.MsgGameCmd:
		return c.handleGameCmd(p)
	case wire.MsgStreamRegister:
		return c.handleStreamRegister(p)
	case wire.MsgStreamRegisterResult:
		return c.handleStreamRegisterResult(p)
	case wire.MsgStreamUnregister:
		return c.handleStreamUnregister(p)
	case wire.MsgStreamData, wire.MsgStreamDataDiscardable:
		return c.handleStreamData(p)
	case wire.MsgUserInfoLegacy:
		c.log.Warn("server speaks a pre-2.3 protocol", "source", p.Source)
		return nil
	default:
		c.log.Warn("unhandled packet", "type", p.Type.String(), "source", p.Source)
		return nil
	}
}

// handleNetQuality stores the link quality and publishes it, but only when
// the value actually moved; the server repeats it on a timer.
func (c *Conn) handleNetQuality(p *wire.Packet) error {
	if len(p.Payload) < 4 {
		return rorerrors.NewDecodeError("net_quality",
			fmt.Errorf("payload %d bytes, want 4", len(p.Payload)))
	}
	quality := binary.LittleEndian.Uint32(p.Payload[:4])
	c.mu.Lock()
	changed := quality != c.netQuality
	c.netQuality = quality
	c.mu.Unlock()
	if changed {
		c.bus.Emit(EventNetQuality, quality)
	}
	return nil
}

func (c *Conn) handleUserJoin(p *wire.Packet) error {
	if p.Source == c.UID() {
		return nil
	}
	info, err := wire.DecodeUserInfo(p.Payload)
	if err != nil {
		return err
	}
	info.UniqueID = p.Source
	if _, err := c.reg.AddUser(info); err != nil {
		return err
	}
	c.log.Info("user joined", "source", p.Source, "username", info.Username)
	c.bus.Emit(EventUserJoin, p.Source, info)
	return nil
}

func (c *Conn) handleUserInfo(p *wire.Packet) error {
	info, err := wire.DecodeUserInfo(p.Payload)
	if err != nil {
		return err
	}
	info.UniqueID = p.Source
	if err := c.reg.UpdateUser(info); err != nil {
		return err
	}
	c.bus.Emit(EventUserInfo, p.Source, info)
	return nil
}

func (c *Conn) handleUserLeave(p *wire.Packet) error {
	reason := strings.TrimRight(string(p.Payload), "\x00")
	// Our own uid here is the server kicking us (or acknowledging a quit):
	// the session is over.
	if p.Source == c.UID() {
		c.log.Info("server closed our session", "reason", reason)
		return rorerrors.NewDisconnectedError("server sent leave: " + reason)
	}
	u, err := c.reg.RemoveUser(p.Source)
	if err != nil {
		return err
	}
	c.log.Info("user left", "source", p.Source, "username", u.Info.Username, "reason", reason)
	c.bus.Emit(EventUserLeave, p.Source, u)
	return nil
}

func (c *Conn) handleChat(p *wire.Packet) error {
	// The server echoes our own lines back; acting on them would loop.
	if p.Source == c.UID() {
		return nil
	}
	msg := strings.TrimRight(string(p.Payload), "\x00")
	if msg == "" {
		return nil
	}
	c.bus.Emit(EventChat, p.Source, msg)
	return nil
}

func (c *Conn) handlePrivateChat(p *wire.Packet) error {
	if p.Source == c.UID() {
		return nil
	}
	msg := strings.TrimRight(string(p.Payload), "\x00")
	if msg == "" {
		return nil
	}
	c.bus.Emit(EventPrivateChat, p.Source, msg)
	return nil
}

func (c *Conn) handleGameCmd(p *wire.Packet) error {
	if p.Source == c.UID() {
		return nil
	}
	cmd := strings.TrimRight(string(p.Payload), "\x00")
	c.bus.Emit(EventGameCmd, p.Source, cmd)
	return nil
}

func (c *Conn) handleStreamRegister(p *wire.Packet) error {
	reg, err := wire.DecodeStreamRegister(p.Payload)
	if err != nil {
		return err
	}
	if err := c.reg.AddStream(p.Source, reg); err != nil {
		return err
	}
	c.log.Debug("stream registered",
		"source", p.Source,
		"stream_id", reg.OriginStreamID,
		"type", reg.Type.String(),
		"name", reg.Name)
	// Actor registers expect an acknowledgement from every client.
	if reg.Type == wire.StreamTypeActor {
		if err := c.ReplyToStreamRegister(reg, wire.ActorStreamSuccess); err != nil {
			return err
		}
	}
	c.bus.Emit(EventStreamRegister, p.Source, reg)
	return nil
}

func (c *Conn) handleStreamRegisterResult(p *wire.Packet) error {
	reg, err := wire.DecodeStreamRegister(p.Payload)
	if err != nil {
		return err
	}
	c.log.Debug("stream register result",
		"source", p.Source,
		"stream_id", reg.OriginStreamID,
		"status", reg.Status)
	c.bus.Emit(EventStreamRegisterResult, p.Source, reg)
	return nil
}

func (c *Conn) handleStreamUnregister(p *wire.Packet) error {
	if len(p.Payload) != 0 {
		return rorerrors.NewProtocolError("stream_unregister",
			fmt.Errorf("payload %d bytes, want none", len(p.Payload)))
	}
	if err := c.reg.RemoveStream(p.Source, p.StreamID); err != nil {
		return err
	}
	c.log.Debug("stream unregistered", "source", p.Source, "stream_id", p.StreamID)
	c.bus.Emit(EventStreamUnregister, p.Source, p.StreamID)
	return nil
}

func (c *Conn) handleStreamData(p *wire.Packet) error {
	if p.Source == c.UID() {
		return nil
	}
	stream, err := c.reg.GetStream(p.Source, p.StreamID)
	if err != nil {
		// Data can race the register when we joined mid-session; drop
		// quietly until the register shows up.
		c.log.Debug("data for unknown stream", "source", p.Source, "stream_id", p.StreamID)
		return nil
	}

	var data wire.StreamData
	switch stream.Type {
	case wire.StreamTypeChat, wire.StreamTypeAI:
		// Opaque payload; published so listeners can see the traffic.
	default:
		if data, err = wire.DecodeStreamData(stream.Type, p.Payload); err != nil {
			return err
		}
	}

	switch d := data.(type) {
	case *wire.CharacterPositionStreamData:
		if err := c.reg.SetPosition(p.Source, p.StreamID, d.Position); err != nil {
			return err
		}
		if err := c.reg.SetRotation(p.Source, p.StreamID, d.Rotation); err != nil {
			return err
		}
		if err := c.reg.SetCurrentStream(p.Source, p.Source, p.StreamID); err != nil {
			return err
		}
	case *wire.CharacterAttachStreamData:
		if err := c.reg.SetCurrentStream(p.Source, d.SourceID, d.StreamID); err != nil {
			return err
		}
	case *wire.ActorStreamData:
		if err := c.reg.SetPosition(p.Source, p.StreamID, d.Position); err != nil {
			return err
		}
		if err := c.reg.SetCurrentStream(p.Source, p.Source, p.StreamID); err != nil {
			return err
		}
	}
	c.bus.Emit(EventStreamData, p.Source, stream, data)
	return nil
}
