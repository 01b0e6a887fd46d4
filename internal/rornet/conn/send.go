package conn

import (
	"encoding/binary"
	"fmt"
	"time"

	rorerrors "github.com/alxayo/go-rornet/internal/errors"
	"github.com/alxayo/go-rornet/internal/rornet/wire"
)

// send frames and writes one packet.
func (c *Conn) send(t wire.MessageType, source, streamID uint32, payload []byte) error {
	return c.fw.WritePacket(wire.NewPacket(t, source, streamID, payload))
}

// SendChat broadcasts a public chat line on the bot's chat stream.
func (c *Conn) SendChat(msg string) error {
	c.mu.Lock()
	uid, sid := c.uid, c.chatSID
	c.mu.Unlock()
	return c.send(wire.MsgChat, uid, sid, []byte(msg))
}

// SendPrivateChat whispers to one user. The payload is the target uid
// followed by the message NUL-padded to the fixed whisper width.
func (c *Conn) SendPrivateChat(target uint32, msg string) error {
	if len(msg) > privateChatPayload {
		return rorerrors.NewProtocolError("private_chat",
			fmt.Errorf("message length %d exceeds %d", len(msg), privateChatPayload))
	}
	payload := make([]byte, 4+privateChatPayload)
	binary.LittleEndian.PutUint32(payload[:4], target)
	copy(payload[4:], msg)
	c.mu.Lock()
	uid, sid := c.uid, c.chatSID
	c.mu.Unlock()
	return c.send(wire.MsgPrivateChat, uid, sid, payload)
}

// SendGameCmd sends a script command to the server. Game commands always
// travel on stream 0.
func (c *Conn) SendGameCmd(cmd string) error {
	c.mu.Lock()
	uid := c.uid
	c.mu.Unlock()
	return c.send(wire.MsgGameCmd, uid, 0, []byte(cmd))
}

// RegisterStream announces a new local stream and returns its assigned id.
// Ids start above the reserved range and only grow; actor registers go out
// with the sentinel timestamp the game clients expect.
func (c *Conn) RegisterStream(reg *wire.StreamRegister) (uint32, error) {
	c.mu.Lock()
	sid := c.nextSID
	c.nextSID++
	reg.OriginSourceID = c.uid
	reg.OriginStreamID = sid
	uid := c.uid
	c.mu.Unlock()

	if reg.Type == wire.StreamTypeActor {
		reg.Timestamp = -1
	}
	raw, err := reg.Encode()
	if err != nil {
		return 0, err
	}
	if err := c.send(wire.MsgStreamRegister, uid, sid, raw); err != nil {
		return 0, err
	}
	if err := c.reg.AddStream(uid, reg); err != nil {
		return 0, err
	}
	c.log.Debug("stream registered", "stream_id", sid, "type", reg.Type.String(), "name", reg.Name)
	return sid, nil
}

// UnregisterStream withdraws a local stream. The packet carries no payload.
func (c *Conn) UnregisterStream(sid uint32) error {
	c.mu.Lock()
	uid := c.uid
	c.mu.Unlock()
	if err := c.send(wire.MsgStreamUnregister, uid, sid, nil); err != nil {
		return err
	}
	return c.reg.RemoveStream(uid, sid)
}

// ReplyToStreamRegister acknowledges a foreign actor register with the given
// status. The reply echoes the register record with only Status changed.
func (c *Conn) ReplyToStreamRegister(reg *wire.StreamRegister, status wire.ActorStreamStatus) error {
	reply := *reg
	reply.Status = int32(status)
	raw, err := reply.Encode()
	if err != nil {
		return err
	}
	c.mu.Lock()
	uid := c.uid
	c.mu.Unlock()
	return c.send(wire.MsgStreamRegisterResult, uid, reg.OriginStreamID, raw)
}

// SendStreamData publishes a payload on one of the bot's streams.
func (c *Conn) SendStreamData(sid uint32, data wire.StreamData) error {
	raw, err := data.Encode()
	if err != nil {
		return err
	}
	c.mu.Lock()
	uid := c.uid
	c.mu.Unlock()
	return c.send(wire.MsgStreamData, uid, sid, raw)
}

// SendActorStreamData publishes actor state with Time restamped to
// milliseconds since the connection came up.
func (c *Conn) SendActorStreamData(sid uint32, data *wire.ActorStreamData) error {
	data.Time = int32(time.Since(c.connectedAt) / time.Millisecond)
	return c.SendStreamData(sid, data)
}

// sendCharacterPosition broadcasts the bot's current pose on its character
// stream. animTime is the seconds of animation the receiver should advance;
// the heartbeat passes its accumulated delta, immediate sends pass zero.
func (c *Conn) sendCharacterPosition(animTime float32) error {
	c.mu.Lock()
	uid, sid := c.uid, c.charSID
	c.mu.Unlock()
	pos, err := c.reg.Position(uid, sid)
	if err != nil {
		return err
	}
	rot, err := c.reg.Rotation(uid, sid)
	if err != nil {
		return err
	}
	return c.SendStreamData(sid, &wire.CharacterPositionStreamData{
		Command:       wire.CharacterPosition,
		Position:      pos,
		Rotation:      rot,
		AnimationTime: animTime,
		AnimationMode: wire.AnimIdleSway,
	})
}

// MoveBot teleports the bot's character and broadcasts the new pose. The move
// bypasses the odometers; a scripted jump is not distance traveled.
func (c *Conn) MoveBot(pos wire.Vector3) error {
	c.mu.Lock()
	uid, sid := c.uid, c.charSID
	c.mu.Unlock()
	if err := c.reg.MoveStream(uid, sid, pos); err != nil {
		return err
	}
	return c.sendCharacterPosition(0)
}

// RotateBot turns the bot's character and broadcasts the new pose.
func (c *Conn) RotateBot(rot float32) error {
	c.mu.Lock()
	uid, sid := c.uid, c.charSID
	c.mu.Unlock()
	if err := c.reg.SetRotation(uid, sid, rot); err != nil {
		return err
	}
	return c.sendCharacterPosition(0)
}

// sendUserLeave tells the server we are going away on purpose. At most one
// notice goes out per connection.
func (c *Conn) sendUserLeave() {
	c.leaveOnce.Do(func() {
		c.mu.Lock()
		uid := c.uid
		c.mu.Unlock()
		c.send(wire.MsgUserLeave, uid, 0, []byte("disconnect"))
	})
}
