package conn

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rorerrors "github.com/alxayo/go-rornet/internal/errors"
	"github.com/alxayo/go-rornet/internal/logger"
	"github.com/alxayo/go-rornet/internal/rornet/events"
	"github.com/alxayo/go-rornet/internal/rornet/registry"
	"github.com/alxayo/go-rornet/internal/rornet/wire"
)

const testUID = 27

// fakeServer scripts the server side of a net.Pipe connection.
type fakeServer struct {
	t  *testing.T
	fr *wire.FrameReader
	fw *wire.FrameWriter
}

func newFakeServer(t *testing.T, c net.Conn) *fakeServer {
	return &fakeServer{t: t, fr: wire.NewFrameReader(c), fw: wire.NewFrameWriter(c)}
}

func (s *fakeServer) read() *wire.Packet {
	p, err := s.fr.ReadPacket()
	require.NoError(s.t, err)
	return p
}

func (s *fakeServer) write(t wire.MessageType, source, sid uint32, payload []byte) {
	require.NoError(s.t, s.fw.WritePacket(wire.NewPacket(t, source, sid, payload)))
}

// handshake plays the accepting side and consumes the bot's two stream
// registers.
func (s *fakeServer) handshake() {
	hello := s.read()
	require.Equal(s.t, wire.MsgHello, hello.Type)
	require.Equal(s.t, wire.ProtocolVersion, string(hello.Payload))

	info := &wire.ServerInfo{
		ProtocolVersion: wire.ProtocolVersion,
		ServerName:      "test server",
		TerrainName:     "any.terrn2",
	}
	raw, err := info.Encode()
	require.NoError(s.t, err)
	s.write(wire.MsgHello, 0, 0, raw)

	userInfo := s.read()
	require.Equal(s.t, wire.MsgUserInfo, userInfo.Type)
	offered, err := wire.DecodeUserInfo(userInfo.Payload)
	require.NoError(s.t, err)
	offered.UniqueID = testUID
	offered.ColorNum = 2
	raw, err = offered.Encode()
	require.NoError(s.t, err)
	s.write(wire.MsgWelcome, 0, 0, raw)

	chat := s.read()
	require.Equal(s.t, wire.MsgStreamRegister, chat.Type)
	char := s.read()
	require.Equal(s.t, wire.MsgStreamRegister, char.Type)
}

func dialTestConn(t *testing.T) (*Conn, *fakeServer, *events.Bus, *registry.Registry) {
	t.Helper()
	clientSide, serverSide := net.Pipe()
	srv := newFakeServer(t, serverSide)
	bus := events.NewBus()
	reg := registry.New()

	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.handshake()
	}()

	c, err := newConn(clientSide, Options{
		Addr: "test:12000",
		User: wire.UserInfo{
			Username:      "testbot",
			AuthStatus:    wire.AuthBot,
			SlotNum:       -2,
			ColorNum:      -1,
			ClientVersion: wire.ProtocolVersion,
		},
		Bus:      bus,
		Registry: reg,
	}, logger.Logger(), DefaultHeartbeatInterval)
	require.NoError(t, err)
	<-done
	t.Cleanup(func() { c.Close(); serverSide.Close() })
	return c, srv, bus, reg
}

func TestHandshake(t *testing.T) {
	bus := events.NewBus()
	var connected *wire.ServerInfo
	bus.On(EventConnected, func(args ...any) { connected = args[0].(*wire.ServerInfo) })

	clientSide, serverSide := net.Pipe()
	srv := newFakeServer(t, serverSide)
	reg := registry.New()
	go srv.handshake()

	c, err := newConn(clientSide, Options{
		Addr:     "test:12000",
		User:     wire.UserInfo{Username: "testbot"},
		Bus:      bus,
		Registry: reg,
	}, logger.Logger(), DefaultHeartbeatInterval)
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, uint32(testUID), c.UID())
	assert.Equal(t, uint32(10), c.ChatStreamID())
	assert.Equal(t, uint32(11), c.CharacterStreamID())
	require.NotNil(t, connected)
	assert.Equal(t, "test server", connected.ServerName)

	// The bot registered itself and its two streams.
	u, err := reg.GetUser(testUID)
	require.NoError(t, err)
	assert.Equal(t, "testbot", u.Info.Username)
	assert.Equal(t, int32(10), u.ChatStreamID)
	assert.Equal(t, int32(11), u.CharacterStreamID)
}

func TestHandshakeRefusal(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	srv := newFakeServer(t, serverSide)
	go func() {
		hello := srv.read()
		require.Equal(t, wire.MsgHello, hello.Type)
		srv.write(wire.MsgWrongPassword, 0, 0, []byte("bad password"))
	}()

	_, err := newConn(clientSide, Options{
		Addr:     "test:12000",
		User:     wire.UserInfo{Username: "testbot"},
		Bus:      events.NewBus(),
		Registry: registry.New(),
	}, logger.Logger(), DefaultHeartbeatInterval)
	require.Error(t, err)
	assert.True(t, rorerrors.IsRefusal(err))
}

func joinUser(t *testing.T, c *Conn, uid uint32, name string) {
	t.Helper()
	info := &wire.UserInfo{Username: name}
	raw, err := info.Encode()
	require.NoError(t, err)
	require.NoError(t, c.handlePacket(wire.NewPacket(wire.MsgUserJoin, uid, 0, raw)))
}

func TestDispatchUserLifecycle(t *testing.T) {
	c, _, bus, reg := dialTestConn(t)

	var joined, left []string
	bus.On(EventUserJoin, func(args ...any) {
		joined = append(joined, args[1].(*wire.UserInfo).Username)
	})
	bus.On(EventUserLeave, func(args ...any) {
		left = append(left, args[1].(*registry.User).Info.Username)
	})

	joinUser(t, c, 40, "alice")
	assert.Equal(t, []string{"alice"}, joined)
	assert.True(t, reg.Has(40))

	require.NoError(t, c.handlePacket(wire.NewPacket(wire.MsgUserLeave, 40, 0, []byte("left the game"))))
	assert.Equal(t, []string{"alice"}, left)
	assert.False(t, reg.Has(40))

	// A leave for a user we never saw is a registry inconsistency.
	err := c.handlePacket(wire.NewPacket(wire.MsgUserLeave, 99, 0, nil))
	assert.ErrorIs(t, err, registry.ErrUserNotFound)
}

func TestDispatchSelfLeaveEndsSession(t *testing.T) {
	c, _, _, _ := dialTestConn(t)

	err := c.handlePacket(wire.NewPacket(wire.MsgUserLeave, testUID, 0, []byte("kicked")))
	require.Error(t, err)
	assert.True(t, rorerrors.IsDisconnected(err))
}

func TestDispatchUserInfoUpsertsAndEmits(t *testing.T) {
	c, _, bus, reg := dialTestConn(t)

	var updates []string
	bus.On(EventUserInfo, func(args ...any) {
		updates = append(updates, args[1].(*wire.UserInfo).Username)
	})

	// USER_INFO for a user whose join we missed creates it.
	info := &wire.UserInfo{Username: "late", ColorNum: 3}
	raw, err := info.Encode()
	require.NoError(t, err)
	require.NoError(t, c.handlePacket(wire.NewPacket(wire.MsgUserInfo, 55, 0, raw)))
	assert.True(t, reg.Has(55))

	info.AuthStatus = wire.AuthMod
	raw, err = info.Encode()
	require.NoError(t, err)
	require.NoError(t, c.handlePacket(wire.NewPacket(wire.MsgUserInfo, 55, 0, raw)))

	u, err := reg.GetUser(55)
	require.NoError(t, err)
	assert.Equal(t, wire.AuthMod, u.Info.AuthStatus)
	assert.Equal(t, []string{"late", "late"}, updates)
}

func TestDispatchChatEchoSuppression(t *testing.T) {
	c, _, bus, _ := dialTestConn(t)

	var msgs []string
	bus.On(EventChat, func(args ...any) { msgs = append(msgs, args[1].(string)) })

	require.NoError(t, c.handlePacket(wire.NewPacket(wire.MsgChat, 40, 0, []byte("hello"))))
	require.NoError(t, c.handlePacket(wire.NewPacket(wire.MsgChat, testUID, 0, []byte("my own echo"))))
	require.NoError(t, c.handlePacket(wire.NewPacket(wire.MsgChat, 40, 0, []byte("again\x00\x00"))))

	assert.Equal(t, []string{"hello", "again"}, msgs)
}

func TestDispatchGameCmd(t *testing.T) {
	c, _, bus, _ := dialTestConn(t)

	var cmds []string
	bus.On(EventGameCmd, func(args ...any) {
		assert.Equal(t, uint32(40), args[0].(uint32))
		cmds = append(cmds, args[1].(string))
	})

	require.NoError(t, c.handlePacket(wire.NewPacket(wire.MsgGameCmd, 40, 0, []byte("race:start\x00"))))
	require.NoError(t, c.handlePacket(wire.NewPacket(wire.MsgGameCmd, testUID, 0, []byte("own echo"))))

	assert.Equal(t, []string{"race:start"}, cmds)
}

func TestDispatchNetQualityEmitsOnChange(t *testing.T) {
	c, _, bus, _ := dialTestConn(t)

	var seen []uint32
	bus.On(EventNetQuality, func(args ...any) { seen = append(seen, args[0].(uint32)) })

	send := func(q uint32) {
		payload := make([]byte, 4)
		binary.LittleEndian.PutUint32(payload, q)
		require.NoError(t, c.handlePacket(wire.NewPacket(wire.MsgNetQuality, 0, 0, payload)))
	}
	send(1)
	send(1)
	send(1)
	send(0)

	assert.Equal(t, []uint32{1, 0}, seen)

	err := c.handlePacket(wire.NewPacket(wire.MsgNetQuality, 0, 0, []byte{1, 2}))
	assert.True(t, rorerrors.IsDecodeError(err))
}

func TestDispatchActorRegisterAutoReply(t *testing.T) {
	c, srv, _, reg := dialTestConn(t)
	joinUser(t, c, 40, "alice")

	actorReg := &wire.StreamRegister{
		Type:           wire.StreamTypeActor,
		OriginSourceID: 40,
		OriginStreamID: 12,
		Name:           "semi.truck",
	}
	raw, err := actorReg.Encode()
	require.NoError(t, err)

	replies := make(chan *wire.Packet, 1)
	go func() { replies <- srv.read() }()
	require.NoError(t, c.handlePacket(wire.NewPacket(wire.MsgStreamRegister, 40, 12, raw)))

	select {
	case reply := <-replies:
		assert.Equal(t, wire.MsgStreamRegisterResult, reply.Type)
		assert.Equal(t, uint32(testUID), reply.Source)
		decoded, err := wire.DecodeStreamRegister(reply.Payload)
		require.NoError(t, err)
		assert.Equal(t, int32(wire.ActorStreamSuccess), decoded.Status)
	case <-time.After(time.Second):
		t.Fatal("no register reply")
	}

	stream, err := reg.GetStream(40, 12)
	require.NoError(t, err)
	assert.Equal(t, wire.ActorTruck, stream.ActorType)
}

func TestDispatchStreamRegisterResultEmits(t *testing.T) {
	c, _, bus, _ := dialTestConn(t)

	var status int32
	bus.On(EventStreamRegisterResult, func(args ...any) {
		assert.Equal(t, uint32(40), args[0].(uint32))
		status = args[1].(*wire.StreamRegister).Status
	})

	ack := &wire.StreamRegister{
		Type:           wire.StreamTypeActor,
		Status:         int32(wire.ActorStreamSuccess),
		OriginSourceID: testUID,
		OriginStreamID: 12,
		Name:           "semi.truck",
	}
	raw, err := ack.Encode()
	require.NoError(t, err)
	require.NoError(t, c.handlePacket(wire.NewPacket(wire.MsgStreamRegisterResult, 40, 12, raw)))
	assert.Equal(t, int32(wire.ActorStreamSuccess), status)
}

func TestDispatchStreamUnregister(t *testing.T) {
	c, _, bus, reg := dialTestConn(t)
	joinUser(t, c, 40, "alice")

	charReg := &wire.StreamRegister{
		Type:           wire.StreamTypeCharacter,
		OriginSourceID: 40,
		OriginStreamID: 11,
		Name:           wire.CharacterStreamName,
	}
	raw, err := charReg.Encode()
	require.NoError(t, err)
	require.NoError(t, c.handlePacket(wire.NewPacket(wire.MsgStreamRegister, 40, 11, raw)))

	var gone []uint32
	bus.On(EventStreamUnregister, func(args ...any) {
		assert.Equal(t, uint32(40), args[0].(uint32))
		gone = append(gone, args[1].(uint32))
	})

	require.NoError(t, c.handlePacket(wire.NewPacket(wire.MsgStreamUnregister, 40, 11, nil)))
	assert.Equal(t, []uint32{11}, gone)
	_, err = reg.GetStream(40, 11)
	assert.ErrorIs(t, err, registry.ErrStreamNotFound)

	// The unregister packet never carries a payload.
	err = c.handlePacket(wire.NewPacket(wire.MsgStreamUnregister, 40, 11, []byte{0}))
	require.Error(t, err)
	assert.True(t, rorerrors.IsProtocolError(err))
}

func TestDispatchStreamDataUnknownStreamDropped(t *testing.T) {
	c, _, bus, _ := dialTestConn(t)

	fired := false
	bus.On(EventStreamData, func(args ...any) { fired = true })
	require.NoError(t, c.handlePacket(wire.NewPacket(wire.MsgStreamData, 40, 99, []byte{1, 2, 3, 4})))
	assert.False(t, fired)
}

func registerCharacterStream(t *testing.T, c *Conn, uid, sid uint32) {
	t.Helper()
	charReg := &wire.StreamRegister{
		Type:           wire.StreamTypeCharacter,
		OriginSourceID: uid,
		OriginStreamID: sid,
		Name:           wire.CharacterStreamName,
	}
	raw, err := charReg.Encode()
	require.NoError(t, err)
	require.NoError(t, c.handlePacket(wire.NewPacket(wire.MsgStreamRegister, uid, sid, raw)))
}

func sendCharacterPose(t *testing.T, c *Conn, uid, sid uint32, pos wire.Vector3, rot float32) {
	t.Helper()
	pose := &wire.CharacterPositionStreamData{
		Command:       wire.CharacterPosition,
		Position:      pos,
		Rotation:      rot,
		AnimationMode: wire.AnimWalk,
	}
	raw, err := pose.Encode()
	require.NoError(t, err)
	require.NoError(t, c.handlePacket(wire.NewPacket(wire.MsgStreamData, uid, sid, raw)))
}

func TestDispatchCharacterPositionUpdatesRegistry(t *testing.T) {
	c, _, _, reg := dialTestConn(t)
	joinUser(t, c, 40, "alice")
	registerCharacterStream(t, c, 40, 11)

	// Seed pose, a real move, then sub-meter jitter.
	sendCharacterPose(t, c, 40, 11, wire.Vector3{X: 50, Y: 1, Z: 50}, 0.5)
	sendCharacterPose(t, c, 40, 11, wire.Vector3{X: 53, Y: 5, Z: 50}, 0.7)
	sendCharacterPose(t, c, 40, 11, wire.Vector3{X: 53.2, Y: 5, Z: 50}, 0.7)

	pos, err := reg.Position(40, 11)
	require.NoError(t, err)
	assert.Equal(t, wire.Vector3{X: 53, Y: 5, Z: 50}, pos)
	rot, err := reg.Rotation(40, 11)
	require.NoError(t, err)
	assert.Equal(t, float32(0.7), rot)

	ref, ok := reg.CurrentStream(40)
	require.True(t, ok)
	assert.Equal(t, registry.StreamRef{Source: 40, StreamID: 11}, ref)

	u, err := reg.GetUser(40)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, u.Stats.MetersWalked, 1e-6)
}

func TestDispatchCharacterAttachPointsAtActor(t *testing.T) {
	c, _, _, reg := dialTestConn(t)
	joinUser(t, c, 40, "driver")
	joinUser(t, c, 41, "passenger")
	registerCharacterStream(t, c, 41, 11)

	// The passenger climbs into the driver's actor stream.
	attach := &wire.CharacterAttachStreamData{
		Command:  wire.CharacterAttach,
		SourceID: 40,
		StreamID: 12,
		Position: 1,
	}
	raw, err := attach.Encode()
	require.NoError(t, err)
	require.NoError(t, c.handlePacket(wire.NewPacket(wire.MsgStreamData, 41, 11, raw)))

	ref, ok := reg.CurrentStream(41)
	require.True(t, ok)
	assert.Equal(t, registry.StreamRef{Source: 40, StreamID: 12}, ref)
}

func TestDispatchActorDataUpdatesStream(t *testing.T) {
	c, srv, bus, reg := dialTestConn(t)
	joinUser(t, c, 40, "alice")

	actorReg := &wire.StreamRegister{
		Type:           wire.StreamTypeActor,
		OriginSourceID: 40,
		OriginStreamID: 12,
		Name:           "semi.truck",
	}
	raw, err := actorReg.Encode()
	require.NoError(t, err)
	go func() { srv.read() }() // drain the auto-reply
	require.NoError(t, c.handlePacket(wire.NewPacket(wire.MsgStreamRegister, 40, 12, raw)))

	var speeds []float32
	bus.On(EventStreamData, func(args ...any) {
		assert.Equal(t, uint32(40), args[0].(uint32))
		assert.Equal(t, uint32(12), args[1].(*wire.StreamRegister).OriginStreamID)
		speeds = append(speeds, args[2].(*wire.ActorStreamData).WheelSpeed)
	})

	send := func(pos wire.Vector3, speed float32) {
		data := &wire.ActorStreamData{Position: pos, WheelSpeed: speed}
		raw, err := data.Encode()
		require.NoError(t, err)
		require.NoError(t, c.handlePacket(wire.NewPacket(wire.MsgStreamData, 40, 12, raw)))
	}
	send(wire.Vector3{X: 100}, 10)
	send(wire.Vector3{X: 125}, 20)

	assert.Equal(t, []float32{10, 20}, speeds)
	pos, err := reg.Position(40, 12)
	require.NoError(t, err)
	assert.Equal(t, wire.Vector3{X: 125}, pos)
	u, err := reg.GetUser(40)
	require.NoError(t, err)
	assert.InDelta(t, 25.0, u.Stats.MetersDriven, 1e-6)
	ref, ok := reg.CurrentStream(40)
	require.True(t, ok)
	assert.Equal(t, registry.StreamRef{Source: 40, StreamID: 12}, ref)
}

func TestDispatchChatStreamDataOpaque(t *testing.T) {
	c, _, bus, _ := dialTestConn(t)
	joinUser(t, c, 40, "alice")

	chatReg := &wire.StreamRegister{
		Type:           wire.StreamTypeChat,
		OriginSourceID: 40,
		OriginStreamID: 10,
		Name:           wire.ChatStreamName,
	}
	raw, err := chatReg.Encode()
	require.NoError(t, err)
	require.NoError(t, c.handlePacket(wire.NewPacket(wire.MsgStreamRegister, 40, 10, raw)))

	fired := false
	bus.On(EventStreamData, func(args ...any) {
		fired = true
		assert.Equal(t, uint32(40), args[0].(uint32))
		assert.Equal(t, wire.StreamTypeChat, args[1].(*wire.StreamRegister).Type)
		assert.Nil(t, args[2])
	})
	require.NoError(t, c.handlePacket(wire.NewPacket(wire.MsgStreamData, 40, 10, []byte("raw chat bytes"))))
	assert.True(t, fired)
}

func TestDispatchStreamDataSelfEchoIgnored(t *testing.T) {
	c, _, bus, _ := dialTestConn(t)

	fired := false
	bus.On(EventStreamData, func(args ...any) { fired = true })

	pose := &wire.CharacterPositionStreamData{Command: wire.CharacterPosition}
	raw, err := pose.Encode()
	require.NoError(t, err)
	require.NoError(t, c.handlePacket(wire.NewPacket(wire.MsgStreamData, testUID, 11, raw)))
	assert.False(t, fired)
}

func TestDispatchBadStreamDataIsFatal(t *testing.T) {
	c, _, _, _ := dialTestConn(t)
	joinUser(t, c, 40, "alice")
	registerCharacterStream(t, c, 40, 11)

	// Character command 9 does not exist.
	bad := make([]byte, 4)
	binary.LittleEndian.PutUint32(bad, 9)
	err := c.handlePacket(wire.NewPacket(wire.MsgStreamData, 40, 11, bad))
	require.Error(t, err)
	assert.True(t, rorerrors.IsDecodeError(err))
}

func TestSendChatFraming(t *testing.T) {
	c, srv, _, _ := dialTestConn(t)

	got := make(chan *wire.Packet, 1)
	go func() { got <- srv.read() }()
	require.NoError(t, c.SendChat("hello there"))

	p := <-got
	assert.Equal(t, wire.MsgChat, p.Type)
	assert.Equal(t, uint32(testUID), p.Source)
	assert.Equal(t, uint32(10), p.StreamID)
	assert.Equal(t, "hello there", string(p.Payload))
}

func TestSendPrivateChatFraming(t *testing.T) {
	c, srv, _, _ := dialTestConn(t)

	got := make(chan *wire.Packet, 1)
	go func() { got <- srv.read() }()
	require.NoError(t, c.SendPrivateChat(40, "psst"))

	p := <-got
	assert.Equal(t, wire.MsgPrivateChat, p.Type)
	assert.Equal(t, 4+privateChatPayload, len(p.Payload))
	assert.Equal(t, uint32(40), binary.LittleEndian.Uint32(p.Payload[:4]))
	assert.Equal(t, "psst", string(p.Payload[4:8]))
}

func TestSendGameCmdOnStreamZero(t *testing.T) {
	c, srv, _, _ := dialTestConn(t)

	got := make(chan *wire.Packet, 1)
	go func() { got <- srv.read() }()
	require.NoError(t, c.SendGameCmd("game_cmd:say hi"))

	p := <-got
	assert.Equal(t, wire.MsgGameCmd, p.Type)
	assert.Equal(t, uint32(0), p.StreamID)
}

func TestRegisterStreamAllocatesIDs(t *testing.T) {
	c, srv, _, _ := dialTestConn(t)

	got := make(chan *wire.Packet, 1)
	go func() { got <- srv.read() }()
	sid, err := c.RegisterStream(&wire.StreamRegister{
		Type: wire.StreamTypeActor,
		Name: "semi.truck",
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(12), sid, "next id after the chat and character streams")

	p := <-got
	decoded, err := wire.DecodeStreamRegister(p.Payload)
	require.NoError(t, err)
	assert.Equal(t, int32(-1), decoded.Timestamp)
	assert.Equal(t, uint32(testUID), decoded.OriginSourceID)
	assert.Equal(t, uint32(12), decoded.OriginStreamID)
}

func TestUnregisterStreamZeroPayload(t *testing.T) {
	c, srv, _, reg := dialTestConn(t)

	got := make(chan *wire.Packet, 1)
	go func() { got <- srv.read() }()
	require.NoError(t, c.UnregisterStream(10))

	p := <-got
	assert.Equal(t, wire.MsgStreamUnregister, p.Type)
	assert.Equal(t, uint32(0), p.Size)

	_, err := reg.GetStream(testUID, 10)
	assert.ErrorIs(t, err, registry.ErrStreamNotFound)
}

func TestMoveBotBroadcastsPose(t *testing.T) {
	c, srv, _, _ := dialTestConn(t)

	got := make(chan *wire.Packet, 1)
	go func() { got <- srv.read() }()
	require.NoError(t, c.MoveBot(wire.Vector3{X: 7, Y: 0, Z: 9}))

	p := <-got
	assert.Equal(t, wire.MsgStreamData, p.Type)
	assert.Equal(t, uint32(11), p.StreamID)
	data, err := wire.DecodeStreamData(wire.StreamTypeCharacter, p.Payload)
	require.NoError(t, err)
	pose := data.(*wire.CharacterPositionStreamData)
	assert.Equal(t, wire.Vector3{X: 7, Y: 0, Z: 9}, pose.Position)
	assert.Equal(t, wire.AnimIdleSway, pose.AnimationMode)
	assert.Zero(t, pose.AnimationTime)
	assert.Equal(t, wire.Vector3{X: 7, Y: 0, Z: 9}, c.Position())
}
