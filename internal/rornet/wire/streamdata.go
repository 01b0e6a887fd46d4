package wire

// Stream payloads form the third discriminated union: the containing
// stream's type picks the decoder. CHARACTER payloads lead with a
// CharacterCommand i32; ACTOR payloads are a fixed 48-byte head plus a
// variable node_data slice; CHAT payloads are opaque and never decoded.

import (
	"fmt"

	rorerrors "github.com/alxayo/go-rornet/internal/errors"
)

const (
	characterAnimationLen = 10

	// CharacterPositionSize is the packed byte count of a character
	// position record (command:4 pos:12 rotation:4 animation_time:4
	// animation_mode:10).
	CharacterPositionSize = 34
	// CharacterAttachSize is the packed byte count of an attach record.
	CharacterAttachSize = 16
	// CharacterDetachSize is the packed byte count of a detach record.
	CharacterDetachSize = 4
	// ActorStreamDataHeadSize is the fixed prefix of an actor state record;
	// node_data occupies the remaining bytes.
	ActorStreamDataHeadSize = 48
)

// StreamData is implemented by every decoded stream payload record.
type StreamData interface {
	Encode() ([]byte, error)
	streamData()
}

// CharacterPositionStreamData carries a character pose update.
type CharacterPositionStreamData struct {
	Command       CharacterCommand // always CharacterPosition on the wire
	Position      Vector3
	Rotation      float32 // radians
	AnimationTime float32
	AnimationMode CharacterAnimation
}

func (*CharacterPositionStreamData) streamData() {}

func (c *CharacterPositionStreamData) Encode() ([]byte, error) {
	w := newWriter(CharacterPositionSize)
	w.i32(int32(c.Command))
	w.f32(c.Position.X)
	w.f32(c.Position.Y)
	w.f32(c.Position.Z)
	w.f32(c.Rotation)
	w.f32(c.AnimationTime)
	w.str(string(c.AnimationMode), characterAnimationLen, "animation_mode")
	if w.err != nil {
		return nil, rorerrors.NewDecodeError("character_position.encode", w.err)
	}
	return w.buf, nil
}

// CharacterAttachStreamData reports a character entering an actor.
type CharacterAttachStreamData struct {
	Command  CharacterCommand // always CharacterAttach on the wire
	SourceID uint32
	StreamID uint32
	Position int32
}

func (*CharacterAttachStreamData) streamData() {}

func (c *CharacterAttachStreamData) Encode() ([]byte, error) {
	w := newWriter(CharacterAttachSize)
	w.i32(int32(c.Command))
	w.u32(c.SourceID)
	w.u32(c.StreamID)
	w.i32(c.Position)
	return w.buf, nil
}

// CharacterDetachStreamData reports a character leaving an actor.
type CharacterDetachStreamData struct {
	Command CharacterCommand // always CharacterDetach on the wire
}

func (*CharacterDetachStreamData) streamData() {}

func (c *CharacterDetachStreamData) Encode() ([]byte, error) {
	w := newWriter(CharacterDetachSize)
	w.i32(int32(c.Command))
	return w.buf, nil
}

// ActorStreamData carries vehicle state. NodeData is the compressed node
// position block; its layout is per-vehicle and passed through opaquely.
type ActorStreamData struct {
	Time         int32
	EngineRPM    float32
	EngineAccel  float32
	EngineClutch float32
	EngineGear   int32
	Steering     float32
	Brake        float32
	WheelSpeed   float32
	FlagMask     NetMask
	Position     Vector3
	NodeData     []byte
}

func (*ActorStreamData) streamData() {}

func (a *ActorStreamData) Encode() ([]byte, error) {
	w := newWriter(ActorStreamDataHeadSize + len(a.NodeData))
	w.i32(a.Time)
	w.f32(a.EngineRPM)
	w.f32(a.EngineAccel)
	w.f32(a.EngineClutch)
	w.i32(a.EngineGear)
	w.f32(a.Steering)
	w.f32(a.Brake)
	w.f32(a.WheelSpeed)
	w.u32(uint32(a.FlagMask))
	w.f32(a.Position.X)
	w.f32(a.Position.Y)
	w.f32(a.Position.Z)
	w.bytes(a.NodeData)
	return w.buf, nil
}

// DecodeStreamData unpacks a stream payload according to the containing
// stream's type. CHAT payloads are opaque: the caller should not route them
// here. AI streams carry no payloads the client understands.
func DecodeStreamData(streamType StreamType, data []byte) (StreamData, error) {
	switch streamType {
	case StreamTypeCharacter:
		return decodeCharacterStreamData(data)
	case StreamTypeActor:
		return decodeActorStreamData(data)
	}
	return nil, rorerrors.NewDecodeError("stream_data.decode",
		fmt.Errorf("no payload decoder for stream type %d", streamType))
}

func decodeCharacterStreamData(data []byte) (StreamData, error) {
	r := newReader(data)
	cmd := CharacterCommand(r.i32())
	if r.err != nil {
		return nil, rorerrors.NewDecodeError("character_data.command", r.err)
	}
	switch cmd {
	case CharacterPosition:
		d := &CharacterPositionStreamData{
			Command:  cmd,
			Position: Vector3{X: r.f32(), Y: r.f32(), Z: r.f32()},
		}
		d.Rotation = r.f32()
		d.AnimationTime = r.f32()
		d.AnimationMode = CharacterAnimation(r.str(characterAnimationLen))
		if r.err != nil {
			return nil, rorerrors.NewDecodeError("character_position.decode", r.err)
		}
		return d, nil
	case CharacterAttach:
		d := &CharacterAttachStreamData{
			Command:  cmd,
			SourceID: r.u32(),
			StreamID: r.u32(),
			Position: r.i32(),
		}
		if r.err != nil {
			return nil, rorerrors.NewDecodeError("character_attach.decode", r.err)
		}
		return d, nil
	case CharacterDetach:
		return &CharacterDetachStreamData{Command: cmd}, nil
	}
	return nil, rorerrors.NewDecodeError("character_data.decode",
		fmt.Errorf("invalid character command %d", cmd))
}

func decodeActorStreamData(data []byte) (StreamData, error) {
	r := newReader(data)
	d := &ActorStreamData{
		Time:         r.i32(),
		EngineRPM:    r.f32(),
		EngineAccel:  r.f32(),
		EngineClutch: r.f32(),
		EngineGear:   r.i32(),
		Steering:     r.f32(),
		Brake:        r.f32(),
		WheelSpeed:   r.f32(),
		FlagMask:     NetMask(r.u32()),
	}
	d.Position = Vector3{X: r.f32(), Y: r.f32(), Z: r.f32()}
	if r.err != nil {
		return nil, rorerrors.NewDecodeError("actor_data.decode", r.err)
	}
	d.NodeData = append([]byte(nil), r.rest()...)
	return d, nil
}
