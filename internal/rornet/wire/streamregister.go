package wire

// Stream registers form a discriminated union keyed by the leading i32 type
// field. CHAT and CHARACTER registers carry a 128-byte reg_data tail; ACTOR
// registers carry buffer_size/timestamp/skin/section_config. Both tails are
// 128 bytes, so every register packs to exactly 272 bytes.

import (
	"fmt"

	rorerrors "github.com/alxayo/go-rornet/internal/errors"
)

const (
	streamRegisterNameLen    = 128
	streamRegisterRegDataLen = 128
	streamRegisterSkinLen    = 60
	streamRegisterSectionLen = 60

	// StreamRegisterSize is the packed byte count of any stream register
	// (144-byte common head plus a 128-byte tail).
	StreamRegisterSize = 16 + streamRegisterNameLen + streamRegisterRegDataLen
)

// Fixed stream names used by the two generic register kinds.
const (
	ChatStreamName      = "chat"
	CharacterStreamName = "default"
)

// StreamRegister is a tagged variant: Type selects which tail fields are
// meaningful. RegData belongs to CHAT/CHARACTER registers; BufferSize,
// Timestamp, Skin and SectionConfig belong to ACTOR registers.
//
// ActorType, Position and Rotation never cross the wire: ActorType is derived
// from Name when the register joins the registry, Position/Rotation track the
// stream's last observed pose.
type StreamRegister struct {
	Type           StreamType
	Status         int32 // reused as ActorStreamStatus for actor streams
	OriginSourceID uint32
	OriginStreamID uint32
	Name           string

	// CHAT / CHARACTER tail.
	RegData string

	// ACTOR tail.
	BufferSize    int32
	Timestamp     int32
	Skin          string
	SectionConfig string

	// Derived / live state, not part of the wire layout.
	ActorType ActorType
	Position  Vector3
	Rotation  float32
}

// NewChatStreamRegister returns the register the bot sends for its chat
// stream.
func NewChatStreamRegister() *StreamRegister {
	return &StreamRegister{Type: StreamTypeChat, Name: ChatStreamName, RegData: "0"}
}

// NewCharacterStreamRegister returns the register the bot sends for its
// character stream.
func NewCharacterStreamRegister() *StreamRegister {
	return &StreamRegister{Type: StreamTypeCharacter, Name: CharacterStreamName, RegData: "\x02"}
}

// Encode packs the register into its fixed 272-byte layout, selecting the
// tail from Type. Encoding an AI or unknown type is an error.
func (s *StreamRegister) Encode() ([]byte, error) {
	w := newWriter(StreamRegisterSize)
	w.i32(int32(s.Type))
	w.i32(s.Status)
	w.u32(s.OriginSourceID)
	w.u32(s.OriginStreamID)
	w.str(s.Name, streamRegisterNameLen, "name")

	switch s.Type {
	case StreamTypeChat, StreamTypeCharacter:
		w.str(s.RegData, streamRegisterRegDataLen, "reg_data")
	case StreamTypeActor:
		w.i32(s.BufferSize)
		w.i32(s.Timestamp)
		w.str(s.Skin, streamRegisterSkinLen, "skin")
		w.str(s.SectionConfig, streamRegisterSectionLen, "section_config")
	default:
		return nil, rorerrors.NewDecodeError("stream_register.encode",
			fmt.Errorf("unsupported stream type %d", s.Type))
	}
	if w.err != nil {
		return nil, rorerrors.NewDecodeError("stream_register.encode", w.err)
	}
	return w.buf, nil
}

// DecodeStreamRegister unpacks a register, picking the tail from the leading
// type field. Unknown types are a decode error.
func DecodeStreamRegister(data []byte) (*StreamRegister, error) {
	r := newReader(data)
	s := &StreamRegister{
		Type:           StreamType(r.i32()),
		Status:         r.i32(),
		OriginSourceID: r.u32(),
		OriginStreamID: r.u32(),
		Name:           r.str(streamRegisterNameLen),
	}
	switch s.Type {
	case StreamTypeChat, StreamTypeCharacter:
		s.RegData = r.str(streamRegisterRegDataLen)
	case StreamTypeActor:
		s.BufferSize = r.i32()
		s.Timestamp = r.i32()
		s.Skin = r.str(streamRegisterSkinLen)
		s.SectionConfig = r.str(streamRegisterSectionLen)
	default:
		return nil, rorerrors.NewDecodeError("stream_register.decode",
			fmt.Errorf("unknown stream type %d", s.Type))
	}
	if r.err != nil {
		return nil, rorerrors.NewDecodeError("stream_register.decode", r.err)
	}
	return s, nil
}
