package wire

// Packet framing: every RoRnet message is a 16-byte little-endian header
// (type, source, stream_id, size) followed by exactly size payload bytes.
// Focus: wire-format fidelity, no allocation beyond the payload buffer.

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/alxayo/go-rornet/internal/bufpool"
	rorerrors "github.com/alxayo/go-rornet/internal/errors"
)

// PacketHeaderSize is the fixed byte count of a packet header.
const PacketHeaderSize = 16

// Packet is one framed message. Size always equals len(Payload) for packets
// produced by this package.
type Packet struct {
	Type     MessageType
	Source   uint32
	StreamID uint32
	Size     uint32
	Payload  []byte
}

// NewPacket builds a packet whose Size matches the payload.
func NewPacket(t MessageType, source, streamID uint32, payload []byte) *Packet {
	return &Packet{Type: t, Source: source, StreamID: streamID, Size: uint32(len(payload)), Payload: payload}
}

// Encode packs header and payload into one contiguous buffer. A Size /
// payload length mismatch is a programming error surfaced as a protocol
// error rather than silently re-stamped.
func (p *Packet) Encode() ([]byte, error) {
	if int(p.Size) != len(p.Payload) {
		return nil, rorerrors.NewProtocolError("packet.encode",
			fmt.Errorf("size %d does not match payload length %d", p.Size, len(p.Payload)))
	}
	buf := make([]byte, 0, PacketHeaderSize+len(p.Payload))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(p.Type))
	buf = binary.LittleEndian.AppendUint32(buf, p.Source)
	buf = binary.LittleEndian.AppendUint32(buf, p.StreamID)
	buf = binary.LittleEndian.AppendUint32(buf, p.Size)
	buf = append(buf, p.Payload...)
	return buf, nil
}

func (p *Packet) String() string {
	return fmt.Sprintf("%s source=%d stream_id=%d size=%d", p.Type, p.Source, p.StreamID, p.Size)
}

// FrameReader reads whole packets off a byte stream.
type FrameReader struct {
	r io.Reader
}

// NewFrameReader wraps r.
func NewFrameReader(r io.Reader) *FrameReader { return &FrameReader{r: r} }

// ReadPacket reads exactly one packet: 16 header bytes then exactly Size
// payload bytes. A zero Size is only legal for STREAM_UNREGISTER; a short
// payload read means the connection is broken.
func (fr *FrameReader) ReadPacket() (*Packet, error) {
	var head [PacketHeaderSize]byte
	if _, err := io.ReadFull(fr.r, head[:]); err != nil {
		return nil, rorerrors.NewDecodeError("packet.header", fmt.Errorf("io: %w", err))
	}
	p := &Packet{
		Type:     MessageType(binary.LittleEndian.Uint32(head[0:4])),
		Source:   binary.LittleEndian.Uint32(head[4:8]),
		StreamID: binary.LittleEndian.Uint32(head[8:12]),
		Size:     binary.LittleEndian.Uint32(head[12:16]),
	}
	if !p.Type.Valid() {
		return nil, rorerrors.NewDecodeError("packet.header",
			fmt.Errorf("unknown message type code %d", uint32(p.Type)))
	}
	if p.Size == 0 {
		if p.Type != MsgStreamUnregister {
			return nil, rorerrors.NewProtocolError("packet.read",
				fmt.Errorf("no data to read for %s", p.Type))
		}
		p.Payload = nil
		return p, nil
	}
	p.Payload = make([]byte, p.Size)
	if _, err := io.ReadFull(fr.r, p.Payload); err != nil {
		return nil, rorerrors.NewDecodeError("packet.payload",
			fmt.Errorf("short read for %s (want %d bytes): %w", p.Type, p.Size, err))
	}
	return p, nil
}

// FrameWriter writes whole packets to a byte stream. A mutex guards the
// write so two goroutines cannot interleave a packet's bytes.
type FrameWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewFrameWriter wraps w.
func NewFrameWriter(w io.Writer) *FrameWriter { return &FrameWriter{w: w} }

// WritePacket flushes the full packet in one logical write. The scratch
// buffer comes from the frame pool; it never outlives the write.
func (fw *FrameWriter) WritePacket(p *Packet) error {
	if int(p.Size) != len(p.Payload) {
		return rorerrors.NewProtocolError("packet.write",
			fmt.Errorf("size %d does not match payload length %d", p.Size, len(p.Payload)))
	}
	buf := bufpool.Get(PacketHeaderSize + len(p.Payload))
	defer bufpool.Put(buf)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(p.Type))
	binary.LittleEndian.PutUint32(buf[4:8], p.Source)
	binary.LittleEndian.PutUint32(buf[8:12], p.StreamID)
	binary.LittleEndian.PutUint32(buf[12:16], p.Size)
	copy(buf[PacketHeaderSize:], p.Payload)

	fw.mu.Lock()
	defer fw.mu.Unlock()
	if _, err := fw.w.Write(buf); err != nil {
		return fmt.Errorf("write %s: %w", p.Type, err)
	}
	return nil
}
