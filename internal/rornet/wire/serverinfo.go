package wire

import (
	rorerrors "github.com/alxayo/go-rornet/internal/errors"
)

// ServerInfo sizes. The record packs to exactly 4373 bytes:
// protocol:20 terrain:128 server:128 has_password:1 motd:4096.
const (
	serverInfoProtocolLen = 20
	serverInfoTerrainLen  = 128
	serverInfoNameLen     = 128
	serverInfoMOTDLen     = 4096

	// ServerInfoSize is the packed byte count of a ServerInfo record.
	ServerInfoSize = serverInfoProtocolLen + serverInfoTerrainLen + serverInfoNameLen + 1 + serverInfoMOTDLen
)

// ServerInfo is the server's half of the handshake, carried in the HELLO
// reply. Created once; immutable thereafter.
type ServerInfo struct {
	ProtocolVersion string
	TerrainName     string
	ServerName      string
	HasPassword     bool
	MOTD            string
}

// Encode packs the record into its fixed 4373-byte layout.
func (s *ServerInfo) Encode() ([]byte, error) {
	w := newWriter(ServerInfoSize)
	w.str(s.ProtocolVersion, serverInfoProtocolLen, "protocol_version")
	w.str(s.TerrainName, serverInfoTerrainLen, "terrain_name")
	w.str(s.ServerName, serverInfoNameLen, "server_name")
	w.boolByte(s.HasPassword)
	w.str(s.MOTD, serverInfoMOTDLen, "motd")
	if w.err != nil {
		return nil, rorerrors.NewDecodeError("server_info.encode", w.err)
	}
	return w.buf, nil
}

// DecodeServerInfo unpacks a ServerInfo record.
func DecodeServerInfo(data []byte) (*ServerInfo, error) {
	r := newReader(data)
	s := &ServerInfo{
		ProtocolVersion: r.str(serverInfoProtocolLen),
		TerrainName:     r.str(serverInfoTerrainLen),
		ServerName:      r.str(serverInfoNameLen),
		HasPassword:     r.boolByte(),
		MOTD:            r.str(serverInfoMOTDLen),
	}
	if r.err != nil {
		return nil, rorerrors.NewDecodeError("server_info.decode", r.err)
	}
	return s, nil
}
