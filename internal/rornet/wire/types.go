package wire

// Protocol tables for RoRnet 2.44: message types, stream types, auth flags,
// character commands/animations and the player color palette. Numeric values
// are part of the wire contract and must not be reordered.

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
)

// ProtocolVersion is the literal tag carried in the HELLO payload.
const ProtocolVersion = "RoRnet_2.44"

// MessageType is the u32 packet discriminant carried in every packet header.
type MessageType uint32

const (
	// MsgHello: client sends its protocol version as the first message.
	MsgHello MessageType = 1025 + iota
	MsgServerFull
	MsgWrongPassword
	MsgWrongVersion
	MsgBanned
	MsgWelcome
	MsgServerVersion
	MsgServerSettings
	MsgUserInfo
	MsgMasterServerInfo
	MsgNetQuality
	MsgGameCmd
	MsgUserJoin
	MsgUserLeave
	MsgChat
	MsgPrivateChat
	MsgStreamRegister
	MsgStreamRegisterResult
	MsgStreamUnregister
	MsgStreamData
	MsgStreamDataDiscardable

	// MsgUserInfoLegacy is sent by pre-2.3 servers on version mismatch.
	MsgUserInfoLegacy MessageType = 1003
)

var messageTypeNames = map[MessageType]string{
	MsgHello:                 "HELLO",
	MsgServerFull:            "SERVER_FULL",
	MsgWrongPassword:         "WRONG_PASSWORD",
	MsgWrongVersion:          "WRONG_VERSION",
	MsgBanned:                "BANNED",
	MsgWelcome:               "WELCOME",
	MsgServerVersion:         "SERVER_VERSION",
	MsgServerSettings:        "SERVER_SETTINGS",
	MsgUserInfo:              "USER_INFO",
	MsgMasterServerInfo:      "MASTER_SERVER_INFO",
	MsgNetQuality:            "NET_QUALITY",
	MsgGameCmd:               "GAME_CMD",
	MsgUserJoin:              "USER_JOIN",
	MsgUserLeave:             "USER_LEAVE",
	MsgChat:                  "CHAT",
	MsgPrivateChat:           "PRIVATE_CHAT",
	MsgStreamRegister:        "STREAM_REGISTER",
	MsgStreamRegisterResult:  "STREAM_REGISTER_RESULT",
	MsgStreamUnregister:      "STREAM_UNREGISTER",
	MsgStreamData:            "STREAM_DATA",
	MsgStreamDataDiscardable: "STREAM_DATA_DISCARDABLE",
	MsgUserInfoLegacy:        "USER_INFO_LEGACY",
}

func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("MessageType(%d)", uint32(t))
}

// Valid reports whether t is a known message type code.
func (t MessageType) Valid() bool {
	_, ok := messageTypeNames[t]
	return ok
}

// AuthStatus is a bitflag; membership tests use bitwise inclusion.
type AuthStatus uint32

// AuthNone means no authentication.
const AuthNone AuthStatus = 0

const (
	AuthAdmin  AuthStatus = 1 << iota // admin on the server
	AuthRanked                        // ranked status
	AuthMod                           // moderator status
	AuthBot                           // bot status
	AuthBanned                        // banned
)

// Has reports whether all bits of flag are set on a.
func (a AuthStatus) Has(flag AuthStatus) bool { return a&flag == flag }

// HasAny reports whether any bit of flags is set on a.
func (a AuthStatus) HasAny(flags AuthStatus) bool { return a&flags != 0 }

// Badge returns the one-letter rank badge shown next to usernames.
func (a AuthStatus) Badge() string {
	switch {
	case a.Has(AuthAdmin):
		return "A"
	case a.Has(AuthMod):
		return "M"
	case a.Has(AuthRanked):
		return "R"
	case a.Has(AuthBot):
		return "B"
	case a.Has(AuthBanned):
		return "X"
	}
	return ""
}

// StreamType discriminates stream registers and their payload encodings.
type StreamType int32

const (
	StreamTypeActor StreamType = iota
	StreamTypeCharacter
	StreamTypeAI
	StreamTypeChat
)

func (s StreamType) String() string {
	switch s {
	case StreamTypeActor:
		return "actor"
	case StreamTypeCharacter:
		return "character"
	case StreamTypeAI:
		return "ai"
	case StreamTypeChat:
		return "chat"
	}
	return fmt.Sprintf("StreamType(%d)", int32(s))
}

// ActorStreamStatus is the status an actor stream register reply carries.
type ActorStreamStatus int32

const (
	ActorStreamMismatch ActorStreamStatus = -2
	ActorStreamInvalid  ActorStreamStatus = -1
	ActorStreamUnknown  ActorStreamStatus = 0
	ActorStreamSuccess  ActorStreamStatus = 1
)

// ActorType is parsed from the trailing extension of an actor stream's name.
type ActorType string

const (
	ActorTruck    ActorType = "truck"
	ActorCar      ActorType = "car"
	ActorLoad     ActorType = "load"
	ActorAirplane ActorType = "airplane"
	ActorBoat     ActorType = "boat"
	ActorTrailer  ActorType = "trailer"
	ActorTrain    ActorType = "train"
	ActorFixed    ActorType = "fixed"
)

// CharacterCommand discriminates character stream payloads.
type CharacterCommand int32

const (
	CharacterInvalid CharacterCommand = iota
	CharacterPosition
	CharacterAttach
	CharacterDetach
)

// CharacterAnimation names the animation carried in a character position
// record (10-byte field on the wire).
type CharacterAnimation string

const (
	AnimIdleSway CharacterAnimation = "Idle_sway"
	AnimSpotSwim CharacterAnimation = "Spot_swim"
	AnimWalk     CharacterAnimation = "Walk"
	AnimRun      CharacterAnimation = "Run"
	AnimSwimLoop CharacterAnimation = "Swim_loop"
	AnimTurn     CharacterAnimation = "Turn"
	AnimDriving  CharacterAnimation = "Driving"
	AnimSideStep CharacterAnimation = "Side_step"
)

// NetMask flags carried in ActorStreamData.FlagMask.
type NetMask uint32

const (
	NetMaskHorn NetMask = 1 << iota
	NetMaskPoliceAudio
	NetMaskParticle
	NetMaskParkingBrake
	NetMaskTractionControl
	NetMaskAntiLockBrakes
	NetMaskEngineContact
	NetMaskEngineRun
	NetMaskEngineAutomatic
	NetMaskEngineSemiAuto
	NetMaskEngineManual
	NetMaskEngineManualStick
	NetMaskEngineManualRanges
)

// LightMask flags for actor light state.
type LightMask uint32

const (
	LightCustom1 LightMask = 1 << iota
	LightCustom2
	LightCustom3
	LightCustom4
	LightCustom5
	LightCustom6
	LightCustom7
	LightCustom8
	LightCustom9
	LightCustom10
	LightHeadlight
	LightHighBeams
	LightFogLights
	LightSideLights
	LightBrakes
	LightReverse
	LightBeacons
	LightBlinkLeft
	LightBlinkRight
	LightBlinkWarn
)

// Chat color helpers. The in-game chat renders inline hex colors.
const (
	ColorBlack   = "#000000"
	ColorGrey    = "#999999"
	ColorRed     = "#FF0000"
	ColorYellow  = "#FFFF00"
	ColorWhite   = "#FFFFFF"
	ColorCyan    = "#00FFFF"
	ColorBlue    = "#0000FF"
	ColorGreen   = "#00FF00"
	ColorMagenta = "#FF00FF"
	ColorCommand = "#941E8D"
	ColorWhisper = "#967417"
	ColorScript  = "#32436F"
)

// PlayerColors is the 25-entry palette the server assigns color_num into.
// Do not reorder.
var PlayerColors = [25]string{
	"#00CC00", // green
	"#0066B3", // blue
	"#FF8000", // orange
	"#FFCC00", // yellow
	"#CCFF00", // lime
	"#FF0000", // red
	"#808080", // gray
	"#008F00", // dark green
	"#B35A00", // windsor tan
	"#B38F00", // light gold
	"#8FB300", // apple green
	"#B30000", // ue red
	"#BEBEBE", // dark gray
	"#80FF80", // light green
	"#80C9FF", // light sky blue
	"#FFC080", // mac and cheese
	"#FFE680", // yellow crayola
	"#AA80FF", // lavender floral
	"#EE00CC", // electric pink
	"#FF8080", // congo pink
	"#666600", // bronze yellow
	"#FFBFFF", // brilliant lavender
	"#00FFCC", // sea green
	"#CC6699", // wild orchid
	"#999900", // dark yellow
}

// PlayerColor returns the palette entry for idx, or white when idx is not a
// valid assigned color number.
func PlayerColor(idx int32) string {
	if idx >= 0 && int(idx) < len(PlayerColors) {
		return PlayerColors[idx]
	}
	return ColorWhite
}

// HashPassword produces the on-wire server password: the uppercase hex SHA-1
// digest of the UTF-8 plaintext. An empty password hashes the empty input.
func HashPassword(plain string) string {
	sum := sha1.Sum([]byte(plain))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}
