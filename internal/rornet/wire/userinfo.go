package wire

import (
	rorerrors "github.com/alxayo/go-rornet/internal/errors"
)

// UserInfo field widths. The record packs to exactly 359 bytes:
// uid:4 auth:4 slot:4 color:4 username:40 token:40 server_password:40
// language:10 client_name:10 client_version:25 guid:40 session_type:10
// session_options:128.
const (
	userInfoUsernameLen       = 40
	userInfoTokenLen          = 40
	userInfoPasswordLen       = 40
	userInfoLanguageLen       = 10
	userInfoClientNameLen     = 10
	userInfoClientVersionLen  = 25
	userInfoClientGUIDLen     = 40
	userInfoSessionTypeLen    = 10
	userInfoSessionOptionsLen = 128

	// UserInfoSize is the packed byte count of a UserInfo record.
	UserInfoSize = 16 + userInfoUsernameLen + userInfoTokenLen + userInfoPasswordLen +
		userInfoLanguageLen + userInfoClientNameLen + userInfoClientVersionLen +
		userInfoClientGUIDLen + userInfoSessionTypeLen + userInfoSessionOptionsLen
)

// UserInfo describes one connected user. The server mutates it through
// USER_INFO packets; the local bot's UniqueID is assigned exactly once by
// WELCOME. ServerPassword carries the uppercase hex SHA-1 of the plaintext.
type UserInfo struct {
	UniqueID       uint32
	AuthStatus     AuthStatus
	SlotNum        int32
	ColorNum       int32 // index into PlayerColors; -1 until assigned
	Username       string
	UserToken      string
	ServerPassword string
	Language       string
	ClientName     string
	ClientVersion  string
	ClientGUID     string
	SessionType    string
	SessionOptions string
}

// UserColor returns the palette hex for the user's assigned color number,
// falling back to white while unassigned.
func (u *UserInfo) UserColor() string { return PlayerColor(u.ColorNum) }

// Encode packs the record into its fixed 359-byte layout.
func (u *UserInfo) Encode() ([]byte, error) {
	w := newWriter(UserInfoSize)
	w.u32(u.UniqueID)
	w.u32(uint32(u.AuthStatus))
	w.i32(u.SlotNum)
	w.i32(u.ColorNum)
	w.str(u.Username, userInfoUsernameLen, "username")
	w.str(u.UserToken, userInfoTokenLen, "user_token")
	w.str(u.ServerPassword, userInfoPasswordLen, "server_password")
	w.str(u.Language, userInfoLanguageLen, "language")
	w.str(u.ClientName, userInfoClientNameLen, "client_name")
	w.str(u.ClientVersion, userInfoClientVersionLen, "client_version")
	w.str(u.ClientGUID, userInfoClientGUIDLen, "client_guid")
	w.str(u.SessionType, userInfoSessionTypeLen, "session_type")
	w.str(u.SessionOptions, userInfoSessionOptionsLen, "session_options")
	if w.err != nil {
		return nil, rorerrors.NewDecodeError("user_info.encode", w.err)
	}
	return w.buf, nil
}

// DecodeUserInfo unpacks a UserInfo record.
func DecodeUserInfo(data []byte) (*UserInfo, error) {
	r := newReader(data)
	u := &UserInfo{
		UniqueID:       r.u32(),
		AuthStatus:     AuthStatus(r.u32()),
		SlotNum:        r.i32(),
		ColorNum:       r.i32(),
		Username:       r.str(userInfoUsernameLen),
		UserToken:      r.str(userInfoTokenLen),
		ServerPassword: r.str(userInfoPasswordLen),
		Language:       r.str(userInfoLanguageLen),
		ClientName:     r.str(userInfoClientNameLen),
		ClientVersion:  r.str(userInfoClientVersionLen),
		ClientGUID:     r.str(userInfoClientGUIDLen),
		SessionType:    r.str(userInfoSessionTypeLen),
		SessionOptions: r.str(userInfoSessionOptionsLen),
	}
	if r.err != nil {
		return nil, rorerrors.NewDecodeError("user_info.decode", r.err)
	}
	return u, nil
}
