// Package registry tracks the users and streams the server has announced.
// All mutation goes through Registry methods; the packet dispatch loop is the
// single writer, readers may query concurrently.
package registry

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/alxayo/go-rornet/internal/rornet/wire"
)

var (
	ErrUserNotFound      = errors.New("registry: user not found")
	ErrUserAlreadyExists = errors.New("registry: user already exists")
	ErrStreamNotFound    = errors.New("registry: stream not found")
)

// StreamRef names one stream by its owner and per-owner stream id.
type StreamRef struct {
	Source   uint32
	StreamID uint32
}

// User is one connected client plus everything the server has told us about
// its streams. The last accepted pose lives on each stream register.
type User struct {
	Info wire.UserInfo

	Streams map[uint32]*wire.StreamRegister

	// Stream ids of the user's chat and character streams, -1 until the
	// matching register arrives. Each is set at most once and goes back
	// to -1 when that stream unregisters.
	ChatStreamID      int32
	CharacterStreamID int32

	// CurrentStream is the stream this user is controlling right now, nil
	// until the first position update. It points at another user's actor
	// while attached as a passenger.
	CurrentStream *StreamRef

	Stats UserStats
}

// UsernameColored renders the username wrapped in the user's palette color,
// resetting to white so following text is unaffected.
func (u *User) UsernameColored() string {
	return fmt.Sprintf("%s%s%s", u.Info.UserColor(), u.Info.Username, wire.ColorWhite)
}

// Stream returns the register for sid, or nil.
func (u *User) Stream(sid uint32) *wire.StreamRegister { return u.Streams[sid] }

// Registry is the authoritative user and stream table. It also keeps the
// lifetime tallies that survive users leaving: distances are folded in on
// removal so "driven since the bot connected" keeps growing after everyone
// who drove has left.
type Registry struct {
	mu    sync.RWMutex
	users map[uint32]*User
	names NameCatalogue

	since   time.Time
	joined  int
	parted  int
	streams int

	usernames map[string]struct{}
	sessions  []time.Duration
	folded    Distances
}

// New returns an empty registry using the bundled vehicle name catalogue.
func New() *Registry { return NewWithNames(DefaultNameCatalogue()) }

// NewWithNames returns an empty registry resolving vehicle display names
// through nc, which may be nil or empty.
func NewWithNames(nc NameCatalogue) *Registry {
	return &Registry{
		users:     make(map[uint32]*User),
		names:     nc,
		since:     time.Now(),
		usernames: make(map[string]struct{}),
	}
}

// Names returns the vehicle name catalogue the registry was built with.
func (r *Registry) Names() NameCatalogue { return r.names }

// AddUser inserts a newly joined user. Duplicate uids are rejected so a
// misbehaving server cannot silently clobber stream bookkeeping.
func (r *Registry) AddUser(info *wire.UserInfo) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[info.UniqueID]; ok {
		return nil, fmt.Errorf("uid %d: %w", info.UniqueID, ErrUserAlreadyExists)
	}
	return r.addLocked(info), nil
}

func (r *Registry) addLocked(info *wire.UserInfo) *User {
	u := &User{
		Info:              *info,
		Streams:           make(map[uint32]*wire.StreamRegister),
		ChatStreamID:      -1,
		CharacterStreamID: -1,
		Stats:             UserStats{OnlineSince: time.Now()},
	}
	r.users[info.UniqueID] = u
	r.joined++
	r.usernames[info.Username] = struct{}{}
	return u
}

// UpdateUser replaces the stored info for a user, keeping streams and stats.
// The server re-sends USER_INFO when auth or color changes, and may send it
// for a uid we never saw join; those users are created on the spot.
func (r *Registry) UpdateUser(info *wire.UserInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[info.UniqueID]
	if !ok {
		r.addLocked(info)
		return nil
	}
	u.Info = *info
	r.usernames[info.Username] = struct{}{}
	return nil
}

// RemoveUser deletes a user and returns its final state for the leave
// announcement. The session's distances and duration fold into the lifetime
// tallies before the user is dropped.
func (r *Registry) RemoveUser(uid uint32) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[uid]
	if !ok {
		return nil, fmt.Errorf("uid %d: %w", uid, ErrUserNotFound)
	}
	delete(r.users, uid)
	r.parted++
	r.folded.add(u.Stats.Distances)
	r.sessions = append(r.sessions, time.Since(u.Stats.OnlineSince))
	return u, nil
}

// GetUser looks up a user by uid.
func (r *Registry) GetUser(uid uint32) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[uid]
	if !ok {
		return nil, fmt.Errorf("uid %d: %w", uid, ErrUserNotFound)
	}
	return u, nil
}

// Has reports whether uid is known.
func (r *Registry) Has(uid uint32) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.users[uid]
	return ok
}

// Count returns the number of users currently online.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// Users returns a snapshot of all online users.
func (r *Registry) Users() []*User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	return out
}

// FindByUsername returns the first user with the given name.
func (r *Registry) FindByUsername(name string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.Info.Username == name {
			return u, nil
		}
	}
	return nil, fmt.Errorf("username %q: %w", name, ErrUserNotFound)
}

// StreamIDs returns the stream ids registered for uid, sorted.
func (r *Registry) StreamIDs(uid uint32) []uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[uid]
	if !ok {
		return nil
	}
	ids := make([]uint32, 0, len(u.Streams))
	for sid := range u.Streams {
		ids = append(ids, sid)
	}
	slices.Sort(ids)
	return ids
}

// UsernameColored returns the palette-wrapped username for uid, or the empty
// string for unknown users.
func (r *Registry) UsernameColored(uid uint32) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[uid]
	if !ok {
		return ""
	}
	return u.UsernameColored()
}

// AddStream records a stream register under its owner. The first chat and
// character registers pin the per-user bookkeeping ids; actor registers get
// their type derived from the stream name.
func (r *Registry) AddStream(uid uint32, reg *wire.StreamRegister) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[uid]
	if !ok {
		return fmt.Errorf("uid %d: %w", uid, ErrUserNotFound)
	}
	switch reg.Type {
	case wire.StreamTypeChat:
		if u.ChatStreamID < 0 {
			u.ChatStreamID = int32(reg.OriginStreamID)
		}
	case wire.StreamTypeCharacter:
		if u.CharacterStreamID < 0 {
			u.CharacterStreamID = int32(reg.OriginStreamID)
		}
	case wire.StreamTypeActor:
		reg.ActorType = ParseActorName(reg.Name).Type
	}
	u.Streams[reg.OriginStreamID] = reg
	r.streams++
	return nil
}

// GetStream looks up one stream by owner and stream id.
func (r *Registry) GetStream(uid, sid uint32) (*wire.StreamRegister, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[uid]
	if !ok {
		return nil, fmt.Errorf("uid %d: %w", uid, ErrUserNotFound)
	}
	s, ok := u.Streams[sid]
	if !ok {
		return nil, fmt.Errorf("uid %d sid %d: %w", uid, sid, ErrStreamNotFound)
	}
	return s, nil
}

// RemoveStream deletes a stream register.
func (r *Registry) RemoveStream(uid, sid uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[uid]
	if !ok {
		return fmt.Errorf("uid %d: %w", uid, ErrUserNotFound)
	}
	if _, ok := u.Streams[sid]; !ok {
		return fmt.Errorf("uid %d sid %d: %w", uid, sid, ErrStreamNotFound)
	}
	delete(u.Streams, sid)
	if u.ChatStreamID == int32(sid) {
		u.ChatStreamID = -1
	}
	if u.CharacterStreamID == int32(sid) {
		u.CharacterStreamID = -1
	}
	return nil
}

// SetCurrentStream records which stream uid is controlling. Source differs
// from uid while the user rides in someone else's actor. Ownership is not
// validated; the pair is whatever the wire said.
func (r *Registry) SetCurrentStream(uid, source, sid uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[uid]
	if !ok {
		return fmt.Errorf("uid %d: %w", uid, ErrUserNotFound)
	}
	u.CurrentStream = &StreamRef{Source: source, StreamID: sid}
	return nil
}

// CurrentStream returns the stream uid is controlling, or ok=false if no
// position update has named one yet.
func (r *Registry) CurrentStream(uid uint32) (StreamRef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[uid]
	if !ok || u.CurrentStream == nil {
		return StreamRef{}, false
	}
	return *u.CurrentStream, true
}

// SetPosition applies a position update to one stream. Chat streams carry no
// pose, so those are ignored. Moves shorter than one meter are jitter and
// ignored outright; longer moves replace the stored position and feed the
// owner's distance odometer matching the stream type.
func (r *Registry) SetPosition(uid, sid uint32, pos wire.Vector3) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[uid]
	if !ok {
		return fmt.Errorf("uid %d: %w", uid, ErrUserNotFound)
	}
	s, ok := u.Streams[sid]
	if !ok {
		return fmt.Errorf("uid %d sid %d: %w", uid, sid, ErrStreamNotFound)
	}
	if s.Type == wire.StreamTypeChat {
		return nil
	}
	// The first update seeds the pose; the spawn jump from the origin is
	// not distance traveled.
	if s.Position == (wire.Vector3{}) {
		s.Position = pos
		return nil
	}
	dist := s.Position.Distance(pos)
	if dist < 1 {
		return nil
	}
	s.Position = pos
	switch s.Type {
	case wire.StreamTypeCharacter:
		u.Stats.MetersWalked += dist
	case wire.StreamTypeActor:
		switch s.ActorType {
		case wire.ActorCar, wire.ActorTruck, wire.ActorTrain:
			u.Stats.MetersDriven += dist
		case wire.ActorBoat:
			u.Stats.MetersSailed += dist
		case wire.ActorAirplane:
			u.Stats.MetersFlown += dist
		}
	}
	return nil
}

// MoveStream replaces a stream's position outright, skipping the dead-band
// and the odometers. Bot teleports go through here so a scripted jump does
// not count as distance traveled.
func (r *Registry) MoveStream(uid, sid uint32, pos wire.Vector3) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[uid]
	if !ok {
		return fmt.Errorf("uid %d: %w", uid, ErrUserNotFound)
	}
	s, ok := u.Streams[sid]
	if !ok {
		return fmt.Errorf("uid %d sid %d: %w", uid, sid, ErrStreamNotFound)
	}
	s.Position = pos
	return nil
}

// SetRotation records a stream's latest heading, in radians. Chat streams
// are ignored.
func (r *Registry) SetRotation(uid, sid uint32, rot float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[uid]
	if !ok {
		return fmt.Errorf("uid %d: %w", uid, ErrUserNotFound)
	}
	s, ok := u.Streams[sid]
	if !ok {
		return fmt.Errorf("uid %d sid %d: %w", uid, sid, ErrStreamNotFound)
	}
	if s.Type == wire.StreamTypeChat {
		return nil
	}
	s.Rotation = rot
	return nil
}

// Position returns the stored position of one stream.
func (r *Registry) Position(uid, sid uint32) (wire.Vector3, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[uid]
	if !ok {
		return wire.Vector3{}, fmt.Errorf("uid %d: %w", uid, ErrUserNotFound)
	}
	s, ok := u.Streams[sid]
	if !ok {
		return wire.Vector3{}, fmt.Errorf("uid %d sid %d: %w", uid, sid, ErrStreamNotFound)
	}
	return s.Position, nil
}

// Rotation returns the stored rotation of one stream, in radians.
func (r *Registry) Rotation(uid, sid uint32) (float32, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[uid]
	if !ok {
		return 0, fmt.Errorf("uid %d: %w", uid, ErrUserNotFound)
	}
	s, ok := u.Streams[sid]
	if !ok {
		return 0, fmt.Errorf("uid %d sid %d: %w", uid, sid, ErrStreamNotFound)
	}
	return s.Rotation, nil
}
