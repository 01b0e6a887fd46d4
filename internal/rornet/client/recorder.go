package client

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alxayo/go-rornet/internal/rornet/conn"
	"github.com/alxayo/go-rornet/internal/rornet/registry"
	"github.com/alxayo/go-rornet/internal/rornet/wire"
)

// frame is one captured actor state, stamped relative to the start of the
// recording.
type frame struct {
	at   time.Duration
	data wire.ActorStreamData
}

// recording is one captured actor stream: the register that announced the
// vehicle plus the frames that played on it.
type recording struct {
	reg    wire.StreamRegister
	frames []frame
}

// recorder captures the actor stream a user is driving and replays it later
// as a ghost vehicle broadcast on a fresh stream of the bot's own.
type recorder struct {
	c *Client

	mu         sync.Mutex
	recordings map[string]*recording

	recName  string
	recRef   registry.StreamRef
	recStart time.Time
	active   bool

	playName  string
	playSID   uint32
	playIdx   int
	playClock time.Duration
	playing   bool
}

func newRecorder(c *Client) *recorder {
	r := &recorder{c: c, recordings: make(map[string]*recording)}
	c.bus.On(conn.EventStreamData, r.onStreamData)
	c.bus.On(conn.EventFrameStep, r.onFrameStep)
	return r
}

// start begins capturing the actor stream uid is currently controlling.
func (r *recorder) start(name string, uid uint32) error {
	ref, ok := r.c.reg.CurrentStream(uid)
	if !ok {
		return fmt.Errorf("you are not controlling any stream")
	}
	stream, err := r.c.reg.GetStream(ref.Source, ref.StreamID)
	if err != nil {
		return fmt.Errorf("your current stream is gone")
	}
	if stream.Type != wire.StreamTypeActor {
		return fmt.Errorf("only vehicles can be recorded, get in one first")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active {
		return fmt.Errorf("already recording %q", r.recName)
	}
	r.recName = name
	r.recRef = ref
	r.recStart = time.Now()
	r.recordings[name] = &recording{reg: *stream}
	r.active = true
	return nil
}

// stop finishes the active recording and reports its name and length.
func (r *recorder) stop() (string, int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return "", 0, false
	}
	r.active = false
	return r.recName, len(r.recordings[r.recName].frames), true
}

// play re-announces a stored recording on a new stream and schedules its
// frames on the frame clock.
func (r *recorder) play(name string) error {
	cn := r.c.conn()
	if cn == nil {
		return fmt.Errorf("not connected")
	}

	r.mu.Lock()
	rec, ok := r.recordings[name]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("no recording named %q", name)
	}
	if len(rec.frames) == 0 {
		r.mu.Unlock()
		return fmt.Errorf("recording %q is empty", name)
	}
	if r.playing {
		r.mu.Unlock()
		return fmt.Errorf("a playback is already running")
	}
	r.mu.Unlock()

	// Fresh copy; RegisterStream stamps the bot's ids onto it.
	reg := rec.reg
	sid, err := cn.RegisterStream(&reg)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.playName = name
	r.playSID = sid
	r.playIdx = 0
	r.playClock = 0
	r.playing = true
	r.mu.Unlock()
	return nil
}

// list returns the stored recording names, sorted.
func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.recordings))
	for name := range r.recordings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// onStreamData captures frames from the stream being recorded.
func (r *recorder) onStreamData(args ...any) {
	uid, ok := args[0].(uint32)
	if !ok {
		return
	}
	stream, ok := args[1].(*wire.StreamRegister)
	if !ok {
		return
	}
	data, ok := args[2].(*wire.ActorStreamData)
	if !ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active || uid != r.recRef.Source || stream.OriginStreamID != r.recRef.StreamID {
		return
	}
	rec := r.recordings[r.recName]
	rec.frames = append(rec.frames, frame{at: time.Since(r.recStart), data: *data})
}

// onFrameStep advances a running playback.
func (r *recorder) onFrameStep(args ...any) {
	dt, ok := args[0].(float64)
	if !ok {
		return
	}

	r.mu.Lock()
	if !r.playing {
		r.mu.Unlock()
		return
	}
	r.playClock += time.Duration(dt * float64(time.Second))
	rec := r.recordings[r.playName]
	var due []wire.ActorStreamData
	for r.playIdx < len(rec.frames) && rec.frames[r.playIdx].at <= r.playClock {
		due = append(due, rec.frames[r.playIdx].data)
		r.playIdx++
	}
	done := r.playIdx >= len(rec.frames)
	if done {
		r.playing = false
	}
	sid := r.playSID
	r.mu.Unlock()

	cn := r.c.conn()
	if cn == nil {
		return
	}
	for i := range due {
		if err := cn.SendActorStreamData(sid, &due[i]); err != nil {
			r.c.log.Warn("playback send failed", "error", err)
			return
		}
	}
	if done {
		if err := cn.UnregisterStream(sid); err != nil {
			r.c.log.Warn("playback stream unregister failed", "error", err)
		}
		r.c.sendChat("playback finished")
	}
}
