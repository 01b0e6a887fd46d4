package client

import (
	"sync"

	"github.com/alxayo/go-rornet/internal/rornet/conn"
)

// announcer rotates through the configured broadcast messages on the frame
// clock, one message per interval.
type announcer struct {
	c *Client

	mu      sync.Mutex
	elapsed float64
	next    int
}

func newAnnouncer(c *Client) *announcer {
	a := &announcer{c: c}
	if c.cfg.Announcements.Enabled && len(c.cfg.Announcements.Messages) > 0 {
		c.bus.On(conn.EventFrameStep, a.step)
	}
	return a
}

func (a *announcer) step(args ...any) {
	dt, ok := args[0].(float64)
	if !ok {
		return
	}
	cfg := a.c.cfg.Announcements

	a.mu.Lock()
	a.elapsed += dt
	if a.elapsed < cfg.Interval.Duration.Seconds() {
		a.mu.Unlock()
		return
	}
	a.elapsed = 0
	msg := cfg.Messages[a.next%len(cfg.Messages)]
	a.next++
	a.mu.Unlock()

	a.c.sendChat(cfg.Color + "ANNOUNCEMENT: " + msg)
}
