package conn

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	rorerrors "github.com/alxayo/go-rornet/internal/errors"
)

// Run drives the connection until ctx is canceled or the link dies. Three
// loops share the connection: the reader dispatches inbound packets, the
// heartbeat re-broadcasts the character pose, and the frame clock ticks the
// bus. On the way out the bot announces its departure and closes the socket.
func (c *Conn) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.readLoop(ctx) })
	g.Go(func() error { return c.heartbeatLoop(ctx) })
	g.Go(func() error { return c.frameClockLoop(ctx) })

	err := g.Wait()
	c.netConn.SetWriteDeadline(time.Now().Add(200 * time.Millisecond))
	c.sendUserLeave()
	c.Close()
	if err != nil && !errors.Is(err, context.Canceled) {
		c.bus.Emit(EventDisconnected, err)
		return err
	}
	return nil
}

// readLoop pulls packets off the socket and dispatches them until the link
// breaks. A closed socket surfaces as a disconnect, not a decode failure.
func (c *Conn) readLoop(ctx context.Context) error {
	// A graceful shutdown announces the departure before the socket close
	// unblocks the pending read. The deadline keeps a stalled peer from
	// holding up the close.
	stop := context.AfterFunc(ctx, func() {
		c.netConn.SetWriteDeadline(time.Now().Add(200 * time.Millisecond))
		c.sendUserLeave()
		c.netConn.Close()
	})
	defer stop()

	for {
		p, err := c.fr.ReadPacket()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if isConnectionGone(err) {
				return rorerrors.NewDisconnectedError("connection lost")
			}
			return err
		}
		if err := c.handlePacket(p); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
}

func isConnectionGone(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// heartbeatLoop re-broadcasts the character pose so the server keeps the bot
// visible. The tick is finer than the interval so a changed interval takes
// effect quickly; the elapsed time rides along as the animation delta.
func (c *Conn) heartbeatLoop(ctx context.Context) error {
	ticker := time.NewTicker(heartbeatTick)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			elapsed := now.Sub(last)
			if elapsed < c.heartbeatInterval {
				continue
			}
			last = now
			if err := c.sendCharacterPosition(float32(elapsed.Seconds())); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return err
			}
		}
	}
}

// frameClockLoop emits frame_step at a steady cadence for timed client
// behavior (announcement schedules, countdowns, recorded playback).
func (c *Conn) frameClockLoop(ctx context.Context) error {
	ticker := time.NewTicker(frameClockTick)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			dt := now.Sub(last)
			if dt < frameStepInterval {
				continue
			}
			last = now
			c.bus.Emit(EventFrameStep, dt.Seconds())
		}
	}
}
