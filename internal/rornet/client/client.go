// Package client is the game-level bot: it owns the reconnect loop,
// periodic announcements, the operator command surface and the pose
// recorder, all built on conn's protocol events.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/alxayo/go-rornet/internal/config"
	"github.com/alxayo/go-rornet/internal/logger"
	"github.com/alxayo/go-rornet/internal/rornet/conn"
	"github.com/alxayo/go-rornet/internal/rornet/events"
	"github.com/alxayo/go-rornet/internal/rornet/registry"
	"github.com/alxayo/go-rornet/internal/rornet/wire"
)

// ClientName and ClientVersion identify this bot in USER_INFO records.
const (
	ClientName    = "bot"
	ClientVersion = "2022.12"
)

// Client is one bot instance.
type Client struct {
	cfg *config.Config
	bus *events.Bus
	reg *registry.Registry
	log *slog.Logger

	mu      sync.Mutex
	session *session

	announcer *announcer
	commands  *commandSet
	recorder  *recorder
}

// session wraps the live connection; nil between connects.
type session struct {
	conn *conn.Conn
}

// New wires a client from configuration. Event handlers are registered once
// here and survive reconnects.
func New(cfg *config.Config) *Client {
	log := logger.Logger()
	names := registry.DefaultNameCatalogue()
	if cfg.Vehicles.NamesFile != "" {
		nc, err := registry.LoadNameCatalogue(cfg.Vehicles.NamesFile)
		if err != nil {
			log.Warn("vehicle name catalogue unusable, using bundled",
				"path", cfg.Vehicles.NamesFile, "error", err)
		} else {
			names = nc
		}
	}
	c := &Client{
		cfg: cfg,
		bus: events.NewBus(),
		reg: registry.NewWithNames(names),
		log: log,
	}
	c.announcer = newAnnouncer(c)
	c.commands = newCommandSet(c)
	c.recorder = newRecorder(c)
	c.bus.On(conn.EventChat, func(args ...any) {
		c.commands.handleChat(args[0].(uint32), args[1].(string))
	})
	c.bus.On(conn.EventPrivateChat, func(args ...any) {
		c.commands.handleChat(args[0].(uint32), args[1].(string))
	})
	c.bus.On(conn.EventStreamRegister, func(args ...any) {
		reg, ok := args[1].(*wire.StreamRegister)
		if !ok || reg.Type != wire.StreamTypeActor {
			return
		}
		c.log.Info("vehicle spawned",
			"source", args[0],
			"vehicle", c.reg.Names().Pretty(reg.Name))
	})
	c.bus.On(conn.EventUserLeave, func(args ...any) {
		u, ok := args[1].(*registry.User)
		if !ok {
			return
		}
		g := c.reg.GlobalStats()
		c.log.Info("session stats",
			"username", u.Info.Username,
			"online", time.Since(u.Stats.OnlineSince).Round(time.Second).String(),
			"meters_walked", int(u.Stats.MetersWalked),
			"meters_driven", int(u.Stats.MetersDriven),
			"meters_sailed", int(u.Stats.MetersSailed),
			"meters_flown", int(u.Stats.MetersFlown),
			"users_online", g.UsersOnline,
			"lifetime_meters_driven", int(g.MetersDriven))
	})
	return c
}

// Bus exposes the event bus for extensions and tests.
func (c *Client) Bus() *events.Bus { return c.bus }

// Registry exposes the user and stream table.
func (c *Client) Registry() *registry.Registry { return c.reg }

// processGUID identifies this bot process; it survives reconnects.
var processGUID = uuid.NewString()

// userInfo builds the identity offered in each handshake.
func (c *Client) userInfo() wire.UserInfo {
	password := ""
	if c.cfg.Server.Password != "" {
		password = wire.HashPassword(c.cfg.Server.Password)
	}
	return wire.UserInfo{
		AuthStatus:     wire.AuthBot,
		SlotNum:        -2,
		ColorNum:       -1,
		Username:       c.cfg.User.Name,
		UserToken:      c.cfg.User.Token,
		ServerPassword: password,
		Language:       c.cfg.User.Language,
		ClientName:     ClientName,
		ClientVersion:  ClientVersion,
		ClientGUID:     processGUID,
		SessionType:    "bot",
	}
}

// Run connects and drives the session until ctx is canceled or the session
// ends. A refused dial is retried a bounded number of times; every other
// failure, including refusals during the handshake, is final.
func (c *Client) Run(ctx context.Context) error {
	addr := c.cfg.Server.Addr()
	attempts := c.cfg.Reconnection.Attempts
	interval := c.cfg.Reconnection.Interval.Duration

	var cn *conn.Conn
	for attempt := 1; ; attempt++ {
		var err error
		cn, err = conn.Connect(ctx, conn.Options{
			Addr:     addr,
			User:     c.userInfo(),
			Bus:      c.bus,
			Registry: c.reg,
			Log:      c.log,
		})
		if err == nil {
			break
		}
		if !errors.Is(err, syscall.ECONNREFUSED) || attempt >= attempts {
			return fmt.Errorf("connect %s: %w", addr, err)
		}
		c.log.Warn("connection refused, retrying",
			"server_addr", addr,
			"attempt", attempt,
			"max_attempts", attempts,
			"retry_in", interval.String())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}

	c.mu.Lock()
	c.session = &session{conn: cn}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.session = nil
		c.mu.Unlock()
	}()
	return cn.Run(ctx)
}

// conn returns the live connection, or nil between sessions.
func (c *Client) conn() *conn.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	return c.session.conn
}

// sendChat broadcasts a line if connected.
func (c *Client) sendChat(msg string) {
	cn := c.conn()
	if cn == nil {
		return
	}
	if err := cn.SendChat(msg); err != nil {
		c.log.Warn("chat send failed", "error", err)
	}
}

// Say speaks msg to one user through the server's own voice instead of the
// bot's. A uid of -1 addresses everyone.
func (c *Client) Say(uid int32, msg string) {
	c.sendChat(fmt.Sprintf("!say %d %s", uid, msg))
}

// Kick asks the server to kick a user.
func (c *Client) Kick(uid uint32, reason string) {
	c.sendChat(fmt.Sprintf("!kick %d %s", uid, reason))
}

// Ban asks the server to ban a user.
func (c *Client) Ban(uid uint32, reason string) {
	c.sendChat(fmt.Sprintf("!ban %d %s", uid, reason))
}
