package client

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/alxayo/go-rornet/internal/rornet/conn"
	"github.com/alxayo/go-rornet/internal/rornet/events"
	"github.com/alxayo/go-rornet/internal/rornet/wire"
)

const permissionDenied = "You do not have permission to do that"

// command is one operator command. Restricted commands require moderator or
// admin auth.
type command struct {
	name       string
	usage      string
	help       string
	restricted bool
	run        func(cs *commandSet, uid uint32, args []string)
}

// commandSet parses chat lines carrying the command prefix and dispatches
// them.
type commandSet struct {
	c      *Client
	prefix string
	order  []string
	cmds   map[string]*command
}

func newCommandSet(c *Client) *commandSet {
	cs := &commandSet{
		c:      c,
		prefix: c.cfg.Commands.Prefix,
		cmds:   make(map[string]*command),
	}
	for _, cmd := range catalogue() {
		cs.order = append(cs.order, cmd.name)
		cs.cmds[cmd.name] = cmd
	}
	return cs
}

func catalogue() []*command {
	return []*command{
		{
			name: "help", usage: "help",
			help: "list available commands",
			run:  (*commandSet).cmdHelp,
		},
		{
			name: "prefix", usage: "prefix",
			help: "show the command prefix",
			run: func(cs *commandSet, uid uint32, args []string) {
				cs.reply("the command prefix is " + cs.prefix)
			},
		},
		{
			name: "ping", usage: "ping",
			help: "check that the bot is alive",
			run: func(cs *commandSet, uid uint32, args []string) {
				cs.reply("pong")
			},
		},
		{
			name: "brb", usage: "brb",
			help: "announce you will be right back",
			run:  statusCmd("will be right back"),
		},
		{
			name: "afk", usage: "afk",
			help: "announce you are away from keyboard",
			run:  statusCmd("is now away from keyboard"),
		},
		{
			name: "back", usage: "back",
			help: "announce you are back",
			run:  statusCmd("is back"),
		},
		{
			name: "gtg", usage: "gtg",
			help: "announce you have got to go",
			run:  statusCmd("has got to go"),
		},
		{
			name: "version", usage: "version",
			help: "show the bot version",
			run: func(cs *commandSet, uid uint32, args []string) {
				cs.reply(fmt.Sprintf("%s %s (%s)", ClientName, ClientVersion, wire.ProtocolVersion))
			},
		},
		{
			name: "countdown", usage: "countdown <seconds>",
			help: "run a chat countdown",
			run:  (*commandSet).cmdCountdown,
		},
		{
			name: "movebot", usage: "movebot <x> <y> <z>",
			help: "teleport the bot character",
			run:  (*commandSet).cmdMoveBot,
		},
		{
			name: "rotatebot", usage: "rotatebot <degrees>",
			help: "turn the bot character",
			run:  (*commandSet).cmdRotateBot,
		},
		{
			name: "getpos", usage: "getpos",
			help: "show the bot position",
			run: func(cs *commandSet, uid uint32, args []string) {
				cn := cs.c.conn()
				if cn == nil {
					return
				}
				cs.reply("bot position: " + cn.Position().String())
			},
		},
		{
			name: "getrot", usage: "getrot",
			help: "show the bot heading",
			run: func(cs *commandSet, uid uint32, args []string) {
				cn := cs.c.conn()
				if cn == nil {
					return
				}
				deg := float64(cn.Rotation()) * 180 / math.Pi
				cs.reply(fmt.Sprintf("bot heading: %.1f degrees", deg))
			},
		},
		{
			name: "record", usage: "record <name>|stop",
			help: "record the vehicle you are driving", restricted: true,
			run: (*commandSet).cmdRecord,
		},
		{
			name: "playback", usage: "playback <name>",
			help: "replay a recording as a ghost vehicle", restricted: true,
			run: (*commandSet).cmdPlayback,
		},
		{
			name: "recordings", usage: "recordings",
			help: "list stored recordings", restricted: true,
			run: (*commandSet).cmdRecordings,
		},
	}
}

func statusCmd(verb string) func(cs *commandSet, uid uint32, args []string) {
	return func(cs *commandSet, uid uint32, args []string) {
		name := cs.c.reg.UsernameColored(uid)
		if name == "" {
			return
		}
		cs.reply(name + " " + verb)
	}
}

func (cs *commandSet) reply(msg string) { cs.c.sendChat(msg) }

// handleChat filters chat for command invocations.
func (cs *commandSet) handleChat(uid uint32, msg string) {
	if !strings.HasPrefix(msg, cs.prefix) {
		return
	}
	fields := strings.Fields(strings.TrimPrefix(msg, cs.prefix))
	if len(fields) == 0 {
		return
	}
	cmd, ok := cs.cmds[strings.ToLower(fields[0])]
	if !ok {
		cs.reply(fmt.Sprintf("unknown command %q, try %shelp", fields[0], cs.prefix))
		return
	}
	if cmd.restricted && !cs.isOperator(uid) {
		cs.reply(permissionDenied)
		return
	}
	cmd.run(cs, uid, fields[1:])
}

func (cs *commandSet) isOperator(uid uint32) bool {
	u, err := cs.c.reg.GetUser(uid)
	if err != nil {
		return false
	}
	return u.Info.AuthStatus.HasAny(wire.AuthMod | wire.AuthAdmin)
}

func (cs *commandSet) cmdHelp(uid uint32, args []string) {
	cs.reply("available commands:")
	for _, name := range cs.order {
		cmd := cs.cmds[name]
		suffix := ""
		if cmd.restricted {
			suffix = " (operators only)"
		}
		cs.reply(fmt.Sprintf("  %s%s - %s%s", cs.prefix, cmd.usage, cmd.help, suffix))
	}
}

// cmdCountdown ticks once per second on the frame clock, then cheers. The
// listener removes itself when done.
func (cs *commandSet) cmdCountdown(uid uint32, args []string) {
	if len(args) != 1 {
		cs.reply("usage: " + cs.prefix + "countdown <seconds>")
		return
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > 60 {
		cs.reply("countdown wants a number between 1 and 60")
		return
	}

	remaining := n
	var elapsed float64
	var step events.Listener
	step = func(fsArgs ...any) {
		dt, ok := fsArgs[0].(float64)
		if !ok {
			return
		}
		elapsed += dt
		if elapsed < 1 {
			return
		}
		elapsed = 0
		if remaining > 0 {
			cs.reply(wire.ColorRed + strconv.Itoa(remaining))
			remaining--
			return
		}
		cs.reply(wire.ColorGreen + "GO!!!")
		cs.c.bus.RemoveListener(conn.EventFrameStep, step)
	}
	cs.c.bus.On(conn.EventFrameStep, step)
	cs.reply(fmt.Sprintf("countdown from %d:", n))
}

func (cs *commandSet) cmdMoveBot(uid uint32, args []string) {
	if len(args) != 3 {
		cs.reply("usage: " + cs.prefix + "movebot <x> <y> <z>")
		return
	}
	var coords [3]float64
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 32)
		if err != nil {
			cs.reply("movebot wants three numbers")
			return
		}
		coords[i] = v
	}
	cn := cs.c.conn()
	if cn == nil {
		return
	}
	pos := wire.Vector3{X: float32(coords[0]), Y: float32(coords[1]), Z: float32(coords[2])}
	if err := cn.MoveBot(pos); err != nil {
		cs.c.log.Warn("movebot failed", "error", err)
		return
	}
	cs.reply("bot moved to " + pos.String())
}

func (cs *commandSet) cmdRotateBot(uid uint32, args []string) {
	if len(args) != 1 {
		cs.reply("usage: " + cs.prefix + "rotatebot <degrees>")
		return
	}
	deg, err := strconv.ParseFloat(args[0], 32)
	if err != nil {
		cs.reply("rotatebot wants a number of degrees")
		return
	}
	cn := cs.c.conn()
	if cn == nil {
		return
	}
	rad := float32(deg * math.Pi / 180)
	if err := cn.RotateBot(rad); err != nil {
		cs.c.log.Warn("rotatebot failed", "error", err)
		return
	}
	cs.reply(fmt.Sprintf("bot heading set to %.1f degrees", deg))
}

func (cs *commandSet) cmdRecord(uid uint32, args []string) {
	if len(args) != 1 {
		cs.reply("usage: " + cs.prefix + "record <name>|stop")
		return
	}
	if strings.EqualFold(args[0], "stop") {
		name, frames, ok := cs.c.recorder.stop()
		if !ok {
			cs.reply("nothing is being recorded")
			return
		}
		cs.reply(fmt.Sprintf("recording %q saved (%d frames)", name, frames))
		return
	}
	if err := cs.c.recorder.start(args[0], uid); err != nil {
		cs.reply(err.Error())
		return
	}
	cs.reply(fmt.Sprintf("recording %q started, drive around and say %srecord stop", args[0], cs.prefix))
}

func (cs *commandSet) cmdPlayback(uid uint32, args []string) {
	if len(args) != 1 {
		cs.reply("usage: " + cs.prefix + "playback <name>")
		return
	}
	if err := cs.c.recorder.play(args[0]); err != nil {
		cs.reply(err.Error())
		return
	}
	cs.reply(fmt.Sprintf("playing back %q", args[0]))
}

func (cs *commandSet) cmdRecordings(uid uint32, args []string) {
	names := cs.c.recorder.list()
	if len(names) == 0 {
		cs.reply("no recordings stored")
		return
	}
	cs.reply("recordings: " + strings.Join(names, ", "))
}
