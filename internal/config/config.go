// Package config loads and validates the bot's TOML configuration.
package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/alxayo/go-rornet/internal/rornet/wire"
)

// Servers listen in a fixed port window; anything else is a typo.
const (
	minPort = 12000
	maxPort = 12999
)

// Duration lets TOML carry values like "5s" or "2m30s".
type Duration struct{ time.Duration }

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Config is the full bot configuration.
type Config struct {
	Server        Server        `toml:"server"`
	User          User          `toml:"user"`
	Reconnection  Reconnection  `toml:"reconnection"`
	Announcements Announcements `toml:"announcements"`
	Commands      Commands      `toml:"commands"`
	Vehicles      Vehicles      `toml:"vehicles"`
}

// Server names the server to join.
type Server struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Password string `toml:"password"`
}

// Addr returns host:port for dialing.
func (s Server) Addr() string { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

// User is the identity the bot offers in the handshake.
type User struct {
	Name     string `toml:"name"`
	Token    string `toml:"token"`
	Language string `toml:"language"`
}

// Reconnection bounds the retry loop after a refused dial.
type Reconnection struct {
	Interval Duration `toml:"interval"`
	Attempts int      `toml:"attempts"`
}

// Announcements drive the periodic broadcast rotation.
type Announcements struct {
	Enabled  bool     `toml:"enabled"`
	Interval Duration `toml:"interval"`
	Color    string   `toml:"color"`
	Messages []string `toml:"messages"`
}

// Commands configure the operator command surface.
type Commands struct {
	Prefix string `toml:"prefix"`
}

// Vehicles configure actor display-name resolution.
type Vehicles struct {
	// NamesFile points at a JSON map of mod filename to display name. Empty
	// means the bundled catalogue.
	NamesFile string `toml:"names_file"`
}

// colorNames maps friendly color words to chat hex codes.
var colorNames = map[string]string{
	"black":   wire.ColorBlack,
	"grey":    wire.ColorGrey,
	"gray":    wire.ColorGrey,
	"red":     wire.ColorRed,
	"yellow":  wire.ColorYellow,
	"white":   wire.ColorWhite,
	"cyan":    wire.ColorCyan,
	"blue":    wire.ColorBlue,
	"green":   wire.ColorGreen,
	"magenta": wire.ColorMagenta,
}

var hexColorRE = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// normalizeColor accepts a color name or "#rrggbb" and returns the canonical
// uppercase hex form.
func normalizeColor(s string) (string, error) {
	s = strings.TrimSpace(s)
	if hex, ok := colorNames[strings.ToLower(s)]; ok {
		return hex, nil
	}
	if hexColorRE.MatchString(s) {
		return strings.ToUpper(s), nil
	}
	return "", fmt.Errorf("unknown color %q", s)
}

// Load reads and validates a config file.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

// Parse reads a config from TOML text, mainly for tests.
func Parse(text string) (*Config, error) {
	var cfg Config
	if err := toml.Unmarshal([]byte(text), &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.Port == 0 {
		c.Server.Port = minPort
	}
	if c.Server.Port < minPort || c.Server.Port > maxPort {
		return fmt.Errorf("server.port %d outside %d-%d", c.Server.Port, minPort, maxPort)
	}
	if c.User.Name == "" {
		return fmt.Errorf("user.name is required")
	}
	if c.User.Language == "" {
		c.User.Language = "en_US"
	}
	if c.Reconnection.Interval.Duration <= 0 {
		c.Reconnection.Interval.Duration = 5 * time.Second
	}
	if c.Reconnection.Attempts <= 0 {
		c.Reconnection.Attempts = 3
	}
	if c.Announcements.Interval.Duration <= 0 {
		c.Announcements.Interval.Duration = 5 * time.Minute
	}
	if c.Announcements.Color == "" {
		c.Announcements.Color = wire.ColorYellow
	} else {
		hex, err := normalizeColor(c.Announcements.Color)
		if err != nil {
			return fmt.Errorf("announcements.color: %w", err)
		}
		c.Announcements.Color = hex
	}
	if c.Announcements.Enabled && len(c.Announcements.Messages) == 0 {
		return fmt.Errorf("announcements.enabled set with no messages")
	}
	if c.Commands.Prefix == "" {
		c.Commands.Prefix = ">"
	}
	return nil
}
