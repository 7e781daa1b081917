package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"avaneesh/otrfrag-go/pkg/channel"
	"avaneesh/otrfrag-go/pkg/otr"
	"avaneesh/otrfrag-go/pkg/transport"
	"avaneesh/otrfrag-go/pkg/types"
)

const (
	EnvLogLevel  = "OTRFRAG_LOG_LEVEL"
	EnvLogFormat = "OTRFRAG_LOG_FORMAT"
)

// Network names accepted in the "network" key
const (
	NetworkTCP  = "tcp"
	NetworkUDP  = "udp"
	NetworkQUIC = "quic"
)

// Config is the runtime configuration of the serve command
type Config struct {
	Network        string
	Address        string
	Listen         bool
	MaxMessageSize int

	Session otr.SessionConfig

	LogLevel  otr.LogLevel
	LogFormat string // "console" or "json"
}

type fileConfig struct {
	Network           string `toml:"network"`
	Address           string `toml:"address"`
	Listen            bool   `toml:"listen"`
	MaxMessageSize    int    `toml:"max_message_size"`
	ID                string `toml:"id"`
	InstanceTag       string `toml:"instance_tag"`
	Format            string `toml:"format"`
	MaxPieceSize      int    `toml:"max_piece_size"`
	ReassemblyTimeout string `toml:"reassembly_timeout"`
	MaxReassemblySize int    `toml:"max_reassembly_size"`
	LogLevel          string `toml:"log_level"`
	LogFormat         string `toml:"log_format"`
}

// Default returns the configuration used when no file is given
func Default() Config {
	session := otr.DefaultSessionConfig()
	session.ID = "otrfrag"
	return Config{
		Network:        NetworkTCP,
		Address:        "127.0.0.1:7777",
		Listen:         true,
		MaxMessageSize: channel.DefaultMaxMessageSize,
		Session:        session,
		LogLevel:       otr.LevelInfo,
		LogFormat:      "console",
	}
}

// Load reads a TOML file over the defaults, then applies environment overrides
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("network") {
		cfg.Network = strings.ToLower(strings.TrimSpace(raw.Network))
	}

	if meta.IsDefined("address") {
		cfg.Address = strings.TrimSpace(raw.Address)
	}

	if meta.IsDefined("listen") {
		cfg.Listen = raw.Listen
	}

	if meta.IsDefined("max_message_size") {
		cfg.MaxMessageSize = raw.MaxMessageSize
	}

	if meta.IsDefined("id") {
		if id := strings.TrimSpace(raw.ID); id != "" {
			cfg.Session.ID = id
		}
	}

	if meta.IsDefined("instance_tag") {
		tag, err := types.ParseInstanceTag(strings.TrimPrefix(strings.TrimSpace(raw.InstanceTag), "0x"))
		if err != nil {
			return Config{}, fmt.Errorf("parse instance_tag: %w", err)
		}
		cfg.Session.InstanceTag = tag
	}

	if meta.IsDefined("format") {
		format, err := transport.ParseFormat(raw.Format)
		if err != nil {
			return Config{}, fmt.Errorf("parse format: %w", err)
		}
		cfg.Session.Transport.Format = format
	}

	if meta.IsDefined("max_piece_size") {
		cfg.Session.Transport.MaxPieceSize = raw.MaxPieceSize
	}

	if meta.IsDefined("reassembly_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ReassemblyTimeout))
		if err != nil {
			return Config{}, fmt.Errorf("parse reassembly_timeout: %w", err)
		}
		cfg.Session.Transport.ReassemblyTimeout = d
	}

	if meta.IsDefined("max_reassembly_size") {
		cfg.Session.Transport.MaxReassemblySize = raw.MaxReassemblySize
	}

	if meta.IsDefined("log_level") {
		lvl, ok := otr.ParseLogLevel(raw.LogLevel)
		if !ok {
			return Config{}, fmt.Errorf("parse log_level: unknown level %q", raw.LogLevel)
		}
		cfg.LogLevel = lvl
	}

	if meta.IsDefined("log_format") {
		cfg.LogFormat = strings.ToLower(strings.TrimSpace(raw.LogFormat))
	}

	ApplyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides logging settings from the environment
func ApplyEnv(cfg *Config) {
	if raw := strings.TrimSpace(os.Getenv(EnvLogLevel)); raw != "" {
		if lvl, ok := otr.ParseLogLevel(raw); ok {
			cfg.LogLevel = lvl
		}
	}
	if v := strings.ToLower(strings.TrimSpace(os.Getenv(EnvLogFormat))); v != "" {
		cfg.LogFormat = v
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	switch c.Network {
	case NetworkTCP, NetworkUDP, NetworkQUIC:
	default:
		return fmt.Errorf("unsupported network %q", c.Network)
	}
	if c.Address == "" {
		return fmt.Errorf("address is required")
	}
	if c.MaxMessageSize < 0 {
		return fmt.Errorf("max_message_size must not be negative")
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("unsupported log_format %q", c.LogFormat)
	}
	return c.Session.Validate()
}

// PhysicalChannel opens the physical channel described by the configuration
func (c Config) PhysicalChannel() (channel.PhysicalChannel, error) {
	switch c.Network {
	case NetworkTCP:
		return channel.NewTCPChannel(channel.TCPChannelConfig{
			Address:        c.Address,
			IsServer:       c.Listen,
			MaxMessageSize: c.MaxMessageSize,
		})
	case NetworkUDP:
		return channel.NewUDPChannel(channel.UDPChannelConfig{
			Address:        c.Address,
			IsServer:       c.Listen,
			MaxMessageSize: c.MaxMessageSize,
		})
	case NetworkQUIC:
		return channel.NewQUICChannel(channel.QUICChannelConfig{
			Address:        c.Address,
			IsServer:       c.Listen,
			MaxMessageSize: c.MaxMessageSize,
		})
	default:
		return nil, fmt.Errorf("unsupported network %q", c.Network)
	}
}
