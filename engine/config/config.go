// Package config loads, saves and watches the bridge configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/anima-livelink/engine/capture"
	"github.com/spaghettifunk/anima-livelink/engine/core"
	"github.com/spaghettifunk/anima-livelink/engine/livelink"
)

const (
	TransportUDP = "udp"
	TransportTCP = "tcp"
)

type Config struct {
	LogLevel string `toml:"log_level"`
	// TickRate is how many times per second sources are polled.
	TickRate float64 `toml:"tick_rate"`

	LiveLink LiveLinkConfig `toml:"livelink"`
	Sources  []SourceConfig `toml:"source"`
	Sim      SimConfig      `toml:"sim"`
	Status   StatusConfig   `toml:"status"`
	Recorder RecorderConfig `toml:"recorder"`
}

type LiveLinkConfig struct {
	QueueCapacity   int `toml:"queue_capacity"`
	ResolveAttempts int `toml:"resolve_attempts"`
}

// SourceConfig is one capture server to connect to.
type SourceConfig struct {
	Host       string `toml:"host"`
	Port       uint16 `toml:"port"`
	Transport  string `toml:"transport"`
	ARTags     bool   `toml:"ar_tags"`
	Compressed bool   `toml:"compressed"`
}

// SimConfig populates the in-process capture server.
type SimConfig struct {
	FramerateNumerator   int32   `toml:"framerate_numerator"`
	FramerateDenominator int32   `toml:"framerate_denominator"`
	Humans               int     `toml:"humans"`
	RigidBodies          int     `toml:"rigid_bodies"`
	Tags                 []int32 `toml:"tags"`
}

type StatusConfig struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}

type RecorderConfig struct {
	Enabled   bool   `toml:"enabled"`
	Path      string `toml:"path"`
	QueueSize int    `toml:"queue_size"`
}

func Default() Config {
	return Config{
		LogLevel: "info",
		TickRate: 60,
		LiveLink: LiveLinkConfig{
			QueueCapacity:   livelink.DefaultQueueCapacity,
			ResolveAttempts: livelink.DefaultResolveAttempts,
		},
		Sources: []SourceConfig{{
			Host:      "localhost",
			Port:      capture.DefaultPort,
			Transport: TransportUDP,
		}},
		Sim: SimConfig{
			FramerateNumerator:   60,
			FramerateDenominator: 1,
			Humans:               1,
		},
		Status: StatusConfig{
			Enabled: true,
			Listen:  "127.0.0.1:8321",
		},
		Recorder: RecorderConfig{
			Path:      "takes.db",
			QueueSize: 256,
		},
	}
}

// Load reads path on top of the defaults. Keys missing from the file keep
// their default value.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := Parse(b, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes b into cfg and validates the result. Sources and tags listed
// in b replace the ones in cfg instead of extending them.
func Parse(b []byte, cfg *Config) error {
	sources, tags := cfg.Sources, cfg.Sim.Tags
	cfg.Sources, cfg.Sim.Tags = nil, nil
	if err := toml.Unmarshal(b, cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return fmt.Errorf("line %d column %d: %w", row, col, err)
		}
		return err
	}
	if len(cfg.Sources) == 0 {
		cfg.Sources = sources
	}
	if cfg.Sim.Tags == nil {
		cfg.Sim.Tags = tags
	}
	for i := range cfg.Sources {
		if cfg.Sources[i].Port == 0 {
			cfg.Sources[i].Port = capture.DefaultPort
		}
		if cfg.Sources[i].Transport == "" {
			cfg.Sources[i].Transport = TransportUDP
		}
	}
	return cfg.Validate()
}

func Save(path string, cfg Config) error {
	b, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func (c Config) Validate() error {
	var problems []string
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		problems = append(problems, err.Error())
	}
	if c.TickRate <= 0 {
		problems = append(problems, fmt.Sprintf("tick_rate must be positive, got %v", c.TickRate))
	}
	if c.LiveLink.QueueCapacity <= 0 {
		problems = append(problems, "livelink.queue_capacity must be positive")
	}
	if len(c.Sources) == 0 {
		problems = append(problems, "at least one [[source]] is required")
	}
	for i, s := range c.Sources {
		if s.Host == "" {
			problems = append(problems, fmt.Sprintf("source %d: host is empty", i))
		}
		if s.Transport != TransportUDP && s.Transport != TransportTCP {
			problems = append(problems, fmt.Sprintf("source %d: transport must be udp or tcp, got %q", i, s.Transport))
		}
	}
	if c.Sim.FramerateNumerator <= 0 || c.Sim.FramerateDenominator <= 0 {
		problems = append(problems, "sim framerate must be positive")
	}
	if c.Status.Enabled && c.Status.Listen == "" {
		problems = append(problems, "status.listen is empty")
	}
	if c.Recorder.Enabled && c.Recorder.Path == "" {
		problems = append(problems, "recorder.path is empty")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", core.ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Options converts s into the options of a live-link source.
func (s SourceConfig) Options(l LiveLinkConfig) livelink.Options {
	return livelink.Options{
		Host:            s.Host,
		Port:            s.Port,
		UseTCP:          s.Transport == TransportTCP,
		StreamARTags:    s.ARTags,
		Compressed:      s.Compressed,
		QueueCapacity:   l.QueueCapacity,
		ResolveAttempts: l.ResolveAttempts,
	}
}
