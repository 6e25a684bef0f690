package astiplayer

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ConfigurationPlayer represents a player configuration
type ConfigurationPlayer struct {
	Elements           PlayerElements `toml:"elements" yaml:"elements"`
	PositionPollPeriod Duration       `toml:"position_poll_period" yaml:"position_poll_period"`
	Probe              bool           `toml:"probe" yaml:"probe"`
	SurfaceProperty    string         `toml:"surface_property" yaml:"surface_property"`
}

// Options returns the player options matching the configuration
func (c ConfigurationPlayer) Options(p MediaProber) (o PlayerOptions) {
	o = PlayerOptions{
		Elements:           c.Elements,
		PositionPollPeriod: c.PositionPollPeriod.Duration,
		SurfaceProperty:    c.SurfaceProperty,
	}
	if c.Probe {
		o.Prober = p
	}
	return
}

// ConfigurationServer represents a server configuration
type ConfigurationServer struct {
	Addr string `toml:"addr" yaml:"addr"`
}

// ConfigurationStats represents a stats configuration
type ConfigurationStats struct {
	Period Duration `toml:"period" yaml:"period"`
	PSUtil bool     `toml:"ps_util" yaml:"ps_util"`
}

// ConfigurationLog represents a log configuration
type ConfigurationLog struct {
	MessageMergingPeriod Duration `toml:"message_merging_period" yaml:"message_merging_period"`
}

// Duration is a time.Duration that can be decoded from strings such as "500ms"
type Duration struct {
	time.Duration
}

// NewDuration creates a new duration
func NewDuration(d time.Duration) Duration {
	return Duration{Duration: d}
}

// UnmarshalText implements the encoding.TextUnmarshaler interface
func (d *Duration) UnmarshalText(b []byte) (err error) {
	if d.Duration, err = time.ParseDuration(string(b)); err != nil {
		err = fmt.Errorf("astiplayer: parsing duration %s failed: %w", b, err)
		return
	}
	return
}

// MarshalText implements the encoding.TextMarshaler interface
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalYAML implements the yaml.Unmarshaler interface
func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	return d.UnmarshalText([]byte(n.Value))
}

// DecodeConfiguration decodes the file located at path into dst.
// YAML is used for .yml and .yaml extensions, TOML otherwise.
func DecodeConfiguration(path string, dst interface{}) (err error) {
	// Read file
	var b []byte
	if b, err = os.ReadFile(path); err != nil {
		err = fmt.Errorf("astiplayer: reading %s failed: %w", path, err)
		return
	}

	// Switch on extension
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		// Unknown fields are rejected
		d := yaml.NewDecoder(bytes.NewReader(b))
		d.KnownFields(true)
		if err = d.Decode(dst); err != nil {
			err = fmt.Errorf("astiplayer: decoding yaml %s failed: %w", path, err)
			return
		}
	default:
		if _, err = toml.Decode(string(b), dst); err != nil {
			err = fmt.Errorf("astiplayer: decoding toml %s failed: %w", path, err)
			return
		}
	}
	return
}
