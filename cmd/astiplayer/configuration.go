package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/asticode/go-astiplayer"
	astigst "github.com/asticode/go-astiplayer/gstreamer"
)

// Flags
var (
	configPath = flag.String("c", "", "the config path")
	input      = flag.String("i", "", "the path to the media to load and play at startup")
)

// Configuration represents a configuration
type Configuration struct {
	GStreamer astigst.Options                `toml:"gstreamer" yaml:"gstreamer"`
	Log       astiplayer.ConfigurationLog    `toml:"log" yaml:"log"`
	Player    astiplayer.ConfigurationPlayer `toml:"player" yaml:"player"`
	Server    astiplayer.ConfigurationServer `toml:"server" yaml:"server"`
	Stats     astiplayer.ConfigurationStats  `toml:"stats" yaml:"stats"`
}

func newConfiguration() (c Configuration, err error) {
	// Default
	c = Configuration{
		GStreamer: astigst.Options{DebugLevel: 3},
		Log:       astiplayer.ConfigurationLog{MessageMergingPeriod: astiplayer.NewDuration(10 * time.Second)},
		Player: astiplayer.ConfigurationPlayer{
			PositionPollPeriod: astiplayer.NewDuration(500 * time.Millisecond),
			Probe:              true,
		},
		Server: astiplayer.ConfigurationServer{Addr: "127.0.0.1:4000"},
		Stats:  astiplayer.ConfigurationStats{Period: astiplayer.NewDuration(time.Second)},
	}

	// No config path
	if *configPath == "" {
		return
	}

	// Decode
	if err = astiplayer.DecodeConfiguration(*configPath, &c); err != nil {
		err = fmt.Errorf("main: decoding configuration failed: %w", err)
		return
	}
	return
}
