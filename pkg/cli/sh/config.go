package sh

import (
	"flag"
	"os"
	"time"

	"github.com/robotalks/spilink/pkg/comm"
	"github.com/robotalks/spilink/pkg/comm/stream"
)

// Config provides the endpoints to connect a bridge.
type Config struct {
	// Listen is where the bridge connects to.
	Listen string
	// Bridge is the listen endpoint of the bridge.
	Bridge         string
	Framing        string
	ConnectTimeout time.Duration
}

var defaultConfig = Config{
	Listen:         "tcp://:5561",
	Bridge:         "tcp://localhost:5560",
	Framing:        string(stream.FramingRaw),
	ConnectTimeout: 30 * time.Second,
}

func init() {
	if val := os.Getenv("SPILINK_PEER_LISTEN"); val != "" {
		defaultConfig.Listen = val
	}
	if val := os.Getenv("SPILINK_BRIDGE"); val != "" {
		defaultConfig.Bridge = val
	}
	if val := os.Getenv("SPILINK_FRAMING"); val != "" {
		defaultConfig.Framing = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Listen, "listen", defaultConfig.Listen, "Endpoint the bridge connects to")
	flag.StringVar(&defaultConfig.Bridge, "bridge", defaultConfig.Bridge, "Listen endpoint of the bridge")
	flag.StringVar(&defaultConfig.Framing, "framing", defaultConfig.Framing, "Packet framing over tcp: raw, line, length")
	flag.DurationVar(&defaultConfig.ConnectTimeout, "connect-timeout", defaultConfig.ConnectTimeout, "Timeout connecting the bridge")
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// PeerOptions returns the options to connect the bridge.
func (c *Config) PeerOptions() comm.Options {
	return comm.Options{
		Framing:        stream.Framing(c.Framing),
		DialInterval:   comm.DefaultDialInterval,
		ConnectTimeout: c.ConnectTimeout,
	}
}
