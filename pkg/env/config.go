// Package env provides the configuration of the bridge and opens what it
// configures.
package env

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/robotalks/spilink/pkg/bridge"
	"github.com/robotalks/spilink/pkg/bus"
	"github.com/robotalks/spilink/pkg/comm"
	"github.com/robotalks/spilink/pkg/comm/mqtt"
	"github.com/robotalks/spilink/pkg/comm/stream"
)

// SimDevice selects the simulated bus instead of an SPI port.
const SimDevice = "sim"

// Config provides the options of the bridge.
type Config struct {
	// Listen is the endpoint the peer connects to.
	// e.g. tcp://:5560, ws://:8080/spilink, mqtt://host:1883/topic
	Listen string `yaml:"listen"`
	// Peer is the endpoint of the peer.
	Peer string `yaml:"peer"`
	// Framing applies to tcp endpoints: raw, line or length.
	Framing string `yaml:"framing"`

	// SPIDevice is the SPI port name, empty for the first one,
	// or "sim" for a simulated device.
	SPIDevice string `yaml:"spi"`
	SPIClock  int64  `yaml:"spi-clock"`
	SPIMode   int    `yaml:"spi-mode"`

	// Cadence is the interval between bus transfers.
	Cadence time.Duration `yaml:"cadence"`
	// ConnectTimeout bounds the connection to the peer at start.
	ConnectTimeout time.Duration `yaml:"connect-timeout"`

	// MQTTURL enables telemetry when not empty.
	// e.g. mqtt://host:port/topic-prefix
	MQTTURL string `yaml:"mqtt"`
	// ID identifies the bridge in telemetry, the machine ID by default.
	ID string `yaml:"id"`

	// ConfigFile is an optional YAML file with the options above.
	ConfigFile string `yaml:"-"`
}

var builtinConfig = Config{
	Listen:         "tcp://:5560",
	Peer:           "tcp://10.3.141.106:5561",
	Framing:        string(stream.FramingRaw),
	SPIClock:       500000,
	Cadence:        bridge.DefaultCadence,
	ConnectTimeout: 30 * time.Second,
}

var defaultConfig = builtinConfig

// SetupFlags sets command line flags.
func SetupFlags() {
	defaultConfig.BindFlags(flag.CommandLine)
}

// BindFlags defines flags on fs storing into c.
func (c *Config) BindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Listen, "listen", c.Listen, "Endpoint to accept the peer on")
	fs.StringVar(&c.Peer, "peer", c.Peer, "Endpoint of the peer")
	fs.StringVar(&c.Framing, "framing", c.Framing, "Packet framing over tcp: raw, line, length")
	fs.StringVar(&c.SPIDevice, "spi", c.SPIDevice, "SPI port, empty for the first one, sim for simulation")
	fs.Int64Var(&c.SPIClock, "spi-clock", c.SPIClock, "SPI clock in Hz")
	fs.IntVar(&c.SPIMode, "spi-mode", c.SPIMode, "SPI mode 0-3")
	fs.DurationVar(&c.Cadence, "cadence", c.Cadence, "Interval between bus transfers")
	fs.DurationVar(&c.ConnectTimeout, "connect-timeout", c.ConnectTimeout, "Timeout connecting the peer")
	fs.StringVar(&c.MQTTURL, "mqtt", c.MQTTURL, "MQTT broker URL for telemetry")
	fs.StringVar(&c.ID, "id", c.ID, "Bridge ID")
	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "YAML config file")
}

// Load resolves the config from command line flags, environment
// variables and the config file, in order of precedence.
func Load() (*Config, error) {
	return load(flag.CommandLine, os.LookupEnv)
}

// MustLoad loads the config and fails on error.
func MustLoad() *Config {
	conf, err := Load()
	if err != nil {
		log.Fatalln(err)
	}
	return conf
}

func load(fs *flag.FlagSet, lookupEnv func(string) (string, bool)) (*Config, error) {
	overlay := func(c *Config) error {
		if err := c.applyEnv(lookupEnv); err != nil {
			return err
		}
		return c.applyFlags(fs)
	}
	conf := builtinConfig
	if err := overlay(&conf); err != nil {
		return nil, err
	}
	if file := conf.ConfigFile; file != "" {
		conf = builtinConfig
		if err := conf.LoadFile(file); err != nil {
			return nil, err
		}
		if err := overlay(&conf); err != nil {
			return nil, err
		}
	}
	if conf.ID == "" {
		conf.ID = MachineID()
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}

// LoadFile overrides c with the options present in a YAML file.
func (c *Config) LoadFile(fn string) error {
	f, err := os.Open(fn)
	if err != nil {
		return err
	}
	defer f.Close()
	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil {
		return fmt.Errorf("config file %s: %w", fn, err)
	}
	return nil
}

func (c *Config) applyEnv(lookupEnv func(string) (string, bool)) error {
	strs := map[string]*string{
		"SPILINK_LISTEN":   &c.Listen,
		"SPILINK_PEER":     &c.Peer,
		"SPILINK_FRAMING":  &c.Framing,
		"SPILINK_SPI":      &c.SPIDevice,
		"SPILINK_MQTT_URL": &c.MQTTURL,
		"SPILINK_ID":       &c.ID,
		"SPILINK_CONFIG":   &c.ConfigFile,
	}
	for name, ptr := range strs {
		if val, ok := lookupEnv(name); ok && val != "" {
			*ptr = val
		}
	}
	var err error
	if val, ok := lookupEnv("SPILINK_SPI_CLOCK"); ok && val != "" {
		if c.SPIClock, err = strconv.ParseInt(val, 10, 64); err != nil {
			return fmt.Errorf("SPILINK_SPI_CLOCK: %w", err)
		}
	}
	if val, ok := lookupEnv("SPILINK_SPI_MODE"); ok && val != "" {
		if c.SPIMode, err = strconv.Atoi(val); err != nil {
			return fmt.Errorf("SPILINK_SPI_MODE: %w", err)
		}
	}
	if val, ok := lookupEnv("SPILINK_CADENCE"); ok && val != "" {
		if c.Cadence, err = time.ParseDuration(val); err != nil {
			return fmt.Errorf("SPILINK_CADENCE: %w", err)
		}
	}
	if val, ok := lookupEnv("SPILINK_CONNECT_TIMEOUT"); ok && val != "" {
		if c.ConnectTimeout, err = time.ParseDuration(val); err != nil {
			return fmt.Errorf("SPILINK_CONNECT_TIMEOUT: %w", err)
		}
	}
	return nil
}

// applyFlags copies the flags explicitly set in fs onto c.
func (c *Config) applyFlags(fs *flag.FlagSet) error {
	bound := flag.NewFlagSet("config", flag.ContinueOnError)
	c.BindFlags(bound)
	var err error
	fs.Visit(func(f *flag.Flag) {
		if err != nil || bound.Lookup(f.Name) == nil {
			return
		}
		err = bound.Set(f.Name, f.Value.String())
	})
	return err
}

// Validate checks the options.
func (c *Config) Validate() error {
	if _, err := comm.ParseEndpoint(c.Listen); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	if _, err := comm.ParseEndpoint(c.Peer); err != nil {
		return fmt.Errorf("peer: %w", err)
	}
	if _, err := stream.ParseFraming(c.Framing); err != nil {
		return err
	}
	if c.Cadence <= 0 {
		return errors.New("cadence must be positive")
	}
	if c.ConnectTimeout <= 0 {
		return errors.New("connect timeout must be positive")
	}
	if c.SPIDevice != SimDevice {
		if c.SPIClock <= 0 {
			return errors.New("SPI clock must be positive")
		}
		if c.SPIMode < 0 || c.SPIMode > 3 {
			return fmt.Errorf("invalid SPI mode %d", c.SPIMode)
		}
	}
	if c.MQTTURL != "" {
		if _, _, err := mqtt.ClientOptionsFromURL(c.MQTTURL); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	return nil
}

// PeerOptions returns the options to connect the peer.
func (c *Config) PeerOptions() comm.Options {
	return comm.Options{
		Framing:        stream.Framing(c.Framing),
		DialInterval:   comm.DefaultDialInterval,
		ConnectTimeout: c.ConnectTimeout,
	}
}

// OpenBus opens the configured bus.
func (c *Config) OpenBus() (bus.Bus, error) {
	if c.SPIDevice == SimDevice {
		return bus.NewSim(nil), nil
	}
	port, err := bus.OpenSPI(bus.SPIConfig{
		Device:  c.SPIDevice,
		ClockHz: c.SPIClock,
		Mode:    c.SPIMode,
	})
	if err != nil {
		return nil, err
	}
	return port, nil
}

// MustOpenBus opens the bus and fails on error.
func (c *Config) MustOpenBus() bus.Bus {
	b, err := c.OpenBus()
	if err != nil {
		log.Fatalln(err)
	}
	return b
}

// OpenPeer listens and connects to the peer.
func (c *Config) OpenPeer(ctx context.Context) (*comm.Peer, error) {
	return comm.OpenPeer(ctx, c.Listen, c.Peer, c.PeerOptions())
}
