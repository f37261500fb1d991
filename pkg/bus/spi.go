package bus

import (
	"fmt"
	"sync"

	"github.com/golang/glog"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// SPIConfig describes the SPI port to open.
type SPIConfig struct {
	// Device is the port name (e.g. "/dev/spidev0.0" or "SPI0.0"),
	// empty for the first available port.
	Device string
	// ClockHz is the maximum clock rate.
	ClockHz int64
	// Mode is the SPI mode (0-3).
	Mode int
}

// SPI is a Bus over an SPI port.
type SPI struct {
	port spi.PortCloser
	conn spi.Conn
	rx   Frame
	lock sync.Mutex
}

var hostInitOnce struct {
	sync.Once
	err error
}

// OpenSPI opens the SPI port with 8-bit words.
func OpenSPI(conf SPIConfig) (*SPI, error) {
	hostInitOnce.Do(func() {
		_, hostInitOnce.err = host.Init()
	})
	if err := hostInitOnce.err; err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	if conf.Mode < 0 || conf.Mode > 3 {
		return nil, fmt.Errorf("invalid SPI mode %d", conf.Mode)
	}
	port, err := spireg.Open(conf.Device)
	if err != nil {
		return nil, fmt.Errorf("open SPI port %q: %w", conf.Device, err)
	}
	conn, err := port.Connect(physic.Frequency(conf.ClockHz)*physic.Hertz, spi.Mode(conf.Mode), 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("connect SPI port %q: %w", conf.Device, err)
	}
	glog.Infof("SPI %s opened at %d Hz, mode %d", port, conf.ClockHz, conf.Mode)
	return &SPI{port: port, conn: conn}, nil
}

// Transfer implements Bus.
func (s *SPI) Transfer(tx Frame) (Frame, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.conn == nil {
		return Frame{}, ErrClosed
	}
	if err := s.conn.Tx(tx[:], s.rx[:]); err != nil {
		return Frame{}, err
	}
	return s.rx, nil
}

// Close implements Bus.
func (s *SPI) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port, s.conn = nil, nil
	return err
}
