package main

//go-build: CGO_ENABLED=0

import (
	"flag"
	"log"

	"github.com/robotalks/spilink/pkg/bridge"
	"github.com/robotalks/spilink/pkg/comm"
	"github.com/robotalks/spilink/pkg/env"
	fx "github.com/robotalks/spilink/pkg/framework"
	"github.com/robotalks/spilink/pkg/telemetry"
)

func init() {
	env.SetupFlags()
}

func main() {
	flag.Parse()

	conf := env.MustLoad()
	runner := fx.NewRunner().HandleSignals()
	bus := conf.MustOpenBus()
	peer, err := conf.OpenPeer(runner.Context)
	if err != nil {
		bus.Close()
		log.Fatalln(err)
	}

	br := bridge.New(bus, peer.In, peer.Out)
	br.Cadence = conf.Cadence
	if conf.MQTTURL != "" {
		reporter, err := telemetry.New(conf.MQTTURL, telemetry.Meta{
			ID:      conf.ID,
			Listen:  conf.Listen,
			Peer:    conf.Peer,
			Framing: conf.Framing,
			SPI:     conf.SPIDevice,
			Cadence: conf.Cadence.String(),
		}, br)
		if err != nil {
			br.Close()
			log.Fatalln(err)
		}
		br.With(reporter)
	}

	err = runner.Go(fx.NamedRun("bridge", br)).Wait()
	if err != nil && !comm.IsExpectedCloseError(err) {
		log.Fatalln(err)
	}
}
