package main

import (
	"flag"
	"log"
	"os"
	"strings"

	"github.com/robotalks/spilink/pkg/bridge/msgs"
	"github.com/robotalks/spilink/pkg/comm/mqtt"
)

var (
	mqttURL = "mqtt://localhost:1883/spilink/"
)

func init() {
	if val := os.Getenv("SPILINK_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}

	q.Sub("#", mqtt.Handler(func(topic string, payload []byte) {
		switch {
		case strings.HasSuffix(topic, "/meta"):
			if len(payload) == 0 {
				log.Printf("%s: gone", topic)
				return
			}
			log.Printf("%s: %s", topic, string(payload))
		case strings.HasSuffix(topic, "/status"):
			status, err := msgs.DecodeStatus(payload)
			if err != nil {
				log.Printf("%s: bad status: %v", topic, err)
				return
			}
			log.Printf("%s: %s", topic, status.String())
		}
	}))
	if err := q.ConnectWait(mqtt.DefaultConnectTimeout); err != nil {
		log.Fatalln(err)
	}
	<-(chan struct{})(nil)
}
