// Package telemetry reports a running bridge to an MQTT broker.
//
// Under the topic prefix of the broker URL, a bridge publishes
//
//	<id>/meta    retained JSON Meta, cleared when the bridge goes away
//	<id>/status  msgs.Status whenever the bridge counters change
package telemetry

import (
	"context"
	"encoding/json"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"

	"github.com/robotalks/spilink/pkg/bridge"
	"github.com/robotalks/spilink/pkg/bridge/msgs"
	"github.com/robotalks/spilink/pkg/comm/mqtt"
	fx "github.com/robotalks/spilink/pkg/framework"
)

// Meta describes a bridge.
type Meta struct {
	ID      string `json:"id"`
	Listen  string `json:"listen"`
	Peer    string `json:"peer"`
	Framing string `json:"framing,omitempty"`
	SPI     string `json:"spi,omitempty"`
	Cadence string `json:"cadence"`
}

// StatsSource provides the bridge counters.
type StatsSource interface {
	Stats() bridge.Stats
}

// Publisher publishes to topics relative to a prefix.
type Publisher interface {
	PubWith(topic string, payload []byte, qos byte, retain bool) paho.Token
}

// Reporter publishes Meta and Status.
type Reporter struct {
	Queue     *mqtt.Queue
	Publisher Publisher
	Meta      Meta
	Source    StatsSource

	metaJSON []byte
	last     bridge.Stats
	reported bool
}

// New creates a Reporter connecting to brokerURL.
func New(brokerURL string, meta Meta, source StatsSource) (*Reporter, error) {
	opts, topicPrefix, err := mqtt.ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	opts.SetBinaryWill(topicPrefix+meta.ID+"/meta", nil, 1, true)
	if opts.ClientID == "" {
		opts.SetClientID("spilink:" + meta.ID)
	}
	q := mqtt.NewQueue(opts, topicPrefix)
	r := NewWithPublisher(q, meta, source)
	r.Queue = q
	q.OnConnect = func(*mqtt.Queue) { r.publishMeta() }
	return r, nil
}

// NewWithPublisher creates a Reporter over an established Publisher.
func NewWithPublisher(pub Publisher, meta Meta, source StatsSource) *Reporter {
	metaJSON, err := json.Marshal(&meta)
	if err != nil {
		panic(err)
	}
	return &Reporter{Publisher: pub, Meta: meta, Source: source, metaJSON: metaJSON}
}

// AddToLoop implements framework.LoopAdder.
func (r *Reporter) AddToLoop(loop *fx.Loop) {
	loop.AddController(fx.PrLvPostProc, r)
}

// Control implements framework.Controller.
// Status is published when the counters changed since the last report.
func (r *Reporter) Control(cc fx.ControlContext) error {
	st := r.Source.Stats()
	if r.reported && st == r.last {
		return nil
	}
	r.last, r.reported = st, true
	payload, err := msgs.NewStatus(r.Meta.ID, st, cc.Time()).Encode()
	if err != nil {
		return err
	}
	r.Publisher.PubWith(r.Meta.ID+"/status", payload, 0, false)
	return nil
}

// Run implements framework.Runnable.
// Meta is cleared when ctx is done.
func (r *Reporter) Run(ctx context.Context) error {
	if r.Queue == nil {
		r.publishMeta()
		<-ctx.Done()
		r.clearMeta()
		return nil
	}
	token := r.Queue.Connect()
	go func() {
		if token.Wait() && token.Error() != nil {
			glog.Errorf("telemetry connect error: %v", token.Error())
		}
	}()
	<-ctx.Done()
	if err := mqtt.WaitToken(r.clearMeta(), time.Second); err != nil {
		glog.Warningf("clear meta: %v", err)
	}
	r.Queue.Close()
	return nil
}

func (r *Reporter) publishMeta() paho.Token {
	return r.Publisher.PubWith(r.Meta.ID+"/meta", r.metaJSON, 1, true)
}

func (r *Reporter) clearMeta() paho.Token {
	return r.Publisher.PubWith(r.Meta.ID+"/meta", nil, 1, true)
}
