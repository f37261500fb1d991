// Package msgs defines the messages published about a running bridge.
package msgs

import (
	"time"

	"github.com/golang/protobuf/proto"

	"github.com/robotalks/spilink/pkg/bridge"
)

// Status mirrors the Status message in status.proto.
type Status struct {
	Id                   string   `protobuf:"bytes,1,opt,name=id,proto3" json:"id,omitempty"`
	Timestamp            int64    `protobuf:"varint,2,opt,name=timestamp,proto3" json:"timestamp,omitempty"`
	Cycles               uint64   `protobuf:"varint,3,opt,name=cycles,proto3" json:"cycles,omitempty"`
	TransferErrors       uint64   `protobuf:"varint,4,opt,name=transfer_errors,json=transferErrors,proto3" json:"transfer_errors,omitempty"`
	Received             uint64   `protobuf:"varint,5,opt,name=received,proto3" json:"received,omitempty"`
	Malformed            uint64   `protobuf:"varint,6,opt,name=malformed,proto3" json:"malformed,omitempty"`
	Sent                 uint64   `protobuf:"varint,7,opt,name=sent,proto3" json:"sent,omitempty"`
	LastToBus            uint32   `protobuf:"varint,8,opt,name=last_to_bus,json=lastToBus,proto3" json:"last_to_bus,omitempty"`
	LastFromBus          uint32   `protobuf:"varint,9,opt,name=last_from_bus,json=lastFromBus,proto3" json:"last_from_bus,omitempty"`
	ToBusSuperseded      uint64   `protobuf:"varint,10,opt,name=to_bus_superseded,json=toBusSuperseded,proto3" json:"to_bus_superseded,omitempty"`
	FromBusSuperseded    uint64   `protobuf:"varint,11,opt,name=from_bus_superseded,json=fromBusSuperseded,proto3" json:"from_bus_superseded,omitempty"`
	XXX_NoUnkeyedLiteral struct{} `json:"-"`
	XXX_unrecognized     []byte   `json:"-"`
	XXX_sizecache        int32    `json:"-"`
}

// Reset implements proto.Message.
func (m *Status) Reset() { *m = Status{} }

// String implements proto.Message.
func (m *Status) String() string { return proto.CompactTextString(m) }

// ProtoMessage implements proto.Message.
func (*Status) ProtoMessage() {}

// NewStatus creates a Status from bridge counters.
func NewStatus(id string, st bridge.Stats, at time.Time) *Status {
	return &Status{
		Id:                id,
		Timestamp:         at.UnixNano() / int64(time.Millisecond),
		Cycles:            st.Cycles,
		TransferErrors:    st.TransferErrors,
		Received:          st.Received,
		Malformed:         st.Malformed,
		Sent:              st.Sent,
		LastToBus:         uint32(st.LastToBus),
		LastFromBus:       uint32(st.LastFromBus),
		ToBusSuperseded:   st.ToBus.Superseded,
		FromBusSuperseded: st.FromBus.Superseded,
	}
}

// Encode serializes the Status.
func (m *Status) Encode() ([]byte, error) {
	return proto.Marshal(m)
}

// DecodeStatus parses a serialized Status.
func DecodeStatus(data []byte) (*Status, error) {
	m := &Status{}
	if err := proto.Unmarshal(data, m); err != nil {
		return nil, err
	}
	return m, nil
}
