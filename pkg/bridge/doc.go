// Package bridge couples a register bus with a network peer.
//
// Three activities share two Cells:
//
//	peer -> Receiver -> ToBus -> Transfer -> bus
//	bus  -> Transfer -> FromBus -> Sender -> peer
//
// Transfer is a Controller running once per cadence tick and performs
// exactly one bus transfer per cycle. Receiver and Sender are Runnables
// driven by the network. Cells only keep the latest value, so the bus
// samples the peer and the peer sees only changed bus values.
package bridge
