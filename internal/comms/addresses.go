// Package comms wires the message fabric (internal/comms/zmq), the
// broker's proxies (internal/comms/broker), the Service Registry, and the
// service lifecycle state machine together
package comms

import "fmt"

// PushChannel names one logical push/pull work queue. PUSH/PULL carries no
// topic routing, so each producer/consumer pair gets its own proxy pair:
// credits dropped to workers, credits returned to the Timing Manager, raw
// request records to the Record Processors, and processed metric/telemetry
// records to the Records Manager.
type PushChannel string

const (
	ChannelCreditDrop   PushChannel = "credit-drop"
	ChannelCreditReturn PushChannel = "credit-return"
	ChannelRawInference PushChannel = "raw-inference"
	ChannelRecords      PushChannel = "records"
)

// PushChannels lists every channel the broker must proxy, in bind order.
var PushChannels = []PushChannel{ChannelCreditDrop, ChannelCreditReturn, ChannelRawInference, ChannelRecords}

// Endpoints resolves the broker endpoints from a ServiceConfig.
// ipc/tcp selection and host/port assembly live here so both the broker
// (which binds) and every client (which dials) agree on the same strings.
type Endpoints struct {
	PubSubFrontend string // XSUB; PUB clients dial here
	PubSubBackend  string // XPUB; SUB clients dial here
	DealerFrontend string // ROUTER; DEALER clients dial here
	DealerBackend  string // DEALER; ROUTER clients dial here

	// PushFrontend/PushBackend map each logical work queue to its PULL-side
	// (producers dial) and PUSH-side (consumers dial) endpoint.
	PushFrontend map[PushChannel]string
	PushBackend  map[PushChannel]string
}

// ServiceAddressing is the subset of ServiceConfig Resolve needs; kept as an
// interface so tests can supply a fake without importing internal/config.
type ServiceAddressing interface {
	BusTransport() string
	BusHost() string
	BusIPCDir() string
	BusPorts() (pubSubFrontend, pubSubBackend, dealerFrontend, dealerBackend, pushFrontend, pushBackend int)
}

// Resolve builds the endpoint strings for either ipc or tcp transport. For
// tcp, push channels occupy consecutive port pairs starting at the
// configured push frontend/backend ports.
func Resolve(a ServiceAddressing) Endpoints {
	pf, pb, df, db, hf, hb := a.BusPorts()
	eps := Endpoints{
		PushFrontend: make(map[PushChannel]string, len(PushChannels)),
		PushBackend:  make(map[PushChannel]string, len(PushChannels)),
	}

	if a.BusTransport() == "ipc" {
		dir := a.BusIPCDir()
		eps.PubSubFrontend = fmt.Sprintf("ipc://%s/pubsub-frontend.sock", dir)
		eps.PubSubBackend = fmt.Sprintf("ipc://%s/pubsub-backend.sock", dir)
		eps.DealerFrontend = fmt.Sprintf("ipc://%s/dealer-frontend.sock", dir)
		eps.DealerBackend = fmt.Sprintf("ipc://%s/dealer-backend.sock", dir)
		for _, ch := range PushChannels {
			eps.PushFrontend[ch] = fmt.Sprintf("ipc://%s/push-%s-frontend.sock", dir, ch)
			eps.PushBackend[ch] = fmt.Sprintf("ipc://%s/push-%s-backend.sock", dir, ch)
		}
		return eps
	}

	host := a.BusHost()
	eps.PubSubFrontend = fmt.Sprintf("tcp://%s:%d", host, pf)
	eps.PubSubBackend = fmt.Sprintf("tcp://%s:%d", host, pb)
	eps.DealerFrontend = fmt.Sprintf("tcp://%s:%d", host, df)
	eps.DealerBackend = fmt.Sprintf("tcp://%s:%d", host, db)
	for i, ch := range PushChannels {
		eps.PushFrontend[ch] = fmt.Sprintf("tcp://%s:%d", host, hf+2*i)
		eps.PushBackend[ch] = fmt.Sprintf("tcp://%s:%d", host, hb+2*i)
	}
	return eps
}
