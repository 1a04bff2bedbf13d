package dht

import (
	"net"

	"github.com/google/uuid"

	"github.com/foobarren/freeswitch-old/nodeid"
)

// PingRequest identifies a single outstanding liveness probe so the host's
// transport can correlate an eventual response — success or timeout —
// with the slot that sent it. The routing table never inspects the
// transaction ID itself; it only hands one out and waits for the host to
// call Touch or Expire once the outcome is known.
type PingRequest struct {
	TransactionID uuid.UUID
	Target        nodeid.ID
	Addr          net.Addr
}

// Pinger is the host-provided, non-blocking liveness-probe capability the
// sweep dispatches through. Implementations must return quickly — Ping
// should enqueue a probe and return, never block on the network. The
// eventual response is surfaced back through Table.Touch (success) or
// Table.Expire (failure/timeout); the routing table is otherwise fully
// decoupled from transport.
type Pinger interface {
	Ping(req PingRequest) error
}

// noopPinger is used when a Table is constructed without a Pinger. Sweeps
// still run and still age slots; they simply have nowhere to send probes.
type noopPinger struct{}

func (noopPinger) Ping(PingRequest) error { return nil }

func newPingRequest(target nodeid.ID, addr net.Addr) PingRequest {
	return PingRequest{
		TransactionID: uuid.New(),
		Target:        target,
		Addr:          addr,
	}
}
