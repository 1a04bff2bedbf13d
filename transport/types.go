// Package transport implements network transport layers for the routing
// table's liveness probes, built around a small interface so alternative
// transports (UDP, an in-memory fake for tests) are interchangeable.
package transport

import (
	"net"
)

// PacketHandler processes one received packet. Handlers run concurrently,
// one goroutine per received packet.
type PacketHandler func(packet *Packet, addr net.Addr) error

// Transport is the interface a ping transport must satisfy.
//
//export DHTTransport
type Transport interface {
	// Send transmits a packet to addr.
	Send(packet *Packet, addr net.Addr) error

	// Close shuts down the transport and releases its resources.
	Close() error

	// LocalAddr returns the address the transport is listening on.
	LocalAddr() net.Addr

	// RegisterHandler associates a handler with a packet type.
	RegisterHandler(packetType PacketType, handler PacketHandler)
}
