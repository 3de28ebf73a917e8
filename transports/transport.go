// Package transports defines how a switch moves datagrams.
//
// A switch owns exactly one Transport, opened from the Config it was given.
// Every read returns one whole telehash packet (an open or a line packet) and
// every write sends one. Transports never reorder a packet's bytes or merge
// packets, but they may drop, duplicate or reorder whole packets.
//
//	sw, err := telehash.NewSwitch(telehash.Config{
//		Transport: udp.Config{Network: udp.UDPv4, Addr: ":42424"},
//	})
//
// Addresses cross the wire inside node descriptions, so every Addr type has a
// JSON form and a decoder registered with RegisterAddrDecoder.
package transports

import (
	"errors"
)

var (
	// ErrClosed is returned by ReadMessage and WriteMessage once the transport
	// is closed. The switch stops its read loop when it sees it.
	ErrClosed = errors.New("transports: closed")

	// ErrInvalidAddr is returned when an address does not belong to the
	// transport it was given to, or cannot be decoded.
	ErrInvalidAddr = errors.New("transports: invalid address")
)

// Config opens a transport. Configs are plain values so they can be embedded
// in a switch configuration.
type Config interface {
	Open() (Transport, error)
}

// Transport carries packets for one switch. ReadMessage is only called from
// the switch's read loop; WriteMessage and LocalAddresses may be called from
// any goroutine.
type Transport interface {
	// LocalAddresses lists where peers can reach this switch. The first one
	// is published in the local node description.
	LocalAddresses() []Addr

	// ReadMessage blocks for the next packet and copies it into p, which is
	// at least bufpool.BufferSize long.
	ReadMessage(p []byte) (n int, src Addr, err error)

	// WriteMessage sends p to dst. An address of another network is
	// reported as ErrInvalidAddr; a packet to a vanished peer may be dropped
	// without an error.
	WriteMessage(p []byte, dst Addr) error

	// Close unblocks a pending ReadMessage. Closing twice returns ErrClosed.
	Close() error
}

// Addr is the endpoint of a node.
type Addr interface {
	// Network names the transport, like "udp4" or "pipe". It is the "type"
	// field of the JSON form.
	Network() string

	String() string

	MarshalJSON() ([]byte, error)

	// Equal compares addresses of the same network. Use EqualAddr.
	Equal(other Addr) bool
}

// EqualAddr reports whether a and b name the same endpoint. Two nil
// addresses are equal.
func EqualAddr(a, b Addr) bool {
	switch {
	case a == nil || b == nil:
		return a == nil && b == nil
	case a.Network() != b.Network():
		return false
	default:
		return a.Equal(b)
	}
}
