package telehash

import (
	"errors"
	"fmt"

	"github.com/telehash/gotelehash/hashname"
)

var (
	ErrInvalidSharedSecret  = errors.New("telehash: invalid shared secret")
	ErrInvalidKeyLength     = errors.New("telehash: line keys must be 32 bytes")
	ErrKeysFrozen           = errors.New("telehash: line keys can no longer change")
	ErrNotReady             = errors.New("telehash: line is not ready")
	ErrLineClosed           = errors.New("telehash: line is closed")
	ErrLineReplaced         = errors.New("telehash: line was replaced by a newer line")
	ErrLineEvicted          = errors.New("telehash: line was evicted")
	ErrOpenTimeout          = errors.New("telehash: timeout while opening line")
	ErrDecryptionFailed     = errors.New("telehash: unable to decrypt line packet")
	ErrMissingChannelType   = errors.New("telehash: first packet of a channel has no type")
	ErrNoChannelHandler     = errors.New("telehash: no handler for channel type")
	ErrInvalidChannelPacket = errors.New("telehash: invalid channel packet")
	ErrChannelEnded         = errors.New("telehash: channel has ended")
	ErrSwitchStopped        = errors.New("telehash: switch is not running")
	ErrSwitchRunning        = errors.New("telehash: switch is already running")
	ErrMissingIdentity      = errors.New("telehash: missing identity")
	ErrMissingTransport     = errors.New("telehash: missing transport")
	ErrBadPassphrase        = errors.New("telehash: bad passphrase")
)

// BrokenLineError is the reason reported for a line that was torn down.
type BrokenLineError struct {
	Hashname hashname.H
	Reason   error
}

func (err *BrokenLineError) Error() string {
	return fmt.Sprintf("telehash: line to %s broken: %s", err.Hashname.Short(), err.Reason)
}

func (err *BrokenLineError) Unwrap() error { return err.Reason }

// UnreachableNodeError is returned when a node has no usable endpoint.
type UnreachableNodeError hashname.H

func (err UnreachableNodeError) Error() string {
	return fmt.Sprintf("telehash: node %s is unreachable", hashname.H(err).Short())
}

var (
	ErrUnknownLine   = errors.New("telehash: unknown line")
	ErrStaleOpen     = errors.New("telehash: stale open packet")
	ErrUnknownPacket = errors.New("telehash: unknown packet type")
)
