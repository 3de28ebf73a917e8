// Package hashname provides the Hashname type.
//
// A hashname is the SHA-256 digest of the DER encoded public key of a peer.
// It is the only identity a peer has; network endpoints may change freely.
package hashname

import (
	"encoding/hex"
	"errors"
)

// ErrInvalidHashname is returned when parsing an invalid hashname.
var ErrInvalidHashname = errors.New("hashname: invalid hashname")

// Size is the length of a hashname in bytes.
const Size = 32

// H represents a hashname. H is comparable and can be used as a map key.
type H [Size]byte

// Zero is the zero value of H.
var Zero H

// FromBytes copies b into a hashname. b must be exactly Size bytes long.
func FromBytes(b []byte) (H, error) {
	if len(b) != Size {
		return Zero, ErrInvalidHashname
	}

	var h H
	copy(h[:], b)
	return h, nil
}

// FromString parses a hex encoded hashname.
func FromString(s string) (H, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Zero, ErrInvalidHashname
	}

	return FromBytes(b)
}

func (h H) String() string {
	return hex.EncodeToString(h[:])
}

// Short returns the first 8 hex characters. Used in log lines.
func (h H) Short() string {
	return h.String()[:8]
}

// Bytes returns a copy of the hashname bytes.
func (h H) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, h[:])
	return b
}

func (h H) IsZero() bool {
	return h == Zero
}

// MarshalText implements encoding.TextMarshaler.
func (h H) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *H) UnmarshalText(p []byte) error {
	x, err := FromString(string(p))
	if err != nil {
		return err
	}
	*h = x
	return nil
}

// Prefix returns the shortest hex prefix of b that distinguishes it from a.
func Prefix(a, b H) string {
	for i, byteA := range a {
		byteB := b[i]

		if byteA != byteB && i < Size-1 {
			return hex.EncodeToString(b[:i+1])
		}
	}

	return hex.EncodeToString(b[:])
}
