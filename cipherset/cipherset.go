// Package cipherset defines the crypto service used by lines.
//
// A Suite bundles the primitives a line needs: digesting public keys into
// hashnames, composing and verifying open packets, deriving the shared secret
// and the directional line keys, and sealing line packets. Suites register
// themselves by id (see Register) so identities can be decoded without
// knowing the concrete implementation.
package cipherset

import (
	"errors"
	"fmt"
	"time"

	"github.com/telehash/gotelehash/hashname"
	"github.com/telehash/gotelehash/lob"
)

// KeySize is the length of a directional line key.
const KeySize = 32

var (
	ErrInvalidKey        = errors.New("cipherset: invalid key")
	ErrInvalidOpen       = errors.New("cipherset: invalid open packet")
	ErrInvalidLinePacket = errors.New("cipherset: invalid line packet")
	ErrUnknownSuite      = errors.New("cipherset: unknown suite")
)

// CryptoError is returned when a cryptographic operation fails.
type CryptoError struct {
	Op  string
	Err error
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("cipherset: %s: %s", e.Op, e.Err)
}

func (e *CryptoError) Unwrap() error { return e.Err }

// Fail wraps err in a *CryptoError. nil errors stay nil.
func Fail(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*CryptoError); ok {
		return err
	}
	return &CryptoError{Op: op, Err: err}
}

// PublicKey is the public half of an identity.
type PublicKey interface {
	// DER returns the binary encoding of the key. For cs1a this is PKIX DER.
	DER() ([]byte, error)
}

// PrivateKey is the private half of an identity.
type PrivateKey interface {
	Public() PublicKey

	// DER returns the binary encoding of the key. For cs1a this is PKCS#1 DER.
	DER() ([]byte, error)
}

// Open is a decoded (or about to be encoded) open packet.
type Open struct {
	LineID LineID
	At     int64 // milliseconds since the unix epoch
	To     hashname.H

	// Sender is the identity key of the party that composed the open.
	Sender PublicKey

	// Recipient is only set on locally composed opens.
	Recipient PublicKey

	// EphemeralPublic is the encoded ephemeral key of the sender.
	EphemeralPublic []byte

	// EphemeralPrivate is opaque to everything but the Suite that made it.
	// It is only set on locally composed opens.
	EphemeralPrivate interface{}
}

// Time returns At as a time.Time
func (o *Open) Time() time.Time {
	if o == nil {
		return time.Time{}
	}
	return time.Unix(o.At/1000, o.At%1000*int64(time.Millisecond))
}

// Suite is the crypto service consumed by lines and the switch.
type Suite interface {
	ID() uint8

	// Digest returns the 32 byte SHA-256 digest of data.
	Digest(data []byte) ([]byte, error)

	GenerateKey() (PrivateKey, error)
	DecodePublicKey(der []byte) (PublicKey, error)
	DecodePrivateKey(der []byte) (PrivateKey, error)

	// NewOpen makes a local open with fresh ephemeral key material.
	NewOpen(local PrivateKey, remote PublicKey, to hashname.H, id LineID, at int64) (*Open, error)
	EncodeOpen(local PrivateKey, o *Open) (*lob.Packet, error)
	DecodeOpen(local PrivateKey, pkt *lob.Packet) (*Open, error)

	DeriveSharedSecret(local, remote *Open) ([]byte, error)

	// DeriveDirectionalKeys returns the KeySize byte encryption and decryption keys.
	DeriveDirectionalKeys(secret []byte, local, remote *Open) (enc, dec []byte, err error)

	EncryptLine(key []byte, out LineID, inner []byte) (*lob.Packet, error)
	DecryptLine(key []byte, pkt *lob.Packet) ([]byte, error)
}

// Hashname derives the hashname of pub using suite.
func Hashname(suite Suite, pub PublicKey) (hashname.H, error) {
	if suite == nil || pub == nil {
		return hashname.Zero, Fail("hashname", ErrInvalidKey)
	}

	der, err := pub.DER()
	if err != nil {
		return hashname.Zero, Fail("hashname", err)
	}

	sum, err := suite.Digest(der)
	if err != nil {
		return hashname.Zero, Fail("hashname", err)
	}

	h, err := hashname.FromBytes(sum)
	if err != nil {
		return hashname.Zero, Fail("hashname", err)
	}

	return h, nil
}
