// Package cs3a implements the Curve25519 cipher set.
//
// Identities are Curve25519 keys. An open carries a fresh line key and an
// inner packet sealed with NaCl box from the line key to the recipient's
// identity. The whole body is authenticated with a Poly1305 tag keyed by the
// identity agreement, which proves the sender holds its identity key. Line
// packets are sealed with NaCl box using the directional keys as the
// precomputed shared key.
package cs3a

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/poly1305"

	"github.com/telehash/gotelehash/cipherset"
	"github.com/telehash/gotelehash/hashname"
	"github.com/telehash/gotelehash/lob"
)

// ID is the suite id of cs3a.
const ID = 0x3a

const (
	lenKey   = 32
	lenNonce = 24
	lenAuth  = 16
)

var (
	_ cipherset.Suite      = (*suite)(nil)
	_ cipherset.PublicKey  = (*PublicKey)(nil)
	_ cipherset.PrivateKey = (*PrivateKey)(nil)
)

var errSealBroken = errors.New("box authentication failed")

func init() {
	cipherset.Register(New())
}

type suite struct{}

// New returns the cs3a suite.
func New() cipherset.Suite {
	return &suite{}
}

// PublicKey is a Curve25519 public identity key.
type PublicKey struct {
	key [lenKey]byte
}

// PrivateKey is a Curve25519 private identity key.
type PrivateKey struct {
	prv [lenKey]byte
	pub [lenKey]byte
}

// DER returns the raw 32 byte key.
func (k *PublicKey) DER() ([]byte, error) {
	if k == nil {
		return nil, cipherset.ErrInvalidKey
	}
	return append([]byte(nil), k.key[:]...), nil
}

func (k *PrivateKey) Public() cipherset.PublicKey {
	return &PublicKey{key: k.pub}
}

// DER returns the raw 32 byte scalar.
func (k *PrivateKey) DER() ([]byte, error) {
	if k == nil {
		return nil, cipherset.ErrInvalidKey
	}
	return append([]byte(nil), k.prv[:]...), nil
}

func (s *suite) ID() uint8 { return ID }

func (s *suite) Digest(data []byte) ([]byte, error) {
	sum := sha256.Sum256(data)
	return sum[:], nil
}

func (s *suite) GenerateKey() (cipherset.PrivateKey, error) {
	pub, prv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, cipherset.Fail("generate key", err)
	}
	return &PrivateKey{prv: *prv, pub: *pub}, nil
}

func (s *suite) DecodePublicKey(der []byte) (cipherset.PublicKey, error) {
	if len(der) != lenKey {
		return nil, cipherset.Fail("decode public key", cipherset.ErrInvalidKey)
	}
	k := &PublicKey{}
	copy(k.key[:], der)
	return k, nil
}

func (s *suite) DecodePrivateKey(der []byte) (cipherset.PrivateKey, error) {
	if len(der) != lenKey {
		return nil, cipherset.Fail("decode private key", cipherset.ErrInvalidKey)
	}

	pub, err := curve25519.X25519(der, curve25519.Basepoint)
	if err != nil {
		return nil, cipherset.Fail("decode private key", err)
	}

	k := &PrivateKey{}
	copy(k.prv[:], der)
	copy(k.pub[:], pub)
	return k, nil
}

func (s *suite) NewOpen(local cipherset.PrivateKey, remote cipherset.PublicKey, to hashname.H, id cipherset.LineID, at int64) (*cipherset.Open, error) {
	if _, err := privateKey(local); err != nil {
		return nil, cipherset.Fail("new open", err)
	}
	if _, err := publicKey(remote); err != nil {
		return nil, cipherset.Fail("new open", err)
	}

	pub, prv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, cipherset.Fail("new open", err)
	}

	return &cipherset.Open{
		LineID:           id,
		At:               at,
		To:               to,
		Sender:           local.Public(),
		Recipient:        remote,
		EphemeralPublic:  append([]byte(nil), pub[:]...),
		EphemeralPrivate: prv,
	}, nil
}

// EncodeOpen lays out the body as line key, nonce, sealed inner packet and
// the Poly1305 tag over everything before it.
func (s *suite) EncodeOpen(local cipherset.PrivateKey, o *cipherset.Open) (*lob.Packet, error) {
	if o == nil || len(o.EphemeralPublic) != lenKey {
		return nil, cipherset.Fail("encode open", cipherset.ErrInvalidOpen)
	}

	linePrv, ok := o.EphemeralPrivate.(*[lenKey]byte)
	if !ok || linePrv == nil {
		return nil, cipherset.Fail("encode open", cipherset.ErrInvalidOpen)
	}

	self, err := privateKey(local)
	if err != nil {
		return nil, cipherset.Fail("encode open", err)
	}

	remote, err := publicKey(o.Recipient)
	if err != nil {
		return nil, cipherset.Fail("encode open", err)
	}

	inner := lob.New(append([]byte(nil), self.pub[:]...))
	{
		hdr := inner.Header()
		hdr.SetString("to", o.To.String())
		hdr.SetInt64("at", o.At)
		hdr.SetString("line", o.LineID.String())
	}

	innerData, err := lob.Encode(inner)
	if err != nil {
		return nil, cipherset.Fail("encode open", err)
	}

	var nonce [lenNonce]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, cipherset.Fail("encode open", err)
	}

	body := make([]byte, 0, lenKey+lenNonce+len(innerData)+box.Overhead+lenAuth)
	body = append(body, o.EphemeralPublic...)
	body = append(body, nonce[:]...)
	body = box.Seal(body, innerData, &nonce, &remote.key, linePrv)

	var mac [lenAuth]byte
	macKey := openMACKey(&nonce, &remote.key, &self.prv)
	poly1305.Sum(&mac, body, &macKey)
	body = append(body, mac[:]...)

	pkt := lob.New(body)
	pkt.Header().Type, pkt.Header().HasType = "open", true
	return pkt, nil
}

func (s *suite) DecodeOpen(local cipherset.PrivateKey, pkt *lob.Packet) (*cipherset.Open, error) {
	if pkt == nil {
		return nil, cipherset.ErrInvalidOpen
	}

	hdr := pkt.Header()
	if hdr == nil || !hdr.HasType || hdr.Type != "open" {
		return nil, cipherset.ErrInvalidOpen
	}

	self, err := privateKey(local)
	if err != nil {
		return nil, cipherset.Fail("decode open", err)
	}

	if len(pkt.Body) < lenKey+lenNonce+box.Overhead+lenAuth {
		return nil, cipherset.ErrInvalidOpen
	}

	var (
		body       = pkt.Body
		signed     = body[:len(body)-lenAuth]
		ciphertext = signed[lenKey+lenNonce:]
		lineKey    [lenKey]byte
		nonce      [lenNonce]byte
		mac        [lenAuth]byte
	)

	copy(lineKey[:], body[:lenKey])
	copy(nonce[:], body[lenKey:lenKey+lenNonce])
	copy(mac[:], body[len(body)-lenAuth:])

	innerData, ok := box.Open(nil, ciphertext, &nonce, &lineKey, &self.prv)
	if !ok {
		return nil, cipherset.Fail("decode open", errSealBroken)
	}

	inner, err := lob.Decode(innerData)
	if err != nil {
		return nil, cipherset.ErrInvalidOpen
	}

	ihdr := inner.Header()
	if ihdr == nil {
		return nil, cipherset.ErrInvalidOpen
	}

	var (
		lineHex, _ = ihdr.GetString("line")
		toHex, _   = ihdr.GetString("to")
		at, hasAt  = ihdr.GetInt64("at")
	)

	id, err := cipherset.ParseLineID(lineHex)
	if err != nil {
		return nil, cipherset.ErrInvalidOpen
	}

	to, err := hashname.FromString(toHex)
	if err != nil {
		return nil, cipherset.ErrInvalidOpen
	}

	if !hasAt || at <= 0 {
		return nil, cipherset.ErrInvalidOpen
	}

	sender, err := s.DecodePublicKey(inner.Body)
	if err != nil {
		return nil, err
	}

	macKey := openMACKey(&nonce, &sender.(*PublicKey).key, &self.prv)
	if !poly1305.Verify(&mac, signed, &macKey) {
		return nil, cipherset.Fail("verify open", errSealBroken)
	}

	return &cipherset.Open{
		LineID:          id,
		At:              at,
		To:              to,
		Sender:          sender,
		EphemeralPublic: append([]byte(nil), lineKey[:]...),
	}, nil
}

func (s *suite) DeriveSharedSecret(local, remote *cipherset.Open) ([]byte, error) {
	if local == nil || remote == nil {
		return nil, cipherset.Fail("shared secret", cipherset.ErrInvalidOpen)
	}

	prv, ok := local.EphemeralPrivate.(*[lenKey]byte)
	if !ok || prv == nil || len(remote.EphemeralPublic) != lenKey {
		return nil, cipherset.Fail("shared secret", cipherset.ErrInvalidKey)
	}

	var (
		pub    [lenKey]byte
		shared [lenKey]byte
	)
	copy(pub[:], remote.EphemeralPublic)
	box.Precompute(&shared, &pub, prv)

	return shared[:], nil
}

func (s *suite) DeriveDirectionalKeys(secret []byte, local, remote *cipherset.Open) (enc, dec []byte, err error) {
	if len(secret) == 0 {
		return nil, nil, cipherset.Fail("line keys", cipherset.ErrInvalidKey)
	}
	if local == nil || remote == nil {
		return nil, nil, cipherset.Fail("line keys", cipherset.ErrInvalidOpen)
	}

	enc = hashSHA256(secret, local.EphemeralPublic, remote.EphemeralPublic)
	dec = hashSHA256(secret, remote.EphemeralPublic, local.EphemeralPublic)
	return enc, dec, nil
}

func (s *suite) EncryptLine(key []byte, out cipherset.LineID, inner []byte) (*lob.Packet, error) {
	if len(key) != cipherset.KeySize {
		return nil, cipherset.Fail("encrypt line", cipherset.ErrInvalidKey)
	}

	var (
		shared [lenKey]byte
		nonce  [lenNonce]byte
	)
	copy(shared[:], key)
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, cipherset.Fail("encrypt line", err)
	}

	body := make([]byte, 0, lenNonce+len(inner)+box.Overhead)
	body = append(body, nonce[:]...)
	body = box.SealAfterPrecomputation(body, inner, &nonce, &shared)

	pkt := lob.New(body)
	hdr := pkt.Header()
	hdr.Type, hdr.HasType = "line", true
	hdr.SetString("line", out.String())

	return pkt, nil
}

func (s *suite) DecryptLine(key []byte, pkt *lob.Packet) ([]byte, error) {
	if len(key) != cipherset.KeySize {
		return nil, cipherset.Fail("decrypt line", cipherset.ErrInvalidKey)
	}
	if pkt == nil {
		return nil, cipherset.ErrInvalidLinePacket
	}

	hdr := pkt.Header()
	if hdr == nil || hdr.Type != "line" || len(pkt.Body) < lenNonce+box.Overhead {
		return nil, cipherset.ErrInvalidLinePacket
	}

	var (
		shared [lenKey]byte
		nonce  [lenNonce]byte
	)
	copy(shared[:], key)
	copy(nonce[:], pkt.Body[:lenNonce])

	inner, ok := box.OpenAfterPrecomputation(nil, pkt.Body[lenNonce:], &nonce, &shared)
	if !ok {
		return nil, cipherset.Fail("decrypt line", errSealBroken)
	}
	return inner, nil
}

// openMACKey keys the open tag with the identity agreement and the nonce.
func openMACKey(nonce *[lenNonce]byte, peer, self *[lenKey]byte) [lenKey]byte {
	var agreed, macKey [lenKey]byte
	box.Precompute(&agreed, peer, self)

	sha := sha256.New()
	sha.Write(nonce[:])
	sha.Write(agreed[:])
	sha.Sum(macKey[:0])
	return macKey
}

func publicKey(k cipherset.PublicKey) (*PublicKey, error) {
	x, ok := k.(*PublicKey)
	if !ok || x == nil {
		return nil, cipherset.ErrInvalidKey
	}
	return x, nil
}

func privateKey(k cipherset.PrivateKey) (*PrivateKey, error) {
	x, ok := k.(*PrivateKey)
	if !ok || x == nil {
		return nil, cipherset.ErrInvalidKey
	}
	return x, nil
}

func hashSHA256(data ...[]byte) []byte {
	h := sha256.New()
	for _, c := range data {
		h.Write(c)
	}
	return h.Sum(nil)
}
