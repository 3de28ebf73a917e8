// Package cs1a implements the RSA/ECDH cipher set.
//
// Identities are RSA keys. Every open packet carries a fresh ECDH P-256 key,
// encrypted to the recipient with RSA-OAEP, and an RSA signature over the
// encrypted inner packet. Line keys are SHA-256 digests of the ECDH secret and
// both line ids; line packets are sealed with AES-256-CTR.
package cs1a

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"errors"

	"github.com/gokyle/ecdh"

	"github.com/telehash/gotelehash/cipherset"
	"github.com/telehash/gotelehash/hashname"
	"github.com/telehash/gotelehash/lob"
)

// ID is the suite id of cs1a.
const ID = 0x1a

// DefaultKeyBits is the RSA modulus size used by GenerateKey.
const DefaultKeyBits = 2048

const ivSize = 16

var (
	_ cipherset.Suite      = (*suite)(nil)
	_ cipherset.PublicKey  = (*PublicKey)(nil)
	_ cipherset.PrivateKey = (*PrivateKey)(nil)
)

func init() {
	cipherset.Register(New())
}

type suite struct {
	bits int
}

// New returns the cs1a suite.
func New() cipherset.Suite {
	return &suite{bits: DefaultKeyBits}
}

// NewWithKeySize returns a cs1a suite that generates RSA keys of the given
// size. Smaller keys are only useful for tests.
func NewWithKeySize(bits int) cipherset.Suite {
	return &suite{bits: bits}
}

// PublicKey is an RSA public identity key.
type PublicKey struct {
	key *rsa.PublicKey
}

// PrivateKey is an RSA private identity key.
type PrivateKey struct {
	key *rsa.PrivateKey
}

// WrapPublicKey wraps an RSA public key.
func WrapPublicKey(k *rsa.PublicKey) *PublicKey { return &PublicKey{k} }

// WrapPrivateKey wraps an RSA private key.
func WrapPrivateKey(k *rsa.PrivateKey) *PrivateKey { return &PrivateKey{k} }

func (k *PublicKey) DER() ([]byte, error) {
	if k == nil || k.key == nil {
		return nil, cipherset.ErrInvalidKey
	}
	return x509.MarshalPKIXPublicKey(k.key)
}

func (k *PublicKey) RSA() *rsa.PublicKey { return k.key }

func (k *PrivateKey) Public() cipherset.PublicKey {
	return &PublicKey{&k.key.PublicKey}
}

func (k *PrivateKey) DER() ([]byte, error) {
	if k == nil || k.key == nil {
		return nil, cipherset.ErrInvalidKey
	}
	return x509.MarshalPKCS1PrivateKey(k.key), nil
}

func (s *suite) ID() uint8 { return ID }

func (s *suite) Digest(data []byte) ([]byte, error) {
	return hashSHA256(data), nil
}

func (s *suite) GenerateKey() (cipherset.PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, s.bits)
	if err != nil {
		return nil, cipherset.Fail("generate key", err)
	}
	return &PrivateKey{key}, nil
}

func (s *suite) DecodePublicKey(der []byte) (cipherset.PublicKey, error) {
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, cipherset.Fail("decode public key", err)
	}
	pub, ok := key.(*rsa.PublicKey)
	if !ok || pub == nil {
		return nil, cipherset.Fail("decode public key", errors.New("not an RSA key"))
	}
	if pub.N.Sign() <= 0 {
		return nil, cipherset.Fail("decode public key", errors.New("RSA modulus is not a positive number"))
	}
	if pub.E <= 0 {
		return nil, cipherset.Fail("decode public key", errors.New("RSA public exponent is not a positive number"))
	}
	return &PublicKey{pub}, nil
}

func (s *suite) DecodePrivateKey(der []byte) (cipherset.PrivateKey, error) {
	key, err := x509.ParsePKCS1PrivateKey(der)
	if err != nil {
		return nil, cipherset.Fail("decode private key", err)
	}
	return &PrivateKey{key}, nil
}

func (s *suite) NewOpen(local cipherset.PrivateKey, remote cipherset.PublicKey, to hashname.H, id cipherset.LineID, at int64) (*cipherset.Open, error) {
	if _, err := rsaPrivate(local); err != nil {
		return nil, cipherset.Fail("new open", err)
	}
	if _, err := rsaPublic(remote); err != nil {
		return nil, cipherset.Fail("new open", err)
	}

	prv, err := ecdh.GenerateKey(rand.Reader, elliptic.P256())
	if err != nil {
		return nil, cipherset.Fail("new open", err)
	}

	return &cipherset.Open{
		LineID:           id,
		At:               at,
		To:               to,
		Sender:           local.Public(),
		Recipient:        remote,
		EphemeralPublic:  elliptic.Marshal(prv.PublicKey.Curve, prv.PublicKey.X, prv.PublicKey.Y),
		EphemeralPrivate: prv,
	}, nil
}

func (s *suite) EncodeOpen(local cipherset.PrivateKey, o *cipherset.Open) (*lob.Packet, error) {
	if o == nil || o.EphemeralPrivate == nil {
		return nil, cipherset.Fail("encode open", cipherset.ErrInvalidOpen)
	}

	rsaPrv, err := rsaPrivate(local)
	if err != nil {
		return nil, cipherset.Fail("encode open", err)
	}

	rsaPub, err := rsaPublic(o.Recipient)
	if err != nil {
		return nil, cipherset.Fail("encode open", err)
	}

	iv, err := makeRand(ivSize)
	if err != nil {
		return nil, cipherset.Fail("encode open", err)
	}

	senderDER, err := local.Public().DER()
	if err != nil {
		return nil, cipherset.Fail("encode open", err)
	}

	inner := lob.New(senderDER)
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

	innerEnc, err := cryptAES256CTR(hashSHA256(o.EphemeralPublic), iv, innerData)
	if err != nil {
		return nil, cipherset.Fail("encode open", err)
	}

	sig, err := rsa.SignPKCS1v15(rand.Reader, rsaPrv, crypto.SHA256, hashSHA256(innerEnc))
	if err != nil {
		return nil, cipherset.Fail("encode open", err)
	}

	sigEnc, err := cryptAES256CTR(hashSHA256(o.EphemeralPublic, o.LineID[:]), iv, sig)
	if err != nil {
		return nil, cipherset.Fail("encode open", err)
	}

	openEnc, err := rsa.EncryptOAEP(sha1.New(), rand.Reader, rsaPub, o.EphemeralPublic, nil)
	if err != nil {
		return nil, cipherset.Fail("encode open", err)
	}

	pkt := lob.New(innerEnc)
	{
		hdr := pkt.Header()
		hdr.Type, hdr.HasType = "open", true
		hdr.SetString("open", base64.StdEncoding.EncodeToString(openEnc))
		hdr.SetString("sig", base64.StdEncoding.EncodeToString(sigEnc))
		hdr.SetString("iv", hex.EncodeToString(iv))
	}

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

	rsaPrv, err := rsaPrivate(local)
	if err != nil {
		return nil, cipherset.Fail("decode open", err)
	}

	var (
		ivHex, _   = hdr.GetString("iv")
		sigB64, _  = hdr.GetString("sig")
		openB64, _ = hdr.GetString("open")
	)

	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != ivSize {
		return nil, cipherset.ErrInvalidOpen
	}

	sigEnc, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil || len(sigEnc) == 0 {
		return nil, cipherset.ErrInvalidOpen
	}

	openEnc, err := base64.StdEncoding.DecodeString(openB64)
	if err != nil || len(openEnc) == 0 {
		return nil, cipherset.ErrInvalidOpen
	}

	eccPub, err := rsa.DecryptOAEP(sha1.New(), rand.Reader, rsaPrv, openEnc, nil)
	if err != nil {
		return nil, cipherset.Fail("decode open", err)
	}

	if x, _ := elliptic.Unmarshal(elliptic.P256(), eccPub); x == nil {
		return nil, cipherset.ErrInvalidOpen
	}

	innerData, err := cryptAES256CTR(hashSHA256(eccPub), iv, pkt.Body)
	if err != nil {
		return nil, cipherset.Fail("decode open", err)
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

	sig, err := cryptAES256CTR(hashSHA256(eccPub, id[:]), iv, sigEnc)
	if err != nil {
		return nil, cipherset.Fail("decode open", err)
	}

	err = rsa.VerifyPKCS1v15(sender.(*PublicKey).key, crypto.SHA256, hashSHA256(pkt.Body), sig)
	if err != nil {
		return nil, cipherset.Fail("verify open", err)
	}

	return &cipherset.Open{
		LineID:          id,
		At:              at,
		To:              to,
		Sender:          sender,
		EphemeralPublic: eccPub,
	}, nil
}

func (s *suite) DeriveSharedSecret(local, remote *cipherset.Open) ([]byte, error) {
	if local == nil || remote == nil {
		return nil, cipherset.Fail("shared secret", cipherset.ErrInvalidOpen)
	}

	prv, ok := local.EphemeralPrivate.(*ecdh.PrivateKey)
	if !ok || prv == nil {
		return nil, cipherset.Fail("shared secret", cipherset.ErrInvalidKey)
	}

	x, y := elliptic.Unmarshal(elliptic.P256(), remote.EphemeralPublic)
	if x == nil {
		return nil, cipherset.Fail("shared secret", cipherset.ErrInvalidKey)
	}

	pub := &ecdh.PublicKey{Curve: elliptic.P256(), X: x, Y: y}

	secret, err := prv.GenerateShared(pub, ecdh.MaxSharedKeyLength(pub))
	if err != nil {
		return nil, cipherset.Fail("shared secret", err)
	}

	return secret, nil
}

func (s *suite) DeriveDirectionalKeys(secret []byte, local, remote *cipherset.Open) (enc, dec []byte, err error) {
	if len(secret) == 0 {
		return nil, nil, cipherset.Fail("line keys", cipherset.ErrInvalidKey)
	}
	if local == nil || remote == nil {
		return nil, nil, cipherset.Fail("line keys", cipherset.ErrInvalidOpen)
	}

	enc = hashSHA256(secret, local.LineID[:], remote.LineID[:])
	dec = hashSHA256(secret, remote.LineID[:], local.LineID[:])
	return enc, dec, nil
}

func (s *suite) EncryptLine(key []byte, out cipherset.LineID, inner []byte) (*lob.Packet, error) {
	if len(key) != cipherset.KeySize {
		return nil, cipherset.Fail("encrypt line", cipherset.ErrInvalidKey)
	}

	iv, err := makeRand(ivSize)
	if err != nil {
		return nil, cipherset.Fail("encrypt line", err)
	}

	body, err := cryptAES256CTR(key, iv, inner)
	if err != nil {
		return nil, cipherset.Fail("encrypt line", err)
	}

	pkt := lob.New(body)
	hdr := pkt.Header()
	hdr.Type, hdr.HasType = "line", true
	hdr.SetString("line", out.String())
	hdr.SetString("iv", hex.EncodeToString(iv))

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
	if hdr == nil || hdr.Type != "line" {
		return nil, cipherset.ErrInvalidLinePacket
	}

	ivHex, _ := hdr.GetString("iv")
	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != ivSize {
		return nil, cipherset.ErrInvalidLinePacket
	}

	inner, err := cryptAES256CTR(key, iv, pkt.Body)
	if err != nil {
		return nil, cipherset.Fail("decrypt line", err)
	}

	return inner, nil
}

func rsaPublic(k cipherset.PublicKey) (*rsa.PublicKey, error) {
	x, ok := k.(*PublicKey)
	if !ok || x == nil || x.key == nil {
		return nil, cipherset.ErrInvalidKey
	}
	return x.key, nil
}

func rsaPrivate(k cipherset.PrivateKey) (*rsa.PrivateKey, error) {
	x, ok := k.(*PrivateKey)
	if !ok || x == nil || x.key == nil {
		return nil, cipherset.ErrInvalidKey
	}
	return x.key, nil
}

func makeRand(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func hashSHA256(data ...[]byte) []byte {
	h := sha256.New()
	for _, c := range data {
		h.Write(c)
	}
	return h.Sum(nil)
}

// AES-256-CTR is symmetric; the same function encrypts and decrypts.
func cryptAES256CTR(key, iv, data []byte) ([]byte, error) {
	blk, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	out := make([]byte, len(data))
	cipher.NewCTR(blk, iv).XORKeyStream(out, data)
	return out, nil
}
