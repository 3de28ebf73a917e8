package cs3a

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telehash/gotelehash/cipherset"
	"github.com/telehash/gotelehash/cipherset/tests"
	"github.com/telehash/gotelehash/hashname"
	"github.com/telehash/gotelehash/lob"
)

var testSuite = New()

type party struct {
	key cipherset.PrivateKey
	hn  hashname.H
	id  cipherset.LineID
}

func makeParty(t *testing.T) *party {
	key, err := testSuite.GenerateKey()
	require.NoError(t, err)

	hn, err := cipherset.Hashname(testSuite, key.Public())
	require.NoError(t, err)

	id, err := cipherset.NewLineID()
	require.NoError(t, err)

	return &party{key: key, hn: hn, id: id}
}

func (p *party) open(t *testing.T, to *party, at int64) *cipherset.Open {
	o, err := testSuite.NewOpen(p.key, to.key.Public(), to.hn, p.id, at)
	require.NoError(t, err)
	return o
}

func TestSuite(t *testing.T) {
	tests.Run(t, testSuite)
}

func TestRegistered(t *testing.T) {
	s, err := cipherset.Lookup(ID)
	require.NoError(t, err)
	assert.Equal(t, uint8(0x3a), s.ID())
}

func TestPrivateKeyCoding(t *testing.T) {
	assert := assert.New(t)

	a := makeParty(t)

	der, err := a.key.DER()
	require.NoError(t, err)
	assert.Len(der, 32)

	key, err := testSuite.DecodePrivateKey(der)
	require.NoError(t, err)

	// the public half is derived from the scalar
	hn, err := cipherset.Hashname(testSuite, key.Public())
	assert.NoError(err)
	assert.Equal(a.hn, hn)

	pubDER, err := a.key.Public().DER()
	require.NoError(t, err)
	pub, err := testSuite.DecodePublicKey(pubDER)
	require.NoError(t, err)
	hn, err = cipherset.Hashname(testSuite, pub)
	assert.NoError(err)
	assert.Equal(a.hn, hn)
}

func TestOpenExchange(t *testing.T) {
	assert := assert.New(t)

	var (
		a = makeParty(t)
		b = makeParty(t)

		aOpen = a.open(t, b, 1400000000123)
		bOpen = b.open(t, a, 1400000000456)
	)

	pkt, err := testSuite.EncodeOpen(a.key, aOpen)
	require.NoError(t, err)

	data, err := lob.Encode(pkt)
	require.NoError(t, err)
	pkt, err = lob.Decode(data)
	require.NoError(t, err)

	aRemote, err := testSuite.DecodeOpen(b.key, pkt)
	require.NoError(t, err)

	assert.Equal(a.id, aRemote.LineID)
	assert.Equal(int64(1400000000123), aRemote.At)
	assert.Equal(b.hn, aRemote.To)
	assert.Equal(aOpen.EphemeralPublic, aRemote.EphemeralPublic)
	assert.Nil(aRemote.EphemeralPrivate)

	senderHn, err := cipherset.Hashname(testSuite, aRemote.Sender)
	assert.NoError(err)
	assert.Equal(a.hn, senderHn)

	pkt, err = testSuite.EncodeOpen(b.key, bOpen)
	require.NoError(t, err)
	bRemote, err := testSuite.DecodeOpen(a.key, pkt)
	require.NoError(t, err)

	secretA, err := testSuite.DeriveSharedSecret(aOpen, bRemote)
	require.NoError(t, err)
	secretB, err := testSuite.DeriveSharedSecret(bOpen, aRemote)
	require.NoError(t, err)
	assert.Equal(secretA, secretB)

	encA, decA, err := testSuite.DeriveDirectionalKeys(secretA, aOpen, bRemote)
	require.NoError(t, err)
	encB, decB, err := testSuite.DeriveDirectionalKeys(secretB, bOpen, aRemote)
	require.NoError(t, err)

	assert.Len(encA, cipherset.KeySize)
	assert.Equal(encA, decB)
	assert.Equal(encB, decA)
	assert.NotEqual(encA, decA)

	line, err := testSuite.EncryptLine(encA, b.id, []byte("hello world"))
	require.NoError(t, err)

	id, _ := line.Header().GetString("line")
	assert.Equal(b.id.String(), id)

	plain, err := testSuite.DecryptLine(decB, line)
	assert.NoError(err)
	assert.Equal([]byte("hello world"), plain)

	// the wrong direction does not authenticate
	_, err = testSuite.DecryptLine(encB, line)
	var cerr *cipherset.CryptoError
	assert.True(errors.As(err, &cerr), "err=%v", err)
}

func TestOpenForSomeoneElse(t *testing.T) {
	var (
		a = makeParty(t)
		b = makeParty(t)
		c = makeParty(t)
	)

	pkt, err := testSuite.EncodeOpen(a.key, a.open(t, b, 1))
	require.NoError(t, err)

	_, err = testSuite.DecodeOpen(c.key, pkt)

	var cerr *cipherset.CryptoError
	assert.True(t, errors.As(err, &cerr), "err=%v", err)
}

func TestTamperedOpen(t *testing.T) {
	var (
		a = makeParty(t)
		b = makeParty(t)
	)

	pkt, err := testSuite.EncodeOpen(a.key, a.open(t, b, 1))
	require.NoError(t, err)

	// only the tag is touched, the sealed inner packet still opens
	pkt.Body[len(pkt.Body)-1] ^= 0xff

	_, err = testSuite.DecodeOpen(b.key, pkt)

	var cerr *cipherset.CryptoError
	if assert.True(t, errors.As(err, &cerr), "err=%v", err) {
		assert.Equal(t, "verify open", cerr.Op)
	}
}

func TestInvalidInputs(t *testing.T) {
	assert := assert.New(t)

	_, err := testSuite.DecodeOpen(nil, lob.New(nil))
	assert.Equal(cipherset.ErrInvalidOpen, err)

	_, err = testSuite.DecodePublicKey([]byte("short"))
	assert.True(errors.Is(err, cipherset.ErrInvalidKey))

	_, err = testSuite.DecodePrivateKey(nil)
	assert.True(errors.Is(err, cipherset.ErrInvalidKey))

	_, err = testSuite.EncryptLine(make([]byte, 16), cipherset.ZeroLineID, nil)
	assert.True(errors.Is(err, cipherset.ErrInvalidKey))

	_, err = testSuite.DecryptLine(make([]byte, 32), lob.New(nil))
	assert.Equal(cipherset.ErrInvalidLinePacket, err)

	_, _, err = testSuite.DeriveDirectionalKeys(nil, &cipherset.Open{}, &cipherset.Open{})
	assert.True(errors.Is(err, cipherset.ErrInvalidKey))
}
