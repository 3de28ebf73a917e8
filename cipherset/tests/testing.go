// Package tests holds the behaviour every cipher set must share. Suite
// packages run it from their own tests.
package tests

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/telehash/gotelehash/cipherset"
	"github.com/telehash/gotelehash/hashname"
	"github.com/telehash/gotelehash/lob"
)

type cipherTestSuite struct {
	suite.Suite
	cs cipherset.Suite
}

// Run runs the shared cipher set tests against cs.
func Run(t *testing.T, cs cipherset.Suite) {
	suite.Run(t, &cipherTestSuite{cs: cs})
}

type party struct {
	key cipherset.PrivateKey
	hn  hashname.H
	id  cipherset.LineID
}

func (s *cipherTestSuite) party() *party {
	require := s.Require()

	key, err := s.cs.GenerateKey()
	require.NoError(err)

	hn, err := cipherset.Hashname(s.cs, key.Public())
	require.NoError(err)

	id, err := cipherset.NewLineID()
	require.NoError(err)

	return &party{key: key, hn: hn, id: id}
}

// exchange runs both halves of a handshake over the wire encoding and
// returns each side's local and remote open.
func (s *cipherTestSuite) exchange(a, b *party) (aLocal, aRemote, bLocal, bRemote *cipherset.Open) {
	require := s.Require()

	wire := func(from, to *party, o *cipherset.Open) *cipherset.Open {
		pkt, err := s.cs.EncodeOpen(from.key, o)
		require.NoError(err)
		data, err := lob.Encode(pkt)
		require.NoError(err)
		pkt, err = lob.Decode(data)
		require.NoError(err)
		remote, err := s.cs.DecodeOpen(to.key, pkt)
		require.NoError(err)
		return remote
	}

	aLocal, err := s.cs.NewOpen(a.key, b.key.Public(), b.hn, a.id, 1000)
	require.NoError(err)
	bLocal, err = s.cs.NewOpen(b.key, a.key.Public(), a.hn, b.id, 2000)
	require.NoError(err)

	bRemote = wire(a, b, aLocal)
	aRemote = wire(b, a, bLocal)
	return aLocal, aRemote, bLocal, bRemote
}

func (s *cipherTestSuite) keys(local, remote *cipherset.Open) (enc, dec []byte) {
	require := s.Require()

	secret, err := s.cs.DeriveSharedSecret(local, remote)
	require.NoError(err)

	enc, dec, err = s.cs.DeriveDirectionalKeys(secret, local, remote)
	require.NoError(err)
	require.Len(enc, cipherset.KeySize)
	require.Len(dec, cipherset.KeySize)
	return enc, dec
}

func (s *cipherTestSuite) TestHashnameFollowsPublicKey() {
	assert := s.Assertions

	a := s.party()

	der, err := a.key.Public().DER()
	s.Require().NoError(err)

	pub, err := s.cs.DecodePublicKey(der)
	s.Require().NoError(err)

	hn, err := cipherset.Hashname(s.cs, pub)
	assert.NoError(err)
	assert.Equal(a.hn, hn)

	other := s.party()
	assert.NotEqual(a.hn, other.hn)
}

func (s *cipherTestSuite) TestHandshake() {
	assert := s.Assertions

	a, b := s.party(), s.party()
	aLocal, aRemote, bLocal, bRemote := s.exchange(a, b)

	assert.Equal(a.id, bRemote.LineID)
	assert.Equal(b.id, aRemote.LineID)
	assert.Equal(b.hn, bRemote.To)
	assert.Equal(a.hn, aRemote.To)
	assert.Equal(int64(1000), bRemote.At)
	assert.Equal(int64(2000), aRemote.At)
	assert.Nil(aRemote.EphemeralPrivate)

	sender, err := cipherset.Hashname(s.cs, bRemote.Sender)
	assert.NoError(err)
	assert.Equal(a.hn, sender)

	encA, decA := s.keys(aLocal, aRemote)
	encB, decB := s.keys(bLocal, bRemote)
	assert.Equal(encA, decB)
	assert.Equal(encB, decA)
	assert.NotEqual(encA, decA)
}

func (s *cipherTestSuite) TestLinePackets() {
	assert := s.Assertions

	a, b := s.party(), s.party()
	aLocal, aRemote, bLocal, bRemote := s.exchange(a, b)
	encA, decA := s.keys(aLocal, aRemote)
	encB, decB := s.keys(bLocal, bRemote)

	send := func(enc, dec []byte, to cipherset.LineID, msg string) {
		pkt, err := s.cs.EncryptLine(enc, to, []byte(msg))
		s.Require().NoError(err)

		id, _ := pkt.Header().GetString("line")
		assert.Equal(to.String(), id)

		data, err := lob.Encode(pkt)
		s.Require().NoError(err)
		pkt, err = lob.Decode(data)
		s.Require().NoError(err)

		plain, err := s.cs.DecryptLine(dec, pkt)
		assert.NoError(err)
		assert.Equal([]byte(msg), plain)
	}

	send(encA, decB, b.id, "Hello world!")
	send(encB, decA, a.id, "Bye world!")
}

func (s *cipherTestSuite) TestOpenForSomeoneElse() {
	a, b, c := s.party(), s.party(), s.party()

	o, err := s.cs.NewOpen(a.key, b.key.Public(), b.hn, a.id, 1)
	s.Require().NoError(err)
	pkt, err := s.cs.EncodeOpen(a.key, o)
	s.Require().NoError(err)

	_, err = s.cs.DecodeOpen(c.key, pkt)
	s.Error(err)
}

func (s *cipherTestSuite) TestRegistered() {
	x, err := cipherset.Lookup(s.cs.ID())
	s.NoError(err)
	if s.NotNil(x) {
		s.Equal(s.cs.ID(), x.ID())
	}
}
