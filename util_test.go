package telehash

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/telehash/gotelehash/cipherset"
	"github.com/telehash/gotelehash/cipherset/cs1a"
)

// small keys keep the tests fast
var testSuite = cs1a.NewWithKeySize(1024)

type MockChannelHandler struct {
	mock.Mock
}

func (m *MockChannelHandler) HandleOpen(c *Channel) {
	m.Called(c)
}

func (m *MockChannelHandler) HandleIncoming(c *Channel, pkt *ChannelPacket) {
	m.Called(c, pkt)
}

type MockResolver struct {
	mock.Mock
}

func (m *MockResolver) ResolveChannelHandler(typ string) ChannelHandler {
	args := m.Called(typ)
	h, _ := args.Get(0).(ChannelHandler)
	return h
}

type MockSender struct {
	mock.Mock
}

func (m *MockSender) SendLine(l *Line, inner []byte) error {
	args := m.Called(l, inner)
	return args.Error(0)
}

type MockCompletionHandler struct {
	mock.Mock
}

func (m *MockCompletionHandler) Completed(l *Line, attachment interface{}) {
	m.Called(l, attachment)
}

func key(b byte) []byte {
	return bytes.Repeat([]byte{b}, cipherset.KeySize)
}

func lineID(b byte) cipherset.LineID {
	var id cipherset.LineID
	for i := range id {
		id[i] = b
	}
	return id
}

// prepare sets everything Establish needs.
func prepare(t *testing.T, l *Line, at int64) {
	l.SetIncomingLineID(lineID(0xaa))
	l.SetOutgoingLineID(lineID(0xbb))
	l.SetLocalOpen(&cipherset.Open{LineID: lineID(0xaa), At: at})
	l.SetRemoteOpen(&cipherset.Open{LineID: lineID(0xbb), At: at})
	require.NoError(t, l.SetSharedSecret([]byte("secret")))
	require.NoError(t, l.SetEncryptionKey(key(1)))
	require.NoError(t, l.SetDecryptionKey(key(2)))
}

func establishedLine(t *testing.T, resolver ChannelHandlerResolver, opts ...LineOption) *Line {
	l := NewLine(resolver, opts...)
	prepare(t, l, 1000)
	require.NoError(t, l.Establish())
	return l
}

func makeNode(t *testing.T) *Node {
	prv, err := testSuite.GenerateKey()
	require.NoError(t, err)

	node, err := NewNode(testSuite, prv.Public(), nil)
	require.NoError(t, err)
	return node
}
