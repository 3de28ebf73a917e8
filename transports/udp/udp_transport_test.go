package udp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telehash/gotelehash/transports"
)

func TestLocalAddresses(t *testing.T) {
	if testing.Short() {
		t.Skip("this is a long running test.")
	}

	assert := assert.New(t)
	var tab = []Config{
		{},
		{Network: "udp", Addr: "127.0.0.1:0"},
		{Network: "udp4", Addr: ":0"},
	}

	for _, factory := range tab {
		trans, err := factory.Open()
		require.NoError(t, err)

		addrs := trans.LocalAddresses()
		assert.NotEmpty(addrs)

		t.Logf("addrs=%+v", addrs)

		err = trans.Close()
		assert.NoError(err)
	}
}

func TestReadWrite(t *testing.T) {
	assert := assert.New(t)

	a, err := Config{Addr: "127.0.0.1:0"}.Open()
	require.NoError(t, err)
	defer a.Close()

	b, err := Config{Addr: "127.0.0.1:0"}.Open()
	require.NoError(t, err)
	defer b.Close()

	err = a.WriteMessage([]byte("hello"), b.LocalAddresses()[0])
	require.NoError(t, err)

	buf := make([]byte, 1500)
	n, src, err := b.ReadMessage(buf)
	require.NoError(t, err)
	assert.Equal("hello", string(buf[:n]))
	assert.True(transports.EqualAddr(src, a.LocalAddresses()[0]))
}

func TestAddrCoding(t *testing.T) {
	assert := assert.New(t)

	a, err := ResolveAddr("udp4", "127.0.0.1:4000")
	require.NoError(t, err)

	data, err := a.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(`{"type":"udp4","ip":"127.0.0.1","port":4000}`, string(data))

	b, err := transports.DecodeAddr(data)
	require.NoError(t, err)
	assert.True(transports.EqualAddr(a, b))

	_, err = transports.DecodeAddr([]byte(`{"type":"udp4","ip":"::1","port":4000}`))
	assert.Equal(transports.ErrInvalidAddr, err)
}

func TestClosed(t *testing.T) {
	a, err := Config{Addr: "127.0.0.1:0"}.Open()
	require.NoError(t, err)
	a.Close()

	_, _, err = a.ReadMessage(make([]byte, 10))
	assert.Equal(t, transports.ErrClosed, err)
}
