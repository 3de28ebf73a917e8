package pipe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telehash/gotelehash/transports"
)

func TestManualDelivery(t *testing.T) {
	assert := assert.New(t)

	p := New(Options{Manual: true})
	defer p.Close()

	a, err := p.End(0).Open()
	require.NoError(t, err)
	b, err := p.End(1).Open()
	require.NoError(t, err)

	dst := Addr(1)
	require.NoError(t, a.WriteMessage([]byte("first"), dst))
	require.NoError(t, a.WriteMessage([]byte("second"), dst))

	assert.Equal(2, p.Process())

	buf := make([]byte, 1500)
	n, src, err := b.ReadMessage(buf)
	require.NoError(t, err)
	assert.Equal("first", string(buf[:n]))
	assert.True(transports.EqualAddr(src, Addr(0)))

	n, _, err = b.ReadMessage(buf)
	require.NoError(t, err)
	assert.Equal("second", string(buf[:n]))
}

func TestDropNext(t *testing.T) {
	assert := assert.New(t)

	p := New(Options{Manual: true})
	defer p.Close()

	a, _ := p.End(0).Open()
	b, _ := p.End(1).Open()

	p.DropNext(0, 1)
	require.NoError(t, a.WriteMessage([]byte("lost"), Addr(1)))
	require.NoError(t, a.WriteMessage([]byte("kept"), Addr(1)))
	assert.Equal(1, p.Process())

	buf := make([]byte, 1500)
	n, _, err := b.ReadMessage(buf)
	require.NoError(t, err)
	assert.Equal("kept", string(buf[:n]))
}

func TestInvalidAddr(t *testing.T) {
	p := New(Options{Manual: true})
	defer p.Close()

	a, _ := p.End(0).Open()
	assert.Equal(t, transports.ErrInvalidAddr, a.WriteMessage([]byte("x"), Addr(0)))
	assert.Panics(t, func() { p.End(2) })
	assert.Panics(t, func() { Addr(7) })
}

func TestCloseUnblocksReader(t *testing.T) {
	for _, manual := range []bool{true, false} {
		p := New(Options{Manual: manual})

		b, err := p.End(1).Open()
		require.NoError(t, err)

		done := make(chan error, 1)
		go func() {
			_, _, err := b.ReadMessage(make([]byte, 1500))
			done <- err
		}()

		require.NoError(t, p.Close())

		select {
		case err := <-done:
			assert.Equal(t, transports.ErrClosed, err, "manual=%v", manual)
		case <-time.After(5 * time.Second):
			t.Fatalf("reader still blocked (manual=%v)", manual)
		}
	}
}

func TestTransportClose(t *testing.T) {
	p := New(Options{})
	defer p.Close()

	a, err := p.End(0).Open()
	require.NoError(t, err)
	b, err := p.End(1).Open()
	require.NoError(t, err)

	require.NoError(t, a.WriteMessage([]byte("before"), Addr(1)))

	buf := make([]byte, 1500)
	n, _, err := b.ReadMessage(buf)
	require.NoError(t, err)
	assert.Equal(t, "before", string(buf[:n]))

	require.NoError(t, b.Close())
	assert.Equal(t, transports.ErrClosed, b.Close())

	_, _, err = b.ReadMessage(buf)
	assert.Equal(t, transports.ErrClosed, err)

	// writes towards a closed end are lost like datagrams
	assert.NoError(t, a.WriteMessage([]byte("after"), Addr(1)))

	require.NoError(t, a.Close())
	assert.Equal(t, transports.ErrClosed, a.WriteMessage([]byte("x"), Addr(1)))
}

func TestAddrCoding(t *testing.T) {
	data, err := Addr(1).MarshalJSON()
	require.NoError(t, err)

	addr, err := transports.DecodeAddr(data)
	require.NoError(t, err)
	assert.True(t, transports.EqualAddr(addr, Addr(1)))
}
