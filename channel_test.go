package telehash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type dropRecorder struct {
	reasons []error
}

func (r *dropRecorder) option() LineOption {
	return OnPacketDropped(func(_ *Line, _ *ChannelPacket, reason error) {
		r.reasons = append(r.reasons, reason)
	})
}

func TestIncomingWithoutTypeIsDropped(t *testing.T) {
	var (
		assert   = assert.New(t)
		resolver MockResolver
		drops    dropRecorder
		l        = establishedLine(t, &resolver, drops.option())
	)

	l.HandleIncoming(&LinePacket{Channel: &ChannelPacket{ChannelID: 5, Body: []byte("hi")}})

	assert.Nil(l.Channel(5))
	assert.Equal(0, l.channels.Len())
	assert.Equal([]error{ErrMissingChannelType}, drops.reasons)
	resolver.AssertNotCalled(t, "ResolveChannelHandler", mock.Anything)
}

func TestIncomingWithoutHandlerIsDropped(t *testing.T) {
	var (
		assert   = assert.New(t)
		resolver MockResolver
		drops    dropRecorder
		l        = establishedLine(t, &resolver, drops.option())
	)

	resolver.On("ResolveChannelHandler", "unknown").Return(nil).Once()

	l.HandleIncoming(&LinePacket{Channel: &ChannelPacket{ChannelID: 5, Type: "unknown"}})

	assert.Nil(l.Channel(5))
	assert.Equal([]error{ErrNoChannelHandler}, drops.reasons)
	resolver.AssertExpectations(t)
}

func TestIncomingInvalidPacketIsDropped(t *testing.T) {
	var (
		drops dropRecorder
		l     = establishedLine(t, nil, drops.option())
	)

	l.HandleIncoming(nil)
	l.HandleIncoming(&LinePacket{})
	l.HandleIncoming(&LinePacket{Channel: &ChannelPacket{Type: "ping"}})

	assert.Equal(t, []error{
		ErrInvalidChannelPacket,
		ErrInvalidChannelPacket,
		ErrInvalidChannelPacket,
	}, drops.reasons)
}

func TestIncomingOpensChannel(t *testing.T) {
	var (
		assert   = assert.New(t)
		resolver MockResolver
		handler  MockChannelHandler
		opened   []*Channel
		l        = establishedLine(t, &resolver, OnChannelOpened(func(c *Channel) { opened = append(opened, c) }))
		pkt      = &ChannelPacket{ChannelID: 5, Type: "chat", Body: []byte("hello")}
	)

	resolver.On("ResolveChannelHandler", "chat").Return(&handler).Once()
	handler.On("HandleIncoming", mock.AnythingOfType("*telehash.Channel"), pkt).Return().Once()

	l.HandleIncoming(&LinePacket{Channel: pkt})

	c := l.Channel(5)
	if assert.NotNil(c) {
		assert.Equal(ChannelID(5), c.ID())
		assert.Equal("chat", c.Type())
		assert.Equal(l, c.Line())
		assert.Equal(&handler, c.Handler())
	}
	assert.Equal(1, l.channels.Len())
	assert.Equal([]*Channel{c}, opened)

	// follow up packets go to the same channel without resolving again
	next := &ChannelPacket{ChannelID: 5, Body: []byte("again")}
	handler.On("HandleIncoming", c, next).Return().Once()
	l.HandleIncoming(&LinePacket{Channel: next})

	resolver.AssertExpectations(t)
	handler.AssertExpectations(t)
	handler.AssertNotCalled(t, "HandleOpen", mock.Anything)
	assert.Equal(1, l.channels.Len())
}

func TestIncomingEndIsDeliveredBeforeRemoval(t *testing.T) {
	var (
		assert = assert.New(t)
		l      = establishedLine(t, nil)
		seen   int
	)

	handler := ChannelHandlerFuncs{Incoming: func(c *Channel, pkt *ChannelPacket) {
		seen++
		assert.True(pkt.End)
		assert.Equal(1, l.channels.Len())
		assert.Equal(c, l.Channel(7))
	}}

	require.True(t, l.channels.Add(newChannel(l, 7, "a", handler, false)))

	l.HandleIncoming(&LinePacket{Channel: &ChannelPacket{ChannelID: 7, End: true}})

	assert.Equal(1, seen)
	assert.Nil(l.Channel(7))
	assert.Equal(0, l.channels.Len())
}

func TestIncomingOnClosedLine(t *testing.T) {
	var (
		resolver MockResolver
		drops    dropRecorder
		l        = establishedLine(t, &resolver, drops.option())
	)

	l.Close(nil)
	l.HandleIncoming(&LinePacket{Channel: &ChannelPacket{ChannelID: 5, Type: "chat"}})

	assert.Equal(t, []error{ErrLineClosed}, drops.reasons)
	resolver.AssertNotCalled(t, "ResolveChannelHandler", mock.Anything)
}

func TestOpenChannel(t *testing.T) {
	var (
		assert  = assert.New(t)
		handler MockChannelHandler
		l       = establishedLine(t, nil)
	)

	handler.On("HandleOpen", mock.AnythingOfType("*telehash.Channel")).Return().Twice()

	a, err := l.OpenChannel("chat", &handler)
	require.NoError(t, err)
	b, err := l.OpenChannel("chat", &handler)
	require.NoError(t, err)

	assert.Equal(ChannelID(1), a.ID())
	assert.Equal(ChannelID(3), b.ID())
	assert.Equal(2, l.channels.Len())
	handler.AssertExpectations(t)

	_, err = l.OpenChannel("", &handler)
	assert.Equal(ErrMissingChannelType, err)
	_, err = l.OpenChannel("chat", nil)
	assert.Equal(ErrNoChannelHandler, err)
}

func TestOpenChannelEvenIDs(t *testing.T) {
	l := establishedLine(t, nil, WithEvenChannelIDs())

	var ids []ChannelID
	for i := 0; i < 3; i++ {
		c, err := l.OpenChannel("chat", ChannelHandlerFuncs{})
		require.NoError(t, err)
		ids = append(ids, c.ID())
	}

	assert.Equal(t, []ChannelID{2, 4, 6}, ids)
}

func TestOpenChannelSkipsUsedIDs(t *testing.T) {
	l := establishedLine(t, nil)
	require.True(t, l.channels.Add(newChannel(l, 1, "a", ChannelHandlerFuncs{}, false)))

	c, err := l.OpenChannel("chat", ChannelHandlerFuncs{})
	require.NoError(t, err)
	assert.Equal(t, ChannelID(3), c.ID())
}

func TestOpenChannelOnPendingLine(t *testing.T) {
	var (
		assert = assert.New(t)
		l      = NewLine(nil)
		opened bool
	)

	c, err := l.OpenChannel("chat", ChannelHandlerFuncs{Open: func(*Channel) { opened = true }})
	require.NoError(t, err)
	assert.True(opened)

	// nothing can be sent until the line is established
	assert.Equal(ErrNotReady, c.Send(&ChannelPacket{Body: []byte("x")}))
}

func TestOpenChannelOnClosedLine(t *testing.T) {
	l := establishedLine(t, nil)
	c, err := l.OpenChannel("chat", ChannelHandlerFuncs{})
	require.NoError(t, err)

	l.Close(nil)
	assert.Empty(t, l.Channels())

	_, err = l.OpenChannel("chat", ChannelHandlerFuncs{})
	assert.Equal(t, ErrLineClosed, err)
	assert.Equal(t, ErrLineClosed, c.Send(&ChannelPacket{}))
}

func TestChannelSend(t *testing.T) {
	var (
		assert = assert.New(t)
		sender MockSender
		sent   []*ChannelPacket
	)

	l := establishedLine(t, nil, WithSender(&sender))

	sender.On("SendLine", l, mock.AnythingOfType("[]uint8")).Return(nil).Run(func(args mock.Arguments) {
		pkt, err := DecodeChannelPacket(args.Get(1).([]byte))
		require.NoError(t, err)
		sent = append(sent, pkt)
	})

	c, err := l.OpenChannel("chat", ChannelHandlerFuncs{})
	require.NoError(t, err)

	in := &ChannelPacket{ChannelID: 99, Type: "bogus", Body: []byte("one")}
	require.NoError(t, c.Send(in))
	require.NoError(t, c.Send(&ChannelPacket{Body: []byte("two")}))
	require.NoError(t, c.Send(&ChannelPacket{End: true}))

	// the caller's packet is left untouched
	assert.Equal(ChannelID(99), in.ChannelID)
	assert.Equal("bogus", in.Type)

	if assert.Len(sent, 3) {
		assert.Equal(ChannelID(1), sent[0].ChannelID)
		assert.Equal("chat", sent[0].Type)
		assert.Equal([]byte("one"), sent[0].Body)

		assert.Equal(ChannelID(1), sent[1].ChannelID)
		assert.Equal("", sent[1].Type)
		assert.False(sent[1].End)

		assert.True(sent[2].End)
	}

	assert.Nil(l.Channel(1))
	assert.Equal(ErrChannelEnded, c.Send(&ChannelPacket{}))
	sender.AssertNumberOfCalls(t, "SendLine", 3)
}

func TestRemoteChannelNeverSendsType(t *testing.T) {
	var (
		sender MockSender
		sent   []*ChannelPacket
	)

	l := establishedLine(t, nil, WithSender(&sender))
	sender.On("SendLine", l, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		pkt, err := DecodeChannelPacket(args.Get(1).([]byte))
		require.NoError(t, err)
		sent = append(sent, pkt)
	})

	c := newChannel(l, 4, "chat", ChannelHandlerFuncs{}, false)
	require.True(t, l.channels.Add(c))
	require.NoError(t, c.Close())

	require.Len(t, sent, 1)
	assert.Equal(t, "", sent[0].Type)
	assert.True(t, sent[0].End)
	assert.Equal(t, "Channel[4:chat]", c.String())
}

func TestChannelSetRemoveChecksIdentity(t *testing.T) {
	var (
		set channelSet
		a   = &Channel{id: 3}
		b   = &Channel{id: 3}
	)

	require.True(t, set.Add(a))
	assert.False(t, set.Add(b))
	assert.False(t, set.Remove(b))
	assert.True(t, set.Remove(a))
	assert.Equal(t, 0, set.Len())

	set.Close()
	assert.False(t, set.Add(b))
	_, ok := set.AddNew(func(id ChannelID) *Channel { return &Channel{id: id} })
	assert.False(t, ok)
}
