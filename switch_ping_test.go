package telehash

import (
	"bytes"
	"errors"
	"testing"

	"github.com/pion/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/telehash/gotelehash/util/logs"
)

func TestPingHandlerEchoes(t *testing.T) {
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

	c := newChannel(l, 4, "ping", pingHandler{}, false)
	require.True(t, l.channels.Add(c))

	pingHandler{}.HandleIncoming(c, &ChannelPacket{ChannelID: 4, Body: []byte("now")})
	pingHandler{}.HandleIncoming(c, &ChannelPacket{ChannelID: 4, End: true})

	if assert.Len(t, sent, 1) {
		assert.Equal(t, []byte("now"), sent[0].Body)
		assert.True(t, sent[0].End)
	}
}

func TestPingHandlerLogsSendError(t *testing.T) {
	var (
		sender MockSender
		out    bytes.Buffer
	)

	factory := logging.NewDefaultLoggerFactory()
	factory.Writer = &out
	factory.DefaultLogLevel = logging.LogLevelDebug

	l := establishedLine(t, nil, WithSender(&sender), WithLogger(logs.New(factory, "line")))
	sender.On("SendLine", l, mock.Anything).Return(errors.New("no route to peer"))

	c := newChannel(l, 4, "ping", pingHandler{}, false)
	require.True(t, l.channels.Add(c))

	pingHandler{}.HandleIncoming(c, &ChannelPacket{ChannelID: 4, Body: []byte("now")})

	sender.AssertNumberOfCalls(t, "SendLine", 1)
	assert.Contains(t, out.String(), "ping reply on Channel[4:ping]: no route to peer")
}
