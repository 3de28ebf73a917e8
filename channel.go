package telehash

import (
	"fmt"
	"sync"
)

// Channel is a typed conversation multiplexed over a line.
type Channel struct {
	id      ChannelID
	typ     string
	handler ChannelHandler
	line    *Line
	local   bool

	mtx      sync.Mutex
	sentType bool
	ended    bool
}

func newChannel(l *Line, id ChannelID, typ string, h ChannelHandler, local bool) *Channel {
	return &Channel{
		id:      id,
		typ:     typ,
		handler: h,
		line:    l,
		local:   local,
	}
}

func (c *Channel) ID() ChannelID           { return c.id }
func (c *Channel) Type() string            { return c.typ }
func (c *Channel) Handler() ChannelHandler { return c.handler }
func (c *Channel) Line() *Line             { return c.line }

// Send stamps pkt with the channel id (and, on the first packet of a locally
// opened channel, the channel type) and sends it over the line. pkt is not
// modified. Sending a packet with End set closes the channel locally.
func (c *Channel) Send(pkt *ChannelPacket) error {
	var p ChannelPacket
	if pkt != nil {
		p = *pkt
	}
	p.ChannelID = c.id
	p.Type = ""

	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.ended {
		return ErrChannelEnded
	}

	if c.local && !c.sentType {
		p.Type = c.typ
	}

	err := c.line.send(&p)
	if err != nil {
		return err
	}

	c.sentType = true
	if p.End {
		c.ended = true
		c.line.channels.Remove(c)
	}

	return nil
}

// Close sends an empty end packet.
func (c *Channel) Close() error {
	return c.Send(&ChannelPacket{End: true})
}

func (c *Channel) String() string {
	return fmt.Sprintf("Channel[%d:%s]", c.id, c.typ)
}
