package telehash

// ChannelHandler is the application side of a channel.
//
// HandleOpen is called for channels opened locally. HandleIncoming is called
// for every packet received on a channel, including the first packet of a
// channel opened by the remote side.
type ChannelHandler interface {
	HandleOpen(c *Channel)
	HandleIncoming(c *Channel, pkt *ChannelPacket)
}

// ChannelHandlerResolver maps a channel type to its handler. It returns nil
// when no handler is registered for typ.
type ChannelHandlerResolver interface {
	ResolveChannelHandler(typ string) ChannelHandler
}

// ChannelHandlerFuncs adapts a pair of functions to ChannelHandler. Either
// function may be nil.
type ChannelHandlerFuncs struct {
	Open     func(c *Channel)
	Incoming func(c *Channel, pkt *ChannelPacket)
}

func (f ChannelHandlerFuncs) HandleOpen(c *Channel) {
	if f.Open != nil {
		f.Open(c)
	}
}

func (f ChannelHandlerFuncs) HandleIncoming(c *Channel, pkt *ChannelPacket) {
	if f.Incoming != nil {
		f.Incoming(c, pkt)
	}
}
