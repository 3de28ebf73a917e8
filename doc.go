// Package telehash implements telehash lines and channels.
//
// A Line is an encrypted session with one remote Node. It starts PENDING,
// becomes ESTABLISHED once both open packets have been exchanged and the
// directional keys derived, and ends CLOSED. Code that needs the line to be
// usable registers a CompletionHandler or waits on the line's OpenFuture.
//
// Channels are multiplexed over a line. Packets for unknown channels open a
// new channel when they declare a type that the line's ChannelHandlerResolver
// knows about; anything else is dropped.
//
// The Switch owns the transport, performs the handshakes and keeps one line
// per remote hashname:
//
//   sw, err := telehash.NewSwitch(telehash.Config{Transport: udp.Config{}})
//   if err != nil {
//     return err
//   }
//   err = sw.Start()
//   ...
//   rtt, err := sw.Ping(ctx, node)
package telehash
