package telehash

import (
	"context"
	"time"
)

// pingHandler answers every ping with an end packet echoing the body.
type pingHandler struct{}

func (pingHandler) HandleOpen(c *Channel) {}

func (pingHandler) HandleIncoming(c *Channel, pkt *ChannelPacket) {
	if pkt.End {
		return
	}
	if err := c.Send(&ChannelPacket{Body: pkt.Body, End: true}); err != nil {
		c.line.log.Debugf("ping reply on %s: %s", c, err)
	}
}

// Ping opens a line to node (when needed) and measures the round trip of a
// ping channel.
func (s *Switch) Ping(ctx context.Context, node *Node) (time.Duration, error) {
	reply := make(chan struct{}, 1)

	c, err := s.OpenChannel(ctx, node, "ping", ChannelHandlerFuncs{
		Incoming: func(c *Channel, pkt *ChannelPacket) {
			select {
			case reply <- struct{}{}:
			default:
			}
		},
	})
	if err != nil {
		return 0, err
	}

	start := time.Now()
	err = c.Send(&ChannelPacket{Body: []byte(start.Format(time.RFC3339Nano))})
	if err != nil {
		return 0, err
	}

	select {
	case <-reply:
		return time.Since(start), nil
	case <-ctx.Done():
		c.Close()
		return 0, ctx.Err()
	}
}
