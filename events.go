package telehash

import (
	"fmt"

	"github.com/telehash/gotelehash/transports"
	"github.com/telehash/gotelehash/util/events"
)

var (
	_ events.E = (*LineOpenedEvent)(nil)
	_ events.E = (*LineClosedEvent)(nil)
	_ events.E = (*ChannelOpenedEvent)(nil)
	_ events.E = (*PacketDroppedEvent)(nil)
)

type LineOpenedEvent struct {
	Line *Line
}

type LineClosedEvent struct {
	Line   *Line
	Reason error
}

type ChannelOpenedEvent struct {
	Channel *Channel
}

// PacketDroppedEvent is emitted for every inbound packet that was not
// delivered. Src is nil for packets dropped by a line.
type PacketDroppedEvent struct {
	Src    transports.Addr
	Reason error
}

func (e *LineOpenedEvent) String() string {
	return fmt.Sprintf("line opened: %s", e.Line)
}

func (e *LineClosedEvent) String() string {
	if e.Reason == nil {
		return fmt.Sprintf("line closed: %s", e.Line)
	}
	return fmt.Sprintf("line closed: %s (reason=%s)", e.Line, e.Reason)
}

func (e *ChannelOpenedEvent) String() string {
	return fmt.Sprintf("channel opened: %s %s %d", e.Channel.line, e.Channel.typ, e.Channel.id)
}

func (e *PacketDroppedEvent) String() string {
	if e.Src == nil {
		return fmt.Sprintf("packet dropped: %s", e.Reason)
	}
	return fmt.Sprintf("packet dropped: %s (src=%s)", e.Reason, e.Src)
}
