package telehash

import (
	"fmt"
	"sort"
	"sync"

	"github.com/telehash/gotelehash/cipherset"
	"github.com/telehash/gotelehash/util/logs"
)

// Sender seals the plaintext of a channel packet for l and puts it on the
// wire. The switch is the Sender of the lines it owns.
type Sender interface {
	SendLine(l *Line, inner []byte) error
}

// LineOption configures a new line.
type LineOption func(l *Line)

func WithSender(s Sender) LineOption {
	return func(l *Line) { l.sender = s }
}

func WithLogger(log *logs.Logger) LineOption {
	return func(l *Line) { l.log = log }
}

// WithEvenChannelIDs makes the line allocate even channel ids. One end of a
// line must use odd ids and the other even ids.
func WithEvenChannelIDs() LineOption {
	return func(l *Line) { l.channels.nextID = 2 }
}

// OnChannelOpened is called for every channel added to the line.
func OnChannelOpened(f func(c *Channel)) LineOption {
	return func(l *Line) { l.onChannelOpened = f }
}

// OnPacketDropped is called for every inbound packet the line drops.
func OnPacketDropped(f func(l *Line, pkt *ChannelPacket, reason error)) LineOption {
	return func(l *Line) { l.onPacketDropped = f }
}

// OnClosed is called once when the line closes.
func OnClosed(f func(l *Line, reason error)) LineOption {
	return func(l *Line) { l.onClosed = f }
}

// Line is an encrypted session with one remote node.
type Line struct {
	mtx            sync.Mutex
	state          LineState
	incomingLineID cipherset.LineID
	outgoingLineID cipherset.LineID
	remoteNode     *Node
	localOpen      *cipherset.Open
	remoteOpen     *cipherset.Open
	sharedSecret   []byte
	encryptionKey  []byte
	decryptionKey  []byte
	completions    []completion
	firing         bool
	future         *OpenFuture
	closeReason    error

	channels channelSet
	resolver ChannelHandlerResolver
	sender   Sender
	log      *logs.Logger

	onChannelOpened func(c *Channel)
	onPacketDropped func(l *Line, pkt *ChannelPacket, reason error)
	onClosed        func(l *Line, reason error)
}

// NewLine makes a PENDING line. resolver finds handlers for channels opened
// by the remote side.
func NewLine(resolver ChannelHandlerResolver, opts ...LineOption) *Line {
	l := &Line{
		state:    LinePending,
		resolver: resolver,
		future:   newOpenFuture(),
		log:      logs.Module("line"),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

func (l *Line) State() LineState {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.state
}

func (l *Line) IncomingLineID() cipherset.LineID {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.incomingLineID
}

func (l *Line) SetIncomingLineID(id cipherset.LineID) {
	l.mtx.Lock()
	l.incomingLineID = id
	l.mtx.Unlock()
}

func (l *Line) OutgoingLineID() cipherset.LineID {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.outgoingLineID
}

func (l *Line) SetOutgoingLineID(id cipherset.LineID) {
	l.mtx.Lock()
	l.outgoingLineID = id
	l.mtx.Unlock()
}

func (l *Line) RemoteNode() *Node {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.remoteNode
}

func (l *Line) SetRemoteNode(n *Node) {
	l.mtx.Lock()
	l.remoteNode = n
	if n != nil && l.log != nil {
		l.log = l.log.To(n.Hashname())
	}
	l.mtx.Unlock()
}

func (l *Line) LocalOpen() *cipherset.Open {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.localOpen
}

func (l *Line) SetLocalOpen(o *cipherset.Open) {
	l.mtx.Lock()
	l.localOpen = o
	l.mtx.Unlock()
}

func (l *Line) RemoteOpen() *cipherset.Open {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.remoteOpen
}

func (l *Line) SetRemoteOpen(o *cipherset.Open) {
	l.mtx.Lock()
	l.remoteOpen = o
	l.mtx.Unlock()
}

func (l *Line) SharedSecret() []byte {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return append([]byte(nil), l.sharedSecret...)
}

// SetSharedSecret stores the secret derived from the open exchange. An empty
// secret is rejected and leaves the line unchanged.
func (l *Line) SetSharedSecret(secret []byte) error {
	if len(secret) == 0 {
		return ErrInvalidSharedSecret
	}

	l.mtx.Lock()
	defer l.mtx.Unlock()

	if l.state != LinePending {
		return ErrKeysFrozen
	}

	l.sharedSecret = append([]byte(nil), secret...)
	return nil
}

func (l *Line) EncryptionKey() []byte {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return append([]byte(nil), l.encryptionKey...)
}

// SetEncryptionKey stores a copy of key. Keys must be 32 bytes and can only be
// set on a pending line that has a shared secret.
func (l *Line) SetEncryptionKey(key []byte) error {
	return l.setKey(&l.encryptionKey, key)
}

func (l *Line) DecryptionKey() []byte {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return append([]byte(nil), l.decryptionKey...)
}

// SetDecryptionKey stores a copy of key. See SetEncryptionKey.
func (l *Line) SetDecryptionKey(key []byte) error {
	return l.setKey(&l.decryptionKey, key)
}

func (l *Line) setKey(dst *[]byte, key []byte) error {
	if len(key) != cipherset.KeySize {
		return ErrInvalidKeyLength
	}

	l.mtx.Lock()
	defer l.mtx.Unlock()

	if l.state != LinePending {
		return ErrKeysFrozen
	}
	if len(l.sharedSecret) == 0 {
		return ErrInvalidSharedSecret
	}

	*dst = append([]byte(nil), key...)
	return nil
}

// OpenTime is the timestamp of the local open in milliseconds since the
// epoch, or 0 when there is no local open yet.
func (l *Line) OpenTime() int64 {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if l.localOpen == nil {
		return 0
	}
	return l.localOpen.At
}

// Err returns the reason the line was closed.
func (l *Line) Err() error {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.closeReason
}

// Establish moves a pending line to ESTABLISHED. Both opens, the shared
// secret and both keys must be set. Queued completion handlers run, in the
// order they were added, before Establish returns.
func (l *Line) Establish() error {
	l.mtx.Lock()

	switch l.state {
	case LineEstablished:
		l.mtx.Unlock()
		return nil
	case LineClosed:
		l.mtx.Unlock()
		return ErrLineClosed
	}

	if l.localOpen == nil || l.remoteOpen == nil ||
		len(l.sharedSecret) == 0 ||
		len(l.encryptionKey) != cipherset.KeySize ||
		len(l.decryptionKey) != cipherset.KeySize {
		l.mtx.Unlock()
		return ErrNotReady
	}

	l.state = LineEstablished
	l.firing = true
	log := l.log
	l.mtx.Unlock()

	log.Debugf("line established %s", l)

	l.future.resolve(l, nil)

	for {
		l.mtx.Lock()
		if len(l.completions) == 0 {
			l.firing = false
			l.mtx.Unlock()
			break
		}
		c := l.completions[0]
		l.completions = l.completions[1:]
		l.mtx.Unlock()

		c.handler.Completed(l, c.attachment)
	}

	return nil
}

// AddOpenCompletionHandler calls h once the line is established. When the
// line is already established h is called before AddOpenCompletionHandler
// returns, unless Establish is still running the queued handlers: then h is
// queued behind them.
func (l *Line) AddOpenCompletionHandler(h CompletionHandler, attachment interface{}) {
	l.mtx.Lock()
	switch {
	case l.state == LinePending, l.state == LineEstablished && l.firing:
		l.completions = append(l.completions, completion{h, attachment})
		l.mtx.Unlock()
		return
	case l.state == LineClosed:
		l.mtx.Unlock()
		return
	}
	l.mtx.Unlock()

	h.Completed(l, attachment)
}

// OpenFuture returns the future that resolves when the line is established
// or closed.
func (l *Line) OpenFuture() *OpenFuture {
	return l.future
}

// Close moves the line to CLOSED and drops all of its channels. Close is
// idempotent; only the first reason is kept.
func (l *Line) Close(reason error) {
	if reason == nil {
		reason = ErrLineClosed
	}

	l.mtx.Lock()
	if l.state == LineClosed {
		l.mtx.Unlock()
		return
	}
	l.state = LineClosed
	l.closeReason = reason
	l.completions = nil
	onClosed := l.onClosed
	log := l.log
	l.mtx.Unlock()

	l.channels.Close()
	l.future.resolve(nil, reason)

	log.Debugf("line closed %s (reason=%s)", l, reason)

	if onClosed != nil {
		onClosed(l, reason)
	}
}

// Channels returns the open channels of the line.
func (l *Line) Channels() []*Channel {
	return l.channels.All()
}

// Channel returns the channel with id or nil.
func (l *Line) Channel(id ChannelID) *Channel {
	return l.channels.Get(id)
}

// OpenChannel opens a channel of type typ. The channel is open as soon as it
// is registered; h.HandleOpen is called before OpenChannel returns.
func (l *Line) OpenChannel(typ string, h ChannelHandler) (*Channel, error) {
	if typ == "" {
		return nil, ErrMissingChannelType
	}
	if h == nil {
		return nil, ErrNoChannelHandler
	}

	if l.State() == LineClosed {
		return nil, ErrLineClosed
	}

	c, ok := l.channels.AddNew(func(id ChannelID) *Channel {
		return newChannel(l, id, typ, h, true)
	})
	if !ok {
		return nil, ErrLineClosed
	}

	if l.onChannelOpened != nil {
		l.onChannelOpened(c)
	}

	h.HandleOpen(c)
	return c, nil
}

// HandleIncoming routes a decrypted packet to its channel. Packets for
// unknown channels open a new channel when they carry a type with a
// registered handler. Packets that cannot be routed are dropped.
func (l *Line) HandleIncoming(pkt *LinePacket) {
	if pkt == nil || pkt.Channel == nil || pkt.Channel.ChannelID == 0 {
		l.drop(nil, ErrInvalidChannelPacket)
		return
	}

	var (
		cp = pkt.Channel
		c  = l.channels.Get(cp.ChannelID)
	)

	if c == nil {
		if l.State() == LineClosed {
			l.drop(cp, ErrLineClosed)
			return
		}

		if !cp.HasType() {
			l.drop(cp, ErrMissingChannelType)
			return
		}

		var h ChannelHandler
		if l.resolver != nil {
			h = l.resolver.ResolveChannelHandler(cp.Type)
		}
		if h == nil {
			l.drop(cp, ErrNoChannelHandler)
			return
		}

		c = newChannel(l, cp.ChannelID, cp.Type, h, false)
		if l.channels.Add(c) {
			if l.onChannelOpened != nil {
				l.onChannelOpened(c)
			}
		} else if c = l.channels.Get(cp.ChannelID); c == nil {
			l.drop(cp, ErrLineClosed)
			return
		}
	}

	c.handler.HandleIncoming(c, cp)

	if cp.End {
		l.channels.Remove(c)
	}
}

func (l *Line) drop(pkt *ChannelPacket, reason error) {
	l.mtx.Lock()
	log := l.log
	l.mtx.Unlock()

	if pkt == nil {
		log.Debugf("drop: %s", reason)
	} else {
		log.Debugf("drop: c=%d %s", pkt.ChannelID, reason)
	}

	if l.onPacketDropped != nil {
		l.onPacketDropped(l, pkt, reason)
	}
}

func (l *Line) send(pkt *ChannelPacket) error {
	l.mtx.Lock()
	state, sender := l.state, l.sender
	l.mtx.Unlock()

	switch state {
	case LineClosed:
		return ErrLineClosed
	case LinePending:
		return ErrNotReady
	}
	if sender == nil {
		return ErrNotReady
	}

	inner, err := EncodeChannelPacket(pkt)
	if err != nil {
		return err
	}

	return sender.SendLine(l, inner)
}

func (l *Line) String() string {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	var at int64
	if l.localOpen != nil {
		at = l.localOpen.At
	}

	return fmt.Sprintf("Line[%s->%s@%d]", l.incomingLineID, l.outgoingLineID, at)
}

// SortByOpenTime returns the lines ordered from oldest to newest open time.
// Lines with equal open times keep their relative order. lines is not
// modified.
func SortByOpenTime(lines []*Line) []*Line {
	type keyed struct {
		line *Line
		at   int64
	}

	k := make([]keyed, len(lines))
	for i, l := range lines {
		k[i] = keyed{l, l.OpenTime()}
	}

	sort.SliceStable(k, func(i, j int) bool { return k[i].at < k[j].at })

	out := make([]*Line, len(k))
	for i, x := range k {
		out[i] = x.line
	}
	return out
}
