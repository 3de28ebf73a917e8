package telehash

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/pion/logging"
	"github.com/rcrowley/go-metrics"

	"github.com/telehash/gotelehash/cipherset"
	"github.com/telehash/gotelehash/cipherset/cs1a"
	"github.com/telehash/gotelehash/hashname"
	"github.com/telehash/gotelehash/lob"
	"github.com/telehash/gotelehash/runloop"
	"github.com/telehash/gotelehash/transports"
	"github.com/telehash/gotelehash/util/bufpool"
	"github.com/telehash/gotelehash/util/events"
	"github.com/telehash/gotelehash/util/logs"
)

const (
	DefaultOpenTimeout    = 60 * time.Second
	DefaultOpenBackoffMin = 500 * time.Millisecond
	DefaultOpenBackoffMax = 5 * time.Second

	// peers answering each other's duplicate opens must not loop forever
	maxDuplicateReplies = 8
)

// Config for a Switch. Only Transport is required.
type Config struct {
	// Identity is the local key pair. A new identity is generated when nil.
	Identity *Identity

	// Suite defaults to the identity's suite or cs1a.
	Suite cipherset.Suite

	Transport transports.Config

	// Mux resolves handlers for remotely opened channels. A "ping" handler is
	// added unless one is registered.
	Mux *Mux

	// Seeds are opened when the switch starts.
	Seeds []*Node

	LoggerFactory logging.LoggerFactory
	Metrics       metrics.Registry

	// OpenTimeout bounds the handshake of a line. Default: 60s
	OpenTimeout time.Duration

	// Open packets are resent with an exponential backoff between
	// OpenBackoffMin (500ms) and OpenBackoffMax (5s).
	OpenBackoffMin time.Duration
	OpenBackoffMax time.Duration

	// MaxLines evicts the oldest lines when exceeded. 0 means unlimited.
	MaxLines int
}

// Switch owns the transport and all the lines of a local identity.
type Switch struct {
	config   Config
	identity *Identity
	suite    cipherset.Suite
	mux      *Mux
	log      *logs.Logger
	metrics  *switchMetrics
	hub      events.Hub
	loop     runloop.RunLoop

	mtx       sync.RWMutex
	running   bool
	transport transports.Transport
	lines     map[hashname.H]*lineEntry
	lineIDs   map[cipherset.LineID]*lineEntry
	wg        sync.WaitGroup
}

// lineEntry is the handshake bookkeeping of a line. node is the node the
// entry was made for; the current endpoint lives on the line. Apart from the
// timers the remaining fields are only touched from the runloop.
type lineEntry struct {
	line     *Line
	node     *Node
	openPkt  []byte
	sentOpen bool
	backoff  backoff.Backoff

	dupReplies int
	lastReply  time.Time

	mtx      sync.Mutex
	resend   *time.Timer
	deadline *time.Timer
}

var _ Sender = (*Switch)(nil)

func NewSwitch(cfg Config) (*Switch, error) {
	if cfg.Transport == nil {
		return nil, ErrMissingTransport
	}

	if cfg.Suite == nil {
		if cfg.Identity != nil {
			cfg.Suite = cfg.Identity.Suite()
		} else {
			cfg.Suite = cs1a.New()
		}
	}

	if cfg.Identity == nil {
		ident, err := GenerateIdentity(cfg.Suite)
		if err != nil {
			return nil, err
		}
		cfg.Identity = ident
	}

	if cfg.Mux == nil {
		cfg.Mux = NewMux()
	}
	if !cfg.Mux.handles("ping") {
		cfg.Mux.Handle("ping", pingHandler{})
	}

	if cfg.LoggerFactory == nil {
		cfg.LoggerFactory = logs.Factory()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewRegistry()
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = DefaultOpenTimeout
	}
	if cfg.OpenBackoffMin <= 0 {
		cfg.OpenBackoffMin = DefaultOpenBackoffMin
	}
	if cfg.OpenBackoffMax <= 0 {
		cfg.OpenBackoffMax = DefaultOpenBackoffMax
	}
	if cfg.OpenBackoffMax < cfg.OpenBackoffMin {
		cfg.OpenBackoffMax = cfg.OpenBackoffMin
	}

	s := &Switch{
		config:   cfg,
		identity: cfg.Identity,
		suite:    cfg.Suite,
		mux:      cfg.Mux,
		log:      logs.New(cfg.LoggerFactory, "switch").From(cfg.Identity.Hashname()),
		metrics:  newSwitchMetrics(cfg.Metrics),
	}

	s.loop.State = s
	s.loop.Metrics = cfg.Metrics

	return s, nil
}

func (s *Switch) Identity() *Identity       { return s.identity }
func (s *Switch) Mux() *Mux                 { return s.mux }
func (s *Switch) Metrics() metrics.Registry { return s.config.Metrics }

func (s *Switch) Start() error {
	s.mtx.Lock()
	if s.running {
		s.mtx.Unlock()
		return ErrSwitchRunning
	}

	t, err := s.config.Transport.Open()
	if err != nil {
		s.mtx.Unlock()
		return err
	}

	s.transport = t
	s.running = true
	s.lines = make(map[hashname.H]*lineEntry)
	s.lineIDs = make(map[cipherset.LineID]*lineEntry)
	s.mtx.Unlock()

	s.loop.Run()

	s.wg.Add(1)
	go s.runReader(t)

	s.log.Infof("started hashname=%s addrs=%v", s.identity.Hashname(), t.LocalAddresses())

	for _, seed := range s.config.Seeds {
		s.Open(seed)
	}

	return nil
}

// Stop closes all lines and the transport.
func (s *Switch) Stop() error {
	s.mtx.Lock()
	if !s.running {
		s.mtx.Unlock()
		return ErrSwitchStopped
	}
	s.running = false
	t := s.transport
	entries := make([]*lineEntry, 0, len(s.lines))
	for _, e := range s.lines {
		entries = append(entries, e)
	}
	s.mtx.Unlock()

	// handshakes run on the runloop; close the lines there so none is
	// established behind our back
	s.loop.Call(runloop.CommandFunc(func(interface{}) error {
		for _, e := range entries {
			e.line.Close(ErrSwitchStopped)
		}
		return nil
	}))

	err := t.Close()
	s.wg.Wait()
	s.loop.StopAndWait()

	s.log.Infof("stopped")

	if err == transports.ErrClosed {
		err = nil
	}
	return err
}

func (s *Switch) LocalAddresses() []transports.Addr {
	s.mtx.RLock()
	t := s.transport
	s.mtx.RUnlock()

	if t == nil {
		return nil
	}
	return t.LocalAddresses()
}

// LocalNode returns the node peers use to reach this switch.
func (s *Switch) LocalNode() (*Node, error) {
	var endpoint transports.Addr
	if addrs := s.LocalAddresses(); len(addrs) > 0 {
		endpoint = addrs[0]
	}
	return s.identity.Node(endpoint)
}

func (s *Switch) Subscribe(c chan<- events.E) {
	s.hub.Subscribe(c)
}

func (s *Switch) Unsubscribe(c chan<- events.E) {
	s.hub.Unsubscribe(c)
}

// Lines returns all lines, pending or established.
func (s *Switch) Lines() []*Line {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	lines := make([]*Line, 0, len(s.lines))
	for _, e := range s.lines {
		lines = append(lines, e.line)
	}
	return lines
}

// Line returns the line to hn or nil.
func (s *Switch) Line(hn hashname.H) *Line {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	if e := s.lines[hn]; e != nil {
		return e.line
	}
	return nil
}

// Open starts a handshake with node unless a line to node exists. The
// returned future resolves when the line is established or fails to open.
func (s *Switch) Open(node *Node) *OpenFuture {
	if node == nil {
		return failedOpenFuture(UnreachableNodeError(hashname.Zero))
	}
	if node.Hashname() == s.identity.Hashname() || node.Endpoint() == nil {
		return failedOpenFuture(UnreachableNodeError(node.Hashname()))
	}

	s.mtx.Lock()
	if !s.running {
		s.mtx.Unlock()
		return failedOpenFuture(ErrSwitchStopped)
	}

	if e := s.lines[node.Hashname()]; e != nil {
		s.mtx.Unlock()
		return e.line.OpenFuture()
	}

	e, err := s.newEntryLocked(node)
	if err != nil {
		s.mtx.Unlock()
		return failedOpenFuture(err)
	}
	evicted := s.evictLocked(e)
	s.mtx.Unlock()

	for _, x := range evicted {
		x.line.Close(ErrLineEvicted)
	}

	s.cast(func() { s.startHandshake(e) })

	return e.line.OpenFuture()
}

// OpenChannel waits for a line to node and opens a channel on it.
func (s *Switch) OpenChannel(ctx context.Context, node *Node, typ string, h ChannelHandler) (*Channel, error) {
	line, err := s.Open(node).Wait(ctx)
	if err != nil {
		return nil, err
	}
	return line.OpenChannel(typ, h)
}

func (s *Switch) cast(f func()) {
	s.loop.Cast(runloop.CommandFunc(func(interface{}) error {
		f()
		return nil
	}))
}

func (s *Switch) castAfter(d time.Duration, f func()) *time.Timer {
	return s.loop.CastAfter(d, runloop.CommandFunc(func(interface{}) error {
		f()
		return nil
	}))
}

func (s *Switch) newEntryLocked(node *Node) (*lineEntry, error) {
	id, err := cipherset.NewLineID()
	if err != nil {
		return nil, cipherset.Fail("new line", err)
	}

	e := &lineEntry{
		node: node,
		backoff: backoff.Backoff{
			Min:    s.config.OpenBackoffMin,
			Max:    s.config.OpenBackoffMax,
			Factor: 2,
			Jitter: true,
		},
	}

	opts := []LineOption{
		WithSender(s),
		WithLogger(s.log),
		OnChannelOpened(s.channelOpened),
		OnPacketDropped(s.lineDropped),
		OnClosed(func(l *Line, reason error) { s.lineClosed(e, reason) }),
	}
	local := s.identity.Hashname()
	remote := node.Hashname()
	if bytes.Compare(local[:], remote[:]) > 0 {
		opts = append(opts, WithEvenChannelIDs())
	}

	e.line = NewLine(s.mux, opts...)
	e.line.SetRemoteNode(node)
	e.line.SetIncomingLineID(id)

	s.lines[remote] = e
	s.lineIDs[id] = e
	s.metrics.linesOpened.Inc(1)

	return e, nil
}

// evictLocked removes the oldest lines (other than keep) while there are
// more than MaxLines.
func (s *Switch) evictLocked(keep *lineEntry) []*lineEntry {
	max := s.config.MaxLines
	if max <= 0 || len(s.lines) <= max {
		return nil
	}

	var (
		byLine = make(map[*Line]*lineEntry, len(s.lines))
		lines  = make([]*Line, 0, len(s.lines))
	)
	for _, e := range s.lines {
		if e == keep {
			continue
		}
		byLine[e.line] = e
		lines = append(lines, e.line)
	}

	var evicted []*lineEntry
	for _, l := range SortByOpenTime(lines) {
		if len(s.lines) <= max {
			break
		}
		e := byLine[l]
		s.removeLocked(e)
		evicted = append(evicted, e)
	}

	return evicted
}

func (s *Switch) removeLocked(e *lineEntry) {
	if s.lines[e.node.Hashname()] == e {
		delete(s.lines, e.node.Hashname())
	}
	id := e.line.IncomingLineID()
	if s.lineIDs[id] == e {
		delete(s.lineIDs, id)
	}
}

// ensureLocalOpen composes and encodes the local open once. Runloop only.
func (s *Switch) ensureLocalOpen(e *lineEntry) error {
	if e.line.LocalOpen() != nil {
		return nil
	}

	prv := s.identity.PrivateKey()
	at := time.Now().UnixNano() / int64(time.Millisecond)

	o, err := s.suite.NewOpen(prv, e.node.PublicKey(), e.node.Hashname(), e.line.IncomingLineID(), at)
	if err != nil {
		return err
	}

	pkt, err := s.suite.EncodeOpen(prv, o)
	if err != nil {
		return err
	}

	data, err := lob.Encode(pkt)
	if err != nil {
		return err
	}

	e.openPkt = data
	e.line.SetLocalOpen(o)
	return nil
}

func (s *Switch) startHandshake(e *lineEntry) {
	if e.line.State() != LinePending {
		return
	}

	if err := s.ensureLocalOpen(e); err != nil {
		e.line.Close(err)
		return
	}

	e.setDeadline(s.castAfter(s.config.OpenTimeout, func() {
		if e.line.State() == LinePending {
			e.line.Close(ErrOpenTimeout)
		}
	}))

	s.sendOpen(e)
}

func (s *Switch) sendOpen(e *lineEntry) {
	if e.line.State() != LinePending {
		return
	}

	s.writeOpen(e, e.line.RemoteNode().Endpoint())

	e.setResend(s.castAfter(e.backoff.Duration(), func() { s.sendOpen(e) }))
}

func (s *Switch) writeOpen(e *lineEntry, dst transports.Addr) {
	err := s.write(e.openPkt, dst)
	if err != nil {
		s.log.To(e.node.Hashname()).Debugf("failed to send open: %s", err)
		return
	}
	e.sentOpen = true
}

func (s *Switch) runReader(t transports.Transport) {
	defer s.wg.Done()

	for {
		buf := bufpool.GetBuffer()

		n, src, err := t.ReadMessage(buf)
		if err == transports.ErrClosed {
			bufpool.PutBuffer(buf)
			return
		}
		if err != nil {
			bufpool.PutBuffer(buf)
			s.log.Debugf("read error: %s", err)
			continue
		}

		s.metrics.packetsReceived.Mark(1)

		pkt, err := lob.Decode(buf[:n])
		bufpool.PutBuffer(buf)
		if err != nil {
			s.dropped(src, err)
			continue
		}

		hdr := pkt.Header()
		if hdr == nil {
			s.dropped(src, ErrUnknownPacket)
			continue
		}

		switch hdr.Type {
		case "open":
			s.cast(func() { s.receivedOpen(pkt, src) })
		case "line":
			s.receivedLine(pkt, src)
		default:
			s.dropped(src, ErrUnknownPacket)
		}
	}
}

// receivedOpen runs on the runloop.
func (s *Switch) receivedOpen(pkt *lob.Packet, src transports.Addr) {
	o, err := s.suite.DecodeOpen(s.identity.PrivateKey(), pkt)
	if err != nil {
		s.dropped(src, err)
		return
	}

	if o.To != s.identity.Hashname() {
		s.dropped(src, cipherset.ErrInvalidOpen)
		return
	}

	node, err := NewNode(s.suite, o.Sender, src)
	if err != nil {
		s.dropped(src, err)
		return
	}
	if node.Hashname() == s.identity.Hashname() {
		s.dropped(src, cipherset.ErrInvalidOpen)
		return
	}

	var (
		replaced *lineEntry
		evicted  []*lineEntry
	)

	s.mtx.Lock()
	if !s.running {
		s.mtx.Unlock()
		return
	}

	e := s.lines[node.Hashname()]
	if e != nil {
		if ro := e.line.RemoteOpen(); ro != nil {
			if ro.LineID == o.LineID {
				// the peer resent its open; it may have missed ours
				s.mtx.Unlock()
				if e.line.State() == LineEstablished && e.shouldReply(s.config.OpenBackoffMin/2) {
					s.writeOpen(e, src)
				}
				return
			}

			if o.At <= ro.At {
				s.mtx.Unlock()
				s.dropped(src, ErrStaleOpen)
				return
			}

			s.removeLocked(e)
			replaced, e = e, nil
		}
	}

	if e == nil {
		e, err = s.newEntryLocked(node)
		if err != nil {
			s.mtx.Unlock()
			s.dropped(src, err)
			return
		}
		evicted = s.evictLocked(e)
	}
	s.mtx.Unlock()

	if replaced != nil {
		replaced.line.Close(ErrLineReplaced)
	}
	for _, x := range evicted {
		x.line.Close(ErrLineEvicted)
	}

	line := e.line
	log := s.log.To(node.Hashname())

	// the peer may have roamed
	line.SetRemoteNode(node)

	if err := s.ensureLocalOpen(e); err != nil {
		line.Close(err)
		return
	}

	local := line.LocalOpen()
	line.SetRemoteOpen(o)
	line.SetOutgoingLineID(o.LineID)

	secret, err := s.suite.DeriveSharedSecret(local, o)
	if err != nil {
		log.Debugf("handshake failed: %s", err)
		line.Close(err)
		return
	}

	enc, dec, err := s.suite.DeriveDirectionalKeys(secret, local, o)
	if err != nil {
		log.Debugf("handshake failed: %s", err)
		line.Close(err)
		return
	}

	if err := line.SetSharedSecret(secret); err != nil {
		line.Close(err)
		return
	}
	if err := line.SetEncryptionKey(enc); err != nil {
		line.Close(err)
		return
	}
	if err := line.SetDecryptionKey(dec); err != nil {
		line.Close(err)
		return
	}

	e.stopTimers()

	if !e.sentOpen {
		s.writeOpen(e, src)
	}

	if err := line.Establish(); err != nil {
		line.Close(err)
		return
	}

	s.metrics.linesEstablished.Inc(1)
	s.hub.Emit(&LineOpenedEvent{line})
	log.Infof("line opened %s", line)
}

func (s *Switch) receivedLine(pkt *lob.Packet, src transports.Addr) {
	idHex, _ := pkt.Header().GetString("line")
	id, err := cipherset.ParseLineID(idHex)
	if err != nil {
		s.dropped(src, err)
		return
	}

	s.mtx.RLock()
	e := s.lineIDs[id]
	s.mtx.RUnlock()

	if e == nil {
		s.dropped(src, ErrUnknownLine)
		return
	}

	line := e.line
	if line.State() != LineEstablished {
		s.dropped(src, ErrNotReady)
		return
	}

	inner, err := s.suite.DecryptLine(line.DecryptionKey(), pkt)
	if err != nil {
		s.dropped(src, err)
		line.Close(&BrokenLineError{e.node.Hashname(), ErrDecryptionFailed})
		return
	}

	cp, err := DecodeChannelPacket(inner)
	if err == ErrInvalidChannelPacket {
		s.dropped(src, err)
		return
	}
	if err != nil {
		s.dropped(src, err)
		line.Close(&BrokenLineError{e.node.Hashname(), ErrDecryptionFailed})
		return
	}

	// the peer may have roamed
	if node := line.RemoteNode(); node != nil && !transports.EqualAddr(node.Endpoint(), src) {
		line.SetRemoteNode(node.withEndpoint(src))
		s.log.To(node.Hashname()).Debugf("peer roamed to %s", src)
	}

	line.HandleIncoming(&LinePacket{LineID: id, Channel: cp})
}

// SendLine implements Sender.
func (s *Switch) SendLine(l *Line, inner []byte) error {
	node := l.RemoteNode()
	if node == nil || node.Endpoint() == nil {
		return UnreachableNodeError(l.RemoteNode().hashnameOrZero())
	}

	pkt, err := s.suite.EncryptLine(l.EncryptionKey(), l.OutgoingLineID(), inner)
	if err != nil {
		return err
	}

	data, err := lob.Encode(pkt)
	if err != nil {
		return err
	}

	return s.write(data, node.Endpoint())
}

func (s *Switch) write(data []byte, dst transports.Addr) error {
	s.mtx.RLock()
	t, running := s.transport, s.running
	s.mtx.RUnlock()

	if !running {
		return ErrSwitchStopped
	}

	err := t.WriteMessage(data, dst)
	if err != nil {
		return err
	}

	s.metrics.packetsSent.Mark(1)
	return nil
}

func (s *Switch) dropped(src transports.Addr, reason error) {
	s.metrics.packetsDropped.Inc(1)
	s.log.Debugf("drop: %s (src=%s)", reason, src)
	s.hub.Emit(&PacketDroppedEvent{Src: src, Reason: reason})
}

func (s *Switch) lineDropped(l *Line, pkt *ChannelPacket, reason error) {
	s.metrics.packetsDropped.Inc(1)
	s.hub.Emit(&PacketDroppedEvent{Reason: reason})
}

func (s *Switch) channelOpened(c *Channel) {
	s.hub.Emit(&ChannelOpenedEvent{c})
}

func (s *Switch) lineClosed(e *lineEntry, reason error) {
	s.mtx.Lock()
	if s.lines != nil {
		s.removeLocked(e)
	}
	s.mtx.Unlock()

	e.stopTimers()

	s.metrics.linesClosed.Inc(1)
	s.hub.Emit(&LineClosedEvent{e.line, reason})
	s.log.To(e.node.Hashname()).Debugf("line closed %s (reason=%s)", e.line, reason)
}

func (e *lineEntry) setResend(t *time.Timer) {
	e.mtx.Lock()
	if e.resend != nil {
		e.resend.Stop()
	}
	e.resend = t
	e.mtx.Unlock()
}

func (e *lineEntry) setDeadline(t *time.Timer) {
	e.mtx.Lock()
	if e.deadline != nil {
		e.deadline.Stop()
	}
	e.deadline = t
	e.mtx.Unlock()
}

func (e *lineEntry) stopTimers() {
	e.mtx.Lock()
	if e.resend != nil {
		e.resend.Stop()
		e.resend = nil
	}
	if e.deadline != nil {
		e.deadline.Stop()
		e.deadline = nil
	}
	e.mtx.Unlock()
}

// shouldReply limits the answers to duplicate opens. Runloop only.
func (e *lineEntry) shouldReply(interval time.Duration) bool {
	now := time.Now()
	if e.dupReplies >= maxDuplicateReplies || now.Sub(e.lastReply) < interval {
		return false
	}
	e.dupReplies++
	e.lastReply = now
	return true
}

func (n *Node) hashnameOrZero() hashname.H {
	if n == nil {
		return hashname.Zero
	}
	return n.hashname
}
