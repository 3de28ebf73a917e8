// Package pipe implements a point-to-point in-memory transport.
//
// A Pipe connects exactly two transports through a pion test.Bridge. Packets
// are pumped by a background goroutine unless manual processing is
// requested, which makes delivery order fully deterministic in tests.
//
//   p := pipe.New(pipe.Options{})
//   a := telehash.NewSwitch(telehash.Config{Transport: p.End(0)})
//   b := telehash.NewSwitch(telehash.Config{Transport: p.End(1)})
package pipe

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pion/transport/v3/test"

	"github.com/telehash/gotelehash/transports"
	"github.com/telehash/gotelehash/util/bufpool"
)

func init() {
	transports.RegisterAddrDecoder("pipe", decodeAddress)
}

// Options for a Pipe.
type Options struct {
	// Manual disables the background pump. Call Process to deliver packets.
	Manual bool

	// Interval is how often the pump delivers packets. Default: 1ms
	Interval time.Duration
}

// inboxSize bounds the packets delivered to an end but not yet read. Packets
// beyond it are dropped.
const inboxSize = 256

// Pipe is a bidirectional in-memory link.
type Pipe struct {
	bridge *test.Bridge
	conns  [2]net.Conn
	inbox  [2]chan []byte
	done   [2]chan struct{}

	mtx    sync.Mutex
	closed bool
	stop   chan struct{}
	wg     sync.WaitGroup
}

// End is one side of a Pipe. It implements transports.Config.
type End struct {
	pipe *Pipe
	id   int
}

type pipeAddr struct {
	id int
}

type transport struct {
	pipe *Pipe
	id   int
}

var (
	_ transports.Addr      = (*pipeAddr)(nil)
	_ transports.Transport = (*transport)(nil)
	_ transports.Config    = End{}
)

func New(opts Options) *Pipe {
	br := test.NewBridge()
	p := &Pipe{
		bridge: br,
		conns:  [2]net.Conn{br.GetConn0(), br.GetConn1()},
		stop:   make(chan struct{}),
	}

	// the bridge only hands a packet to a conn that is blocked in Read
	for id := range p.conns {
		p.inbox[id] = make(chan []byte, inboxSize)
		p.done[id] = make(chan struct{})
		go p.drain(id)
	}

	if opts.Interval <= 0 {
		opts.Interval = time.Millisecond
	}

	if !opts.Manual {
		p.wg.Add(1)
		go p.pump(opts.Interval)
	}

	return p
}

func (p *Pipe) drain(id int) {
	defer close(p.done[id])
	defer close(p.inbox[id])

	buf := make([]byte, bufpool.BufferSize)
	for {
		n, err := p.conns[id].Read(buf)
		if err != nil {
			return
		}

		select {
		case p.inbox[id] <- append([]byte(nil), buf[:n]...):
		default:
		}
	}
}

func (p *Pipe) pump(interval time.Duration) {
	defer p.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			for p.bridge.Tick() > 0 {
			}
		}
	}
}

// End returns side id (0 or 1) of the pipe.
func (p *Pipe) End(id int) End {
	if id != 0 && id != 1 {
		panic("pipe: id must be 0 or 1")
	}
	return End{p, id}
}

// Process delivers all queued packets and returns how many were delivered.
func (p *Pipe) Process() int {
	count := 0
	for p.bridge.Len(0) > 0 || p.bridge.Len(1) > 0 {
		n := p.bridge.Tick()
		if n == 0 {
			// a drain goroutine is still busy with the previous packet
			time.Sleep(10 * time.Microsecond)
		}
		count += n
	}
	return count
}

// DropNext silently discards the next n packets written by side from. It
// replaces any earlier count for that side.
func (p *Pipe) DropNext(from, n int) {
	p.bridge.DropNextNWrites(from, n)
}

// Close closes both ends, delivers what is still queued and stops the pump.
func (p *Pipe) Close() error {
	p.mtx.Lock()
	if p.closed {
		p.mtx.Unlock()
		return nil
	}
	p.closed = true
	p.mtx.Unlock()

	// ends closed by their transport report an error here
	p.conns[0].Close()
	p.conns[1].Close()

	p.awaitDrained(0)
	p.awaitDrained(1)

	close(p.stop)
	p.wg.Wait()
	return nil
}

// awaitDrained ticks the bridge until the drain goroutine of id has seen the
// end of its conn.
func (p *Pipe) awaitDrained(id int) {
	for {
		select {
		case <-p.done[id]:
			return
		default:
			p.bridge.Tick()
			time.Sleep(10 * time.Microsecond)
		}
	}
}

// Open opens the transport.
func (e End) Open() (transports.Transport, error) {
	return &transport{e.pipe, e.id}, nil
}

func (t *transport) ReadMessage(p []byte) (int, transports.Addr, error) {
	data, open := <-t.pipe.inbox[t.id]
	if !open {
		return 0, nil, transports.ErrClosed
	}
	return copy(p, data), &pipeAddr{1 - t.id}, nil
}

func (t *transport) WriteMessage(p []byte, dst transports.Addr) error {
	a, ok := dst.(*pipeAddr)
	if !ok || a == nil || a.id != 1-t.id {
		return transports.ErrInvalidAddr
	}

	_, err := t.pipe.conns[t.id].Write(p)
	if err != nil {
		return transports.ErrClosed
	}
	return nil
}

func (t *transport) LocalAddresses() []transports.Addr {
	return []transports.Addr{&pipeAddr{t.id}}
}

// Close closes this end. Reads on it return transports.ErrClosed once the
// packets already delivered have been read.
func (t *transport) Close() error {
	if err := t.pipe.conns[t.id].Close(); err != nil {
		return transports.ErrClosed
	}
	t.pipe.awaitDrained(t.id)
	return nil
}

// Addr returns the address of side id (0 or 1).
func Addr(id int) transports.Addr {
	if id != 0 && id != 1 {
		panic("pipe: id must be 0 or 1")
	}
	return &pipeAddr{id}
}

func (a *pipeAddr) Network() string { return "pipe" }

func (a *pipeAddr) String() string { return fmt.Sprintf("pipe:%d", a.id) }

func (a *pipeAddr) Equal(other transports.Addr) bool {
	b, ok := other.(*pipeAddr)
	return ok && b != nil && a.id == b.id
}

func (a *pipeAddr) MarshalJSON() ([]byte, error) {
	var desc = struct {
		Type string `json:"type"`
		ID   int    `json:"id"`
	}{
		Type: "pipe",
		ID:   a.id,
	}
	return json.Marshal(&desc)
}

func decodeAddress(data []byte) (transports.Addr, error) {
	var desc struct {
		ID int `json:"id"`
	}

	err := json.Unmarshal(data, &desc)
	if err != nil {
		return nil, err
	}

	if desc.ID != 0 && desc.ID != 1 {
		return nil, transports.ErrInvalidAddr
	}

	return &pipeAddr{desc.ID}, nil
}
