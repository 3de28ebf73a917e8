// Package inproc implements the in-process transport
package inproc

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/telehash/gotelehash/transports"
	"github.com/telehash/gotelehash/util/bufpool"
)

func init() {
	transports.RegisterAddrDecoder("inproc", decodeAddress)
}

// Config for the inproc transport. There are no configuration options for now.
//
//   telehash.NewSwitch(telehash.Config{Transport: inproc.Config{}})
type Config struct {
}

type inprocAddr struct {
	id uint32
}

type transport struct {
	laddr *inprocAddr
	c     chan packet

	closeOnce sync.Once
}

type packet struct {
	from *inprocAddr
	buf  []byte
}

var (
	_ transports.Addr      = (*inprocAddr)(nil)
	_ transports.Transport = (*transport)(nil)
	_ transports.Config    = Config{}
)

var (
	mtx    sync.RWMutex
	pipes  = map[uint32]*transport{}
	nextID uint32
)

// Open opens the transport.
func (c Config) Open() (transports.Transport, error) {
	mtx.Lock()
	nextID++
	id := nextID
	t := &transport{laddr: &inprocAddr{id}, c: make(chan packet, 64)}
	pipes[id] = t
	mtx.Unlock()

	return t, nil
}

func (t *transport) ReadMessage(p []byte) (int, transports.Addr, error) {
	pkt, open := <-t.c
	if !open {
		return 0, nil, transports.ErrClosed
	}

	n := copy(p, pkt.buf)
	bufpool.PutBuffer(pkt.buf)

	return n, pkt.from, nil
}

func (t *transport) WriteMessage(p []byte, dst transports.Addr) error {
	a, ok := dst.(*inprocAddr)
	if !ok || a == nil {
		return transports.ErrInvalidAddr
	}
	if len(p) > bufpool.BufferSize {
		return transports.ErrInvalidAddr
	}

	mtx.RLock()
	dstT := pipes[a.id]
	mtx.RUnlock()

	if dstT == nil {
		return nil // drop
	}

	buf := bufpool.GetBuffer()
	copy(buf, p)
	buf = buf[:len(p)]

	func() {
		defer func() { recover() }()
		select {
		case dstT.c <- packet{t.laddr, buf}:
		default:
			// receiver is congested; drop like a datagram network would
			bufpool.PutBuffer(buf)
		}
	}()

	return nil
}

func (t *transport) LocalAddresses() []transports.Addr {
	return []transports.Addr{t.laddr}
}

func (t *transport) Close() error {
	err := transports.ErrClosed

	t.closeOnce.Do(func() {
		mtx.Lock()
		delete(pipes, t.laddr.id)
		mtx.Unlock()

		close(t.c)
		err = nil
	})

	return err
}

func (a *inprocAddr) Network() string {
	return "inproc"
}

func (a *inprocAddr) String() string {
	return fmt.Sprintf("inproc:%d", a.id)
}

func (a *inprocAddr) Equal(other transports.Addr) bool {
	b, ok := other.(*inprocAddr)
	return ok && b != nil && a.id == b.id
}

func (a *inprocAddr) MarshalJSON() ([]byte, error) {
	var desc = struct {
		Type string `json:"type"`
		ID   int    `json:"id"`
	}{
		Type: "inproc",
		ID:   int(a.id),
	}
	return json.Marshal(&desc)
}

func decodeAddress(data []byte) (transports.Addr, error) {
	var desc struct {
		Type string `json:"type"`
		ID   int    `json:"id"`
	}

	err := json.Unmarshal(data, &desc)
	if err != nil {
		return nil, err
	}

	if desc.ID <= 0 {
		return nil, transports.ErrInvalidAddr
	}

	return &inprocAddr{uint32(desc.ID)}, nil
}
