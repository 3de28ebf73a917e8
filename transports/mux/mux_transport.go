// Package mux combines several transports into one.
//
//   telehash.NewSwitch(telehash.Config{Transport: mux.Config{
//     udp.Config{Network: "udp4"},
//     udp.Config{Network: "udp6"},
//   }})
package mux

import (
	"sync"

	"github.com/telehash/gotelehash/transports"
	"github.com/telehash/gotelehash/util/bufpool"
)

var (
	_ transports.Config    = Config{}
	_ transports.Transport = (*muxer)(nil)
)

// Config opens each of its transports. Writes go to the first transport
// that accepts the destination address.
type Config []transports.Config

type muxer struct {
	transports []transports.Transport
	reads      chan readOp
	done       chan struct{}
	closeOnce  sync.Once
	wg         sync.WaitGroup
}

type readOp struct {
	buf []byte
	src transports.Addr
}

// Open opens the transport.
func (c Config) Open() (transports.Transport, error) {
	m := &muxer{
		reads: make(chan readOp),
		done:  make(chan struct{}),
	}

	for _, f := range c {
		t, err := f.Open()
		if err != nil {
			m.Close()
			return nil, err
		}

		m.transports = append(m.transports, t)
	}

	for _, t := range m.transports {
		m.wg.Add(1)
		go m.runReader(t)
	}

	return m, nil
}

func (m *muxer) runReader(t transports.Transport) {
	defer m.wg.Done()

	for {
		buf := bufpool.GetBuffer()
		n, src, err := t.ReadMessage(buf)
		if err != nil {
			bufpool.PutBuffer(buf)
			if err == transports.ErrClosed {
				return
			}
			continue
		}

		select {
		case m.reads <- readOp{buf[:n], src}:
		case <-m.done:
			bufpool.PutBuffer(buf)
			return
		}
	}
}

func (m *muxer) ReadMessage(p []byte) (int, transports.Addr, error) {
	select {
	case op := <-m.reads:
		n := copy(p, op.buf)
		bufpool.PutBuffer(op.buf)
		return n, op.src, nil
	case <-m.done:
		return 0, nil, transports.ErrClosed
	}
}

func (m *muxer) WriteMessage(p []byte, dst transports.Addr) error {
	select {
	case <-m.done:
		return transports.ErrClosed
	default:
	}

	for _, t := range m.transports {
		err := t.WriteMessage(p, dst)
		if err == transports.ErrInvalidAddr {
			continue
		}
		return err
	}

	return transports.ErrInvalidAddr
}

func (m *muxer) LocalAddresses() []transports.Addr {
	var addrs []transports.Addr
	for _, t := range m.transports {
		addrs = append(addrs, t.LocalAddresses()...)
	}
	return addrs
}

func (m *muxer) Close() error {
	var err error = transports.ErrClosed

	m.closeOnce.Do(func() {
		err = nil
		close(m.done)
		for _, t := range m.transports {
			if e := t.Close(); e != nil && err == nil {
				err = e
			}
		}
		m.wg.Wait()
	})

	return err
}
