package telehash

import (
	"sync"
)

var _ ChannelHandlerResolver = (*Mux)(nil)

// Mux maps channel types to handlers.
type Mux struct {
	mtx      sync.RWMutex
	types    map[string]ChannelHandler
	fallback ChannelHandler
}

func NewMux() *Mux {
	return &Mux{
		types: make(map[string]ChannelHandler),
	}
}

func (m *Mux) ResolveChannelHandler(typ string) ChannelHandler {
	m.mtx.RLock()
	defer m.mtx.RUnlock()

	h := m.types[typ]
	if h == nil {
		h = m.fallback
	}
	return h
}

func (m *Mux) HandleFallback(h ChannelHandler) {
	m.mtx.Lock()
	m.fallback = h
	m.mtx.Unlock()
}

func (m *Mux) Handle(typ string, h ChannelHandler) {
	m.mtx.Lock()
	if m.types == nil {
		m.types = make(map[string]ChannelHandler)
	}
	m.types[typ] = h
	m.mtx.Unlock()
}

// HandleFunc registers f for packets on remotely opened channels of type typ.
func (m *Mux) HandleFunc(typ string, f func(c *Channel, pkt *ChannelPacket)) {
	m.Handle(typ, ChannelHandlerFuncs{Incoming: f})
}

func (m *Mux) handles(typ string) bool {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	return m.types[typ] != nil
}
