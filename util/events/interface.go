// Package events fans out switch events to subscribers.
package events

import (
	"sync"

	"github.com/telehash/gotelehash/util/logs"
)

type E interface {
	String() string
}

// Hub delivers every emitted event to all subscribed channels. Delivery never
// blocks: a subscriber whose buffer is full misses the event.
type Hub struct {
	mtx sync.RWMutex
	l   []chan<- E
}

// Emit offers in to out. It returns false when out is nil, closed or full.
func Emit(out chan<- E, in E) (ok bool) {
	if out == nil || in == nil {
		return false
	}

	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	select {
	case out <- in:
		return true
	default:
		return false
	}
}

func FanOut(out []chan<- E, in E) (delivered int) {
	for _, c := range out {
		if Emit(c, in) {
			delivered++
		}
	}
	return delivered
}

// Log writes every event read from in until in is closed.
func Log(out *logs.Logger, in <-chan E) {
	if out == nil {
		out = logs.Module("events")
	}
	for e := range in {
		out.Infof("event: %s", e)
	}
}

func (h *Hub) Emit(in E) int {
	h.mtx.RLock()
	n := FanOut(h.l, in)
	h.mtx.RUnlock()
	return n
}

func (h *Hub) Subscribe(c chan<- E) {
	h.mtx.Lock()
	h.l = append(h.l, c)
	h.mtx.Unlock()
}

func (h *Hub) Unsubscribe(c chan<- E) {
	h.mtx.Lock()
	l := len(h.l)
	for i, d := range h.l {
		if d == c {
			if l-1 > i {
				copy(h.l[i:], h.l[i+1:])
			}
			h.l[l-1] = nil
			h.l = h.l[:l-1]
			break
		}
	}
	h.mtx.Unlock()
}
