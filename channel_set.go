package telehash

import (
	"sync"
)

type channelSet struct {
	mtx      sync.RWMutex
	channels map[ChannelID]*Channel
	nextID   ChannelID
	closed   bool
}

func (set *channelSet) Get(id ChannelID) *Channel {
	var (
		c *Channel
	)

	set.mtx.RLock()
	if set.channels != nil {
		c = set.channels[id]
	}
	set.mtx.RUnlock()

	return c
}

func (set *channelSet) All() []*Channel {
	set.mtx.RLock()

	s := make([]*Channel, 0, len(set.channels))
	for _, c := range set.channels {
		s = append(s, c)
	}
	set.mtx.RUnlock()

	return s
}

func (set *channelSet) Len() int {
	set.mtx.RLock()
	n := len(set.channels)
	set.mtx.RUnlock()
	return n
}

// Remove removes c. It does nothing when the id was reused by another channel.
func (set *channelSet) Remove(c *Channel) bool {
	set.mtx.Lock()
	defer set.mtx.Unlock()

	if set.channels == nil {
		return false
	}

	if set.channels[c.id] != c {
		return false
	}

	delete(set.channels, c.id)
	return true
}

// Add registers c under its id. It fails when the id is taken or the set is
// closed.
func (set *channelSet) Add(c *Channel) (ok bool) {
	set.mtx.Lock()
	defer set.mtx.Unlock()

	if set.closed {
		return false
	}

	if set.channels == nil {
		set.channels = make(map[ChannelID]*Channel)
	}

	if set.channels[c.id] != nil {
		return false
	}

	set.channels[c.id] = c
	return true
}

// AddNew allocates a free id, builds a channel for it and registers it.
// Locally allocated ids advance by 2 so both ends of a line can allocate
// without colliding.
func (set *channelSet) AddNew(build func(id ChannelID) *Channel) (*Channel, bool) {
	set.mtx.Lock()
	defer set.mtx.Unlock()

	if set.closed {
		return nil, false
	}

	if set.channels == nil {
		set.channels = make(map[ChannelID]*Channel)
	}

	if set.nextID == 0 {
		set.nextID = 1
	}

	id := set.nextID
	for id == 0 || set.channels[id] != nil {
		id += 2
	}
	set.nextID = id + 2

	c := build(id)
	set.channels[id] = c
	return c, true
}

// Close drops all channels and refuses new ones.
func (set *channelSet) Close() []*Channel {
	set.mtx.Lock()
	defer set.mtx.Unlock()

	set.closed = true

	s := make([]*Channel, 0, len(set.channels))
	for _, c := range set.channels {
		s = append(s, c)
	}
	set.channels = nil
	return s
}
