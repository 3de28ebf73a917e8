package cipherset

import (
	"sync"
)

var (
	suitesMtx sync.RWMutex
	suites    = map[uint8]Suite{}
)

// Register makes a suite available by id. It panics when the id is taken.
func Register(s Suite) {
	if s == nil {
		panic("cipherset: suite must not be nil")
	}

	suitesMtx.Lock()
	defer suitesMtx.Unlock()

	if suites[s.ID()] != nil {
		panic("cipherset: suite is already registered")
	}
	suites[s.ID()] = s
}

// Lookup returns the suite registered for id.
func Lookup(id uint8) (Suite, error) {
	suitesMtx.RLock()
	s := suites[id]
	suitesMtx.RUnlock()

	if s == nil {
		return nil, ErrUnknownSuite
	}
	return s, nil
}
