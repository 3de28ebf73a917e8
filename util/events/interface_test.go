package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type testEvent string

func (e testEvent) String() string { return string(e) }

func TestHub(t *testing.T) {
	assert := assert.New(t)

	var (
		hub  Hub
		a    = make(chan E, 1)
		b    = make(chan E, 1)
		full = make(chan E)
	)

	hub.Subscribe(a)
	hub.Subscribe(b)
	hub.Subscribe(full)

	assert.Equal(2, hub.Emit(testEvent("one")))
	assert.Equal(testEvent("one"), <-a)
	assert.Equal(testEvent("one"), <-b)

	hub.Unsubscribe(a)
	assert.Equal(1, hub.Emit(testEvent("two")))
	assert.Equal(testEvent("two"), <-b)
	assert.Len(a, 0)
}

func TestEmitClosed(t *testing.T) {
	c := make(chan E, 1)
	close(c)

	assert.False(t, Emit(c, testEvent("x")))
	assert.False(t, Emit(nil, testEvent("x")))
	assert.False(t, Emit(make(chan E, 1), nil))
}
