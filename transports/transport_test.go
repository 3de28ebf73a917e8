package transports

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// greedyAddr claims to equal everything.
type greedyAddr struct{}

func (greedyAddr) Network() string              { return "greedy" }
func (greedyAddr) String() string               { return "*" }
func (greedyAddr) MarshalJSON() ([]byte, error) { return []byte(`{"type":"greedy"}`), nil }
func (greedyAddr) Equal(Addr) bool              { return true }

func TestEqualAddrChecksNetwork(t *testing.T) {
	assert := assert.New(t)

	a := &testAddr{Name: "a"}

	assert.True(EqualAddr(greedyAddr{}, greedyAddr{}))
	assert.False(EqualAddr(greedyAddr{}, a))
	assert.False(EqualAddr(a, greedyAddr{}))
	assert.False(EqualAddr(nil, greedyAddr{}))
	assert.False(EqualAddr(greedyAddr{}, nil))
}

func TestErrorsArePackageScoped(t *testing.T) {
	assert.Equal(t, "transports: closed", ErrClosed.Error())
	assert.Equal(t, "transports: invalid address", ErrInvalidAddr.Error())
}
