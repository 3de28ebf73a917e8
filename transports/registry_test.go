package transports

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAddr struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

func (a *testAddr) Network() string              { return "test" }
func (a *testAddr) String() string               { return a.Name }
func (a *testAddr) MarshalJSON() ([]byte, error) { return json.Marshal(struct{ Type, Name string }{"test", a.Name}) }
func (a *testAddr) Equal(o Addr) bool {
	b, ok := o.(*testAddr)
	return ok && b.Name == a.Name
}

func init() {
	RegisterAddrDecoder("test", func(data []byte) (Addr, error) {
		var a testAddr
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, err
		}
		if a.Name == "" {
			return nil, ErrInvalidAddr
		}
		return &a, nil
	})
}

func TestDecodeAddr(t *testing.T) {
	assert := assert.New(t)

	addr, err := DecodeAddr([]byte(`{"type":"test","name":"a"}`))
	require.NoError(t, err)
	assert.True(EqualAddr(addr, &testAddr{Name: "a"}))
	assert.False(EqualAddr(addr, &testAddr{Name: "b"}))
	assert.False(EqualAddr(addr, nil))
	assert.True(EqualAddr(nil, nil))

	_, err = DecodeAddr([]byte(`{"type":"test"}`))
	assert.Equal(ErrInvalidAddr, err)

	_, err = DecodeAddr([]byte(`{"type":"nope"}`))
	assert.Equal(ErrInvalidAddr, err)

	_, err = DecodeAddr([]byte(`nope`))
	assert.Equal(ErrInvalidAddr, err)

	assert.Panics(func() {
		RegisterAddrDecoder("test", func([]byte) (Addr, error) { return nil, nil })
	})
}
